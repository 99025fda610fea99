package destination

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/datazip-inc/pipes/constants"
	"github.com/datazip-inc/pipes/types"
	"github.com/datazip-inc/pipes/utils"
)

type NewFunc func() Writer

var RegisteredWriters = map[types.AdapterType]NewFunc{}

// Sink adapts a writer to one stream: it turns projected records into rows,
// appending the multiplicity marker when configured.
type Sink struct {
	streamID    string
	variant     types.Variant
	schema      Schema
	writer      Writer
	recordCount atomic.Int64
}

func NewSink(ctx context.Context, config *types.WriterConfig, streamID string, variant types.Variant) (*Sink, error) {
	newfunc, found := RegisteredWriters[config.Type]
	if !found {
		return nil, fmt.Errorf("invalid destination type has been passed [%s]", config.Type)
	}
	if !variant.Valid() {
		return nil, fmt.Errorf("invalid record variant [%s]", variant)
	}

	writer := newfunc()
	configRef := writer.GetConfigRef()
	if err := utils.Unmarshal(config.WriterConfig, configRef); err != nil {
		return nil, err
	}
	if err := configRef.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate %s destination config: %s", writer.Type(), err)
	}

	schema := Schema{Columns: variant.Columns()}
	if config.MultiplicityColumn != "" {
		schema.Columns = append(schema.Columns, types.Column{Name: config.MultiplicityColumn, Type: types.Int8Column})
		schema.SignColumn = config.MultiplicityColumn
	}

	if err := writer.Setup(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to setup %s destination: %s", writer.Type(), err)
	}

	return &Sink{
		streamID: streamID,
		variant:  variant,
		schema:   schema,
		writer:   writer,
	}, nil
}

// Write hands the records of batch to the writer as one logical operation,
// preserving record order.
func (s *Sink) Write(ctx context.Context, batch *types.Batch, records []types.Record) error {
	rows := &Rows{
		StreamID: s.streamID,
		First:    batch.First().Number,
		Last:     batch.Frontier().Number,
		Columns:  s.schema.Columns,
		Values:   make([][]any, 0, len(records)),
	}

	for idx, record := range records {
		if record.Variant() != s.variant {
			return fmt.Errorf("%w: record[%d] of variant[%s] sent to %s sink", ErrInvalidRows, idx, record.Variant(), s.variant)
		}
		values := record.Values()
		if s.schema.SignColumn != "" {
			values = append(values, constants.MultiplicityMarker)
		}
		rows.Values = append(rows.Values, values)
	}

	if err := s.writer.Write(ctx, rows); err != nil {
		return err
	}
	s.recordCount.Add(int64(len(records)))
	return nil
}

func (s *Sink) Check(ctx context.Context) error {
	return s.writer.Check(ctx)
}

func (s *Sink) Type() string {
	return s.writer.Type()
}

// SyncedRecords counts records confirmed written since the sink was created
func (s *Sink) SyncedRecords() int64 {
	return s.recordCount.Load()
}

func (s *Sink) Close() error {
	return s.writer.Close()
}
