// Package projection holds the pipeline's only business logic: pure functions
// mapping a batch of raw blocks to flat domain records.
package projection

import (
	"fmt"

	"github.com/datazip-inc/pipes/types"
	"github.com/datazip-inc/pipes/utils"
)

// Func projects a batch into records. It must be pure and total: blocks or
// entries lacking the fields it needs contribute nothing, and records of an
// earlier block always precede those of a later one.
type Func func(batch *types.Batch) []types.Record

// Projection bundles a Func with what the portal must be asked for to feed it.
type Projection struct {
	Name    string
	Variant types.Variant
	Dataset string
	// Fields requested beyond the block header
	Fields types.FieldSelection
	// Filters selects the tracked token on the portal side
	Filters func(token string) []types.Filter
	// New returns the projection for the tracked token
	New func(token string) Func
}

// headerFields are always requested; number and hash anchor checkpoints
var headerFields = []string{"number", "hash", "timestamp"}

func (p *Projection) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("projection name not set")
	}
	if !p.Variant.Valid() {
		return fmt.Errorf("projection[%s]: unknown variant[%s]", p.Name, p.Variant)
	}
	if p.Filters == nil || p.New == nil {
		return fmt.Errorf("projection[%s]: filters or function not set", p.Name)
	}
	return nil
}

// Spec builds the immutable stream spec of one configured stream
func (p *Projection) Spec(cfg *types.StreamConfig) (types.StreamSpec, error) {
	fields := types.FieldSelection{"block": append([]string(nil), headerFields...)}
	for entity, selected := range p.Fields {
		fields[entity] = append(fields[entity], selected...)
	}

	spec := types.StreamSpec{
		ID:      cfg.StreamID,
		Type:    utils.Ternary(cfg.Type != "", cfg.Type, p.Dataset),
		Fields:  fields,
		Filters: p.Filters(cfg.Token),
		Range: types.BlockRange{
			From: cfg.FromBlock,
			To:   cfg.ToBlock,
		},
	}

	if spec.ID == "" {
		fingerprint, err := spec.Fingerprint()
		if err != nil {
			return types.StreamSpec{}, fmt.Errorf("failed to fingerprint stream of projection[%s]: %s", p.Name, err)
		}
		spec.ID = fmt.Sprintf("%s-%x", p.Name, fingerprint)
	}

	return spec, spec.Validate()
}
