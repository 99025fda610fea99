package destination

import (
	"context"
	"errors"

	"github.com/datazip-inc/pipes/types"
)

// ErrInvalidRows marks records a writer can never accept; retrying is pointless
var ErrInvalidRows = errors.New("invalid rows")

type Config interface {
	Validate() error
}

// Schema is the row shape a writer receives: the projection variant's
// columns, followed by the multiplicity column when one is configured.
type Schema struct {
	Columns    []types.Column
	SignColumn string
}

// Rows is one batch worth of rows. First and Last are the block range of the
// batch they were projected from.
type Rows struct {
	StreamID string
	First    uint64
	Last     uint64
	Columns  []types.Column
	Values   [][]any
}

func (r *Rows) Len() int {
	return len(r.Values)
}

type Writer interface {
	GetConfigRef() Config
	Spec() any
	Type() string
	// Setup connects and prepares storage for rows shaped as schema
	Setup(ctx context.Context, schema Schema) error
	// Check verifies the target is reachable; call it after Setup
	Check(ctx context.Context) error
	// Write makes all rows durably visible or none of them. A partial failure
	// of the underlying store must be reported as a failure.
	Write(ctx context.Context, rows *Rows) error
	Close() error
}
