// Package source defines how pipes pulls raw blocks from a remote collaborator.
package source

import (
	"context"
	"errors"

	"github.com/datazip-inc/pipes/types"
)

var (
	// ErrMalformedBlock is returned for a block lacking a required header field
	ErrMalformedBlock = errors.New("malformed block")
	// ErrOutOfOrder is returned when block numbers stop strictly increasing
	ErrOutOfOrder = errors.New("block out of order")
)

// Source opens block streams. Implementations retry transient failures
// internally; errors surfacing from a Stream are fatal for that stream.
type Source interface {
	// Check verifies the collaborator is reachable
	Check(ctx context.Context) error
	// Open starts streaming spec from block from onwards. Closing the stream and
	// opening again with the same from restarts cleanly.
	Open(ctx context.Context, spec types.StreamSpec, from uint64) (Stream, error)
}

// Stream is a lazily pulled sequence of batches. Block numbers strictly
// increase across batches, starting at or after the from block of Open.
type Stream interface {
	// Next blocks until a batch is available. io.EOF means a bounded stream
	// is exhausted.
	Next(ctx context.Context) (*types.Batch, error)
	Close() error
}
