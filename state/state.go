// Package state persists per-stream checkpoints.
package state

import (
	"context"
	"errors"
	"fmt"

	"github.com/datazip-inc/pipes/types"
	"github.com/datazip-inc/pipes/utils"
)

var (
	// ErrCheckpointMissing is returned by Get for a stream never checkpointed
	ErrCheckpointMissing = errors.New("checkpoint missing")
	// ErrCheckpointRegression is returned by Set for a checkpoint behind the stored one
	ErrCheckpointRegression = errors.New("checkpoint regression")
	// ErrStreamLocked is returned by Lock when another process owns the stream
	ErrStreamLocked = errors.New("stream locked by another owner")
)

type Config interface {
	Validate() error
}

// Store maps stream ids to their last committed checkpoint. Set must be
// durable before it returns and atomic for concurrent readers of the same
// stream; streams never interfere with each other.
type Store interface {
	GetConfigRef() Config
	Type() string
	// Setup opens connections and creates storage when missing
	Setup(ctx context.Context) error
	Check(ctx context.Context) error
	Get(ctx context.Context, streamID string) (*types.Checkpoint, error)
	Set(ctx context.Context, checkpoint types.Checkpoint) error
	Close() error
}

// Locker is implemented by stores able to enforce a single owner per stream
// across processes.
type Locker interface {
	// Lock fails with ErrStreamLocked when the stream is owned elsewhere
	Lock(ctx context.Context, streamID string) (unlock func() error, err error)
}

type NewFunc func() Store

var RegisteredStores = map[types.StoreType]NewFunc{}

func NewStore(ctx context.Context, config *types.StoreConfig) (Store, error) {
	newfunc, found := RegisteredStores[config.Type]
	if !found {
		return nil, fmt.Errorf("invalid state store type has been passed [%s]", config.Type)
	}

	store := newfunc()
	configRef := store.GetConfigRef()
	if config.StoreConfig != nil {
		if err := utils.Unmarshal(config.StoreConfig, configRef); err != nil {
			return nil, err
		}
	}
	if err := configRef.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate %s store config: %s", store.Type(), err)
	}

	if err := store.Setup(ctx); err != nil {
		return nil, fmt.Errorf("failed to setup %s store: %s", store.Type(), err)
	}
	return store, nil
}

// CheckAdvance rejects next when it would move current backwards. Rewriting
// the same block is allowed, since a replayed batch checkpoints it again.
func CheckAdvance(current *types.Checkpoint, next types.Checkpoint) error {
	if current == nil || next.BlockNumber >= current.BlockNumber {
		return nil
	}
	return fmt.Errorf("%w: stream[%s] at block[%d], got block[%d]", ErrCheckpointRegression, next.StreamID, current.BlockNumber, next.BlockNumber)
}

// Validate checks the fields every store requires of a checkpoint.
func Validate(checkpoint types.Checkpoint) error {
	if checkpoint.StreamID == "" {
		return fmt.Errorf("checkpoint without stream id")
	}
	if checkpoint.BlockHash == "" {
		return fmt.Errorf("checkpoint of stream[%s] without block hash", checkpoint.StreamID)
	}
	return nil
}
