// Package memory keeps checkpoints in process memory. Nothing survives a
// restart, so it only suits tests and dry runs.
package memory

import (
	"context"
	"sync"

	"github.com/datazip-inc/pipes/state"
	"github.com/datazip-inc/pipes/types"
)

type Config struct{}

func (c *Config) Validate() error {
	return nil
}

type Memory struct {
	mu          sync.RWMutex
	config      *Config
	checkpoints map[string]types.Checkpoint
}

func New() *Memory {
	return &Memory{config: &Config{}, checkpoints: make(map[string]types.Checkpoint)}
}

func (m *Memory) GetConfigRef() state.Config {
	return m.config
}

func (m *Memory) Type() string {
	return string(types.MemoryStore)
}

func (m *Memory) Setup(_ context.Context) error {
	return nil
}

func (m *Memory) Check(_ context.Context) error {
	return nil
}

func (m *Memory) Get(_ context.Context, streamID string) (*types.Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	checkpoint, found := m.checkpoints[streamID]
	if !found {
		return nil, state.ErrCheckpointMissing
	}
	return &checkpoint, nil
}

func (m *Memory) Set(_ context.Context, checkpoint types.Checkpoint) error {
	if err := state.Validate(checkpoint); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if current, found := m.checkpoints[checkpoint.StreamID]; found {
		if err := state.CheckAdvance(&current, checkpoint); err != nil {
			return err
		}
	}
	m.checkpoints[checkpoint.StreamID] = checkpoint
	return nil
}

func (m *Memory) Close() error {
	return nil
}

func init() {
	state.RegisteredStores[types.MemoryStore] = func() state.Store {
		return New()
	}
}
