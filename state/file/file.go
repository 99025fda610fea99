// Package file stores one JSON checkpoint file per stream in a local directory.
package file

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"github.com/datazip-inc/pipes/constants"
	"github.com/datazip-inc/pipes/state"
	"github.com/datazip-inc/pipes/types"
	"github.com/datazip-inc/pipes/utils"
	"github.com/goccy/go-json"
	"github.com/spf13/viper"
)

type Config struct {
	// Path defaults to <config folder>/state, also under --no-save
	Path string `json:"path,omitempty"`
}

func (c *Config) Validate() error {
	if c.Path != "" {
		return nil
	}
	if folder := viper.GetString(constants.StateFolder); folder != "" {
		c.Path = folder
		return nil
	}
	return fmt.Errorf("state path not set and no config folder to default to")
}

type File struct {
	// serializes read-compare-write of Set
	mu     sync.Mutex
	config *Config
}

func (f *File) GetConfigRef() state.Config {
	f.config = &Config{}
	return f.config
}

func (f *File) Type() string {
	return string(types.FileStore)
}

func (f *File) Setup(_ context.Context) error {
	if err := os.MkdirAll(f.config.Path, os.ModePerm); err != nil {
		return fmt.Errorf("failed to create state directory[%s]: %s", f.config.Path, err)
	}
	return nil
}

func (f *File) Check(ctx context.Context) error {
	probe := filepath.Join(f.config.Path, ".check")
	if err := utils.WriteFileAtomic(probe, []byte("{}"), 0o644); err != nil {
		return fmt.Errorf("state directory[%s] not writable: %s", f.config.Path, err)
	}
	return os.Remove(probe)
}

func (f *File) path(streamID string) string {
	return filepath.Join(f.config.Path, url.PathEscape(streamID)+".json")
}

func (f *File) Get(_ context.Context, streamID string) (*types.Checkpoint, error) {
	data, err := os.ReadFile(f.path(streamID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, state.ErrCheckpointMissing
		}
		return nil, fmt.Errorf("failed to read checkpoint of stream[%s]: %s", streamID, err)
	}

	checkpoint := &types.Checkpoint{}
	if err := json.Unmarshal(data, checkpoint); err != nil {
		return nil, fmt.Errorf("failed to parse checkpoint of stream[%s]: %s", streamID, err)
	}
	return checkpoint, nil
}

func (f *File) Set(ctx context.Context, checkpoint types.Checkpoint) error {
	if err := state.Validate(checkpoint); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	current, err := f.Get(ctx, checkpoint.StreamID)
	if err != nil && !errors.Is(err, state.ErrCheckpointMissing) {
		return err
	}
	if err := state.CheckAdvance(current, checkpoint); err != nil {
		return err
	}

	data, err := json.Marshal(checkpoint)
	if err != nil {
		return err
	}
	return utils.WriteFileAtomic(f.path(checkpoint.StreamID), data, 0o644)
}

func (f *File) Close() error {
	return nil
}

func init() {
	state.RegisteredStores[types.FileStore] = func() state.Store {
		return &File{}
	}
}
