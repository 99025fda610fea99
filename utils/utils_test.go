package utils

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string         `json:"name" validate:"required"`
	Limit int            `json:"limit" validate:"gte=0"`
	Inner map[string]any `json:"inner"`
}

func (s *sample) Validate() error {
	if s.Name == "forbidden" {
		return errors.New("forbidden name")
	}
	return nil
}

func TestUnmarshalFile(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "config.yml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("name: a\nlimit: 3\ninner:\n  key: v\n"), 0o644))
	jsonPath := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"name": "a", "limit": 3, "inner": {"key": "v"}}`), 0o644))

	for _, path := range []string{yamlPath, jsonPath} {
		var decoded sample
		require.NoError(t, UnmarshalFile(path, &decoded))
		assert.Equal(t, sample{Name: "a", Limit: 3, Inner: map[string]any{"key": "v"}}, decoded)
	}

	assert.Error(t, UnmarshalFile(filepath.Join(dir, "missing.json"), &sample{}))
}

func TestUnmarshalReformatsInnerMaps(t *testing.T) {
	var decoded sample
	err := Unmarshal(map[string]any{"name": "a", "inner": map[any]any{"key": map[any]any{1: "x"}}}, &decoded)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"key": map[string]any{"1": "x"}}, decoded.Inner)
}

func TestValidateAll(t *testing.T) {
	assert.Error(t, ValidateAll(&sample{}))
	assert.Error(t, ValidateAll(&sample{Name: "a", Limit: -1}))
	assert.EqualError(t, ValidateAll(&sample{Name: "forbidden"}), "forbidden name")
	assert.NoError(t, ValidateAll(&sample{Name: "a"}))
}

func TestWriteFileAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "checkpoint.json")
	require.NoError(t, WriteFileAtomic(path, []byte("one"), 0o644))
	require.NoError(t, WriteFileAtomic(path, []byte("two"), 0o644))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSyncFileAndDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "batch.parquet")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))

	assert.NoError(t, SyncFile(path))
	assert.NoError(t, SyncDir(dir))
	assert.Error(t, SyncFile(filepath.Join(dir, "missing.parquet")))
	assert.Error(t, SyncDir(filepath.Join(dir, "missing")))
}

func TestErrExecSequential(t *testing.T) {
	calls := 0
	err := ErrExecSequential(
		func() error { calls++; return errors.New("first") },
		ErrExecFormat("wrapped: %s", func() error { calls++; return errors.New("second") }),
		func() error { calls++; return nil },
	)
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "first")
	assert.Contains(t, err.Error(), "wrapped: second")

	assert.NoError(t, ErrExecSequential(func() error { return nil }))
}

func TestULIDIsSortable(t *testing.T) {
	first, second := ULID(), ULID()
	assert.Len(t, first, 26)
	assert.Less(t, first, second)
}

func TestTernary(t *testing.T) {
	assert.Equal(t, "a", Ternary(true, "a", "b"))
	assert.Equal(t, 2, Ternary(false, 1, 2))
}
