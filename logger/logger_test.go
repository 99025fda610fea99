package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/datazip-inc/pipes/constants"
	"github.com/datazip-inc/pipes/types"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogCheckpointMirrorsToConfigFolder(t *testing.T) {
	folder := t.TempDir()
	viper.Set(constants.ConfigFolder, folder)
	t.Cleanup(func() { viper.Set(constants.ConfigFolder, "") })

	LogCheckpoint(types.Checkpoint{StreamID: "usdt/mints", BlockNumber: 1002, BlockHash: "H1002"})

	data, err := os.ReadFile(filepath.Join(folder, "checkpoints", "usdt%2Fmints.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"stream_id": "usdt/mints", "block_number": 1002, "block_hash": "H1002"}`, string(data))
}

func TestFileLoggerOverwrites(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, FileLogger(map[string]int{"a": 1}, dir, "out", ".json"))
	require.NoError(t, FileLogger(map[string]int{"b": 2}, dir, "out", ".json"))

	data, err := os.ReadFile(filepath.Join(dir, "out.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"b": 2}`, string(data))
}
