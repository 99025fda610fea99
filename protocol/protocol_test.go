package protocol

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/datazip-inc/pipes/constants"
	"github.com/datazip-inc/pipes/projection"
	_ "github.com/datazip-inc/pipes/state/file"
	"github.com/datazip-inc/pipes/types"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const usdtMint = "Es9vMFrzaCERmJfrF4H2FYD4KLNaeCVeQyQLGTDJkuq9"

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func withSource(t *testing.T, content string) {
	t.Helper()
	registered = projection.Mints
	configPath = writeFile(t, "config.yaml", content)
	viper.SetEnvPrefix(constants.EnvPrefix)
	viper.AutomaticEnv()
	t.Cleanup(func() { configPath = "" })
}

const sourceYAML = `
portal:
  url: https://portal.example.com/datasets/solana-mainnet
streams:
  - type: solana
    token: ` + usdtMint + `
    from_block: 1000
`

func TestLoadSourceBuildsSpecs(t *testing.T) {
	withSource(t, sourceYAML)

	portalConfig, streams, err := loadSource()
	require.NoError(t, err)
	assert.Equal(t, "https://portal.example.com/datasets/solana-mainnet", portalConfig.URL)
	require.Len(t, streams, 1)

	spec := streams[0].spec
	assert.Regexp(t, `^mints-[0-9a-f]+$`, spec.ID)
	assert.Equal(t, uint64(1000), spec.Range.From)
	assert.Nil(t, spec.Range.To)
	assert.Equal(t, []types.Filter{{Entity: "tokenBalances", Field: "postMint", Values: []string{usdtMint}}}, spec.Filters)
	assert.NotNil(t, streams[0].project)
}

func TestLoadSourceAppliesEnvOverrides(t *testing.T) {
	withSource(t, sourceYAML)
	t.Setenv("PIPES_FROM_BLOCK", "2000")
	t.Setenv("PIPES_TO_BLOCK", "2500")
	t.Setenv("PIPES_PORTAL_URL", "http://localhost:8080")

	portalConfig, streams, err := loadSource()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", portalConfig.URL)
	assert.Equal(t, uint64(2000), streams[0].spec.Range.From)
	require.NotNil(t, streams[0].spec.Range.To)
	assert.Equal(t, uint64(2500), *streams[0].spec.Range.To)
}

func TestLoadSourceRejectsBadInput(t *testing.T) {
	t.Run("bad override", func(t *testing.T) {
		withSource(t, sourceYAML)
		t.Setenv("PIPES_FROM_BLOCK", "latest")
		_, _, err := loadSource()
		assert.ErrorContains(t, err, "FROM_BLOCK")
	})

	t.Run("token is not an address", func(t *testing.T) {
		withSource(t, sourceYAML)
		t.Setenv("PIPES_TOKEN", "USDT")
		_, _, err := loadSource()
		assert.Error(t, err)
	})

	t.Run("duplicate streams", func(t *testing.T) {
		withSource(t, sourceYAML+`  - type: solana
    token: `+usdtMint+`
    from_block: 1000
`)
		_, _, err := loadSource()
		assert.ErrorContains(t, err, "stream id")
	})

	t.Run("no streams", func(t *testing.T) {
		withSource(t, "portal:\n  url: http://localhost\nstreams: []\n")
		_, _, err := loadSource()
		assert.Error(t, err)
	})
}

func TestNoSaveKeepsStateFolder(t *testing.T) {
	dir := t.TempDir()
	configPath = filepath.Join(dir, "config.yaml")
	noSave = true
	t.Cleanup(func() {
		configPath, noSave = "", false
		viper.Set(constants.StateFolder, "")
		viper.Set(constants.ConfigFolder, "")
	})

	setFolders()
	assert.Equal(t, filepath.Join(dir, "state"), viper.GetString(constants.StateFolder))
	assert.Empty(t, viper.GetString(constants.ConfigFolder))

	store, err := loadStore(context.Background())
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.Set(context.Background(), types.Checkpoint{StreamID: "s", BlockNumber: 1, BlockHash: "h"}))
	assert.FileExists(t, filepath.Join(dir, "state", "s.json"))
}

func TestLoadDestination(t *testing.T) {
	destinationConfigPath = writeFile(t, "destination.json", `{"type": "DUCKDB", "writer": {"path": "x.db", "table": "mints"}, "multiplicity_column": "sign"}`)
	t.Cleanup(func() { destinationConfigPath = "" })

	config, err := loadDestination()
	require.NoError(t, err)
	assert.Equal(t, types.DuckDB, config.Type)
	assert.Equal(t, "sign", config.MultiplicityColumn)
}

func TestRunStreamsRecoversPanics(t *testing.T) {
	streams := []stream{
		{spec: types.StreamSpec{ID: "a"}},
		{spec: types.StreamSpec{ID: "b"}},
	}

	var mu sync.Mutex
	cancelled := false
	err := runStreams(context.Background(), streams, func(ctx context.Context, s stream) error {
		if s.spec.ID == "a" {
			panic("boom")
		}
		<-ctx.Done()
		mu.Lock()
		cancelled = true
		mu.Unlock()
		return ctx.Err()
	})

	assert.ErrorContains(t, err, "stream[a] panicked")
	assert.True(t, cancelled)
}

func TestRunStreamsCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := runStreams(ctx, []stream{{spec: types.StreamSpec{ID: "a"}}}, func(ctx context.Context, _ stream) error {
		return ctx.Err()
	})
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestConfigSpecListsAdapters(t *testing.T) {
	registered = projection.Holders
	spec := configSpec()
	assert.Equal(t, "holders", spec["projection"])
	assert.Equal(t, types.Index, spec["variant"])
	assert.Contains(t, spec, "destinations")
	assert.Contains(t, spec, "stores")
}
