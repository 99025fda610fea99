package protocol

import (
	"context"
	"fmt"
	"strconv"

	"github.com/datazip-inc/pipes/projection"
	"github.com/datazip-inc/pipes/source/portal"
	"github.com/datazip-inc/pipes/state"
	"github.com/datazip-inc/pipes/types"
	"github.com/datazip-inc/pipes/utils"
	"github.com/spf13/viper"
)

// stream is one configured stream bound to the registered projection
type stream struct {
	spec    types.StreamSpec
	project projection.Func
}

// loadSource reads --config, applies PIPES_* overrides and builds one spec
// per configured stream
func loadSource() (*portal.Config, []stream, error) {
	if configPath == "" {
		return nil, nil, fmt.Errorf("--config not passed")
	}

	config := &types.SourceConfig{}
	if err := utils.UnmarshalFile(configPath, config); err != nil {
		return nil, nil, err
	}

	portalConfig := &portal.Config{}
	if err := utils.Unmarshal(config.Portal, portalConfig); err != nil {
		return nil, nil, err
	}

	if err := applyOverrides(config, portalConfig); err != nil {
		return nil, nil, err
	}
	if err := utils.ValidateAll(config); err != nil {
		return nil, nil, err
	}
	if err := portalConfig.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid portal config: %s", err)
	}

	streams := make([]stream, 0, len(config.Streams))
	seen := make(map[string]bool)
	for _, streamConfig := range config.Streams {
		spec, err := registered.Spec(streamConfig)
		if err != nil {
			return nil, nil, err
		}
		if seen[spec.ID] {
			return nil, nil, fmt.Errorf("two streams resolve to stream id[%s]", spec.ID)
		}
		seen[spec.ID] = true
		streams = append(streams, stream{spec: spec, project: registered.New(streamConfig.Token)})
	}
	return portalConfig, streams, nil
}

// applyOverrides copies FROM_BLOCK, TO_BLOCK, TOKEN and PORTAL_URL from the
// environment into every stream
func applyOverrides(config *types.SourceConfig, portalConfig *portal.Config) error {
	if url := viper.GetString("PORTAL_URL"); url != "" {
		portalConfig.URL = url
	}

	var from, to *uint64
	for key, target := range map[string]**uint64{"FROM_BLOCK": &from, "TO_BLOCK": &to} {
		value := viper.GetString(key)
		if value == "" {
			continue
		}
		block, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid %s[%s]: %s", key, value, err)
		}
		*target = &block
	}
	token := viper.GetString("TOKEN")

	for _, streamConfig := range config.Streams {
		if from != nil {
			streamConfig.FromBlock = *from
		}
		if to != nil {
			block := *to
			streamConfig.ToBlock = &block
		}
		if token != "" {
			streamConfig.Token = token
		}
	}
	return nil
}

func loadDestination() (*types.WriterConfig, error) {
	if destinationConfigPath == "" {
		return nil, fmt.Errorf("--destination not passed")
	}

	config := &types.WriterConfig{}
	if err := utils.UnmarshalFile(destinationConfigPath, config); err != nil {
		return nil, err
	}
	if err := utils.Validate(config); err != nil {
		return nil, err
	}
	return config, nil
}

// loadStore opens the --state store, or the file store when none is passed
func loadStore(ctx context.Context) (state.Store, error) {
	config := &types.StoreConfig{Type: types.FileStore}
	if statePath != "" {
		if err := utils.UnmarshalFile(statePath, config); err != nil {
			return nil, err
		}
	}
	return state.NewStore(ctx, config)
}
