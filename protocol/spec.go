package protocol

import (
	"github.com/datazip-inc/pipes/destination"
	"github.com/datazip-inc/pipes/logger"
	"github.com/datazip-inc/pipes/source/portal"
	"github.com/datazip-inc/pipes/state"
	"github.com/datazip-inc/pipes/types"
	"github.com/spf13/cobra"
)

// specCmd prints config templates for the portal, destinations and stores
var specCmd = &cobra.Command{
	Use:   "spec",
	Short: "spec command",
	RunE: func(_ *cobra.Command, _ []string) error {
		logger.LogSpec(configSpec())
		return nil
	},
}

func configSpec() map[string]any {
	destinations := make(map[types.AdapterType]any)
	for adapter, newfunc := range destination.RegisteredWriters {
		destinations[adapter] = types.WriterConfig{Type: adapter, WriterConfig: newfunc().Spec()}
	}

	stores := make(map[types.StoreType]any)
	for storeType, newfunc := range state.RegisteredStores {
		stores[storeType] = types.StoreConfig{Type: storeType, StoreConfig: newfunc().GetConfigRef()}
	}

	return map[string]any{
		"projection": registered.Name,
		"variant":    registered.Variant,
		"config": types.SourceConfig{
			Portal:  portal.Config{},
			Streams: []*types.StreamConfig{{Type: registered.Dataset}},
		},
		"destinations": destinations,
		"stores":       stores,
	}
}
