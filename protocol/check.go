package protocol

import (
	"context"

	"github.com/datazip-inc/pipes/constants"
	"github.com/datazip-inc/pipes/destination"
	"github.com/datazip-inc/pipes/logger"
	"github.com/datazip-inc/pipes/source/portal"
	"github.com/datazip-inc/pipes/utils"
	"github.com/spf13/cobra"
)

// checkCmd validates every config and pings the portal, destination and store
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "check command",
	Run: func(cmd *cobra.Command, _ []string) {
		ctx, cancel := context.WithTimeout(cmd.Context(), constants.DefaultCheckTimeout)
		defer cancel()

		err := check(ctx)
		// success
		logger.LogConnectionStatus(err)
	},
}

func check(ctx context.Context) error {
	portalConfig, streams, err := loadSource()
	if err != nil {
		return err
	}
	destinationConfig, err := loadDestination()
	if err != nil {
		return err
	}

	src, err := portal.New(portalConfig)
	if err != nil {
		return err
	}
	if err := src.Check(ctx); err != nil {
		return err
	}

	sink, err := destination.NewSink(ctx, destinationConfig, streams[0].spec.ID, registered.Variant)
	if err != nil {
		return err
	}
	store, err := loadStore(ctx)
	if err != nil {
		_ = sink.Close()
		return err
	}

	return utils.ErrExecSequential(
		utils.ErrExecFormat("destination check failed: %s", func() error { return sink.Check(ctx) }),
		utils.ErrExecFormat("state store check failed: %s", func() error { return store.Check(ctx) }),
		func() error { return utils.ErrExec(sink.Close, store.Close) },
	)
}
