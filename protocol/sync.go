package protocol

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/datazip-inc/pipes/destination"
	"github.com/datazip-inc/pipes/logger"
	"github.com/datazip-inc/pipes/pipeline"
	"github.com/datazip-inc/pipes/source"
	"github.com/datazip-inc/pipes/source/portal"
	"github.com/datazip-inc/pipes/state"
	"github.com/datazip-inc/pipes/types"
	"github.com/datazip-inc/pipes/utils"
	"github.com/datazip-inc/pipes/utils/safego"
	"github.com/datazip-inc/pipes/utils/telemetry"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// syncCmd runs every configured stream until its range is exhausted or the
// process is signalled
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Pipes sync command",
	RunE: func(cmd *cobra.Command, _ []string) (err error) {
		portalConfig, streams, err := loadSource()
		if err != nil {
			return err
		}
		destinationConfig, err := loadDestination()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		runID := utils.ULID()
		logger.Infof("sync[%s]: %s with %d streams into %s", runID, registered.Name, len(streams), destinationConfig.Type)
		if metricsAddr != "" {
			telemetry.Serve(ctx, metricsAddr)
		}

		src, err := portal.New(portalConfig)
		if err != nil {
			return err
		}
		store, err := loadStore(ctx)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := store.Close(); closeErr != nil {
				err = multierror.Append(err, closeErr).ErrorOrNil()
			}
		}()

		var synced atomic.Int64
		err = runStreams(ctx, streams, func(ctx context.Context, s stream) error {
			sink, err := destination.NewSink(ctx, destinationConfig, s.spec.ID, registered.Variant)
			if err != nil {
				return err
			}
			defer func() {
				synced.Add(sink.SyncedRecords())
				if closeErr := sink.Close(); closeErr != nil {
					logger.Warnf("failed to close sink of stream[%s]: %s", s.spec.ID, closeErr)
				}
			}()
			return syncStream(ctx, s, src, sink, store, destinationConfig)
		})

		logger.Infof("sync[%s]: %d records written", runID, synced.Load())
		if errors.Is(err, context.Canceled) {
			logger.Infof("sync[%s]: stopped on signal, progress is checkpointed", runID)
			return nil
		}
		return err
	},
}

// runStreams runs f for each stream concurrently; the first failure cancels
// the rest
func runStreams(ctx context.Context, streams []stream, f func(ctx context.Context, s stream) error) error {
	group, groupCtx := errgroup.WithContext(ctx)
	for _, s := range streams {
		group.Go(func() error {
			return safego.Call(fmt.Sprintf("stream[%s]", s.spec.ID), func() error {
				return f(groupCtx, s)
			})
		})
	}
	return group.Wait()
}

func syncStream(ctx context.Context, s stream, src source.Source, sink pipeline.Sink, store state.Store, config *types.WriterConfig) error {
	orchestrator, err := pipeline.New(s.spec, src, s.project, sink, store, pipeline.Options{
		WriteAttempts: config.MaxRetries,
	})
	if err != nil {
		return err
	}
	return orchestrator.Run(ctx)
}
