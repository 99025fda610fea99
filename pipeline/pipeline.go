// Package pipeline drives one stream through pull, transform, write and
// checkpoint, acknowledging a batch only after its records are written.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/datazip-inc/pipes/constants"
	"github.com/datazip-inc/pipes/logger"
	"github.com/datazip-inc/pipes/projection"
	"github.com/datazip-inc/pipes/source"
	"github.com/datazip-inc/pipes/state"
	"github.com/datazip-inc/pipes/types"
	"github.com/datazip-inc/pipes/utils/telemetry"
	"github.com/hashicorp/go-multierror"
)

type Phase string

const (
	Idle          Phase = "IDLE"
	Resuming      Phase = "RESUMING"
	Pulling       Phase = "PULLING"
	Transforming  Phase = "TRANSFORMING"
	Writing       Phase = "WRITING"
	Checkpointing Phase = "CHECKPOINTING"
	Failed        Phase = "FAILED"
)

// Sink receives the records projected from one batch. A nil error means every
// record is durably visible; an error means none is.
type Sink interface {
	Write(ctx context.Context, batch *types.Batch, records []types.Record) error
}

type Options struct {
	// WriteAttempts bounds sink writes per batch, defaults to DefaultRetryCount
	WriteAttempts int
	// RetryBackoff is the first pause between write attempts, doubled after each
	RetryBackoff time.Duration
}

// Orchestrator owns one stream id. Only one batch is in flight at a time and
// the checkpoint is set only after the sink confirmed the batch.
type Orchestrator struct {
	spec    types.StreamSpec
	source  source.Source
	project projection.Func
	sink    Sink
	store   state.Store
	options Options

	phase atomic.Value
	// frontier is the last checkpointed block of this run
	frontier *types.Checkpoint
}

func New(spec types.StreamSpec, src source.Source, project projection.Func, sink Sink, store state.Store, options Options) (*Orchestrator, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if src == nil || project == nil || sink == nil || store == nil {
		return nil, fmt.Errorf("stream[%s]: source, projection, sink and store are required", spec.ID)
	}
	if options.WriteAttempts <= 0 {
		options.WriteAttempts = constants.DefaultRetryCount
	}
	if options.RetryBackoff <= 0 {
		options.RetryBackoff = constants.DefaultRetryTimeout
	}

	o := &Orchestrator{
		spec:    spec,
		source:  src,
		project: project,
		sink:    sink,
		store:   store,
		options: options,
	}
	o.phase.Store(Idle)
	return o, nil
}

func (o *Orchestrator) Phase() Phase {
	return o.phase.Load().(Phase)
}

func (o *Orchestrator) setPhase(phase Phase) {
	logger.Debugf("stream[%s]: %s -> %s", o.spec.ID, o.Phase(), phase)
	o.phase.Store(phase)
}

// Run processes the stream until a bounded range is exhausted, ctx is
// cancelled or a fatal error occurs. A batch already being written when ctx
// is cancelled is written and checkpointed before Run returns ctx's error.
func (o *Orchestrator) Run(ctx context.Context) (err error) {
	defer func() {
		switch {
		case errors.Is(err, context.Canceled):
			o.setPhase(Idle)
		case err != nil:
			o.setPhase(Failed)
		}
	}()

	o.setPhase(Resuming)
	if locker, ok := o.store.(state.Locker); ok {
		unlock, err := locker.Lock(ctx, o.spec.ID)
		if err != nil {
			return fmt.Errorf("failed to own stream[%s]: %w", o.spec.ID, err)
		}
		defer func() {
			if unlockErr := unlock(); unlockErr != nil {
				logger.Warnf("failed to release stream[%s]: %s", o.spec.ID, unlockErr)
			}
		}()
	}

	from, done, err := o.resume(ctx)
	if err != nil {
		return err
	}
	if done {
		o.setPhase(Idle)
		return nil
	}

	stream, err := o.source.Open(ctx, o.spec, from)
	if err != nil {
		return fmt.Errorf("failed to open stream[%s] at block[%d]: %w", o.spec.ID, from, err)
	}
	defer func() {
		if closeErr := stream.Close(); closeErr != nil {
			err = multierror.Append(err, closeErr).ErrorOrNil()
		}
	}()
	logger.Infof("stream[%s]: pulling from block[%d]", o.spec.ID, from)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		o.setPhase(Pulling)
		batch, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			logger.Infof("stream[%s]: range exhausted", o.spec.ID)
			o.setPhase(Idle)
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("failed to pull stream[%s]: %w", o.spec.ID, err)
		}

		if err := o.process(ctx, batch); err != nil {
			telemetry.BatchesTotal.WithLabelValues(o.spec.ID, "failed").Inc()
			return err
		}
		telemetry.BatchesTotal.WithLabelValues(o.spec.ID, "ok").Inc()
	}
}

// resume computes the first block to pull; done is set when a bounded range
// is already fully checkpointed
func (o *Orchestrator) resume(ctx context.Context) (from uint64, done bool, err error) {
	checkpoint, err := o.store.Get(ctx, o.spec.ID)
	switch {
	case errors.Is(err, state.ErrCheckpointMissing):
		logger.Infof("stream[%s]: no checkpoint, starting at block[%d]", o.spec.ID, o.spec.Range.From)
		return o.spec.Range.From, false, nil
	case err != nil:
		return 0, false, fmt.Errorf("failed to read checkpoint of stream[%s]: %w", o.spec.ID, err)
	}

	logger.Infof("stream[%s]: resuming after checkpoint %s", o.spec.ID, checkpoint)
	o.frontier = checkpoint
	telemetry.CheckpointBlock.WithLabelValues(o.spec.ID).Set(float64(checkpoint.BlockNumber))
	if checkpoint.Next() < o.spec.Range.From {
		logger.Warnf("stream[%s]: checkpoint block[%d] before from_block[%d], starting at from_block", o.spec.ID, checkpoint.BlockNumber, o.spec.Range.From)
		return o.spec.Range.From, false, nil
	}
	if o.spec.Range.To != nil && checkpoint.BlockNumber >= *o.spec.Range.To {
		logger.Infof("stream[%s]: already synced up to to_block[%d]", o.spec.ID, *o.spec.Range.To)
		return 0, true, nil
	}
	return checkpoint.Next(), false, nil
}

func (o *Orchestrator) process(ctx context.Context, batch *types.Batch) error {
	if err := batch.Validate(); err != nil {
		return fmt.Errorf("stream[%s]: %s", o.spec.ID, err)
	}
	if o.frontier != nil && batch.First().Number <= o.frontier.BlockNumber {
		return fmt.Errorf("%w: stream[%s] batch starts at block[%d], checkpoint at block[%d]", source.ErrOutOfOrder, o.spec.ID, batch.First().Number, o.frontier.BlockNumber)
	}

	o.setPhase(Transforming)
	records := o.project(batch)

	// the batch is committed to: shutdown waits for its write and checkpoint
	commitCtx := context.WithoutCancel(ctx)

	if len(records) > 0 {
		o.setPhase(Writing)
		started := time.Now()
		err := RetryOnBackoff(o.options.WriteAttempts, o.options.RetryBackoff, func() error {
			return o.sink.Write(commitCtx, batch, records)
		})
		telemetry.ObserveWrite(o.spec.ID, started, len(records), err)
		if err != nil {
			return fmt.Errorf("failed to write blocks[%d-%d] of stream[%s]: %w", batch.First().Number, batch.Frontier().Number, o.spec.ID, err)
		}
	}

	o.setPhase(Checkpointing)
	checkpoint := batch.Checkpoint(o.spec.ID)
	if err := o.store.Set(commitCtx, checkpoint); err != nil {
		return fmt.Errorf("failed to checkpoint stream[%s] at block[%d]: %w", o.spec.ID, checkpoint.BlockNumber, err)
	}
	o.frontier = &checkpoint
	telemetry.CheckpointBlock.WithLabelValues(o.spec.ID).Set(float64(checkpoint.BlockNumber))
	logger.LogCheckpoint(checkpoint)
	logger.Debugf("stream[%s]: committed %d records of blocks[%d-%d]", o.spec.ID, len(records), batch.First().Number, checkpoint.BlockNumber)
	return nil
}
