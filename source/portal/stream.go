package portal

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/datazip-inc/pipes/logger"
	"github.com/datazip-inc/pipes/source"
	"github.com/datazip-inc/pipes/types"
	"github.com/datazip-inc/pipes/utils/telemetry"
	"github.com/goccy/go-json"
)

// stream is fed by one worker goroutine owning all portal I/O. The batches
// channel is unbuffered, so the worker holds at most one undelivered batch and
// never reads ahead of the consumer.
type stream struct {
	portal *Portal
	spec   types.StreamSpec
	// next is the first block not yet handed to the consumer
	next    uint64
	batches chan *types.Batch
	// err is set before batches is closed
	err    error
	cancel context.CancelFunc
	done   chan struct{}
}

func newStream(ctx context.Context, portal *Portal, spec types.StreamSpec, from uint64) *stream {
	ctx, cancel := context.WithCancel(ctx)
	s := &stream{
		portal:  portal,
		spec:    spec,
		next:    from,
		batches: make(chan *types.Batch),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go s.run(ctx)
	return s
}

func (s *stream) Next(ctx context.Context) (*types.Batch, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case batch, ok := <-s.batches:
		if ok {
			return batch, nil
		}
		if s.err != nil {
			return nil, s.err
		}
		return nil, io.EOF
	}
}

func (s *stream) Close() error {
	s.cancel()
	<-s.done
	return nil
}

func (s *stream) run(ctx context.Context) {
	defer close(s.done)
	defer close(s.batches)

	s.err = s.pull(ctx)
}

// pull keeps asking the portal for the next undelivered block until the range
// is exhausted. The attempt counter resets whenever a batch gets through.
func (s *stream) pull(ctx context.Context) error {
	config := s.portal.config
	attempt := 0
	for !s.spec.Range.Beyond(s.next) {
		before := s.next
		finished, err := s.fetch(ctx)
		if finished && err == nil {
			return nil
		}
		if s.next > before {
			attempt = 0
		}

		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case err == nil && s.next > before:
			// response ended early, ask again from where it stopped
			continue
		case err == nil, errors.Is(err, errNoData):
			if s.headReachedEnd(ctx) {
				logger.Debugf("stream[%s]: portal head is past to_block, no blocks left in range", s.spec.ID)
				return nil
			}
			logger.Debugf("stream[%s]: no blocks at or after [%d] yet, polling in %s", s.spec.ID, s.next, config.pollInterval())
			if err := sleep(ctx, config.pollInterval()); err != nil {
				return err
			}
			continue
		case !retryable(err):
			return err
		}

		attempt++
		if attempt > config.MaxRetries {
			return fmt.Errorf("stream[%s]: portal failed %d times at block[%d]: %s", s.spec.ID, attempt, s.next, err)
		}
		backoff := config.retryBackoff() << (attempt - 1)
		telemetry.SourceRetries.WithLabelValues(s.spec.ID).Inc()
		logger.Warnf("stream[%s]: retry attempt[%d] from block[%d], retrying after %.2f seconds due to err: %s", s.spec.ID, attempt, s.next, backoff.Seconds(), err)
		if err := sleep(ctx, backoff); err != nil {
			return err
		}
	}
	return nil
}

// headReachedEnd reports that the portal already has data beyond the end of
// a bounded range, so an empty answer means no block in the range is left.
func (s *stream) headReachedEnd(ctx context.Context) bool {
	if s.spec.Range.To == nil {
		return false
	}
	head, err := s.portal.Head(ctx)
	if err != nil {
		logger.Debugf("stream[%s]: %s", s.spec.ID, err)
		return false
	}
	return head >= *s.spec.Range.To
}

// fetch runs one portal request from s.next, emitting full batches as they
// fill and flushing the partial one when the response ends. Blocks not yet
// emitted when the response breaks are dropped and fetched again. finished
// reports that the range end was reached.
func (s *stream) fetch(ctx context.Context) (finished bool, err error) {
	body, err := s.portal.request(ctx, s.spec, s.next)
	if err != nil {
		return false, err
	}
	defer body.Close()

	batchSize := s.portal.config.BatchSize
	pending := make([]types.RawBlock, 0, batchSize)
	var prev uint64
	seen := false

	decoder := json.NewDecoder(body)
	for {
		var raw json.RawMessage
		if err := decoder.Decode(&raw); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return false, fmt.Errorf("failed to read portal response: %s", err)
		}

		block, err := decodeBlock(raw)
		if err != nil {
			if s.portal.config.MalformedBlocks == SkipMalformed {
				telemetry.MalformedBlocks.WithLabelValues(s.spec.ID).Inc()
				logger.Warnf("stream[%s]: skipping block: %s", s.spec.ID, err)
				continue
			}
			return false, fmt.Errorf("stream[%s]: %w", s.spec.ID, err)
		}

		number := block.Header.Number
		if number < s.next {
			continue
		}
		if seen && number <= prev {
			return false, fmt.Errorf("stream[%s]: %w: block[%d] after block[%d]", s.spec.ID, source.ErrOutOfOrder, number, prev)
		}
		prev, seen = number, true

		if s.spec.Range.Beyond(number) {
			return true, s.emit(ctx, pending)
		}

		pending = append(pending, block)
		if len(pending) == batchSize {
			if err := s.emit(ctx, pending); err != nil {
				return false, err
			}
			pending = make([]types.RawBlock, 0, batchSize)
		}
	}

	return false, s.emit(ctx, pending)
}

func (s *stream) emit(ctx context.Context, blocks []types.RawBlock) error {
	if len(blocks) == 0 {
		return nil
	}
	batch, err := types.NewBatch(blocks)
	if err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case s.batches <- batch:
		s.next = batch.Frontier().Number + 1
		return nil
	}
}
