package sources

import (
	"context"

	"go.uber.org/zap"

	"github.com/ydagan/synaptic/pkg/domain"
)

// EventSink receives decoded event batches from a source. The synergy
// engine is the production sink.
type EventSink interface {
	Ingest(ctx context.Context, events []domain.Event) error
}

// SliceSource replays a fixed event slice into a sink. Used for
// backfilling from exports and in tests.
type SliceSource struct {
	logger    *zap.Logger
	events    []domain.Event
	batchSize int
}

// NewSliceSource creates a replay source. batchSize <= 0 replays the
// whole slice in one call.
func NewSliceSource(logger *zap.Logger, events []domain.Event, batchSize int) *SliceSource {
	return &SliceSource{logger: logger, events: events, batchSize: batchSize}
}

// Run pushes all events into the sink in batches. Stops early when the
// context is canceled.
func (s *SliceSource) Run(ctx context.Context, sink EventSink) error {
	batch := s.batchSize
	if batch <= 0 {
		batch = len(s.events)
	}

	for start := 0; start < len(s.events); start += batch {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := start + batch
		if end > len(s.events) {
			end = len(s.events)
		}
		if err := sink.Ingest(ctx, s.events[start:end]); err != nil {
			return err
		}
	}

	s.logger.Debug("slice source replay complete", zap.Int("events", len(s.events)))
	return nil
}
