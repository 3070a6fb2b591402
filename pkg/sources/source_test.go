package sources

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ydagan/synaptic/pkg/domain"
)

type recordingSink struct {
	batches [][]domain.Event
	fail    bool
}

func (r *recordingSink) Ingest(_ context.Context, events []domain.Event) error {
	if r.fail {
		return errors.New("sink unavailable")
	}
	batch := make([]domain.Event, len(events))
	copy(batch, events)
	r.batches = append(r.batches, batch)
	return nil
}

func sampleEvents(n int) []domain.Event {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	events := make([]domain.Event, n)
	for i := range events {
		events[i] = domain.Event{
			EntityID:  "light.a",
			Timestamp: base.Add(time.Duration(i) * time.Second),
			Value:     1,
		}
	}
	return events
}

func TestSliceSourceReplaysInBatches(t *testing.T) {
	sink := &recordingSink{}
	source := NewSliceSource(zap.NewNop(), sampleEvents(5), 2)

	require.NoError(t, source.Run(context.Background(), sink))
	require.Len(t, sink.batches, 3)
	assert.Len(t, sink.batches[0], 2)
	assert.Len(t, sink.batches[2], 1)
}

func TestSliceSourceSingleBatchByDefault(t *testing.T) {
	sink := &recordingSink{}
	source := NewSliceSource(zap.NewNop(), sampleEvents(5), 0)

	require.NoError(t, source.Run(context.Background(), sink))
	require.Len(t, sink.batches, 1)
	assert.Len(t, sink.batches[0], 5)
}

func TestSliceSourcePropagatesSinkError(t *testing.T) {
	source := NewSliceSource(zap.NewNop(), sampleEvents(3), 1)

	err := source.Run(context.Background(), &recordingSink{fail: true})
	assert.Error(t, err)
}

func TestSliceSourceStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sink := &recordingSink{}
	source := NewSliceSource(zap.NewNop(), sampleEvents(3), 1)

	err := source.Run(ctx, sink)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, sink.batches)
}

func TestDecodeEvent(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr bool
	}{
		{
			name:    "valid event",
			payload: `{"entity_id":"light.a","timestamp":"2026-08-01T12:00:00Z","value":1,"state":"on"}`,
		},
		{
			name:    "missing entity id",
			payload: `{"timestamp":"2026-08-01T12:00:00Z","value":1}`,
			wantErr: true,
		},
		{
			name:    "missing timestamp",
			payload: `{"entity_id":"light.a","value":1}`,
			wantErr: true,
		},
		{
			name:    "malformed json",
			payload: `{not json`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := decodeEvent([]byte(tt.payload))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "light.a", event.EntityID)
			assert.Equal(t, "on", event.State)
			assert.Equal(t, 1.0, event.Value)
		})
	}
}
