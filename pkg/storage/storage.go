package storage

import (
	"context"
	"time"

	"github.com/ydagan/synaptic/pkg/domain"
)

// EventStore persists state-change events and serves bounded
// historical windows to the batch mining path. Mining always reads a
// snapshot from here, never the live streaming structures.
type EventStore interface {
	AppendEvents(ctx context.Context, events []domain.Event) error
	QueryEvents(ctx context.Context, start, end time.Time) ([]domain.Event, error)
}

// SynergyStore persists the latest ranked synergy list. The store is
// opaque to the engine; each save supersedes the previous mined set.
type SynergyStore interface {
	SaveSynergies(ctx context.Context, synergies []domain.DiscoveredSynergy) error
	LoadSynergies(ctx context.Context) ([]domain.DiscoveredSynergy, error)
}
