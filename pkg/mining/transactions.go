package mining

import (
	"sort"
	"time"

	"github.com/ydagan/synaptic/pkg/domain"
)

// TransactionBuilder groups chronologically ordered events into
// co-occurrence transactions using a sliding window.
//
// The window re-anchors at every event, so one event can appear in
// several overlapping transactions. That is deliberate: it captures
// every pairwise co-occurrence instead of binning, at the cost of
// inflating apparent support for very bursty entities.
type TransactionBuilder struct {
	windowSeconds      float64
	minTransactionSize int
}

// NewTransactionBuilder creates a builder. minTransactionSize below 2
// is raised to 2, since a single-entity transaction carries no pair
// information.
func NewTransactionBuilder(windowSeconds float64, minTransactionSize int) *TransactionBuilder {
	if minTransactionSize < 2 {
		minTransactionSize = 2
	}
	return &TransactionBuilder{
		windowSeconds:      windowSeconds,
		minTransactionSize: minTransactionSize,
	}
}

// Build converts events into transactions. Events must be sorted by
// timestamp ascending; empty input yields empty output.
func (b *TransactionBuilder) Build(events []domain.Event) []domain.Transaction {
	if len(events) == 0 {
		return nil
	}

	window := time.Duration(b.windowSeconds * float64(time.Second))
	transactions := make([]domain.Transaction, 0, len(events))

	for i, anchor := range events {
		end := anchor.Timestamp.Add(window)

		members := make(map[string]bool)
		for j := i; j < len(events); j++ {
			if events[j].Timestamp.After(end) {
				break
			}
			if events[j].EntityID != "" {
				members[events[j].EntityID] = true
			}
		}
		if len(members) < b.minTransactionSize {
			continue
		}

		entities := make([]string, 0, len(members))
		for entity := range members {
			entities = append(entities, entity)
		}
		sort.Strings(entities)

		transactions = append(transactions, domain.Transaction{
			Entities: entities,
			Start:    anchor.Timestamp,
		})
	}

	return transactions
}
