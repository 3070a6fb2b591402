package domain

import (
	"fmt"
	"time"
)

// Event is a single device state change observed by a collector.
// Events are immutable once emitted; the engine never mutates them.
type Event struct {
	EntityID  string    `json:"entity_id"`
	Timestamp time.Time `json:"timestamp"`

	// Value is the normalized numeric reading in [0,1]. For binary
	// devices this is 0 or 1; for dimmers/sensors it is the scaled level.
	Value float64 `json:"value"`

	// State carries the raw categorical state ("on", "off", "open")
	// when the source reports one. Optional.
	State string `json:"state,omitempty"`
}

// Valid reports whether the event carries enough information to be
// tracked. Collectors occasionally emit empty records on reconnect.
func (e *Event) Valid() bool {
	return e.EntityID != "" && !e.Timestamp.IsZero()
}

// EntityMetadata describes a device for the relevance pre-filter.
type EntityMetadata struct {
	EntityID string `json:"entity_id"`
	Domain   string `json:"domain"` // "light", "switch", "sensor", ...
	AreaID   string `json:"area_id"`
	DeviceID string `json:"device_id"`
}

// Transaction is a set of entities that changed state within one
// sliding time window. Transactions only live for the duration of a
// mining run.
type Transaction struct {
	Entities []string
	Start    time.Time
}

// Contains reports whether the transaction includes the given entity.
func (t *Transaction) Contains(entityID string) bool {
	for _, e := range t.Entities {
		if e == entityID {
			return true
		}
	}
	return false
}

// PairKey returns the canonical unordered key for an entity pair, so
// (a,b) and (b,a) address the same statistics entry.
func PairKey(entityA, entityB string) string {
	if entityA > entityB {
		entityA, entityB = entityB, entityA
	}
	return fmt.Sprintf("%s|%s", entityA, entityB)
}
