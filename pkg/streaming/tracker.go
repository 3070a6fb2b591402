package streaming

import (
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ydagan/synaptic/pkg/config"
	"github.com/ydagan/synaptic/pkg/domain"
)

// Tracker maintains running statistics per entity and running
// covariance per unordered entity pair. Updates are O(1) per event and
// safe under a single-writer/multi-reader discipline: the ingestion
// path calls Update while query paths call GetCorrelation concurrently.
type Tracker struct {
	logger *zap.Logger
	config config.StreamingConfig

	mu       sync.RWMutex
	entities map[string]*EntityStatistics
	pairs    map[string]*PairCovariance

	cache *correlationCache
}

// EntityStatistics holds Welford-style running statistics for one
// entity. Owned exclusively by the Tracker; mutated only via Update.
type EntityStatistics struct {
	Mean        float64
	m2          float64
	SampleCount int

	// Recent update timestamps, pruned to the rolling window on every
	// update. Used to compute recent usage frequency for the relevance
	// pre-filter.
	timestamps []time.Time
}

// Variance returns the sample variance, or 0 with fewer than two
// samples.
func (s *EntityStatistics) Variance() float64 {
	if s.SampleCount < 2 {
		return 0
	}
	return s.m2 / float64(s.SampleCount-1)
}

// RecentCount returns how many updates fell inside the rolling window.
func (s *EntityStatistics) RecentCount() int {
	return len(s.timestamps)
}

// update folds one observation into the running mean and variance.
func (s *EntityStatistics) update(value float64, ts time.Time, window time.Duration) {
	s.SampleCount++
	delta := value - s.Mean
	s.Mean += delta / float64(s.SampleCount)
	s.m2 += delta * (value - s.Mean)

	s.timestamps = append(s.timestamps, ts)
	cutoff := ts.Add(-window)
	firstValid := 0
	for firstValid < len(s.timestamps) && s.timestamps[firstValid].Before(cutoff) {
		firstValid++
	}
	if firstValid > 0 {
		s.timestamps = append(s.timestamps[:0], s.timestamps[firstValid:]...)
	}
}

// PairCovariance holds running covariance for one unordered entity
// pair, keyed canonically so (A,B) and (B,A) share one entry.
type PairCovariance struct {
	meanA       float64
	meanB       float64
	comoment    float64
	SampleCount int
}

// Covariance returns the sample covariance, or 0 with fewer than two
// samples.
func (p *PairCovariance) Covariance() float64 {
	if p.SampleCount < 2 {
		return 0
	}
	return p.comoment / float64(p.SampleCount-1)
}

// update folds one joint observation into the running covariance.
// valueA/valueB must be ordered to match the canonical pair key.
func (p *PairCovariance) update(valueA, valueB float64) {
	p.SampleCount++
	deltaA := valueA - p.meanA
	p.meanA += deltaA / float64(p.SampleCount)
	p.meanB += (valueB - p.meanB) / float64(p.SampleCount)
	p.comoment += deltaA * (valueB - p.meanB)
}

// NewTracker creates a streaming statistics tracker. The configuration
// must already be validated.
func NewTracker(logger *zap.Logger, cfg config.StreamingConfig) *Tracker {
	return &Tracker{
		logger:   logger,
		config:   cfg,
		entities: make(map[string]*EntityStatistics),
		pairs:    make(map[string]*PairCovariance),
		cache:    newCorrelationCache(cfg.CacheTTL()),
	}
}

// Update records one joint observation of two entities. Every cached
// correlation involving either entity is invalidated under the same
// lock: a pair's correlation depends on each entity's global variance,
// so an update to (A,B) also stales (A,C) and (B,D). Readers never see
// a value computed from older statistics.
func (t *Tracker) Update(entityA, entityB string, valueA, valueB float64, timestamp time.Time) {
	if entityA == "" || entityB == "" || entityA == entityB {
		return
	}

	window := t.config.RollingWindow()

	t.mu.Lock()
	t.entityStats(entityA).update(valueA, timestamp, window)
	t.entityStats(entityB).update(valueB, timestamp, window)

	key := domain.PairKey(entityA, entityB)
	pair, exists := t.pairs[key]
	if !exists {
		pair = &PairCovariance{}
		t.pairs[key] = pair
	}
	// The canonical key orders the entities lexicographically; swap the
	// values to match before folding them in.
	if entityA > entityB {
		valueA, valueB = valueB, valueA
		entityA, entityB = entityB, entityA
	}
	pair.update(valueA, valueB)

	t.cache.invalidateEntity(entityA)
	t.cache.invalidateEntity(entityB)
	t.mu.Unlock()
}

// GetCorrelation returns the Pearson correlation for the pair, clamped
// to [-1,1]. ok is false when either variance is non-positive or the
// pair has too few samples; a correlation is never NaN or infinite.
func (t *Tracker) GetCorrelation(entityA, entityB string) (float64, bool) {
	key := domain.PairKey(entityA, entityB)

	if value, hit := t.cache.get(key); hit {
		return value, true
	}

	t.mu.RLock()
	value, ok := t.correlationLocked(key, entityA, entityB)
	t.mu.RUnlock()

	if ok {
		t.cache.put(key, entityA, entityB, value)
	}
	return value, ok
}

func (t *Tracker) correlationLocked(key, entityA, entityB string) (float64, bool) {
	pair, exists := t.pairs[key]
	if !exists || pair.SampleCount < t.config.MinSamples {
		return 0, false
	}

	statsA, okA := t.entities[entityA]
	statsB, okB := t.entities[entityB]
	if !okA || !okB {
		return 0, false
	}

	varA := statsA.Variance()
	varB := statsB.Variance()
	if varA <= 0 || varB <= 0 {
		// Constant signal: correlation is undefined, not zero.
		return 0, false
	}

	corr := pair.Covariance() / math.Sqrt(varA*varB)
	if math.IsNaN(corr) || math.IsInf(corr, 0) {
		return 0, false
	}
	if corr > 1 || corr < -1 {
		// Floating point can push slightly past the bounds; anything
		// materially outside indicates a bug upstream.
		if corr > 1.01 || corr < -1.01 {
			t.logger.DPanic("correlation out of range",
				zap.String("pair", key),
				zap.Float64("correlation", corr),
			)
		}
		corr = math.Max(-1, math.Min(1, corr))
	}
	return corr, true
}

// EntityStats returns a copy of the running statistics for an entity.
func (t *Tracker) EntityStats(entityID string) (EntityStatistics, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	stats, exists := t.entities[entityID]
	if !exists {
		return EntityStatistics{}, false
	}
	return EntityStatistics{
		Mean:        stats.Mean,
		m2:          stats.m2,
		SampleCount: stats.SampleCount,
		timestamps:  append([]time.Time(nil), stats.timestamps...),
	}, true
}

// RecentActivity returns per-entity update counts inside the rolling
// window. The batch mining path uses this snapshot instead of holding
// the tracker's lock for the run's duration.
func (t *Tracker) RecentActivity() map[string]int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	activity := make(map[string]int, len(t.entities))
	for id, stats := range t.entities {
		activity[id] = stats.RecentCount()
	}
	return activity
}

// TrackedEntities returns how many entities have statistics.
func (t *Tracker) TrackedEntities() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entities)
}

func (t *Tracker) entityStats(entityID string) *EntityStatistics {
	stats, exists := t.entities[entityID]
	if !exists {
		stats = &EntityStatistics{}
		t.entities[entityID] = stats
	}
	return stats
}
