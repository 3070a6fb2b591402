package streaming

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ydagan/synaptic/pkg/config"
)

func testConfig() config.StreamingConfig {
	return config.StreamingConfig{
		RollingWindowHours: 24,
		MinSamples:         3,
		CacheTTLSeconds:    300,
	}
}

func TestNewTracker(t *testing.T) {
	tracker := NewTracker(zap.NewNop(), testConfig())

	assert.NotNil(t, tracker)
	assert.Equal(t, 0, tracker.TrackedEntities())
}

func TestTrackerPositiveCorrelation(t *testing.T) {
	tracker := NewTracker(zap.NewNop(), testConfig())
	now := time.Now()

	// Perfectly co-varying signals.
	for i := 0; i < 10; i++ {
		tracker.Update("light.kitchen", "switch.kitchen", 1.0, 1.0, now.Add(time.Duration(i)*time.Minute))
	}
	for i := 10; i < 20; i++ {
		tracker.Update("light.kitchen", "switch.kitchen", 0.0, 0.0, now.Add(time.Duration(i)*time.Minute))
	}

	corr, ok := tracker.GetCorrelation("light.kitchen", "switch.kitchen")
	require.True(t, ok)
	assert.InDelta(t, 1.0, corr, 0.01)
}

func TestTrackerNegativeCorrelation(t *testing.T) {
	tracker := NewTracker(zap.NewNop(), testConfig())
	now := time.Now()

	for i := 0; i < 10; i++ {
		tracker.Update("light.a", "light.b", 1.0, 0.0, now.Add(time.Duration(i)*time.Minute))
	}
	for i := 10; i < 20; i++ {
		tracker.Update("light.a", "light.b", 0.0, 1.0, now.Add(time.Duration(i)*time.Minute))
	}

	corr, ok := tracker.GetCorrelation("light.a", "light.b")
	require.True(t, ok)
	assert.InDelta(t, -1.0, corr, 0.01)
}

func TestTrackerZeroVarianceUnavailable(t *testing.T) {
	tracker := NewTracker(zap.NewNop(), testConfig())
	now := time.Now()

	// Constant first signal: variance is zero, correlation undefined.
	for i := 0; i < 10; i++ {
		tracker.Update("sensor.still", "light.a", 0.5, float64(i%2), now.Add(time.Duration(i)*time.Minute))
	}

	_, ok := tracker.GetCorrelation("sensor.still", "light.a")
	assert.False(t, ok)
}

func TestTrackerInsufficientSamples(t *testing.T) {
	tracker := NewTracker(zap.NewNop(), testConfig())
	now := time.Now()

	tracker.Update("a", "b", 1.0, 1.0, now)
	tracker.Update("a", "b", 0.0, 0.0, now.Add(time.Minute))

	_, ok := tracker.GetCorrelation("a", "b")
	assert.False(t, ok)
}

func TestTrackerUnknownPairUnavailable(t *testing.T) {
	tracker := NewTracker(zap.NewNop(), testConfig())

	_, ok := tracker.GetCorrelation("ghost.a", "ghost.b")
	assert.False(t, ok)
}

func TestTrackerCorrelationBounds(t *testing.T) {
	tracker := NewTracker(zap.NewNop(), testConfig())
	now := time.Now()

	// Noisy but correlated signals.
	values := []struct{ a, b float64 }{
		{0.1, 0.2}, {0.9, 0.8}, {0.2, 0.1}, {0.8, 0.9},
		{0.3, 0.4}, {0.7, 0.6}, {0.4, 0.3}, {0.6, 0.7},
	}
	for i, v := range values {
		tracker.Update("a", "b", v.a, v.b, now.Add(time.Duration(i)*time.Minute))
	}

	corr, ok := tracker.GetCorrelation("a", "b")
	require.True(t, ok)
	assert.GreaterOrEqual(t, corr, -1.0)
	assert.LessOrEqual(t, corr, 1.0)
}

func TestTrackerPairKeyIsSymmetric(t *testing.T) {
	tracker := NewTracker(zap.NewNop(), testConfig())
	now := time.Now()

	for i := 0; i < 10; i++ {
		v := float64(i % 2)
		// Alternate argument order; both must land on one pair entry.
		if i%2 == 0 {
			tracker.Update("light.x", "switch.y", v, v, now.Add(time.Duration(i)*time.Minute))
		} else {
			tracker.Update("switch.y", "light.x", v, v, now.Add(time.Duration(i)*time.Minute))
		}
	}

	forward, okF := tracker.GetCorrelation("light.x", "switch.y")
	backward, okB := tracker.GetCorrelation("switch.y", "light.x")
	require.True(t, okF)
	require.True(t, okB)
	assert.Equal(t, forward, backward)
	assert.InDelta(t, 1.0, forward, 0.01)
}

func TestTrackerSelfPairIgnored(t *testing.T) {
	tracker := NewTracker(zap.NewNop(), testConfig())

	tracker.Update("a", "a", 1.0, 1.0, time.Now())
	assert.Equal(t, 0, tracker.TrackedEntities())
}

func TestTrackerCacheInvalidatedOnUpdate(t *testing.T) {
	tracker := NewTracker(zap.NewNop(), testConfig())
	now := time.Now()

	for i := 0; i < 10; i++ {
		v := float64(i % 2)
		tracker.Update("a", "b", v, v, now.Add(time.Duration(i)*time.Minute))
	}

	first, ok := tracker.GetCorrelation("a", "b")
	require.True(t, ok)
	assert.Equal(t, 1, tracker.cache.size())

	// Opposite-sign update must invalidate and change the answer.
	tracker.Update("a", "b", 1.0, 0.0, now.Add(11*time.Minute))
	assert.Equal(t, 0, tracker.cache.size())

	second, ok := tracker.GetCorrelation("a", "b")
	require.True(t, ok)
	assert.Less(t, second, first)
}

func TestTrackerCacheInvalidatedAcrossPairs(t *testing.T) {
	tracker := NewTracker(zap.NewNop(), testConfig())
	now := time.Now()

	// Imperfectly correlated pair so the cached value sits strictly
	// inside (-1,1) and a variance change moves it.
	values := [][2]float64{{1, 1}, {1, 1}, {1, 1}, {0, 0}, {0, 0}, {0, 0}, {1, 0}, {0, 1}}
	for i, v := range values {
		tracker.Update("a", "c", v[0], v[1], now.Add(time.Duration(i)*time.Minute))
	}

	first, ok := tracker.GetCorrelation("a", "c")
	require.True(t, ok)
	require.Equal(t, 1, tracker.cache.size())

	// Updates through a different pair change entity a's global
	// variance, which corr(a,c) is computed from. The cached (a,c)
	// entry must go with them.
	for i := 0; i < 200; i++ {
		v := float64(i % 2)
		tracker.Update("a", "b", v, v, now.Add(time.Duration(10+i)*time.Minute))
	}
	assert.Equal(t, 0, tracker.cache.size())

	second, ok := tracker.GetCorrelation("a", "c")
	require.True(t, ok)
	assert.NotEqual(t, first, second)
}

func TestTrackerCacheEntityIndexPruned(t *testing.T) {
	tracker := NewTracker(zap.NewNop(), testConfig())
	now := time.Now()

	for i := 0; i < 10; i++ {
		v := float64(i % 2)
		tracker.Update("a", "b", v, v, now.Add(time.Duration(i)*time.Minute))
		tracker.Update("a", "c", v, v, now.Add(time.Duration(i)*time.Minute))
	}

	_, ok := tracker.GetCorrelation("a", "b")
	require.True(t, ok)
	_, ok = tracker.GetCorrelation("a", "c")
	require.True(t, ok)
	require.Equal(t, 2, tracker.cache.size())

	// One update of entity a drops both cached pairs.
	tracker.Update("a", "b", 1, 1, now.Add(time.Hour))
	assert.Equal(t, 0, tracker.cache.size())
	assert.Empty(t, tracker.cache.byEntity)
}

func TestEntityStatisticsWelford(t *testing.T) {
	stats := &EntityStatistics{}
	window := 24 * time.Hour
	now := time.Now()

	for _, v := range []float64{1, 2, 3, 4, 5} {
		stats.update(v, now, window)
	}

	assert.Equal(t, 5, stats.SampleCount)
	assert.InDelta(t, 3.0, stats.Mean, 1e-9)
	assert.InDelta(t, 2.5, stats.Variance(), 1e-9) // sample variance of 1..5
}

func TestEntityStatisticsRollingWindowPrune(t *testing.T) {
	stats := &EntityStatistics{}
	window := time.Hour
	base := time.Now()

	stats.update(1, base, window)
	stats.update(1, base.Add(10*time.Minute), window)
	stats.update(1, base.Add(2*time.Hour), window)

	// The first two timestamps fall outside the window anchored at the
	// latest update.
	assert.Equal(t, 1, stats.RecentCount())
	// Mean and variance keep the full history.
	assert.Equal(t, 3, stats.SampleCount)
}

func TestRecentActivitySnapshot(t *testing.T) {
	tracker := NewTracker(zap.NewNop(), testConfig())
	now := time.Now()

	tracker.Update("a", "b", 1, 0, now)
	tracker.Update("a", "c", 0, 1, now.Add(time.Minute))

	activity := tracker.RecentActivity()
	assert.Equal(t, 2, activity["a"])
	assert.Equal(t, 1, activity["b"])
	assert.Equal(t, 1, activity["c"])

	// Mutating the snapshot must not affect the tracker.
	activity["a"] = 99
	again := tracker.RecentActivity()
	assert.Equal(t, 2, again["a"])
}

func TestTrackerConcurrentReadersAndWriter(t *testing.T) {
	tracker := NewTracker(zap.NewNop(), testConfig())
	now := time.Now()
	done := make(chan struct{})

	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			v := float64(i % 2)
			tracker.Update("a", "b", v, v, now.Add(time.Duration(i)*time.Second))
		}
	}()

	for i := 0; i < 500; i++ {
		if corr, ok := tracker.GetCorrelation("a", "b"); ok {
			assert.GreaterOrEqual(t, corr, -1.0)
			assert.LessOrEqual(t, corr, 1.0)
		}
	}
	<-done
}
