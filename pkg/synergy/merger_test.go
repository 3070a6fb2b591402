package synergy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ydagan/synaptic/pkg/domain"
	"github.com/ydagan/synaptic/pkg/temporal"
)

func validation(trigger, action string, confidence, consistency float64, frequency int) temporal.Validation {
	return temporal.Validation{
		Rule: domain.AssociationRule{
			Antecedent: []string{trigger},
			Consequent: []string{action},
			Support:    0.5,
			Confidence: confidence,
			Lift:       1.2,
		},
		Consistency: consistency,
		Frequency:   frequency,
	}
}

func TestMergeConvertsValidations(t *testing.T) {
	merger := NewMerger(zap.NewNop(), 300)

	merged := merger.Merge([]temporal.Validation{
		validation("sensor.motion", "light.hall", 0.9, 0.8, 10),
	}, nil)

	require.Len(t, merged, 1)
	s := merged[0]
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, "sensor.motion", s.TriggerEntity)
	assert.Equal(t, "light.hall", s.ActionEntity)
	assert.Equal(t, 0.9, s.Confidence)
	assert.Equal(t, 0.8, s.Consistency)
	assert.Equal(t, 10, s.Frequency)
	assert.Equal(t, 300.0, s.WindowSeconds)
	assert.Equal(t, domain.SourceMined, s.Source)
	assert.InDelta(t, 0.7839, s.ImpactScore, 0.001)
	assert.False(t, s.DiscoveredAt.IsZero())
}

func TestMergeDropsSelfLoops(t *testing.T) {
	merger := NewMerger(zap.NewNop(), 300)

	merged := merger.Merge([]temporal.Validation{
		validation("light.a", "light.a", 0.9, 0.9, 5),
		validation("light.a", "light.b", 0.9, 0.9, 5),
	}, nil)

	require.Len(t, merged, 1)
	assert.Equal(t, "light.b", merged[0].ActionEntity)
}

func TestMergeSkipsMultiItemRules(t *testing.T) {
	merger := NewMerger(zap.NewNop(), 300)

	v := validation("a", "b", 0.9, 0.9, 5)
	v.Rule.Antecedent = []string{"a", "c"}

	merged := merger.Merge([]temporal.Validation{v}, nil)
	assert.Empty(t, merged)
}

func TestMergeKeepsStrongerDirection(t *testing.T) {
	merger := NewMerger(zap.NewNop(), 300)

	merged := merger.Merge([]temporal.Validation{
		validation("light.a", "light.b", 0.9, 0.9, 20),
		validation("light.b", "light.a", 0.6, 0.5, 4),
	}, nil)

	require.Len(t, merged, 1)
	assert.Equal(t, "light.a", merged[0].TriggerEntity)
	assert.Equal(t, "light.b", merged[0].ActionEntity)
}

func TestMergeReverseDirectionTieIsDeterministic(t *testing.T) {
	merger := NewMerger(zap.NewNop(), 300)

	merged := merger.Merge([]temporal.Validation{
		validation("light.b", "light.a", 0.8, 0.8, 6),
		validation("light.a", "light.b", 0.8, 0.8, 6),
	}, nil)

	require.Len(t, merged, 1)
	// Equal rank keeps the smaller directed key.
	assert.Equal(t, "light.a", merged[0].TriggerEntity)
}

func TestMergePredefinedWinsExactDirectedPair(t *testing.T) {
	merger := NewMerger(zap.NewNop(), 300)

	predefined := []domain.DiscoveredSynergy{{
		ID:            "curated-1",
		TriggerEntity: "light.x",
		ActionEntity:  "switch.y",
		Confidence:    1.0,
		Consistency:   1.0,
		ImpactScore:   0.95,
		Source:        domain.SourcePredefined,
	}}

	merged := merger.Merge([]temporal.Validation{
		validation("light.x", "switch.y", 0.9, 0.9, 10),
		validation("sensor.m", "light.z", 0.9, 0.9, 10),
	}, predefined)

	require.Len(t, merged, 2)
	byPair := make(map[string]domain.DiscoveredSynergy)
	for _, s := range merged {
		byPair[s.DirectedKey()] = s
	}
	assert.Equal(t, "curated-1", byPair["light.x>switch.y"].ID)
	assert.Equal(t, domain.SourcePredefined, byPair["light.x>switch.y"].Source)
	assert.Equal(t, domain.SourceMined, byPair["sensor.m>light.z"].Source)
}

func TestMergePredefinedReverseDirectionDoesNotSupersede(t *testing.T) {
	merger := NewMerger(zap.NewNop(), 300)

	predefined := []domain.DiscoveredSynergy{{
		ID:            "curated-1",
		TriggerEntity: "switch.y",
		ActionEntity:  "light.x",
		Source:        domain.SourcePredefined,
	}}

	merged := merger.Merge([]temporal.Validation{
		validation("light.x", "switch.y", 0.9, 0.9, 10),
	}, predefined)

	// Opposite directions are distinct synergies.
	assert.Len(t, merged, 2)
}

func TestMergeDropsMalformedPredefined(t *testing.T) {
	merger := NewMerger(zap.NewNop(), 300)

	predefined := []domain.DiscoveredSynergy{
		{ID: "loop", TriggerEntity: "light.a", ActionEntity: "light.a", Source: domain.SourcePredefined},
		{ID: "empty", TriggerEntity: "", ActionEntity: "light.b", Source: domain.SourcePredefined},
		{ID: "ok", TriggerEntity: "light.a", ActionEntity: "light.b", Source: domain.SourcePredefined},
	}

	merged := merger.Merge(nil, predefined)
	require.Len(t, merged, 1)
	assert.Equal(t, "ok", merged[0].ID)
}

func TestMergeDedupesReversePredefinedPairs(t *testing.T) {
	merger := NewMerger(zap.NewNop(), 300)

	predefined := []domain.DiscoveredSynergy{
		{ID: "strong", TriggerEntity: "light.a", ActionEntity: "light.b",
			Confidence: 0.9, Consistency: 0.9, Frequency: 20, Source: domain.SourcePredefined},
		{ID: "weak", TriggerEntity: "light.b", ActionEntity: "light.a",
			Confidence: 0.5, Consistency: 0.5, Frequency: 2, Source: domain.SourcePredefined},
	}

	merged := merger.Merge(nil, predefined)
	require.Len(t, merged, 1)
	assert.Equal(t, "strong", merged[0].ID)
}

func TestMergeRanksByImpactScore(t *testing.T) {
	merger := NewMerger(zap.NewNop(), 300)

	merged := merger.Merge([]temporal.Validation{
		validation("a", "b", 0.6, 0.5, 3),
		validation("c", "d", 0.95, 0.95, 50),
	}, nil)

	require.Len(t, merged, 2)
	assert.Equal(t, "c", merged[0].TriggerEntity)
	assert.True(t, merged[0].ImpactScore >= merged[1].ImpactScore)
}

func TestImpactScoreFrequencySaturates(t *testing.T) {
	low := impactScore(domain.DiscoveredSynergy{Confidence: 1, Consistency: 1, Frequency: 100})
	high := impactScore(domain.DiscoveredSynergy{Confidence: 1, Consistency: 1, Frequency: 100000})

	assert.InDelta(t, 1.0, low, 0.01)
	assert.InDelta(t, 1.0, high, 0.0001)
}

func TestClampUnit(t *testing.T) {
	logger := zap.NewNop()

	assert.Equal(t, 0.5, clampUnit(logger, "confidence", 0.5))
	assert.Equal(t, 1.0, clampUnit(logger, "confidence", 1.005))
	assert.Equal(t, 0.0, clampUnit(logger, "confidence", -0.005))
}
