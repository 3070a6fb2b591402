package synergy

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ydagan/synaptic/pkg/domain"
	"github.com/ydagan/synaptic/pkg/temporal"
)

// frequencyNorm is the follow-up count at which the frequency term of
// the impact score saturates.
const frequencyNorm = 100

// Merger converts temporally validated rules into DiscoveredSynergy
// records, removes self-loops and reverse duplicates, folds in
// predefined synergies and ranks the result by impact.
type Merger struct {
	logger        *zap.Logger
	windowSeconds float64
}

// NewMerger creates a merger. windowSeconds is stamped onto every
// emitted synergy so consumers know the validation window.
func NewMerger(logger *zap.Logger, windowSeconds float64) *Merger {
	return &Merger{logger: logger, windowSeconds: windowSeconds}
}

// Merge builds the final ranked synergy list.
//
// Rules: self-loops never survive, predefined included; when both
// directions of a pair survive validation only the higher-ranked one
// is kept; a predefined synergy always wins over a mined one for the
// same exact directed pair; the final order is by impact score
// descending.
func (m *Merger) Merge(validated []temporal.Validation, predefined []domain.DiscoveredSynergy) []domain.DiscoveredSynergy {
	mined := m.convert(validated)
	mined = dedupeReversePairs(mined)
	predefined = m.sanitizePredefined(predefined)

	predefinedByPair := make(map[string]bool, len(predefined))
	for _, p := range predefined {
		predefinedByPair[p.DirectedKey()] = true
	}

	merged := make([]domain.DiscoveredSynergy, 0, len(mined)+len(predefined))
	dropped := 0
	for _, s := range mined {
		if predefinedByPair[s.DirectedKey()] {
			dropped++
			continue
		}
		merged = append(merged, s)
	}
	merged = append(merged, predefined...)

	if dropped > 0 {
		m.logger.Debug("mined synergies superseded by predefined entries",
			zap.Int("dropped", dropped),
		)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].ImpactScore != merged[j].ImpactScore {
			return merged[i].ImpactScore > merged[j].ImpactScore
		}
		return merged[i].DirectedKey() < merged[j].DirectedKey()
	})
	return merged
}

// convert turns validations into synergy records, dropping self-loops.
func (m *Merger) convert(validated []temporal.Validation) []domain.DiscoveredSynergy {
	now := time.Now().UTC()

	synergies := make([]domain.DiscoveredSynergy, 0, len(validated))
	for _, v := range validated {
		if len(v.Rule.Antecedent) != 1 || len(v.Rule.Consequent) != 1 {
			continue
		}
		trigger := v.Rule.Antecedent[0]
		action := v.Rule.Consequent[0]
		if trigger == action {
			continue
		}

		s := domain.DiscoveredSynergy{
			ID:            uuid.NewString(),
			TriggerEntity: trigger,
			ActionEntity:  action,
			Support:       v.Rule.Support,
			Confidence:    clampUnit(m.logger, "confidence", v.Rule.Confidence),
			Lift:          v.Rule.Lift,
			Frequency:     v.Frequency,
			Consistency:   clampUnit(m.logger, "consistency", v.Consistency),
			WindowSeconds: m.windowSeconds,
			Source:        domain.SourceMined,
			DiscoveredAt:  now,
		}
		s.ImpactScore = impactScore(s)
		synergies = append(synergies, s)
	}
	return synergies
}

// sanitizePredefined applies the same structural checks to externally
// supplied synergies that mined ones go through: self-loops are
// dropped and reverse duplicates within the predefined list collapse
// to one direction.
func (m *Merger) sanitizePredefined(predefined []domain.DiscoveredSynergy) []domain.DiscoveredSynergy {
	cleaned := make([]domain.DiscoveredSynergy, 0, len(predefined))
	for _, p := range predefined {
		if p.TriggerEntity == "" || p.ActionEntity == "" || p.TriggerEntity == p.ActionEntity {
			m.logger.Warn("dropping malformed predefined synergy",
				zap.String("trigger", p.TriggerEntity),
				zap.String("action", p.ActionEntity),
			)
			continue
		}
		cleaned = append(cleaned, p)
	}
	return dedupeReversePairs(cleaned)
}

// dedupeReversePairs keeps exactly one direction per unordered pair,
// choosing the one with the higher directional rank. Ties keep the
// lexicographically smaller directed key for determinism.
func dedupeReversePairs(synergies []domain.DiscoveredSynergy) []domain.DiscoveredSynergy {
	best := make(map[string]domain.DiscoveredSynergy, len(synergies))
	for _, s := range synergies {
		key := s.PairKey()
		current, exists := best[key]
		if !exists {
			best[key] = s
			continue
		}
		switch {
		case directionRank(s) > directionRank(current):
			best[key] = s
		case directionRank(s) == directionRank(current) && s.DirectedKey() < current.DirectedKey():
			best[key] = s
		}
	}

	deduped := make([]domain.DiscoveredSynergy, 0, len(best))
	for _, s := range best {
		deduped = append(deduped, s)
	}
	sort.Slice(deduped, func(i, j int) bool {
		return deduped[i].DirectedKey() < deduped[j].DirectedKey()
	})
	return deduped
}

// directionRank orders the two directions of one pair: the direction
// with stronger confidence, consistency and evidence volume wins.
func directionRank(s domain.DiscoveredSynergy) float64 {
	return s.Confidence * s.Consistency * math.Log1p(float64(s.Frequency))
}

// impactScore combines confidence, consistency and evidence volume
// into the final ranking score. The frequency term saturates at
// frequencyNorm follow-ups so a single chatty pair cannot dominate.
func impactScore(s domain.DiscoveredSynergy) float64 {
	freqTerm := math.Log1p(float64(s.Frequency)) / math.Log1p(frequencyNorm)
	if freqTerm > 1 {
		freqTerm = 1
	}
	return 0.4*s.Confidence + 0.4*s.Consistency + 0.2*freqTerm
}

// clampUnit bounds a score to [0,1]. Values materially outside the
// range indicate a bug in an upstream stage.
func clampUnit(logger *zap.Logger, name string, v float64) float64 {
	if math.IsNaN(v) {
		logger.DPanic("score is NaN", zap.String("score", name))
		return 0
	}
	if v < -0.01 || v > 1.01 {
		logger.DPanic("score out of range",
			zap.String("score", name),
			zap.Float64("value", v),
		)
	}
	return math.Max(0, math.Min(1, v))
}
