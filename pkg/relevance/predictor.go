package relevance

import (
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/ydagan/synaptic/pkg/config"
	"github.com/ydagan/synaptic/pkg/domain"
)

// PairPrediction is one candidate pair with its correlation
// probability.
type PairPrediction struct {
	EntityA     string
	EntityB     string
	Probability float64
}

// Predictor is the cheap pre-filter over the O(n²) pair space. It
// scores every metadata pair with the configured scorer and returns
// the ranked candidates above the threshold, so the expensive mining
// stages only see plausible pairs.
type Predictor struct {
	logger    *zap.Logger
	scorer    PairScorer
	heuristic *HeuristicScorer
	config    config.RelevanceConfig
}

// NewPredictor creates a predictor. A nil scorer falls back to the
// deterministic heuristic, as does any scorer that has not been
// trained yet.
func NewPredictor(logger *zap.Logger, scorer PairScorer, cfg config.RelevanceConfig) *Predictor {
	heuristic := NewHeuristicScorer()
	if scorer == nil {
		scorer = heuristic
	}
	return &Predictor{
		logger:    logger,
		scorer:    scorer,
		heuristic: heuristic,
		config:    cfg,
	}
}

// effectiveScorer returns the configured scorer once it has been
// trained. An untrained classifier scores every pair identically
// (sigmoid of zero weights), which carries no ranking signal, so the
// heuristic rules apply until Train succeeds.
func (p *Predictor) effectiveScorer() PairScorer {
	if p.scorer.Trained() {
		return p.scorer
	}
	return p.heuristic
}

// Predict ranks all unordered entity pairs by correlation probability.
// activity maps entity IDs to recent update counts and feeds the usage
// and overlap features. Output is sorted by probability descending
// with lexicographic pair order on ties, and capped to MaxPredictions
// when configured.
func (p *Predictor) Predict(metadata []domain.EntityMetadata, activity map[string]int) []PairPrediction {
	if len(metadata) < 2 {
		return nil
	}

	sorted := make([]domain.EntityMetadata, len(metadata))
	copy(sorted, metadata)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].EntityID < sorted[j].EntityID
	})

	maxActivity := 0
	for _, count := range activity {
		if count > maxActivity {
			maxActivity = count
		}
	}

	scorer := p.effectiveScorer()

	var predictions []PairPrediction
	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			features := p.features(sorted[i], sorted[j], activity, maxActivity)
			probability := clampProbability(p.logger, scorer.Score(features))
			if probability < p.config.Threshold {
				continue
			}
			predictions = append(predictions, PairPrediction{
				EntityA:     sorted[i].EntityID,
				EntityB:     sorted[j].EntityID,
				Probability: probability,
			})
		}
	}

	sort.Slice(predictions, func(i, j int) bool {
		if predictions[i].Probability != predictions[j].Probability {
			return predictions[i].Probability > predictions[j].Probability
		}
		keyI := domain.PairKey(predictions[i].EntityA, predictions[i].EntityB)
		keyJ := domain.PairKey(predictions[j].EntityA, predictions[j].EntityB)
		return keyI < keyJ
	})

	if p.config.MaxPredictions > 0 && len(predictions) > p.config.MaxPredictions {
		predictions = predictions[:p.config.MaxPredictions]
	}

	p.logger.Debug("pair relevance prediction complete",
		zap.Int("entities", len(sorted)),
		zap.Int("candidates", len(predictions)),
		zap.Bool("trained_scorer", scorer.Trained()),
	)
	return predictions
}

func (p *Predictor) features(a, b domain.EntityMetadata, activity map[string]int, maxActivity int) PairFeatures {
	freqA := normalizedActivity(activity[a.EntityID], maxActivity)
	freqB := normalizedActivity(activity[b.EntityID], maxActivity)

	// Naive overlap proxy: both entities active at all recently.
	overlap := 0.0
	if freqA > 0 && freqB > 0 {
		overlap = math.Min(freqA, freqB) / math.Max(freqA, freqB)
	}

	distance := 1.0
	if a.AreaID != "" && a.AreaID == b.AreaID {
		distance = 0
	}

	return PairFeatures{
		SameArea:     a.AreaID != "" && a.AreaID == b.AreaID,
		SameDomain:   a.Domain == b.Domain,
		SameDevice:   a.DeviceID != "" && a.DeviceID == b.DeviceID,
		UsageFreqA:   freqA,
		UsageFreqB:   freqB,
		TimeOverlap:  overlap,
		AreaDistance: distance,
	}
}

func normalizedActivity(count, maxActivity int) float64 {
	if maxActivity == 0 {
		return 0
	}
	return float64(count) / float64(maxActivity)
}

// clampProbability bounds a scorer output to [0,1]. Scores materially
// outside the range indicate a scorer bug, not noise.
func clampProbability(logger *zap.Logger, p float64) float64 {
	if math.IsNaN(p) {
		logger.DPanic("scorer produced NaN probability")
		return 0
	}
	if p < -0.01 || p > 1.01 {
		logger.DPanic("scorer probability out of range", zap.Float64("probability", p))
	}
	return math.Max(0, math.Min(1, p))
}
