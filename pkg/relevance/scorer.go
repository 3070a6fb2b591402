package relevance

// PairFeatures is the fixed feature vector describing a candidate
// entity pair. All fields are derived from entity metadata and recent
// activity; no raw event data is needed at scoring time.
type PairFeatures struct {
	SameArea   bool
	SameDomain bool
	SameDevice bool

	// UsageFreqA/B are recent update counts normalized to [0,1]
	// against the busiest entity in the batch.
	UsageFreqA float64
	UsageFreqB float64

	// TimeOverlap is a naive activity-overlap proxy in [0,1].
	TimeOverlap float64

	// AreaDistance is a spatial proxy: 0 for the same area, 1
	// otherwise. A floor-plan distance can replace it when available.
	AreaDistance float64
}

// Vector returns the features in their fixed training order.
func (f PairFeatures) Vector() []float64 {
	return []float64{
		boolFeature(f.SameArea),
		boolFeature(f.SameDomain),
		boolFeature(f.SameDevice),
		f.UsageFreqA,
		f.UsageFreqB,
		f.TimeOverlap,
		f.AreaDistance,
	}
}

// FeatureCount is the width of the feature vector.
const FeatureCount = 7

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// PairScorer scores how likely a candidate pair is to be correlated.
// Implementations must return probabilities in [0,1].
type PairScorer interface {
	Score(features PairFeatures) float64

	// Trained reports whether the scorer has learned from data.
	// Untrained scorers fall back to static heuristics.
	Trained() bool
}

// Heuristic fallback scores. Tuned conservatively: a false positive
// only costs extra mining work, a false negative is a missed synergy.
const (
	scoreSameAreaCrossDomain = 0.8
	scoreSameAreaSameDomain  = 0.6
	scoreCrossAreaOverlap    = 0.5
	scoreDefault             = 0.2
)

// HeuristicScorer is the deterministic, always-available fallback.
type HeuristicScorer struct{}

// NewHeuristicScorer creates the fallback scorer.
func NewHeuristicScorer() *HeuristicScorer {
	return &HeuristicScorer{}
}

// Score applies the static rules: devices sharing an area but serving
// different domains are the most promising (a motion sensor and a
// light), same-area same-domain pairs are next, cross-area pairs with
// overlapping activity may still be automations, everything else is
// unlikely.
func (h *HeuristicScorer) Score(features PairFeatures) float64 {
	switch {
	case features.SameArea && !features.SameDomain:
		return scoreSameAreaCrossDomain
	case features.SameArea && features.SameDomain:
		return scoreSameAreaSameDomain
	case !features.SameArea && features.TimeOverlap > 0:
		return scoreCrossAreaOverlap
	default:
		return scoreDefault
	}
}

// Trained always reports false for the heuristic scorer.
func (h *HeuristicScorer) Trained() bool {
	return false
}
