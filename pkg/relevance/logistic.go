package relevance

import (
	"fmt"
	"math"

	"go.uber.org/zap"
)

// TrainingSample is one labeled pair observation: features plus
// whether the pair turned out to be correlated.
type TrainingSample struct {
	Features   PairFeatures
	Correlated bool
}

// LogisticScorer is the trainable pair scorer: an online logistic
// regression over the fixed feature vector. It keeps the core free of
// any ML runtime while still learning from mining outcomes.
type LogisticScorer struct {
	logger *zap.Logger

	weights []float64
	bias    float64

	learningRate float64
	epochs       int
	trained      bool
}

// NewLogisticScorer creates an untrained scorer with the given
// hyperparameters. Zero values fall back to sensible defaults.
func NewLogisticScorer(logger *zap.Logger, learningRate float64, epochs int) *LogisticScorer {
	if learningRate <= 0 {
		learningRate = 0.1
	}
	if epochs <= 0 {
		epochs = 50
	}
	return &LogisticScorer{
		logger:       logger,
		weights:      make([]float64, FeatureCount),
		learningRate: learningRate,
		epochs:       epochs,
	}
}

// Train fits the model with plain SGD over the samples. Training
// replaces any previous fit. At least one positive and one negative
// sample are required; anything less cannot separate classes.
func (s *LogisticScorer) Train(samples []TrainingSample) error {
	positives := 0
	for _, sample := range samples {
		if sample.Correlated {
			positives++
		}
	}
	if positives == 0 || positives == len(samples) {
		return fmt.Errorf("training requires both positive and negative samples, got %d/%d", positives, len(samples))
	}

	s.weights = make([]float64, FeatureCount)
	s.bias = 0

	for epoch := 0; epoch < s.epochs; epoch++ {
		for _, sample := range samples {
			x := sample.Features.Vector()
			predicted := sigmoid(dot(s.weights, x) + s.bias)

			target := 0.0
			if sample.Correlated {
				target = 1.0
			}
			gradient := predicted - target

			for i := range s.weights {
				s.weights[i] -= s.learningRate * gradient * x[i]
			}
			s.bias -= s.learningRate * gradient
		}
	}

	s.trained = true
	s.logger.Info("pair scorer trained",
		zap.Int("samples", len(samples)),
		zap.Int("positives", positives),
		zap.Int("epochs", s.epochs),
	)
	return nil
}

// Score returns the predicted correlation probability in [0,1].
func (s *LogisticScorer) Score(features PairFeatures) float64 {
	return sigmoid(dot(s.weights, features.Vector()) + s.bias)
}

// Trained reports whether Train has completed successfully.
func (s *LogisticScorer) Trained() bool {
	return s.trained
}

func sigmoid(z float64) float64 {
	return 1.0 / (1.0 + math.Exp(-z))
}

func dot(w, x []float64) float64 {
	var sum float64
	for i := range w {
		sum += w[i] * x[i]
	}
	return sum
}
