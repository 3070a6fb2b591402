package synergy

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Metrics provides OTEL metrics for the synergy engine.
type Metrics struct {
	meter  metric.Meter
	logger *zap.Logger

	// Streaming path
	eventsProcessed metric.Int64Counter

	// Mining path
	miningRuns         metric.Int64Counter
	miningDuration     metric.Float64Histogram
	synergiesFound     metric.Int64Counter
	synergyImpactScore metric.Float64Histogram
}

// NewMetrics creates a metrics instance on the global meter provider.
func NewMetrics(logger *zap.Logger) (*Metrics, error) {
	meter := otel.Meter("synaptic.synergy")

	m := &Metrics{meter: meter, logger: logger}

	var err error
	m.eventsProcessed, err = meter.Int64Counter(
		"synaptic.synergy.events.processed",
		metric.WithDescription("Events folded into the streaming statistics tracker"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	m.miningRuns, err = meter.Int64Counter(
		"synaptic.synergy.mining.runs",
		metric.WithDescription("Mining runs by outcome"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	m.miningDuration, err = meter.Float64Histogram(
		"synaptic.synergy.mining.duration",
		metric.WithDescription("Mining run duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.synergiesFound, err = meter.Int64Counter(
		"synaptic.synergy.discovered",
		metric.WithDescription("Synergies emitted by mining runs, by source"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	m.synergyImpactScore, err = meter.Float64Histogram(
		"synaptic.synergy.impact_score",
		metric.WithDescription("Impact score distribution of emitted synergies"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordEvent counts one streaming update.
func (m *Metrics) RecordEvent(ctx context.Context) {
	if m == nil {
		return
	}
	m.eventsProcessed.Add(ctx, 1)
}

// RecordMiningRun records one completed or failed mining run.
func (m *Metrics) RecordMiningRun(ctx context.Context, duration time.Duration, synergies int, err error) {
	if m == nil {
		return
	}

	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.miningRuns.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	m.miningDuration.Record(ctx, duration.Seconds())
	if err == nil {
		m.synergiesFound.Add(ctx, int64(synergies))
	}
}

// RecordSynergy records the impact score of one emitted synergy.
func (m *Metrics) RecordSynergy(ctx context.Context, source string, impactScore float64) {
	if m == nil {
		return
	}
	m.synergyImpactScore.Record(ctx, impactScore, metric.WithAttributes(attribute.String("source", source)))
}
