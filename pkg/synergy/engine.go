package synergy

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ydagan/synaptic/pkg/config"
	"github.com/ydagan/synaptic/pkg/domain"
	"github.com/ydagan/synaptic/pkg/mining"
	"github.com/ydagan/synaptic/pkg/relevance"
	"github.com/ydagan/synaptic/pkg/storage"
	"github.com/ydagan/synaptic/pkg/streaming"
	"github.com/ydagan/synaptic/pkg/temporal"
)

// MetadataProvider supplies entity metadata for the relevance
// pre-filter. A nil provider disables pre-filtering and every pair is
// forwarded to mining.
type MetadataProvider interface {
	Metadata(ctx context.Context) ([]domain.EntityMetadata, error)
}

// PredefinedProvider supplies curated synergies that take precedence
// over mined ones for the same directed pair.
type PredefinedProvider interface {
	Predefined(ctx context.Context) ([]domain.DiscoveredSynergy, error)
}

// Statistics summarizes the latest mining result.
type Statistics struct {
	Count          int
	AvgConfidence  float64
	AvgConsistency float64
	AvgLift        float64
	LastMined      time.Time
}

// Engine orchestrates the full discovery pipeline: the streaming
// correlation tracker on the hot path and the batch mining pipeline
// (relevance filter, transactions, Apriori, rules, temporal
// validation, merge) on the scheduled path.
type Engine struct {
	logger *zap.Logger
	config *config.Config

	tracker    *streaming.Tracker
	events     storage.EventStore
	synergies  storage.SynergyStore
	metadata   MetadataProvider
	predefined PredefinedProvider
	metrics    *Metrics

	predictor *relevance.Predictor
	builder   *mining.TransactionBuilder
	miner     *mining.ItemsetMiner
	rules     *mining.RuleGenerator
	analyzer  *temporal.Analyzer
	merger    *Merger

	mu          sync.RWMutex
	lastResults []domain.DiscoveredSynergy
	lastMined   time.Time

	// Recent ingested events, pruned to the pairing window. Used to
	// derive joint observations for the streaming tracker.
	recentMu sync.Mutex
	recent   []domain.Event
}

// NewEngine creates the engine. The config is validated up front; a
// misconfigured engine never starts. scorer may be nil, in which case
// the relevance pre-filter uses the deterministic heuristic. metadata,
// predefined and metrics may be nil.
func NewEngine(
	logger *zap.Logger,
	cfg *config.Config,
	tracker *streaming.Tracker,
	events storage.EventStore,
	synergies storage.SynergyStore,
	metadata MetadataProvider,
	predefined PredefinedProvider,
	scorer relevance.PairScorer,
	metrics *Metrics,
) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, ErrInvalidConfiguration(err)
	}

	e := &Engine{
		logger:     logger,
		config:     cfg,
		tracker:    tracker,
		events:     events,
		synergies:  synergies,
		metadata:   metadata,
		predefined: predefined,
		metrics:    metrics,
		predictor:  relevance.NewPredictor(logger, scorer, cfg.Relevance),
		builder:    mining.NewTransactionBuilder(cfg.Mining.WindowSeconds, cfg.Mining.MinTransactionSize),
		miner:      mining.NewItemsetMiner(logger, cfg.Mining.MinSupport, cfg.Mining.MaxItemsetSize),
		rules:      mining.NewRuleGenerator(logger, cfg.Mining.MinConfidence, cfg.Mining.MinLift),
		analyzer:   temporal.NewAnalyzer(logger, cfg.Temporal),
		merger:     NewMerger(logger, cfg.Temporal.WindowSeconds),
	}

	logger.Info("synergy engine created",
		zap.Float64("min_support", cfg.Mining.MinSupport),
		zap.Float64("min_confidence", cfg.Mining.MinConfidence),
		zap.Float64("min_consistency", cfg.Temporal.MinConsistency),
		zap.Bool("relevance_filter", metadata != nil),
	)
	return e, nil
}

// Ingest appends a batch of events to the event store for later
// mining runs and folds them into the streaming tracker, so live
// correlations and recent-activity counts stay current between runs.
func (e *Engine) Ingest(ctx context.Context, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}
	if err := e.events.AppendEvents(ctx, events); err != nil {
		return err
	}
	for i := range events {
		if !events[i].Valid() {
			continue
		}
		e.observe(events[i])
		e.metrics.RecordEvent(ctx)
	}
	return nil
}

// observe pairs one event with the other entities that changed inside
// the pairing window and updates the tracker with each joint
// observation. The buffer is bounded by the configured event buffer
// size, so bursty streams degrade to fewer pairings instead of
// unbounded memory.
func (e *Engine) observe(event domain.Event) {
	window := time.Duration(e.config.Mining.WindowSeconds * float64(time.Second))
	cutoff := event.Timestamp.Add(-window)

	e.recentMu.Lock()
	firstValid := 0
	for firstValid < len(e.recent) && e.recent[firstValid].Timestamp.Before(cutoff) {
		firstValid++
	}
	if firstValid > 0 {
		e.recent = append(e.recent[:0], e.recent[firstValid:]...)
	}

	for _, prior := range e.recent {
		if prior.EntityID == event.EntityID {
			continue
		}
		e.tracker.Update(prior.EntityID, event.EntityID, prior.Value, event.Value, event.Timestamp)
	}

	e.recent = append(e.recent, event)
	if max := e.config.Engine.EventBufferSize; len(e.recent) > max {
		e.recent = append(e.recent[:0], e.recent[len(e.recent)-max:]...)
	}
	e.recentMu.Unlock()
}

// UpdateCorrelation folds one simultaneous observation of two entities
// into the streaming tracker.
func (e *Engine) UpdateCorrelation(ctx context.Context, entityA, entityB string, valueA, valueB float64, timestamp time.Time) {
	e.tracker.Update(entityA, entityB, valueA, valueB, timestamp)
	e.metrics.RecordEvent(ctx)
}

// GetCorrelation returns the current Pearson correlation for a pair.
// The second return is false when no reliable value is available yet.
func (e *Engine) GetCorrelation(entityA, entityB string) (float64, bool) {
	return e.tracker.GetCorrelation(entityA, entityB)
}

// MineSynergies runs the batch pipeline over the stored events in
// [start, end] and returns the merged, ranked synergy list. The result
// is persisted and becomes the statistics snapshot. Returns an
// insufficient-data error when the window holds too few events to mine
// anything; callers should treat that as a benign outcome.
func (e *Engine) MineSynergies(ctx context.Context, start, end time.Time) ([]domain.DiscoveredSynergy, error) {
	began := time.Now()
	result, err := e.mine(ctx, start, end)
	e.metrics.RecordMiningRun(ctx, time.Since(began), len(result), err)

	if err != nil {
		if IsInsufficientData(err) {
			e.logger.Info("mining skipped, not enough events in window",
				zap.Time("start", start),
				zap.Time("end", end),
			)
		} else {
			e.logger.Error("mining run failed", zap.Error(err))
		}
		return nil, err
	}

	e.mu.Lock()
	e.lastResults = result
	e.lastMined = time.Now().UTC()
	e.mu.Unlock()

	for _, s := range result {
		e.metrics.RecordSynergy(ctx, string(s.Source), s.ImpactScore)
	}
	e.logger.Info("mining run complete",
		zap.Int("synergies", len(result)),
		zap.Duration("duration", time.Since(began)),
	)
	return result, nil
}

func (e *Engine) mine(ctx context.Context, start, end time.Time) ([]domain.DiscoveredSynergy, error) {
	events, err := e.events.QueryEvents(ctx, start, end)
	if err != nil {
		return nil, ErrMiningFailed("query", err)
	}
	if len(events) < e.config.Mining.MinTransactionSize {
		return nil, ErrInsufficientData(len(events))
	}

	allowed, err := e.allowedPairs(ctx)
	if err != nil {
		return nil, ErrMiningFailed("relevance", err)
	}

	transactions := e.builder.Build(events)
	if len(transactions) == 0 {
		return nil, ErrInsufficientData(len(events))
	}

	frequent, err := e.miner.Mine(ctx, transactions)
	if err != nil {
		return nil, ErrMiningFailed("apriori", err)
	}

	rules := e.rules.Generate(frequent)
	rules = filterRules(rules, allowed)

	validated := e.analyzer.Validate(rules, events)

	var predefined []domain.DiscoveredSynergy
	if e.predefined != nil {
		predefined, err = e.predefined.Predefined(ctx)
		if err != nil {
			return nil, ErrMiningFailed("predefined", err)
		}
	}

	merged := e.merger.Merge(validated, predefined)

	if e.synergies != nil {
		if err := e.synergies.SaveSynergies(ctx, merged); err != nil {
			return nil, ErrMiningFailed("persist", err)
		}
	}
	return merged, nil
}

// allowedPairs runs the relevance pre-filter. A nil metadata provider
// means no filter: the returned nil set admits every pair.
func (e *Engine) allowedPairs(ctx context.Context) (map[string]bool, error) {
	if e.metadata == nil {
		return nil, nil
	}

	metadata, err := e.metadata.Metadata(ctx)
	if err != nil {
		return nil, err
	}
	if len(metadata) < 2 {
		return nil, nil
	}

	predictions := e.predictor.Predict(metadata, e.tracker.RecentActivity())
	allowed := make(map[string]bool, len(predictions))
	for _, p := range predictions {
		allowed[domain.PairKey(p.EntityA, p.EntityB)] = true
	}
	return allowed, nil
}

// filterRules keeps single-antecedent, single-consequent rules whose
// pair passed the relevance filter. A nil set admits all pairs but
// multi-item rules are still dropped; only 1:1 rules have a directed
// trigger-action reading downstream.
func filterRules(rules []domain.AssociationRule, allowed map[string]bool) []domain.AssociationRule {
	filtered := make([]domain.AssociationRule, 0, len(rules))
	for _, rule := range rules {
		if len(rule.Antecedent) != 1 || len(rule.Consequent) != 1 {
			continue
		}
		if allowed != nil && !allowed[domain.PairKey(rule.Antecedent[0], rule.Consequent[0])] {
			continue
		}
		filtered = append(filtered, rule)
	}
	return filtered
}

// GetSynergies returns the latest mining result.
func (e *Engine) GetSynergies() []domain.DiscoveredSynergy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]domain.DiscoveredSynergy, len(e.lastResults))
	copy(out, e.lastResults)
	return out
}

// GetStatistics summarizes the latest mining result.
func (e *Engine) GetStatistics() Statistics {
	e.mu.RLock()
	defer e.mu.RUnlock()

	stats := Statistics{
		Count:     len(e.lastResults),
		LastMined: e.lastMined,
	}
	if stats.Count == 0 {
		return stats
	}

	for _, s := range e.lastResults {
		stats.AvgConfidence += s.Confidence
		stats.AvgConsistency += s.Consistency
		stats.AvgLift += s.Lift
	}
	n := float64(stats.Count)
	stats.AvgConfidence /= n
	stats.AvgConsistency /= n
	stats.AvgLift /= n
	return stats
}

// RunScheduled mines on a fixed cadence until the context is canceled.
// Each run covers the trailing mining window. Failures are logged and
// the cycle is skipped; the scheduler itself never stops on a mining
// error.
func (e *Engine) RunScheduled(ctx context.Context) error {
	interval := e.config.Engine.MiningInterval()
	window := e.config.Engine.MiningWindow()

	e.logger.Info("mining scheduler started",
		zap.Duration("interval", interval),
		zap.Duration("window", window),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			end := time.Now().UTC()
			if _, err := e.MineSynergies(ctx, end.Add(-window), end); err != nil && !IsInsufficientData(err) {
				e.logger.Warn("scheduled mining run skipped", zap.Error(err))
			}
		case <-ctx.Done():
			e.logger.Info("mining scheduler stopped")
			return ctx.Err()
		}
	}
}
