package temporal

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/ydagan/synaptic/pkg/config"
	"github.com/ydagan/synaptic/pkg/domain"
)

// Analyzer validates that an association holds in time order. A
// symmetric co-occurrence only becomes an actionable trigger→action
// candidate when the consequent entity consistently changes shortly
// after the antecedent does.
type Analyzer struct {
	logger *zap.Logger
	config config.TemporalConfig
}

// Validation is a rule that passed temporal validation, with its
// measured consistency and follow-up count.
type Validation struct {
	Rule domain.AssociationRule

	// Consistency is the fraction of trigger occurrences followed by
	// the action within the window.
	Consistency float64

	// Frequency is the number of trigger occurrences with a follow-up.
	Frequency int
}

// NewAnalyzer creates a temporal consistency analyzer.
func NewAnalyzer(logger *zap.Logger, cfg config.TemporalConfig) *Analyzer {
	return &Analyzer{logger: logger, config: cfg}
}

// Validate checks every single-antecedent, single-consequent rule
// against the event history. For each occurrence of the trigger
// entity changing state, the consequent entity must change within
// [t, t+window]. Rules below MinConsistency or MinOccurrences are
// dropped; multi-item rules are skipped since they have no single
// directed reading.
func (a *Analyzer) Validate(rules []domain.AssociationRule, events []domain.Event) []Validation {
	if len(rules) == 0 || len(events) == 0 {
		return nil
	}

	index := buildEntityIndex(events)
	window := time.Duration(a.config.WindowSeconds * float64(time.Second))

	var validated []Validation
	for _, rule := range rules {
		if len(rule.Antecedent) != 1 || len(rule.Consequent) != 1 {
			continue
		}

		trigger := rule.Antecedent[0]
		action := rule.Consequent[0]

		consistency, frequency := a.measure(index[trigger], index[action], window)
		if frequency < a.config.MinOccurrences || consistency < a.config.MinConsistency {
			continue
		}

		a.logger.Debug("rule passed temporal validation",
			zap.String("trigger", trigger),
			zap.String("action", action),
			zap.Float64("consistency", consistency),
			zap.Int("frequency", frequency),
		)
		validated = append(validated, Validation{
			Rule:        rule,
			Consistency: consistency,
			Frequency:   frequency,
		})
	}

	return validated
}

// measure returns (consistency, followUps) for a trigger/action
// timestamp pair. Both slices are sorted ascending.
func (a *Analyzer) measure(triggerTimes, actionTimes []time.Time, window time.Duration) (float64, int) {
	if len(triggerTimes) == 0 || len(actionTimes) == 0 {
		return 0, 0
	}

	followUps := 0
	for _, t := range triggerTimes {
		deadline := t.Add(window)
		// First action at or after the trigger.
		i := sort.Search(len(actionTimes), func(i int) bool {
			return !actionTimes[i].Before(t)
		})
		if i < len(actionTimes) && !actionTimes[i].After(deadline) {
			followUps++
		}
	}

	return float64(followUps) / float64(len(triggerTimes)), followUps
}

// buildEntityIndex groups event timestamps by entity, sorted
// ascending.
func buildEntityIndex(events []domain.Event) map[string][]time.Time {
	index := make(map[string][]time.Time)
	for _, event := range events {
		if event.EntityID == "" {
			continue
		}
		index[event.EntityID] = append(index[event.EntityID], event.Timestamp)
	}
	for entity := range index {
		times := index[entity]
		sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
	}
	return index
}
