package mining

import (
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/ydagan/synaptic/pkg/domain"
)

// RuleGenerator expands frequent itemsets into directed association
// rules filtered by confidence and lift thresholds.
type RuleGenerator struct {
	logger *zap.Logger

	minConfidence float64
	minLift       float64
}

// NewRuleGenerator creates a rule generator.
func NewRuleGenerator(logger *zap.Logger, minConfidence, minLift float64) *RuleGenerator {
	return &RuleGenerator{
		logger:        logger,
		minConfidence: minConfidence,
		minLift:       minLift,
	}
}

// Generate derives rules from every frequent itemset of size >= 2.
// For each non-empty proper subset A of an itemset I:
//
//	confidence = support(I) / support(A)
//	lift       = confidence / support(I \ A)
//
// Rules below either threshold are dropped. The result is sorted by
// confidence*lift descending, larger support first on ties, then
// lexicographic antecedent and consequent, so identical input yields
// an identical rule order.
func (g *RuleGenerator) Generate(frequent map[string]domain.Itemset) []domain.AssociationRule {
	var rules []domain.AssociationRule

	for _, itemset := range frequent {
		if len(itemset.Items) < 2 {
			continue
		}

		for _, antecedent := range properSubsets(itemset.Items) {
			consequent := difference(itemset.Items, antecedent)

			antSupport, ok := lookupSupport(frequent, antecedent)
			if !ok || antSupport == 0 {
				// Every subset of a frequent itemset is frequent; a
				// miss here means the miner violated its invariant.
				g.logger.DPanic("antecedent missing from frequent itemsets",
					zap.Strings("antecedent", antecedent),
				)
				continue
			}
			conSupport, ok := lookupSupport(frequent, consequent)
			if !ok || conSupport == 0 {
				g.logger.DPanic("consequent missing from frequent itemsets",
					zap.Strings("consequent", consequent),
				)
				continue
			}

			confidence := itemset.Support / antSupport
			if confidence > 1 {
				// Support counting guarantees support(I) <= support(A).
				confidence = 1
			}
			lift := confidence / conSupport

			if confidence < g.minConfidence || lift < g.minLift {
				continue
			}

			rules = append(rules, domain.AssociationRule{
				Antecedent: antecedent,
				Consequent: consequent,
				Support:    itemset.Support,
				Confidence: confidence,
				Lift:       lift,
			})
		}
	}

	sort.Slice(rules, func(i, j int) bool {
		scoreI := rules[i].Confidence * rules[i].Lift
		scoreJ := rules[j].Confidence * rules[j].Lift
		if scoreI != scoreJ {
			return scoreI > scoreJ
		}
		if rules[i].Support != rules[j].Support {
			return rules[i].Support > rules[j].Support
		}
		if rules[i].AntecedentKey() != rules[j].AntecedentKey() {
			return rules[i].AntecedentKey() < rules[j].AntecedentKey()
		}
		return rules[i].ConsequentKey() < rules[j].ConsequentKey()
	})

	return rules
}

// properSubsets enumerates every non-empty proper subset of a sorted
// itemset, preserving member order inside each subset.
func properSubsets(items []string) [][]string {
	n := len(items)
	var subsets [][]string

	// Bitmask enumeration; itemsets are capped at a small size so this
	// stays tiny.
	for mask := 1; mask < (1<<n)-1; mask++ {
		subset := make([]string, 0, n-1)
		for i := 0; i < n; i++ {
			if mask&(1<<i) != 0 {
				subset = append(subset, items[i])
			}
		}
		subsets = append(subsets, subset)
	}
	return subsets
}

func difference(items, remove []string) []string {
	removed := make(map[string]bool, len(remove))
	for _, item := range remove {
		removed[item] = true
	}
	diff := make([]string, 0, len(items)-len(remove))
	for _, item := range items {
		if !removed[item] {
			diff = append(diff, item)
		}
	}
	return diff
}

func lookupSupport(frequent map[string]domain.Itemset, items []string) (float64, bool) {
	set, ok := frequent[strings.Join(items, "|")]
	if !ok {
		return 0, false
	}
	return set.Support, true
}
