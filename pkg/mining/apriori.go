package mining

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/ydagan/synaptic/pkg/domain"
)

// ItemsetMiner finds frequent entity itemsets in a transaction batch
// using level-wise Apriori search with anti-monotone pruning.
type ItemsetMiner struct {
	logger *zap.Logger

	minSupport     float64
	maxItemsetSize int
}

// NewItemsetMiner creates a miner. minSupport must be in (0,1] and
// maxItemsetSize at least 2; both are validated by config before
// reaching this point.
func NewItemsetMiner(logger *zap.Logger, minSupport float64, maxItemsetSize int) *ItemsetMiner {
	return &ItemsetMiner{
		logger:         logger,
		minSupport:     minSupport,
		maxItemsetSize: maxItemsetSize,
	}
}

// Mine returns every itemset whose support meets the threshold, keyed
// by canonical itemset key. Candidate generation uses sorted member
// order throughout, so identical input yields identical output.
//
// Mining is CPU-bound; the context is checked between levels so a
// long run can be cancelled cooperatively.
func (m *ItemsetMiner) Mine(ctx context.Context, transactions []domain.Transaction) (map[string]domain.Itemset, error) {
	frequent := make(map[string]domain.Itemset)
	total := len(transactions)
	if total == 0 {
		return frequent, nil
	}

	// Level 1: single-item frequencies.
	counts := make(map[string]int)
	for _, tx := range transactions {
		for _, entity := range tx.Entities {
			counts[entity]++
		}
	}

	current := make([]domain.Itemset, 0, len(counts))
	for entity, count := range counts {
		support := float64(count) / float64(total)
		if support >= m.minSupport {
			set := domain.NewItemset([]string{entity}, support)
			frequent[set.Key()] = set
			current = append(current, set)
		}
	}
	sortItemsets(current)

	// Levels k >= 2: join, prune, count.
	for k := 2; k <= m.maxItemsetSize && len(current) > 0; k++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		candidates := m.generateCandidates(current, frequent)
		if len(candidates) == 0 {
			break
		}

		next := make([]domain.Itemset, 0, len(candidates))
		for _, candidate := range candidates {
			count := 0
			for _, tx := range transactions {
				if containsAll(&tx, candidate) {
					count++
				}
			}
			support := float64(count) / float64(total)
			if support >= m.minSupport {
				set := domain.Itemset{Items: candidate, Support: support}
				frequent[set.Key()] = set
				next = append(next, set)
			}
		}
		sortItemsets(next)

		m.logger.Debug("apriori level complete",
			zap.Int("level", k),
			zap.Int("candidates", len(candidates)),
			zap.Int("frequent", len(next)),
		)
		current = next
	}

	return frequent, nil
}

// generateCandidates joins pairs of frequent (k-1)-itemsets sharing
// their first k-2 members, then prunes any candidate with an
// infrequent (k-1)-subset. The prune is the Apriori correctness
// invariant: every subset of a frequent itemset must itself be
// frequent, by construction.
func (m *ItemsetMiner) generateCandidates(frequent []domain.Itemset, known map[string]domain.Itemset) [][]string {
	var candidates [][]string
	seen := make(map[string]bool)

	for i := 0; i < len(frequent); i++ {
		for j := i + 1; j < len(frequent); j++ {
			joined, ok := join(frequent[i].Items, frequent[j].Items)
			if !ok {
				continue
			}
			key := strings.Join(joined, "|")
			if seen[key] {
				continue
			}
			seen[key] = true

			if m.allSubsetsFrequent(joined, known) {
				candidates = append(candidates, joined)
			}
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		return strings.Join(candidates[i], "|") < strings.Join(candidates[j], "|")
	})
	return candidates
}

// join merges two sorted k-itemsets that agree on all but their last
// member, producing a sorted (k+1)-candidate.
func join(a, b []string) ([]string, bool) {
	if len(a) != len(b) {
		return nil, false
	}
	for i := 0; i < len(a)-1; i++ {
		if a[i] != b[i] {
			return nil, false
		}
	}
	last, lastB := a[len(a)-1], b[len(b)-1]
	if last == lastB {
		return nil, false
	}
	if last > lastB {
		last, lastB = lastB, last
	}

	joined := make([]string, 0, len(a)+1)
	joined = append(joined, a[:len(a)-1]...)
	joined = append(joined, last, lastB)
	return joined, true
}

// allSubsetsFrequent checks every (k-1)-subset of the candidate
// against the known-frequent map.
func (m *ItemsetMiner) allSubsetsFrequent(candidate []string, known map[string]domain.Itemset) bool {
	if len(candidate) <= 2 {
		// Both 1-subsets were frequent by construction of the join.
		return true
	}

	subset := make([]string, 0, len(candidate)-1)
	for skip := range candidate {
		subset = subset[:0]
		for i, item := range candidate {
			if i != skip {
				subset = append(subset, item)
			}
		}
		if _, ok := known[strings.Join(subset, "|")]; !ok {
			return false
		}
	}
	return true
}

func containsAll(tx *domain.Transaction, items []string) bool {
	for _, item := range items {
		if !tx.Contains(item) {
			return false
		}
	}
	return true
}

func sortItemsets(sets []domain.Itemset) {
	sort.Slice(sets, func(i, j int) bool {
		return sets[i].Key() < sets[j].Key()
	})
}
