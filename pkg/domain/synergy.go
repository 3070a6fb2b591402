package domain

import (
	"sort"
	"strings"
	"time"
)

// Itemset is an unordered set of entity IDs with its observed support.
// Members are kept sorted so itemsets compare and join deterministically.
type Itemset struct {
	Items   []string
	Support float64
}

// NewItemset builds an itemset with canonical (sorted) member order.
func NewItemset(items []string, support float64) Itemset {
	sorted := make([]string, len(items))
	copy(sorted, items)
	sort.Strings(sorted)
	return Itemset{Items: sorted, Support: support}
}

// Key returns the canonical string form used as a map key.
func (s Itemset) Key() string {
	return strings.Join(s.Items, "|")
}

// AssociationRule is a directed rule antecedent => consequent derived
// from a frequent itemset. Antecedent and consequent are disjoint and
// their union is the originating itemset.
type AssociationRule struct {
	Antecedent []string
	Consequent []string
	Support    float64
	Confidence float64
	Lift       float64
}

// AntecedentKey returns the canonical antecedent form, used for
// deterministic tie-breaking when ranking rules.
func (r *AssociationRule) AntecedentKey() string {
	return strings.Join(r.Antecedent, "|")
}

// ConsequentKey returns the canonical consequent form. Rules sharing
// score, support and antecedent still need a total order.
func (r *AssociationRule) ConsequentKey() string {
	return strings.Join(r.Consequent, "|")
}

// SynergySource identifies where a synergy came from.
type SynergySource string

const (
	SourceMined      SynergySource = "mined"
	SourcePredefined SynergySource = "predefined"
)

// DiscoveredSynergy is a directed, temporally validated trigger→action
// relationship between two entities. Immutable once emitted; later
// mining runs supersede rather than mutate earlier records.
type DiscoveredSynergy struct {
	ID            string        `json:"id"`
	TriggerEntity string        `json:"trigger_entity"`
	ActionEntity  string        `json:"action_entity"`
	Support       float64       `json:"support"`
	Confidence    float64       `json:"confidence"`
	Lift          float64       `json:"lift"`
	Frequency     int           `json:"frequency"`
	Consistency   float64       `json:"consistency"`
	WindowSeconds float64       `json:"window_seconds"`
	ImpactScore   float64       `json:"impact_score"`
	Source        SynergySource `json:"source"`
	DiscoveredAt  time.Time     `json:"discovered_at"`
}

// PairKey returns the unordered pair key for reverse-duplicate checks.
func (s *DiscoveredSynergy) PairKey() string {
	return PairKey(s.TriggerEntity, s.ActionEntity)
}

// DirectedKey returns the exact directed pair key used when predefined
// synergies collide with mined ones.
func (s *DiscoveredSynergy) DirectedKey() string {
	return s.TriggerEntity + ">" + s.ActionEntity
}
