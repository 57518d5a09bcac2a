package summary

import (
	"fmt"
	"strings"

	"locagest/internal/core"
)

// Label is a financial-status label as shown on list screens.
type Label string

const (
	LabelPaye      Label = "payé"
	LabelEnAttente Label = "en attente"
	LabelImpaye    Label = "impayé"
	// LabelProlonge is a facet, not a statut: it combines with any of the
	// three others.
	LabelProlonge Label = "prolongé"
)

// Labels lists every filter facet in display order.
var Labels = []Label{LabelPaye, LabelEnAttente, LabelImpaye, LabelProlonge}

var labelAliases = map[string]Label{
	"payé":       LabelPaye,
	"paye":       LabelPaye,
	"paid":       LabelPaye,
	"en attente": LabelEnAttente,
	"en_attente": LabelEnAttente,
	"pending":    LabelEnAttente,
	"impayé":     LabelImpaye,
	"impaye":     LabelImpaye,
	"unpaid":     LabelImpaye,
	"prolongé":   LabelProlonge,
	"prolonge":   LabelProlonge,
	"extended":   LabelProlonge,
}

// ParseLabel accepts the French labels and their ASCII aliases.
func ParseLabel(s string) (Label, error) {
	l, ok := labelAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("unknown financial status: %q", s)
	}
	return l, nil
}

// Classify returns the primary label of a summary.
func Classify(s ContractSummary) Label {
	return s.Statut
}

// Facets returns every label the summary carries: its statut, plus
// prolongé while the contract runs past its end date.
func Facets(s ContractSummary) []Label {
	out := []Label{s.Statut}
	if s.ExtensionDays > 0 {
		out = append(out, LabelProlonge)
	}
	return out
}

// Matches is the single predicate list filters use. It never looks at raw
// contract fields.
func Matches(s ContractSummary, l Label) bool {
	if l == LabelProlonge {
		return s.ExtensionDays > 0
	}
	return s.Statut == l
}

// Filter keeps the summaries matching l, preserving order.
func Filter(summaries []ContractSummary, l Label) []ContractSummary {
	out := make([]ContractSummary, 0, len(summaries))
	for _, s := range summaries {
		if Matches(s, l) {
			out = append(out, s)
		}
	}
	return out
}

// Counters feed the stat cards.
type Counters struct {
	Total       int
	ByLabel     map[Label]int
	Overdue     int
	Outstanding core.Money
	Collected   core.Money
}

// Count tallies summaries per facet.
func Count(summaries []ContractSummary) Counters {
	c := Counters{ByLabel: make(map[Label]int, len(Labels))}
	for _, s := range summaries {
		c.Total++
		for _, l := range Facets(s) {
			c.ByLabel[l]++
		}
		if s.OverdueDays > 0 {
			c.Overdue++
		}
		c.Outstanding = c.Outstanding.Add(s.Remaining)
		c.Collected = c.Collected.Add(s.TotalPaid)
	}
	return c
}
