package recommend

import (
	"fmt"
	"sort"
	"strings"

	"carbontracker/internal/db"
)

// Priority orders recommendations; lower values rank first.
type Priority int

const (
	PriorityHigh Priority = iota
	PriorityMedium
	PriorityLow
)

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	case PriorityLow:
		return "low"
	}
	return fmt.Sprintf("priority(%d)", int(p))
}

// ParsePriority is the inverse of String.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return PriorityHigh, nil
	case "medium":
		return PriorityMedium, nil
	case "low":
		return PriorityLow, nil
	}
	return 0, fmt.Errorf("unknown priority %q", s)
}

// Less ranks by priority, then by larger reduction, then by title so the
// order is total for identical inputs.
func Less(a, b Recommendation) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	if c := a.PotentialReduction.Cmp(b.PotentialReduction); c != 0 {
		return c > 0
	}
	if a.Title != b.Title {
		return a.Title < b.Title
	}
	return a.Category < b.Category
}

// Sort ranks recs in place.
func Sort(recs []Recommendation) {
	sort.SliceStable(recs, func(i, j int) bool { return Less(recs[i], recs[j]) })
}

// RankStored orders persisted recommendations the same way Sort does.
// Unknown priorities sort after low.
func RankStored(recs []db.Recommendation) {
	rank := func(s string) int {
		p, err := ParsePriority(s)
		if err != nil {
			return int(PriorityLow) + 1
		}
		return int(p)
	}
	sort.SliceStable(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if ra, rb := rank(a.Priority), rank(b.Priority); ra != rb {
			return ra < rb
		}
		if a.PotentialCO2Reduction != b.PotentialCO2Reduction {
			return a.PotentialCO2Reduction > b.PotentialCO2Reduction
		}
		return a.Title < b.Title
	})
}
