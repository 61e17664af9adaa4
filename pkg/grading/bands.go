// Package grading holds the school scoring rules: grade bands, composite
// subject scores, BECE aggregates and class level progression.
package grading

import (
	"math"
	"sort"
	"strings"
)

// maxBandGap is the widest distance allowed between one band's max and the
// next band's min. Percentages falling inside such a gap belong to the lower band.
const maxBandGap = 1.0

const epsilon = 1e-9

// GradeBand maps a contiguous percentage range to a grade code.
type GradeBand struct {
	Code          string  `json:"code"`
	Name          string  `json:"name"`
	MinPercentage float64 `json:"min_percentage"`
	MaxPercentage float64 `json:"max_percentage"`
	Order         int     `json:"order"`
}

// Contains reports whether percentage lies inside the closed [min,max] range.
func (b GradeBand) Contains(percentage float64) bool {
	return percentage >= b.MinPercentage && percentage <= b.MaxPercentage
}

// DefaultBands returns the standards-based scale used until an administrator
// configures a grading system.
func DefaultBands() []GradeBand {
	return []GradeBand{
		{Code: "A", Name: "Advanced", MinPercentage: 80, MaxPercentage: 100, Order: 1},
		{Code: "P", Name: "Proficient", MinPercentage: 68, MaxPercentage: 79, Order: 2},
		{Code: "AP", Name: "Approaching Proficiency", MinPercentage: 54, MaxPercentage: 67, Order: 3},
		{Code: "D", Name: "Developing", MinPercentage: 40, MaxPercentage: 53, Order: 4},
		{Code: "B", Name: "Beginning", MinPercentage: 0, MaxPercentage: 39, Order: 5},
	}
}

// ResolveGrade returns the band covering percentage.
//
// A band owns its closed range plus any gap of at most one point before the
// next band, so 49.5 resolves to [0,49] when the next band starts at 50.
func ResolveGrade(percentage float64, bands []GradeBand) (GradeBand, error) {
	if math.IsNaN(percentage) || percentage < 0 || percentage > 100 {
		return GradeBand{}, ErrPercentageOutOfRange
	}
	if len(bands) == 0 {
		return GradeBand{}, ErrNoMatchingBand
	}

	order := ascendingIndexes(bands)
	for _, idx := range order {
		if bands[idx].Contains(percentage) {
			return bands[idx], nil
		}
	}
	for i := 0; i < len(order)-1; i++ {
		lower, upper := bands[order[i]], bands[order[i+1]]
		if upper.MinPercentage-lower.MaxPercentage > maxBandGap+epsilon {
			continue
		}
		if percentage > lower.MaxPercentage && percentage < upper.MinPercentage {
			return lower, nil
		}
	}
	return GradeBand{}, ErrNoMatchingBand
}

// ValidateGradingSystem checks that bands are non-empty, well formed,
// non-overlapping and cover 0–100 without holes. It returns a *ValidationError
// describing the first failing rule, or nil.
func ValidateGradingSystem(bands []GradeBand) error {
	if len(bands) == 0 {
		return newValidationError(RuleEmpty, -1, -1, "at least one grade band is required")
	}

	codes := make(map[string]int, len(bands))
	for i, band := range bands {
		code := strings.ToUpper(strings.TrimSpace(band.Code))
		switch {
		case code == "":
			return newValidationError(RuleBandFields, i, -1, "band %d has no code", i+1)
		case strings.TrimSpace(band.Name) == "":
			return newValidationError(RuleBandFields, i, -1, "band %s has no name", band.Code)
		case band.MinPercentage < 0 || band.MaxPercentage > 100:
			return newValidationError(RuleBandFields, i, -1, "band %s must stay within 0-100", band.Code)
		case band.MinPercentage > band.MaxPercentage:
			return newValidationError(RuleBandFields, i, -1, "band %s has min %.2f above max %.2f", band.Code, band.MinPercentage, band.MaxPercentage)
		}
		if prev, ok := codes[code]; ok {
			return newValidationError(RuleBandFields, i, prev, "band code %s is used twice", band.Code)
		}
		codes[code] = i
	}

	order := ascendingIndexes(bands)
	for i := 0; i < len(order)-1; i++ {
		cur, next := bands[order[i]], bands[order[i+1]]
		if cur.MaxPercentage >= next.MinPercentage {
			return newValidationError(RuleOverlap, order[i], order[i+1],
				"bands %s (%.2f-%.2f) and %s (%.2f-%.2f) overlap",
				cur.Code, cur.MinPercentage, cur.MaxPercentage, next.Code, next.MinPercentage, next.MaxPercentage)
		}
		if next.MinPercentage-cur.MaxPercentage > maxBandGap+epsilon {
			return newValidationError(RuleGap, order[i], order[i+1],
				"percentages between %.2f and %.2f are not covered", cur.MaxPercentage, next.MinPercentage)
		}
	}

	first, last := bands[order[0]], bands[order[len(order)-1]]
	if first.MinPercentage != 0 {
		return newValidationError(RuleCoverage, order[0], -1, "lowest band must start at 0, starts at %.2f", first.MinPercentage)
	}
	if last.MaxPercentage != 100 {
		return newValidationError(RuleCoverage, order[len(order)-1], -1, "highest band must end at 100, ends at %.2f", last.MaxPercentage)
	}
	return nil
}

// SortBands returns a copy ordered for display: by Order, then highest range first.
func SortBands(bands []GradeBand) []GradeBand {
	sorted := make([]GradeBand, len(bands))
	copy(sorted, bands)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Order != sorted[j].Order {
			return sorted[i].Order < sorted[j].Order
		}
		return sorted[i].MinPercentage > sorted[j].MinPercentage
	})
	return sorted
}

func ascendingIndexes(bands []GradeBand) []int {
	idx := make([]int, len(bands))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return bands[idx[a]].MinPercentage < bands[idx[b]].MinPercentage
	})
	return idx
}
