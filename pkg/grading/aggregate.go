package grading

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// BestOf is the number of subjects summed into a BECE aggregate.
const BestOf = 6

// NotApplicable is the display value for a missing aggregate.
const NotApplicable = "N/A"

var letterPoints = map[string]int{
	"A": 1,
	"B": 2,
	"C": 3,
	"D": 4,
	"E": 5,
	"F": 6,
}

// SubjectResult is one BECE grade for one subject.
type SubjectResult struct {
	Subject string `json:"subject"`
	Grade   string `json:"grade"`
}

// PointsFor converts a BECE grade to points. Letters A–F map to 1–6 and the
// numeric grades 1–9 map to themselves. Lower is better.
func PointsFor(grade string) (int, bool) {
	g := strings.ToUpper(strings.TrimSpace(grade))
	if p, ok := letterPoints[g]; ok {
		return p, true
	}
	if n, err := strconv.Atoi(g); err == nil && n >= 1 && n <= 9 {
		return n, true
	}
	return 0, false
}

// CalculateAggregate sums the points of the best BestOf subjects. It returns
// nil when fewer than BestOf distinct subjects carry a recognised grade.
func CalculateAggregate(results []SubjectResult) *int {
	return AggregateOf(results, BestOf)
}

// AggregateOf is CalculateAggregate with an explicit subject count.
// Duplicate subjects keep their best grade; unrecognised grades are ignored.
func AggregateOf(results []SubjectResult, bestOf int) *int {
	if bestOf <= 0 {
		bestOf = BestOf
	}
	best := make(map[string]int, len(results))
	for _, r := range results {
		points, ok := PointsFor(r.Grade)
		if !ok {
			continue
		}
		subject := strings.ToLower(strings.TrimSpace(r.Subject))
		if subject == "" {
			continue
		}
		if current, seen := best[subject]; !seen || points < current {
			best[subject] = points
		}
	}
	if len(best) < bestOf {
		return nil
	}

	points := make([]int, 0, len(best))
	for _, p := range best {
		points = append(points, p)
	}
	sort.Ints(points)

	total := 0
	for _, p := range points[:bestOf] {
		total += p
	}
	return &total
}

// FormatAggregate renders an aggregate for display.
func FormatAggregate(aggregate *int) string {
	if aggregate == nil {
		return NotApplicable
	}
	return strconv.Itoa(*aggregate)
}

// Threshold labels every aggregate up to and including Max.
type Threshold struct {
	Max   int    `json:"max"`
	Label string `json:"label"`
}

// Classifier maps aggregates to presentation labels. It plays no part in
// computing the aggregate itself.
type Classifier struct {
	Thresholds []Threshold `json:"thresholds"`
	Fallback   string      `json:"fallback"`
}

// DefaultClassifier returns the standard display bands.
func DefaultClassifier() Classifier {
	return Classifier{
		Thresholds: []Threshold{
			{Max: 12, Label: "Excellent"},
			{Max: 18, Label: "Very Good"},
			{Max: 24, Label: "Good"},
			{Max: 30, Label: "Fair"},
		},
		Fallback: "Needs Improvement",
	}
}

// ParseClassifier reads thresholds of the form "12:Excellent,18:Very Good".
// An empty string yields the default classifier.
func ParseClassifier(raw string) (Classifier, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultClassifier(), nil
	}
	c := Classifier{Fallback: DefaultClassifier().Fallback}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		pieces := strings.SplitN(part, ":", 2)
		if len(pieces) != 2 {
			return Classifier{}, fmt.Errorf("invalid classification %q: want max:label", part)
		}
		max, err := strconv.Atoi(strings.TrimSpace(pieces[0]))
		if err != nil {
			return Classifier{}, fmt.Errorf("invalid classification max %q: %w", pieces[0], err)
		}
		label := strings.TrimSpace(pieces[1])
		if label == "" {
			return Classifier{}, fmt.Errorf("classification %q has no label", part)
		}
		c.Thresholds = append(c.Thresholds, Threshold{Max: max, Label: label})
	}
	if len(c.Thresholds) == 0 {
		return DefaultClassifier(), nil
	}
	sort.SliceStable(c.Thresholds, func(i, j int) bool { return c.Thresholds[i].Max < c.Thresholds[j].Max })
	return c, nil
}

// Classify returns the label for aggregate.
func (c Classifier) Classify(aggregate *int) string {
	if aggregate == nil {
		return NotApplicable
	}
	for _, t := range c.Thresholds {
		if *aggregate <= t.Max {
			return t.Label
		}
	}
	return c.Fallback
}
