package grading

import (
	"fmt"
	"math"
)

// Component maxima for a subject assessment.
const (
	MaxProject   = 40.0
	MaxTest      = 20.0
	MaxGroupWork = 20.0
	MaxExam      = 100.0
)

// SubjectAssessment holds the raw marks recorded for one student in one subject.
type SubjectAssessment struct {
	Project   float64 `json:"project"`
	Test1     float64 `json:"test1"`
	Test2     float64 `json:"test2"`
	GroupWork float64 `json:"group_work"`
	Exam      float64 `json:"exam"`
}

// Validate rejects components outside their allowed range. The calculators
// never clamp, so callers validate before computing.
func (a SubjectAssessment) Validate() error {
	checks := []struct {
		name  string
		value float64
		max   float64
	}{
		{"project", a.Project, MaxProject},
		{"test1", a.Test1, MaxTest},
		{"test2", a.Test2, MaxTest},
		{"group_work", a.GroupWork, MaxGroupWork},
		{"exam", a.Exam, MaxExam},
	}
	for _, c := range checks {
		if math.IsNaN(c.value) || c.value < 0 || c.value > c.max {
			return fmt.Errorf("%s must be between 0 and %.0f", c.name, c.max)
		}
	}
	return nil
}

// ClassScore scales the class work components (out of 100) to 50.
func ClassScore(a SubjectAssessment) float64 {
	return (a.Project + a.Test1 + a.Test2 + a.GroupWork) / 100 * 50
}

// ExamScore scales the exam mark (out of 100) to 50.
func ExamScore(a SubjectAssessment) float64 {
	return a.Exam / 100 * 50
}

// ComputeCompositeScore returns class work plus exam, rounded to one decimal.
func ComputeCompositeScore(a SubjectAssessment) float64 {
	return roundOne(ClassScore(a) + ExamScore(a))
}

func roundOne(v float64) float64 {
	return math.Round(v*10) / 10
}
