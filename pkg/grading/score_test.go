package grading

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeCompositeScore(t *testing.T) {
	cases := []struct {
		name string
		in   SubjectAssessment
		want float64
	}{
		{"maximum", SubjectAssessment{Project: 40, Test1: 20, Test2: 20, GroupWork: 20, Exam: 100}, 100},
		{"zero", SubjectAssessment{}, 0},
		{"worked example", SubjectAssessment{Project: 35, Test1: 18, Test2: 15, GroupWork: 20, Exam: 78}, 83},
		{"half marks", SubjectAssessment{Project: 37, Test1: 19, Test2: 17, GroupWork: 18, Exam: 63}, 77},
		{"rounds to one decimal", SubjectAssessment{Exam: 66.66}, 33.3},
		{"fractional marks", SubjectAssessment{Project: 20.5, Test1: 10, Test2: 10, GroupWork: 10, Exam: 55.3}, 52.9},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ComputeCompositeScore(tc.in))
		})
	}
}

func TestComponentScores(t *testing.T) {
	a := SubjectAssessment{Project: 35, Test1: 18, Test2: 15, GroupWork: 20, Exam: 78}
	assert.InDelta(t, 44.0, ClassScore(a), 1e-9)
	assert.InDelta(t, 39.0, ExamScore(a), 1e-9)
}

func TestSubjectAssessmentValidate(t *testing.T) {
	assert.NoError(t, SubjectAssessment{Project: 40, Test1: 20, Test2: 20, GroupWork: 20, Exam: 100}.Validate())
	assert.NoError(t, SubjectAssessment{}.Validate())
	assert.Error(t, SubjectAssessment{Project: 41}.Validate())
	assert.Error(t, SubjectAssessment{Test2: -1}.Validate())
	assert.Error(t, SubjectAssessment{Exam: 100.5}.Validate())
}
