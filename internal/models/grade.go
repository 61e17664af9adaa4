package models

import "time"

// Grade is one student's assessment for a subject in a term. The band fields
// snapshot the grading system in force when the score was computed.
type Grade struct {
	ID              string    `db:"id" json:"id"`
	StudentID       string    `db:"student_id" json:"student_id"`
	SubjectID       string    `db:"subject_id" json:"subject_id"`
	ClassID         string    `db:"class_id" json:"class_id"`
	TermID          string    `db:"term_id" json:"term_id"`
	Project         float64   `db:"project" json:"project"`
	Test1           float64   `db:"test1" json:"test1"`
	Test2           float64   `db:"test2" json:"test2"`
	GroupWork       float64   `db:"group_work" json:"group_work"`
	Exam            float64   `db:"exam" json:"exam"`
	ClassScore      float64   `db:"class_score" json:"class_score"`
	ExamScore       float64   `db:"exam_score" json:"exam_score"`
	TotalScore      float64   `db:"total_score" json:"total_score"`
	GradeCode       string    `db:"grade_code" json:"grade_code"`
	GradeName       string    `db:"grade_name" json:"grade_name"`
	GradingSystemID *string   `db:"grading_system_id" json:"grading_system_id,omitempty"`
	Finalized       bool      `db:"finalized" json:"finalized"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// GradeFilter allows querying of grade entries.
type GradeFilter struct {
	StudentID string
	SubjectID string
	ClassID   string
	TermID    string
	Finalized *bool
}

// GradeBandUpdate re-points a stored grade at a new band.
type GradeBandUpdate struct {
	ID              string  `db:"id"`
	GradeCode       string  `db:"grade_code"`
	GradeName       string  `db:"grade_name"`
	GradingSystemID *string `db:"grading_system_id"`
}

// ReportCardSubject is one subject line on a report card.
type ReportCardSubject struct {
	SubjectID   string  `db:"subject_id" json:"subject_id"`
	SubjectCode string  `db:"subject_code" json:"subject_code"`
	SubjectName string  `db:"subject_name" json:"subject_name"`
	ClassScore  float64 `db:"class_score" json:"class_score"`
	ExamScore   float64 `db:"exam_score" json:"exam_score"`
	TotalScore  float64 `db:"total_score" json:"total_score"`
	GradeCode   string  `db:"grade_code" json:"grade_code"`
	GradeName   string  `db:"grade_name" json:"grade_name"`
	Finalized   bool    `db:"finalized" json:"finalized"`
}

// StudentReportCard contains per-subject grades for a student in a term.
type StudentReportCard struct {
	StudentID        string              `json:"student_id"`
	StudentName      string              `json:"student_name"`
	TermID           string              `json:"term_id"`
	Subjects         []ReportCardSubject `json:"subjects"`
	Average          *float64            `json:"average,omitempty"`
	AverageGradeCode string              `json:"average_grade_code,omitempty"`
	AverageGradeName string              `json:"average_grade_name,omitempty"`
}

// ClassReportRow is a student's result within a class report.
type ClassReportRow struct {
	StudentID   string  `db:"student_id" json:"student_id"`
	StudentName string  `db:"student_name" json:"student_name"`
	TotalScore  float64 `db:"total_score" json:"total_score"`
	GradeCode   string  `db:"grade_code" json:"grade_code"`
	Rank        int     `db:"-" json:"rank"`
}

// ClassGradeReport aggregates class performance for one subject and term.
type ClassGradeReport struct {
	ClassID      string           `json:"class_id"`
	SubjectID    string           `json:"subject_id"`
	TermID       string           `json:"term_id"`
	Students     []ClassReportRow `json:"students"`
	Min          *float64         `json:"min,omitempty"`
	Max          *float64         `json:"max,omitempty"`
	Average      *float64         `json:"average,omitempty"`
	Distribution map[string]int   `json:"distribution"`
}
