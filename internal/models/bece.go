package models

import "time"

// BECEResult is a student's grade for one subject in a BECE sitting.
// ClassID records the class the student sat the exam from.
type BECEResult struct {
	ID        string    `db:"id" json:"id"`
	StudentID string    `db:"student_id" json:"student_id"`
	ClassID   *string   `db:"class_id" json:"class_id,omitempty"`
	Subject   string    `db:"subject" json:"subject"`
	Grade     string    `db:"grade" json:"grade"`
	ExamYear  int       `db:"exam_year" json:"exam_year"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// BECEClassRow is a result joined with the owning student's name.
type BECEClassRow struct {
	BECEResult
	StudentName string `db:"student_name" json:"student_name"`
}

// StudentAggregate summarises a student's BECE sitting. Aggregate is nil when
// fewer than the required number of subjects were graded.
type StudentAggregate struct {
	StudentID        string       `json:"student_id"`
	StudentName      string       `json:"student_name,omitempty"`
	ExamYear         int          `json:"exam_year"`
	Results          []BECEResult `json:"results,omitempty"`
	Aggregate        *int         `json:"aggregate"`
	AggregateDisplay string       `json:"aggregate_display"`
	Classification   string       `json:"classification"`
	Rank             *int         `json:"rank,omitempty"`
}

// ClassAggregateSummary ranks every student of a class by aggregate, best first.
type ClassAggregateSummary struct {
	ClassID     string             `json:"class_id"`
	ExamYear    int                `json:"exam_year"`
	Students    []StudentAggregate `json:"students"`
	GeneratedAt time.Time          `json:"generated_at"`
}
