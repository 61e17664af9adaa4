package models

import (
	"strings"
	"time"
)

// StudentStatus tracks where a learner is in their school life.
type StudentStatus string

const (
	StudentStatusActive    StudentStatus = "ACTIVE"
	StudentStatusGraduated StudentStatus = "GRADUATED"
	StudentStatusWithdrawn StudentStatus = "WITHDRAWN"
)

// Student represents a learner registered in the school.
type Student struct {
	ID               string        `db:"id" json:"id"`
	StudentNumber    string        `db:"student_number" json:"student_number"`
	FirstName        string        `db:"first_name" json:"first_name"`
	LastName         string        `db:"last_name" json:"last_name"`
	Gender           string        `db:"gender" json:"gender"`
	DateOfBirth      *time.Time    `db:"date_of_birth" json:"date_of_birth,omitempty"`
	ClassID          *string       `db:"class_id" json:"class_id,omitempty"`
	Status           StudentStatus `db:"status" json:"status"`
	GraduationYear   *int          `db:"graduation_year" json:"graduation_year,omitempty"`
	GraduatedClassID *string       `db:"graduated_class_id" json:"graduated_class_id,omitempty"`
	CreatedAt        time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time     `db:"updated_at" json:"updated_at"`
}

// FullName joins first and last name.
func (s Student) FullName() string {
	return strings.TrimSpace(s.FirstName + " " + s.LastName)
}

// ExamClassID is the class a BECE sitting is filed under: the current class,
// or for graduates the class they graduated from.
func (s Student) ExamClassID() *string {
	if s.ClassID != nil {
		return s.ClassID
	}
	return s.GraduatedClassID
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	ClassID   string
	Status    StudentStatus
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// StudentDetail contains student information with class context.
type StudentDetail struct {
	Student
	ClassName  *string `db:"class_name" json:"class_name,omitempty"`
	ClassLevel *int    `db:"class_level" json:"class_level,omitempty"`
}
