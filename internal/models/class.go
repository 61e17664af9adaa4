package models

import "time"

// Class represents a class (stream) at one level for an academic year.
type Class struct {
	ID             string    `db:"id" json:"id"`
	Name           string    `db:"name" json:"name"`
	Level          int       `db:"level" json:"level"`
	AcademicYear   string    `db:"academic_year" json:"academic_year"`
	ClassTeacherID *string   `db:"class_teacher_id" json:"class_teacher_id,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// ClassDetail extends Class with level information and the number of active students.
type ClassDetail struct {
	Class
	StudentCount   int    `db:"student_count" json:"student_count"`
	LevelName      string `db:"-" json:"level_name"`
	Category       string `db:"-" json:"category"`
	NextLevel      *int   `db:"-" json:"next_level,omitempty"`
	IsHighestLevel bool   `db:"-" json:"is_highest_level"`
}

// ClassFilter defines filter criteria for listing classes.
type ClassFilter struct {
	Level        *int
	AcademicYear string
	Search       string
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}
