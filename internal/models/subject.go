package models

import "time"

// Subject represents an academic subject taught within one level category.
type Subject struct {
	ID        string    `db:"id" json:"id"`
	Code      string    `db:"code" json:"code"`
	Name      string    `db:"name" json:"name"`
	Category  string    `db:"category" json:"category"`
	IsCore    bool      `db:"is_core" json:"is_core"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// SubjectFilter captures supported filters for listing subjects.
type SubjectFilter struct {
	Category string
	IsCore   *bool
	Search   string
}
