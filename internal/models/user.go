package models

import "strings"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleAdmin       UserRole = "ADMIN"
	RoleHeadteacher UserRole = "HEADTEACHER"
	RoleTeacher     UserRole = "TEACHER"
)

// ParseUserRole normalises a role claim. Unknown roles report false.
func ParseUserRole(raw string) (UserRole, bool) {
	role := UserRole(strings.ToUpper(strings.TrimSpace(raw)))
	switch role {
	case RoleAdmin, RoleHeadteacher, RoleTeacher:
		return role, true
	}
	return "", false
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
