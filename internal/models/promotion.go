package models

// Progression actions for a class at the end of the year.
const (
	ProgressionPromote  = "PROMOTE"
	ProgressionGraduate = "GRADUATE"
)

// ProgressionFailure records a student that could not be moved.
type ProgressionFailure struct {
	StudentID   string `json:"student_id"`
	StudentName string `json:"student_name,omitempty"`
	Reason      string `json:"reason"`
}

// PromotionResult summarises a class promotion.
type PromotionResult struct {
	SourceClassID string               `json:"source_class_id"`
	TargetClassID string               `json:"target_class_id"`
	FromLevel     int                  `json:"from_level"`
	ToLevel       int                  `json:"to_level"`
	Promoted      []string             `json:"promoted"`
	Failures      []ProgressionFailure `json:"failures,omitempty"`
}

// GraduateSummary describes one graduated student and their BECE standing.
type GraduateSummary struct {
	StudentID        string `json:"student_id"`
	StudentName      string `json:"student_name"`
	Aggregate        *int   `json:"aggregate"`
	AggregateDisplay string `json:"aggregate_display"`
	Classification   string `json:"classification"`
}

// GraduationResult summarises a class graduation.
type GraduationResult struct {
	ClassID        string               `json:"class_id"`
	GraduationYear int                  `json:"graduation_year"`
	Graduated      []GraduateSummary    `json:"graduated"`
	Failures       []ProgressionFailure `json:"failures,omitempty"`
}

// ClassProgression describes what happens to a class at the end of the year.
type ClassProgression struct {
	ClassID        string  `json:"class_id"`
	Level          int     `json:"level"`
	LevelName      string  `json:"level_name"`
	Category       string  `json:"category"`
	IsHighestLevel bool    `json:"is_highest_level"`
	Action         string  `json:"action"`
	NextLevel      *int    `json:"next_level,omitempty"`
	NextLevelName  string  `json:"next_level_name,omitempty"`
	TargetClasses  []Class `json:"target_classes,omitempty"`
	ActiveStudents int     `json:"active_students"`
}
