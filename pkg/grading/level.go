package grading

import (
	"fmt"
	"strconv"
	"strings"
)

// Level is the ordinal position of a class in the school.
type Level int

// Known class levels, lowest first.
const (
	KG1 Level = iota + 1
	KG2
	Basic1
	Basic2
	Basic3
	Basic4
	Basic5
	Basic6
	Basic7
	Basic8
	Basic9
)

// HighestLevel is the terminal level; its classes graduate instead of promoting.
const HighestLevel = Basic9

// Category groups levels for subject applicability.
type Category string

// Level categories.
const (
	CategoryKG           Category = "KG"
	CategoryLowerPrimary Category = "Lower Primary"
	CategoryUpperPrimary Category = "Upper Primary"
	CategoryJHS          Category = "JHS"
)

// Valid reports whether l is a known level.
func (l Level) Valid() bool {
	return l >= KG1 && l <= HighestLevel
}

// String returns the display name, e.g. "KG 2" or "Basic 7".
func (l Level) String() string {
	name, err := LevelName(l)
	if err != nil {
		return fmt.Sprintf("Level(%d)", int(l))
	}
	return name
}

// Levels returns every level in order.
func Levels() []Level {
	levels := make([]Level, 0, int(HighestLevel))
	for l := KG1; l <= HighestLevel; l++ {
		levels = append(levels, l)
	}
	return levels
}

// Categories returns the categories in level order.
func Categories() []Category {
	return []Category{CategoryKG, CategoryLowerPrimary, CategoryUpperPrimary, CategoryJHS}
}

// NextLevel returns the level after l, or nil when l is the highest level.
func NextLevel(l Level) (*Level, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLevel, int(l))
	}
	if l == HighestLevel {
		return nil, nil
	}
	next := l + 1
	return &next, nil
}

// IsHighestLevel reports whether l is the terminal level.
func IsHighestLevel(l Level) bool {
	return l == HighestLevel
}

// LevelCategory returns the category l belongs to.
func LevelCategory(l Level) (Category, error) {
	switch {
	case l >= KG1 && l <= KG2:
		return CategoryKG, nil
	case l >= Basic1 && l <= Basic3:
		return CategoryLowerPrimary, nil
	case l >= Basic4 && l <= Basic6:
		return CategoryUpperPrimary, nil
	case l >= Basic7 && l <= Basic9:
		return CategoryJHS, nil
	default:
		return "", fmt.Errorf("%w: %d", ErrInvalidLevel, int(l))
	}
}

// LevelName returns the display name of l.
func LevelName(l Level) (string, error) {
	switch {
	case l >= KG1 && l <= KG2:
		return fmt.Sprintf("KG %d", int(l-KG1)+1), nil
	case l >= Basic1 && l <= Basic9:
		return fmt.Sprintf("Basic %d", int(l-Basic1)+1), nil
	default:
		return "", fmt.Errorf("%w: %d", ErrInvalidLevel, int(l))
	}
}

// ParseLevel accepts display names ("KG 1", "basic9", "JHS 2") or the numeric index.
func ParseLevel(raw string) (Level, error) {
	s := strings.ToUpper(strings.Join(strings.Fields(raw), ""))
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidLevel)
	}
	var (
		base   Level
		digits string
	)
	switch {
	case strings.HasPrefix(s, "KG"):
		base, digits = KG1, strings.TrimPrefix(s, "KG")
	case strings.HasPrefix(s, "BASIC"):
		base, digits = Basic1, strings.TrimPrefix(s, "BASIC")
	case strings.HasPrefix(s, "JHS"):
		base, digits = Basic7, strings.TrimPrefix(s, "JHS")
	default:
		n, err := strconv.Atoi(s)
		if err != nil || !Level(n).Valid() {
			return 0, fmt.Errorf("%w: %q", ErrInvalidLevel, raw)
		}
		return Level(n), nil
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidLevel, raw)
	}
	l := base + Level(n-1)
	upper := HighestLevel
	if base == KG1 {
		upper = KG2
	}
	if l > upper || !l.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidLevel, raw)
	}
	return l, nil
}
