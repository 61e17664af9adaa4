package models

import (
	"time"

	"github.com/noah-isme/basic-school-api/pkg/grading"
)

// GradingSystem is a named set of grade bands. Exactly one system is active at a time.
type GradingSystem struct {
	ID          string              `db:"id" json:"id"`
	Name        string              `db:"name" json:"name"`
	Description *string             `db:"description" json:"description,omitempty"`
	IsActive    bool                `db:"is_active" json:"is_active"`
	CreatedAt   time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time           `db:"updated_at" json:"updated_at"`
	Bands       []GradingSystemBand `db:"-" json:"bands"`
	// IsDefault marks the built-in scale served while no system is active.
	IsDefault bool `db:"-" json:"is_default,omitempty"`
}

// GradingSystemBand is a persisted grade band.
type GradingSystemBand struct {
	ID              string  `db:"id" json:"id"`
	GradingSystemID string  `db:"grading_system_id" json:"grading_system_id"`
	Code            string  `db:"code" json:"code"`
	Name            string  `db:"name" json:"name"`
	MinPercentage   float64 `db:"min_percentage" json:"min_percentage"`
	MaxPercentage   float64 `db:"max_percentage" json:"max_percentage"`
	SortOrder       int     `db:"sort_order" json:"order"`
}

// GradeBands converts the persisted bands into scoring bands.
func (g *GradingSystem) GradeBands() []grading.GradeBand {
	if g == nil {
		return nil
	}
	bands := make([]grading.GradeBand, len(g.Bands))
	for i, b := range g.Bands {
		bands[i] = grading.GradeBand{
			Code:          b.Code,
			Name:          b.Name,
			MinPercentage: b.MinPercentage,
			MaxPercentage: b.MaxPercentage,
			Order:         b.SortOrder,
		}
	}
	return bands
}

// BandsFromGrading builds persisted bands for systemID.
func BandsFromGrading(systemID string, bands []grading.GradeBand) []GradingSystemBand {
	out := make([]GradingSystemBand, len(bands))
	for i, b := range bands {
		out[i] = GradingSystemBand{
			GradingSystemID: systemID,
			Code:            b.Code,
			Name:            b.Name,
			MinPercentage:   b.MinPercentage,
			MaxPercentage:   b.MaxPercentage,
			SortOrder:       b.Order,
		}
	}
	return out
}
