package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/basic-school-api/internal/models"
)

const termColumns = "id, name, academic_year, start_date, end_date, is_active, created_at, updated_at"

// TermRepository reads academic terms.
type TermRepository struct {
	db *sqlx.DB
}

// NewTermRepository instantiates a term repository.
func NewTermRepository(db *sqlx.DB) *TermRepository {
	return &TermRepository{db: db}
}

// List returns terms matching provided filters, latest first.
func (r *TermRepository) List(ctx context.Context, filter models.TermFilter) ([]models.Term, error) {
	query := "SELECT " + termColumns + " FROM terms WHERE 1=1"
	var args []interface{}
	if filter.AcademicYear != "" {
		query += fmt.Sprintf(" AND academic_year = $%d", len(args)+1)
		args = append(args, filter.AcademicYear)
	}
	if filter.IsActive != nil {
		query += fmt.Sprintf(" AND is_active = $%d", len(args)+1)
		args = append(args, *filter.IsActive)
	}
	query += " ORDER BY start_date DESC"
	var terms []models.Term
	if err := r.db.SelectContext(ctx, &terms, query, args...); err != nil {
		return nil, fmt.Errorf("list terms: %w", err)
	}
	return terms, nil
}

// FindByID returns a term by ID.
func (r *TermRepository) FindByID(ctx context.Context, id string) (*models.Term, error) {
	var term models.Term
	if err := r.db.GetContext(ctx, &term, "SELECT "+termColumns+" FROM terms WHERE id = $1", id); err != nil {
		return nil, err
	}
	return &term, nil
}

// FindActive returns the active term. sql.ErrNoRows when none is active.
func (r *TermRepository) FindActive(ctx context.Context) (*models.Term, error) {
	var term models.Term
	if err := r.db.GetContext(ctx, &term, "SELECT "+termColumns+" FROM terms WHERE is_active = TRUE ORDER BY start_date DESC LIMIT 1"); err != nil {
		return nil, err
	}
	return &term, nil
}
