package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/basic-school-api/internal/models"
)

const subjectColumns = "id, code, name, category, is_core, created_at, updated_at"

// SubjectRepository handles persistence for subjects.
type SubjectRepository struct {
	db *sqlx.DB
}

// NewSubjectRepository creates a new repository instance.
func NewSubjectRepository(db *sqlx.DB) *SubjectRepository {
	return &SubjectRepository{db: db}
}

// List returns subjects matching filters ordered by name.
func (r *SubjectRepository) List(ctx context.Context, filter models.SubjectFilter) ([]models.Subject, error) {
	query := "SELECT " + subjectColumns + " FROM subjects WHERE 1=1"
	var args []interface{}
	if filter.Category != "" {
		query += fmt.Sprintf(" AND category = $%d", len(args)+1)
		args = append(args, filter.Category)
	}
	if filter.IsCore != nil {
		query += fmt.Sprintf(" AND is_core = $%d", len(args)+1)
		args = append(args, *filter.IsCore)
	}
	if filter.Search != "" {
		query += fmt.Sprintf(" AND (LOWER(code) LIKE $%d OR LOWER(name) LIKE $%d)", len(args)+1, len(args)+1)
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	query += " ORDER BY name"
	var subjects []models.Subject
	if err := r.db.SelectContext(ctx, &subjects, query, args...); err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	return subjects, nil
}

// ListForCategory returns subjects of a level category together with core subjects.
func (r *SubjectRepository) ListForCategory(ctx context.Context, category string) ([]models.Subject, error) {
	query := "SELECT " + subjectColumns + " FROM subjects WHERE category = $1 OR is_core = TRUE ORDER BY is_core DESC, name"
	var subjects []models.Subject
	if err := r.db.SelectContext(ctx, &subjects, query, category); err != nil {
		return nil, fmt.Errorf("list subjects for category: %w", err)
	}
	return subjects, nil
}

// FindByID fetches a subject by ID.
func (r *SubjectRepository) FindByID(ctx context.Context, id string) (*models.Subject, error) {
	var subject models.Subject
	if err := r.db.GetContext(ctx, &subject, "SELECT "+subjectColumns+" FROM subjects WHERE id = $1", id); err != nil {
		return nil, err
	}
	return &subject, nil
}

// ExistsByCode reports whether a subject code is already used.
func (r *SubjectRepository) ExistsByCode(ctx context.Context, code string) (bool, error) {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, "SELECT EXISTS(SELECT 1 FROM subjects WHERE UPPER(code) = UPPER($1))", code); err != nil {
		return false, fmt.Errorf("check subject code: %w", err)
	}
	return exists, nil
}

// Create inserts a subject.
func (r *SubjectRepository) Create(ctx context.Context, subject *models.Subject) error {
	if subject.ID == "" {
		subject.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if subject.CreatedAt.IsZero() {
		subject.CreatedAt = now
	}
	subject.UpdatedAt = now
	const query = `INSERT INTO subjects (id, code, name, category, is_core, created_at, updated_at)
        VALUES (:id, :code, :name, :category, :is_core, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, subject); err != nil {
		return fmt.Errorf("create subject: %w", err)
	}
	return nil
}
