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

const classDetailSelect = `SELECT c.id, c.name, c.level, c.academic_year, c.class_teacher_id, c.created_at, c.updated_at,
        (SELECT COUNT(*) FROM students s WHERE s.class_id = c.id AND s.status = 'ACTIVE') AS student_count
        FROM classes c`

// ClassRepository manages persistence for classes.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository constructs a new class repository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

// List returns classes matching filter criteria.
func (r *ClassRepository) List(ctx context.Context, filter models.ClassFilter) ([]models.ClassDetail, int, error) {
	var conditions []string
	var args []interface{}

	if filter.Level != nil {
		conditions = append(conditions, fmt.Sprintf("c.level = $%d", len(args)+1))
		args = append(args, *filter.Level)
	}
	if filter.AcademicYear != "" {
		conditions = append(conditions, fmt.Sprintf("c.academic_year = $%d", len(args)+1))
		args = append(args, filter.AcademicYear)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(c.name) LIKE $%d", len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	where := " WHERE 1=1"
	if len(conditions) > 0 {
		where += " AND " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]bool{"name": true, "level": true, "academic_year": true, "created_at": true}
	sortBy := filter.SortBy
	if !allowedSorts[sortBy] {
		sortBy = "level"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}
	page, size := normalizePage(filter.Page, filter.PageSize)
	offset := (page - 1) * size

	query := fmt.Sprintf("%s%s ORDER BY c.%s %s, c.name LIMIT %d OFFSET %d", classDetailSelect, where, sortBy, order, size, offset)
	var classes []models.ClassDetail
	if err := r.db.SelectContext(ctx, &classes, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list classes: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM classes c"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count classes: %w", err)
	}
	return classes, total, nil
}

// FindByID returns a class with its active student count.
func (r *ClassRepository) FindByID(ctx context.Context, id string) (*models.ClassDetail, error) {
	var class models.ClassDetail
	if err := r.db.GetContext(ctx, &class, classDetailSelect+" WHERE c.id = $1", id); err != nil {
		return nil, err
	}
	return &class, nil
}

// ListByLevel returns the classes at level for an academic year. An empty year matches all.
func (r *ClassRepository) ListByLevel(ctx context.Context, level int, academicYear string) ([]models.Class, error) {
	query := "SELECT id, name, level, academic_year, class_teacher_id, created_at, updated_at FROM classes WHERE level = $1"
	args := []interface{}{level}
	if academicYear != "" {
		query += " AND academic_year = $2"
		args = append(args, academicYear)
	}
	query += " ORDER BY name"
	var classes []models.Class
	if err := r.db.SelectContext(ctx, &classes, query, args...); err != nil {
		return nil, fmt.Errorf("list classes by level: %w", err)
	}
	return classes, nil
}

// Create inserts a new class.
func (r *ClassRepository) Create(ctx context.Context, class *models.Class) error {
	if class.ID == "" {
		class.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if class.CreatedAt.IsZero() {
		class.CreatedAt = now
	}
	class.UpdatedAt = now
	const query = `INSERT INTO classes (id, name, level, academic_year, class_teacher_id, created_at, updated_at)
        VALUES (:id, :name, :level, :academic_year, :class_teacher_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, class); err != nil {
		return fmt.Errorf("create class: %w", err)
	}
	return nil
}

// Update modifies an existing class. sql.ErrNoRows when it does not exist.
func (r *ClassRepository) Update(ctx context.Context, class *models.Class) error {
	class.UpdatedAt = time.Now().UTC()
	const query = `UPDATE classes SET name = :name, level = :level, academic_year = :academic_year, class_teacher_id = :class_teacher_id, updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, class)
	if err != nil {
		return fmt.Errorf("update class: %w", err)
	}
	return requireAffected(res)
}

// ExistsByName reports whether a class name is taken within an academic year.
func (r *ClassRepository) ExistsByName(ctx context.Context, name, academicYear, excludeID string) (bool, error) {
	query := "SELECT EXISTS(SELECT 1 FROM classes WHERE LOWER(name) = LOWER($1) AND academic_year = $2"
	args := []interface{}{name, academicYear}
	if excludeID != "" {
		query += " AND id <> $3"
		args = append(args, excludeID)
	}
	query += ")"
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, args...); err != nil {
		return false, fmt.Errorf("check class name: %w", err)
	}
	return exists, nil
}
