package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/basic-school-api/internal/models"
)

const studentDetailColumns = `s.id, s.student_number, s.first_name, s.last_name, s.gender, s.date_of_birth, s.class_id, s.status,
        s.graduation_year, s.graduated_class_id, s.created_at, s.updated_at, c.name AS class_name, c.level AS class_level`

// StudentRepository manages persistence for student records.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// List returns students matching the provided filters.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error) {
	base := "FROM students s LEFT JOIN classes c ON c.id = s.class_id"
	var args []interface{}
	conditions := []string{"1=1"}

	if filter.ClassID != "" {
		conditions = append(conditions, fmt.Sprintf("s.class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("s.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(s.first_name || ' ' || s.last_name) LIKE $%d OR LOWER(s.student_number) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	allowedSorts := map[string]string{
		"last_name":      "s.last_name",
		"student_number": "s.student_number",
		"created_at":     "s.created_at",
	}
	column, ok := allowedSorts[filter.SortBy]
	if !ok {
		column = "s.last_name"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}
	page, size := normalizePage(filter.Page, filter.PageSize)
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", studentDetailColumns, base, column, order, size, offset)

	var students []models.StudentDetail
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// FindByID fetches a student detail by ID.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	query := fmt.Sprintf("SELECT %s FROM students s LEFT JOIN classes c ON c.id = s.class_id WHERE s.id = $1", studentDetailColumns)
	var detail models.StudentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ListActiveByClass returns the ACTIVE students currently in a class.
func (r *StudentRepository) ListActiveByClass(ctx context.Context, classID string) ([]models.Student, error) {
	const query = `SELECT id, student_number, first_name, last_name, gender, date_of_birth, class_id, status, graduation_year, graduated_class_id, created_at, updated_at
        FROM students WHERE class_id = $1 AND status = $2 ORDER BY last_name, first_name`
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, classID, models.StudentStatusActive); err != nil {
		return nil, fmt.Errorf("list class students: %w", err)
	}
	return students, nil
}

// MoveToClass moves an ACTIVE student from one class to another.
// sql.ErrNoRows when the student is no longer active in the source class.
func (r *StudentRepository) MoveToClass(ctx context.Context, studentID, fromClassID, toClassID string) error {
	const query = `UPDATE students SET class_id = $3, updated_at = $4 WHERE id = $1 AND class_id = $2 AND status = $5`
	res, err := r.db.ExecContext(ctx, query, studentID, fromClassID, toClassID, time.Now().UTC(), models.StudentStatusActive)
	if err != nil {
		return fmt.Errorf("move student: %w", err)
	}
	return requireAffected(res)
}

// MarkGraduated graduates an ACTIVE student of classID, detaching them from the
// class and remembering it as graduated_class_id.
func (r *StudentRepository) MarkGraduated(ctx context.Context, studentID, classID string, year int) error {
	const query = `UPDATE students SET status = $3, graduation_year = $4, graduated_class_id = class_id, class_id = NULL, updated_at = $5
        WHERE id = $1 AND class_id = $2 AND status = $6`
	res, err := r.db.ExecContext(ctx, query, studentID, classID, models.StudentStatusGraduated, year, time.Now().UTC(), models.StudentStatusActive)
	if err != nil {
		return fmt.Errorf("graduate student: %w", err)
	}
	return requireAffected(res)
}

func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return page, size
}
