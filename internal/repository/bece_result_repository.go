package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/basic-school-api/internal/models"
)

const beceColumns = "id, student_id, class_id, subject, grade, exam_year, created_at, updated_at"

// BECEResultRepository persists BECE subject grades.
type BECEResultRepository struct {
	db *sqlx.DB
}

// NewBECEResultRepository constructs the repository.
func NewBECEResultRepository(db *sqlx.DB) *BECEResultRepository {
	return &BECEResultRepository{db: db}
}

// Upsert stores results in one transaction, replacing the grade of an existing
// student/subject/year row. Subjects match case-insensitively, backed by the
// unique index on (student_id, lower(subject), exam_year).
func (r *BECEResultRepository) Upsert(ctx context.Context, results []models.BECEResult) error {
	if len(results) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	const query = `INSERT INTO bece_results (id, student_id, class_id, subject, grade, exam_year, created_at, updated_at)
        VALUES (:id, :student_id, :class_id, :subject, :grade, :exam_year, :created_at, :updated_at)
        ON CONFLICT (student_id, (lower(subject)), exam_year)
        DO UPDATE SET subject = EXCLUDED.subject, grade = EXCLUDED.grade, class_id = COALESCE(EXCLUDED.class_id, bece_results.class_id), updated_at = EXCLUDED.updated_at`
	now := time.Now().UTC()
	for i := range results {
		if results[i].ID == "" {
			results[i].ID = uuid.NewString()
		}
		if results[i].CreatedAt.IsZero() {
			results[i].CreatedAt = now
		}
		results[i].UpdatedAt = now
		if _, err := tx.NamedExecContext(ctx, query, results[i]); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("upsert bece result: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit bece results: %w", err)
	}
	return nil
}

// ListByStudent returns a student's results for a year. A zero year returns the latest sitting.
func (r *BECEResultRepository) ListByStudent(ctx context.Context, studentID string, year int) ([]models.BECEResult, error) {
	query := "SELECT " + beceColumns + " FROM bece_results WHERE student_id = $1"
	args := []interface{}{studentID}
	if year > 0 {
		query += " AND exam_year = $2"
		args = append(args, year)
	} else {
		query += " AND exam_year = (SELECT MAX(exam_year) FROM bece_results WHERE student_id = $1)"
	}
	query += " ORDER BY subject"
	var results []models.BECEResult
	if err := r.db.SelectContext(ctx, &results, query, args...); err != nil {
		return nil, fmt.Errorf("list student bece results: %w", err)
	}
	return results, nil
}

// ListByStudents returns the results of several students for a year keyed by student.
func (r *BECEResultRepository) ListByStudents(ctx context.Context, studentIDs []string, year int) (map[string][]models.BECEResult, error) {
	out := make(map[string][]models.BECEResult, len(studentIDs))
	if len(studentIDs) == 0 {
		return out, nil
	}
	query := "SELECT " + beceColumns + " FROM bece_results WHERE student_id = ANY($1) AND exam_year = $2 ORDER BY student_id, subject"
	var results []models.BECEResult
	if err := r.db.SelectContext(ctx, &results, query, pq.Array(studentIDs), year); err != nil {
		return nil, fmt.Errorf("list bece results: %w", err)
	}
	for _, res := range results {
		out[res.StudentID] = append(out[res.StudentID], res)
	}
	return out, nil
}

// ListByClass returns every result recorded from a class for a year with student names.
func (r *BECEResultRepository) ListByClass(ctx context.Context, classID string, year int) ([]models.BECEClassRow, error) {
	const query = `SELECT b.id, b.student_id, b.class_id, b.subject, b.grade, b.exam_year, b.created_at, b.updated_at,
        TRIM(s.first_name || ' ' || s.last_name) AS student_name
        FROM bece_results b
        JOIN students s ON s.id = b.student_id
        WHERE b.class_id = $1 AND b.exam_year = $2
        ORDER BY student_name, b.subject`
	var rows []models.BECEClassRow
	if err := r.db.SelectContext(ctx, &rows, query, classID, year); err != nil {
		return nil, fmt.Errorf("list class bece results: %w", err)
	}
	return rows, nil
}
