package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/basic-school-api/internal/models"
)

// ErrGradeFinalized is returned when an upsert targets a finalized grade.
var ErrGradeFinalized = errors.New("grade is finalized")

const gradeColumns = `g.id, g.student_id, g.subject_id, g.class_id, g.term_id, g.project, g.test1, g.test2, g.group_work, g.exam,
        g.class_score, g.exam_score, g.total_score, g.grade_code, g.grade_name, g.grading_system_id, g.finalized, g.created_at, g.updated_at`

const upsertGradeQuery = `INSERT INTO grades (id, student_id, subject_id, class_id, term_id, project, test1, test2, group_work, exam,
        class_score, exam_score, total_score, grade_code, grade_name, grading_system_id, finalized, created_at, updated_at)
        VALUES (:id, :student_id, :subject_id, :class_id, :term_id, :project, :test1, :test2, :group_work, :exam,
        :class_score, :exam_score, :total_score, :grade_code, :grade_name, :grading_system_id, FALSE, :created_at, :updated_at)
        ON CONFLICT (student_id, subject_id, term_id)
        DO UPDATE SET class_id = EXCLUDED.class_id, project = EXCLUDED.project, test1 = EXCLUDED.test1, test2 = EXCLUDED.test2,
        group_work = EXCLUDED.group_work, exam = EXCLUDED.exam, class_score = EXCLUDED.class_score, exam_score = EXCLUDED.exam_score,
        total_score = EXCLUDED.total_score, grade_code = EXCLUDED.grade_code, grade_name = EXCLUDED.grade_name,
        grading_system_id = EXCLUDED.grading_system_id, updated_at = EXCLUDED.updated_at
        WHERE grades.finalized = FALSE
        RETURNING id, created_at`

// GradeRepository handles grade persistence.
type GradeRepository struct {
	db *sqlx.DB
}

// NewGradeRepository creates a new grade repository.
func NewGradeRepository(db *sqlx.DB) *GradeRepository {
	return &GradeRepository{db: db}
}

// List returns grades matching the filter.
func (r *GradeRepository) List(ctx context.Context, filter models.GradeFilter) ([]models.Grade, error) {
	query := "SELECT " + gradeColumns + " FROM grades g WHERE 1=1"
	var args []interface{}
	if filter.StudentID != "" {
		query += fmt.Sprintf(" AND g.student_id = $%d", len(args)+1)
		args = append(args, filter.StudentID)
	}
	if filter.SubjectID != "" {
		query += fmt.Sprintf(" AND g.subject_id = $%d", len(args)+1)
		args = append(args, filter.SubjectID)
	}
	if filter.ClassID != "" {
		query += fmt.Sprintf(" AND g.class_id = $%d", len(args)+1)
		args = append(args, filter.ClassID)
	}
	if filter.TermID != "" {
		query += fmt.Sprintf(" AND g.term_id = $%d", len(args)+1)
		args = append(args, filter.TermID)
	}
	if filter.Finalized != nil {
		query += fmt.Sprintf(" AND g.finalized = $%d", len(args)+1)
		args = append(args, *filter.Finalized)
	}
	query += " ORDER BY g.updated_at DESC"
	var grades []models.Grade
	if err := r.db.SelectContext(ctx, &grades, query, args...); err != nil {
		return nil, fmt.Errorf("list grades: %w", err)
	}
	return grades, nil
}

// Upsert inserts or updates a grade and loads the stored id and created_at
// back into it. ErrGradeFinalized when the stored row is finalized.
func (r *GradeRepository) Upsert(ctx context.Context, grade *models.Grade) error {
	prepareGrade(grade, time.Now().UTC())
	if err := upsertGrade(ctx, r.db, grade); err != nil {
		return fmt.Errorf("upsert grade: %w", err)
	}
	return nil
}

// BulkUpsert upserts every grade in one transaction; any failure rolls all back.
func (r *GradeRepository) BulkUpsert(ctx context.Context, grades []models.Grade) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	for i := range grades {
		prepareGrade(&grades[i], now)
		if err := upsertGrade(ctx, tx, &grades[i]); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("bulk upsert grade for student %s: %w", grades[i].StudentID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit grades: %w", err)
	}
	return nil
}

// Finalize locks the grades of a class, subject and term and reports how many changed.
func (r *GradeRepository) Finalize(ctx context.Context, classID, subjectID, termID string) (int64, error) {
	const query = `UPDATE grades SET finalized = TRUE, updated_at = $4
        WHERE class_id = $1 AND subject_id = $2 AND term_id = $3 AND finalized = FALSE`
	res, err := r.db.ExecContext(ctx, query, classID, subjectID, termID, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("finalize grades: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("finalize grades: %w", err)
	}
	return n, nil
}

// UpdateBands rewrites band snapshots of non-finalized grades in one transaction.
func (r *GradeRepository) UpdateBands(ctx context.Context, updates []models.GradeBandUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	const query = `UPDATE grades SET grade_code = :grade_code, grade_name = :grade_name, grading_system_id = :grading_system_id, updated_at = NOW()
        WHERE id = :id AND finalized = FALSE`
	for _, u := range updates {
		if _, err := tx.NamedExecContext(ctx, query, u); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("update grade band: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit grade bands: %w", err)
	}
	return nil
}

// ReportCard returns a student's subject lines for a term.
func (r *GradeRepository) ReportCard(ctx context.Context, studentID, termID string) ([]models.ReportCardSubject, error) {
	const query = `SELECT g.subject_id, s.code AS subject_code, s.name AS subject_name, g.class_score, g.exam_score, g.total_score,
        g.grade_code, g.grade_name, g.finalized
        FROM grades g
        JOIN subjects s ON s.id = g.subject_id
        WHERE g.student_id = $1 AND g.term_id = $2
        ORDER BY s.is_core DESC, s.name`
	var rows []models.ReportCardSubject
	if err := r.db.SelectContext(ctx, &rows, query, studentID, termID); err != nil {
		return nil, fmt.Errorf("report card: %w", err)
	}
	return rows, nil
}

// ClassReportRows returns the class's totals for a subject and term, best first.
func (r *GradeRepository) ClassReportRows(ctx context.Context, classID, subjectID, termID string) ([]models.ClassReportRow, error) {
	const query = `SELECT g.student_id, TRIM(st.first_name || ' ' || st.last_name) AS student_name, g.total_score, g.grade_code
        FROM grades g
        JOIN students st ON st.id = g.student_id
        WHERE g.class_id = $1 AND g.subject_id = $2 AND g.term_id = $3
        ORDER BY g.total_score DESC, student_name`
	var rows []models.ClassReportRow
	if err := r.db.SelectContext(ctx, &rows, query, classID, subjectID, termID); err != nil {
		return nil, fmt.Errorf("class report: %w", err)
	}
	return rows, nil
}

func prepareGrade(grade *models.Grade, now time.Time) {
	if grade.ID == "" {
		grade.ID = uuid.NewString()
	}
	if grade.CreatedAt.IsZero() {
		grade.CreatedAt = now
	}
	grade.UpdatedAt = now
}

// upsertGrade runs the upsert and scans the surviving row's identity. No
// returned row means the conflict update was blocked by a finalized grade.
func upsertGrade(ctx context.Context, q sqlx.ExtContext, grade *models.Grade) error {
	rows, err := sqlx.NamedQueryContext(ctx, q, upsertGradeQuery, grade)
	if err != nil {
		return err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return err
		}
		return ErrGradeFinalized
	}
	return rows.Scan(&grade.ID, &grade.CreatedAt)
}
