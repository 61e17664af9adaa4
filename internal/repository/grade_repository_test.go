package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/basic-school-api/internal/models"
)

func gradeArgs() []driver.Value {
	args := make([]driver.Value, 18)
	for i := range args {
		args[i] = sqlmock.AnyArg()
	}
	return args
}

func TestGradeRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	finalized := false
	mock.ExpectQuery(regexp.QuoteMeta("FROM grades g WHERE 1=1 AND g.class_id = $1 AND g.term_id = $2 AND g.finalized = $3 ORDER BY g.updated_at DESC")).
		WithArgs("class-1", "term-1", false).
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_id", "total_score", "grade_code"}).AddRow("g1", "stu-1", 83.0, "A"))

	grades, err := repo.List(context.Background(), models.GradeFilter{ClassID: "class-1", TermID: "term-1", Finalized: &finalized})
	require.NoError(t, err)
	require.Len(t, grades, 1)
	assert.Equal(t, 83.0, grades[0].TotalScore)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeRepositoryUpsertFinalized(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (student_id, subject_id, term_id)")).
		WithArgs(gradeArgs()...).
		WillReturnRows(sqlmock.NewRows(returnedGradeCols))

	err := repo.Upsert(context.Background(), &models.Grade{StudentID: "stu-1", SubjectID: "sub-1", TermID: "term-1"})
	assert.True(t, errors.Is(err, ErrGradeFinalized))
	assert.NoError(t, mock.ExpectationsWereMet())
}

var returnedGradeCols = []string{"id", "created_at"}

func TestGradeRepositoryUpsertKeepsStoredIdentity(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	created := time.Date(2025, 9, 15, 8, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("RETURNING id, created_at")).
		WithArgs(gradeArgs()...).
		WillReturnRows(sqlmock.NewRows(returnedGradeCols).AddRow("grade-existing", created))

	grade := &models.Grade{StudentID: "stu-1", SubjectID: "sub-1", TermID: "term-1", TotalScore: 83}
	require.NoError(t, repo.Upsert(context.Background(), grade))
	assert.Equal(t, "grade-existing", grade.ID)
	assert.True(t, created.Equal(grade.CreatedAt))
	assert.False(t, grade.UpdatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeRepositoryBulkUpsertRollsBack(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO grades").WithArgs(gradeArgs()...).
		WillReturnRows(sqlmock.NewRows(returnedGradeCols).AddRow("grade-a", time.Now()))
	mock.ExpectQuery("INSERT INTO grades").WithArgs(gradeArgs()...).
		WillReturnRows(sqlmock.NewRows(returnedGradeCols))
	mock.ExpectRollback()

	grades := []models.Grade{{StudentID: "a"}, {StudentID: "b"}}
	err := repo.BulkUpsert(context.Background(), grades)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrGradeFinalized))
	assert.Contains(t, err.Error(), "student b")
	assert.Equal(t, "grade-a", grades[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeRepositoryFinalize(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE grades SET finalized = TRUE")).
		WithArgs("class-1", "sub-1", "term-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 12))

	n, err := repo.Finalize(context.Background(), "class-1", "sub-1", "term-1")
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeRepositoryUpdateBands(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	systemID := "gs-1"
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE grades SET grade_code = ")).
		WithArgs("P", "Proficient", "gs-1", "g1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.UpdateBands(context.Background(), []models.GradeBandUpdate{{ID: "g1", GradeCode: "P", GradeName: "Proficient", GradingSystemID: &systemID}})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())

	assert.NoError(t, repo.UpdateBands(context.Background(), nil))
}

func TestGradeRepositoryClassReportRows(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	mock.ExpectQuery("FROM grades g\\s+JOIN students st").
		WithArgs("class-1", "sub-1", "term-1").
		WillReturnRows(sqlmock.NewRows([]string{"student_id", "student_name", "total_score", "grade_code"}).
			AddRow("s1", "Ama Mensah", 91.5, "A").
			AddRow("s2", "Kofi Boateng", 62.0, "AP"))

	rows, err := repo.ClassReportRows(context.Background(), "class-1", "sub-1", "term-1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Ama Mensah", rows[0].StudentName)
	assert.NoError(t, mock.ExpectationsWereMet())
}
