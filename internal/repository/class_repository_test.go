package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/basic-school-api/internal/models"
)

func TestClassRepositoryListByLevel(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewClassRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM classes WHERE level = $1 AND academic_year = $2 ORDER BY name")).
		WithArgs(10, "2025/2026").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "level", "academic_year", "class_teacher_id", "created_at", "updated_at"}).
			AddRow("c8", "Basic 8", 10, "2025/2026", nil, now, now))

	classes, err := repo.ListByLevel(context.Background(), 10, "2025/2026")
	require.NoError(t, err)
	require.Len(t, classes, 1)
	assert.Equal(t, 10, classes[0].Level)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassRepositoryListWithLevelFilter(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewClassRepository(db)

	level := 3
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM classes c WHERE 1=1 AND c.level = $1 ORDER BY c.level ASC, c.name LIMIT 20 OFFSET 0")).
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "level", "academic_year", "class_teacher_id", "created_at", "updated_at", "student_count"}).
			AddRow("c1", "Basic 1", 3, "2025/2026", nil, now, now, 31))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM classes c WHERE 1=1 AND c.level = $1")).
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	classes, total, err := repo.List(context.Background(), models.ClassFilter{Level: &level})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, classes, 1)
	assert.Equal(t, 31, classes[0].StudentCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassRepositoryUpdateMissing(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewClassRepository(db)

	mock.ExpectExec("UPDATE classes SET").WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(context.Background(), &models.Class{ID: "missing", Name: "X", Level: 3})
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}
