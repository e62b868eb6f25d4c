package repository

import (
	"context"
	"database/sql/driver"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/tutorbase/tutorbase-api/internal/models"
)

func newPeriodRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

var periodRowColumns = []string{
	"id", "tutor_id", "student_id", "subject", "start_date", "end_date", "status", "created_at", "updated_at",
}

func periodRow(id, status string) []driver.Value {
	now := time.Now()
	return []driver.Value{id, "tutor-1", "student-1", "Math", "2026-09-01", nil, status, now, now}
}

func TestTeachingPeriodRepositoryCreateAssignsDefaults(t *testing.T) {
	db, mock, cleanup := newPeriodRepoMock(t)
	defer cleanup()

	repo := NewTeachingPeriodRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO teaching_periods")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	period := &models.TeachingPeriod{
		TutorID: "tutor-1", StudentID: "student-1", Subject: "Math", StartDate: "2026-09-01",
	}
	require.NoError(t, repo.Create(context.Background(), period))
	require.NotEmpty(t, period.ID)
	require.Equal(t, models.TeachingPeriodStatusActive, period.Status)
	require.False(t, period.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTeachingPeriodRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newPeriodRepoMock(t)
	defer cleanup()

	repo := NewTeachingPeriodRepository(db)
	rows := sqlmock.NewRows(periodRowColumns).AddRow(periodRow("period-1", "active")...)
	mock.ExpectQuery(regexp.QuoteMeta("FROM teaching_periods WHERE id = $1")).
		WithArgs("period-1").
		WillReturnRows(rows)

	period, err := repo.FindByID(context.Background(), "period-1")
	require.NoError(t, err)
	require.Equal(t, "period-1", period.ID)
	require.Equal(t, models.TeachingPeriodStatusActive, period.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTeachingPeriodRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newPeriodRepoMock(t)
	defer cleanup()

	repo := NewTeachingPeriodRepository(db)
	rows := sqlmock.NewRows(periodRowColumns).AddRow(periodRow("period-1", "active")...)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE tutor_id = $1 AND status = $2")).
		WithArgs("tutor-1", "active").
		WillReturnRows(rows)

	periods, err := repo.List(context.Background(), models.TeachingPeriodFilter{
		TutorID: "tutor-1",
		Status:  models.TeachingPeriodStatusActive,
	})
	require.NoError(t, err)
	require.Len(t, periods, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTeachingPeriodRepositoryExistsActive(t *testing.T) {
	db, mock, cleanup := newPeriodRepoMock(t)
	defer cleanup()

	repo := NewTeachingPeriodRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs("tutor-1", "student-1", "Math", "active").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.ExistsActive(context.Background(), "tutor-1", "student-1", "Math")
	require.NoError(t, err)
	require.True(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTeachingPeriodRepositoryFinish(t *testing.T) {
	db, mock, cleanup := newPeriodRepoMock(t)
	defer cleanup()

	repo := NewTeachingPeriodRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE teaching_periods SET status = $2, end_date = $3")).
		WithArgs("period-1", "finished", "2026-12-20", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Finish(context.Background(), "period-1", "2026-12-20"))
	require.NoError(t, mock.ExpectationsWereMet())
}
