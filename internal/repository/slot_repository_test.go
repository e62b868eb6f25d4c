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

func newSlotRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

var slotRowColumns = []string{
	"id", "tutor_id", "date", "start_time", "end_time", "status", "kind",
	"booked_by_student_id", "booked_by_student_name", "subject", "request_note", "teaching_period_id",
	"title", "description", "max_students", "enrolled_student_ids", "location", "attachments",
	"created_at", "updated_at",
}

func slotRow(id, status string) []driver.Value {
	now := time.Now()
	return []driver.Value{
		id, "tutor-1", "2026-09-07", "09:00", "10:00", status, "one_on_one",
		nil, nil, nil, nil, nil,
		nil, nil, 1, "{}", nil, "{}",
		now, now,
	}
}

func TestSlotRepositoryCreateAssignsDefaults(t *testing.T) {
	db, mock, cleanup := newSlotRepoMock(t)
	defer cleanup()

	repo := NewSlotRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO availability_slots")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	slot := &models.AvailabilitySlot{
		TutorID:   "tutor-1",
		Date:      "2026-09-07",
		StartTime: "09:00",
		EndTime:   "10:00",
	}
	require.NoError(t, repo.Create(context.Background(), slot))
	require.NotEmpty(t, slot.ID)
	require.Equal(t, models.SlotStatusAvailable, slot.Status)
	require.Equal(t, models.SlotKindOneOnOne, slot.Kind)
	require.Equal(t, 1, slot.MaxStudents)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSlotRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newSlotRepoMock(t)
	defer cleanup()

	repo := NewSlotRepository(db)
	rows := sqlmock.NewRows(slotRowColumns).AddRow(slotRow("slot-1", "available")...)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, tutor_id, date, start_time, end_time")).
		WithArgs("slot-1").
		WillReturnRows(rows)

	slot, err := repo.FindByID(context.Background(), "slot-1")
	require.NoError(t, err)
	require.Equal(t, "slot-1", slot.ID)
	require.Equal(t, models.SlotStatusAvailable, slot.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSlotRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newSlotRepoMock(t)
	defer cleanup()

	repo := NewSlotRepository(db)
	rows := sqlmock.NewRows(slotRowColumns).AddRow(slotRow("slot-1", "pending")...)
	mock.ExpectQuery(regexp.QuoteMeta("FROM availability_slots WHERE tutor_id = $1 AND date = $2 AND status = $3")).
		WithArgs("tutor-1", "2026-09-07", "pending").
		WillReturnRows(rows)

	slots, err := repo.List(context.Background(), models.SlotFilter{
		TutorID: "tutor-1",
		Date:    "2026-09-07",
		Status:  models.SlotStatusPending,
	})
	require.NoError(t, err)
	require.Len(t, slots, 1)
	require.Equal(t, "slot-1", slots[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSlotRepositoryListByTutorAndDate(t *testing.T) {
	db, mock, cleanup := newSlotRepoMock(t)
	defer cleanup()

	repo := NewSlotRepository(db)
	rows := sqlmock.NewRows(slotRowColumns).
		AddRow(slotRow("slot-1", "available")...).
		AddRow(slotRow("slot-2", "booked")...)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE tutor_id = $1 AND date = $2 ORDER BY start_time")).
		WithArgs("tutor-1", "2026-09-07").
		WillReturnRows(rows)

	slots, err := repo.ListByTutorAndDate(context.Background(), "tutor-1", "2026-09-07")
	require.NoError(t, err)
	require.Len(t, slots, 2)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSlotRepositoryCreateBatchIsTransactional(t *testing.T) {
	db, mock, cleanup := newSlotRepoMock(t)
	defer cleanup()

	repo := NewSlotRepository(db)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO availability_slots")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO availability_slots")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	slots := []models.AvailabilitySlot{
		{TutorID: "tutor-1", Date: "2026-09-07", StartTime: "09:00", EndTime: "10:00"},
		{TutorID: "tutor-1", Date: "2026-09-14", StartTime: "09:00", EndTime: "10:00"},
	}
	require.NoError(t, repo.CreateBatch(context.Background(), slots))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSlotRepositoryCreateBatchRollsBackOnFailure(t *testing.T) {
	db, mock, cleanup := newSlotRepoMock(t)
	defer cleanup()

	repo := NewSlotRepository(db)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO availability_slots")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO availability_slots")).
		WillReturnError(context.DeadlineExceeded)
	mock.ExpectRollback()

	slots := []models.AvailabilitySlot{
		{TutorID: "tutor-1", Date: "2026-09-07", StartTime: "09:00", EndTime: "10:00"},
		{TutorID: "tutor-1", Date: "2026-09-14", StartTime: "09:00", EndTime: "10:00"},
	}
	require.Error(t, repo.CreateBatch(context.Background(), slots))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSlotRepositoryApproveWithSession(t *testing.T) {
	db, mock, cleanup := newSlotRepoMock(t)
	defer cleanup()

	repo := NewSlotRepository(db)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE availability_slots SET status =")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO sessions")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	studentID := "student-1"
	slot := &models.AvailabilitySlot{
		ID: "slot-1", TutorID: "tutor-1", Date: "2026-09-07",
		StartTime: "09:00", EndTime: "10:00", Status: models.SlotStatusPending,
		BookedByStudentID: &studentID,
	}
	session := &models.Session{
		TutorID: "tutor-1", StudentID: studentID, Title: "Math",
		Date: "2026-09-07", TimeRange: "09:00 - 10:00",
		SourceSlotID: &slot.ID,
	}
	require.NoError(t, repo.ApproveWithSession(context.Background(), slot, session))
	require.Equal(t, models.SlotStatusBooked, slot.Status)
	require.NotEmpty(t, session.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSlotRepositoryDeleteWithDerivedSessions(t *testing.T) {
	db, mock, cleanup := newSlotRepoMock(t)
	defer cleanup()

	repo := NewSlotRepository(db)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM sessions WHERE source_slot_id = $1 AND status = $2")).
		WithArgs("slot-1", "upcoming").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM availability_slots WHERE id = $1")).
		WithArgs("slot-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.DeleteWithDerivedSessions(context.Background(), "slot-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSlotRepositoryDelete(t *testing.T) {
	db, mock, cleanup := newSlotRepoMock(t)
	defer cleanup()

	repo := NewSlotRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM availability_slots WHERE id = $1")).
		WithArgs("slot-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Delete(context.Background(), "slot-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}
