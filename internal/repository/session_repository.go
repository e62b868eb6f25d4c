package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/tutorbase/tutorbase-api/internal/models"
	appErrors "github.com/tutorbase/tutorbase-api/pkg/errors"
)

const sessionColumns = `id, tutor_id, student_id, teaching_period_id, source_slot_id,
title, date, time_range, status, type, location_or_link,
review_rating, review_comment, note_content, note_evaluation,
change_type, change_reason, change_new_date, change_new_time, change_requested_by, change_requested_at,
attachments, created_at, updated_at`

// SessionRepository handles persistence of sessions, including the pending
// change column group.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository constructs the repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create inserts a session, assigning id and timestamps when absent.
func (r *SessionRepository) Create(ctx context.Context, session *models.Session) error {
	prepareSession(session)
	if _, err := sqlx.NamedExecContext(ctx, r.db, insertSessionQuery, session); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// FindByID returns a session by its ID.
func (r *SessionRepository) FindByID(ctx context.Context, id string) (*models.Session, error) {
	query := fmt.Sprintf(`SELECT %s FROM sessions WHERE id = $1`, sessionColumns)
	var session models.Session
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		return nil, err
	}
	return &session, nil
}

// List returns sessions filtered by the provided criteria. Upcoming listings
// exclude sessions carrying an open change request; those surface through the
// change-resolution views instead.
func (r *SessionRepository) List(ctx context.Context, filter models.SessionFilter) ([]models.Session, int, error) {
	var conditions []string
	var args []interface{}

	if filter.TutorID != "" {
		conditions = append(conditions, fmt.Sprintf("tutor_id = $%d", len(args)+1))
		args = append(args, filter.TutorID)
	}
	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.Date != "" {
		conditions = append(conditions, fmt.Sprintf("date = $%d", len(args)+1))
		args = append(args, filter.Date)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
		if filter.Status == models.SessionStatusUpcoming {
			conditions = append(conditions, "change_type IS NULL")
		}
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s FROM sessions%s ORDER BY date ASC, time_range ASC LIMIT %d OFFSET %d`,
		sessionColumns, clause, size, offset)
	var sessions []models.Session
	if err := r.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list sessions: %w", err)
	}

	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM sessions%s`, clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count sessions: %w", err)
	}
	return sessions, total, nil
}

// ListActiveByTutorAndDate returns sessions still occupying the tutor's
// calendar on the given date, including those with an open change request
// (their original schedule holds until the change is approved).
func (r *SessionRepository) ListActiveByTutorAndDate(ctx context.Context, tutorID, date string) ([]models.Session, error) {
	query := fmt.Sprintf(`SELECT %s FROM sessions WHERE tutor_id = $1 AND date = $2 AND status = $3 ORDER BY time_range ASC`, sessionColumns)
	var sessions []models.Session
	if err := r.db.SelectContext(ctx, &sessions, query, tutorID, date, models.SessionStatusUpcoming); err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	return sessions, nil
}

// SetPendingChange records an open change request on the session. The WHERE
// guard makes the write a no-op when another request is already open, so the
// at-most-one invariant holds even across concurrent application instances.
func (r *SessionRepository) SetPendingChange(ctx context.Context, id string, change models.PendingChange) error {
	const query = `UPDATE sessions SET
change_type = $2, change_reason = $3, change_new_date = NULLIF($4, ''), change_new_time = NULLIF($5, ''),
change_requested_by = $6, change_requested_at = $7, updated_at = $8
WHERE id = $1 AND change_type IS NULL`
	res, err := r.db.ExecContext(ctx, query, id, change.Type, change.Reason, change.NewDate, change.NewTime,
		change.RequestedBy, change.CreatedAt, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set pending change: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return appErrors.Clone(appErrors.ErrDuplicatePendingChange, "")
	}
	return nil
}

// ClearPendingChange removes the open change request, leaving the session's
// own schedule untouched.
func (r *SessionRepository) ClearPendingChange(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, clearChangeQuery, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("clear pending change: %w", err)
	}
	return nil
}

// ApplyReschedule atomically replaces the session's date and time with the
// approved proposal and clears the change request.
func (r *SessionRepository) ApplyReschedule(ctx context.Context, id, date, timeRange string) error {
	const query = `UPDATE sessions SET
date = $2, time_range = $3,
change_type = NULL, change_reason = NULL, change_new_date = NULL, change_new_time = NULL,
change_requested_by = NULL, change_requested_at = NULL, updated_at = $4
WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, date, timeRange, time.Now().UTC()); err != nil {
		return fmt.Errorf("apply reschedule: %w", err)
	}
	return nil
}

// ResolveCancel sets the terminal cancelled status and clears the change
// request in one statement.
func (r *SessionRepository) ResolveCancel(ctx context.Context, id string, status models.SessionStatus) error {
	const query = `UPDATE sessions SET
status = $2,
change_type = NULL, change_reason = NULL, change_new_date = NULL, change_new_time = NULL,
change_requested_by = NULL, change_requested_at = NULL, updated_at = $3
WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("resolve cancel: %w", err)
	}
	return nil
}

// UpdateStatus moves the session to a new lifecycle status.
func (r *SessionRepository) UpdateStatus(ctx context.Context, id string, status models.SessionStatus) error {
	const query = `UPDATE sessions SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("update session status: %w", err)
	}
	return nil
}

// AttachReview stores the student's rating and comment.
func (r *SessionRepository) AttachReview(ctx context.Context, id string, rating int, comment string) error {
	const query = `UPDATE sessions SET review_rating = $2, review_comment = $3, updated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, rating, comment, time.Now().UTC()); err != nil {
		return fmt.Errorf("attach review: %w", err)
	}
	return nil
}

// AttachProgressNote stores the tutor's free-text note and evaluation.
func (r *SessionRepository) AttachProgressNote(ctx context.Context, id, content string, evaluation models.Evaluation) error {
	const query = `UPDATE sessions SET note_content = $2, note_evaluation = $3, updated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, content, evaluation, time.Now().UTC()); err != nil {
		return fmt.Errorf("attach progress note: %w", err)
	}
	return nil
}

const clearChangeQuery = `UPDATE sessions SET
change_type = NULL, change_reason = NULL, change_new_date = NULL, change_new_time = NULL,
change_requested_by = NULL, change_requested_at = NULL, updated_at = $2
WHERE id = $1`

const insertSessionQuery = `
INSERT INTO sessions (` + sessionColumns + `)
VALUES (:id, :tutor_id, :student_id, :teaching_period_id, :source_slot_id,
:title, :date, :time_range, :status, :type, :location_or_link,
:review_rating, :review_comment, :note_content, :note_evaluation,
:change_type, :change_reason, :change_new_date, :change_new_time, :change_requested_by, :change_requested_at,
:attachments, :created_at, :updated_at)`

func prepareSession(session *models.Session) {
	now := time.Now().UTC()
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.Status == "" {
		session.Status = models.SessionStatusUpcoming
	}
	if session.Type == "" {
		session.Type = models.SessionTypeOnline
	}
	if session.Attachments == nil {
		session.Attachments = []string{}
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now
}
