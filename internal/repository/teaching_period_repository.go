package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/tutorbase/tutorbase-api/internal/models"
)

const teachingPeriodColumns = `id, tutor_id, student_id, subject, start_date, end_date, status, created_at, updated_at`

// TeachingPeriodRepository handles persistence of teaching periods.
type TeachingPeriodRepository struct {
	db *sqlx.DB
}

// NewTeachingPeriodRepository constructs the repository.
func NewTeachingPeriodRepository(db *sqlx.DB) *TeachingPeriodRepository {
	return &TeachingPeriodRepository{db: db}
}

// Create inserts a teaching period.
func (r *TeachingPeriodRepository) Create(ctx context.Context, period *models.TeachingPeriod) error {
	now := time.Now().UTC()
	if period.ID == "" {
		period.ID = uuid.NewString()
	}
	if period.Status == "" {
		period.Status = models.TeachingPeriodStatusActive
	}
	if period.CreatedAt.IsZero() {
		period.CreatedAt = now
	}
	period.UpdatedAt = now

	query := fmt.Sprintf(`INSERT INTO teaching_periods (%s)
VALUES (:id, :tutor_id, :student_id, :subject, :start_date, :end_date, :status, :created_at, :updated_at)`, teachingPeriodColumns)
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, period); err != nil {
		return fmt.Errorf("create teaching period: %w", err)
	}
	return nil
}

// FindByID returns a teaching period by its ID.
func (r *TeachingPeriodRepository) FindByID(ctx context.Context, id string) (*models.TeachingPeriod, error) {
	query := fmt.Sprintf(`SELECT %s FROM teaching_periods WHERE id = $1`, teachingPeriodColumns)
	var period models.TeachingPeriod
	if err := r.db.GetContext(ctx, &period, query, id); err != nil {
		return nil, err
	}
	return &period, nil
}

// List returns teaching periods filtered by the provided criteria.
func (r *TeachingPeriodRepository) List(ctx context.Context, filter models.TeachingPeriodFilter) ([]models.TeachingPeriod, error) {
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
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf(`SELECT %s FROM teaching_periods%s ORDER BY start_date DESC`, teachingPeriodColumns, clause)
	var periods []models.TeachingPeriod
	if err := r.db.SelectContext(ctx, &periods, query, args...); err != nil {
		return nil, fmt.Errorf("list teaching periods: %w", err)
	}
	return periods, nil
}

// ExistsActive reports whether an active period already links the tutor and
// student for the subject.
func (r *TeachingPeriodRepository) ExistsActive(ctx context.Context, tutorID, studentID, subject string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM teaching_periods WHERE tutor_id = $1 AND student_id = $2 AND subject = $3 AND status = $4)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, tutorID, studentID, subject, models.TeachingPeriodStatusActive); err != nil {
		return false, fmt.Errorf("check active teaching period: %w", err)
	}
	return exists, nil
}

// Finish closes a teaching period.
func (r *TeachingPeriodRepository) Finish(ctx context.Context, id, endDate string) error {
	const query = `UPDATE teaching_periods SET status = $2, end_date = $3, updated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.TeachingPeriodStatusFinished, endDate, time.Now().UTC()); err != nil {
		return fmt.Errorf("finish teaching period: %w", err)
	}
	return nil
}
