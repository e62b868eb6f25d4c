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

const slotColumns = `id, tutor_id, date, start_time, end_time, status, kind,
booked_by_student_id, booked_by_student_name, subject, request_note, teaching_period_id,
title, description, max_students, enrolled_student_ids, location, attachments,
created_at, updated_at`

// SlotRepository handles persistence of availability slots. It also owns the
// cross-table transactions that keep a booked slot and its derived session in
// step (approval and deletion).
type SlotRepository struct {
	db *sqlx.DB
}

// NewSlotRepository constructs the repository.
func NewSlotRepository(db *sqlx.DB) *SlotRepository {
	return &SlotRepository{db: db}
}

// Create inserts a single slot, assigning id and timestamps when absent.
func (r *SlotRepository) Create(ctx context.Context, slot *models.AvailabilitySlot) error {
	prepareSlot(slot)
	if _, err := sqlx.NamedExecContext(ctx, r.db, insertSlotQuery, slot); err != nil {
		return fmt.Errorf("create slot: %w", err)
	}
	return nil
}

// CreateBatch inserts a recurring batch inside one transaction. Either every
// slot is created or none are.
func (r *SlotRepository) CreateBatch(ctx context.Context, slots []models.AvailabilitySlot) error {
	if len(slots) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin slot batch: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for i := range slots {
		prepareSlot(&slots[i])
		if _, err := sqlx.NamedExecContext(ctx, tx, insertSlotQuery, &slots[i]); err != nil {
			return fmt.Errorf("create slot batch: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit slot batch: %w", err)
	}
	return nil
}

// FindByID returns a slot by its ID.
func (r *SlotRepository) FindByID(ctx context.Context, id string) (*models.AvailabilitySlot, error) {
	query := fmt.Sprintf(`SELECT %s FROM availability_slots WHERE id = $1`, slotColumns)
	var slot models.AvailabilitySlot
	if err := r.db.GetContext(ctx, &slot, query, id); err != nil {
		return nil, err
	}
	return &slot, nil
}

// List returns slots filtered by the provided criteria, ordered by date and
// start time.
func (r *SlotRepository) List(ctx context.Context, filter models.SlotFilter) ([]models.AvailabilitySlot, error) {
	var conditions []string
	var args []interface{}

	if filter.TutorID != "" {
		conditions = append(conditions, fmt.Sprintf("tutor_id = $%d", len(args)+1))
		args = append(args, filter.TutorID)
	}
	if filter.Date != "" {
		conditions = append(conditions, fmt.Sprintf("date = $%d", len(args)+1))
		args = append(args, filter.Date)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf(`SELECT %s FROM availability_slots%s ORDER BY date ASC, start_time ASC`, slotColumns, clause)
	var slots []models.AvailabilitySlot
	if err := r.db.SelectContext(ctx, &slots, query, args...); err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	return slots, nil
}

// ListByTutorAndDate returns every slot occupying the tutor's calendar on the
// given date. All stored slots are live, so no status filter applies.
func (r *SlotRepository) ListByTutorAndDate(ctx context.Context, tutorID, date string) ([]models.AvailabilitySlot, error) {
	query := fmt.Sprintf(`SELECT %s FROM availability_slots WHERE tutor_id = $1 AND date = $2 ORDER BY start_time ASC`, slotColumns)
	var slots []models.AvailabilitySlot
	if err := r.db.SelectContext(ctx, &slots, query, tutorID, date); err != nil {
		return nil, fmt.Errorf("list slots by tutor and date: %w", err)
	}
	return slots, nil
}

// Update persists the slot's mutable state: status, booking metadata and
// group enrollment.
func (r *SlotRepository) Update(ctx context.Context, slot *models.AvailabilitySlot) error {
	slot.UpdatedAt = time.Now().UTC()
	const query = `UPDATE availability_slots SET
status = :status,
booked_by_student_id = :booked_by_student_id,
booked_by_student_name = :booked_by_student_name,
subject = :subject,
request_note = :request_note,
teaching_period_id = :teaching_period_id,
enrolled_student_ids = :enrolled_student_ids,
updated_at = :updated_at
WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, slot); err != nil {
		return fmt.Errorf("update slot: %w", err)
	}
	return nil
}

// ApproveWithSession transitions the slot to booked and inserts its derived
// session as a single transaction.
func (r *SlotRepository) ApproveWithSession(ctx context.Context, slot *models.AvailabilitySlot, session *models.Session) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin approve: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	slot.Status = models.SlotStatusBooked
	slot.UpdatedAt = time.Now().UTC()
	const updateQuery = `UPDATE availability_slots SET status = :status, updated_at = :updated_at WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, tx, updateQuery, slot); err != nil {
		return fmt.Errorf("approve slot: %w", err)
	}

	prepareSession(session)
	if _, err := sqlx.NamedExecContext(ctx, tx, insertSessionQuery, session); err != nil {
		return fmt.Errorf("create session from slot: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit approve: %w", err)
	}
	return nil
}

// Delete removes a slot unconditionally.
func (r *SlotRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM availability_slots WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete slot: %w", err)
	}
	return nil
}

// DeleteWithDerivedSessions removes a booked slot together with the still
// upcoming sessions it produced, in one transaction.
func (r *SlotRepository) DeleteWithDerivedSessions(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin slot delete: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE source_slot_id = $1 AND status = $2`, id, models.SessionStatusUpcoming); err != nil {
		return fmt.Errorf("retract derived sessions: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM availability_slots WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete slot: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit slot delete: %w", err)
	}
	return nil
}

const insertSlotQuery = `
INSERT INTO availability_slots (` + slotColumns + `)
VALUES (:id, :tutor_id, :date, :start_time, :end_time, :status, :kind,
:booked_by_student_id, :booked_by_student_name, :subject, :request_note, :teaching_period_id,
:title, :description, :max_students, :enrolled_student_ids, :location, :attachments,
:created_at, :updated_at)`

func prepareSlot(slot *models.AvailabilitySlot) {
	now := time.Now().UTC()
	if slot.ID == "" {
		slot.ID = uuid.NewString()
	}
	if slot.Status == "" {
		slot.Status = models.SlotStatusAvailable
	}
	if slot.Kind == "" {
		slot.Kind = models.SlotKindOneOnOne
	}
	if slot.MaxStudents <= 0 {
		slot.MaxStudents = 1
	}
	if slot.EnrolledStudentIDs == nil {
		slot.EnrolledStudentIDs = []string{}
	}
	if slot.Attachments == nil {
		slot.Attachments = []string{}
	}
	if slot.CreatedAt.IsZero() {
		slot.CreatedAt = now
	}
	slot.UpdatedAt = now
}
