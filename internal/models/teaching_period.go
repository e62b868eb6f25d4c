package models

import "time"

// TeachingPeriodStatus represents the lifecycle of a teaching period.
type TeachingPeriodStatus string

const (
	TeachingPeriodStatusActive   TeachingPeriodStatus = "active"
	TeachingPeriodStatusFinished TeachingPeriodStatus = "finished"
)

// TeachingPeriod is the standing tutor-student-subject relationship that
// sessions and slots are scoped under. Slot and session stores read it only to
// verify and stamp the foreign key.
type TeachingPeriod struct {
	ID        string               `db:"id" json:"id"`
	TutorID   string               `db:"tutor_id" json:"tutor_id"`
	StudentID string               `db:"student_id" json:"student_id"`
	Subject   string               `db:"subject" json:"subject"`
	StartDate string               `db:"start_date" json:"start_date"`
	EndDate   *string              `db:"end_date" json:"end_date,omitempty"`
	Status    TeachingPeriodStatus `db:"status" json:"status"`
	CreatedAt time.Time            `db:"created_at" json:"created_at"`
	UpdatedAt time.Time            `db:"updated_at" json:"updated_at"`
}

// TeachingPeriodFilter describes query params for listing teaching periods.
type TeachingPeriodFilter struct {
	TutorID   string
	StudentID string
	Status    TeachingPeriodStatus
}
