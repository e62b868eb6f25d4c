package models

import (
	"time"

	"github.com/lib/pq"
)

// SlotStatus represents the lifecycle phase of an availability slot. Every
// stored slot is "live": it occupies calendar time regardless of status;
// deletion removes the row entirely.
type SlotStatus string

const (
	SlotStatusAvailable SlotStatus = "available"
	SlotStatusPending   SlotStatus = "pending"
	SlotStatusBooked    SlotStatus = "booked"
)

// SlotKind distinguishes one-on-one offers from group classes.
type SlotKind string

const (
	SlotKindOneOnOne SlotKind = "one_on_one"
	SlotKindGroup    SlotKind = "group"
)

// AvailabilitySlot is a tutor-offered or tutor-occupied block of time.
// Booking metadata is present only once a booking request exists; group slots
// additionally carry title/description/capacity/location.
type AvailabilitySlot struct {
	ID        string     `db:"id" json:"id"`
	TutorID   string     `db:"tutor_id" json:"tutor_id"`
	Date      string     `db:"date" json:"date"`
	StartTime string     `db:"start_time" json:"start_time"`
	EndTime   string     `db:"end_time" json:"end_time"`
	Status    SlotStatus `db:"status" json:"status"`
	Kind      SlotKind   `db:"kind" json:"kind"`

	BookedByStudentID   *string `db:"booked_by_student_id" json:"booked_by_student_id,omitempty"`
	BookedByStudentName *string `db:"booked_by_student_name" json:"booked_by_student_name,omitempty"`
	Subject             *string `db:"subject" json:"subject,omitempty"`
	RequestNote         *string `db:"request_note" json:"request_note,omitempty"`
	TeachingPeriodID    *string `db:"teaching_period_id" json:"teaching_period_id,omitempty"`

	Title              *string        `db:"title" json:"title,omitempty"`
	Description        *string        `db:"description" json:"description,omitempty"`
	MaxStudents        int            `db:"max_students" json:"max_students,omitempty"`
	EnrolledStudentIDs pq.StringArray `db:"enrolled_student_ids" json:"enrolled_student_ids,omitempty"`
	Location           *string        `db:"location" json:"location,omitempty"`

	Attachments pq.StringArray `db:"attachments" json:"attachments,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Enrolled reports whether the student is already in a group slot.
func (s *AvailabilitySlot) Enrolled(studentID string) bool {
	for _, id := range s.EnrolledStudentIDs {
		if id == studentID {
			return true
		}
	}
	return false
}

// ClearBooking strips booking metadata when a request is rejected.
func (s *AvailabilitySlot) ClearBooking() {
	s.BookedByStudentID = nil
	s.BookedByStudentName = nil
	s.Subject = nil
	s.RequestNote = nil
	s.TeachingPeriodID = nil
}

// SlotFilter describes query params for listing slots.
type SlotFilter struct {
	TutorID string
	Date    string
	Status  SlotStatus
}

// ConflictRef identifies the calendar item that blocked an interval.
type ConflictRef struct {
	Kind  string `json:"kind"` // "slot" or "session"
	ID    string `json:"id"`
	Date  string `json:"date"`
	Start string `json:"start"`
	End   string `json:"end"`
}

// SlotConflictError is returned when an interval collides with an existing
// slot or session on the tutor's calendar.
type SlotConflictError struct {
	Message  string      `json:"message"`
	Conflict ConflictRef `json:"conflict"`
}

// Error implements the error interface for conflict errors.
func (e *SlotConflictError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}
