package models

import (
	"encoding/json"
	"time"

	"github.com/lib/pq"
)

// SessionStatus represents the lifecycle phase of a session.
type SessionStatus string

const (
	SessionStatusUpcoming           SessionStatus = "upcoming"
	SessionStatusCompleted          SessionStatus = "completed"
	SessionStatusCancelledByTutor   SessionStatus = "cancelled_by_tutor"
	SessionStatusCancelledByStudent SessionStatus = "cancelled_by_student"
)

// Active reports whether the session still occupies calendar time.
func (s SessionStatus) Active() bool {
	return s == SessionStatusUpcoming
}

// SessionType distinguishes remote from in-person sessions.
type SessionType string

const (
	SessionTypeOnline   SessionType = "online"
	SessionTypeInPerson SessionType = "in_person"
)

// ChangeType is the kind of change requested against a session.
type ChangeType string

const (
	ChangeTypeReschedule ChangeType = "reschedule"
	ChangeTypeCancel     ChangeType = "cancel"
)

// ChangeRequester records which party opened a change request.
type ChangeRequester string

const (
	ChangeRequesterTutor   ChangeRequester = "tutor"
	ChangeRequesterStudent ChangeRequester = "student"
)

// Evaluation is the categorical part of a progress note.
type Evaluation string

const (
	EvaluationExcellent        Evaluation = "excellent"
	EvaluationGood             Evaluation = "good"
	EvaluationAverage          Evaluation = "average"
	EvaluationNeedsImprovement Evaluation = "needs_improvement"
)

// PendingChange is an open, unresolved request to alter or cancel a session.
// At most one exists per session; it is attached alongside the session's own
// fields and never replaces them until approved.
type PendingChange struct {
	Type        ChangeType      `json:"type"`
	Reason      string          `json:"reason"`
	NewDate     string          `json:"new_date,omitempty"`
	NewTime     string          `json:"new_time,omitempty"`
	RequestedBy ChangeRequester `json:"requested_by"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Session is a concrete, time-boxed teaching interaction. It may originate
// from an approved slot (SourceSlotID set) or be created ad hoc.
type Session struct {
	ID               string  `db:"id" json:"id"`
	TutorID          string  `db:"tutor_id" json:"tutor_id"`
	StudentID        string  `db:"student_id" json:"student_id"`
	TeachingPeriodID *string `db:"teaching_period_id" json:"teaching_period_id,omitempty"`
	SourceSlotID     *string `db:"source_slot_id" json:"source_slot_id,omitempty"`

	Title          string        `db:"title" json:"title"`
	Date           string        `db:"date" json:"date"`
	TimeRange      string        `db:"time_range" json:"time"`
	Status         SessionStatus `db:"status" json:"status"`
	Type           SessionType   `db:"type" json:"type"`
	LocationOrLink string        `db:"location_or_link" json:"location_or_link"`

	ReviewRating  *int    `db:"review_rating" json:"review_rating,omitempty"`
	ReviewComment *string `db:"review_comment" json:"review_comment,omitempty"`

	NoteContent    *string     `db:"note_content" json:"note_content,omitempty"`
	NoteEvaluation *Evaluation `db:"note_evaluation" json:"note_evaluation,omitempty"`

	ChangeType        *ChangeType      `db:"change_type" json:"-"`
	ChangeReason      *string          `db:"change_reason" json:"-"`
	ChangeNewDate     *string          `db:"change_new_date" json:"-"`
	ChangeNewTime     *string          `db:"change_new_time" json:"-"`
	ChangeRequestedBy *ChangeRequester `db:"change_requested_by" json:"-"`
	ChangeRequestedAt *time.Time       `db:"change_requested_at" json:"-"`

	Attachments pq.StringArray `db:"attachments" json:"attachments,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// HasPendingChange reports whether an open change request exists.
func (s *Session) HasPendingChange() bool {
	return s.ChangeType != nil
}

// PendingChange assembles the open change request, or nil when none exists.
func (s *Session) PendingChange() *PendingChange {
	if s.ChangeType == nil {
		return nil
	}
	change := &PendingChange{Type: *s.ChangeType}
	if s.ChangeReason != nil {
		change.Reason = *s.ChangeReason
	}
	if s.ChangeNewDate != nil {
		change.NewDate = *s.ChangeNewDate
	}
	if s.ChangeNewTime != nil {
		change.NewTime = *s.ChangeNewTime
	}
	if s.ChangeRequestedBy != nil {
		change.RequestedBy = *s.ChangeRequestedBy
	}
	if s.ChangeRequestedAt != nil {
		change.CreatedAt = *s.ChangeRequestedAt
	}
	return change
}

// MarshalJSON renders the pending change as a nested object.
func (s Session) MarshalJSON() ([]byte, error) {
	type alias Session
	return json.Marshal(struct {
		alias
		PendingChange *PendingChange `json:"pending_change,omitempty"`
	}{alias(s), s.PendingChange()})
}

// SessionFilter describes query params for listing sessions.
type SessionFilter struct {
	TutorID   string
	StudentID string
	Status    SessionStatus
	Date      string
	Page      int
	PageSize  int
}
