package models

import "time"

// NotificationKind classifies booking lifecycle events surfaced to users.
type NotificationKind string

const (
	NotificationSlotBooked      NotificationKind = "slot_booked"
	NotificationSlotApproved    NotificationKind = "slot_approved"
	NotificationSlotRejected    NotificationKind = "slot_rejected"
	NotificationSlotCancelled   NotificationKind = "slot_cancelled"
	NotificationChangeRequested NotificationKind = "change_requested"
	NotificationChangeApproved  NotificationKind = "change_approved"
	NotificationChangeRejected  NotificationKind = "change_rejected"
	NotificationGroupEnrolled   NotificationKind = "group_enrolled"
)

// Notification is a persisted event for one recipient.
type Notification struct {
	ID        string           `db:"id" json:"id"`
	UserID    string           `db:"user_id" json:"user_id"`
	Kind      NotificationKind `db:"kind" json:"kind"`
	Message   string           `db:"message" json:"message"`
	SlotID    *string          `db:"slot_id" json:"slot_id,omitempty"`
	SessionID *string          `db:"session_id" json:"session_id,omitempty"`
	Read      bool             `db:"read" json:"read"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
}
