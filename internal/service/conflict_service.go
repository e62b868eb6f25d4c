package service

import (
	"context"
	"fmt"

	"github.com/tutorbase/tutorbase-api/internal/models"
	appErrors "github.com/tutorbase/tutorbase-api/pkg/errors"
	"github.com/tutorbase/tutorbase-api/pkg/timeslot"
)

type conflictSlotReader interface {
	ListByTutorAndDate(ctx context.Context, tutorID, date string) ([]models.AvailabilitySlot, error)
}

type conflictSessionReader interface {
	ListActiveByTutorAndDate(ctx context.Context, tutorID, date string) ([]models.Session, error)
}

// ConflictExclude names items skipped during a conflict scan, so a slot or
// session transitioning between its own statuses never conflicts with itself.
type ConflictExclude struct {
	SlotID    string
	SessionID string
}

// ConflictService is a pure query over the slot and session stores: it
// reports whether a candidate interval overlaps anything live on a tutor's
// calendar. Sessions are scanned as well as slots because a session can exist
// without a backing slot, so slot-only checks would under-detect.
type ConflictService struct {
	slots    conflictSlotReader
	sessions conflictSessionReader
}

// NewConflictService constructs the conflict service.
func NewConflictService(slots conflictSlotReader, sessions conflictSessionReader) *ConflictService {
	return &ConflictService{slots: slots, sessions: sessions}
}

// FindConflict returns the first live item overlapping [start, end) on the
// tutor's date, or nil when the interval is free.
func (s *ConflictService) FindConflict(ctx context.Context, tutorID, date, start, end string, exclude ConflictExclude) (*models.ConflictRef, error) {
	candStart, candEnd, err := timeslot.ParseInterval(start, end)
	if err != nil {
		return nil, err
	}

	slots, err := s.slots.ListByTutorAndDate(ctx, tutorID, date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to scan slots for conflicts")
	}
	for i := range slots {
		slot := &slots[i]
		if slot.ID == exclude.SlotID {
			continue
		}
		slotStart, slotEnd, err := timeslot.ParseInterval(slot.StartTime, slot.EndTime)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, fmt.Sprintf("slot %s has a corrupt interval", slot.ID))
		}
		if timeslot.Overlaps(candStart, candEnd, slotStart, slotEnd) {
			return &models.ConflictRef{Kind: "slot", ID: slot.ID, Date: slot.Date, Start: slot.StartTime, End: slot.EndTime}, nil
		}
	}

	sessions, err := s.sessions.ListActiveByTutorAndDate(ctx, tutorID, date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to scan sessions for conflicts")
	}
	for i := range sessions {
		session := &sessions[i]
		if session.ID == exclude.SessionID {
			continue
		}
		sessionStart, sessionEnd, err := timeslot.ParseSpan(session.TimeRange)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, fmt.Sprintf("session %s has a corrupt time span", session.ID))
		}
		if timeslot.Overlaps(candStart, candEnd, sessionStart, sessionEnd) {
			startStr, endStr := spanBounds(session.TimeRange)
			return &models.ConflictRef{Kind: "session", ID: session.ID, Date: session.Date, Start: startStr, End: endStr}, nil
		}
	}

	return nil, nil
}

// HasConflict reports whether the interval collides with anything live.
func (s *ConflictService) HasConflict(ctx context.Context, tutorID, date, start, end string) (bool, error) {
	ref, err := s.FindConflict(ctx, tutorID, date, start, end, ConflictExclude{})
	if err != nil {
		return false, err
	}
	return ref != nil, nil
}

func conflictError(ref *models.ConflictRef) error {
	message := fmt.Sprintf("interval overlaps %s %s (%s %s - %s)", ref.Kind, ref.ID, ref.Date, ref.Start, ref.End)
	domainErr := &models.SlotConflictError{Message: message, Conflict: *ref}
	return appErrors.Wrap(domainErr, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, message)
}

func spanBounds(span string) (string, string) {
	start, end, err := timeslot.ParseSpan(span)
	if err != nil {
		return "", ""
	}
	return minutesToClock(start), minutesToClock(end)
}

func minutesToClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}
