package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutorbase/tutorbase-api/internal/models"
)

func seedConflictFixtures() (*mockSlotRepo, *stubSessionReader) {
	slots := newMockSlotRepo()
	slots.slots["slot-1"] = &models.AvailabilitySlot{
		ID: "slot-1", TutorID: "tutor-1", Date: "2026-09-07",
		StartTime: "09:00", EndTime: "10:00", Status: models.SlotStatusAvailable,
	}
	sessions := &stubSessionReader{sessions: []models.Session{
		{ID: "session-1", TutorID: "tutor-1", Date: "2026-09-07", TimeRange: "13:00 - 14:00", Status: models.SessionStatusUpcoming},
		{ID: "session-2", TutorID: "tutor-1", Date: "2026-09-07", TimeRange: "15:00 - 16:00", Status: models.SessionStatusCancelledByTutor},
	}}
	return slots, sessions
}

func TestConflictServiceDetectsSlotOverlap(t *testing.T) {
	slots, sessions := seedConflictFixtures()
	svc := NewConflictService(slots, sessions)

	ref, err := svc.FindConflict(context.Background(), "tutor-1", "2026-09-07", "09:30", "10:30", ConflictExclude{})
	require.NoError(t, err)
	require.NotNil(t, ref)
	assert.Equal(t, "slot", ref.Kind)
	assert.Equal(t, "slot-1", ref.ID)
}

func TestConflictServiceDetectsSessionOverlap(t *testing.T) {
	slots, sessions := seedConflictFixtures()
	svc := NewConflictService(slots, sessions)

	ref, err := svc.FindConflict(context.Background(), "tutor-1", "2026-09-07", "13:30", "13:45", ConflictExclude{})
	require.NoError(t, err)
	require.NotNil(t, ref)
	assert.Equal(t, "session", ref.Kind)
	assert.Equal(t, "session-1", ref.ID)
	assert.Equal(t, "13:00", ref.Start)
	assert.Equal(t, "14:00", ref.End)
}

func TestConflictServiceHalfOpenBoundaries(t *testing.T) {
	slots, sessions := seedConflictFixtures()
	svc := NewConflictService(slots, sessions)
	ctx := context.Background()

	// Ending exactly where the slot starts is free.
	ref, err := svc.FindConflict(ctx, "tutor-1", "2026-09-07", "08:00", "09:00", ConflictExclude{})
	require.NoError(t, err)
	assert.Nil(t, ref)

	// Starting exactly where the slot ends is free.
	ref, err = svc.FindConflict(ctx, "tutor-1", "2026-09-07", "10:00", "11:00", ConflictExclude{})
	require.NoError(t, err)
	assert.Nil(t, ref)
}

func TestConflictServiceIgnoresCancelledSessions(t *testing.T) {
	slots, sessions := seedConflictFixtures()
	svc := NewConflictService(slots, sessions)

	ref, err := svc.FindConflict(context.Background(), "tutor-1", "2026-09-07", "15:00", "16:00", ConflictExclude{})
	require.NoError(t, err)
	assert.Nil(t, ref)
}

func TestConflictServiceScopedToTutorAndDate(t *testing.T) {
	slots, sessions := seedConflictFixtures()
	svc := NewConflictService(slots, sessions)
	ctx := context.Background()

	ref, err := svc.FindConflict(ctx, "tutor-2", "2026-09-07", "09:00", "10:00", ConflictExclude{})
	require.NoError(t, err)
	assert.Nil(t, ref)

	ref, err = svc.FindConflict(ctx, "tutor-1", "2026-09-08", "09:00", "10:00", ConflictExclude{})
	require.NoError(t, err)
	assert.Nil(t, ref)
}

func TestConflictServiceExclusions(t *testing.T) {
	slots, sessions := seedConflictFixtures()
	svc := NewConflictService(slots, sessions)
	ctx := context.Background()

	ref, err := svc.FindConflict(ctx, "tutor-1", "2026-09-07", "09:00", "10:00", ConflictExclude{SlotID: "slot-1"})
	require.NoError(t, err)
	assert.Nil(t, ref)

	ref, err = svc.FindConflict(ctx, "tutor-1", "2026-09-07", "13:00", "14:00", ConflictExclude{SessionID: "session-1"})
	require.NoError(t, err)
	assert.Nil(t, ref)
}

func TestConflictServiceRejectsMalformedCandidate(t *testing.T) {
	slots, sessions := seedConflictFixtures()
	svc := NewConflictService(slots, sessions)

	_, err := svc.FindConflict(context.Background(), "tutor-1", "2026-09-07", "9:00", "10:00", ConflictExclude{})
	assert.Equal(t, "INVALID_TIME_FORMAT", errorCode(t, err))
}

func TestConflictServiceHasConflict(t *testing.T) {
	slots, sessions := seedConflictFixtures()
	svc := NewConflictService(slots, sessions)
	ctx := context.Background()

	hit, err := svc.HasConflict(ctx, "tutor-1", "2026-09-07", "09:30", "10:30")
	require.NoError(t, err)
	assert.True(t, hit)

	hit, err = svc.HasConflict(ctx, "tutor-1", "2026-09-07", "11:00", "12:00")
	require.NoError(t, err)
	assert.False(t, hit)
}
