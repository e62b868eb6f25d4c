package service

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tutorbase/tutorbase-api/internal/models"
	appErrors "github.com/tutorbase/tutorbase-api/pkg/errors"
)

type mockSessionStore struct {
	mu             sync.Mutex
	sessions       map[string]*models.Session
	seq            int
	setChangeCalls int
}

func newMockSessionStore() *mockSessionStore {
	return &mockSessionStore{sessions: make(map[string]*models.Session)}
}

func (m *mockSessionStore) Create(_ context.Context, session *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if session.ID == "" {
		m.seq++
		session.ID = fmt.Sprintf("session-%d", m.seq)
	}
	copied := *session
	m.sessions[session.ID] = &copied
	return nil
}

func (m *mockSessionStore) FindByID(_ context.Context, id string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *session
	return &copied, nil
}

func (m *mockSessionStore) List(_ context.Context, filter models.SessionFilter) ([]models.Session, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []models.Session
	for _, session := range m.sessions {
		if filter.TutorID != "" && session.TutorID != filter.TutorID {
			continue
		}
		if filter.StudentID != "" && session.StudentID != filter.StudentID {
			continue
		}
		if filter.Status != "" && session.Status != filter.Status {
			continue
		}
		if filter.Status == models.SessionStatusUpcoming && session.HasPendingChange() {
			continue
		}
		if filter.Date != "" && session.Date != filter.Date {
			continue
		}
		result = append(result, *session)
	}
	return result, len(result), nil
}

func (m *mockSessionStore) ListActiveByTutorAndDate(_ context.Context, tutorID, date string) ([]models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []models.Session
	for _, session := range m.sessions {
		if session.TutorID == tutorID && session.Date == date && session.Status.Active() {
			result = append(result, *session)
		}
	}
	return result, nil
}

func (m *mockSessionStore) SetPendingChange(_ context.Context, id string, change models.PendingChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[id]
	if !ok {
		return sql.ErrNoRows
	}
	if session.ChangeType != nil {
		return appErrors.Clone(appErrors.ErrDuplicatePendingChange, "")
	}
	m.setChangeCalls++
	changeType := change.Type
	reason := change.Reason
	requestedBy := change.RequestedBy
	requestedAt := change.CreatedAt
	session.ChangeType = &changeType
	session.ChangeReason = &reason
	session.ChangeRequestedBy = &requestedBy
	session.ChangeRequestedAt = &requestedAt
	if change.NewDate != "" {
		newDate := change.NewDate
		session.ChangeNewDate = &newDate
	}
	if change.NewTime != "" {
		newTime := change.NewTime
		session.ChangeNewTime = &newTime
	}
	return nil
}

func clearChange(session *models.Session) {
	session.ChangeType = nil
	session.ChangeReason = nil
	session.ChangeNewDate = nil
	session.ChangeNewTime = nil
	session.ChangeRequestedBy = nil
	session.ChangeRequestedAt = nil
}

func (m *mockSessionStore) ClearPendingChange(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[id]
	if !ok {
		return sql.ErrNoRows
	}
	clearChange(session)
	return nil
}

func (m *mockSessionStore) ApplyReschedule(_ context.Context, id, date, timeRange string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[id]
	if !ok {
		return sql.ErrNoRows
	}
	session.Date = date
	session.TimeRange = timeRange
	clearChange(session)
	return nil
}

func (m *mockSessionStore) ResolveCancel(_ context.Context, id string, status models.SessionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[id]
	if !ok {
		return sql.ErrNoRows
	}
	session.Status = status
	clearChange(session)
	return nil
}

func (m *mockSessionStore) UpdateStatus(_ context.Context, id string, status models.SessionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[id]
	if !ok {
		return sql.ErrNoRows
	}
	session.Status = status
	return nil
}

func (m *mockSessionStore) AttachReview(_ context.Context, id string, rating int, comment string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[id]
	if !ok {
		return sql.ErrNoRows
	}
	session.ReviewRating = &rating
	session.ReviewComment = &comment
	return nil
}

func (m *mockSessionStore) AttachProgressNote(_ context.Context, id, content string, evaluation models.Evaluation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[id]
	if !ok {
		return sql.ErrNoRows
	}
	session.NoteContent = &content
	session.NoteEvaluation = &evaluation
	return nil
}

func newSessionServiceForTest(store *mockSessionStore) (*SessionService, *recordingNotifier) {
	notify := &recordingNotifier{}
	conflicts := NewConflictService(newMockSlotRepo(), store)
	svc := NewSessionService(store, conflicts, NewTutorLocks(), notify, nil, nil, zap.NewNop())
	return svc, notify
}

func seedSession(store *mockSessionStore, id string, status models.SessionStatus) *models.Session {
	session := &models.Session{
		ID:        id,
		TutorID:   "tutor-1",
		StudentID: "student-1",
		Title:     "Math",
		Date:      "2026-09-07",
		TimeRange: "09:00 - 10:00",
		Status:    status,
		Type:      models.SessionTypeOnline,
	}
	copied := *session
	store.sessions[id] = &copied
	return session
}

func TestSessionServiceCreateAdHoc(t *testing.T) {
	store := newMockSessionStore()
	svc, _ := newSessionServiceForTest(store)

	session, err := svc.Create(context.Background(), CreateSessionRequest{
		TutorID: "tutor-1", StudentID: "student-1", Title: "Physics",
		Date: "2026-09-08", StartTime: "10:00", EndTime: "11:30", Type: models.SessionTypeOnline,
	})
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusUpcoming, session.Status)
	assert.Equal(t, "10:00 - 11:30", session.TimeRange)
	assert.Nil(t, session.SourceSlotID)
}

func TestSessionServiceCreateRejectsOverlapWithSession(t *testing.T) {
	store := newMockSessionStore()
	seedSession(store, "session-1", models.SessionStatusUpcoming)
	svc, _ := newSessionServiceForTest(store)

	_, err := svc.Create(context.Background(), CreateSessionRequest{
		TutorID: "tutor-1", StudentID: "student-2", Title: "Physics",
		Date: "2026-09-07", StartTime: "09:30", EndTime: "10:30", Type: models.SessionTypeOnline,
	})
	assert.Equal(t, "SCHEDULE_CONFLICT", errorCode(t, err))
}

func TestSessionServiceComplete(t *testing.T) {
	store := newMockSessionStore()
	seedSession(store, "session-1", models.SessionStatusUpcoming)
	svc, _ := newSessionServiceForTest(store)

	session, err := svc.Complete(context.Background(), "session-1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusCompleted, session.Status)

	// Completing twice is not allowed.
	_, err = svc.Complete(context.Background(), "session-1")
	assert.Equal(t, "INVALID_STATE", errorCode(t, err))
}

func TestSessionServiceCompleteBlockedByOpenChange(t *testing.T) {
	store := newMockSessionStore()
	seedSession(store, "session-1", models.SessionStatusUpcoming)
	svc, _ := newSessionServiceForTest(store)
	ctx := context.Background()

	_, err := svc.RequestChange(ctx, "session-1", RequestChangeRequest{
		Requester: models.ChangeRequesterStudent, Type: models.ChangeTypeCancel, Reason: "sick",
	})
	require.NoError(t, err)

	_, err = svc.Complete(ctx, "session-1")
	assert.Equal(t, "INVALID_STATE", errorCode(t, err))
}

func TestSessionServiceSinglePendingChange(t *testing.T) {
	store := newMockSessionStore()
	seedSession(store, "session-1", models.SessionStatusUpcoming)
	svc, notify := newSessionServiceForTest(store)
	ctx := context.Background()

	session, err := svc.RequestChange(ctx, "session-1", RequestChangeRequest{
		Requester: models.ChangeRequesterStudent, Type: models.ChangeTypeReschedule, Reason: "clash",
		NewDate: "2026-09-09", NewStartTime: "14:00", NewEndTime: "15:00",
	})
	require.NoError(t, err)
	require.True(t, session.HasPendingChange())
	assert.Equal(t, "2026-09-09", session.PendingChange().NewDate)

	_, err = svc.RequestChange(ctx, "session-1", RequestChangeRequest{
		Requester: models.ChangeRequesterTutor, Type: models.ChangeTypeCancel, Reason: "travel",
	})
	assert.Equal(t, "DUPLICATE_PENDING_CHANGE", errorCode(t, err))

	require.Len(t, notify.published, 1)
	assert.Equal(t, models.NotificationChangeRequested, notify.published[0].Kind)
	assert.Equal(t, "tutor-1", notify.published[0].UserID)
}

func TestSessionServiceConcurrentChangeRequestsSingleWinner(t *testing.T) {
	store := newMockSessionStore()
	seedSession(store, "session-1", models.SessionStatusUpcoming)
	svc, _ := newSessionServiceForTest(store)

	start := make(chan struct{})
	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for _, requester := range []models.ChangeRequester{models.ChangeRequesterStudent, models.ChangeRequesterTutor} {
		wg.Add(1)
		go func(requester models.ChangeRequester) {
			defer wg.Done()
			<-start
			_, err := svc.RequestChange(context.Background(), "session-1", RequestChangeRequest{
				Requester: requester, Type: models.ChangeTypeCancel, Reason: "clash",
			})
			errs <- err
		}(requester)
	}
	close(start)
	wg.Wait()
	close(errs)

	var failures int
	for err := range errs {
		if err != nil {
			failures++
			assert.Equal(t, "DUPLICATE_PENDING_CHANGE", errorCode(t, err))
		}
	}
	assert.Equal(t, 1, failures)
	assert.Equal(t, 1, store.setChangeCalls)
}

func TestSessionServiceChangeRequestRequiresUpcoming(t *testing.T) {
	store := newMockSessionStore()
	seedSession(store, "session-1", models.SessionStatusCompleted)
	svc, _ := newSessionServiceForTest(store)

	_, err := svc.RequestChange(context.Background(), "session-1", RequestChangeRequest{
		Requester: models.ChangeRequesterStudent, Type: models.ChangeTypeCancel, Reason: "late",
	})
	assert.Equal(t, "INVALID_STATE", errorCode(t, err))
}

func TestSessionServiceRescheduleRequiresNewInterval(t *testing.T) {
	store := newMockSessionStore()
	seedSession(store, "session-1", models.SessionStatusUpcoming)
	svc, _ := newSessionServiceForTest(store)

	_, err := svc.RequestChange(context.Background(), "session-1", RequestChangeRequest{
		Requester: models.ChangeRequesterStudent, Type: models.ChangeTypeReschedule, Reason: "clash",
	})
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, err))
}

func TestSessionServiceApproveReschedule(t *testing.T) {
	store := newMockSessionStore()
	seedSession(store, "session-1", models.SessionStatusUpcoming)
	svc, notify := newSessionServiceForTest(store)
	ctx := context.Background()

	_, err := svc.RequestChange(ctx, "session-1", RequestChangeRequest{
		Requester: models.ChangeRequesterStudent, Type: models.ChangeTypeReschedule, Reason: "clash",
		NewDate: "2026-09-09", NewStartTime: "14:00", NewEndTime: "15:00",
	})
	require.NoError(t, err)

	session, err := svc.ApproveChange(ctx, "session-1")
	require.NoError(t, err)
	assert.Equal(t, "2026-09-09", session.Date)
	assert.Equal(t, "14:00 - 15:00", session.TimeRange)
	assert.False(t, session.HasPendingChange())
	assert.Equal(t, models.SessionStatusUpcoming, session.Status)

	last := notify.published[len(notify.published)-1]
	assert.Equal(t, models.NotificationChangeApproved, last.Kind)
	assert.Equal(t, "student-1", last.UserID)
}

func TestSessionServiceApproveRescheduleRejectsConflict(t *testing.T) {
	store := newMockSessionStore()
	seedSession(store, "session-1", models.SessionStatusUpcoming)
	// Another upcoming session occupies the target interval.
	seedSession(store, "session-2", models.SessionStatusUpcoming)
	blocker := store.sessions["session-2"]
	blocker.Date = "2026-09-09"
	blocker.TimeRange = "14:30 - 15:30"
	svc, _ := newSessionServiceForTest(store)
	ctx := context.Background()

	_, err := svc.RequestChange(ctx, "session-1", RequestChangeRequest{
		Requester: models.ChangeRequesterStudent, Type: models.ChangeTypeReschedule, Reason: "clash",
		NewDate: "2026-09-09", NewStartTime: "14:00", NewEndTime: "15:00",
	})
	require.NoError(t, err)

	_, err = svc.ApproveChange(ctx, "session-1")
	assert.Equal(t, "SCHEDULE_CONFLICT", errorCode(t, err))

	// The session keeps its original interval and the change stays open.
	current, err := svc.Get(ctx, "session-1")
	require.NoError(t, err)
	assert.Equal(t, "2026-09-07", current.Date)
	assert.True(t, current.HasPendingChange())
}

func TestSessionServiceRescheduleExcludesSelfFromConflictScan(t *testing.T) {
	store := newMockSessionStore()
	seedSession(store, "session-1", models.SessionStatusUpcoming)
	svc, _ := newSessionServiceForTest(store)
	ctx := context.Background()

	// Moving within the session's own original interval must not self-conflict.
	_, err := svc.RequestChange(ctx, "session-1", RequestChangeRequest{
		Requester: models.ChangeRequesterTutor, Type: models.ChangeTypeReschedule, Reason: "shift",
		NewDate: "2026-09-07", NewStartTime: "09:30", NewEndTime: "10:30",
	})
	require.NoError(t, err)

	session, err := svc.ApproveChange(ctx, "session-1")
	require.NoError(t, err)
	assert.Equal(t, "09:30 - 10:30", session.TimeRange)
}

func TestSessionServiceApproveCancelUsesRequesterStatus(t *testing.T) {
	store := newMockSessionStore()
	seedSession(store, "session-1", models.SessionStatusUpcoming)
	seedSession(store, "session-2", models.SessionStatusUpcoming)
	store.sessions["session-2"].TimeRange = "11:00 - 12:00"
	svc, _ := newSessionServiceForTest(store)
	ctx := context.Background()

	_, err := svc.RequestChange(ctx, "session-1", RequestChangeRequest{
		Requester: models.ChangeRequesterStudent, Type: models.ChangeTypeCancel, Reason: "sick",
	})
	require.NoError(t, err)
	session, err := svc.ApproveChange(ctx, "session-1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusCancelledByStudent, session.Status)

	_, err = svc.RequestChange(ctx, "session-2", RequestChangeRequest{
		Requester: models.ChangeRequesterTutor, Type: models.ChangeTypeCancel, Reason: "travel",
	})
	require.NoError(t, err)
	session, err = svc.ApproveChange(ctx, "session-2")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusCancelledByTutor, session.Status)
}

func TestSessionServiceRejectChangeKeepsSession(t *testing.T) {
	store := newMockSessionStore()
	seedSession(store, "session-1", models.SessionStatusUpcoming)
	svc, notify := newSessionServiceForTest(store)
	ctx := context.Background()

	_, err := svc.RequestChange(ctx, "session-1", RequestChangeRequest{
		Requester: models.ChangeRequesterStudent, Type: models.ChangeTypeCancel, Reason: "sick",
	})
	require.NoError(t, err)

	session, err := svc.RejectChange(ctx, "session-1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusUpcoming, session.Status)
	assert.False(t, session.HasPendingChange())

	last := notify.published[len(notify.published)-1]
	assert.Equal(t, models.NotificationChangeRejected, last.Kind)
	assert.Equal(t, "student-1", last.UserID)

	// A new change request is allowed after rejection.
	_, err = svc.RequestChange(ctx, "session-1", RequestChangeRequest{
		Requester: models.ChangeRequesterStudent, Type: models.ChangeTypeCancel, Reason: "still sick",
	})
	assert.NoError(t, err)
}

func TestSessionServiceListUpcomingHidesOpenChanges(t *testing.T) {
	store := newMockSessionStore()
	seedSession(store, "session-1", models.SessionStatusUpcoming)
	seedSession(store, "session-2", models.SessionStatusUpcoming)
	store.sessions["session-2"].TimeRange = "11:00 - 12:00"
	svc, _ := newSessionServiceForTest(store)
	ctx := context.Background()

	_, err := svc.RequestChange(ctx, "session-1", RequestChangeRequest{
		Requester: models.ChangeRequesterStudent, Type: models.ChangeTypeCancel, Reason: "sick",
	})
	require.NoError(t, err)

	sessions, pagination, err := svc.List(ctx, models.SessionFilter{TutorID: "tutor-1", Status: models.SessionStatusUpcoming})
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "session-2", sessions[0].ID)
	assert.Equal(t, 1, pagination.TotalCount)
}

func TestSessionServiceReviewOnlyOnCompleted(t *testing.T) {
	store := newMockSessionStore()
	seedSession(store, "session-1", models.SessionStatusUpcoming)
	svc, _ := newSessionServiceForTest(store)
	ctx := context.Background()

	_, err := svc.AttachReview(ctx, "session-1", ReviewRequest{Rating: 5, Comment: "great"})
	assert.Equal(t, "INVALID_STATE", errorCode(t, err))

	_, err = svc.Complete(ctx, "session-1")
	require.NoError(t, err)

	session, err := svc.AttachReview(ctx, "session-1", ReviewRequest{Rating: 5, Comment: "great"})
	require.NoError(t, err)
	require.NotNil(t, session.ReviewRating)
	assert.Equal(t, 5, *session.ReviewRating)

	// A later review replaces the earlier one.
	session, err = svc.AttachReview(ctx, "session-1", ReviewRequest{Rating: 3, Comment: "revised"})
	require.NoError(t, err)
	assert.Equal(t, 3, *session.ReviewRating)
}

func TestSessionServiceReviewValidatesRating(t *testing.T) {
	store := newMockSessionStore()
	seedSession(store, "session-1", models.SessionStatusCompleted)
	svc, _ := newSessionServiceForTest(store)

	_, err := svc.AttachReview(context.Background(), "session-1", ReviewRequest{Rating: 6})
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, err))
}

func TestSessionServiceProgressNoteOnlyOnCompleted(t *testing.T) {
	store := newMockSessionStore()
	seedSession(store, "session-1", models.SessionStatusUpcoming)
	svc, _ := newSessionServiceForTest(store)
	ctx := context.Background()

	_, err := svc.AttachProgressNote(ctx, "session-1", ProgressNoteRequest{Content: "good pace", Evaluation: models.EvaluationGood})
	assert.Equal(t, "INVALID_STATE", errorCode(t, err))

	_, err = svc.Complete(ctx, "session-1")
	require.NoError(t, err)

	session, err := svc.AttachProgressNote(ctx, "session-1", ProgressNoteRequest{Content: "good pace", Evaluation: models.EvaluationGood})
	require.NoError(t, err)
	require.NotNil(t, session.NoteContent)
	assert.Equal(t, "good pace", *session.NoteContent)
	require.NotNil(t, session.NoteEvaluation)
	assert.Equal(t, models.EvaluationGood, *session.NoteEvaluation)
}

func TestSessionServiceGetNotFound(t *testing.T) {
	store := newMockSessionStore()
	svc, _ := newSessionServiceForTest(store)

	_, err := svc.Get(context.Background(), "missing")
	assert.Equal(t, "NOT_FOUND", errorCode(t, err))
}

func TestSessionServiceChangeRequestStampsTime(t *testing.T) {
	store := newMockSessionStore()
	seedSession(store, "session-1", models.SessionStatusUpcoming)
	svc, _ := newSessionServiceForTest(store)

	before := time.Now().Add(-time.Second)
	session, err := svc.RequestChange(context.Background(), "session-1", RequestChangeRequest{
		Requester: models.ChangeRequesterTutor, Type: models.ChangeTypeCancel, Reason: "travel",
	})
	require.NoError(t, err)
	change := session.PendingChange()
	require.NotNil(t, change)
	assert.True(t, change.CreatedAt.After(before))
}
