package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/tutorbase/tutorbase-api/internal/models"
	appErrors "github.com/tutorbase/tutorbase-api/pkg/errors"
	"github.com/tutorbase/tutorbase-api/pkg/timeslot"
)

type sessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	FindByID(ctx context.Context, id string) (*models.Session, error)
	List(ctx context.Context, filter models.SessionFilter) ([]models.Session, int, error)
	SetPendingChange(ctx context.Context, id string, change models.PendingChange) error
	ClearPendingChange(ctx context.Context, id string) error
	ApplyReschedule(ctx context.Context, id, date, timeRange string) error
	ResolveCancel(ctx context.Context, id string, status models.SessionStatus) error
	UpdateStatus(ctx context.Context, id string, status models.SessionStatus) error
	AttachReview(ctx context.Context, id string, rating int, comment string) error
	AttachProgressNote(ctx context.Context, id, content string, evaluation models.Evaluation) error
}

// CreateSessionRequest describes an ad hoc session created outside the slot
// booking workflow.
type CreateSessionRequest struct {
	TutorID          string             `json:"tutor_id" validate:"required"`
	StudentID        string             `json:"student_id" validate:"required"`
	Title            string             `json:"title" validate:"required"`
	Date             string             `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime        string             `json:"start_time" validate:"required"`
	EndTime          string             `json:"end_time" validate:"required"`
	Type             models.SessionType `json:"type" validate:"required,oneof=online in_person"`
	LocationOrLink   string             `json:"location_or_link"`
	TeachingPeriodID string             `json:"teaching_period_id"`
}

// RequestChangeRequest opens a pending change on an upcoming session.
type RequestChangeRequest struct {
	Requester    models.ChangeRequester `json:"requester" validate:"required,oneof=tutor student"`
	Type         models.ChangeType      `json:"type" validate:"required,oneof=reschedule cancel"`
	Reason       string                 `json:"reason" validate:"required"`
	NewDate      string                 `json:"new_date" validate:"omitempty,datetime=2006-01-02"`
	NewStartTime string                 `json:"new_start_time"`
	NewEndTime   string                 `json:"new_end_time"`
}

// ReviewRequest attaches a student review to a completed session.
type ReviewRequest struct {
	Rating  int    `json:"rating" validate:"required,gte=1,lte=5"`
	Comment string `json:"comment"`
}

// ProgressNoteRequest attaches a tutor progress note to a completed session.
type ProgressNoteRequest struct {
	Content    string            `json:"content" validate:"required"`
	Evaluation models.Evaluation `json:"evaluation" validate:"required,oneof=excellent good average needs_improvement"`
}

// SessionService manages the session lifecycle: ad hoc creation, completion,
// the change-request workflow and post-session artifacts.
type SessionService struct {
	repo      sessionRepository
	conflicts conflictFinder
	locks     *TutorLocks
	notify    notifier
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSessionService constructs SessionService.
func NewSessionService(repo sessionRepository, conflicts conflictFinder, locks *TutorLocks,
	notify notifier, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *SessionService {
	if locks == nil {
		locks = NewTutorLocks()
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{
		repo:      repo,
		conflicts: conflicts,
		locks:     locks,
		notify:    notify,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
	}
}

// List returns sessions matching the filter. Listing upcoming sessions
// excludes those with an open change request.
func (s *SessionService) List(ctx context.Context, filter models.SessionFilter) ([]models.Session, *models.Pagination, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = 20
	}
	sessions, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}
	return sessions, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Get returns a session by ID.
func (s *SessionService) Get(ctx context.Context, id string) (*models.Session, error) {
	session, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	return session, nil
}

// Create adds an ad hoc session after validating its interval against the
// tutor's calendar.
func (s *SessionService) Create(ctx context.Context, req CreateSessionRequest) (*models.Session, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}
	if _, _, err := timeslot.ParseInterval(req.StartTime, req.EndTime); err != nil {
		return nil, err
	}

	s.locks.Lock(req.TutorID)
	defer s.locks.Unlock(req.TutorID)

	ref, err := s.conflicts.FindConflict(ctx, req.TutorID, req.Date, req.StartTime, req.EndTime, ConflictExclude{})
	if err != nil {
		return nil, err
	}
	if ref != nil {
		s.metrics.RecordConflict()
		return nil, conflictError(ref)
	}

	session := &models.Session{
		TutorID:          req.TutorID,
		StudentID:        req.StudentID,
		TeachingPeriodID: optional(req.TeachingPeriodID),
		Title:            req.Title,
		Date:             req.Date,
		TimeRange:        timeslot.FormatSpan(req.StartTime, req.EndTime),
		Status:           models.SessionStatusUpcoming,
		Type:             req.Type,
		LocationOrLink:   req.LocationOrLink,
	}
	if err := s.repo.Create(ctx, session); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create session")
	}
	s.logger.Info("session created",
		zap.String("session_id", session.ID),
		zap.String("tutor_id", session.TutorID),
		zap.String("date", session.Date))
	return session, nil
}

// Complete marks an upcoming session as held. A session with an open change
// request must be resolved first.
func (s *SessionService) Complete(ctx context.Context, id string) (*models.Session, error) {
	session, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	s.locks.Lock(session.TutorID)
	defer s.locks.Unlock(session.TutorID)

	// Re-read under the lock: a change request may have landed in between.
	session, err = s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionStatusUpcoming {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "only upcoming sessions can be completed")
	}
	if session.HasPendingChange() {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "session has an unresolved change request")
	}
	if err := s.repo.UpdateStatus(ctx, id, models.SessionStatusCompleted); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to complete session")
	}
	session.Status = models.SessionStatusCompleted
	return session, nil
}

// RequestChange opens a reschedule or cancellation request on an upcoming
// session. The proposed interval is not checked against the calendar here;
// that happens at approval time.
func (s *SessionService) RequestChange(ctx context.Context, id string, req RequestChangeRequest) (*models.Session, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid change request payload")
	}

	change := models.PendingChange{
		Type:        req.Type,
		Reason:      req.Reason,
		RequestedBy: req.Requester,
		CreatedAt:   time.Now().UTC(),
	}
	if req.Type == models.ChangeTypeReschedule {
		if req.NewDate == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "reschedule requests need a new date")
		}
		if _, _, err := timeslot.ParseInterval(req.NewStartTime, req.NewEndTime); err != nil {
			return nil, err
		}
		change.NewDate = req.NewDate
		change.NewTime = timeslot.FormatSpan(req.NewStartTime, req.NewEndTime)
	}

	session, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	s.locks.Lock(session.TutorID)
	defer s.locks.Unlock(session.TutorID)

	// Re-read under the lock: a concurrent requester may have won the race.
	session, err = s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionStatusUpcoming {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "only upcoming sessions accept change requests")
	}
	if session.HasPendingChange() {
		return nil, appErrors.Clone(appErrors.ErrDuplicatePendingChange, "session already has an open change request")
	}

	if err := s.repo.SetPendingChange(ctx, id, change); err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record change request")
	}
	s.metrics.RecordChangeRequest(string(req.Type))
	s.publish(models.Notification{
		UserID:    s.counterpart(session, req.Requester),
		Kind:      models.NotificationChangeRequested,
		Message:   fmt.Sprintf("A %s was requested for the session on %s", req.Type, session.Date),
		SessionID: &session.ID,
	})
	return s.Get(ctx, id)
}

// ApproveChange applies an open change request. Reschedules are re-validated
// against the tutor's calendar, excluding the session being moved, before the
// new interval is committed.
func (s *SessionService) ApproveChange(ctx context.Context, id string) (*models.Session, error) {
	session, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	s.locks.Lock(session.TutorID)
	defer s.locks.Unlock(session.TutorID)

	session, err = s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	change := session.PendingChange()
	if change == nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "session has no open change request")
	}

	switch change.Type {
	case models.ChangeTypeReschedule:
		start, end, err := timeslot.ParseSpan(change.NewTime)
		if err != nil {
			return nil, err
		}
		// The source slot still occupies the old interval; it must not block
		// the session moving away from it.
		exclude := ConflictExclude{SessionID: session.ID}
		if session.SourceSlotID != nil {
			exclude.SlotID = *session.SourceSlotID
		}
		ref, err := s.conflicts.FindConflict(ctx, session.TutorID, change.NewDate,
			minutesToClock(start), minutesToClock(end), exclude)
		if err != nil {
			return nil, err
		}
		if ref != nil {
			s.metrics.RecordConflict()
			return nil, conflictError(ref)
		}
		if err := s.repo.ApplyReschedule(ctx, id, change.NewDate, change.NewTime); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply reschedule")
		}
	case models.ChangeTypeCancel:
		status := models.SessionStatusCancelledByStudent
		if change.RequestedBy == models.ChangeRequesterTutor {
			status = models.SessionStatusCancelledByTutor
		}
		if err := s.repo.ResolveCancel(ctx, id, status); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply cancellation")
		}
	default:
		return nil, appErrors.Clone(appErrors.ErrInternal, "unknown change type")
	}

	s.metrics.RecordChangeResolution("approved")
	s.publish(models.Notification{
		UserID:    s.requesterID(session, change.RequestedBy),
		Kind:      models.NotificationChangeApproved,
		Message:   fmt.Sprintf("Your %s request for the session on %s was approved", change.Type, session.Date),
		SessionID: &session.ID,
	})
	s.logger.Info("change request approved",
		zap.String("session_id", session.ID),
		zap.String("type", string(change.Type)))
	return s.Get(ctx, id)
}

// RejectChange discards an open change request, leaving the session as it was.
func (s *SessionService) RejectChange(ctx context.Context, id string) (*models.Session, error) {
	session, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	s.locks.Lock(session.TutorID)
	defer s.locks.Unlock(session.TutorID)

	session, err = s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	change := session.PendingChange()
	if change == nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "session has no open change request")
	}
	if err := s.repo.ClearPendingChange(ctx, id); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reject change request")
	}
	s.metrics.RecordChangeResolution("rejected")
	s.publish(models.Notification{
		UserID:    s.requesterID(session, change.RequestedBy),
		Kind:      models.NotificationChangeRejected,
		Message:   fmt.Sprintf("Your %s request for the session on %s was declined", change.Type, session.Date),
		SessionID: &session.ID,
	})
	return s.Get(ctx, id)
}

// AttachReview records a student review on a completed session. A later
// review overwrites the earlier one.
func (s *SessionService) AttachReview(ctx context.Context, id string, req ReviewRequest) (*models.Session, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid review payload")
	}
	session, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionStatusCompleted {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "only completed sessions can be reviewed")
	}
	if err := s.repo.AttachReview(ctx, id, req.Rating, req.Comment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to attach review")
	}
	return s.Get(ctx, id)
}

// AttachProgressNote records a tutor progress note on a completed session.
func (s *SessionService) AttachProgressNote(ctx context.Context, id string, req ProgressNoteRequest) (*models.Session, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid progress note payload")
	}
	session, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionStatusCompleted {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "progress notes require a completed session")
	}
	if err := s.repo.AttachProgressNote(ctx, id, req.Content, req.Evaluation); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to attach progress note")
	}
	return s.Get(ctx, id)
}

func (s *SessionService) counterpart(session *models.Session, requester models.ChangeRequester) string {
	if requester == models.ChangeRequesterTutor {
		return session.StudentID
	}
	return session.TutorID
}

func (s *SessionService) requesterID(session *models.Session, requester models.ChangeRequester) string {
	if requester == models.ChangeRequesterTutor {
		return session.TutorID
	}
	return session.StudentID
}

func (s *SessionService) publish(n models.Notification) {
	if s.notify != nil {
		s.notify.Publish(n)
	}
}
