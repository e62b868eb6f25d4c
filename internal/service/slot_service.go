package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/tutorbase/tutorbase-api/internal/models"
	"github.com/tutorbase/tutorbase-api/pkg/config"
	appErrors "github.com/tutorbase/tutorbase-api/pkg/errors"
	"github.com/tutorbase/tutorbase-api/pkg/timeslot"
)

type slotRepository interface {
	Create(ctx context.Context, slot *models.AvailabilitySlot) error
	CreateBatch(ctx context.Context, slots []models.AvailabilitySlot) error
	FindByID(ctx context.Context, id string) (*models.AvailabilitySlot, error)
	List(ctx context.Context, filter models.SlotFilter) ([]models.AvailabilitySlot, error)
	Update(ctx context.Context, slot *models.AvailabilitySlot) error
	ApproveWithSession(ctx context.Context, slot *models.AvailabilitySlot, session *models.Session) error
	Delete(ctx context.Context, id string) error
	DeleteWithDerivedSessions(ctx context.Context, id string) error
}

type conflictFinder interface {
	FindConflict(ctx context.Context, tutorID, date, start, end string, exclude ConflictExclude) (*models.ConflictRef, error)
}

type periodReader interface {
	FindByID(ctx context.Context, id string) (*models.TeachingPeriod, error)
}

type notifier interface {
	Publish(n models.Notification)
}

// CreateSlotRequest describes a single slot creation.
type CreateSlotRequest struct {
	TutorID          string          `json:"tutor_id" validate:"required"`
	Date             string          `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime        string          `json:"start_time" validate:"required"`
	EndTime          string          `json:"end_time" validate:"required"`
	Kind             models.SlotKind `json:"kind" validate:"omitempty,oneof=one_on_one group"`
	TeachingPeriodID string          `json:"teaching_period_id"`
	Title            string          `json:"title"`
	Description      string          `json:"description"`
	Location         string          `json:"location"`
	MaxStudents      int             `json:"max_students" validate:"omitempty,gte=1"`
	Attachments      []string        `json:"attachments"`
}

// CreateRecurringSlotsRequest describes a recurring batch creation.
type CreateRecurringSlotsRequest struct {
	CreateSlotRequest
	Unit      RecurrenceUnit `json:"unit" validate:"required,oneof=day week month"`
	Frequency int            `json:"frequency" validate:"required,gte=1"`
	Count     int            `json:"count" validate:"required,gte=1"`
}

// BookSlotRequest is a student's request to take an available slot.
type BookSlotRequest struct {
	StudentID        string `json:"student_id" validate:"required"`
	StudentName      string `json:"student_name" validate:"required"`
	Subject          string `json:"subject"`
	Note             string `json:"note"`
	TeachingPeriodID string `json:"teaching_period_id"`
}

// SlotService owns availability slot mutation: creation (single and
// recurring), the book/approve/reject workflow and deletion. Every
// check-then-act sequence runs under the tutor's calendar lock.
type SlotService struct {
	repo      slotRepository
	conflicts conflictFinder
	periods   periodReader
	locks     *TutorLocks
	cache     *CacheService
	notify    notifier
	metrics   *MetricsService
	booking   config.BookingConfig
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSlotService constructs SlotService.
func NewSlotService(repo slotRepository, conflicts conflictFinder, periods periodReader, locks *TutorLocks,
	cache *CacheService, notify notifier, metrics *MetricsService, booking config.BookingConfig,
	validate *validator.Validate, logger *zap.Logger) *SlotService {
	if locks == nil {
		locks = NewTutorLocks()
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SlotService{
		repo:      repo,
		conflicts: conflicts,
		periods:   periods,
		locks:     locks,
		cache:     cache,
		notify:    notify,
		metrics:   metrics,
		booking:   booking,
		validator: validate,
		logger:    logger,
	}
}

// List returns a tutor's slots, optionally filtered by date, consulting the
// listing cache first.
func (s *SlotService) List(ctx context.Context, filter models.SlotFilter) ([]models.AvailabilitySlot, error) {
	key := TutorSlotsKey(filter.TutorID, filter.Date)
	if filter.TutorID != "" && filter.Status == "" {
		var cached []models.AvailabilitySlot
		if hit, _ := s.cache.Get(ctx, key, &cached); hit {
			return cached, nil
		}
	}
	slots, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list slots")
	}
	if filter.TutorID != "" && filter.Status == "" {
		_ = s.cache.Set(ctx, key, slots, 0)
	}
	return slots, nil
}

// Get returns a slot by ID.
func (s *SlotService) Get(ctx context.Context, id string) (*models.AvailabilitySlot, error) {
	slot, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "slot not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load slot")
	}
	return slot, nil
}

// Create adds a single slot after validating its interval against the tutor's
// calendar.
func (s *SlotService) Create(ctx context.Context, req CreateSlotRequest) (*models.AvailabilitySlot, error) {
	slot, err := s.buildSlot(ctx, req)
	if err != nil {
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

	if err := s.repo.Create(ctx, slot); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create slot")
	}
	s.cache.InvalidateTutor(ctx, req.TutorID)
	s.logger.Info("slot created",
		zap.String("slot_id", slot.ID),
		zap.String("tutor_id", slot.TutorID),
		zap.String("date", slot.Date))
	return slot, nil
}

// CreateRecurring expands the recurrence rule and creates the whole batch, or
// nothing at all: every produced date is validated against the calendar and
// against earlier dates in the same batch before any write happens.
func (s *SlotService) CreateRecurring(ctx context.Context, req CreateRecurringSlotsRequest) ([]models.AvailabilitySlot, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid recurring slot payload")
	}
	if max := s.booking.MaxRecurrenceCount; max > 0 && req.Count > max {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("recurrence count exceeds limit of %d", max))
	}

	template, err := s.buildSlot(ctx, req.CreateSlotRequest)
	if err != nil {
		return nil, err
	}

	dates, err := ExpandDates(req.Date, req.Unit, req.Frequency, req.Count)
	if err != nil {
		return nil, err
	}

	s.locks.Lock(req.TutorID)
	defer s.locks.Unlock(req.TutorID)

	batchDates := make(map[string]struct{}, len(dates))
	for _, date := range dates {
		ref, err := s.conflicts.FindConflict(ctx, req.TutorID, date, req.StartTime, req.EndTime, ConflictExclude{})
		if err != nil {
			return nil, err
		}
		if ref == nil {
			if _, taken := batchDates[date]; taken {
				// The rule produced the same date twice; the batch itself
				// would double-book the interval.
				ref = &models.ConflictRef{Kind: "slot", ID: "", Date: date, Start: req.StartTime, End: req.EndTime}
			}
		}
		if ref != nil {
			s.metrics.RecordConflict()
			s.metrics.RecordRecurrenceBatch("conflict")
			return nil, conflictError(ref)
		}
		batchDates[date] = struct{}{}
	}

	slots := make([]models.AvailabilitySlot, len(dates))
	for i, date := range dates {
		slot := *template
		slot.ID = ""
		slot.Date = date
		slots[i] = slot
	}
	if err := s.repo.CreateBatch(ctx, slots); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create recurring slots")
	}
	s.cache.InvalidateTutor(ctx, req.TutorID)
	s.metrics.RecordRecurrenceBatch("committed")
	s.logger.Info("recurring slots created",
		zap.String("tutor_id", req.TutorID),
		zap.Int("count", len(slots)),
		zap.String("unit", string(req.Unit)))
	return slots, nil
}

// Book requests an available slot for a student. One-on-one slots move to
// pending awaiting tutor approval; group slots enroll the student directly.
func (s *SlotService) Book(ctx context.Context, slotID string, req BookSlotRequest) (*models.AvailabilitySlot, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid booking payload")
	}

	slot, err := s.Get(ctx, slotID)
	if err != nil {
		return nil, err
	}

	s.locks.Lock(slot.TutorID)
	defer s.locks.Unlock(slot.TutorID)

	// Re-read under the lock: a concurrent booker may have won the race.
	slot, err = s.Get(ctx, slotID)
	if err != nil {
		return nil, err
	}

	if slot.Kind == models.SlotKindGroup {
		return s.enrollGroup(ctx, slot, req)
	}

	if slot.Status != models.SlotStatusAvailable {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "slot is no longer available")
	}

	if req.TeachingPeriodID != "" {
		if err := s.checkPeriod(ctx, req.TeachingPeriodID, slot.TutorID); err != nil {
			return nil, err
		}
	}

	slot.Status = models.SlotStatusPending
	slot.BookedByStudentID = &req.StudentID
	slot.BookedByStudentName = &req.StudentName
	slot.Subject = optional(req.Subject)
	slot.RequestNote = optional(req.Note)
	slot.TeachingPeriodID = optional(req.TeachingPeriodID)

	if err := s.repo.Update(ctx, slot); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to book slot")
	}
	s.cache.InvalidateTutor(ctx, slot.TutorID)
	s.metrics.RecordBooking()
	s.publish(models.Notification{
		UserID:  slot.TutorID,
		Kind:    models.NotificationSlotBooked,
		Message: fmt.Sprintf("%s requested your %s slot on %s", req.StudentName, slot.StartTime, slot.Date),
		SlotID:  &slot.ID,
	})
	return slot, nil
}

// Approve confirms a pending booking: the slot becomes booked and its derived
// session is created in the same transaction. This is the sole path by which
// slots produce sessions.
func (s *SlotService) Approve(ctx context.Context, slotID string) (*models.Session, error) {
	slot, err := s.Get(ctx, slotID)
	if err != nil {
		return nil, err
	}

	s.locks.Lock(slot.TutorID)
	defer s.locks.Unlock(slot.TutorID)

	slot, err = s.Get(ctx, slotID)
	if err != nil {
		return nil, err
	}
	if slot.Status != models.SlotStatusPending {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "only pending slots can be approved")
	}
	if slot.BookedByStudentID == nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "pending slot is missing booking metadata")
	}

	session := s.sessionFromSlot(slot)
	if err := s.repo.ApproveWithSession(ctx, slot, session); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to approve slot")
	}
	s.cache.InvalidateTutor(ctx, slot.TutorID)
	s.metrics.RecordApproval()
	s.publish(models.Notification{
		UserID:    *slot.BookedByStudentID,
		Kind:      models.NotificationSlotApproved,
		Message:   fmt.Sprintf("Your booking on %s at %s was approved", slot.Date, slot.StartTime),
		SlotID:    &slot.ID,
		SessionID: &session.ID,
	})
	s.logger.Info("slot approved",
		zap.String("slot_id", slot.ID),
		zap.String("session_id", session.ID))
	return session, nil
}

// Reject declines a pending booking, clearing its metadata and returning the
// slot to the open pool.
func (s *SlotService) Reject(ctx context.Context, slotID string) (*models.AvailabilitySlot, error) {
	slot, err := s.Get(ctx, slotID)
	if err != nil {
		return nil, err
	}

	s.locks.Lock(slot.TutorID)
	defer s.locks.Unlock(slot.TutorID)

	slot, err = s.Get(ctx, slotID)
	if err != nil {
		return nil, err
	}
	if slot.Status != models.SlotStatusPending {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "only pending slots can be rejected")
	}

	student := slot.BookedByStudentID
	slot.Status = models.SlotStatusAvailable
	slot.ClearBooking()

	if err := s.repo.Update(ctx, slot); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reject slot")
	}
	s.cache.InvalidateTutor(ctx, slot.TutorID)
	s.metrics.RecordRejection()
	if student != nil {
		s.publish(models.Notification{
			UserID:  *student,
			Kind:    models.NotificationSlotRejected,
			Message: fmt.Sprintf("Your booking on %s at %s was declined", slot.Date, slot.StartTime),
			SlotID:  &slot.ID,
		})
	}
	return slot, nil
}

// Delete removes a slot in any status. Deleting a booked slot also retracts
// the sessions it produced.
func (s *SlotService) Delete(ctx context.Context, slotID string) error {
	slot, err := s.Get(ctx, slotID)
	if err != nil {
		return err
	}

	s.locks.Lock(slot.TutorID)
	defer s.locks.Unlock(slot.TutorID)

	slot, err = s.Get(ctx, slotID)
	if err != nil {
		return err
	}

	if slot.Status == models.SlotStatusBooked {
		err = s.repo.DeleteWithDerivedSessions(ctx, slot.ID)
	} else {
		err = s.repo.Delete(ctx, slot.ID)
	}
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete slot")
	}
	s.cache.InvalidateTutor(ctx, slot.TutorID)

	message := fmt.Sprintf("The %s slot on %s was cancelled by the tutor", slot.StartTime, slot.Date)
	if slot.Kind == models.SlotKindGroup {
		// Group cancellation is a single tutor action covering every enrollee.
		for _, studentID := range slot.EnrolledStudentIDs {
			id := studentID
			s.publish(models.Notification{UserID: id, Kind: models.NotificationSlotCancelled, Message: message, SlotID: &slot.ID})
		}
	} else if slot.BookedByStudentID != nil {
		s.publish(models.Notification{UserID: *slot.BookedByStudentID, Kind: models.NotificationSlotCancelled, Message: message, SlotID: &slot.ID})
	}
	s.logger.Info("slot deleted",
		zap.String("slot_id", slot.ID),
		zap.String("status", string(slot.Status)))
	return nil
}

func (s *SlotService) enrollGroup(ctx context.Context, slot *models.AvailabilitySlot, req BookSlotRequest) (*models.AvailabilitySlot, error) {
	if slot.Enrolled(req.StudentID) {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "student already enrolled in this group slot")
	}
	if len(slot.EnrolledStudentIDs) >= slot.MaxStudents {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "group slot is full")
	}

	slot.EnrolledStudentIDs = append(slot.EnrolledStudentIDs, req.StudentID)
	if len(slot.EnrolledStudentIDs) >= slot.MaxStudents {
		slot.Status = models.SlotStatusBooked
	}

	if err := s.repo.Update(ctx, slot); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enroll in group slot")
	}
	s.cache.InvalidateTutor(ctx, slot.TutorID)
	s.metrics.RecordBooking()
	s.publish(models.Notification{
		UserID:  slot.TutorID,
		Kind:    models.NotificationGroupEnrolled,
		Message: fmt.Sprintf("%s joined your group slot on %s (%d/%d)", req.StudentName, slot.Date, len(slot.EnrolledStudentIDs), slot.MaxStudents),
		SlotID:  &slot.ID,
	})
	return slot, nil
}

func (s *SlotService) buildSlot(ctx context.Context, req CreateSlotRequest) (*models.AvailabilitySlot, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid slot payload")
	}
	if _, _, err := timeslot.ParseInterval(req.StartTime, req.EndTime); err != nil {
		return nil, err
	}

	kind := req.Kind
	if kind == "" {
		kind = models.SlotKindOneOnOne
	}
	maxStudents := 1
	if kind == models.SlotKindGroup {
		if req.MaxStudents < 2 {
			return nil, appErrors.Clone(appErrors.ErrValidation, "group slots need a capacity of at least 2")
		}
		if max := s.booking.MaxGroupSize; max > 0 && req.MaxStudents > max {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("group capacity exceeds limit of %d", max))
		}
		if req.Title == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "group slots need a title")
		}
		maxStudents = req.MaxStudents
	}

	if req.TeachingPeriodID != "" {
		if err := s.checkPeriod(ctx, req.TeachingPeriodID, req.TutorID); err != nil {
			return nil, err
		}
	}

	return &models.AvailabilitySlot{
		TutorID:          req.TutorID,
		Date:             req.Date,
		StartTime:        req.StartTime,
		EndTime:          req.EndTime,
		Status:           models.SlotStatusAvailable,
		Kind:             kind,
		TeachingPeriodID: optional(req.TeachingPeriodID),
		Title:            optional(req.Title),
		Description:      optional(req.Description),
		Location:         optional(req.Location),
		MaxStudents:      maxStudents,
		Attachments:      pq.StringArray(req.Attachments),
	}, nil
}

func (s *SlotService) sessionFromSlot(slot *models.AvailabilitySlot) *models.Session {
	title := "Tutoring session"
	if slot.Subject != nil && *slot.Subject != "" {
		title = *slot.Subject
	} else if slot.Title != nil && *slot.Title != "" {
		title = *slot.Title
	}

	sessionType := models.SessionTypeOnline
	location := ""
	if slot.Location != nil && *slot.Location != "" {
		sessionType = models.SessionTypeInPerson
		location = *slot.Location
	}

	return &models.Session{
		TutorID:          slot.TutorID,
		StudentID:        *slot.BookedByStudentID,
		TeachingPeriodID: slot.TeachingPeriodID,
		SourceSlotID:     &slot.ID,
		Title:            title,
		Date:             slot.Date,
		TimeRange:        timeslot.FormatSpan(slot.StartTime, slot.EndTime),
		Status:           models.SessionStatusUpcoming,
		Type:             sessionType,
		LocationOrLink:   location,
		Attachments:      append(pq.StringArray(nil), slot.Attachments...),
	}
}

func (s *SlotService) checkPeriod(ctx context.Context, periodID, tutorID string) error {
	period, err := s.periods.FindByID(ctx, periodID)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "teaching period not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teaching period")
	}
	if period.Status != models.TeachingPeriodStatusActive {
		return appErrors.Clone(appErrors.ErrInvalidState, "teaching period is finished")
	}
	if period.TutorID != tutorID {
		return appErrors.Clone(appErrors.ErrValidation, "teaching period belongs to a different tutor")
	}
	return nil
}

func (s *SlotService) publish(n models.Notification) {
	if s.notify != nil {
		s.notify.Publish(n)
	}
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
