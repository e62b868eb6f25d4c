package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/tutorbase/tutorbase-api/internal/models"
	appErrors "github.com/tutorbase/tutorbase-api/pkg/errors"
)

type teachingPeriodRepository interface {
	Create(ctx context.Context, period *models.TeachingPeriod) error
	FindByID(ctx context.Context, id string) (*models.TeachingPeriod, error)
	List(ctx context.Context, filter models.TeachingPeriodFilter) ([]models.TeachingPeriod, error)
	ExistsActive(ctx context.Context, tutorID, studentID, subject string) (bool, error)
	Finish(ctx context.Context, id, endDate string) error
}

// CreateTeachingPeriodRequest starts a standing tutor-student relationship.
type CreateTeachingPeriodRequest struct {
	TutorID   string `json:"tutor_id" validate:"required"`
	StudentID string `json:"student_id" validate:"required"`
	Subject   string `json:"subject" validate:"required"`
	StartDate string `json:"start_date" validate:"required,datetime=2006-01-02"`
}

// FinishTeachingPeriodRequest closes a period, defaulting the end date to today.
type FinishTeachingPeriodRequest struct {
	EndDate string `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
}

// TeachingPeriodService owns the registry of tutor-student-subject pairings.
// Slot and session stores read it only to verify and stamp the foreign key.
type TeachingPeriodService struct {
	repo      teachingPeriodRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTeachingPeriodService constructs TeachingPeriodService.
func NewTeachingPeriodService(repo teachingPeriodRepository, validate *validator.Validate, logger *zap.Logger) *TeachingPeriodService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TeachingPeriodService{repo: repo, validator: validate, logger: logger}
}

// Create registers a new active teaching period.
func (s *TeachingPeriodService) Create(ctx context.Context, req CreateTeachingPeriodRequest) (*models.TeachingPeriod, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid teaching period payload")
	}
	exists, err := s.repo.ExistsActive(ctx, req.TutorID, req.StudentID, req.Subject)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate teaching period")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "an active teaching period already links this tutor and student for the subject")
	}
	period := &models.TeachingPeriod{
		TutorID:   req.TutorID,
		StudentID: req.StudentID,
		Subject:   req.Subject,
		StartDate: req.StartDate,
		Status:    models.TeachingPeriodStatusActive,
	}
	if err := s.repo.Create(ctx, period); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create teaching period")
	}
	s.logger.Info("teaching period created",
		zap.String("period_id", period.ID),
		zap.String("tutor_id", period.TutorID),
		zap.String("student_id", period.StudentID))
	return period, nil
}

// Get returns a teaching period by ID.
func (s *TeachingPeriodService) Get(ctx context.Context, id string) (*models.TeachingPeriod, error) {
	period, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teaching period not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teaching period")
	}
	return period, nil
}

// List returns teaching periods matching the filter.
func (s *TeachingPeriodService) List(ctx context.Context, filter models.TeachingPeriodFilter) ([]models.TeachingPeriod, error) {
	periods, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list teaching periods")
	}
	return periods, nil
}

// Finish closes an active teaching period.
func (s *TeachingPeriodService) Finish(ctx context.Context, id string, req FinishTeachingPeriodRequest) (*models.TeachingPeriod, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid finish payload")
	}
	period, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if period.Status != models.TeachingPeriodStatusActive {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "teaching period already finished")
	}
	endDate := req.EndDate
	if endDate == "" {
		endDate = time.Now().UTC().Format("2006-01-02")
	}
	if err := s.repo.Finish(ctx, id, endDate); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to finish teaching period")
	}
	period.Status = models.TeachingPeriodStatusFinished
	period.EndDate = &endDate
	return period, nil
}
