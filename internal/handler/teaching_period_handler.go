package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tutorbase/tutorbase-api/internal/models"
	"github.com/tutorbase/tutorbase-api/internal/service"
	appErrors "github.com/tutorbase/tutorbase-api/pkg/errors"
	"github.com/tutorbase/tutorbase-api/pkg/response"
)

// TeachingPeriodHandler manages teaching period endpoints.
type TeachingPeriodHandler struct {
	service *service.TeachingPeriodService
}

// NewTeachingPeriodHandler constructs handler.
func NewTeachingPeriodHandler(svc *service.TeachingPeriodService) *TeachingPeriodHandler {
	return &TeachingPeriodHandler{service: svc}
}

// List godoc
// @Summary List teaching periods
// @Tags TeachingPeriods
// @Produce json
// @Param tutorId query string false "Filter by tutor"
// @Param studentId query string false "Filter by student"
// @Param status query string false "Filter by status"
// @Success 200 {object} response.Envelope
// @Router /teaching-periods [get]
func (h *TeachingPeriodHandler) List(c *gin.Context) {
	var filter models.TeachingPeriodFilter
	filter.TutorID = c.Query("tutorId")
	filter.StudentID = c.Query("studentId")
	filter.Status = models.TeachingPeriodStatus(c.Query("status"))

	periods, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, periods, nil)
}

// Get godoc
// @Summary Get teaching period by ID
// @Tags TeachingPeriods
// @Produce json
// @Param id path string true "Teaching period ID"
// @Success 200 {object} response.Envelope
// @Router /teaching-periods/{id} [get]
func (h *TeachingPeriodHandler) Get(c *gin.Context) {
	period, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, period, nil)
}

// Create godoc
// @Summary Create teaching period
// @Tags TeachingPeriods
// @Accept json
// @Produce json
// @Param payload body service.CreateTeachingPeriodRequest true "Teaching period payload"
// @Success 201 {object} response.Envelope
// @Router /teaching-periods [post]
func (h *TeachingPeriodHandler) Create(c *gin.Context) {
	var req service.CreateTeachingPeriodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if claims := claimsFromContext(c); claims != nil && claims.Role == models.RoleTutor {
		req.TutorID = claims.UserID
	}
	period, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, period)
}

// Finish godoc
// @Summary Finish an active teaching period
// @Tags TeachingPeriods
// @Accept json
// @Produce json
// @Param id path string true "Teaching period ID"
// @Param payload body service.FinishTeachingPeriodRequest true "Finish payload"
// @Success 200 {object} response.Envelope
// @Router /teaching-periods/{id}/finish [post]
func (h *TeachingPeriodHandler) Finish(c *gin.Context) {
	var req service.FinishTeachingPeriodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	period, err := h.service.Finish(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, period, nil)
}
