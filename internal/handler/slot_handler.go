package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tutorbase/tutorbase-api/internal/models"
	"github.com/tutorbase/tutorbase-api/internal/service"
	appErrors "github.com/tutorbase/tutorbase-api/pkg/errors"
	"github.com/tutorbase/tutorbase-api/pkg/response"
)

// SlotHandler manages availability slot endpoints.
type SlotHandler struct {
	service *service.SlotService
}

// NewSlotHandler constructs handler.
func NewSlotHandler(svc *service.SlotService) *SlotHandler {
	return &SlotHandler{service: svc}
}

// List godoc
// @Summary List availability slots
// @Tags Slots
// @Produce json
// @Param tutorId query string false "Filter by tutor"
// @Param date query string false "Filter by date (YYYY-MM-DD)"
// @Param status query string false "Filter by status"
// @Success 200 {object} response.Envelope
// @Router /slots [get]
func (h *SlotHandler) List(c *gin.Context) {
	var filter models.SlotFilter
	filter.TutorID = c.Query("tutorId")
	filter.Date = c.Query("date")
	filter.Status = models.SlotStatus(c.Query("status"))

	slots, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slots, nil)
}

// Get godoc
// @Summary Get slot by ID
// @Tags Slots
// @Produce json
// @Param id path string true "Slot ID"
// @Success 200 {object} response.Envelope
// @Router /slots/{id} [get]
func (h *SlotHandler) Get(c *gin.Context) {
	slot, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slot, nil)
}

// Create godoc
// @Summary Create availability slot
// @Tags Slots
// @Accept json
// @Produce json
// @Param payload body service.CreateSlotRequest true "Slot payload"
// @Success 201 {object} response.Envelope
// @Router /slots [post]
func (h *SlotHandler) Create(c *gin.Context) {
	var req service.CreateSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if claims := claimsFromContext(c); claims != nil && claims.Role == models.RoleTutor {
		req.TutorID = claims.UserID
	}
	slot, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, slot)
}

// CreateRecurring godoc
// @Summary Create a recurring batch of slots
// @Tags Slots
// @Accept json
// @Produce json
// @Param payload body service.CreateRecurringSlotsRequest true "Recurring payload"
// @Success 201 {object} response.Envelope
// @Router /slots/recurring [post]
func (h *SlotHandler) CreateRecurring(c *gin.Context) {
	var req service.CreateRecurringSlotsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if claims := claimsFromContext(c); claims != nil && claims.Role == models.RoleTutor {
		req.TutorID = claims.UserID
	}
	slots, err := h.service.CreateRecurring(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, slots)
}

// Book godoc
// @Summary Book an available slot
// @Tags Slots
// @Accept json
// @Produce json
// @Param id path string true "Slot ID"
// @Param payload body service.BookSlotRequest true "Booking payload"
// @Success 200 {object} response.Envelope
// @Router /slots/{id}/book [post]
func (h *SlotHandler) Book(c *gin.Context) {
	var req service.BookSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if claims := claimsFromContext(c); claims != nil && claims.Role == models.RoleStudent {
		req.StudentID = claims.UserID
		if req.StudentName == "" {
			req.StudentName = claims.Name
		}
	}
	slot, err := h.service.Book(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slot, nil)
}

// Approve godoc
// @Summary Approve a pending booking
// @Tags Slots
// @Produce json
// @Param id path string true "Slot ID"
// @Success 201 {object} response.Envelope
// @Router /slots/{id}/approve [post]
func (h *SlotHandler) Approve(c *gin.Context) {
	session, err := h.service.Approve(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, session)
}

// Reject godoc
// @Summary Reject a pending booking
// @Tags Slots
// @Produce json
// @Param id path string true "Slot ID"
// @Success 200 {object} response.Envelope
// @Router /slots/{id}/reject [post]
func (h *SlotHandler) Reject(c *gin.Context) {
	slot, err := h.service.Reject(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slot, nil)
}

// Delete godoc
// @Summary Delete a slot
// @Tags Slots
// @Param id path string true "Slot ID"
// @Success 204
// @Router /slots/{id} [delete]
func (h *SlotHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
