package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tutorbase/tutorbase-api/internal/service"
	appErrors "github.com/tutorbase/tutorbase-api/pkg/errors"
	"github.com/tutorbase/tutorbase-api/pkg/response"
)

// ConflictHandler exposes the calendar conflict probe.
type ConflictHandler struct {
	service *service.ConflictService
}

// NewConflictHandler constructs handler.
func NewConflictHandler(svc *service.ConflictService) *ConflictHandler {
	return &ConflictHandler{service: svc}
}

// Check godoc
// @Summary Probe a tutor's calendar for an interval conflict
// @Tags Conflicts
// @Produce json
// @Param id path string true "Tutor ID"
// @Param date query string true "Date (YYYY-MM-DD)"
// @Param start query string true "Start time (HH:MM)"
// @Param end query string true "End time (HH:MM)"
// @Success 200 {object} response.Envelope
// @Router /tutors/{id}/conflicts [get]
func (h *ConflictHandler) Check(c *gin.Context) {
	date := c.Query("date")
	start := c.Query("start")
	end := c.Query("end")
	if date == "" || start == "" || end == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date, start and end are required"))
		return
	}

	ref, err := h.service.FindConflict(c.Request.Context(), c.Param("id"), date, start, end, service.ConflictExclude{})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"conflict": ref != nil, "with": ref}, nil)
}
