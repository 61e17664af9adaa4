package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/basic-school-api/internal/models"
	appErrors "github.com/noah-isme/basic-school-api/pkg/errors"
	"github.com/noah-isme/basic-school-api/pkg/response"
)

type termService interface {
	List(ctx context.Context, filter models.TermFilter) ([]models.Term, error)
	Active(ctx context.Context) (*models.Term, error)
}

// TermHandler exposes academic term endpoints.
type TermHandler struct {
	service termService
}

// NewTermHandler creates a new term handler.
func NewTermHandler(svc termService) *TermHandler {
	return &TermHandler{service: svc}
}

// List godoc
// @Summary List terms
// @Tags Terms
// @Produce json
// @Param academicYear query string false "Academic year"
// @Param active query bool false "Filter by active flag"
// @Success 200 {object} response.Envelope
// @Router /terms [get]
func (h *TermHandler) List(c *gin.Context) {
	filter := models.TermFilter{AcademicYear: c.Query("academicYear")}
	if raw := c.Query("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "active must be true or false"))
			return
		}
		filter.IsActive = &active
	}
	terms, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, terms, nil)
}

// Active godoc
// @Summary Current term
// @Tags Terms
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /terms/active [get]
func (h *TermHandler) Active(c *gin.Context) {
	term, err := h.service.Active(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, term, nil)
}
