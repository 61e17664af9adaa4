package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/basic-school-api/internal/middleware"
	"github.com/noah-isme/basic-school-api/internal/models"
	"github.com/noah-isme/basic-school-api/internal/service"
	appErrors "github.com/noah-isme/basic-school-api/pkg/errors"
	"github.com/noah-isme/basic-school-api/pkg/response"
)

type gradingSystemService interface {
	List(ctx context.Context) ([]models.GradingSystem, error)
	Get(ctx context.Context, id string) (*models.GradingSystem, error)
	Current(ctx context.Context) (*models.GradingSystem, bool, error)
	Create(ctx context.Context, req service.GradingSystemRequest) (*models.GradingSystem, error)
	Update(ctx context.Context, id string, req service.GradingSystemRequest) (*models.GradingSystem, error)
	Activate(ctx context.Context, id string) (*models.GradingSystem, error)
	Resolve(ctx context.Context, percentage float64) (*service.ResolvedGrade, error)
	RequestRegrade(ctx context.Context, termID, actorID string) (*service.RegradeTicket, error)
}

// RegradeRequest selects the term to regrade. An empty term means the active term.
type RegradeRequest struct {
	TermID string `json:"term_id"`
}

// GradingSystemHandler exposes grade band configuration endpoints.
type GradingSystemHandler struct {
	systems gradingSystemService
}

// NewGradingSystemHandler constructs the handler.
func NewGradingSystemHandler(systems gradingSystemService) *GradingSystemHandler {
	return &GradingSystemHandler{systems: systems}
}

// List godoc
// @Summary List grading systems
// @Tags GradingSystems
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /grading-systems [get]
func (h *GradingSystemHandler) List(c *gin.Context) {
	systems, err := h.systems.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, systems, nil)
}

// Current godoc
// @Summary Active grading system
// @Description Falls back to the built-in scale, flagged is_default, while no system is active.
// @Tags GradingSystems
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /grading-systems/current [get]
func (h *GradingSystemHandler) Current(c *gin.Context) {
	system, hit, err := h.systems.Current(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	middleware.SetMeta(c, middleware.MetaIsDefault, system.IsDefault)
	response.JSON(c, http.StatusOK, system, nil, middleware.ExtractMeta(c))
}

// Resolve godoc
// @Summary Resolve a percentage to a grade band
// @Tags GradingSystems
// @Produce json
// @Param percentage query number true "Percentage between 0 and 100"
// @Success 200 {object} response.Envelope
// @Router /grading-systems/current/resolve [get]
func (h *GradingSystemHandler) Resolve(c *gin.Context) {
	raw := c.Query("percentage")
	if raw == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "percentage required"))
		return
	}
	pct, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "percentage must be a number"))
		return
	}
	resolved, err := h.systems.Resolve(c.Request.Context(), pct)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resolved, nil)
}

// Get godoc
// @Summary Get grading system
// @Tags GradingSystems
// @Produce json
// @Param id path string true "Grading system ID"
// @Success 200 {object} response.Envelope
// @Router /grading-systems/{id} [get]
func (h *GradingSystemHandler) Get(c *gin.Context) {
	system, err := h.systems.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, system, nil)
}

// Create godoc
// @Summary Create grading system
// @Description Bands must cover 0-100 without overlaps; violations return INVALID_GRADING_SYSTEM with rule details.
// @Tags GradingSystems
// @Accept json
// @Produce json
// @Param payload body service.GradingSystemRequest true "Grading system payload"
// @Success 201 {object} response.Envelope
// @Router /grading-systems [post]
func (h *GradingSystemHandler) Create(c *gin.Context) {
	var req service.GradingSystemRequest
	if !bindJSON(c, &req) {
		return
	}
	system, err := h.systems.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, system)
}

// Update godoc
// @Summary Replace grading system
// @Tags GradingSystems
// @Accept json
// @Produce json
// @Param id path string true "Grading system ID"
// @Param payload body service.GradingSystemRequest true "Grading system payload"
// @Success 200 {object} response.Envelope
// @Router /grading-systems/{id} [put]
func (h *GradingSystemHandler) Update(c *gin.Context) {
	var req service.GradingSystemRequest
	if !bindJSON(c, &req) {
		return
	}
	system, err := h.systems.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, system, nil)
}

// Activate godoc
// @Summary Activate grading system
// @Tags GradingSystems
// @Produce json
// @Param id path string true "Grading system ID"
// @Success 200 {object} response.Envelope
// @Router /grading-systems/{id}/activate [post]
func (h *GradingSystemHandler) Activate(c *gin.Context) {
	system, err := h.systems.Activate(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, system, nil)
}

// Regrade godoc
// @Summary Queue a regrade of open grades
// @Tags GradingSystems
// @Accept json
// @Produce json
// @Param payload body RegradeRequest false "Term to regrade"
// @Success 202 {object} response.Envelope
// @Router /grading-systems/regrade [post]
func (h *GradingSystemHandler) Regrade(c *gin.Context) {
	var req RegradeRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}
	ticket, err := h.systems.RequestRegrade(c.Request.Context(), req.TermID, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, ticket, nil)
}
