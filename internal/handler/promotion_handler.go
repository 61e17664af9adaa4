package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/basic-school-api/internal/models"
	"github.com/noah-isme/basic-school-api/internal/service"
	"github.com/noah-isme/basic-school-api/pkg/response"
)

type promotionService interface {
	Progression(ctx context.Context, classID string) (*models.ClassProgression, error)
	Promote(ctx context.Context, classID string, req service.PromoteRequest) (*models.PromotionResult, error)
	Graduate(ctx context.Context, classID string, req service.GraduateRequest) (*models.GraduationResult, error)
}

// PromotionHandler exposes end-of-year class progression endpoints.
type PromotionHandler struct {
	promotions promotionService
}

// NewPromotionHandler constructs the handler.
func NewPromotionHandler(promotions promotionService) *PromotionHandler {
	return &PromotionHandler{promotions: promotions}
}

// Progression godoc
// @Summary What happens to a class at year end
// @Tags Promotions
// @Produce json
// @Param id path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Router /classes/{id}/progression [get]
func (h *PromotionHandler) Progression(c *gin.Context) {
	progression, err := h.promotions.Progression(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, progression, nil)
}

// Promote godoc
// @Summary Promote a class
// @Description Moves every active student to a class exactly one level higher. Per-student failures are listed in the result.
// @Tags Promotions
// @Accept json
// @Produce json
// @Param id path string true "Class ID"
// @Param payload body service.PromoteRequest false "Target class"
// @Success 200 {object} response.Envelope
// @Router /classes/{id}/promote [post]
func (h *PromotionHandler) Promote(c *gin.Context) {
	var req service.PromoteRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}
	result, err := h.promotions.Promote(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Graduate godoc
// @Summary Graduate a final-year class
// @Description Records optional BECE grades, then marks every active student graduated.
// @Tags Promotions
// @Accept json
// @Produce json
// @Param id path string true "Class ID"
// @Param payload body service.GraduateRequest false "Graduation payload"
// @Success 200 {object} response.Envelope
// @Router /classes/{id}/graduate [post]
func (h *PromotionHandler) Graduate(c *gin.Context) {
	var req service.GraduateRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}
	result, err := h.promotions.Graduate(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
