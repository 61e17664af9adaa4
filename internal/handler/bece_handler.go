package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/basic-school-api/internal/middleware"
	"github.com/noah-isme/basic-school-api/internal/models"
	"github.com/noah-isme/basic-school-api/internal/service"
	"github.com/noah-isme/basic-school-api/pkg/response"
)

type beceService interface {
	Record(ctx context.Context, req service.RecordBECERequest) (*models.StudentAggregate, error)
	StudentAggregate(ctx context.Context, studentID string, year int) (*models.StudentAggregate, error)
	ClassSummary(ctx context.Context, classID string, year int) (*models.ClassAggregateSummary, bool, error)
	Preview(ctx context.Context, req service.AggregatePreviewRequest) (*models.StudentAggregate, error)
}

// BECEHandler exposes BECE result and aggregate endpoints.
type BECEHandler struct {
	bece beceService
}

// NewBECEHandler constructs the handler.
func NewBECEHandler(bece beceService) *BECEHandler {
	return &BECEHandler{bece: bece}
}

// Record godoc
// @Summary Record BECE results
// @Description Stores a student's subject grades for an exam year and returns the recomputed aggregate.
// @Tags BECE
// @Accept json
// @Produce json
// @Param payload body service.RecordBECERequest true "BECE results"
// @Success 201 {object} response.Envelope
// @Router /bece/results [post]
func (h *BECEHandler) Record(c *gin.Context) {
	var req service.RecordBECERequest
	if !bindJSON(c, &req) {
		return
	}
	aggregate, err := h.bece.Record(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, aggregate)
}

// StudentAggregate godoc
// @Summary Student BECE aggregate
// @Tags BECE
// @Produce json
// @Param studentId path string true "Student ID"
// @Param year query int false "Exam year; latest sitting when omitted"
// @Success 200 {object} response.Envelope
// @Router /bece/students/{studentId} [get]
func (h *BECEHandler) StudentAggregate(c *gin.Context) {
	year, ok := optionalIntQuery(c, "year")
	if !ok {
		return
	}
	aggregate, err := h.bece.StudentAggregate(c.Request.Context(), c.Param("studentId"), year)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, aggregate, nil)
}

// ClassSummary godoc
// @Summary Ranked BECE aggregates of a class
// @Tags BECE
// @Produce json
// @Param classId path string true "Class ID"
// @Param year query int false "Exam year; current year when omitted"
// @Success 200 {object} response.Envelope
// @Router /bece/classes/{classId}/summary [get]
func (h *BECEHandler) ClassSummary(c *gin.Context) {
	year, ok := optionalIntQuery(c, "year")
	if !ok {
		return
	}
	summary, hit, err := h.bece.ClassSummary(c.Request.Context(), c.Param("classId"), year)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, summary, nil, middleware.ExtractMeta(c))
}

// Preview godoc
// @Summary Compute an aggregate without storing results
// @Tags BECE
// @Accept json
// @Produce json
// @Param payload body service.AggregatePreviewRequest true "Subject grades"
// @Success 200 {object} response.Envelope
// @Router /bece/aggregate [post]
func (h *BECEHandler) Preview(c *gin.Context) {
	var req service.AggregatePreviewRequest
	if !bindJSON(c, &req) {
		return
	}
	aggregate, err := h.bece.Preview(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, aggregate, nil)
}
