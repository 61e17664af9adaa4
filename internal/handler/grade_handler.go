package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/basic-school-api/internal/models"
	"github.com/noah-isme/basic-school-api/internal/service"
	appErrors "github.com/noah-isme/basic-school-api/pkg/errors"
	"github.com/noah-isme/basic-school-api/pkg/response"
)

type gradeService interface {
	List(ctx context.Context, filter models.GradeFilter) ([]models.Grade, error)
	Upsert(ctx context.Context, req service.UpsertGradeRequest) (*models.Grade, error)
	BulkUpsert(ctx context.Context, req service.BulkGradesRequest) (*service.BulkGradesResult, error)
	Finalize(ctx context.Context, req service.FinalizeGradesRequest) (*service.FinalizeGradesResult, error)
	ReportCard(ctx context.Context, studentID, termID string) (*models.StudentReportCard, error)
	ClassReport(ctx context.Context, classID, subjectID, termID string) (*models.ClassGradeReport, error)
}

// GradeHandler exposes grade endpoints.
type GradeHandler struct {
	grades gradeService
}

// NewGradeHandler constructs handler.
func NewGradeHandler(grades gradeService) *GradeHandler {
	return &GradeHandler{grades: grades}
}

// List godoc
// @Summary List grade entries
// @Tags Grades
// @Produce json
// @Param studentId query string false "Filter by student"
// @Param subjectId query string false "Filter by subject"
// @Param classId query string false "Filter by class"
// @Param termId query string false "Filter by term"
// @Param finalized query bool false "Filter by finalized flag"
// @Success 200 {object} response.Envelope
// @Router /grades [get]
func (h *GradeHandler) List(c *gin.Context) {
	filter := models.GradeFilter{
		StudentID: c.Query("studentId"),
		SubjectID: c.Query("subjectId"),
		ClassID:   c.Query("classId"),
		TermID:    c.Query("termId"),
	}
	if raw := c.Query("finalized"); raw != "" {
		finalized, err := strconv.ParseBool(raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "finalized must be true or false"))
			return
		}
		filter.Finalized = &finalized
	}
	grades, err := h.grades.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grades, nil)
}

// Upsert godoc
// @Summary Upsert grade entry
// @Description Computes class, exam and total scores and snapshots the grade band.
// @Tags Grades
// @Accept json
// @Produce json
// @Param payload body service.UpsertGradeRequest true "Grade payload"
// @Success 200 {object} response.Envelope
// @Router /grades [post]
func (h *GradeHandler) Upsert(c *gin.Context) {
	var req service.UpsertGradeRequest
	if !bindJSON(c, &req) {
		return
	}
	grade, err := h.grades.Upsert(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grade, nil)
}

// Bulk godoc
// @Summary Bulk upsert grades
// @Tags Grades
// @Accept json
// @Produce json
// @Param payload body service.BulkGradesRequest true "Bulk payload"
// @Success 200 {object} response.Envelope
// @Router /grades/bulk [post]
func (h *GradeHandler) Bulk(c *gin.Context) {
	var req service.BulkGradesRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.grades.BulkUpsert(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Finalize godoc
// @Summary Finalize grades
// @Tags Grades
// @Accept json
// @Produce json
// @Param payload body service.FinalizeGradesRequest true "Finalize payload"
// @Success 200 {object} response.Envelope
// @Router /grades/finalize [post]
func (h *GradeHandler) Finalize(c *gin.Context) {
	var req service.FinalizeGradesRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.grades.Finalize(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// ReportCard godoc
// @Summary Student report card
// @Tags Grades
// @Produce json
// @Param studentId path string true "Student ID"
// @Param termId query string true "Term ID"
// @Success 200 {object} response.Envelope
// @Router /grades/report-card/{studentId} [get]
func (h *GradeHandler) ReportCard(c *gin.Context) {
	termID := c.Query("termId")
	if termID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "termId required"))
		return
	}
	report, err := h.grades.ReportCard(c.Request.Context(), c.Param("studentId"), termID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// ClassReport godoc
// @Summary Class grade report
// @Tags Grades
// @Produce json
// @Param classId query string true "Class ID"
// @Param subjectId query string true "Subject ID"
// @Param termId query string true "Term ID"
// @Success 200 {object} response.Envelope
// @Router /grades/class-report [get]
func (h *GradeHandler) ClassReport(c *gin.Context) {
	classID, subjectID, termID := c.Query("classId"), c.Query("subjectId"), c.Query("termId")
	if classID == "" || subjectID == "" || termID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "classId, subjectId and termId required"))
		return
	}
	report, err := h.grades.ClassReport(c.Request.Context(), classID, subjectID, termID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}
