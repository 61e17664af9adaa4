package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/basic-school-api/internal/models"
	"github.com/noah-isme/basic-school-api/internal/repository"
	appErrors "github.com/noah-isme/basic-school-api/pkg/errors"
	"github.com/noah-isme/basic-school-api/pkg/grading"
	"github.com/noah-isme/basic-school-api/pkg/jobs"
)

// Bulk upload modes.
const (
	BulkModeAtomic         = "atomic"
	BulkModePartialOnError = "partialOnError"
)

type gradeRepo interface {
	List(ctx context.Context, filter models.GradeFilter) ([]models.Grade, error)
	Upsert(ctx context.Context, grade *models.Grade) error
	BulkUpsert(ctx context.Context, grades []models.Grade) error
	Finalize(ctx context.Context, classID, subjectID, termID string) (int64, error)
	UpdateBands(ctx context.Context, updates []models.GradeBandUpdate) error
	ReportCard(ctx context.Context, studentID, termID string) ([]models.ReportCardSubject, error)
	ClassReportRows(ctx context.Context, classID, subjectID, termID string) ([]models.ClassReportRow, error)
}

type studentReader interface {
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
	ListActiveByClass(ctx context.Context, classID string) ([]models.Student, error)
}

// currentGradingSystem supplies the bands grades are resolved against.
type currentGradingSystem interface {
	Current(ctx context.Context) (*models.GradingSystem, bool, error)
}

// GradeComponents are the raw assessment marks of a grade entry.
type GradeComponents struct {
	Project   float64 `json:"project" validate:"gte=0,lte=40"`
	Test1     float64 `json:"test1" validate:"gte=0,lte=20"`
	Test2     float64 `json:"test2" validate:"gte=0,lte=20"`
	GroupWork float64 `json:"group_work" validate:"gte=0,lte=20"`
	Exam      float64 `json:"exam" validate:"gte=0,lte=100"`
}

func (c GradeComponents) assessment() grading.SubjectAssessment {
	return grading.SubjectAssessment{Project: c.Project, Test1: c.Test1, Test2: c.Test2, GroupWork: c.GroupWork, Exam: c.Exam}
}

// UpsertGradeRequest represents a single grade entry payload.
type UpsertGradeRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	SubjectID string `json:"subject_id" validate:"required"`
	ClassID   string `json:"class_id" validate:"required"`
	TermID    string `json:"term_id" validate:"required"`
	GradeComponents
}

// BulkGradeItem represents one student's marks within a bulk payload.
type BulkGradeItem struct {
	StudentID string `json:"student_id" validate:"required"`
	GradeComponents
}

// BulkGradesRequest handles atomic or partial grade uploads for one class, subject and term.
type BulkGradesRequest struct {
	ClassID   string          `json:"class_id" validate:"required"`
	SubjectID string          `json:"subject_id" validate:"required"`
	TermID    string          `json:"term_id" validate:"required"`
	Mode      string          `json:"mode" validate:"omitempty,oneof=atomic partialOnError"`
	Items     []BulkGradeItem `json:"items" validate:"required,min=1"`
}

// BulkGradesResult summarises partial outcomes.
type BulkGradesResult struct {
	SuccessCount int                `json:"success_count"`
	Failures     []BulkGradeFailure `json:"failures,omitempty"`
}

// BulkGradeFailure captures failed grade entries.
type BulkGradeFailure struct {
	StudentID string `json:"student_id"`
	Reason    string `json:"reason"`
}

// FinalizeGradesRequest finalizes grades for a scope.
type FinalizeGradesRequest struct {
	ClassID   string `json:"class_id" validate:"required"`
	SubjectID string `json:"subject_id" validate:"required"`
	TermID    string `json:"term_id" validate:"required"`
}

// FinalizeGradesResult reports how many grades were locked.
type FinalizeGradesResult struct {
	Finalized int64 `json:"finalized"`
}

// RegradeResult reports how many open grades changed band.
type RegradeResult struct {
	TermID          string `json:"term_id"`
	Examined        int    `json:"examined"`
	Updated         int    `json:"updated"`
	GradingSystemID string `json:"grading_system_id,omitempty"`
}

// GradeService orchestrates grade entry and calculation flows.
type GradeService struct {
	grades    gradeRepo
	students  studentReader
	systems   currentGradingSystem
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewGradeService constructs GradeService.
func NewGradeService(grades gradeRepo, students studentReader, systems currentGradingSystem, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *GradeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GradeService{grades: grades, students: students, systems: systems, metrics: metrics, validator: validate, logger: logger}
}

// List returns grade entries.
func (s *GradeService) List(ctx context.Context, filter models.GradeFilter) ([]models.Grade, error) {
	grades, err := s.grades.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list grades")
	}
	return grades, nil
}

// Upsert computes and stores a single grade entry.
func (s *GradeService) Upsert(ctx context.Context, req UpsertGradeRequest) (*models.Grade, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade payload")
	}
	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.ClassID == nil || *student.ClassID != req.ClassID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student is not in class")
	}
	system, _, err := s.systems.Current(ctx)
	if err != nil {
		return nil, err
	}
	grade, err := s.computeGrade(system, req.StudentID, req.SubjectID, req.ClassID, req.TermID, req.GradeComponents)
	if err != nil {
		return nil, err
	}
	if err := s.grades.Upsert(ctx, &grade); err != nil {
		if errors.Is(err, repository.ErrGradeFinalized) {
			return nil, appErrors.Clone(appErrors.ErrFinalized, "grade already finalized")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to upsert grade")
	}
	s.metrics.AddGradesComputed(1)
	return &grade, nil
}

// BulkUpsert handles bulk grade submissions. Atomic mode stores everything or
// nothing; partialOnError stores valid rows and reports the rest.
func (s *GradeService) BulkUpsert(ctx context.Context, req BulkGradesRequest) (*BulkGradesResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk payload")
	}
	roster, err := s.students.ListActiveByClass(ctx, req.ClassID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class roster")
	}
	inClass := make(map[string]struct{}, len(roster))
	for _, st := range roster {
		inClass[st.ID] = struct{}{}
	}
	system, _, err := s.systems.Current(ctx)
	if err != nil {
		return nil, err
	}

	atomic := req.Mode == "" || req.Mode == BulkModeAtomic
	result := &BulkGradesResult{}
	seen := make(map[string]struct{}, len(req.Items))
	var batch []models.Grade
	for _, item := range req.Items {
		grade, err := s.bulkItem(system, req, item, inClass, seen)
		if err != nil {
			if atomic {
				return nil, err
			}
			result.Failures = append(result.Failures, BulkGradeFailure{StudentID: item.StudentID, Reason: appErrors.FromError(err).Message})
			continue
		}
		if atomic {
			batch = append(batch, grade)
			continue
		}
		if err := s.grades.Upsert(ctx, &grade); err != nil {
			reason := "failed to store grade"
			if errors.Is(err, repository.ErrGradeFinalized) {
				reason = "grade already finalized"
			}
			result.Failures = append(result.Failures, BulkGradeFailure{StudentID: item.StudentID, Reason: reason})
			continue
		}
		result.SuccessCount++
	}

	if atomic {
		if err := s.grades.BulkUpsert(ctx, batch); err != nil {
			if errors.Is(err, repository.ErrGradeFinalized) {
				return nil, appErrors.Wrap(err, appErrors.ErrFinalized.Code, appErrors.ErrFinalized.Status, "grades already finalized")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to bulk upsert grades")
		}
		result.SuccessCount = len(batch)
	}
	if len(result.Failures) > 0 {
		s.logger.Warn("bulk grade upload had failures",
			zap.String("class_id", req.ClassID), zap.String("subject_id", req.SubjectID),
			zap.Int("succeeded", result.SuccessCount), zap.Int("failed", len(result.Failures)))
	}
	s.metrics.AddGradesComputed(result.SuccessCount)
	return result, nil
}

func (s *GradeService) bulkItem(system *models.GradingSystem, req BulkGradesRequest, item BulkGradeItem, inClass, seen map[string]struct{}) (models.Grade, error) {
	if err := s.validator.Struct(item); err != nil {
		return models.Grade{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, fmt.Sprintf("invalid marks for student %s", item.StudentID))
	}
	if _, ok := inClass[item.StudentID]; !ok {
		return models.Grade{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("student %s is not in class", item.StudentID))
	}
	if _, dup := seen[item.StudentID]; dup {
		return models.Grade{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("student %s appears more than once", item.StudentID))
	}
	seen[item.StudentID] = struct{}{}
	return s.computeGrade(system, item.StudentID, req.SubjectID, req.ClassID, req.TermID, item.GradeComponents)
}

// computeGrade scores the marks and snapshots the resolved band.
func (s *GradeService) computeGrade(system *models.GradingSystem, studentID, subjectID, classID, termID string, components GradeComponents) (models.Grade, error) {
	assessment := components.assessment()
	if err := assessment.Validate(); err != nil {
		return models.Grade{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}
	total := grading.ComputeCompositeScore(assessment)
	band, err := resolveBand(s.logger, system, total)
	if err != nil {
		return models.Grade{}, err
	}
	grade := models.Grade{
		StudentID:  studentID,
		SubjectID:  subjectID,
		ClassID:    classID,
		TermID:     termID,
		Project:    assessment.Project,
		Test1:      assessment.Test1,
		Test2:      assessment.Test2,
		GroupWork:  assessment.GroupWork,
		Exam:       assessment.Exam,
		ClassScore: roundScore(grading.ClassScore(assessment)),
		ExamScore:  roundScore(grading.ExamScore(assessment)),
		TotalScore: total,
		GradeCode:  band.Code,
		GradeName:  band.Name,
	}
	grade.GradingSystemID = systemRef(system)
	return grade, nil
}

// Finalize locks the grades of a class, subject and term.
func (s *GradeService) Finalize(ctx context.Context, req FinalizeGradesRequest) (*FinalizeGradesResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid finalize payload")
	}
	n, err := s.grades.Finalize(ctx, req.ClassID, req.SubjectID, req.TermID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to finalize grades")
	}
	s.logger.Info("grades finalized", zap.String("class_id", req.ClassID), zap.String("subject_id", req.SubjectID),
		zap.String("term_id", req.TermID), zap.Int64("count", n))
	return &FinalizeGradesResult{Finalized: n}, nil
}

// ReportCard returns a student's subjects for a term with the term average and its band.
func (s *GradeService) ReportCard(ctx context.Context, studentID, termID string) (*models.StudentReportCard, error) {
	if termID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "termId is required")
	}
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	subjects, err := s.grades.ReportCard(ctx, studentID, termID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report card")
	}
	card := &models.StudentReportCard{StudentID: studentID, StudentName: student.FullName(), TermID: termID, Subjects: subjects}
	if len(subjects) == 0 {
		card.Subjects = []models.ReportCardSubject{}
		return card, nil
	}
	var sum float64
	for _, subject := range subjects {
		sum += subject.TotalScore
	}
	average := roundOneDecimal(sum / float64(len(subjects)))
	card.Average = &average

	system, _, err := s.systems.Current(ctx)
	if err != nil {
		return nil, err
	}
	band, err := resolveBand(s.logger, system, average)
	if err != nil {
		return nil, err
	}
	card.AverageGradeCode = band.Code
	card.AverageGradeName = band.Name
	return card, nil
}

// ClassReport ranks a class's totals for one subject and term.
func (s *GradeService) ClassReport(ctx context.Context, classID, subjectID, termID string) (*models.ClassGradeReport, error) {
	if classID == "" || subjectID == "" || termID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "classId, subjectId and termId are required")
	}
	rows, err := s.grades.ClassReportRows(ctx, classID, subjectID, termID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class grades")
	}
	report := &models.ClassGradeReport{
		ClassID:      classID,
		SubjectID:    subjectID,
		TermID:       termID,
		Students:     rankRows(rows),
		Distribution: map[string]int{},
	}
	if len(rows) == 0 {
		return report, nil
	}
	minScore, maxScore, sum := math.Inf(1), math.Inf(-1), 0.0
	for _, row := range rows {
		minScore = math.Min(minScore, row.TotalScore)
		maxScore = math.Max(maxScore, row.TotalScore)
		sum += row.TotalScore
		report.Distribution[row.GradeCode]++
	}
	average := roundOneDecimal(sum / float64(len(rows)))
	report.Min, report.Max, report.Average = &minScore, &maxScore, &average
	return report, nil
}

// Regrade re-resolves the bands of the term's open grades against the current
// grading system. Finalized grades keep their snapshot.
func (s *GradeService) Regrade(ctx context.Context, termID string) (*RegradeResult, error) {
	system, _, err := s.systems.Current(ctx)
	if err != nil {
		return nil, err
	}
	open := false
	grades, err := s.grades.List(ctx, models.GradeFilter{TermID: termID, Finalized: &open})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list grades")
	}
	ref := systemRef(system)
	var updates []models.GradeBandUpdate
	for _, g := range grades {
		band, err := resolveBand(s.logger, system, g.TotalScore)
		if err != nil {
			return nil, err
		}
		if band.Code == g.GradeCode && band.Name == g.GradeName && sameRef(ref, g.GradingSystemID) {
			continue
		}
		updates = append(updates, models.GradeBandUpdate{ID: g.ID, GradeCode: band.Code, GradeName: band.Name, GradingSystemID: ref})
	}
	if err := s.grades.UpdateBands(ctx, updates); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update grade bands")
	}
	s.metrics.AddGradesComputed(len(updates))
	return &RegradeResult{TermID: termID, Examined: len(grades), Updated: len(updates), GradingSystemID: system.ID}, nil
}

// HandleRegradeJob is the queue handler for JobTypeRegrade.
func (s *GradeService) HandleRegradeJob(ctx context.Context, job jobs.Job) error {
	start := time.Now()
	var payload RegradePayload
	switch p := job.Payload.(type) {
	case RegradePayload:
		payload = p
	case *RegradePayload:
		if p != nil {
			payload = *p
		}
	}
	if payload.TermID == "" {
		return fmt.Errorf("regrade job %s: missing term id", job.ID)
	}
	result, err := s.Regrade(ctx, payload.TermID)
	s.metrics.ObserveJob(job.Type, err, time.Since(start))
	if err != nil {
		return err
	}
	s.logger.Info("regrade completed",
		zap.String("job_id", job.ID), zap.String("term_id", result.TermID),
		zap.Int("examined", result.Examined), zap.Int("updated", result.Updated),
		zap.String("requested_by", payload.RequestedBy))
	return nil
}

// rankRows assigns competition ranks; rows arrive ordered by total descending.
func rankRows(rows []models.ClassReportRow) []models.ClassReportRow {
	ranked := make([]models.ClassReportRow, len(rows))
	copy(ranked, rows)
	for i := range ranked {
		if i > 0 && ranked[i].TotalScore == ranked[i-1].TotalScore {
			ranked[i].Rank = ranked[i-1].Rank
			continue
		}
		ranked[i].Rank = i + 1
	}
	return ranked
}

// systemRef is nil for the unsaved default system.
func systemRef(system *models.GradingSystem) *string {
	if system == nil || system.ID == "" {
		return nil
	}
	id := system.ID
	return &id
}

func sameRef(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func roundScore(v float64) float64 {
	return math.RoundToEven(v*100) / 100
}

func roundOneDecimal(v float64) float64 {
	return math.Round(v*10) / 10
}
