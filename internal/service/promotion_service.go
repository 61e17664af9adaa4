package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/noah-isme/basic-school-api/internal/models"
	appErrors "github.com/noah-isme/basic-school-api/pkg/errors"
	"github.com/noah-isme/basic-school-api/pkg/grading"
)

// Progression kinds used in metrics.
const (
	progressionKindPromote  = "promote"
	progressionKindGraduate = "graduate"
)

const defaultProgressionWorkers = 4

type progressionClassRepository interface {
	FindByID(ctx context.Context, id string) (*models.ClassDetail, error)
	ListByLevel(ctx context.Context, level int, academicYear string) ([]models.Class, error)
}

type progressionStudentRepository interface {
	ListActiveByClass(ctx context.Context, classID string) ([]models.Student, error)
	MoveToClass(ctx context.Context, studentID, fromClassID, toClassID string) error
	MarkGraduated(ctx context.Context, studentID, classID string, year int) error
}

// PromoteRequest moves a class's active students up one level. Without a
// target class, the unique class at the next level (optionally within
// AcademicYear) is used.
type PromoteRequest struct {
	TargetClassID string `json:"target_class_id"`
	AcademicYear  string `json:"academic_year" validate:"omitempty,max=9"`
}

// GraduateBECEEntry carries one student's BECE grades recorded at graduation.
type GraduateBECEEntry struct {
	StudentID string             `json:"student_id" validate:"required"`
	Results   []BECESubjectGrade `json:"results" validate:"required,min=1,dive"`
}

// GraduateRequest graduates a final-year class.
type GraduateRequest struct {
	GraduationYear int                 `json:"graduation_year" validate:"omitempty,gte=1990,lte=2100"`
	BECEResults    []GraduateBECEEntry `json:"bece_results" validate:"dive"`
}

// PromotionService moves students between class levels at year end.
type PromotionService struct {
	classes   progressionClassRepository
	students  progressionStudentRepository
	bece      *BECEService
	metrics   *MetricsService
	workers   int
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewPromotionService constructs the service. workers bounds concurrent student updates.
func NewPromotionService(classes progressionClassRepository, students progressionStudentRepository, bece *BECEService, metrics *MetricsService, workers int, validate *validator.Validate, logger *zap.Logger) *PromotionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if workers <= 0 {
		workers = defaultProgressionWorkers
	}
	return &PromotionService{classes: classes, students: students, bece: bece, metrics: metrics, workers: workers, validator: validate, logger: logger, now: time.Now}
}

// Progression describes what the end of year means for a class.
func (s *PromotionService) Progression(ctx context.Context, classID string) (*models.ClassProgression, error) {
	source, info, err := s.loadClass(ctx, classID)
	if err != nil {
		return nil, err
	}
	roster, err := s.students.ListActiveByClass(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class roster")
	}
	progression := &models.ClassProgression{
		ClassID:        source.ID,
		Level:          source.Level,
		LevelName:      info.name,
		Category:       string(info.category),
		IsHighestLevel: info.highest,
		NextLevel:      info.next,
		ActiveStudents: len(roster),
	}
	if info.highest {
		progression.Action = models.ProgressionGraduate
		return progression, nil
	}
	progression.Action = models.ProgressionPromote
	progression.NextLevelName = grading.Level(*info.next).String()
	targets, err := s.classes.ListByLevel(ctx, *info.next, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list target classes")
	}
	progression.TargetClasses = targets
	return progression, nil
}

// Promote moves every active student of the class to a class exactly one
// level higher. Students are processed independently; failures are reported
// in the result rather than aborting the run.
func (s *PromotionService) Promote(ctx context.Context, classID string, req PromoteRequest) (*models.PromotionResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid promotion payload")
	}
	source, info, err := s.loadClass(ctx, classID)
	if err != nil {
		return nil, err
	}
	if info.highest {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, fmt.Sprintf("%s is the highest level; graduate the class instead", info.name))
	}
	target, err := s.resolveTarget(ctx, source, *info.next, req)
	if err != nil {
		return nil, err
	}
	roster, err := s.students.ListActiveByClass(ctx, source.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class roster")
	}

	outcomes := s.forEachStudent(roster, func(st models.Student) error {
		return s.students.MoveToClass(ctx, st.ID, source.ID, target.ID)
	})
	result := &models.PromotionResult{
		SourceClassID: source.ID,
		TargetClassID: target.ID,
		FromLevel:     source.Level,
		ToLevel:       target.Level,
		Promoted:      []string{},
	}
	for i, st := range roster {
		if outcomes[i] != nil {
			result.Failures = append(result.Failures, progressionFailure(st, outcomes[i]))
			continue
		}
		result.Promoted = append(result.Promoted, st.ID)
	}

	s.metrics.RecordProgression(progressionKindPromote, len(result.Promoted), len(result.Failures))
	s.logger.Info("class promoted",
		zap.String("source_class_id", source.ID), zap.String("target_class_id", target.ID),
		zap.Int("promoted", len(result.Promoted)), zap.Int("failed", len(result.Failures)))
	return result, nil
}

// Graduate marks every active student of a final-year class as graduated,
// recording any supplied BECE grades first. Each graduate's aggregate may be
// nil when fewer than the required subjects were graded.
func (s *PromotionService) Graduate(ctx context.Context, classID string, req GraduateRequest) (*models.GraduationResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid graduation payload")
	}
	source, info, err := s.loadClass(ctx, classID)
	if err != nil {
		return nil, err
	}
	if !info.highest {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, fmt.Sprintf("only %s classes graduate", grading.HighestLevel))
	}
	year := req.GraduationYear
	if year == 0 {
		year = s.now().Year()
	}
	roster, err := s.students.ListActiveByClass(ctx, source.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class roster")
	}

	result := &models.GraduationResult{ClassID: source.ID, GraduationYear: year, Graduated: []models.GraduateSummary{}}
	inClass := make(map[string]struct{}, len(roster))
	for _, st := range roster {
		inClass[st.ID] = struct{}{}
	}
	grades := make(map[string][]BECESubjectGrade, len(req.BECEResults))
	for _, entry := range req.BECEResults {
		if _, ok := inClass[entry.StudentID]; !ok {
			result.Failures = append(result.Failures, models.ProgressionFailure{StudentID: entry.StudentID, Reason: "student is not an active member of the class"})
			continue
		}
		grades[entry.StudentID] = append(grades[entry.StudentID], entry.Results...)
	}

	outcomes := s.forEachStudent(roster, func(st models.Student) error {
		if g, ok := grades[st.ID]; ok {
			if err := s.bece.recordFor(ctx, st, year, g); err != nil {
				return err
			}
		}
		return s.students.MarkGraduated(ctx, st.ID, source.ID, year)
	})

	var graduated []models.Student
	for i, st := range roster {
		if outcomes[i] != nil {
			result.Failures = append(result.Failures, progressionFailure(st, outcomes[i]))
			continue
		}
		graduated = append(graduated, st)
	}

	if len(graduated) > 0 {
		ids := make([]string, len(graduated))
		for i, st := range graduated {
			ids[i] = st.ID
		}
		aggregates, err := s.bece.aggregatesFor(ctx, ids, year)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "students graduated but aggregates could not be loaded")
		}
		for _, st := range graduated {
			agg := aggregates[st.ID]
			result.Graduated = append(result.Graduated, models.GraduateSummary{
				StudentID:        st.ID,
				StudentName:      st.FullName(),
				Aggregate:        agg.Aggregate,
				AggregateDisplay: agg.AggregateDisplay,
				Classification:   agg.Classification,
			})
		}
	}
	s.bece.invalidateClass(ctx, source.ID)

	s.metrics.RecordProgression(progressionKindGraduate, len(result.Graduated), len(result.Failures))
	s.logger.Info("class graduated",
		zap.String("class_id", source.ID), zap.Int("year", year),
		zap.Int("graduated", len(result.Graduated)), zap.Int("failed", len(result.Failures)))
	return result, nil
}

// forEachStudent runs fn for every student on a bounded pool and returns the
// per-student errors in roster order.
func (s *PromotionService) forEachStudent(roster []models.Student, fn func(models.Student) error) []error {
	outcomes := make([]error, len(roster))
	p := pool.New().WithMaxGoroutines(s.workers)
	for i := range roster {
		i := i
		p.Go(func() {
			outcomes[i] = fn(roster[i])
		})
	}
	p.Wait()
	return outcomes
}

func (s *PromotionService) loadClass(ctx context.Context, classID string) (*models.ClassDetail, levelInfo, error) {
	class, err := s.classes.FindByID(ctx, classID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, levelInfo{}, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, levelInfo{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	info, err := describeLevel(class.Level)
	if err != nil {
		s.logger.Error("class has invalid level", zap.String("class_id", class.ID), zap.Int("level", class.Level))
		return nil, levelInfo{}, appErrors.WithDetails(appErrors.ErrInvalidLevel, fmt.Sprintf("class %s has invalid level %d", class.Name, class.Level),
			map[string]interface{}{"class_id": class.ID, "level": class.Level})
	}
	return class, info, nil
}

func (s *PromotionService) resolveTarget(ctx context.Context, source *models.ClassDetail, nextLevel int, req PromoteRequest) (*models.Class, error) {
	nextName := grading.Level(nextLevel).String()
	if req.TargetClassID != "" {
		target, err := s.classes.FindByID(ctx, req.TargetClassID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "target class not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load target class")
		}
		if target.Level != nextLevel {
			return nil, appErrors.WithDetails(appErrors.ErrValidation,
				fmt.Sprintf("target class must be at %s, one level above %s", nextName, grading.Level(source.Level)),
				map[string]int{"expected_level": nextLevel, "target_level": target.Level})
		}
		return &target.Class, nil
	}

	candidates, err := s.classes.ListByLevel(ctx, nextLevel, req.AcademicYear)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list target classes")
	}
	switch len(candidates) {
	case 0:
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, fmt.Sprintf("no %s class exists to promote into", nextName))
	case 1:
		return &candidates[0], nil
	default:
		ids := make([]string, len(candidates))
		for i, c := range candidates {
			ids[i] = c.ID
		}
		return nil, appErrors.WithDetails(appErrors.ErrConflict,
			fmt.Sprintf("%d classes exist at %s; choose target_class_id", len(candidates), nextName),
			map[string][]string{"candidates": ids})
	}
}

func progressionFailure(st models.Student, err error) models.ProgressionFailure {
	reason := "update failed"
	switch {
	case errors.Is(err, sql.ErrNoRows):
		reason = "student is no longer active in the class"
	default:
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			reason = appErr.Message
		}
	}
	return models.ProgressionFailure{StudentID: st.ID, StudentName: st.FullName(), Reason: reason}
}
