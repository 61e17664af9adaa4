package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/basic-school-api/internal/models"
	appErrors "github.com/noah-isme/basic-school-api/pkg/errors"
	"github.com/noah-isme/basic-school-api/pkg/grading"
)

type beceResultRepository interface {
	Upsert(ctx context.Context, results []models.BECEResult) error
	ListByStudent(ctx context.Context, studentID string, year int) ([]models.BECEResult, error)
	ListByStudents(ctx context.Context, studentIDs []string, year int) (map[string][]models.BECEResult, error)
	ListByClass(ctx context.Context, classID string, year int) ([]models.BECEClassRow, error)
}

type studentFinder interface {
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
}

// BECESubjectGrade is one subject grade of a BECE sitting.
type BECESubjectGrade struct {
	Subject string `json:"subject" validate:"required,max=64"`
	Grade   string `json:"grade" validate:"required,max=2"`
}

// RecordBECERequest records a student's BECE grades for an exam year.
type RecordBECERequest struct {
	StudentID string             `json:"student_id" validate:"required"`
	ExamYear  int                `json:"exam_year" validate:"required,gte=1990,lte=2100"`
	Results   []BECESubjectGrade `json:"results" validate:"required,min=1,dive"`
}

// AggregatePreviewRequest computes an aggregate without storing anything.
type AggregatePreviewRequest struct {
	Results []BECESubjectGrade `json:"results" validate:"dive"`
}

// BECEConfig tunes aggregate calculation.
type BECEConfig struct {
	BestOf     int
	Classifier grading.Classifier
	SummaryTTL time.Duration
}

// BECEService records BECE results and computes aggregates.
type BECEService struct {
	results   beceResultRepository
	students  studentFinder
	cache     *CacheService
	metrics   *MetricsService
	config    BECEConfig
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewBECEService constructs the service. cache and metrics may be nil.
func NewBECEService(results beceResultRepository, students studentFinder, cache *CacheService, metrics *MetricsService, cfg BECEConfig, validate *validator.Validate, logger *zap.Logger) *BECEService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BestOf <= 0 {
		cfg.BestOf = grading.BestOf
	}
	if len(cfg.Classifier.Thresholds) == 0 {
		cfg.Classifier = grading.DefaultClassifier()
	}
	return &BECEService{results: results, students: students, cache: cache, metrics: metrics, config: cfg, validator: validate, logger: logger, now: time.Now}
}

// Record upserts a student's grades and returns the resulting aggregate for the year.
func (s *BECEService) Record(ctx context.Context, req RecordBECERequest) (*models.StudentAggregate, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid BECE payload")
	}
	student, err := s.findStudent(ctx, req.StudentID)
	if err != nil {
		return nil, err
	}
	if err := s.recordFor(ctx, student.Student, req.ExamYear, req.Results); err != nil {
		return nil, err
	}
	if classID := student.ExamClassID(); classID != nil {
		s.invalidateClass(ctx, *classID)
	}
	return s.StudentAggregate(ctx, req.StudentID, req.ExamYear)
}

// recordFor stores one student's grades for an exam year.
func (s *BECEService) recordFor(ctx context.Context, student models.Student, year int, grades []BECESubjectGrade) error {
	results, err := s.prepareResults(student, year, grades)
	if err != nil {
		return err
	}
	if err := s.results.Upsert(ctx, results); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store BECE results")
	}
	return nil
}

// invalidateClass drops cached summaries of a class.
func (s *BECEService) invalidateClass(ctx context.Context, classID string) {
	_ = s.cache.Invalidate(ctx, beceSummaryPattern(classID))
}

// prepareResults validates grades and keeps the best grade of a repeated subject.
func (s *BECEService) prepareResults(student models.Student, year int, grades []BECESubjectGrade) ([]models.BECEResult, error) {
	bySubject := make(map[string]int, len(grades))
	results := make([]models.BECEResult, 0, len(grades))
	for _, g := range grades {
		grade := strings.ToUpper(strings.TrimSpace(g.Grade))
		points, ok := grading.PointsFor(grade)
		if !ok {
			return nil, appErrors.WithDetails(appErrors.ErrValidation, fmt.Sprintf("unrecognised BECE grade %q for %s", g.Grade, g.Subject),
				map[string]string{"subject": g.Subject, "grade": g.Grade})
		}
		subject := strings.TrimSpace(g.Subject)
		key := strings.ToLower(subject)
		if idx, seen := bySubject[key]; seen {
			if existing, _ := grading.PointsFor(results[idx].Grade); points < existing {
				results[idx].Grade = grade
			}
			continue
		}
		bySubject[key] = len(results)
		results = append(results, models.BECEResult{
			StudentID: student.ID,
			ClassID:   student.ExamClassID(),
			Subject:   subject,
			Grade:     grade,
			ExamYear:  year,
		})
	}
	return results, nil
}

// StudentAggregate returns a student's results and aggregate. A zero year
// selects the latest sitting.
func (s *BECEService) StudentAggregate(ctx context.Context, studentID string, year int) (*models.StudentAggregate, error) {
	student, err := s.findStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	results, err := s.results.ListByStudent(ctx, studentID, year)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load BECE results")
	}
	if year == 0 && len(results) > 0 {
		year = results[0].ExamYear
	}
	agg := s.summarise(results)
	agg.StudentID = studentID
	agg.StudentName = student.FullName()
	agg.ExamYear = year
	if agg.Results == nil {
		agg.Results = []models.BECEResult{}
	}
	return &agg, nil
}

// ClassSummary ranks the students of a class by aggregate, best first, with
// students lacking an aggregate last. The boolean reports a cache hit.
func (s *BECEService) ClassSummary(ctx context.Context, classID string, year int) (*models.ClassAggregateSummary, bool, error) {
	if year <= 0 {
		year = s.now().Year()
	}
	key := beceSummaryKey(classID, year)
	var cached models.ClassAggregateSummary
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return &cached, true, nil
	}

	rows, err := s.results.ListByClass(ctx, classID, year)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class BECE results")
	}

	order := make([]string, 0)
	names := make(map[string]string)
	byStudent := make(map[string][]models.BECEResult)
	for _, row := range rows {
		if _, ok := byStudent[row.StudentID]; !ok {
			order = append(order, row.StudentID)
			names[row.StudentID] = row.StudentName
		}
		byStudent[row.StudentID] = append(byStudent[row.StudentID], row.BECEResult)
	}

	students := make([]models.StudentAggregate, 0, len(order))
	for _, id := range order {
		agg := s.summarise(byStudent[id])
		agg.StudentID = id
		agg.StudentName = names[id]
		agg.ExamYear = year
		agg.Results = nil
		students = append(students, agg)
	}
	rankAggregates(students)

	summary := &models.ClassAggregateSummary{ClassID: classID, ExamYear: year, Students: students, GeneratedAt: s.now().UTC()}
	_ = s.cache.Set(ctx, key, summary, s.config.SummaryTTL)
	return summary, false, nil
}

// Preview computes an aggregate for unsaved grades.
func (s *BECEService) Preview(ctx context.Context, req AggregatePreviewRequest) (*models.StudentAggregate, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid aggregate payload")
	}
	results := make([]models.BECEResult, 0, len(req.Results))
	for _, r := range req.Results {
		if _, ok := grading.PointsFor(r.Grade); !ok {
			return nil, appErrors.WithDetails(appErrors.ErrValidation, fmt.Sprintf("unrecognised BECE grade %q for %s", r.Grade, r.Subject),
				map[string]string{"subject": r.Subject, "grade": r.Grade})
		}
		results = append(results, models.BECEResult{Subject: r.Subject, Grade: strings.ToUpper(strings.TrimSpace(r.Grade))})
	}
	agg := s.summarise(results)
	return &agg, nil
}

// aggregatesFor computes aggregates for many students of one exam year.
func (s *BECEService) aggregatesFor(ctx context.Context, studentIDs []string, year int) (map[string]models.StudentAggregate, error) {
	byStudent, err := s.results.ListByStudents(ctx, studentIDs, year)
	if err != nil {
		return nil, err
	}
	out := make(map[string]models.StudentAggregate, len(studentIDs))
	for _, id := range studentIDs {
		agg := s.summarise(byStudent[id])
		agg.StudentID = id
		agg.ExamYear = year
		out[id] = agg
	}
	return out, nil
}

func (s *BECEService) summarise(results []models.BECEResult) models.StudentAggregate {
	subjects := make([]grading.SubjectResult, len(results))
	for i, r := range results {
		subjects[i] = grading.SubjectResult{Subject: r.Subject, Grade: r.Grade}
	}
	aggregate := grading.AggregateOf(subjects, s.config.BestOf)
	s.metrics.RecordAggregate(aggregate)
	return models.StudentAggregate{
		Results:          results,
		Aggregate:        aggregate,
		AggregateDisplay: grading.FormatAggregate(aggregate),
		Classification:   s.config.Classifier.Classify(aggregate),
	}
}

func (s *BECEService) findStudent(ctx context.Context, id string) (*models.StudentDetail, error) {
	student, err := s.students.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// rankAggregates orders by aggregate ascending then name, and assigns
// competition ranks. Students without an aggregate go last, unranked.
func rankAggregates(students []models.StudentAggregate) {
	sort.SliceStable(students, func(i, j int) bool {
		a, b := students[i].Aggregate, students[j].Aggregate
		switch {
		case a == nil && b == nil:
			return students[i].StudentName < students[j].StudentName
		case a == nil:
			return false
		case b == nil:
			return true
		case *a != *b:
			return *a < *b
		default:
			return students[i].StudentName < students[j].StudentName
		}
	})
	for i := range students {
		if students[i].Aggregate == nil {
			students[i].Rank = nil
			continue
		}
		rank := i + 1
		if i > 0 && students[i-1].Aggregate != nil && *students[i-1].Aggregate == *students[i].Aggregate {
			rank = *students[i-1].Rank
		}
		students[i].Rank = &rank
	}
}
