package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/basic-school-api/internal/models"
	appErrors "github.com/noah-isme/basic-school-api/pkg/errors"
	"github.com/noah-isme/basic-school-api/pkg/grading"
)

type classRepository interface {
	List(ctx context.Context, filter models.ClassFilter) ([]models.ClassDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.ClassDetail, error)
	ExistsByName(ctx context.Context, name, academicYear, excludeID string) (bool, error)
	Create(ctx context.Context, class *models.Class) error
	Update(ctx context.Context, class *models.Class) error
}

type categorySubjectLister interface {
	ListForCategory(ctx context.Context, category string) ([]models.Subject, error)
}

// ClassRequest captures create and update payloads. Level may be given as the
// numeric index or as a display name such as "Basic 7" or "JHS 1".
type ClassRequest struct {
	Name           string  `json:"name" validate:"required,max=100"`
	Level          *int    `json:"level" validate:"required_without=LevelName,omitempty,gte=1"`
	LevelName      string  `json:"level_name" validate:"omitempty,max=16"`
	AcademicYear   string  `json:"academic_year" validate:"required,max=9"`
	ClassTeacherID *string `json:"class_teacher_id"`
}

func (r ClassRequest) level() (grading.Level, error) {
	if r.Level != nil {
		l := grading.Level(*r.Level)
		if !l.Valid() {
			return 0, fmt.Errorf("%w: %d", grading.ErrInvalidLevel, *r.Level)
		}
		return l, nil
	}
	return grading.ParseLevel(r.LevelName)
}

// ClassService coordinates class operations.
type ClassService struct {
	repo      classRepository
	subjects  categorySubjectLister
	validator *validator.Validate
	logger    *zap.Logger
}

// NewClassService constructs ClassService.
func NewClassService(repo classRepository, subjects categorySubjectLister, validate *validator.Validate, logger *zap.Logger) *ClassService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClassService{repo: repo, subjects: subjects, validator: validate, logger: logger}
}

// List returns classes with pagination metadata.
func (s *ClassService) List(ctx context.Context, filter models.ClassFilter) ([]models.ClassDetail, *models.Pagination, error) {
	classes, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list classes")
	}
	for i := range classes {
		if err := s.enrich(&classes[i]); err != nil {
			return nil, nil, err
		}
	}
	page, size := filter.Page, filter.PageSize
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	return classes, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns detailed class information.
func (s *ClassService) Get(ctx context.Context, id string) (*models.ClassDetail, error) {
	detail, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	if err := s.enrich(detail); err != nil {
		return nil, err
	}
	return detail, nil
}

// Create adds a new class.
func (s *ClassService) Create(ctx context.Context, req ClassRequest) (*models.ClassDetail, error) {
	class, err := s.buildClass(ctx, "", req)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, class); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create class")
	}
	detail := &models.ClassDetail{Class: *class}
	if err := s.enrich(detail); err != nil {
		return nil, err
	}
	return detail, nil
}

// Update modifies a class record.
func (s *ClassService) Update(ctx context.Context, id string, req ClassRequest) (*models.ClassDetail, error) {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	class, err := s.buildClass(ctx, id, req)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, class); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update class")
	}
	return s.Get(ctx, id)
}

// ListSubjects returns the subjects taught at the class's level category.
func (s *ClassService) ListSubjects(ctx context.Context, classID string) ([]models.Subject, error) {
	class, err := s.Get(ctx, classID)
	if err != nil {
		return nil, err
	}
	subjects, err := s.subjects.ListForCategory(ctx, class.Category)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list class subjects")
	}
	return subjects, nil
}

func (s *ClassService) buildClass(ctx context.Context, id string, req ClassRequest) (*models.Class, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class payload")
	}
	level, err := req.level()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unknown class level")
	}
	name := strings.TrimSpace(req.Name)
	exists, err := s.repo.ExistsByName(ctx, name, req.AcademicYear, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check class name")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "class name already exists for the academic year")
	}
	return &models.Class{
		ID:             id,
		Name:           name,
		Level:          int(level),
		AcademicYear:   req.AcademicYear,
		ClassTeacherID: req.ClassTeacherID,
	}, nil
}

// enrich fills the level-derived fields. A stored level outside the known
// levels is a data defect and surfaces as INVALID_LEVEL.
func (s *ClassService) enrich(detail *models.ClassDetail) error {
	info, err := describeLevel(detail.Level)
	if err != nil {
		s.logger.Error("class has invalid level", zap.String("class_id", detail.ID), zap.Int("level", detail.Level))
		return appErrors.WithDetails(appErrors.ErrInvalidLevel, fmt.Sprintf("class %s has invalid level %d", detail.Name, detail.Level),
			map[string]interface{}{"class_id": detail.ID, "level": detail.Level})
	}
	detail.LevelName = info.name
	detail.Category = string(info.category)
	detail.NextLevel = info.next
	detail.IsHighestLevel = info.highest
	return nil
}

type levelInfo struct {
	name     string
	category grading.Category
	next     *int
	highest  bool
}

func describeLevel(raw int) (levelInfo, error) {
	level := grading.Level(raw)
	name, err := grading.LevelName(level)
	if err != nil {
		return levelInfo{}, err
	}
	category, err := grading.LevelCategory(level)
	if err != nil {
		return levelInfo{}, err
	}
	next, err := grading.NextLevel(level)
	if err != nil {
		return levelInfo{}, err
	}
	info := levelInfo{name: name, category: category, highest: grading.IsHighestLevel(level)}
	if next != nil {
		n := int(*next)
		info.next = &n
	}
	return info, nil
}
