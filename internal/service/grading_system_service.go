package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/basic-school-api/internal/models"
	appErrors "github.com/noah-isme/basic-school-api/pkg/errors"
	"github.com/noah-isme/basic-school-api/pkg/grading"
	"github.com/noah-isme/basic-school-api/pkg/jobs"
)

// JobTypeRegrade re-resolves the bands of a term's open grades.
const JobTypeRegrade = "grades.regrade"

// RegradePayload is the payload of a JobTypeRegrade job.
type RegradePayload struct {
	TermID      string `json:"term_id"`
	RequestedBy string `json:"requested_by,omitempty"`
}

type gradingSystemRepository interface {
	List(ctx context.Context) ([]models.GradingSystem, error)
	FindByID(ctx context.Context, id string) (*models.GradingSystem, error)
	FindActive(ctx context.Context) (*models.GradingSystem, error)
	Create(ctx context.Context, system *models.GradingSystem) error
	Update(ctx context.Context, system *models.GradingSystem) error
	Activate(ctx context.Context, id string) error
}

type termReader interface {
	FindByID(ctx context.Context, id string) (*models.Term, error)
	FindActive(ctx context.Context) (*models.Term, error)
}

type jobEnqueuer interface {
	Enqueue(ctx context.Context, job jobs.Job) (string, error)
}

// GradeBandRequest is one band of a grading system payload.
type GradeBandRequest struct {
	Code          string   `json:"code" validate:"required,max=8"`
	Name          string   `json:"name" validate:"required,max=64"`
	MinPercentage *float64 `json:"min_percentage" validate:"required,gte=0,lte=100"`
	MaxPercentage *float64 `json:"max_percentage" validate:"required,gte=0,lte=100"`
	Order         int      `json:"order" validate:"gte=0"`
}

// GradingSystemRequest creates or replaces a grading system.
type GradingSystemRequest struct {
	Name        string             `json:"name" validate:"required,max=100"`
	Description *string            `json:"description" validate:"omitempty,max=500"`
	Activate    bool               `json:"activate"`
	Bands       []GradeBandRequest `json:"bands" validate:"dive"`
}

// ResolvedGrade is the band a percentage falls into under the current system.
type ResolvedGrade struct {
	Percentage      float64           `json:"percentage"`
	Band            grading.GradeBand `json:"band"`
	GradingSystemID string            `json:"grading_system_id,omitempty"`
	IsDefault       bool              `json:"is_default"`
}

// RegradeTicket acknowledges an accepted regrade request.
type RegradeTicket struct {
	JobID  string `json:"job_id"`
	TermID string `json:"term_id"`
}

// GradingSystemService manages grade band configuration.
type GradingSystemService struct {
	repo      gradingSystemRepository
	terms     termReader
	cache     *CacheService
	queue     jobEnqueuer
	cacheTTL  time.Duration
	validator *validator.Validate
	logger    *zap.Logger
}

// NewGradingSystemService constructs the service. cache and queue may be nil.
func NewGradingSystemService(repo gradingSystemRepository, terms termReader, cache *CacheService, queue jobEnqueuer, cacheTTL time.Duration, validate *validator.Validate, logger *zap.Logger) *GradingSystemService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GradingSystemService{repo: repo, terms: terms, cache: cache, queue: queue, cacheTTL: cacheTTL, validator: validate, logger: logger}
}

// DefaultGradingSystem is the unsaved system served until one is activated.
func DefaultGradingSystem() *models.GradingSystem {
	return &models.GradingSystem{
		Name:      "Standards-based (default)",
		IsActive:  true,
		IsDefault: true,
		Bands:     models.BandsFromGrading("", grading.DefaultBands()),
	}
}

// List returns every stored grading system.
func (s *GradingSystemService) List(ctx context.Context) ([]models.GradingSystem, error) {
	systems, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list grading systems")
	}
	return systems, nil
}

// Get returns a grading system by ID.
func (s *GradingSystemService) Get(ctx context.Context, id string) (*models.GradingSystem, error) {
	system, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "grading system not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grading system")
	}
	return system, nil
}

// Current returns the active grading system, or the default scale when none is
// active. The boolean reports a cache hit.
func (s *GradingSystemService) Current(ctx context.Context) (*models.GradingSystem, bool, error) {
	var cached models.GradingSystem
	if hit, _ := s.cache.Get(ctx, cacheKeyCurrentGradingSystem, &cached); hit {
		return &cached, true, nil
	}

	system, err := s.repo.FindActive(ctx)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load active grading system")
		}
		system = DefaultGradingSystem()
	}
	_ = s.cache.Set(ctx, cacheKeyCurrentGradingSystem, system, s.cacheTTL)
	return system, false, nil
}

// Create validates and stores a new grading system.
func (s *GradingSystemService) Create(ctx context.Context, req GradingSystemRequest) (*models.GradingSystem, error) {
	bands, err := s.validateRequest(req)
	if err != nil {
		return nil, err
	}
	system := &models.GradingSystem{
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		IsActive:    req.Activate,
		Bands:       models.BandsFromGrading("", bands),
	}
	if err := s.repo.Create(ctx, system); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create grading system")
	}
	if system.IsActive {
		s.invalidateCurrent(ctx)
	}
	s.logger.Info("grading system created", zap.String("id", system.ID), zap.Bool("active", system.IsActive), zap.Int("bands", len(bands)))
	return system, nil
}

// Update replaces the name, description and bands of a grading system.
func (s *GradingSystemService) Update(ctx context.Context, id string, req GradingSystemRequest) (*models.GradingSystem, error) {
	bands, err := s.validateRequest(req)
	if err != nil {
		return nil, err
	}
	system := &models.GradingSystem{
		ID:          id,
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Bands:       models.BandsFromGrading(id, bands),
	}
	if err := s.repo.Update(ctx, system); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "grading system not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update grading system")
	}
	if req.Activate {
		if err := s.repo.Activate(ctx, id); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to activate grading system")
		}
	}
	s.invalidateCurrent(ctx)
	return s.Get(ctx, id)
}

// Activate makes the grading system the only active one.
func (s *GradingSystemService) Activate(ctx context.Context, id string) (*models.GradingSystem, error) {
	if err := s.repo.Activate(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "grading system not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to activate grading system")
	}
	s.invalidateCurrent(ctx)
	s.logger.Info("grading system activated", zap.String("id", id))
	return s.Get(ctx, id)
}

// Resolve maps a percentage to a band of the current grading system.
func (s *GradingSystemService) Resolve(ctx context.Context, percentage float64) (*ResolvedGrade, error) {
	system, _, err := s.Current(ctx)
	if err != nil {
		return nil, err
	}
	band, err := resolveBand(s.logger, system, percentage)
	if err != nil {
		return nil, err
	}
	return &ResolvedGrade{Percentage: percentage, Band: band, GradingSystemID: system.ID, IsDefault: system.IsDefault}, nil
}

// RequestRegrade queues a re-banding of the term's open grades. An empty
// termID targets the active term.
func (s *GradingSystemService) RequestRegrade(ctx context.Context, termID, actorID string) (*RegradeTicket, error) {
	if s.queue == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "regrade queue unavailable")
	}
	term, err := s.lookupTerm(ctx, termID)
	if err != nil {
		return nil, err
	}
	jobID, err := s.queue.Enqueue(ctx, jobs.Job{Type: JobTypeRegrade, Payload: RegradePayload{TermID: term.ID, RequestedBy: actorID}})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to queue regrade")
	}
	s.logger.Info("regrade queued", zap.String("job_id", jobID), zap.String("term_id", term.ID), zap.String("actor", actorID))
	return &RegradeTicket{JobID: jobID, TermID: term.ID}, nil
}

func (s *GradingSystemService) lookupTerm(ctx context.Context, termID string) (*models.Term, error) {
	var (
		term *models.Term
		err  error
	)
	if termID == "" {
		term, err = s.terms.FindActive(ctx)
	} else {
		term, err = s.terms.FindByID(ctx, termID)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if termID == "" {
				return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "no active term")
			}
			return nil, appErrors.Clone(appErrors.ErrNotFound, "term not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load term")
	}
	return term, nil
}

func (s *GradingSystemService) validateRequest(req GradingSystemRequest) ([]grading.GradeBand, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grading system payload")
	}
	bands := make([]grading.GradeBand, len(req.Bands))
	for i, b := range req.Bands {
		order := b.Order
		if order == 0 {
			order = i + 1
		}
		bands[i] = grading.GradeBand{
			Code:          strings.ToUpper(strings.TrimSpace(b.Code)),
			Name:          strings.TrimSpace(b.Name),
			MinPercentage: *b.MinPercentage,
			MaxPercentage: *b.MaxPercentage,
			Order:         order,
		}
	}
	if err := grading.ValidateGradingSystem(bands); err != nil {
		var verr *grading.ValidationError
		if errors.As(err, &verr) {
			return nil, appErrors.WithDetails(appErrors.ErrInvalidGradingSystem, verr.Message, verr)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidGradingSystem.Code, appErrors.ErrInvalidGradingSystem.Status, "grading system is invalid")
	}
	return bands, nil
}

func (s *GradingSystemService) invalidateCurrent(ctx context.Context) {
	_ = s.cache.Delete(ctx, cacheKeyCurrentGradingSystem)
}

// resolveBand resolves percentage against system, mapping scoring errors to
// HTTP-aware errors.
func resolveBand(logger *zap.Logger, system *models.GradingSystem, percentage float64) (grading.GradeBand, error) {
	band, err := grading.ResolveGrade(percentage, system.GradeBands())
	switch {
	case err == nil:
		return band, nil
	case errors.Is(err, grading.ErrPercentageOutOfRange):
		return grading.GradeBand{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "percentage must be between 0 and 100")
	case errors.Is(err, grading.ErrNoMatchingBand):
		logger.Error("grading system does not cover score",
			zap.String("grading_system_id", system.ID), zap.Float64("percentage", percentage))
		return grading.GradeBand{}, appErrors.Wrap(err, appErrors.ErrNoMatchingBand.Code, appErrors.ErrNoMatchingBand.Status, appErrors.ErrNoMatchingBand.Message)
	default:
		return grading.GradeBand{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve grade")
	}
}
