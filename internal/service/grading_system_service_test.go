package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/basic-school-api/internal/models"
	appErrors "github.com/noah-isme/basic-school-api/pkg/errors"
	"github.com/noah-isme/basic-school-api/pkg/grading"
	"github.com/noah-isme/basic-school-api/pkg/jobs"
)

type fakeGradingSystemRepo struct {
	systems     map[string]*models.GradingSystem
	activeCalls int
	findErr     error
	created     []*models.GradingSystem
}

func newFakeGradingSystemRepo(systems ...*models.GradingSystem) *fakeGradingSystemRepo {
	repo := &fakeGradingSystemRepo{systems: map[string]*models.GradingSystem{}}
	for _, s := range systems {
		repo.systems[s.ID] = s
	}
	return repo
}

func (f *fakeGradingSystemRepo) List(ctx context.Context) ([]models.GradingSystem, error) {
	out := make([]models.GradingSystem, 0, len(f.systems))
	for _, s := range f.systems {
		out = append(out, *s)
	}
	return out, nil
}

func (f *fakeGradingSystemRepo) FindByID(ctx context.Context, id string) (*models.GradingSystem, error) {
	if s, ok := f.systems[id]; ok {
		copied := *s
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeGradingSystemRepo) FindActive(ctx context.Context) (*models.GradingSystem, error) {
	f.activeCalls++
	if f.findErr != nil {
		return nil, f.findErr
	}
	for _, s := range f.systems {
		if s.IsActive {
			copied := *s
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeGradingSystemRepo) Create(ctx context.Context, system *models.GradingSystem) error {
	if system.ID == "" {
		system.ID = "gs-new"
	}
	if system.IsActive {
		f.deactivateAll()
	}
	stored := *system
	f.systems[system.ID] = &stored
	f.created = append(f.created, system)
	return nil
}

func (f *fakeGradingSystemRepo) Update(ctx context.Context, system *models.GradingSystem) error {
	existing, ok := f.systems[system.ID]
	if !ok {
		return sql.ErrNoRows
	}
	existing.Name = system.Name
	existing.Description = system.Description
	existing.Bands = system.Bands
	return nil
}

func (f *fakeGradingSystemRepo) Activate(ctx context.Context, id string) error {
	s, ok := f.systems[id]
	if !ok {
		return sql.ErrNoRows
	}
	f.deactivateAll()
	s.IsActive = true
	return nil
}

func (f *fakeGradingSystemRepo) deactivateAll() {
	for _, s := range f.systems {
		s.IsActive = false
	}
}

type fakeTermRepo struct {
	terms  map[string]*models.Term
	active *models.Term
}

func (f fakeTermRepo) FindByID(ctx context.Context, id string) (*models.Term, error) {
	if t, ok := f.terms[id]; ok {
		return t, nil
	}
	return nil, sql.ErrNoRows
}

func (f fakeTermRepo) List(ctx context.Context, filter models.TermFilter) ([]models.Term, error) {
	var out []models.Term
	for _, t := range f.terms {
		if filter.AcademicYear == "" || t.AcademicYear == filter.AcademicYear {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (f fakeTermRepo) FindActive(ctx context.Context) (*models.Term, error) {
	if f.active == nil {
		return nil, sql.ErrNoRows
	}
	return f.active, nil
}

type fakeQueue struct {
	jobs []jobs.Job
	err  error
}

func (f *fakeQueue) Enqueue(ctx context.Context, job jobs.Job) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.jobs = append(f.jobs, job)
	return "job-1", nil
}

func pct(v float64) *float64 { return &v }

func threeBandRequest() GradingSystemRequest {
	return GradingSystemRequest{
		Name: "Pass/Merit/Distinction",
		Bands: []GradeBandRequest{
			{Code: "d", Name: "Distinction", MinPercentage: pct(75), MaxPercentage: pct(100)},
			{Code: "m", Name: "Merit", MinPercentage: pct(50), MaxPercentage: pct(74)},
			{Code: "p", Name: "Pass", MinPercentage: pct(0), MaxPercentage: pct(49)},
		},
	}
}

func storedSystem(id string, active bool) *models.GradingSystem {
	return &models.GradingSystem{
		ID:       id,
		Name:     "Stored " + id,
		IsActive: active,
		Bands:    models.BandsFromGrading(id, grading.DefaultBands()),
	}
}

func newGradingSystemServiceForTest(repo *fakeGradingSystemRepo, cache *memoryCache, queue jobEnqueuer) *GradingSystemService {
	var cacheSvc *CacheService
	if cache != nil {
		cacheSvc = NewCacheService(cache, nil, time.Minute, nil, true)
	}
	terms := fakeTermRepo{
		terms:  map[string]*models.Term{"term-1": {ID: "term-1", Name: "Term 1"}},
		active: &models.Term{ID: "term-2", Name: "Term 2", IsActive: true},
	}
	return NewGradingSystemService(repo, terms, cacheSvc, queue, time.Minute, nil, zap.NewNop())
}

func TestGradingSystemCurrentFallsBackToDefault(t *testing.T) {
	svc := newGradingSystemServiceForTest(newFakeGradingSystemRepo(), nil, nil)

	system, hit, err := svc.Current(context.Background())
	require.NoError(t, err)
	assert.False(t, hit)
	assert.True(t, system.IsDefault)
	assert.Equal(t, grading.DefaultBands(), system.GradeBands())
}

func TestGradingSystemCurrentUsesCache(t *testing.T) {
	repo := newFakeGradingSystemRepo(storedSystem("gs-1", true))
	cache := newMemoryCache()
	svc := newGradingSystemServiceForTest(repo, cache, nil)

	first, hit, err := svc.Current(context.Background())
	require.NoError(t, err)
	assert.False(t, hit)
	second, hit, err := svc.Current(context.Background())
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, repo.activeCalls)
}

func TestGradingSystemCurrentRepositoryError(t *testing.T) {
	repo := newFakeGradingSystemRepo()
	repo.findErr = errors.New("db down")
	svc := newGradingSystemServiceForTest(repo, nil, nil)

	_, _, err := svc.Current(context.Background())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}

func TestGradingSystemCreateValidBands(t *testing.T) {
	repo := newFakeGradingSystemRepo(storedSystem("gs-old", true))
	cache := newMemoryCache()
	svc := newGradingSystemServiceForTest(repo, cache, nil)
	_, _, err := svc.Current(context.Background())
	require.NoError(t, err)
	require.Contains(t, cache.items, cacheKeyCurrentGradingSystem)

	req := threeBandRequest()
	req.Activate = true
	system, err := svc.Create(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, system.IsActive)
	require.Len(t, system.Bands, 3)
	assert.Equal(t, "D", system.Bands[0].Code)
	assert.Equal(t, 1, system.Bands[0].SortOrder)
	assert.Equal(t, 3, system.Bands[2].SortOrder)
	assert.NotContains(t, cache.items, cacheKeyCurrentGradingSystem)
	assert.False(t, repo.systems["gs-old"].IsActive)
}

func TestGradingSystemCreateRejectsInvalidBands(t *testing.T) {
	svc := newGradingSystemServiceForTest(newFakeGradingSystemRepo(), nil, nil)

	overlap := threeBandRequest()
	overlap.Bands[1].MaxPercentage = pct(75)
	gap := threeBandRequest()
	gap.Bands[2].MaxPercentage = pct(40)
	empty := threeBandRequest()
	empty.Bands = nil
	short := threeBandRequest()
	short.Bands[0].MaxPercentage = pct(99)

	cases := map[string]struct {
		req  GradingSystemRequest
		rule string
	}{
		"overlap":  {overlap, grading.RuleOverlap},
		"gap":      {gap, grading.RuleGap},
		"empty":    {empty, grading.RuleEmpty},
		"coverage": {short, grading.RuleCoverage},
	}
	for name, tc := range cases {
		_, err := svc.Create(context.Background(), tc.req)
		require.Error(t, err, name)
		appErr := appErrors.FromError(err)
		assert.Equal(t, appErrors.ErrInvalidGradingSystem.Code, appErr.Code, name)
		details, ok := appErr.Details.(*grading.ValidationError)
		require.True(t, ok, name)
		assert.Equal(t, tc.rule, details.Rule, name)
	}
}

func TestGradingSystemCreateRejectsMalformedPayload(t *testing.T) {
	svc := newGradingSystemServiceForTest(newFakeGradingSystemRepo(), nil, nil)
	req := threeBandRequest()
	req.Bands[0].MinPercentage = nil

	_, err := svc.Create(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestGradingSystemUpdateAndActivate(t *testing.T) {
	repo := newFakeGradingSystemRepo(storedSystem("gs-1", true), storedSystem("gs-2", false))
	cache := newMemoryCache()
	svc := newGradingSystemServiceForTest(repo, cache, nil)

	updated, err := svc.Update(context.Background(), "gs-2", threeBandRequest())
	require.NoError(t, err)
	assert.Len(t, updated.Bands, 3)
	assert.False(t, updated.IsActive)

	_, err = svc.Update(context.Background(), "missing", threeBandRequest())
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	activated, err := svc.Activate(context.Background(), "gs-2")
	require.NoError(t, err)
	assert.True(t, activated.IsActive)
	assert.False(t, repo.systems["gs-1"].IsActive)

	current, _, err := svc.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "gs-2", current.ID)

	_, err = svc.Activate(context.Background(), "missing")
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestGradingSystemResolve(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	broken := storedSystem("gs-broken", true)
	broken.Bands = models.BandsFromGrading("gs-broken", []grading.GradeBand{{Code: "A", Name: "Top", MinPercentage: 50, MaxPercentage: 100}})
	repo := newFakeGradingSystemRepo()
	svc := NewGradingSystemService(repo, fakeTermRepo{}, nil, nil, 0, nil, zap.New(core))

	got, err := svc.Resolve(context.Background(), 79.5)
	require.NoError(t, err)
	assert.Equal(t, "P", got.Band.Code)
	assert.True(t, got.IsDefault)

	_, err = svc.Resolve(context.Background(), 101)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	repo.systems[broken.ID] = broken
	_, err = svc.Resolve(context.Background(), 20)
	assert.Equal(t, appErrors.ErrNoMatchingBand.Code, appErrors.FromError(err).Code)
	assert.Equal(t, 1, logs.Len())
}

func TestGradingSystemRequestRegrade(t *testing.T) {
	queue := &fakeQueue{}
	svc := newGradingSystemServiceForTest(newFakeGradingSystemRepo(), nil, queue)

	ticket, err := svc.RequestRegrade(context.Background(), "", "user-1")
	require.NoError(t, err)
	assert.Equal(t, "term-2", ticket.TermID)
	assert.Equal(t, "job-1", ticket.JobID)
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, JobTypeRegrade, queue.jobs[0].Type)
	assert.Equal(t, RegradePayload{TermID: "term-2", RequestedBy: "user-1"}, queue.jobs[0].Payload)

	_, err = svc.RequestRegrade(context.Background(), "term-9", "user-1")
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	noQueue := newGradingSystemServiceForTest(newFakeGradingSystemRepo(), nil, nil)
	_, err = noQueue.RequestRegrade(context.Background(), "term-1", "user-1")
	assert.Error(t, err)
}
