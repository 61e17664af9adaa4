package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/basic-school-api/internal/models"
	"github.com/noah-isme/basic-school-api/internal/repository"
	appErrors "github.com/noah-isme/basic-school-api/pkg/errors"
	"github.com/noah-isme/basic-school-api/pkg/grading"
	"github.com/noah-isme/basic-school-api/pkg/jobs"
)

type mockGradeRepo struct {
	stored      map[string]models.Grade
	finalized   map[string]bool
	bulkErr     error
	reportCard  []models.ReportCardSubject
	classRows   []models.ClassReportRow
	bandUpdates []models.GradeBandUpdate
	finalizeN   int64
}

func newMockGradeRepo() *mockGradeRepo {
	return &mockGradeRepo{stored: map[string]models.Grade{}, finalized: map[string]bool{}}
}

func gradeKey(g models.Grade) string { return g.StudentID + "/" + g.SubjectID + "/" + g.TermID }

func (m *mockGradeRepo) List(ctx context.Context, filter models.GradeFilter) ([]models.Grade, error) {
	var out []models.Grade
	for _, g := range m.stored {
		if filter.TermID != "" && g.TermID != filter.TermID {
			continue
		}
		if filter.Finalized != nil && g.Finalized != *filter.Finalized {
			continue
		}
		out = append(out, g)
	}
	return out, nil
}

func (m *mockGradeRepo) Upsert(ctx context.Context, grade *models.Grade) error {
	key := gradeKey(*grade)
	if m.finalized[key] {
		return repository.ErrGradeFinalized
	}
	if prev, ok := m.stored[key]; ok {
		grade.ID, grade.CreatedAt = prev.ID, prev.CreatedAt
	} else {
		grade.ID = "grade-" + grade.StudentID
	}
	m.stored[key] = *grade
	return nil
}

func (m *mockGradeRepo) BulkUpsert(ctx context.Context, grades []models.Grade) error {
	if m.bulkErr != nil {
		return m.bulkErr
	}
	for i := range grades {
		if err := m.Upsert(ctx, &grades[i]); err != nil {
			return err
		}
	}
	return nil
}

func (m *mockGradeRepo) Finalize(ctx context.Context, classID, subjectID, termID string) (int64, error) {
	return m.finalizeN, nil
}

func (m *mockGradeRepo) UpdateBands(ctx context.Context, updates []models.GradeBandUpdate) error {
	m.bandUpdates = append(m.bandUpdates, updates...)
	return nil
}

func (m *mockGradeRepo) ReportCard(ctx context.Context, studentID, termID string) ([]models.ReportCardSubject, error) {
	return m.reportCard, nil
}

func (m *mockGradeRepo) ClassReportRows(ctx context.Context, classID, subjectID, termID string) ([]models.ClassReportRow, error) {
	return m.classRows, nil
}

type fakeStudentRepo struct {
	mu       sync.Mutex
	students map[string]*models.StudentDetail
	listErr  error
	moved    map[string]string
	grads    map[string]int
	failOn   map[string]error
}

func newFakeStudentRepo(classID string, ids ...string) *fakeStudentRepo {
	repo := &fakeStudentRepo{students: map[string]*models.StudentDetail{}, moved: map[string]string{}, grads: map[string]int{}, failOn: map[string]error{}}
	for _, id := range ids {
		repo.add(id, classID)
	}
	return repo
}

func (f *fakeStudentRepo) add(id, classID string) {
	cid := classID
	f.students[id] = &models.StudentDetail{Student: models.Student{
		ID: id, FirstName: "Ama", LastName: id, ClassID: &cid, Status: models.StudentStatusActive,
	}}
}

func (f *fakeStudentRepo) FindByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	if s, ok := f.students[id]; ok {
		return s, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeStudentRepo) ListActiveByClass(ctx context.Context, classID string) ([]models.Student, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []models.Student
	for _, s := range f.students {
		if s.ClassID != nil && *s.ClassID == classID && s.Status == models.StudentStatusActive {
			out = append(out, s.Student)
		}
	}
	return out, nil
}

func (f *fakeStudentRepo) MoveToClass(ctx context.Context, studentID, fromClassID, toClassID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOn[studentID]; err != nil {
		return err
	}
	f.moved[studentID] = toClassID
	return nil
}

func (f *fakeStudentRepo) MarkGraduated(ctx context.Context, studentID, classID string, year int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOn[studentID]; err != nil {
		return err
	}
	f.grads[studentID] = year
	return nil
}

type staticSystem struct {
	system *models.GradingSystem
	err    error
}

func (s staticSystem) Current(ctx context.Context) (*models.GradingSystem, bool, error) {
	return s.system, false, s.err
}

func newGradeServiceForTest(repo *mockGradeRepo, students *fakeStudentRepo, system *models.GradingSystem) *GradeService {
	if system == nil {
		system = DefaultGradingSystem()
	}
	return NewGradeService(repo, students, staticSystem{system: system}, NewMetricsService(), nil, zap.NewNop())
}

func marks(project, t1, t2, group, exam float64) GradeComponents {
	return GradeComponents{Project: project, Test1: t1, Test2: t2, GroupWork: group, Exam: exam}
}

func TestGradeUpsertComputesAndSnapshots(t *testing.T) {
	repo := newMockGradeRepo()
	system := storedSystem("gs-1", true)
	svc := newGradeServiceForTest(repo, newFakeStudentRepo("class-1", "s1"), system)

	grade, err := svc.Upsert(context.Background(), UpsertGradeRequest{
		StudentID: "s1", SubjectID: "math", ClassID: "class-1", TermID: "t1",
		GradeComponents: marks(35, 18, 17, 15, 82),
	})
	require.NoError(t, err)
	assert.Equal(t, 42.5, grade.ClassScore)
	assert.Equal(t, 41.0, grade.ExamScore)
	assert.Equal(t, 83.5, grade.TotalScore)
	assert.Equal(t, "A", grade.GradeCode)
	assert.Equal(t, "Advanced", grade.GradeName)
	require.NotNil(t, grade.GradingSystemID)
	assert.Equal(t, "gs-1", *grade.GradingSystemID)
	assert.Contains(t, repo.stored, "s1/math/t1")
}

func TestGradeUpsertReturnsStoredIdentity(t *testing.T) {
	repo := newMockGradeRepo()
	created := time.Date(2025, 9, 20, 0, 0, 0, 0, time.UTC)
	repo.stored["s1/math/t1"] = models.Grade{ID: "g-stored", StudentID: "s1", SubjectID: "math", TermID: "t1", CreatedAt: created}
	svc := newGradeServiceForTest(repo, newFakeStudentRepo("class-1", "s1"), nil)

	grade, err := svc.Upsert(context.Background(), UpsertGradeRequest{
		StudentID: "s1", SubjectID: "math", ClassID: "class-1", TermID: "t1",
		GradeComponents: marks(40, 20, 20, 20, 100),
	})
	require.NoError(t, err)
	assert.Equal(t, "g-stored", grade.ID)
	assert.True(t, created.Equal(grade.CreatedAt))
	assert.Equal(t, 100.0, grade.TotalScore)
	assert.Equal(t, 100.0, repo.stored["s1/math/t1"].TotalScore)
}

func TestGradeUpsertDefaultSystemHasNoReference(t *testing.T) {
	svc := newGradeServiceForTest(newMockGradeRepo(), newFakeStudentRepo("class-1", "s1"), nil)
	grade, err := svc.Upsert(context.Background(), UpsertGradeRequest{
		StudentID: "s1", SubjectID: "math", ClassID: "class-1", TermID: "t1",
		GradeComponents: marks(10, 5, 5, 5, 30),
	})
	require.NoError(t, err)
	assert.Nil(t, grade.GradingSystemID)
	assert.Equal(t, 27.5, grade.TotalScore)
	assert.Equal(t, "B", grade.GradeCode)
}

func TestGradeUpsertRejections(t *testing.T) {
	repo := newMockGradeRepo()
	repo.finalized["s1/math/t1"] = true
	students := newFakeStudentRepo("class-1", "s1")
	students.add("s2", "class-2")
	svc := newGradeServiceForTest(repo, students, nil)

	base := UpsertGradeRequest{StudentID: "s1", SubjectID: "math", ClassID: "class-1", TermID: "t1", GradeComponents: marks(10, 10, 10, 10, 50)}

	outOfRange := base
	outOfRange.Project = 41
	_, err := svc.Upsert(context.Background(), outOfRange)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	missing := base
	missing.StudentID = "ghost"
	_, err = svc.Upsert(context.Background(), missing)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	wrongClass := base
	wrongClass.StudentID = "s2"
	_, err = svc.Upsert(context.Background(), wrongClass)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.Upsert(context.Background(), base)
	assert.Equal(t, appErrors.ErrFinalized.Code, appErrors.FromError(err).Code)
}

func TestGradeUpsertBandGapIsConfigurationDefect(t *testing.T) {
	system := &models.GradingSystem{ID: "gs-x", Bands: models.BandsFromGrading("gs-x", []grading.GradeBand{
		{Code: "A", Name: "Pass", MinPercentage: 40, MaxPercentage: 100},
	})}
	svc := newGradeServiceForTest(newMockGradeRepo(), newFakeStudentRepo("class-1", "s1"), system)

	_, err := svc.Upsert(context.Background(), UpsertGradeRequest{
		StudentID: "s1", SubjectID: "math", ClassID: "class-1", TermID: "t1", GradeComponents: marks(0, 0, 0, 0, 10),
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNoMatchingBand.Code, appErrors.FromError(err).Code)
}

func TestGradeBulkUpsertAtomic(t *testing.T) {
	repo := newMockGradeRepo()
	svc := newGradeServiceForTest(repo, newFakeStudentRepo("class-1", "s1", "s2"), nil)
	req := BulkGradesRequest{
		ClassID: "class-1", SubjectID: "sci", TermID: "t1",
		Items: []BulkGradeItem{
			{StudentID: "s1", GradeComponents: marks(30, 15, 15, 15, 70)},
			{StudentID: "s2", GradeComponents: marks(20, 10, 10, 10, 40)},
		},
	}
	result, err := svc.BulkUpsert(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 2, result.SuccessCount)
	assert.Len(t, repo.stored, 2)

	req.Items = append(req.Items, BulkGradeItem{StudentID: "outsider", GradeComponents: marks(1, 1, 1, 1, 1)})
	repo2 := newMockGradeRepo()
	svc2 := newGradeServiceForTest(repo2, newFakeStudentRepo("class-1", "s1", "s2"), nil)
	_, err = svc2.BulkUpsert(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outsider")
	assert.Empty(t, repo2.stored)

	repo3 := newMockGradeRepo()
	repo3.bulkErr = errors.New("deadlock")
	svc3 := newGradeServiceForTest(repo3, newFakeStudentRepo("class-1", "s1", "s2"), nil)
	req.Items = req.Items[:2]
	_, err = svc3.BulkUpsert(context.Background(), req)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}

func TestGradeBulkUpsertPartialOnError(t *testing.T) {
	repo := newMockGradeRepo()
	repo.finalized["s3/sci/t1"] = true
	svc := newGradeServiceForTest(repo, newFakeStudentRepo("class-1", "s1", "s2", "s3"), nil)

	result, err := svc.BulkUpsert(context.Background(), BulkGradesRequest{
		ClassID: "class-1", SubjectID: "sci", TermID: "t1", Mode: BulkModePartialOnError,
		Items: []BulkGradeItem{
			{StudentID: "s1", GradeComponents: marks(30, 15, 15, 15, 70)},
			{StudentID: "s2", GradeComponents: marks(30, 25, 15, 15, 70)},
			{StudentID: "s3", GradeComponents: marks(30, 15, 15, 15, 70)},
			{StudentID: "s1", GradeComponents: marks(30, 15, 15, 15, 70)},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.SuccessCount)
	require.Len(t, result.Failures, 3)
	assert.Equal(t, "s2", result.Failures[0].StudentID)
	assert.Equal(t, "grade already finalized", result.Failures[1].Reason)
	assert.Contains(t, result.Failures[2].Reason, "more than once")
}

func TestGradeReportCard(t *testing.T) {
	repo := newMockGradeRepo()
	repo.reportCard = []models.ReportCardSubject{
		{SubjectID: "math", TotalScore: 83.5, GradeCode: "A"},
		{SubjectID: "eng", TotalScore: 72},
		{SubjectID: "sci", TotalScore: 64},
	}
	svc := newGradeServiceForTest(repo, newFakeStudentRepo("class-1", "s1"), nil)

	card, err := svc.ReportCard(context.Background(), "s1", "t1")
	require.NoError(t, err)
	require.NotNil(t, card.Average)
	assert.Equal(t, 73.2, *card.Average)
	assert.Equal(t, "P", card.AverageGradeCode)
	assert.Equal(t, "Ama s1", card.StudentName)

	repo.reportCard = nil
	card, err = svc.ReportCard(context.Background(), "s1", "t1")
	require.NoError(t, err)
	assert.Nil(t, card.Average)
	assert.Empty(t, card.Subjects)

	_, err = svc.ReportCard(context.Background(), "ghost", "t1")
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
	_, err = svc.ReportCard(context.Background(), "s1", "")
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestGradeClassReportRanksTies(t *testing.T) {
	repo := newMockGradeRepo()
	repo.classRows = []models.ClassReportRow{
		{StudentID: "a", TotalScore: 90, GradeCode: "A"},
		{StudentID: "b", TotalScore: 90, GradeCode: "A"},
		{StudentID: "c", TotalScore: 70, GradeCode: "P"},
		{StudentID: "d", TotalScore: 35, GradeCode: "B"},
	}
	svc := newGradeServiceForTest(repo, newFakeStudentRepo("class-1"), nil)

	report, err := svc.ClassReport(context.Background(), "class-1", "math", "t1")
	require.NoError(t, err)
	ranks := []int{}
	for _, row := range report.Students {
		ranks = append(ranks, row.Rank)
	}
	assert.Equal(t, []int{1, 1, 3, 4}, ranks)
	assert.Equal(t, 35.0, *report.Min)
	assert.Equal(t, 90.0, *report.Max)
	assert.Equal(t, 71.3, *report.Average)
	assert.Equal(t, map[string]int{"A": 2, "P": 1, "B": 1}, report.Distribution)

	repo.classRows = nil
	report, err = svc.ClassReport(context.Background(), "class-1", "math", "t1")
	require.NoError(t, err)
	assert.Nil(t, report.Average)
	assert.Empty(t, report.Students)
}

func TestGradeRegradeSkipsUnchangedAndFinalized(t *testing.T) {
	repo := newMockGradeRepo()
	gsID := "gs-2"
	repo.stored["a"] = models.Grade{ID: "g-a", TermID: "t1", TotalScore: 85, GradeCode: "A", GradeName: "Advanced"}
	repo.stored["b"] = models.Grade{ID: "g-b", TermID: "t1", TotalScore: 60, GradeCode: "AP", GradeName: "Approaching Proficiency", GradingSystemID: &gsID}
	repo.stored["c"] = models.Grade{ID: "g-c", TermID: "t1", TotalScore: 60, GradeCode: "AP", Finalized: true}
	repo.stored["d"] = models.Grade{ID: "g-d", TermID: "t2", TotalScore: 60, GradeCode: "AP"}

	system := &models.GradingSystem{ID: gsID, Bands: models.BandsFromGrading(gsID, []grading.GradeBand{
		{Code: "A", Name: "Advanced", MinPercentage: 80, MaxPercentage: 100},
		{Code: "AP", Name: "Approaching Proficiency", MinPercentage: 50, MaxPercentage: 79},
		{Code: "B", Name: "Beginning", MinPercentage: 0, MaxPercentage: 49},
	})}
	svc := newGradeServiceForTest(repo, newFakeStudentRepo("class-1"), system)

	err := svc.HandleRegradeJob(context.Background(), jobs.Job{ID: "job-1", Type: JobTypeRegrade, Payload: RegradePayload{TermID: "t1"}})
	require.NoError(t, err)
	require.Len(t, repo.bandUpdates, 1)
	assert.Equal(t, "g-a", repo.bandUpdates[0].ID)
	assert.Equal(t, "A", repo.bandUpdates[0].GradeCode)
	assert.Equal(t, gsID, *repo.bandUpdates[0].GradingSystemID)

	assert.Error(t, svc.HandleRegradeJob(context.Background(), jobs.Job{ID: "job-2", Type: JobTypeRegrade, Payload: "t1"}))
}

func TestGradeFinalize(t *testing.T) {
	repo := newMockGradeRepo()
	repo.finalizeN = 28
	svc := newGradeServiceForTest(repo, newFakeStudentRepo("class-1"), nil)

	result, err := svc.Finalize(context.Background(), FinalizeGradesRequest{ClassID: "c", SubjectID: "s", TermID: "t"})
	require.NoError(t, err)
	assert.Equal(t, int64(28), result.Finalized)

	_, err = svc.Finalize(context.Background(), FinalizeGradesRequest{ClassID: "c"})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
