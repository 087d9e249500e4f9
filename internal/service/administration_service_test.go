package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaxport/vaxport-api/internal/models"
	appErrors "github.com/vaxport/vaxport-api/pkg/errors"
	"github.com/vaxport/vaxport-api/pkg/jobs"
)

type doseRepoStub struct {
	mu      sync.Mutex
	records map[string]models.DoseRecord
	err     error
	marks   int
}

func doseKey(subjectID, vaccineTemplateID string, doseNumber int) string {
	return DoseCacheKey(subjectID, vaccineTemplateID, doseNumber)
}

func (s *doseRepoStub) Find(ctx context.Context, subjectID, vaccineTemplateID string, doseNumber int) (*models.DoseRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	record, ok := s.records[doseKey(subjectID, vaccineTemplateID, doseNumber)]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &record, nil
}

func (s *doseRepoStub) MarkAdministered(ctx context.Context, subjectID, vaccineTemplateID string, doseNumber int, staffID string, notes *string, at time.Time) (*models.DoseRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.marks++
	key := doseKey(subjectID, vaccineTemplateID, doseNumber)
	record, ok := s.records[key]
	if !ok {
		return nil, sql.ErrNoRows
	}
	if record.Administered() {
		existing := record
		return &existing, sql.ErrNoRows
	}
	when := at.UTC()
	record.AdministeredDate = &when
	record.AdministeredBy = &staffID
	record.Notes = notes
	s.records[key] = record
	return &record, nil
}

type patientRepoStub struct {
	summary *models.PatientSummary
	err     error
}

func (s *patientRepoStub) Summary(ctx context.Context, subjectID string) (*models.PatientSummary, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.summary, nil
}

type cacheStub struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func newCacheStub() *cacheStub {
	return &cacheStub{entries: make(map[string][]byte)}
}

func (s *cacheStub) Get(ctx context.Context, key string, dest interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (s *cacheStub) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = raw
	return nil
}

func (s *cacheStub) Consume(ctx context.Context, key string, dest interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	delete(s.entries, key)
	return json.Unmarshal(raw, dest)
}

type auditStub struct {
	mu   sync.Mutex
	jobs []jobs.Job
}

func (s *auditStub) Enqueue(job jobs.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, job)
	return nil
}

func (s *auditStub) actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	actions := make([]string, 0, len(s.jobs))
	for _, job := range s.jobs {
		actions = append(actions, job.Type)
	}
	return actions
}

func pendingDose(subjectID, vaccineTemplateID string, doseNumber int) models.DoseRecord {
	return models.DoseRecord{
		ID:                "dr-1",
		SubjectID:         subjectID,
		VaccineTemplateID: vaccineTemplateID,
		VaccineName:       "Hepatitis B",
		DoseNumber:        doseNumber,
		DueDate:           time.Now().Add(24 * time.Hour),
	}
}

func newAdministrationFixture(records ...models.DoseRecord) (*AdministrationService, *doseRepoStub, *cacheStub, *auditStub) {
	repo := &doseRepoStub{records: make(map[string]models.DoseRecord)}
	for _, record := range records {
		repo.records[doseKey(record.SubjectID, record.VaccineTemplateID, record.DoseNumber)] = record
	}
	cache := newCacheStub()
	audit := &auditStub{}
	patients := &patientRepoStub{summary: &models.PatientSummary{Name: "Jane Doe"}}
	svc := NewAdministrationService(repo, patients, cache, audit, nil, nil, nil, time.Minute)
	return svc, repo, cache, audit
}

func TestAdministerCommitsOnce(t *testing.T) {
	svc, repo, _, audit := newAdministrationFixture(pendingDose("p123", "vt9", 2))

	result, err := svc.Administer(context.Background(), AdministerRequest{
		SubjectID:         "p123",
		VaccineTemplateID: "vt9",
		Dose:              "2",
		StaffID:           "doc-7",
	})
	require.NoError(t, err)
	assert.False(t, result.Duplicate)
	assert.True(t, result.Record.Administered())
	assert.Equal(t, "doc-7", *result.Record.AdministeredBy)
	assert.Equal(t, "Jane Doe", result.Patient.Name)
	assert.Equal(t, 1, repo.marks)
	assert.Equal(t, []string{models.AuditActionAdministerDose}, audit.actions())
}

func TestAdministerSecondAttemptIsDuplicate(t *testing.T) {
	svc, _, _, audit := newAdministrationFixture(pendingDose("p123", "vt9", 2))
	req := AdministerRequest{SubjectID: "p123", VaccineTemplateID: "vt9", Dose: "2", StaffID: "doc-7"}

	first, err := svc.Administer(context.Background(), req)
	require.NoError(t, err)
	require.False(t, first.Duplicate)

	second, err := svc.Administer(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.True(t, second.Record.Administered())
	assert.Equal(t, first.Record.AdministeredDate.Unix(), second.Record.AdministeredDate.Unix())
	assert.Equal(t, []string{models.AuditActionAdministerDose, models.AuditActionDuplicateAttempt}, audit.actions())
}

func TestAdministerCachedDuplicateSkipsDatabase(t *testing.T) {
	administered := pendingDose("p123", "vt9", 2)
	now := time.Now().UTC()
	staff := "doc-1"
	administered.AdministeredDate = &now
	administered.AdministeredBy = &staff

	svc, repo, cache, _ := newAdministrationFixture()
	require.NoError(t, cache.Set(context.Background(), DoseCacheKey("p123", "vt9", 2), administered, time.Minute))

	result, err := svc.Administer(context.Background(), AdministerRequest{
		SubjectID:         "p123",
		VaccineTemplateID: "vt9",
		Dose:              "2",
		StaffID:           "doc-7",
	})
	require.NoError(t, err)
	assert.True(t, result.Duplicate)
	assert.Equal(t, 0, repo.marks)
}

func TestAdministerDoseDefaultsToOne(t *testing.T) {
	svc, _, _, _ := newAdministrationFixture(pendingDose("p123", "vt9", 1))

	for _, dose := range []string{"", "abc", "-3"} {
		result, err := svc.Administer(context.Background(), AdministerRequest{
			SubjectID:         "p123",
			VaccineTemplateID: "vt9",
			Dose:              dose,
			StaffID:           "doc-7",
		})
		require.NoError(t, err, "dose %q", dose)
		assert.Equal(t, 1, result.Record.DoseNumber)
	}
}

func TestAdministerUnknownRecord(t *testing.T) {
	svc, _, _, _ := newAdministrationFixture()

	_, err := svc.Administer(context.Background(), AdministerRequest{
		SubjectID:         "ghost",
		VaccineTemplateID: "vt9",
		Dose:              "1",
		StaffID:           "doc-7",
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestAdministerValidation(t *testing.T) {
	svc, repo, _, _ := newAdministrationFixture()

	_, err := svc.Administer(context.Background(), AdministerRequest{VaccineTemplateID: "vt9"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
	assert.Equal(t, 0, repo.marks)
}

func TestAdministerRepositoryFailure(t *testing.T) {
	svc, repo, _, _ := newAdministrationFixture(pendingDose("p123", "vt9", 1))
	repo.err = errors.New("connection reset")

	_, err := svc.Administer(context.Background(), AdministerRequest{
		SubjectID:         "p123",
		VaccineTemplateID: "vt9",
		StaffID:           "doc-7",
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInternal))
}

func TestAdministerConcurrentSessionsConverge(t *testing.T) {
	svc, _, _, _ := newAdministrationFixture(pendingDose("p123", "vt9", 2))
	req := AdministerRequest{SubjectID: "p123", VaccineTemplateID: "vt9", Dose: "2", StaffID: "doc-7"}

	var wg sync.WaitGroup
	results := make([]*AdministerResult, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.Administer(context.Background(), req)
		}(i)
	}
	wg.Wait()

	duplicates := 0
	for i, result := range results {
		require.NoError(t, errs[i])
		require.True(t, result.Record.Administered())
		if result.Duplicate {
			duplicates++
		}
	}
	assert.Equal(t, 1, duplicates)
}

func TestNormalizeDose(t *testing.T) {
	cases := map[string]int{"": 1, "1": 1, "2": 2, "10": 10, "0": 1, "-1": 1, "two": 1}
	for raw, want := range cases {
		assert.Equal(t, want, NormalizeDose(raw, nil), "raw %q", raw)
	}
}
