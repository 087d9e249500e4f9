package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/vaxport/vaxport-api/internal/models"
	appErrors "github.com/vaxport/vaxport-api/pkg/errors"
	"github.com/vaxport/vaxport-api/pkg/jobs"
)

type administrationDoseRepository interface {
	Find(ctx context.Context, subjectID, vaccineTemplateID string, doseNumber int) (*models.DoseRecord, error)
	MarkAdministered(ctx context.Context, subjectID, vaccineTemplateID string, doseNumber int, staffID string, notes *string, at time.Time) (*models.DoseRecord, error)
}

type administrationPatientRepository interface {
	Summary(ctx context.Context, subjectID string) (*models.PatientSummary, error)
}

type doseCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

type auditSink interface {
	Enqueue(job jobs.Job) error
}

// AdministerRequest is one administration attempt addressed by the scanned
// payload triple. Dose carries the raw payload value; anything that does not
// parse as a positive integer falls back to dose 1.
type AdministerRequest struct {
	SubjectID         string  `json:"subject_id" validate:"required"`
	VaccineTemplateID string  `json:"vaccine_template_id" validate:"required"`
	Dose              string  `json:"dose"`
	Notes             *string `json:"notes,omitempty"`
	StaffID           string  `json:"-"`
	IP                string  `json:"-"`
}

// AdministerResult is the outcome of a commit attempt. Duplicate results are
// success-shaped: the record reflects the administration that already
// happened, whichever session performed it.
type AdministerResult struct {
	Record    *models.DoseRecord     `json:"record"`
	Patient   *models.PatientSummary `json:"patient,omitempty"`
	Duplicate bool                   `json:"duplicate"`
}

// AdministrationService owns the authoritative administration commit. The
// database UPDATE is conditional so concurrent attempts on the same dose
// converge: exactly one session writes, every other receives the winner's
// record as a duplicate.
type AdministrationService struct {
	doses     administrationDoseRepository
	patients  administrationPatientRepository
	cache     doseCache
	audit     auditSink
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cacheTTL  time.Duration
}

// NewAdministrationService constructs the service. cache, audit and metrics
// are optional.
func NewAdministrationService(
	doses administrationDoseRepository,
	patients administrationPatientRepository,
	cache doseCache,
	audit auditSink,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	cacheTTL time.Duration,
) *AdministrationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}
	return &AdministrationService{
		doses:     doses,
		patients:  patients,
		cache:     cache,
		audit:     audit,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		cacheTTL:  cacheTTL,
	}
}

// DoseCacheKey is the Redis key for a dose record addressed by its triple.
func DoseCacheKey(subjectID, vaccineTemplateID string, doseNumber int) string {
	return fmt.Sprintf("dose:%s:%s:%d", subjectID, vaccineTemplateID, doseNumber)
}

// NormalizeDose interprets the raw dose value carried in a payload. Absent
// or unparseable values fall back to 1; only the fallback on garbage input
// is worth logging.
func NormalizeDose(raw string, logger *zap.Logger) int {
	if raw == "" {
		return 1
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		if logger != nil {
			logger.Warn("unparseable dose value, defaulting to 1", zap.String("dose", raw))
		}
		return 1
	}
	return n
}

// Administer commits one dose administration exactly once.
func (s *AdministrationService) Administer(ctx context.Context, req AdministerRequest) (*AdministerResult, error) {
	if err := s.validator.Struct(req); err != nil {
		s.observe(OutcomeRejected)
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid administration payload")
	}
	doseNumber := NormalizeDose(req.Dose, s.logger)

	// Fast path: a cached administered record short-circuits without
	// touching the database.
	key := DoseCacheKey(req.SubjectID, req.VaccineTemplateID, doseNumber)
	if s.cache != nil {
		var cached models.DoseRecord
		err := s.cache.Get(ctx, key, &cached)
		if s.metrics != nil {
			s.metrics.ObserveCacheLookup(err == nil)
		}
		if err == nil && cached.Administered() {
			s.recordAudit(req, models.AuditActionDuplicateAttempt, cached.ID)
			s.observe(OutcomeDuplicate)
			return s.result(ctx, &cached, true), nil
		}
	}

	record, err := s.doses.MarkAdministered(ctx, req.SubjectID, req.VaccineTemplateID, doseNumber, req.StaffID, req.Notes, time.Now())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) && record != nil {
			// Someone else won the race. Cache the winner and report a
			// success-shaped duplicate.
			s.cacheRecord(ctx, key, record)
			s.recordAudit(req, models.AuditActionDuplicateAttempt, record.ID)
			s.observe(OutcomeDuplicate)
			return s.result(ctx, record, true), nil
		}
		if errors.Is(err, sql.ErrNoRows) {
			s.observe(OutcomeRejected)
			return nil, appErrors.Clone(appErrors.ErrNotFound, "dose record not found")
		}
		s.observe(OutcomeFailed)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit administration")
	}

	s.cacheRecord(ctx, key, record)
	s.recordAudit(req, models.AuditActionAdministerDose, record.ID)
	s.observe(OutcomeAdministered)
	s.logger.Info("dose administered",
		zap.String("subject_id", req.SubjectID),
		zap.String("vaccine_template_id", req.VaccineTemplateID),
		zap.Int("dose_number", doseNumber),
		zap.String("staff_id", req.StaffID))

	return s.result(ctx, record, false), nil
}

// result attaches the advisory patient summary. Summary failures never block
// or fail the commit.
func (s *AdministrationService) result(ctx context.Context, record *models.DoseRecord, duplicate bool) *AdministerResult {
	res := &AdministerResult{Record: record, Duplicate: duplicate}
	if s.patients == nil {
		return res
	}
	summary, err := s.patients.Summary(ctx, record.SubjectID)
	if err != nil {
		s.logger.Warn("patient summary unavailable", zap.String("subject_id", record.SubjectID), zap.Error(err))
		return res
	}
	res.Patient = summary
	return res
}

func (s *AdministrationService) cacheRecord(ctx context.Context, key string, record *models.DoseRecord) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, record, s.cacheTTL); err != nil {
		s.logger.Warn("failed to cache dose record", zap.String("key", key), zap.Error(err))
	}
}

func (s *AdministrationService) recordAudit(req AdministerRequest, action, recordID string) {
	if s.audit == nil {
		return
	}
	detail, _ := json.Marshal(map[string]string{
		"subject_id":          req.SubjectID,
		"vaccine_template_id": req.VaccineTemplateID,
		"dose":                req.Dose,
	})
	payload := string(detail)
	log := &models.AuditLog{
		UserID:    req.StaffID,
		Action:    action,
		Entity:    "dose_record",
		EntityID:  recordID,
		Detail:    &payload,
		IPAddress: req.IP,
	}
	if err := s.audit.Enqueue(jobs.Job{Type: action, Payload: log}); err != nil {
		s.logger.Warn("failed to enqueue audit log", zap.Error(err))
	}
}

func (s *AdministrationService) observe(outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveAdministration(outcome)
	}
}
