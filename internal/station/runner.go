package station

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/vaxport/vaxport-api/internal/models"
	"github.com/vaxport/vaxport-api/internal/qr"
	"github.com/vaxport/vaxport-api/internal/service"
	appErrors "github.com/vaxport/vaxport-api/pkg/errors"
)

// Outcome classifies one handled scan. There is no partial state: a scan is
// recorded, already recorded, refused, or safely retryable.
type Outcome string

const (
	// OutcomeAdministered means this submission recorded the dose.
	OutcomeAdministered Outcome = "administered"
	// OutcomeDuplicate means the dose was already recorded, by this
	// station or any other session. Treated as success.
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeRejected means the payload or record was refused. Rescanning
	// the same code will not help.
	OutcomeRejected Outcome = "rejected"
	// OutcomeFailed means transport failed. Nothing was mutated and the
	// same scan may be retried.
	OutcomeFailed Outcome = "failed"
)

// ErrInFlight signals that the same dose is already being submitted.
var ErrInFlight = errors.New("submission already in flight for this dose")

// Submission is the result of one handled scan.
type Submission struct {
	Outcome Outcome
	Payload qr.Payload
	Record  *models.DoseRecord
	Patient *models.PatientSummary
	Err     error
}

type upstream interface {
	Administer(ctx context.Context, req service.AdministerRequest) (*service.AdministerResult, error)
	AdministerDrive(ctx context.Context, driveID, subjectID string, notes *string) (*service.AdministerResult, error)
	GetDose(ctx context.Context, subjectID, vaccineTemplateID string, doseNumber int) (*models.DoseView, error)
}

// Runner turns decoded scans into administration submissions. It keeps a
// local record cache as a fast duplicate guard and a per-dose in-flight lock
// so a bouncing trigger cannot double-submit.
type Runner struct {
	client  upstream
	role    qr.Role
	staffID string
	logger  *zap.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
	cache    map[string]models.DoseRecord
}

// NewRunner constructs a runner for one staff member's station.
func NewRunner(client upstream, role qr.Role, staffID string, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		client:   client,
		role:     role,
		staffID:  staffID,
		logger:   logger,
		inflight: make(map[string]struct{}),
		cache:    make(map[string]models.DoseRecord),
	}
}

// HandleScan runs the full transaction for one raw scanned string.
func (r *Runner) HandleScan(ctx context.Context, raw string) Submission {
	payload, err := qr.Decode(raw, r.role)
	if err != nil {
		r.logger.Warn("malformed scan payload", zap.String("raw", raw))
		return Submission{Outcome: OutcomeRejected, Err: appErrors.Clone(appErrors.ErrMalformedPayload, "")}
	}

	doseNumber := service.NormalizeDose(payload.Dose, r.logger)
	key := service.DoseCacheKey(payload.SubjectID, payload.VaccineTemplateID, doseNumber)

	r.mu.Lock()
	if cached, ok := r.cache[key]; ok && cached.Administered() {
		r.mu.Unlock()
		record := cached
		return Submission{Outcome: OutcomeDuplicate, Payload: payload, Record: &record}
	}
	if _, busy := r.inflight[key]; busy {
		r.mu.Unlock()
		return Submission{Outcome: OutcomeRejected, Payload: payload, Err: ErrInFlight}
	}
	r.inflight[key] = struct{}{}
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.inflight, key)
		r.mu.Unlock()
	}()

	var result *service.AdministerResult
	if payload.Role == qr.RoleWorker {
		// Worker payloads carry a drive id, not a vaccine. The drive
		// endpoint resolves the drive's vaccine on the portal side.
		result, err = r.client.AdministerDrive(ctx, payload.VaccineTemplateID, payload.SubjectID, nil)
	} else {
		// Best effort: a record the portal already shows as administered
		// resolves as a duplicate without attempting a write.
		if view, lookupErr := r.client.GetDose(ctx, payload.SubjectID, payload.VaccineTemplateID, doseNumber); lookupErr == nil && view != nil && view.Administered() {
			r.mu.Lock()
			r.cache[key] = view.DoseRecord
			r.mu.Unlock()
			record := view.DoseRecord
			return Submission{Outcome: OutcomeDuplicate, Payload: payload, Record: &record}
		}

		result, err = r.client.Administer(ctx, service.AdministerRequest{
			SubjectID:         payload.SubjectID,
			VaccineTemplateID: payload.VaccineTemplateID,
			Dose:              payload.Dose,
		})
	}
	if err != nil {
		if errors.Is(err, ErrUpstream) {
			r.logger.Warn("submission failed, retryable", zap.String("dose", key), zap.Error(err))
			return Submission{Outcome: OutcomeFailed, Payload: payload, Err: err}
		}
		return Submission{Outcome: OutcomeRejected, Payload: payload, Err: err}
	}

	if result.Record != nil {
		r.mu.Lock()
		r.cache[key] = *result.Record
		r.mu.Unlock()
	}

	outcome := OutcomeAdministered
	if result.Duplicate {
		outcome = OutcomeDuplicate
	}
	return Submission{Outcome: outcome, Payload: payload, Record: result.Record, Patient: result.Patient}
}
