package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/vaxport/vaxport-api/internal/models"
	"github.com/vaxport/vaxport-api/internal/qr"
	appErrors "github.com/vaxport/vaxport-api/pkg/errors"
)

type doseScheduleRepository interface {
	Find(ctx context.Context, subjectID, vaccineTemplateID string, doseNumber int) (*models.DoseRecord, error)
	ListBySubject(ctx context.Context, subjectID string) ([]models.DoseRecord, error)
}

// ScheduleFilter narrows a subject's schedule to the statuses a caller
// cares about.
type ScheduleFilter struct {
	Statuses []models.DoseStatus
}

func (f ScheduleFilter) matches(status models.DoseStatus) bool {
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if s == status {
			return true
		}
	}
	return false
}

// DoseService serves schedule views and QR payload generation. Statuses are
// derived at read time; only administration mutates a record.
type DoseService struct {
	doses     doseScheduleRepository
	logger    *zap.Logger
	dueWindow time.Duration
	now       func() time.Time
}

// NewDoseService constructs the service. dueWindow is how long before the
// due date a dose counts as due.
func NewDoseService(doses doseScheduleRepository, logger *zap.Logger, dueWindow time.Duration) *DoseService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dueWindow <= 0 {
		dueWindow = 7 * 24 * time.Hour
	}
	return &DoseService{doses: doses, logger: logger, dueWindow: dueWindow, now: time.Now}
}

// Schedule lists a subject's doses with derived statuses, oldest due first.
func (s *DoseService) Schedule(ctx context.Context, subjectID string, filter ScheduleFilter) ([]models.DoseView, error) {
	records, err := s.doses.ListBySubject(ctx, subjectID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule")
	}

	now := s.now()
	views := make([]models.DoseView, 0, len(records))
	for _, record := range records {
		status := models.DeriveStatus(record, now, s.dueWindow)
		if !filter.matches(status) {
			continue
		}
		views = append(views, models.DoseView{DoseRecord: record, Status: status})
	}
	return views, nil
}

// Get returns one dose with its derived status, addressed the same way a
// scanned payload addresses it.
func (s *DoseService) Get(ctx context.Context, subjectID, vaccineTemplateID string, doseNumber int) (*models.DoseView, error) {
	record, err := s.doses.Find(ctx, subjectID, vaccineTemplateID, doseNumber)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "dose record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load dose record")
	}
	return &models.DoseView{DoseRecord: *record, Status: models.DeriveStatus(*record, s.now(), s.dueWindow)}, nil
}

// QRPayload encodes the scannable payload string for a dose.
func (s *DoseService) QRPayload(role qr.Role, subjectID, vaccineTemplateID string, doseNumber int) (string, error) {
	if !role.Valid() {
		return "", appErrors.Clone(appErrors.ErrValidation, "unsupported role")
	}
	if subjectID == "" || vaccineTemplateID == "" {
		return "", appErrors.Clone(appErrors.ErrValidation, "subject and vaccine template are required")
	}
	return qr.Encode(role, subjectID, vaccineTemplateID, doseNumber), nil
}

// QRImage renders the payload as a PNG.
func (s *DoseService) QRImage(role qr.Role, subjectID, vaccineTemplateID string, doseNumber, size int) ([]byte, error) {
	payload, err := s.QRPayload(role, subjectID, vaccineTemplateID, doseNumber)
	if err != nil {
		return nil, err
	}
	img, err := qr.EncodePNG(payload, size)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render QR image")
	}
	return img, nil
}
