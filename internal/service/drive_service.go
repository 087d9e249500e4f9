package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/vaxport/vaxport-api/internal/models"
	"github.com/vaxport/vaxport-api/internal/qr"
	appErrors "github.com/vaxport/vaxport-api/pkg/errors"
)

type driveRepository interface {
	FindByID(ctx context.Context, id string) (*models.Drive, error)
	ListByWorker(ctx context.Context, workerID string, activeOnly bool) ([]models.Drive, error)
	IsParticipant(ctx context.Context, driveID, subjectID string) (bool, error)
}

type drivePatientRepository interface {
	Summary(ctx context.Context, subjectID string) (*models.PatientSummary, error)
}

// DriveService serves the field-worker flow: list assigned drives, identify
// a participant by their scanned code, then administer the drive's vaccine.
type DriveService struct {
	drives         driveRepository
	patients       drivePatientRepository
	administration *AdministrationService
	logger         *zap.Logger
}

// NewDriveService constructs the service.
func NewDriveService(drives driveRepository, patients drivePatientRepository, administration *AdministrationService, logger *zap.Logger) *DriveService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DriveService{drives: drives, patients: patients, administration: administration, logger: logger}
}

// MyDrives lists the drives assigned to a worker.
func (s *DriveService) MyDrives(ctx context.Context, workerID string, activeOnly bool) ([]models.Drive, error) {
	drives, err := s.drives.ListByWorker(ctx, workerID, activeOnly)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list drives")
	}
	return drives, nil
}

// ParticipantByQR resolves a scanned worker payload into the participant's
// advisory summary. The subject must be registered for the drive.
func (s *DriveService) ParticipantByQR(ctx context.Context, raw string) (*models.PatientSummary, *qr.Payload, error) {
	payload, err := qr.Decode(raw, qr.RoleWorker)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrMalformedPayload.Code, appErrors.ErrMalformedPayload.Status, appErrors.ErrMalformedPayload.Message)
	}

	driveID := payload.VaccineTemplateID
	registered, err := s.drives.IsParticipant(ctx, driveID, payload.SubjectID)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check drive participation")
	}
	if !registered {
		return nil, nil, appErrors.Clone(appErrors.ErrNotParticipant, "")
	}

	summary, err := s.patients.Summary(ctx, payload.SubjectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "participant not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load participant")
	}
	return summary, &payload, nil
}

// Administer commits dose 1 of the drive's vaccine for a participant.
func (s *DriveService) Administer(ctx context.Context, driveID, subjectID, staffID string, notes *string, ip string) (*AdministerResult, error) {
	drive, err := s.drives.FindByID(ctx, driveID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "drive not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load drive")
	}

	registered, err := s.drives.IsParticipant(ctx, driveID, subjectID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check drive participation")
	}
	if !registered {
		return nil, appErrors.Clone(appErrors.ErrNotParticipant, "")
	}

	return s.administration.Administer(ctx, AdministerRequest{
		SubjectID:         subjectID,
		VaccineTemplateID: drive.VaccineTemplateID,
		Dose:              "1",
		Notes:             notes,
		StaffID:           staffID,
		IP:                ip,
	})
}
