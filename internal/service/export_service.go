package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/vaxport/vaxport-api/internal/models"
	appErrors "github.com/vaxport/vaxport-api/pkg/errors"
	"github.com/vaxport/vaxport-api/pkg/export"
	"github.com/vaxport/vaxport-api/pkg/storage"
)

type exportPatientRepository interface {
	FindByID(ctx context.Context, id string) (*models.Patient, error)
}

type exportDoseRepository interface {
	ListBySubject(ctx context.Context, subjectID string) ([]models.DoseRecord, error)
}

// CertificateLink points at a freshly rendered certificate.
type CertificateLink struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ExportService renders vaccination certificates and record exports.
type ExportService struct {
	patients     exportPatientRepository
	doses        exportDoseRepository
	certificates *export.CertificateExporter
	csv          *export.CSVExporter
	store        *storage.LocalStorage
	signer       *storage.SignedURLSigner
	logger       *zap.Logger
}

// NewExportService constructs the service. store and signer may be nil when
// certificate export is disabled.
func NewExportService(
	patients exportPatientRepository,
	doses exportDoseRepository,
	store *storage.LocalStorage,
	signer *storage.SignedURLSigner,
	logger *zap.Logger,
) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		patients:     patients,
		doses:        doses,
		certificates: export.NewCertificateExporter(),
		csv:          export.NewCSVExporter(),
		store:        store,
		signer:       signer,
		logger:       logger,
	}
}

// Certificate renders a vaccination certificate for the subject's
// administered doses, stores it and returns a signed one-time download link.
func (s *ExportService) Certificate(ctx context.Context, subjectID string) (*CertificateLink, error) {
	if s.store == nil || s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "certificate export is disabled")
	}

	patient, err := s.patients.FindByID(ctx, subjectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "patient not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load patient")
	}

	records, err := s.doses.ListBySubject(ctx, subjectID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load dose records")
	}

	data := export.CertificateData{
		PatientName: patient.FullName,
		PatientID:   patient.ID,
		IssuedAt:    time.Now().UTC(),
	}
	for _, record := range records {
		if !record.Administered() {
			continue
		}
		dose := export.CertificateDose{
			VaccineName:      record.VaccineName,
			DoseNumber:       record.DoseNumber,
			AdministeredDate: *record.AdministeredDate,
		}
		if record.AdministeredBy != nil {
			dose.AdministeredBy = *record.AdministeredBy
		}
		data.Doses = append(data.Doses, dose)
	}
	if len(data.Doses) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no administered doses to certify")
	}

	pdf, err := s.certificates.Render(data)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render certificate")
	}

	filename := fmt.Sprintf("certificate-%s-%d.pdf", patient.ID, data.IssuedAt.Unix())
	if _, err := s.store.Save(filename, pdf); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store certificate")
	}

	token, expiresAt, err := s.signer.Generate(patient.ID, filename)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign certificate link")
	}

	s.logger.Info("certificate rendered", zap.String("subject_id", patient.ID), zap.Int("doses", len(data.Doses)))
	return &CertificateLink{Token: token, ExpiresAt: expiresAt}, nil
}

// OpenCertificate validates a signed token and opens the stored file.
func (s *ExportService) OpenCertificate(token string) (*os.File, error) {
	if s.store == nil || s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "certificate export is disabled")
	}
	_, relPath, _, err := s.signer.Parse(token)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid certificate link")
	}
	file, err := s.store.Open(relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "certificate no longer available")
	}
	return file, nil
}

// RecordsCSV exports a subject's dose records as CSV.
func (s *ExportService) RecordsCSV(ctx context.Context, subjectID string, dueWindow time.Duration) ([]byte, error) {
	records, err := s.doses.ListBySubject(ctx, subjectID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load dose records")
	}

	now := time.Now()
	dataset := export.Dataset{
		Headers: []string{"vaccine", "dose_number", "due_date", "status", "administered_date", "administered_by"},
	}
	for _, record := range records {
		administeredDate := ""
		administeredBy := ""
		if record.AdministeredDate != nil {
			administeredDate = record.AdministeredDate.Format(time.RFC3339)
		}
		if record.AdministeredBy != nil {
			administeredBy = *record.AdministeredBy
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"vaccine":           record.VaccineName,
			"dose_number":       strconv.Itoa(record.DoseNumber),
			"due_date":          record.DueDate.Format("2006-01-02"),
			"status":            string(models.DeriveStatus(record, now, dueWindow)),
			"administered_date": administeredDate,
			"administered_by":   administeredBy,
		})
	}

	payload, err := s.csv.Render(dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	return payload, nil
}
