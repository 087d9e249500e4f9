package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// CertificateDose is one administered dose line on a certificate.
type CertificateDose struct {
	VaccineName      string
	DoseNumber       int
	AdministeredDate time.Time
	AdministeredBy   string
}

// CertificateData holds the content of a vaccination certificate.
type CertificateData struct {
	PatientName string
	PatientID   string
	IssuedAt    time.Time
	Doses       []CertificateDose
}

// CertificateExporter renders vaccination certificates as PDF documents.
type CertificateExporter struct{}

// NewCertificateExporter builds a certificate exporter.
func NewCertificateExporter() *CertificateExporter {
	return &CertificateExporter{}
}

// Render creates the certificate PDF.
func (e *CertificateExporter) Render(data CertificateData) ([]byte, error) {
	if data.PatientID == "" {
		return nil, fmt.Errorf("certificate requires a patient id")
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 20, 15)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, "VACCINATION CERTIFICATE", "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Arial", "", 11)
	pdf.CellFormat(0, 7, fmt.Sprintf("Patient: %s", data.PatientName), "", 1, "", false, 0, "")
	pdf.CellFormat(0, 7, fmt.Sprintf("Patient ID: %s", data.PatientID), "", 1, "", false, 0, "")
	pdf.CellFormat(0, 7, fmt.Sprintf("Issued: %s", data.IssuedAt.Format("2006-01-02")), "", 1, "", false, 0, "")
	pdf.Ln(6)

	headers := []string{"Vaccine", "Dose", "Administered", "Administered by"}
	widths := []float64{70, 20, 40, 50}
	pdf.SetFont("Arial", "B", 10)
	for i, header := range headers {
		pdf.CellFormat(widths[i], 8, header, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 10)
	for _, dose := range data.Doses {
		pdf.CellFormat(widths[0], 7, dose.VaccineName, "1", 0, "", false, 0, "")
		pdf.CellFormat(widths[1], 7, fmt.Sprintf("%d", dose.DoseNumber), "1", 0, "C", false, 0, "")
		pdf.CellFormat(widths[2], 7, dose.AdministeredDate.Format("2006-01-02"), "1", 0, "C", false, 0, "")
		pdf.CellFormat(widths[3], 7, dose.AdministeredBy, "1", 0, "", false, 0, "")
		pdf.Ln(-1)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render certificate pdf: %w", err)
	}
	return buf.Bytes(), nil
}
