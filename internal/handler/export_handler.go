package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vaxport/vaxport-api/internal/service"
	"github.com/vaxport/vaxport-api/pkg/response"
)

// ExportHandler serves certificate and record exports.
type ExportHandler struct {
	service   *service.ExportService
	dueWindow time.Duration
}

// NewExportHandler creates a new handler.
func NewExportHandler(svc *service.ExportService, dueWindow time.Duration) *ExportHandler {
	return &ExportHandler{service: svc, dueWindow: dueWindow}
}

// Certificate godoc
// @Summary Issue a vaccination certificate
// @Description Render a certificate PDF for the subject's administered doses and return a signed download link.
// @Tags Exports
// @Produce json
// @Param id path string true "Subject id"
// @Success 201 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /patients/{id}/certificate [post]
func (h *ExportHandler) Certificate(c *gin.Context) {
	link, err := h.service.Certificate(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, link)
}

// Download godoc
// @Summary Download a certificate
// @Tags Exports
// @Produce application/pdf
// @Param token path string true "Signed token"
// @Success 200 {file} binary
// @Failure 401 {object} response.Envelope
// @Router /certificates/{token} [get]
func (h *ExportHandler) Download(c *gin.Context) {
	file, err := h.service.OpenCertificate(c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		response.Error(c, err)
		return
	}
	c.DataFromReader(http.StatusOK, info.Size(), "application/pdf", file, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", info.Name()),
	})
}

// RecordsCSV godoc
// @Summary Export a subject's dose records as CSV
// @Tags Exports
// @Produce text/csv
// @Param id path string true "Subject id"
// @Success 200 {file} binary
// @Security BearerAuth
// @Router /patients/{id}/records.csv [get]
func (h *ExportHandler) RecordsCSV(c *gin.Context) {
	payload, err := h.service.RecordsCSV(c.Request.Context(), c.Param("id"), h.dueWindow)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "records-"+c.Param("id")+".csv"))
	c.Data(http.StatusOK, "text/csv", payload)
}
