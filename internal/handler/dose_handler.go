package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vaxport/vaxport-api/internal/models"
	"github.com/vaxport/vaxport-api/internal/qr"
	"github.com/vaxport/vaxport-api/internal/service"
	appErrors "github.com/vaxport/vaxport-api/pkg/errors"
	"github.com/vaxport/vaxport-api/pkg/response"
)

// DoseHandler serves schedule views, dose lookups and QR generation.
type DoseHandler struct {
	service *service.DoseService
}

// NewDoseHandler creates a new handler.
func NewDoseHandler(svc *service.DoseService) *DoseHandler {
	return &DoseHandler{service: svc}
}

// Schedule godoc
// @Summary Vaccination schedule for a subject
// @Description List a subject's doses with derived statuses. Filter with ?status=due,overdue.
// @Tags Doses
// @Produce json
// @Param id path string true "Subject id"
// @Param status query string false "Comma separated status filter"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /patients/{id}/schedule [get]
func (h *DoseHandler) Schedule(c *gin.Context) {
	filter := service.ScheduleFilter{}
	if raw := c.Query("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			status := models.DoseStatus(strings.TrimSpace(part))
			if !status.Valid() {
				response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown status "+string(status)))
				return
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}

	views, err := h.service.Schedule(c.Request.Context(), c.Param("id"), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, views, nil)
}

// Get godoc
// @Summary Fetch one dose record
// @Description Fetch a dose record by the payload triple, with its derived status.
// @Tags Doses
// @Produce json
// @Param subject_id query string true "Subject id"
// @Param vaccine_template_id query string true "Vaccine template id"
// @Param dose query string false "Dose number, defaults to 1"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /doses [get]
func (h *DoseHandler) Get(c *gin.Context) {
	subjectID := c.Query("subject_id")
	vaccineTemplateID := c.Query("vaccine_template_id")
	if subjectID == "" || vaccineTemplateID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "subject_id and vaccine_template_id are required"))
		return
	}
	doseNumber := service.NormalizeDose(c.Query("dose"), nil)

	view, err := h.service.Get(c.Request.Context(), subjectID, vaccineTemplateID, doseNumber)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// QR godoc
// @Summary Generate a scannable payload
// @Description Produce the payload for a dose, as text or a PNG image.
// @Tags Doses
// @Produce json
// @Produce png
// @Param role query string true "doctor or worker"
// @Param subject_id query string true "Subject id"
// @Param vaccine_template_id query string true "Vaccine template id (drive id for workers)"
// @Param dose query string false "Dose number"
// @Param format query string false "text (default) or png"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /doses/qr [get]
func (h *DoseHandler) QR(c *gin.Context) {
	role := qr.Role(strings.ToLower(c.DefaultQuery("role", string(qr.RoleDoctor))))
	subjectID := c.Query("subject_id")
	vaccineTemplateID := c.Query("vaccine_template_id")
	doseNumber := service.NormalizeDose(c.Query("dose"), nil)

	if c.Query("format") == "png" {
		img, err := h.service.QRImage(role, subjectID, vaccineTemplateID, doseNumber, qr.DefaultImageSize)
		if err != nil {
			response.Error(c, err)
			return
		}
		c.Data(http.StatusOK, "image/png", img)
		return
	}

	payload, err := h.service.QRPayload(role, subjectID, vaccineTemplateID, doseNumber)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"payload": payload}, nil)
}
