package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vaxport/vaxport-api/internal/service"
	appErrors "github.com/vaxport/vaxport-api/pkg/errors"
	"github.com/vaxport/vaxport-api/pkg/response"
)

// DriveHandler serves the field-worker drive flow.
type DriveHandler struct {
	service *service.DriveService
}

// NewDriveHandler creates a new handler.
func NewDriveHandler(svc *service.DriveService) *DriveHandler {
	return &DriveHandler{service: svc}
}

// Mine godoc
// @Summary Drives assigned to the current worker
// @Tags Drives
// @Produce json
// @Param active query bool false "Only active drives"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /drives/mine [get]
func (h *DriveHandler) Mine(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	drives, err := h.service.MyDrives(c.Request.Context(), claims.UserID, c.Query("active") == "true")
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, drives, nil)
}

// ParticipantByQR godoc
// @Summary Identify a drive participant from a scanned code
// @Description Decode a worker payload and return the participant's advisory summary.
// @Tags Drives
// @Accept json
// @Produce json
// @Param payload body object true "Raw scanned payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /drives/participant-by-qr [post]
func (h *DriveHandler) ParticipantByQR(c *gin.Context) {
	var req struct {
		Raw string `json:"raw" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "raw payload required"))
		return
	}

	summary, payload, err := h.service.ParticipantByQR(c.Request.Context(), req.Raw)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"participant": summary, "payload": payload}, nil)
}

// Administer godoc
// @Summary Administer the drive's vaccine to a participant
// @Tags Drives
// @Accept json
// @Produce json
// @Param id path string true "Drive id"
// @Param payload body object true "Subject and optional notes"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /drives/{id}/administrations [post]
func (h *DriveHandler) Administer(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req struct {
		SubjectID string  `json:"subject_id" binding:"required"`
		Notes     *string `json:"notes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "subject_id required"))
		return
	}

	result, err := h.service.Administer(c.Request.Context(), c.Param("id"), req.SubjectID, claims.UserID, req.Notes, c.ClientIP())
	if err != nil {
		response.Error(c, err)
		return
	}

	if result.Duplicate {
		response.JSON(c, http.StatusConflict, result, nil, map[string]interface{}{"duplicate": true})
		return
	}
	response.Created(c, result)
}
