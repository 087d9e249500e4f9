package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vaxport/vaxport-api/internal/service"
	appErrors "github.com/vaxport/vaxport-api/pkg/errors"
	"github.com/vaxport/vaxport-api/pkg/response"
)

type administrationService interface {
	Administer(ctx context.Context, req service.AdministerRequest) (*service.AdministerResult, error)
}

// AdministrationHandler exposes the administration commit endpoint.
type AdministrationHandler struct {
	service administrationService
}

// NewAdministrationHandler creates a new handler.
func NewAdministrationHandler(svc administrationService) *AdministrationHandler {
	return &AdministrationHandler{service: svc}
}

// Administer godoc
// @Summary Record a dose administration
// @Description Commit one dose administration exactly once. A dose that was
// @Description already administered answers 409 with the winning record in the body.
// @Tags Administrations
// @Accept json
// @Produce json
// @Param payload body service.AdministerRequest true "Administration payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /administrations [post]
func (h *AdministrationHandler) Administer(c *gin.Context) {
	var req service.AdministerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid administration payload"))
		return
	}

	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	req.StaffID = claims.UserID
	req.IP = c.ClientIP()

	result, err := h.service.Administer(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	if result.Duplicate {
		// Success-shaped conflict: the record in the body is the
		// administration that already happened.
		response.JSON(c, http.StatusConflict, result, nil, map[string]interface{}{"duplicate": true})
		return
	}
	response.Created(c, result)
}
