package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vaxport/vaxport-api/internal/service"
	"github.com/vaxport/vaxport-api/pkg/response"
)

// DeepLinkHandler resolves shared administration links.
type DeepLinkHandler struct {
	service *service.DeepLinkService
}

// NewDeepLinkHandler creates a new handler.
func NewDeepLinkHandler(svc *service.DeepLinkService) *DeepLinkHandler {
	return &DeepLinkHandler{service: svc}
}

// Resolve godoc
// @Summary Resolve a deep link
// @Description Resolve a shared link into a payload and a one-time confirmation token.
// @Tags DeepLinks
// @Produce json
// @Param path query string false "Path form, e.g. doctor/p1/vt1?dose=2"
// @Param user_id query string false "Query fallback subject id"
// @Param vaccine_template_id query string false "Query fallback vaccine template id"
// @Param dose query string false "Query fallback dose"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /deeplinks/resolve [get]
func (h *DeepLinkHandler) Resolve(c *gin.Context) {
	resolution, err := h.service.Resolve(c.Request.Context(), service.ResolveRequest{
		Path:              c.Query("path"),
		UserID:            c.Query("user_id"),
		VaccineTemplateID: c.Query("vaccine_template_id"),
		Dose:              c.Query("dose"),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resolution, nil)
}

// Consume godoc
// @Summary Spend a one-time deep link token
// @Description Spend the confirmation token issued by Resolve. A replayed token answers 410.
// @Tags DeepLinks
// @Produce json
// @Param token path string true "Token"
// @Success 200 {object} response.Envelope
// @Failure 410 {object} response.Envelope
// @Security BearerAuth
// @Router /deeplinks/{token}/consume [post]
func (h *DeepLinkHandler) Consume(c *gin.Context) {
	payload, err := h.service.Consume(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, payload, nil)
}
