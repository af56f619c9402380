package webhook

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

const maxBodyBytes = 1 << 20

// Handler exposes the gateway webhook endpoint.
type Handler struct {
	service *Service
}

// NewHandler creates a new webhook handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// HandleWhatsApp receives one gateway delivery.
// POST /api/v1/webhook/whatsapp/:provider
//
// The response is always 200 so the gateway does not retry; the outcome is
// carried in the body.
func (h *Handler) HandleWhatsApp(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		body = nil
	}
	ack := h.service.Handle(c.Request.Context(), c.Param("provider"), body)
	c.JSON(http.StatusOK, ack)
}
