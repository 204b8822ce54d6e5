package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"photolineart-backend/internal/models"
)

// Provider is an external collaborator that may be missing its credentials.
type Provider interface {
	Configured() bool
}

type HealthHandler struct {
	blobBackend string
	providers   map[string]Provider
}

func NewHealthHandler(blobBackend string, providers map[string]Provider) *HealthHandler {
	return &HealthHandler{blobBackend: blobBackend, providers: providers}
}

// Health godoc
// @Summary     Health check
// @Description Returns liveness plus the providers that are configured
// @Tags        health
// @Produce     json
// @Success     200 {object} models.HealthResponse
// @Router      /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	response := models.HealthResponse{
		Status:      "ok",
		BlobBackend: h.blobBackend,
	}
	if len(h.providers) > 0 {
		response.Providers = make(map[string]bool, len(h.providers))
		for name, p := range h.providers {
			response.Providers[name] = p != nil && p.Configured()
		}
	}
	c.JSON(http.StatusOK, response)
}
