package handlers

import (
	"net/http"
	"net/mail"

	"github.com/gin-gonic/gin"
	"photolineart-backend/internal/apperror"
	"photolineart-backend/internal/services"
)

type CreditsHandler struct {
	credits *services.CreditsService
}

func NewCreditsHandler(credits *services.CreditsService) *CreditsHandler {
	return &CreditsHandler{credits: credits}
}

// Get godoc
// @Summary     Current credit state for an email
// @Tags        billing
// @Produce     json
// @Param       email query string true "Email"
// @Success     200 {object} models.CreditsResponse
// @Failure     400 {object} models.ErrorResponse
// @Router      /api/credits [get]
func (h *CreditsHandler) Get(c *gin.Context) {
	email := c.Query("email")
	if _, err := mail.ParseAddress(email); err != nil {
		respondError(c, apperror.Validation("email must be a valid email"))
		return
	}

	resp, err := h.credits.Lookup(c.Request.Context(), email)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
