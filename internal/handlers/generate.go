package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"photolineart-backend/internal/models"
	"photolineart-backend/internal/services"
)

type GenerateHandler struct {
	generation *services.GenerationService
}

func NewGenerateHandler(generation *services.GenerationService) *GenerateHandler {
	return &GenerateHandler{generation: generation}
}

// Generate godoc
// @Summary     Generate line art
// @Description Converts an uploaded photo into a line-art coloring page with a matched pencil palette and coloring tips.
// @Description Single-page requests consume the free trial first, then paid credits. Book requests are not gated.
// @Description Without credits the response is {status:"no_credits"} with HTTP 200.
// @Tags        generation
// @Accept      json
// @Produce     json
// @Param       request body models.GenerateRequest true "Photo URL, email and options"
// @Success     200 {object} models.GenerateResponse
// @Failure     400 {object} models.ErrorResponse
// @Failure     500 {object} models.ErrorResponse
// @Router      /api/ai-lineart [post]
func (h *GenerateHandler) Generate(c *gin.Context) {
	var req models.GenerateRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.generation.Generate(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
