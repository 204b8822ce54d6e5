package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"photolineart-backend/internal/models"
	"photolineart-backend/internal/services"
)

type TipsHandler struct {
	tips *services.TipsService
}

func NewTipsHandler(tips *services.TipsService) *TipsHandler {
	return &TipsHandler{tips: tips}
}

// Enhance godoc
// @Summary     Enrich tips with every pencil they mention
// @Description Items are processed concurrently. A failed item keeps its tips and carries enhancementError; the request still succeeds.
// @Tags        tips
// @Accept      json
// @Produce     json
// @Param       request body models.TipsEnhanceRequest true "Manifest items"
// @Success     200 {object} models.TipsEnhanceResponse
// @Failure     400 {object} models.ErrorResponse
// @Failure     500 {object} models.ErrorResponse
// @Router      /api/tips-enhance [post]
func (h *TipsHandler) Enhance(c *gin.Context) {
	var req models.TipsEnhanceRequest
	if !bindJSON(c, &req) {
		return
	}

	results, err := h.tips.Enhance(c.Request.Context(), req.Items)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.TipsEnhanceResponse{Results: results})
}
