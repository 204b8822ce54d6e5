package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"photolineart-backend/internal/models"
	"photolineart-backend/internal/services"
)

type RecordsHandler struct {
	records *services.RecordsService
}

func NewRecordsHandler(records *services.RecordsService) *RecordsHandler {
	return &RecordsHandler{records: records}
}

// Contact godoc
// @Summary     Submit the contact form
// @Tags        records
// @Accept      json
// @Produce     json
// @Param       request body models.ContactRequest true "Contact message"
// @Success     200 {object} models.StatusResponse
// @Failure     400 {object} models.ErrorResponse
// @Router      /api/contact [post]
func (h *RecordsHandler) Contact(c *gin.Context) {
	var req models.ContactRequest
	if !bindJSON(c, &req) {
		return
	}

	id, err := h.records.SubmitContact(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.StatusResponse{Status: models.StatusOK, ID: id})
}

// LogRun godoc
// @Summary     Record a client-side generation run
// @Tags        records
// @Accept      json
// @Produce     json
// @Param       request body models.LogRunRequest true "Run details"
// @Success     200 {object} models.StatusResponse
// @Failure     400 {object} models.ErrorResponse
// @Router      /api/log-run [post]
func (h *RecordsHandler) LogRun(c *gin.Context) {
	var req models.LogRunRequest
	if !bindJSON(c, &req) {
		return
	}

	id, err := h.records.LogRun(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.StatusResponse{Status: models.StatusOK, ID: id})
}
