package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"photolineart-backend/internal/apperror"
	"photolineart-backend/internal/models"
	"photolineart-backend/internal/services"
)

type AssetsHandler struct {
	storage *services.StorageService
}

func NewAssetsHandler(storage *services.StorageService) *AssetsHandler {
	return &AssetsHandler{storage: storage}
}

// Download godoc
// @Summary     Track a download and redirect to the asset
// @Tags        assets
// @Param       url   query string true  "Asset URL"
// @Param       email query string false "Downloader email"
// @Param       kind  query string false "Asset kind, defaults to pdf"
// @Success     302
// @Failure     400 {object} models.ErrorResponse
// @Router      /api/download [get]
func (h *AssetsHandler) Download(c *gin.Context) {
	rawURL := c.Query("url")
	if rawURL == "" {
		respondError(c, apperror.Validation("url is required"))
		return
	}

	target, err := h.storage.DownloadTarget(rawURL, c.Query("email"), c.Query("kind"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.Redirect(http.StatusFound, target)
}

// Delete godoc
// @Summary     Delete a stored asset
// @Tags        assets
// @Accept      json
// @Produce     json
// @Param       request body models.DeleteAssetRequest true "URL or pathname"
// @Success     200 {object} models.StatusResponse
// @Failure     400 {object} models.ErrorResponse
// @Router      /api/delete-asset [post]
func (h *AssetsHandler) Delete(c *gin.Context) {
	var req models.DeleteAssetRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.storage.DeleteAsset(c.Request.Context(), req); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.StatusResponse{Status: models.StatusOK})
}
