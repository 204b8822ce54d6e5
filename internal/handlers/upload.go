package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"photolineart-backend/internal/apperror"
	"photolineart-backend/internal/blob"
	"photolineart-backend/internal/middleware"
	"photolineart-backend/internal/models"
	"photolineart-backend/internal/services"
)

type UploadHandler struct {
	uploads *services.UploadService
	store   blob.Store
}

func NewUploadHandler(uploads *services.UploadService, store blob.Store) *UploadHandler {
	return &UploadHandler{uploads: uploads, store: store}
}

// CreateTarget godoc
// @Summary     Issue a signed upload target
// @Description Reserves an uploads/YYYYMMDD/<uuid>.<ext> pathname and returns a short-lived token that authorizes one PUT to it.
// @Tags        upload
// @Accept      json
// @Produce     json
// @Param       request body models.UploadTargetRequest true "Content type and size"
// @Success     201 {object} models.UploadTargetResponse
// @Failure     400 {object} models.ErrorResponse
// @Router      /api/blob-upload [post]
func (h *UploadHandler) CreateTarget(c *gin.Context) {
	var req models.UploadTargetRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.uploads.IssueTarget(req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// Put godoc
// @Summary     Upload bytes to a signed target
// @Tags        upload
// @Accept      octet-stream
// @Produce     json
// @Param       pathname path string true "Pathname from the upload target"
// @Param       token query string true "Upload token"
// @Success     200 {object} models.BlobPutResponse
// @Failure     400 {object} models.ErrorResponse
// @Failure     401 {object} models.ErrorResponse
// @Failure     413 {object} models.ErrorResponse
// @Router      /api/blob/{pathname} [put]
func (h *UploadHandler) Put(c *gin.Context) {
	claims, ok := middleware.UploadClaimsFrom(c)
	if !ok {
		respondError(c, apperror.New(apperror.ErrCodeUnauthorized, "missing upload token"))
		return
	}

	data, err := io.ReadAll(io.LimitReader(c.Request.Body, claims.MaxBytes+1))
	if err != nil {
		respondError(c, apperror.Validation("failed to read upload body"))
		return
	}

	resp, err := h.uploads.Accept(c.Request.Context(), claims, data)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Get serves a stored blob. Only mounted for the in-memory backend; the
// Supabase backend serves public URLs itself.
func (h *UploadHandler) Get(c *gin.Context) {
	pathname := blob.CleanPath(c.Param("pathname"))
	if pathname == "" {
		respondError(c, apperror.ErrNotFound)
		return
	}

	data, err := h.store.Get(c.Request.Context(), pathname)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Cache-Control", "no-cache")
	c.Data(http.StatusOK, blob.ContentTypeFor(pathname), data)
}
