package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"photolineart-backend/internal/apperror"
	"photolineart-backend/internal/models"
	"photolineart-backend/internal/services"
)

type PortalHandler struct {
	portals *services.PortalService
}

func NewPortalHandler(portals *services.PortalService) *PortalHandler {
	return &PortalHandler{portals: portals}
}

// Init godoc
// @Summary     Create an empty portal
// @Tags        portal
// @Accept      json
// @Produce     json
// @Param       request body models.PortalInitRequest false "Optional title"
// @Success     200 {object} models.PortalResponse
// @Failure     500 {object} models.ErrorResponse
// @Router      /api/portal-init [post]
func (h *PortalHandler) Init(c *gin.Context) {
	var req models.PortalInitRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}

	resp, err := h.portals.InitPortal(c.Request.Context(), req.Title)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Update godoc
// @Summary     Overwrite a portal manifest
// @Description Replaces the portal's items wholesale. Concurrent updates are last-write-wins.
// @Tags        portal
// @Accept      json
// @Produce     json
// @Param       request body models.PortalUpdateRequest true "Portal id and items"
// @Success     200 {object} models.PortalResponse
// @Failure     400 {object} models.ErrorResponse
// @Failure     404 {object} models.ErrorResponse
// @Router      /api/portal-update [post]
func (h *PortalHandler) Update(c *gin.Context) {
	var req models.PortalUpdateRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.portals.UpdateManifest(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// CreateBundle godoc
// @Summary     Snapshot items into an immutable bundle
// @Tags        portal
// @Accept      json
// @Produce     json
// @Param       request body models.BundleCreateRequest true "Items and copy option"
// @Success     200 {object} models.PortalResponse
// @Failure     400 {object} models.ErrorResponse
// @Router      /api/bundles-create [post]
func (h *PortalHandler) CreateBundle(c *gin.Context) {
	var req models.BundleCreateRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.portals.CreateBundle(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetBundle godoc
// @Summary     Fetch a bundle or portal manifest
// @Tags        portal
// @Produce     json
// @Param       id query string true "Bundle or portal id"
// @Success     200 {object} models.PortalManifest
// @Failure     400 {object} models.ErrorResponse
// @Failure     404 {object} models.ErrorResponse
// @Router      /api/bundles-get [get]
func (h *PortalHandler) GetBundle(c *gin.Context) {
	id := c.Query("id")
	if id == "" {
		respondError(c, apperror.Validation("id is required"))
		return
	}

	manifest, err := h.portals.GetBundle(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, manifest)
}
