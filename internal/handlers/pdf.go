package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"photolineart-backend/internal/models"
	"photolineart-backend/internal/pdfbook"
	"photolineart-backend/internal/services"
)

type PDFHandler struct {
	mail    *services.MailService
	storage *services.StorageService
	builder *pdfbook.Builder
}

func NewPDFHandler(mail *services.MailService, storage *services.StorageService, builder *pdfbook.Builder) *PDFHandler {
	return &PDFHandler{mail: mail, storage: storage, builder: builder}
}

// SendPDF godoc
// @Summary     Email a coloring book PDF
// @Description The PDF arrives base64 encoded (a data: URI prefix is accepted). Each delivery is appended to logs/pdf-emails.csv.
// @Tags        pdf
// @Accept      json
// @Produce     json
// @Param       request body models.SendPDFRequest true "Recipient and PDF"
// @Success     200 {object} models.SendPDFResponse
// @Failure     400 {object} models.ErrorResponse
// @Failure     500 {object} models.ErrorResponse
// @Router      /api/send-pdf [post]
func (h *PDFHandler) SendPDF(c *gin.Context) {
	var req models.SendPDFRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.mail.SendPDF(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// BuildPDF godoc
// @Summary     Render manifest items into a PDF
// @Tags        pdf
// @Accept      json
// @Produce     application/pdf
// @Param       request body models.BuildPDFRequest true "Layout and items"
// @Success     200 {file} binary
// @Failure     400 {object} models.ErrorResponse
// @Failure     500 {object} models.ErrorResponse
// @Router      /api/build-pdf [post]
func (h *PDFHandler) BuildPDF(c *gin.Context) {
	var req models.BuildPDFRequest
	if !bindJSON(c, &req) {
		return
	}
	layout := req.Layout
	if layout == "" {
		layout = pdfbook.LayoutBook
	}

	doc, err := h.builder.Build(c.Request.Context(), req.Title, layout, req.Items)
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="coloring-book.pdf"`)
	c.Header("X-Page-Count", strconv.Itoa(doc.Pages))
	c.Data(http.StatusOK, "application/pdf", doc.Data)
}

// UploadPDF godoc
// @Summary     Store a PDF for later download
// @Tags        pdf
// @Accept      json
// @Produce     json
// @Param       request body models.UploadPDFRequest true "Base64 PDF"
// @Success     200 {object} models.UploadPDFResponse
// @Failure     400 {object} models.ErrorResponse
// @Router      /api/upload-pdf [post]
func (h *PDFHandler) UploadPDF(c *gin.Context) {
	var req models.UploadPDFRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.storage.UploadPDF(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
