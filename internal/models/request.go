package models

// Generation contexts.
const (
	ContextSingle = "single"
	ContextBook   = "book"
)

// PaletteSets is the fixed enumeration of pencil tin sizes.
var PaletteSets = []int{12, 24, 36, 48, 60, 72, 120}

type GenerationOptions struct {
	Prompt        string `json:"prompt,omitempty" binding:"omitempty,max=2000"`
	Style         string `json:"style,omitempty" binding:"omitempty,max=64"`
	LineThickness string `json:"lineThickness,omitempty" binding:"omitempty,oneof=thin medium bold"`
	OutputSize    string `json:"outputSize,omitempty" binding:"omitempty,oneof=letter a4 square"`
	PaletteSet    int    `json:"paletteSet,omitempty" binding:"omitempty,oneof=12 24 36 48 60 72 120"`
}

type GenerateRequest struct {
	ImageURL string             `json:"imageUrl" binding:"required,url"`
	Email    string             `json:"email" binding:"required,email"`
	Context  string             `json:"context,omitempty" binding:"omitempty,oneof=single book"`
	Options  *GenerationOptions `json:"options,omitempty"`
}

type UploadTargetRequest struct {
	ContentType string `json:"contentType" binding:"required"`
	Size        int64  `json:"size,omitempty" binding:"omitempty,min=1"`
	FileName    string `json:"fileName,omitempty" binding:"omitempty,max=255"`
}

type PortalInitRequest struct {
	Title string `json:"title,omitempty" binding:"omitempty,max=200"`
}

type PortalUpdateRequest struct {
	ID    string         `json:"id" binding:"required,uuid"`
	Title string         `json:"title,omitempty" binding:"omitempty,max=200"`
	Items []ManifestItem `json:"items" binding:"dive"`
	Model string         `json:"model,omitempty"`
}

type BundleCreateRequest struct {
	PortalID   string         `json:"portalId,omitempty" binding:"omitempty,uuid"`
	Title      string         `json:"title,omitempty" binding:"omitempty,max=200"`
	Items      []ManifestItem `json:"items" binding:"required,min=1"`
	CopyAssets bool           `json:"copyAssets,omitempty"`
	Model      string         `json:"model,omitempty"`
}

type TipsEnhanceRequest struct {
	Items []ManifestItem `json:"items" binding:"required,min=1,max=50"`
}

type CheckoutRequest struct {
	Email string `json:"email" binding:"required,email"`
	Packs int    `json:"packs,omitempty" binding:"omitempty,min=1,max=10"`
}

type SendPDFRequest struct {
	Email     string `json:"email" binding:"required,email"`
	FileName  string `json:"fileName,omitempty" binding:"omitempty,max=200"`
	PDFBase64 string `json:"pdfBase64" binding:"required"`
	Subject   string `json:"subject,omitempty" binding:"omitempty,max=200"`
}

type BuildPDFRequest struct {
	Title  string         `json:"title,omitempty" binding:"omitempty,max=200"`
	Layout string         `json:"layout,omitempty" binding:"omitempty,oneof=single book"`
	Items  []ManifestItem `json:"items" binding:"required,min=1,max=60"`
}

type UploadPDFRequest struct {
	FileName  string `json:"fileName,omitempty" binding:"omitempty,max=200"`
	PDFBase64 string `json:"pdfBase64" binding:"required"`
}

type ContactRequest struct {
	Name    string `json:"name" binding:"required,max=200"`
	Email   string `json:"email" binding:"required,email"`
	Message string `json:"message" binding:"required,max=5000"`
}

type LogRunRequest struct {
	Email      string `json:"email,omitempty" binding:"omitempty,email"`
	Context    string `json:"context,omitempty" binding:"omitempty,oneof=single book"`
	ImageURL   string `json:"imageUrl,omitempty" binding:"omitempty,url"`
	LineArtURL string `json:"lineArtUrl,omitempty" binding:"omitempty,url"`
	Status     string `json:"status" binding:"required,oneof=ok error no_credits"`
	DurationMS int64  `json:"durationMs,omitempty" binding:"omitempty,min=0"`
	Detail     string `json:"detail,omitempty" binding:"omitempty,max=2000"`
}

type DeleteAssetRequest struct {
	URL      string `json:"url,omitempty" binding:"omitempty,url"`
	Pathname string `json:"pathname,omitempty" binding:"omitempty,max=512"`
}
