package models

import "time"

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

type HealthResponse struct {
	Status      string          `json:"status"`
	BlobBackend string          `json:"blobBackend,omitempty"`
	Providers   map[string]bool `json:"providers,omitempty"`
}

type UploadTargetResponse struct {
	UploadURL string    `json:"uploadUrl"`
	Pathname  string    `json:"pathname"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type BlobPutResponse struct {
	URL         string `json:"url"`
	Pathname    string `json:"pathname"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

// Generation statuses and types.
const (
	StatusOK        = "ok"
	StatusNoCredits = "no_credits"
	StatusDuplicate = "duplicate"

	GenerationFree      = "free"
	GenerationPaid      = "paid"
	GenerationUnlimited = "unlimited"
)

type GenerateResponse struct {
	Status           string           `json:"status"`
	GenerationType   string           `json:"generationType,omitempty"`
	CreditsRemaining int              `json:"creditsRemaining"`
	LineArtURL       string           `json:"lineArtUrl,omitempty"`
	Analysis         *LineArtAnalysis `json:"analysis,omitempty"`
}

type CreditsResponse struct {
	Email            string     `json:"email"`
	FreeTrialUsed    bool       `json:"freeTrialUsed"`
	CreditsRemaining int        `json:"creditsRemaining"`
	TotalPurchased   int        `json:"totalPurchased"`
	LastPurchaseAt   *time.Time `json:"lastPurchaseAt,omitempty"`
}

type PortalResponse struct {
	ID          string `json:"id"`
	PortalURL   string `json:"portalUrl"`
	QRPngURL    string `json:"qrPngUrl"`
	ManifestURL string `json:"manifestUrl"`
}

type TipsEnhanceResponse struct {
	Results []ManifestItem `json:"results"`
}

type CheckoutResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type SendPDFResponse struct {
	Status string `json:"status"`
	ID     string `json:"id,omitempty"`
}

type UploadPDFResponse struct {
	URL      string `json:"url"`
	Pathname string `json:"pathname"`
}

type StatusResponse struct {
	Status string `json:"status"`
	ID     string `json:"id,omitempty"`
}
