package blob

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Top-level prefixes of the blob layout.
const (
	PrefixUploads  = "uploads/"
	PrefixLineArt  = "line-art/"
	PrefixPortals  = "portals/"
	PrefixBundles  = "bundles/"
	PrefixPDFs     = "pdfs/"
	PrefixLogs     = "logs/"
	EmailLogPath   = PrefixLogs + "pdf-emails.csv"
	manifestName   = "manifest.json"
	qrName         = "qr.png"
	datePartLayout = "20060102"
)

var contentTypeExt = map[string]string{
	"image/jpeg":      "jpg",
	"image/png":       "png",
	"image/webp":      "webp",
	"image/heic":      "heic",
	"image/heif":      "heif",
	"application/pdf": "pdf",
}

// AllowedUploadTypes are the content types clients may request upload targets for.
var AllowedUploadTypes = []string{"image/jpeg", "image/png", "image/webp", "image/heic", "image/heif"}

func IsAllowedUploadType(contentType string) bool {
	ct := normalizeContentType(contentType)
	for _, t := range AllowedUploadTypes {
		if t == ct {
			return true
		}
	}
	return false
}

// ExtensionFor maps a content type to the file extension used in paths.
func ExtensionFor(contentType string) (string, bool) {
	ext, ok := contentTypeExt[normalizeContentType(contentType)]
	return ext, ok
}

// ContentTypeFor guesses a content type from the extension of pathname.
func ContentTypeFor(pathname string) string {
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(pathname)), ".")
	switch ext {
	case "jpeg":
		return "image/jpeg"
	case "json":
		return "application/json"
	case "csv":
		return "text/csv"
	}
	for ct, e := range contentTypeExt {
		if e == ext {
			return ct
		}
	}
	return "application/octet-stream"
}

func normalizeContentType(ct string) string {
	ct = strings.ToLower(strings.TrimSpace(ct))
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if ct == "image/jpg" {
		return "image/jpeg"
	}
	return ct
}

func datedPath(prefix string, now time.Time, ext string) string {
	return fmt.Sprintf("%s%s/%s.%s", prefix, now.UTC().Format(datePartLayout), uuid.New().String(), ext)
}

func UploadPath(now time.Time, ext string) string {
	return datedPath(PrefixUploads, now, ext)
}

func LineArtPath(now time.Time) string {
	return datedPath(PrefixLineArt, now, "png")
}

func PDFPath(now time.Time) string {
	return datedPath(PrefixPDFs, now, "pdf")
}

func PortalManifestPath(id string) string { return PrefixPortals + id + "/" + manifestName }
func PortalQRPath(id string) string       { return PrefixPortals + id + "/" + qrName }
func BundleManifestPath(id string) string { return PrefixBundles + id + "/" + manifestName }
func BundleQRPath(id string) string       { return PrefixBundles + id + "/" + qrName }

// BundleAssetPath places a copied asset under the bundle, keeping its base name.
func BundleAssetPath(id, source string) string {
	return PrefixBundles + id + "/assets/" + path.Base(source)
}

// CleanPath strips leading slashes and rejects traversal. It returns "" for
// paths that are empty or escape the root.
func CleanPath(p string) string {
	p = strings.TrimLeft(strings.TrimSpace(p), "/")
	if p == "" {
		return ""
	}
	cleaned := path.Clean(p)
	if cleaned == "." || strings.HasPrefix(cleaned, "../") || cleaned == ".." {
		return ""
	}
	return cleaned
}

// IsManagedPath reports whether p lives under one of the prefixes this
// service writes and may delete.
func IsManagedPath(p string) bool {
	p = CleanPath(p)
	for _, prefix := range []string{PrefixUploads, PrefixLineArt, PrefixPortals, PrefixBundles, PrefixPDFs} {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}
