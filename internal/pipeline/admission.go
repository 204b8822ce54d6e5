package pipeline

import (
	"fmt"
	"strings"

	"photolineart-backend/internal/imageproc"
)

// DefaultBatchBudget caps the summed raw size of a batch.
const DefaultBatchBudget = 60 * 1024 * 1024

// AllowedTypes is the MIME allowlist for admission.
var AllowedTypes = []string{"image/jpeg", "image/png", "image/webp", "image/heic", "image/heif"}

// Source is a photo handed to the pipeline.
type Source struct {
	Name string
	Path string
	Data []byte
	// ContentType is used when the bytes cannot be sniffed.
	ContentType string
}

type Rejection struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

type admitted struct {
	src         Source
	contentType string
}

// admit filters sources by type and by the remaining budget. Rejections are
// returned, never raised.
func admit(sources []Source, used, budget int64) ([]admitted, []Rejection) {
	var ok []admitted
	var rejected []Rejection
	for _, src := range sources {
		ct := sniff(src)
		if !allowedType(ct) {
			rejected = append(rejected, Rejection{Name: src.Name, Reason: fmt.Sprintf("unsupported file type %q", ct)})
			continue
		}
		size := int64(len(src.Data))
		if used+size > budget {
			rejected = append(rejected, Rejection{
				Name:   src.Name,
				Reason: fmt.Sprintf("batch size limit of %d MB reached", budget/(1024*1024)),
			})
			continue
		}
		used += size
		ok = append(ok, admitted{src: src, contentType: ct})
	}
	return ok, rejected
}

func sniff(src Source) string {
	if ct, err := imageproc.DetectContentType(src.Data); err == nil {
		return ct
	}
	return strings.ToLower(strings.TrimSpace(src.ContentType))
}

func allowedType(ct string) bool {
	for _, t := range AllowedTypes {
		if t == ct {
			return true
		}
	}
	return false
}
