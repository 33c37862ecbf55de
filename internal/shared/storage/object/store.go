package object

import (
	"context"
	"io"
	"net/http"
)

// ImageArchive stores scan photos keyed by clinic and analysis id.
type ImageArchive interface {
	Put(ctx context.Context, tenantID, analysisID string, image []byte) (storageKey string, err error)
	Open(ctx context.Context, storageKey string) (io.ReadCloser, error)
}

// Extension maps a sniffed image content type to a file extension.
func Extension(image []byte) (ext string, mimeType string) {
	mimeType = http.DetectContentType(image)
	switch mimeType {
	case "image/jpeg":
		return ".jpg", mimeType
	case "image/png":
		return ".png", mimeType
	case "image/webp":
		return ".webp", mimeType
	case "image/gif":
		return ".gif", mimeType
	default:
		return ".bin", mimeType
	}
}
