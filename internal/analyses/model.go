package analyses

import (
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"skinscan-backend/internal/baseline"
	"skinscan-backend/internal/fusion"
	"skinscan-backend/internal/scancache"
	"skinscan-backend/internal/shared/storage/object"
)

// Customer identifies the person being scanned.
type Customer struct {
	CustomerID string `json:"customerId"`
	Name       string `json:"name" validate:"max=200"`
	Email      string `json:"email" validate:"max=254"`
	Age        int    `json:"age" validate:"required,min=1,max=150"`
}

// Request is one scan request as received at the boundary.
type Request struct {
	ClinicID  string              `json:"clinicId"`
	UserID    string              `json:"userId"`
	Customer  Customer            `json:"customerInfo"`
	ImageData string              `json:"imageData"`
	UseAI     bool                `json:"useAI"`
	Landmarks []baseline.Landmark `json:"landmarks"`
}

func (r Request) identity() scancache.Identity {
	return scancache.Identity{Name: r.Customer.Name, Email: r.Customer.Email, Age: r.Customer.Age}
}

// Analysis is a persisted scan.
type Analysis struct {
	ID          string        `json:"id"`
	TenantID    string        `json:"clinicId"`
	UserID      string        `json:"userId,omitempty"`
	CustomerID  string        `json:"customerId,omitempty"`
	Age         int           `json:"age"`
	Fingerprint string        `json:"fingerprint,omitempty"`
	ImageKey    string        `json:"imageKey,omitempty"`
	Result      fusion.Result `json:"result"`
	CreatedAt   time.Time     `json:"createdAt"`
}

// Response is the body of a successful scan call.
type Response struct {
	AnalysisID       string            `json:"analysisId"`
	Analysis         fusion.Result     `json:"analysis"`
	UsedCache        bool              `json:"usedCache"`
	AIPowered        bool              `json:"aiPowered"`
	QuotaInfo        *fusion.QuotaInfo `json:"quotaInfo"`
	ProcessingTimeMs int64             `json:"processingTimeMs"`
}

// ResponseOf builds the boundary shape for a.
func ResponseOf(a Analysis) Response {
	return Response{
		AnalysisID:       a.ID,
		Analysis:         a.Result,
		UsedCache:        a.Result.UsedCache,
		AIPowered:        a.Result.AIPowered,
		QuotaInfo:        a.Result.QuotaInfo,
		ProcessingTimeMs: a.Result.ProcessingTimeMs,
	}
}

var errBadImage = errors.New("imageData must be base64, optionally as a data URL")

// decodeImage accepts raw base64 or a data URL. Empty input is no image.
func decodeImage(raw string) ([]byte, string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, "", nil
	}
	if strings.HasPrefix(raw, "data:") {
		comma := strings.IndexByte(raw, ',')
		if comma < 0 {
			return nil, "", errBadImage
		}
		raw = raw[comma+1:]
	}
	img, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		img, err = base64.RawStdEncoding.DecodeString(raw)
	}
	if err != nil || len(img) == 0 {
		return nil, "", errBadImage
	}
	_, mime := object.Extension(img)
	return img, mime, nil
}
