package quota

import (
	"time"

	"github.com/shopspring/decimal"
)

// Reservation statuses.
const (
	StatusPending   = "pending"
	StatusCommitted = "committed"
	StatusReleased  = "released"
)

// Ledger is a tenant's quota state for the current period.
type Ledger struct {
	TenantID       string          `json:"clinicId"`
	Plan           string          `json:"plan"`
	MonthlyQuota   int             `json:"monthlyQuota"`
	Used           int             `json:"used"`
	Pending        int             `json:"pending"`
	ResetAt        time.Time       `json:"resetAt"`
	AllowOverage   bool            `json:"allowOverage"`
	OverageRate    decimal.Decimal `json:"overageRate"`
	AccruedOverage decimal.Decimal `json:"accruedOverage"`
}

// Remaining is the unreserved quota left this period, never negative.
func (l Ledger) Remaining() int {
	r := l.MonthlyQuota - l.Used - l.Pending
	if r < 0 {
		return 0
	}
	return r
}

// Reservation is the outcome of a pre-flight quota check. Allowed
// reservations hold one pending unit until committed or released.
type Reservation struct {
	ID               string          `json:"id,omitempty"`
	TenantID         string          `json:"clinicId"`
	ScanType         string          `json:"scanType"`
	Allowed          bool            `json:"allowed"`
	Remaining        int             `json:"quotaRemaining"`
	WouldIncurCharge bool            `json:"wouldIncurCharge"`
	EstimatedCost    decimal.Decimal `json:"estimatedCost"`
}

// Outcome describes the finished scan a reservation paid for.
type Outcome struct {
	UserID     string
	Successful bool
	Tier       int
	AICostUSD  decimal.Decimal
}

// UsageRecord is one committed scan.
type UsageRecord struct {
	ID            string          `json:"id"`
	TenantID      string          `json:"clinicId"`
	UserID        string          `json:"userId,omitempty"`
	ReservationID string          `json:"reservationId"`
	ScanType      string          `json:"scanType"`
	Successful    bool            `json:"successful"`
	Tier          int             `json:"tier"`
	OverageCost   decimal.Decimal `json:"overageCost"`
	AICostUSD     decimal.Decimal `json:"aiCostUsd"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// Usage is the externally visible snapshot of a ledger.
type Usage struct {
	Plan           string          `json:"plan"`
	Limit          int             `json:"limit"`
	Used           int             `json:"used"`
	Pending        int             `json:"pending"`
	Remaining      int             `json:"remaining"`
	ResetAt        time.Time       `json:"resetAt"`
	AllowOverage   bool            `json:"allowOverage"`
	OverageRate    decimal.Decimal `json:"overageRate"`
	AccruedOverage decimal.Decimal `json:"accruedOverage"`
}

func usageOf(l Ledger) Usage {
	return Usage{
		Plan:           l.Plan,
		Limit:          l.MonthlyQuota,
		Used:           l.Used,
		Pending:        l.Pending,
		Remaining:      l.Remaining(),
		ResetAt:        l.ResetAt,
		AllowOverage:   l.AllowOverage,
		OverageRate:    l.OverageRate,
		AccruedOverage: l.AccruedOverage,
	}
}
