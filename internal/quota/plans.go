package quota

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Plan is a subscription tier. Overage rates are THB per scan.
type Plan struct {
	Name         string
	MonthlyQuota int
	OverageRate  decimal.Decimal
	AllowOverage bool
}

const DefaultPlan = "professional"

var plans = map[string]Plan{
	"basic":        {Name: "basic", MonthlyQuota: 50, OverageRate: decimal.NewFromInt(75), AllowOverage: false},
	"professional": {Name: "professional", MonthlyQuota: 200, OverageRate: decimal.NewFromInt(60), AllowOverage: true},
	"premium":      {Name: "premium", MonthlyQuota: 500, OverageRate: decimal.NewFromInt(45), AllowOverage: true},
	"enterprise":   {Name: "enterprise", MonthlyQuota: 1000, OverageRate: decimal.NewFromInt(35), AllowOverage: true},
}

// PlanByName looks up a plan case-insensitively.
func PlanByName(name string) (Plan, bool) {
	p, ok := plans[strings.ToLower(strings.TrimSpace(name))]
	return p, ok
}

// NextReset is the first instant of the month after now, in UTC.
func NextReset(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month()+1, 1, 0, 0, 0, 0, time.UTC)
}

func newLedger(tenantID string, p Plan, now time.Time) Ledger {
	return Ledger{
		TenantID:       tenantID,
		Plan:           p.Name,
		MonthlyQuota:   p.MonthlyQuota,
		ResetAt:        NextReset(now),
		AllowOverage:   p.AllowOverage,
		OverageRate:    p.OverageRate,
		AccruedOverage: decimal.Zero,
	}
}

// rollover starts a new period when now has reached ResetAt. Pending
// units carry over. It reports whether the ledger changed.
func rollover(l *Ledger, now time.Time) bool {
	if now.Before(l.ResetAt) {
		return false
	}
	l.Used = 0
	l.AccruedOverage = decimal.Zero
	l.ResetAt = NextReset(now)
	return true
}

// decide applies the reservation policy to l without mutating it.
func decide(l Ledger) (allowed bool, remaining int, charge bool) {
	remaining = l.Remaining()
	charge = remaining <= 0
	allowed = remaining > 0 || l.AllowOverage
	return allowed, remaining, charge
}

// settle moves one pending unit into Used and returns the overage charged
// for it.
func settle(l *Ledger) decimal.Decimal {
	overage := decimal.Zero
	if l.Used >= l.MonthlyQuota {
		overage = l.OverageRate
		l.AccruedOverage = l.AccruedOverage.Add(overage)
	}
	l.Used++
	if l.Pending > 0 {
		l.Pending--
	}
	return overage
}
