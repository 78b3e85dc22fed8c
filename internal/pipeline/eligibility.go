package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadgen-cli/internal/model"
)

// Eligibility is the outreach decision for one address. Suppression and
// cadence are independent checks; both are always evaluated so callers can
// report every blocking reason at once.
type Eligibility struct {
	Email      string     `json:"email"`
	Suppressed bool       `json:"suppressed"`
	Reason     string     `json:"reason,omitempty"`
	CadenceOK  bool       `json:"cadence_ok"`
	RetryAfter *time.Time `json:"retry_after,omitempty"`
}

// Eligible reports whether outreach is currently permitted.
func (e Eligibility) Eligible() bool {
	return !e.Suppressed && e.CadenceOK
}

// CheckEligibility decides whether an address may be contacted right now.
// The address and its domain are both checked against the suppression
// list; the domain alone is checked against the contact cadence window.
// Read-only and safe to call repeatedly.
func (c *Controller) CheckEligibility(ctx context.Context, email string) (*Eligibility, error) {
	domain := model.EmailDomain(email)
	result := &Eligibility{Email: email, CadenceOK: true}

	entry, err := c.store.LookupSuppression(ctx, email, domain)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: suppression lookup %s", email)
	}
	if entry != nil {
		result.Suppressed = true
		result.Reason = fmt.Sprintf("suppressed (%s): %s", entry.Source, entry.Value)
	}

	if domain != "" {
		tracking, err := c.store.GetContactTracking(ctx, domain)
		if err != nil {
			return nil, eris.Wrapf(err, "pipeline: contact tracking lookup %s", domain)
		}
		if tracking != nil {
			// Rows written before the window column existed carry only the
			// last contact time; derive the window from the cadence policy.
			blockedUntil := tracking.CanContactAfter
			if blockedUntil.IsZero() && !tracking.LastContactedAt.IsZero() {
				blockedUntil = tracking.LastContactedAt.Add(c.cfg.CadenceWindow)
			}
			if time.Now().Before(blockedUntil) {
				result.CadenceOK = false
				result.RetryAfter = &blockedUntil
			}
		}
	}

	return result, nil
}
