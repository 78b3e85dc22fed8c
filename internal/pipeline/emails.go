package pipeline

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/resilience"
	"github.com/sells-group/leadgen-cli/pkg/hunter"
	"github.com/sells-group/leadgen-cli/pkg/tomba"
)

// MergeProviderEmails replaces one provider's email records for a lead
// without touching other providers' rows. Re-running a search for the same
// provider is idempotent; a Tomba refresh can never lose Hunter data.
func (c *Controller) MergeProviderEmails(ctx context.Context, leadID string, provider model.EmailProvider, records []model.EmailRecord) error {
	for i := range records {
		records[i].LeadID = leadID
		records[i].Provider = provider
		records[i].Email = strings.ToLower(strings.TrimSpace(records[i].Email))
	}
	err := c.store.ReplaceProviderEmails(ctx, leadID, provider, records)
	return eris.Wrapf(err, "pipeline: merge %s emails for lead %s", provider, leadID)
}

// EnrichLeadEmails queries each configured provider for the lead's domain
// and merges the results per provider. Provider outages are isolated: one
// failing never blocks the others, and partial results are kept.
func (c *Controller) EnrichLeadEmails(ctx context.Context, lead *model.Lead) error {
	domain := lead.EmailDomain
	if domain == "" {
		domain = model.DomainFromWebsite(lead.Website)
	}
	if domain == "" {
		return nil
	}

	var errs []error

	if c.hunter != nil {
		if err := c.enrichFromHunter(ctx, lead.ID, domain); err != nil {
			zap.L().Warn("hunter enrichment failed",
				zap.String("lead_id", lead.ID),
				zap.String("domain", domain),
				zap.Error(err))
			errs = append(errs, err)
		}
	}

	if c.tomba != nil {
		if err := c.enrichFromTomba(ctx, lead.ID, domain); err != nil {
			zap.L().Warn("tomba enrichment failed",
				zap.String("lead_id", lead.ID),
				zap.String("domain", domain),
				zap.Error(err))
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return eris.Wrapf(errs[0], "pipeline: enrich emails for lead %s", lead.ID)
	}
	return nil
}

func (c *Controller) enrichFromHunter(ctx context.Context, leadID, domain string) error {
	resp, err := resilience.ExecuteVal(ctx, c.breakers.Get("hunter"),
		func(ctx context.Context) (*hunter.DomainSearchResponse, error) {
			return c.hunter.DomainSearch(ctx, domain)
		})
	if err != nil {
		return err
	}

	records := make([]model.EmailRecord, 0, len(resp.Data.Emails))
	for _, e := range resp.Data.Emails {
		if e.Value == "" {
			continue
		}
		records = append(records, model.EmailRecord{
			Email:      e.Value,
			Type:       model.EmailType(e.Type),
			FirstName:  e.FirstName,
			LastName:   e.LastName,
			Position:   e.Position,
			Confidence: e.Confidence,
			Verified:   e.Verified(),
		})
	}
	return c.MergeProviderEmails(ctx, leadID, model.ProviderHunter, records)
}

func (c *Controller) enrichFromTomba(ctx context.Context, leadID, domain string) error {
	resp, err := resilience.ExecuteVal(ctx, c.breakers.Get("tomba"),
		func(ctx context.Context) (*tomba.DomainSearchResponse, error) {
			return c.tomba.DomainSearch(ctx, domain)
		})
	if err != nil {
		return err
	}

	records := make([]model.EmailRecord, 0, len(resp.Data.Emails))
	for _, e := range resp.Data.Emails {
		if e.Email == "" {
			continue
		}
		// Tomba's score shares Hunter's 0-100 range.
		records = append(records, model.EmailRecord{
			Email:      e.Email,
			Type:       model.EmailType(e.Type),
			FirstName:  e.FirstName,
			LastName:   e.LastName,
			Position:   e.Position,
			Confidence: e.Score,
		})
	}
	return c.MergeProviderEmails(ctx, leadID, model.ProviderTomba, records)
}
