package model

import (
	"strings"
	"time"
)

// EmailProvider identifies which enrichment source discovered an email.
type EmailProvider string

const (
	ProviderHunter EmailProvider = "hunter"
	ProviderTomba  EmailProvider = "tomba"
	ProviderAI     EmailProvider = "ai"
)

// EmailType distinguishes role addresses from personal ones.
type EmailType string

const (
	EmailTypeGeneric  EmailType = "generic"
	EmailTypePersonal EmailType = "personal"
)

// EmailRecord is one discovered email address for a lead, tagged with the
// provider that found it. Records are never merged across providers.
type EmailRecord struct {
	ID         string        `json:"id"`
	LeadID     string        `json:"lead_id"`
	Provider   EmailProvider `json:"provider"`
	Email      string        `json:"email"`
	Type       EmailType     `json:"type"`
	FirstName  string        `json:"first_name,omitempty"`
	LastName   string        `json:"last_name,omitempty"`
	Position   string        `json:"position,omitempty"`
	Confidence int           `json:"confidence"` // normalized 0-100 across providers
	Verified   bool          `json:"verified"`
	CreatedAt  time.Time     `json:"created_at"`
}

// EmailDomain returns the lowercase domain part of an email address,
// or "" when the address has no @.
func EmailDomain(email string) string {
	i := strings.LastIndex(email, "@")
	if i < 0 || i == len(email)-1 {
		return ""
	}
	return strings.ToLower(email[i+1:])
}
