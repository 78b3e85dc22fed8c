package model

import "time"

// SuppressionSource records why an address/domain must never be contacted.
type SuppressionSource string

const (
	SuppressionBounce      SuppressionSource = "bounce"
	SuppressionUnsubscribe SuppressionSource = "unsubscribe"
	SuppressionManual      SuppressionSource = "manual"
)

// SuppressionEntry is one email or domain on the do-not-contact list.
// Populated by a one-way sync from the transactional-email provider;
// this system never sends mail.
type SuppressionEntry struct {
	ID        string            `json:"id"`
	Value     string            `json:"value"` // email address or bare domain, lowercase
	Source    SuppressionSource `json:"source"`
	GroupID   int               `json:"group_id,omitempty"`
	GroupName string            `json:"group_name,omitempty"`
	Reason    string            `json:"reason,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// ContactTracking records the outreach cadence state for a domain.
// Written when outreach is externally recorded; consumed read-only here.
type ContactTracking struct {
	Domain          string    `json:"domain"`
	LastContactedAt time.Time `json:"last_contacted_at"`
	CanContactAfter time.Time `json:"can_contact_after"`
}
