// Package suppress mirrors SendGrid suppressions into the local
// do-not-contact list. The sync is one-way and additive: addresses removed
// on the SendGrid side are kept locally, since a past bounce or unsubscribe
// remains a reason not to cold-contact someone.
package suppress

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/store"
	"github.com/sells-group/leadgen-cli/pkg/sendgrid"
)

const pageSize = 500

// Syncer pulls suppression state from SendGrid into the store.
type Syncer struct {
	client sendgrid.Client
	store  store.Store
}

// NewSyncer creates a Syncer over the given client and store.
func NewSyncer(client sendgrid.Client, st store.Store) *Syncer {
	return &Syncer{client: client, store: st}
}

// Result summarizes one sync pass.
type Result struct {
	Bounces      int
	Unsubscribes int
	GroupEntries int
	Upserted     int64
}

// Sync pulls bounces, global unsubscribes, and per-group suppressions and
// upserts them all. Each source is fetched completely before writing, so a
// partial page failure aborts without a half-written batch.
func (s *Syncer) Sync(ctx context.Context) (*Result, error) {
	var entries []model.SuppressionEntry
	result := &Result{}

	bounces, err := s.fetchBounces(ctx)
	if err != nil {
		return nil, err
	}
	entries = append(entries, bounces...)
	result.Bounces = len(bounces)

	unsubs, err := s.fetchUnsubscribes(ctx)
	if err != nil {
		return nil, err
	}
	entries = append(entries, unsubs...)
	result.Unsubscribes = len(unsubs)

	groups, err := s.fetchGroupSuppressions(ctx)
	if err != nil {
		return nil, err
	}
	entries = append(entries, groups...)
	result.GroupEntries = len(groups)

	if len(entries) == 0 {
		zap.L().Info("suppression sync: nothing to upsert")
		return result, nil
	}

	n, err := s.store.UpsertSuppressionEntries(ctx, entries)
	if err != nil {
		return nil, eris.Wrap(err, "suppress: upsert entries")
	}
	result.Upserted = n

	zap.L().Info("suppression sync complete",
		zap.Int("bounces", result.Bounces),
		zap.Int("unsubscribes", result.Unsubscribes),
		zap.Int("group_entries", result.GroupEntries),
		zap.Int64("upserted", n))
	return result, nil
}

func (s *Syncer) fetchBounces(ctx context.Context) ([]model.SuppressionEntry, error) {
	var entries []model.SuppressionEntry
	for offset := 0; ; offset += pageSize {
		page, err := s.client.Bounces(ctx, offset, pageSize)
		if err != nil {
			return nil, eris.Wrap(err, "suppress: fetch bounces")
		}
		for _, b := range page {
			if b.Email == "" {
				continue
			}
			entries = append(entries, model.SuppressionEntry{
				Value:     normalize(b.Email),
				Source:    model.SuppressionBounce,
				Reason:    b.Reason,
				CreatedAt: time.Unix(b.Created, 0).UTC(),
			})
		}
		if len(page) < pageSize {
			return entries, nil
		}
	}
}

func (s *Syncer) fetchUnsubscribes(ctx context.Context) ([]model.SuppressionEntry, error) {
	var entries []model.SuppressionEntry
	for offset := 0; ; offset += pageSize {
		page, err := s.client.GlobalUnsubscribes(ctx, offset, pageSize)
		if err != nil {
			return nil, eris.Wrap(err, "suppress: fetch unsubscribes")
		}
		for _, u := range page {
			if u.Email == "" {
				continue
			}
			entries = append(entries, model.SuppressionEntry{
				Value:     normalize(u.Email),
				Source:    model.SuppressionUnsubscribe,
				CreatedAt: time.Unix(u.Created, 0).UTC(),
			})
		}
		if len(page) < pageSize {
			return entries, nil
		}
	}
}

func (s *Syncer) fetchGroupSuppressions(ctx context.Context) ([]model.SuppressionEntry, error) {
	groups, err := s.client.Groups(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "suppress: list groups")
	}

	now := time.Now().UTC()
	var entries []model.SuppressionEntry
	for _, g := range groups {
		emails, err := s.client.GroupSuppressions(ctx, g.ID)
		if err != nil {
			return nil, eris.Wrapf(err, "suppress: fetch group %d", g.ID)
		}
		for _, email := range emails {
			if email == "" {
				continue
			}
			entries = append(entries, model.SuppressionEntry{
				Value:     normalize(email),
				Source:    model.SuppressionUnsubscribe,
				GroupID:   g.ID,
				GroupName: g.Name,
				CreatedAt: now,
			})
		}
	}
	return entries, nil
}

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
