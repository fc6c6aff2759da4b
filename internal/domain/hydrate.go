package domain

import (
	"context"
	"fmt"
	"log/slog"
)

// processNextStubAccounts hydrates a batch of stub accounts with one bulk
// profile fetch. Ids the provider does not return are marked not found.
func (c *Crawler) processNextStubAccounts(ctx context.Context, tx Tx, logger *slog.Logger) (bool, error) {
	stubs, err := tx.ClaimStubAccounts(ctx, hydrationBatchSize)
	if err != nil {
		return false, fmt.Errorf("claim stub accounts: %w", err)
	}
	if len(stubs) == 0 {
		return false, nil
	}

	logger.Info("selected incomplete profiles", "count", len(stubs))

	ids := make([]int64, len(stubs))
	for i, s := range stubs {
		ids[i] = s.ID
	}

	profiles, err := c.client.BatchGetProfiles(ctx, ids)
	if err != nil {
		return false, fmt.Errorf("batch get profiles: %w", err)
	}

	byID := make(map[int64]*Profile, len(profiles))
	for i := range profiles {
		if profiles[i].ID != 0 {
			byID[profiles[i].ID] = &profiles[i]
		}
	}

	for _, stub := range stubs {
		profile, ok := byID[stub.ID]
		if !ok {
			profile = NotFoundProfile(stub.ID)
		}
		if err := c.applyProfile(ctx, tx, logger, stub.ID, profile, stub.Tracked); err != nil {
			return false, err
		}
	}

	return true, nil
}

// processNextSuggestion turns the oldest pending suggestion into a tracked
// account. It is skipped while the daily quota is spent.
func (c *Crawler) processNextSuggestion(ctx context.Context, tx Tx, logger *slog.Logger) (bool, error) {
	reached, err := c.dailyLimitReached(ctx, tx)
	if err != nil {
		return false, err
	}
	if reached {
		logger.Info("daily post limit reached, skipping suggestions", "limit", c.opts.DailyPostLimit)
		return false, nil
	}

	suggestion, err := tx.ClaimSuggestion(ctx)
	if err != nil {
		return false, fmt.Errorf("claim suggestion: %w", err)
	}
	if suggestion == nil {
		return false, nil
	}

	logger.Info("selected suggested profile", "username", suggestion.Username)

	profile, err := c.client.GetProfileByUsername(ctx, suggestion.Username)
	if err != nil {
		return false, fmt.Errorf("get profile %q: %w", suggestion.Username, err)
	}

	switch {
	case profile == nil:
		logger.Info("suggested profile not found", "username", suggestion.Username)
	case profile.Unavailable && profile.ID == 0:
		logger.Info("suggested profile unavailable", "username", suggestion.Username, "reason", profile.UnavailableReason)
	default:
		if err := c.applyProfile(ctx, tx, logger, profile.ID, profile, true); err != nil {
			return false, err
		}
	}

	if err := tx.DeleteSuggestion(ctx, suggestion.Username); err != nil {
		return false, fmt.Errorf("delete suggestion %q: %w", suggestion.Username, err)
	}
	logger.Info("suggestion deleted", "username", suggestion.Username)

	return true, nil
}

// applyProfile stores a fetched profile on account id and, for tracked live
// accounts, makes sure a cursor search job exists.
func (c *Crawler) applyProfile(ctx context.Context, tx Tx, logger *slog.Logger, id int64, profile *Profile, tracked bool) error {
	if profile.Unavailable && profile.UnavailableReason == "" {
		p := *profile
		p.UnavailableReason = reasonUnavailable
		profile = &p
	}
	if err := tx.UpsertProfile(ctx, id, profile, tracked); err != nil {
		return fmt.Errorf("upsert profile %d: %w", id, err)
	}

	if profile.Unavailable {
		logger.Info("account set to unavailable", "account_id", id, "reason", profile.UnavailableReason)
		return nil
	}
	logger.Info("account updated", "account_id", id, "username", profile.Username)

	if !tracked {
		return nil
	}

	if err := tx.EnsureCursorSearchJob(ctx, id, searchQueryFor(profile.Username)); err != nil {
		return fmt.Errorf("ensure cursor search job %d: %w", id, err)
	}
	logger.Info("account queued for crawling", "account_id", id)
	return nil
}
