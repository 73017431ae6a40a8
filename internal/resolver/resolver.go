// Package resolver maps an external Instagram identifier to the one account that owns it.
package resolver

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/veefedtechnologies-coder/Veefore-sub010/internal/models"
	"github.com/veefedtechnologies-coder/Veefore-sub010/internal/repository"
)

var ErrAccountNotFound = errors.New("no active account for external id")

type Resolver struct {
	accounts repository.AccountRepository
	rules    repository.RuleRepository
	logger   *zap.Logger
}

func New(accounts repository.AccountRepository, rules repository.RuleRepository, logger *zap.Logger) *Resolver {
	return &Resolver{accounts: accounts, rules: rules, logger: logger}
}

// Resolve returns exactly one active account for the identifiers. When duplicates exist the
// account whose workspace has the most active rules wins, then the most recently updated
// account, then the highest id.
func (r *Resolver) Resolve(ctx context.Context, externalAccountID, externalPageID string) (*models.SocialAccount, error) {
	if externalAccountID == "" && externalPageID == "" {
		return nil, ErrAccountNotFound
	}

	found, err := r.accounts.FindActiveByExternalID(ctx, externalAccountID, externalPageID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up accounts: %w", err)
	}

	candidates := dedupe(found)
	switch len(candidates) {
	case 0:
		return nil, ErrAccountNotFound
	case 1:
		return candidates[0], nil
	}

	workspaceIDs := make([]int64, 0, len(candidates))
	for _, c := range candidates {
		if !slices.Contains(workspaceIDs, c.WorkspaceID) {
			workspaceIDs = append(workspaceIDs, c.WorkspaceID)
		}
	}
	counts, err := r.rules.CountActiveRules(ctx, workspaceIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to count rules for candidate workspaces: %w", err)
	}

	chosen := pick(candidates, counts)
	r.logger.Warn("Resolved duplicate social accounts",
		zap.String("external_account_id", externalAccountID),
		zap.String("external_page_id", externalPageID),
		zap.Int("candidates", len(candidates)),
		zap.Int64("account_id", chosen.ID),
		zap.Int64("workspace_id", chosen.WorkspaceID),
		zap.Int("active_rules", counts[chosen.WorkspaceID]),
	)
	return chosen, nil
}

func dedupe(accounts []*models.SocialAccount) []*models.SocialAccount {
	seen := make(map[int64]bool, len(accounts))
	out := accounts[:0:0]
	for _, a := range accounts {
		if a == nil || seen[a.ID] {
			continue
		}
		seen[a.ID] = true
		out = append(out, a)
	}
	return out
}

// pick orders candidates by active rule count, then updated_at, then id, all descending.
func pick(candidates []*models.SocialAccount, ruleCounts map[int64]int) *models.SocialAccount {
	sorted := slices.Clone(candidates)
	slices.SortFunc(sorted, func(a, b *models.SocialAccount) int {
		if c := cmp.Compare(ruleCounts[b.WorkspaceID], ruleCounts[a.WorkspaceID]); c != 0 {
			return c
		}
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return sorted[0]
}
