// Package rules picks the automation rule that answers an event.
package rules

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/veefedtechnologies-coder/Veefore-sub010/internal/models"
)

const NoteNoMatchingRule = "no matching rule"

type RuleLister interface {
	ListActiveRules(ctx context.Context, workspaceID int64) ([]*models.AutomationRule, error)
}

// Selection is the outcome of Select. Rule is nil when nothing should be sent, and Note says why.
type Selection struct {
	Rule            *models.AutomationRule
	MatchedKeywords []string
	DateKey         string
	// Reserved is set when Rule holds a slot of its daily cap.
	Reserved        bool
	Note            string
}

type Selector struct {
	rules  RuleLister
	gate   *Gate
	logger *zap.Logger
}

func NewSelector(rules RuleLister, gate *Gate, logger *zap.Logger) *Selector {
	return &Selector{rules: rules, gate: gate, logger: logger}
}

// Candidate is a rule that can answer an event, with the keywords it matched.
type Candidate struct {
	Rule    *models.AutomationRule
	Matched []string
}

// Select returns the first rule, in precedence order, that handles the event, matches its
// text and passes the gate at now.
func (s *Selector) Select(ctx context.Context, workspaceID int64, ev models.Event, now time.Time) (Selection, error) {
	all, err := s.rules.ListActiveRules(ctx, workspaceID)
	if err != nil {
		return Selection{}, fmt.Errorf("failed to load rules: %w", err)
	}

	candidates := Rank(all, ev)
	if len(candidates) == 0 {
		return Selection{Note: NoteNoMatchingRule}, nil
	}

	var lastReason string
	for _, c := range candidates {
		res := s.gate.Check(ctx, c.Rule, now)
		if !res.Allowed {
			s.logger.Info("Rule rejected by gate",
				zap.String("event_id", ev.EventID),
				zap.Int64("rule_id", c.Rule.ID),
				zap.String("reason", res.Reason),
			)
			lastReason = res.Reason
			continue
		}
		return Selection{Rule: c.Rule, MatchedKeywords: c.Matched, DateKey: res.DateKey, Reserved: res.Reserved}, nil
	}

	return Selection{Note: "gated: " + lastReason}, nil
}

// Release hands back the daily cap slot held by sel, if any.
func (s *Selector) Release(ctx context.Context, sel Selection) error {
	if !sel.Reserved || sel.Rule == nil {
		return nil
	}
	return s.gate.Release(ctx, sel.Rule, sel.DateKey)
}

// Rank returns the rules able to answer ev in precedence order: keyword comment_to_dm rules,
// then keyword dm rules, then catch-all rules, each most recently updated first.
func Rank(all []*models.AutomationRule, ev models.Event) []Candidate {
	var keywordCommentToDM, keywordDM, catchAll []Candidate
	for _, r := range all {
		if r == nil || !r.IsActive || !r.Handles(ev.Type) {
			continue
		}
		keywords := r.EffectiveKeywords()
		if len(keywords) == 0 {
			catchAll = append(catchAll, Candidate{Rule: r})
			continue
		}
		matched := MatchKeywords(r.Triggers.MatchMode, keywords, ev.Text)
		if len(matched) == 0 {
			continue
		}
		if r.Kind == models.RuleKindCommentToDM {
			keywordCommentToDM = append(keywordCommentToDM, Candidate{Rule: r, Matched: matched})
		} else {
			keywordDM = append(keywordDM, Candidate{Rule: r, Matched: matched})
		}
	}

	ordered := make([]Candidate, 0, len(keywordCommentToDM)+len(keywordDM)+len(catchAll))
	for _, bucket := range [][]Candidate{keywordCommentToDM, keywordDM, catchAll} {
		slices.SortStableFunc(bucket, byRecency)
		ordered = append(ordered, bucket...)
	}
	return ordered
}

func byRecency(a, b Candidate) int {
	if c := b.Rule.UpdatedAt.Compare(a.Rule.UpdatedAt); c != 0 {
		return c
	}
	return cmp.Compare(b.Rule.ID, a.Rule.ID)
}
