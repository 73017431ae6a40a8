package rules

import (
	"context"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/veefedtechnologies-coder/Veefore-sub010/internal/models"
)

const dateKeyLayout = "2006-01-02"

const (
	ReasonOutsideWindow    = "outside active window"
	ReasonDailyCap         = "daily cap reached"
	ReasonUsageUnavailable = "usage counter unavailable"
)

// UsageReserver holds the per-rule daily counters behind the cap.
type UsageReserver interface {
	ReserveUsage(ctx context.Context, ruleID int64, dateKey string, limit int) (bool, error)
	ReleaseUsage(ctx context.Context, ruleID int64, dateKey string) error
}

// Gate enforces a rule's active window and daily cap.
type Gate struct {
	usage  UsageReserver
	logger *zap.Logger
}

func NewGate(usage UsageReserver, logger *zap.Logger) *Gate {
	return &Gate{usage: usage, logger: logger}
}

// GateResult is the verdict of Check. Reserved is set when an allowed rule took one unit
// of its daily cap, which must be handed back through Release if nothing is sent.
type GateResult struct {
	Allowed  bool
	Reserved bool
	Reason   string
	DateKey  string
}

// Check evaluates rule at now. A capped rule is only allowed once a slot of its daily cap
// has been reserved. A counter that cannot be reached gates the rule.
func (g *Gate) Check(ctx context.Context, rule *models.AutomationRule, now time.Time) GateResult {
	local := now.In(g.location(rule))
	res := GateResult{DateKey: formatDateKey(local)}

	if !InWindow(rule.Action.ActiveWindow, local) {
		res.Reason = ReasonOutsideWindow
		return res
	}

	if rule.Action.MaxPerDay > 0 {
		ok, err := g.usage.ReserveUsage(ctx, rule.ID, res.DateKey, rule.Action.MaxPerDay)
		if err != nil {
			g.logger.Error("Failed to reserve daily usage, gating rule",
				zap.Int64("rule_id", rule.ID), zap.String("date_key", res.DateKey), zap.Error(err))
			res.Reason = ReasonUsageUnavailable
			return res
		}
		if !ok {
			res.Reason = ReasonDailyCap
			return res
		}
		res.Reserved = true
	}

	res.Allowed = true
	return res
}

// Release returns a slot taken by Check for rule on dateKey.
func (g *Gate) Release(ctx context.Context, rule *models.AutomationRule, dateKey string) error {
	return g.usage.ReleaseUsage(ctx, rule.ID, dateKey)
}

func formatDateKey(local time.Time) string {
	return local.Format(dateKeyLayout)
}

func (g *Gate) location(rule *models.AutomationRule) *time.Location {
	tz := rule.Action.ActiveWindow.Timezone
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		g.logger.Warn("Invalid rule timezone, using UTC",
			zap.Int64("rule_id", rule.ID), zap.String("timezone", tz), zap.Error(err))
		return time.UTC
	}
	return loc
}

// InWindow reports whether local falls inside w. Bounds are inclusive and a window whose
// start is after its end wraps past midnight. An empty weekday list allows every day.
func InWindow(w models.ActiveWindow, local time.Time) bool {
	if !w.Enabled {
		return true
	}
	if len(w.ActiveWeekdays) > 0 && !slices.Contains(w.ActiveWeekdays, int(local.Weekday())) {
		return false
	}

	minute := local.Hour()*60 + local.Minute()
	if w.StartMinuteOfDay <= w.EndMinuteOfDay {
		return minute >= w.StartMinuteOfDay && minute <= w.EndMinuteOfDay
	}
	return minute >= w.StartMinuteOfDay || minute <= w.EndMinuteOfDay
}
