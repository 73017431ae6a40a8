// Package dispatcher delivers composed replies through the Graph API.
package dispatcher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/veefedtechnologies-coder/Veefore-sub010/internal/instagram_client"
	"github.com/veefedtechnologies-coder/Veefore-sub010/internal/models"
)

type Sender interface {
	ReplyToComment(ctx context.Context, accessToken, commentID, text string) (string, error)
	SendDirectMessage(ctx context.Context, accessToken, igUserID string, to instagram_client.Recipient, text string) (string, error)
}

type TokenOpener interface {
	OpenToken(workspaceID, accountID int64, sealed string) (string, error)
}

type AccountDeactivator interface {
	DeactivateAccount(ctx context.Context, id int64) error
}

type Alerter interface {
	Notify(ctx context.Context, text string)
}

type Config struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	CallTimeout    time.Duration
}

// Leg is one message to send.
type Leg struct {
	Channel models.Channel
	Text    string
}

type LegResult struct {
	Channel    models.Channel
	Text       string
	Delivered  bool
	ExternalID string
	Attempts   int
	Kind       instagram_client.FailureKind
	Skipped    bool
	Err        error
}

type Result struct {
	Legs        []LegResult
	AuthExpired bool
}

// Succeeded reports whether at least one leg was delivered.
func (r Result) Succeeded() bool {
	for _, l := range r.Legs {
		if l.Delivered {
			return true
		}
	}
	return false
}

// Note summarizes the legs for the ledger.
func (r Result) Note() string {
	parts := make([]string, 0, len(r.Legs))
	for _, l := range r.Legs {
		switch {
		case l.Delivered:
			parts = append(parts, fmt.Sprintf("%s: delivered", l.Channel))
		case l.Skipped:
			parts = append(parts, fmt.Sprintf("%s: skipped (%s)", l.Channel, l.Kind))
		default:
			parts = append(parts, fmt.Sprintf("%s: failed (%s) after %d attempts", l.Channel, l.Kind, l.Attempts))
		}
	}
	return strings.Join(parts, "; ")
}

// LegsFor returns the channels rule answers ev on: a comment_to_dm rule replies to the comment
// and follows up privately, anything else sends a single direct message.
func LegsFor(rule *models.AutomationRule, ev models.Event) []models.Channel {
	if ev.Type == models.EventTypeComment && rule.Kind == models.RuleKindCommentToDM {
		return []models.Channel{models.ChannelComment, models.ChannelDM}
	}
	return []models.Channel{models.ChannelDM}
}

type Dispatcher struct {
	sender   Sender
	tokens   TokenOpener
	accounts AccountDeactivator
	alerts   Alerter
	limiter  *Limiter
	cfg      Config
	logger   *zap.Logger
}

func New(sender Sender, tokens TokenOpener, accounts AccountDeactivator, alerts Alerter, limiter *Limiter, cfg Config, logger *zap.Logger) *Dispatcher {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 15 * time.Second
	}
	if limiter == nil {
		limiter = NewLimiter(0)
	}
	return &Dispatcher{
		sender:   sender,
		tokens:   tokens,
		accounts: accounts,
		alerts:   alerts,
		limiter:  limiter,
		cfg:      cfg,
		logger:   logger,
	}
}

// Dispatch sends every leg independently. After an auth expiry the account is deactivated and
// the remaining legs are skipped.
func (d *Dispatcher) Dispatch(ctx context.Context, acc *models.SocialAccount, ev models.Event, legs []Leg) Result {
	var res Result

	token, err := d.tokens.OpenToken(acc.WorkspaceID, acc.ID, acc.AccessTokenEncrypted)
	if err != nil {
		d.logger.Error("Failed to open access token",
			zap.String("event_id", ev.EventID), zap.Int64("account_id", acc.ID), zap.Error(err))
		for _, leg := range legs {
			res.Legs = append(res.Legs, LegResult{Channel: leg.Channel, Text: leg.Text, Kind: instagram_client.KindPermanent, Err: err})
		}
		return res
	}

	for _, leg := range legs {
		if res.AuthExpired {
			res.Legs = append(res.Legs, LegResult{Channel: leg.Channel, Text: leg.Text, Skipped: true, Kind: instagram_client.KindAuthExpired})
			continue
		}

		lr := d.send(ctx, token, acc, ev, leg)
		res.Legs = append(res.Legs, lr)

		if !lr.Delivered && lr.Kind == instagram_client.KindAuthExpired {
			res.AuthExpired = true
			d.deactivate(ctx, acc, lr.Err)
		}
	}
	return res
}

func (d *Dispatcher) send(ctx context.Context, token string, acc *models.SocialAccount, ev models.Event, leg Leg) LegResult {
	lr := LegResult{Channel: leg.Channel, Text: leg.Text}

	call := func(callCtx context.Context) (string, error) {
		if leg.Channel == models.ChannelComment {
			return d.sender.ReplyToComment(callCtx, token, ev.EventID, leg.Text)
		}
		to := instagram_client.Recipient{ID: ev.SenderExternalID}
		if ev.Type == models.EventTypeComment {
			to = instagram_client.Recipient{CommentID: ev.EventID}
		}
		return d.sender.SendDirectMessage(callCtx, token, acc.ExternalAccountID, to, leg.Text)
	}

	operation := func() error {
		if err := d.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		lr.Attempts++

		callCtx, cancel := context.WithTimeout(ctx, d.cfg.CallTimeout)
		defer cancel()

		id, err := call(callCtx)
		if err != nil {
			lr.Kind = instagram_client.Classify(err)
			if !lr.Kind.Retryable() {
				return backoff.Permanent(err)
			}
			return err
		}
		lr.ExternalID = id
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = d.cfg.InitialBackoff
	policy.MaxInterval = d.cfg.MaxBackoff
	policy.MaxElapsedTime = 0

	notify := func(err error, wait time.Duration) {
		d.logger.Warn("Outbound call failed, backing off",
			zap.String("event_id", ev.EventID),
			zap.String("channel", string(leg.Channel)),
			zap.String("kind", string(lr.Kind)),
			zap.Int("attempt", lr.Attempts),
			zap.Duration("wait", wait),
			zap.Error(err))
	}

	err := backoff.RetryNotify(operation,
		backoff.WithContext(backoff.WithMaxRetries(policy, uint64(d.cfg.MaxAttempts-1)), ctx),
		notify)
	if err != nil {
		if lr.Kind == "" {
			lr.Kind = instagram_client.KindTransient
		}
		lr.Err = err
		d.logger.Error("Failed to deliver leg",
			zap.String("event_id", ev.EventID),
			zap.String("channel", string(leg.Channel)),
			zap.String("kind", string(lr.Kind)),
			zap.Int("attempts", lr.Attempts),
			zap.Error(err))
		return lr
	}

	lr.Delivered = true
	lr.Kind = ""
	d.logger.Info("Delivered leg",
		zap.String("event_id", ev.EventID),
		zap.String("channel", string(leg.Channel)),
		zap.String("external_id", lr.ExternalID),
		zap.Int("attempts", lr.Attempts))
	return lr
}

func (d *Dispatcher) deactivate(ctx context.Context, acc *models.SocialAccount, cause error) {
	// the account must be switched off even if the event's context is ending
	ctx = context.WithoutCancel(ctx)
	if err := d.accounts.DeactivateAccount(ctx, acc.ID); err != nil {
		d.logger.Error("Failed to deactivate account after auth expiry", zap.Int64("account_id", acc.ID), zap.Error(err))
	}
	d.logger.Warn("Access token expired, account deactivated",
		zap.Int64("account_id", acc.ID),
		zap.Int64("workspace_id", acc.WorkspaceID),
		zap.Error(cause))
	if d.alerts != nil {
		d.alerts.Notify(ctx, fmt.Sprintf("Instagram account @%s (id %d, workspace %d) was deactivated: access token expired",
			acc.Username, acc.ID, acc.WorkspaceID))
	}
}
