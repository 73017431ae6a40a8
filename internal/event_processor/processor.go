// Package event_processor runs normalized events through resolution, rule selection, the
// ledger, composition, delivery and conversation memory.
package event_processor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/veefedtechnologies-coder/Veefore-sub010/internal/composer"
	"github.com/veefedtechnologies-coder/Veefore-sub010/internal/dispatcher"
	"github.com/veefedtechnologies-coder/Veefore-sub010/internal/ledger"
	"github.com/veefedtechnologies-coder/Veefore-sub010/internal/models"
	"github.com/veefedtechnologies-coder/Veefore-sub010/internal/resolver"
	"github.com/veefedtechnologies-coder/Veefore-sub010/internal/rules"
)

var (
	ErrNotReplayable = errors.New("only failed events can be replayed")
	ErrEventNotFound = errors.New("event not found")
	ErrShuttingDown  = errors.New("processor is shutting down")
)

type Outcome string

const (
	OutcomeUnresolved Outcome = "unresolved"
	OutcomeDuplicate  Outcome = "duplicate"
	OutcomeNoAction   Outcome = "no_action"
	OutcomeSucceeded  Outcome = "succeeded"
	OutcomeFailed     Outcome = "failed"
	OutcomeAbandoned  Outcome = "abandoned"
	OutcomeError      Outcome = "error"
)

type Result struct {
	EventID     string  `json:"event_id"`
	Outcome     Outcome `json:"outcome"`
	WorkspaceID int64   `json:"workspace_id,omitempty"`
	RuleID      int64   `json:"rule_id,omitempty"`
	Note        string  `json:"note,omitempty"`
}

type AccountResolver interface {
	Resolve(ctx context.Context, externalAccountID, externalPageID string) (*models.SocialAccount, error)
}

// RuleSelector picks the rule for an event. A selection may hold a slot of the rule's daily
// cap, which Release hands back when nothing was delivered.
type RuleSelector interface {
	Select(ctx context.Context, workspaceID int64, ev models.Event, now time.Time) (rules.Selection, error)
	Release(ctx context.Context, sel rules.Selection) error
}

type Ledger interface {
	Claim(ctx context.Context, ev models.Event, workspaceID int64, ruleID *int64) (*ledger.Claim, error)
	Commit(ctx context.Context, c *ledger.Claim, succeeded bool, note string) (models.EventStatus, error)
	Lookup(ctx context.Context, eventID string) (*models.ProcessedEvent, *models.Event, error)
	List(ctx context.Context, workspaceID int64, status models.EventStatus, limit int) ([]*models.ProcessedEvent, error)
}

type ReplyComposer interface {
	Compose(ctx context.Context, rule *models.AutomationRule, ev models.Event, conv *models.ConversationContext, channel models.Channel) composer.Reply
}

type Dispatcher interface {
	Dispatch(ctx context.Context, acc *models.SocialAccount, ev models.Event, legs []dispatcher.Leg) dispatcher.Result
}

type UsageCounter interface {
	IncrementUsage(ctx context.Context, ruleID int64, dateKey string) (int, error)
}

type ConversationStore interface {
	GetOrCreateConversation(ctx context.Context, workspaceID int64, participantID, participantHandle string, historyLimit int) (*models.ConversationContext, error)
	AppendMessages(ctx context.Context, conversationID string, messages []models.ConversationMessage) error
	AddTopics(ctx context.Context, conversationID string, topics []string) error
}

type Config struct {
	Workers      int
	EventTimeout time.Duration
	HistoryLimit int
}

// Processor handles events concurrently, one goroutine per event, bounded by Workers.
type Processor struct {
	resolver      AccountResolver
	selector      RuleSelector
	ledger        Ledger
	composer      ReplyComposer
	dispatcher    Dispatcher
	usage         UsageCounter
	conversations ConversationStore
	cfg           Config
	logger        *zap.Logger
	now           func() time.Time

	sem     chan struct{}
	mu      sync.RWMutex
	closing bool
	wg      sync.WaitGroup
	baseCtx context.Context
	abort   context.CancelFunc
}

// NewProcessor creates a new event processor.
func NewProcessor(
	resolver AccountResolver,
	selector RuleSelector,
	ledger Ledger,
	composer ReplyComposer,
	dispatcher Dispatcher,
	usage UsageCounter,
	conversations ConversationStore,
	cfg Config,
	logger *zap.Logger,
) *Processor {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.EventTimeout <= 0 {
		cfg.EventTimeout = 5 * time.Minute
	}
	baseCtx, abort := context.WithCancel(context.Background())
	return &Processor{
		resolver:      resolver,
		selector:      selector,
		ledger:        ledger,
		composer:      composer,
		dispatcher:    dispatcher,
		usage:         usage,
		conversations: conversations,
		cfg:           cfg,
		logger:        logger,
		now:           time.Now,
		sem:           make(chan struct{}, cfg.Workers),
		baseCtx:       baseCtx,
		abort:         abort,
	}
}

// Submit schedules events for asynchronous processing and returns how many were accepted.
// Events are independent and may run concurrently.
func (p *Processor) Submit(events []models.Event) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closing {
		p.logger.Warn("Rejecting events, processor is shutting down", zap.Int("count", len(events)))
		return 0
	}

	for _, ev := range events {
		p.wg.Add(1)
		go func(ev models.Event) {
			defer p.wg.Done()

			select {
			case p.sem <- struct{}{}:
			case <-p.baseCtx.Done():
				return
			}
			defer func() { <-p.sem }()

			ctx, cancel := context.WithTimeout(p.baseCtx, p.cfg.EventTimeout)
			defer cancel()

			if _, err := p.Process(ctx, ev); err != nil {
				p.logger.Error("Failed to process event", zap.String("event_id", ev.EventID), zap.Error(err))
			}
		}(ev)
	}
	return len(events)
}

// Shutdown stops accepting events and waits for in-flight ones. If ctx ends first the
// remaining events are cancelled.
func (p *Processor) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closing = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.abort()
		return nil
	case <-ctx.Done():
		p.abort()
		<-done
		return ctx.Err()
	}
}

// Process runs one event through the whole pipeline. An error means the event was not
// recorded as handled and may be delivered again.
func (p *Processor) Process(ctx context.Context, ev models.Event) (Result, error) {
	res := Result{EventID: ev.EventID}
	log := p.logger.With(zap.String("event_id", ev.EventID), zap.String("event_type", string(ev.Type)))

	acc, err := p.resolver.Resolve(ctx, ev.ExternalAccountID, ev.ExternalPageID)
	if errors.Is(err, resolver.ErrAccountNotFound) {
		log.Warn("No account for event, dropping",
			zap.String("external_account_id", ev.ExternalAccountID),
			zap.String("external_page_id", ev.ExternalPageID))
		res.Outcome = OutcomeUnresolved
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("failed to resolve account: %w", err)
	}
	res.WorkspaceID = acc.WorkspaceID
	log = log.With(zap.Int64("workspace_id", acc.WorkspaceID), zap.Int64("account_id", acc.ID))

	// only the claim holder may take a daily cap slot
	claim, err := p.ledger.Claim(ctx, ev, acc.WorkspaceID, nil)
	if errors.Is(err, ledger.ErrAlreadyHandled) {
		log.Info("Event already handled, skipping")
		res.Outcome = OutcomeDuplicate
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("failed to claim event: %w", err)
	}

	// the outcome is recorded even when the event's own deadline has passed
	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	sel, err := p.selector.Select(ctx, acc.WorkspaceID, ev, p.now())
	if err != nil {
		err = fmt.Errorf("failed to select rule: %w", err)
		if _, cerr := p.ledger.Commit(commitCtx, claim, false, err.Error()); cerr != nil {
			log.Error("Failed to record selection failure", zap.Error(cerr))
		}
		return res, err
	}

	if sel.Rule == nil {
		if _, err := p.ledger.Commit(commitCtx, claim, true, sel.Note); err != nil {
			return res, err
		}
		log.Info("No rule applies", zap.String("note", sel.Note))
		res.Outcome = OutcomeNoAction
		res.Note = sel.Note
		return res, nil
	}
	claim.RuleID = &sel.Rule.ID
	res.RuleID = sel.Rule.ID
	log = log.With(zap.Int64("rule_id", sel.Rule.ID), zap.Int("attempt", claim.Attempt))

	conv, err := p.conversations.GetOrCreateConversation(ctx, acc.WorkspaceID, ev.SenderExternalID, ev.SenderHandle, p.cfg.HistoryLimit)
	if err != nil {
		log.Error("Failed to load conversation, replying without history", zap.Error(err))
		conv = nil
	}

	channels := dispatcher.LegsFor(sel.Rule, ev)
	legs := make([]dispatcher.Leg, 0, len(channels))
	for _, ch := range channels {
		reply := p.composer.Compose(ctx, sel.Rule, ev, conv, ch)
		log.Debug("Composed reply", zap.String("channel", string(ch)), zap.String("source", string(reply.Source)))
		legs = append(legs, dispatcher.Leg{Channel: ch, Text: reply.Text})
	}

	delivery := p.dispatcher.Dispatch(ctx, acc, ev, legs)
	succeeded := delivery.Succeeded()

	switch {
	case !succeeded:
		if err := p.selector.Release(commitCtx, sel); err != nil {
			log.Error("Failed to release daily cap slot", zap.String("date_key", sel.DateKey), zap.Error(err))
		}
	case !sel.Reserved:
		// uncapped rules are counted once delivered
		if _, err := p.usage.IncrementUsage(commitCtx, sel.Rule.ID, sel.DateKey); err != nil {
			log.Error("Failed to count rule usage", zap.String("date_key", sel.DateKey), zap.Error(err))
		}
	}

	status, err := p.ledger.Commit(commitCtx, claim, succeeded, delivery.Note())
	if err != nil {
		return res, err
	}

	res.Note = delivery.Note()
	switch {
	case status == models.EventStatusFailed:
		res.Outcome = OutcomeFailed
	case succeeded:
		res.Outcome = OutcomeSucceeded
	default:
		res.Outcome = OutcomeAbandoned
	}
	log.Info("Event processed", zap.String("outcome", string(res.Outcome)), zap.String("note", res.Note))

	if conv != nil {
		p.remember(commitCtx, log, conv, ev, claim.Attempt, delivery, sel.MatchedKeywords)
	}
	return res, nil
}

func (p *Processor) remember(ctx context.Context, log *zap.Logger, conv *models.ConversationContext, ev models.Event, attempt int, delivery dispatcher.Result, topics []string) {
	var msgs []models.ConversationMessage
	if attempt == 1 {
		inbound := models.ChannelDM
		if ev.Type == models.EventTypeComment {
			inbound = models.ChannelComment
		}
		at := ev.ReceivedAt
		if at.IsZero() {
			at = p.now()
		}
		msgs = append(msgs, models.ConversationMessage{Sender: models.SenderParticipant, Channel: inbound, Text: ev.Text, At: at})
	}
	sentAt := p.now()
	for _, leg := range delivery.Legs {
		if leg.Delivered {
			msgs = append(msgs, models.ConversationMessage{Sender: models.SenderAutomation, Channel: leg.Channel, Text: leg.Text, At: sentAt})
		}
	}
	if err := p.conversations.AppendMessages(ctx, conv.ConversationID, msgs); err != nil {
		log.Error("Failed to append conversation messages", zap.Error(err))
	}

	normalized := make([]string, 0, len(topics))
	for _, t := range topics {
		normalized = append(normalized, strings.ToLower(strings.TrimSpace(t)))
	}
	if err := p.conversations.AddTopics(ctx, conv.ConversationID, normalized); err != nil {
		log.Error("Failed to record conversation topics", zap.Error(err))
	}
}

// Replay runs a failed event of workspaceID again from its stored payload.
func (p *Processor) Replay(ctx context.Context, workspaceID int64, eventID string) (Result, error) {
	row, ev, err := p.ledger.Lookup(ctx, eventID)
	if err != nil && row == nil {
		return Result{EventID: eventID}, err
	}
	if row == nil || row.WorkspaceID != workspaceID {
		return Result{EventID: eventID}, ErrEventNotFound
	}
	if row.Status != models.EventStatusFailed {
		return Result{EventID: eventID}, ErrNotReplayable
	}
	if err != nil {
		return Result{EventID: eventID}, err
	}

	p.logger.Info("Replaying failed event", zap.String("event_id", eventID), zap.Int64("workspace_id", workspaceID))
	return p.Process(ctx, *ev)
}

// ReplayFailed replays up to limit failed events of a workspace, Workers at a time.
func (p *Processor) ReplayFailed(ctx context.Context, workspaceID int64, limit int) ([]Result, error) {
	p.mu.RLock()
	closing := p.closing
	p.mu.RUnlock()
	if closing {
		return nil, ErrShuttingDown
	}

	failed, err := p.ledger.List(ctx, workspaceID, models.EventStatusFailed, limit)
	if err != nil {
		return nil, err
	}

	results := make([]Result, len(failed))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)
	for i, row := range failed {
		g.Go(func() error {
			res, err := p.Replay(gctx, workspaceID, row.EventID)
			if err != nil {
				p.logger.Error("Replay failed", zap.String("event_id", row.EventID), zap.Error(err))
				res = Result{EventID: row.EventID, Outcome: OutcomeError, Note: err.Error()}
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
