package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/veefedtechnologies-coder/Veefore-sub010/internal/models"
	"github.com/veefedtechnologies-coder/Veefore-sub010/internal/repository"
	"github.com/veefedtechnologies-coder/Veefore-sub010/internal/repository/repositorytest"
)

type recordingAlerter struct {
	mu       sync.Mutex
	messages []string
}

func (r *recordingAlerter) Notify(_ context.Context, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, text)
}

func newLedger(t *testing.T, maxAttempts int) (*Ledger, *recordingAlerter) {
	db := repositorytest.Open(t)
	alerts := &recordingAlerter{}
	l := New(repository.NewProcessedEventRepository(db, zap.NewNop()), alerts, 10*time.Minute, maxAttempts, zap.NewNop())
	return l, alerts
}

func testEvent(id string) models.Event {
	return models.Event{EventID: id, Type: models.EventTypeComment, ExternalAccountID: "ig-1", Text: "free?"}
}

func TestLedger_DuplicateClaimsAreRejected(t *testing.T) {
	l, _ := newLedger(t, 5)
	ctx := context.Background()

	c, err := l.Claim(ctx, testEvent("e-1"), 1, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Attempt)

	_, err = l.Claim(ctx, testEvent("e-1"), 1, nil)
	assert.ErrorIs(t, err, ErrAlreadyHandled)

	status, err := l.Commit(ctx, c, true, "sent")
	require.NoError(t, err)
	assert.Equal(t, models.EventStatusSucceeded, status)

	_, err = l.Claim(ctx, testEvent("e-1"), 1, nil)
	assert.ErrorIs(t, err, ErrAlreadyHandled)
}

func TestLedger_ConcurrentClaimsHaveOneWinner(t *testing.T) {
	l, _ := newLedger(t, 5)
	ctx := context.Background()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Claim(ctx, testEvent("e-race"), 1, nil); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, ErrAlreadyHandled)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestLedger_FailedEventsAreRetriedUntilAbandoned(t *testing.T) {
	l, alerts := newLedger(t, 2)
	ctx := context.Background()
	ruleID := int64(9)

	c, err := l.Claim(ctx, testEvent("e-2"), 1, &ruleID)
	require.NoError(t, err)
	status, err := l.Commit(ctx, c, false, "dm: rate limited")
	require.NoError(t, err)
	assert.Equal(t, models.EventStatusFailed, status)

	c, err = l.Claim(ctx, testEvent("e-2"), 1, &ruleID)
	require.NoError(t, err, "failed events are re-claimable")
	assert.Equal(t, 2, c.Attempt)

	status, err = l.Commit(ctx, c, false, "dm: rate limited")
	require.NoError(t, err)
	assert.Equal(t, models.EventStatusSucceeded, status)
	require.Len(t, alerts.messages, 1)
	assert.Contains(t, alerts.messages[0], "e-2")

	row, ev, err := l.Lookup(ctx, "e-2")
	require.NoError(t, err)
	assert.Equal(t, 2, row.AttemptCount)
	assert.Contains(t, row.Note, "abandoned after 2 attempts")
	require.NotNil(t, row.RuleID)
	assert.Equal(t, ruleID, *row.RuleID)
	assert.Equal(t, "free?", ev.Text)

	_, err = l.Claim(ctx, testEvent("e-2"), 1, &ruleID)
	assert.ErrorIs(t, err, ErrAlreadyHandled)
}

func TestLedger_RuleChosenAfterClaimIsStored(t *testing.T) {
	l, _ := newLedger(t, 3)
	ctx := context.Background()

	c, err := l.Claim(ctx, testEvent("e-late-rule"), 1, nil)
	require.NoError(t, err)
	ruleID := int64(4)
	c.RuleID = &ruleID

	_, err = l.Commit(ctx, c, true, "")
	require.NoError(t, err)

	row, _, err := l.Lookup(ctx, "e-late-rule")
	require.NoError(t, err)
	require.NotNil(t, row.RuleID)
	assert.Equal(t, ruleID, *row.RuleID)
}

func TestLedger_StaleClaimCanBeTakenOver(t *testing.T) {
	l, _ := newLedger(t, 5)
	ctx := context.Background()

	crashed := time.Now().Add(-time.Hour)
	l.now = func() time.Time { return crashed }
	stale, err := l.Claim(ctx, testEvent("e-3"), 1, nil)
	require.NoError(t, err)

	l.now = time.Now
	fresh, err := l.Claim(ctx, testEvent("e-3"), 1, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, fresh.Attempt)

	_, err = l.Commit(ctx, stale, true, "late")
	assert.ErrorIs(t, err, repository.ErrClaimLost)

	status, err := l.Commit(ctx, fresh, true, "sent")
	require.NoError(t, err)
	assert.Equal(t, models.EventStatusSucceeded, status)
}

func TestLedger_LookupUnknown(t *testing.T) {
	l, _ := newLedger(t, 5)
	row, ev, err := l.Lookup(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, row)
	assert.Nil(t, ev)
}
