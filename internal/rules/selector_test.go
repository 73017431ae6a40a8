package rules

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/veefedtechnologies-coder/Veefore-sub010/internal/models"
)

type staticRules []*models.AutomationRule

func (s staticRules) ListActiveRules(context.Context, int64) ([]*models.AutomationRule, error) {
	return s, nil
}

func rule(id int64, kind models.RuleKind, updated time.Time, keywords ...string) *models.AutomationRule {
	return &models.AutomationRule{
		ID: id, WorkspaceID: 1, Kind: kind, IsActive: true, UpdatedAt: updated,
		Triggers: models.Triggers{Keywords: keywords, FiresOnComment: true, FiresOnDirectMessage: true},
	}
}

func commentEvent(text string) models.Event {
	return models.Event{EventID: "c-1", Type: models.EventTypeComment, Text: text}
}

func TestRank_Precedence(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	catchAllNew := rule(1, models.RuleKindCommentToDM, t0.Add(3*time.Hour))
	dmKeyword := rule(2, models.RuleKindDM, t0.Add(2*time.Hour), "price")
	c2dOld := rule(3, models.RuleKindCommentToDM, t0, "price")
	c2dNew := rule(4, models.RuleKindCommentToDM, t0.Add(time.Hour), "price")
	nonMatching := rule(5, models.RuleKindCommentToDM, t0.Add(5*time.Hour), "shipping")
	inactive := rule(6, models.RuleKindCommentToDM, t0.Add(6*time.Hour), "price")
	inactive.IsActive = false

	got := Rank([]*models.AutomationRule{catchAllNew, dmKeyword, c2dOld, c2dNew, nonMatching, inactive}, commentEvent("what's the price?"))

	ids := make([]int64, len(got))
	for i, c := range got {
		ids[i] = c.Rule.ID
	}
	assert.Equal(t, []int64{4, 3, 2, 1}, ids)
	assert.Equal(t, []string{"price"}, got[0].Matched)
	assert.Nil(t, got[3].Matched)
}

func TestRank_EventTypeCapability(t *testing.T) {
	dmOnly := &models.AutomationRule{ID: 1, Kind: models.RuleKindDM, IsActive: true,
		Triggers: models.Triggers{FiresOnDirectMessage: true}}
	commentToDM := &models.AutomationRule{ID: 2, Kind: models.RuleKindCommentToDM, IsActive: true}

	comment := Rank([]*models.AutomationRule{dmOnly, commentToDM}, commentEvent("hi"))
	require.Len(t, comment, 1)
	assert.Equal(t, int64(2), comment[0].Rule.ID, "comment_to_dm implies firesOnComment")

	dm := Rank([]*models.AutomationRule{dmOnly, commentToDM}, models.Event{Type: models.EventTypeDirectMessage, Text: "hi"})
	require.Len(t, dm, 1)
	assert.Equal(t, int64(1), dm[0].Rule.ID)
}

func TestSelect_FallsThroughGatedRules(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	gated := rule(1, models.RuleKindCommentToDM, t0.Add(time.Hour), "free")
	gated.Action.ActiveWindow = models.ActiveWindow{Enabled: true, ActiveWeekdays: []int{int(time.Sunday)}, EndMinuteOfDay: 1439}
	fallback := rule(2, models.RuleKindCommentToDM, t0)

	s := NewSelector(staticRules{gated, fallback}, NewGate(&fakeUsage{}, zap.NewNop()), zap.NewNop())
	sel, err := s.Select(context.Background(), 1, commentEvent("free stuff"), wednesday)
	require.NoError(t, err)
	require.NotNil(t, sel.Rule)
	assert.Equal(t, int64(2), sel.Rule.ID)
	assert.Equal(t, "2024-05-01", sel.DateKey)
}

func TestSelect_NothingSelected(t *testing.T) {
	s := NewSelector(staticRules{rule(1, models.RuleKindCommentToDM, wednesday, "free")},
		NewGate(&fakeUsage{counts: map[string]int{"2024-05-01": 1}}, zap.NewNop()), zap.NewNop())

	sel, err := s.Select(context.Background(), 1, commentEvent("nice post"), wednesday)
	require.NoError(t, err)
	assert.Nil(t, sel.Rule)
	assert.Equal(t, NoteNoMatchingRule, sel.Note)

	capped := rule(2, models.RuleKindCommentToDM, wednesday, "free")
	capped.Action.MaxPerDay = 1
	s = NewSelector(staticRules{capped}, NewGate(&fakeUsage{counts: map[string]int{"2024-05-01": 1}}, zap.NewNop()), zap.NewNop())
	sel, err = s.Select(context.Background(), 1, commentEvent("free"), wednesday)
	require.NoError(t, err)
	assert.Nil(t, sel.Rule)
	assert.Equal(t, "gated: "+ReasonDailyCap, sel.Note)
}

func TestSelect_ReservesCapSlotUntilReleased(t *testing.T) {
	capped := rule(1, models.RuleKindCommentToDM, wednesday, "free")
	capped.Action.MaxPerDay = 1
	fallback := rule(2, models.RuleKindCommentToDM, wednesday.Add(-time.Hour))
	usage := &fakeUsage{}
	s := NewSelector(staticRules{capped, fallback}, NewGate(usage, zap.NewNop()), zap.NewNop())
	ctx := context.Background()

	first, err := s.Select(ctx, 1, commentEvent("free"), wednesday)
	require.NoError(t, err)
	require.NotNil(t, first.Rule)
	assert.Equal(t, int64(1), first.Rule.ID)
	assert.True(t, first.Reserved)

	second, err := s.Select(ctx, 1, commentEvent("free"), wednesday)
	require.NoError(t, err)
	require.NotNil(t, second.Rule)
	assert.Equal(t, int64(2), second.Rule.ID, "the capped rule is full until its slot is released")
	assert.False(t, second.Reserved)
	require.NoError(t, s.Release(ctx, second), "releasing an uncapped selection is a no-op")

	require.NoError(t, s.Release(ctx, first))
	third, err := s.Select(ctx, 1, commentEvent("free"), wednesday)
	require.NoError(t, err)
	assert.Equal(t, int64(1), third.Rule.ID)
}
