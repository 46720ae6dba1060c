package cache_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dattmumas/lnked-realtime/internal/cache"
	"github.com/dattmumas/lnked-realtime/internal/model"
)

func msg(id, opt, content string) model.Message {
	return model.Message{
		ID:             id,
		OptimisticID:   opt,
		ConversationID: "conv-1",
		SenderID:       "alice",
		Content:        content,
		CreatedAt:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func twoPageCache() *model.MessageCache {
	return &model.MessageCache{Pages: []model.Page{
		{Messages: []model.Message{msg("m3", "", "newest"), msg("m4", "", "newer")}, HasMore: true},
		{Messages: []model.Message{msg("m1", "", "old"), msg("m2", "", "older")}, HasMore: false},
	}}
}

func TestMergeMessage_SeedsNilCache(t *testing.T) {
	c, updated := cache.MergeMessage(nil, msg("m1", "", "hello"))
	require.True(t, updated)
	require.Len(t, c.Pages, 1)
	require.Len(t, c.Pages[0].Messages, 1)
	require.Equal(t, "m1", c.Pages[0].Messages[0].ID)
	require.False(t, c.Pages[0].HasMore)
}

func TestMergeMessage_AppendsToNewestPage(t *testing.T) {
	in := twoPageCache()
	out, updated := cache.MergeMessage(in, msg("m5", "", "fresh"))
	require.True(t, updated)
	require.Len(t, out.Pages[0].Messages, 3)
	require.Equal(t, "m5", out.Pages[0].Messages[2].ID)
	// untouched page is shared, input unchanged
	require.Len(t, in.Pages[0].Messages, 2)
	require.Same(t, &in.Pages[1].Messages[0], &out.Pages[1].Messages[0])
}

func TestMergeMessage_DuplicateIsIdempotent(t *testing.T) {
	first, updated := cache.MergeMessage(nil, msg("m1", "", "hello"))
	require.True(t, updated)
	second, updated := cache.MergeMessage(first, msg("m1", "", "hello"))
	require.False(t, updated)
	require.Same(t, first, second)
}

func TestMergeMessage_MatchesByOptimisticID(t *testing.T) {
	c, _ := cache.MergeMessage(nil, msg("", "opt-1", "pending"))
	out, updated := cache.MergeMessage(c, msg("", "opt-1", "pending"))
	require.False(t, updated)
	require.Equal(t, 1, out.Len())
}

func TestReplaceOptimistic_PreservesSlot(t *testing.T) {
	in := &model.MessageCache{Pages: []model.Page{
		{Messages: []model.Message{msg("m1", "", "a"), msg("", "opt-1", "pending"), msg("m2", "", "b")}},
	}}
	real := msg("m9", "opt-1", "confirmed")
	out, updated := cache.ReplaceOptimistic(in, real)
	require.True(t, updated)
	require.Equal(t, in.Len(), out.Len())
	got := out.Pages[0].Messages[1]
	require.Equal(t, "m9", got.ID)
	require.Empty(t, got.OptimisticID)
	// input untouched
	require.Equal(t, "opt-1", in.Pages[0].Messages[1].OptimisticID)
}

func TestReplaceOptimistic_MissingTargetIsNotAnError(t *testing.T) {
	in := twoPageCache()
	out, updated := cache.ReplaceOptimistic(in, msg("m9", "opt-gone", "confirmed"))
	require.False(t, updated)
	require.Same(t, in, out)
}

func TestRemoveOptimistic_FiltersEveryPage(t *testing.T) {
	in := &model.MessageCache{Pages: []model.Page{
		{Messages: []model.Message{msg("", "opt-1", "pending"), msg("m1", "", "a")}},
		{Messages: []model.Message{msg("m2", "", "b"), msg("", "opt-1", "pending")}},
	}}
	out, updated := cache.RemoveOptimistic(in, "opt-1")
	require.True(t, updated)
	require.Equal(t, 2, out.Len())
	_, _, _, found := out.Find("opt-1")
	require.False(t, found)

	again, updated := cache.RemoveOptimistic(out, "opt-1")
	require.False(t, updated)
	require.Same(t, out, again)
}

func TestApplyChanges_ShallowOverlay(t *testing.T) {
	in := twoPageCache()
	edited := "edited"
	out, updated := cache.ApplyChanges(in, "m1", model.MessageChanges{Content: &edited})
	require.True(t, updated)
	m, _, _, ok := out.Find("m1")
	require.True(t, ok)
	require.Equal(t, "edited", m.Content)

	// same change again is a no-op
	again, updated := cache.ApplyChanges(out, "m1", model.MessageChanges{Content: &edited})
	require.False(t, updated)
	require.Same(t, out, again)
}

func TestApplyDelete_SoftDeleteKeepsSlot(t *testing.T) {
	in := twoPageCache()
	out, updated := cache.ApplyDelete(in, "m2")
	require.True(t, updated)
	require.Equal(t, in.Len(), out.Len())
	m, _, _, _ := out.Find("m2")
	require.True(t, m.Deleted)
	require.Empty(t, m.Content)

	again, updated := cache.ApplyDelete(out, "m2")
	require.False(t, updated)
	require.Same(t, out, again)
}

func TestApplyDelete_UnknownKey(t *testing.T) {
	in := twoPageCache()
	out, updated := cache.ApplyDelete(in, "nope")
	require.False(t, updated)
	require.Same(t, in, out)
}

func TestApplyReaction_AddRemoveRoundTrip(t *testing.T) {
	in := twoPageCache()
	add := model.ReactionDelta{Action: model.ReactionAdded, MessageID: "m1", UserID: "bob", Reaction: "heart"}

	out, updated := cache.ApplyReaction(in, add)
	require.True(t, updated)
	m, _, _, _ := out.Find("m1")
	require.Equal(t, []string{"bob"}, m.Reactions["heart"])

	dup, updated := cache.ApplyReaction(out, add)
	require.False(t, updated)
	require.Same(t, out, dup)

	rm := add
	rm.Action = model.ReactionRemoved
	out2, updated := cache.ApplyReaction(out, rm)
	require.True(t, updated)
	m, _, _, _ = out2.Find("m1")
	require.Empty(t, m.Reactions)

	// removing again is a duplicate delivery
	_, updated = cache.ApplyReaction(out2, rm)
	require.False(t, updated)
}

func TestApplyReadReceipt(t *testing.T) {
	in := twoPageCache()
	at := time.Date(2026, 3, 1, 12, 5, 0, 0, time.UTC)
	r := model.ReadReceipt{UserID: "bob", MessageID: "m1", ReadAt: at}

	out, updated := cache.ApplyReadReceipt(in, r)
	require.True(t, updated)
	m, _, _, _ := out.Find("m1")
	require.Equal(t, at, m.ReadBy["bob"])

	// same receipt again does not move anything
	again, updated := cache.ApplyReadReceipt(out, r)
	require.False(t, updated)
	require.Same(t, out, again)

	// a later read time advances the entry
	later := r
	later.ReadAt = at.Add(time.Minute)
	out2, updated := cache.ApplyReadReceipt(out, later)
	require.True(t, updated)
	m, _, _, _ = out2.Find("m1")
	require.Equal(t, later.ReadAt, m.ReadBy["bob"])
}
