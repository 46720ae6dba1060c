package summary_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dattmumas/lnked-realtime/internal/model"
	"github.com/dattmumas/lnked-realtime/internal/summary"
)

const localUser = "me"

func flatCache() *model.ConversationCache {
	return model.NewFlatConversationCache([]model.ConversationSummary{
		{ID: "conv-1", Title: "Editors"},
		{ID: "conv-2", Title: "Writers"},
	})
}

func pagedCache() *model.ConversationCache {
	return model.NewPaginatedConversationCache([][]model.ConversationSummary{
		{{ID: "conv-1", Title: "Editors"}},
		{{ID: "conv-2", Title: "Writers"}},
	})
}

func incoming(conv, sender, content string) model.Message {
	return model.Message{
		ID:             "m1",
		ConversationID: conv,
		SenderID:       sender,
		Content:        content,
		CreatedAt:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestApplyMessage_SetsLastMessageUnconditionally(t *testing.T) {
	out, updated := summary.ApplyMessage(flatCache(), incoming("conv-1", localUser, "hello"), localUser, "")
	require.True(t, updated)
	s, ok := out.Find("conv-1")
	require.True(t, ok)
	require.Equal(t, "hello", s.LastMessage.Content)
	require.Equal(t, 0, s.UnreadCount, "own message never counts as unread")
}

func TestApplyMessage_UnreadIncrementRule(t *testing.T) {
	cases := []struct {
		name   string
		sender string
		active string
		want   int
	}{
		{"peer message, conversation not active", "peer", "conv-2", 1},
		{"peer message, conversation active", "peer", "conv-1", 0},
		{"own message, conversation not active", localUser, "conv-2", 0},
		{"own message, conversation active", localUser, "conv-1", 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, updated := summary.ApplyMessage(flatCache(), incoming("conv-1", tc.sender, "hi"), localUser, tc.active)
			require.True(t, updated)
			s, _ := out.Find("conv-1")
			require.Equal(t, tc.want, s.UnreadCount)
		})
	}
}

func TestApplyMessage_MonotonicAcrossSequence(t *testing.T) {
	c := flatCache()
	for i := 0; i < 5; i++ {
		var updated bool
		c, updated = summary.ApplyMessage(c, incoming("conv-1", "peer", "hi"), localUser, "")
		require.True(t, updated)
	}
	s, _ := c.Find("conv-1")
	require.Equal(t, 5, s.UnreadCount)
	other, _ := c.Find("conv-2")
	require.Equal(t, 0, other.UnreadCount)
}

func TestApplyMessage_PaginatedShapeSameRule(t *testing.T) {
	in := pagedCache()
	out, updated := summary.ApplyMessage(in, incoming("conv-2", "peer", "hi"), localUser, "")
	require.True(t, updated)
	s, _ := out.Find("conv-2")
	require.Equal(t, 1, s.UnreadCount)
	require.Equal(t, "hi", s.LastMessage.Content)
	// input snapshot untouched
	orig, _ := in.Find("conv-2")
	require.Equal(t, 0, orig.UnreadCount)
	require.Nil(t, orig.LastMessage)
}

func TestApplyMessage_UnknownConversation(t *testing.T) {
	in := flatCache()
	out, updated := summary.ApplyMessage(in, incoming("conv-404", "peer", "hi"), localUser, "")
	require.False(t, updated)
	require.Same(t, in, out)
}

func TestSetUnread_ServerOverrideAndClamp(t *testing.T) {
	c, _ := summary.ApplyMessage(flatCache(), incoming("conv-1", "peer", "hi"), localUser, "")
	out, updated := summary.SetUnread(c, "conv-1", 7)
	require.True(t, updated)
	s, _ := out.Find("conv-1")
	require.Equal(t, 7, s.UnreadCount)

	out, _ = summary.SetUnread(out, "conv-1", -3)
	s, _ = out.Find("conv-1")
	require.Equal(t, 0, s.UnreadCount)
}

func TestMarkRead(t *testing.T) {
	c, _ := summary.ApplyMessage(flatCache(), incoming("conv-1", "peer", "hi"), localUser, "")
	out, updated := summary.MarkRead(c, "conv-1")
	require.True(t, updated)
	s, _ := out.Find("conv-1")
	require.Equal(t, 0, s.UnreadCount)
}
