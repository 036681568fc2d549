package service

import (
	"context"
	"strings"
	"testing"

	"github.com/damoang/angple-chat/internal/common"
	"github.com/damoang/angple-chat/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSend_ContentLength(t *testing.T) {
	f := newFixture(t)
	svc := f.messageService(nil)
	ctx := context.Background()
	alice := f.user(t, "alice", "Alice")
	bob := f.user(t, "bob", "Bob")
	conv, _, err := f.conversationService().CreateOrGetDirect(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{"empty", "", true},
		{"whitespace only", "   \n\t ", true},
		{"one char", "a", false},
		{"exactly 1000", strings.Repeat("a", 1000), false},
		{"1000 after trim", "  " + strings.Repeat("b", 1000) + "  ", false},
		{"1000 multibyte", strings.Repeat("가", 1000), false},
		{"1001", strings.Repeat("a", 1001), true},
		{"1001 multibyte", strings.Repeat("가", MaxMessageLength+1), true},
	}
	// 상한은 설정으로 바꿀 수 없는 고정값
	require.Equal(t, 1000, MaxMessageLength)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := svc.Send(ctx, alice.ID, conv.ID, tt.content)
			if tt.wantErr {
				assert.ErrorIs(t, err, common.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, strings.TrimSpace(tt.content), msg.Content)
			assert.Equal(t, alice.ID, msg.SenderID)
		})
	}
}

func TestNonParticipantIsForbidden(t *testing.T) {
	f := newFixture(t)
	svc := f.messageService(nil)
	ctx := context.Background()
	alice := f.user(t, "alice", "Alice")
	bob := f.user(t, "bob", "Bob")
	mallory := f.user(t, "mallory", "Mallory")
	conv, _, err := f.conversationService().CreateOrGetDirect(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	msg, err := svc.Send(ctx, alice.ID, conv.ID, "private")
	require.NoError(t, err)

	_, err = svc.Send(ctx, mallory.ID, conv.ID, "hi")
	assert.ErrorIs(t, err, common.ErrForbidden)

	_, err = svc.List(ctx, mallory.ID, conv.ID)
	assert.ErrorIs(t, err, common.ErrForbidden)

	_, err = svc.ToggleReaction(ctx, mallory.ID, msg.ID, "👍")
	assert.ErrorIs(t, err, common.ErrForbidden)

	_, err = svc.Send(ctx, alice.ID, 9999, "hi")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestList_OldestFirstWithSender(t *testing.T) {
	f := newFixture(t)
	svc := f.messageService(nil)
	ctx := context.Background()
	alice := f.user(t, "alice", "Alice")
	bob := f.user(t, "bob", "Bob")
	conv, _, err := f.conversationService().CreateOrGetDirect(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	for _, text := range []string{"one", "two", "three"} {
		_, err := svc.Send(ctx, alice.ID, conv.ID, text)
		require.NoError(t, err)
	}
	_, err = svc.Send(ctx, bob.ID, conv.ID, "four")
	require.NoError(t, err)

	msgs, err := svc.List(ctx, bob.ID, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	assert.Equal(t, "one", msgs[0].Content)
	assert.Equal(t, "four", msgs[3].Content)
	require.NotNil(t, msgs[3].Sender)
	assert.Equal(t, "Bob", msgs[3].Sender.Name)
	for i := 1; i < len(msgs); i++ {
		assert.Greater(t, msgs[i].ID, msgs[i-1].ID)
	}
}

func TestSoftDelete_LeavesTombstone(t *testing.T) {
	f := newFixture(t)
	svc := f.messageService(nil)
	ctx := context.Background()
	alice := f.user(t, "alice", "Alice")
	bob := f.user(t, "bob", "Bob")
	conv, _, err := f.conversationService().CreateOrGetDirect(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	msg, err := svc.Send(ctx, alice.ID, conv.ID, "oops")
	require.NoError(t, err)
	_, err = svc.ToggleReaction(ctx, bob.ID, msg.ID, "😂")
	require.NoError(t, err)

	_, err = svc.SoftDelete(ctx, bob.ID, msg.ID)
	assert.ErrorIs(t, err, common.ErrForbidden, "only the sender may delete")

	deleted, err := svc.SoftDelete(ctx, alice.ID, msg.ID)
	require.NoError(t, err)
	assert.True(t, deleted.IsDeleted)
	assert.Empty(t, deleted.Content)
	assert.Empty(t, deleted.Reactions)

	msgs, err := svc.List(ctx, bob.ID, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, msg.ID, msgs[0].ID)
	assert.True(t, msgs[0].IsDeleted)
	assert.Empty(t, msgs[0].Content)
	assert.Empty(t, msgs[0].Reactions)
	assert.True(t, msgs[0].CreatedAt.Equal(msg.CreatedAt))

	// 두 번 지워도 그대로
	again, err := svc.SoftDelete(ctx, alice.ID, msg.ID)
	require.NoError(t, err)
	assert.True(t, again.IsDeleted)

	_, err = svc.SoftDelete(ctx, alice.ID, 9999)
	assert.ErrorIs(t, err, common.ErrNotFound)

	assert.Contains(t, f.pub.types(), events.TypeMessageDeleted)
}

func TestToggleReaction_PairToggle(t *testing.T) {
	f := newFixture(t)
	svc := f.messageService(nil)
	ctx := context.Background()
	alice := f.user(t, "alice", "Alice")
	bob := f.user(t, "bob", "Bob")
	conv, _, err := f.conversationService().CreateOrGetDirect(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	msg, err := svc.Send(ctx, alice.ID, conv.ID, "nice")
	require.NoError(t, err)

	_, err = svc.ToggleReaction(ctx, alice.ID, msg.ID, "❤️")
	require.NoError(t, err)

	added, err := svc.ToggleReaction(ctx, bob.ID, msg.ID, "👍")
	require.NoError(t, err)
	require.Len(t, added.Reactions, 2)

	removed, err := svc.ToggleReaction(ctx, bob.ID, msg.ID, "👍")
	require.NoError(t, err)
	require.Len(t, removed.Reactions, 1)
	assert.Equal(t, alice.ID, removed.Reactions[0].UserID)
	assert.Equal(t, "❤️", removed.Reactions[0].Emoji)

	// 다른 이모지는 별개의 쌍
	_, err = svc.ToggleReaction(ctx, bob.ID, msg.ID, "❤️")
	require.NoError(t, err)
	both, err := svc.ToggleReaction(ctx, bob.ID, msg.ID, "😮")
	require.NoError(t, err)
	assert.Len(t, both.Reactions, 3)

	_, err = svc.ToggleReaction(ctx, bob.ID, msg.ID, "  ")
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestSend_TriggerTokenSchedulesAI(t *testing.T) {
	f := newFixture(t)
	sched := &fakeScheduler{}
	svc := f.messageService(sched)
	ctx := context.Background()
	alice := f.user(t, "alice", "Alice")
	bob := f.user(t, "bob", "Bob")
	carol := f.user(t, "carol", "Carol")
	convID := f.group(t, alice, bob, carol)

	_, err := svc.Send(ctx, alice.ID, convID, "just chatting")
	require.NoError(t, err)
	_, err = svc.Send(ctx, alice.ID, convID, "  @AI what time is it?  ")
	require.NoError(t, err)

	assert.Equal(t, []string{"@AI what time is it?"}, sched.calls)
	assert.Contains(t, f.pub.types(), events.TypeMessageCreated)
}
