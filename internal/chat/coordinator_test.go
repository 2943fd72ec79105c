// Brewline - Coffee Chat Marketplace Messaging Engine
// Copyright 2026 Brewline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/brewline/brewline

package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brewline/brewline/internal/config"
	"github.com/brewline/brewline/internal/identity"
	"github.com/brewline/brewline/internal/models"
	"github.com/brewline/brewline/internal/store"
)

// recordingSink captures post-commit events for assertions.
type recordingSink struct {
	mu       sync.Mutex
	messages []*models.MessageView
	reads    []string
}

func (s *recordingSink) MessageCreated(v *models.MessageView) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, v)
}

func (s *recordingSink) ThreadRead(threadID, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads = append(s.reads, threadID+"/"+userID)
}

func (s *recordingSink) messageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

func newTestCoordinator(t *testing.T) (*Coordinator, *store.Store, *recordingSink) {
	t.Helper()

	st, err := store.Open(config.DatabaseConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	sink := &recordingSink{}
	return NewCoordinator(st, identity.NewMemoryDirectory(), sink), st, sink
}

func seeker(id string) *identity.Subject {
	return &identity.Subject{UserID: id, Role: identity.RoleSeeker}
}

func professional(id string) *identity.Subject {
	return &identity.Subject{UserID: id, Role: identity.RoleProfessional}
}

func TestCreateThreadGetOrCreate(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	first, err := c.CreateThread(ctx, seeker("alice"), CreateThreadInput{OtherUserID: "bob"})
	require.NoError(t, err)

	// Same pair from the other side lands on the same thread.
	second, err := c.CreateThread(ctx, professional("bob"), CreateThreadInput{OtherUserID: "alice"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestCreateThreadWithInitialMessage(t *testing.T) {
	c, _, sink := newTestCoordinator(t)
	ctx := context.Background()

	thread, err := c.CreateThread(ctx, seeker("alice"), CreateThreadInput{
		OtherUserID:    "bob",
		InitialMessage: "hi bob, saw your profile",
	})
	require.NoError(t, err)
	require.NotNil(t, thread.LastMessage)
	assert.Equal(t, "hi bob, saw your profile", thread.LastMessage.Content)
	assert.Equal(t, 1, sink.messageCount())

	// The seed message counts as unread for the other participant.
	bobView, err := c.GetThread(ctx, professional("bob"), thread.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, bobView.UnreadCount)

	// Re-opening an existing pair with another seed appends to the same
	// thread instead of creating a new one.
	again, err := c.CreateThread(ctx, professional("bob"), CreateThreadInput{
		OtherUserID:    "alice",
		InitialMessage: "hey alice",
	})
	require.NoError(t, err)
	assert.Equal(t, thread.ID, again.ID)
	assert.Equal(t, "hey alice", again.LastMessage.Content)
	assert.Equal(t, 2, sink.messageCount())
}

func TestCreateThreadSelfRejected(t *testing.T) {
	c, _, _ := newTestCoordinator(t)

	_, err := c.CreateThread(context.Background(), seeker("alice"), CreateThreadInput{OtherUserID: "alice"})
	assert.ErrorIs(t, err, ErrSelfThread)
}

func TestSendMessageUpdatesThreadState(t *testing.T) {
	c, _, sink := newTestCoordinator(t)
	ctx := context.Background()

	thread, err := c.CreateThread(ctx, seeker("alice"), CreateThreadInput{OtherUserID: "bob"})
	require.NoError(t, err)

	view, err := c.SendMessage(ctx, seeker("alice"), SendMessageInput{
		ThreadID: thread.ID,
		Content:  "hello bob",
		Type:     models.MessageTypeText,
	})
	require.NoError(t, err)
	assert.Equal(t, "alice", view.Sender.ID)
	assert.False(t, view.IsRead)

	// Recipient sees one unread and the cached last message.
	bobView, err := c.GetThread(ctx, professional("bob"), thread.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, bobView.UnreadCount)
	require.NotNil(t, bobView.LastMessage)
	assert.Equal(t, "hello bob", bobView.LastMessage.Content)

	// Sender's own counter stays at zero.
	aliceView, err := c.GetThread(ctx, seeker("alice"), thread.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, aliceView.UnreadCount)

	// Exactly one event for the committed message.
	assert.Equal(t, 1, sink.messageCount())
}

func TestSendMessageNotParticipant(t *testing.T) {
	c, _, sink := newTestCoordinator(t)
	ctx := context.Background()

	thread, err := c.CreateThread(ctx, seeker("alice"), CreateThreadInput{OtherUserID: "bob"})
	require.NoError(t, err)

	_, err = c.SendMessage(ctx, seeker("mallory"), SendMessageInput{
		ThreadID: thread.ID,
		Content:  "let me in",
		Type:     models.MessageTypeText,
	})
	assert.ErrorIs(t, err, ErrNotParticipant)

	// Nothing persisted, nothing emitted.
	assert.Equal(t, 0, sink.messageCount())
}

func TestSendMessageReplyCrossThreadRejected(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	t1, err := c.CreateThread(ctx, seeker("alice"), CreateThreadInput{OtherUserID: "bob"})
	require.NoError(t, err)
	t2, err := c.CreateThread(ctx, seeker("alice"), CreateThreadInput{OtherUserID: "carol"})
	require.NoError(t, err)

	orig, err := c.SendMessage(ctx, seeker("alice"), SendMessageInput{
		ThreadID: t1.ID, Content: "original", Type: models.MessageTypeText,
	})
	require.NoError(t, err)

	_, err = c.SendMessage(ctx, seeker("alice"), SendMessageInput{
		ThreadID: t2.ID,
		Content:  "replying across threads",
		Type:     models.MessageTypeReply,
		ReplyTo:  orig.ID,
	})
	assert.ErrorIs(t, err, ErrReplyWrongThread)
}

func TestSendMessageReactivatesArchivedThread(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	thread, err := c.CreateThread(ctx, seeker("alice"), CreateThreadInput{OtherUserID: "bob"})
	require.NoError(t, err)
	require.NoError(t, c.ArchiveThread(ctx, seeker("alice"), thread.ID))

	_, err = c.SendMessage(ctx, professional("bob"), SendMessageInput{
		ThreadID: thread.ID, Content: "still here?", Type: models.MessageTypeText,
	})
	require.NoError(t, err)

	view, err := c.GetThread(ctx, seeker("alice"), thread.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ThreadStatusActive, view.Status)
}

func TestInitialMessageReactivatesArchivedThread(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	thread, err := c.CreateThread(ctx, seeker("alice"), CreateThreadInput{OtherUserID: "bob"})
	require.NoError(t, err)
	require.NoError(t, c.ArchiveThread(ctx, seeker("alice"), thread.ID))

	// Re-opening the pair with a seed message lands on the archived thread
	// and brings it back, same as a direct send would.
	again, err := c.CreateThread(ctx, professional("bob"), CreateThreadInput{
		OtherUserID:    "alice",
		InitialMessage: "picking this back up",
	})
	require.NoError(t, err)
	require.Equal(t, thread.ID, again.ID)
	assert.Equal(t, models.ThreadStatusActive, again.Status)
}

func TestSystemMessageReactivatesArchivedThread(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	thread, err := c.CreateThread(ctx, seeker("alice"), CreateThreadInput{OtherUserID: "bob"})
	require.NoError(t, err)
	require.NoError(t, c.ArchiveThread(ctx, seeker("alice"), thread.ID))

	svc := &identity.Subject{UserID: "payments-svc", Role: identity.RoleService}
	_, err = c.AppendSystemMessage(ctx, svc, thread.ID, "Payment received", &models.MessageMetadata{
		PaymentID: "pay_456",
		Status:    "succeeded",
	})
	require.NoError(t, err)

	view, err := c.GetThread(ctx, seeker("alice"), thread.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ThreadStatusActive, view.Status)
}

func TestTimeProposalSlotsRoundTrip(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	thread, err := c.CreateThread(ctx, seeker("alice"), CreateThreadInput{OtherUserID: "bob"})
	require.NoError(t, err)

	slots := []models.TimeSlot{
		{Date: "2026-09-10", Time: "09:00"},
		{Date: "2026-09-09", Time: "16:30"},
		{Date: "2026-09-11", Time: "11:15"},
	}
	sent, err := c.SendMessage(ctx, seeker("alice"), SendMessageInput{
		ThreadID: thread.ID,
		Content:  "How about one of these?",
		Type:     models.MessageTypeTimeProposal,
		Metadata: &models.MessageMetadata{TimeSlots: slots},
	})
	require.NoError(t, err)

	// The candidate list reads back exactly as proposed, in proposal order,
	// not re-sorted chronologically.
	msgs, err := c.ListMessages(ctx, professional("bob"), thread.ID, time.Time{}, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, sent.ID, msgs[0].ID)
	require.NotNil(t, msgs[0].Metadata)
	assert.Equal(t, slots, msgs[0].Metadata.TimeSlots)

	confirmed := &models.TimeSlot{Date: "2026-09-09", Time: "16:30"}
	_, err = c.SendMessage(ctx, professional("bob"), SendMessageInput{
		ThreadID: thread.ID,
		Content:  "Tuesday works",
		Type:     models.MessageTypeTimeConfirmation,
		Metadata: &models.MessageMetadata{ConfirmedSlot: confirmed},
	})
	require.NoError(t, err)

	msgs, err = c.ListMessages(ctx, seeker("alice"), thread.ID, time.Time{}, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.NotNil(t, msgs[1].Metadata)
	assert.Equal(t, confirmed, msgs[1].Metadata.ConfirmedSlot)
}

func TestMarkThreadReadIdempotent(t *testing.T) {
	c, _, sink := newTestCoordinator(t)
	ctx := context.Background()

	thread, err := c.CreateThread(ctx, seeker("alice"), CreateThreadInput{OtherUserID: "bob"})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = c.SendMessage(ctx, seeker("alice"), SendMessageInput{
			ThreadID: thread.ID, Content: "ping", Type: models.MessageTypeText,
		})
		require.NoError(t, err)
	}

	require.NoError(t, c.MarkThreadRead(ctx, professional("bob"), thread.ID))

	view, err := c.GetThread(ctx, professional("bob"), thread.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, view.UnreadCount)

	// Every message from alice is now flagged read.
	msgs, err := c.ListMessages(ctx, professional("bob"), thread.ID, time.Time{}, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	for _, m := range msgs {
		assert.True(t, m.IsRead)
	}

	// Second acknowledgement changes nothing and emits nothing new.
	require.NoError(t, c.MarkThreadRead(ctx, professional("bob"), thread.ID))
	sink.mu.Lock()
	reads := len(sink.reads)
	sink.mu.Unlock()
	assert.Equal(t, 1, reads)
}

func TestListMessagesPagination(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	thread, err := c.CreateThread(ctx, seeker("alice"), CreateThreadInput{OtherUserID: "bob"})
	require.NoError(t, err)

	var all []*models.MessageView
	for i := 0; i < 5; i++ {
		v, err := c.SendMessage(ctx, seeker("alice"), SendMessageInput{
			ThreadID: thread.ID, Content: "msg", Type: models.MessageTypeText,
		})
		require.NoError(t, err)
		all = append(all, v)
		time.Sleep(time.Millisecond)
	}

	// Newest page of two.
	page, err := c.ListMessages(ctx, seeker("alice"), thread.ID, time.Time{}, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, all[3].ID, page[0].ID)
	assert.Equal(t, all[4].ID, page[1].ID)

	// Older page anchored before the previous page's oldest message.
	older, err := c.ListMessages(ctx, seeker("alice"), thread.ID, page[0].CreatedAt, 2)
	require.NoError(t, err)
	require.Len(t, older, 2)
	assert.Equal(t, all[1].ID, older[0].ID)
	assert.Equal(t, all[2].ID, older[1].ID)
}

func TestListThreadsOrderingAndArchiveFilter(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	t1, err := c.CreateThread(ctx, seeker("alice"), CreateThreadInput{OtherUserID: "bob"})
	require.NoError(t, err)
	t2, err := c.CreateThread(ctx, seeker("alice"), CreateThreadInput{OtherUserID: "carol"})
	require.NoError(t, err)

	time.Sleep(time.Millisecond)
	_, err = c.SendMessage(ctx, seeker("alice"), SendMessageInput{
		ThreadID: t1.ID, Content: "bump", Type: models.MessageTypeText,
	})
	require.NoError(t, err)

	list, err := c.ListThreads(ctx, seeker("alice"), false)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, t1.ID, list[0].ID, "most recently updated thread first")

	require.NoError(t, c.ArchiveThread(ctx, seeker("alice"), t2.ID))

	list, err = c.ListThreads(ctx, seeker("alice"), false)
	require.NoError(t, err)
	require.Len(t, list, 1)

	list, err = c.ListThreads(ctx, seeker("alice"), true)
	require.NoError(t, err)
	require.Len(t, list, 2)
}

func TestSystemMessageUnreadForBoth(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	thread, err := c.CreateThread(ctx, seeker("alice"), CreateThreadInput{OtherUserID: "bob"})
	require.NoError(t, err)

	svc := &identity.Subject{UserID: "payments-svc", Role: identity.RoleService}
	view, err := c.AppendSystemMessage(ctx, svc, thread.ID, "Payment received", &models.MessageMetadata{
		PaymentID: "pay_123",
		Amount:    25,
		Status:    "succeeded",
	})
	require.NoError(t, err)
	assert.Equal(t, models.MessageTypePayment, view.Type)

	for _, u := range []*identity.Subject{seeker("alice"), professional("bob")} {
		tv, err := c.GetThread(ctx, u, thread.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, tv.UnreadCount)
	}
}
