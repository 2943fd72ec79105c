// Brewline - Coffee Chat Marketplace Messaging Engine
// Copyright 2026 Brewline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/brewline/brewline

// Package chat implements the transaction coordinator: every write that spans
// thread, message and invitation documents runs as one serializable store
// transaction, and realtime events are emitted only after a successful commit.
package chat

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/brewline/brewline/internal/identity"
	"github.com/brewline/brewline/internal/logging"
	"github.com/brewline/brewline/internal/metrics"
	"github.com/brewline/brewline/internal/models"
	"github.com/brewline/brewline/internal/store"
)

// maxTxnRetries bounds automatic retries on serialization conflicts. Thread
// creation needs only one retry (the second attempt finds the winner's pair
// entry); the margin covers counter updates racing on hot threads.
const maxTxnRetries = 3

// EventSink receives notifications after a transaction commits. Exactly one
// notification per committed write; a failed commit emits nothing.
type EventSink interface {
	// MessageCreated announces a newly persisted message to the thread room.
	MessageCreated(view *models.MessageView)

	// ThreadRead announces that a user acknowledged a thread as read.
	ThreadRead(threadID, userID string)
}

// NopSink discards all events. Used by tests and the reconciler CLI path.
type NopSink struct{}

func (NopSink) MessageCreated(*models.MessageView) {}
func (NopSink) ThreadRead(string, string)          {}

// Coordinator owns all multi-document writes of the messaging engine.
type Coordinator struct {
	store     *store.Store
	directory identity.Directory
	events    EventSink
}

// NewCoordinator wires the coordinator to its store, profile directory and
// post-commit event sink.
func NewCoordinator(st *store.Store, dir identity.Directory, events EventSink) *Coordinator {
	if events == nil {
		events = NopSink{}
	}
	return &Coordinator{store: st, directory: dir, events: events}
}

// update runs fn as a read-write transaction, retrying on serialization
// conflicts. fn must be self-contained: it is re-executed from scratch on
// retry, so all reads and derived state belong inside it.
func (c *Coordinator) update(operation string, fn func(txn *badger.Txn) error) error {
	start := time.Now()
	var err error
	for attempt := 0; attempt < maxTxnRetries; attempt++ {
		err = c.store.Update(fn)
		if !store.IsConflict(err) {
			break
		}
		metrics.StoreTxnConflicts.WithLabelValues(operation).Inc()
	}
	metrics.StoreTxnDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())

	if store.IsConflict(err) {
		return fmt.Errorf("%s: %w", operation, ErrWriteConflict)
	}
	return err
}

// sender resolves a user id to the enriched sender block. Profile lookup
// failures degrade to an id-only block; delivery never depends on the
// directory being reachable.
func (c *Coordinator) sender(ctx context.Context, userID string) models.Sender {
	p, err := c.directory.Lookup(ctx, userID)
	if err != nil || p == nil {
		return models.Sender{ID: userID, DisplayName: userID}
	}
	return models.Sender{ID: p.ID, DisplayName: p.DisplayName, AvatarRef: p.AvatarRef}
}

// applyMessage appends msg to its thread and maintains the thread's
// denormalized state: lastMessage cache, unread counters for the listed
// users, and the updatedAt ordering timestamp. Any append reactivates an
// archived thread. Runs inside the caller's transaction.
func applyMessage(txn *badger.Txn, thread *models.Thread, msg *models.Message, unreadFor ...string) error {
	if err := store.AppendMessage(txn, msg); err != nil {
		return err
	}

	if thread.Status == models.ThreadStatusArchived {
		thread.Status = models.ThreadStatusActive
	}
	thread.LastMessage = msg.Summary()
	if thread.UnreadCount == nil {
		thread.UnreadCount = make(map[string]int, 2)
	}
	for _, u := range unreadFor {
		thread.UnreadCount[u]++
	}
	thread.UpdatedAt = msg.CreatedAt

	return store.PutThread(txn, thread)
}

// newThread builds a thread document for a participant pair.
func newThread(a, b, matchRef string, now time.Time) *models.Thread {
	return &models.Thread{
		ID:           uuid.NewString(),
		Participants: []string{a, b},
		UnreadCount:  map[string]int{a: 0, b: 0},
		Status:       models.ThreadStatusActive,
		MatchRef:     matchRef,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// getOrCreateThread returns the thread for the pair, creating and indexing it
// when absent. The pair-key read is tracked by the transaction, so a racing
// creator forces a conflict at commit and the retry finds the winner's thread.
func getOrCreateThread(txn *badger.Txn, a, b, matchRef string, now time.Time) (*models.Thread, bool, error) {
	id, err := store.ThreadIDForPair(txn, a, b)
	if err != nil {
		return nil, false, err
	}
	if id != "" {
		thread, err := store.GetThread(txn, id)
		if err != nil {
			return nil, false, err
		}
		return thread, false, nil
	}

	thread := newThread(a, b, matchRef, now)
	if err := store.PutThread(txn, thread); err != nil {
		return nil, false, err
	}
	if err := store.IndexThread(txn, thread); err != nil {
		return nil, false, err
	}
	return thread, true, nil
}

// CreateThreadInput is the request to open (or fetch) a conversation.
// An optional initial message is appended in the same transaction, whether the
// thread is new or already existed.
type CreateThreadInput struct {
	OtherUserID    string
	MatchRef       string
	InitialMessage string
}

// CreateThread opens the thread between the actor and the other user, or
// returns the existing one. The operation is a get-or-create: repeated calls
// with the same pair always land on the same thread.
func (c *Coordinator) CreateThread(ctx context.Context, actor *identity.Subject, in CreateThreadInput) (*models.ThreadSummary, error) {
	if in.OtherUserID == actor.UserID {
		return nil, ErrSelfThread
	}

	var (
		thread  *models.Thread
		created bool
		msg     *models.Message
	)
	err := c.update("create_thread", func(txn *badger.Txn) error {
		now := time.Now().UTC()
		var err error
		thread, created, err = getOrCreateThread(txn, actor.UserID, in.OtherUserID, in.MatchRef, now)
		if err != nil {
			return err
		}

		msg = nil
		if in.InitialMessage != "" {
			msg = &models.Message{
				ID:        uuid.NewString(),
				ThreadID:  thread.ID,
				SenderID:  actor.UserID,
				Content:   in.InitialMessage,
				Type:      models.MessageTypeText,
				CreatedAt: now,
			}
			return applyMessage(txn, thread, msg, in.OtherUserID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if created {
		logging.Ctx(ctx).Info().
			Str("thread_id", thread.ID).
			Str("pair", thread.PairKeyFor()).
			Msg("thread created")
	}
	if msg != nil {
		metrics.MessagesPersisted.WithLabelValues(string(msg.Type)).Inc()
		c.events.MessageCreated(models.NewMessageView(msg, c.sender(ctx, actor.UserID)))
	}

	other := c.sender(ctx, thread.OtherParticipant(actor.UserID))
	return models.NewThreadSummary(thread, actor.UserID, other), nil
}

// SendMessageInput is the request to append a message to a thread.
type SendMessageInput struct {
	ThreadID string
	Content  string
	Type     models.MessageType
	Metadata *models.MessageMetadata
	ReplyTo  string
}

// SendMessage atomically persists a message, refreshes the thread's
// lastMessage cache, bumps the recipient's unread counter and touches the
// thread's updatedAt. On success exactly one new-message event is emitted to
// the thread room. Sending to an archived thread reactivates it.
func (c *Coordinator) SendMessage(ctx context.Context, actor *identity.Subject, in SendMessageInput) (*models.MessageView, error) {
	var msg *models.Message
	err := c.update("send_message", func(txn *badger.Txn) error {
		thread, err := store.GetThread(txn, in.ThreadID)
		if err != nil {
			return err
		}
		if !thread.HasParticipant(actor.UserID) {
			return ErrNotParticipant
		}

		if in.ReplyTo != "" {
			target, err := store.GetMessage(txn, in.ReplyTo)
			if err != nil {
				return err
			}
			if target.ThreadID != thread.ID {
				return ErrReplyWrongThread
			}
		}

		msg = &models.Message{
			ID:        uuid.NewString(),
			ThreadID:  thread.ID,
			SenderID:  actor.UserID,
			Content:   in.Content,
			Type:      in.Type,
			Metadata:  in.Metadata,
			ReplyTo:   in.ReplyTo,
			CreatedAt: time.Now().UTC(),
		}
		return applyMessage(txn, thread, msg, thread.OtherParticipant(actor.UserID))
	})
	if err != nil {
		return nil, err
	}

	metrics.MessagesPersisted.WithLabelValues(string(msg.Type)).Inc()
	view := models.NewMessageView(msg, c.sender(ctx, actor.UserID))
	c.events.MessageCreated(view)
	return view, nil
}

// AppendSystemMessage persists a service-originated message (payment
// confirmations, operational notices) into a thread. Both participants see it
// as unread. The message type is derived from the metadata: a payment id
// makes it a payment message, anything else is text.
func (c *Coordinator) AppendSystemMessage(ctx context.Context, actor *identity.Subject, threadID, content string, meta *models.MessageMetadata) (*models.MessageView, error) {
	msgType := models.MessageTypeText
	if meta != nil && meta.PaymentID != "" {
		msgType = models.MessageTypePayment
	}

	var msg *models.Message
	err := c.update("system_message", func(txn *badger.Txn) error {
		thread, err := store.GetThread(txn, threadID)
		if err != nil {
			return err
		}

		msg = &models.Message{
			ID:        uuid.NewString(),
			ThreadID:  thread.ID,
			SenderID:  actor.UserID,
			Content:   content,
			Type:      msgType,
			Metadata:  meta,
			CreatedAt: time.Now().UTC(),
		}
		return applyMessage(txn, thread, msg, thread.Participants...)
	})
	if err != nil {
		return nil, err
	}

	metrics.MessagesPersisted.WithLabelValues(string(msg.Type)).Inc()
	view := models.NewMessageView(msg, c.sender(ctx, actor.UserID))
	c.events.MessageCreated(view)
	return view, nil
}

// MarkThreadRead resets the actor's unread counter and flips the read flag on
// every message from the other participant. Idempotent: a second call finds
// nothing to change and commits no writes.
func (c *Coordinator) MarkThreadRead(ctx context.Context, actor *identity.Subject, threadID string) error {
	var changed bool
	err := c.update("mark_read", func(txn *badger.Txn) error {
		thread, err := store.GetThread(txn, threadID)
		if err != nil {
			return err
		}
		if !thread.HasParticipant(actor.UserID) {
			return ErrNotParticipant
		}

		changed = false
		if thread.UnreadFor(actor.UserID) != 0 {
			thread.UnreadCount[actor.UserID] = 0
			if err := store.PutThread(txn, thread); err != nil {
				return err
			}
			changed = true
		}

		return store.MessagesAscending(txn, thread.ID, func(m *models.Message) error {
			if m.SenderID == actor.UserID || m.IsRead {
				return nil
			}
			m.IsRead = true
			changed = true
			return store.PutMessage(txn, m)
		})
	})
	if err != nil {
		return err
	}

	if changed {
		c.events.ThreadRead(threadID, actor.UserID)
	}
	return nil
}

// ArchiveThread hides the thread from the actor's default list view.
// Archiving never deletes; a new message reactivates the thread.
func (c *Coordinator) ArchiveThread(ctx context.Context, actor *identity.Subject, threadID string) error {
	return c.update("archive_thread", func(txn *badger.Txn) error {
		thread, err := store.GetThread(txn, threadID)
		if err != nil {
			return err
		}
		if !thread.HasParticipant(actor.UserID) {
			return ErrNotParticipant
		}
		if thread.Status == models.ThreadStatusArchived {
			return nil
		}
		thread.Status = models.ThreadStatusArchived
		thread.UpdatedAt = time.Now().UTC()
		return store.PutThread(txn, thread)
	})
}

// GetThread returns the requester-scoped summary of a single thread.
func (c *Coordinator) GetThread(ctx context.Context, actor *identity.Subject, threadID string) (*models.ThreadSummary, error) {
	var thread *models.Thread
	err := c.store.View(func(txn *badger.Txn) error {
		var err error
		thread, err = store.GetThread(txn, threadID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !thread.HasParticipant(actor.UserID) {
		return nil, ErrNotParticipant
	}

	other := c.sender(ctx, thread.OtherParticipant(actor.UserID))
	return models.NewThreadSummary(thread, actor.UserID, other), nil
}

// ListThreads returns the actor's threads newest-first. Archived threads are
// excluded unless includeArchived is set.
func (c *Coordinator) ListThreads(ctx context.Context, actor *identity.Subject, includeArchived bool) ([]*models.ThreadSummary, error) {
	var threads []*models.Thread
	err := c.store.View(func(txn *badger.Txn) error {
		ids, err := store.ThreadIDsForUser(txn, actor.UserID)
		if err != nil {
			return err
		}
		for _, id := range ids {
			thread, err := store.GetThread(txn, id)
			if errors.Is(err, store.ErrThreadNotFound) {
				// Index entry outlived its thread (mid-merge read). Skip.
				continue
			}
			if err != nil {
				return err
			}
			if thread.Status == models.ThreadStatusArchived && !includeArchived {
				continue
			}
			threads = append(threads, thread)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(threads, func(i, j int) bool {
		return threads[i].UpdatedAt.After(threads[j].UpdatedAt)
	})

	summaries := make([]*models.ThreadSummary, 0, len(threads))
	for _, t := range threads {
		other := c.sender(ctx, t.OtherParticipant(actor.UserID))
		summaries = append(summaries, models.NewThreadSummary(t, actor.UserID, other))
	}
	return summaries, nil
}

// ListMessages returns up to limit messages created strictly before the given
// instant, oldest-first. A zero "before" returns the newest page.
func (c *Coordinator) ListMessages(ctx context.Context, actor *identity.Subject, threadID string, before time.Time, limit int) ([]*models.MessageView, error) {
	var msgs []*models.Message
	err := c.store.View(func(txn *badger.Txn) error {
		thread, err := store.GetThread(txn, threadID)
		if err != nil {
			return err
		}
		if !thread.HasParticipant(actor.UserID) {
			return ErrNotParticipant
		}
		msgs, err = store.MessagesBefore(txn, threadID, before, limit)
		return err
	})
	if err != nil {
		return nil, err
	}

	// Resolve each distinct sender once per page.
	senders := make(map[string]models.Sender, 2)
	views := make([]*models.MessageView, 0, len(msgs))
	for _, m := range msgs {
		s, ok := senders[m.SenderID]
		if !ok {
			s = c.sender(ctx, m.SenderID)
			senders[m.SenderID] = s
		}
		views = append(views, models.NewMessageView(m, s))
	}
	return views, nil
}

// Ping verifies the store answers a read transaction. Used by readiness.
func (c *Coordinator) Ping(ctx context.Context) error {
	return c.store.View(func(txn *badger.Txn) error { return nil })
}

// IsParticipant reports whether the user belongs to the thread. The realtime
// layer uses it to gate room joins.
func (c *Coordinator) IsParticipant(ctx context.Context, userID, threadID string) (bool, error) {
	var ok bool
	err := c.store.View(func(txn *badger.Txn) error {
		thread, err := store.GetThread(txn, threadID)
		if err != nil {
			return err
		}
		ok = thread.HasParticipant(userID)
		return nil
	})
	if errors.Is(err, store.ErrThreadNotFound) {
		return false, nil
	}
	return ok, err
}
