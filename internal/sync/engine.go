// Package sync ingests chat traffic into the local sqlite cache. The
// messenger and realtime channel publish what happened; the engine
// subscribes and keeps conversations, messages and unread counters
// current without the chat path ever touching the database.
package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/nmanikumar5/swappio/internal/api"
	"github.com/nmanikumar5/swappio/internal/bus"
	"github.com/nmanikumar5/swappio/internal/chat"
	"github.com/nmanikumar5/swappio/internal/store"
	"go.uber.org/zap"
)

// Engine handles idempotent ingestion of messages into the store.
type Engine struct {
	db     *store.DB
	bus    *bus.Bus
	selfID func() string
	logger *zap.Logger
	cancel context.CancelFunc
}

// NewEngine creates a sync engine. selfID resolves the signed-in user id
// at call time, which decides which side of a message is the counterpart.
func NewEngine(db *store.DB, b *bus.Bus, selfID func() string, logger *zap.Logger) *Engine {
	return &Engine{
		db:     db,
		bus:    b,
		selfID: selfID,
		logger: logger,
	}
}

// Start subscribes to realtime and chat events on the bus.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	rtCh, rtUnsub := e.bus.Subscribe("rt.receive_message", 256)
	chatCh, chatUnsub := e.bus.Subscribe("chat.", 256)

	go func() {
		defer rtUnsub()
		defer chatUnsub()
		for {
			select {
			case evt := <-rtCh:
				e.handleEvent(evt)
			case evt := <-chatCh:
				e.handleEvent(evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the engine.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
}

func (e *Engine) handleEvent(evt bus.Event) {
	switch evt.Kind {
	case "rt.receive_message":
		msg, err := decodeMessage(evt.Payload)
		if err != nil {
			e.logWarn("bad receive_message payload", zap.Error(err))
			return
		}
		if err := e.IngestInbound(msg); err != nil {
			e.logError("failed to ingest inbound message", zap.Error(err), zap.String("msg_id", msg.ID.String()))
		}
	case "chat.message_confirmed":
		c, ok := evt.Payload.(chat.Confirmed)
		if !ok {
			return
		}
		if err := e.IngestConfirmed(c.TempID, &c.Message); err != nil {
			e.logError("failed to ingest confirmed message", zap.Error(err), zap.String("msg_id", c.Message.ID.String()))
		}
	case "chat.seeded":
		s, ok := evt.Payload.(chat.Seeded)
		if !ok {
			return
		}
		if err := e.IngestHistoryBatch(s.Key, s.Messages); err != nil {
			e.logError("failed to ingest history batch", zap.Error(err), zap.Int("count", len(s.Messages)))
		}
		// Opening a conversation reads it.
		if err := e.db.MarkConversationRead(s.Key); err != nil {
			e.logError("failed to mark conversation read", zap.Error(err), zap.String("key", s.Key))
		}
	}
}

// IngestInbound caches a message received over the realtime channel and
// bumps the conversation's unread counter.
func (e *Engine) IngestInbound(msg *api.Message) error {
	key := api.ConversationKey(msg.Sender.String(), msg.ListingID.String())
	if err := e.ingest(key, msg, "received"); err != nil {
		return err
	}
	if err := e.db.IncrementUnread(key); err != nil {
		return fmt.Errorf("increment unread: %w", err)
	}
	return nil
}

// IngestConfirmed caches a server-confirmed outbound message. If the
// provisional entry was already cached its row is rewritten under the
// server id first, so confirmation never duplicates.
func (e *Engine) IngestConfirmed(tempID string, msg *api.Message) error {
	key := api.ConversationKey(msg.Receiver.String(), msg.ListingID.String())
	if tempID != "" {
		if err := e.db.ReplaceMessageID(key, tempID, msg.ID.String()); err != nil {
			return fmt.Errorf("replace message id: %w", err)
		}
	}
	return e.ingest(key, msg, "sent")
}

func (e *Engine) ingest(key string, msg *api.Message, status string) error {
	counterpart := msg.Sender.String()
	if status == "sent" {
		counterpart = msg.Receiver.String()
	}

	if err := e.db.UpsertConversation(&store.Conversation{
		Key:                key,
		UserID:             counterpart,
		ListingID:          msg.ListingID.String(),
		LastMessageAt:      msg.CreatedAt.UnixMilli(),
		LastMessagePreview: truncate(msg.Text, 100),
	}); err != nil {
		return fmt.Errorf("upsert conversation: %w", err)
	}

	if err := e.db.UpsertMessage(storeMessage(key, msg, status)); err != nil {
		return fmt.Errorf("upsert message: %w", err)
	}

	e.bus.Publish(bus.Event{
		Kind:      "sync.message_cached",
		Timestamp: time.Now(),
		Payload: map[string]string{
			"conv_key": key,
			"msg_id":   msg.ID.String(),
		},
	})
	return nil
}

// IngestHistoryBatch caches one page of REST history in a transaction.
func (e *Engine) IngestHistoryBatch(key string, msgs []api.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	tx, err := e.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	self := e.selfID()
	now := time.Now().UnixMilli()
	for i := range msgs {
		msg := &msgs[i]
		status := "received"
		if msg.Sender.String() == self {
			status = "sent"
		}
		sm := storeMessage(key, msg, status)
		if _, err := tx.Exec(`
			INSERT INTO messages (conv_key, msg_id, sender_id, receiver_id, listing_id, body, read, delivered, status, timestamp, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(conv_key, msg_id) DO UPDATE SET
				body = excluded.body,
				read = excluded.read,
				delivered = excluded.delivered,
				status = excluded.status`,
			sm.ConvKey, sm.MsgID, sm.SenderID, sm.ReceiverID, sm.ListingID, sm.Body, sm.Read, sm.Delivered, sm.Status, sm.Timestamp, now); err != nil {
			return fmt.Errorf("upsert message in batch: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}

	e.bus.Publish(bus.Event{
		Kind:      "sync.history_cached",
		Timestamp: time.Now(),
		Payload: map[string]any{
			"conv_key": key,
			"messages": len(msgs),
		},
	})
	return nil
}

// IngestConversations caches the REST conversation list.
func (e *Engine) IngestConversations(convs []api.Conversation) error {
	for i := range convs {
		c := &convs[i]
		row := &store.Conversation{
			Key:         c.Key(),
			UserID:      c.User.ID.String(),
			UserName:    c.User.Name,
			UserAvatar:  c.User.AvatarURL,
			ListingID:   c.ListingID.String(),
			UnreadCount: c.UnreadCount,
		}
		if c.LastMessage != nil {
			row.LastMessageAt = c.LastMessage.CreatedAt.UnixMilli()
			row.LastMessagePreview = truncate(c.LastMessage.Text, 100)
		}
		if err := e.db.UpsertConversation(row); err != nil {
			return fmt.Errorf("upsert conversation %s: %w", row.Key, err)
		}
	}

	e.bus.Publish(bus.Event{
		Kind:      "sync.conversations_cached",
		Timestamp: time.Now(),
		Payload:   map[string]int{"count": len(convs)},
	})
	return nil
}

func storeMessage(key string, msg *api.Message, status string) *store.Message {
	return &store.Message{
		ConvKey:    key,
		MsgID:      msg.ID.String(),
		SenderID:   msg.Sender.String(),
		ReceiverID: msg.Receiver.String(),
		ListingID:  msg.ListingID.String(),
		Body:       msg.Text,
		Read:       msg.Read,
		Delivered:  msg.Delivered,
		Status:     status,
		Timestamp:  msg.CreatedAt.UnixMilli(),
	}
}

func decodeMessage(payload any) (*api.Message, error) {
	var raw []byte
	switch p := payload.(type) {
	case json.RawMessage:
		raw = p
	case []byte:
		raw = p
	case *api.Message:
		return p, nil
	case api.Message:
		return &p, nil
	default:
		return nil, fmt.Errorf("unexpected payload type %T", payload)
	}
	var msg api.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	return &msg, nil
}

// truncate caps s at maxLen bytes without splitting a rune; the cut backs
// up to the nearest rune boundary.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func (e *Engine) logWarn(msg string, fields ...zap.Field) {
	if e.logger != nil {
		e.logger.Warn(msg, fields...)
	}
}

func (e *Engine) logError(msg string, fields ...zap.Field) {
	if e.logger != nil {
		e.logger.Error(msg, fields...)
	}
}
