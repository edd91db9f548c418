// Package chat implements the optimistic messaging flow: a sent message
// appears in the visible thread immediately, the authoritative round trip
// happens over the realtime channel, and the server-confirmed message
// replaces the provisional one when the acknowledgement arrives.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/nmanikumar5/swappio/internal/api"
	"github.com/nmanikumar5/swappio/internal/bus"
	"go.uber.org/zap"
)

// AckWait bounds how long a send listens for its acknowledgement. After
// this the listener is torn down and the message stays pending; no error
// is surfaced and nothing is retried.
const AckWait = 5 * time.Second

var (
	// ErrEmptyMessage rejects sends whose text trims to nothing.
	ErrEmptyMessage = errors.New("message text is empty")
	// ErrNoReceiver rejects sends without a receiver.
	ErrNoReceiver = errors.New("receiver is required")
	// ErrSendInFlight rejects a send while another is being submitted,
	// guarding against rapid duplicate submissions.
	ErrSendInFlight = errors.New("send already in flight")
	// ErrNoConversation rejects sends before a conversation is open.
	ErrNoConversation = errors.New("no active conversation")
)

// Emitter is the outbound side of the realtime channel.
type Emitter interface {
	Emit(event string, payload any) error
	Connected() bool
}

// HistoryLoader fetches paginated message history over REST.
type HistoryLoader interface {
	History(ctx context.Context, userID string, page, limit int) ([]api.Message, error)
}

// SendPayload is the send_message event body.
type SendPayload struct {
	ReceiverID string `json:"receiverId"`
	Text       string `json:"text"`
	ListingID  string `json:"listingId,omitempty"`
}

// Unacked is the chat.send_unacked payload: a send whose bounded wait
// expired without acknowledgement.
type Unacked struct {
	TempID     string
	ReceiverID string
}

// Confirmed is the chat.message_confirmed payload: the server-persisted
// message plus the provisional id it replaced in the thread.
type Confirmed struct {
	TempID  string
	Message api.Message
}

// Seeded is the chat.seeded payload, published when a conversation's
// history load completes. The sync engine caches the batch from here.
type Seeded struct {
	Key       string
	UserID    string
	ListingID string
	Messages  []api.Message
}

// Messenger owns the active conversation's visible thread and the
// optimistic send flow.
type Messenger struct {
	emitter Emitter
	history HistoryLoader
	bus     *bus.Bus
	logger  *zap.Logger
	selfID  func() string
	ackWait time.Duration

	mu       sync.RWMutex
	thread   *Thread
	receiver string
	listing  string

	inFlight atomic.Bool
}

// NewMessenger creates a messenger. selfID resolves the current user id
// at call time so a re-login does not require rebuilding the messenger.
func NewMessenger(emitter Emitter, history HistoryLoader, b *bus.Bus, selfID func() string, logger *zap.Logger) *Messenger {
	return &Messenger{
		emitter: emitter,
		history: history,
		bus:     b,
		logger:  logger,
		selfID:  selfID,
		ackWait: AckWait,
	}
}

// Open switches the active conversation and seeds its thread from the
// first page of REST history. The realtime channel only carries new
// messages going forward, never backfill.
func (m *Messenger) Open(ctx context.Context, userID, listingID string) (*Thread, error) {
	msgs, err := m.history.History(ctx, userID, 1, 50)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	t := NewThread(api.ConversationKey(userID, listingID))
	t.Seed(msgs, m.selfID())

	m.mu.Lock()
	m.thread = t
	m.receiver = userID
	m.listing = listingID
	m.mu.Unlock()

	m.bus.Emit("chat.seeded", Seeded{
		Key:       t.Key(),
		UserID:    userID,
		ListingID: listingID,
		Messages:  msgs,
	})
	return t, nil
}

// Thread returns the active thread, nil if no conversation is open.
func (m *Messenger) Thread() *Thread {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.thread
}

// Send appends a pending message to the visible thread, emits the send
// over the realtime channel, and listens once, bounded by AckWait, for
// the acknowledgement carrying the persisted message.
//
// The pending append happens before any network I/O, so the UI reflects
// the message immediately. If the channel is disconnected the message is
// appended but never transmitted and stays pending indefinitely; there is
// no automatic retry and no rollback.
//
// Returns the temporary id of the pending entry.
func (m *Messenger) Send(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyMessage
	}

	m.mu.RLock()
	thread, receiver, listing := m.thread, m.receiver, m.listing
	m.mu.RUnlock()

	if thread == nil {
		return "", ErrNoConversation
	}
	if receiver == "" {
		return "", ErrNoReceiver
	}

	if !m.inFlight.CompareAndSwap(false, true) {
		return "", ErrSendInFlight
	}
	defer m.inFlight.Store(false)

	tempID := uuid.New().String()
	thread.Append(Entry{
		ID:        tempID,
		Sender:    m.selfID(),
		Receiver:  receiver,
		ListingID: listing,
		Text:      text,
		Status:    StatusPending,
		CreatedAt: time.Now(),
	})
	m.bus.Emit("chat.updated", thread.Key())

	// Subscribe before emitting so a fast acknowledgement cannot slip
	// past the listener.
	waiter := m.bus.Expect("rt.message_sent")

	err := m.emitter.Emit("send_message", SendPayload{
		ReceiverID: receiver,
		Text:       text,
		ListingID:  listing,
	})
	if err != nil {
		// Not transmitted: the entry stays pending and no ack can come.
		waiter.Cancel()
		m.logger.Warn("send not transmitted", zap.String("temp_id", tempID), zap.Error(err))
		return tempID, nil
	}

	go m.awaitAck(waiter, thread, tempID, receiver, text)
	return tempID, nil
}

// awaitAck resolves one send. Acknowledgements for other sends (matched
// on receiver and text) are skipped; expiry cancels the subscription so
// a later acknowledgement can never resolve this entry.
func (m *Messenger) awaitAck(waiter *bus.Waiter, thread *Thread, tempID, receiver, text string) {
	defer waiter.Cancel()

	ctx, cancel := context.WithTimeout(context.Background(), m.ackWait)
	defer cancel()

	for {
		evt, ok := waiter.Wait(ctx)
		if !ok {
			m.logger.Info("send not acknowledged within bound",
				zap.String("temp_id", tempID), zap.Duration("wait", m.ackWait))
			m.bus.Emit("chat.send_unacked", Unacked{TempID: tempID, ReceiverID: receiver})
			return
		}

		msg, err := decodeMessage(evt.Payload)
		if err != nil {
			m.logger.Warn("bad message_sent payload", zap.Error(err))
			continue
		}
		if msg.Receiver.String() != receiver || msg.Text != text {
			continue
		}

		if !thread.Replace(tempID, entryFromMessage(*msg, m.selfID())) {
			// Another in-flight send with the same receiver and text
			// claimed this acknowledgement; keep waiting for ours.
			continue
		}
		m.bus.Emit("chat.updated", thread.Key())
		m.bus.Emit("chat.message_confirmed", Confirmed{TempID: tempID, Message: *msg})
		return
	}
}

// Start subscribes to inbound realtime messages and appends the ones that
// belong to the active conversation. Runs until ctx is canceled.
func (m *Messenger) Start(ctx context.Context) {
	ch, unsub := m.bus.Subscribe("rt.receive_message", 64)

	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				m.handleInbound(evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (m *Messenger) handleInbound(evt bus.Event) {
	msg, err := decodeMessage(evt.Payload)
	if err != nil {
		m.logger.Warn("bad receive_message payload", zap.Error(err))
		return
	}

	m.mu.RLock()
	thread := m.thread
	m.mu.RUnlock()
	if thread == nil {
		return
	}

	key := api.ConversationKey(msg.Sender.String(), msg.ListingID.String())
	if key != thread.Key() {
		return
	}
	thread.Append(entryFromMessage(*msg, m.selfID()))
	m.bus.Emit("chat.updated", thread.Key())
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
