package chat

import (
	"sync"
	"time"

	"github.com/nmanikumar5/swappio/internal/api"
)

// Entry states. A pending entry exists only in local view state; sent and
// received entries are server-confirmed.
const (
	StatusPending  = "pending"
	StatusSent     = "sent"
	StatusReceived = "received"
)

// Entry is one message in the visible thread. While pending its ID is the
// client-generated temporary id; confirmation swaps in the server id.
type Entry struct {
	ID        string
	Sender    string
	Receiver  string
	ListingID string
	Text      string
	Read      bool
	Delivered bool
	Status    string
	CreatedAt time.Time
}

// Thread is the visible message list for one conversation. Entries are
// appended in send order; confirmation replaces an entry in place and
// never reorders, so a later send confirmed early cannot jump ahead of an
// earlier pending one.
type Thread struct {
	mu      sync.RWMutex
	key     string
	entries []Entry
}

// NewThread creates an empty thread for the given conversation key.
func NewThread(key string) *Thread {
	return &Thread{key: key}
}

// Key returns the conversation key this thread belongs to.
func (t *Thread) Key() string {
	return t.key
}

// Seed replaces the thread contents with fetched history. selfID decides
// which side each message renders on.
func (t *Thread) Seed(history []api.Message, selfID string) {
	entries := make([]Entry, 0, len(history))
	for _, msg := range history {
		entries = append(entries, entryFromMessage(msg, selfID))
	}

	t.mu.Lock()
	t.entries = entries
	t.mu.Unlock()
}

// Append adds an entry at the end of the list.
func (t *Thread) Append(e Entry) {
	t.mu.Lock()
	t.entries = append(t.entries, e)
	t.mu.Unlock()
}

// Replace swaps the pending entry with the given temporary id for the
// confirmed one, keeping its list position. Returns false if no pending
// entry has that id, or if an entry already carries the confirmed id: a
// server id resolves at most one entry, so an acknowledgement fanned out
// to several waiters is claimed exactly once.
func (t *Thread) Replace(tempID string, confirmed Entry) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.entries {
		if t.entries[i].ID == confirmed.ID {
			return false
		}
	}
	for i := range t.entries {
		if t.entries[i].ID == tempID && t.entries[i].Status == StatusPending {
			t.entries[i] = confirmed
			return true
		}
	}
	return false
}

// Entries returns a snapshot of the list.
func (t *Thread) Entries() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Len returns the number of entries.
func (t *Thread) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

func entryFromMessage(msg api.Message, selfID string) Entry {
	status := StatusReceived
	if msg.Sender.String() == selfID {
		status = StatusSent
	}
	return Entry{
		ID:        msg.ID.String(),
		Sender:    msg.Sender.String(),
		Receiver:  msg.Receiver.String(),
		ListingID: msg.ListingID.String(),
		Text:      msg.Text,
		Read:      msg.Read,
		Delivered: msg.Delivered,
		Status:    status,
		CreatedAt: msg.CreatedAt,
	}
}
