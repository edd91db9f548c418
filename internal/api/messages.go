package api

import (
	"context"
	"net/url"
	"strconv"

	"github.com/nmanikumar5/swappio/internal/rest"
)

// Messages wraps the message and conversation endpoints.
type Messages struct {
	c *rest.Client
}

// NewMessages creates the messages API client.
func NewMessages(c *rest.Client) *Messages {
	return &Messages{c: c}
}

// History fetches a page of message history with the given counterpart,
// oldest first. This is the non-optimistic load path that seeds a thread
// when the active conversation changes.
func (m *Messages) History(ctx context.Context, userID string, page, limit int) ([]Message, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 50
	}
	q := url.Values{
		"page":  {strconv.Itoa(page)},
		"limit": {strconv.Itoa(limit)},
	}
	var msgs []Message
	if err := m.c.GetJSON(ctx, "/messages/"+url.PathEscape(userID), q, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// Conversations lists the user's conversations, most recent first.
func (m *Messages) Conversations(ctx context.Context) ([]Conversation, error) {
	var convs []Conversation
	if err := m.c.GetJSON(ctx, "/messages/conversations", nil, &convs); err != nil {
		return nil, err
	}
	return convs, nil
}

// Send persists a message over REST. The realtime path is preferred for
// interactive sends; this exists for callers without a socket (swapctl).
func (m *Messages) Send(ctx context.Context, receiverID, text, listingID string) (*Message, error) {
	body := map[string]string{
		"receiverId": receiverID,
		"text":       text,
	}
	if listingID != "" {
		body["listingId"] = listingID
	}
	var msg Message
	if err := m.c.PostJSON(ctx, "/messages", body, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
