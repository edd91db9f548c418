package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// FlexID normalizes the id shapes the backend emits. Depending on whether
// a field was populated, sender/receiver arrive as a raw id string, as an
// embedded object with "_id", or as one with "id". All three decode to a
// plain id string; the rest of the client never unwraps ad hoc.
type FlexID string

func (f *FlexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexID(s)
		return nil
	}
	if data[0] == '{' {
		var obj struct {
			Mongo string `json:"_id"`
			Plain string `json:"id"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		if obj.Mongo != "" {
			*f = FlexID(obj.Mongo)
		} else {
			*f = FlexID(obj.Plain)
		}
		return nil
	}
	return fmt.Errorf("id: unsupported JSON shape %q", data)
}

func (f FlexID) String() string {
	return string(f)
}

// Profile is the public slice of a user the API embeds in conversations
// and listings.
type Profile struct {
	ID        FlexID  `json:"_id"`
	Name      string  `json:"name"`
	AvatarURL string  `json:"avatarUrl,omitempty"`
	Rating    float64 `json:"rating,omitempty"`
}

// Message is a server-persisted chat message.
type Message struct {
	ID          FlexID     `json:"_id"`
	Sender      FlexID     `json:"sender"`
	Receiver    FlexID     `json:"receiver"`
	ListingID   FlexID     `json:"listingId,omitempty"`
	Text        string     `json:"text"`
	Read        bool       `json:"read"`
	Delivered   bool       `json:"delivered"`
	DeliveredAt *time.Time `json:"deliveredAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// Conversation pairs a counterpart user (and optionally a listing) with
// the most recent message exchanged.
type Conversation struct {
	User        Profile  `json:"user"`
	ListingID   FlexID   `json:"listingId,omitempty"`
	LastMessage *Message `json:"lastMessage,omitempty"`
	UnreadCount int      `json:"unreadCount"`
}

// Key identifies a conversation: the counterpart user id, qualified by the
// listing id when the thread is about a specific listing.
func (c *Conversation) Key() string {
	return ConversationKey(c.User.ID.String(), c.ListingID.String())
}

// ConversationKey builds the client-side conversation identifier.
func ConversationKey(userID, listingID string) string {
	if listingID == "" {
		return userID
	}
	return userID + ":" + listingID
}

// Listing is a classifieds listing.
type Listing struct {
	ID          FlexID    `json:"_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Price       float64   `json:"price"`
	Currency    string    `json:"currency"`
	Category    string    `json:"category"`
	Images      []string  `json:"images,omitempty"`
	Seller      FlexID    `json:"seller"`
	Status      string    `json:"status"` // active, sold, suspended
	CreatedAt   time.Time `json:"createdAt"`
}

// PaymentPlan is a paid promotion tier for listings.
type PaymentPlan struct {
	ID           FlexID  `json:"_id"`
	Name         string  `json:"name"`
	Price        float64 `json:"price"`
	Currency     string  `json:"currency"`
	DurationDays int     `json:"durationDays"`
}

// AppConfig is the server-driven client configuration.
type AppConfig struct {
	Categories   []string      `json:"categories"`
	PaymentPlans []PaymentPlan `json:"paymentPlans"`
	MaxImages    int           `json:"maxImages"`
}
