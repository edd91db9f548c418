package store

// Conversation is a cached conversation row, keyed by counterpart user id
// plus listing id where applicable.
type Conversation struct {
	Key                string
	UserID             string
	UserName           string
	UserAvatar         string
	ListingID          string
	UnreadCount        int
	LastMessageAt      int64
	LastMessagePreview string
}

// Message is a cached message row.
type Message struct {
	ID         int64
	ConvKey    string
	MsgID      string
	SenderID   string
	ReceiverID string
	ListingID  string
	Body       string
	Read       bool
	Delivered  bool
	Status     string // pending, sent, received
	Timestamp  int64
}
