package api

import (
	"encoding/json"
	"testing"
)

// The backend is inconsistent about id shapes: raw string, {_id: ...} or
// {id: ...} depending on whether the field was populated. All must
// normalize to a plain id at the decode boundary.
func TestFlexIDShapes(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want FlexID
	}{
		{"raw string", `"u42"`, "u42"},
		{"mongo object", `{"_id":"u42","name":"Ana"}`, "u42"},
		{"plain object", `{"id":"u42"}`, "u42"},
		{"mongo wins over plain", `{"_id":"a","id":"b"}`, "a"},
		{"null", `null`, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var got FlexID
			if err := json.Unmarshal([]byte(tc.in), &got); err != nil {
				t.Fatalf("Unmarshal(%s) error = %v", tc.in, err)
			}
			if got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestFlexIDRejectsOtherShapes(t *testing.T) {
	var got FlexID
	if err := json.Unmarshal([]byte(`42`), &got); err == nil {
		t.Error("numeric id decoded without error, want rejection")
	}
}

func TestMessageDecodeEmbeddedSenders(t *testing.T) {
	raw := `{
		"_id": "m1",
		"sender": {"_id": "u1", "name": "Ana"},
		"receiver": "u2",
		"text": "still available?",
		"read": false,
		"delivered": true,
		"createdAt": "2026-03-01T12:00:00Z"
	}`
	var msg Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		t.Fatalf("Unmarshal error = %v", err)
	}
	if msg.Sender != "u1" {
		t.Errorf("Sender = %q, want u1 (normalized from embedded object)", msg.Sender)
	}
	if msg.Receiver != "u2" {
		t.Errorf("Receiver = %q, want u2", msg.Receiver)
	}
	if !msg.Delivered || msg.Read {
		t.Errorf("flags = read:%v delivered:%v, want false/true", msg.Read, msg.Delivered)
	}
}

func TestConversationKey(t *testing.T) {
	if got := ConversationKey("u2", ""); got != "u2" {
		t.Errorf("key without listing = %q, want u2", got)
	}
	if got := ConversationKey("u2", "l9"); got != "u2:l9" {
		t.Errorf("key with listing = %q, want u2:l9", got)
	}

	c := Conversation{User: Profile{ID: "u2"}, ListingID: "l9"}
	if c.Key() != "u2:l9" {
		t.Errorf("Conversation.Key() = %q, want u2:l9", c.Key())
	}
}
