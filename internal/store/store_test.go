package store

import (
	"path/filepath"
	"testing"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrateIdempotent(t *testing.T) {
	db := testDB(t)
	result, err := db.Migrate()
	if err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
	if result.Changed {
		t.Error("second Migrate() reported changes")
	}
}

func TestUpsertMessageIdempotent(t *testing.T) {
	db := testDB(t)

	m := &Message{ConvKey: "u2", MsgID: "m1", SenderID: "u2", ReceiverID: "self", Body: "hello", Status: "received", Timestamp: 1000}
	if err := db.UpsertMessage(m); err != nil {
		t.Fatal(err)
	}
	// Same message again with updated flags.
	m.Delivered = true
	m.Read = true
	if err := db.UpsertMessage(m); err != nil {
		t.Fatal(err)
	}

	msgs, err := db.ListMessages("u2", 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1 (upsert, not duplicate)", len(msgs))
	}
	if !msgs[0].Delivered || !msgs[0].Read {
		t.Errorf("flags not updated: %+v", msgs[0])
	}
}

func TestReplaceMessageID(t *testing.T) {
	db := testDB(t)

	if err := db.UpsertMessage(&Message{ConvKey: "u2", MsgID: "tmp-1", SenderID: "self", ReceiverID: "u2", Body: "hi", Status: "pending", Timestamp: 1000}); err != nil {
		t.Fatal(err)
	}
	if err := db.ReplaceMessageID("u2", "tmp-1", "srv-1"); err != nil {
		t.Fatal(err)
	}

	msgs, err := db.ListMessages("u2", 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].MsgID != "srv-1" {
		t.Errorf("messages = %+v, want single row under srv-1", msgs)
	}
}

func TestListMessagesPagination(t *testing.T) {
	db := testDB(t)

	for i := 0; i < 5; i++ {
		if err := db.UpsertMessage(&Message{
			ConvKey: "u2", MsgID: string(rune('a' + i)), SenderID: "u2", ReceiverID: "self",
			Body: "msg", Status: "received", Timestamp: int64(1000 + i),
		}); err != nil {
			t.Fatal(err)
		}
	}

	page, err := db.ListMessages("u2", 0, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 {
		t.Fatalf("got %d messages, want 2", len(page))
	}
	if page[0].Timestamp != 1004 || page[1].Timestamp != 1003 {
		t.Errorf("page = %+v, want newest first", page)
	}

	older, err := db.ListMessages("u2", page[1].Timestamp, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(older) != 3 {
		t.Errorf("got %d older messages, want 3", len(older))
	}
}

func TestConversationLastMessageMonotonic(t *testing.T) {
	db := testDB(t)

	c := &Conversation{Key: "u2", UserID: "u2", UserName: "Ana", LastMessageAt: 2000, LastMessagePreview: "newer"}
	if err := db.UpsertConversation(c); err != nil {
		t.Fatal(err)
	}
	// A stale update must not move the pointer backwards.
	if err := db.UpsertConversation(&Conversation{Key: "u2", UserID: "u2", LastMessageAt: 1000, LastMessagePreview: "older"}); err != nil {
		t.Fatal(err)
	}

	got, err := db.GetConversation("u2")
	if err != nil {
		t.Fatal(err)
	}
	if got.LastMessageAt != 2000 || got.LastMessagePreview != "newer" {
		t.Errorf("conversation = %+v, want last message pointer kept at 2000/newer", got)
	}
	if got.UserName != "Ana" {
		t.Errorf("UserName = %q, want Ana preserved through empty update", got.UserName)
	}
}

func TestUnreadCounters(t *testing.T) {
	db := testDB(t)

	if err := db.UpsertConversation(&Conversation{Key: "u2", UserID: "u2"}); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := db.IncrementUnread("u2"); err != nil {
			t.Fatal(err)
		}
	}

	got, err := db.GetConversation("u2")
	if err != nil {
		t.Fatal(err)
	}
	if got.UnreadCount != 3 {
		t.Errorf("UnreadCount = %d, want 3", got.UnreadCount)
	}

	if err := db.MarkConversationRead("u2"); err != nil {
		t.Fatal(err)
	}
	got, _ = db.GetConversation("u2")
	if got.UnreadCount != 0 {
		t.Errorf("UnreadCount after read = %d, want 0", got.UnreadCount)
	}
}

func TestListConversationsOrder(t *testing.T) {
	db := testDB(t)

	_ = db.UpsertConversation(&Conversation{Key: "u2", UserID: "u2", LastMessageAt: 1000})
	_ = db.UpsertConversation(&Conversation{Key: "u3:l1", UserID: "u3", ListingID: "l1", LastMessageAt: 3000})
	_ = db.UpsertConversation(&Conversation{Key: "u4", UserID: "u4", LastMessageAt: 2000})

	convs, err := db.ListConversations(10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(convs) != 3 {
		t.Fatalf("got %d conversations, want 3", len(convs))
	}
	if convs[0].Key != "u3:l1" || convs[1].Key != "u4" || convs[2].Key != "u2" {
		t.Errorf("order = %s, %s, %s; want most recent first", convs[0].Key, convs[1].Key, convs[2].Key)
	}

	if _, err := db.GetConversation("nope"); err != nil {
		t.Errorf("GetConversation(missing) error = %v, want nil", err)
	}
}
