package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/nmanikumar5/swappio/internal/auth"
	"github.com/nmanikumar5/swappio/internal/rest"
	"go.uber.org/zap"
)

func testClient(t *testing.T, handler http.Handler) *rest.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	store := auth.NewStore(filepath.Join(t.TempDir(), "credentials.json"))
	session, err := auth.NewSession(store, srv.Client(), srv.URL+"/auth/refresh", zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if err := session.SetCredentials("tok-1", &auth.User{ID: "self"}); err != nil {
		t.Fatal(err)
	}

	c, err := rest.New(srv.URL, srv.Client(), session, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestHistoryRequestShape(t *testing.T) {
	var gotPath, gotPage, gotLimit, gotAuth string
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotPage = r.URL.Query().Get("page")
		gotLimit = r.URL.Query().Get("limit")
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`[
			{"_id":"m1","sender":{"_id":"u2","name":"Ana"},"receiver":"self","text":"hey","createdAt":"2026-03-01T12:00:00Z"}
		]`))
	}))

	msgs, err := NewMessages(c).History(context.Background(), "u2", 0, 0)
	if err != nil {
		t.Fatal(err)
	}

	if gotPath != "/messages/u2" {
		t.Errorf("path = %q, want /messages/u2", gotPath)
	}
	if gotPage != "1" || gotLimit != "50" {
		t.Errorf("page/limit = %s/%s, want defaults 1/50", gotPage, gotLimit)
	}
	if gotAuth != "Bearer tok-1" {
		t.Errorf("Authorization = %q, want Bearer tok-1", gotAuth)
	}
	if len(msgs) != 1 || msgs[0].Sender != "u2" {
		t.Errorf("msgs = %+v, want one message with normalized sender u2", msgs)
	}
}

func TestConversationsDecode(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages/conversations" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`[
			{"user":{"_id":"u2","name":"Ana"},"lastMessage":{"_id":"m1","sender":"u2","receiver":"self","text":"hey","createdAt":"2026-03-01T12:00:00Z"},"unreadCount":2},
			{"user":{"_id":"u3","name":"Bo"},"listingId":{"_id":"l1"},"unreadCount":0}
		]`))
	}))

	convs, err := NewMessages(c).Conversations(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(convs) != 2 {
		t.Fatalf("got %d conversations, want 2", len(convs))
	}
	if convs[0].Key() != "u2" || convs[0].UnreadCount != 2 {
		t.Errorf("first = key %q unread %d, want u2/2", convs[0].Key(), convs[0].UnreadCount)
	}
	if convs[1].Key() != "u3:l1" {
		t.Errorf("second key = %q, want u3:l1 (listing id normalized)", convs[1].Key())
	}
}

func TestSendPostsBody(t *testing.T) {
	var got map[string]string
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/messages" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"_id":"srv-1","sender":"self","receiver":"u2","text":"hi","createdAt":"2026-03-01T12:00:00Z"}`))
	}))

	msg, err := NewMessages(c).Send(context.Background(), "u2", "hi", "")
	if err != nil {
		t.Fatal(err)
	}
	if got["receiverId"] != "u2" || got["text"] != "hi" {
		t.Errorf("body = %v, want receiverId/text set", got)
	}
	if _, ok := got["listingId"]; ok {
		t.Error("empty listingId serialized, want omitted")
	}
	if msg.ID != "srv-1" {
		t.Errorf("msg.ID = %q, want srv-1", msg.ID)
	}
}

func TestSearchFilterQuery(t *testing.T) {
	var q map[string][]string
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q = r.URL.Query()
		_, _ = w.Write([]byte(`[]`))
	}))

	_, err := NewListings(c).Search(context.Background(), SearchFilter{Query: "bike", MaxPrice: 120.5, Page: 2})
	if err != nil {
		t.Fatal(err)
	}
	if got := q["q"]; len(got) != 1 || got[0] != "bike" {
		t.Errorf("q = %v, want bike", got)
	}
	if got := q["maxPrice"]; len(got) != 1 || got[0] != "120.5" {
		t.Errorf("maxPrice = %v, want 120.5", got)
	}
	if _, ok := q["category"]; ok {
		t.Error("empty category sent, want omitted")
	}
}
