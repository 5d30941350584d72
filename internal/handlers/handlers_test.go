package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/FathanAS/fdvp-backend/internal/models"
	"github.com/FathanAS/fdvp-backend/internal/presence"
	"github.com/FathanAS/fdvp-backend/internal/store"
)

func newTestServer(t *testing.T) (*httptest.Server, *store.SQLiteStore, *presence.Tracker) {
	t.Helper()
	db, err := store.NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(db.Close)

	tracker := presence.NewTracker()
	h := NewHandler(db, nil, tracker, nil)

	r := chi.NewRouter()
	r.Get("/health", h.Health)
	r.Get("/stats", h.Stats)
	r.Route("/chat", func(r chi.Router) {
		r.Get("/history/{roomId}", h.GetHistory)
		r.Delete("/history/{roomId}", h.ClearHistory)
		r.Delete("/messages", h.DeleteMessages)
		r.Patch("/messages/{id}", h.EditMessage)
	})
	r.Get("/conversations/{userId}", h.GetConversations)
	r.Route("/users/{id}", func(r chi.Router) {
		r.Put("/", h.UpsertUser)
		r.Get("/status", h.GetUserStatus)
		r.Post("/push-tokens", h.AddPushToken)
		r.Delete("/push-tokens", h.RemovePushTokens)
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, db, tracker
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatal(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	raw, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatal(err)
	}
	return resp, raw
}

func seedRoom(t *testing.T, db *store.SQLiteStore) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	msgs := []models.Message{
		{ID: "m1", RoomID: "alice_bob", SenderID: "alice", SenderName: "Alice", Text: "hi", CreatedAt: base},
		{ID: "m2", RoomID: "alice_bob", SenderID: "bob", SenderName: "Bob", Text: "hey", CreatedAt: base.Add(time.Minute)},
	}
	for i := range msgs {
		if err := db.PutMessage(ctx, &msgs[i]); err != nil {
			t.Fatal(err)
		}
	}
}

func TestGetHistory(t *testing.T) {
	srv, db, _ := newTestServer(t)
	seedRoom(t, db)
	if err := db.SoftDeleteMessages(context.Background(), []string{"m1"}, "alice"); err != nil {
		t.Fatal(err)
	}

	resp, raw := doJSON(t, http.MethodGet, srv.URL+"/chat/history/alice_bob?userId=alice", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, raw)
	}
	var out HistoryResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatal(err)
	}
	if len(out.Messages) != 1 || out.Messages[0].ID != "m2" {
		t.Fatalf("alice's view = %+v, want only m2", out.Messages)
	}

	// Bob still sees both.
	_, raw = doJSON(t, http.MethodGet, srv.URL+"/chat/history/alice_bob?userId=bob", nil)
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatal(err)
	}
	if len(out.Messages) != 2 {
		t.Fatalf("bob's view = %+v, want both", out.Messages)
	}
}

func TestGetHistoryRejectsOutsiders(t *testing.T) {
	srv, db, _ := newTestServer(t)
	seedRoom(t, db)

	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/chat/history/alice_bob?userId=carol", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status for non-participant = %d, want 400", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/chat/history/alice_bob", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status without userId = %d, want 400", resp.StatusCode)
	}
}

func TestClearHistory(t *testing.T) {
	srv, db, _ := newTestServer(t)
	seedRoom(t, db)

	resp, raw := doJSON(t, http.MethodDelete, srv.URL+"/chat/history/alice_bob?userId=alice", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, raw)
	}

	_, raw = doJSON(t, http.MethodGet, srv.URL+"/chat/history/alice_bob?userId=alice", nil)
	var out HistoryResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatal(err)
	}
	if len(out.Messages) != 0 {
		t.Fatalf("alice still sees %+v after clearing", out.Messages)
	}
}

func TestDeleteMessages(t *testing.T) {
	srv, db, _ := newTestServer(t)
	seedRoom(t, db)

	resp, raw := doJSON(t, http.MethodDelete, srv.URL+"/chat/messages", DeleteMessagesRequest{
		RoomID: "alice_bob", UserID: "bob", MessageIDs: []string{"m1"},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, raw)
	}

	m, err := db.GetMessage(context.Background(), "m1")
	if err != nil {
		t.Fatal(err)
	}
	if len(m.DeletedBy) != 1 || m.DeletedBy[0] != "bob" {
		t.Fatalf("deletedBy = %v, want [bob]", m.DeletedBy)
	}
}

func TestEditMessageOwnership(t *testing.T) {
	srv, db, _ := newTestServer(t)
	seedRoom(t, db)

	resp, _ := doJSON(t, http.MethodPatch, srv.URL+"/chat/messages/m1", EditMessageRequest{
		UserID: "bob", NewText: "hijacked",
	})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("non-sender edit status = %d, want 403", resp.StatusCode)
	}

	resp, raw := doJSON(t, http.MethodPatch, srv.URL+"/chat/messages/m1", EditMessageRequest{
		UserID: "alice", NewText: "hi there",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("sender edit status = %d: %s", resp.StatusCode, raw)
	}

	m, err := db.GetMessage(context.Background(), "m1")
	if err != nil {
		t.Fatal(err)
	}
	if m.Text != "hi there" || !m.IsEdited || m.EditedAt == nil {
		t.Fatalf("got %+v", m)
	}
}

func TestEditMessageMissing(t *testing.T) {
	srv, _, _ := newTestServer(t)
	resp, _ := doJSON(t, http.MethodPatch, srv.URL+"/chat/messages/ghost", EditMessageRequest{
		UserID: "alice", NewText: "x",
	})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestGetConversationsOverlaysPresence(t *testing.T) {
	srv, db, tracker := newTestServer(t)
	now := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	err := db.UpsertConversations(context.Background(), models.ConversationEntry{
		OwnerID: "alice", PartnerID: "bob", PartnerName: "Bob",
		LastMessage: "hey", LastMessageID: "m2", Timestamp: now, UpdatedAt: now,
	})
	if err != nil {
		t.Fatal(err)
	}
	tracker.Connect("bob", "conn-1")

	resp, raw := doJSON(t, http.MethodGet, srv.URL+"/conversations/alice", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, raw)
	}
	var out ConversationsResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatal(err)
	}
	if len(out.Conversations) != 1 || !out.Conversations[0].PartnerOnline {
		t.Fatalf("got %+v, want bob online", out.Conversations)
	}
}

func TestGetUserStatus(t *testing.T) {
	srv, db, tracker := newTestServer(t)
	seen := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	if err := db.SetPresence(context.Background(), "alice", false, &seen); err != nil {
		t.Fatal(err)
	}

	_, raw := doJSON(t, http.MethodGet, srv.URL+"/users/alice/status", nil)
	var out UserStatusResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatal(err)
	}
	if out.IsOnline || out.LastSeen == nil || !out.LastSeen.Equal(seen) {
		t.Fatalf("offline status = %+v", out)
	}

	// Live tracker wins over the stored flag.
	tracker.Connect("alice", "conn-1")
	_, raw = doJSON(t, http.MethodGet, srv.URL+"/users/alice/status", nil)
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatal(err)
	}
	if !out.IsOnline {
		t.Fatalf("online status = %+v", out)
	}
}

func TestPushTokenEndpoints(t *testing.T) {
	srv, db, _ := newTestServer(t)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/users/alice/push-tokens", PushTokenRequest{Token: "t1"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status = %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/users/alice/push-tokens", PushTokenRequest{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty token status = %d, want 400", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/users/alice/push-tokens",
		RemovePushTokensRequest{Tokens: []string{"t1"}})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("remove status = %d", resp.StatusCode)
	}
	u, err := db.GetUser(context.Background(), "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(u.PushTokens) != 0 {
		t.Fatalf("tokens = %v, want empty", u.PushTokens)
	}
}

func TestUpsertUserEndpoint(t *testing.T) {
	srv, db, _ := newTestServer(t)

	resp, _ := doJSON(t, http.MethodPut, srv.URL+"/users/alice", UpsertUserRequest{
		DisplayName: "Alice", PhotoURL: "alice.png",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	u, err := db.GetUser(context.Background(), "alice")
	if err != nil {
		t.Fatal(err)
	}
	if u == nil || u.DisplayName != "Alice" || u.PhotoURL != "alice.png" {
		t.Fatalf("got %+v", u)
	}
}

func TestHealth(t *testing.T) {
	srv, _, _ := newTestServer(t)
	resp, raw := doJSON(t, http.MethodGet, srv.URL+"/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, raw)
	}
	var out HealthResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatal(err)
	}
	if out.Status != "healthy" || out.Checks["database"].Status != "pass" {
		t.Fatalf("got %+v", out)
	}
}

func TestStats(t *testing.T) {
	srv, db, tracker := newTestServer(t)
	seedRoom(t, db)
	tracker.Connect("alice", "conn-1")

	_, raw := doJSON(t, http.MethodGet, srv.URL+"/stats", nil)
	var out StatsResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatal(err)
	}
	if out.TotalMessages != 2 || out.OnlineUsers != 1 {
		t.Fatalf("got %+v", out)
	}
}
