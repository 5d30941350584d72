package gateway

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/FathanAS/fdvp-backend/internal/models"
	"github.com/FathanAS/fdvp-backend/internal/presence"
	"github.com/FathanAS/fdvp-backend/internal/push"
	"github.com/FathanAS/fdvp-backend/internal/ws"
)

var testNow = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

type emitRecord struct {
	room  string
	event string
	data  any
}

type fakeBroker struct {
	mu      sync.Mutex
	emits   []emitRecord
	members map[string]map[string]bool
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{members: map[string]map[string]bool{}}
}

func (b *fakeBroker) Join(c ws.Conn, room string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.members[room] == nil {
		b.members[room] = map[string]bool{}
	}
	b.members[room][c.UserID()] = true
}

func (b *fakeBroker) Emit(room, event string, data any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.emits = append(b.emits, emitRecord{room, event, data})
}

func (b *fakeBroker) EmitExcept(room, event string, data any, except ws.Conn) {
	b.Emit(room, event, data)
}

func (b *fakeBroker) UserInRoom(room, userID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.members[room][userID]
}

func (b *fakeBroker) byEvent(event string) []emitRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []emitRecord
	for _, e := range b.emits {
		if e.event == event {
			out = append(out, e)
		}
	}
	return out
}

type presenceWrite struct {
	online   bool
	lastSeen *time.Time
}

type fakeStore struct {
	mu             sync.Mutex
	users          map[string]*models.User
	messages       map[string]models.Message
	convs          map[string]models.ConversationEntry
	removedTokens  map[string][]string
	presenceWrites map[string][]presenceWrite

	failGetUser error
	failPut     error
	failUpsert  error
	failMark    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:          map[string]*models.User{},
		messages:       map[string]models.Message{},
		convs:          map[string]models.ConversationEntry{},
		removedTokens:  map[string][]string{},
		presenceWrites: map[string][]presenceWrite{},
	}
}

func (s *fakeStore) GetUser(_ context.Context, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failGetUser != nil {
		return nil, s.failGetUser
	}
	return s.users[id], nil
}

func (s *fakeStore) SetPresence(_ context.Context, id string, online bool, lastSeen *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.presenceWrites[id] = append(s.presenceWrites[id], presenceWrite{online, lastSeen})
	return nil
}

func (s *fakeStore) PutMessage(_ context.Context, m *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPut != nil {
		return s.failPut
	}
	s.messages[m.ID] = *m
	return nil
}

func (s *fakeStore) MessagesByRoom(_ context.Context, roomID string) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Message
	for _, m := range s.messages {
		if m.RoomID == roomID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *fakeStore) MarkMessagesRead(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failMark != nil {
		return s.failMark
	}
	for _, id := range ids {
		if m, ok := s.messages[id]; ok {
			m.IsRead = true
			s.messages[id] = m
		}
	}
	return nil
}

func (s *fakeStore) UpsertConversations(_ context.Context, entries ...models.ConversationEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpsert != nil {
		return s.failUpsert
	}
	for _, e := range entries {
		s.convs[e.OwnerID+"|"+e.PartnerID] = e
	}
	return nil
}

func (s *fakeStore) RemovePushTokens(_ context.Context, userID string, tokens []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removedTokens[userID] = append(s.removedTokens[userID], tokens...)
	return nil
}

type fakeConn struct {
	id     string
	userID string
	mu     sync.Mutex
	events []emitRecord
}

func (c *fakeConn) ID() string     { return c.id }
func (c *fakeConn) UserID() string { return c.userID }

func (c *fakeConn) Emit(event string, data any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, emitRecord{event: event, data: data})
	return nil
}

type fakePush struct {
	mu      sync.Mutex
	sent    [][]string
	results []push.Result
	err     error
}

func (p *fakePush) Send(_ context.Context, tokens []string, _ push.Notification) ([]push.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, tokens)
	return p.results, p.err
}

func newTestGateway(broker *fakeBroker, store *fakeStore) *Gateway {
	return New(Config{
		Broker:   broker,
		Presence: presence.NewTracker(),
		Store:    store,
		Logger:   zerolog.Nop(),
		Now:      func() time.Time { return testNow },
	})
}

func dispatch(t *testing.T, g *Gateway, c ws.Conn, event string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	g.HandleEvent(context.Background(), c, event, raw)
}

func TestPresenceLifecycle(t *testing.T) {
	broker := newFakeBroker()
	store := newFakeStore()
	g := newTestGateway(broker, store)

	tab1 := &fakeConn{id: "c1", userID: "alice"}
	tab2 := &fakeConn{id: "c2", userID: "alice"}

	g.HandleConnect(tab1)
	g.HandleConnect(tab2)

	if got := broker.byEvent(EventUserStatus); len(got) != 1 {
		t.Fatalf("userStatus emits after two tabs = %d, want 1", len(got))
	}
	if writes := store.presenceWrites["alice"]; len(writes) != 1 || !writes[0].online {
		t.Fatalf("presence writes after connect = %+v, want one online write", writes)
	}
	if !broker.UserInRoom(ws.GlobalRoom, "alice") || !broker.UserInRoom("alice", "alice") {
		t.Fatal("connect did not join the private and global rooms")
	}

	g.HandleDisconnect(tab1)
	if got := broker.byEvent(EventUserStatus); len(got) != 1 {
		t.Fatal("closing one of two tabs must not broadcast offline")
	}

	g.HandleDisconnect(tab2)
	statuses := broker.byEvent(EventUserStatus)
	if len(statuses) != 2 {
		t.Fatalf("userStatus emits after last disconnect = %d, want 2", len(statuses))
	}
	off := statuses[1].data.(userStatusPayload)
	if off.IsOnline || off.LastSeen == nil || !off.LastSeen.Equal(testNow) {
		t.Fatalf("offline status = %+v, want isOnline=false with lastSeen %v", off, testNow)
	}
	writes := store.presenceWrites["alice"]
	if len(writes) != 2 || writes[1].online || writes[1].lastSeen == nil {
		t.Fatalf("presence writes = %+v, want offline write with lastSeen", writes)
	}
}

func TestAnonymousConnectionNotTracked(t *testing.T) {
	broker := newFakeBroker()
	store := newFakeStore()
	g := newTestGateway(broker, store)

	c := &fakeConn{id: "c1"}
	g.HandleConnect(c)
	g.HandleDisconnect(c)

	if len(broker.byEvent(EventUserStatus)) != 0 {
		t.Fatal("anonymous connection produced a status broadcast")
	}
	if len(store.presenceWrites) != 0 {
		t.Fatal("anonymous connection wrote presence")
	}
}

func sendPayload() SendMessagePayload {
	return SendMessagePayload{
		ID:         "m1",
		RoomID:     "alice_bob",
		SenderID:   "alice",
		SenderName: "Alice",
		Text:       "hello",
	}
}

func TestSendMessageNotifiesAbsentRecipient(t *testing.T) {
	broker := newFakeBroker()
	store := newFakeStore()
	g := newTestGateway(broker, store)

	dispatch(t, g, &fakeConn{id: "c1", userID: "alice"}, EventSendMessage, sendPayload())

	room := broker.byEvent(EventReceiveMessage)
	if len(room) != 1 || room[0].room != "alice_bob" {
		t.Fatalf("receiveMessage emits = %+v, want one to alice_bob", room)
	}
	notifs := broker.byEvent(EventReceiveNotification)
	if len(notifs) != 1 || notifs[0].room != "bob" {
		t.Fatalf("receiveNotification emits = %+v, want one to bob's private room", notifs)
	}
	if _, ok := store.messages["m1"]; !ok {
		t.Fatal("message was not persisted")
	}
}

func TestSendMessageSuppressesNotificationInRoom(t *testing.T) {
	broker := newFakeBroker()
	store := newFakeStore()
	g := newTestGateway(broker, store)

	bob := &fakeConn{id: "c2", userID: "bob"}
	broker.Join(bob, "alice_bob")

	dispatch(t, g, &fakeConn{id: "c1", userID: "alice"}, EventSendMessage, sendPayload())

	if len(broker.byEvent(EventReceiveMessage)) != 1 {
		t.Fatal("room broadcast missing")
	}
	if len(broker.byEvent(EventReceiveNotification)) != 0 {
		t.Fatal("recipient in the room still got a notification")
	}
}

func TestSendMessageUpsertsBothConversationRows(t *testing.T) {
	broker := newFakeBroker()
	store := newFakeStore()
	store.users["alice"] = &models.User{ID: "alice", PhotoURL: "https://cdn/alice.png"}
	g := newTestGateway(broker, store)

	dispatch(t, g, &fakeConn{id: "c1", userID: "alice"}, EventSendMessage, sendPayload())

	mine, ok := store.convs["alice|bob"]
	if !ok || mine.LastMessage != "hello" || mine.LastMessageID != "m1" {
		t.Fatalf("sender-side row = %+v", mine)
	}
	theirs, ok := store.convs["bob|alice"]
	if !ok || theirs.PartnerName != "Alice" || theirs.PartnerPhoto != "https://cdn/alice.png" {
		t.Fatalf("recipient-side row = %+v, want sender display fields", theirs)
	}
}

func TestSendMessagePhotoFallsBackOnLookupFailure(t *testing.T) {
	broker := newFakeBroker()
	store := newFakeStore()
	store.failGetUser = context.DeadlineExceeded
	g := newTestGateway(broker, store)

	p := sendPayload()
	p.SenderPhoto = "client-photo"
	dispatch(t, g, &fakeConn{id: "c1", userID: "alice"}, EventSendMessage, p)

	if m := store.messages["m1"]; m.SenderPhoto != "client-photo" {
		t.Fatalf("senderPhoto = %q, want the client-supplied fallback", m.SenderPhoto)
	}
	if len(broker.byEvent(EventReceiveMessage)) != 1 {
		t.Fatal("photo lookup failure must not abort the send")
	}
}

func TestSendMessageRejectsMalformedRoom(t *testing.T) {
	for _, roomID := range []string{"", "aliceonly", "carol_dave"} {
		broker := newFakeBroker()
		store := newFakeStore()
		g := newTestGateway(broker, store)

		p := sendPayload()
		p.RoomID = roomID
		dispatch(t, g, &fakeConn{id: "c1", userID: "alice"}, EventSendMessage, p)

		if len(store.messages) != 0 {
			t.Errorf("roomId %q: message persisted", roomID)
		}
		if len(broker.emits) != 0 {
			t.Errorf("roomId %q: emits = %+v, want none", roomID, broker.emits)
		}
	}
}

func TestSendMessagePersistFailureAbortsBroadcast(t *testing.T) {
	broker := newFakeBroker()
	store := newFakeStore()
	store.failPut = context.DeadlineExceeded
	g := newTestGateway(broker, store)

	dispatch(t, g, &fakeConn{id: "c1", userID: "alice"}, EventSendMessage, sendPayload())

	if len(broker.emits) != 0 {
		t.Fatalf("emits after persist failure = %+v, want none", broker.emits)
	}
	if len(store.convs) != 0 {
		t.Fatal("conversation rows written despite persist failure")
	}
}

func TestSendMessageIndexFailureAbortsBroadcast(t *testing.T) {
	broker := newFakeBroker()
	store := newFakeStore()
	store.failUpsert = context.DeadlineExceeded
	g := newTestGateway(broker, store)

	dispatch(t, g, &fakeConn{id: "c1", userID: "alice"}, EventSendMessage, sendPayload())

	if len(broker.emits) != 0 {
		t.Fatalf("emits after index failure = %+v, want none", broker.emits)
	}
}

func TestSendMessageResendOverwrites(t *testing.T) {
	broker := newFakeBroker()
	store := newFakeStore()
	g := newTestGateway(broker, store)
	c := &fakeConn{id: "c1", userID: "alice"}

	dispatch(t, g, c, EventSendMessage, sendPayload())
	p := sendPayload()
	p.Text = "hello again"
	dispatch(t, g, c, EventSendMessage, p)

	if len(store.messages) != 1 {
		t.Fatalf("stored messages = %d, want resend to overwrite", len(store.messages))
	}
	if store.messages["m1"].Text != "hello again" {
		t.Fatal("resend did not overwrite the message body")
	}
	if len(broker.byEvent(EventReceiveMessage)) != 2 {
		t.Fatal("each accepted send must broadcast")
	}
}

func TestSendMessagePrunesDeadPushTokens(t *testing.T) {
	broker := newFakeBroker()
	store := newFakeStore()
	store.users["bob"] = &models.User{ID: "bob", PushTokens: []string{"t1", "t2"}}
	dispatcher := &fakePush{results: []push.Result{
		{Token: "t1", OK: true},
		{Token: "t2", OK: false, Error: "unregistered"},
	}}
	g := New(Config{
		Broker:   broker,
		Presence: presence.NewTracker(),
		Store:    store,
		Push:     dispatcher,
		Logger:   zerolog.Nop(),
		Now:      func() time.Time { return testNow },
	})

	dispatch(t, g, &fakeConn{id: "c1", userID: "alice"}, EventSendMessage, sendPayload())

	if len(dispatcher.sent) != 1 || len(dispatcher.sent[0]) != 2 {
		t.Fatalf("push sends = %+v, want one send with both tokens", dispatcher.sent)
	}
	if got := store.removedTokens["bob"]; len(got) != 1 || got[0] != "t2" {
		t.Fatalf("removed tokens = %v, want [t2]", got)
	}
}

func TestJoinRoomReplaysHistoryToCallerOnly(t *testing.T) {
	broker := newFakeBroker()
	store := newFakeStore()
	store.messages["m1"] = models.Message{ID: "m1", RoomID: "alice_bob", SenderID: "alice", Text: "hi", CreatedAt: testNow}
	store.messages["m2"] = models.Message{ID: "m2", RoomID: "alice_bob", SenderID: "bob", Text: "yo", CreatedAt: testNow.Add(time.Second)}
	store.messages["m3"] = models.Message{ID: "m3", RoomID: "carol_dave", SenderID: "carol", Text: "nope", CreatedAt: testNow}
	g := newTestGateway(broker, store)

	c := &fakeConn{id: "c1", userID: "alice"}
	dispatch(t, g, c, EventJoinRoom, joinRoomPayload{RoomID: "alice_bob"})

	if !broker.UserInRoom("alice_bob", "alice") {
		t.Fatal("joinRoom did not register room membership")
	}
	if len(c.events) != 1 || c.events[0].event != EventLoadPreviousMessages {
		t.Fatalf("caller events = %+v, want one loadPreviousMessages", c.events)
	}
	msgs := c.events[0].data.([]models.Message)
	if len(msgs) != 2 || msgs[0].ID != "m1" || msgs[1].ID != "m2" {
		t.Fatalf("history = %+v, want m1 then m2", msgs)
	}
	if len(broker.emits) != 0 {
		t.Fatal("history must go to the caller only, not the room")
	}
}

func TestJoinRoomEmptyHistoryIsEmptySlice(t *testing.T) {
	g := newTestGateway(newFakeBroker(), newFakeStore())
	c := &fakeConn{id: "c1", userID: "alice"}
	dispatch(t, g, c, EventJoinRoom, joinRoomPayload{RoomID: "alice_bob"})

	if len(c.events) != 1 {
		t.Fatalf("caller events = %+v", c.events)
	}
	msgs := c.events[0].data.([]models.Message)
	if msgs == nil || len(msgs) != 0 {
		t.Fatalf("empty history = %#v, want non-nil empty slice", msgs)
	}
}

func TestReadMessageRelay(t *testing.T) {
	broker := newFakeBroker()
	store := newFakeStore()
	store.messages["m1"] = models.Message{ID: "m1", RoomID: "alice_bob"}
	store.messages["m2"] = models.Message{ID: "m2", RoomID: "alice_bob"}
	g := newTestGateway(broker, store)

	dispatch(t, g, &fakeConn{id: "c1", userID: "bob"}, EventReadMessage,
		readMessagePayload{RoomID: "alice_bob", UserID: "bob", MessageIDs: []string{"m1", "m2"}})

	if !store.messages["m1"].IsRead || !store.messages["m2"].IsRead {
		t.Fatal("messages not marked read")
	}
	got := broker.byEvent(EventMessagesReadUpdate)
	if len(got) != 1 || got[0].room != "alice_bob" {
		t.Fatalf("messagesReadUpdate emits = %+v", got)
	}
}

func TestReadMessageStoreFailureSkipsRelay(t *testing.T) {
	broker := newFakeBroker()
	store := newFakeStore()
	store.failMark = context.DeadlineExceeded
	g := newTestGateway(broker, store)

	dispatch(t, g, &fakeConn{id: "c1", userID: "bob"}, EventReadMessage,
		readMessagePayload{RoomID: "alice_bob", MessageIDs: []string{"m1"}})

	if len(broker.emits) != 0 {
		t.Fatal("relay fired despite mark-read failure")
	}
}

func TestTypingRelay(t *testing.T) {
	broker := newFakeBroker()
	g := newTestGateway(broker, newFakeStore())

	dispatch(t, g, &fakeConn{id: "c1", userID: "alice"}, EventTyping,
		typingPayload{RoomID: "alice_bob", UserID: "alice", IsTyping: true})

	got := broker.byEvent(EventDisplayTyping)
	if len(got) != 1 || got[0].room != "alice_bob" {
		t.Fatalf("displayTyping emits = %+v", got)
	}
}

func TestEditAndDeleteRelays(t *testing.T) {
	broker := newFakeBroker()
	g := newTestGateway(broker, newFakeStore())
	c := &fakeConn{id: "c1", userID: "alice"}

	dispatch(t, g, c, EventEditMessage,
		editMessagePayload{RoomID: "alice_bob", MessageID: "m1", NewText: "fixed"})
	dispatch(t, g, c, EventDeleteMessages,
		deleteMessagesPayload{RoomID: "alice_bob", MessageIDs: []string{"m1", "m2"}})

	if got := broker.byEvent(EventMessageEdited); len(got) != 1 || got[0].room != "alice_bob" {
		t.Fatalf("messageEdited emits = %+v", got)
	}
	if got := broker.byEvent(EventMessageDeleted); len(got) != 1 || got[0].room != "alice_bob" {
		t.Fatalf("messageDeleted emits = %+v", got)
	}
}

func TestBroadcastMessage(t *testing.T) {
	broker := newFakeBroker()
	g := newTestGateway(broker, newFakeStore())

	dispatch(t, g, &fakeConn{id: "c1", userID: "admin"}, EventBroadcastMessage,
		broadcastPayload{Message: "maintenance at noon", SenderName: "Ops"})

	got := broker.byEvent(EventReceiveNotification)
	if len(got) != 1 || got[0].room != ws.GlobalRoom {
		t.Fatalf("broadcast emits = %+v, want one to the global room", got)
	}
	n := got[0].data.(notificationPayload)
	if n.SenderID != SystemSenderID || n.Text != "maintenance at noon" || n.CreatedAt == "" {
		t.Fatalf("broadcast payload = %+v", n)
	}
}

func TestUnknownEventIgnored(t *testing.T) {
	broker := newFakeBroker()
	g := newTestGateway(broker, newFakeStore())
	g.HandleEvent(context.Background(), &fakeConn{id: "c1", userID: "alice"}, "nonsense", json.RawMessage(`{}`))

	if len(broker.emits) != 0 {
		t.Fatal("unknown event produced emits")
	}
}
