package outbox

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/leadchat/internal/bus"
	"github.com/matheus3301/leadchat/internal/chat"
	"github.com/matheus3301/leadchat/internal/store"
)

// mockSender records calls and returns configurable results.
type mockSender struct {
	mu    sync.Mutex
	calls []sendCall
	err   error
}

type sendCall struct {
	ConversationID string
	Text           string
	ClientRef      string
}

func (m *mockSender) SendText(_ context.Context, conversationID, text, clientRef string) (chat.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, sendCall{ConversationID: conversationID, Text: text, ClientRef: clientRef})
	if m.err != nil {
		return chat.Message{}, m.err
	}
	return chat.Message{
		ID: "server-" + clientRef, ClientRef: clientRef, ConversationID: conversationID,
		Direction: chat.Outbound, Kind: chat.Text, Body: text, State: chat.Sent,
	}, nil
}

func (m *mockSender) snapshot() []sendCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sendCall(nil), m.calls...)
}

type recordingListener struct {
	mu        sync.Mutex
	confirmed map[string]chat.Message
	failed    map[string]error
}

func newRecordingListener() *recordingListener {
	return &recordingListener{confirmed: map[string]chat.Message{}, failed: map[string]error{}}
}

func (r *recordingListener) SendConfirmed(_, tempID string, m chat.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.confirmed[tempID] = m
}

func (r *recordingListener) SendFailed(_, tempID string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed[tempID] = err
}

func testDB(t *testing.T) *store.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func waitEvent(t *testing.T, ch <-chan bus.Event) bus.Event {
	t.Helper()
	select {
	case evt := <-ch:
		return evt
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for event")
	}
	return bus.Event{}
}

func TestSenderProcessesPendingMessages(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	mock := &mockSender{}
	logger, _ := zap.NewDevelopment()
	s := NewSender(db, mock, b, logger)
	l := newRecordingListener()
	s.Bind(l)

	ch, unsub := b.Subscribe(bus.MessageSendAck, 10)
	defer unsub()

	if err := db.QueueOutbox("tmp-1", "conv-1", "hello"); err != nil {
		t.Fatal(err)
	}

	s.Start(context.Background())
	defer s.Stop()
	s.Kick()

	evt := waitEvent(t, ch)
	res := evt.Payload.(Result)
	if res.TempID != "tmp-1" || res.MessageID != "server-tmp-1" {
		t.Errorf("ack = %+v", res)
	}
	if evt.Conversation != "conv-1" {
		t.Errorf("event conversation = %q, want conv-1", evt.Conversation)
	}

	calls := mock.snapshot()
	if len(calls) != 1 {
		t.Fatalf("got %d send calls, want 1", len(calls))
	}
	if calls[0] != (sendCall{ConversationID: "conv-1", Text: "hello", ClientRef: "tmp-1"}) {
		t.Errorf("call = %+v", calls[0])
	}

	pending, err := db.PendingOutbox()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("got %d pending, want 0 after send", len(pending))
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if m, ok := l.confirmed["tmp-1"]; !ok || m.ID != "server-tmp-1" {
		t.Errorf("listener confirmed = %+v", l.confirmed)
	}
}

func TestSenderHandlesFailure(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	mock := &mockSender{err: fmt.Errorf("%w: connection reset", chat.ErrNetwork)}
	s := NewSender(db, mock, b, zap.NewNop())
	l := newRecordingListener()
	s.Bind(l)

	ch, unsub := b.Subscribe(bus.MessageSendFailed, 10)
	defer unsub()

	if err := db.QueueOutbox("tmp-1", "conv-1", "hello"); err != nil {
		t.Fatal(err)
	}

	s.Start(context.Background())
	defer s.Stop()
	s.Kick()

	evt := waitEvent(t, ch)
	if res := evt.Payload.(Result); res.TempID != "tmp-1" || res.Error == "" {
		t.Errorf("failure = %+v", res)
	}

	pending, err := db.PendingOutbox()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("got %d pending, want 0 (should be marked failed)", len(pending))
	}
	unresolved, err := db.UnresolvedOutbox("conv-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(unresolved) != 1 || unresolved[0].Status != store.OutboxFailed {
		t.Errorf("unresolved = %+v, want one failed entry", unresolved)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.failed["tmp-1"]; !ok {
		t.Error("listener not told about the failure")
	}
}

func TestSenderPreservesQueueOrder(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	mock := &mockSender{}
	s := NewSender(db, mock, b, nil)

	ch, unsub := b.Subscribe(bus.MessageSendAck, 10)
	defer unsub()

	for i, body := range []string{"one", "two", "three"} {
		if err := db.QueueOutbox(fmt.Sprintf("tmp-%d", i), "conv-1", body); err != nil {
			t.Fatal(err)
		}
	}

	s.Start(context.Background())
	defer s.Stop()
	for range 3 {
		waitEvent(t, ch)
	}

	calls := mock.snapshot()
	for i, want := range []string{"one", "two", "three"} {
		if calls[i].Text != want {
			t.Errorf("call %d = %q, want %q", i, calls[i].Text, want)
		}
	}
}

func TestSenderRequeuesInterruptedSends(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	mock := &mockSender{}
	s := NewSender(db, mock, b, nil)

	ch, unsub := b.Subscribe(bus.MessageSendAck, 10)
	defer unsub()

	if err := db.QueueOutbox("tmp-1", "conv-1", "hello"); err != nil {
		t.Fatal(err)
	}
	if err := db.MarkOutboxSending("tmp-1"); err != nil {
		t.Fatal(err)
	}

	s.Start(context.Background())
	defer s.Stop()

	if res := waitEvent(t, ch).Payload.(Result); res.TempID != "tmp-1" {
		t.Errorf("ack = %+v", res)
	}
}
