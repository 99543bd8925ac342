package sync

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/leadchat/internal/bus"
	"github.com/matheus3301/leadchat/internal/chat"
	"github.com/matheus3301/leadchat/internal/provider"
	"github.com/matheus3301/leadchat/internal/store"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fakeProvider struct {
	mu        sync.Mutex
	latest    map[string]*provider.Page
	latestErr error
	block     map[string]chan struct{}
	entered   chan string
	fetches   map[string]int

	older      []*provider.Page
	olderErr   error
	olderGate  chan struct{}
	olderCalls int

	templates     []chat.Template
	templateSends []provider.TemplateRequest
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		latest:  map[string]*provider.Page{},
		block:   map[string]chan struct{}{},
		fetches: map[string]int{},
		entered: make(chan string, 16),
	}
}

func (f *fakeProvider) setLatest(id string, p *provider.Page) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.latest[id] = p
}

func (f *fakeProvider) FetchLatest(_ context.Context, id string, _ int) (*provider.Page, error) {
	f.mu.Lock()
	f.fetches[id]++
	gate := f.block[id]
	f.mu.Unlock()

	if gate != nil {
		f.entered <- id
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.latestErr != nil {
		return nil, f.latestErr
	}
	p, ok := f.latest[id]
	if !ok {
		return &provider.Page{Conversation: chat.Conversation{ID: id}}, nil
	}
	cp := *p
	cp.Messages = slices.Clone(p.Messages)
	return &cp, nil
}

func (f *fakeProvider) FetchOlder(_ context.Context, _ string, _ string, _ int) (*provider.Page, error) {
	f.mu.Lock()
	f.olderCalls++
	gate := f.olderGate
	f.mu.Unlock()

	if gate != nil {
		f.entered <- "older"
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.olderErr != nil {
		return nil, f.olderErr
	}
	if len(f.older) == 0 {
		return &provider.Page{}, nil
	}
	p := f.older[0]
	f.older = f.older[1:]
	return p, nil
}

func (f *fakeProvider) ListTemplates(_ context.Context, _ chat.Channel, _ string) ([]chat.Template, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.templates, nil
}

func (f *fakeProvider) SendTemplate(_ context.Context, req provider.TemplateRequest) (*provider.TemplateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.templateSends = append(f.templateSends, req)
	return &provider.TemplateResult{Message: chat.Message{
		ID: "tpl-msg", ClientRef: req.ClientRef, ConversationID: req.ConversationID,
		Direction: chat.Outbound, Kind: chat.Text, Body: "template body", State: chat.Sent,
	}}, nil
}

func (f *fakeProvider) fetchCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches[id]
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type countingKicker struct {
	mu sync.Mutex
	n  int
}

func (k *countingKicker) Kick() {
	k.mu.Lock()
	k.n++
	k.mu.Unlock()
}

func (k *countingKicker) count() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.n
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

type harness struct {
	engine *Engine
	prov   *fakeProvider
	db     *store.DB
	bus    *bus.Bus
	clock  *clock
	kicker *countingKicker
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		prov:   newFakeProvider(),
		db:     testDB(t),
		bus:    bus.New(),
		clock:  &clock{t: t0},
		kicker: &countingKicker{},
	}
	h.engine = NewEngine(Options{Now: h.clock.Now}, Deps{
		Provider: h.prov,
		Store:    h.db,
		Outbox:   h.kicker,
		Bus:      h.bus,
	})
	return h
}

func msg(id string, dir chat.Direction, body string, at time.Time) chat.Message {
	return chat.Message{
		ID: id, ConversationID: "c1", Direction: dir, Kind: chat.Text,
		Body: body, State: chat.Delivered, CreatedAt: at,
	}
}

func threeMessages() []chat.Message {
	return []chat.Message{
		msg("m1", chat.Outbound, "hello", t0.Add(-2*time.Hour)),
		msg("m2", chat.Outbound, "anyone?", t0.Add(-time.Hour)),
		msg("m3", chat.Inbound, "yes", t0),
	}
}

func keys(msgs []chat.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Key()
	}
	return out
}

func view(t *testing.T, e *Engine) View {
	t.Helper()
	v, err := e.Timeline()
	if err != nil {
		t.Fatalf("Timeline() error = %v", err)
	}
	return v
}

func TestPendingSurvivesPollUntilConfirmed(t *testing.T) {
	h := newHarness(t)
	h.prov.setLatest("c1", &provider.Page{Messages: threeMessages()})
	ctx := context.Background()

	if err := h.engine.Select(ctx, "c1"); err != nil {
		t.Fatal(err)
	}

	h.clock.Set(t0.Add(10 * time.Hour))
	p1, err := h.engine.Send(ctx, "hi")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if p1.State != chat.Pending || p1.TempID == "" {
		t.Fatalf("optimistic entry = %+v", p1)
	}
	if h.kicker.count() != 1 {
		t.Errorf("outbox kicked %d times, want 1", h.kicker.count())
	}

	h.clock.Set(t0.Add(10*time.Hour + 5*time.Second))
	if err := h.engine.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	want := []string{"m1", "m2", "m3", "tmp:" + p1.TempID}
	if got := keys(view(t, h.engine).Messages); !slices.Equal(got, want) {
		t.Fatalf("after first poll = %v, want %v", got, want)
	}

	h.clock.Set(t0.Add(10*time.Hour + 20*time.Second))
	m4 := msg("m4", chat.Outbound, "hi", t0.Add(10*time.Hour+2*time.Second))
	h.prov.setLatest("c1", &provider.Page{Messages: append(threeMessages(), m4)})
	if err := h.engine.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	want = []string{"m1", "m2", "m3", "m4"}
	if got := keys(view(t, h.engine).Messages); !slices.Equal(got, want) {
		t.Fatalf("after second poll = %v, want %v", got, want)
	}
}

func TestExpiredWindowRejectsFreeformBeforeNetwork(t *testing.T) {
	h := newHarness(t)
	h.prov.setLatest("c1", &provider.Page{
		Messages:     threeMessages(),
		Conversation: chat.Conversation{ID: "c1", Channel: chat.WhatsApp},
	})
	h.prov.templates = []chat.Template{
		{ID: "t0", Name: "draft", Language: "pt_BR", Approved: false},
		{ID: "t1", Name: "reopen", Language: "pt_BR", Approved: true},
	}
	ctx := context.Background()
	if err := h.engine.Select(ctx, "c1"); err != nil {
		t.Fatal(err)
	}

	h.clock.Set(t0.Add(25 * time.Hour))
	_, err := h.engine.Send(ctx, "are you there?")
	if !errors.Is(err, chat.ErrSessionExpired) {
		t.Fatalf("Send() error = %v, want ErrSessionExpired", err)
	}
	if h.kicker.count() != 0 {
		t.Error("outbox kicked for a rejected send")
	}
	if pending, _ := h.db.PendingOutbox(); len(pending) != 0 {
		t.Errorf("rejected send was queued: %+v", pending)
	}
	if n := len(view(t, h.engine).Messages); n != 3 {
		t.Errorf("timeline has %d entries, want 3", n)
	}

	m, err := h.engine.SendTemplate(ctx, TemplateSend{ConversationID: "c1", Language: "pt_BR"})
	if err != nil {
		t.Fatalf("SendTemplate() error = %v", err)
	}
	if m.ID != "tpl-msg" || len(h.prov.templateSends) != 1 || h.prov.templateSends[0].TemplateID != "t1" {
		t.Errorf("template send = %+v, requests %+v", m, h.prov.templateSends)
	}

	v := view(t, h.engine)
	if !v.Conversation.LastInboundAt.Equal(t0) {
		t.Errorf("LastInboundAt = %v, want %v", v.Conversation.LastInboundAt, t0)
	}
	if v.CanSendFreeform {
		t.Error("template send reopened the window")
	}
	if got := keys(v.Messages); !slices.Equal(got, []string{"m1", "m2", "m3", "tpl-msg"}) {
		t.Errorf("timeline = %v", got)
	}
}

func TestConversationWithoutInboundRequiresTemplate(t *testing.T) {
	h := newHarness(t)
	h.prov.setLatest("c1", &provider.Page{Messages: []chat.Message{
		msg("m1", chat.Outbound, "first contact", t0),
	}})
	ctx := context.Background()
	if err := h.engine.Select(ctx, "c1"); err != nil {
		t.Fatal(err)
	}

	for _, at := range []time.Time{t0, t0.Add(time.Minute), t0.Add(48 * time.Hour)} {
		h.clock.Set(at)
		if _, err := h.engine.Send(ctx, "hello"); !errors.Is(err, chat.ErrSessionExpired) {
			t.Errorf("Send() at %v error = %v, want ErrSessionExpired", at, err)
		}
	}
}

func TestWindowOpensOnInbound(t *testing.T) {
	h := newHarness(t)
	h.prov.setLatest("c1", &provider.Page{})
	ctx := context.Background()
	if err := h.engine.Select(ctx, "c1"); err != nil {
		t.Fatal(err)
	}
	if view(t, h.engine).CanSendFreeform {
		t.Fatal("empty conversation allows free-form")
	}

	h.prov.setLatest("c1", &provider.Page{Messages: []chat.Message{msg("m1", chat.Inbound, "hey", t0)}})
	h.clock.Set(t0.Add(time.Hour))
	if err := h.engine.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	v := view(t, h.engine)
	if !v.CanSendFreeform || !v.WindowExpiresAt.Equal(t0.Add(24*time.Hour)) {
		t.Errorf("view = open %v until %v", v.CanSendFreeform, v.WindowExpiresAt)
	}

	h.clock.Set(t0.Add(24 * time.Hour))
	if view(t, h.engine).CanSendFreeform {
		t.Error("window still open at the 24h boundary")
	}
}

func TestBlockedConversationRejectsSend(t *testing.T) {
	h := newHarness(t)
	h.prov.setLatest("c1", &provider.Page{
		Messages:     threeMessages(),
		Conversation: chat.Conversation{ID: "c1", Blocked: true},
	})
	ctx := context.Background()
	if err := h.engine.Select(ctx, "c1"); err != nil {
		t.Fatal(err)
	}
	if _, err := h.engine.Send(ctx, "hi"); !errors.Is(err, chat.ErrConversationBlocked) {
		t.Errorf("Send() error = %v, want ErrConversationBlocked", err)
	}
}

func TestTemplateUnavailable(t *testing.T) {
	h := newHarness(t)
	h.prov.templates = []chat.Template{{ID: "t1", Language: "en", Approved: false}}

	_, err := h.engine.SendTemplate(context.Background(), TemplateSend{To: "+5511999990000", Channel: chat.WhatsApp})
	if !errors.Is(err, chat.ErrTemplateUnavailable) {
		t.Fatalf("SendTemplate() error = %v, want ErrTemplateUnavailable", err)
	}
	if len(h.prov.templateSends) != 0 {
		t.Error("template sent without an approved template")
	}
}

func TestTemplateToLeadUsesKnownConversation(t *testing.T) {
	h := newHarness(t)
	h.prov.templates = []chat.Template{{ID: "t1", Language: "en", Channel: chat.WhatsApp, Approved: true}}
	if err := h.db.UpsertConversation(&store.Conversation{ID: "c9", Channel: "whatsapp", LeadID: "lead-7", Blocked: true}); err != nil {
		t.Fatal(err)
	}

	_, err := h.engine.SendTemplate(context.Background(), TemplateSend{LeadID: "lead-7", TemplateID: "t1", Language: "en"})
	if !errors.Is(err, chat.ErrConversationBlocked) {
		t.Fatalf("SendTemplate() error = %v, want ErrConversationBlocked", err)
	}

	// No conversation on instagram yet and no recipient.
	if _, err := h.engine.SendTemplate(context.Background(), TemplateSend{LeadID: "lead-7", Channel: chat.Instagram, TemplateID: "t1"}); err == nil {
		t.Error("SendTemplate() without conversation or recipient should fail")
	}
	if len(h.prov.templateSends) != 0 {
		t.Errorf("sent %d templates, want 0", len(h.prov.templateSends))
	}
}

func TestStaleRefreshDiscarded(t *testing.T) {
	h := newHarness(t)
	h.prov.setLatest("c1", &provider.Page{Messages: threeMessages()})
	ctx := context.Background()
	if err := h.engine.Select(ctx, "c1"); err != nil {
		t.Fatal(err)
	}

	release := make(chan struct{})
	h.prov.mu.Lock()
	h.prov.block["c1"] = release
	h.prov.mu.Unlock()
	h.prov.setLatest("c1", &provider.Page{Messages: append(threeMessages(), msg("m4", chat.Inbound, "late", t0.Add(time.Minute)))})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.engine.Refresh(ctx)
	}()
	<-h.prov.entered

	h.prov.setLatest("c2", &provider.Page{Messages: []chat.Message{{
		ID: "x1", ConversationID: "c2", Direction: chat.Inbound, Kind: chat.Text, Body: "other", CreatedAt: t0,
	}}})
	if err := h.engine.Select(ctx, "c2"); err != nil {
		t.Fatal(err)
	}
	close(release)
	<-done

	v := view(t, h.engine)
	if v.Conversation.ID != "c2" {
		t.Fatalf("active = %s, want c2", v.Conversation.ID)
	}
	if got := keys(v.Messages); !slices.Equal(got, []string{"x1"}) {
		t.Errorf("timeline = %v, stale c1 result applied", got)
	}
}

func TestRefreshInFlightCoalesces(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if err := h.engine.Select(ctx, "c1"); err != nil {
		t.Fatal(err)
	}

	release := make(chan struct{})
	h.prov.mu.Lock()
	h.prov.block["c1"] = release
	h.prov.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.engine.Refresh(ctx)
	}()
	<-h.prov.entered

	if err := h.engine.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	close(release)
	<-done

	if n := h.prov.fetchCount("c1"); n != 2 {
		t.Errorf("fetches = %d, want 2 (select + one refresh)", n)
	}
}

func TestRefreshFailureIsSwallowed(t *testing.T) {
	h := newHarness(t)
	h.prov.setLatest("c1", &provider.Page{Messages: threeMessages()})
	ctx := context.Background()
	if err := h.engine.Select(ctx, "c1"); err != nil {
		t.Fatal(err)
	}

	h.prov.mu.Lock()
	h.prov.latestErr = chat.ErrNetwork
	h.prov.mu.Unlock()

	_ = h.engine.Refresh(ctx)
	if got := keys(view(t, h.engine).Messages); !slices.Equal(got, []string{"m1", "m2", "m3"}) {
		t.Errorf("timeline changed on failed poll: %v", got)
	}
}

func TestSelectForcesScroll(t *testing.T) {
	h := newHarness(t)
	h.prov.setLatest("c1", &provider.Page{Messages: threeMessages()})
	ch, unsub := h.bus.Subscribe(bus.TimelineScroll, 10)
	defer unsub()
	ctx := context.Background()

	if err := h.engine.Select(ctx, "c1"); err != nil {
		t.Fatal(err)
	}
	select {
	case evt := <-ch:
		if evt.Payload.(ScrollTo).MessageID != "m3" {
			t.Errorf("scroll to %+v, want m3", evt.Payload)
		}
	default:
		t.Fatal("no scroll after select")
	}

	if err := h.engine.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	select {
	case evt := <-ch:
		t.Errorf("unexpected scroll %+v on unchanged poll", evt)
	default:
	}
}

func TestLoadOlderCollapsesConcurrentCalls(t *testing.T) {
	h := newHarness(t)
	h.prov.setLatest("c1", &provider.Page{Messages: threeMessages(), HasMore: true})
	h.prov.older = []*provider.Page{{
		Messages: []chat.Message{msg("h1", chat.Inbound, "old", t0.Add(-5*time.Hour))},
		HasMore:  false,
	}}
	h.prov.olderGate = make(chan struct{})
	ctx := context.Background()
	if err := h.engine.Select(ctx, "c1"); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.engine.LoadOlder(ctx); err != nil {
				t.Errorf("LoadOlder() error = %v", err)
			}
		}()
	}
	<-h.prov.entered
	close(h.prov.olderGate)
	wg.Wait()

	if h.prov.olderCalls != 1 {
		t.Errorf("older fetches = %d, want 1", h.prov.olderCalls)
	}
	v := view(t, h.engine)
	if got := keys(v.Messages); !slices.Equal(got, []string{"h1", "m1", "m2", "m3"}) {
		t.Errorf("timeline = %v", got)
	}
	if v.HasMore {
		t.Error("HasMore = true after the last page")
	}

	if n, err := h.engine.LoadOlder(ctx); err != nil || n != 0 {
		t.Errorf("LoadOlder() after end = %d, %v", n, err)
	}
	if h.prov.olderCalls != 1 {
		t.Errorf("LoadOlder fetched with HasMore = false")
	}
}

func TestLoadOlderFailureLeavesStateUntouched(t *testing.T) {
	h := newHarness(t)
	h.prov.setLatest("c1", &provider.Page{Messages: threeMessages(), HasMore: true})
	ctx := context.Background()
	if err := h.engine.Select(ctx, "c1"); err != nil {
		t.Fatal(err)
	}
	before := view(t, h.engine)

	h.prov.olderErr = chat.ErrNetwork
	if _, err := h.engine.LoadOlder(ctx); !errors.Is(err, chat.ErrNetwork) {
		t.Fatalf("LoadOlder() error = %v, want ErrNetwork", err)
	}
	after := view(t, h.engine)
	if !slices.Equal(keys(after.Messages), keys(before.Messages)) || !after.HasMore {
		t.Errorf("state changed on failure: %v more=%v", keys(after.Messages), after.HasMore)
	}

	h.prov.olderErr = nil
	h.prov.older = []*provider.Page{{Messages: []chat.Message{msg("h1", chat.Inbound, "old", t0.Add(-5*time.Hour))}, HasMore: true}}
	if n, err := h.engine.LoadOlder(ctx); err != nil || n != 1 {
		t.Errorf("LoadOlder() retry = %d, %v; want 1, nil", n, err)
	}
}

func TestAckedSendWaitsForEcho(t *testing.T) {
	h := newHarness(t)
	h.prov.setLatest("c1", &provider.Page{Messages: threeMessages()})
	ctx := context.Background()
	if err := h.engine.Select(ctx, "c1"); err != nil {
		t.Fatal(err)
	}
	h.clock.Set(t0.Add(time.Hour))

	p, err := h.engine.Send(ctx, "on my way")
	if err != nil {
		t.Fatal(err)
	}
	h.engine.SendConfirmed("c1", p.TempID, chat.Message{
		ID: "m9", ClientRef: p.TempID, Kind: chat.Text, Body: "on my way", State: chat.Sent,
		CreatedAt: t0.Add(time.Hour),
	})

	if err := h.engine.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	v := view(t, h.engine)
	if got := keys(v.Messages); !slices.Equal(got, []string{"m1", "m2", "m3", "m9"}) {
		t.Fatalf("before echo = %v", got)
	}
	if last := v.Messages[3]; !last.Local || last.State != chat.Sent {
		t.Errorf("acked entry = %+v", last)
	}

	echo := msg("m9", chat.Outbound, "on my way", t0.Add(time.Hour))
	echo.ClientRef = p.TempID
	h.prov.setLatest("c1", &provider.Page{Messages: append(threeMessages(), echo)})
	if err := h.engine.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	v = view(t, h.engine)
	if got := keys(v.Messages); !slices.Equal(got, []string{"m1", "m2", "m3", "m9"}) {
		t.Fatalf("after echo = %v", got)
	}
	if v.Messages[3].Local {
		t.Error("echoed entry still local")
	}
}

func TestRetryFailedTextCreatesFreshAttempt(t *testing.T) {
	h := newHarness(t)
	h.prov.setLatest("c1", &provider.Page{Messages: threeMessages()})
	ctx := context.Background()
	if err := h.engine.Select(ctx, "c1"); err != nil {
		t.Fatal(err)
	}
	h.clock.Set(t0.Add(time.Hour))

	p, _ := h.engine.Send(ctx, "retry me")
	h.engine.SendFailed("c1", p.TempID, chat.ErrNetwork)
	if last := view(t, h.engine).Messages[3]; last.State != chat.Failed {
		t.Fatalf("state = %s, want FAILED", last.State)
	}

	newID, err := h.engine.Retry(ctx, p.TempID)
	if err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	if newID == p.TempID {
		t.Error("retry reused the temp id")
	}
	v := view(t, h.engine)
	if got := keys(v.Messages); !slices.Equal(got, []string{"m1", "m2", "m3", "tmp:" + newID}) {
		t.Fatalf("timeline = %v", got)
	}
	if last := v.Messages[3]; last.State != chat.Pending || last.Body != "retry me" {
		t.Errorf("retried entry = %+v", last)
	}

	pending, err := h.db.PendingOutbox()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].ClientMsgID != newID {
		t.Errorf("outbox = %+v, want only the new attempt", pending)
	}
}

func TestDismissFailedText(t *testing.T) {
	h := newHarness(t)
	h.prov.setLatest("c1", &provider.Page{Messages: threeMessages()})
	ctx := context.Background()
	if err := h.engine.Select(ctx, "c1"); err != nil {
		t.Fatal(err)
	}
	h.clock.Set(t0.Add(time.Hour))

	p, _ := h.engine.Send(ctx, "nope")
	if err := h.engine.Dismiss(p.TempID); err == nil {
		t.Error("Dismiss() of a pending message should fail")
	}
	h.engine.SendFailed("c1", p.TempID, chat.ErrNetwork)
	if err := h.engine.Dismiss(p.TempID); err != nil {
		t.Fatalf("Dismiss() error = %v", err)
	}
	if n := len(view(t, h.engine).Messages); n != 3 {
		t.Errorf("timeline has %d entries after dismiss, want 3", n)
	}
	if rows, _ := h.db.UnresolvedOutbox("c1"); len(rows) != 0 {
		t.Errorf("outbox still holds %d entries", len(rows))
	}
}

func TestSelectRestoresUnresolvedSends(t *testing.T) {
	h := newHarness(t)
	h.prov.setLatest("c1", &provider.Page{Messages: threeMessages()})
	if err := h.db.QueueOutbox("tmp-old", "c1", "lost in transit"); err != nil {
		t.Fatal(err)
	}
	if err := h.db.MarkOutboxFailed("tmp-old", "network failure"); err != nil {
		t.Fatal(err)
	}

	if err := h.engine.Select(context.Background(), "c1"); err != nil {
		t.Fatal(err)
	}
	v := view(t, h.engine)
	if got := keys(v.Messages); !slices.Equal(got, []string{"m1", "m2", "m3", "tmp:tmp-old"}) {
		t.Fatalf("timeline = %v", got)
	}
	if v.Messages[3].State != chat.Failed {
		t.Errorf("restored state = %s, want FAILED", v.Messages[3].State)
	}
}

func TestFailedSendEchoedByPollIsNotRestored(t *testing.T) {
	h := newHarness(t)
	h.prov.setLatest("c1", &provider.Page{Messages: threeMessages()})
	ctx := context.Background()
	if err := h.engine.Select(ctx, "c1"); err != nil {
		t.Fatal(err)
	}
	h.clock.Set(t0.Add(time.Hour))

	// The send timed out on our side but the provider stored it.
	p, err := h.engine.Send(ctx, "hi")
	if err != nil {
		t.Fatal(err)
	}
	h.engine.SendFailed("c1", p.TempID, chat.ErrNetwork)

	h.prov.setLatest("c1", &provider.Page{Messages: append(threeMessages(),
		msg("m4", chat.Outbound, "hi", t0.Add(time.Hour+time.Second)))})
	if err := h.engine.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	if got := keys(view(t, h.engine).Messages); !slices.Equal(got, []string{"m1", "m2", "m3", "m4"}) {
		t.Fatalf("timeline after echo = %v", got)
	}
	if rows, _ := h.db.UnresolvedOutbox("c1"); len(rows) != 0 {
		t.Errorf("outbox still holds %d entries after echo", len(rows))
	}

	h.prov.setLatest("c1", &provider.Page{Messages: []chat.Message{
		msg("m5", chat.Inbound, "later", t0.Add(2*time.Hour)),
		msg("m6", chat.Outbound, "sure", t0.Add(3*time.Hour)),
	}})
	if err := h.engine.Select(ctx, "c2"); err != nil {
		t.Fatal(err)
	}
	if err := h.engine.Select(ctx, "c1"); err != nil {
		t.Fatal(err)
	}
	for _, m := range view(t, h.engine).Messages {
		if m.Local || m.State == chat.Failed {
			t.Errorf("confirmed send came back as %+v", m)
		}
	}
}

func TestLoadOlderAfterEmptyFirstPage(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if err := h.engine.Select(ctx, "c1"); err != nil {
		t.Fatal(err)
	}
	if n, err := h.engine.LoadOlder(ctx); err != nil || n != 0 {
		t.Fatalf("LoadOlder() on empty conversation = %d, %v", n, err)
	}

	h.prov.setLatest("c1", &provider.Page{Messages: threeMessages(), HasMore: true})
	if err := h.engine.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	if !view(t, h.engine).HasMore {
		t.Fatal("HasMore = false after a page that has more")
	}

	h.prov.older = []*provider.Page{{
		Messages: []chat.Message{msg("h1", chat.Inbound, "old", t0.Add(-5*time.Hour))},
	}}
	n, err := h.engine.LoadOlder(ctx)
	if err != nil || n != 1 {
		t.Fatalf("LoadOlder() = %d, %v; want 1, nil", n, err)
	}
	if got := keys(view(t, h.engine).Messages); !slices.Equal(got, []string{"h1", "m1", "m2", "m3"}) {
		t.Errorf("timeline = %v", got)
	}
	if h.prov.olderCalls != 1 {
		t.Errorf("older fetches = %d, want 1", h.prov.olderCalls)
	}
}

func TestRetryKeepsFailedEntryWhenQueueFails(t *testing.T) {
	h := newHarness(t)
	h.prov.setLatest("c1", &provider.Page{Messages: threeMessages()})
	ctx := context.Background()
	if err := h.engine.Select(ctx, "c1"); err != nil {
		t.Fatal(err)
	}
	h.clock.Set(t0.Add(time.Hour))

	p, _ := h.engine.Send(ctx, "keep me")
	h.engine.SendFailed("c1", p.TempID, chat.ErrNetwork)

	if _, err := h.db.Exec(`CREATE TRIGGER reject_outbox BEFORE INSERT ON outbox
		BEGIN SELECT RAISE(ABORT, 'disk full'); END`); err != nil {
		t.Fatal(err)
	}
	if _, err := h.engine.Retry(ctx, p.TempID); err == nil {
		t.Fatal("Retry() succeeded with a failing outbox")
	}

	v := view(t, h.engine)
	if got := keys(v.Messages); !slices.Equal(got, []string{"m1", "m2", "m3", "tmp:" + p.TempID}) {
		t.Fatalf("timeline = %v", got)
	}
	if v.Messages[3].State != chat.Failed || v.Messages[3].Body != "keep me" {
		t.Errorf("failed entry = %+v", v.Messages[3])
	}
	rows, err := h.db.UnresolvedOutbox("c1")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].ClientMsgID != p.TempID {
		t.Errorf("outbox = %+v, want the original entry", rows)
	}
}

func TestNoActiveConversation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if _, err := h.engine.Send(ctx, "x"); !errors.Is(err, chat.ErrNoActiveConversation) {
		t.Errorf("Send() error = %v", err)
	}
	if _, err := h.engine.LoadOlder(ctx); !errors.Is(err, chat.ErrNoActiveConversation) {
		t.Errorf("LoadOlder() error = %v", err)
	}
	if _, err := h.engine.Timeline(); !errors.Is(err, chat.ErrNoActiveConversation) {
		t.Errorf("Timeline() error = %v", err)
	}
	if err := h.engine.Refresh(ctx); err != nil {
		t.Errorf("Refresh() without a conversation error = %v", err)
	}
}
