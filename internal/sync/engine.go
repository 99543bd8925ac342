package sync

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/matheus3301/leadchat/internal/bus"
	"github.com/matheus3301/leadchat/internal/chat"
	"github.com/matheus3301/leadchat/internal/gate"
	"github.com/matheus3301/leadchat/internal/media"
	"github.com/matheus3301/leadchat/internal/metrics"
	"github.com/matheus3301/leadchat/internal/provider"
	"github.com/matheus3301/leadchat/internal/status"
	"github.com/matheus3301/leadchat/internal/store"
	"github.com/matheus3301/leadchat/internal/timeline"
	"github.com/matheus3301/leadchat/internal/unread"
)

// DefaultPageSize is the number of messages requested per fetch.
const DefaultPageSize = 50

// Provider is the part of the provider API the engine consumes.
type Provider interface {
	FetchLatest(ctx context.Context, conversationID string, limit int) (*provider.Page, error)
	FetchOlder(ctx context.Context, conversationID, beforeID string, limit int) (*provider.Page, error)
	ListTemplates(ctx context.Context, channel chat.Channel, language string) ([]chat.Template, error)
	SendTemplate(ctx context.Context, req provider.TemplateRequest) (*provider.TemplateResult, error)
}

// Kicker wakes the outbox sender.
type Kicker interface {
	Kick()
}

// Options configures an Engine.
type Options struct {
	PageSize int
	Window   time.Duration
	Now      func() time.Time
}

// Deps are the collaborators of an Engine. Only Provider and Store are required.
type Deps struct {
	Provider Provider
	Store    *store.DB
	Media    *media.Lifecycle
	Outbox   Kicker
	Unread   *unread.Aggregator
	Status   *status.Machine
	Bus      *bus.Bus
	Logger   *zap.Logger
}

// View is a read-only snapshot of the active conversation.
type View struct {
	Conversation    chat.Conversation
	Messages        []chat.Message
	Window          gate.Window
	CanSendFreeform bool
	WindowExpiresAt time.Time
	HasMore         bool
	Uploads         []media.Item
}

// TemplateSend describes a template-initiated send. ConversationID may be
// empty to open a new conversation with To on Channel.
type TemplateSend struct {
	ConversationID string
	Channel        chat.Channel
	To             string
	TemplateID     string
	Language       string
	LeadID         string
	Params         []string
}

// Engine holds the session arena and the active conversation pointer.
type Engine struct {
	mu       sync.Mutex
	sessions map[string]*Session
	active   *Session

	provider Provider
	db       *store.DB
	media    *media.Lifecycle
	outbox   Kicker
	unread   *unread.Aggregator
	status   *status.Machine
	bus      *bus.Bus
	logger   *zap.Logger

	pageSize int
	window   time.Duration
	now      func() time.Time
	older    singleflight.Group
}

// NewEngine creates a sync engine and binds it as the media timeline.
func NewEngine(opts Options, deps Deps) *Engine {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.Window <= 0 {
		opts.Window = gate.DefaultWindow
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	e := &Engine{
		sessions: make(map[string]*Session),
		provider: deps.Provider,
		db:       deps.Store,
		media:    deps.Media,
		outbox:   deps.Outbox,
		unread:   deps.Unread,
		status:   deps.Status,
		bus:      deps.Bus,
		logger:   deps.Logger,
		pageSize: opts.PageSize,
		window:   opts.Window,
		now:      opts.Now,
	}
	if e.media != nil {
		e.media.Bind(e)
	}
	return e
}

// Active returns the active session, nil if none.
func (e *Engine) Active() *Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

func (e *Engine) isActive(s *Session) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active == s
}

// session returns the active session if it belongs to conversationID.
func (e *Engine) session(conversationID string) *Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active == nil || e.active.id != conversationID {
		return nil
	}
	return e.active
}

// Select makes conversationID the active conversation. The previous
// session is torn down; results still in flight for it are discarded on
// arrival. Unresolved local entries are restored and one fetch runs
// immediately with a forced scroll.
func (e *Engine) Select(ctx context.Context, conversationID string) error {
	if conversationID == "" {
		return errors.New("conversation id is required")
	}

	e.mu.Lock()
	if e.active != nil && e.active.id == conversationID {
		s := e.active
		e.mu.Unlock()
		s.mu.Lock()
		s.forceScroll = true
		s.mu.Unlock()
		_ = e.Refresh(ctx)
		return nil
	}
	e.mu.Unlock()

	conv := chat.Conversation{ID: conversationID}
	if stored, err := e.db.GetConversation(conversationID); err != nil {
		return fmt.Errorf("load conversation: %w", err)
	} else if stored != nil {
		conv = fromStore(stored)
		// The window only opens from a fetched batch.
		conv.LastInboundAt = time.Time{}
	}

	locals, err := e.restoreLocals(conversationID)
	if err != nil {
		return err
	}
	s := newSession(conv, e.window, locals)

	e.mu.Lock()
	prev := e.active
	if prev != nil {
		delete(e.sessions, prev.id)
	}
	e.sessions[conversationID] = s
	e.active = s
	e.mu.Unlock()

	if prev != nil {
		prev.close()
	}
	e.logger.Info("conversation selected",
		zap.String("conversation", conversationID),
		zap.Int("restored", len(locals)),
	)
	e.bus.Emit(bus.ConversationSelected, conversationID, conv)
	e.status.BeginSync()

	_ = e.Refresh(ctx)
	return nil
}

// Close tears down the active session.
func (e *Engine) Close() {
	e.mu.Lock()
	s := e.active
	e.active = nil
	clear(e.sessions)
	e.mu.Unlock()
	if s != nil {
		s.close()
	}
}

func (e *Engine) restoreLocals(conversationID string) ([]chat.Message, error) {
	entries, err := e.db.UnresolvedOutbox(conversationID)
	if err != nil {
		return nil, fmt.Errorf("load outbox: %w", err)
	}
	var locals []chat.Message
	for _, entry := range entries {
		state := chat.Pending
		if entry.Status == store.OutboxFailed {
			state = chat.Failed
		}
		locals = append(locals, chat.Message{
			TempID:         entry.ClientMsgID,
			ClientRef:      entry.ClientMsgID,
			ConversationID: conversationID,
			Direction:      chat.Outbound,
			Kind:           chat.Text,
			Body:           entry.Body,
			State:          state,
			CreatedAt:      time.UnixMilli(entry.CreatedAt).UTC(),
			Local:          true,
		})
	}
	if e.media != nil {
		uploads, err := e.media.Restore(conversationID)
		if err != nil {
			return nil, err
		}
		locals = append(locals, uploads...)
	}
	slices.SortStableFunc(locals, func(a, b chat.Message) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return locals, nil
}

// Refresh fetches the latest page of the active conversation and reconciles
// it. A refresh already in flight for the session makes this a no-op.
// Fetch failures are logged and returned, never applied.
func (e *Engine) Refresh(ctx context.Context) error {
	s := e.Active()
	if s == nil {
		return nil
	}
	if !s.beginRefresh() {
		metrics.RecordRefresh("skipped", 0)
		return nil
	}
	defer s.endRefresh()

	start := time.Now()
	page, err := e.provider.FetchLatest(ctx, s.id, e.pageSize)
	if err != nil {
		metrics.RecordRefresh("error", time.Since(start).Seconds())
		e.status.ReportRefresh(err)
		e.logger.Warn("refresh failed", zap.String("conversation", s.id), zap.Error(err))
		return err
	}
	e.status.ReportRefresh(nil)

	if !e.isActive(s) {
		metrics.RecordRefresh("stale", time.Since(start).Seconds())
		e.logger.Debug("discarding stale refresh", zap.String("conversation", s.id))
		return nil
	}
	e.apply(s, page)
	metrics.RecordRefresh("ok", time.Since(start).Seconds())
	return nil
}

func (e *Engine) apply(s *Session, page *provider.Page) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	res := timeline.Reconcile(s.msgs, page.Messages)
	s.msgs = res.Messages

	lastInbound := res.LastInboundAt
	if page.Conversation.LastInboundAt.After(lastInbound) {
		lastInbound = page.Conversation.LastInboundAt
	}
	s.gate.Observe(lastInbound)

	// An empty first page leaves nothing to paginate from; keep building the
	// cursor from later pages until one carries a message.
	if s.cursor == nil || s.cursor.OldestID == "" {
		c := timeline.NewCursor(page.Messages, page.HasMore)
		s.cursor = &c
	}

	meta := page.Conversation
	if meta.Channel != "" {
		s.conv.Channel = meta.Channel
	}
	if meta.Contact != "" {
		s.conv.Contact = meta.Contact
	}
	if meta.LeadID != "" {
		s.conv.LeadID = meta.LeadID
	}
	s.conv.Blocked = meta.Blocked
	s.conv.Unread = meta.Unread
	s.conv.LastInboundAt = s.gate.LastInbound()

	scroll := res.NewestChanged || s.forceScroll
	s.forceScroll = false
	conv := s.conv
	pending := s.unresolved()
	count := len(s.msgs)
	s.mu.Unlock()

	metrics.ResolvedTotal.Add(float64(res.Resolved))
	metrics.PendingMessages.Set(float64(pending))
	e.settle(res.ResolvedTempIDs)

	if err := e.db.UpsertConversation(toStore(conv)); err != nil {
		e.logger.Warn("failed to store conversation", zap.String("conversation", conv.ID), zap.Error(err))
	}
	if e.unread != nil && conv.LeadID != "" && conv.Channel != "" {
		e.unread.Set(unread.SourceFetch, chat.UnreadCount{LeadID: conv.LeadID, Channel: conv.Channel, Count: conv.Unread})
	}

	e.bus.Emit(bus.ConversationUpdated, conv.ID, conv)
	e.bus.Emit(bus.TimelineChanged, conv.ID, TimelineChange{Count: count, Resolved: res.Resolved})
	if scroll {
		e.bus.Emit(bus.TimelineScroll, conv.ID, ScrollTo{MessageID: res.NewestID})
	}
}

// settle drops the backing state of local entries a batch confirmed, so a
// send or upload that failed on our side but reached the provider is not
// restored or retried later.
func (e *Engine) settle(tempIDs []string) {
	for _, id := range tempIDs {
		if e.media != nil && e.media.Resolve(id) {
			continue
		}
		if err := e.db.DeleteOutbox(id); err != nil {
			e.logger.Warn("failed to drop resolved outbox entry", zap.String("client_msg_id", id), zap.Error(err))
		}
	}
}

// TimelineChange is the payload of timeline.changed events.
type TimelineChange struct {
	Count     int
	Resolved  int
	Prepended int
}

// ScrollTo is the payload of timeline.scroll events.
type ScrollTo struct {
	MessageID string
}

// Timeline returns a snapshot of the active conversation.
func (e *Engine) Timeline() (View, error) {
	s := e.Active()
	if s == nil {
		return View{}, chat.ErrNoActiveConversation
	}
	now := e.now()

	s.mu.Lock()
	v := View{
		Conversation:    s.conv,
		Messages:        slices.Clone(s.msgs),
		Window:          s.gate.State(now),
		CanSendFreeform: s.gate.CanSendFreeform(now),
		WindowExpiresAt: s.gate.ExpiresAt(),
	}
	v.Conversation.LastInboundAt = s.gate.LastInbound()
	if s.cursor != nil {
		v.HasMore = s.cursor.HasMore
	}
	s.mu.Unlock()

	if e.media != nil {
		v.Uploads = e.media.Items(s.id)
	}
	return v, nil
}

// Send queues a free-form text on the active conversation. The optimistic
// entry is visible immediately; the outbox sender resolves it. An expired
// session window rejects the send before any network call.
func (e *Engine) Send(ctx context.Context, text string) (chat.Message, error) {
	s := e.Active()
	if s == nil {
		return chat.Message{}, chat.ErrNoActiveConversation
	}
	if strings.TrimSpace(text) == "" {
		return chat.Message{}, errors.New("message body is empty")
	}
	return e.queueText(s, text)
}

func (e *Engine) queueText(s *Session, text string) (chat.Message, error) {
	if err := e.checkFreeform(s); err != nil {
		metrics.RecordSend("text", "rejected")
		return chat.Message{}, err
	}

	tempID := uuid.NewString()
	m := chat.Message{
		TempID:         tempID,
		ClientRef:      tempID,
		ConversationID: s.id,
		Direction:      chat.Outbound,
		Kind:           chat.Text,
		Body:           text,
		State:          chat.Pending,
		CreatedAt:      e.now(),
		Local:          true,
	}
	if err := e.db.QueueOutbox(tempID, s.id, text); err != nil {
		return chat.Message{}, fmt.Errorf("queue message: %w", err)
	}
	if !s.insert(m) {
		_ = e.db.DeleteOutbox(tempID)
		return chat.Message{}, chat.ErrNoActiveConversation
	}
	metrics.RecordSend("text", "queued")
	if e.outbox != nil {
		e.outbox.Kick()
	}

	e.bus.Emit(bus.MessageQueued, s.id, m)
	e.changed(s)
	e.bus.Emit(bus.TimelineScroll, s.id, ScrollTo{})
	return m, nil
}

func (e *Engine) checkFreeform(s *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conv.Blocked {
		return chat.ErrConversationBlocked
	}
	if !s.gate.CanSendFreeform(e.now()) {
		return chat.ErrSessionExpired
	}
	return nil
}

// SendTemplate sends an approved template. It works while the session
// window is expired and never moves the window.
func (e *Engine) SendTemplate(ctx context.Context, req TemplateSend) (chat.Message, error) {
	if req.ConversationID == "" && req.LeadID != "" {
		id, err := e.leadConversation(req.LeadID, req.Channel)
		if err != nil {
			return chat.Message{}, err
		}
		req.ConversationID = id
	}

	var s *Session
	if req.ConversationID != "" {
		s = e.session(req.ConversationID)
		var conv chat.Conversation
		if s != nil {
			conv = s.Conversation()
		} else if stored, err := e.db.GetConversation(req.ConversationID); err != nil {
			return chat.Message{}, fmt.Errorf("load conversation: %w", err)
		} else if stored != nil {
			conv = fromStore(stored)
		}
		if conv.Blocked {
			return chat.Message{}, chat.ErrConversationBlocked
		}
		if req.Channel == "" {
			req.Channel = conv.Channel
		}
		if req.LeadID == "" {
			req.LeadID = conv.LeadID
		}
	} else if req.To == "" {
		return chat.Message{}, errors.New("conversation id or recipient is required")
	}
	if req.Channel == "" {
		req.Channel = chat.WhatsApp
	}

	tpl, err := e.pickTemplate(ctx, req)
	if err != nil {
		metrics.RecordSend("template", "unavailable")
		return chat.Message{}, err
	}

	tempID := uuid.NewString()
	res, err := e.provider.SendTemplate(ctx, provider.TemplateRequest{
		ConversationID: req.ConversationID,
		Channel:        req.Channel,
		To:             req.To,
		TemplateID:     tpl.ID,
		Language:       tpl.Language,
		LeadID:         req.LeadID,
		Params:         req.Params,
		ClientRef:      tempID,
	})
	if err != nil {
		metrics.RecordSend("template", "failed")
		return chat.Message{}, err
	}
	metrics.RecordSend("template", "sent")

	if res.Conversation != nil && res.Conversation.ID != "" {
		conv := *res.Conversation
		if conv.LeadID == "" {
			conv.LeadID = req.LeadID
		}
		if conv.Channel == "" {
			conv.Channel = req.Channel
		}
		if err := e.db.UpsertConversation(toStore(conv)); err != nil {
			e.logger.Warn("failed to store conversation", zap.String("conversation", conv.ID), zap.Error(err))
		}
		e.bus.Emit(bus.ConversationUpdated, conv.ID, conv)
	}

	m := res.Message
	m.TempID = tempID
	if m.ClientRef == "" {
		m.ClientRef = tempID
	}
	m.Direction = chat.Outbound
	m.Local = true
	if m.ConversationID == "" {
		m.ConversationID = req.ConversationID
	}
	if !m.State.Valid() || m.State.Unresolved() {
		m.State = chat.Sent
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = e.now()
	}

	e.logger.Info("template sent",
		zap.String("conversation", m.ConversationID),
		zap.String("template", tpl.ID),
		zap.String("message_id", m.ID),
	)
	if s = e.session(m.ConversationID); s != nil && m.ID != "" && s.insert(m) {
		e.changed(s)
	}
	e.bus.Emit(bus.MessageSendAck, m.ConversationID, m)
	return m, nil
}

// leadConversation returns the known conversation of a lead on channel,
// empty when the lead was never contacted there.
func (e *Engine) leadConversation(leadID string, channel chat.Channel) (string, error) {
	if channel == "" {
		channel = chat.WhatsApp
	}
	convs, err := e.db.ListConversationsByLead(leadID)
	if err != nil {
		return "", fmt.Errorf("load lead conversations: %w", err)
	}
	for _, c := range convs {
		if chat.Channel(c.Channel) == channel {
			return c.ID, nil
		}
	}
	return "", nil
}

func (e *Engine) pickTemplate(ctx context.Context, req TemplateSend) (chat.Template, error) {
	templates, err := e.provider.ListTemplates(ctx, req.Channel, req.Language)
	if err != nil {
		return chat.Template{}, err
	}
	for _, t := range templates {
		if !t.Approved {
			continue
		}
		if req.Language != "" && t.Language != req.Language {
			continue
		}
		if req.TemplateID == "" || t.ID == req.TemplateID || t.Name == req.TemplateID {
			return t, nil
		}
	}
	return chat.Template{}, chat.ErrTemplateUnavailable
}

// LoadOlder prepends the next older page of the active conversation.
// Concurrent calls collapse into one request. It is a no-op when nothing
// more is available; a failure leaves the list and cursor untouched.
func (e *Engine) LoadOlder(ctx context.Context) (int, error) {
	s := e.Active()
	if s == nil {
		return 0, chat.ErrNoActiveConversation
	}
	v, err, _ := e.older.Do(s.id, func() (any, error) {
		return e.loadOlder(ctx, s)
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

func (e *Engine) loadOlder(ctx context.Context, s *Session) (int, error) {
	s.mu.Lock()
	if s.closed || s.cursor == nil || !s.cursor.HasMore || s.loadingOlder {
		s.mu.Unlock()
		return 0, nil
	}
	s.loadingOlder = true
	cur := *s.cursor
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.loadingOlder = false
		s.mu.Unlock()
	}()

	page, err := e.provider.FetchOlder(ctx, s.id, cur.OldestID, e.pageSize)
	if err != nil {
		e.logger.Warn("load older failed", zap.String("conversation", s.id), zap.Error(err))
		return 0, fmt.Errorf("load older: %w", err)
	}
	if !e.isActive(s) {
		return 0, nil
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, nil
	}
	before := len(s.msgs)
	msgs, next := timeline.Prepend(s.msgs, page.Messages, cur, page.HasMore)
	s.msgs = msgs
	s.cursor = &next
	added := len(msgs) - before
	count := len(msgs)
	s.mu.Unlock()

	e.logger.Debug("loaded older messages",
		zap.String("conversation", s.id),
		zap.Int("added", added),
		zap.Bool("has_more", next.HasMore),
	)
	if added > 0 {
		e.bus.Emit(bus.TimelineChanged, s.id, TimelineChange{Count: count, Prepended: added})
	}
	return added, nil
}

// Retry re-attempts a failed send. A failed text becomes a fresh pending
// entry with a new temp id, which is returned; a failed upload is retried
// in place with its retained bytes.
func (e *Engine) Retry(ctx context.Context, tempID string) (string, error) {
	if e.media != nil && e.media.Owns(tempID) {
		return tempID, e.media.Retry(tempID)
	}
	s := e.Active()
	if s == nil {
		return "", chat.ErrNoActiveConversation
	}
	old, ok := s.local(tempID)
	if !ok {
		return "", fmt.Errorf("message %s: %w", tempID, chat.ErrNotFound)
	}
	if old.State != chat.Failed {
		return tempID, nil
	}
	m, err := e.queueText(s, old.Body)
	if err != nil {
		return "", err
	}
	// The failed entry goes only once the new attempt is queued.
	s.remove(tempID)
	if err := e.db.DeleteOutbox(tempID); err != nil {
		e.logger.Warn("failed to drop retried outbox entry", zap.String("client_msg_id", tempID), zap.Error(err))
	}
	e.changed(s)
	return m.TempID, nil
}

// Dismiss discards a failed send or upload.
func (e *Engine) Dismiss(tempID string) error {
	if e.media != nil && e.media.Owns(tempID) {
		return e.media.Dismiss(tempID)
	}
	s := e.Active()
	if s == nil {
		return chat.ErrNoActiveConversation
	}
	m, ok := s.local(tempID)
	if !ok {
		return fmt.Errorf("message %s: %w", tempID, chat.ErrNotFound)
	}
	if m.State != chat.Failed {
		return fmt.Errorf("message %s is %s, only failed messages can be dismissed", tempID, m.State)
	}
	s.remove(tempID)
	if err := e.db.DeleteOutbox(tempID); err != nil {
		e.logger.Warn("failed to drop dismissed outbox entry", zap.String("client_msg_id", tempID), zap.Error(err))
	}
	e.changed(s)
	return nil
}

func (e *Engine) changed(s *Session) {
	s.mu.Lock()
	count := len(s.msgs)
	pending := s.unresolved()
	s.mu.Unlock()
	metrics.PendingMessages.Set(float64(pending))
	e.bus.Emit(bus.TimelineChanged, s.id, TimelineChange{Count: count})
}

// SendConfirmed replaces a pending text with the provider's answer. The
// entry stays local until a fetched batch echoes it.
func (e *Engine) SendConfirmed(conversationID, tempID string, m chat.Message) {
	s := e.session(conversationID)
	if s == nil {
		return
	}
	m.TempID = tempID
	m.Local = true
	m.Direction = chat.Outbound
	if m.ClientRef == "" {
		m.ClientRef = tempID
	}
	if m.ConversationID == "" {
		m.ConversationID = conversationID
	}
	if !m.State.Valid() || m.State.Unresolved() {
		m.State = chat.Sent
	}
	if old, ok := s.local(tempID); ok && m.CreatedAt.IsZero() {
		m.CreatedAt = old.CreatedAt
	}
	if s.replace(tempID, m) {
		e.changed(s)
	}
}

// SendFailed marks a pending text as FAILED.
func (e *Engine) SendFailed(conversationID, tempID string, _ error) {
	if s := e.session(conversationID); s != nil && s.markFailed(tempID) {
		e.changed(s)
	}
}

// InsertLocal adds an optimistic entry to the conversation if it is active.
func (e *Engine) InsertLocal(conversationID string, m chat.Message) {
	if s := e.session(conversationID); s != nil && s.insert(m) {
		e.changed(s)
	}
}

// ReplaceLocal swaps an optimistic entry in place.
func (e *Engine) ReplaceLocal(conversationID, tempID string, m chat.Message) {
	if s := e.session(conversationID); s != nil && s.replace(tempID, m) {
		e.changed(s)
	}
}

// MarkLocalFailed marks an optimistic entry as FAILED in place.
func (e *Engine) MarkLocalFailed(conversationID, tempID string) {
	if s := e.session(conversationID); s != nil && s.markFailed(tempID) {
		e.changed(s)
	}
}

// RemoveLocal drops an optimistic entry.
func (e *Engine) RemoveLocal(conversationID, tempID string) {
	if s := e.session(conversationID); s != nil {
		if _, ok := s.remove(tempID); ok {
			e.changed(s)
		}
	}
}

func fromStore(c *store.Conversation) chat.Conversation {
	conv := chat.Conversation{
		ID:      c.ID,
		Channel: chat.Channel(c.Channel),
		Contact: c.Contact,
		LeadID:  c.LeadID,
		Blocked: c.Blocked,
		Unread:  c.Unread,
	}
	if c.LastInboundAt > 0 {
		conv.LastInboundAt = time.UnixMilli(c.LastInboundAt).UTC()
	}
	return conv
}

func toStore(c chat.Conversation) *store.Conversation {
	sc := &store.Conversation{
		ID:      c.ID,
		Channel: string(c.Channel),
		Contact: c.Contact,
		LeadID:  c.LeadID,
		Blocked: c.Blocked,
		Unread:  c.Unread,
	}
	if !c.LastInboundAt.IsZero() {
		sc.LastInboundAt = c.LastInboundAt.UnixMilli()
	}
	return sc
}
