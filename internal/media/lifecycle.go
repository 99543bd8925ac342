package media

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/matheus3301/leadchat/internal/bus"
	"github.com/matheus3301/leadchat/internal/chat"
	"github.com/matheus3301/leadchat/internal/metrics"
	"github.com/matheus3301/leadchat/internal/provider"
	"github.com/matheus3301/leadchat/internal/store"
)

const (
	DefaultMinBytes    = 1000
	DefaultMinDuration = 1500 * time.Millisecond

	localScheme = "local://"
)

// Uploader sends an attachment to the provider.
type Uploader interface {
	Upload(ctx context.Context, req provider.UploadRequest) (chat.Message, error)
}

// Timeline receives the optimistic entries owned by the lifecycle. Calls for
// a conversation that is not active are ignored by the implementation.
type Timeline interface {
	InsertLocal(conversationID string, m chat.Message)
	ReplaceLocal(conversationID, tempID string, m chat.Message)
	MarkLocalFailed(conversationID, tempID string)
	RemoveLocal(conversationID, tempID string)
}

// Store persists the bytes of items the provider has not accepted yet.
type Store interface {
	SavePendingUpload(u *store.PendingUpload) error
	MarkUploadAttempt(tempID string, attempts int, rejected bool, lastError string) error
	DeletePendingUpload(tempID string) error
	ListPendingUploads(conversationID string) ([]store.PendingUpload, error)
}

// Options holds capture viability thresholds. Now defaults to time.Now and
// times captures stopped without an explicit duration.
type Options struct {
	MinBytes    int
	MinDuration time.Duration
	Now         func() time.Time
}

// Item is a snapshot of one captured or attached item.
type Item struct {
	TempID         string
	ConversationID string
	Kind           chat.Kind
	Filename       string
	Caption        string
	State          State
	Size           int
	Attempts       int
	Rejected       bool
	LastError      string
	CreatedAt      time.Time
}

type item struct {
	Item
	data      []byte
	startedAt time.Time
}

// Lifecycle tracks every item that is being captured or is not yet hosted.
type Lifecycle struct {
	mu       sync.Mutex
	items    map[string]*item
	timeline Timeline

	uploader Uploader
	store    Store
	bus      *bus.Bus
	log      *zap.Logger
	opts     Options
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a media lifecycle. Bind must be called before items are
// uploaded so optimistic entries reach the timeline.
func New(uploader Uploader, st Store, b *bus.Bus, log *zap.Logger, opts Options) *Lifecycle {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.MinBytes <= 0 {
		opts.MinBytes = DefaultMinBytes
	}
	if opts.MinDuration <= 0 {
		opts.MinDuration = DefaultMinDuration
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Lifecycle{
		items:    make(map[string]*item),
		uploader: uploader,
		store:    st,
		bus:      b,
		log:      log,
		opts:     opts,
		now:      opts.Now,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Bind sets the timeline that receives optimistic entries.
func (l *Lifecycle) Bind(t Timeline) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.timeline = t
}

// LocalRef returns the local media reference of an unhosted item.
func LocalRef(tempID string) string {
	return localScheme + tempID
}

// StartCapture begins recording a new item and returns its id. The id becomes
// the temp id of the optimistic message.
func (l *Lifecycle) StartCapture(conversationID string, kind chat.Kind) (string, error) {
	if conversationID == "" {
		return "", chat.ErrNoActiveConversation
	}
	if kind == "" {
		kind = chat.Audio
	}
	if !kind.IsMedia() {
		return "", fmt.Errorf("cannot capture %s", kind)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	id := uuid.NewString()
	l.items[id] = &item{
		Item: Item{
			TempID:         id,
			ConversationID: conversationID,
			Kind:           kind,
			State:          Capturing,
			CreatedAt:      now,
		},
		startedAt: now,
	}
	return id, nil
}

// AppendCapture adds recorded bytes to an item that is still capturing.
func (l *Lifecycle) AppendCapture(id string, chunk []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	it, ok := l.items[id]
	if !ok {
		return fmt.Errorf("capture %s: %w", id, chat.ErrNotFound)
	}
	if it.State != Capturing {
		return fmt.Errorf("capture %s is %s", id, it.State)
	}
	it.data = append(it.data, chunk...)
	it.Size = len(it.data)
	return nil
}

// StopCapture finalizes a recording. duration is the length reported by the
// recorder; zero measures it from StartCapture. A capture below the
// viability thresholds is discarded and StopCapture returns a nil item.
func (l *Lifecycle) StopCapture(id string, duration time.Duration) (*Item, error) {
	l.mu.Lock()
	it, ok := l.items[id]
	if !ok {
		l.mu.Unlock()
		return nil, fmt.Errorf("capture %s: %w", id, chat.ErrNotFound)
	}
	if it.State != Capturing {
		l.mu.Unlock()
		return nil, fmt.Errorf("capture %s is %s", id, it.State)
	}
	if duration <= 0 {
		duration = l.now().Sub(it.startedAt)
	}
	if !l.viable(it, duration) {
		delete(l.items, id)
		l.mu.Unlock()
		l.log.Debug("capture discarded",
			zap.String("temp_id", id),
			zap.Int("bytes", len(it.data)),
			zap.Duration("duration", duration),
		)
		return nil, nil
	}
	if err := it.transition(Captured); err != nil {
		l.mu.Unlock()
		return nil, err
	}
	l.mu.Unlock()

	return l.begin(it)
}

func (l *Lifecycle) viable(it *item, duration time.Duration) bool {
	if len(it.data) <= l.opts.MinBytes {
		return false
	}
	if it.Kind == chat.Audio && duration < l.opts.MinDuration {
		return false
	}
	return true
}

// Attach starts uploading a locally selected file.
func (l *Lifecycle) Attach(conversationID string, kind chat.Kind, filename string, data []byte, caption string) (*Item, error) {
	if conversationID == "" {
		return nil, chat.ErrNoActiveConversation
	}
	if !kind.IsMedia() {
		return nil, fmt.Errorf("cannot attach %s", kind)
	}
	if len(data) == 0 {
		return nil, errors.New("attachment is empty")
	}

	l.mu.Lock()
	id := uuid.NewString()
	it := &item{
		Item: Item{
			TempID:         id,
			ConversationID: conversationID,
			Kind:           kind,
			Filename:       filename,
			Caption:        caption,
			State:          Captured,
			Size:           len(data),
			CreatedAt:      l.now(),
		},
		data: slices.Clone(data),
	}
	l.items[id] = it
	l.mu.Unlock()

	return l.begin(it)
}

// begin moves a captured item to UPLOADING: the optimistic entry is inserted,
// the bytes persisted and the upload started.
func (l *Lifecycle) begin(it *item) (*Item, error) {
	l.mu.Lock()
	if err := it.transition(Uploading); err != nil {
		l.mu.Unlock()
		return nil, err
	}
	it.Attempts++
	snap := it.Item
	msg := it.message(chat.Pending)
	req := it.request()
	tl := l.timeline
	l.mu.Unlock()

	if l.store != nil {
		err := l.store.SavePendingUpload(&store.PendingUpload{
			TempID:         snap.TempID,
			ConversationID: snap.ConversationID,
			Kind:           string(snap.Kind),
			Filename:       snap.Filename,
			Caption:        snap.Caption,
			Data:           req.Data,
			Attempts:       snap.Attempts,
			CreatedAt:      snap.CreatedAt.UnixMilli(),
		})
		if err != nil {
			l.log.Warn("failed to persist pending upload", zap.String("temp_id", snap.TempID), zap.Error(err))
		}
	}
	if tl != nil {
		tl.InsertLocal(snap.ConversationID, msg)
	}
	l.bus.Emit(bus.UploadStarted, snap.ConversationID, snap)
	l.start(snap.TempID, req)
	return &snap, nil
}

// Retry re-uploads a failed item with its retained bytes. Retrying an item
// whose upload is in flight is a no-op; an item the provider rejected
// returns ErrUploadRejected.
func (l *Lifecycle) Retry(tempID string) error {
	l.mu.Lock()
	it, ok := l.items[tempID]
	if !ok {
		l.mu.Unlock()
		return fmt.Errorf("upload %s: %w", tempID, chat.ErrNotFound)
	}
	if it.State == Uploading {
		l.mu.Unlock()
		return nil
	}
	if it.Rejected {
		l.mu.Unlock()
		return fmt.Errorf("upload %s: %w", tempID, chat.ErrUploadRejected)
	}
	if err := it.transition(Uploading); err != nil {
		l.mu.Unlock()
		return err
	}
	it.Attempts++
	snap := it.Item
	msg := it.message(chat.Pending)
	req := it.request()
	tl := l.timeline
	l.mu.Unlock()

	if l.store != nil {
		if err := l.store.MarkUploadAttempt(tempID, snap.Attempts, false, snap.LastError); err != nil {
			l.log.Warn("failed to record upload attempt", zap.String("temp_id", tempID), zap.Error(err))
		}
	}
	if tl != nil {
		tl.ReplaceLocal(snap.ConversationID, tempID, msg)
	}
	l.bus.Emit(bus.UploadStarted, snap.ConversationID, snap)
	l.start(tempID, req)
	return nil
}

// Dismiss discards a failed item: the bytes are released and the optimistic
// entry removed. A capture in progress can be dismissed too.
func (l *Lifecycle) Dismiss(tempID string) error {
	l.mu.Lock()
	it, ok := l.items[tempID]
	if !ok {
		l.mu.Unlock()
		return fmt.Errorf("upload %s: %w", tempID, chat.ErrNotFound)
	}
	if err := it.transition(Dismissed); err != nil {
		l.mu.Unlock()
		return err
	}
	delete(l.items, tempID)
	snap := it.Item
	tl := l.timeline
	l.mu.Unlock()

	l.release(tempID)
	if tl != nil {
		tl.RemoveLocal(snap.ConversationID, tempID)
	}
	l.bus.Emit(bus.UploadDismissed, snap.ConversationID, snap)
	return nil
}

// Resolve drops an item whose message the provider turned out to host, as
// seen in a fetched batch. Its bytes and persisted row are released. An
// upload still running for the item finds it gone and does nothing.
func (l *Lifecycle) Resolve(tempID string) bool {
	l.mu.Lock()
	it, ok := l.items[tempID]
	if !ok {
		l.mu.Unlock()
		return false
	}
	if err := it.transition(Confirmed); err != nil {
		l.mu.Unlock()
		return false
	}
	delete(l.items, tempID)
	snap := it.Item
	l.mu.Unlock()

	l.release(tempID)
	metrics.RecordUpload("confirmed")
	l.log.Info("upload resolved by fetch",
		zap.String("temp_id", tempID),
		zap.String("conversation", snap.ConversationID),
	)
	return true
}

// Owns reports whether tempID belongs to an item tracked by the lifecycle.
func (l *Lifecycle) Owns(tempID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.items[tempID]
	return ok
}

// Restore loads the persisted pending uploads of a conversation and returns
// the optimistic entries of every unhosted item, oldest first. Items found
// only in the store come back as FAILED.
func (l *Lifecycle) Restore(conversationID string) ([]chat.Message, error) {
	var rows []store.PendingUpload
	if l.store != nil {
		var err error
		rows, err = l.store.ListPendingUploads(conversationID)
		if err != nil {
			return nil, fmt.Errorf("list pending uploads: %w", err)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, r := range rows {
		if _, ok := l.items[r.TempID]; ok {
			continue
		}
		l.items[r.TempID] = &item{
			Item: Item{
				TempID:         r.TempID,
				ConversationID: r.ConversationID,
				Kind:           chat.Kind(r.Kind),
				Filename:       r.Filename,
				Caption:        r.Caption,
				State:          Failed,
				Size:           len(r.Data),
				Attempts:       r.Attempts,
				Rejected:       r.Rejected,
				LastError:      r.LastError,
				CreatedAt:      time.UnixMilli(r.CreatedAt).UTC(),
			},
			data: r.Data,
		}
	}

	var out []chat.Message
	for _, it := range l.items {
		if it.ConversationID != conversationID {
			continue
		}
		switch it.State {
		case Uploading:
			out = append(out, it.message(chat.Pending))
		case Failed:
			out = append(out, it.message(chat.Failed))
		}
	}
	slices.SortFunc(out, func(a, b chat.Message) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		if a.TempID < b.TempID {
			return -1
		}
		if a.TempID > b.TempID {
			return 1
		}
		return 0
	})
	return out, nil
}

// Items returns the tracked items of a conversation.
func (l *Lifecycle) Items(conversationID string) []Item {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Item
	for _, it := range l.items {
		if it.ConversationID == conversationID {
			out = append(out, it.Item)
		}
	}
	slices.SortFunc(out, func(a, b Item) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out
}

// Get returns a snapshot of one item.
func (l *Lifecycle) Get(tempID string) (Item, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	it, ok := l.items[tempID]
	if !ok {
		return Item{}, false
	}
	return it.Item, true
}

// Wait blocks until every running upload finished.
func (l *Lifecycle) Wait() {
	l.wg.Wait()
}

// Close cancels running uploads and waits for them.
func (l *Lifecycle) Close() {
	l.cancel()
	l.wg.Wait()
}

func (l *Lifecycle) start(tempID string, req provider.UploadRequest) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.upload(tempID, req)
	}()
}

func (l *Lifecycle) upload(tempID string, req provider.UploadRequest) {
	metrics.UploadsInFlight.Inc()
	msg, err := l.uploader.Upload(l.ctx, req)
	metrics.UploadsInFlight.Dec()

	l.mu.Lock()
	it, ok := l.items[tempID]
	if !ok {
		l.mu.Unlock()
		return
	}
	tl := l.timeline

	if err != nil {
		it.LastError = err.Error()
		it.Rejected = errors.Is(err, chat.ErrUploadRejected)
		_ = it.transition(Failed)
		snap := it.Item
		l.mu.Unlock()

		result := "failed"
		if snap.Rejected {
			result = "rejected"
		}
		metrics.RecordUpload(result)
		l.log.Warn("upload failed",
			zap.String("temp_id", tempID),
			zap.String("conversation", snap.ConversationID),
			zap.Int("attempts", snap.Attempts),
			zap.Error(err),
		)
		if l.store != nil {
			if err := l.store.MarkUploadAttempt(tempID, snap.Attempts, snap.Rejected, snap.LastError); err != nil {
				l.log.Warn("failed to record upload attempt", zap.String("temp_id", tempID), zap.Error(err))
			}
		}
		if tl != nil {
			tl.MarkLocalFailed(snap.ConversationID, tempID)
		}
		l.bus.Emit(bus.UploadFailed, snap.ConversationID, snap)
		return
	}

	_ = it.transition(Confirmed)
	delete(l.items, tempID)
	snap := it.Item
	l.mu.Unlock()

	metrics.RecordUpload("confirmed")
	l.release(tempID)

	msg.TempID = tempID
	msg.Local = true
	if msg.ClientRef == "" {
		msg.ClientRef = tempID
	}
	if msg.ConversationID == "" {
		msg.ConversationID = snap.ConversationID
	}
	msg.Direction = chat.Outbound
	if msg.Kind == "" {
		msg.Kind = snap.Kind
	}
	if !msg.State.Valid() || msg.State == chat.Pending || msg.State == chat.Failed {
		msg.State = chat.Sent
	}
	if tl != nil {
		tl.ReplaceLocal(snap.ConversationID, tempID, msg)
	}
	l.log.Info("upload confirmed",
		zap.String("temp_id", tempID),
		zap.String("message_id", msg.ID),
		zap.Int("attempts", snap.Attempts),
	)
	l.bus.Emit(bus.UploadConfirmed, snap.ConversationID, msg)
}

func (l *Lifecycle) release(tempID string) {
	if l.store == nil {
		return
	}
	if err := l.store.DeletePendingUpload(tempID); err != nil {
		l.log.Warn("failed to release pending upload", zap.String("temp_id", tempID), zap.Error(err))
	}
}

func (it *item) message(state chat.State) chat.Message {
	return chat.Message{
		TempID:         it.TempID,
		ClientRef:      it.TempID,
		ConversationID: it.ConversationID,
		Direction:      chat.Outbound,
		Kind:           it.Kind,
		Body:           it.Caption,
		LocalRef:       LocalRef(it.TempID),
		State:          state,
		CreatedAt:      it.CreatedAt,
		Local:          true,
	}
}

func (it *item) request() provider.UploadRequest {
	return provider.UploadRequest{
		ConversationID: it.ConversationID,
		Kind:           it.Kind,
		Filename:       it.Filename,
		Data:           it.data,
		Caption:        it.Caption,
		ClientRef:      it.TempID,
	}
}
