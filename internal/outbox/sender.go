package outbox

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/leadchat/internal/bus"
	"github.com/matheus3301/leadchat/internal/chat"
	"github.com/matheus3301/leadchat/internal/metrics"
	"github.com/matheus3301/leadchat/internal/store"
)

// TextSender sends one free-form text. clientRef is echoed on the returned message.
type TextSender interface {
	SendText(ctx context.Context, conversationID, body, clientRef string) (chat.Message, error)
}

// Listener is told how each queued send ended.
type Listener interface {
	SendConfirmed(conversationID, tempID string, m chat.Message)
	SendFailed(conversationID, tempID string, err error)
}

// Result is the payload of send ack and failure events.
type Result struct {
	ConversationID string
	TempID         string
	MessageID      string
	Error          string
}

const defaultInterval = 500 * time.Millisecond

// Sender drains the outbox in queue order.
type Sender struct {
	db       *store.DB
	sender   TextSender
	listener Listener
	bus      *bus.Bus
	logger   *zap.Logger
	interval time.Duration

	kick   chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSender creates a new outbox sender.
func NewSender(db *store.DB, sender TextSender, b *bus.Bus, logger *zap.Logger) *Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sender{
		db:       db,
		sender:   sender,
		bus:      b,
		logger:   logger,
		interval: defaultInterval,
		kick:     make(chan struct{}, 1),
	}
}

// Bind sets the listener notified of send outcomes.
func (s *Sender) Bind(l Listener) {
	s.listener = l
}

// Start requeues sends interrupted by a previous run and begins draining.
func (s *Sender) Start(ctx context.Context) {
	if n, err := s.db.ResetSendingOutbox(); err != nil {
		s.logger.Error("failed to reset outbox", zap.Error(err))
	} else if n > 0 {
		s.logger.Info("requeued interrupted sends", zap.Int64("count", n))
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.loop(ctx)
}

// Stop stops the sender loop and waits for the send in progress.
func (s *Sender) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
}

// Kick wakes the loop without waiting for the next tick.
func (s *Sender) Kick() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

func (s *Sender) loop(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.processPending(ctx)
		case <-s.kick:
			s.processPending(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sender) processPending(ctx context.Context) {
	pending, err := s.db.PendingOutbox()
	if err != nil {
		s.logger.Error("failed to read outbox", zap.Error(err))
		return
	}

	for _, entry := range pending {
		if ctx.Err() != nil {
			return
		}
		if err := s.db.MarkOutboxSending(entry.ClientMsgID); err != nil {
			s.logger.Error("failed to mark sending", zap.Error(err), zap.String("client_msg_id", entry.ClientMsgID))
			continue
		}

		msg, err := s.sender.SendText(ctx, entry.ConversationID, entry.Body, entry.ClientMsgID)
		if err != nil {
			if ctx.Err() != nil {
				// Left in 'sending'; the next Start requeues it.
				return
			}
			s.fail(entry, err)
			continue
		}

		if err := s.db.MarkOutboxSent(entry.ClientMsgID, msg.ID); err != nil {
			s.logger.Error("failed to mark sent", zap.Error(err), zap.String("client_msg_id", entry.ClientMsgID))
		}
		metrics.RecordSend("text", "sent")
		s.logger.Info("message sent",
			zap.String("client_msg_id", entry.ClientMsgID),
			zap.String("server_msg_id", msg.ID),
		)
		if s.listener != nil {
			s.listener.SendConfirmed(entry.ConversationID, entry.ClientMsgID, msg)
		}
		s.bus.Emit(bus.MessageSendAck, entry.ConversationID, Result{
			ConversationID: entry.ConversationID,
			TempID:         entry.ClientMsgID,
			MessageID:      msg.ID,
		})
	}
}

func (s *Sender) fail(entry store.OutboxEntry, err error) {
	s.logger.Error("failed to send message", zap.Error(err), zap.String("client_msg_id", entry.ClientMsgID))
	if mErr := s.db.MarkOutboxFailed(entry.ClientMsgID, err.Error()); mErr != nil {
		s.logger.Error("failed to mark failed", zap.Error(mErr), zap.String("client_msg_id", entry.ClientMsgID))
	}
	metrics.RecordSend("text", "failed")
	if s.listener != nil {
		s.listener.SendFailed(entry.ConversationID, entry.ClientMsgID, err)
	}
	s.bus.Emit(bus.MessageSendFailed, entry.ConversationID, Result{
		ConversationID: entry.ConversationID,
		TempID:         entry.ClientMsgID,
		Error:          err.Error(),
	})
}
