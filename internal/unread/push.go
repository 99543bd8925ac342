package unread

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/matheus3301/leadchat/internal/chat"
)

// DefaultSubject receives unread pushes for every lead.
const DefaultSubject = "leadchat.unread.>"

// PushConfig holds the NATS connection settings of the push listener.
type PushConfig struct {
	URL     string
	Token   string
	Subject string
}

type pushPayload struct {
	LeadID  string `json:"lead_id"`
	Channel string `json:"channel"`
	Count   *int   `json:"count"`
}

// PushListener applies unread totals delivered over NATS.
type PushListener struct {
	cfg  PushConfig
	agg  *Aggregator
	log  *zap.Logger
	conn *nats.Conn
	sub  *nats.Subscription
}

// NewPushListener creates a listener. It does nothing until Start.
func NewPushListener(cfg PushConfig, agg *Aggregator, log *zap.Logger) *PushListener {
	if cfg.Subject == "" {
		cfg.Subject = DefaultSubject
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &PushListener{cfg: cfg, agg: agg, log: log}
}

// Enabled reports whether a NATS URL is configured.
func (l *PushListener) Enabled() bool {
	return l.cfg.URL != ""
}

// Start connects and subscribes. Without a URL it is a no-op.
func (l *PushListener) Start() error {
	if !l.Enabled() {
		return nil
	}
	opts := []nats.Option{
		nats.Name("leadchatd"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			l.log.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			l.log.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			l.log.Error("nats error", zap.Error(err))
		}),
	}
	if l.cfg.Token != "" {
		opts = append(opts, nats.Token(l.cfg.Token))
	}

	nc, err := nats.Connect(l.cfg.URL, opts...)
	if err != nil {
		return fmt.Errorf("connect to nats: %w", err)
	}
	sub, err := nc.Subscribe(l.cfg.Subject, func(msg *nats.Msg) {
		if err := l.Handle(msg.Data); err != nil {
			l.log.Warn("dropping unread push", zap.String("subject", msg.Subject), zap.Error(err))
		}
	})
	if err != nil {
		nc.Close()
		return fmt.Errorf("subscribe %s: %w", l.cfg.Subject, err)
	}
	l.conn = nc
	l.sub = sub
	l.log.Info("unread push listener started", zap.String("subject", l.cfg.Subject))
	return nil
}

// Handle decodes one push payload and applies it.
func (l *PushListener) Handle(data []byte) error {
	var p pushPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if p.LeadID == "" || p.Channel == "" || p.Count == nil {
		return fmt.Errorf("incomplete payload")
	}
	l.agg.Set(SourcePush, chat.UnreadCount{LeadID: p.LeadID, Channel: chat.Channel(p.Channel), Count: *p.Count})
	return nil
}

// Stop unsubscribes and closes the connection.
func (l *PushListener) Stop() {
	if l.sub != nil {
		_ = l.sub.Unsubscribe()
		l.sub = nil
	}
	if l.conn != nil {
		l.conn.Close()
		l.conn = nil
	}
}
