package provider

import (
	"slices"
	"time"

	"github.com/matheus3301/leadchat/internal/chat"
)

// Page is one batch of confirmed messages, ordered oldest to newest.
type Page struct {
	Messages     []chat.Message
	Conversation chat.Conversation
	HasMore      bool
}

// TemplateRequest opens or re-opens a conversation with an approved template.
// ConversationID may be empty when no conversation exists yet, in which case
// Channel and To address the contact.
type TemplateRequest struct {
	ConversationID string
	Channel        chat.Channel
	To             string
	TemplateID     string
	Language       string
	LeadID         string
	Params         []string
	ClientRef      string
}

// TemplateResult is the provider's answer to a template send. Conversation
// is set when the send created a new conversation.
type TemplateResult struct {
	Message      chat.Message
	Conversation *chat.Conversation
}

// UploadRequest carries one attachment.
type UploadRequest struct {
	ConversationID string
	Kind           chat.Kind
	Filename       string
	Data           []byte
	Caption        string
	ClientRef      string
}

type wireMessage struct {
	ID             string `json:"id"`
	ClientRef      string `json:"client_ref,omitempty"`
	ConversationID string `json:"conversation_id"`
	Direction      string `json:"direction"`
	Type           string `json:"type"`
	Body           string `json:"body,omitempty"`
	Caption        string `json:"caption,omitempty"`
	MediaURL       string `json:"media_url,omitempty"`
	Status         string `json:"status,omitempty"`
	Timestamp      int64  `json:"timestamp"`
	Sender         string `json:"sender,omitempty"`
}

type wireConversation struct {
	ID            string `json:"id"`
	Channel       string `json:"channel"`
	Contact       string `json:"contact"`
	LeadID        string `json:"lead_id,omitempty"`
	LastInboundAt int64  `json:"last_inbound_at,omitempty"`
	Blocked       bool   `json:"blocked"`
	UnreadCount   int    `json:"unread_count"`
}

type wirePage struct {
	Messages     []wireMessage     `json:"messages"`
	Conversation *wireConversation `json:"conversation,omitempty"`
	HasMore      bool              `json:"has_more"`
}

type wireTemplate struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Language string `json:"language"`
	Channel  string `json:"channel"`
	Status   string `json:"status"`
}

type wireTemplateResult struct {
	Message      *wireMessage      `json:"message,omitempty"`
	Conversation *wireConversation `json:"conversation,omitempty"`
}

type wireUnread struct {
	LeadID  string `json:"lead_id"`
	Channel string `json:"channel"`
	Count   int    `json:"count"`
}

type wireError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

// toMessage converts a wire message. A missing or unknown direction becomes
// fallbackDir, which may be empty when the caller cannot tell.
func (w wireMessage) toMessage(fallbackConv string, fallbackDir chat.Direction) chat.Message {
	body := w.Body
	if body == "" {
		body = w.Caption
	}
	conv := w.ConversationID
	if conv == "" {
		conv = fallbackConv
	}
	dir := chat.ParseDirection(w.Direction)
	if dir == "" {
		dir = fallbackDir
	}
	m := chat.Message{
		ID:             w.ID,
		ClientRef:      w.ClientRef,
		ConversationID: conv,
		Direction:      dir,
		Kind:           chat.ParseKind(w.Type),
		Body:           body,
		MediaURL:       w.MediaURL,
		State:          chat.ParseState(w.Status),
		CreatedAt:      time.UnixMilli(w.Timestamp).UTC(),
	}
	if dir == chat.Outbound {
		m.Sender = w.Sender
	}
	return m
}

func (w *wireConversation) toConversation() chat.Conversation {
	if w == nil {
		return chat.Conversation{}
	}
	c := chat.Conversation{
		ID:      w.ID,
		Channel: chat.Channel(w.Channel),
		Contact: w.Contact,
		LeadID:  w.LeadID,
		Blocked: w.Blocked,
		Unread:  w.UnreadCount,
	}
	if w.LastInboundAt > 0 {
		c.LastInboundAt = time.UnixMilli(w.LastInboundAt).UTC()
	}
	return c
}

// normalize converts a wire batch into confirmed messages ordered oldest to
// newest. Entries without an id are dropped, and so are entries whose
// direction cannot be told: only our own sends echo a client ref, so those
// are outbound.
func normalize(in []wireMessage, conversationID string) []chat.Message {
	out := make([]chat.Message, 0, len(in))
	for _, w := range in {
		if w.ID == "" {
			continue
		}
		var fallback chat.Direction
		if w.ClientRef != "" {
			fallback = chat.Outbound
		}
		m := w.toMessage(conversationID, fallback)
		if m.Direction == "" {
			continue
		}
		out = append(out, m)
	}
	slices.SortStableFunc(out, func(a, b chat.Message) int {
		switch {
		case a.Before(b):
			return -1
		case b.Before(a):
			return 1
		}
		return 0
	})
	return out
}
