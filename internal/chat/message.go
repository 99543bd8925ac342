package chat

import (
	"strings"
	"time"
)

// Channel identifies the external platform hosting a conversation.
type Channel string

const (
	WhatsApp  Channel = "whatsapp"
	Instagram Channel = "instagram"
	Messenger Channel = "messenger"
)

// Direction is the side a message originated from.
type Direction string

const (
	Inbound  Direction = "INBOUND"
	Outbound Direction = "OUTBOUND"
)

var directions = map[string]Direction{
	"inbound": Inbound, "in": Inbound, "incoming": Inbound, "received": Inbound,
	"outbound": Outbound, "out": Outbound, "outgoing": Outbound, "sent": Outbound,
}

// ParseDirection maps a provider direction string onto a Direction, case
// insensitively. Unknown or empty values return "".
func ParseDirection(v string) Direction {
	return directions[strings.ToLower(strings.TrimSpace(v))]
}

// Kind is the content kind of a message.
type Kind string

const (
	Text     Kind = "TEXT"
	Image    Kind = "IMAGE"
	Video    Kind = "VIDEO"
	Audio    Kind = "AUDIO"
	Document Kind = "DOCUMENT"
	Location Kind = "LOCATION"
	Contact  Kind = "CONTACT"
	Sticker  Kind = "STICKER"
	Reaction Kind = "REACTION"
)

var kinds = map[string]Kind{
	"text": Text, "image": Image, "video": Video, "audio": Audio,
	"voice": Audio, "ptt": Audio, "document": Document, "file": Document,
	"location": Location, "contact": Contact, "contacts": Contact,
	"sticker": Sticker, "reaction": Reaction,
}

// ParseKind maps a provider kind string onto a Kind. Unknown kinds are
// treated as documents so they still render as an attachment.
func ParseKind(v string) Kind {
	if k, ok := kinds[strings.ToLower(v)]; ok {
		return k
	}
	return Document
}

// IsMedia reports whether the kind carries an uploaded attachment.
func (k Kind) IsMedia() bool {
	switch k {
	case Image, Video, Audio, Document, Sticker:
		return true
	}
	return false
}

// Conversation is one thread with one external contact on one channel.
type Conversation struct {
	ID            string
	Channel       Channel
	Contact       string
	LeadID        string
	LastInboundAt time.Time
	Blocked       bool
	Unread        int
}

// Message is one entry of a conversation timeline. ID is empty until the
// server confirmed the message; before that the entry is keyed by TempID.
type Message struct {
	ID             string
	TempID         string
	ClientRef      string
	ConversationID string
	Direction      Direction
	Kind           Kind
	Body           string
	MediaURL       string
	LocalRef       string
	State          State
	CreatedAt      time.Time
	Sender         string
	// Local is set for entries created on this client that no fetched batch
	// has echoed yet, including ones already acknowledged by a send response.
	Local bool
}

// Confirmed reports whether the server assigned the message an id.
func (m Message) Confirmed() bool {
	return m.ID != ""
}

// Key returns the identity of the entry within a timeline.
func (m Message) Key() string {
	if m.ID != "" {
		return m.ID
	}
	return "tmp:" + m.TempID
}

// SameContent reports whether two messages carry the same
// (direction, kind, body) triple.
func (m Message) SameContent(o Message) bool {
	return m.Direction == o.Direction && m.Kind == o.Kind && m.Body == o.Body
}

// Before orders confirmed messages by creation time, then by id.
func (m Message) Before(o Message) bool {
	if !m.CreatedAt.Equal(o.CreatedAt) {
		return m.CreatedAt.Before(o.CreatedAt)
	}
	return m.ID < o.ID
}

// Template is a provider-approved message template.
type Template struct {
	ID       string
	Name     string
	Language string
	Channel  Channel
	Approved bool
}

// UnreadCount is one channel's authoritative unread total for a lead.
type UnreadCount struct {
	LeadID  string
	Channel Channel
	Count   int
}
