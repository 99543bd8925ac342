package store

// Conversation is the persisted metadata of a conversation.
type Conversation struct {
	ID            string
	Channel       string
	Contact       string
	LeadID        string
	LastInboundAt int64
	Blocked       bool
	Unread        int
}

// OutboxEntry represents an outgoing free-form text message.
type OutboxEntry struct {
	ID             int64
	ClientMsgID    string
	ConversationID string
	Body           string
	Status         string // queued, sending, sent, failed
	ErrorMessage   string
	ServerMsgID    string
	CreatedAt      int64
}

// Outbox statuses.
const (
	OutboxQueued  = "queued"
	OutboxSending = "sending"
	OutboxSent    = "sent"
	OutboxFailed  = "failed"
)

// PendingUpload holds the bytes of an attachment the provider has not
// accepted yet.
type PendingUpload struct {
	TempID         string
	ConversationID string
	Kind           string
	Filename       string
	Caption        string
	Data           []byte
	Attempts       int
	Rejected       bool
	LastError      string
	CreatedAt      int64
}

// UnreadCount is one persisted (lead, channel) unread total.
type UnreadCount struct {
	LeadID  string
	Channel string
	Count   int
}
