package bus

import "time"

// Event kinds published by the daemon. Subscribers filter on the prefix
// before the first dot.
const (
	ConversationSelected = "conversation.selected"
	ConversationUpdated  = "conversation.updated"

	TimelineChanged = "timeline.changed"
	TimelineScroll  = "timeline.scroll"

	MessageQueued     = "message.queued"
	MessageSendAck    = "message.send_ack"
	MessageSendFailed = "message.send_failed"

	UploadStarted   = "upload.started"
	UploadConfirmed = "upload.confirmed"
	UploadFailed    = "upload.failed"
	UploadDismissed = "upload.dismissed"

	UnreadChanged = "unread.changed"

	StatusChanged = "daemon.status_changed"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	// Conversation is set for events scoped to one conversation.
	Conversation string
	Payload      any
}
