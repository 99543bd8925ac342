package rpc

import (
	"encoding/json"
	"time"
)

type Conversation struct {
	ID            string    `json:"id"`
	Channel       string    `json:"channel,omitempty"`
	Contact       string    `json:"contact,omitempty"`
	LeadID        string    `json:"lead_id,omitempty"`
	LastInboundAt time.Time `json:"last_inbound_at,omitzero"`
	Blocked       bool      `json:"blocked,omitempty"`
	Unread        int       `json:"unread,omitempty"`
}

type Message struct {
	ID             string    `json:"id,omitempty"`
	TempID         string    `json:"temp_id,omitempty"`
	ConversationID string    `json:"conversation_id"`
	Direction      string    `json:"direction"`
	Kind           string    `json:"kind"`
	Body           string    `json:"body,omitempty"`
	MediaURL       string    `json:"media_url,omitempty"`
	LocalRef       string    `json:"local_ref,omitempty"`
	State          string    `json:"state"`
	CreatedAt      time.Time `json:"created_at"`
	Sender         string    `json:"sender,omitempty"`
	Local          bool      `json:"local,omitempty"`
}

type Upload struct {
	TempID    string `json:"temp_id"`
	Kind      string `json:"kind"`
	Filename  string `json:"filename,omitempty"`
	State     string `json:"state"`
	Size      int    `json:"size"`
	Attempts  int    `json:"attempts"`
	Rejected  bool   `json:"rejected,omitempty"`
	LastError string `json:"last_error,omitempty"`
}

type StatusResponse struct {
	Profile            string `json:"profile"`
	State              string `json:"state"`
	LastError          string `json:"last_error,omitempty"`
	UptimeMs           int64  `json:"uptime_ms"`
	ActiveConversation string `json:"active_conversation,omitempty"`
}

type SelectRequest struct {
	ConversationID string `json:"conversation_id"`
}

type TimelineResponse struct {
	Conversation    Conversation `json:"conversation"`
	Messages        []Message    `json:"messages"`
	Window          string       `json:"window"`
	CanSendFreeform bool         `json:"can_send_freeform"`
	WindowExpiresAt time.Time    `json:"window_expires_at,omitzero"`
	HasMore         bool         `json:"has_more"`
	Uploads         []Upload     `json:"uploads,omitempty"`
}

type SendRequest struct {
	Text string `json:"text"`
}

type SendResponse struct {
	Message Message `json:"message"`
}

type TemplateRequest struct {
	ConversationID string   `json:"conversation_id,omitempty"`
	Channel        string   `json:"channel,omitempty"`
	To             string   `json:"to,omitempty"`
	TemplateID     string   `json:"template_id"`
	Language       string   `json:"language"`
	LeadID         string   `json:"lead_id,omitempty"`
	Params         []string `json:"params,omitempty"`
}

type StartCaptureRequest struct {
	Kind string `json:"kind,omitempty"`
}

type StartCaptureResponse struct {
	CaptureID string `json:"capture_id"`
}

type AppendCaptureRequest struct {
	CaptureID string `json:"capture_id"`
	Data      []byte `json:"data"`
}

type StopCaptureRequest struct {
	CaptureID  string `json:"capture_id"`
	DurationMs int64  `json:"duration_ms,omitempty"`
}

type AttachRequest struct {
	Kind     string `json:"kind"`
	Filename string `json:"filename"`
	Data     []byte `json:"data"`
	Caption  string `json:"caption,omitempty"`
}

// UploadResponse carries the started upload. Upload is nil when a capture
// was discarded as too short.
type UploadResponse struct {
	Upload *Upload `json:"upload,omitempty"`
}

type RetryRequest struct {
	TempID string `json:"temp_id"`
}

type RetryResponse struct {
	TempID string `json:"temp_id"`
}

type DismissRequest struct {
	TempID string `json:"temp_id"`
}

type LoadOlderResponse struct {
	Loaded  int  `json:"loaded"`
	HasMore bool `json:"has_more"`
}

type Badge struct {
	LeadID   string         `json:"lead_id"`
	Total    int            `json:"total"`
	Channels map[string]int `json:"channels"`
}

type UnreadResponse struct {
	Badges []Badge `json:"badges"`
}

type WatchRequest struct {
	// Namespace filters events by kind prefix ("timeline", "upload"...).
	Namespace string `json:"namespace,omitempty"`
}

type Event struct {
	Kind         string          `json:"kind"`
	Conversation string          `json:"conversation,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
	Payload      json.RawMessage `json:"payload,omitempty"`
}
