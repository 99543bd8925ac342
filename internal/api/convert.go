package api

import (
	"encoding/json"

	"github.com/matheus3301/leadchat/internal/bus"
	"github.com/matheus3301/leadchat/internal/chat"
	"github.com/matheus3301/leadchat/internal/media"
	"github.com/matheus3301/leadchat/internal/rpc"
	intsync "github.com/matheus3301/leadchat/internal/sync"
	"github.com/matheus3301/leadchat/internal/unread"
)

func messageToRPC(m chat.Message) rpc.Message {
	return rpc.Message{
		ID:             m.ID,
		TempID:         m.TempID,
		ConversationID: m.ConversationID,
		Direction:      string(m.Direction),
		Kind:           string(m.Kind),
		Body:           m.Body,
		MediaURL:       m.MediaURL,
		LocalRef:       m.LocalRef,
		State:          string(m.State),
		CreatedAt:      m.CreatedAt,
		Sender:         m.Sender,
		Local:          m.Local,
	}
}

func conversationToRPC(c chat.Conversation) rpc.Conversation {
	return rpc.Conversation{
		ID:            c.ID,
		Channel:       string(c.Channel),
		Contact:       c.Contact,
		LeadID:        c.LeadID,
		LastInboundAt: c.LastInboundAt,
		Blocked:       c.Blocked,
		Unread:        c.Unread,
	}
}

func uploadToRPC(it media.Item) rpc.Upload {
	return rpc.Upload{
		TempID:    it.TempID,
		Kind:      string(it.Kind),
		Filename:  it.Filename,
		State:     string(it.State),
		Size:      it.Size,
		Attempts:  it.Attempts,
		Rejected:  it.Rejected,
		LastError: it.LastError,
	}
}

func badgeToRPC(b unread.Badge) rpc.Badge {
	out := rpc.Badge{LeadID: b.LeadID, Total: b.Total, Channels: make(map[string]int, len(b.Channels))}
	for ch, n := range b.Channels {
		out.Channels[string(ch)] = n
	}
	return out
}

func viewToRPC(v intsync.View) *rpc.TimelineResponse {
	resp := &rpc.TimelineResponse{
		Conversation:    conversationToRPC(v.Conversation),
		Messages:        make([]rpc.Message, 0, len(v.Messages)),
		Window:          string(v.Window),
		CanSendFreeform: v.CanSendFreeform,
		WindowExpiresAt: v.WindowExpiresAt,
		HasMore:         v.HasMore,
	}
	for _, m := range v.Messages {
		resp.Messages = append(resp.Messages, messageToRPC(m))
	}
	for _, it := range v.Uploads {
		resp.Uploads = append(resp.Uploads, uploadToRPC(it))
	}
	return resp
}

func eventToRPC(evt bus.Event) (*rpc.Event, error) {
	var payload any
	switch p := evt.Payload.(type) {
	case chat.Message:
		payload = messageToRPC(p)
	case chat.Conversation:
		payload = conversationToRPC(p)
	case media.Item:
		payload = uploadToRPC(p)
	case unread.Badge:
		payload = badgeToRPC(p)
	default:
		payload = p
	}
	out := &rpc.Event{Kind: evt.Kind, Conversation: evt.Conversation, Timestamp: evt.Timestamp}
	if payload == nil {
		return out, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	out.Payload = data
	return out, nil
}
