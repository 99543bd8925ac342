package chat

import "errors"

var (
	// ErrNetwork is a transient failure reaching the provider.
	ErrNetwork = errors.New("network failure")
	// ErrSessionExpired rejects a free-form send outside the 24h window.
	ErrSessionExpired = errors.New("session window expired: template required")
	// ErrUploadRejected is returned when the provider declines an attachment.
	ErrUploadRejected = errors.New("upload rejected by provider")
	// ErrTemplateUnavailable is returned when no approved template matches.
	ErrTemplateUnavailable = errors.New("no approved template available")
	// ErrConversationBlocked rejects sends to a blocked contact.
	ErrConversationBlocked = errors.New("conversation is blocked")
	// ErrNoActiveConversation is returned by actions that need a selected conversation.
	ErrNoActiveConversation = errors.New("no active conversation")
	// ErrNotFound is returned when a message or capture id is unknown.
	ErrNotFound = errors.New("not found")
)
