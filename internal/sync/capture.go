package sync

import (
	"errors"
	"time"

	"github.com/matheus3301/leadchat/internal/chat"
	"github.com/matheus3301/leadchat/internal/media"
	"github.com/matheus3301/leadchat/internal/metrics"
)

var errNoMedia = errors.New("media uploads are not configured")

// StartCapture begins recording a voice note or clip for the active
// conversation. Media are free-form sends, so the session window is checked
// before capturing starts.
func (e *Engine) StartCapture(kind chat.Kind) (string, error) {
	s, err := e.mediaSession()
	if err != nil {
		return "", err
	}
	return e.media.StartCapture(s.id, kind)
}

// AppendCapture adds recorded bytes to a capture in progress.
func (e *Engine) AppendCapture(captureID string, chunk []byte) error {
	if e.media == nil {
		return errNoMedia
	}
	return e.media.AppendCapture(captureID, chunk)
}

// StopCapture finishes a capture and starts its upload. It returns nil when
// the capture was too short or too small and got discarded.
func (e *Engine) StopCapture(captureID string, duration time.Duration) (*media.Item, error) {
	if e.media == nil {
		return nil, errNoMedia
	}
	return e.media.StopCapture(captureID, duration)
}

// Attach uploads a picked file to the active conversation.
func (e *Engine) Attach(kind chat.Kind, filename string, data []byte, caption string) (*media.Item, error) {
	s, err := e.mediaSession()
	if err != nil {
		return nil, err
	}
	return e.media.Attach(s.id, kind, filename, data, caption)
}

func (e *Engine) mediaSession() (*Session, error) {
	if e.media == nil {
		return nil, errNoMedia
	}
	s := e.Active()
	if s == nil {
		return nil, chat.ErrNoActiveConversation
	}
	if err := e.checkFreeform(s); err != nil {
		metrics.RecordUpload("rejected")
		return nil, err
	}
	return s, nil
}
