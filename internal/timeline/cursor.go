package timeline

import (
	"slices"
	"time"

	"github.com/matheus3301/leadchat/internal/chat"
)

// Cursor marks the oldest confirmed message loaded for a conversation.
type Cursor struct {
	OldestID string
	OldestAt time.Time
	HasMore  bool
}

// NewCursor builds the cursor from the first successful fetch of a
// conversation. An empty batch yields a cursor with nothing more to load.
func NewCursor(batch []chat.Message, hasMore bool) Cursor {
	oldest, ok := oldestConfirmed(batch)
	if !ok {
		return Cursor{}
	}
	return Cursor{OldestID: oldest.ID, OldestAt: oldest.CreatedAt, HasMore: hasMore}
}

func (c Cursor) position() chat.Message {
	return chat.Message{ID: c.OldestID, CreatedAt: c.OldestAt}
}

// Prepend adds an older page in front of local and advances the cursor.
// Entries already present in local, or not strictly older than the cursor,
// are dropped; if nothing remains the cursor stops paginating. Previously
// loaded entries keep their order.
func Prepend(local, older []chat.Message, cur Cursor, hasMore bool) ([]chat.Message, Cursor) {
	present := make(map[string]struct{}, len(local))
	for _, m := range local {
		if m.ID != "" {
			present[m.ID] = struct{}{}
		}
	}

	pos := cur.position()
	fresh := make([]chat.Message, 0, len(older))
	for _, m := range dedupe(older) {
		if _, ok := present[m.ID]; ok {
			continue
		}
		if cur.OldestID != "" && !m.Before(pos) {
			continue
		}
		m.Local = false
		fresh = append(fresh, m)
	}

	if len(fresh) == 0 {
		cur.HasMore = false
		return append([]chat.Message(nil), local...), cur
	}

	slices.SortStableFunc(fresh, func(a, b chat.Message) int {
		switch {
		case a.Before(b):
			return -1
		case b.Before(a):
			return 1
		}
		return 0
	})

	out := make([]chat.Message, 0, len(fresh)+len(local))
	out = append(out, fresh...)
	out = append(out, local...)
	return out, Cursor{OldestID: fresh[0].ID, OldestAt: fresh[0].CreatedAt, HasMore: hasMore}
}

func oldestConfirmed(msgs []chat.Message) (chat.Message, bool) {
	var oldest chat.Message
	found := false
	for _, m := range msgs {
		if m.ID == "" {
			continue
		}
		if !found || m.Before(oldest) {
			oldest = m
			found = true
		}
	}
	return oldest, found
}
