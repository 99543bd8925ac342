package timeline

import (
	"reflect"
	"testing"
	"time"

	"github.com/matheus3301/leadchat/internal/chat"
)

func page(from, to int) []chat.Message {
	var out []chat.Message
	for i := from; i <= to; i++ {
		out = append(out, confirmed(msgID(i), chat.Inbound, "body", t0.Add(time.Duration(i)*time.Minute)))
	}
	return out
}

func msgID(i int) string {
	return "m" + string(rune('a'+i))
}

func TestNewCursor(t *testing.T) {
	c := NewCursor(page(10, 14), true)
	if c.OldestID != msgID(10) || !c.HasMore {
		t.Errorf("cursor = %+v, want oldest %s with more", c, msgID(10))
	}

	empty := NewCursor(nil, true)
	if empty.HasMore || empty.OldestID != "" {
		t.Errorf("empty cursor = %+v, want zero", empty)
	}
}

func TestPrependKeepsTailAndAdvances(t *testing.T) {
	latest := page(10, 12)
	local := append(latest, pending("p1", "queued", t0.Add(time.Hour)))
	cur := NewCursor(latest, true)

	out, next := Prepend(local, page(7, 9), cur, true)
	want := []string{msgID(7), msgID(8), msgID(9), msgID(10), msgID(11), msgID(12), "tmp:p1"}
	if got := keys(out); !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	if next.OldestID != msgID(7) || !next.HasMore {
		t.Errorf("cursor = %+v, want oldest %s with more", next, msgID(7))
	}
}

func TestPrependCursorMonotonic(t *testing.T) {
	local := page(9, 11)
	cur := NewCursor(local, true)
	pages := [][]chat.Message{page(6, 8), page(3, 5), page(0, 2)}

	prev := cur
	for i, p := range pages {
		hasMore := i < len(pages)-1
		local, cur = Prepend(local, p, cur, hasMore)
		if !cur.position().Before(prev.position()) {
			t.Fatalf("page %d: cursor %s did not move before %s", i, cur.OldestID, prev.OldestID)
		}
		prev = cur
	}
	if cur.HasMore {
		t.Error("HasMore = true after the last page")
	}
	if len(local) != 12 {
		t.Errorf("loaded %d messages, want 12", len(local))
	}
}

func TestPrependDropsReplayedPage(t *testing.T) {
	local := page(5, 8)
	cur := NewCursor(local, true)

	// Server ignores the cursor and replays what is already loaded.
	out, next := Prepend(local, page(5, 6), cur, true)
	if !reflect.DeepEqual(keys(out), keys(local)) {
		t.Fatalf("list changed on replayed page: %v", keys(out))
	}
	if next.HasMore {
		t.Error("HasMore should stop after a page with nothing new")
	}
	if next.OldestID != cur.OldestID {
		t.Errorf("cursor moved to %s on replayed page", next.OldestID)
	}
}

func TestPrependSortsUnorderedPage(t *testing.T) {
	local := page(5, 6)
	cur := NewCursor(local, true)
	older := []chat.Message{page(3, 3)[0], page(1, 1)[0], page(2, 2)[0]}

	out, next := Prepend(local, older, cur, false)
	want := []string{msgID(1), msgID(2), msgID(3), msgID(5), msgID(6)}
	if got := keys(out); !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	if next.OldestID != msgID(1) {
		t.Errorf("oldest = %s, want %s", next.OldestID, msgID(1))
	}
}
