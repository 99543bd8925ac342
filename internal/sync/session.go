package sync

import (
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/leadchat/internal/chat"
	"github.com/matheus3301/leadchat/internal/gate"
	"github.com/matheus3301/leadchat/internal/timeline"
)

// Session is the synchronization context of the active conversation: its
// reconciled message list, pagination cursor and session window. Every
// mutation swaps in a new slice; readers always get a copy.
type Session struct {
	id string

	mu           sync.Mutex
	conv         chat.Conversation
	msgs         []chat.Message
	cursor       *timeline.Cursor
	gate         *gate.Gate
	refreshing   bool
	loadingOlder bool
	forceScroll  bool
	closed       bool
}

func newSession(conv chat.Conversation, window time.Duration, locals []chat.Message) *Session {
	return &Session{
		id:          conv.ID,
		conv:        conv,
		msgs:        locals,
		gate:        gate.New(window),
		forceScroll: true,
	}
}

// ID returns the conversation id.
func (s *Session) ID() string {
	return s.id
}

// Messages returns a copy of the reconciled list.
func (s *Session) Messages() []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.msgs)
}

// Conversation returns the latest known conversation metadata.
func (s *Session) Conversation() chat.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.conv
	c.LastInboundAt = s.gate.LastInbound()
	return c
}

func (s *Session) beginRefresh() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.refreshing {
		return false
	}
	s.refreshing = true
	return true
}

func (s *Session) endRefresh() {
	s.mu.Lock()
	s.refreshing = false
	s.mu.Unlock()
}

func (s *Session) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *Session) indexLocal(tempID string) int {
	for i, m := range s.msgs {
		if m.Local && m.TempID == tempID {
			return i
		}
	}
	return -1
}

func (s *Session) indexTemp(tempID string) int {
	for i, m := range s.msgs {
		if m.TempID == tempID {
			return i
		}
	}
	return -1
}

// insert appends an entry unless one with the same temp id exists.
func (s *Session) insert(m chat.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || (m.TempID != "" && s.indexTemp(m.TempID) >= 0) {
		return false
	}
	next := make([]chat.Message, 0, len(s.msgs)+1)
	next = append(next, s.msgs...)
	s.msgs = append(next, m)
	return true
}

// replace swaps the local entry keyed by tempID in place.
func (s *Session) replace(tempID string, m chat.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocal(tempID)
	if s.closed || i < 0 {
		return false
	}
	next := slices.Clone(s.msgs)
	next[i] = m
	s.msgs = next
	return true
}

// markFailed moves a pending local entry to FAILED in place.
func (s *Session) markFailed(tempID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocal(tempID)
	if s.closed || i < 0 {
		return false
	}
	to, err := s.msgs[i].State.Advance(chat.Failed)
	if err != nil || to == s.msgs[i].State {
		return false
	}
	next := slices.Clone(s.msgs)
	next[i].State = to
	s.msgs = next
	return true
}

// remove drops the local entry keyed by tempID.
func (s *Session) remove(tempID string) (chat.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocal(tempID)
	if s.closed || i < 0 {
		return chat.Message{}, false
	}
	m := s.msgs[i]
	s.msgs = slices.Delete(slices.Clone(s.msgs), i, i+1)
	return m, true
}

// local returns the local entry keyed by tempID.
func (s *Session) local(tempID string) (chat.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocal(tempID)
	if i < 0 {
		return chat.Message{}, false
	}
	return s.msgs[i], true
}

func (s *Session) unresolved() int {
	n := 0
	for _, m := range s.msgs {
		if m.Local && m.State.Unresolved() {
			n++
		}
	}
	return n
}
