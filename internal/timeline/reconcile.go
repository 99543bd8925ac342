package timeline

import (
	"time"

	"github.com/matheus3301/leadchat/internal/chat"
)

// Result is the outcome of one reconciliation.
type Result struct {
	Messages []chat.Message
	// NewestID is the id of the newest confirmed message after the merge.
	NewestID string
	// NewestChanged is set when NewestID differs from the newest confirmed
	// id of the list that was reconciled.
	NewestChanged bool
	// LastInboundAt is the creation time of the newest inbound message in
	// Messages, zero when there is none.
	LastInboundAt time.Time
	// Resolved counts local entries dropped because the batch confirmed them.
	Resolved int
	// ResolvedTempIDs lists the temp ids of those entries, in list order.
	ResolvedTempIDs []string
}

// Reconcile merges the authoritative batch into the local list.
//
// The output is: confirmed history older than the batch, then the batch in
// its own order, then every local entry the batch did not resolve, in the
// order it had in local. Reconciling the output again with the same batch
// returns the same list.
func Reconcile(local, batch []chat.Message) Result {
	prevNewest := newestConfirmed(local)
	batch = dedupe(batch)

	if len(batch) == 0 {
		out := append([]chat.Message(nil), local...)
		return Result{
			Messages:      out,
			NewestID:      prevNewest,
			LastInboundAt: lastInbound(out),
		}
	}

	index := make(map[string]int, len(batch))
	byRef := make(map[string]int)
	for i, m := range batch {
		index[m.ID] = i
		if m.ClientRef != "" {
			byRef[m.ClientRef] = i
		}
	}

	// Confirmed entries the list already had. Only batch entries outside
	// this set count as new arrivals for content matching.
	known := make(map[string]chat.Message)
	var locals []chat.Message
	for _, m := range local {
		if isLocal(m) {
			locals = append(locals, m)
			continue
		}
		known[m.ID] = m
	}

	merged := make([]chat.Message, len(batch))
	for i, m := range batch {
		m.Local = false
		if prev, ok := known[m.ID]; ok {
			m.State = keepForward(prev.State, m.State)
			if m.TempID == "" {
				m.TempID = prev.TempID
			}
		}
		merged[i] = m
	}

	claimed := make([]bool, len(batch))
	resolved := make([]bool, len(locals))

	// Exact correlation first: server id or echoed client token.
	for i, l := range locals {
		j, ok := -1, false
		if l.ID != "" {
			j, ok = index[l.ID]
		}
		if !ok && l.TempID != "" {
			j, ok = byRef[l.TempID]
		}
		if !ok || claimed[j] {
			continue
		}
		claimed[j] = true
		resolved[i] = true
		merged[j].State = keepForward(l.State, merged[j].State)
		if merged[j].TempID == "" {
			merged[j].TempID = l.TempID
		}
	}

	// Content fallback for providers that do not echo tokens. Restricted to
	// still-optimistic entries and newly arrived untagged messages, one
	// confirmed message per local entry.
	for i, l := range locals {
		if resolved[i] || l.ID != "" {
			continue
		}
		for j, m := range batch {
			if claimed[j] || m.ClientRef != "" {
				continue
			}
			if _, seen := known[m.ID]; seen {
				continue
			}
			if !m.SameContent(l) {
				continue
			}
			claimed[j] = true
			resolved[i] = true
			if merged[j].TempID == "" {
				merged[j].TempID = l.TempID
			}
			break
		}
	}

	first := batch[0]
	out := make([]chat.Message, 0, len(local)+len(batch))
	for _, m := range local {
		if isLocal(m) {
			continue
		}
		if _, inBatch := index[m.ID]; inBatch {
			continue
		}
		if m.Before(first) {
			out = append(out, m)
		}
	}
	out = append(out, merged...)

	count := 0
	var resolvedIDs []string
	for i, l := range locals {
		if resolved[i] {
			count++
			if l.TempID != "" {
				resolvedIDs = append(resolvedIDs, l.TempID)
			}
			continue
		}
		out = append(out, l)
	}

	newest := merged[len(merged)-1].ID
	return Result{
		Messages:        out,
		NewestID:        newest,
		NewestChanged:   newest != prevNewest,
		LastInboundAt:   lastInbound(out),
		Resolved:        count,
		ResolvedTempIDs: resolvedIDs,
	}
}

func isLocal(m chat.Message) bool {
	return m.Local || m.ID == ""
}

// keepForward returns the batch state unless the local copy already moved
// further along the lattice. FAILED locals never override the server.
func keepForward(local, server chat.State) chat.State {
	if local == chat.Failed || local == "" {
		return server
	}
	next, err := local.Advance(server)
	if err != nil {
		return server
	}
	return next
}

func dedupe(batch []chat.Message) []chat.Message {
	seen := make(map[string]struct{}, len(batch))
	out := make([]chat.Message, 0, len(batch))
	for _, m := range batch {
		if m.ID == "" {
			continue
		}
		if _, ok := seen[m.ID]; ok {
			continue
		}
		seen[m.ID] = struct{}{}
		out = append(out, m)
	}
	return out
}

func newestConfirmed(msgs []chat.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if !isLocal(msgs[i]) {
			return msgs[i].ID
		}
	}
	return ""
}

func lastInbound(msgs []chat.Message) time.Time {
	var last time.Time
	for _, m := range msgs {
		if m.Direction == chat.Inbound && m.Confirmed() && m.CreatedAt.After(last) {
			last = m.CreatedAt
		}
	}
	return last
}
