package chat

import "testing"

func TestAdvanceForward(t *testing.T) {
	tests := []struct {
		from State
		to   State
		want State
	}{
		{Pending, Sent, Sent},
		{Sent, Delivered, Delivered},
		{Delivered, Read, Read},
		{Pending, Read, Read},
		{Pending, Failed, Failed},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			got, err := tt.from.Advance(tt.to)
			if err != nil {
				t.Fatalf("Advance() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Advance() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestAdvanceNeverRegresses(t *testing.T) {
	tests := []struct {
		from State
		to   State
	}{
		{Read, Delivered},
		{Read, Sent},
		{Delivered, Sent},
		{Sent, Pending},
	}
	for _, tt := range tests {
		got, err := tt.from.Advance(tt.to)
		if err != nil {
			t.Fatalf("Advance(%s -> %s) error = %v", tt.from, tt.to, err)
		}
		if got != tt.from {
			t.Errorf("Advance(%s -> %s) = %s, want unchanged", tt.from, tt.to, got)
		}
	}
}

func TestAdvanceFailedOnlyFromPending(t *testing.T) {
	for _, from := range []State{Sent, Delivered, Read} {
		if _, err := from.Advance(Failed); err == nil {
			t.Errorf("Advance(%s -> FAILED) should fail", from)
		}
	}
	if _, err := Failed.Advance(Sent); err == nil {
		t.Error("Advance(FAILED -> SENT) should fail")
	}
	if _, err := Pending.Advance("BOGUS"); err == nil {
		t.Error("Advance to unknown state should fail")
	}
}

func TestParseKindAndState(t *testing.T) {
	if got := ParseKind("ptt"); got != Audio {
		t.Errorf("ParseKind(ptt) = %s, want AUDIO", got)
	}
	if got := ParseKind("hologram"); got != Document {
		t.Errorf("ParseKind(unknown) = %s, want DOCUMENT", got)
	}
	if got := ParseState("seen"); got != Read {
		t.Errorf("ParseState(seen) = %s, want READ", got)
	}
	if got := ParseState(""); got != Sent {
		t.Errorf("ParseState(empty) = %s, want SENT", got)
	}
}

func TestParseDirection(t *testing.T) {
	tests := []struct {
		in   string
		want Direction
	}{
		{"inbound", Inbound},
		{"INCOMING", Inbound},
		{"Outbound", Outbound},
		{" out ", Outbound},
		{"outgoing", Outbound},
		{"", ""},
		{"sideways", ""},
	}
	for _, tt := range tests {
		if got := ParseDirection(tt.in); got != tt.want {
			t.Errorf("ParseDirection(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
