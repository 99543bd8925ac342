package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("upload.", 10)
	defer unsub()

	b.Emit(UploadConfirmed, "c1", "tmp-1")

	select {
	case evt := <-ch:
		if evt.Kind != UploadConfirmed {
			t.Errorf("got kind %q, want %s", evt.Kind, UploadConfirmed)
		}
		if evt.Conversation != "c1" {
			t.Errorf("conversation = %q, want c1", evt.Conversation)
		}
		if evt.Timestamp.IsZero() {
			t.Error("Emit did not stamp the event")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestNamespaceFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("timeline.", 10)
	defer unsub()

	b.Publish(Event{Kind: UnreadChanged})
	b.Publish(Event{Kind: TimelineScroll})

	select {
	case evt := <-ch:
		if evt.Kind != TimelineScroll {
			t.Errorf("got kind %q, want %s", evt.Kind, TimelineScroll)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEmptyNamespaceReceivesAll(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("", 10)
	defer unsub()

	b.Publish(Event{Kind: UnreadChanged})
	b.Publish(Event{Kind: MessageSendAck})

	for _, want := range []string{UnreadChanged, MessageSendAck} {
		select {
		case evt := <-ch:
			if evt.Kind != want {
				t.Errorf("got %q, want %q", evt.Kind, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for %s", want)
		}
	}
}

func TestUnsubscribeTwice(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("message.", 10)
	unsub()
	unsub()

	b.Publish(Event{Kind: MessageQueued})

	select {
	case evt := <-ch:
		t.Errorf("received event after unsubscribe: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDropOnFullBuffer(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("message.", 1)
	defer unsub()

	b.Publish(Event{Kind: MessageQueued})
	b.Publish(Event{Kind: MessageSendAck})

	evt := <-ch
	if evt.Kind != MessageQueued {
		t.Errorf("got %q, want %s", evt.Kind, MessageQueued)
	}
}

func TestNilBusPublishIsNoop(t *testing.T) {
	var b *Bus
	b.Publish(Event{Kind: MessageQueued})
	b.Emit(MessageQueued, "c1", nil)
}
