package events

import (
	"encoding/json"
	"testing"
	"time"
)

// ── Bus Publish/Subscribe ─────────────────────────────────────────────

func TestBusPublishSubscribe(t *testing.T) {
	t.Run("subscriber_receives_published_event", func(t *testing.T) {
		b := NewBus(64)
		ch, cancel := b.Subscribe(Filter{})
		defer cancel()

		b.Publish("transcription", map[string]string{"text": "hello"})

		select {
		case evt := <-ch:
			if evt.Type != "transcription" {
				t.Errorf("Type = %q, want transcription", evt.Type)
			}
			if evt.ID == "" {
				t.Error("expected non-empty event ID")
			}
			var payload map[string]string
			if err := json.Unmarshal(evt.Data, &payload); err != nil {
				t.Fatalf("Data is not valid JSON: %v", err)
			}
			if payload["text"] != "hello" {
				t.Errorf("payload text = %q, want hello", payload["text"])
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	})

	t.Run("filtered_subscriber_misses_non_matching", func(t *testing.T) {
		b := NewBus(64)
		ch, cancel := b.Subscribe(Filter{Types: []string{"ai_error"}})
		defer cancel()

		b.Publish("transcription", "x")

		select {
		case evt := <-ch:
			t.Fatalf("should not receive event, got %+v", evt)
		case <-time.After(50 * time.Millisecond):
		}
	})

	t.Run("cancel_stops_delivery", func(t *testing.T) {
		b := NewBus(64)
		ch, cancel := b.Subscribe(Filter{})
		cancel()

		b.Publish("transcription", "x")

		select {
		case _, ok := <-ch:
			if ok {
				t.Fatal("should not receive event after cancel")
			}
		case <-time.After(50 * time.Millisecond):
			// expected: channel not closed, just removed from map
		}
		if n := b.SubscriberCount(); n != 0 {
			t.Errorf("SubscriberCount = %d, want 0", n)
		}
	})

	t.Run("multiple_subscribers", func(t *testing.T) {
		b := NewBus(64)
		ch1, cancel1 := b.Subscribe(Filter{})
		defer cancel1()
		ch2, cancel2 := b.Subscribe(Filter{})
		defer cancel2()

		if n := b.SubscriberCount(); n != 2 {
			t.Errorf("SubscriberCount = %d, want 2", n)
		}

		b.Publish("ai_thinking", map[string]string{"status": "processing"})

		for i, ch := range []<-chan Event{ch1, ch2} {
			select {
			case evt := <-ch:
				if evt.Type != "ai_thinking" {
					t.Errorf("subscriber %d: Type = %q, want ai_thinking", i, evt.Type)
				}
			case <-time.After(time.Second):
				t.Fatalf("subscriber %d: timed out", i)
			}
		}
	})

	t.Run("order_preserved", func(t *testing.T) {
		b := NewBus(64)
		ch, cancel := b.Subscribe(Filter{})
		defer cancel()

		words := []string{"one", "two", "three", "four"}
		for _, w := range words {
			b.Publish("transcription", map[string]string{"text": w})
		}
		for _, want := range words {
			evt := <-ch
			var payload map[string]string
			json.Unmarshal(evt.Data, &payload)
			if payload["text"] != want {
				t.Fatalf("got %q, want %q", payload["text"], want)
			}
		}
	})

	t.Run("unmarshalable_payload_dropped", func(t *testing.T) {
		b := NewBus(64)
		ch, cancel := b.Subscribe(Filter{})
		defer cancel()

		b.Publish("transcription", make(chan int))

		select {
		case evt := <-ch:
			t.Fatalf("should not receive event, got %+v", evt)
		case <-time.After(50 * time.Millisecond):
		}
	})
}

// ── Bus ReplaySince ──────────────────────────────────────────────────

func TestBusReplaySince(t *testing.T) {
	t.Run("replay_all_when_empty_lastID", func(t *testing.T) {
		b := NewBus(64)
		b.Publish("transcription", "a")
		b.Publish("ai_thinking", "b")

		events := b.ReplaySince("", Filter{})
		if len(events) != 2 {
			t.Fatalf("got %d events, want 2", len(events))
		}
	})

	t.Run("replay_after_specific_id", func(t *testing.T) {
		b := NewBus(64)
		b.Publish("transcription", "a")

		all := b.ReplaySince("", Filter{})
		if len(all) != 1 {
			t.Fatalf("expected 1 event, got %d", len(all))
		}
		firstID := all[0].ID

		b.Publish("ai_thinking", "b")

		events := b.ReplaySince(firstID, Filter{})
		if len(events) != 1 {
			t.Fatalf("got %d events, want 1 (after first)", len(events))
		}
		if events[0].Type != "ai_thinking" {
			t.Errorf("Type = %q, want ai_thinking", events[0].Type)
		}
	})

	t.Run("replay_with_filter", func(t *testing.T) {
		b := NewBus(64)
		b.Publish("transcription", "a")
		b.Publish("ai_response_chunk", "b")

		events := b.ReplaySince("", Filter{Types: []string{"transcription"}})
		if len(events) != 1 {
			t.Fatalf("got %d events, want 1 (filtered)", len(events))
		}
	})

	t.Run("unknown_lastID_replays_all", func(t *testing.T) {
		b := NewBus(64)
		b.Publish("transcription", "a")

		events := b.ReplaySince("nonexistent-id", Filter{})
		if len(events) != 1 {
			t.Fatalf("got %d events, want 1 (fallback replay all)", len(events))
		}
	})

	t.Run("ring_wraps_oldest_first", func(t *testing.T) {
		b := NewBus(3)
		for _, s := range []string{"a", "b", "c", "d", "e"} {
			b.Publish("transcription", s)
		}
		events := b.ReplaySince("", Filter{})
		if len(events) != 3 {
			t.Fatalf("got %d events, want 3", len(events))
		}
		want := []string{`"c"`, `"d"`, `"e"`}
		for i, e := range events {
			if string(e.Data) != want[i] {
				t.Errorf("events[%d].Data = %s, want %s", i, e.Data, want[i])
			}
		}
	})
}

func TestMatchesFilter(t *testing.T) {
	tests := []struct {
		name   string
		event  Event
		filter Filter
		want   bool
	}{
		{
			name:   "empty_filter_matches_all",
			event:  Event{Type: "transcription"},
			filter: Filter{},
			want:   true,
		},
		{
			name:   "type_match",
			event:  Event{Type: "transcription"},
			filter: Filter{Types: []string{"transcription"}},
			want:   true,
		},
		{
			name:   "type_no_match",
			event:  Event{Type: "transcription"},
			filter: Filter{Types: []string{"ai_error"}},
			want:   false,
		},
		{
			name:   "type_multiple_one_matches",
			event:  Event{Type: "ai_error"},
			filter: Filter{Types: []string{"transcription", " ai_error "}},
			want:   true,
		},
		{
			name:   "prefix_wildcard",
			event:  Event{Type: "ai_response_chunk"},
			filter: Filter{Types: []string{"ai_*"}},
			want:   true,
		},
		{
			name:   "prefix_wildcard_no_match",
			event:  Event{Type: "transcription"},
			filter: Filter{Types: []string{"ai_*"}},
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := matchesFilter(tt.event, tt.filter); got != tt.want {
				t.Errorf("matchesFilter = %v, want %v", got, tt.want)
			}
		})
	}
}
