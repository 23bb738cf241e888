package kafka

import (
	"testing"
)

type testEvent struct {
	BookingID string `json:"booking_id"`
	Reason    string `json:"reason"`
}

func TestMessageBuilderRoundTrip(t *testing.T) {
	event := testEvent{BookingID: "b1", Reason: "storm"}

	msg := NewMessage().
		WithKey("b1").
		WithValue(event).
		WithEventType("booking.rescheduled.client").
		WithSource("tripdesk").
		Build()

	if msg.Key != "b1" {
		t.Errorf("Key = %s", msg.Key)
	}
	if msg.GetEventType() != "booking.rescheduled.client" {
		t.Errorf("event type = %s", msg.GetEventType())
	}
	if msg.GetEventID() == "" {
		t.Error("Build() must assign an event ID")
	}
	if ts, ok := msg.GetHeader(HeaderTimestamp); !ok || ts == "" {
		t.Error("Build() must stamp the message")
	}

	var decoded testEvent
	if err := msg.DecodeValue(&decoded); err != nil {
		t.Fatalf("DecodeValue() error = %v", err)
	}
	if decoded != event {
		t.Errorf("decoded = %+v, want %+v", decoded, event)
	}
}

func TestMessageBuilderKeepsExplicitEventID(t *testing.T) {
	msg := NewMessage().
		WithKey("b1").
		WithRawValue([]byte(`{}`)).
		WithHeader(HeaderEventID, "evt-42").
		Build()

	if msg.GetEventID() != "evt-42" {
		t.Errorf("event ID = %s, want the explicit one", msg.GetEventID())
	}
}
