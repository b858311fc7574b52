// Package notify pushes session notifications to the UI and sends booking
// confirmations to patients.
package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/physio-voice-agent/internal/consultation"
	"github.com/wolfman30/physio-voice-agent/internal/voice"
)

// Kind names a notification.
type Kind string

const (
	KindSlotsReady          Kind = "slots.ready"
	KindAppointmentBooked   Kind = "appointment.booked"
	KindConsultationUpdated Kind = "consultation.updated"
	KindMessageInject       Kind = "message.inject"
	KindSessionEnded        Kind = "session.ended"
)

// Event is one notification for one session.
type Event struct {
	ID        string          `json:"id"`
	SessionID string          `json:"sessionId"`
	Kind      Kind            `json:"kind"`
	At        time.Time       `json:"at"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// SlotsReady carries a slot lookup result for the slot picker.
type SlotsReady struct {
	Raw      json.RawMessage `json:"raw"`
	Slots    []string        `json:"slots"`
	Day      string          `json:"day,omitempty"`
	Location string          `json:"location,omitempty"`
}

// AppointmentBooked carries the merged appointment after a booking.
type AppointmentBooked struct {
	Appointment consultation.Appointment `json:"appointment"`
}

// ConsultationUpdated carries a consultation snapshot.
type ConsultationUpdated struct {
	Consultation consultation.State `json:"consultation"`
}

// MessageInject asks a browser-hosted client to add a message to the call.
type MessageInject struct {
	Message voice.Message `json:"message"`
}

// SessionEnded announces that a session is gone.
type SessionEnded struct {
	Reason string `json:"reason,omitempty"`
}

// NewEvent builds an event with a fresh id.
func NewEvent(sessionID string, kind Kind, payload any) (Event, error) {
	ev := Event{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Kind:      kind,
		At:        time.Now().UTC(),
	}
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return Event{}, fmt.Errorf("notify: marshal %s payload: %w", kind, err)
		}
		ev.Payload = body
	}
	return ev, nil
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("notify: %s event has no payload", e.Kind)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("notify: decode %s payload: %w", e.Kind, err)
	}
	return nil
}
