package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/wolfman30/physio-voice-agent/internal/appointments"
	"github.com/wolfman30/physio-voice-agent/internal/consultation"
	"github.com/wolfman30/physio-voice-agent/internal/extraction"
	"github.com/wolfman30/physio-voice-agent/internal/notify"
	"github.com/wolfman30/physio-voice-agent/internal/stages"
	"github.com/wolfman30/physio-voice-agent/internal/tools"
	"github.com/wolfman30/physio-voice-agent/internal/voice"
	"github.com/wolfman30/physio-voice-agent/pkg/logging"
)

// SlotInfoPrefix opens the tool message that hands slot lists to the model.
const SlotInfoPrefix = "IMPORTANT SLOT INFORMATION: "

// Session is one live consultation call.
type Session struct {
	ID           string                  `json:"id"`
	Email        string                  `json:"email,omitempty"`
	Phone        string                  `json:"phone,omitempty"`
	JoinURL      string                  `json:"joinUrl"`
	CallID       string                  `json:"callId,omitempty"`
	Medium       string                  `json:"medium"`
	Title        string                  `json:"title"`
	Summary      string                  `json:"appointmentsSummary"`
	CallConfig   voice.CallConfig        `json:"callConfig"`
	Appointments []appointments.Upcoming `json:"appointments"`
	CreatedAt    time.Time               `json:"createdAt"`

	store     *consultation.Store
	handlers  *tools.Handlers
	pipeline  *extraction.Pipeline
	bus       notify.Bus
	confirmer BookingConfirmer
	link      Link
	metrics   Metrics
	logger    *logging.Logger
	now       func() time.Time

	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()
	closeOnce   sync.Once
	confirmed   sync.Map
}

// Stage is the conversation stage the model last switched to.
func (s *Session) Stage() stages.Stage {
	return s.handlers.Stage()
}

// Consultation returns the UI view of the consultation record.
func (s *Session) Consultation() consultation.State {
	return s.view(s.store.Read())
}

// view fills in the session's phone number when no mobile number has been
// extracted yet.
func (s *Session) view(state consultation.State) consultation.State {
	if state.Appointment == nil {
		state.Appointment = consultation.Appointment{}
	}
	if strings.TrimSpace(state.Appointment.String(consultation.KeyMobileNumber)) == "" {
		if phone := s.phone(); phone != "" {
			state.Appointment[consultation.KeyMobileNumber] = phone
		}
	}
	return state
}

func (s *Session) phone() string {
	if normalized := appointments.NormalizePhone(s.Phone); normalized != "" {
		return normalized
	}
	return s.Phone
}

func (s *Session) ended() bool {
	return s.ctx.Err() != nil
}

// HandleEvent applies one voice event to the session. Extraction problems are
// logged and never returned; errors only report failed replies or
// notifications.
func (s *Session) HandleEvent(ctx context.Context, ev voice.Event) error {
	if s.ended() {
		return ErrSessionEnded
	}
	switch ev.Kind {
	case voice.EventStatus:
		s.logger.Debug("call status", "status", ev.Status)
		return nil
	case voice.EventTranscript:
		if ev.Transcript == nil || !ev.Transcript.Final {
			return nil
		}
		s.merge(s.pipeline.Transcript(ctx, ev.Transcript.Text))
		return nil
	case voice.EventDebug:
		s.merge(s.pipeline.Debug(ctx, ev.Debug))
		return nil
	case voice.EventToolResult:
		if ev.ToolResult == nil {
			return nil
		}
		return s.handleToolResult(ctx, *ev.ToolResult)
	case voice.EventToolInvocation:
		if ev.Invocation == nil {
			return nil
		}
		result, err := s.handlers.Invoke(ctx, *ev.Invocation)
		if err != nil {
			s.logger.Warn("client tool failed", "tool", ev.Invocation.ToolName, "error", err)
		}
		if s.link == nil {
			return nil
		}
		if err := s.link.SendToolResult(ctx, result); err != nil {
			return fmt.Errorf("session: reply to %s: %w", ev.Invocation.ToolName, err)
		}
		return nil
	default:
		s.logger.Debug("ignoring event", "kind", ev.Kind)
		return nil
	}
}

func (s *Session) merge(u consultation.Update) consultation.State {
	if u.IsEmpty() {
		return s.store.Read()
	}
	return s.store.Merge(u)
}

func (s *Session) handleToolResult(ctx context.Context, result voice.ToolResult) error {
	outcome := s.pipeline.ToolResult(ctx, result.ToolName, result.Text)
	switch {
	case outcome.Slots != nil:
		s.merge(outcome.Update)
		return s.slotsReady(ctx, outcome.Slots)
	case outcome.Booking != nil:
		state := s.merge(outcome.Update)
		return s.booked(ctx, s.view(state).Appointment)
	default:
		s.merge(outcome.Update)
		return nil
	}
}

func (s *Session) slotsReady(ctx context.Context, slots *extraction.SlotResult) error {
	var firstErr error
	if msg := slots.Message(); msg != "" {
		firstErr = s.inject(ctx, voice.Message{
			ID:        fmt.Sprintf("slots-info-%d", s.now().UnixMilli()),
			Role:      voice.RoleTool,
			Content:   SlotInfoPrefix + msg,
			CreatedAt: s.now().UTC(),
		})
	}
	err := s.publish(ctx, notify.KindSlotsReady, notify.SlotsReady{
		Raw:      slots.Raw,
		Slots:    slots.Slots(),
		Day:      slots.Day(),
		Location: slots.Campus(),
	})
	if firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (s *Session) booked(ctx context.Context, appt consultation.Appointment) error {
	if s.Email != "" && appt.String(consultation.KeyEmail) == "" {
		appt[consultation.KeyEmail] = s.Email
	}
	err := s.publish(ctx, notify.KindAppointmentBooked, notify.AppointmentBooked{Appointment: appt})

	// One email per booking reference, even if the tool result is replayed.
	ref := appt.String(consultation.KeyBookingID)
	if _, dup := s.confirmed.LoadOrStore(ref, struct{}{}); dup && ref != "" {
		return err
	}
	if to := appt.String(consultation.KeyEmail); to != "" {
		if cerr := s.confirmer.Confirm(ctx, to, appt); cerr != nil {
			s.logger.Warn("booking confirmation not sent", "error", cerr)
		}
	}
	return err
}

// InvokeTool runs a client tool forwarded by a browser-hosted client.
func (s *Session) InvokeTool(ctx context.Context, name, invocationID string, params json.RawMessage) (voice.ClientToolResult, error) {
	if s.ended() {
		return voice.ClientToolResult{InvocationID: invocationID}, ErrSessionEnded
	}
	if len(params) == 0 {
		params = json.RawMessage("{}")
	}
	return s.handlers.Invoke(ctx, voice.ToolInvocation{
		ToolName:     name,
		InvocationID: invocationID,
		Parameters:   params,
	})
}

// SelectSlot records a slot picked in the UI and tells the model about it as
// if the patient had said it.
func (s *Session) SelectSlot(ctx context.Context, slot string) (consultation.State, error) {
	slot = strings.TrimSpace(slot)
	if slot == "" {
		return consultation.State{}, ErrEmptySlot
	}
	if s.ended() {
		return consultation.State{}, ErrSessionEnded
	}
	err := s.inject(ctx, voice.Message{
		ID:        fmt.Sprintf("user-slot-selection-%d", s.now().UnixMilli()),
		Role:      voice.RoleUser,
		Content:   extraction.SlotSelectionUtterance(slot),
		CreatedAt: s.now().UTC(),
	})
	state := s.store.Merge(extraction.SlotSelectionUpdate(slot))
	return s.view(state), err
}

// inject adds a message to the live call. Without a server link the message
// is handed to the browser through the notification stream.
func (s *Session) inject(ctx context.Context, msg voice.Message) error {
	if s.link != nil {
		if err := s.link.AddMessage(ctx, msg); err != nil {
			return fmt.Errorf("session: inject message: %w", err)
		}
		return nil
	}
	return s.publish(ctx, notify.KindMessageInject, notify.MessageInject{Message: msg})
}

func (s *Session) publish(ctx context.Context, kind notify.Kind, payload any) error {
	ev, err := notify.NewEvent(s.ID, kind, payload)
	if err == nil {
		err = s.bus.Publish(ctx, ev)
	}
	s.metrics.ObserveNotification(string(kind), err)
	if err != nil {
		s.logger.Warn("notification not published", "kind", kind, "error", err)
		return fmt.Errorf("session: publish %s: %w", kind, err)
	}
	return nil
}

func (s *Session) close(ctx context.Context, reason string) error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()
		if s.link != nil {
			if lerr := s.link.Leave(ctx); lerr != nil {
				err = fmt.Errorf("session: leave call: %w", lerr)
			}
		}
		s.unsubscribe()
		s.store.Reset()
		if perr := s.publish(ctx, notify.KindSessionEnded, notify.SessionEnded{Reason: reason}); perr != nil && err == nil {
			err = perr
		}
	})
	return err
}
