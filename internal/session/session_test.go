package session

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/physio-voice-agent/internal/appointments"
	"github.com/wolfman30/physio-voice-agent/internal/consultation"
	"github.com/wolfman30/physio-voice-agent/internal/notify"
	"github.com/wolfman30/physio-voice-agent/internal/stages"
	"github.com/wolfman30/physio-voice-agent/internal/tools"
	"github.com/wolfman30/physio-voice-agent/internal/voice"
	"github.com/wolfman30/physio-voice-agent/pkg/logging"
)

const slotPayload = `{"hourly_slots":{"slot_available_9-10":"available","slot_available_10-11":"booked"},"search_criteria":{"date":"2024-06-10","campus":"Indiranagar","consultation_type":"In-Person"}}`

const bookingPayload = `{"success":true,"appointmentInfo":{"appointed_doctor":"Dr. A","calculated_date":"2024-06-10","startDateTime":"2024-06-10 09:00","consultation_type":"Online"},"payment":{"short_url":"https://rzp.io/x","reference_id":"R123"}}`

var fixedNow = time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)

type fakeLookup struct {
	appts []appointments.Upcoming
	err   error
	phone string
}

func (f *fakeLookup) Upcoming(_ context.Context, phone string) ([]appointments.Upcoming, error) {
	f.phone = phone
	return f.appts, f.err
}

type fakeCalls struct {
	cfg  voice.CallConfig
	call *voice.Call
	err  error
}

func (f *fakeCalls) CreateCall(_ context.Context, cfg voice.CallConfig) (*voice.Call, error) {
	f.cfg = cfg
	if f.err != nil {
		return nil, f.err
	}
	return f.call, nil
}

type fakeLink struct {
	events chan voice.Event
	done   chan struct{}

	mu       sync.Mutex
	messages []voice.Message
	results  []voice.ClientToolResult
	leaves   int
	once     sync.Once
}

func newFakeLink() *fakeLink {
	return &fakeLink{events: make(chan voice.Event, 8), done: make(chan struct{})}
}

func (l *fakeLink) Events() <-chan voice.Event { return l.events }
func (l *fakeLink) Done() <-chan struct{}      { return l.done }

func (l *fakeLink) AddMessage(_ context.Context, msg voice.Message) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, msg)
	return nil
}

func (l *fakeLink) SendToolResult(_ context.Context, result voice.ClientToolResult) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.results = append(l.results, result)
	return nil
}

func (l *fakeLink) Leave(context.Context) error {
	l.mu.Lock()
	l.leaves++
	l.mu.Unlock()
	l.once.Do(func() { close(l.done) })
	return nil
}

func (l *fakeLink) snapshot() ([]voice.Message, []voice.ClientToolResult, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]voice.Message(nil), l.messages...), append([]voice.ClientToolResult(nil), l.results...), l.leaves
}

type recordingConfirmer struct {
	mu   sync.Mutex
	sent []string
}

func (r *recordingConfirmer) Confirm(_ context.Context, to string, _ consultation.Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, to)
	return nil
}

type harness struct {
	controller *Controller
	bus        *notify.MemoryBus
	calls      *fakeCalls
	lookup     *fakeLookup
	link       *fakeLink
	confirmer  *recordingConfirmer
}

func newHarness(t *testing.T, serverLink bool) *harness {
	t.Helper()
	h := &harness{
		bus:       notify.NewMemoryBus(logging.Discard()),
		calls:     &fakeCalls{call: &voice.Call{CallID: "call-1", JoinURL: "wss://voice.example/join/1"}},
		lookup:    &fakeLookup{},
		link:      newFakeLink(),
		confirmer: &recordingConfirmer{},
	}
	h.controller = NewController(Config{
		Appointments: h.lookup,
		Calls:        h.calls,
		Bus:          h.bus,
		Confirmer:    h.confirmer,
		Prompts:      stages.NewGeneratorWithClock(func() time.Time { return fixedNow }),
		ServerLink:   serverLink,
		Dial: func(context.Context, string) (Link, error) {
			return h.link, nil
		},
		Logger: logging.Discard(),
		Now:    func() time.Time { return fixedNow },
	})
	t.Cleanup(func() { h.controller.Shutdown(context.Background()) })
	return h
}

func (h *harness) start(t *testing.T) (*Session, <-chan notify.Event) {
	t.Helper()
	s, err := h.controller.Start(context.Background(), StartRequest{Email: "priya@example.com", Phone: "+91 98765 43210"})
	require.NoError(t, err)
	events, cancel, err := h.controller.Subscribe(context.Background(), s.ID)
	require.NoError(t, err)
	t.Cleanup(cancel)
	return s, events
}

// nextOfKind skips notifications until one of kind arrives.
func nextOfKind(t *testing.T, events <-chan notify.Event, kind notify.Kind) notify.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			require.True(t, ok, "stream closed before %s", kind)
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", kind)
			return notify.Event{}
		}
	}
}

func TestStartCreatesCall(t *testing.T) {
	h := newHarness(t, false)
	h.lookup.appts = []appointments.Upcoming{{DoctorName: "Dr. Rao", FormattedStartDate: "June 12", Time: "10:00 AM"}}

	s, _ := h.start(t)

	assert.Equal(t, "9876543210", appointments.NormalizePhone(h.lookup.phone))
	assert.Equal(t, "wss://voice.example/join/1", s.JoinURL)
	assert.Equal(t, "call-1", s.CallID)
	assert.Equal(t, MediumBrowser, s.Medium)
	assert.Equal(t, stages.Initial, s.Stage())
	assert.Contains(t, s.Summary, "with Dr. Rao")

	cfg := h.calls.cfg
	assert.Equal(t, voice.DefaultModel, cfg.Model)
	assert.Equal(t, voice.DefaultVoice, cfg.Voice)
	assert.Contains(t, cfg.SystemPrompt, "Current User: priya@example.com")
	assert.Contains(t, cfg.SystemPrompt, "Dr. Rao")
	require.Len(t, cfg.SelectedTools, 4)
	assert.Equal(t, tools.ChangeStageName, cfg.SelectedTools[0].TemporaryTool.ModelToolName)
	assert.Equal(t, tools.DefaultSlotToolID, cfg.SelectedTools[2].ToolID)

	got, err := h.controller.Get(s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)
	assert.Equal(t, []string{s.ID}, h.controller.IDs())
}

func TestStartSurvivesLookupFailure(t *testing.T) {
	h := newHarness(t, false)
	h.lookup.err = errors.New("connection refused")

	s, _ := h.start(t)
	assert.Equal(t, appointments.LookupFailedMessage, s.Summary)
	assert.Empty(t, s.Appointments)
}

func TestStartErrors(t *testing.T) {
	h := newHarness(t, false)
	h.calls.err = errors.New("401")
	_, err := h.controller.Start(context.Background(), StartRequest{Email: "p@example.com"})
	assert.Error(t, err)

	bare := NewController(Config{Logger: logging.Discard()})
	_, err = bare.Start(context.Background(), StartRequest{Email: "p@example.com"})
	assert.ErrorIs(t, err, ErrNoJoinURL)

	s, err := bare.Start(context.Background(), StartRequest{JoinURL: "wss://voice.example/join/2"})
	require.NoError(t, err)
	assert.Equal(t, "wss://voice.example/join/2", s.JoinURL)
	require.NoError(t, bare.End(context.Background(), s.ID))
}

func TestEndResetsAndNotifies(t *testing.T) {
	h := newHarness(t, true)
	s, events := h.start(t)

	_, err := s.InvokeTool(context.Background(), tools.UpdateConsultationName, "inv-1",
		json.RawMessage(`{"consultationData":{"symptoms":[{"symptom":"knee pain"}]}}`))
	require.NoError(t, err)
	require.Len(t, s.Consultation().Symptoms, 1)

	require.NoError(t, h.controller.End(context.Background(), s.ID))

	ended := nextOfKind(t, events, notify.KindSessionEnded)
	var payload notify.SessionEnded
	require.NoError(t, ended.Decode(&payload))
	assert.Equal(t, ReasonEnded, payload.Reason)

	assert.Empty(t, s.Consultation().Symptoms)
	_, _, leaves := h.link.snapshot()
	assert.Equal(t, 1, leaves)

	_, err = h.controller.Get(s.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, h.controller.End(context.Background(), s.ID), ErrSessionNotFound)
	_, err = s.InvokeTool(context.Background(), tools.ChangeStageName, "inv-2", nil)
	assert.ErrorIs(t, err, ErrSessionEnded)
	assert.ErrorIs(t, s.HandleEvent(context.Background(), voice.Event{Kind: voice.EventStatus}), ErrSessionEnded)
}

func TestConsultationUpdatesAreStreamed(t *testing.T) {
	h := newHarness(t, false)
	s, events := h.start(t)

	require.NoError(t, s.HandleEvent(context.Background(), voice.Event{
		Kind:       voice.EventTranscript,
		Transcript: &voice.Transcript{Role: "user", Text: "I have pain in my knee for 3 days, about 7 out of 10.", Final: true},
	}))

	ev := nextOfKind(t, events, notify.KindConsultationUpdated)
	var payload notify.ConsultationUpdated
	require.NoError(t, ev.Decode(&payload))
	require.Len(t, payload.Consultation.Symptoms, 1)
	assert.Equal(t, "knee pain", payload.Consultation.Symptoms[0].Symptom)
	assert.Equal(t, "9876543210", payload.Consultation.Appointment.String(consultation.KeyMobileNumber))
}

func TestNonFinalTranscriptsAreIgnored(t *testing.T) {
	h := newHarness(t, false)
	s, _ := h.start(t)

	require.NoError(t, s.HandleEvent(context.Background(), voice.Event{
		Kind:       voice.EventTranscript,
		Transcript: &voice.Transcript{Role: "user", Text: "I have pain in my knee", Final: false},
	}))
	assert.Empty(t, s.Consultation().Symptoms)
}

func TestSlotResultInjectsMessageAndNotifies(t *testing.T) {
	h := newHarness(t, true)
	s, events := h.start(t)

	require.NoError(t, s.HandleEvent(context.Background(), voice.Event{
		Kind:       voice.EventToolResult,
		ToolResult: &voice.ToolResult{ToolName: "fetchSlots", Text: slotPayload},
	}))

	messages, _, _ := h.link.snapshot()
	require.Len(t, messages, 1)
	assert.Equal(t, voice.RoleTool, messages[0].Role)
	assert.True(t, strings.HasPrefix(messages[0].ID, "slots-info-"))
	assert.True(t, strings.HasPrefix(messages[0].Content, SlotInfoPrefix))
	assert.Contains(t, messages[0].Content, "9:00 AM to 10:00 AM")

	ev := nextOfKind(t, events, notify.KindSlotsReady)
	var payload notify.SlotsReady
	require.NoError(t, ev.Decode(&payload))
	assert.Equal(t, []string{"9:00 AM to 10:00 AM"}, payload.Slots)
	assert.Equal(t, "Monday", payload.Day)
	assert.Equal(t, "Indiranagar", payload.Location)
	assert.JSONEq(t, slotPayload, string(payload.Raw))

	appt := s.Consultation().Appointment
	assert.Equal(t, []string{"9:00 AM to 10:00 AM"}, appt.Strings(consultation.KeyAvailableSlots))
	assert.Equal(t, "Indiranagar", appt.String(consultation.KeyCampus))
}

func TestBookingResultNotifiesAndConfirmsOnce(t *testing.T) {
	h := newHarness(t, false)
	s, events := h.start(t)

	booking := voice.Event{
		Kind:       voice.EventToolResult,
		ToolResult: &voice.ToolResult{ToolName: "bookAppointment", Text: bookingPayload},
	}
	require.NoError(t, s.HandleEvent(context.Background(), booking))

	ev := nextOfKind(t, events, notify.KindAppointmentBooked)
	var payload notify.AppointmentBooked
	require.NoError(t, ev.Decode(&payload))
	appt := payload.Appointment
	assert.Equal(t, "Dr. A", appt.String(consultation.KeyDoctor))
	assert.Equal(t, consultation.AppointmentConfirmed, appt.String(consultation.KeyStatus))
	assert.Equal(t, "09:00", appt.String(consultation.KeyTime))
	assert.Equal(t, "https://rzp.io/x", appt.String(consultation.KeyPaymentLink))
	assert.Equal(t, "R123", appt.String(consultation.KeyBookingID))
	assert.Equal(t, "priya@example.com", appt.String(consultation.KeyEmail))
	assert.Equal(t, "9876543210", appt.String(consultation.KeyMobileNumber))

	require.NoError(t, s.HandleEvent(context.Background(), booking))
	assert.Equal(t, []string{"priya@example.com"}, h.confirmer.sent)
}

func TestMalformedToolResultIsSwallowed(t *testing.T) {
	h := newHarness(t, false)
	s, _ := h.start(t)

	require.NoError(t, s.HandleEvent(context.Background(), voice.Event{
		Kind:       voice.EventToolResult,
		ToolResult: &voice.ToolResult{ToolName: "fetchSlots", Text: "{not json"},
	}))
	assert.Empty(t, s.Consultation().Appointment.Strings(consultation.KeyAvailableSlots))
}

func TestSelectSlotInBrowserPublishesInjection(t *testing.T) {
	h := newHarness(t, false)
	s, events := h.start(t)

	state, err := s.SelectSlot(context.Background(), "9:00 AM to 10:00 AM")
	require.NoError(t, err)
	assert.Equal(t, "9:00 AM to 10:00 AM", state.Appointment.String(consultation.KeySelectedTime))
	assert.Equal(t, "9:00 AM", state.Appointment.String(consultation.KeyTime))

	ev := nextOfKind(t, events, notify.KindMessageInject)
	var payload notify.MessageInject
	require.NoError(t, ev.Decode(&payload))
	assert.Equal(t, voice.RoleUser, payload.Message.Role)
	assert.Equal(t, "I'd like the 9:00 AM to 10:00 AM slot please.", payload.Message.Content)
	assert.Equal(t, "user-slot-selection-1717408800000", payload.Message.ID)

	_, err = s.SelectSlot(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrEmptySlot)
}

func TestSelectSlotOverLinkAddsMessage(t *testing.T) {
	h := newHarness(t, true)
	s, _ := h.start(t)

	_, err := s.SelectSlot(context.Background(), "10:00 AM to 11:00 AM")
	require.NoError(t, err)
	messages, _, _ := h.link.snapshot()
	require.Len(t, messages, 1)
	assert.Equal(t, "I'd like the 10:00 AM to 11:00 AM slot please.", messages[0].Content)
}

func TestLinkToolInvocationIsAnswered(t *testing.T) {
	h := newHarness(t, true)
	s, _ := h.start(t)

	h.link.events <- voice.Event{
		Kind: voice.EventToolInvocation,
		Invocation: &voice.ToolInvocation{
			ToolName:     tools.ChangeStageName,
			InvocationID: "inv-9",
			Parameters:   json.RawMessage(`{"newStage":"booking"}`),
		},
	}

	require.Eventually(t, func() bool {
		_, results, _ := h.link.snapshot()
		return len(results) == 1
	}, 2*time.Second, 10*time.Millisecond)

	_, results, _ := h.link.snapshot()
	assert.Equal(t, "inv-9", results[0].InvocationID)
	assert.Equal(t, voice.ResponseTypeNewStage, results[0].ResponseType)

	var directive tools.StageDirective
	require.NoError(t, json.Unmarshal([]byte(results[0].Result), &directive))
	assert.Equal(t, tools.DirectiveNewStage, directive.Type)
	assert.Equal(t, "Jessica", directive.Voice)
	assert.Equal(t, stages.Booking, s.Stage())
}

func TestClosedLinkEndsSession(t *testing.T) {
	h := newHarness(t, true)
	s, events := h.start(t)

	close(h.link.events)

	ev := nextOfKind(t, events, notify.KindSessionEnded)
	var payload notify.SessionEnded
	require.NoError(t, ev.Decode(&payload))
	assert.Equal(t, ReasonCallEnded, payload.Reason)

	require.Eventually(t, func() bool {
		_, err := h.controller.Get(s.ID)
		return errors.Is(err, ErrSessionNotFound)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSubscribeUnknownSession(t *testing.T) {
	h := newHarness(t, false)
	_, _, err := h.controller.Subscribe(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
