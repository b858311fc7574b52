// Package session owns the lifecycle of a consultation call: it starts the
// call, holds the consultation record, routes voice events through the
// extraction pipeline and tool handlers, and tears everything down on end.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/physio-voice-agent/internal/appointments"
	"github.com/wolfman30/physio-voice-agent/internal/consultation"
	"github.com/wolfman30/physio-voice-agent/internal/extraction"
	"github.com/wolfman30/physio-voice-agent/internal/notify"
	"github.com/wolfman30/physio-voice-agent/internal/stages"
	"github.com/wolfman30/physio-voice-agent/internal/tools"
	"github.com/wolfman30/physio-voice-agent/internal/voice"
	"github.com/wolfman30/physio-voice-agent/pkg/logging"
)

// Voice media a session can run on.
const (
	MediumBrowser         = "browser"
	MediumServerWebsocket = "server_websocket"
)

// Reasons attached to session.ended notifications.
const (
	ReasonEnded     = "ended"
	ReasonCallEnded = "call_ended"
	ReasonShutdown  = "shutdown"
)

const (
	upstreamLookup   = "appointments"
	upstreamVoiceAPI = "voice"
)

// Link is the live data channel of a call.
type Link interface {
	Events() <-chan voice.Event
	Done() <-chan struct{}
	AddMessage(ctx context.Context, msg voice.Message) error
	SendToolResult(ctx context.Context, result voice.ClientToolResult) error
	Leave(ctx context.Context) error
}

// Dialer joins a call by its join URL.
type Dialer func(ctx context.Context, joinURL string) (Link, error)

// BookingConfirmer sends the patient a confirmation of a completed booking.
type BookingConfirmer interface {
	Confirm(ctx context.Context, to string, appt consultation.Appointment) error
}

// Metrics is what the controller and its sessions report to.
type Metrics interface {
	extraction.Recorder
	tools.Recorder
	SessionStarted(medium string)
	SessionEnded()
	ObserveNotification(kind string, err error)
	ObserveUpstream(upstream string, started time.Time, err error)
}

type nopMetrics struct{}

func (nopMetrics) ObserveExtraction(string, string) {}
func (nopMetrics) ObserveExtractionFailure(string, string) {}
func (nopMetrics) ObserveToolCall(string, string) {}
func (nopMetrics) SessionStarted(string) {}
func (nopMetrics) SessionEnded() {}
func (nopMetrics) ObserveNotification(string, error) {}
func (nopMetrics) ObserveUpstream(string, time.Time, error) {}

// CallSettings are the voice parameters of a new call.
type CallSettings struct {
	Model        string
	Voice        string
	Temperature  float64
	LanguageHint string
	Title        string
}

// Config wires a Controller.
type Config struct {
	Appointments appointments.Lookup
	Calls        voice.CallCreator
	Bus          notify.Bus
	Confirmer    BookingConfirmer
	Prompts      tools.PromptBuilder
	Call         CallSettings
	Stage        tools.StageSettings
	Durable      tools.DurableTools
	// ServerLink makes the controller join calls itself. Otherwise the
	// browser hosts the voice SDK and forwards its events.
	ServerLink bool
	Dial       Dialer
	Metrics    Metrics
	Logger     *logging.Logger
	Now        func() time.Time
}

// StartRequest starts a session for one patient.
type StartRequest struct {
	Email string `json:"email"`
	Phone string `json:"phone"`
	// JoinURL joins an existing call instead of creating one.
	JoinURL string `json:"joinUrl,omitempty"`
}

// Controller is the registry of live sessions.
type Controller struct {
	cfg    Config
	logger *logging.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewController creates a controller. Missing collaborators fall back to
// in-process defaults.
func NewController(cfg Config) *Controller {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = nopMetrics{}
	}
	if cfg.Bus == nil {
		cfg.Bus = notify.NewMemoryBus(cfg.Logger)
	}
	if cfg.Confirmer == nil {
		cfg.Confirmer = notify.NewConfirmer(nil, cfg.Logger)
	}
	if cfg.Prompts == nil {
		cfg.Prompts = stages.NewGenerator()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Dial == nil {
		logger := cfg.Logger
		cfg.Dial = func(ctx context.Context, joinURL string) (Link, error) {
			return voice.Dial(ctx, joinURL, voice.LinkOptions{Logger: logger})
		}
	}
	cfg.Call = withCallDefaults(cfg.Call)
	return &Controller{
		cfg:      cfg,
		logger:   cfg.Logger,
		sessions: make(map[string]*Session),
	}
}

func withCallDefaults(c CallSettings) CallSettings {
	if strings.TrimSpace(c.Model) == "" {
		c.Model = voice.DefaultModel
	}
	if strings.TrimSpace(c.Voice) == "" {
		c.Voice = voice.DefaultVoice
	}
	if c.Temperature <= 0 {
		c.Temperature = voice.DefaultTemperature
	}
	if strings.TrimSpace(c.LanguageHint) == "" {
		c.LanguageHint = voice.DefaultLanguageHint
	}
	if strings.TrimSpace(c.Title) == "" {
		c.Title = voice.DefaultTitle
	}
	return c
}

// Bus is the notification bus sessions publish to.
func (c *Controller) Bus() notify.Bus {
	return c.cfg.Bus
}

// Start looks up the patient's appointments, prepares the initial stage,
// obtains a call and registers a new session. A failed lookup does not fail
// the start; the session proceeds with no known appointments.
func (c *Controller) Start(ctx context.Context, req StartRequest) (*Session, error) {
	id := uuid.NewString()
	logger := c.logger.ForSession(id)
	identity := strings.TrimSpace(req.Email)
	if identity == "" {
		identity = strings.TrimSpace(req.Phone)
	}

	appts, summary := c.lookup(ctx, logger, req.Phone)

	prompt := c.cfg.Prompts.Prompt(identity, appts, stages.Initial)
	callCfg := voice.CallConfig{
		SystemPrompt:  prompt,
		Model:         c.cfg.Call.Model,
		Voice:         c.cfg.Call.Voice,
		Temperature:   c.cfg.Call.Temperature,
		LanguageHint:  c.cfg.Call.LanguageHint,
		SelectedTools: tools.Definitions(c.cfg.Durable),
	}

	joinURL := strings.TrimSpace(req.JoinURL)
	var callID string
	if joinURL == "" {
		if c.cfg.Calls == nil {
			return nil, ErrNoJoinURL
		}
		started := time.Now()
		call, err := c.cfg.Calls.CreateCall(ctx, callCfg)
		c.cfg.Metrics.ObserveUpstream(upstreamVoiceAPI, started, err)
		if err != nil {
			return nil, fmt.Errorf("session: create call: %w", err)
		}
		joinURL, callID = call.JoinURL, call.CallID
	}

	medium := MediumBrowser
	if c.cfg.ServerLink {
		medium = MediumServerWebsocket
	}

	store := consultation.NewStore()
	sctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ID:           id,
		Email:        strings.TrimSpace(req.Email),
		Phone:        strings.TrimSpace(req.Phone),
		JoinURL:      joinURL,
		CallID:       callID,
		Medium:       medium,
		Title:        c.cfg.Call.Title,
		Summary:      summary,
		CallConfig:   callCfg,
		Appointments: appts,
		CreatedAt:    c.cfg.Now().UTC(),
		store:        store,
		handlers: tools.NewHandlers(tools.Config{
			Store:        store,
			Prompts:      c.cfg.Prompts,
			Identity:     identity,
			Appointments: appts,
			Stage:        c.cfg.Stage,
			Recorder:     c.cfg.Metrics,
			Logger:       logger,
		}),
		pipeline:  extraction.NewPipeline(logger, extraction.WithRecorder(c.cfg.Metrics)),
		bus:       c.cfg.Bus,
		confirmer: c.cfg.Confirmer,
		metrics:   c.cfg.Metrics,
		logger:    logger,
		now:       c.cfg.Now,
		ctx:       sctx,
		cancel:    cancel,
	}
	s.unsubscribe = store.Subscribe(func(state consultation.State) {
		s.publish(s.ctx, notify.KindConsultationUpdated, notify.ConsultationUpdated{Consultation: s.view(state)})
	})

	if c.cfg.ServerLink {
		link, err := c.cfg.Dial(ctx, joinURL)
		if err != nil {
			s.unsubscribe()
			cancel()
			return nil, fmt.Errorf("session: join call: %w", err)
		}
		s.link = link
	}

	c.mu.Lock()
	c.sessions[id] = s
	c.mu.Unlock()
	c.cfg.Metrics.SessionStarted(medium)

	if s.link != nil {
		go c.run(s)
	}

	logger.Info("session started",
		"medium", medium,
		"call_id", callID,
		"appointments", len(appts),
	)
	return s, nil
}

func (c *Controller) lookup(ctx context.Context, logger *logging.Logger, phone string) ([]appointments.Upcoming, string) {
	if c.cfg.Appointments == nil || strings.TrimSpace(phone) == "" {
		return nil, appointments.Summarize(nil)
	}
	started := time.Now()
	appts, err := c.cfg.Appointments.Upcoming(ctx, phone)
	c.cfg.Metrics.ObserveUpstream(upstreamLookup, started, err)
	if err != nil {
		logger.Warn("appointment lookup failed", "error", err)
		return nil, appointments.LookupFailedMessage
	}
	return appts, appointments.Summarize(appts)
}

// run feeds link events to the session until the call or the session ends.
func (c *Controller) run(s *Session) {
	events := s.link.Events()
	for {
		select {
		case <-s.ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				s.logger.Info("voice link closed")
				if err := c.end(context.Background(), s.ID, ReasonCallEnded); err != nil && !errors.Is(err, ErrSessionNotFound) {
					s.logger.Warn("ending session after call closed", "error", err)
				}
				return
			}
			if err := s.HandleEvent(s.ctx, ev); err != nil {
				s.logger.Warn("session event failed", "kind", ev.Kind, "error", err)
			}
		}
	}
}

// Get returns a live session.
func (c *Controller) Get(id string) (*Session, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// IDs lists live session ids in sorted order.
func (c *Controller) IDs() []string {
	c.mu.RLock()
	ids := make([]string, 0, len(c.sessions))
	for id := range c.sessions {
		ids = append(ids, id)
	}
	c.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Subscribe streams notifications of a live session.
func (c *Controller) Subscribe(ctx context.Context, id string) (<-chan notify.Event, func(), error) {
	if _, err := c.Get(id); err != nil {
		return nil, nil, err
	}
	return c.cfg.Bus.Subscribe(ctx, id)
}

// End leaves the call, resets the consultation record and forgets the session.
func (c *Controller) End(ctx context.Context, id string) error {
	return c.end(ctx, id, ReasonEnded)
}

func (c *Controller) end(ctx context.Context, id, reason string) error {
	c.mu.Lock()
	s, ok := c.sessions[id]
	if ok {
		delete(c.sessions, id)
	}
	c.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}

	err := s.close(ctx, reason)
	c.cfg.Metrics.SessionEnded()
	s.logger.Info("session ended", "reason", reason)
	return err
}

// Shutdown ends every live session.
func (c *Controller) Shutdown(ctx context.Context) {
	for _, id := range c.IDs() {
		if err := c.end(ctx, id, ReasonShutdown); err != nil && !errors.Is(err, ErrSessionNotFound) {
			c.logger.Warn("ending session on shutdown", "session_id", id, "error", err)
		}
	}
}
