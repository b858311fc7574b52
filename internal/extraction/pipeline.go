package extraction

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/physio-voice-agent/internal/consultation"
	"github.com/wolfman30/physio-voice-agent/pkg/logging"
)

var tracer = otel.Tracer("physio.internal.extraction")

// Source names where a piece of text came from.
type Source string

const (
	SourceTranscript Source = "transcript"
	SourceDebug      Source = "debug"
	SourceToolResult Source = "tool_result"
)

// Strategy extracts consultation fields from one piece of text. It returns
// false when nothing applied.
type Strategy interface {
	Name() string
	Extract(text string) (consultation.Update, bool)
}

type funcStrategy struct {
	name string
	fn   func(string) (consultation.Update, bool)
}

func (s funcStrategy) Name() string { return s.name }

func (s funcStrategy) Extract(text string) (consultation.Update, bool) { return s.fn(text) }

// NewStrategy adapts a function to Strategy.
func NewStrategy(name string, fn func(string) (consultation.Update, bool)) Strategy {
	return funcStrategy{name: name, fn: fn}
}

// Recorder receives extraction outcomes. The metrics package implements it.
type Recorder interface {
	ObserveExtraction(source, strategy string)
	ObserveExtractionFailure(source, reason string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveExtraction(string, string)        {}
func (nopRecorder) ObserveExtractionFailure(string, string) {}

// TranscriptStrategies is the fallback battery run on every transcript, in
// priority order.
func TranscriptStrategies() []Strategy {
	return []Strategy{
		NewStrategy("spoken_slots", spokenSlots),
		optionStrategy("consultation_type", consultationTypeOptions, consultation.KeyType, consultation.KeyConsultationType),
		optionStrategy("city", cityOptions, consultation.KeyCity),
		optionStrategy("center", centerOptions, consultation.KeyCenter, consultation.KeyCampusID),
		optionStrategy("week", weekOptions, consultation.KeyWeekSelection),
		optionStrategy("day", dayOptions, consultation.KeyDay),
		NewStrategy("selected_slot", selectedSlot),
		NewStrategy("patient_name", patientName),
		NewStrategy("mobile_number", mobileNumber),
		NewStrategy("booking_confirmation", bookingConfirmation),
		NewStrategy("symptoms", freeTextSymptoms),
		NewStrategy("symptom_details", symptomFollowUp),
	}
}

// DebugStrategies runs on debug and log lines. Structured JSON wins over the
// free-text fallbacks.
func DebugStrategies() []Strategy {
	return []Strategy{
		NewStrategy("booking_confirmation", bookingConfirmation),
		NewStrategy("consultation_json", func(text string) (consultation.Update, bool) {
			u, n := ScanConsultationJSON(text)
			return u, n > 0
		}),
		NewStrategy("symptoms", freeTextSymptoms),
	}
}

// ToolKind classifies a tool result by the tool that produced it.
type ToolKind string

const (
	ToolSlots        ToolKind = "slots"
	ToolBooking      ToolKind = "booking"
	ToolConsultation ToolKind = "consultation"
	ToolUnknown      ToolKind = "unknown"
)

// ClassifyTool maps a tool name to its kind, ignoring case.
func ClassifyTool(name string) ToolKind {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "fetchslot", "fetchslots":
		return ToolSlots
	case "bookappointment":
		return ToolBooking
	case "updateconsultation":
		return ToolConsultation
	default:
		return ToolUnknown
	}
}

// ToolOutcome is the result of interpreting one tool result.
type ToolOutcome struct {
	Kind    ToolKind
	Update  consultation.Update
	Slots   *SlotResult
	Booking *BookingResult
}

// Pipeline composes strategies per source with first-match-wins per field.
type Pipeline struct {
	transcript []Strategy
	debug      []Strategy
	recorder   Recorder
	logger     *logging.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithTranscriptStrategies replaces the transcript battery.
func WithTranscriptStrategies(s ...Strategy) Option {
	return func(p *Pipeline) { p.transcript = s }
}

// WithDebugStrategies replaces the debug battery.
func WithDebugStrategies(s ...Strategy) Option {
	return func(p *Pipeline) { p.debug = s }
}

// WithRecorder sets the outcome recorder.
func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) {
		if r != nil {
			p.recorder = r
		}
	}
}

// NewPipeline builds a pipeline with the default batteries.
func NewPipeline(logger *logging.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = logging.Default()
	}
	p := &Pipeline{
		transcript: TranscriptStrategies(),
		debug:      DebugStrategies(),
		recorder:   nopRecorder{},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Transcript runs the transcript battery over text.
func (p *Pipeline) Transcript(ctx context.Context, text string) consultation.Update {
	return p.run(ctx, SourceTranscript, p.transcript, text)
}

// Debug runs the debug battery over a log line.
func (p *Pipeline) Debug(ctx context.Context, text string) consultation.Update {
	return p.run(ctx, SourceDebug, p.debug, text)
}

func (p *Pipeline) run(ctx context.Context, source Source, strategies []Strategy, text string) consultation.Update {
	var u consultation.Update
	if strings.TrimSpace(text) == "" {
		return u
	}
	_, span := tracer.Start(ctx, "extraction."+string(source), trace.WithAttributes(
		attribute.Int("text.length", len(text)),
	))
	defer span.End()

	var hits []string
	for _, s := range strategies {
		partial, ok := s.Extract(text)
		if !ok || partial.IsEmpty() {
			continue
		}
		hits = append(hits, s.Name())
		p.recorder.ObserveExtraction(string(source), s.Name())
		u.Absorb(partial)
	}
	span.SetAttributes(attribute.StringSlice("extraction.hits", hits))
	if len(hits) > 0 {
		p.logger.Debug("extraction matched", "source", source, "strategies", hits)
	}
	return u
}

// ToolResult interprets a tool's result text. Malformed payloads are logged
// and yield an empty outcome.
func (p *Pipeline) ToolResult(ctx context.Context, toolName, text string) ToolOutcome {
	kind := ClassifyTool(toolName)
	out := ToolOutcome{Kind: kind}

	_, span := tracer.Start(ctx, "extraction.tool_result", trace.WithAttributes(
		attribute.String("tool.name", toolName),
		attribute.String("tool.kind", string(kind)),
	))
	defer span.End()

	switch kind {
	case ToolSlots:
		slots, err := ParseSlotResult(text)
		if err != nil {
			p.fail(span, "slot_result", toolName, err)
			return out
		}
		out.Slots = slots
		out.Update = slots.Update()
	case ToolBooking:
		booking, err := ParseBookingResult(text)
		if err != nil {
			p.fail(span, "booking_result", toolName, err)
			return out
		}
		out.Booking = booking
		out.Update = booking.Update()
	case ToolConsultation:
		u, ok := ParseConsultationEcho(text)
		if !ok {
			p.recorder.ObserveExtractionFailure(string(SourceToolResult), "consultation_echo")
			return out
		}
		out.Update = u
	default:
		p.logger.Debug("ignoring result of unknown tool", "tool", toolName)
		return out
	}
	p.recorder.ObserveExtraction(string(SourceToolResult), string(kind))
	return out
}

func (p *Pipeline) fail(span trace.Span, reason, toolName string, err error) {
	span.RecordError(err)
	p.recorder.ObserveExtractionFailure(string(SourceToolResult), reason)
	p.logger.Warn("tool result not usable", "tool", toolName, "error", err)
}
