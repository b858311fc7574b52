// Package tools implements the client tools the voice model calls during a
// consultation and the tool list sent when a call is created.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/physio-voice-agent/internal/appointments"
	"github.com/wolfman30/physio-voice-agent/internal/consultation"
	"github.com/wolfman30/physio-voice-agent/internal/extraction"
	"github.com/wolfman30/physio-voice-agent/internal/stages"
	"github.com/wolfman30/physio-voice-agent/internal/voice"
	"github.com/wolfman30/physio-voice-agent/pkg/logging"
)

var tracer = otel.Tracer("physio.internal.tools")

// Client tool names.
const (
	ChangeStageName        = "changeStage"
	UpdateConsultationName = "updateConsultation"
)

// UpdateSuccessMessage is returned by updateConsultation, including when the
// update could not be applied.
const UpdateSuccessMessage = "Consultation data updated successfully."

// DirectiveNewStage is the directive type of a stage change.
const DirectiveNewStage = "new-stage"

// ErrUnknownTool is returned by Invoke for tools this package does not run.
var ErrUnknownTool = errors.New("tools: unknown client tool")

// Tool outcomes reported to the Recorder.
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeUnknown = "unknown"
)

// StageDirective tells the voice platform to switch stage.
type StageDirective struct {
	Type         string       `json:"type"`
	SystemPrompt string       `json:"systemPrompt"`
	Voice        string       `json:"voice"`
	Temperature  float64      `json:"temperature"`
	LanguageHint string       `json:"languageHint"`
	Stage        stages.Stage `json:"-"`
}

// StageSettings are the voice parameters attached to every stage change.
type StageSettings struct {
	Voice        string
	Temperature  float64
	LanguageHint string
}

// DefaultStageSettings returns the stage-change voice parameters.
func DefaultStageSettings() StageSettings {
	return StageSettings{Voice: "Jessica", Temperature: 0.3, LanguageHint: "en"}
}

// PromptBuilder renders a stage's system prompt.
type PromptBuilder interface {
	Prompt(identity string, appts []appointments.Upcoming, stage stages.Stage) string
}

// Recorder receives tool call outcomes.
type Recorder interface {
	ObserveToolCall(tool, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveToolCall(string, string) {}

// Config configures Handlers for one session.
type Config struct {
	Store        *consultation.Store
	Prompts      PromptBuilder
	Identity     string
	Appointments []appointments.Upcoming
	Stage        StageSettings
	Recorder     Recorder
	Logger       *logging.Logger
}

// Handlers runs the client tools for one session.
type Handlers struct {
	store    *consultation.Store
	prompts  PromptBuilder
	identity string
	appts    []appointments.Upcoming
	settings StageSettings
	recorder Recorder
	logger   *logging.Logger

	mu      sync.Mutex
	current stages.Stage
}

// NewHandlers creates the tool handlers for a session.
func NewHandlers(cfg Config) *Handlers {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Recorder == nil {
		cfg.Recorder = nopRecorder{}
	}
	if cfg.Prompts == nil {
		cfg.Prompts = stages.NewGenerator()
	}
	if cfg.Store == nil {
		cfg.Store = consultation.NewStore()
	}
	defaults := DefaultStageSettings()
	if strings.TrimSpace(cfg.Stage.Voice) == "" {
		cfg.Stage.Voice = defaults.Voice
	}
	if cfg.Stage.Temperature <= 0 {
		cfg.Stage.Temperature = defaults.Temperature
	}
	if strings.TrimSpace(cfg.Stage.LanguageHint) == "" {
		cfg.Stage.LanguageHint = defaults.LanguageHint
	}
	return &Handlers{
		store:    cfg.Store,
		prompts:  cfg.Prompts,
		identity: cfg.Identity,
		appts:    cfg.Appointments,
		settings: cfg.Stage,
		recorder: cfg.Recorder,
		logger:   cfg.Logger,
		current:  stages.Initial,
	}
}

// Stage is the stage the conversation was last moved to.
func (h *Handlers) Stage() stages.Stage {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

type changeStageParams struct {
	NewStage string `json:"newStage"`
}

// ChangeStage builds the directive for the requested stage. Unknown stage
// names fall back to the initial stage. Malformed parameters are returned as
// errors so the caller can report them to the platform.
func (h *Handlers) ChangeStage(ctx context.Context, params json.RawMessage) (*StageDirective, error) {
	_, span := tracer.Start(ctx, "tools.changeStage")
	defer span.End()

	var p changeStageParams
	if err := json.Unmarshal(params, &p); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode params")
		h.recorder.ObserveToolCall(ChangeStageName, OutcomeError)
		return nil, fmt.Errorf("tools: decode changeStage params: %w", err)
	}

	stage := stages.ParseStage(p.NewStage)
	span.SetAttributes(attribute.String("stage.requested", p.NewStage), attribute.String("stage.resolved", string(stage)))

	h.mu.Lock()
	previous := h.current
	h.current = stage
	h.mu.Unlock()

	h.logger.Info("changing stage", "from", previous, "to", stage)
	h.recorder.ObserveToolCall(ChangeStageName, OutcomeOK)
	return &StageDirective{
		Type:         DirectiveNewStage,
		SystemPrompt: h.prompts.Prompt(h.identity, h.appts, stage),
		Voice:        h.settings.Voice,
		Temperature:  h.settings.Temperature,
		LanguageHint: h.settings.LanguageHint,
		Stage:        stage,
	}, nil
}

// UpdateConsultation merges the model's consultation update into the store.
// It always reports success; failures are logged so the conversation keeps
// going.
func (h *Handlers) UpdateConsultation(ctx context.Context, params json.RawMessage) (msg string) {
	_, span := tracer.Start(ctx, "tools.updateConsultation")
	defer span.End()

	msg = UpdateSuccessMessage
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("updateConsultation panicked", "panic", r)
			h.recorder.ObserveToolCall(UpdateConsultationName, OutcomeError)
			msg = UpdateSuccessMessage
		}
	}()

	update, err := extraction.DecodeConsultation(params)
	if err != nil {
		span.RecordError(err)
		h.logger.Warn("updateConsultation ignored malformed params", "error", err)
		h.recorder.ObserveToolCall(UpdateConsultationName, OutcomeError)
		return msg
	}

	state := h.store.Merge(update)
	span.SetAttributes(attribute.Int("consultation.symptoms", len(state.Symptoms)))
	h.logger.Debug("consultation updated",
		"symptoms", len(state.Symptoms),
		"assessment_status", state.AssessmentStatus,
	)
	h.recorder.ObserveToolCall(UpdateConsultationName, OutcomeOK)
	return msg
}

// Invoke runs a client tool and builds the reply for the platform. The reply
// is always usable; err reports why a tool failed.
func (h *Handlers) Invoke(ctx context.Context, inv voice.ToolInvocation) (voice.ClientToolResult, error) {
	result := voice.ClientToolResult{InvocationID: inv.InvocationID}
	switch inv.ToolName {
	case ChangeStageName:
		directive, err := h.ChangeStage(ctx, inv.Parameters)
		if err != nil {
			result.ErrorType = "implementation-error"
			result.ErrorMessage = err.Error()
			return result, err
		}
		body, err := json.Marshal(directive)
		if err != nil {
			result.ErrorType = "implementation-error"
			result.ErrorMessage = err.Error()
			return result, fmt.Errorf("tools: encode stage directive: %w", err)
		}
		result.Result = string(body)
		result.ResponseType = voice.ResponseTypeNewStage
		return result, nil
	case UpdateConsultationName:
		result.Result = h.UpdateConsultation(ctx, inv.Parameters)
		return result, nil
	default:
		h.recorder.ObserveToolCall(inv.ToolName, OutcomeUnknown)
		result.ErrorType = "undefined"
		result.ErrorMessage = fmt.Sprintf("unknown tool %q", inv.ToolName)
		return result, fmt.Errorf("%w: %s", ErrUnknownTool, inv.ToolName)
	}
}
