// Package voice talks to the hosted real-time voice platform: a REST client
// that creates calls and a websocket link that carries the call's data
// messages.
package voice

import (
	"encoding/json"
	"time"
)

// Call defaults used when creating a consultation call.
const (
	DefaultModel        = "fixie-ai/ultravox-70B"
	DefaultVoice        = "Monika-English-Indian"
	DefaultTemperature  = 0.3
	DefaultLanguageHint = "en"
	DefaultTitle        = "Physiotattva Virtual Consultation"
)

// ParameterLocationBody places a dynamic tool parameter in the request body.
const ParameterLocationBody = "PARAMETER_LOCATION_BODY"

// CallConfig is the body of a create-call request.
type CallConfig struct {
	SystemPrompt  string         `json:"systemPrompt"`
	Model         string         `json:"model,omitempty"`
	Voice         string         `json:"voice,omitempty"`
	Temperature   float64        `json:"temperature"`
	LanguageHint  string         `json:"languageHint,omitempty"`
	SelectedTools []SelectedTool `json:"selectedTools,omitempty"`
}

// SelectedTool is either a temporary tool defined inline or a durable tool
// referenced by id.
type SelectedTool struct {
	TemporaryTool *TemporaryTool `json:"temporaryTool,omitempty"`
	ToolID        string         `json:"toolId,omitempty"`
}

// TemporaryTool is a tool defined for one call. Client tools are executed by
// whoever holds the call's data link.
type TemporaryTool struct {
	ModelToolName     string             `json:"modelToolName"`
	Description       string             `json:"description"`
	DynamicParameters []DynamicParameter `json:"dynamicParameters,omitempty"`
	Client            *ClientTool        `json:"client,omitempty"`
}

// DynamicParameter is a parameter the model fills in.
type DynamicParameter struct {
	Name     string         `json:"name"`
	Location string         `json:"location"`
	Schema   map[string]any `json:"schema"`
	Required bool           `json:"required"`
}

// ClientTool marks a temporary tool as client-implemented.
type ClientTool struct{}

// Call is the create-call response.
type Call struct {
	CallID  string    `json:"callId"`
	JoinURL string    `json:"joinUrl"`
	Created time.Time `json:"created"`
}

// Inbound data message types.
const (
	MessageState                = "state"
	MessageTranscript           = "transcript"
	MessageClientToolInvocation = "client_tool_invocation"
	MessageDebug                = "debug"
	MessageToolResult           = "tool_result"
)

// Outbound data message types.
const (
	MessageClientToolResult = "client_tool_result"
	MessageAddMessage       = "add_message"
)

// ResponseTypeNewStage tells the platform a tool result carries a stage
// change.
const ResponseTypeNewStage = "new-stage"

// wireMessage is the union of every data message the link reads.
type wireMessage struct {
	Type         string          `json:"type"`
	State        string          `json:"state,omitempty"`
	Role         string          `json:"role,omitempty"`
	Medium       string          `json:"medium,omitempty"`
	Text         string          `json:"text,omitempty"`
	Delta        string          `json:"delta,omitempty"`
	Final        bool            `json:"final,omitempty"`
	Ordinal      int             `json:"ordinal,omitempty"`
	ToolName     string          `json:"toolName,omitempty"`
	InvocationID string          `json:"invocationId,omitempty"`
	Parameters   json.RawMessage `json:"parameters,omitempty"`
	Message      string          `json:"message,omitempty"`
	Result       string          `json:"result,omitempty"`
}

// EventKind names a session event.
type EventKind string

const (
	EventStatus         EventKind = "status"
	EventTranscript     EventKind = "transcripts"
	EventToolResult     EventKind = "toolresults"
	EventDebug          EventKind = "debug"
	EventToolInvocation EventKind = "tool_invocation"
)

// Event is what the session controller consumes, whether it arrived over a
// server-side link or was forwarded by a browser-hosted client.
type Event struct {
	Kind       EventKind       `json:"kind"`
	Status     string          `json:"status,omitempty"`
	Transcript *Transcript     `json:"transcript,omitempty"`
	ToolResult *ToolResult     `json:"toolResult,omitempty"`
	Invocation *ToolInvocation `json:"invocation,omitempty"`
	Debug      string          `json:"debug,omitempty"`
}

// Transcript is one utterance.
type Transcript struct {
	Role    string `json:"role"`
	Text    string `json:"text"`
	Final   bool   `json:"final"`
	Ordinal int    `json:"ordinal,omitempty"`
}

// ToolResult is the output of a tool the platform ran.
type ToolResult struct {
	ToolName string `json:"toolName"`
	Text     string `json:"text"`
}

// ToolInvocation asks the link holder to run a client tool.
type ToolInvocation struct {
	ToolName     string          `json:"toolName"`
	InvocationID string          `json:"invocationId"`
	Parameters   json.RawMessage `json:"parameters"`
}

// ClientToolResult answers a ToolInvocation.
type ClientToolResult struct {
	InvocationID string `json:"invocationId"`
	Result       string `json:"result,omitempty"`
	ResponseType string `json:"responseType,omitempty"`
	ErrorType    string `json:"errorType,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// Message roles for injected messages.
const (
	RoleUser = "user"
	RoleTool = "tool"
)

// Message is injected into a live call's conversation.
type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
