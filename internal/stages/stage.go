package stages

import "strings"

// Stage names a conversation context with its own system prompt.
type Stage string

const (
	Initial           Stage = "initial"
	Symptom           Stage = "symptom"
	Booking           Stage = "booking"
	AppointmentLookup Stage = "appointmentLookup"
)

// All lists the stages in the order the changeStage tool advertises them.
var All = []Stage{Initial, Symptom, Booking, AppointmentLookup}

// ParseStage maps a stage name to a Stage. Unknown names fall back to Initial.
func ParseStage(name string) Stage {
	trimmed := strings.TrimSpace(name)
	for _, s := range All {
		if string(s) == trimmed {
			return s
		}
	}
	return Initial
}

// Names returns the stage names as strings, for tool schemas.
func Names() []string {
	out := make([]string, len(All))
	for i, s := range All {
		out[i] = string(s)
	}
	return out
}

// Greeting is the verbatim first utterance the model must produce on entry.
func (s Stage) Greeting() string {
	switch s {
	case Symptom:
		return "I understand you have some discomfort. Can you describe where you feel the pain?"
	case Booking:
		return "Would you like an in-person or online consultation?"
	case AppointmentLookup:
		return "Let me check your upcoming appointments."
	default:
		return "Hi, this is Dr. Riya from Physiotattva. How can I assist you today?"
	}
}
