package extraction

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/wolfman30/physio-voice-agent/internal/consultation"
)

// unknownSymptom names a symptom object that arrived without a name.
const unknownSymptom = "Unknown symptom"

// JSONCandidates returns every top-level balanced {...} substring of text, in
// order. Braces inside JSON strings are respected.
func JSONCandidates(text string) []string {
	var (
		out      []string
		depth    int
		start    = -1
		inString bool
		escaped  bool
	)
	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start >= 0 {
				out = append(out, text[start:i+1])
				start = -1
			}
		}
	}
	return out
}

// resolveConsultationObject finds the consultation payload inside a decoded
// object. consultationData wins over value.consultationData, then value, then
// the object itself.
func resolveConsultationObject(root map[string]any) map[string]any {
	if obj, ok := root["consultationData"].(map[string]any); ok {
		return obj
	}
	if value, ok := root["value"].(map[string]any); ok {
		if obj, ok := value["consultationData"].(map[string]any); ok {
			return obj
		}
		return value
	}
	if raw, ok := root["value"].(string); ok {
		var nested map[string]any
		if err := json.Unmarshal([]byte(raw), &nested); err == nil {
			return resolveConsultationObject(nested)
		}
	}
	return root
}

// consultationFromObject maps a consultation payload to an update. ok is
// false when the object carries none of the consultation fields.
func consultationFromObject(obj map[string]any) (consultation.Update, bool) {
	var u consultation.Update
	found := false

	if raw, present := obj["symptoms"]; present && raw != nil {
		found = true
		u.Symptoms = normalizeSymptoms(raw)
	}
	if status, ok := obj["assessmentStatus"].(string); ok && strings.TrimSpace(status) != "" {
		found = true
		u.AssessmentStatus = strings.TrimSpace(status)
	}
	if appt, ok := obj["appointment"].(map[string]any); ok {
		found = true
		for k, v := range appt {
			u.SetAppointment(k, v)
		}
	}
	return u, found
}

// normalizeSymptoms accepts a list or a single item; items may be strings or
// objects.
func normalizeSymptoms(raw any) []consultation.Symptom {
	items, ok := raw.([]any)
	if !ok {
		items = []any{raw}
	}
	out := make([]consultation.Symptom, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case string:
			if strings.TrimSpace(v) == "" {
				continue
			}
			out = append(out, consultation.Symptom{Symptom: v}.Normalize())
		case map[string]any:
			sym := consultation.Symptom{
				Symptom:        stringField(v, "symptom"),
				Severity:       stringField(v, "severity"),
				Duration:       stringField(v, "duration"),
				Pattern:        stringField(v, "pattern"),
				Location:       stringField(v, "location"),
				MovementImpact: stringField(v, "movementImpact"),
			}
			if strings.TrimSpace(sym.Symptom) == "" {
				sym.Symptom = unknownSymptom
			}
			out = append(out, sym.Normalize())
		}
	}
	return out
}

func stringField(obj map[string]any, key string) string {
	switch v := obj[key].(type) {
	case string:
		return v
	case float64, bool:
		b, _ := json.Marshal(v)
		return string(b)
	default:
		return ""
	}
}

// ScanConsultationJSON decodes each JSON candidate in text and folds every
// consultation payload it finds, first candidate first.
func ScanConsultationJSON(text string) (consultation.Update, int) {
	var (
		u       consultation.Update
		decoded int
	)
	for _, candidate := range JSONCandidates(text) {
		var root map[string]any
		if err := json.Unmarshal([]byte(candidate), &root); err != nil {
			continue
		}
		partial, ok := consultationFromObject(resolveConsultationObject(root))
		if !ok {
			continue
		}
		decoded++
		u.Absorb(partial)
	}
	return u, decoded
}

// DecodeConsultation reads an updateConsultation payload. The consultation
// object is resolved the same way as in debug lines.
func DecodeConsultation(raw []byte) (consultation.Update, error) {
	var root map[string]any
	if err := json.Unmarshal(raw, &root); err != nil {
		return consultation.Update{}, fmt.Errorf("extraction: decode consultation payload: %w", err)
	}
	u, _ := consultationFromObject(resolveConsultationObject(root))
	return u, nil
}

// ParseConsultationEcho re-reads the updateConsultation tool's own input to
// recover the mobile number and symptoms it carried.
func ParseConsultationEcho(text string) (consultation.Update, bool) {
	var root map[string]any
	if err := json.Unmarshal([]byte(text), &root); err != nil {
		return consultation.Update{}, false
	}
	obj := resolveConsultationObject(root)

	var u consultation.Update
	if raw, ok := obj["symptoms"]; ok && raw != nil {
		u.Symptoms = normalizeSymptoms(raw)
	}
	if appt, ok := obj["appointment"].(map[string]any); ok {
		if mobile := stringField(appt, consultation.KeyMobileNumber); strings.TrimSpace(mobile) != "" {
			u.SetAppointment(consultation.KeyMobileNumber, strings.TrimSpace(mobile))
		}
	}
	if _, ok := u.Appointment[consultation.KeyMobileNumber]; !ok {
		if m := mobilePattern.FindStringSubmatch(text); m != nil {
			u.SetAppointment(consultation.KeyMobileNumber, m[1])
		}
	}
	return u, !u.IsEmpty()
}
