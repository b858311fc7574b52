package consultation

import (
	"fmt"
	"strings"
)

// NotSpecified fills symptom attributes the patient never described.
const NotSpecified = "Not specified"

// Assessment statuses.
const (
	StatusNotStarted = "Not started"
	StatusInProgress = "In Progress"
	StatusCompleted  = "Completed"
)

// AppointmentConfirmed is the status recorded once a booking succeeds.
const AppointmentConfirmed = "Confirmed"

// Well-known appointment keys. The record is open ended; extraction and
// tools may add keys beyond these.
const (
	KeyType             = "type"
	KeyConsultationType = "consultationType"
	KeyCity             = "city"
	KeyCenter           = "center"
	KeyCampus           = "campus"
	KeyCampusID         = "campusId"
	KeyWeekSelection    = "weekSelection"
	KeyDay              = "day"
	KeySelectedDay      = "selectedDay"
	KeyDate             = "date"
	KeyAvailableSlots   = "availableSlots"
	KeySelectedTime     = "selectedTime"
	KeyStartTime        = "startTime"
	KeyTime             = "time"
	KeyPatientName      = "patientName"
	KeyMobileNumber     = "mobileNumber"
	KeyEmail            = "email"
	KeyStatus           = "status"
	KeyDoctor           = "doctor"
	KeyPaymentLink      = "paymentLink"
	KeyBookingID        = "bookingId"
	KeyID               = "id"
)

// Symptom is one reported complaint. Name uniqueness is case-insensitive.
type Symptom struct {
	Symptom        string `json:"symptom"`
	Severity       string `json:"severity"`
	Duration       string `json:"duration"`
	Pattern        string `json:"pattern"`
	Location       string `json:"location"`
	MovementImpact string `json:"movementImpact"`
}

// Normalize trims every field and fills blanks with NotSpecified.
func (s Symptom) Normalize() Symptom {
	fill := func(v string) string {
		v = strings.TrimSpace(v)
		if v == "" {
			return NotSpecified
		}
		return v
	}
	return Symptom{
		Symptom:        strings.TrimSpace(s.Symptom),
		Severity:       fill(s.Severity),
		Duration:       fill(s.Duration),
		Pattern:        fill(s.Pattern),
		Location:       fill(s.Location),
		MovementImpact: fill(s.MovementImpact),
	}
}

// Key is the identity used for de-duplication.
func (s Symptom) Key() string {
	return strings.ToLower(strings.TrimSpace(s.Symptom))
}

// Appointment is the open-ended booking record.
type Appointment map[string]any

// String returns the value at key rendered as text, or "" when absent.
func (a Appointment) String(key string) string {
	v, ok := a[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Strings returns a list value, accepting []string or []any of strings.
func (a Appointment) Strings(key string) []string {
	switch v := a[key].(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Clone copies the record. Slices are copied so callers cannot alias state.
func (a Appointment) Clone() Appointment {
	out := make(Appointment, len(a))
	for k, v := range a {
		switch t := v.(type) {
		case []string:
			out[k] = append([]string(nil), t...)
		case []any:
			out[k] = append([]any(nil), t...)
		case map[string]any:
			out[k] = map[string]any(Appointment(t).Clone())
		default:
			out[k] = v
		}
	}
	return out
}

// State is the full consultation record for one session.
type State struct {
	Symptoms         []Symptom   `json:"symptoms"`
	AssessmentStatus string      `json:"assessmentStatus"`
	Appointment      Appointment `json:"appointment"`
}

// Initial returns the state of a freshly started session.
func Initial() State {
	return State{
		Symptoms:         []Symptom{},
		AssessmentStatus: StatusNotStarted,
		Appointment:      Appointment{},
	}
}

// Clone returns a deep copy.
func (s State) Clone() State {
	out := State{
		Symptoms:         append([]Symptom{}, s.Symptoms...),
		AssessmentStatus: s.AssessmentStatus,
		Appointment:      Appointment{},
	}
	if s.Appointment != nil {
		out.Appointment = s.Appointment.Clone()
	}
	return out
}

// HasSymptom reports whether a symptom with the same name is present.
func (s State) HasSymptom(name string) bool {
	key := strings.ToLower(strings.TrimSpace(name))
	for _, existing := range s.Symptoms {
		if existing.Key() == key {
			return true
		}
	}
	return false
}

// Update is a partial change produced by a tool call or an extractor.
// Zero fields mean "no change".
type Update struct {
	Symptoms         []Symptom
	AssessmentStatus string
	Appointment      Appointment
	// Details fills attributes of the most recent symptom that are still
	// NotSpecified. The Symptom name is ignored.
	Details *Symptom
}

// IsEmpty reports whether applying u would change nothing.
func (u Update) IsEmpty() bool {
	return len(u.Symptoms) == 0 && u.AssessmentStatus == "" && len(u.Appointment) == 0 && u.Details == nil
}

// SetAppointment records an appointment field on the update.
func (u *Update) SetAppointment(key string, value any) {
	if u.Appointment == nil {
		u.Appointment = Appointment{}
	}
	u.Appointment[key] = value
}

// Absorb folds other into u without overwriting anything u already carries.
// Callers feed updates in priority order so the first producer of a field wins.
func (u *Update) Absorb(other Update) {
	for _, sym := range other.Symptoms {
		if !containsSymptom(u.Symptoms, sym.Key()) {
			u.Symptoms = append(u.Symptoms, sym)
		}
	}
	if u.AssessmentStatus == "" {
		u.AssessmentStatus = other.AssessmentStatus
	}
	for k, v := range other.Appointment {
		if _, taken := u.Appointment[k]; taken {
			continue
		}
		u.SetAppointment(k, v)
	}
	if other.Details != nil {
		if u.Details == nil {
			d := *other.Details
			u.Details = &d
		} else {
			u.Details.fillBlanks(*other.Details)
		}
	}
}

func (s *Symptom) fillBlanks(from Symptom) {
	if isBlank(s.Severity) {
		s.Severity = from.Severity
	}
	if isBlank(s.Duration) {
		s.Duration = from.Duration
	}
	if isBlank(s.Pattern) {
		s.Pattern = from.Pattern
	}
	if isBlank(s.Location) {
		s.Location = from.Location
	}
	if isBlank(s.MovementImpact) {
		s.MovementImpact = from.MovementImpact
	}
}

func isBlank(v string) bool {
	v = strings.TrimSpace(v)
	return v == "" || v == NotSpecified
}

func containsSymptom(list []Symptom, key string) bool {
	for _, s := range list {
		if s.Key() == key {
			return true
		}
	}
	return false
}
