package extraction

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/wolfman30/physio-voice-agent/internal/consultation"
)

// SlotAvailable is the availability value that makes a slot bookable.
const SlotAvailable = "available"

var (
	slotKeyPattern   = regexp.MustCompile(`slot_available_(\d+)-(\d+)`)
	slotTimePattern  = regexp.MustCompile(`(?i)\d+:\d+\s*(?:AM|PM)\s*to\s*\d+:\d+\s*(?:AM|PM)`)
	startTimePattern = regexp.MustCompile(`(?i)(\d+:\d+\s*(?:AM|PM))`)
)

// weekdays is indexed by time.Weekday, Sunday first.
var weekdays = [7]string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}

var dayAbbreviations = map[string]string{
	"monday":    "mon",
	"tuesday":   "tue",
	"wednesday": "wed",
	"thursday":  "thu",
	"friday":    "fri",
	"saturday":  "sat",
	"sunday":    "sun",
}

var dateLayouts = []string{"2006-01-02", time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05"}

// FormatHour renders a 24-hour clock hour as "H:00 AM|PM".
func FormatHour(hour int) string {
	hour = ((hour % 24) + 24) % 24
	switch {
	case hour == 0:
		return "12:00 AM"
	case hour < 12:
		return fmt.Sprintf("%d:00 AM", hour)
	case hour == 12:
		return "12:00 PM"
	default:
		return fmt.Sprintf("%d:00 PM", hour-12)
	}
}

// HourlySlot is one entry of a slot lookup, kept in payload order.
type HourlySlot struct {
	Key          string
	Availability string
}

// HourlySlots decodes a JSON object while preserving key order.
type HourlySlots []HourlySlot

// UnmarshalJSON implements json.Unmarshaler.
func (h *HourlySlots) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*h = nil
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("extraction: hourly_slots must be an object")
	}
	out := HourlySlots{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := keyTok.(string)
		var value any
		if err := dec.Decode(&value); err != nil {
			return err
		}
		availability, _ := value.(string)
		out = append(out, HourlySlot{Key: key, Availability: availability})
	}
	*h = out
	return nil
}

// Available formats every slot marked available as "<start> to <end>".
// Keys that do not follow the slot_available_<start>-<end> form are skipped.
func (h HourlySlots) Available() []string {
	out := make([]string, 0, len(h))
	for _, slot := range h {
		if slot.Availability != SlotAvailable {
			continue
		}
		m := slotKeyPattern.FindStringSubmatch(slot.Key)
		if m == nil {
			continue
		}
		start, err1 := strconv.Atoi(m[1])
		end, err2 := strconv.Atoi(m[2])
		if err1 != nil || err2 != nil {
			continue
		}
		out = append(out, FormatHour(start)+" to "+FormatHour(end))
	}
	return out
}

// SearchCriteria echoes what the slot lookup searched for.
type SearchCriteria struct {
	Date             string `json:"date"`
	ConsultationType string `json:"consultation_type"`
	Campus           string `json:"campus"`
	WeekSelection    string `json:"week_selection,omitempty"`
	SelectedDay      string `json:"selected_day,omitempty"`
}

// SlotResult is a parsed slot lookup payload.
type SlotResult struct {
	HourlySlots    HourlySlots     `json:"hourly_slots"`
	SearchCriteria *SearchCriteria `json:"search_criteria"`
	Raw            json.RawMessage `json:"-"`
}

// ParseSlotResult decodes a slot lookup payload.
func ParseSlotResult(text string) (*SlotResult, error) {
	var out SlotResult
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return nil, fmt.Errorf("extraction: decode slot result: %w", err)
	}
	if out.HourlySlots == nil {
		return nil, fmt.Errorf("extraction: slot result has no hourly_slots")
	}
	out.Raw = json.RawMessage(text)
	return &out, nil
}

// Slots returns the formatted available slots.
func (r *SlotResult) Slots() []string {
	if r == nil {
		return nil
	}
	return r.HourlySlots.Available()
}

// Day is the weekday name of the searched date, or "" when unknown.
func (r *SlotResult) Day() string {
	if r == nil || r.SearchCriteria == nil {
		return ""
	}
	return DayFromDate(r.SearchCriteria.Date)
}

// Campus is the searched campus, or "".
func (r *SlotResult) Campus() string {
	if r == nil || r.SearchCriteria == nil {
		return ""
	}
	return r.SearchCriteria.Campus
}

// Update records the slot list and the search criteria on the appointment.
func (r *SlotResult) Update() consultation.Update {
	var u consultation.Update
	if r == nil {
		return u
	}
	u.SetAppointment(consultation.KeyAvailableSlots, r.Slots())
	if c := r.SearchCriteria; c != nil {
		u.SetAppointment(consultation.KeyDate, c.Date)
		u.SetAppointment(consultation.KeyConsultationType, c.ConsultationType)
		u.SetAppointment(consultation.KeyCampus, c.Campus)
	}
	return u
}

// Message renders the slot list for the voice model. It returns "" when the
// payload carries no search criteria.
func (r *SlotResult) Message() string {
	if r == nil || r.SearchCriteria == nil {
		return ""
	}
	when := r.Day()
	if date, ok := parseDate(r.SearchCriteria.Date); ok {
		when += ", " + date.Format("January 2, 2006")
	}
	header := "Here are the available slots"
	if when != "" {
		header += " for " + when
	}
	if campus := strings.TrimSpace(r.SearchCriteria.Campus); campus != "" {
		header += " at " + campus
	}
	header += ":"

	slots := r.Slots()
	if len(slots) == 0 {
		return header + "\nNo slots available for this day."
	}
	lines := make([]string, len(slots))
	for i, s := range slots {
		lines[i] = "- " + s
	}
	return header + "\n" + strings.Join(lines, "\n") + "\n\nWhich time slot would you prefer?"
}

func parseDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// DayFromDate returns the weekday name of a date string, or "" if it cannot
// be parsed.
func DayFromDate(date string) string {
	t, ok := parseDate(date)
	if !ok {
		return ""
	}
	return weekdays[t.Weekday()]
}

// DayAbbreviation maps "Monday" to "mon" and so on. Unknown names map to "".
func DayAbbreviation(day string) string {
	return dayAbbreviations[strings.ToLower(strings.TrimSpace(day))]
}

// StartTimeFromSlot returns "9:00 AM" from "9:00 AM to 10:00 AM".
func StartTimeFromSlot(slot string) string {
	m := startTimePattern.FindStringSubmatch(slot)
	if m == nil {
		return ""
	}
	return m[1]
}

// SlotSelectionUtterance is what the patient "says" when picking a slot in
// the UI instead of speaking.
func SlotSelectionUtterance(slot string) string {
	return fmt.Sprintf("I'd like the %s slot please.", slot)
}

// SlotSelectionUpdate records a slot picked in the UI.
func SlotSelectionUpdate(slot string) consultation.Update {
	var u consultation.Update
	u.SetAppointment(consultation.KeySelectedTime, slot)
	start, _, _ := strings.Cut(slot, " to ")
	u.SetAppointment(consultation.KeyTime, start)
	return u
}
