package extraction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/physio-voice-agent/internal/consultation"
)

func TestFormatHour(t *testing.T) {
	cases := map[int]string{
		0:  "12:00 AM",
		9:  "9:00 AM",
		11: "11:00 AM",
		12: "12:00 PM",
		13: "1:00 PM",
		23: "11:00 PM",
	}
	for hour, want := range cases {
		assert.Equal(t, want, FormatHour(hour), "hour %d", hour)
	}
}

func TestParseSlotResultKeepsPayloadOrder(t *testing.T) {
	payload := `{
		"hourly_slots": {
			"slot_available_9-10": "available",
			"slot_available_10-11": "booked",
			"slot_available_16-17": "available",
			"slot_available_12-13": "available",
			"garbage": "available"
		},
		"search_criteria": {"date": "2024-06-10", "campus": "Indiranagar", "consultation_type": "In-person"}
	}`

	result, err := ParseSlotResult(payload)
	require.NoError(t, err)
	assert.Equal(t, []string{"9:00 AM to 10:00 AM", "4:00 PM to 5:00 PM", "12:00 PM to 1:00 PM"}, result.Slots())
	assert.Equal(t, "Monday", result.Day())
	assert.Equal(t, "Indiranagar", result.Campus())
}

func TestSlotResultScenario(t *testing.T) {
	result, err := ParseSlotResult(`{"hourly_slots": {"slot_available_9-10": "available", "slot_available_10-11": "booked"}, "search_criteria": {"date": "2024-06-10", "campus": "Indiranagar"}}`)
	require.NoError(t, err)

	assert.Equal(t, []string{"9:00 AM to 10:00 AM"}, result.Slots())
	assert.Equal(t, "Monday", result.Day())

	u := result.Update()
	assert.Equal(t, []string{"9:00 AM to 10:00 AM"}, u.Appointment.Strings(consultation.KeyAvailableSlots))
	assert.Equal(t, "2024-06-10", u.Appointment.String(consultation.KeyDate))
	assert.Equal(t, "Indiranagar", u.Appointment.String(consultation.KeyCampus))

	msg := result.Message()
	assert.Contains(t, msg, "Here are the available slots for Monday, June 10, 2024 at Indiranagar:")
	assert.Contains(t, msg, "- 9:00 AM to 10:00 AM")
	assert.Contains(t, msg, "Which time slot would you prefer?")
}

func TestSlotResultMessageNoSlots(t *testing.T) {
	result, err := ParseSlotResult(`{"hourly_slots": {}, "search_criteria": {"date": "2024-06-11"}}`)
	require.NoError(t, err)
	assert.Empty(t, result.Slots())
	assert.Equal(t, "Here are the available slots for Tuesday, June 11, 2024:\nNo slots available for this day.", result.Message())
}

func TestSlotResultMessageWithoutCriteria(t *testing.T) {
	result, err := ParseSlotResult(`{"hourly_slots": {"slot_available_9-10": "available"}}`)
	require.NoError(t, err)
	assert.Equal(t, "", result.Message())
	assert.Equal(t, "", result.Day())
}

func TestParseSlotResultRejectsMalformed(t *testing.T) {
	_, err := ParseSlotResult(`not json`)
	assert.Error(t, err)

	_, err = ParseSlotResult(`{"search_criteria": {"date": "2024-06-10"}}`)
	assert.Error(t, err)

	_, err = ParseSlotResult(`{"hourly_slots": ["a"]}`)
	assert.Error(t, err)
}

func TestDayHelpers(t *testing.T) {
	assert.Equal(t, "Sunday", DayFromDate("2024-06-09"))
	assert.Equal(t, "", DayFromDate("soon"))
	assert.Equal(t, "mon", DayAbbreviation("Monday"))
	assert.Equal(t, "sat", DayAbbreviation(" saturday "))
	assert.Equal(t, "", DayAbbreviation("Funday"))
	assert.Equal(t, "9:00 AM", StartTimeFromSlot("9:00 AM to 10:00 AM"))
	assert.Equal(t, "", StartTimeFromSlot("morning"))
}

func TestSlotSelection(t *testing.T) {
	assert.Equal(t, "I'd like the 9:00 AM to 10:00 AM slot please.", SlotSelectionUtterance("9:00 AM to 10:00 AM"))

	u := SlotSelectionUpdate("9:00 AM to 10:00 AM")
	assert.Equal(t, "9:00 AM to 10:00 AM", u.Appointment.String(consultation.KeySelectedTime))
	assert.Equal(t, "9:00 AM", u.Appointment.String(consultation.KeyTime))
}
