package stages

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/wolfman30/physio-voice-agent/internal/appointments"
)

func fixedGenerator() *Generator {
	at := time.Date(2024, 6, 10, 9, 30, 0, 0, time.UTC)
	return NewGeneratorWithClock(func() time.Time { return at })
}

func TestParseStage(t *testing.T) {
	tests := []struct {
		in   string
		want Stage
	}{
		{"initial", Initial},
		{"symptom", Symptom},
		{"booking", Booking},
		{"appointmentLookup", AppointmentLookup},
		{" booking ", Booking},
		{"Booking", Initial},
		{"bogus", Initial},
		{"", Initial},
	}
	for _, tt := range tests {
		if got := ParseStage(tt.in); got != tt.want {
			t.Errorf("ParseStage(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestUnknownStageRendersInitialPrompt(t *testing.T) {
	g := fixedGenerator()
	appts := []appointments.Upcoming{{DoctorName: "Dr. A"}}
	assert.Equal(t, g.Prompt("a@b.com", appts, Initial), g.Prompt("a@b.com", appts, Stage("bogus")))
}

func TestPromptIncludesGreetingPerStage(t *testing.T) {
	g := fixedGenerator()
	for _, s := range All {
		prompt := g.Prompt("", nil, s)
		if !strings.Contains(prompt, s.Greeting()) {
			t.Errorf("prompt for %s missing greeting %q", s, s.Greeting())
		}
	}
}

func TestPromptBaseContext(t *testing.T) {
	g := fixedGenerator()

	anon := g.Prompt("", nil, Initial)
	assert.Contains(t, anon, "Current Date and Time: 2024-06-10T09:30:00Z")
	assert.Contains(t, anon, "Current User: Anonymous")
	assert.Contains(t, anon, "No existing appointments found.")

	withAppts := g.Prompt("pat@example.com", []appointments.Upcoming{{
		DoctorName:         "Dr. Rao",
		FormattedStartDate: "June 12, 2024",
		Time:               "10:00 AM",
		ConsultationType:   "Online",
		AppointmentStage:   "Confirmed",
	}}, Symptom)
	assert.Contains(t, withAppts, "Current User: pat@example.com")
	assert.Contains(t, withAppts, "Important: Patient has existing appointment(s):\n- Dr. Rao appointment on June 12, 2024 at 10:00 AM\n  Type: Online\n  Status: Confirmed")
	assert.NotContains(t, withAppts, "No existing appointments found.")
}

func TestBookingPromptWorkflow(t *testing.T) {
	prompt := fixedGenerator().Prompt("", nil, Booking)
	for _, want := range []string{
		"₹99",
		"₹499",
		"Indiranagar and Whitefield",
		"Banjara Hills and Madhapur",
		"payment_mode: \"pay now\"",
		"speciality_id: \"Physiotherapy\"",
		ConfirmationLine,
		"fetchSlots, bookAppointment",
	} {
		assert.Contains(t, prompt, want)
	}
}

func TestLookupPromptHasNoToolRules(t *testing.T) {
	prompt := fixedGenerator().Prompt("", nil, AppointmentLookup)
	assert.NotContains(t, prompt, "IMPORTANT TOOL INSTRUCTIONS")
	assert.Contains(t, prompt, "Offer rescheduling or cancellation options")
}

func TestEveryPromptAsksOneQuestionAtATime(t *testing.T) {
	g := fixedGenerator()
	for _, s := range All {
		prompt := g.Prompt("", nil, s)
		assert.Equal(t, 1, strings.Count(prompt, SingleQuestionRule), "stage %s", s)
	}
}

func TestNames(t *testing.T) {
	assert.Equal(t, []string{"initial", "symptom", "booking", "appointmentLookup"}, Names())
}
