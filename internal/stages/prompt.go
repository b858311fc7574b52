package stages

import (
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/physio-voice-agent/internal/appointments"
)

// Booking confirmation line the model must end a successful booking with.
const ConfirmationLine = "Your appointment is confirmed. You'll receive details shortly. Anything else I can help with?"

const (
	noAppointmentsText = "No existing appointments found."
	anonymousUser      = "Anonymous"
)

const toolSilenceRules = `IMPORTANT TOOL INSTRUCTIONS - READ CAREFULLY:
- You have tools called %s
- NEVER write out the tool names in your response text
- NEVER tell the user you are recording data, fetching slots, booking or changing stages
- Use these tools SILENTLY in the background`

// SingleQuestionRule is written into every stage prompt.
const SingleQuestionRule = "Ask only one question at a time. Never combine a follow-up question with another question."

const initialBody = `STRICT ROUTING RULES:
1. If the user mentions appointment-related terms (booking, schedule, timing, slot), SILENTLY use changeStage to route to 'booking'
2. If the user describes symptoms (pain, discomfort, ache), SILENTLY use changeStage to route to 'symptom'
3. If the user asks about existing appointments, SILENTLY use changeStage to route to 'appointmentLookup'
4. If the user asks about services, answer from the context below
After using a tool, respond naturally. Never say you are routing or transferring the user.`

const symptomBody = `REQUIRED QUESTIONS (ask one at a time):
1. Pain location and type
2. Duration of pain
3. Severity (1-10 scale)
4. Pattern (constant/intermittent)
5. Movement impact

After gathering all symptom information:
- SILENTLY use updateConsultation to record the symptom data
- If the symptoms match a physiotherapy condition, SILENTLY use changeStage to route to 'booking'
- If the symptoms need urgent care, recommend immediate medical attention`

const bookingBody = `STRICT BOOKING WORKFLOW. ASK ONLY ONE QUESTION AT A TIME.

For Online Consultation (₹99):
1. Ask ONLY: "Would you prefer an appointment this week or next week?" Store it using updateConsultation.
2. Ask ONLY: "Which day would you prefer? (Monday, Tuesday, Wednesday, Thursday, Friday, or Saturday)" Store it using updateConsultation.
3. SILENTLY use fetchSlots with:
%s
4. When fetchSlots responds, list EVERY slot marked available:
   "Here are the available slots for [day]:
   - 9:00 AM to 10:00 AM
   - [continue listing ALL available slots]"
   Then ask: "Which time slot would you prefer?" Store the chosen slot using updateConsultation.
5. Ask ONLY: "May I know your full name, please?" Store it using updateConsultation.
6. Ask ONLY: "Could you share your mobile number?" Store it using updateConsultation.
7. SILENTLY use bookAppointment with:
%s
8. Read out the booking details: date and time, doctor if available, consultation type, booking ID if available, payment link.
9. End with EXACTLY: "%s"

For In-Person Consultation (₹499):
1. Ask ONLY: "Which city would you prefer for your consultation? (Bangalore or Hyderabad)" Store it using updateConsultation.
2. Ask ONLY ONE of:
%s
   Store the center using updateConsultation.
3. Ask ONLY: "Would you prefer an appointment this week or next week?" Store it using updateConsultation.
4. Ask ONLY: "Which day would you prefer? (Monday, Tuesday, Wednesday, Thursday, Friday, or Saturday)" Store it using updateConsultation.
5. SILENTLY use fetchSlots with:
%s
6. When fetchSlots responds, list EVERY available slot:
   "Here are the available slots for [day] at [center]:
   - 9:00 AM to 10:00 AM
   - [continue listing ALL available slots]"
   Then ask: "Which time slot would you prefer?" Store the chosen slot using updateConsultation.
7. Ask ONLY: "May I know your full name, please?" Store it using updateConsultation.
8. Ask ONLY: "Could you share your mobile number?" Store it using updateConsultation.
9. SILENTLY use bookAppointment with:
%s
10. Read out the booking details: date and time, center, doctor if available, consultation type, booking ID if available, payment link.
11. End with EXACTLY: "%s"

IMPORTANT NOTES:
- Do not skip any step in the workflow
- When the user selects a time slot, book EXACTLY that slot
- Store every selection using updateConsultation before moving to the next step
- Always include the payment link after booking`

const lookupBody = `WORKFLOW:
1. Present appointment details from the context below
2. Offer rescheduling or cancellation options
3. Process any changes requested`

// Centers lists the in-person centers per city, in the order they are offered.
var Centers = map[string][]string{
	"Bangalore": {"Indiranagar", "Whitefield"},
	"Hyderabad": {"Banjara Hills", "Madhapur"},
}

// Cities in the order the booking prompt offers them.
var Cities = []string{"Bangalore", "Hyderabad"}

type toolParam struct {
	name  string
	value string
}

func slotParams(consultationType, campus string) []toolParam {
	return []toolParam{
		{"week_selection", "the user's choice (\"this week\" or \"next week\")"},
		{"selected_day", "the user's choice converted to \"mon\", \"tue\", etc."},
		{"consultation_type", consultationType},
		{"campus_id", campus},
		{"speciality_id", `"Physiotherapy"`},
		{"user_id", "1"},
	}
}

func bookingParams(consultationType, campus string) []toolParam {
	return []toolParam{
		{"week_selection", "the user's selected week"},
		{"selected_day", "the user's selected day (mon, tue, etc.)"},
		{"start_time", "the user's selected time slot"},
		{"consultation_type", consultationType},
		{"campus_id", campus},
		{"speciality_id", `"Physiotherapy"`},
		{"user_id", "1"},
		{"patient_name", "the user's provided name"},
		{"mobile_number", "the user's provided mobile number"},
		{"payment_mode", `"pay now"`},
	}
}

func renderParams(params []toolParam) string {
	lines := make([]string, len(params))
	for i, p := range params {
		lines[i] = fmt.Sprintf("   - %s: %s", p.name, p.value)
	}
	return strings.Join(lines, "\n")
}

func centerQuestions() string {
	lines := make([]string, 0, len(Cities))
	for _, city := range Cities {
		centers := Centers[city]
		lines = append(lines, fmt.Sprintf("   - For %s: \"We have centers in %s. Which one do you prefer?\"",
			city, strings.Join(centers, " and ")))
	}
	return strings.Join(lines, "\n")
}

type stagePrompt struct {
	role  string
	title string
	tools []string
	body  string
}

var prompts = map[Stage]stagePrompt{
	Initial: {
		role:  "Initial Greeting & Routing",
		title: "Initial Assessment",
		tools: []string{"changeStage"},
		body:  initialBody,
	},
	Symptom: {
		role:  "Symptom Checker",
		title: "Symptom Assessment",
		tools: []string{"updateConsultation", "changeStage"},
		body:  symptomBody,
	},
	Booking: {
		role:  "Appointment Booking Assistant",
		title: "Appointment Booking",
		tools: []string{"updateConsultation", "fetchSlots", "bookAppointment", "changeStage"},
		body: fmt.Sprintf(bookingBody,
			renderParams(slotParams(`"Online"`, `"Indiranagar"`)),
			renderParams(bookingParams(`"Online"`, `"Indiranagar"`)),
			ConfirmationLine,
			centerQuestions(),
			renderParams(slotParams(`"inperson"`, "the selected center, capitalized (for example \"Indiranagar\")")),
			renderParams(bookingParams(`"In-person"`, "the selected center")),
			ConfirmationLine,
		),
	},
	AppointmentLookup: {
		role:  "Appointment Lookup Assistant",
		title: "Appointment Management",
		body:  lookupBody,
	},
}

// Generator renders stage prompts. The clock is injectable for tests.
type Generator struct {
	now func() time.Time
}

// NewGenerator returns a generator using the wall clock.
func NewGenerator() *Generator {
	return &Generator{now: time.Now}
}

// NewGeneratorWithClock returns a generator with a fixed time source.
func NewGeneratorWithClock(now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{now: now}
}

// Prompt renders the system prompt for stage. identity is the patient's email
// or another display identity; unknown stages render the initial prompt.
func (g *Generator) Prompt(identity string, appts []appointments.Upcoming, stage Stage) string {
	stage = ParseStage(string(stage))
	p := prompts[stage]

	var b strings.Builder
	fmt.Fprintf(&b, "Role: %s (Dr. Riya)\nStage: %s\n\n", p.role, p.title)
	b.WriteString("You are Dr. Riya, the virtual physiotherapy assistant for Physiotattva.\n\n")
	fmt.Fprintf(&b, "FIRST MESSAGE MUST ALWAYS BE EXACTLY:\n\"%s\"\n\n", stage.Greeting())
	if len(p.tools) > 0 {
		fmt.Fprintf(&b, toolSilenceRules+"\n\n", strings.Join(p.tools, ", "))
	}
	b.WriteString(SingleQuestionRule + "\n\n")
	b.WriteString(p.body)
	b.WriteString("\n\n")
	b.WriteString(g.baseContext(identity, appts))
	return b.String()
}

func (g *Generator) baseContext(identity string, appts []appointments.Upcoming) string {
	user := strings.TrimSpace(identity)
	if user == "" {
		user = anonymousUser
	}
	now := time.Now
	if g != nil && g.now != nil {
		now = g.now
	}
	return fmt.Sprintf("Current Date and Time: %s\nCurrent User: %s\n%s",
		now().UTC().Format(time.RFC3339), user, renderAppointments(appts))
}

func renderAppointments(appts []appointments.Upcoming) string {
	if len(appts) == 0 {
		return noAppointmentsText
	}
	var b strings.Builder
	b.WriteString("Important: Patient has existing appointment(s):")
	for _, a := range appts {
		fmt.Fprintf(&b, "\n- %s appointment on %s at %s\n  Type: %s\n  Status: %s",
			a.DoctorName, a.FormattedStartDate, a.Time, a.ConsultationType, a.AppointmentStage)
	}
	return b.String()
}
