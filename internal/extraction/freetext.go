package extraction

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/wolfman30/physio-voice-agent/internal/consultation"
)

// Consultation types recorded on the appointment.
const (
	ConsultationOnline   = "Online"
	ConsultationInPerson = "In-person"
)

var (
	mobilePattern = regexp.MustCompile(`\b(\d{10})\b`)

	namePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bmy name is ([^.,!?\n]+)`),
		regexp.MustCompile(`(?i)\bname is ([^.,!?\n]+)`),
	}

	selectedSlotPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)prefer the (\d+:\d+\s*(?:AM|PM)\s*to\s*\d+:\d+\s*(?:AM|PM))`),
		regexp.MustCompile(`(?i)prefer (\d+:\d+\s*(?:AM|PM)\s*to\s*\d+:\d+\s*(?:AM|PM))`),
		regexp.MustCompile(`(?i)like the (\d+:\d+\s*(?:AM|PM)\s*to\s*\d+:\d+\s*(?:AM|PM))`),
	}

	spokenSlotsMarker = regexp.MustCompile(`(?i)available slots for`)

	confirmationMarkers = []string{"appointment is confirmed", "appointment has been booked"}

	bookingIDPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)booking id(?: is)?[:\s]+([A-Za-z0-9-]*\d[A-Za-z0-9-]*)`),
		regexp.MustCompile(`(?i)appointment id(?: is)?[:\s]+([A-Za-z0-9-]*\d[A-Za-z0-9-]*)`),
		regexp.MustCompile(`(?i)reference(?: id| number)?(?: is)?[:\s]+([A-Za-z0-9-]*\d[A-Za-z0-9-]*)`),
	}

	doctorPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bwith (Dr\.?\s*[^.,\n]+?)(?:\s+(?:on|at)\b|[.,\n]|$)`),
		regexp.MustCompile(`(?i)\bwith ([^.,\n]+?)\s+on\b`),
	}

	shortLinkPattern   = regexp.MustCompile(`(https?://rzp\.io/[^\s]+)`)
	paymentLinkPattern = regexp.MustCompile(`(?i)payment link[:\s]+(https?://[^\s]+)`)
)

var (
	quotedSymptomPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bsymptoms?\s*[:=]\s*"([^"]+)"`),
		regexp.MustCompile(`(?i)\bsymptoms?\s*[:=]\s*'([^']+)'`),
	}

	// Applied sentence by sentence. Group 1 is the complaint; painSuffix
	// patterns name a body part, so " pain" is appended.
	symptomPhrasePatterns = []symptomPattern{
		{regexp.MustCompile(`(?i)\bsymptoms?:\s*([^.,;"'{}\n]+)`), false, false},
		{regexp.MustCompile(`(?i)\bsymptom is ([^.,!?\n]+)`), false, false},
		{regexp.MustCompile(`(?i)\b(?:reporting|experiencing|patient reports|complaining of|having) ([a-z][a-z -]*?) pain\b`), true, true},
		{regexp.MustCompile(`(?i)\b(?:i've|i have|ive) been (?:experiencing|having|feeling|suffering from) ([^.,!?\n]+)`), false, false},
		{regexp.MustCompile(`(?i)\bpain in (?:my|the|his|her) ((?:(?:lower|upper|left|right|middle) )?[a-z]+)`), true, true},
		{regexp.MustCompile(`(?i)\bmy ([a-z]+(?: [a-z]+)?) (?:hurts|aches|is hurting|is aching|is sore|is painful)\b`), true, true},
	}

	severityPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)severity\s*[:=]\s*["']?([^"',.;}\n]+)`),
		regexp.MustCompile(`(?i)\b(\d{1,2})\s*(?:out of|/)\s*10\b`),
		regexp.MustCompile(`(?i)pain level[^\d\n]{0,20}(\d{1,2})`),
	}

	durationQuoted = regexp.MustCompile(`(?i)duration\s*[:=]\s*["']([^"']+)["']`)
	durationSpoken = regexp.MustCompile(`(?i)\b(?:for|since) (?:the past |the last |about |approximately |around |almost |nearly |over )?(\d+|an?|one|two|three|four|five|six|seven|eight|nine|ten|a few|few|several|couple of) (days?|weeks?|months?|years?)\b`)

	constantPattern     = regexp.MustCompile(`(?i)\b(?:constant|constantly|all the time|continuous|non-stop)\b`)
	intermittentPattern = regexp.MustCompile(`(?i)\b(?:intermittent|comes and goes|on and off|off and on|occasionally|sometimes)\b`)

	movementPattern = regexp.MustCompile(`(?i)\b((?:worse|better|worsens|improves|hurts more|hurts less|painful) (?:when|while|after|with|during|if) [^.,!?\n]+)`)

	negationPattern = regexp.MustCompile(`(?i)\b(?:no|not|never|don't|dont|doesn't|didn't|haven't|hasn't|isn't|aren't|without)\b`)
	questionLead    = regexp.MustCompile(`(?i)^(?:do|does|did|can|could|would|will|shall|should|is|are|was|were|what|where|when|which|how|who|why|may)\b`)
)

type symptomPattern struct {
	re         *regexp.Regexp
	painSuffix bool
	location   bool
}

// stopPhrases are captures that look like complaints but are not.
var stopPhrases = []string{
	"a question", "an appointment", "appointment", "a booking", "booking",
	"some questions", "questions", "anything", "nothing", "any", "that", "this", "it",
}

// phraseCutoffs end a complaint phrase before trailing detail.
var phraseCutoffs = []string{" for ", " since ", " when ", " while ", " and ", " which ", " that ", " is ", " after "}

type option struct {
	label   string
	pattern *regexp.Regexp
	extra   map[string]string
}

func wordOption(label, expr string, extra map[string]string) option {
	return option{label: label, pattern: regexp.MustCompile(`(?i)\b(?:` + expr + `)\b`), extra: extra}
}

var (
	consultationTypeOptions = []option{
		wordOption(ConsultationOnline, `online consultation`, nil),
		wordOption(ConsultationInPerson, `in-person consultation|in person consultation`, nil),
	}
	cityOptions = []option{
		wordOption("Bangalore", `bangalore|bengaluru`, nil),
		wordOption("Hyderabad", `hyderabad`, nil),
	}
	centerOptions = []option{
		wordOption("Indiranagar", `indiranagar|indira nagar`, nil),
		wordOption("Whitefield", `whitefield`, nil),
		wordOption("Banjara Hills", `banjara hills`, nil),
		wordOption("Madhapur", `madhapur`, nil),
	}
	weekOptions = []option{
		wordOption("this week", `this week`, nil),
		wordOption("next week", `next week`, nil),
	}
	dayOptions = []option{
		wordOption("Monday", `monday`, map[string]string{consultation.KeySelectedDay: "mon"}),
		wordOption("Tuesday", `tuesday`, map[string]string{consultation.KeySelectedDay: "tue"}),
		wordOption("Wednesday", `wednesday`, map[string]string{consultation.KeySelectedDay: "wed"}),
		wordOption("Thursday", `thursday`, map[string]string{consultation.KeySelectedDay: "thu"}),
		wordOption("Friday", `friday`, map[string]string{consultation.KeySelectedDay: "fri"}),
		wordOption("Saturday", `saturday`, map[string]string{consultation.KeySelectedDay: "sat"}),
	}
)

// sentence is one fragment of a transcript with its terminator.
type sentence struct {
	text     string
	question bool
}

// splitSentences breaks text on sentence terminators. A fragment is a
// question when it ends in "?", opens with a question word, or is a
// parenthesised option list right after a question.
func splitSentences(text string) []sentence {
	var (
		out   []sentence
		start int
	)
	emit := func(end int, term byte) {
		frag := strings.TrimSpace(text[start:end])
		start = end + 1
		if frag == "" {
			return
		}
		q := term == '?' || questionLead.MatchString(frag)
		if !q && strings.HasPrefix(frag, "(") && len(out) > 0 && out[len(out)-1].question {
			q = true
		}
		out = append(out, sentence{text: frag, question: q})
	}
	for i := 0; i < len(text); i++ {
		switch c := text[i]; c {
		case '?', '!', '\n':
			emit(i, c)
		case '.':
			// Keep "Dr. Rao" and decimals inside one sentence.
			if i+1 < len(text) && text[i+1] != ' ' && text[i+1] != '\n' {
				continue
			}
			if i >= 2 && strings.EqualFold(text[i-2:i], "dr") {
				continue
			}
			emit(i, c)
		}
	}
	if start < len(text) {
		emit(len(text), 0)
	}
	return out
}

func statements(text string) []string {
	var out []string
	for _, s := range splitSentences(text) {
		if !s.question {
			out = append(out, s.text)
		}
	}
	return out
}

// chooseOption returns the first option, in table order, named by the first
// statement that names any. Questions are ignored so offered choices are
// not mistaken for answers.
func chooseOption(text string, options []option) (option, bool) {
	for _, s := range statements(text) {
		for _, opt := range options {
			if opt.pattern.MatchString(s) {
				return opt, true
			}
		}
	}
	return option{}, false
}

func optionStrategy(name string, options []option, keys ...string) Strategy {
	return NewStrategy(name, func(text string) (consultation.Update, bool) {
		opt, ok := chooseOption(text, options)
		if !ok {
			return consultation.Update{}, false
		}
		var u consultation.Update
		for _, key := range keys {
			u.SetAppointment(key, opt.label)
		}
		for key, value := range opt.extra {
			u.SetAppointment(key, value)
		}
		return u, true
	})
}

func firstSubmatch(text string, patterns []*regexp.Regexp) string {
	for _, re := range patterns {
		if m := re.FindStringSubmatch(text); m != nil {
			if v := strings.TrimSpace(m[1]); v != "" {
				return v
			}
		}
	}
	return ""
}

func trimLink(link string) string {
	return strings.TrimRight(link, ".,;:)]}\"'")
}

func spokenSlots(text string) (consultation.Update, bool) {
	loc := spokenSlotsMarker.FindStringIndex(text)
	if loc == nil {
		return consultation.Update{}, false
	}
	rest := text[loc[1]:]
	if end := strings.IndexAny(rest, ".?"); end >= 0 {
		rest = rest[:end]
	}
	slots := slotTimePattern.FindAllString(rest, -1)
	if len(slots) == 0 {
		return consultation.Update{}, false
	}
	var u consultation.Update
	u.SetAppointment(consultation.KeyAvailableSlots, slots)
	return u, true
}

func selectedSlot(text string) (consultation.Update, bool) {
	slot := firstSubmatch(text, selectedSlotPatterns)
	if slot == "" {
		return consultation.Update{}, false
	}
	var u consultation.Update
	u.SetAppointment(consultation.KeySelectedTime, slot)
	if start := StartTimeFromSlot(slot); start != "" {
		u.SetAppointment(consultation.KeyStartTime, start)
	}
	return u, true
}

func patientName(text string) (consultation.Update, bool) {
	name := firstSubmatch(text, namePatterns)
	if name == "" {
		return consultation.Update{}, false
	}
	var u consultation.Update
	u.SetAppointment(consultation.KeyPatientName, name)
	return u, true
}

func mobileNumber(text string) (consultation.Update, bool) {
	m := mobilePattern.FindStringSubmatch(text)
	if m == nil {
		return consultation.Update{}, false
	}
	var u consultation.Update
	u.SetAppointment(consultation.KeyMobileNumber, m[1])
	return u, true
}

// bookingConfirmation detects a confirmed booking and whatever details were
// read out with it. A payment link mention with a short link also counts.
func bookingConfirmation(text string) (consultation.Update, bool) {
	lower := strings.ToLower(text)
	confirmed := false
	for _, marker := range confirmationMarkers {
		if strings.Contains(lower, marker) {
			confirmed = true
			break
		}
	}

	link := ""
	if m := shortLinkPattern.FindStringSubmatch(text); m != nil {
		link = trimLink(m[1])
	} else if m := paymentLinkPattern.FindStringSubmatch(text); m != nil {
		link = trimLink(m[1])
	}
	if !confirmed && strings.Contains(lower, "payment link") && shortLinkPattern.MatchString(text) {
		confirmed = true
	}
	if !confirmed {
		return consultation.Update{}, false
	}

	var u consultation.Update
	u.SetAppointment(consultation.KeyStatus, consultation.AppointmentConfirmed)
	if id := firstSubmatch(text, bookingIDPatterns); id != "" {
		u.SetAppointment(consultation.KeyID, id)
	}
	if doctor := firstSubmatch(text, doctorPatterns); doctor != "" {
		u.SetAppointment(consultation.KeyDoctor, doctor)
	}
	if link != "" {
		u.SetAppointment(consultation.KeyPaymentLink, link)
	}
	return u, true
}

// splitComplaints separates complaints joined by "and", as in "knee pain
// and back pain".
func splitComplaints(capture string) []string {
	var parts []string
	rest := capture
	for {
		idx := strings.Index(strings.ToLower(rest), " and ")
		if idx < 0 {
			return append(parts, rest)
		}
		parts = append(parts, rest[:idx])
		rest = rest[idx+len(" and "):]
	}
}

func cleanComplaint(phrase string) string {
	phrase = strings.TrimSpace(phrase)
	lower := strings.ToLower(phrase)
	for _, cut := range phraseCutoffs {
		// The padding catches a cutoff word captured at the very end.
		if idx := strings.Index(lower+" ", cut); idx > 0 {
			phrase = phrase[:idx]
			lower = lower[:idx]
		}
	}
	for _, article := range []string{"a ", "an ", "some ", "the "} {
		if strings.HasPrefix(lower, article) {
			phrase = phrase[len(article):]
			lower = lower[len(article):]
		}
	}
	return strings.TrimSpace(phrase)
}

func isStopPhrase(phrase string) bool {
	lower := strings.ToLower(strings.TrimSpace(phrase))
	if lower == "" {
		return true
	}
	for _, stop := range stopPhrases {
		if lower == stop || strings.HasPrefix(lower, stop+" ") {
			return true
		}
	}
	return false
}

// SymptomDetails finds severity, duration, pattern and movement impact in
// text. Unset fields are left blank.
func SymptomDetails(text string) consultation.Symptom {
	var d consultation.Symptom
	for i, re := range severityPatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			value := strings.TrimSpace(m[1])
			if i > 0 {
				value += "/10"
			}
			d.Severity = value
			break
		}
	}
	if m := durationQuoted.FindStringSubmatch(text); m != nil {
		d.Duration = strings.TrimSpace(m[1])
	} else if m := durationSpoken.FindStringSubmatch(text); m != nil {
		d.Duration = fmt.Sprintf("%s %s", strings.ToLower(m[1]), strings.ToLower(m[2]))
	}
	switch {
	case constantPattern.MatchString(text):
		d.Pattern = "Constant"
	case intermittentPattern.MatchString(text):
		d.Pattern = "Intermittent"
	}
	if m := movementPattern.FindStringSubmatch(text); m != nil {
		d.MovementImpact = strings.TrimSpace(m[1])
	}
	return d
}

func hasDetails(d consultation.Symptom) bool {
	return d.Severity != "" || d.Duration != "" || d.Pattern != "" || d.MovementImpact != ""
}

// freeTextSymptoms finds complaints in statements that are neither negated
// nor questions, and attaches details found anywhere in the text.
func freeTextSymptoms(text string) (consultation.Update, bool) {
	var found []consultation.Symptom
	seen := map[string]bool{}
	add := func(sym consultation.Symptom) {
		key := sym.Key()
		if key == "" || seen[key] {
			return
		}
		seen[key] = true
		found = append(found, sym)
	}

	for _, re := range quotedSymptomPatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			if phrase := strings.TrimSpace(m[1]); !isStopPhrase(phrase) {
				add(consultation.Symptom{Symptom: phrase})
			}
		}
	}

	for _, s := range statements(text) {
		if negationPattern.MatchString(s) {
			continue
		}
		for _, p := range symptomPhrasePatterns {
			m := p.re.FindStringSubmatch(s)
			if m == nil {
				continue
			}
			for _, part := range splitComplaints(m[1]) {
				phrase := cleanComplaint(part)
				if isStopPhrase(phrase) {
					continue
				}
				sym := consultation.Symptom{Symptom: phrase}
				if p.painSuffix && !strings.HasSuffix(strings.ToLower(phrase), "pain") {
					sym.Symptom = phrase + " pain"
				}
				if p.location {
					sym.Location = phrase
				}
				add(sym)
			}
		}
	}

	if len(found) == 0 {
		return consultation.Update{}, false
	}
	details := SymptomDetails(text)
	for i := range found {
		found[i] = fillDetails(found[i], details)
	}
	return consultation.Update{Symptoms: found, AssessmentStatus: consultation.StatusInProgress}, true
}

func fillDetails(sym, details consultation.Symptom) consultation.Symptom {
	if sym.Severity == "" {
		sym.Severity = details.Severity
	}
	if sym.Duration == "" {
		sym.Duration = details.Duration
	}
	if sym.Pattern == "" {
		sym.Pattern = details.Pattern
	}
	if sym.MovementImpact == "" {
		sym.MovementImpact = details.MovementImpact
	}
	return sym
}

// symptomFollowUp captures details said without naming the complaint, such
// as "about a 7 out of 10". They are applied to the latest symptom.
func symptomFollowUp(text string) (consultation.Update, bool) {
	var details consultation.Symptom
	for _, s := range statements(text) {
		details = fillDetails(details, SymptomDetails(s))
	}
	if !hasDetails(details) {
		return consultation.Update{}, false
	}
	return consultation.Update{Details: &details}, true
}
