package appointments

import (
	"fmt"
	"strings"
)

const (
	// NoneMessage is spoken when the lookup succeeded but found nothing.
	NoneMessage = "You don't have any upcoming appointments scheduled."
	// LookupFailedMessage is spoken when the backend could not be reached.
	LookupFailedMessage = "I apologize, but I'm having trouble checking your appointments right now."
)

// Summarize renders upcoming appointments as one spoken sentence list.
func Summarize(appts []Upcoming) string {
	if len(appts) == 0 {
		return NoneMessage
	}
	parts := make([]string, 0, len(appts))
	for _, a := range appts {
		parts = append(parts, fmt.Sprintf("You have an appointment scheduled for %s at %s with %s",
			a.FormattedStartDate, a.Time, a.DoctorName))
	}
	return strings.Join(parts, ". ")
}
