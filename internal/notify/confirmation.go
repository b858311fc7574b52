package notify

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/wolfman30/physio-voice-agent/internal/consultation"
	"github.com/wolfman30/physio-voice-agent/pkg/logging"
)

// ErrNoRecipient is returned when a booking has no usable email address.
var ErrNoRecipient = errors.New("notify: no confirmation recipient")

// BookingSubject is the subject line of booking confirmation emails.
const BookingSubject = "Your Physiotattva appointment is confirmed"

// Confirmer emails booking confirmations to patients.
type Confirmer struct {
	sender EmailSender
	logger *logging.Logger
}

// NewConfirmer creates a Confirmer. A nil sender logs instead of sending.
func NewConfirmer(sender EmailSender, logger *logging.Logger) *Confirmer {
	if logger == nil {
		logger = logging.Default()
	}
	if sender == nil {
		sender = NewLogEmailSender(logger)
	}
	return &Confirmer{sender: sender, logger: logger}
}

// Confirm sends the confirmation for appt to the given address.
func (c *Confirmer) Confirm(ctx context.Context, to string, appt consultation.Appointment) error {
	msg, err := BookingConfirmationEmail(to, appt)
	if err != nil {
		return err
	}
	if err := c.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("notify: send booking confirmation: %w", err)
	}
	return nil
}

// BookingConfirmationEmail renders the confirmation. Fields the booking did
// not carry are left out.
func BookingConfirmationEmail(to string, appt consultation.Appointment) (EmailMessage, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(to))
	if err != nil {
		return EmailMessage{}, ErrNoRecipient
	}

	var b strings.Builder
	b.WriteString("Your appointment is confirmed.\n\n")
	for _, line := range []struct{ label, key string }{
		{"Doctor", consultation.KeyDoctor},
		{"Date", consultation.KeyDate},
		{"Time", consultation.KeyTime},
		{"Consultation", consultation.KeyConsultationType},
		{"Center", consultation.KeyCampus},
		{"Booking reference", consultation.KeyBookingID},
	} {
		if v := strings.TrimSpace(appt.String(line.key)); v != "" {
			fmt.Fprintf(&b, "%s: %s\n", line.label, v)
		}
	}
	if link := strings.TrimSpace(appt.String(consultation.KeyPaymentLink)); link != "" {
		fmt.Fprintf(&b, "\nComplete your payment here: %s\n", link)
	}

	return EmailMessage{
		To:        addr.Address,
		ToName:    strings.TrimSpace(appt.String(consultation.KeyPatientName)),
		Subject:   BookingSubject,
		Body:      b.String(),
		Reference: strings.TrimSpace(appt.String(consultation.KeyBookingID)),
	}, nil
}
