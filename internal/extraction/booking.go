package extraction

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/wolfman30/physio-voice-agent/internal/consultation"
)

// BookingResult is the booking tool's response.
type BookingResult struct {
	Success         bool             `json:"success"`
	AppointmentInfo *AppointmentInfo `json:"appointmentInfo"`
	Payment         *PaymentInfo     `json:"payment"`
}

// AppointmentInfo describes the booked appointment.
type AppointmentInfo struct {
	AppointedDoctor  string `json:"appointed_doctor"`
	CalculatedDate   string `json:"calculated_date"`
	StartDateTime    string `json:"startDateTime"`
	ConsultationType string `json:"consultation_type"`
}

// PaymentInfo carries the payment link for the booking.
type PaymentInfo struct {
	ShortURL    string `json:"short_url"`
	ReferenceID string `json:"reference_id"`
}

// ParseBookingResult decodes a booking response. Unsuccessful bookings and
// responses without appointment details are errors.
func ParseBookingResult(text string) (*BookingResult, error) {
	var out BookingResult
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return nil, fmt.Errorf("extraction: decode booking result: %w", err)
	}
	if !out.Success || out.AppointmentInfo == nil {
		return nil, fmt.Errorf("extraction: booking not successful")
	}
	return &out, nil
}

// StartTime splits the time out of "2024-06-10 09:00". A value without a
// space is returned unchanged.
func (b *AppointmentInfo) StartTime() string {
	if b == nil {
		return ""
	}
	value := strings.TrimSpace(b.StartDateTime)
	if _, after, ok := strings.Cut(value, " "); ok {
		return after
	}
	return value
}

// Update maps the booking onto appointment fields.
func (b *BookingResult) Update() consultation.Update {
	var u consultation.Update
	if b == nil || b.AppointmentInfo == nil {
		return u
	}
	info := b.AppointmentInfo
	u.SetAppointment(consultation.KeyDoctor, info.AppointedDoctor)
	u.SetAppointment(consultation.KeyStatus, consultation.AppointmentConfirmed)
	u.SetAppointment(consultation.KeyDate, info.CalculatedDate)
	u.SetAppointment(consultation.KeyTime, info.StartTime())
	u.SetAppointment(consultation.KeyConsultationType, info.ConsultationType)
	if b.Payment != nil {
		u.SetAppointment(consultation.KeyPaymentLink, b.Payment.ShortURL)
		u.SetAppointment(consultation.KeyBookingID, b.Payment.ReferenceID)
	}
	return u
}
