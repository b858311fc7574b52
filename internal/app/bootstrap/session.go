package bootstrap

import (
	"strings"

	"github.com/wolfman30/physio-voice-agent/internal/appointments"
	appconfig "github.com/wolfman30/physio-voice-agent/internal/config"
	"github.com/wolfman30/physio-voice-agent/internal/notify"
	"github.com/wolfman30/physio-voice-agent/internal/session"
	"github.com/wolfman30/physio-voice-agent/internal/tools"
	"github.com/wolfman30/physio-voice-agent/internal/voice"
	"github.com/wolfman30/physio-voice-agent/pkg/logging"
)

// BuildSessionController wires the session controller from configuration.
// Without a voice API key no calls are created and every session must carry
// its own join URL.
func BuildSessionController(cfg *appconfig.Config, bus notify.Bus, sender notify.EmailSender, metrics session.Metrics, logger *logging.Logger) *session.Controller {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg == nil {
		cfg = &appconfig.Config{}
	}

	var calls voice.CallCreator
	if strings.TrimSpace(cfg.VoiceAPIKey) != "" {
		calls = voice.NewClient(voice.Options{
			BaseURL: cfg.VoiceAPIBaseURL,
			APIKey:  cfg.VoiceAPIKey,
			Timeout: cfg.VoiceTimeout,
		}, logger)
	} else {
		logger.Warn("voice api key not set, sessions need a join url")
	}

	stage := tools.DefaultStageSettings()
	if v := strings.TrimSpace(cfg.StageVoice); v != "" {
		stage.Voice = v
	}
	if cfg.StageTemperature > 0 {
		stage.Temperature = cfg.StageTemperature
	}
	if v := strings.TrimSpace(cfg.StageLanguageHint); v != "" {
		stage.LanguageHint = v
	}

	durable := tools.DurableTools{SlotToolID: cfg.SlotToolID, BookingToolID: cfg.BookingToolID}
	if durable.SlotToolID == "" {
		durable.SlotToolID = tools.DefaultSlotToolID
	}
	if durable.BookingToolID == "" {
		durable.BookingToolID = tools.DefaultBookingToolID
	}

	var confirmer session.BookingConfirmer
	if sender != nil {
		confirmer = notify.NewConfirmer(sender, logger)
	}

	return session.NewController(session.Config{
		Appointments: appointments.NewClient(appointments.Options{
			BaseURL:       cfg.AppointmentsBaseURL,
			Timeout:       cfg.AppointmentsTimeout,
			PhoneOverride: cfg.AppointmentsPhoneOverride,
		}, logger),
		Calls:     calls,
		Bus:       bus,
		Confirmer: confirmer,
		Call: session.CallSettings{
			Model: cfg.VoiceModel,
			Voice: cfg.VoiceName,
			Title: cfg.VoiceCallTitle,
		},
		Stage:      stage,
		Durable:    durable,
		ServerLink: cfg.UsesServerVoiceLink(),
		Metrics:    metrics,
		Logger:     logger,
	})
}
