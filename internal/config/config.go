package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int
	ShutdownTimeout    time.Duration

	// Appointments backend (upcoming appointment lookup by phone).
	AppointmentsBaseURL       string
	AppointmentsTimeout       time.Duration
	AppointmentsPhoneOverride string

	// Voice platform call creation and data link.
	VoiceAPIBaseURL string
	VoiceAPIKey     string
	VoiceModel      string
	VoiceName       string
	VoiceCallTitle  string
	VoiceMedium     string // "browser" or "server_websocket"
	VoiceTimeout    time.Duration

	// Stage directive overrides applied on changeStage.
	StageVoice        string
	StageTemperature  float64
	StageLanguageHint string

	// Durable tool ids registered on the voice platform.
	SlotToolID    string
	BookingToolID string

	// Notification fan-out. "memory" keeps everything in-process.
	NotificationBus string
	RedisAddr       string
	RedisPassword   string
	RedisTLS        bool

	// Booking confirmation email. EmailProvider is "log", "sendgrid" or "ses".
	EmailProvider    string
	EmailFromAddress string
	EmailFromName    string
	SendGridAPIKey   string

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	MetricsEnabled bool
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		RateLimitRPS:       getEnvAsFloat("RATE_LIMIT_RPS", 10),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 20),
		ShutdownTimeout:    getEnvAsDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		AppointmentsBaseURL:       getEnv("APPOINTMENTS_BASE_URL", "https://api.physiotattva247.com"),
		AppointmentsTimeout:       getEnvAsDuration("APPOINTMENTS_TIMEOUT", 10*time.Second),
		AppointmentsPhoneOverride: getEnv("APPOINTMENTS_PHONE_OVERRIDE", ""),

		VoiceAPIBaseURL: getEnv("VOICE_API_BASE_URL", "https://api.ultravox.ai"),
		VoiceAPIKey:     getEnv("VOICE_API_KEY", ""),
		VoiceModel:      getEnv("VOICE_MODEL", "fixie-ai/ultravox-70B"),
		VoiceName:       getEnv("VOICE_NAME", "Monika-English-Indian"),
		VoiceCallTitle:  getEnv("VOICE_CALL_TITLE", "Physiotattva Virtual Consultation"),
		VoiceMedium:     strings.ToLower(getEnv("VOICE_MEDIUM", "browser")),
		VoiceTimeout:    getEnvAsDuration("VOICE_TIMEOUT", 15*time.Second),

		StageVoice:        getEnv("STAGE_VOICE", "Jessica"),
		StageTemperature:  getEnvAsFloat("STAGE_TEMPERATURE", 0.3),
		StageLanguageHint: getEnv("STAGE_LANGUAGE_HINT", "en"),

		SlotToolID:    getEnv("SLOT_TOOL_ID", "b12be5dc-46c7-41bc-be10-ef2eee906df8"),
		BookingToolID: getEnv("BOOKING_TOOL_ID", "9b4aac67-37d0-4f1d-888f-ead39702d206"),

		NotificationBus: strings.ToLower(getEnv("NOTIFICATION_BUS", "memory")),
		RedisAddr:       getEnv("REDIS_ADDR", ""),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		RedisTLS:        getEnvAsBool("REDIS_TLS", false),

		EmailProvider:    strings.ToLower(getEnv("EMAIL_PROVIDER", "log")),
		EmailFromAddress: getEnv("EMAIL_FROM_ADDRESS", ""),
		EmailFromName:    getEnv("EMAIL_FROM_NAME", "Physiotattva"),
		SendGridAPIKey:   getEnv("SENDGRID_API_KEY", ""),

		AWSRegion:           getEnv("AWS_REGION", "ap-south-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
	}
}

// UsesServerVoiceLink reports whether the service joins calls itself instead
// of relying on a browser-hosted SDK.
func (c *Config) UsesServerVoiceLink() bool {
	return c != nil && c.VoiceMedium == "server_websocket"
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma separated variable, dropping blanks.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
