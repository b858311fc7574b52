package appointments

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wolfman30/physio-voice-agent/pkg/logging"
)

const defaultTimeout = 10 * time.Second

// Upcoming is one future appointment returned by the clinic backend.
type Upcoming struct {
	DoctorName         string `json:"doctor_name"`
	FormattedStartDate string `json:"formatted_startdate"`
	Time               string `json:"time"`
	ConsultationType   string `json:"consultation_type"`
	AppointmentStage   string `json:"appointment_stage"`
}

type lookupResponse struct {
	UpcomingAppointments []Upcoming `json:"upcoming_appointments"`
}

// Lookup is the read side the session controller depends on.
type Lookup interface {
	Upcoming(ctx context.Context, phone string) ([]Upcoming, error)
}

// Client queries the appointments REST backend by phone number.
type Client struct {
	baseURL       string
	phoneOverride string
	httpClient    *http.Client
	logger        *logging.Logger
}

// Options configures a Client.
type Options struct {
	BaseURL string
	Timeout time.Duration
	// PhoneOverride pins every lookup to one number. Used on demo backends
	// that only hold fixtures for a single patient.
	PhoneOverride string
}

// NewClient creates an appointments client.
func NewClient(opts Options, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.Default()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:       strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		phoneOverride: strings.TrimSpace(opts.PhoneOverride),
		httpClient:    &http.Client{Timeout: timeout},
		logger:        logger,
	}
}

// Upcoming returns the patient's upcoming appointments. An absent list in the
// response is treated as none.
func (c *Client) Upcoming(ctx context.Context, phone string) ([]Upcoming, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("appointments: missing base url")
	}
	phone = NormalizePhone(phone)
	if c.phoneOverride != "" {
		phone = c.phoneOverride
	}
	if phone == "" {
		return nil, fmt.Errorf("appointments: missing phone number")
	}

	endpoint := c.baseURL + "/appointment/?" + url.Values{"phone_number": {phone}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("appointments: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("appointments: http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("appointments: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := string(body)
		if len(msg) > 300 {
			msg = msg[:300]
		}
		return nil, fmt.Errorf("appointments: status %d: %s", resp.StatusCode, msg)
	}

	var out lookupResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("appointments: decode response: %w", err)
	}
	c.logger.Debug("appointments fetched", "count", len(out.UpcomingAppointments))
	if out.UpcomingAppointments == nil {
		return []Upcoming{}, nil
	}
	return out.UpcomingAppointments, nil
}

// NormalizePhone keeps the last ten digits of a phone number, which is the
// form the backend indexes on.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) > 10 {
		digits = digits[len(digits)-10:]
	}
	return digits
}
