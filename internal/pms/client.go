// Package pms provides a direct client for clinic practice management
// systems that expose a session-based scheduling API. Sessions are scoped
// resources: callers must Close them on every exit path, since the vendor
// licenses concurrent sessions per site.
package pms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/brightpaw/vetdesk-ai-platform/pkg/logging"
)

const defaultTimeout = 15 * time.Second

// Credentials authenticate against a clinic's PMS site.
type Credentials struct {
	Username string
	Password string
	SiteID   string
}

// Patient is a PMS patient search result.
type Patient struct {
	ID        string `json:"id"`
	ClientID  string `json:"clientId"`
	Name      string `json:"name"`
	Species   string `json:"species"`
	OwnerName string `json:"ownerName"`
}

// AppointmentParams carries appointment creation data. For
// CreateAppointmentWithNewClient the Client*/Pet* fields describe the new
// client record; for CreateAppointment the PatientID/ClientID locate the
// existing one.
type AppointmentParams struct {
	PatientID   string `json:"patientId,omitempty"`
	ClientID    string `json:"clientId,omitempty"`
	ClientName  string `json:"clientName,omitempty"`
	ClientPhone string `json:"clientPhone,omitempty"`
	PetName     string `json:"petName,omitempty"`
	PetSpecies  string `json:"petSpecies,omitempty"`
	Date        string `json:"date"`      // "2006-01-02"
	StartTime   string `json:"startTime"` // "HH:MM:SS"
	EndTime     string `json:"endTime"`
	Reason      string `json:"reason,omitempty"`
	Provider    string `json:"provider,omitempty"`
}

// CreateResult is the outcome of an appointment creation call.
type CreateResult struct {
	Success       bool   `json:"success"`
	AppointmentID string `json:"appointmentId"`
	Message       string `json:"message"`
}

// Session is an authenticated PMS connection. Close releases the vendor
// session slot and must run on every exit path.
type Session interface {
	SearchPatients(ctx context.Context, query string, limit int) ([]Patient, error)
	CreateAppointment(ctx context.Context, params AppointmentParams) (*CreateResult, error)
	CreateAppointmentWithNewClient(ctx context.Context, params AppointmentParams) (*CreateResult, error)
	CancelAppointment(ctx context.Context, externalID, reason string) error
	Close() error
}

// Client opens PMS sessions.
type Client interface {
	Authenticate(ctx context.Context, creds Credentials) (Session, error)
}

// HTTPClient is the JSON-over-HTTP implementation of Client.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
	dryRun     bool
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithTimeout overrides the default request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *HTTPClient) {
		c.httpClient.Timeout = d
	}
}

// WithDryRun makes mutating calls log and return fake success without
// touching the vendor system.
func WithDryRun(dryRun bool) Option {
	return func(c *HTTPClient) {
		c.dryRun = dryRun
	}
}

// NewHTTPClient creates a PMS API client.
func NewHTTPClient(baseURL string, logger *logging.Logger, opts ...Option) *HTTPClient {
	if logger == nil {
		logger = logging.Default()
	}
	c := &HTTPClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Authenticate opens a session and returns a handle bound to its token.
func (c *HTTPClient) Authenticate(ctx context.Context, creds Credentials) (Session, error) {
	body := map[string]string{
		"username": creds.Username,
		"password": creds.Password,
		"siteId":   creds.SiteID,
	}
	var resp struct {
		Token     string `json:"token"`
		ExpiresIn int    `json:"expiresIn"`
	}
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/sessions", "", body, &resp); err != nil {
		return nil, fmt.Errorf("pms: authenticate: %w", err)
	}
	if resp.Token == "" {
		return nil, fmt.Errorf("pms: authenticate: empty session token")
	}
	return &httpSession{client: c, token: resp.Token}, nil
}

type httpSession struct {
	client *HTTPClient
	token  string
	closed bool
}

func (s *httpSession) SearchPatients(ctx context.Context, query string, limit int) ([]Patient, error) {
	if limit <= 0 {
		limit = 5
	}
	body := map[string]any{"query": query, "limit": limit}
	var resp struct {
		Patients []Patient `json:"patients"`
	}
	if err := s.client.doRequest(ctx, http.MethodPost, "/api/v1/patients/search", s.token, body, &resp); err != nil {
		return nil, fmt.Errorf("pms: search patients: %w", err)
	}
	if len(resp.Patients) > limit {
		resp.Patients = resp.Patients[:limit]
	}
	return resp.Patients, nil
}

func (s *httpSession) CreateAppointment(ctx context.Context, params AppointmentParams) (*CreateResult, error) {
	if s.client.dryRun {
		s.client.logger.Info("DRY RUN: would create PMS appointment",
			"patient_id", params.PatientID,
			"date", params.Date,
			"start", params.StartTime,
		)
		return &CreateResult{Success: true, AppointmentID: fmt.Sprintf("dry-run-%d", time.Now().UnixMilli()), Message: "DRY_RUN"}, nil
	}
	var resp CreateResult
	if err := s.client.doRequest(ctx, http.MethodPost, "/api/v1/appointments", s.token, params, &resp); err != nil {
		return nil, fmt.Errorf("pms: create appointment: %w", err)
	}
	return &resp, nil
}

func (s *httpSession) CreateAppointmentWithNewClient(ctx context.Context, params AppointmentParams) (*CreateResult, error) {
	if s.client.dryRun {
		s.client.logger.Info("DRY RUN: would create PMS appointment with new client",
			"client_name", params.ClientName,
			"pet_name", params.PetName,
			"date", params.Date,
		)
		return &CreateResult{Success: true, AppointmentID: fmt.Sprintf("dry-run-%d", time.Now().UnixMilli()), Message: "DRY_RUN"}, nil
	}
	var resp CreateResult
	if err := s.client.doRequest(ctx, http.MethodPost, "/api/v1/appointments/with-client", s.token, params, &resp); err != nil {
		return nil, fmt.Errorf("pms: create appointment with new client: %w", err)
	}
	return &resp, nil
}

func (s *httpSession) CancelAppointment(ctx context.Context, externalID, reason string) error {
	if s.client.dryRun {
		s.client.logger.Info("DRY RUN: would cancel PMS appointment", "external_id", externalID, "reason", reason)
		return nil
	}
	body := map[string]string{"reason": reason}
	path := fmt.Sprintf("/api/v1/appointments/%s/cancel", externalID)
	if err := s.client.doRequest(ctx, http.MethodPost, path, s.token, body, nil); err != nil {
		return fmt.Errorf("pms: cancel appointment %s: %w", externalID, err)
	}
	return nil
}

// Close releases the vendor session. Safe to call more than once.
func (s *httpSession) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.client.doRequest(ctx, http.MethodDelete, "/api/v1/sessions/current", s.token, nil, nil); err != nil {
		// A leaked vendor session expires on its own; log and move on.
		s.client.logger.Warn("pms: session close failed", "error", err)
		return nil
	}
	return nil
}

func (c *HTTPClient) doRequest(ctx context.Context, method, path, token string, body, result any) error {
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("pms API returned %d: %s", resp.StatusCode, string(respBody[:min(200, len(respBody))]))
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}
