// Rule migration [JobAPI] implementation over HTTP
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/desertthunder/rulemig/internal/models"
	"github.com/desertthunder/rulemig/internal/shared"
	"golang.org/x/oauth2"
)

const (
	defaultBaseURL string = "http://localhost:5601"
	defaultSpaceID string = "default"
	rulesPath      string = "/internal/siem_migrations/rules"
	apiKeyType     string = "ApiKey"
)

// APIError is a non-2xx response from the migration service.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("migration API error: status %d", e.StatusCode)
	}
	return fmt.Sprintf("migration API error (status %d): %s", e.StatusCode, e.Message)
}

// Unwrap lets callers match any API failure with [shared.ErrAPIRequest].
func (e *APIError) Unwrap() error { return shared.ErrAPIRequest }

// Is reports 404 responses as [shared.ErrMigrationNotFound].
func (e *APIError) Is(target error) bool {
	return target == shared.ErrMigrationNotFound && e.StatusCode == http.StatusNotFound
}

// MigrationServiceOpts contains configuration options for creating a MigrationService.
type MigrationServiceOpts struct {
	BaseURL    string
	SpaceID    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// MigrationService implements [JobAPI] against the HTTP migration service.
type MigrationService struct {
	baseURL    string
	spaceID    string
	httpClient *http.Client
}

// NewMigrationService creates a new MigrationService.
//
// When an API key is set the client is wrapped so that every request carries it.
func NewMigrationService(opts MigrationServiceOpts) *MigrationService {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.SpaceID == "" {
		opts.SpaceID = defaultSpaceID
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	client := opts.HTTPClient
	if opts.APIKey != "" {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, opts.HTTPClient)
		client = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: opts.APIKey,
			TokenType:   apiKeyType,
		}))
	}
	if opts.Timeout > 0 {
		timed := *client
		timed.Timeout = opts.Timeout
		client = &timed
	}

	return &MigrationService{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		spaceID:    opts.SpaceID,
		httpClient: client,
	}
}

// SpaceID returns the space migrations are scoped to.
func (s *MigrationService) SpaceID() string {
	return s.spaceID
}

type rulesBody struct {
	Rules []models.RuleDescriptor `json:"rules"`
}

type startBody struct {
	Settings         models.StartSettings   `json:"settings"`
	Retry            models.RetryFilter     `json:"retry,omitempty"`
	LangSmithOptions *models.TracingOptions `json:"langsmith_options,omitempty"`
}

// CreateJob creates a migration with the first chunk of rules.
//
// Calls POST /internal/siem_migrations/rules.
func (s *MigrationService) CreateJob(ctx context.Context, chunk []models.RuleDescriptor) (string, error) {
	var resp struct {
		MigrationID string `json:"migration_id"`
	}
	if err := s.doRequest(ctx, http.MethodPost, rulesPath, rulesBody{Rules: chunk}, &resp); err != nil {
		return "", err
	}
	if resp.MigrationID == "" {
		return "", fmt.Errorf("%w: create response has no migration_id", shared.ErrAPIRequest)
	}
	return resp.MigrationID, nil
}

// AddToJob appends rules to a migration.
//
// Calls POST /internal/siem_migrations/rules/{id}/rules.
func (s *MigrationService) AddToJob(ctx context.Context, jobID string, chunk []models.RuleDescriptor) error {
	return s.doRequest(ctx, http.MethodPost, migrationPath(jobID, "rules"), rulesBody{Rules: chunk}, nil)
}

// StartJob starts a migration with the given settings.
//
// Calls POST /internal/siem_migrations/rules/{id}/start.
func (s *MigrationService) StartJob(ctx context.Context, req models.StartRequest) (bool, error) {
	body := startBody{
		Settings:         req.Settings,
		Retry:            req.Retry,
		LangSmithOptions: req.Tracing,
	}

	var resp struct {
		Started bool `json:"started"`
	}
	if err := s.doRequest(ctx, http.MethodPost, migrationPath(req.JobID, "start"), body, &resp); err != nil {
		return false, err
	}
	return resp.Started, nil
}

// StopJob stops a running migration.
//
// Calls POST /internal/siem_migrations/rules/{id}/stop.
func (s *MigrationService) StopJob(ctx context.Context, jobID string) (bool, error) {
	var resp struct {
		Stopped bool `json:"stopped"`
	}
	if err := s.doRequest(ctx, http.MethodPost, migrationPath(jobID, "stop"), nil, &resp); err != nil {
		return false, err
	}
	return resp.Stopped, nil
}

// ListAllJobStats retrieves the stats of every migration in the space.
//
// Calls GET /internal/siem_migrations/rules/stats.
func (s *MigrationService) ListAllJobStats(ctx context.Context) ([]models.Job, error) {
	var jobs []models.Job
	if err := s.doRequest(ctx, http.MethodGet, rulesPath+"/stats", nil, &jobs); err != nil {
		return nil, err
	}
	if jobs == nil {
		jobs = []models.Job{}
	}
	return jobs, nil
}

func migrationPath(jobID, action string) string {
	return rulesPath + "/" + url.PathEscape(jobID) + "/" + action
}

// spacePrefix returns the path prefix selecting the configured space.
func (s *MigrationService) spacePrefix() string {
	if s.spaceID == defaultSpaceID {
		return ""
	}
	return "/s/" + url.PathEscape(s.spaceID)
}

func (s *MigrationService) doRequest(ctx context.Context, method, endpoint string, body, result any) error {
	apiURL := s.baseURL + s.spacePrefix() + endpoint

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%w: failed to encode request: %v", shared.ErrAPIRequest, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, apiURL, reader)
	if err != nil {
		return fmt.Errorf("%w: failed to create request: %w", shared.ErrAPIRequest, err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method != http.MethodGet {
		req.Header.Set("kbn-xsrf", "true")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: request failed: %w", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read response: %w", shared.ErrAPIRequest, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp.StatusCode, data)
	}

	if result != nil && len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, result); err != nil {
			return fmt.Errorf("%w: failed to decode response: %w", shared.ErrAPIRequest, err)
		}
	}
	return nil
}

// decodeAPIError reads the Kibana error envelope ({"statusCode","error","message"}) when present.
func decodeAPIError(status int, data []byte) error {
	var envelope struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	apiErr := &APIError{StatusCode: status}
	if err := json.Unmarshal(data, &envelope); err == nil {
		apiErr.Message = envelope.Message
		if apiErr.Message == "" {
			apiErr.Message = envelope.Error
		}
	}
	return apiErr
}

// IsAPIError reports whether err carries an [*APIError] with the given status code.
func IsAPIError(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}
