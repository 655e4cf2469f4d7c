// Package metrika implements the HTTP client for the Yandex Metrika Logs
// API: counter lookup, export evaluation, job submission, status polling and
// part download.
package metrika

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"metrika-etl/internal/domain"
)

var _ domain.LogsAPI = (*Client)(nil)

// Config holds the client construction parameters.
type Config struct {
	BaseURL        string  // e.g. https://api-metrika.yandex.ru
	Token          string  // OAuth token, sent as Authorization: OAuth <token>
	RateLimitRPS   float64 // sustained requests per second, 0 disables limiting
	RateLimitBurst int
	Timeout        time.Duration // per-request timeout, 0 uses a 5m default
}

// Client is an authenticated, client-side rate-limited Logs API client. It is
// safe for concurrent use; all sub-pipelines share one instance.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewClient creates a Logs API client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Minute
	}
	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		burst := cfg.RateLimitBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), burst)
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    limiter,
		logger:     logger.With("component", "metrika"),
	}
}

// APIError is a non-2xx Logs API response that does not map onto the
// pipeline error taxonomy. Callers inspect StatusCode to classify it.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("logs api: status %d: %s", e.StatusCode, e.Message)
}

// ClientError reports whether the response was a 4xx rejection.
func (e *APIError) ClientError() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// SortFields returns the field list in the case-insensitive order the API
// expects in request URLs. The same order is used for download header
// validation, so submission order and wire order always agree.
func SortFields(fields []string) []string {
	out := append([]string(nil), fields...)
	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i]) < strings.ToLower(out[j])
	})
	return out
}

// CounterName fetches the counter's display name.
func (c *Client) CounterName(ctx context.Context, counterID int64) (string, error) {
	var resp struct {
		Counter struct {
			Name string `json:"name"`
		} `json:"counter"`
	}
	path := fmt.Sprintf("/management/v1/counter/%d", counterID)
	if err := c.getJSON(ctx, counterID, path, nil, &resp); err != nil {
		return "", err
	}
	return resp.Counter.Name, nil
}

// Evaluate checks whether an export is possible for the given parameters.
func (c *Client) Evaluate(ctx context.Context, counterID int64, kind domain.SourceKind, dateFrom, dateTo string, fields []string) (domain.Evaluation, error) {
	var resp struct {
		Evaluation struct {
			Possible     bool  `json:"possible"`
			ExpectedSize int64 `json:"expected_size"`
		} `json:"log_request_evaluation"`
	}
	path := fmt.Sprintf("/management/v1/counter/%d/logrequests/evaluate", counterID)
	if err := c.getJSON(ctx, counterID, path, exportParams(kind, dateFrom, dateTo, fields), &resp); err != nil {
		return domain.Evaluation{}, err
	}
	return domain.Evaluation{
		Possible:     resp.Evaluation.Possible,
		ExpectedSize: resp.Evaluation.ExpectedSize,
	}, nil
}

// CreateExport submits an export job. Fields are sorted into submission
// order; the returned job records that order in RequestedFields.
func (c *Client) CreateExport(ctx context.Context, counterID int64, kind domain.SourceKind, dateFrom, dateTo string, fields []string) (domain.ExportJob, error) {
	sorted := SortFields(fields)

	path := fmt.Sprintf("/management/v1/counter/%d/logrequests", counterID)
	u := c.baseURL + path + "?" + exportParams(kind, dateFrom, dateTo, sorted).Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return domain.ExportJob{}, fmt.Errorf("create export request: %w", err)
	}

	var resp struct {
		LogRequest logRequest `json:"log_request"`
	}
	if err := c.do(req, counterID, &resp); err != nil {
		return domain.ExportJob{}, err
	}

	c.logger.Info("export job submitted",
		"counter", counterID,
		"source", kind,
		"request_id", resp.LogRequest.RequestID,
	)
	return domain.ExportJob{
		RequestID:       resp.LogRequest.RequestID,
		CounterID:       counterID,
		Kind:            kind,
		DateFrom:        dateFrom,
		DateTo:          dateTo,
		RequestedFields: sorted,
		Status:          domain.JobStatus(resp.LogRequest.Status),
	}, nil
}

// ExportStatus fetches a job's current status and part list.
func (c *Client) ExportStatus(ctx context.Context, counterID, requestID int64) (domain.JobStatus, []domain.PartRef, error) {
	var resp struct {
		LogRequest logRequest `json:"log_request"`
	}
	path := fmt.Sprintf("/management/v1/counter/%d/logrequest/%d", counterID, requestID)
	if err := c.getJSON(ctx, counterID, path, nil, &resp); err != nil {
		return "", nil, err
	}

	parts := make([]domain.PartRef, len(resp.LogRequest.Parts))
	for i, p := range resp.LogRequest.Parts {
		parts[i] = domain.PartRef{Number: p.PartNumber, Size: p.Size}
	}
	return domain.JobStatus(resp.LogRequest.Status), parts, nil
}

// DownloadPart fetches one part's raw TSV payload.
func (c *Client) DownloadPart(ctx context.Context, counterID, requestID int64, part int) ([]byte, error) {
	path := fmt.Sprintf("/management/v1/counter/%d/logrequest/%d/part/%d/download", counterID, requestID, part)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create download request: %w", err)
	}

	body, err := c.doRaw(req, counterID)
	if err != nil {
		return nil, err
	}
	return body, nil
}

type logRequest struct {
	RequestID int64  `json:"request_id"`
	Status    string `json:"status"`
	Parts     []struct {
		PartNumber int   `json:"part_number"`
		Size       int64 `json:"size"`
	} `json:"parts"`
}

func exportParams(kind domain.SourceKind, dateFrom, dateTo string, fields []string) url.Values {
	return url.Values{
		"date1":  {dateFrom},
		"date2":  {dateTo},
		"source": {string(kind)},
		"fields": {strings.Join(SortFields(fields), ",")},
	}
}

func (c *Client) getJSON(ctx context.Context, counterID int64, path string, params url.Values, out any) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return c.do(req, counterID, out)
}

func (c *Client) do(req *http.Request, counterID int64, out any) error {
	body, err := c.doRaw(req, counterID)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode logs api response: %w", err)
	}
	return nil
}

func (c *Client) doRaw(req *http.Request, counterID int64) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	req.Header.Set("Authorization", "OAuth "+c.token)
	req.Header.Set("Content-Type", "application/x-yametrika+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("logs api request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read logs api response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(resp.StatusCode, body, counterID)
	}
	return body, nil
}

// statusError maps HTTP failures onto the error taxonomy where the meaning
// is unambiguous; everything else becomes an APIError for the caller to
// classify.
func (c *Client) statusError(status int, body []byte, counterID int64) error {
	msg := errorMessage(body)
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return domain.ErrAuth("credential rejected (status %d): %s", status, msg)
	case http.StatusNotFound:
		return domain.ErrCounterNotFound("counter %d not found: %s", counterID, msg)
	}
	return &APIError{StatusCode: status, Message: msg}
}

// errorMessage extracts the human-readable message from a Logs API error
// body, falling back to the raw body.
func errorMessage(body []byte) string {
	var e struct {
		Message string `json:"message"`
		Errors  []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(body, &e); err == nil {
		if len(e.Errors) > 0 && e.Errors[0].Message != "" {
			return e.Errors[0].Message
		}
		if e.Message != "" {
			return e.Message
		}
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
