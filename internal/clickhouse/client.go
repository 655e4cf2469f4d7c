// Package clickhouse implements the destination store client over the
// ClickHouse HTTP interface: DDL execution, bulk TSV inserts, ad-hoc
// queries and a version probe.
package clickhouse

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"metrika-etl/internal/domain"
	"metrika-etl/internal/tsv"
)

var _ domain.Destination = (*Client)(nil)

// Config holds the client construction parameters.
type Config struct {
	Host       string
	Port       int
	Secure     bool   // use HTTPS
	User       string // sent as X-ClickHouse-User
	Password   string // sent as X-ClickHouse-Key
	CACertPath string // optional CA bundle for TLS verification
	Timeout    time.Duration
}

// Client talks to ClickHouse over its HTTP interface. It is safe for
// concurrent use; sub-pipelines share one instance but never touch each
// other's tables.
type Client struct {
	baseURL    string
	user       string
	password   string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a ClickHouse HTTP client. When cfg.CACertPath is set the
// file is loaded as the trust store for server verification; otherwise the
// system roots are used.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	scheme := "http"
	if cfg.Secure {
		scheme = "https"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Minute
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
	}
	if cfg.CACertPath != "" {
		pem, err := os.ReadFile(cfg.CACertPath) //nolint:gosec // path comes from validated config
		if err != nil {
			return nil, fmt.Errorf("read CA bundle %s: %w", cfg.CACertPath, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("CA bundle %s: no certificates found", cfg.CACertPath)
		}
		transport.TLSClientConfig.RootCAs = pool
	}

	return &Client{
		baseURL:    fmt.Sprintf("%s://%s:%d", scheme, cfg.Host, cfg.Port),
		user:       cfg.User,
		password:   cfg.Password,
		httpClient: &http.Client{Timeout: timeout, Transport: transport},
		logger:     logger.With("component", "clickhouse"),
	}, nil
}

// Ping probes the server and returns its version string.
func (c *Client) Ping(ctx context.Context) (string, error) {
	body, err := c.post(ctx, "", "SELECT version()")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}

// Exec runs a statement that returns no result set.
func (c *Client) Exec(ctx context.Context, query string) error {
	_, err := c.post(ctx, "", query)
	return err
}

// Insert bulk-loads a TSV payload (header row first) into the named table.
func (c *Client) Insert(ctx context.Context, table string, payload []byte) error {
	query := fmt.Sprintf("INSERT INTO %s FORMAT TabSeparatedWithNames", table)
	if _, err := c.post(ctx, query, string(payload)); err != nil {
		return err
	}
	return nil
}

// Query runs a SELECT and decodes the TSV-with-names result into a Table.
func (c *Client) Query(ctx context.Context, query string) (domain.Table, error) {
	body, err := c.post(ctx, "", strings.TrimRight(strings.TrimSpace(query), ";")+" FORMAT TabSeparatedWithNames")
	if err != nil {
		return domain.Table{}, err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return domain.Table{}, nil
	}
	columns, rows, err := tsv.Decode(body)
	if err != nil {
		return domain.Table{}, domain.ErrLoad(err.Error(), "decode query result")
	}
	return domain.Table{Columns: columns, Rows: rows}, nil
}

// post sends a request body to the server. When query is non-empty it is
// passed via the query URL parameter and body carries the data payload,
// which is how the HTTP interface accepts bulk inserts.
func (c *Client) post(ctx context.Context, query, body string) ([]byte, error) {
	u := c.baseURL + "/"
	if query != "" {
		u += "?" + url.Values{"query": {query}}.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create clickhouse request: %w", err)
	}
	req.Header.Set("X-ClickHouse-User", c.user)
	req.Header.Set("X-ClickHouse-Key", c.password)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.ErrLoad(err.Error(), "clickhouse request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.ErrLoad(err.Error(), "read clickhouse response")
	}
	if resp.StatusCode != http.StatusOK {
		detail := strings.TrimSpace(string(respBody))
		if len(detail) > 500 {
			detail = detail[:500]
		}
		return nil, domain.ErrLoad(detail, "clickhouse rejected statement (status %d)", resp.StatusCode)
	}
	return respBody, nil
}
