// Package config handles application configuration and environment loading.
package config

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the configuration for the export pipeline and the optional
// archive and serve-mode surfaces.
type Config struct {
	// Logs API
	Token      string   // OAuth token (credential acquisition is external)
	CounterID  int64    // counter to export from
	DateFrom   string   // YYYY-MM-DD, inclusive
	DateTo     string   // YYYY-MM-DD, inclusive
	Sources    []string // subset of {"hits", "visits"}; run order
	APIBaseURL string   // override for tests and proxies

	// ClickHouse destination
	CHHost      string
	CHPort      int // default 8443 when secure, 8123 otherwise
	CHSecure    bool
	CHUser      string
	CHPassword  string
	CHCACert    string // CA bundle path for TLS verification (optional)
	CHDatabase  string
	TablePrefix string // destination tables are <prefix><source>, e.g. ym_hits

	// Pipeline tuning
	PollInterval   time.Duration // delay between job status polls
	PollTimeout    time.Duration // ceiling on total polling time per job
	PartRetries    int           // retry attempts per part download after the first
	PartWorkers    int           // concurrent part downloads
	InsertChunk    int           // rows per bulk insert, 0 = single batch
	RateLimitRPS   float64       // sustained Logs API requests per second
	RateLimitBurst int           // burst capacity

	// Raw part archive (S3-compatible). Fields are optional — nil when not
	// configured; the archive stores a side copy of each downloaded part.
	ArchiveKeyID    *string
	ArchiveSecret   *string
	ArchiveEndpoint *string
	ArchiveRegion   *string
	ArchiveBucket   *string
	ArchivePrefix   string

	// Serve mode
	ListenAddr string // status API listen address (default ":8080")
	Schedule   string // cron expression for scheduled exports
	WindowDays int    // scheduled runs export the last N complete days

	LogLevel string // log level: debug, info, warn, error (default "info")

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// HasArchive returns true if all required archive fields are set.
func (c *Config) HasArchive() bool {
	return c.ArchiveKeyID != nil && c.ArchiveSecret != nil &&
		c.ArchiveEndpoint != nil && c.ArchiveRegion != nil && c.ArchiveBucket != nil
}

// Load builds the configuration from an optional JSON or YAML file and the
// environment. Environment variables override file values; defaults fill the
// rest. Call Validate before using the result.
func Load(path string) (*Config, error) {
	cfg := &Config{CHSecure: true}
	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

// fileConfig mirrors Config with optional fields for file loading. Durations
// are strings in time.ParseDuration syntax.
type fileConfig struct {
	Token           *string  `json:"token" yaml:"token"`
	CounterID       *int64   `json:"counter_id" yaml:"counter_id"`
	DateFrom        *string  `json:"date_from" yaml:"date_from"`
	DateTo          *string  `json:"date_to" yaml:"date_to"`
	Sources         []string `json:"sources" yaml:"sources"`
	APIBaseURL      *string  `json:"api_url" yaml:"api_url"`
	CHHost          *string  `json:"ch_host" yaml:"ch_host"`
	CHPort          *int     `json:"ch_port" yaml:"ch_port"`
	CHSecure        *bool    `json:"ch_secure" yaml:"ch_secure"`
	CHUser          *string  `json:"ch_user" yaml:"ch_user"`
	CHPassword      *string  `json:"ch_password" yaml:"ch_password"`
	CHCACert        *string  `json:"ch_ca_cert" yaml:"ch_ca_cert"`
	CHDatabase      *string  `json:"ch_database" yaml:"ch_database"`
	TablePrefix     *string  `json:"ch_table_prefix" yaml:"ch_table_prefix"`
	PollInterval    *string  `json:"poll_interval" yaml:"poll_interval"`
	PollTimeout     *string  `json:"poll_timeout" yaml:"poll_timeout"`
	PartRetries     *int     `json:"part_retries" yaml:"part_retries"`
	PartWorkers     *int     `json:"part_workers" yaml:"part_workers"`
	InsertChunk     *int     `json:"insert_chunk_rows" yaml:"insert_chunk_rows"`
	RateLimitRPS    *float64 `json:"rate_limit_rps" yaml:"rate_limit_rps"`
	RateLimitBurst  *int     `json:"rate_limit_burst" yaml:"rate_limit_burst"`
	ArchiveKeyID    *string  `json:"archive_key_id" yaml:"archive_key_id"`
	ArchiveSecret   *string  `json:"archive_secret" yaml:"archive_secret"`
	ArchiveEndpoint *string  `json:"archive_endpoint" yaml:"archive_endpoint"`
	ArchiveRegion   *string  `json:"archive_region" yaml:"archive_region"`
	ArchiveBucket   *string  `json:"archive_bucket" yaml:"archive_bucket"`
	ArchivePrefix   *string  `json:"archive_prefix" yaml:"archive_prefix"`
	ListenAddr      *string  `json:"listen_addr" yaml:"listen_addr"`
	Schedule        *string  `json:"export_schedule" yaml:"export_schedule"`
	WindowDays      *int     `json:"export_window_days" yaml:"export_window_days"`
	LogLevel        *string  `json:"log_level" yaml:"log_level"`
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	var fc fileConfig
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		if err := json.Unmarshal(data, &fc); err != nil {
			return fmt.Errorf("parse config %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return fmt.Errorf("parse config %s: %w", path, err)
		}
	default:
		return fmt.Errorf("config %s: unsupported extension %q (use .json, .yaml or .yml)", path, ext)
	}

	setString := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	setInt := func(dst *int, src *int) {
		if src != nil {
			*dst = *src
		}
	}

	setString(&c.Token, fc.Token)
	if fc.CounterID != nil {
		c.CounterID = *fc.CounterID
	}
	setString(&c.DateFrom, fc.DateFrom)
	setString(&c.DateTo, fc.DateTo)
	if len(fc.Sources) > 0 {
		c.Sources = trimAll(fc.Sources)
	}
	setString(&c.APIBaseURL, fc.APIBaseURL)
	setString(&c.CHHost, fc.CHHost)
	setInt(&c.CHPort, fc.CHPort)
	if fc.CHSecure != nil {
		c.CHSecure = *fc.CHSecure
	}
	setString(&c.CHUser, fc.CHUser)
	setString(&c.CHPassword, fc.CHPassword)
	setString(&c.CHCACert, fc.CHCACert)
	setString(&c.CHDatabase, fc.CHDatabase)
	setString(&c.TablePrefix, fc.TablePrefix)
	if fc.PollInterval != nil {
		d, err := time.ParseDuration(*fc.PollInterval)
		if err != nil {
			return fmt.Errorf("config %s: poll_interval: %w", path, err)
		}
		c.PollInterval = d
	}
	if fc.PollTimeout != nil {
		d, err := time.ParseDuration(*fc.PollTimeout)
		if err != nil {
			return fmt.Errorf("config %s: poll_timeout: %w", path, err)
		}
		c.PollTimeout = d
	}
	setInt(&c.PartRetries, fc.PartRetries)
	setInt(&c.PartWorkers, fc.PartWorkers)
	setInt(&c.InsertChunk, fc.InsertChunk)
	if fc.RateLimitRPS != nil {
		c.RateLimitRPS = *fc.RateLimitRPS
	}
	setInt(&c.RateLimitBurst, fc.RateLimitBurst)
	c.ArchiveKeyID = orKeep(c.ArchiveKeyID, fc.ArchiveKeyID)
	c.ArchiveSecret = orKeep(c.ArchiveSecret, fc.ArchiveSecret)
	c.ArchiveEndpoint = orKeep(c.ArchiveEndpoint, fc.ArchiveEndpoint)
	c.ArchiveRegion = orKeep(c.ArchiveRegion, fc.ArchiveRegion)
	c.ArchiveBucket = orKeep(c.ArchiveBucket, fc.ArchiveBucket)
	setString(&c.ArchivePrefix, fc.ArchivePrefix)
	setString(&c.ListenAddr, fc.ListenAddr)
	setString(&c.Schedule, fc.Schedule)
	setInt(&c.WindowDays, fc.WindowDays)
	setString(&c.LogLevel, fc.LogLevel)
	return nil
}

func orKeep(current, next *string) *string {
	if next != nil {
		return next
	}
	return current
}

func (c *Config) applyEnv() {
	if v := os.Getenv("YM_TOKEN"); v != "" {
		c.Token = v
	}
	if v := os.Getenv("YM_COUNTER_ID"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.CounterID = n
		}
	}
	if v := os.Getenv("YM_DATE_FROM"); v != "" {
		c.DateFrom = v
	}
	if v := os.Getenv("YM_DATE_TO"); v != "" {
		c.DateTo = v
	}
	if v := os.Getenv("YM_SOURCES"); v != "" {
		c.Sources = trimAll(strings.Split(v, ","))
	}
	if v := os.Getenv("YM_API_URL"); v != "" {
		c.APIBaseURL = v
	}

	if v := os.Getenv("CH_HOST"); v != "" {
		c.CHHost = v
	}
	if v := os.Getenv("CH_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.CHPort = n
		}
	}
	if v := os.Getenv("CH_SECURE"); v != "" {
		c.CHSecure = parseBoolEnvDefault("CH_SECURE", true)
	}
	if v := os.Getenv("CH_USER"); v != "" {
		c.CHUser = v
	}
	if v := os.Getenv("CH_PASSWORD"); v != "" {
		c.CHPassword = v
	}
	if v := os.Getenv("CH_CA_CERT"); v != "" {
		c.CHCACert = v
	}
	if v := os.Getenv("CH_DATABASE"); v != "" {
		c.CHDatabase = v
	}
	if v := os.Getenv("CH_TABLE_PREFIX"); v != "" {
		c.TablePrefix = v
	}

	if v := os.Getenv("POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.PollInterval = d
		}
	}
	if v := os.Getenv("POLL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.PollTimeout = d
		}
	}
	if v := os.Getenv("PART_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.PartRetries = n
		}
	}
	if v := os.Getenv("PART_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.PartWorkers = n
		}
	}
	if v := os.Getenv("INSERT_CHUNK_ROWS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.InsertChunk = n
		}
	}
	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.RateLimitRPS = f
		}
	}
	if v := os.Getenv("RATE_LIMIT_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RateLimitBurst = n
		}
	}

	// Archive fields are optional — only set if present
	if v := os.Getenv("ARCHIVE_KEY_ID"); v != "" {
		c.ArchiveKeyID = &v
	}
	if v := os.Getenv("ARCHIVE_SECRET"); v != "" {
		c.ArchiveSecret = &v
	}
	if v := os.Getenv("ARCHIVE_ENDPOINT"); v != "" {
		c.ArchiveEndpoint = &v
	}
	if v := os.Getenv("ARCHIVE_REGION"); v != "" {
		c.ArchiveRegion = &v
	}
	if v := os.Getenv("ARCHIVE_BUCKET"); v != "" {
		c.ArchiveBucket = &v
	}
	if v := os.Getenv("ARCHIVE_PREFIX"); v != "" {
		c.ArchivePrefix = v
	}

	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("EXPORT_SCHEDULE"); v != "" {
		c.Schedule = v
	}
	if v := os.Getenv("EXPORT_WINDOW_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.WindowDays = n
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

func (c *Config) applyDefaults() {
	if len(c.Sources) == 0 {
		c.Sources = []string{"hits", "visits"}
	}
	if c.APIBaseURL == "" {
		c.APIBaseURL = "https://api-metrika.yandex.ru"
	}
	if c.CHPort == 0 {
		if c.CHSecure {
			c.CHPort = 8443
		} else {
			c.CHPort = 8123
		}
	}
	if c.TablePrefix == "" {
		c.TablePrefix = "ym_"
	}
	if c.PollInterval == 0 {
		c.PollInterval = 10 * time.Second
	}
	if c.PollTimeout == 0 {
		c.PollTimeout = 30 * time.Minute
	}
	if c.PartRetries == 0 {
		c.PartRetries = 3
	}
	if c.PartWorkers == 0 {
		c.PartWorkers = 4
	}
	if c.InsertChunk == 0 {
		c.InsertChunk = 50000
	}
	if c.RateLimitRPS == 0 {
		c.RateLimitRPS = 5
	}
	if c.RateLimitBurst == 0 {
		c.RateLimitBurst = 5
	}
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
	if c.WindowDays == 0 {
		c.WindowDays = 1
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	if c.CHSecure && c.CHCACert == "" {
		c.Warnings = append(c.Warnings, "CH_CA_CERT not set — TLS server verification uses system roots")
	}
	if !c.HasArchive() {
		c.Warnings = append(c.Warnings, "archive not configured — raw export parts will not be retained")
	}
}

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate checks that the configuration is complete and internally
// consistent for a pipeline run.
func (c *Config) Validate() error {
	var missing []string
	if c.Token == "" {
		missing = append(missing, "YM_TOKEN")
	}
	if c.CounterID <= 0 {
		missing = append(missing, "YM_COUNTER_ID")
	}
	if c.DateFrom == "" {
		missing = append(missing, "YM_DATE_FROM")
	}
	if c.DateTo == "" {
		missing = append(missing, "YM_DATE_TO")
	}
	if c.CHHost == "" {
		missing = append(missing, "CH_HOST")
	}
	if c.CHUser == "" {
		missing = append(missing, "CH_USER")
	}
	if c.CHDatabase == "" {
		missing = append(missing, "CH_DATABASE")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	warnings, err := ValidateDates(c.DateFrom, c.DateTo, time.Now())
	if err != nil {
		return err
	}
	c.Warnings = append(c.Warnings, warnings...)

	seen := make(map[string]bool, len(c.Sources))
	for _, s := range c.Sources {
		if s != "hits" && s != "visits" {
			return fmt.Errorf("unknown source %q: use hits or visits", s)
		}
		if seen[s] {
			return fmt.Errorf("duplicate source %q", s)
		}
		seen[s] = true
	}
	if len(c.Sources) == 0 {
		return fmt.Errorf("no sources configured")
	}

	if !identifierRe.MatchString(c.CHDatabase) {
		return fmt.Errorf("CH_DATABASE %q is not a valid identifier", c.CHDatabase)
	}
	if !identifierRe.MatchString(c.TablePrefix) {
		return fmt.Errorf("CH_TABLE_PREFIX %q is not a valid identifier prefix", c.TablePrefix)
	}
	if c.CHPassword == "" {
		c.Warnings = append(c.Warnings, "CH_PASSWORD is empty")
	}
	if c.CHCACert != "" {
		if _, err := os.Stat(c.CHCACert); err != nil {
			return fmt.Errorf("CH_CA_CERT %s: %w", c.CHCACert, err)
		}
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive")
	}
	if c.PollTimeout <= c.PollInterval {
		return fmt.Errorf("POLL_TIMEOUT (%s) must exceed POLL_INTERVAL (%s)", c.PollTimeout, c.PollInterval)
	}
	if c.PartRetries < 0 {
		return fmt.Errorf("PART_RETRIES must not be negative")
	}
	if c.PartWorkers < 1 {
		return fmt.Errorf("PART_WORKERS must be at least 1")
	}
	if c.InsertChunk < 0 {
		return fmt.Errorf("INSERT_CHUNK_ROWS must not be negative")
	}
	if c.WindowDays < 1 {
		return fmt.Errorf("EXPORT_WINDOW_DAYS must be at least 1")
	}

	if n := c.archiveFieldsSet(); n > 0 && n < 5 {
		return fmt.Errorf("incomplete archive configuration: set all of ARCHIVE_KEY_ID, ARCHIVE_SECRET, ARCHIVE_ENDPOINT, ARCHIVE_REGION, ARCHIVE_BUCKET or none")
	}

	return nil
}

// ValidateServe checks configuration for serve mode, which computes its own
// export window per scheduled run, so a configured date range is optional.
func (c *Config) ValidateServe() error {
	if c.Schedule == "" {
		return fmt.Errorf("missing required configuration: EXPORT_SCHEDULE")
	}
	yesterday := time.Now().AddDate(0, 0, -1).Format("2006-01-02")
	if c.DateFrom == "" {
		c.DateFrom = yesterday
	}
	if c.DateTo == "" {
		c.DateTo = yesterday
	}
	return c.Validate()
}

// ValidateDestination checks only the destination settings. The query viewer
// needs ClickHouse access but no export credentials.
func (c *Config) ValidateDestination() error {
	var missing []string
	if c.CHHost == "" {
		missing = append(missing, "CH_HOST")
	}
	if c.CHUser == "" {
		missing = append(missing, "CH_USER")
	}
	if c.CHDatabase == "" {
		missing = append(missing, "CH_DATABASE")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	if c.CHCACert != "" {
		if _, err := os.Stat(c.CHCACert); err != nil {
			return fmt.Errorf("CH_CA_CERT %s: %w", c.CHCACert, err)
		}
	}
	return nil
}

func (c *Config) archiveFieldsSet() int {
	n := 0
	for _, p := range []*string{c.ArchiveKeyID, c.ArchiveSecret, c.ArchiveEndpoint, c.ArchiveRegion, c.ArchiveBucket} {
		if p != nil {
			n++
		}
	}
	return n
}

// ValidateDates checks the export date range: YYYY-MM-DD format, from not
// after to, and no future dates. Returned warnings flag ranges that are
// legal but suspicious.
func ValidateDates(dateFrom, dateTo string, now time.Time) ([]string, error) {
	from, err := time.Parse("2006-01-02", dateFrom)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: use YYYY-MM-DD", dateFrom)
	}
	to, err := time.Parse("2006-01-02", dateTo)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: use YYYY-MM-DD", dateTo)
	}
	if from.After(to) {
		return nil, fmt.Errorf("date range start %s is after end %s", dateFrom, dateTo)
	}
	today := now.Format("2006-01-02")
	if dateFrom > today || dateTo > today {
		return nil, fmt.Errorf("dates cannot be in the future (today is %s)", today)
	}

	var warnings []string
	if dateTo == today {
		warnings = append(warnings, "date range includes today — today's data is still incomplete")
	}
	if days := int(to.Sub(from).Hours()/24) + 1; days > 90 {
		warnings = append(warnings, fmt.Sprintf("date range spans %d days — large exports may hit API quotas", days))
	}
	return warnings, nil
}

func parseBoolEnvDefault(key string, defaultVal bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if v == "" {
		return defaultVal
	}
	if v == "0" || v == "false" || v == "no" || v == "off" {
		return false
	}
	if v == "1" || v == "true" || v == "yes" || v == "on" {
		return true
	}
	return defaultVal
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// LoadDotEnv reads a .env file and sets any variables not already in the
// environment. Lines must be in KEY=VALUE format. Comments (#) and blank
// lines are skipped.
func LoadDotEnv(path string) error {
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return nil // .env not found is not an error
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		value = stripQuotes(value)
		// Only set if not already in the environment (env vars take precedence)
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("setenv %s: %w", key, err)
			}
		}
	}
	return scanner.Err()
}

// stripQuotes removes surrounding double or single quotes from a value.
// Only strips if both the first and last characters are matching quotes.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
