package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Token = "y0_AgAAAAAtest_token_value"
	cfg.CounterID = 44147844
	cfg.DateFrom = "2024-01-01"
	cfg.DateTo = "2024-01-31"
	cfg.CHHost = "ch.example.com"
	cfg.CHUser = "loader"
	cfg.CHPassword = "secret"
	cfg.CHDatabase = "analytics"
	return cfg
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, []string{"hits", "visits"}, cfg.Sources)
	assert.Equal(t, "https://api-metrika.yandex.ru", cfg.APIBaseURL)
	assert.True(t, cfg.CHSecure)
	assert.Equal(t, 8443, cfg.CHPort)
	assert.Equal(t, "ym_", cfg.TablePrefix)
	assert.Equal(t, 10*time.Second, cfg.PollInterval)
	assert.Equal(t, 30*time.Minute, cfg.PollTimeout)
	assert.Equal(t, 3, cfg.PartRetries)
	assert.Equal(t, 4, cfg.PartWorkers)
	assert.Equal(t, 50000, cfg.InsertChunk)
	assert.Equal(t, float64(5), cfg.RateLimitRPS)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, 1, cfg.WindowDays)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.HasArchive())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("YM_TOKEN", "env-token")
	t.Setenv("YM_COUNTER_ID", "12345")
	t.Setenv("YM_SOURCES", "visits")
	t.Setenv("CH_SECURE", "false")
	t.Setenv("POLL_INTERVAL", "2s")
	t.Setenv("INSERT_CHUNK_ROWS", "1000")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "env-token", cfg.Token)
	assert.Equal(t, int64(12345), cfg.CounterID)
	assert.Equal(t, []string{"visits"}, cfg.Sources)
	assert.False(t, cfg.CHSecure)
	assert.Equal(t, 8123, cfg.CHPort, "insecure default port")
	assert.Equal(t, 2*time.Second, cfg.PollInterval)
	assert.Equal(t, 1000, cfg.InsertChunk)
}

func TestLoad_JSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		"token": "file-token",
		"counter_id": 777,
		"date_from": "2024-02-01",
		"date_to": "2024-02-07",
		"sources": ["hits"],
		"ch_host": "file.example.com",
		"ch_secure": false,
		"ch_database": "web",
		"poll_interval": "5s"
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "file-token", cfg.Token)
	assert.Equal(t, int64(777), cfg.CounterID)
	assert.Equal(t, []string{"hits"}, cfg.Sources)
	assert.Equal(t, "file.example.com", cfg.CHHost)
	assert.False(t, cfg.CHSecure)
	assert.Equal(t, 5*time.Second, cfg.PollInterval)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "token: yaml-token\ncounter_id: 888\nch_host: yaml.example.com\nsources:\n  - visits\n  - hits\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "yaml-token", cfg.Token)
	assert.Equal(t, int64(888), cfg.CounterID)
	assert.Equal(t, []string{"visits", "hits"}, cfg.Sources, "run order preserved")
}

func TestLoad_EnvBeatsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"token": "file-token"}`), 0o600))
	t.Setenv("YM_TOKEN", "env-token")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env-token", cfg.Token)
}

func TestLoad_RejectsUnknownExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("token = \"x\""), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported extension")
}

func TestValidate(t *testing.T) {
	t.Run("valid config passes", func(t *testing.T) {
		cfg := validConfig(t)
		require.NoError(t, cfg.Validate())
	})

	t.Run("missing required keys are listed", func(t *testing.T) {
		cfg := validConfig(t)
		cfg.Token = ""
		cfg.CHHost = ""
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "YM_TOKEN")
		assert.Contains(t, err.Error(), "CH_HOST")
	})

	t.Run("unknown source", func(t *testing.T) {
		cfg := validConfig(t)
		cfg.Sources = []string{"hits", "sessions"}
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), `unknown source "sessions"`)
	})

	t.Run("duplicate source", func(t *testing.T) {
		cfg := validConfig(t)
		cfg.Sources = []string{"hits", "hits"}
		require.Error(t, cfg.Validate())
	})

	t.Run("bad database identifier", func(t *testing.T) {
		cfg := validConfig(t)
		cfg.CHDatabase = "anal;drop"
		require.Error(t, cfg.Validate())
	})

	t.Run("timeout must exceed interval", func(t *testing.T) {
		cfg := validConfig(t)
		cfg.PollTimeout = cfg.PollInterval
		require.Error(t, cfg.Validate())
	})

	t.Run("missing CA file", func(t *testing.T) {
		cfg := validConfig(t)
		cfg.CHCACert = filepath.Join(t.TempDir(), "absent.crt")
		require.Error(t, cfg.Validate())
	})

	t.Run("partial archive config", func(t *testing.T) {
		cfg := validConfig(t)
		key := "AKIA123"
		cfg.ArchiveKeyID = &key
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "incomplete archive configuration")
	})

	t.Run("empty password warns", func(t *testing.T) {
		cfg := validConfig(t)
		cfg.CHPassword = ""
		require.NoError(t, cfg.Validate())
		assert.Contains(t, cfg.Warnings, "CH_PASSWORD is empty")
	})
}

func TestHasArchive_PartialConfig(t *testing.T) {
	t.Setenv("ARCHIVE_KEY_ID", "testkey")
	t.Setenv("ARCHIVE_SECRET", "testsecret")
	t.Setenv("ARCHIVE_ENDPOINT", "")
	t.Setenv("ARCHIVE_REGION", "")
	t.Setenv("ARCHIVE_BUCKET", "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.False(t, cfg.HasArchive(), "partial archive config should return false")
}

func TestHasArchive_FullConfig(t *testing.T) {
	t.Setenv("ARCHIVE_KEY_ID", "testkey")
	t.Setenv("ARCHIVE_SECRET", "testsecret")
	t.Setenv("ARCHIVE_ENDPOINT", "s3.example.com")
	t.Setenv("ARCHIVE_REGION", "us-east-1")
	t.Setenv("ARCHIVE_BUCKET", "raw-parts")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.True(t, cfg.HasArchive())
	require.NotNil(t, cfg.ArchiveKeyID)
	assert.Equal(t, "testkey", *cfg.ArchiveKeyID)
}

func TestValidateDates(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		from, to  string
		wantErr   string
		wantWarns int
	}{
		{name: "valid range", from: "2024-06-01", to: "2024-06-10"},
		{name: "single day", from: "2024-06-10", to: "2024-06-10"},
		{name: "bad format", from: "01.06.2024", to: "2024-06-10", wantErr: "use YYYY-MM-DD"},
		{name: "reversed", from: "2024-06-10", to: "2024-06-01", wantErr: "after end"},
		{name: "future", from: "2024-06-01", to: "2024-07-01", wantErr: "future"},
		{name: "includes today", from: "2024-06-01", to: "2024-06-15", wantWarns: 1},
		{name: "over 90 days", from: "2024-01-01", to: "2024-06-01", wantWarns: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			warns, err := ValidateDates(tt.from, tt.to, now)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Len(t, warns, tt.wantWarns)
		})
	}
}

func TestLoadDotEnv_EnvVarPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "# comment\nYM_TOKEN=dotenv-token\nCH_HOST=\"quoted.example.com\"\n\nNOT_A_PAIR\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("YM_TOKEN", "already-set")
	t.Setenv("CH_HOST", "")

	require.NoError(t, LoadDotEnv(path))

	assert.Equal(t, "already-set", os.Getenv("YM_TOKEN"), "environment wins over .env")
	assert.Equal(t, "quoted.example.com", os.Getenv("CH_HOST"))
}

func TestLoadDotEnv_FileNotFound(t *testing.T) {
	t.Parallel()
	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "nope.env")))
}

func TestSlogLevel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "INFO", (&Config{}).SlogLevel().String())
	assert.Equal(t, "DEBUG", (&Config{LogLevel: "debug"}).SlogLevel().String())
	assert.Equal(t, "WARN", (&Config{LogLevel: "warning"}).SlogLevel().String())
	assert.Equal(t, "ERROR", (&Config{LogLevel: "error"}).SlogLevel().String())
}
