package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFromFileDefaults(t *testing.T) {
	path := writeConfig(t, `
backend:
  base_url: http://backend:9000/api
`)
	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "mailbridge", cfg.App.Name)
	assert.Equal(t, "me", cfg.Gmail.UserID)
	assert.Equal(t, "in:inbox", cfg.Gmail.Query)
	assert.Equal(t, 3, cfg.Scanner.Workers)
	assert.Equal(t, time.Minute, cfg.Scanner.Interval)
	assert.Equal(t, 3, cfg.Dedup.BootstrapAttempts)
	assert.Equal(t, 5*time.Second, cfg.Dedup.BootstrapDelay)
	assert.Equal(t, "starttls", cfg.SMTP.TLSMode)
	assert.Equal(t, "plain", cfg.SMTP.AuthType)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoadFromFileOverrides(t *testing.T) {
	path := writeConfig(t, `
backend:
  base_url: http://backend:9000/api
  timeout: 5s
scanner:
  interval: 30s
  workers: 8
gmail:
  query: "in:inbox is:unread"
  max_results: 100
`)
	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, 30*time.Second, cfg.Scanner.Interval)
	assert.Equal(t, 8, cfg.Scanner.Workers)
	assert.Equal(t, "in:inbox is:unread", cfg.Gmail.Query)
	assert.Equal(t, int64(100), cfg.Gmail.MaxResults)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"missing backend url", `
scanner:
  workers: 3
`},
		{"zero workers", `
backend:
  base_url: http://backend:9000/api
scanner:
  workers: 0
`},
		{"negative interval", `
backend:
  base_url: http://backend:9000/api
scanner:
  interval: -1s
`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.yaml)
			_, err := LoadFromFile(path)
			assert.Error(t, err)
		})
	}
}
