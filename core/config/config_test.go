package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaultsAndEnv(t *testing.T) {
	t.Setenv("VKTEAMS_BOT_TOKEN", "env-token:42")
	path := writeConfig(t, `
vkteams:
  token: file-token
  url: https://teams.example/
  base_path: api
rate_limit:
  exclude_events: [" Callback "]
access:
  admin_chats: [" boss@corp ", ""]
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env-token:42", cfg.VKTeams.Token)
	assert.Equal(t, "https://teams.example", cfg.VKTeams.URL)
	assert.Equal(t, "/api/", cfg.VKTeams.BasePath)
	assert.Equal(t, 30, cfg.VKTeams.TimeoutSeconds)
	assert.Equal(t, 15, cfg.VKTeams.PollTimeSeconds)
	assert.Equal(t, 2, cfg.VKTeams.PollRetries)
	assert.Equal(t, 1000, cfg.VKTeams.ErrorBackoffMS)
	assert.Equal(t, 60, cfg.State.SweepIntervalSeconds)
	assert.Equal(t, 300, cfg.State.ExpireSeconds)
	assert.Equal(t, 15, cfg.State.UpdateExpireSeconds)
	assert.Equal(t, DefaultExpiredText, cfg.State.ExpiredText)
	assert.Equal(t, []string{EventCallback}, cfg.RateLimit.ExcludeEvents)
	assert.Equal(t, []string{"boss@corp"}, cfg.Access.AdminChats)
	assert.Equal(t, 256, cfg.Sender.QueueSize)
}

func TestNormalizeRejectsInvalid(t *testing.T) {
	cases := map[string]Config{
		"token":     {},
		"scheme":    {VKTeams: VKTeamsConfig{Token: "t", URL: "ftp://x"}},
		"poll time": {VKTeams: VKTeamsConfig{Token: "t", TimeoutSeconds: 10, PollTimeSeconds: 10}},
		"cursor":    {VKTeams: VKTeamsConfig{Token: "t", LastEventID: -1}},
		"exclude":   {VKTeams: VKTeamsConfig{Token: "t"}, RateLimit: RateLimitConfig{ExcludeEvents: []string{"edits"}}},
		"database":  {VKTeams: VKTeamsConfig{Token: "t"}, Database: DatabaseConfig{Enabled: true}},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, Normalize(&cfg))
		})
	}
	assert.Error(t, Normalize(nil))
}

func TestNormalizeDatabaseDefaults(t *testing.T) {
	cfg := Config{
		VKTeams:  VKTeamsConfig{Token: "t"},
		Database: DatabaseConfig{Enabled: true, Host: "db", Name: "vk"},
	}
	require.NoError(t, Normalize(&cfg))
	assert.Equal(t, "5432", cfg.Database.Port)
	assert.Equal(t, "disable", cfg.Database.SSLMode)
	assert.Equal(t, 2, cfg.Database.MaxConnections)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
