package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, "port: 9090\n")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "chat-service", cfg.ServerName)
	assert.Equal(t, 60, cfg.Stream.MinChars)
	assert.Equal(t, 180*time.Millisecond, cfg.Stream.MaxWait)
	assert.True(t, cfg.Stream.EmitThinking)
	assert.Equal(t, "chi_sim", cfg.OCR.DefaultLanguage)
	assert.Equal(t, "deepseek-chat", cfg.LLM.DefaultModel)
	assert.Equal(t, "chat_event", cfg.RocketMQ.Topics.ChatEvent)
}

func TestLoadConfigFileValues(t *testing.T) {
	path := writeConfig(t, `
postgres:
  address: db
  port: 5433
  user: u
  password: p
  db_name: chat
stream:
  min_chars: 40
  max_wait: 200ms
llm:
  timeout: 30s
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 40, cfg.Stream.MinChars)
	assert.Equal(t, 200*time.Millisecond, cfg.Stream.MaxWait)
	assert.Equal(t, 30*time.Second, cfg.LLM.Timeout)
	assert.Equal(t,
		"host=db user=u password=p dbname=chat port=5433 sslmode=disable TimeZone=Asia/Shanghai",
		cfg.Postgres.DSN())
}

func TestLoadConfigEnvOverride(t *testing.T) {
	path := writeConfig(t, "llm:\n  api_key: from-file\n")
	t.Setenv("LLM_API_KEY", "from-env")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.LLM.APIKey)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yml"))
	require.Error(t, err)
}
