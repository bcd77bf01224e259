package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mahaj/chat-session/pkg/chatclient"
)

func TestLoadGateway_Defaults(t *testing.T) {
	cfg, err := LoadGateway()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, []string{"localhost:19092"}, cfg.Brokers)
	assert.Equal(t, "chat-messages", cfg.Topic)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, int64(1), cfg.SnowflakeNode)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadMessaging_FromEnv(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("SCYLLA_HOSTS", "s1,s2")

	cfg, err := LoadMessaging()
	require.NoError(t, err)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Brokers)
	assert.Equal(t, []string{"s1", "s2"}, cfg.Hosts)
	assert.Equal(t, "messaging-service-group", cfg.GroupID)
}

func TestParseEnv_Error(t *testing.T) {
	t.Setenv("SNOWFLAKE_NODE", "not-an-int")

	_, err := LoadGateway()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse env:")
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "client.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadClient(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    chatclient.Backoff
		wantErr string
	}{
		{
			name: "defaults",
			want: chatclient.FixedBackoff{Delay: 5 * time.Second},
		},
		{
			name: "exponential",
			body: `
reconnect:
  strategy: exponential
  delay: 500ms
  max_delay: 30s
  multiplier: 2
  jitter: 0.1
  max_attempts: 8
`,
			want: chatclient.ExponentialBackoff{Initial: 500 * time.Millisecond, Max: 30 * time.Second, Multiplier: 2, Jitter: 0.1, MaxAttempts: 8},
		},
		{
			name:    "unknown strategy",
			body:    "reconnect:\n  strategy: linear\n",
			wantErr: "unknown reconnect strategy",
		},
		{
			name:    "bad jitter",
			body:    "reconnect:\n  jitter: 1.5\n",
			wantErr: "jitter",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := ""
			if tt.body != "" {
				path = writeFile(t, tt.body)
			}
			cfg, err := LoadClient(path)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.Reconnect.Backoff())
		})
	}
}

func TestLoadClient_MissingFile(t *testing.T) {
	cfg, err := LoadClient(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultClient(), cfg)
}
