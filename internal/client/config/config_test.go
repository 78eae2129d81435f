package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, data map[string]any) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cfg.json")
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, "127.0.0.1:50051", c.ServerEndpointAddr)
	assert.Equal(t, "gradekeeper-session.db", c.SessionDB)
	assert.Equal(t, 10*time.Second, c.RequestTimeout)
}

func TestLoad(t *testing.T) {
	path := writeTempJSON(t, map[string]any{
		"server_endpoint_addr": "json:9000",
		"session_db":           "/tmp/json.db",
		"request_timeout":      "3s",
	})

	tests := []struct {
		name    string
		args    []string
		want    *Config
		wantErr bool
	}{
		{
			name: "defaults",
			args: nil,
			want: &Config{ServerEndpointAddr: "127.0.0.1:50051", SessionDB: "gradekeeper-session.db", RequestTimeout: 10 * time.Second},
		},
		{
			name: "json file",
			args: []string{"-c", path},
			want: &Config{ServerEndpointAddr: "json:9000", SessionDB: "/tmp/json.db", RequestTimeout: 3 * time.Second},
		},
		{
			name: "flags override json",
			args: []string{"-config", path, "-a", "flag:1", "-t", "7"},
			want: &Config{ServerEndpointAddr: "flag:1", SessionDB: "/tmp/json.db", RequestTimeout: 7 * time.Second},
		},
		{
			name:    "bad timeout",
			args:    []string{"-t", "abc"},
			wantErr: true,
		},
		{
			name:    "missing file",
			args:    []string{"-c", filepath.Join(t.TempDir(), "nope.json")},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Load(tt.args)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Empty(t, cmp.Diff(tt.want, got))
		})
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{ not json`), 0o600))

	_, err := Load([]string{"-c", path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config file")
}
