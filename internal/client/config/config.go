// Package config loads runtime configuration for the gradekeeper CLI client:
// defaults, an optional JSON file (-c / -config), then command-line flags.
package config

import "time"

// Config holds runtime settings for the CLI client.
//
// Fields:
//   - ServerEndpointAddr: host:port of the gRPC endpoint.
//   - SessionDB: SQLite file keeping the signed-in session between runs.
//   - RequestTimeout: upper bound for a single call to the server.
type Config struct {
	ServerEndpointAddr string
	SessionDB          string
	RequestTimeout     time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.SessionDB = "gradekeeper-session.db"
	c.RequestTimeout = 10 * time.Second
}

// Load builds a Config from defaults, the JSON file named by -c / -config and
// the flags in args. Later sources take precedence over earlier ones.
func Load(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseJSON(cfg, args); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	return cfg, nil
}
