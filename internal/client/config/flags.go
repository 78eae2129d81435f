package config

import (
	"flag"
	"io"
	"time"

	"github.com/dmitrijs2005/gradekeeper/internal/flagx"
)

// parseFlags populates Config fields from command-line flags.
//
// Supported flags:
//
//	-a string   address and port of the gRPC server
//	-f string   session database file
//	-t int      request timeout, seconds
func parseFlags(cfg *Config, args []string) error {
	fs := flag.NewFlagSet("client", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.ServerEndpointAddr, "a", cfg.ServerEndpointAddr, "address and port to access server")
	fs.StringVar(&cfg.SessionDB, "f", cfg.SessionDB, "session database file")
	timeout := fs.Int("t", int(cfg.RequestTimeout.Seconds()), "request timeout (in seconds)")

	if err := fs.Parse(flagx.FilterArgs(args, []string{"-a", "-f", "-t"})); err != nil {
		return err
	}
	cfg.RequestTimeout = time.Duration(*timeout) * time.Second
	return nil
}
