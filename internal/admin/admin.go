// Package admin implements the gradekeeper operator tool: schema migration,
// account provisioning and maintenance against the server's database.
package admin

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/dmitrijs2005/gradekeeper/internal/flagx"
	"github.com/dmitrijs2005/gradekeeper/internal/logging"
	"github.com/dmitrijs2005/gradekeeper/internal/prompt"
	"github.com/dmitrijs2005/gradekeeper/internal/server"
	"github.com/dmitrijs2005/gradekeeper/internal/server/config"
	"github.com/dmitrijs2005/gradekeeper/internal/server/metrics"
	"github.com/dmitrijs2005/gradekeeper/internal/server/models"
	"github.com/dmitrijs2005/gradekeeper/internal/server/notify"
	"github.com/dmitrijs2005/gradekeeper/internal/server/services"
)

var ErrNoDatabase = errors.New("admin commands need a database DSN (-d or GRADEKEEPER_DATABASE_DSN)")

const usage = `usage: gkadmin <command> [flags]

commands:
  migrate                                   apply pending schema migrations
  adduser -school S -role R -name N -email E  create an account (password is prompted)
  setpassword -email E                      replace a password and revoke its sessions
  linkguardian -parent E -student E         record a parent as guardian of a student
  purge                                     delete expired refresh credentials
`

// Opener connects to the configured backends. The returned func releases them.
type Opener func(ctx context.Context, c *config.Config, l logging.Logger) (*server.Components, func(), error)

// DefaultOpener opens the PostgreSQL database named by c, running migrations
// on the way, and builds the services on top of it.
func DefaultOpener(ctx context.Context, c *config.Config, l logging.Logger) (*server.Components, func(), error) {
	if c.DatabaseDSN == "" {
		return nil, nil, ErrNoDatabase
	}
	b, err := server.Connect(ctx, c, l)
	if err != nil {
		return nil, nil, err
	}
	comp := server.Build(c, b.Store, b.RefreshTokens, notify.NewLogPublisher(l), nil, l, metrics.Nop{})
	return comp, b.Close, nil
}

type App struct {
	config *config.Config
	in     *bufio.Reader
	out    io.Writer
	log    logging.Logger
	open   Opener
}

func NewApp(c *config.Config, in io.Reader, out io.Writer, l logging.Logger, open Opener) *App {
	if l == nil {
		l = logging.Nop{}
	}
	if open == nil {
		open = DefaultOpener
	}
	return &App{config: c, in: bufio.NewReader(in), out: out, log: l, open: open}
}

// Run executes the command named by args[0].
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprint(a.out, usage)
		return errors.New("no command given")
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "migrate":
		return a.withComponents(ctx, func(*server.Components) error {
			fmt.Fprintln(a.out, "schema is up to date")
			return nil
		})
	case "adduser":
		return a.addUser(ctx, rest)
	case "setpassword":
		return a.setPassword(ctx, rest)
	case "linkguardian":
		return a.linkGuardian(ctx, rest)
	case "purge":
		return a.purge(ctx)
	case "help", "-h", "--help":
		fmt.Fprint(a.out, usage)
		return nil
	default:
		fmt.Fprint(a.out, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (a *App) withComponents(ctx context.Context, fn func(c *server.Components) error) error {
	comp, closeFn, err := a.open(ctx, a.config, a.log)
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(comp)
}

// parse reads the named string flags from args, ignoring anything else
// (server configuration flags may share the command line).
func parse(cmd string, args []string, names ...string) (map[string]string, error) {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	values := make(map[string]*string, len(names))
	allowed := make([]string, 0, 2*len(names))
	for _, n := range names {
		values[n] = fs.String(n, "", n)
		allowed = append(allowed, "-"+n, "--"+n)
	}
	if err := fs.Parse(flagx.FilterArgs(args, allowed)); err != nil {
		return nil, err
	}

	out := make(map[string]string, len(names))
	for n, v := range values {
		if *v == "" {
			return nil, fmt.Errorf("%s: -%s is required", cmd, n)
		}
		out[n] = *v
	}
	return out, nil
}

func (a *App) addUser(ctx context.Context, args []string) error {
	f, err := parse("adduser", args, "school", "role", "name", "email")
	if err != nil {
		return err
	}
	pw, err := prompt.GetPassword(a.in, "Password for "+f["email"], a.out)
	if err != nil {
		return err
	}

	return a.withComponents(ctx, func(c *server.Components) error {
		u, err := c.Auth.AddUser(ctx, services.NewUser{
			SchoolID:    f["school"],
			Role:        models.Role(f["role"]),
			DisplayName: f["name"],
			Email:       f["email"],
			Password:    pw,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "created %s %s (%s)\n", u.Role, u.Email, u.ID)
		return nil
	})
}

func (a *App) setPassword(ctx context.Context, args []string) error {
	f, err := parse("setpassword", args, "email")
	if err != nil {
		return err
	}
	pw, err := prompt.GetPassword(a.in, "New password for "+f["email"], a.out)
	if err != nil {
		return err
	}

	return a.withComponents(ctx, func(c *server.Components) error {
		if err := c.Auth.SetPassword(ctx, f["email"], pw); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "password updated for %s\n", f["email"])
		return nil
	})
}

func (a *App) linkGuardian(ctx context.Context, args []string) error {
	f, err := parse("linkguardian", args, "parent", "student")
	if err != nil {
		return err
	}

	return a.withComponents(ctx, func(c *server.Components) error {
		if err := c.Auth.LinkGuardian(ctx, f["parent"], f["student"]); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "%s is now a guardian of %s\n", f["parent"], f["student"])
		return nil
	})
}

func (a *App) purge(ctx context.Context) error {
	return a.withComponents(ctx, func(c *server.Components) error {
		n, err := c.Credentials.PurgeExpired(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "purged %d expired refresh credentials\n", n)
		return nil
	})
}
