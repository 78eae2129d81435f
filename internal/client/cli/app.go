// Package cli is the interactive gradekeeper client: a small REPL over the
// gRPC API that remembers the signed-in session between runs.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dmitrijs2005/gradekeeper/internal/api"
	"github.com/dmitrijs2005/gradekeeper/internal/client/config"
	"github.com/dmitrijs2005/gradekeeper/internal/client/grpcclient"
	"github.com/dmitrijs2005/gradekeeper/internal/client/session"
	"github.com/dmitrijs2005/gradekeeper/internal/netx"
)

// Backend is the server API the REPL drives.
type Backend interface {
	Login(ctx context.Context, email, password string) (*api.LoginResponse, error)
	Resume(refreshToken string)
	Logout(ctx context.Context, everywhere bool) error
	ChangePassword(ctx context.Context, oldPassword, newPassword string) error
	Me(ctx context.Context) (*api.Principal, error)
	CreateAssignment(ctx context.Context, studentID, title string) (*api.Assignment, error)
	GetAssignment(ctx context.Context, id string) (*api.Assignment, error)
	Transition(ctx context.Context, id, to, reason string) (*api.Event, error)
	History(ctx context.Context, id string) ([]api.Event, error)
	ExportEvidence(ctx context.Context, id string) (*api.EvidenceResponse, error)
}

// SessionStore persists the session between runs.
type SessionStore interface {
	Load(ctx context.Context) (*session.Session, error)
	Save(ctx context.Context, s session.Session) error
	Clear(ctx context.Context) error
}

// transitionCommands maps REPL verbs to target statuses.
var transitionCommands = map[string]string{
	"submit":   "submitted",
	"review":   "reviewed",
	"complete": "completed",
	"reopen":   "reopened",
}

type App struct {
	backend  Backend
	sessions SessionStore
	in       *bufio.Reader
	out      io.Writer
	timeout  time.Duration
	me       *api.Principal
	closers  []func() error

	// download fetches an exported evidence bundle.
	download func(ctx context.Context, url string) ([]byte, error)
}

func New(b Backend, s SessionStore, in io.Reader, out io.Writer, timeout time.Duration) *App {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &App{
		backend:  b,
		sessions: s,
		in:       bufio.NewReader(in),
		out:      out,
		timeout:  timeout,
		download: func(ctx context.Context, url string) ([]byte, error) {
			return netx.DownloadPresignedURL(ctx, nil, url)
		},
	}
}

// NewApp opens the session database and dials the server named in c.
func NewApp(ctx context.Context, c *config.Config, in io.Reader, out io.Writer) (*App, error) {
	store, err := session.Open(ctx, c.SessionDB)
	if err != nil {
		return nil, err
	}
	client, err := grpcclient.New(c.ServerEndpointAddr)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	a := New(client, store, in, out, c.RequestTimeout)
	a.closers = append(a.closers, client.Close, store.Close)
	return a, nil
}

// Close releases the connection and the session database.
func (a *App) Close() {
	for _, c := range a.closers {
		_ = c()
	}
	a.closers = nil
}

// Run resumes a stored session, if any, and reads commands until EOF or exit.
func (a *App) Run(ctx context.Context) {
	fmt.Fprintln(a.out, "Welcome to GradeKeeper CLI (type 'help' for commands)")
	a.resume(ctx)

	for {
		fmt.Fprintf(a.out, "gk%s> ", a.status())
		line, err := a.in.ReadString('\n')
		if strings.TrimSpace(line) != "" {
			if !a.Exec(ctx, line) {
				return
			}
		}
		if err != nil {
			fmt.Fprintln(a.out)
			return
		}
	}
}

func (a *App) status() string {
	if a.me == nil {
		return ""
	}
	return fmt.Sprintf(" (%s %s)", a.me.Email, a.me.Role)
}

func (a *App) resume(ctx context.Context) {
	sess, err := a.sessions.Load(ctx)
	if err != nil {
		a.printErr(err)
		return
	}
	if sess == nil {
		return
	}

	a.backend.Resume(sess.RefreshToken)
	cctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	me, err := a.backend.Me(cctx)
	if err != nil {
		if errors.Is(err, grpcclient.ErrUnauthenticated) {
			_ = a.sessions.Clear(ctx)
			fmt.Fprintln(a.out, "Stored session has expired, please log in.")
			return
		}
		a.printErr(err)
		return
	}
	a.me = me
	fmt.Fprintf(a.out, "Resumed session of %s\n", me.Email)
}

func (a *App) printErr(err error) {
	fmt.Fprintf(a.out, "error: %v\n", err)
}

// Exec runs one command line. It returns false when the REPL should stop.
func (a *App) Exec(ctx context.Context, line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return true
	}
	cmd, args := parts[0], parts[1:]

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	var err error
	switch cmd {
	case "help":
		a.help()
	case "exit", "quit":
		fmt.Fprintln(a.out, "Bye!")
		return false
	case "login":
		err = a.login(ctx)
	case "logout":
		err = a.logout(ctx, len(args) > 0 && args[0] == "-all")
	case "passwd":
		err = a.changePassword(ctx)
	case "me":
		err = a.showMe(ctx)
	case "create":
		err = a.create(ctx, args)
	case "show":
		err = a.show(ctx, args)
	case "history":
		err = a.history(ctx, args)
	case "evidence":
		err = a.evidence(ctx, args)
	default:
		to, ok := transitionCommands[cmd]
		if !ok {
			fmt.Fprintf(a.out, "unknown command %q, type 'help'\n", cmd)
			return true
		}
		err = a.transition(ctx, to, args)
	}

	if err != nil {
		a.printErr(err)
	}
	return true
}

func (a *App) help() {
	if a.me == nil {
		fmt.Fprintln(a.out, "Available commands: login, help, exit")
		return
	}
	fmt.Fprintln(a.out, `Available commands:
  me                         show who you are
  create <student-id> <title> assign work to a student
  show <id>                  show an assignment
  submit|review|complete|reopen <id> [reason]
  history <id>               list the audit trail
  evidence <id> [file]       export the audit trail for a dispute,
                             saving the bundle to file when given
  passwd                     change your password
  logout [-all]              sign out (everywhere with -all)
  exit`)
}

func needID(args []string) (string, error) {
	if len(args) == 0 {
		return "", errors.New("assignment id is required")
	}
	return args[0], nil
}
