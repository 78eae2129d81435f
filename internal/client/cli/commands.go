package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dmitrijs2005/gradekeeper/internal/api"
	"github.com/dmitrijs2005/gradekeeper/internal/client/session"
	"github.com/dmitrijs2005/gradekeeper/internal/filex"
	"github.com/dmitrijs2005/gradekeeper/internal/prompt"
)

func (a *App) login(ctx context.Context) error {
	email, err := prompt.GetSimpleText(a.in, "Email", a.out)
	if err != nil {
		return err
	}
	password, err := prompt.GetPassword(a.in, "Password", a.out)
	if err != nil {
		return err
	}

	resp, err := a.backend.Login(ctx, email, password)
	if err != nil {
		return err
	}
	a.me = &resp.Principal

	if err := a.sessions.Save(ctx, session.Session{Email: email, UserID: resp.Principal.UserID, RefreshToken: resp.RefreshToken}); err != nil {
		fmt.Fprintf(a.out, "warning: session not saved: %v\n", err)
	}
	fmt.Fprintf(a.out, "Logged in as %s (%s, school %s)\n", resp.Principal.Email, resp.Principal.Role, resp.Principal.SchoolID)
	return nil
}

func (a *App) forget(ctx context.Context) {
	a.me = nil
	if err := a.sessions.Clear(ctx); err != nil {
		fmt.Fprintf(a.out, "warning: session not cleared: %v\n", err)
	}
}

func (a *App) logout(ctx context.Context, everywhere bool) error {
	err := a.backend.Logout(ctx, everywhere)
	a.forget(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Logged out")
	return nil
}

func (a *App) changePassword(ctx context.Context) error {
	oldPassword, err := prompt.GetPassword(a.in, "Current password", a.out)
	if err != nil {
		return err
	}
	newPassword, err := prompt.GetPassword(a.in, "New password", a.out)
	if err != nil {
		return err
	}
	if err := a.backend.ChangePassword(ctx, oldPassword, newPassword); err != nil {
		return err
	}
	a.forget(ctx)
	fmt.Fprintln(a.out, "Password changed, all sessions were signed out. Please log in again.")
	return nil
}

func (a *App) showMe(ctx context.Context) error {
	me, err := a.backend.Me(ctx)
	if err != nil {
		return err
	}
	a.me = me
	fmt.Fprintf(a.out, "%s  %s  role=%s school=%s\n", me.UserID, me.Email, me.Role, me.SchoolID)
	return nil
}

func (a *App) create(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: create <student-id> <title>")
	}
	as, err := a.backend.CreateAssignment(ctx, args[0], strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	a.printAssignment(as)
	return nil
}

func (a *App) show(ctx context.Context, args []string) error {
	id, err := needID(args)
	if err != nil {
		return err
	}
	as, err := a.backend.GetAssignment(ctx, id)
	if err != nil {
		return err
	}
	a.printAssignment(as)
	return nil
}

func (a *App) transition(ctx context.Context, to string, args []string) error {
	id, err := needID(args)
	if err != nil {
		return err
	}
	ev, err := a.backend.Transition(ctx, id, to, strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s: %s -> %s\n", id, ev.FromStatus, ev.ToStatus)
	return nil
}

func (a *App) history(ctx context.Context, args []string) error {
	id, err := needID(args)
	if err != nil {
		return err
	}
	events, err := a.backend.History(ctx, id)
	if err != nil {
		return err
	}
	for _, e := range events {
		from := e.FromStatus
		if from == "" {
			from = "-"
		}
		line := fmt.Sprintf("%s  %-9s -> %-9s by %s", e.CreatedAt.UTC().Format(time.RFC3339), from, e.ToStatus, e.ActorUserID)
		if r := e.Metadata["reason"]; r != "" {
			line += "  reason: " + r
		}
		fmt.Fprintln(a.out, line)
	}
	return nil
}

func (a *App) evidence(ctx context.Context, args []string) error {
	id, err := needID(args)
	if err != nil {
		return err
	}
	ev, err := a.backend.ExportEvidence(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Evidence %s\nDownload (until %s):\n%s\n", ev.Key, ev.ExpiresAt.UTC().Format(time.RFC3339), ev.URL)
	if len(args) < 2 {
		return nil
	}

	path := args[1]
	body, err := a.download(ctx, ev.URL)
	if err != nil {
		return err
	}
	if _, err := filex.EnsureParentDir(path); err != nil {
		return err
	}
	if err := os.WriteFile(path, body, 0o600); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Saved %d bytes to %s\n", len(body), path)
	return nil
}

func (a *App) printAssignment(as *api.Assignment) {
	fmt.Fprintf(a.out, "%s  %-9s  %s  (student %s, reopened %d)\n", as.ID, as.Status, as.Title, as.StudentID, as.ReopenCount)
}
