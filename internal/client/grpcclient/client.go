// Package grpcclient is the client side of the gradekeeper gRPC service. It
// attaches the access credential to every call and, when the server rejects
// it, exchanges the refresh credential for a new one and retries once.
package grpcclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/gradekeeper/internal/api"
	"github.com/dmitrijs2005/gradekeeper/internal/common"
	gs "github.com/dmitrijs2005/gradekeeper/internal/server/grpc"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

var (
	ErrUnavailable      = errors.New("server unavailable")
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("assignment changed concurrently")
	ErrInvalidRequest   = errors.New("invalid request")
)

// InvalidTransitionError is returned when the server refuses a status change.
type InvalidTransitionError struct {
	From      string
	Attempted string
	Valid     []string
}

func (e *InvalidTransitionError) Error() string {
	valid := "none"
	if len(e.Valid) > 0 {
		valid = strings.Join(e.Valid, ", ")
	}
	return fmt.Sprintf("cannot move from %s to %s (allowed: %s)", e.From, e.Attempted, valid)
}

// MaxConflictRetries bounds how often a transition is retried after the
// server reports a concurrent update.
const MaxConflictRetries = 3

var publicMethods = map[string]bool{
	gs.FullMethod(gs.MethodLogin):        true,
	gs.FullMethod(gs.MethodRefreshToken): true,
}

type Client struct {
	conn *grpc.ClientConn

	mu           sync.Mutex
	accessToken  string
	refreshToken string

	// sleep is a seam for conflict back-off.
	sleep func(ctx context.Context, d time.Duration) error
}

// New dials target. Extra options are appended after the defaults, so tests
// can supply a bufconn dialer.
func New(target string, opts ...grpc.DialOption) (*Client, error) {
	c := &Client{sleep: sleepCtx}
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(c.accessTokenInterceptor),
	}, opts...)

	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	return c, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) tokens() (string, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken, c.refreshToken
}

func (c *Client) setTokens(access, refresh string) {
	c.mu.Lock()
	c.accessToken, c.refreshToken = access, refresh
	c.mu.Unlock()
}

// Resume continues a stored session. The first protected call exchanges
// refreshToken for an access credential.
func (c *Client) Resume(refreshToken string) {
	c.setTokens("", refreshToken)
}

// RefreshToken returns the refresh credential of the current session.
func (c *Client) RefreshToken() string {
	_, r := c.tokens()
	return r
}

func withAccessToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, common.AuthorizationHeaderName, common.BearerPrefix+token)
}

func (c *Client) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply any,
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	if publicMethods[method] {
		return invoker(ctx, method, req, reply, cc, opts...)
	}

	access, refresh := c.tokens()
	err := invoker(withAccessToken(ctx, access), method, req, reply, cc, opts...)
	if status.Code(err) != codes.Unauthenticated || refresh == "" {
		return err
	}

	resp, rerr := gs.Invoke[api.RefreshResponse](ctx, cc, gs.MethodRefreshToken, &api.RefreshRequest{RefreshToken: refresh})
	if rerr != nil {
		return err
	}
	c.setTokens(resp.AccessToken, refresh)

	return invoker(withAccessToken(ctx, resp.AccessToken), method, req, reply, cc, opts...)
}

func (c *Client) mapError(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.Unauthenticated:
		return fmt.Errorf("%w: %s", ErrUnauthenticated, st.Message())
	case codes.PermissionDenied:
		return ErrPermissionDenied
	case codes.NotFound:
		return ErrNotFound
	case codes.FailedPrecondition:
		for _, d := range st.Details() {
			if info, ok := d.(*errdetails.ErrorInfo); ok && info.GetReason() == "INVALID_TRANSITION" {
				ite := &InvalidTransitionError{From: info.Metadata["from"], Attempted: info.Metadata["attempted"]}
				if v := info.Metadata["valid"]; v != "" {
					ite.Valid = strings.Split(v, ",")
				}
				return ite
			}
		}
		return fmt.Errorf("rpc error: %w", err)
	case codes.Aborted:
		return ErrConflict
	case codes.InvalidArgument, codes.AlreadyExists:
		return fmt.Errorf("%w: %s", ErrInvalidRequest, st.Message())
	case codes.Unavailable, codes.DeadlineExceeded:
		return ErrUnavailable
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}

// retryDelay reads the server's RetryInfo hint.
func retryDelay(err error) time.Duration {
	st, ok := status.FromError(err)
	if !ok {
		return gs.RetryDelay
	}
	for _, d := range st.Details() {
		if ri, ok := d.(*errdetails.RetryInfo); ok && ri.GetRetryDelay() != nil {
			return ri.GetRetryDelay().AsDuration()
		}
	}
	return gs.RetryDelay
}

func (c *Client) Login(ctx context.Context, email, password string) (*api.LoginResponse, error) {
	resp, err := gs.Invoke[api.LoginResponse](ctx, c.conn, gs.MethodLogin, &api.LoginRequest{Email: email, Password: password})
	if err != nil {
		return nil, c.mapError(err)
	}
	c.setTokens(resp.AccessToken, resp.RefreshToken)
	return resp, nil
}

// Logout ends this session, or every session of the user when everywhere is
// set. Local credentials are dropped either way.
func (c *Client) Logout(ctx context.Context, everywhere bool) error {
	req := &api.LogoutRequest{}
	if !everywhere {
		req.RefreshToken = c.RefreshToken()
	}
	_, err := gs.Invoke[api.Empty](ctx, c.conn, gs.MethodLogout, req)
	c.setTokens("", "")
	return c.mapError(err)
}

func (c *Client) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	_, err := gs.Invoke[api.Empty](ctx, c.conn, gs.MethodChangePassword, &api.ChangePasswordRequest{OldPassword: oldPassword, NewPassword: newPassword})
	if err != nil {
		return c.mapError(err)
	}
	// The server revoked every refresh credential of the account.
	c.setTokens("", "")
	return nil
}

func (c *Client) Me(ctx context.Context) (*api.Principal, error) {
	resp, err := gs.Invoke[api.Principal](ctx, c.conn, gs.MethodMe, &api.Empty{})
	return resp, c.mapError(err)
}

func (c *Client) CreateAssignment(ctx context.Context, studentID, title string) (*api.Assignment, error) {
	resp, err := gs.Invoke[api.Assignment](ctx, c.conn, gs.MethodCreateAssignment, &api.CreateAssignmentRequest{StudentID: studentID, Title: title})
	return resp, c.mapError(err)
}

func (c *Client) GetAssignment(ctx context.Context, id string) (*api.Assignment, error) {
	resp, err := gs.Invoke[api.Assignment](ctx, c.conn, gs.MethodGetAssignment, &api.AssignmentRef{ID: id})
	return resp, c.mapError(err)
}

// Transition requests a status change, retrying after concurrent updates as
// the server suggests.
func (c *Client) Transition(ctx context.Context, id, to, reason string) (*api.Event, error) {
	req := &api.TransitionRequest{ID: id, To: to, Reason: reason}
	for attempt := 0; ; attempt++ {
		resp, err := gs.Invoke[api.Event](ctx, c.conn, gs.MethodTransitionAssignment, req)
		if status.Code(err) != codes.Aborted || attempt >= MaxConflictRetries {
			return resp, c.mapError(err)
		}
		if serr := c.sleep(ctx, retryDelay(err)); serr != nil {
			return nil, serr
		}
	}
}

func (c *Client) History(ctx context.Context, id string) ([]api.Event, error) {
	resp, err := gs.Invoke[api.HistoryResponse](ctx, c.conn, gs.MethodAssignmentHistory, &api.AssignmentRef{ID: id})
	if err != nil {
		return nil, c.mapError(err)
	}
	return resp.Events, nil
}

func (c *Client) ExportEvidence(ctx context.Context, id string) (*api.EvidenceResponse, error) {
	resp, err := gs.Invoke[api.EvidenceResponse](ctx, c.conn, gs.MethodExportEvidence, &api.AssignmentRef{ID: id})
	return resp, c.mapError(err)
}
