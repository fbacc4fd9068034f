package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"gitlab.com/timkado/api/social-feed-client/internal/adapters/metrics"
	"gitlab.com/timkado/api/social-feed-client/internal/domain"
	"gitlab.com/timkado/api/social-feed-client/pkg/safego"
)

// RefreshPath is the backend endpoint exchanging a refresh token for new tokens.
const RefreshPath = "/auth/refresh"

var errSessionReplaced = errors.New("session changed while refreshing")

// Dispatcher sends backend requests with the current access token and recovers
// from expired tokens with at most one refresh in flight at any time.
type Dispatcher struct {
	transport domain.Transport
	session   *SessionState
	logger    domain.Logger

	mu    sync.Mutex
	cycle *refreshCycle
}

// refreshCycle is the single in-flight refresh. Its waiters form a chain so
// their retries reach the transport in enqueue order.
type refreshCycle struct {
	waiters []*refreshWaiter
	tail    <-chan struct{}
}

// refreshWaiter is one request parked on a refresh cycle. It may dispatch its
// retry once turn is closed, and closes release when its own retry is on the wire.
type refreshWaiter struct {
	result  chan refreshResult
	turn    <-chan struct{}
	release chan struct{}
	once    sync.Once
}

type refreshResult struct {
	accessToken string
	err         error
}

func newRefreshCycle() *refreshCycle {
	head := make(chan struct{})
	close(head)
	return &refreshCycle{tail: head}
}

// enqueue must be called with Dispatcher.mu held.
func (c *refreshCycle) enqueue() *refreshWaiter {
	w := &refreshWaiter{
		result:  make(chan refreshResult, 1),
		turn:    c.tail,
		release: make(chan struct{}),
	}
	c.tail = w.release
	c.waiters = append(c.waiters, w)
	return w
}

func (w *refreshWaiter) done() {
	w.once.Do(func() { close(w.release) })
}

// abandon hands the turn on once the predecessor is done, so later waiters
// never overtake an earlier one.
func (w *refreshWaiter) abandon() {
	go func() {
		<-w.turn
		w.done()
	}()
}

// wait blocks until the cycle settles and, on success, until every earlier
// waiter has dispatched its retry.
func (w *refreshWaiter) wait(ctx context.Context) (string, error) {
	select {
	case res := <-w.result:
		if res.err != nil {
			w.abandon()
			return "", res.err
		}
		select {
		case <-w.turn:
			return res.accessToken, nil
		case <-ctx.Done():
			w.abandon()
			return "", ctx.Err()
		}
	case <-ctx.Done():
		w.abandon()
		return "", ctx.Err()
	}
}

func NewDispatcher(transport domain.Transport, session *SessionState, logger domain.Logger) *Dispatcher {
	return &Dispatcher{
		transport: transport,
		session:   session,
		logger:    logger,
	}
}

// Do sends req and decodes a successful JSON body into out, when out is non-nil.
func (d *Dispatcher) Do(ctx context.Context, req domain.APIRequest, out any) error {
	resp, err := d.Send(ctx, req)
	if err != nil {
		return err
	}
	if out == nil || len(resp.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("error unmarshaling response body of %s %s: %w", req.Method, req.Path, err)
	}
	return nil
}

// Send sends req, refreshing and retrying once on 401. A non-success status is
// returned as *domain.RequestError. Retries that waited on the same refresh are
// dispatched in the order their 401s arrived.
func (d *Dispatcher) Send(ctx context.Context, req domain.APIRequest) (*domain.APIResponse, error) {
	if req.Anonymous {
		return d.roundTrip(ctx, req, "")
	}

	sent := d.session.Snapshot()
	resp, err := d.transport.RoundTrip(ctx, req, sent.AccessToken)
	if err != nil {
		return nil, err
	}
	if resp.Status != http.StatusUnauthorized {
		return checkStatus(req, resp)
	}

	d.logger.Debug(ctx, "Request unauthorized, awaiting token refresh", "method", req.Method, "path", req.Path)
	newToken, waiter, err := d.awaitToken(ctx, sent)
	if err != nil {
		return nil, err
	}
	if waiter == nil {
		return d.roundTrip(ctx, req, newToken)
	}
	defer waiter.done()
	if owner := userID(d.session.Snapshot()); owner != userID(sent) {
		return nil, ownerChanged(sent, owner)
	}
	// Retried exactly once. A second 401 surfaces as a RequestError.
	return d.roundTrip(domain.WithDispatchHook(ctx, waiter.done), req, newToken)
}

func (d *Dispatcher) roundTrip(ctx context.Context, req domain.APIRequest, bearer string) (*domain.APIResponse, error) {
	resp, err := d.transport.RoundTrip(ctx, req, bearer)
	if err != nil {
		return nil, err
	}
	return checkStatus(req, resp)
}

func checkStatus(req domain.APIRequest, resp *domain.APIResponse) (*domain.APIResponse, error) {
	if req.IsSuccess(resp.Status) {
		return resp, nil
	}
	return nil, domain.NewRequestError(resp.Status, resp.Body)
}

// awaitToken returns the token to retry with after the token in sent was
// rejected. The waiter is nil when no refresh cycle was joined.
func (d *Dispatcher) awaitToken(ctx context.Context, sent domain.Session) (string, *refreshWaiter, error) {
	d.mu.Lock()
	if d.cycle != nil {
		w := d.cycle.enqueue()
		d.mu.Unlock()
		token, err := w.wait(ctx)
		return token, w, err
	}
	current := d.session.Snapshot()
	if current.AccessToken != "" && current.AccessToken != sent.AccessToken {
		d.mu.Unlock()
		// Another cycle rotated the token after this request was sent.
		if owner := userID(current); owner != userID(sent) {
			return "", nil, ownerChanged(sent, owner)
		}
		return current.AccessToken, nil, nil
	}
	cycle := newRefreshCycle()
	w := cycle.enqueue()
	d.cycle = cycle
	d.mu.Unlock()

	metrics.SetRefreshInFlight(true)
	// The cycle outlives any single caller's cancellation.
	cycleCtx := context.WithoutCancel(ctx)
	safego.Execute(cycleCtx, d.logger, "TokenRefreshCycle", func() {
		d.runCycle(cycleCtx, cycle, current.RefreshToken)
	})
	token, err := w.wait(ctx)
	return token, w, err
}

// ownerChanged is returned when a request sent for one user would be replayed
// with another user's token.
func ownerChanged(sent domain.Session, owner string) error {
	return fmt.Errorf("%w: session changed from user %q to %q while the request was in flight",
		domain.ErrUnauthorized, userID(sent), owner)
}

func (d *Dispatcher) runCycle(ctx context.Context, cycle *refreshCycle, refreshToken string) {
	token, err := d.refresh(ctx, refreshToken)

	d.mu.Lock()
	waiters := cycle.waiters
	d.cycle = nil
	d.mu.Unlock()
	metrics.SetRefreshInFlight(false)
	metrics.ObserveRefreshWaiters(len(waiters))

	for _, w := range waiters {
		w.result <- refreshResult{accessToken: token, err: err}
	}
}

// refresh performs the exchange and leaves the session rotated or cleared before returning.
func (d *Dispatcher) refresh(ctx context.Context, refreshToken string) (string, error) {
	if refreshToken == "" {
		metrics.IncrementRefreshCycle("no_refresh_token")
		d.logger.Warn(ctx, "Access token rejected and no refresh token available, logging out")
		d.logout(ctx)
		return "", fmt.Errorf("%w: %w", domain.ErrNoRefreshToken, domain.ErrUnauthorized)
	}

	var out domain.RefreshTokenResponse
	resp, err := d.transport.RoundTrip(ctx, domain.APIRequest{
		Method: http.MethodPost,
		Path:   RefreshPath,
		Body:   domain.RefreshTokenRequest{RefreshToken: refreshToken},
	}, "")
	if err == nil && !(domain.APIRequest{}).IsSuccess(resp.Status) {
		err = domain.NewRequestError(resp.Status, resp.Body)
	}
	if err == nil {
		if decodeErr := json.Unmarshal(resp.Body, &out); decodeErr != nil {
			err = fmt.Errorf("error unmarshaling refresh response: %w", decodeErr)
		} else if out.AccessToken == "" {
			err = errors.New("refresh response carried no access token")
		}
	}
	if err != nil {
		metrics.IncrementRefreshCycle("failed")
		d.logger.Warn(ctx, "Token refresh failed, logging out", "error", err.Error())
		d.logout(ctx)
		return "", &domain.RefreshError{Err: err}
	}

	rotated, persistErr := d.session.rotateIfCurrent(ctx, refreshToken, out.AccessToken, out.RefreshToken)
	if persistErr != nil {
		d.logger.Error(ctx, "Rotated tokens could not be persisted", "error", persistErr.Error())
	}
	if !rotated {
		metrics.IncrementRefreshCycle("discarded")
		d.logger.Info(ctx, "Session changed during token refresh, discarding new tokens")
		return "", &domain.RefreshError{Err: errSessionReplaced}
	}
	metrics.IncrementRefreshCycle("rotated")
	d.logger.Info(ctx, "Access token refreshed", "refresh_token_rotated", out.RefreshToken != "")
	return out.AccessToken, nil
}

func (d *Dispatcher) logout(ctx context.Context) {
	if err := d.session.Logout(ctx); err != nil {
		d.logger.Error(ctx, "Failed to clear persisted session after refresh failure", "error", err.Error())
	}
}
