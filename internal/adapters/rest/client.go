package rest

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"gitlab.com/timkado/api/social-feed-client/internal/adapters/config"
	"gitlab.com/timkado/api/social-feed-client/internal/adapters/metrics"
	"gitlab.com/timkado/api/social-feed-client/internal/domain"
	"gitlab.com/timkado/api/social-feed-client/pkg/contextkeys"
)

const (
	defaultTimeout      = 10 * time.Second
	maxResponseBodySize = 8 << 20
)

// Client implements domain.Transport against the backend REST API.
type Client struct {
	APIAddress string
	HTTPClient *http.Client
	logger     domain.Logger
}

// NewClient builds a Client from the api section of the configuration.
func NewClient(cfgProvider config.Provider, logger domain.Logger) (*Client, error) {
	apiCfg := cfgProvider.Get().API
	if apiCfg.BaseURL == "" {
		return nil, errors.New("api.base_url is not configured")
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if apiCfg.AllowInsecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} // #nosec G402 -- opt-in for local backends
	}
	return &Client{
		APIAddress: strings.TrimRight(apiCfg.BaseURL, "/"),
		HTTPClient: &http.Client{
			Timeout:   config.Seconds(apiCfg.TimeoutSeconds, defaultTimeout),
			Transport: transport,
		},
		logger: logger,
	}, nil
}

// RoundTrip sends req and returns whatever response came back. Only the absence
// of a response is an error.
func (c *Client) RoundTrip(ctx context.Context, req domain.APIRequest, bearer string) (*domain.APIResponse, error) {
	op := fmt.Sprintf("%s %s", req.Method, req.Path)

	var body io.Reader
	if req.Body != nil {
		switch b := req.Body.(type) {
		case []byte:
			body = bytes.NewReader(b)
		default:
			encoded, err := json.Marshal(req.Body)
			if err != nil {
				return nil, fmt.Errorf("error marshaling request body for %s: %w", op, err)
			}
			body = bytes.NewReader(encoded)
		}
	}

	r, err := http.NewRequestWithContext(ctx, req.Method, c.APIAddress+"/"+strings.TrimLeft(req.Path, "/"), body)
	if err != nil {
		return nil, fmt.Errorf("error creating request %s: %w", op, err)
	}
	if len(req.Query) > 0 {
		r.URL.RawQuery = req.Query.Encode()
	}
	r.Header.Set("Accept", "application/json")
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	requestID, _ := ctx.Value(contextkeys.RequestIDKey).(string)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	r.Header.Set("X-Request-ID", requestID)
	if bearer != "" {
		r.Header.Set("Authorization", "Bearer "+bearer)
	}
	for k, v := range req.Headers {
		r.Header.Set(k, v)
	}

	start := time.Now()
	domain.Dispatched(ctx)
	resp, err := c.HTTPClient.Do(r)
	if err != nil {
		metrics.ObserveAPIRequest(req.Method, 0, time.Since(start))
		netErr := &domain.NetworkError{Op: op, Err: err, Timeout: isTimeout(err)}
		c.logger.Warn(ctx, "Backend request failed without a response", "op", op, "timeout", netErr.Timeout, "error", err.Error())
		return nil, netErr
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		metrics.ObserveAPIRequest(req.Method, 0, time.Since(start))
		return nil, &domain.NetworkError{Op: op, Err: fmt.Errorf("error reading response body: %w", err), Timeout: isTimeout(err)}
	}
	metrics.ObserveAPIRequest(req.Method, resp.StatusCode, time.Since(start))
	c.logger.Debug(ctx, "Backend request completed", "op", op, "status", resp.StatusCode, "duration", time.Since(start).String())

	return &domain.APIResponse{
		Status: resp.StatusCode,
		Header: resp.Header,
		Body:   respBody,
	}, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
