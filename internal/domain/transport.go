package domain

import (
	"context"
	"net/http"
	"net/url"
)

// APIRequest describes one call against the backend REST API.
type APIRequest struct {
	Method  string
	Path    string
	Query   url.Values
	Body    any
	Headers map[string]string
	// SuccessCode is the only accepted status when non-zero. Zero accepts any 2xx.
	SuccessCode int
	// Anonymous requests carry no bearer and a 401 never starts a token refresh.
	Anonymous bool
}

// IsSuccess reports whether status satisfies the request's success code.
func (r APIRequest) IsSuccess(status int) bool {
	if r.SuccessCode != 0 {
		return status == r.SuccessCode
	}
	return status >= http.StatusOK && status < http.StatusMultipleChoices
}

// APIResponse is a response that was received from the backend, whatever its status.
type APIResponse struct {
	Status int
	Header http.Header
	Body   []byte
}

// Transport sends a request with an optional bearer token. It returns a
// *NetworkError when no response is received and never interprets the status.
type Transport interface {
	RoundTrip(ctx context.Context, req APIRequest, bearer string) (*APIResponse, error)
}

type dispatchHookKey struct{}

// WithDispatchHook returns a context whose Transport calls fn once the request
// has been handed to the network.
func WithDispatchHook(ctx context.Context, fn func()) context.Context {
	return context.WithValue(ctx, dispatchHookKey{}, fn)
}

// Dispatched runs the hook installed by WithDispatchHook, if any. Transports call
// it right before the request leaves the process.
func Dispatched(ctx context.Context) {
	if fn, ok := ctx.Value(dispatchHookKey{}).(func()); ok && fn != nil {
		fn()
	}
}
