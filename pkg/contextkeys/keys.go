package contextkeys

// contextKey is an unexported type for context keys to avoid collisions.
type contextKey string

const (
	// RequestIDKey is the context key for storing and retrieving a request ID.
	RequestIDKey contextKey = "request_id"

	// UserIDKey is the context key for the id of the logged-in user.
	UserIDKey contextKey = "user_id"

	// CacheKeyKey carries the response cache key a fetch is filling.
	CacheKeyKey contextKey = "cache_key"

	// InstanceIDKey identifies this client process in logs and session events.
	InstanceIDKey contextKey = "instance_id"
)

// LoggedKeys are copied from the context into every log line, in this order.
var LoggedKeys = []contextKey{RequestIDKey, UserIDKey, CacheKeyKey, InstanceIDKey}

// String makes contextKey satisfy fmt.Stringer to help with debugging/logging of keys themselves.
func (c contextKey) String() string {
	return string(c)
}
