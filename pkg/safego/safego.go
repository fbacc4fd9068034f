package safego

import (
	"context"
	"fmt"
	"runtime/debug"

	"gitlab.com/timkado/api/social-feed-client/internal/domain"
)

// Execute runs fn in a new goroutine. A panic is recovered and logged with name
// and a stack trace instead of crashing the process.
func Execute(ctx context.Context, logger domain.Logger, name string, fn func()) {
	go func() {
		defer recoverTo(ctx, logger, name, nil)
		fn()
	}()
}

// Call runs fn on the calling goroutine and turns a panic into an error. Used for
// callbacks invoked from long-lived delivery loops.
func Call(ctx context.Context, logger domain.Logger, name string, fn func() error) (err error) {
	defer recoverTo(ctx, logger, name, &err)
	return fn()
}

func recoverTo(ctx context.Context, logger domain.Logger, name string, errOut *error) {
	r := recover()
	if r == nil {
		return
	}
	// The original context may already be done; logging must still work.
	logCtx := ctx
	if ctx.Err() != nil {
		logCtx = context.Background()
	}
	logger.Error(logCtx, fmt.Sprintf("Panic recovered in goroutine: %s", name),
		"panic_info", fmt.Sprintf("%v", r),
		"stacktrace", string(debug.Stack()),
	)
	if errOut != nil {
		*errOut = fmt.Errorf("panic in %s: %v", name, r)
	}
}
