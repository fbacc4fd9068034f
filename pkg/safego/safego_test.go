package safego

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gitlab.com/timkado/api/social-feed-client/internal/domain"
)

type recordingLogger struct {
	domain.NopLogger
	mu     sync.Mutex
	errors []string
}

func (l *recordingLogger) Error(_ context.Context, msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

func (l *recordingLogger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.errors)
}

func TestExecuteRecoversPanic(t *testing.T) {
	logger := &recordingLogger{}
	done := make(chan struct{})
	Execute(context.Background(), logger, "Exploder", func() {
		defer close(done)
		panic("boom")
	})
	<-done
	require.Eventually(t, func() bool { return logger.count() == 1 }, time.Second, time.Millisecond)
}

func TestCallReturnsPanicAsError(t *testing.T) {
	logger := &recordingLogger{}
	err := Call(context.Background(), logger, "Handler", func() error { panic("bad payload") })
	require.ErrorContains(t, err, "panic in Handler: bad payload")
	require.Equal(t, 1, logger.count())
}

func TestCallPassesErrorsThrough(t *testing.T) {
	want := errors.New("plain failure")
	err := Call(context.Background(), &recordingLogger{}, "Handler", func() error { return want })
	require.ErrorIs(t, err, want)
}
