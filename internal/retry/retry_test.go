package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeTimer fires immediately and records every requested wait.
type fakeTimer struct {
	waits []time.Duration
	c     chan time.Time
}

func newFakeTimer() *fakeTimer {
	return &fakeTimer{c: make(chan time.Time, 1)}
}

func (t *fakeTimer) Start(d time.Duration) {
	t.waits = append(t.waits, d)
	t.c <- time.Now()
}

func (t *fakeTimer) Stop() {}

func (t *fakeTimer) C() <-chan time.Time { return t.c }

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func testPolicy(timer *fakeTimer) Policy {
	p := Default()
	p.Timer = timer
	return p
}

func TestDoSucceedsOnThirdAttempt(t *testing.T) {
	timer := newFakeTimer()
	calls := 0

	err := testPolicy(timer).Do(context.Background(), zaptest.NewLogger(t), func() error {
		calls++
		if calls < 3 {
			return &url.Error{Op: "Post", URL: "http://registry", Err: timeoutErr{}}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, timer.waits)
}

func TestDoGivesUpAfterMaxAttempts(t *testing.T) {
	timer := newFakeTimer()
	calls := 0
	transient := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}

	err := testPolicy(timer).Do(context.Background(), nil, func() error {
		calls++
		return transient
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, transient)
	assert.Equal(t, 3, calls)
	assert.Len(t, timer.waits, 2)
}

func TestDoDoesNotRetryPermanentErrors(t *testing.T) {
	timer := newFakeTimer()
	calls := 0
	permanent := fmt.Errorf("status 404")

	err := testPolicy(timer).Do(context.Background(), nil, func() error {
		calls++
		return permanent
	})

	assert.Equal(t, permanent, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, timer.waits)
}

func TestBackoffCurveIsCapped(t *testing.T) {
	timer := newFakeTimer()
	p := testPolicy(timer)
	p.MaxAttempts = 6

	_ = p.Do(context.Background(), nil, func() error { return timeoutErr{} })

	assert.Equal(t, []time.Duration{
		2 * time.Second, 4 * time.Second, 8 * time.Second, 10 * time.Second, 10 * time.Second,
	}, timer.waits)
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"timeout", timeoutErr{}, true},
		{"url timeout", &url.Error{Op: "Get", URL: "x", Err: timeoutErr{}}, true},
		{"reset", &url.Error{Op: "Get", URL: "x", Err: &net.OpError{Op: "read", Net: "tcp", Err: syscall.ECONNRESET}}, true},
		{"refused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), true},
		{"truncated body", &url.Error{Op: "Get", URL: "x", Err: io.ErrUnexpectedEOF}, true},
		{"canceled", &url.Error{Op: "Get", URL: "x", Err: context.Canceled}, false},
		{"unsupported scheme", &url.Error{Op: "Get", URL: "ftp://x", Err: errors.New(`unsupported protocol scheme "ftp"`)}, false},
		{"bad certificate", &url.Error{Op: "Get", URL: "https://x", Err: errors.New("x509: certificate signed by unknown authority")}, false},
		{"redirect loop", &url.Error{Op: "Get", URL: "x", Err: errors.New("stopped after 10 redirects")}, false},
		{"plain", errors.New("bad json"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}
