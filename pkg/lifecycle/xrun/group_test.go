package xrun

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func blockUntilDone(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestGroup_FirstErrorCancelsOthers(t *testing.T) {
	boom := errors.New("boom")
	g, _ := NewGroup(context.Background())

	var stopped atomic.Bool
	g.Go(Service{Name: "waiter", Run: func(ctx context.Context) error {
		<-ctx.Done()
		stopped.Store(true)
		return ctx.Err()
	}})
	g.Go(Service{Name: "failer", Run: func(context.Context) error { return boom }})

	assert.ErrorIs(t, g.Wait(), boom)
	assert.True(t, stopped.Load())
}

func TestGroup_CancelCause(t *testing.T) {
	stop := errors.New("maintenance")
	g, _ := NewGroup(context.Background())
	g.Go(Service{Name: "a", Run: blockUntilDone})
	g.Cancel(stop)
	assert.ErrorIs(t, g.Wait(), stop)
}

func TestGroup_ParentCancelIsClean(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	g, _ := NewGroup(ctx)
	g.Go(Service{Name: "a", Run: blockUntilDone})
	cancel()
	assert.NoError(t, g.Wait())
}

func TestGroup_ParentDeadlineIsClean(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	g, _ := NewGroup(ctx)
	g.Go(Service{Name: "a", Run: blockUntilDone})
	g.Go(Service{Name: "b", Run: func(context.Context) error { return nil }})
	assert.NoError(t, g.Wait())
}

func TestRun_ParentDeadlineIsClean(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := Run(ctx, nil, Service{Name: "a", Run: blockUntilDone})
	assert.NoError(t, err)
}

func TestGroup_ServiceDeadlineErrorIsReturned(t *testing.T) {
	g, _ := NewGroup(context.Background())
	g.Go(Service{Name: "dial", Run: func(context.Context) error {
		return context.DeadlineExceeded
	}})
	assert.ErrorIs(t, g.Wait(), context.DeadlineExceeded)
}

func TestGroup_NilFunc(t *testing.T) {
	g, _ := NewGroup(context.Background())
	g.Go(Service{Name: "nil"})
	assert.ErrorIs(t, g.Wait(), ErrNilFunc)
}

func TestRun_Signal(t *testing.T) {
	sig := make(chan os.Signal, 1)
	ctx := withSignal(context.Background(), sig)
	sig <- syscall.SIGTERM

	err := Run(ctx, nil, Service{Name: "a", Run: blockUntilDone})
	require.ErrorIs(t, err, ErrSignal)
	var se *SignalError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, syscall.SIGTERM, se.Signal)
}

func TestRun_WithoutSignalHandler(t *testing.T) {
	err := Run(context.Background(), []Option{WithoutSignalHandler()},
		Service{Name: "done", Run: func(context.Context) error { return nil }})
	assert.NoError(t, err)
}

func TestHTTPServer_GracefulShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	srv := &http.Server{
		Addr:              addr,
		ReadHeaderTimeout: time.Second,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}),
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- HTTPServer(srv, time.Second)(ctx) }()

	client := &http.Client{Timeout: time.Second}
	require.Eventually(t, func() bool {
		resp, err := client.Get("http://" + addr)
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusNoContent
	}, 5*time.Second, 10*time.Millisecond)
	client.CloseIdleConnections()

	cancel()
	assert.NoError(t, <-done)
}

func TestHTTPServer_ListenError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	srv := &http.Server{Addr: ln.Addr().String(), ReadHeaderTimeout: time.Second}
	err = HTTPServer(srv, time.Second)(context.Background())
	assert.Error(t, err)

	assert.ErrorIs(t, HTTPServer(nil, 0)(context.Background()), ErrNilServer)
}

func TestTicker(t *testing.T) {
	var n atomic.Int32
	stop := errors.New("enough")
	err := Ticker(time.Millisecond, func(context.Context) error {
		if n.Add(1) == 3 {
			return stop
		}
		return nil
	})(context.Background())
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, int32(3), n.Load())

	assert.ErrorIs(t, Ticker(0, nil)(context.Background()), ErrInvalidInterval)
	assert.ErrorIs(t, Ticker(time.Second, nil)(context.Background()), ErrNilFunc)
}
