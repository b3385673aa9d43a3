// Rdiffgate - Web Access to rdiff-backup Repositories
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rdiffgate

package services

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"
)

var (
	_ suture.Service = (*HTTPServerService)(nil)
	_ HTTPServer     = (*http.Server)(nil)
)

// listenerServer serves on a listener opened by the test so the address is
// known before Serve starts.
type listenerServer struct {
	*http.Server
	ln net.Listener
}

func (s *listenerServer) ListenAndServe() error { return s.Serve(s.ln) }

func newListenerServer(t *testing.T, h http.Handler) *listenerServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	return &listenerServer{Server: &http.Server{Handler: h, ReadHeaderTimeout: time.Second}, ln: ln}
}

// failingServer never starts.
type failingServer struct{ err error }

func (f failingServer) ListenAndServe() error            { return f.err }
func (f failingServer) Shutdown(_ context.Context) error { return nil }

// stuckServer blocks until shut down and then reports shutdownErr.
type stuckServer struct {
	stop        chan struct{}
	started     chan struct{}
	shutdownErr error
}

func (s *stuckServer) ListenAndServe() error {
	close(s.started)
	<-s.stop
	return http.ErrServerClosed
}

func (s *stuckServer) Shutdown(_ context.Context) error {
	close(s.stop)
	return s.shutdownErr
}

func TestNewHTTPServerServiceDefaults(t *testing.T) {
	for _, timeout := range []time.Duration{0, -time.Second} {
		svc := NewHTTPServerService(failingServer{}, timeout)
		if svc.shutdownTimeout != DefaultShutdownTimeout {
			t.Errorf("timeout %v: got %v, want %v", timeout, svc.shutdownTimeout, DefaultShutdownTimeout)
		}
	}
	if got := NewHTTPServerService(failingServer{}, time.Minute).String(); got != "http-server" {
		t.Errorf("String() = %q", got)
	}
}

func TestHTTPServerServiceStartupFailure(t *testing.T) {
	bindErr := errors.New("bind: address already in use")
	err := NewHTTPServerService(failingServer{err: bindErr}, time.Second).Serve(context.Background())
	if !errors.Is(err, bindErr) {
		t.Fatalf("Serve() = %v, want %v", err, bindErr)
	}
}

func TestHTTPServerServiceShutdownError(t *testing.T) {
	srv := &stuckServer{stop: make(chan struct{}), started: make(chan struct{}), shutdownErr: errors.New("deadline")}
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- NewHTTPServerService(srv, time.Second).Serve(ctx) }()

	<-srv.started
	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, srv.shutdownErr) {
			t.Errorf("Serve() = %v, want shutdown error", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
}

// An in-flight download finishes while the service shuts down.
func TestHTTPServerServiceDrainsStreams(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	srv := newListenerServer(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "first,")
		w.(http.Flusher).Flush()
		close(entered)
		<-release
		_, _ = io.WriteString(w, "second")
	}))
	addr := srv.ln.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- NewHTTPServerService(srv, 5*time.Second).Serve(ctx) }()

	bodyCh := make(chan string, 1)
	go func() {
		resp, err := http.Get("http://" + addr + "/") //nolint:noctx // test client
		if err != nil {
			bodyCh <- "error: " + err.Error()
			return
		}
		defer resp.Body.Close() //nolint:errcheck // test
		b, _ := io.ReadAll(resp.Body)
		bodyCh <- string(b)
	}()

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("request never reached the handler")
	}
	cancel()
	time.Sleep(50 * time.Millisecond)
	close(release)

	if got := <-bodyCh; got != "first,second" {
		t.Errorf("body = %q, want the full stream", got)
	}
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after the stream finished")
	}
}

func TestHTTPServerServiceUnderSupervisor(t *testing.T) {
	srv := &stuckServer{stop: make(chan struct{}), started: make(chan struct{})}
	sup := suture.New("test", suture.Spec{Timeout: 2 * time.Second})
	sup.Add(NewHTTPServerService(srv, time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	done := sup.ServeBackground(ctx)
	select {
	case <-srv.started:
	case <-time.After(time.Second):
		t.Fatal("server did not start")
	}
	cancel()
	<-done

	select {
	case <-srv.stop:
	default:
		t.Error("Shutdown was not called")
	}
}
