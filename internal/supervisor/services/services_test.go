// Rdiffgate - Web Access to rdiff-backup Repositories
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rdiffgate

package services

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/rdiffgate/internal/events"
)

type fakeConsumer struct {
	err error
}

func (f fakeConsumer) ConsumeAccountEvents(ctx context.Context, _ *events.Bus) error {
	if f.err == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.err
}

func TestAccountNotifierService(t *testing.T) {
	var _ suture.Service = (*AccountNotifierService)(nil)

	tests := []struct {
		name   string
		err    error
		cancel bool
		want   error
	}{
		{"closed bus is final", events.ErrClosed, false, suture.ErrDoNotRestart},
		{"subscribe failure restarts", errors.New("subscribe failed"), false, nil},
		{"shutdown", nil, true, context.Canceled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewAccountNotifierService(fakeConsumer{err: tt.err}, nil)
			ctx, cancel := context.WithCancel(context.Background())
			if tt.cancel {
				cancel()
			} else {
				defer cancel()
			}
			err := svc.Serve(ctx)
			if tt.want == nil {
				if err == nil || errors.Is(err, suture.ErrDoNotRestart) {
					t.Errorf("Serve = %v, want a restartable error", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("Serve = %v, want %v", err, tt.want)
			}
		})
	}
	if NewAccountNotifierService(fakeConsumer{}, nil).String() != "account-notifier" {
		t.Error("unexpected service name")
	}
}

type countingRunner struct {
	runs atomic.Int32
	err  error
}

func (c *countingRunner) RunOnce(context.Context) error {
	c.runs.Add(1)
	return c.err
}

func (c *countingRunner) String() string { return "job-discover" }

func TestStartupServiceRunsOnce(t *testing.T) {
	r := &countingRunner{err: errors.New("partial failure")}
	sup := suture.New("test", suture.Spec{FailureBackoff: 10 * time.Millisecond})
	sup.Add(NewStartupService(r))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	<-sup.ServeBackground(ctx)

	if got := r.runs.Load(); got != 1 {
		t.Errorf("runs = %d, want 1", got)
	}
	if got := NewStartupService(r).String(); got != "startup-job-discover" {
		t.Errorf("String = %q", got)
	}
}

func TestHTTPServerService_RealServer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	srv := &http.Server{
		Addr:              addr,
		ReadHeaderTimeout: time.Second,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}),
	}
	svc := NewHTTPServerService(srv, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Serve(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get("http://" + addr + "/") //nolint:noctx // test
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode != http.StatusNoContent {
				t.Errorf("status = %d", resp.StatusCode)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server never answered: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Errorf("Serve = %v, want context.Canceled", err)
	}
}
