package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/edgard/autoreply/internal/autoresponse"
)

type fakeStatus struct{ stats autoresponse.Stats }

func (f fakeStatus) Stats(context.Context) (autoresponse.Stats, error) { return f.stats, nil }

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

type fakeCache struct{ n int }

func (f fakeCache) CacheLen(context.Context) (int, error) { return f.n, nil }

func TestHealthz(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		pingErr  error
		wantCode int
	}{
		{name: "healthy", wantCode: http.StatusOK},
		{name: "database down", pingErr: errors.New("closed"), wantCode: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := NewHandler(fakeStatus{}, fakePinger{err: tt.pingErr}, fakeCache{})

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
		})
	}
}

func TestStatus(t *testing.T) {
	t.Parallel()
	h := NewHandler(fakeStatus{stats: autoresponse.Stats{Running: true, Sent: 3, Tracked: 2}}, fakePinger{}, fakeCache{n: 5})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got Status
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode error = %v", err)
	}
	if !got.AutoResponse.Running || got.AutoResponse.Sent != 3 || got.CachedSummaries != 5 || !got.DatabaseHealthy {
		t.Errorf("status = %+v", got)
	}
}

func TestServer_ServeAndShutdown(t *testing.T) {
	t.Parallel()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := New(ln.Addr().String(), NewHandler(fakeStatus{}, fakePinger{}, fakeCache{}), logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz error = %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
