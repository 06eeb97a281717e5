package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/relayforge/errwebhook/internal/compress"
	"github.com/relayforge/errwebhook/internal/health"
	"github.com/relayforge/errwebhook/internal/model"
	"github.com/relayforge/errwebhook/internal/retryexec"
)

func testRetryConfig() retryexec.Config {
	return retryexec.Config{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, Multiplier: 2, JitterFraction: 0}
}

func TestTransport_SendReportSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tr, err := New(Config{WebhookURL: srv.URL, Timeout: time.Second, Retry: testRetryConfig()}, compress.New(false, 1024), nil, zap.NewNop())
	require.NoError(t, err)

	err = tr.SendReport(context.Background(), model.ErrorReport{Message: "boom"})
	assert.NoError(t, err)
}

func TestTransport_NonRetryableStatusDoesNotRetry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	tr, err := New(Config{WebhookURL: srv.URL, Timeout: time.Second, Retry: testRetryConfig()}, compress.New(false, 1024), nil, zap.NewNop())
	require.NoError(t, err)

	err = tr.SendReport(context.Background(), model.ErrorReport{Message: "boom"})
	assert.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestTransport_RetryableStatusRetriesUpToLimit(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	tr, err := New(Config{WebhookURL: srv.URL, Timeout: time.Second, Retry: testRetryConfig()}, compress.New(false, 1024), nil, zap.NewNop())
	require.NoError(t, err)

	err = tr.SendReport(context.Background(), model.ErrorReport{Message: "boom"})
	assert.Error(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls)) // MaxRetries+1
}

func TestTransport_ServerRateLimitHeaderPausesFurtherSends(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			w.Header().Set("Retry-After", "60")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tr, err := New(Config{WebhookURL: srv.URL, Timeout: time.Second, Retry: retryexec.Config{MaxRetries: 0, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1, JitterFraction: 0}}, compress.New(false, 1024), nil, zap.NewNop())
	require.NoError(t, err)

	err = tr.SendReport(context.Background(), model.ErrorReport{Message: "first"})
	assert.Error(t, err)

	err = tr.SendReport(context.Background(), model.ErrorReport{Message: "second"})
	assert.Error(t, err, "second send must be blocked by the server rate limit before reaching the network")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "blocked send should not have reached the server")
}

func TestTransport_RetriesAreRecordedOnHealthMonitor(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	monitor := health.New(func() int { return 0 })
	tr, err := New(Config{WebhookURL: srv.URL, Timeout: time.Second, Retry: testRetryConfig()}, compress.New(false, 1024), monitor, zap.NewNop())
	require.NoError(t, err)

	err = tr.SendReport(context.Background(), model.ErrorReport{Message: "boom"})
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, int64(2), monitor.Snapshot().RetryAttempts, "the first attempt is not a retry; the two after it are")
}

func TestTransport_RequireHTTPSRejectsPlainHTTP(t *testing.T) {
	_, err := New(Config{WebhookURL: "http://example.com/hook", RequireHTTPS: true}, compress.New(false, 1024), nil, zap.NewNop())
	assert.Error(t, err)
}

func TestTransport_GzipsLargePayload(t *testing.T) {
	var gotEncoding string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotEncoding = r.Header.Get("Content-Encoding")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tr, err := New(Config{WebhookURL: srv.URL, Timeout: time.Second, Retry: testRetryConfig()}, compress.New(true, 10), nil, zap.NewNop())
	require.NoError(t, err)

	big := model.ErrorReport{Message: string(make([]byte, 2000)), Project: "p"}
	err = tr.SendReport(context.Background(), big)
	require.NoError(t, err)
	assert.Equal(t, "gzip", gotEncoding)
}
