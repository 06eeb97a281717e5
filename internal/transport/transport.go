// Package transport is the HTTPS POST substrate described in spec.md
// §6: it serializes an ErrorReport or BatchEnvelope to JSON, compresses
// it via internal/compress, retries via internal/retryexec, and
// applies the server-driven rate-limit gate (SPEC_FULL.md §E.2).
// Grounded on transport.go's createRequest/sendEvent, with DSN parsing
// dropped — see DESIGN.md for why.
package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/relayforge/errwebhook/internal/compress"
	"github.com/relayforge/errwebhook/internal/health"
	"github.com/relayforge/errwebhook/internal/model"
	"github.com/relayforge/errwebhook/internal/retryexec"
)

const userAgent = "errwebhook-go/1.0.0"

// Config controls the HTTP substrate (spec.md §6).
type Config struct {
	WebhookURL   string
	Timeout      time.Duration
	RequireHTTPS bool
	Retry        retryexec.Config
}

// Transport is the HTTPS POST substrate. It implements both
// batch.Sender and offlinequeue.Sender (duck-typed — neither package
// needs to import this one).
type Transport struct {
	cfg        Config
	client     *http.Client
	compressor *compress.Compressor
	limiter    *serverLimiter
	monitor    *health.Monitor
	logger     *zap.Logger
}

// New creates a Transport. The RequireHTTPS check happens once at
// construction, not per-request, since the webhook URL is static
// configuration.
func New(cfg Config, compressor *compress.Compressor, monitor *health.Monitor, logger *zap.Logger) (*Transport, error) {
	if cfg.RequireHTTPS && len(cfg.WebhookURL) >= 7 && cfg.WebhookURL[:7] == "http://" {
		return nil, fmt.Errorf("errwebhook: webhook_url must use https when require_https is set")
	}

	client := &http.Client{
		Timeout: cfg.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
		},
	}

	return &Transport{
		cfg:        cfg,
		client:     client,
		compressor: compressor,
		limiter:    newServerLimiter(logger),
		monitor:    monitor,
		logger:     logger,
	}, nil
}

// SendReport POSTs a single ErrorReport.
func (t *Transport) SendReport(ctx context.Context, report model.ErrorReport) error {
	body, err := json.Marshal(report)
	if err != nil {
		return retryexec.NonRetryable(fmt.Errorf("marshal report: %w", err))
	}
	return t.send(ctx, body)
}

// SendBatch POSTs a BatchEnvelope.
func (t *Transport) SendBatch(ctx context.Context, envelope model.BatchEnvelope) error {
	body, err := json.Marshal(envelope)
	if err != nil {
		return retryexec.NonRetryable(fmt.Errorf("marshal batch: %w", err))
	}
	return t.send(ctx, body)
}

// send wraps one outbound POST in the retry executor (spec.md §4.6).
// Each attempt re-checks the server-driven rate-limit gate, since its
// deadline can change between attempts separated by backoff, and
// compresses the body again.
func (t *Transport) send(ctx context.Context, body []byte) error {
	result := retryexec.Do(ctx, t.cfg.Retry, func(ctx context.Context, attempt int) (struct{}, error) {
		if attempt > 1 && t.monitor != nil {
			t.monitor.RecordRetryAttempt()
		}
		return struct{}{}, t.attempt(ctx, body)
	})
	if result.Success {
		return nil
	}
	return result.Err
}

func (t *Transport) attempt(ctx context.Context, body []byte) error {
	now := time.Now()
	if t.limiter.Limited(now) {
		return fmt.Errorf("transport paused by server rate limit")
	}

	compressed := t.compressor.Compress(body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.WebhookURL, bytes.NewReader(compressed.Body))
	if err != nil {
		return retryexec.NonRetryable(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", compressed.ContentType)
	if compressed.ContentEncoding != "" {
		req.Header.Set("Content-Encoding", compressed.ContentEncoding)
	}
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := t.client.Do(req)
	elapsed := time.Since(start)
	if t.monitor != nil {
		t.monitor.RecordResponseTime(elapsed)
	}
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, resp.Body)
	t.limiter.HandleResponseHeaders(resp.Header, time.Now())

	if resp.StatusCode < 400 {
		return nil
	}

	if retryexec.ClassifyStatusCode(resp.StatusCode) {
		return retryexec.NonRetryable(fmt.Errorf("http %d", resp.StatusCode))
	}
	return fmt.Errorf("http %d", resp.StatusCode)
}

// Close releases idle connections.
func (t *Transport) Close() error {
	t.client.CloseIdleConnections()
	return nil
}
