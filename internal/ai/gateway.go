// Package ai is the client of the external CV analysis and chatbot service.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"jobgate/internal/config"
	"jobgate/internal/errcode"
	"jobgate/internal/metrics"
)

const maxErrorBody = 64 << 10

// ServiceError describes the last failed attempt of a call. Status is 0 when no
// HTTP response was received.
type ServiceError struct {
	Endpoint string
	Status   int
	Message  string
	Attempts int

	undecodable bool
}

func (e *ServiceError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("ai service %s unreachable after %d attempt(s): %s", e.Endpoint, e.Attempts, e.Message)
	}
	return fmt.Sprintf("ai service %s returned %d after %d attempt(s): %s", e.Endpoint, e.Status, e.Attempts, e.Message)
}

// Retryable reports whether the failure may succeed on another attempt.
func (e *ServiceError) Retryable() bool {
	if e.undecodable {
		return false
	}
	return e.Status == 0 || (e.Status >= 500 && e.Status < 600)
}

// Gateway calls the AI service with a bounded, fixed-delay retry on network errors and 5xx.
type Gateway struct {
	baseURL    string
	apiKey     string
	maxRetries int
	retryDelay time.Duration
	client     *http.Client
	logger     *slog.Logger
}

// NewGateway builds a gateway from explicit configuration.
func NewGateway(cfg config.AIConfig, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.APIKey == "" {
		logger.Warn("ai service api key is not set, requests are unauthenticated")
	}
	return &Gateway{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		client:     &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// Call sends payload to endpoint and decodes the JSON response into out.
// Failures surface as one errcode.KindAIService error wrapping *ServiceError.
func (g *Gateway) Call(ctx context.Context, method, endpoint string, payload, out any) error {
	var body []byte
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return errcode.Validation("ai request payload is not encodable")
		}
		body = encoded
	}

	start := time.Now()
	var last *ServiceError
	for attempt := 1; attempt <= g.maxRetries+1; attempt++ {
		if attempt > 1 {
			g.logger.Warn("ai service call failed, retrying",
				slog.String("endpoint", endpoint),
				slog.Int("attempt", attempt-1),
				slog.Int("status", last.Status),
				slog.String("reason", last.Message),
			)
			if err := sleep(ctx, g.retryDelay); err != nil {
				break
			}
		}

		metrics.ObserveAIAttempt(endpoint)
		last = g.attempt(ctx, method, endpoint, body, out)
		if last == nil {
			metrics.ObserveAICall(endpoint, "ok", time.Since(start))
			return nil
		}
		last.Attempts = attempt
		if !last.Retryable() || ctx.Err() != nil {
			break
		}
	}

	metrics.ObserveAICall(endpoint, "error", time.Since(start))
	g.logger.Error("ai service call failed",
		slog.String("endpoint", endpoint),
		slog.Int("status", last.Status),
		slog.Int("attempts", last.Attempts),
		slog.String("reason", last.Message),
	)

	status := http.StatusBadGateway
	if last.Status == 0 {
		status = http.StatusServiceUnavailable
	}
	return errcode.Wrap(errcode.KindAIService, "ai service request failed", last).WithStatus(status)
}

func (g *Gateway) attempt(ctx context.Context, method, endpoint string, body []byte, out any) *ServiceError {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+endpoint, reader)
	if err != nil {
		return &ServiceError{Endpoint: endpoint, Message: err.Error()}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if g.apiKey != "" {
		req.Header.Set("X-API-Key", g.apiKey)
	}
	req.Header.Set("X-Request-Id", uuid.NewString())

	resp, err := g.client.Do(req)
	if err != nil {
		return &ServiceError{Endpoint: endpoint, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &ServiceError{Endpoint: endpoint, Status: resp.StatusCode, Message: errorMessage(resp.StatusCode, raw)}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ServiceError{
			Endpoint: endpoint,
			Status:   http.StatusBadGateway,
			Message:  fmt.Sprintf("decode response: %v", err),

			undecodable: true,
		}
	}
	return nil
}

// errorMessage prefers the service's "detail" or "message" field.
func errorMessage(status int, raw []byte) string {
	var body struct {
		Detail  any    `json:"detail"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		if s, ok := body.Detail.(string); ok && s != "" {
			return s
		}
		if body.Detail != nil {
			if b, err := json.Marshal(body.Detail); err == nil {
				return string(b)
			}
		}
		if body.Message != "" {
			return body.Message
		}
	}
	if text := strings.TrimSpace(string(raw)); text != "" && len(text) <= 512 {
		return text
	}
	return http.StatusText(status)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// IsUnavailable reports whether err is an AI failure where the service could not be reached.
func IsUnavailable(err error) bool {
	var se *ServiceError
	return errors.As(err, &se) && se.Status == 0
}
