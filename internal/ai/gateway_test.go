package ai

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobgate/internal/config"
	"jobgate/internal/errcode"
)

func newTestGateway(url string, retries int) *Gateway {
	return NewGateway(config.AIConfig{
		BaseURL:    url,
		APIKey:     "test-key",
		MaxRetries: retries,
		RetryDelay: time.Millisecond,
		Timeout:    2 * time.Second,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestCallRetriesServerErrors(t *testing.T) {
	var (
		calls int32
		mu    sync.Mutex
		ids   []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		ids = append(ids, r.Header.Get("X-Request-Id"))
		mu.Unlock()
		assert.Equal(t, "test-key", r.Header.Get("X-API-Key"))
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	g := newTestGateway(srv.URL, 2)
	var out struct {
		OK bool `json:"ok"`
	}
	require.NoError(t, g.Call(context.Background(), http.MethodPost, "/x", map[string]string{"a": "b"}, &out))
	assert.True(t, out.OK)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))

	require.Len(t, ids, 3)
	assert.NotEmpty(t, ids[0])
	assert.NotEqual(t, ids[0], ids[1])
	assert.NotEqual(t, ids[1], ids[2])
}

func TestCallExhaustsRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"detail":"model warming up"}`))
	}))
	defer srv.Close()

	err := newTestGateway(srv.URL, 2).Call(context.Background(), http.MethodGet, "/health", nil, nil)
	require.Error(t, err)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))

	e, ok := errcode.As(err)
	require.True(t, ok)
	assert.Equal(t, errcode.KindAIService, e.Kind)
	assert.Equal(t, http.StatusBadGateway, e.HTTPStatus())

	var se *ServiceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusServiceUnavailable, se.Status)
	assert.Equal(t, "model warming up", se.Message)
	assert.Equal(t, 3, se.Attempts)
}

func TestCallDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"cv_text too short"}`))
	}))
	defer srv.Close()

	err := newTestGateway(srv.URL, 3).Call(context.Background(), http.MethodPost, "/cv/analyze-text", map[string]any{}, nil)
	require.Error(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))

	var se *ServiceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnprocessableEntity, se.Status)
	assert.Equal(t, "cv_text too short", se.Message)
}

func TestCallUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	err := newTestGateway(url, 1).Call(context.Background(), http.MethodGet, "/health", nil, nil)
	require.Error(t, err)
	assert.True(t, IsUnavailable(err))

	e, ok := errcode.As(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusServiceUnavailable, e.HTTPStatus())
}

func TestAnalyzeCVTextNormalizesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/cv/analyze-text", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "my cv", body["cv_text"])
		assert.EqualValues(t, 7, body["user_id"])
		assert.Equal(t, true, body["use_ai"])
		_, _ = w.Write([]byte(`{"score": 82, "features": {"key_skills": ["go"], "has_experience": true}}`))
	}))
	defer srv.Close()

	analysis, err := newTestGateway(srv.URL, 0).AnalyzeCVText(context.Background(), 7, "my cv", true)
	require.NoError(t, err)
	assert.Equal(t, float64(82), analysis.Score())
	assert.JSONEq(t, `{}`, string(analysis.Structured()))

	structured, features := analysis.Records(11)
	assert.Equal(t, uint(11), structured.CVID)
	assert.Equal(t, uint(11), features.CVID)
	assert.True(t, features.IsATSCompliant)
	assert.Equal(t, []string{"go"}, []string(features.KeySkills))
}

func TestAnalyzeCVTextRequiresText(t *testing.T) {
	_, err := newTestGateway("http://127.0.0.1:1", 0).AnalyzeCVText(context.Background(), 1, "  ", false)
	assert.True(t, errcode.Is(err, errcode.KindValidation))
}

func TestStartChatDefaultsLanguage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "english", body["language"])
		_, _ = w.Write([]byte(`{"session_id":"s1"}`))
	}))
	defer srv.Close()

	out, err := newTestGateway(srv.URL, 0).StartChat(context.Background(), 3, "", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"session_id":"s1"}`, string(out))
}
