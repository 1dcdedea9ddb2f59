package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/traychat/internal/model"
)

func testRequest() *CompletionRequest {
	return BuildRequest("model-x", []model.Turn{
		model.NewTurn(model.RoleSystem, "be brief"),
		model.NewTurn(model.RoleUser, "hello"),
	})
}

func TestHTTPTransport_SendsHeadersAndBody(t *testing.T) {
	var gotHeaders http.Header
	var gotBody CompletionRequest
	var gotMethod string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotHeaders = r.Header.Clone()
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &gotBody)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hi there"}}]}`))
	}))
	defer server.Close()

	transport := NewHTTPTransport(server.URL)
	env, err := transport.Send(context.Background(), testRequest(), "sk-test")
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "application/json", gotHeaders.Get("Accept"))
	assert.Equal(t, "application/json", gotHeaders.Get("Content-Type"))
	assert.Equal(t, "Bearer sk-test", gotHeaders.Get("Authorization"))

	assert.Equal(t, *testRequest(), gotBody)

	content, ok := env.Content()
	assert.True(t, ok)
	assert.Equal(t, "hi there", content)
	assert.Equal(t, http.StatusOK, env.StatusCode)
}

func TestHTTPTransport_DecodeFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices": [`))
	}))
	defer server.Close()

	_, err := NewHTTPTransport(server.URL).Send(context.Background(), testRequest(), "k")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDecode)
	assert.False(t, errors.Is(err, ErrSend))
}

func TestHTTPTransport_EmptyBodyIsDecodeFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	_, err := NewHTTPTransport(server.URL).Send(context.Background(), testRequest(), "k")
	assert.ErrorIs(t, err, ErrDecode)
}

func TestHTTPTransport_SendFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := NewHTTPTransport(url).Send(context.Background(), testRequest(), "k")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSend)
	assert.False(t, errors.Is(err, ErrDecode))
}

func TestHTTPTransport_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	_, err := NewHTTPTransport(server.URL, WithTimeout(50*time.Millisecond)).
		Send(context.Background(), testRequest(), "k")
	assert.ErrorIs(t, err, ErrSend)
}

func TestHTTPTransport_ContextCancel(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewHTTPTransport(server.URL).Send(ctx, testRequest(), "k")
	assert.ErrorIs(t, err, ErrSend)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHTTPTransport_ErrorStatusWithJSONBody(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantMsg  string
		wantType string
	}{
		{
			name:     "openai envelope",
			status:   http.StatusUnauthorized,
			body:     `{"error":{"message":"Invalid API key","type":"invalid_request_error","code":401}}`,
			wantMsg:  "Invalid API key",
			wantType: "invalid_request_error",
		},
		{
			name:    "detail body",
			status:  http.StatusBadRequest,
			body:    `{"detail":"unknown model"}`,
			wantMsg: "unknown model",
		},
		{
			name:    "bare object",
			status:  http.StatusServiceUnavailable,
			body:    `{}`,
			wantMsg: "{}",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer server.Close()

			env, err := NewHTTPTransport(server.URL).Send(context.Background(), testRequest(), "k")
			require.NoError(t, err)
			assert.Equal(t, tc.status, env.StatusCode)
			assert.False(t, env.OK())

			err = env.Err()
			assert.ErrorIs(t, err, ErrStatus)
			var serr *StatusError
			require.True(t, errors.As(err, &serr))
			assert.Equal(t, tc.status, serr.StatusCode)
			assert.Equal(t, tc.wantMsg, serr.Message)
			assert.Equal(t, tc.wantType, serr.Type)
		})
	}
}

func TestHTTPTransport_ErrorStatusWithInvalidBody(t *testing.T) {
	for _, body := range []string{`<html>bad gateway</html>`, ``} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte(body))
		}))

		_, err := NewHTTPTransport(server.URL).Send(context.Background(), testRequest(), "k")
		server.Close()

		assert.ErrorIs(t, err, ErrDecode, body)
		assert.NotErrorIs(t, err, ErrStatus, body)
	}
}

func TestEnvelope_OK(t *testing.T) {
	assert.True(t, (&Envelope{StatusCode: http.StatusOK}).OK())
	assert.True(t, (&Envelope{}).OK())
	assert.NoError(t, (&Envelope{StatusCode: http.StatusCreated}).Err())
	assert.False(t, (&Envelope{StatusCode: http.StatusTooManyRequests}).OK())
	assert.ErrorIs(t, (&Envelope{StatusCode: http.StatusTooManyRequests, Raw: []byte(`{}`)}).Err(), ErrStatus)
}

func TestWithTimeout_LeavesSharedClientAlone(t *testing.T) {
	shared := &http.Client{Timeout: time.Minute}

	a := NewHTTPTransport("http://example.invalid", WithHTTPClient(shared), WithTimeout(5*time.Second))
	b := NewHTTPTransport("http://example.invalid", WithTimeout(5*time.Second), WithHTTPClient(shared))

	assert.Equal(t, time.Minute, shared.Timeout)
	assert.Equal(t, 5*time.Second, a.client.Timeout)
	assert.Equal(t, 5*time.Second, b.client.Timeout)
	assert.NotSame(t, shared, a.client)

	c := NewHTTPTransport("http://example.invalid", WithHTTPClient(shared))
	assert.Same(t, shared, c.client)
}

func TestNewHTTPTransport_DefaultURL(t *testing.T) {
	assert.Equal(t, DefaultCompletionURL, NewHTTPTransport("").URL())
}
