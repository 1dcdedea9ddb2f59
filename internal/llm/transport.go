package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// MaxResponseSize bounds how much of a response body is read.
const MaxResponseSize = 10 * 1024 * 1024

// Failure classes of a completion call. Errors returned by Send match ErrSend or ErrDecode.
var (
	// ErrSend covers network and transport failures: refused connections, TLS, timeouts.
	ErrSend = errors.New("completion request failed")

	// ErrDecode means the response body was not valid JSON.
	ErrDecode = errors.New("completion response is not valid JSON")

	// ErrStatus means the endpoint answered with a non-2xx status. Only
	// ContentStrict reports it; Send returns such answers as envelopes.
	ErrStatus = errors.New("completion endpoint returned an error")
)

// StatusError is a non-2xx answer from the completion endpoint.
type StatusError struct {
	StatusCode int
	Type       string
	Message    string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("completion endpoint error [%s] (HTTP %d): %s", e.Type, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("completion endpoint error (HTTP %d): %s", e.StatusCode, e.Message)
}

// Is makes errors.Is(err, ErrStatus) hold for every StatusError.
func (e *StatusError) Is(target error) bool {
	return target == ErrStatus
}

// HTTPTransport posts payloads to a fixed completion URL.
type HTTPTransport struct {
	url     string
	client  *http.Client
	timeout *time.Duration
}

// TransportOption configures an HTTPTransport.
type TransportOption func(*HTTPTransport)

// WithHTTPClient sets the underlying HTTP client. The client is never modified.
func WithHTTPClient(c *http.Client) TransportOption {
	return func(t *HTTPTransport) {
		t.client = c
	}
}

// WithTimeout bounds the whole request including the body read. Zero means no limit.
// It applies to a copy of the client regardless of option order.
func WithTimeout(d time.Duration) TransportOption {
	return func(t *HTTPTransport) {
		t.timeout = &d
	}
}

// NewHTTPTransport creates a transport for the given endpoint URL.
func NewHTTPTransport(url string, opts ...TransportOption) *HTTPTransport {
	if url == "" {
		url = DefaultCompletionURL
	}

	t := &HTTPTransport{
		url:    url,
		client: &http.Client{},
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.timeout != nil {
		client := *t.client
		client.Timeout = *t.timeout
		t.client = &client
	}
	return t
}

// URL returns the endpoint the transport posts to.
func (t *HTTPTransport) URL() string {
	return t.url
}

// Send posts the payload and blocks until the full response body is read.
// It never retries.
func (t *HTTPTransport) Send(ctx context.Context, req *CompletionRequest, apiKey string) (*Envelope, error) {
	ctx, span := otel.Tracer("github.com/capitalize-ai/traychat/internal/llm").Start(ctx, "transport.send")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.model", req.Model),
		attribute.Int("llm.messages", len(req.Messages)),
	)

	env, err := t.send(ctx, req, apiKey)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("http.status_code", env.StatusCode))
	return env, nil
}

func (t *HTTPTransport) send(ctx context.Context, req *CompletionRequest, apiKey string) (*Envelope, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %w", ErrSend, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSend, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSend, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", ErrSend, err)
	}
	if len(raw) > MaxResponseSize {
		return nil, fmt.Errorf("%w: response exceeds %d bytes", ErrDecode, MaxResponseSize)
	}

	// The status is left to the content policy; only the body decides decode failures.
	if !gjson.ValidBytes(raw) {
		if !isSuccess(resp.StatusCode) {
			return nil, fmt.Errorf("%w: HTTP %d: %s", ErrDecode, resp.StatusCode, preview(raw))
		}
		return nil, fmt.Errorf("%w: %s", ErrDecode, preview(raw))
	}

	return &Envelope{Raw: raw, StatusCode: resp.StatusCode}, nil
}

// statusError builds a StatusError from an OpenAI-style error envelope when the
// body carries one, falling back to the raw body text.
func statusError(status int, raw []byte) *StatusError {
	serr := &StatusError{StatusCode: status}

	var errResp openai.ErrorResponse
	if gjson.ValidBytes(raw) && json.Unmarshal(raw, &errResp) == nil && errResp.Error != nil {
		serr.Message = errResp.Error.Message
		serr.Type = errResp.Error.Type
	}
	if serr.Message == "" {
		if detail := gjson.GetBytes(raw, "detail"); detail.Exists() {
			serr.Message = detail.String()
		} else {
			serr.Message = preview(raw)
		}
	}
	if serr.Message == "" {
		serr.Message = http.StatusText(status)
	}
	return serr
}

func isSuccess(status int) bool {
	return status >= 200 && status <= 299
}

func preview(raw []byte) string {
	const max = 200
	s := strings.TrimSpace(string(raw))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
