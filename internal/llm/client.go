// Package llm builds chat-completion payloads and carries them to the completion endpoint.
package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/capitalize-ai/traychat/internal/model"
)

// Fixed generation parameters. They are not user-configurable.
const (
	DefaultMaxTokens        = 0 // provider default
	DefaultTemperature      = 1.0
	DefaultTopP             = 1.0
	DefaultTopK             = 0
	DefaultPresencePenalty  = 0.0
	DefaultFrequencyPenalty = 1.0
)

// DefaultCompletionURL is the chat-completion endpoint used when none is configured.
const DefaultCompletionURL = "https://api.perplexity.ai/chat/completions"

// ChatMessage is one entry of the wire-level messages array.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is the provider-shaped request body.
type CompletionRequest struct {
	Model            string        `json:"model"`
	Messages         []ChatMessage `json:"messages"`
	MaxTokens        int           `json:"max_tokens"`
	Temperature      float64       `json:"temperature"`
	TopP             float64       `json:"top_p"`
	TopK             int           `json:"top_k"`
	Stream           bool          `json:"stream"`
	PresencePenalty  float64       `json:"presence_penalty"`
	FrequencyPenalty float64       `json:"frequency_penalty"`
}

// BuildRequest turns a conversation snapshot into a request payload.
// The model is forwarded as given.
func BuildRequest(modelName string, turns []model.Turn) *CompletionRequest {
	messages := make([]ChatMessage, len(turns))
	for i, turn := range turns {
		messages[i] = ChatMessage{
			Role:    string(turn.Role),
			Content: turn.Content,
		}
	}

	return &CompletionRequest{
		Model:            modelName,
		Messages:         messages,
		MaxTokens:        DefaultMaxTokens,
		Temperature:      DefaultTemperature,
		TopP:             DefaultTopP,
		TopK:             DefaultTopK,
		Stream:           false,
		PresencePenalty:  DefaultPresencePenalty,
		FrequencyPenalty: DefaultFrequencyPenalty,
	}
}

// Transport is the interface for delivering a payload to the completion endpoint.
type Transport interface {
	// Send posts the payload and returns the decoded response envelope.
	Send(ctx context.Context, req *CompletionRequest, apiKey string) (*Envelope, error)
}

// ErrMissingAPIKey is returned when no API key can be resolved.
var ErrMissingAPIKey = errors.New("completion API key is not configured")

// KeyFunc resolves the API key at call time.
type KeyFunc func() (string, error)

// EnvKey reads the API key from the named environment variable on every call.
func EnvKey(name string) KeyFunc {
	return func() (string, error) {
		key := strings.TrimSpace(os.Getenv(name))
		if key == "" {
			return "", fmt.Errorf("%w: set %s", ErrMissingAPIKey, name)
		}
		return key, nil
	}
}

// StaticKey returns a KeyFunc for a fixed key.
func StaticKey(key string) KeyFunc {
	return func() (string, error) {
		if key == "" {
			return "", ErrMissingAPIKey
		}
		return key, nil
	}
}

// ContentPolicy decides what a response without assistant text means.
type ContentPolicy string

const (
	// ContentLenient treats a missing choices[0].message.content as an empty reply,
	// whatever the HTTP status.
	ContentLenient ContentPolicy = "lenient"
	// ContentStrict treats it as ErrMissingContent, and a non-2xx answer as *StatusError.
	ContentStrict ContentPolicy = "strict"
)

// ErrMissingContent is returned under ContentStrict when the reply text is absent.
var ErrMissingContent = errors.New("completion response has no assistant content")

// ParseContentPolicy parses a policy name. Unknown names are an error.
func ParseContentPolicy(s string) (ContentPolicy, error) {
	switch ContentPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", ContentLenient:
		return ContentLenient, nil
	case ContentStrict:
		return ContentStrict, nil
	default:
		return "", fmt.Errorf("unknown missing-content policy %q", s)
	}
}

// Extract applies the policy to an envelope and returns the assistant text.
func (p ContentPolicy) Extract(env *Envelope) (string, error) {
	if p == ContentStrict {
		if err := env.Err(); err != nil {
			return "", err
		}
	}
	content, ok := env.Content()
	if !ok && p == ContentStrict {
		return "", ErrMissingContent
	}
	return content, nil
}
