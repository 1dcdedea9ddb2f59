package llm

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/traychat/internal/model"
)

func TestBuildRequest_FixedParameters(t *testing.T) {
	turns := []model.Turn{
		model.NewTurn(model.RoleSystem, "be brief"),
		model.NewTurn(model.RoleUser, "hello"),
		model.NewTurn(model.RoleAssistant, "hi"),
		model.NewTurn(model.RoleUser, "again"),
	}

	req := BuildRequest("model-x", turns)

	assert.Equal(t, "model-x", req.Model)
	assert.False(t, req.Stream)
	assert.Equal(t, 0, req.MaxTokens)
	assert.Equal(t, 1.0, req.Temperature)
	assert.Equal(t, 1.0, req.TopP)
	assert.Equal(t, 0, req.TopK)
	assert.Equal(t, 0.0, req.PresencePenalty)
	assert.Equal(t, 1.0, req.FrequencyPenalty)

	require.Len(t, req.Messages, 4)
	assert.Equal(t, ChatMessage{Role: "system", Content: "be brief"}, req.Messages[0])
	assert.Equal(t, ChatMessage{Role: "user", Content: "hello"}, req.Messages[1])
	assert.Equal(t, ChatMessage{Role: "assistant", Content: "hi"}, req.Messages[2])
	assert.Equal(t, ChatMessage{Role: "user", Content: "again"}, req.Messages[3])
}

func TestBuildRequest_DoesNotValidateModel(t *testing.T) {
	req := BuildRequest("  not a real model  ", nil)
	assert.Equal(t, "  not a real model  ", req.Model)
	assert.Empty(t, req.Messages)
}

func TestBuildRequest_DoesNotAliasInput(t *testing.T) {
	turns := []model.Turn{model.NewTurn(model.RoleUser, "one")}
	req := BuildRequest("m", turns)
	turns[0].Content = "changed"
	assert.Equal(t, "one", req.Messages[0].Content)
}

func TestCompletionRequest_WireShape(t *testing.T) {
	req := BuildRequest("m", []model.Turn{model.NewTurn(model.RoleUser, "hi")})

	data, err := json.Marshal(req)
	require.NoError(t, err)

	var wire map[string]any
	require.NoError(t, json.Unmarshal(data, &wire))

	for _, key := range []string{
		"model", "messages", "max_tokens", "temperature", "top_p",
		"top_k", "stream", "presence_penalty", "frequency_penalty",
	} {
		assert.Contains(t, wire, key)
	}
	assert.Equal(t, false, wire["stream"])

	messages := wire["messages"].([]any)
	require.Len(t, messages, 1)
	assert.Equal(t, map[string]any{"role": "user", "content": "hi"}, messages[0])
}

func TestEnvKey(t *testing.T) {
	t.Setenv("TRAYCHAT_TEST_KEY", "")
	_, err := EnvKey("TRAYCHAT_TEST_KEY")()
	assert.ErrorIs(t, err, ErrMissingAPIKey)

	t.Setenv("TRAYCHAT_TEST_KEY", " secret ")
	key, err := EnvKey("TRAYCHAT_TEST_KEY")()
	require.NoError(t, err)
	assert.Equal(t, "secret", key)
}

func TestParseContentPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    ContentPolicy
		wantErr bool
	}{
		{in: "", want: ContentLenient},
		{in: "lenient", want: ContentLenient},
		{in: " STRICT ", want: ContentStrict},
		{in: "loose", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseContentPolicy(tc.in)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestContentPolicy_Extract(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		status  int
		policy  ContentPolicy
		want    string
		wantErr error
	}{
		{name: "present", body: `{"choices":[{"message":{"content":"hi there"}}]}`, policy: ContentLenient, want: "hi there"},
		{name: "empty choices lenient", body: `{"choices":[]}`, policy: ContentLenient, want: ""},
		{name: "wrong type lenient", body: `{"choices":[{"message":{"content":42}}]}`, policy: ContentLenient, want: ""},
		{name: "no choices lenient", body: `{"id":"x"}`, policy: ContentLenient, want: ""},
		{name: "empty choices strict", body: `{"choices":[]}`, policy: ContentStrict, wantErr: ErrMissingContent},
		{name: "present strict", body: `{"choices":[{"message":{"content":""}}]}`, policy: ContentStrict, want: ""},
		{name: "error status lenient", body: `{"error":{"message":"bad key"}}`, status: 401, policy: ContentLenient, want: ""},
		{name: "error status with content lenient", body: `{"choices":[{"message":{"content":"hi"}}]}`, status: 500, policy: ContentLenient, want: "hi"},
		{name: "error status strict", body: `{"error":{"message":"bad key"}}`, status: 401, policy: ContentStrict, wantErr: ErrStatus},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.policy.Extract(&Envelope{Raw: []byte(tc.body), StatusCode: tc.status})
			if tc.wantErr != nil {
				assert.True(t, errors.Is(err, tc.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestEnvelope_Usage(t *testing.T) {
	env := &Envelope{Raw: []byte(`{"model":"sonar","usage":{"prompt_tokens":12,"completion_tokens":7}}`)}
	in, out := env.Usage()
	assert.Equal(t, 12, in)
	assert.Equal(t, 7, out)
	assert.Equal(t, "sonar", env.Model())

	var nilEnv *Envelope
	in, out = nilEnv.Usage()
	assert.Zero(t, in+out)
}
