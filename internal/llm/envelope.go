package llm

import (
	"github.com/tidwall/gjson"
)

const contentPath = "choices.0.message.content"

// Envelope is a decoded provider response. Raw holds the complete JSON body.
// It may carry a non-2xx StatusCode when the body was still valid JSON.
type Envelope struct {
	Raw        []byte
	StatusCode int
}

// OK reports a 2xx status. A zero StatusCode counts as success.
func (e *Envelope) OK() bool {
	return e == nil || e.StatusCode == 0 || isSuccess(e.StatusCode)
}

// Err returns a *StatusError for a non-2xx envelope and nil otherwise.
func (e *Envelope) Err() error {
	if e.OK() {
		return nil
	}
	return statusError(e.StatusCode, e.Raw)
}

// Content returns choices[0].message.content. ok is false when the path is
// absent or is not a string.
func (e *Envelope) Content() (content string, ok bool) {
	if e == nil {
		return "", false
	}
	r := gjson.GetBytes(e.Raw, contentPath)
	if r.Type != gjson.String {
		return "", false
	}
	return r.Str, true
}

// Model returns the model the provider reports having used, if any.
func (e *Envelope) Model() string {
	if e == nil {
		return ""
	}
	return gjson.GetBytes(e.Raw, "model").String()
}

// Usage returns prompt and completion token counts when the provider reports them.
func (e *Envelope) Usage() (tokensIn, tokensOut int) {
	if e == nil {
		return 0, 0
	}
	usage := gjson.GetManyBytes(e.Raw, "usage.prompt_tokens", "usage.completion_tokens")
	return int(usage[0].Int()), int(usage[1].Int())
}
