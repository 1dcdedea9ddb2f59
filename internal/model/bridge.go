package model

// HandleRequest is the body of a handle_request invocation.
type HandleRequest struct {
	Model        string `json:"model"`
	Input        string `json:"input"`
	ClearHistory bool   `json:"clear_history"`
}

// HandleResponse carries the assistant reply.
type HandleResponse struct {
	Reply string `json:"reply"`
}

// LoadSettingsRequest is the body of a load_settings invocation.
type LoadSettingsRequest struct {
	DefaultModel       string `json:"default_model"`
	DefaultPreventExit bool   `json:"default_prevent_exit"`
}

// SaveSettingsRequest is the body of a save_settings invocation.
type SaveSettingsRequest struct {
	Model       string `json:"model"`
	PreventExit bool   `json:"prevent_exit"`
}

// ExitPreventionRequest is the body of a set_exit_prevention invocation.
// ExitAllowed is what the UI toggle shows, the inverse of the stored flag.
type ExitPreventionRequest struct {
	ExitAllowed bool `json:"exit_allowed"`
}

// ExitPreventionResponse reports the cached exit-prevention flag.
type ExitPreventionResponse struct {
	PreventExit bool `json:"prevent_exit"`
}

// ErrorResponse is the body returned for any failed invocation.
type ErrorResponse struct {
	Error string `json:"error"`
}
