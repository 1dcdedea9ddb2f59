package model

// Settings holds the persisted user preferences.
type Settings struct {
	Model       string `json:"model"`
	PreventExit bool   `json:"prevent_exit"`
}
