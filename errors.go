package appframe

import (
	"encoding/json"
	"errors"
)

const (
	LoginFailedMessage  = "Login failed. Please check your credentials."
	ReauthFailedMessage = "401 - Session expired. Login attempt failed."
	RerunFailedMessage  = "401 - Session expired. Failed to re-run request after new login."
)

// LoginResult reports the outcome of Login. Fields holds every other field
// the portal returned in its login response.
type LoginResult struct {
	Success bool
	Error   string
	Fields  map[string]any
}

// Err returns nil for a successful login.
func (r LoginResult) Err() error {
	if r.Success {
		return nil
	}
	return errors.New(r.Error)
}

func (r LoginResult) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Fields)+2)
	for k, v := range r.Fields {
		out[k] = v
	}
	out["success"] = r.Success
	if r.Error != "" {
		out["error"] = r.Error
	}
	return json.Marshal(out)
}

// Failure is the error returned by every failed Get, Post or Request.
// StatusCode is zero when no response was received.
type Failure struct {
	Message       string
	StatusCode    int
	StatusMessage string
}

func (f *Failure) Error() string {
	return f.Message
}

func (f *Failure) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Success       bool   `json:"success"`
		Error         string `json:"error"`
		StatusCode    int    `json:"statusCode,omitempty"`
		StatusMessage string `json:"statusMessage,omitempty"`
	}{
		Error:         f.Message,
		StatusCode:    f.StatusCode,
		StatusMessage: f.StatusMessage,
	})
}
