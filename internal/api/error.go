package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Error is a decoded server error envelope. Booking screens surface
// Message directly and use Details for field-level hints.
type Error struct {
	StatusCode int               `json:"-"`
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Details    map[string]string `json:"details,omitempty"`
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api: %s (%s)", e.Message, e.Code)
	}
	return fmt.Sprintf("api: %s (HTTP %d)", e.Message, e.StatusCode)
}

// IsNotFound reports whether the server no longer knows the trip.
func (e *Error) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

type errorEnvelope struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Error   *Error `json:"error"`
}

// decodeError turns a non-2xx response into an *Error. Bodies that do
// not match the envelope still produce a usable message.
func decodeError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))

	var envelope errorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil {
		envelope.Error.StatusCode = resp.StatusCode
		if envelope.Error.Message == "" {
			envelope.Error.Message = envelope.Message
		}
		return envelope.Error
	}

	message := envelope.Message
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}
	return &Error{StatusCode: resp.StatusCode, Message: message}
}
