package fetch

import (
	"fmt"
	"net/http"
)

// Detail is the structured error body a server or proxy may return.
type Detail struct {
	Error string `json:"error"`
	Hint  string `json:"hint,omitempty"`
}

// FetchError reports a fetch that did not produce a body. Status is 0 when
// the request never got a response (transport failure or timeout).
type FetchError struct {
	URL        string
	Status     int
	StatusText string
	Detail     Detail
	Err        error
}

func (e *FetchError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("fetch failed for %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("fetch failed: %d %s", e.Status, e.StatusText)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Message is the user-facing text: the detail error plus its hint.
func (e *FetchError) Message() string {
	msg := e.Detail.Error
	if msg == "" {
		msg = e.Error()
	}
	if e.Detail.Hint != "" {
		msg += ". " + e.Detail.Hint
	}
	return msg
}

func statusText(code int) string {
	if text := http.StatusText(code); text != "" {
		return text
	}
	return fmt.Sprintf("status %d", code)
}
