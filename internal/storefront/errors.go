package storefront

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// maxDetailRunes bounds the failure text carried back from a response body.
const maxDetailRunes = 200

var (
	// ErrNetwork wraps transport failures: DNS, refused connections, resets.
	ErrNetwork = errors.New("network error")
	// ErrTimeout wraps requests that exceeded the client's bounded wait.
	ErrTimeout = errors.New("request timed out")
)

// APIError is a non-2xx response from the storefront or payment endpoints.
type APIError struct {
	Status  int
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.Status, e.Message)
}

// StatusCode extracts the HTTP status from err, or 0 if it is not an APIError.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// Detail returns the human-readable part of err: the server's message for an
// APIError, otherwise the error text.
func Detail(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}

// ClassifyTransport tags a failed round trip as a timeout or network error.
func ClassifyTransport(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrNetwork, err)
}

// NewAPIError builds an APIError, pulling the most useful message from the
// body: a JSON error/detail/message field, the text of an HTML page, or the
// raw text.
func NewAPIError(resp *http.Response, body []byte) *APIError {
	return &APIError{
		Status:  resp.StatusCode,
		Message: detailFromBody(resp.StatusCode, resp.Header.Get("Content-Type"), body),
	}
}

func detailFromBody(status int, contentType string, body []byte) string {
	text := strings.TrimSpace(string(body))

	var fields map[string]json.RawMessage
	if json.Unmarshal(body, &fields) == nil {
		for _, k := range []string{"error", "detail", "message"} {
			var s string
			if raw, ok := fields[k]; ok && json.Unmarshal(raw, &s) == nil && strings.TrimSpace(s) != "" {
				return truncate(strings.TrimSpace(s), maxDetailRunes)
			}
		}
	}

	if looksLikeHTML(contentType, text) {
		text = strings.ReplaceAll(StripHTML(text), "\n", " ")
	}
	if text == "" {
		return fmt.Sprintf("HTTP %d", status)
	}
	return truncate(text, maxDetailRunes)
}
