package clients

import "fmt"

// APIError reports a non-2xx response from an upstream API. Snippet holds up
// to the first 300 bytes of the body for log context.
type APIError struct {
	Status  int
	URL     string
	Snippet string
}

func (e *APIError) Error() string {
	if e.Snippet != "" {
		return fmt.Sprintf("HTTP %d GET %s :: %s", e.Status, e.URL, e.Snippet)
	}
	return fmt.Sprintf("HTTP %d GET %s", e.Status, e.URL)
}

// DecodeError reports a response body that could not be decoded as the
// expected JSON shape.
type DecodeError struct {
	URL string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("malformed response from %s: %v", e.URL, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
