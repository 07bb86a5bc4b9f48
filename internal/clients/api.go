// Package clients implements the Polymarket Gamma, CLOB and Data API
// clients on top of the throttled HTTP layer.
package clients

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
)

const snippetLimit = 300

// decodeJSON drains and closes the response body. Non-2xx statuses become an
// APIError carrying a body snippet; undecodable bodies become a DecodeError.
func decodeJSON(resp *http.Response, url string, v any) error {
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{
			Status:  resp.StatusCode,
			URL:     url,
			Snippet: bodySnippet(resp.Body),
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return &DecodeError{URL: url, Err: err}
	}
	return nil
}

func bodySnippet(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, snippetLimit))
	if err != nil {
		return ""
	}
	return strings.ReplaceAll(strings.TrimSpace(string(raw)), "\n", " ")
}
