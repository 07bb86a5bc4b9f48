package clients

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/polywatch/polywatch/internal/httpx"
)

func newHTTPClient() *httpx.Client {
	return &httpx.Client{
		Pool: httpx.NewSessionPool(httpx.SessionConfig{Workers: 2}, nil),
	}
}

// fakeGetter serves canned responses keyed by offset, used to drive the
// pagers without a live server.
type fakeGetter struct {
	mu      sync.Mutex
	pages   map[int][]response
	calls   map[int]int
	resets  int
	history []int
}

type response struct {
	body string
	err  error
}

func newFakeGetter() *fakeGetter {
	return &fakeGetter{
		pages: make(map[int][]response),
		calls: make(map[int]int),
	}
}

func (f *fakeGetter) addPage(offset int, responses ...response) {
	f.pages[offset] = append(f.pages[offset], responses...)
}

func (f *fakeGetter) Get(ctx context.Context, rawURL string, params url.Values, bucket string) (*http.Response, error) {
	offset, _ := strconv.Atoi(params.Get("offset"))

	f.mu.Lock()
	n := f.calls[offset]
	f.calls[offset] = n + 1
	f.history = append(f.history, offset)
	queued := f.pages[offset]
	f.mu.Unlock()

	var r response
	switch {
	case n < len(queued):
		r = queued[n]
	case len(queued) > 0:
		r = queued[len(queued)-1]
	default:
		r = response{body: `[]`}
	}
	if r.err != nil {
		return nil, r.err
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{},
		Body:       io.NopCloser(strings.NewReader(r.body)),
	}, nil
}

func (f *fakeGetter) ResetSessions() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
}

func (f *fakeGetter) callCount(offset int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[offset]
}
