package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/polywatch/polywatch/internal/ratelimit"
)

const bucketGammaMarkets = "gamma_markets"

// Getter is the throttled HTTP surface the clients depend on. It is
// implemented by httpx.Client.
type Getter interface {
	Get(ctx context.Context, rawURL string, params url.Values, bucket string) (*http.Response, error)
	ResetSessions()
}

// Market is one Gamma market row. The API returns many more fields; only the
// ones the collector reads are decoded.
type Market struct {
	ID           string          `json:"id"`
	Question     string          `json:"question"`
	Slug         string          `json:"slug"`
	EndDate      string          `json:"endDate"`
	Closed       bool            `json:"closed"`
	Volume       string          `json:"volume"`
	Liquidity    string          `json:"liquidity"`
	ClobTokenIDs json.RawMessage `json:"clobTokenIds"`
}

// TokenIDs decodes the market's CLOB token ids, which arrive either as a
// JSON array or as a JSON-encoded string of one.
func (m *Market) TokenIDs() []string {
	raw := m.ClobTokenIDs
	if len(raw) == 0 {
		return nil
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err == nil {
		return ids
	}
	var nested string
	if err := json.Unmarshal(raw, &nested); err == nil {
		if err := json.Unmarshal([]byte(nested), &ids); err == nil {
			return ids
		}
	}
	return nil
}

// MarketFilter narrows a markets page. A nil Closed fetches everything.
type MarketFilter struct {
	Limit  int
	Offset int
	Closed *bool
}

// GammaClient fetches markets from the Polymarket Gamma API.
type GammaClient struct {
	BaseURL string
	HTTP    Getter
	Logger  *zap.Logger
}

func NewGammaClient(baseURL string, http Getter, logger *zap.Logger) *GammaClient {
	return &GammaClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    http,
		Logger:  logger,
	}
}

// GetMarket fetches one market by id.
func (c *GammaClient) GetMarket(ctx context.Context, marketID string) (*Market, error) {
	target := fmt.Sprintf("%s/markets/%s", c.BaseURL, url.PathEscape(marketID))
	resp, err := c.HTTP.Get(ctx, target, nil, bucketGammaMarkets)
	if err != nil {
		return nil, err
	}

	market := &Market{}
	if err := decodeJSON(resp, target, market); err != nil {
		return nil, err
	}
	return market, nil
}

// FetchMarkets fetches one page of markets ordered by end date ascending.
func (c *GammaClient) FetchMarkets(ctx context.Context, filter MarketFilter) ([]Market, error) {
	if filter.Limit <= 0 {
		filter.Limit = 500
	}

	target := c.BaseURL + "/markets"
	params := url.Values{
		"limit":       {strconv.Itoa(filter.Limit)},
		"offset":      {strconv.Itoa(filter.Offset)},
		"order":       {"endDate"},
		"ascending":   {"true"},
		"include_tag": {"true"},
	}
	if filter.Closed != nil {
		params.Set("closed", strconv.FormatBool(*filter.Closed))
	}

	resp, err := c.HTTP.Get(ctx, target, params, bucketGammaMarkets)
	if err != nil {
		return nil, err
	}

	// The endpoint answers with either a bare array or {"data": [...]}.
	var raw json.RawMessage
	if err := decodeJSON(resp, target, &raw); err != nil {
		return nil, err
	}
	var markets []Market
	if err := json.Unmarshal(raw, &markets); err == nil {
		return markets, nil
	}
	var wrapped struct {
		Data []Market `json:"data"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, &DecodeError{URL: target, Err: err}
	}
	return wrapped.Data, nil
}

// PagerOptions controls market pagination. Zero values fall back to one
// worker, 500 rows per page and an eight page window.
type PagerOptions struct {
	Limit       int
	StartOffset int
	Workers     int
	WindowPages int
	Closed      *bool

	// MaxOffset and MaxPages bound a crawl; zero means unbounded.
	MaxOffset int
	MaxPages  int
}

func (o *PagerOptions) normalize() {
	if o.Limit <= 0 {
		o.Limit = 500
	}
	if o.Workers < 1 {
		o.Workers = 1
	}
	if o.WindowPages < 1 {
		o.WindowPages = 8
	}
}

// IterMarkets walks all markets sequentially, invoking fn per market. A
// quota acquire timeout drops idle sessions and retries the same offset, so
// no offset is ever skipped. Iteration stops after two consecutive empty
// pages or when fn returns an error.
func (c *GammaClient) IterMarkets(ctx context.Context, opts PagerOptions, fn func(Market) error) error {
	opts.normalize()
	offset := opts.StartOffset
	emptyRuns := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch, err := c.FetchMarkets(ctx, MarketFilter{Limit: opts.Limit, Offset: offset, Closed: opts.Closed})
		if err != nil {
			var timeout *ratelimit.AcquireTimeoutError
			if errors.As(err, &timeout) {
				c.HTTP.ResetSessions()
				c.log().Warn("markets acquire timeout, retrying same offset", zap.Int("offset", offset))
				continue
			}
			return err
		}
		c.log().Info("fetched markets page", zap.Int("offset", offset), zap.Int("count", len(batch)))

		if len(batch) == 0 {
			emptyRuns++
			if emptyRuns >= 2 {
				return nil
			}
			continue
		}
		emptyRuns = 0
		for _, m := range batch {
			if err := fn(m); err != nil {
				return err
			}
		}
		offset += opts.Limit
	}
}

// IterMarketsConcurrent fetches a window of pages per cycle with a bounded
// worker set and yields them to fn in offset order. The window advances
// through the longest contiguous prefix of successful pages; a page that
// timed out on quota acquire is retried on the next cycle, so no offset is
// ever skipped. Iteration stops after two fully empty windows or at the
// configured bounds.
func (c *GammaClient) IterMarketsConcurrent(ctx context.Context, opts PagerOptions, fn func(Market) error) error {
	opts.normalize()
	base := opts.StartOffset
	emptyWindows := 0
	pagesAdvanced := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if opts.MaxOffset > 0 && base >= opts.MaxOffset {
			c.log().Info("pager reached max offset", zap.Int("max_offset", opts.MaxOffset))
			return nil
		}
		if opts.MaxPages > 0 && pagesAdvanced >= opts.MaxPages {
			c.log().Info("pager reached max pages", zap.Int("max_pages", opts.MaxPages))
			return nil
		}

		pages := c.fetchWindow(ctx, base, opts)

		// Advance through the longest contiguous successful prefix; a nil
		// entry marks a timed-out page that the next cycle retries.
		advanced := 0
		hadData := false
		for _, page := range pages {
			if page == nil {
				break
			}
			if page.err != nil {
				return page.err
			}
			advanced++
			if len(page.markets) == 0 {
				continue
			}
			hadData = true
			for _, m := range page.markets {
				if err := fn(m); err != nil {
					return err
				}
			}
		}

		if hadData {
			emptyWindows = 0
		} else if advanced == len(pages) {
			emptyWindows++
			if emptyWindows >= 2 {
				return nil
			}
		}

		base += advanced * opts.Limit
		pagesAdvanced += advanced
	}
}

type pageResult struct {
	markets []Market
	err     error
}

// fetchWindow fetches opts.WindowPages offsets concurrently with at most
// opts.Workers in flight. A page that hit a quota acquire timeout comes back
// nil; hard errors are carried on the page for the caller to surface.
func (c *GammaClient) fetchWindow(ctx context.Context, base int, opts PagerOptions) []*pageResult {
	pages := make([]*pageResult, opts.WindowPages)
	sem := make(chan struct{}, opts.Workers)
	var wg sync.WaitGroup

	for i := 0; i < opts.WindowPages; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			offset := base + idx*opts.Limit
			batch, err := c.FetchMarkets(ctx, MarketFilter{Limit: opts.Limit, Offset: offset, Closed: opts.Closed})
			if err != nil {
				var timeout *ratelimit.AcquireTimeoutError
				if errors.As(err, &timeout) {
					c.HTTP.ResetSessions()
					c.log().Warn("markets page acquire timeout", zap.Int("offset", offset))
					return
				}
				pages[idx] = &pageResult{err: err}
				return
			}
			c.log().Debug("fetched markets page", zap.Int("offset", offset), zap.Int("count", len(batch)))
			pages[idx] = &pageResult{markets: batch}
		}(i)
	}
	wg.Wait()
	return pages
}

func (c *GammaClient) log() *zap.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return zap.NewNop()
}
