package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

const (
	bucketClobBook          = "clob_book"
	bucketClobPricesHistory = "clob_prices_history"
)

// BookLevel is one price level of an order book side. The CLOB API reports
// price and size as decimal strings.
type BookLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// Book is a public order book snapshot for one token.
type Book struct {
	Market    string      `json:"market"`
	AssetID   string      `json:"asset_id"`
	Timestamp string      `json:"timestamp"`
	Bids      []BookLevel `json:"bids"`
	Asks      []BookLevel `json:"asks"`
}

// PricePoint is one sample of a market's price history.
type PricePoint struct {
	T int64   `json:"t"`
	P float64 `json:"p"`
}

// ClobClient fetches public order books and price history from the
// Polymarket CLOB API.
type ClobClient struct {
	BaseURL string
	HTTP    Getter
	Logger  *zap.Logger
}

func NewClobClient(baseURL string, http Getter, logger *zap.Logger) *ClobClient {
	return &ClobClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    http,
		Logger:  logger,
	}
}

// GetBook fetches the order book for one token id.
func (c *ClobClient) GetBook(ctx context.Context, tokenID string) (*Book, error) {
	id := normalizeTokenID(tokenID)
	if id == "" {
		return nil, fmt.Errorf("missing or invalid token id %q", tokenID)
	}

	target := c.BaseURL + "/book"
	params := url.Values{"token_id": {id}}

	resp, err := c.HTTP.Get(ctx, target, params, bucketClobBook)
	if err != nil {
		return nil, err
	}

	book := &Book{}
	if err := decodeJSON(resp, target, book); err != nil {
		return nil, err
	}
	return book, nil
}

// GetPricesHistory fetches price history points for a token over a time
// window. Fidelity is the sample resolution in minutes.
func (c *ClobClient) GetPricesHistory(ctx context.Context, tokenID string, startTs, endTs int64, fidelity int) ([]PricePoint, error) {
	id := normalizeTokenID(tokenID)
	if id == "" {
		return nil, fmt.Errorf("missing or invalid token id %q", tokenID)
	}
	if fidelity <= 0 {
		fidelity = 60
	}

	target := c.BaseURL + "/prices-history"
	params := url.Values{
		"market":   {id},
		"startTs":  {strconv.FormatInt(startTs, 10)},
		"endTs":    {strconv.FormatInt(endTs, 10)},
		"fidelity": {strconv.Itoa(fidelity)},
	}

	resp, err := c.HTTP.Get(ctx, target, params, bucketClobPricesHistory)
	if err != nil {
		return nil, err
	}

	var raw json.RawMessage
	if err := decodeJSON(resp, target, &raw); err != nil {
		return nil, err
	}
	return decodePricePoints(target, raw)
}

// decodePricePoints accepts the shapes the endpoint has been seen to answer
// with: a bare array, or an object keyed by history, data or prices. An
// object with no recognizable key decodes to an empty slice.
func decodePricePoints(target string, raw json.RawMessage) ([]PricePoint, error) {
	var points []PricePoint
	if err := json.Unmarshal(raw, &points); err == nil {
		return points, nil
	}

	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, &DecodeError{URL: target, Err: err}
	}
	for _, key := range []string{"history", "data", "prices"} {
		inner, ok := wrapped[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(inner, &points); err == nil {
			return points, nil
		}
	}
	return nil, nil
}

// normalizeTokenID trims whitespace and stray quoting from a token id.
func normalizeTokenID(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.Trim(s, `"'`)
	return strings.TrimSpace(s)
}
