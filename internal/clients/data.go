package clients

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

const (
	bucketDataActivity  = "data_activity"
	bucketDataHolders   = "data_holders"
	bucketDataPositions = "data_positions"
)

// Activity is one on-chain trade or conversion row for a wallet.
type Activity struct {
	ProxyWallet     string  `json:"proxyWallet"`
	Timestamp       int64   `json:"timestamp"`
	ConditionID     string  `json:"conditionId"`
	Type            string  `json:"type"`
	Side            string  `json:"side"`
	Asset           string  `json:"asset"`
	Size            float64 `json:"size"`
	Price           float64 `json:"price"`
	USDCSize        float64 `json:"usdcSize"`
	TransactionHash string  `json:"transactionHash"`
}

// Holder is one wallet's position size in a token.
type Holder struct {
	ProxyWallet string  `json:"proxyWallet"`
	Amount      float64 `json:"amount"`
	Name        string  `json:"name"`
}

// TokenHolders groups the top holders of one token.
type TokenHolders struct {
	Token   string   `json:"token"`
	Holders []Holder `json:"holders"`
}

// Position is one wallet's open position in a market.
type Position struct {
	ProxyWallet  string  `json:"proxyWallet"`
	ConditionID  string  `json:"conditionId"`
	Asset        string  `json:"asset"`
	Size         float64 `json:"size"`
	AvgPrice     float64 `json:"avgPrice"`
	CurrentValue float64 `json:"currentValue"`
	CashPnL      float64 `json:"cashPnl"`
	Redeemable   bool    `json:"redeemable"`
}

// PageFilter bounds one Data API page.
type PageFilter struct {
	Limit  int
	Offset int
}

func (f PageFilter) values() url.Values {
	params := url.Values{}
	if f.Limit > 0 {
		params.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Offset > 0 {
		params.Set("offset", strconv.Itoa(f.Offset))
	}
	return params
}

// DataClient fetches wallet activity, holders and positions from the
// Polymarket Data API.
type DataClient struct {
	BaseURL string
	HTTP    Getter
	Logger  *zap.Logger
}

func NewDataClient(baseURL string, http Getter, logger *zap.Logger) *DataClient {
	return &DataClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    http,
		Logger:  logger,
	}
}

// GetActivity fetches one page of a wallet's trade activity.
func (c *DataClient) GetActivity(ctx context.Context, user string, filter PageFilter) ([]Activity, error) {
	target := c.BaseURL + "/activity"
	params := filter.values()
	params.Set("user", user)

	resp, err := c.HTTP.Get(ctx, target, params, bucketDataActivity)
	if err != nil {
		return nil, err
	}

	var rows []Activity
	if err := decodeJSON(resp, target, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// GetHolders fetches the top holders of a market's tokens.
func (c *DataClient) GetHolders(ctx context.Context, market string, limit int) ([]TokenHolders, error) {
	target := c.BaseURL + "/holders"
	params := url.Values{"market": {market}}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	resp, err := c.HTTP.Get(ctx, target, params, bucketDataHolders)
	if err != nil {
		return nil, err
	}

	var rows []TokenHolders
	if err := decodeJSON(resp, target, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// GetPositions fetches one page of a wallet's open positions.
func (c *DataClient) GetPositions(ctx context.Context, user string, filter PageFilter) ([]Position, error) {
	target := c.BaseURL + "/positions"
	params := filter.values()
	params.Set("user", user)

	resp, err := c.HTTP.Get(ctx, target, params, bucketDataPositions)
	if err != nil {
		return nil, err
	}

	var rows []Position
	if err := decodeJSON(resp, target, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}
