package clients

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDataGetActivity(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "/activity", r.URL.Path)
		assert.Equal(t, "0xwallet", q.Get("user"))
		assert.Equal(t, "100", q.Get("limit"))
		assert.Equal(t, "200", q.Get("offset"))
		_, _ = w.Write([]byte(`[
			{"proxyWallet":"0xwallet","timestamp":1700000000,"type":"TRADE","side":"BUY","size":10,"price":0.42,"usdcSize":4.2}
		]`))
	}))
	defer server.Close()

	c := NewDataClient(server.URL, newHTTPClient(), nil)
	rows, err := c.GetActivity(context.Background(), "0xwallet", PageFilter{Limit: 100, Offset: 200})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "BUY", rows[0].Side)
	assert.Equal(t, 0.42, rows[0].Price)
	assert.Equal(t, int64(1700000000), rows[0].Timestamp)
}

func TestDataGetHolders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "/holders", r.URL.Path)
		assert.Equal(t, "0xcond", q.Get("market"))
		assert.Equal(t, "5", q.Get("limit"))
		_, _ = w.Write([]byte(`[
			{"token":"111","holders":[{"proxyWallet":"0xbig","amount":5000}]}
		]`))
	}))
	defer server.Close()

	c := NewDataClient(server.URL, newHTTPClient(), nil)
	rows, err := c.GetHolders(context.Background(), "0xcond", 5)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "111", rows[0].Token)
	require.Len(t, rows[0].Holders, 1)
	assert.Equal(t, 5000.0, rows[0].Holders[0].Amount)
}

func TestDataGetPositions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/positions", r.URL.Path)
		assert.Equal(t, "0xwallet", r.URL.Query().Get("user"))
		_, _ = w.Write([]byte(`[
			{"proxyWallet":"0xwallet","conditionId":"0xcond","size":25,"avgPrice":0.3,"cashPnl":-1.5,"redeemable":true}
		]`))
	}))
	defer server.Close()

	c := NewDataClient(server.URL, newHTTPClient(), nil)
	rows, err := c.GetPositions(context.Background(), "0xwallet", PageFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Redeemable)
	assert.Equal(t, -1.5, rows[0].CashPnL)
}

func TestDataGetActivityAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	c := NewDataClient(server.URL, newHTTPClient(), nil)
	_, err := c.GetActivity(context.Background(), "0xwallet", PageFilter{})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.Status)
}
