package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cwyatt/polywatch/internal/domain"
)

// DataClient is the REST client for the Polymarket data API, which serves
// executed trades.
type DataClient struct {
	baseURL     string
	httpClient  *http.Client
	maxAttempts int
	backoffBase time.Duration
}

// NewDataClient creates a new data API client.
//
// baseURL is the data API root, e.g. "https://data-api.polymarket.com".
func NewDataClient(baseURL string) *DataClient {
	return &DataClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		maxAttempts: 3,
		backoffBase: 500 * time.Millisecond,
	}
}

// TradeQuery selects a page of trades.
type TradeQuery struct {
	Limit     int
	Offset    int
	TakerOnly bool
	// MinNotionalUSD filters trades below this cash value server-side.
	MinNotionalUSD float64
}

// APITrade is a raw trade row as served by the data API.
type APITrade struct {
	ProxyWallet     string      `json:"proxyWallet"`
	Side            string      `json:"side"`
	Asset           string      `json:"asset"`
	ConditionID     string      `json:"conditionId"`
	Size            json.Number `json:"size"`
	Price           json.Number `json:"price"`
	Timestamp       json.Number `json:"timestamp"`
	Title           string      `json:"title"`
	Slug            string      `json:"slug"`
	EventSlug       string      `json:"eventSlug"`
	Outcome         string      `json:"outcome"`
	TransactionHash string      `json:"transactionHash"`
}

// ToDomainTrade converts the raw row. ok is false when the row is missing a
// market or token link, carries a side other than BUY/SELL, or has an
// unusable timestamp, price, or size.
func (t *APITrade) ToDomainTrade() (domain.Trade, bool) {
	if t.ConditionID == "" || t.Asset == "" {
		return domain.Trade{}, false
	}
	side := domain.TradeSide(t.Side)
	if side != domain.TradeSideBuy && side != domain.TradeSideSell {
		return domain.Trade{}, false
	}
	price, err := t.Price.Float64()
	if err != nil {
		return domain.Trade{}, false
	}
	size, err := t.Size.Float64()
	if err != nil {
		return domain.Trade{}, false
	}
	unix, err := t.Timestamp.Int64()
	if err != nil || unix <= 0 {
		return domain.Trade{}, false
	}

	tr := domain.Trade{
		TxHash:      t.TransactionHash,
		Wallet:      t.ProxyWallet,
		ConditionID: t.ConditionID,
		TokenID:     t.Asset,
		Side:        side,
		Price:       price,
		Size:        size,
		NotionalUSD: price * size,
		TradeTS:     time.Unix(unix, 0).UTC(),
		MarketSlug:  t.Slug,
		MarketTitle: t.Title,
		EventSlug:   t.EventSlug,
		Outcome:     t.Outcome,
	}
	tr.TradePK = tr.DedupeKey()
	return tr, true
}

// GetTrades returns one page of trades, newest first.
func (d *DataClient) GetTrades(ctx context.Context, q TradeQuery) ([]domain.Trade, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(q.Limit))
	params.Set("offset", strconv.Itoa(q.Offset))
	params.Set("takerOnly", strconv.FormatBool(q.TakerOnly))
	params.Set("filterType", "CASH")
	params.Set("filterAmount", strconv.FormatFloat(q.MinNotionalUSD, 'f', -1, 64))

	body, err := d.doGet(ctx, "/trades?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("polymarket/data: get trades: %w", err)
	}

	var apiTrades []APITrade
	if err := json.Unmarshal(body, &apiTrades); err != nil {
		return nil, fmt.Errorf("polymarket/data: decode trades: %w", err)
	}

	trades := make([]domain.Trade, 0, len(apiTrades))
	for i := range apiTrades {
		if tr, ok := apiTrades[i].ToDomainTrade(); ok {
			trades = append(trades, tr)
		}
	}
	return trades, nil
}

// doGet sends a GET request with bounded retry: transient failures back off
// linearly and the last error is returned after the attempts are exhausted.
func (d *DataClient) doGet(ctx context.Context, path string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(d.backoffBase * time.Duration(attempt-1)):
			}
		}
		body, err := d.doGetOnce(ctx, path)
		if err == nil {
			return body, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (d *DataClient) doGetOnce(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(body, 200))
	}
	return body, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
