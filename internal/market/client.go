// Package market is the optional pass-through to an upstream exchange API
// (Binance-compatible REST). It never propagates upstream failures: a
// failed or broken call yields an empty result and a short-lived negative
// cache entry so the dashboard does not hammer a dead upstream.
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/piptrade/botd/internal/config"
)

const negativeTTL = 5 * time.Second

// Kline is one upstream candle, passed through as numbers.
type Kline struct {
	T int64   `json:"t"`
	O float64 `json:"o"`
	H float64 `json:"h"`
	L float64 `json:"l"`
	C float64 `json:"c"`
	V float64 `json:"v"`
}

// Client fetches spot prices and history with caching, rate limiting and a
// circuit breaker.
type Client struct {
	base       string
	http       *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	cache      *snapshotCache
	spotTTL    time.Duration
	historyTTL time.Duration
}

// NewClient builds the upstream client from configuration.
func NewClient(cfg config.Config) *Client {
	return &Client{
		base:    cfg.UpstreamBaseURL,
		http:    &http.Client{Timeout: cfg.UpstreamTimeout},
		limiter: rate.NewLimiter(rate.Limit(5), 10),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "upstream-market",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
					Msg("upstream breaker state change")
			},
		}),
		cache:      newSnapshotCache(nil),
		spotTTL:    cfg.SpotCacheTTL,
		historyTTL: cfg.HistoryCacheTTL,
	}
}

type spotEntry struct {
	price float64
	ok    bool
}

// Spot returns the current upstream price per market. Markets the upstream
// cannot serve are simply absent from the result.
func (c *Client) Spot(ctx context.Context, markets []string) map[string]float64 {
	out := make(map[string]float64, len(markets))
	for _, m := range markets {
		if m == "" {
			continue
		}
		key := "spot:" + m
		if v, ok := c.cache.get(key); ok {
			if e := v.(spotEntry); e.ok {
				out[m] = e.price
			}
			continue
		}
		price, err := c.fetchSpot(ctx, m)
		if err != nil {
			log.Debug().Err(err).Str("market", m).Msg("spot fetch failed")
			c.cache.set(key, spotEntry{}, negativeTTL)
			continue
		}
		c.cache.set(key, spotEntry{price: price, ok: true}, c.spotTTL)
		out[m] = price
	}
	return out
}

// History returns up to limit 1m klines for a market, oldest first. Empty
// on any upstream failure.
func (c *Client) History(ctx context.Context, market string, limit int) []Kline {
	if market == "" {
		return []Kline{}
	}
	if limit <= 0 || limit > 1000 {
		limit = 500
	}
	key := fmt.Sprintf("history:%s:%d", market, limit)
	if v, ok := c.cache.get(key); ok {
		if klines, ok := v.([]Kline); ok {
			return klines
		}
		return []Kline{}
	}
	klines, err := c.fetchHistory(ctx, market, limit)
	if err != nil {
		log.Debug().Err(err).Str("market", market).Msg("history fetch failed")
		c.cache.set(key, nil, negativeTTL)
		return []Kline{}
	}
	c.cache.set(key, klines, c.historyTTL)
	return klines
}

func (c *Client) fetchSpot(ctx context.Context, market string) (float64, error) {
	body, err := c.fetch(ctx, "/api/v3/ticker/price", url.Values{"symbol": {market}})
	if err != nil {
		return 0, err
	}
	var payload struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0, fmt.Errorf("decode ticker: %w", err)
	}
	price, err := strconv.ParseFloat(payload.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("parse ticker price %q: %w", payload.Price, err)
	}
	return price, nil
}

func (c *Client) fetchHistory(ctx context.Context, market string, limit int) ([]Kline, error) {
	body, err := c.fetch(ctx, "/api/v3/klines", url.Values{
		"symbol":   {market},
		"interval": {"1m"},
		"limit":    {strconv.Itoa(limit)},
	})
	if err != nil {
		return nil, err
	}
	var rows [][]interface{}
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode klines: %w", err)
	}
	out := make([]Kline, 0, len(rows))
	for _, row := range rows {
		// Upstream kline rows: [openTimeMs, "o", "h", "l", "c", "v", ...]
		if len(row) < 6 {
			continue
		}
		openMs, ok := row[0].(float64)
		if !ok {
			continue
		}
		k := Kline{T: int64(openMs) / 1000}
		fields := []*float64{&k.O, &k.H, &k.L, &k.C, &k.V}
		bad := false
		for i, dst := range fields {
			s, ok := row[i+1].(string)
			if !ok {
				bad = true
				break
			}
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				bad = true
				break
			}
			*dst = v
		}
		if !bad {
			out = append(out, k)
		}
	}
	return out, nil
}

// fetch runs one rate-limited, breaker-guarded GET with the fixed client
// timeout.
func (c *Client) fetch(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	result, err := c.breaker.Execute(func() (interface{}, error) {
		u := c.base + path
		if len(params) > 0 {
			u += "?" + params.Encode()
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			return nil, fmt.Errorf("upstream HTTP %d", resp.StatusCode)
		}
		return io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}
