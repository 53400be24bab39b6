// Package ohlc derives candles from the raw tick stream on the fly. Memory
// is bounded by the tick fetch cap; candle sequences are sparse (no
// zero-filled buckets).
package ohlc

import (
	"context"
	"sort"

	"github.com/piptrade/botd/internal/model"
	"github.com/piptrade/botd/internal/store"
)

const (
	MinIntervalSec = 10
	MaxIntervalSec = 86400

	DefaultLimit = 250
	MaxLimit     = 1000

	// maxTicksPerQuery caps how many recent ticks a single query scans.
	maxTicksPerQuery = 5000
)

// Candle is one aggregated bucket. T is the bucket start in epoch seconds.
type Candle struct {
	T int64   `json:"t"`
	O float64 `json:"o"`
	H float64 `json:"h"`
	L float64 `json:"l"`
	C float64 `json:"c"`
}

// Aggregator reads ticks from the store and buckets them.
type Aggregator struct {
	st *store.Store
}

func NewAggregator(st *store.Store) *Aggregator {
	return &Aggregator{st: st}
}

// Candles returns up to limit candles for market at intervalSec bucketing,
// ascending by bucket start. Unknown markets yield an empty slice.
func (a *Aggregator) Candles(ctx context.Context, market string, intervalSec, limit int) ([]Candle, error) {
	intervalSec = ClampInterval(intervalSec)
	limit = ClampLimit(limit)

	ticks, err := a.st.RecentTicksByMarket(ctx, market, maxTicksPerQuery)
	if err != nil {
		return nil, err
	}
	return Aggregate(ticks, intervalSec, limit), nil
}

// Aggregate buckets ticks by floor(at_epoch / interval) * interval. The
// first tick of a bucket seeds all four prices; later ticks raise H, lower
// L and move C. A tick exactly on a boundary opens the new bucket.
func Aggregate(ticks []model.Tick, intervalSec, limit int) []Candle {
	if len(ticks) == 0 || intervalSec <= 0 {
		return []Candle{}
	}

	sorted := make([]model.Tick, len(ticks))
	copy(sorted, ticks)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].AtEpoch < sorted[j].AtEpoch
	})

	step := int64(intervalSec)
	buckets := make(map[int64]*Candle)
	order := make([]int64, 0, len(sorted)/2+1)

	for _, t := range sorted {
		b := (t.AtEpoch / step) * step
		c, ok := buckets[b]
		if !ok {
			buckets[b] = &Candle{T: b, O: t.Price, H: t.Price, L: t.Price, C: t.Price}
			order = append(order, b)
			continue
		}
		if t.Price > c.H {
			c.H = t.Price
		}
		if t.Price < c.L {
			c.L = t.Price
		}
		c.C = t.Price
	}

	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	if limit > 0 && len(order) > limit {
		order = order[len(order)-limit:]
	}

	out := make([]Candle, 0, len(order))
	for _, b := range order {
		out = append(out, *buckets[b])
	}
	return out
}

// ClampInterval bounds the bucket size to [10s, 1d].
func ClampInterval(sec int) int {
	if sec < MinIntervalSec {
		return MinIntervalSec
	}
	if sec > MaxIntervalSec {
		return MaxIntervalSec
	}
	return sec
}

// ClampLimit bounds the candle count, defaulting when unset.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}
