package ohlc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piptrade/botd/internal/model"
)

func tick(at int64, market string, price float64) model.Tick {
	return model.Tick{AtEpoch: at, Market: market, Price: price}
}

func TestAggregateMinuteBuckets(t *testing.T) {
	ticks := []model.Tick{
		tick(1700000000, "BTCUSDT", 100),
		tick(1700000030, "BTCUSDT", 110),
		tick(1700000059, "BTCUSDT", 105),
		tick(1700000061, "BTCUSDT", 120),
	}
	candles := Aggregate(ticks, 60, 10)
	require.Len(t, candles, 2)

	assert.Equal(t, Candle{T: 1700000000, O: 100, H: 110, L: 100, C: 105}, candles[0])
	assert.Equal(t, Candle{T: 1700000060, O: 120, H: 120, L: 120, C: 120}, candles[1])
}

func TestAggregateBoundaryTickOpensNewBucket(t *testing.T) {
	ticks := []model.Tick{
		tick(1700000000, "X", 1),
		tick(1700000060, "X", 2), // exactly on the boundary
	}
	candles := Aggregate(ticks, 60, 10)
	require.Len(t, candles, 2)
	assert.Equal(t, int64(1700000060), candles[1].T)
	assert.Equal(t, 2.0, candles[1].O)
}

func TestAggregateUnsortedInput(t *testing.T) {
	ticks := []model.Tick{
		tick(1700000030, "X", 110),
		tick(1700000000, "X", 100),
		tick(1700000059, "X", 105),
	}
	candles := Aggregate(ticks, 60, 10)
	require.Len(t, candles, 1)
	assert.Equal(t, 100.0, candles[0].O)
	assert.Equal(t, 105.0, candles[0].C)
}

func TestAggregateSparseGaps(t *testing.T) {
	ticks := []model.Tick{
		tick(1700000000, "X", 1),
		tick(1700003600, "X", 2), // an hour later; no synthetic fill
	}
	candles := Aggregate(ticks, 60, 10)
	require.Len(t, candles, 2)
	assert.Equal(t, int64(1700000000), candles[0].T)
	assert.Equal(t, int64(1700003600), candles[1].T)
}

func TestAggregateLimitKeepsNewest(t *testing.T) {
	var ticks []model.Tick
	for i := int64(0); i < 10; i++ {
		ticks = append(ticks, tick(1700000000+i*60, "X", float64(i)))
	}
	candles := Aggregate(ticks, 60, 3)
	require.Len(t, candles, 3)
	assert.Equal(t, int64(1700000000+7*60), candles[0].T)
	assert.Equal(t, int64(1700000000+9*60), candles[2].T)
}

func TestAggregateInvariants(t *testing.T) {
	ticks := []model.Tick{
		tick(1700000001, "X", 5), tick(1700000002, "X", 9),
		tick(1700000003, "X", 2), tick(1700000004, "X", 7),
		tick(1700000100, "X", 3), tick(1700000101, "X", 1),
	}
	candles := Aggregate(ticks, 60, 10)
	require.NotEmpty(t, candles)
	for i, c := range candles {
		assert.LessOrEqual(t, c.L, c.O)
		assert.LessOrEqual(t, c.L, c.C)
		assert.GreaterOrEqual(t, c.H, c.O)
		assert.GreaterOrEqual(t, c.H, c.C)
		assert.Zero(t, c.T%60, "bucket start must align to the interval")
		if i > 0 {
			assert.GreaterOrEqual(t, c.T-candles[i-1].T, int64(60))
		}
	}
}

func TestAggregateEmpty(t *testing.T) {
	assert.Empty(t, Aggregate(nil, 60, 10))
	assert.Empty(t, Aggregate([]model.Tick{}, 60, 10))
}

func TestClampInterval(t *testing.T) {
	assert.Equal(t, MinIntervalSec, ClampInterval(1))
	assert.Equal(t, MaxIntervalSec, ClampInterval(1000000))
	assert.Equal(t, 300, ClampInterval(300))
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, ClampLimit(0))
	assert.Equal(t, MaxLimit, ClampLimit(5000))
	assert.Equal(t, 10, ClampLimit(10))
}
