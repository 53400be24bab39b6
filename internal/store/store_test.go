package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piptrade/botd/internal/apperr"
	"github.com/piptrade/botd/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "nested", "test.db"))
	require.NoError(t, err, "parent directory should be auto-created")
	t.Cleanup(func() { st.Close() })
	return st
}

func TestAppendAndTailOrder(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 5; i++ {
		id, err := st.AppendTick(ctx, model.Tick{
			TimeUTC: "2025-01-15T12:00:00Z", AtEpoch: int64(1700000000 + i),
			Market: "BTCUSDT", Price: float64(100 + i),
		})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	// Ids are dense and strictly increasing.
	for i := 1; i < len(ids); i++ {
		assert.Equal(t, ids[i-1]+1, ids[i])
	}

	// Tail returns the newest N, oldest first.
	tail, err := st.TailTicks(ctx, 3)
	require.NoError(t, err)
	require.Len(t, tail, 3)
	assert.Equal(t, 102.0, tail[0].Price)
	assert.Equal(t, 104.0, tail[2].Price)
}

func TestRangeTicks(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	for i := int64(0); i < 10; i++ {
		_, err := st.AppendTick(ctx, model.Tick{
			TimeUTC: "t", AtEpoch: 1700000000 + i*10, Market: "BTCUSDT", Price: float64(i),
		})
		require.NoError(t, err)
	}
	_, err := st.AppendTick(ctx, model.Tick{TimeUTC: "t", AtEpoch: 1700000050, Market: "ETHUSDT", Price: 1})
	require.NoError(t, err)

	rows, err := st.RangeTicks(ctx, "BTCUSDT", 1700000020, 1700000050, 100)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, int64(1700000020), rows[0].AtEpoch)
	assert.Equal(t, int64(1700000050), rows[3].AtEpoch)
	for _, r := range rows {
		assert.Equal(t, "BTCUSDT", r.Market)
	}
}

func TestRecentTicksByMarket(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	for i := int64(0); i < 6; i++ {
		market := "A"
		if i%2 == 1 {
			market = "B"
		}
		_, err := st.AppendTick(ctx, model.Tick{TimeUTC: "t", AtEpoch: 1700000000 + i, Market: market, Price: float64(i)})
		require.NoError(t, err)
	}
	rows, err := st.RecentTicksByMarket(ctx, "A", 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 2.0, rows[0].Price)
	assert.Equal(t, 4.0, rows[1].Price)

	rows, err = st.RecentTicksByMarket(ctx, "UNKNOWN", 10)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestSingletonUpserts(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	hb, err := st.LatestHeartbeat(ctx)
	require.NoError(t, err)
	assert.Nil(t, hb, "empty store has no heartbeat")

	require.NoError(t, st.UpsertHeartbeat(ctx, model.Heartbeat{
		TimeUTC: "t1", AtEpoch: 1, Status: "ok", EquityUSD: 1000,
		Markets: []string{"BTCUSDT"}, PricesOK: true,
	}))
	require.NoError(t, st.UpsertHeartbeat(ctx, model.Heartbeat{
		TimeUTC: "t2", AtEpoch: 2, Status: "ok", EquityUSD: 1100,
		Markets: []string{"BTCUSDT", "ETHUSDT"},
	}))

	hb, err = st.LatestHeartbeat(ctx)
	require.NoError(t, err)
	require.NotNil(t, hb)
	assert.Equal(t, 1100.0, hb.EquityUSD)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, hb.Markets)
	assert.False(t, hb.PricesOK)

	require.NoError(t, st.UpsertPet(ctx, model.Pet{TimeUTC: "t", AtEpoch: 1, Stage: "adult", Health: 10, Hunger: 90}))
	pet, err := st.LatestPet(ctx)
	require.NoError(t, err)
	require.NotNil(t, pet)
	assert.Equal(t, "adult", pet.Stage)
}

func TestControlRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	c, err := st.GetControl(ctx)
	require.NoError(t, err)
	assert.Nil(t, c)

	require.NoError(t, st.PutControl(ctx, model.Control{
		State: model.StatePaused, PauseReason: "manual",
		PauseUntilUTC: "2025-01-15T12:10:00Z", PauseUntilEpoch: 1736943000,
		UpdatedAtUTC: "2025-01-15T12:00:00Z", UpdatedAtUS: 1736942400000000,
	}))
	c, err = st.GetControl(ctx)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, model.StatePaused, c.State)
	assert.Equal(t, int64(1736943000), c.PauseUntilEpoch)
}

func TestAppendTicksWithSnapshot(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	ticks := []model.Tick{
		{TimeUTC: "t", AtEpoch: 1, Market: "BTCUSDT", Price: 1},
		{TimeUTC: "t", AtEpoch: 1, Market: "ETHUSDT", Price: 2},
	}
	book := model.PriceBook{TimeUTC: "t", AtEpoch: 1, Prices: map[string]float64{"BTCUSDT": 1, "ETHUSDT": 2}}
	require.NoError(t, st.AppendTicksWithSnapshot(ctx, ticks, book))

	rows, err := st.TailTicks(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	got, err := st.LatestPrices(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, book.Prices, got.Prices)
}

func TestTruncateIsolation(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, err := st.AppendTrade(ctx, model.Trade{TimeUTC: "t", AtEpoch: 1, Market: "X", Side: "buy"})
	require.NoError(t, err)
	_, err = st.AppendEquity(ctx, model.EquityPoint{TimeUTC: "t", AtEpoch: 1, EquityUSD: 1})
	require.NoError(t, err)
	_, err = st.AppendEvent(ctx, model.Event{TimeUTC: "t", AtEpoch: 1, Type: "info", Message: "m"})
	require.NoError(t, err)
	require.NoError(t, st.PutControl(ctx, model.Control{State: model.StateActive, UpdatedAtUTC: "t", UpdatedAtUS: 1}))

	require.NoError(t, st.Truncate(ctx, "trades"))

	trades, err := st.TailTrades(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, trades)

	equity, err := st.TailEquity(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, equity, 1)

	events, err := st.TailEvents(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, events, 1)

	c, err := st.GetControl(ctx)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, model.StateActive, c.State)
}

func TestTruncateUnknownStream(t *testing.T) {
	st := newTestStore(t)
	err := st.Truncate(context.Background(), "control")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.BadRequest))
}

func TestEventDetailsRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, err := st.AppendEvent(ctx, model.Event{
		TimeUTC: "t", AtEpoch: 1, Type: "warning", Message: "m",
		DetailsJSON: `{"seconds":600}`,
	})
	require.NoError(t, err)

	rows, err := st.TailEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, map[string]interface{}{"seconds": float64(600)}, rows[0].Details)
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	st, err := Open(path)
	require.NoError(t, err)
	_, err = st.AppendEquity(context.Background(), model.EquityPoint{TimeUTC: "t", AtEpoch: 1, EquityUSD: 42})
	require.NoError(t, err)
	require.NoError(t, st.Close())

	st2, err := Open(path)
	require.NoError(t, err, "migrations must be idempotent")
	defer st2.Close()
	rows, err := st2.TailEquity(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 42.0, rows[0].EquityUSD)
}
