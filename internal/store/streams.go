package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/piptrade/botd/internal/apperr"
	"github.com/piptrade/botd/internal/model"
)

// Stream table names accepted by Truncate and the reset endpoints.
var streamTables = map[string]bool{
	"ticks":  true,
	"equity": true,
	"trades": true,
	"events": true,
	"deaths": true,
}

// Streams lists every append-only stream, in reset order.
func Streams() []string { return []string{"ticks", "equity", "trades", "events", "deaths"} }

// AppendTick appends one raw price observation.
func (s *Store) AppendTick(ctx context.Context, t model.Tick) (int64, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO ticks (time_utc, at_epoch, market, price) VALUES (?, ?, ?, ?)`,
		t.TimeUTC, t.AtEpoch, t.Market, t.Price)
	if err != nil {
		return 0, apperr.Wrap(apperr.StorageFailure, err, "append tick")
	}
	return lastID(res)
}

// AppendEquity appends one equity curve sample.
func (s *Store) AppendEquity(ctx context.Context, e model.EquityPoint) (int64, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO equity (time_utc, at_epoch, equity_usd) VALUES (?, ?, ?)`,
		e.TimeUTC, e.AtEpoch, e.EquityUSD)
	if err != nil {
		return 0, apperr.Wrap(apperr.StorageFailure, err, "append equity")
	}
	return lastID(res)
}

// AppendTrade appends one closed paper trade.
func (s *Store) AppendTrade(ctx context.Context, t model.Trade) (int64, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO trades (time_utc, at_epoch, market, side, size_usd, price, pnl_usd, confidence, reason)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TimeUTC, t.AtEpoch, t.Market, t.Side, t.SizeUSD, t.Price, t.PnLUSD, t.Confidence, t.Reason)
	if err != nil {
		return 0, apperr.Wrap(apperr.StorageFailure, err, "append trade")
	}
	return lastID(res)
}

// AppendEvent appends one event row.
func (s *Store) AppendEvent(ctx context.Context, e model.Event) (int64, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO events (time_utc, at_epoch, type, message, details_json) VALUES (?, ?, ?, ?, ?)`,
		e.TimeUTC, e.AtEpoch, e.Type, e.Message, e.DetailsJSON)
	if err != nil {
		return 0, apperr.Wrap(apperr.StorageFailure, err, "append event")
	}
	return lastID(res)
}

// AppendDeath appends one death report.
func (s *Store) AppendDeath(ctx context.Context, d model.Death) (int64, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO deaths (time_utc, at_epoch, source, reason, details_json) VALUES (?, ?, ?, ?, ?)`,
		d.TimeUTC, d.AtEpoch, d.Source, d.Reason, d.DetailsJSON)
	if err != nil {
		return 0, apperr.Wrap(apperr.StorageFailure, err, "append death")
	}
	return lastID(res)
}

// AppendTicksWithSnapshot writes the prices fan-out atomically: one tick per
// market plus the snapshot upsert. Either everything lands or nothing does.
func (s *Store) AppendTicksWithSnapshot(ctx context.Context, ticks []model.Tick, book model.PriceBook) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperr.Wrap(apperr.StorageFailure, err, "begin prices transaction")
	}
	defer tx.Rollback()

	for _, t := range ticks {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO ticks (time_utc, at_epoch, market, price) VALUES (?, ?, ?, ?)`,
			t.TimeUTC, t.AtEpoch, t.Market, t.Price); err != nil {
			return apperr.Wrap(apperr.StorageFailure, err, "append tick for %s", t.Market)
		}
	}

	raw, err := json.Marshal(book.Prices)
	if err != nil {
		return apperr.Wrap(apperr.StorageFailure, err, "encode prices snapshot")
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO prices (id, time_utc, at_epoch, prices_json) VALUES (1, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET time_utc = excluded.time_utc,
		                               at_epoch = excluded.at_epoch,
		                               prices_json = excluded.prices_json`,
		book.TimeUTC, book.AtEpoch, string(raw)); err != nil {
		return apperr.Wrap(apperr.StorageFailure, err, "upsert prices snapshot")
	}

	if err := tx.Commit(); err != nil {
		return apperr.Wrap(apperr.StorageFailure, err, "commit prices transaction")
	}
	return nil
}

// TailTicks returns the newest limit ticks, oldest first.
func (s *Store) TailTicks(ctx context.Context, limit int) ([]model.Tick, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	out := []model.Tick{}
	err := s.db.SelectContext(ctx, &out,
		`SELECT id, time_utc, at_epoch, market, price FROM ticks ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.StorageFailure, err, "tail ticks")
	}
	reverse(out)
	return out, nil
}

// RecentTicksByMarket returns the newest limit ticks for one market,
// oldest first. This is the OHLC aggregator's read path.
func (s *Store) RecentTicksByMarket(ctx context.Context, market string, limit int) ([]model.Tick, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	out := []model.Tick{}
	err := s.db.SelectContext(ctx, &out,
		`SELECT id, time_utc, at_epoch, market, price FROM ticks
		 WHERE market = ? ORDER BY id DESC LIMIT ?`, market, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.StorageFailure, err, "recent ticks for %s", market)
	}
	reverse(out)
	return out, nil
}

// RangeTicks returns ticks for a market within [lo, hi] epoch seconds,
// ascending, capped at limit.
func (s *Store) RangeTicks(ctx context.Context, market string, lo, hi int64, limit int) ([]model.Tick, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	out := []model.Tick{}
	err := s.db.SelectContext(ctx, &out,
		`SELECT id, time_utc, at_epoch, market, price FROM ticks
		 WHERE market = ? AND at_epoch >= ? AND at_epoch <= ?
		 ORDER BY at_epoch ASC, id ASC LIMIT ?`, market, lo, hi, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.StorageFailure, err, "range ticks for %s", market)
	}
	return out, nil
}

// TailEquity returns the newest limit equity points, oldest first.
func (s *Store) TailEquity(ctx context.Context, limit int) ([]model.EquityPoint, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	out := []model.EquityPoint{}
	err := s.db.SelectContext(ctx, &out,
		`SELECT id, time_utc, at_epoch, equity_usd FROM equity ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.StorageFailure, err, "tail equity")
	}
	reverse(out)
	return out, nil
}

// TailTrades returns the newest limit trades, oldest first.
func (s *Store) TailTrades(ctx context.Context, limit int) ([]model.Trade, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	out := []model.Trade{}
	err := s.db.SelectContext(ctx, &out,
		`SELECT id, time_utc, at_epoch, market, side, size_usd, price, pnl_usd, confidence, reason
		 FROM trades ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.StorageFailure, err, "tail trades")
	}
	reverse(out)
	return out, nil
}

// TailEvents returns the newest limit events, oldest first, with details
// parsed for output.
func (s *Store) TailEvents(ctx context.Context, limit int) ([]model.Event, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	out := []model.Event{}
	err := s.db.SelectContext(ctx, &out,
		`SELECT id, time_utc, at_epoch, type, message, details_json FROM events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.StorageFailure, err, "tail events")
	}
	reverse(out)
	for i := range out {
		out[i].Details = model.ParseDetails(out[i].DetailsJSON)
	}
	return out, nil
}

// TailDeaths returns the newest limit deaths, oldest first, details parsed.
func (s *Store) TailDeaths(ctx context.Context, limit int) ([]model.Death, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	out := []model.Death{}
	err := s.db.SelectContext(ctx, &out,
		`SELECT id, time_utc, at_epoch, source, reason, details_json FROM deaths ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.StorageFailure, err, "tail deaths")
	}
	reverse(out)
	for i := range out {
		out[i].Details = model.ParseDetails(out[i].DetailsJSON)
	}
	return out, nil
}

// CountTrades returns the number of rows in the trades stream.
func (s *Store) CountTrades(ctx context.Context) (int64, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	var n int64
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM trades`); err != nil {
		return 0, apperr.Wrap(apperr.StorageFailure, err, "count trades")
	}
	return n, nil
}

// Truncate deletes every row of the named streams. Unknown names are a
// BadRequest; singletons (Control included) are never touched here.
func (s *Store) Truncate(ctx context.Context, streams ...string) error {
	for _, name := range streams {
		if !streamTables[name] {
			return apperr.New(apperr.BadRequest, "unknown stream %q", name)
		}
	}
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperr.Wrap(apperr.StorageFailure, err, "begin truncate")
	}
	defer tx.Rollback()
	for _, name := range streams {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", name)); err != nil {
			return apperr.Wrap(apperr.StorageFailure, err, "truncate %s", name)
		}
	}
	if err := tx.Commit(); err != nil {
		return apperr.Wrap(apperr.StorageFailure, err, "commit truncate")
	}
	return nil
}

func lastID(res interface{ LastInsertId() (int64, error) }) (int64, error) {
	id, err := res.LastInsertId()
	if err != nil {
		return 0, apperr.Wrap(apperr.StorageFailure, err, "read insert id")
	}
	return id, nil
}

func reverse[T any](rows []T) {
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
}
