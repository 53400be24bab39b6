package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/piptrade/botd/internal/apperr"
	"github.com/piptrade/botd/internal/model"
)

// Singleton rows live at id = 1 in their own tables; writes are upserts and
// reads return nil when the row has never been written.

// UpsertHeartbeat replaces the latest heartbeat.
func (s *Store) UpsertHeartbeat(ctx context.Context, h model.Heartbeat) error {
	markets := h.Markets
	if markets == nil {
		markets = []string{}
	}
	raw, err := json.Marshal(markets)
	if err != nil {
		return apperr.Wrap(apperr.StorageFailure, err, "encode heartbeat markets")
	}
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO heartbeat (id, time_utc, at_epoch, status, survival_mode, equity_usd,
		                        open_positions, prices_ok, markets_json, wins, losses,
		                        total_trades, total_pnl_usd)
		 VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			time_utc = excluded.time_utc, at_epoch = excluded.at_epoch,
			status = excluded.status, survival_mode = excluded.survival_mode,
			equity_usd = excluded.equity_usd, open_positions = excluded.open_positions,
			prices_ok = excluded.prices_ok, markets_json = excluded.markets_json,
			wins = excluded.wins, losses = excluded.losses,
			total_trades = excluded.total_trades, total_pnl_usd = excluded.total_pnl_usd`,
		h.TimeUTC, h.AtEpoch, h.Status, h.SurvivalMode, h.EquityUSD,
		h.OpenPositions, h.PricesOK, string(raw), h.Wins, h.Losses,
		h.TotalTrades, h.TotalPnLUSD)
	if err != nil {
		return apperr.Wrap(apperr.StorageFailure, err, "upsert heartbeat")
	}
	return nil
}

// LatestHeartbeat returns the current heartbeat, or nil if none ingested.
func (s *Store) LatestHeartbeat(ctx context.Context) (*model.Heartbeat, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	var h model.Heartbeat
	err := s.db.GetContext(ctx, &h,
		`SELECT time_utc, at_epoch, status, survival_mode, equity_usd, open_positions,
		        prices_ok, markets_json, wins, losses, total_trades, total_pnl_usd
		 FROM heartbeat WHERE id = 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.StorageFailure, err, "read heartbeat")
	}
	h.Markets = []string{}
	if h.MarketsJSON != "" {
		if err := json.Unmarshal([]byte(h.MarketsJSON), &h.Markets); err != nil {
			h.Markets = []string{}
		}
	}
	return &h, nil
}

// UpsertPet replaces the latest pet state. Bounds are expected to be
// clamped by the caller.
func (s *Store) UpsertPet(ctx context.Context, p model.Pet) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pet (id, time_utc, at_epoch, stage, mood, health, hunger, growth,
		                  fainted_until_utc, sex, survival_mode)
		 VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			time_utc = excluded.time_utc, at_epoch = excluded.at_epoch,
			stage = excluded.stage, mood = excluded.mood,
			health = excluded.health, hunger = excluded.hunger,
			growth = excluded.growth, fainted_until_utc = excluded.fainted_until_utc,
			sex = excluded.sex, survival_mode = excluded.survival_mode`,
		p.TimeUTC, p.AtEpoch, p.Stage, p.Mood, p.Health, p.Hunger, p.Growth,
		p.FaintedUntil, p.Sex, p.SurvivalMode)
	if err != nil {
		return apperr.Wrap(apperr.StorageFailure, err, "upsert pet")
	}
	return nil
}

// LatestPet returns the current pet state, or nil if none ingested.
func (s *Store) LatestPet(ctx context.Context) (*model.Pet, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	var p model.Pet
	err := s.db.GetContext(ctx, &p,
		`SELECT time_utc, at_epoch, stage, mood, health, hunger, growth,
		        fainted_until_utc, sex, survival_mode
		 FROM pet WHERE id = 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.StorageFailure, err, "read pet")
	}
	return &p, nil
}

// LatestPrices returns the current prices snapshot, or nil if none ingested.
func (s *Store) LatestPrices(ctx context.Context) (*model.PriceBook, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	var b model.PriceBook
	err := s.db.GetContext(ctx, &b,
		`SELECT time_utc, at_epoch, prices_json FROM prices WHERE id = 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.StorageFailure, err, "read prices")
	}
	b.Prices = map[string]float64{}
	if b.PricesJSON != "" {
		if err := json.Unmarshal([]byte(b.PricesJSON), &b.Prices); err != nil {
			b.Prices = map[string]float64{}
		}
	}
	return &b, nil
}

// GetControl returns the control row, or nil before first initialization.
func (s *Store) GetControl(ctx context.Context) (*model.Control, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	var c model.Control
	err := s.db.GetContext(ctx, &c,
		`SELECT state, pause_reason, pause_until_utc, pause_until_epoch,
		        cryo_reason, cryo_until_utc, cryo_until_epoch,
		        updated_at_utc, updated_at_us
		 FROM control WHERE id = 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.StorageFailure, err, "read control")
	}
	return &c, nil
}

// PutControl upserts the control row.
func (s *Store) PutControl(ctx context.Context, c model.Control) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO control (id, state, pause_reason, pause_until_utc, pause_until_epoch,
		                      cryo_reason, cryo_until_utc, cryo_until_epoch,
		                      updated_at_utc, updated_at_us)
		 VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			pause_reason = excluded.pause_reason,
			pause_until_utc = excluded.pause_until_utc,
			pause_until_epoch = excluded.pause_until_epoch,
			cryo_reason = excluded.cryo_reason,
			cryo_until_utc = excluded.cryo_until_utc,
			cryo_until_epoch = excluded.cryo_until_epoch,
			updated_at_utc = excluded.updated_at_utc,
			updated_at_us = excluded.updated_at_us`,
		c.State, c.PauseReason, c.PauseUntilUTC, c.PauseUntilEpoch,
		c.CryoReason, c.CryoUntilUTC, c.CryoUntilEpoch,
		c.UpdatedAtUTC, c.UpdatedAtUS)
	if err != nil {
		return apperr.Wrap(apperr.StorageFailure, err, "upsert control")
	}
	return nil
}
