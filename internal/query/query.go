// Package query composes the dashboard read surface: the /data aggregate
// and the per-stream tails.
package query

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/piptrade/botd/internal/control"
	"github.com/piptrade/botd/internal/model"
	"github.com/piptrade/botd/internal/store"
)

// Tail sizes for the composite snapshot.
const (
	equityTail = 200
	tradesTail = 80
	ticksTail  = 800
	eventsTail = 250
	deathsTail = 100

	DefaultLimit = 200
	MaxLimit     = 1000
)

// Stats is the server-computed summary block. Trade counters here are
// authoritative (derived from the trades stream), unlike the advisory
// counters inside Heartbeat.
type Stats struct {
	State             string  `json:"state"`
	Paused            bool    `json:"paused"`
	PauseUntil        string  `json:"pause_until"`
	CryoUntil         string  `json:"cryo_until"`
	TotalTradesLoaded int     `json:"total_trades_loaded"`
	TotalPnLUSD       float64 `json:"total_pnl_usd"`
}

// Snapshot is the GET /data payload.
type Snapshot struct {
	Control   model.Control       `json:"control"`
	State     string              `json:"state"`
	Heartbeat *model.Heartbeat    `json:"heartbeat"`
	Pet       *model.Pet          `json:"pet"`
	Equity    []model.EquityPoint `json:"equity"`
	Trades    []model.Trade       `json:"trades"`
	Ticks     []model.Tick        `json:"ticks"`
	Prices    *model.PriceBook    `json:"prices"`
	Events    []model.Event       `json:"events"`
	Deaths    []model.Death       `json:"deaths"`
	Stats     Stats               `json:"stats"`
}

// Service reads the composed views.
type Service struct {
	st  *store.Store
	fsm *control.FSM
}

func New(st *store.Store, fsm *control.FSM) *Service {
	return &Service{st: st, fsm: fsm}
}

// Dashboard builds the composite snapshot. Control passes through the FSM
// so an elapsed deadline thaws before it is reported.
func (s *Service) Dashboard(ctx context.Context) (*Snapshot, error) {
	ctl, err := s.fsm.Current(ctx)
	if err != nil {
		return nil, err
	}
	hb, err := s.st.LatestHeartbeat(ctx)
	if err != nil {
		return nil, err
	}
	pet, err := s.st.LatestPet(ctx)
	if err != nil {
		return nil, err
	}
	prices, err := s.st.LatestPrices(ctx)
	if err != nil {
		return nil, err
	}
	equity, err := s.st.TailEquity(ctx, equityTail)
	if err != nil {
		return nil, err
	}
	trades, err := s.st.TailTrades(ctx, tradesTail)
	if err != nil {
		return nil, err
	}
	ticks, err := s.st.TailTicks(ctx, ticksTail)
	if err != nil {
		return nil, err
	}
	events, err := s.st.TailEvents(ctx, eventsTail)
	if err != nil {
		return nil, err
	}
	deaths, err := s.st.TailDeaths(ctx, deathsTail)
	if err != nil {
		return nil, err
	}

	// Trades render newest first; tails come back oldest first.
	newestFirst := make([]model.Trade, len(trades))
	for i, t := range trades {
		newestFirst[len(trades)-1-i] = t
	}

	pnl := decimal.Zero
	for _, t := range trades {
		pnl = pnl.Add(decimal.NewFromFloat(t.PnLUSD))
	}
	totalPnL, _ := pnl.Float64()

	return &Snapshot{
		Control:   ctl,
		State:     ctl.State,
		Heartbeat: hb,
		Pet:       pet,
		Equity:    equity,
		Trades:    newestFirst,
		Ticks:     ticks,
		Prices:    prices,
		Events:    events,
		Deaths:    deaths,
		Stats: Stats{
			State:             ctl.State,
			Paused:            ctl.State != model.StateActive,
			PauseUntil:        ctl.PauseUntilUTC,
			CryoUntil:         ctl.CryoUntilUTC,
			TotalTradesLoaded: len(trades),
			TotalPnLUSD:       totalPnL,
		},
	}, nil
}

// ClampLimit normalizes a per-stream limit parameter.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}
