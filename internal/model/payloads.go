package model

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/piptrade/botd/internal/apperr"
)

// Ingest payloads. Timestamps are accepted under either time_utc (what the
// worker posts) or at; When() resolves them with a server-stamped fallback.

// HeartbeatIn is the POST /ingest/heartbeat body.
type HeartbeatIn struct {
	TimeUTC       FlexTime    `json:"time_utc"`
	At            FlexTime    `json:"at"`
	Status        string      `json:"status"`
	SurvivalMode  string      `json:"survival_mode"`
	EquityUSD     FlexFloat   `json:"equity_usd"`
	OpenPositions FlexFloat   `json:"open_positions"`
	PricesOK      FlexBool    `json:"prices_ok"`
	Markets       FlexStrings `json:"markets"`
	Wins          FlexFloat   `json:"wins"`
	Losses        FlexFloat   `json:"losses"`
	TotalTrades   FlexFloat   `json:"total_trades"`
	TotalPnLUSD   FlexFloat   `json:"total_pnl_usd"`
}

func (p HeartbeatIn) When(now time.Time) time.Time { return pick(p.TimeUTC, p.At, now) }

// PetIn is the POST /ingest/pet body.
type PetIn struct {
	TimeUTC      FlexTime  `json:"time_utc"`
	At           FlexTime  `json:"at"`
	Stage        string    `json:"stage"`
	Mood         string    `json:"mood"`
	Health       FlexFloat `json:"health"`
	Hunger       FlexFloat `json:"hunger"`
	Growth       FlexFloat `json:"growth"`
	FaintedUntil FlexTime  `json:"fainted_until"`
	Sex          string    `json:"sex"`
	SurvivalMode string    `json:"survival_mode"`
}

func (p PetIn) When(now time.Time) time.Time { return pick(p.TimeUTC, p.At, now) }

// EquityIn is the POST /ingest/equity body.
type EquityIn struct {
	TimeUTC   FlexTime  `json:"time_utc"`
	At        FlexTime  `json:"at"`
	EquityUSD FlexFloat `json:"equity_usd"`
}

func (p EquityIn) When(now time.Time) time.Time { return pick(p.TimeUTC, p.At, now) }

// TradeIn is the POST /ingest/trade body.
type TradeIn struct {
	TimeUTC    FlexTime  `json:"time_utc"`
	At         FlexTime  `json:"at"`
	Market     string    `json:"market"`
	Side       string    `json:"side"`
	SizeUSD    FlexFloat `json:"size_usd"`
	Price      FlexFloat `json:"price"`
	PnLUSD     FlexFloat `json:"pnl_usd"`
	Confidence FlexFloat `json:"confidence"`
	Reason     string    `json:"reason"`
}

func (p TradeIn) When(now time.Time) time.Time { return pick(p.TimeUTC, p.At, now) }

// EventIn is the POST /ingest/event body. Details stays opaque.
type EventIn struct {
	TimeUTC FlexTime        `json:"time_utc"`
	At      FlexTime        `json:"at"`
	Type    string          `json:"type"`
	Message string          `json:"message"`
	Details json.RawMessage `json:"details"`
}

func (p EventIn) When(now time.Time) time.Time { return pick(p.TimeUTC, p.At, now) }

// DeathIn is the POST /ingest/death body.
type DeathIn struct {
	TimeUTC FlexTime        `json:"time_utc"`
	At      FlexTime        `json:"at"`
	Source  string          `json:"source"`
	Reason  string          `json:"reason"`
	Details json.RawMessage `json:"details"`
}

func (p DeathIn) When(now time.Time) time.Time { return pick(p.TimeUTC, p.At, now) }

// PricesIn is the POST /ingest/prices body. Both shapes are accepted:
//
//	{"time_utc": "...", "prices": {"BTCUSDT": 42000.5}}
//	{"BTCUSDT": 42000.5, "ETHUSDT": "2200.25"}
type PricesIn struct {
	TimeUTC FlexTime
	At      FlexTime
	Prices  map[string]float64
}

func (p *PricesIn) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return apperr.New(apperr.BadRequest, "missing prices payload")
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return apperr.Wrap(apperr.BadRequest, err, "invalid prices payload")
	}
	p.Prices = map[string]float64{}
	if ts, ok := raw["time_utc"]; ok {
		if err := p.TimeUTC.UnmarshalJSON(ts); err != nil {
			return err
		}
	}
	if ts, ok := raw["at"]; ok {
		if err := p.At.UnmarshalJSON(ts); err != nil {
			return err
		}
	}
	if nested, ok := raw["prices"]; ok {
		var m map[string]FlexFloat
		if err := json.Unmarshal(nested, &m); err != nil {
			return apperr.Wrap(apperr.BadRequest, err, "invalid prices map")
		}
		for market, price := range m {
			p.Prices[market] = price.Float64()
		}
		return nil
	}
	// Flat form: every key except the timestamps is a market.
	for market, v := range raw {
		if market == "time_utc" || market == "at" {
			continue
		}
		var f FlexFloat
		if err := f.UnmarshalJSON(v); err != nil {
			return apperr.New(apperr.BadRequest, "invalid price for %s", market)
		}
		p.Prices[market] = f.Float64()
	}
	return nil
}

func (p PricesIn) When(now time.Time) time.Time { return pick(p.TimeUTC, p.At, now) }

func pick(primary, secondary FlexTime, now time.Time) time.Time {
	if !primary.IsZero() {
		return primary.Time
	}
	return secondary.Or(now)
}
