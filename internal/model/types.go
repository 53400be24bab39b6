// Package model holds the persisted record shapes and the tolerant JSON
// decoding used at the ingest boundary. Field tags follow the wire contract
// the dashboard reads: rows carry time_utc, the control row carries the
// *_utc deadline names.
package model

import (
	"encoding/json"
	"time"
)

// Control states.
const (
	StateActive = "ACTIVE"
	StatePaused = "PAUSED"
	StateCryo   = "CRYO"
)

// Event types.
const (
	EventInfo    = "info"
	EventWarning = "warning"
	EventError   = "error"
	EventStatus  = "status"
	EventSound   = "sound"
	EventThought = "thought"
)

// Control is the singleton FSM row. updated_at_us is kept in microseconds
// so back-to-back transitions still order strictly.
type Control struct {
	State           string `db:"state" json:"state"`
	PauseReason     string `db:"pause_reason" json:"pause_reason"`
	PauseUntilUTC   string `db:"pause_until_utc" json:"pause_until_utc"`
	PauseUntilEpoch int64  `db:"pause_until_epoch" json:"-"`
	CryoReason      string `db:"cryo_reason" json:"cryo_reason"`
	CryoUntilUTC    string `db:"cryo_until_utc" json:"cryo_until_utc"`
	CryoUntilEpoch  int64  `db:"cryo_until_epoch" json:"-"`
	UpdatedAtUTC    string `db:"updated_at_utc" json:"updated_at_utc"`
	UpdatedAtUS     int64  `db:"updated_at_us" json:"-"`
}

// Heartbeat is the latest worker liveness report. Counters are advisory
// telemetry from the worker; the server computes its own stats from the
// trades stream.
type Heartbeat struct {
	TimeUTC       string   `db:"time_utc" json:"time_utc"`
	AtEpoch       int64    `db:"at_epoch" json:"at_epoch"`
	Status        string   `db:"status" json:"status"`
	SurvivalMode  string   `db:"survival_mode" json:"survival_mode"`
	EquityUSD     float64  `db:"equity_usd" json:"equity_usd"`
	OpenPositions int      `db:"open_positions" json:"open_positions"`
	PricesOK      bool     `db:"prices_ok" json:"prices_ok"`
	MarketsJSON   string   `db:"markets_json" json:"-"`
	Markets       []string `db:"-" json:"markets"`
	Wins          int      `db:"wins" json:"wins"`
	Losses        int      `db:"losses" json:"losses"`
	TotalTrades   int      `db:"total_trades" json:"total_trades"`
	TotalPnLUSD   float64  `db:"total_pnl_usd" json:"total_pnl_usd"`
}

// Pet is the latest tamagotchi state.
type Pet struct {
	TimeUTC      string  `db:"time_utc" json:"time_utc"`
	AtEpoch      int64   `db:"at_epoch" json:"at_epoch"`
	Stage        string  `db:"stage" json:"stage"`
	Mood         string  `db:"mood" json:"mood"`
	Health       float64 `db:"health" json:"health"`
	Hunger       float64 `db:"hunger" json:"hunger"`
	Growth       float64 `db:"growth" json:"growth"`
	FaintedUntil string  `db:"fainted_until_utc" json:"fainted_until"`
	Sex          string  `db:"sex" json:"sex"`
	SurvivalMode string  `db:"survival_mode" json:"survival_mode"`
}

// InitialPet is the state revive resets the companion to.
func InitialPet(now time.Time) Pet {
	return Pet{
		TimeUTC:      FormatUTC(now),
		AtEpoch:      now.Unix(),
		Stage:        "egg",
		Mood:         "focused",
		Health:       100,
		Hunger:       50,
		Growth:       0,
		FaintedUntil: "",
		Sex:          "boy",
		SurvivalMode: "NORMAL",
	}
}

// PriceBook is the latest prices snapshot, last-writer-wins.
type PriceBook struct {
	TimeUTC    string             `db:"time_utc" json:"time_utc"`
	AtEpoch    int64              `db:"at_epoch" json:"at_epoch"`
	PricesJSON string             `db:"prices_json" json:"-"`
	Prices     map[string]float64 `db:"-" json:"prices"`
}

// Tick is one raw price observation; the OHLC input stream.
type Tick struct {
	ID      int64   `db:"id" json:"id"`
	TimeUTC string  `db:"time_utc" json:"time_utc"`
	AtEpoch int64   `db:"at_epoch" json:"at_epoch"`
	Market  string  `db:"market" json:"market"`
	Price   float64 `db:"price" json:"price"`
}

// EquityPoint is one equity curve sample.
type EquityPoint struct {
	ID        int64   `db:"id" json:"id"`
	TimeUTC   string  `db:"time_utc" json:"time_utc"`
	AtEpoch   int64   `db:"at_epoch" json:"at_epoch"`
	EquityUSD float64 `db:"equity_usd" json:"equity_usd"`
}

// Trade is one closed paper trade.
type Trade struct {
	ID         int64   `db:"id" json:"id"`
	TimeUTC    string  `db:"time_utc" json:"time_utc"`
	AtEpoch    int64   `db:"at_epoch" json:"at_epoch"`
	Market     string  `db:"market" json:"market"`
	Side       string  `db:"side" json:"side"`
	SizeUSD    float64 `db:"size_usd" json:"size_usd"`
	Price      float64 `db:"price" json:"price"`
	PnLUSD     float64 `db:"pnl_usd" json:"pnl_usd"`
	Confidence float64 `db:"confidence" json:"confidence"`
	Reason     string  `db:"reason" json:"reason"`
}

// Event is one log-style record. DetailsJSON is the stored opaque payload;
// Details is its parsed form on output.
type Event struct {
	ID          int64       `db:"id" json:"id"`
	TimeUTC     string      `db:"time_utc" json:"time_utc"`
	AtEpoch     int64       `db:"at_epoch" json:"at_epoch"`
	Type        string      `db:"type" json:"type"`
	Message     string      `db:"message" json:"message"`
	DetailsJSON string      `db:"details_json" json:"-"`
	Details     interface{} `db:"-" json:"details"`
}

// Death records a worker death report.
type Death struct {
	ID          int64       `db:"id" json:"id"`
	TimeUTC     string      `db:"time_utc" json:"time_utc"`
	AtEpoch     int64       `db:"at_epoch" json:"at_epoch"`
	Source      string      `db:"source" json:"source"`
	Reason      string      `db:"reason" json:"reason"`
	DetailsJSON string      `db:"details_json" json:"-"`
	Details     interface{} `db:"-" json:"details"`
}

// ParseDetails decodes a stored details payload. Unparsable text survives
// as {"raw": <text>} so clients never lose it.
func ParseDetails(raw string) interface{} {
	if raw == "" {
		return map[string]interface{}{}
	}
	var v interface{}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return map[string]interface{}{"raw": raw}
	}
	return v
}
