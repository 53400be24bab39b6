// Package ingest normalizes worker telemetry and writes it through the
// store. All type tolerance lives at the decode boundary (model's Flex
// types); by the time a record is persisted it is fully typed, clamped and
// timestamped.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/piptrade/botd/internal/apperr"
	"github.com/piptrade/botd/internal/model"
	"github.com/piptrade/botd/internal/store"
)

var eventTypes = map[string]bool{
	model.EventInfo:    true,
	model.EventWarning: true,
	model.EventError:   true,
	model.EventStatus:  true,
	model.EventSound:   true,
	model.EventThought: true,
}

// Service applies ingest normalization and persistence.
type Service struct {
	st  *store.Store
	now func() time.Time
}

func New(st *store.Store, clock func() time.Time) *Service {
	if clock == nil {
		clock = time.Now
	}
	return &Service{st: st, now: clock}
}

// Heartbeat upserts the latest worker liveness report.
func (s *Service) Heartbeat(ctx context.Context, p model.HeartbeatIn) error {
	at := p.When(s.now())
	h := model.Heartbeat{
		TimeUTC:       model.FormatUTC(at),
		AtEpoch:       at.Unix(),
		Status:        p.Status,
		SurvivalMode:  p.SurvivalMode,
		EquityUSD:     p.EquityUSD.Float64(),
		OpenPositions: p.OpenPositions.Int(),
		PricesOK:      p.PricesOK.Bool(),
		Markets:       p.Markets,
		Wins:          p.Wins.Int(),
		Losses:        p.Losses.Int(),
		TotalTrades:   p.TotalTrades.Int(),
		TotalPnLUSD:   p.TotalPnLUSD.Float64(),
	}
	return s.st.UpsertHeartbeat(ctx, h)
}

// Pet upserts the latest pet state with health/hunger clamped to [0, 100].
func (s *Service) Pet(ctx context.Context, p model.PetIn) error {
	at := p.When(s.now())
	fainted := ""
	if !p.FaintedUntil.IsZero() {
		fainted = model.FormatUTC(p.FaintedUntil.Time)
	}
	pet := model.Pet{
		TimeUTC:      model.FormatUTC(at),
		AtEpoch:      at.Unix(),
		Stage:        defaultStr(p.Stage, "egg"),
		Mood:         defaultStr(p.Mood, "focused"),
		Health:       model.Clamp(p.Health.Float64(), 0, 100),
		Hunger:       model.Clamp(p.Hunger.Float64(), 0, 100),
		Growth:       p.Growth.Float64(),
		FaintedUntil: fainted,
		Sex:          defaultStr(strings.ToLower(p.Sex), "boy"),
		SurvivalMode: defaultStr(p.SurvivalMode, "NORMAL"),
	}
	return s.st.UpsertPet(ctx, pet)
}

// Equity appends one equity curve sample.
func (s *Service) Equity(ctx context.Context, p model.EquityIn) (int64, error) {
	at := p.When(s.now())
	return s.st.AppendEquity(ctx, model.EquityPoint{
		TimeUTC:   model.FormatUTC(at),
		AtEpoch:   at.Unix(),
		EquityUSD: p.EquityUSD.Float64(),
	})
}

// Trade appends one closed trade. Side is normalized; confidence clamps to
// [0, 1].
func (s *Service) Trade(ctx context.Context, p model.TradeIn) (int64, error) {
	side := strings.ToLower(strings.TrimSpace(p.Side))
	if side != "buy" && side != "sell" {
		return 0, apperr.New(apperr.BadRequest, "side must be buy or sell, got %q", p.Side)
	}
	if p.Market == "" {
		return 0, apperr.New(apperr.BadRequest, "market is required")
	}
	at := p.When(s.now())
	return s.st.AppendTrade(ctx, model.Trade{
		TimeUTC:    model.FormatUTC(at),
		AtEpoch:    at.Unix(),
		Market:     p.Market,
		Side:       side,
		SizeUSD:    p.SizeUSD.Float64(),
		Price:      p.Price.Float64(),
		PnLUSD:     p.PnLUSD.Float64(),
		Confidence: model.Clamp(p.Confidence.Float64(), 0, 1),
		Reason:     p.Reason,
	})
}

// Event appends one event row. Unknown types normalize to info.
func (s *Service) Event(ctx context.Context, p model.EventIn) (int64, error) {
	at := p.When(s.now())
	typ := strings.ToLower(strings.TrimSpace(p.Type))
	if !eventTypes[typ] {
		typ = model.EventInfo
	}
	return s.st.AppendEvent(ctx, model.Event{
		TimeUTC:     model.FormatUTC(at),
		AtEpoch:     at.Unix(),
		Type:        typ,
		Message:     p.Message,
		DetailsJSON: rawDetails(p.Details),
	})
}

// Death appends a death report and a summarizing error event.
func (s *Service) Death(ctx context.Context, p model.DeathIn) (int64, error) {
	at := p.When(s.now())
	id, err := s.st.AppendDeath(ctx, model.Death{
		TimeUTC:     model.FormatUTC(at),
		AtEpoch:     at.Unix(),
		Source:      p.Source,
		Reason:      p.Reason,
		DetailsJSON: rawDetails(p.Details),
	})
	if err != nil {
		return 0, err
	}
	summary, _ := json.Marshal(map[string]interface{}{"source": p.Source, "death_id": id})
	if _, err := s.st.AppendEvent(ctx, model.Event{
		TimeUTC:     model.FormatUTC(at),
		AtEpoch:     at.Unix(),
		Type:        model.EventError,
		Message:     fmt.Sprintf("Death reported by %s: %s", p.Source, p.Reason),
		DetailsJSON: string(summary),
	}); err != nil {
		log.Error().Err(err).Int64("death_id", id).Msg("death event append failed")
	}
	return id, nil
}

// Prices fans one payload out into N tick appends plus the snapshot upsert,
// atomically. Returns the number of markets written.
func (s *Service) Prices(ctx context.Context, p model.PricesIn) (int, error) {
	if len(p.Prices) == 0 {
		return 0, apperr.New(apperr.BadRequest, "no prices in payload")
	}
	at := p.When(s.now())
	timeUTC := model.FormatUTC(at)
	epoch := at.Unix()

	markets := make([]string, 0, len(p.Prices))
	for m := range p.Prices {
		markets = append(markets, m)
	}
	sort.Strings(markets)

	ticks := make([]model.Tick, 0, len(markets))
	for _, m := range markets {
		ticks = append(ticks, model.Tick{
			TimeUTC: timeUTC,
			AtEpoch: epoch,
			Market:  m,
			Price:   p.Prices[m],
		})
	}
	book := model.PriceBook{TimeUTC: timeUTC, AtEpoch: epoch, Prices: p.Prices}
	if err := s.st.AppendTicksWithSnapshot(ctx, ticks, book); err != nil {
		return 0, err
	}
	return len(ticks), nil
}

func rawDetails(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	return string(raw)
}

func defaultStr(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
