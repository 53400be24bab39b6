package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/piptrade/botd/internal/apperr"
	"github.com/piptrade/botd/internal/model"
	"github.com/piptrade/botd/internal/ohlc"
	"github.com/piptrade/botd/internal/query"
	"github.com/piptrade/botd/internal/store"
)

var endpoints = []string{
	"GET /", "GET /health", "GET /data", "GET /ohlc",
	"GET /heartbeat", "GET /pet", "GET /events", "GET /equity", "GET /trades",
	"GET /prices", "GET /deaths", "GET /control", "GET /history", "GET /metrics",
	"POST /ingest/heartbeat", "POST /ingest/pet", "POST /ingest/equity",
	"POST /ingest/trade", "POST /ingest/prices", "POST /ingest/event", "POST /ingest/death",
	"POST /control/pause", "POST /control/cryo", "POST /control/revive",
	"DELETE /reset/all", "DELETE /reset/events", "DELETE /reset/trades",
	"DELETE /reset/equity", "DELETE /reset/deaths", "DELETE /reset/ticks",
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":      serviceName,
		"version":   s.version,
		"time_utc":  model.FormatUTC(time.Now()),
		"endpoints": endpoints,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":       true,
		"time_utc": model.FormatUTC(time.Now()),
	})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeErr(w, apperr.New(apperr.NotFound, "no such endpoint: %s", r.URL.Path))
}

// --- query surface ---

func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	snap, err := s.qry.Dashboard(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleOHLC(w http.ResponseWriter, r *http.Request) {
	market := r.URL.Query().Get("market")
	interval := queryInt(r, "interval", 60)
	limit := queryInt(r, "limit", ohlc.DefaultLimit)

	candles, err := s.agg.Candles(r.Context(), market, interval, limit)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"market":       market,
		"interval_sec": ohlc.ClampInterval(interval),
		"candles":      candles,
	})
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	hb, err := s.st.LatestHeartbeat(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	if hb == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{})
		return
	}
	writeJSON(w, http.StatusOK, hb)
}

func (s *Server) handlePet(w http.ResponseWriter, r *http.Request) {
	pet, err := s.st.LatestPet(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	if pet == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{})
		return
	}
	writeJSON(w, http.StatusOK, pet)
}

func (s *Server) handleControlGet(w http.ResponseWriter, r *http.Request) {
	ctl, err := s.fsm.Current(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ctl)
}

func (s *Server) handleEquity(w http.ResponseWriter, r *http.Request) {
	rows, err := s.st.TailEquity(r.Context(), query.ClampLimit(queryInt(r, "limit", 0)))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	rows, err := s.st.TailTrades(r.Context(), query.ClampLimit(queryInt(r, "limit", 0)))
	if err != nil {
		writeErr(w, err)
		return
	}
	// Newest first, mirroring the /data trades block.
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	rows, err := s.st.TailEvents(r.Context(), query.ClampLimit(queryInt(r, "limit", 0)))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleDeaths(w http.ResponseWriter, r *http.Request) {
	rows, err := s.st.TailDeaths(r.Context(), query.ClampLimit(queryInt(r, "limit", 0)))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// handlePrices serves the stored snapshot, or the upstream pass-through
// when a markets list is given.
func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	if raw := r.URL.Query().Get("markets"); raw != "" {
		markets := splitCSV(raw)
		prices := s.mkt.Spot(r.Context(), markets)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"prices":   prices,
			"time_utc": model.FormatUTC(time.Now()),
			"source":   "upstream",
		})
		return
	}
	book, err := s.st.LatestPrices(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	if book == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"prices": map[string]float64{}})
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	market := r.URL.Query().Get("market")
	if market == "" {
		writeErr(w, apperr.New(apperr.BadRequest, "market is required"))
		return
	}
	limit := queryInt(r, "limit", 500)
	klines := s.mkt.History(r.Context(), market, limit)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"market":  market,
		"candles": klines,
	})
}

// --- ingest surface ---

func (s *Server) handleIngestHeartbeat(w http.ResponseWriter, r *http.Request) {
	var p model.HeartbeatIn
	if err := decodeBody(r, &p); err != nil {
		writeErr(w, err)
		return
	}
	if err := s.ing.Heartbeat(r.Context(), p); err != nil {
		writeErr(w, err)
		return
	}
	s.metrics.IngestRecords.WithLabelValues("heartbeat").Inc()
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

func (s *Server) handleIngestPet(w http.ResponseWriter, r *http.Request) {
	var p model.PetIn
	if err := decodeBody(r, &p); err != nil {
		writeErr(w, err)
		return
	}
	if err := s.ing.Pet(r.Context(), p); err != nil {
		writeErr(w, err)
		return
	}
	s.metrics.IngestRecords.WithLabelValues("pet").Inc()
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

func (s *Server) handleIngestEquity(w http.ResponseWriter, r *http.Request) {
	var p model.EquityIn
	if err := decodeBody(r, &p); err != nil {
		writeErr(w, err)
		return
	}
	id, err := s.ing.Equity(r.Context(), p)
	if err != nil {
		writeErr(w, err)
		return
	}
	s.metrics.IngestRecords.WithLabelValues("equity").Inc()
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "id": id})
}

func (s *Server) handleIngestTrade(w http.ResponseWriter, r *http.Request) {
	var p model.TradeIn
	if err := decodeBody(r, &p); err != nil {
		writeErr(w, err)
		return
	}
	id, err := s.ing.Trade(r.Context(), p)
	if err != nil {
		writeErr(w, err)
		return
	}
	s.metrics.IngestRecords.WithLabelValues("trade").Inc()
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "id": id})
}

func (s *Server) handleIngestPrices(w http.ResponseWriter, r *http.Request) {
	var p model.PricesIn
	if err := decodeBody(r, &p); err != nil {
		writeErr(w, err)
		return
	}
	count, err := s.ing.Prices(r.Context(), p)
	if err != nil {
		writeErr(w, err)
		return
	}
	s.metrics.IngestRecords.WithLabelValues("prices").Add(float64(count))
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "count": count})
}

func (s *Server) handleIngestEvent(w http.ResponseWriter, r *http.Request) {
	var p model.EventIn
	if err := decodeBody(r, &p); err != nil {
		writeErr(w, err)
		return
	}
	id, err := s.ing.Event(r.Context(), p)
	if err != nil {
		writeErr(w, err)
		return
	}
	s.metrics.IngestRecords.WithLabelValues("event").Inc()
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "id": id})
}

func (s *Server) handleIngestDeath(w http.ResponseWriter, r *http.Request) {
	var p model.DeathIn
	if err := decodeBody(r, &p); err != nil {
		writeErr(w, err)
		return
	}
	id, err := s.ing.Death(r.Context(), p)
	if err != nil {
		writeErr(w, err)
		return
	}
	s.metrics.IngestRecords.WithLabelValues("death").Inc()
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "id": id})
}

// --- control surface ---

type controlBody struct {
	Seconds model.FlexFloat `json:"seconds"`
	Reason  string          `json:"reason"`
}

func (s *Server) handleControlPause(w http.ResponseWriter, r *http.Request) {
	var body controlBody
	if err := decodeBody(r, &body); err != nil {
		writeErr(w, err)
		return
	}
	ctl, err := s.fsm.Pause(r.Context(), body.Seconds.Int(), body.Reason)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":          true,
		"state":       ctl.State,
		"pause_until": ctl.PauseUntilUTC,
		"reason":      ctl.PauseReason,
	})
}

func (s *Server) handleControlCryo(w http.ResponseWriter, r *http.Request) {
	var body controlBody
	if err := decodeBody(r, &body); err != nil {
		writeErr(w, err)
		return
	}
	ctl, err := s.fsm.Cryo(r.Context(), body.Seconds.Int(), body.Reason)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":         true,
		"state":      ctl.State,
		"cryo_until": ctl.CryoUntilUTC,
		"reason":     ctl.CryoReason,
	})
}

func (s *Server) handleControlRevive(w http.ResponseWriter, r *http.Request) {
	var body controlBody
	if err := decodeBody(r, &body); err != nil {
		writeErr(w, err)
		return
	}
	ctl, err := s.fsm.Revive(r.Context(), body.Reason)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":    true,
		"state": ctl.State,
	})
}

// --- reset surface ---

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	name := routeSuffix(r, "stream")
	var targets []string
	if name == "all" {
		targets = store.Streams()
	} else {
		targets = []string{name}
	}
	if err := s.st.Truncate(r.Context(), targets...); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "reset": targets})
}

// --- helpers ---

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
