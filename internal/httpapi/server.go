// Package httpapi wires the control/telemetry plane onto HTTP: routes,
// middleware, the JSON codec and the Prometheus surface.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/piptrade/botd/internal/config"
	"github.com/piptrade/botd/internal/control"
	"github.com/piptrade/botd/internal/ingest"
	"github.com/piptrade/botd/internal/market"
	"github.com/piptrade/botd/internal/ohlc"
	"github.com/piptrade/botd/internal/query"
	"github.com/piptrade/botd/internal/store"
)

const serviceName = "piptrade-botd"

// Server owns the router and the shared subsystem handles. Everything is
// constructed at startup and passed in explicitly; there are no package
// globals beyond the logger.
type Server struct {
	cfg     config.Config
	version string

	st      *store.Store
	fsm     *control.FSM
	ing     *ingest.Service
	qry     *query.Service
	agg     *ohlc.Aggregator
	mkt     *market.Client
	metrics *Metrics

	router *mux.Router
	server *http.Server
}

// Deps bundles the subsystems the server serves.
type Deps struct {
	Store  *store.Store
	FSM    *control.FSM
	Ingest *ingest.Service
	Query  *query.Service
	OHLC   *ohlc.Aggregator
	Market *market.Client
}

// NewServer builds the router and the http.Server.
func NewServer(cfg config.Config, version string, d Deps) *Server {
	s := &Server{
		cfg:     cfg,
		version: version,
		st:      d.Store,
		fsm:     d.FSM,
		ing:     d.Ingest,
		qry:     d.Query,
		agg:     d.OHLC,
		mkt:     d.Market,
		metrics: NewMetrics(),
	}
	s.router = s.buildRouter()
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) buildRouter() *mux.Router {
	r := mux.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(accessLogMiddleware)
	r.Use(s.metricsMiddleware)
	r.Use(s.corsMiddleware)

	r.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/data", s.handleData).Methods(http.MethodGet)
	r.HandleFunc("/ohlc", s.handleOHLC).Methods(http.MethodGet)
	r.HandleFunc("/heartbeat", s.handleHeartbeat).Methods(http.MethodGet)
	r.HandleFunc("/pet", s.handlePet).Methods(http.MethodGet)
	r.HandleFunc("/control", s.handleControlGet).Methods(http.MethodGet)
	r.HandleFunc("/equity", s.handleEquity).Methods(http.MethodGet)
	r.HandleFunc("/trades", s.handleTrades).Methods(http.MethodGet)
	r.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)
	r.HandleFunc("/deaths", s.handleDeaths).Methods(http.MethodGet)
	r.HandleFunc("/prices", s.handlePrices).Methods(http.MethodGet)
	r.HandleFunc("/history", s.handleHistory).Methods(http.MethodGet)

	ing := r.PathPrefix("/ingest").Subrouter()
	ing.Use(s.ingestAuthMiddleware)
	ing.HandleFunc("/heartbeat", s.handleIngestHeartbeat).Methods(http.MethodPost)
	ing.HandleFunc("/pet", s.handleIngestPet).Methods(http.MethodPost)
	ing.HandleFunc("/equity", s.handleIngestEquity).Methods(http.MethodPost)
	ing.HandleFunc("/trade", s.handleIngestTrade).Methods(http.MethodPost)
	ing.HandleFunc("/prices", s.handleIngestPrices).Methods(http.MethodPost)
	ing.HandleFunc("/event", s.handleIngestEvent).Methods(http.MethodPost)
	ing.HandleFunc("/death", s.handleIngestDeath).Methods(http.MethodPost)

	r.HandleFunc("/control/pause", s.handleControlPause).Methods(http.MethodPost)
	r.HandleFunc("/control/cryo", s.handleControlCryo).Methods(http.MethodPost)
	r.HandleFunc("/control/revive", s.handleControlRevive).Methods(http.MethodPost)

	r.HandleFunc("/reset/{stream}", s.handleReset).Methods(http.MethodDelete)

	// Pre-flights must reach the CORS middleware for every path.
	r.PathPrefix("/").Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	r.NotFoundHandler = s.withCommonHeaders(http.HandlerFunc(s.handleNotFound))
	r.MethodNotAllowedHandler = s.withCommonHeaders(http.HandlerFunc(s.handleNotFound))
	return r
}

// withCommonHeaders runs the standard middleware chain for handlers mounted
// outside the router's Use() path (mux skips middleware for NotFound).
func (s *Server) withCommonHeaders(h http.Handler) http.Handler {
	return requestIDMiddleware(accessLogMiddleware(s.corsMiddleware(h)))
}

// Router exposes the handler tree, mainly for tests.
func (s *Server) Router() http.Handler { return s.router }

// Start blocks serving until shutdown or a listener error.
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("http server starting")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("http server shutting down")
	return s.server.Shutdown(ctx)
}
