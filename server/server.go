// Package server exposes tutoring sessions over HTTP.
//
//	POST /sessions                  start a session
//	GET  /sessions/{id}             learner state summary
//	POST /sessions/{id}/next        choose items from a candidate pool
//	POST /sessions/{id}/answers     record an answer
//	POST /sessions/{id}/score       score breakdowns for candidates
//	GET  /rounds                    recent round summaries
//	GET  /health
//	GET  /metrics
//
// Sessions live in memory and are written through to a history.Store after
// every answer; a session unknown to the process is restored from the
// store on first use. Requests for one session are serialized.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sky-flux/tutor"
	"github.com/sky-flux/tutor/calibrate"
	"github.com/sky-flux/tutor/history"
)

// Config configures a Server. Zero values mean defaults.
type Config struct {
	RoundSize int                 // answers per stored round, default 10
	Gatherer  prometheus.Gatherer // served on /metrics, default prometheus.DefaultGatherer
	Clock     func() time.Time    // default time.Now

	// SeedValues initializes the learned values of new sessions from the
	// last ValueWindow stored rounds.
	SeedValues  bool
	ValueWindow int
}

// slot holds one live session. mu serializes requests for the session.
type slot struct {
	mu    sync.Mutex
	state *tutor.SessionState
	round history.Round // attempts since the last stored round
}

// Server routes HTTP requests to the engine and the history store.
type Server struct {
	engine *tutor.Engine
	store  history.Store
	logger *zap.Logger
	cfg    Config

	mu       sync.Mutex
	sessions map[uuid.UUID]*slot
}

// New creates a Server. A nil logger disables logging.
func New(engine *tutor.Engine, store history.Store, cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RoundSize <= 0 {
		cfg.RoundSize = 10
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Server{
		engine:   engine,
		store:    store,
		logger:   logger,
		cfg:      cfg,
		sessions: make(map[uuid.UUID]*slot),
	}
}

// Routes returns the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(requestLogger(s.logger))
	r.Use(recovery(s.logger))

	r.Get("/health", s.health)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.cfg.Gatherer, promhttp.HandlerOpts{}))
	r.Get("/rounds", s.rounds)

	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", s.createSession)
		r.Get("/{id}", s.getSession)
		r.Post("/{id}/next", s.next)
		r.Post("/{id}/answers", s.answer)
		r.Post("/{id}/score", s.score)
	})
	return r
}

var errUnknownSession = errors.New("server: unknown session")

// acquire returns the locked slot for id, restoring it from the store when
// it is not live. The caller must unlock it.
func (s *Server) acquire(ctx context.Context, id uuid.UUID) (*slot, error) {
	s.mu.Lock()
	sl, ok := s.sessions[id]
	s.mu.Unlock()
	if ok {
		sl.mu.Lock()
		return sl, nil
	}

	snap, err := s.store.LoadSession(ctx, id)
	if errors.Is(err, history.ErrNotFound) {
		return nil, errUnknownSession
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	state, err := s.engine.Restore(snap)
	if err != nil {
		return nil, fmt.Errorf("restore session: %w", err)
	}

	s.mu.Lock()
	if live, ok := s.sessions[id]; ok {
		sl = live
	} else {
		sl = &slot{state: state, round: history.StartRound(state, s.cfg.Clock().UTC())}
		s.sessions[id] = sl
		s.logger.Info("session restored", zap.String("session_id", id.String()))
	}
	s.mu.Unlock()

	sl.mu.Lock()
	return sl, nil
}

func (s *Server) seed(ctx context.Context, state *tutor.SessionState) {
	if !s.cfg.SeedValues {
		return
	}
	n, err := calibrate.SeedSession(ctx, s.store, state, s.cfg.ValueWindow)
	if err != nil {
		s.logger.Warn("seed values failed", zap.Error(err))
		return
	}
	s.logger.Debug("values seeded", zap.String("session_id", state.ID.String()), zap.Int("items", n))
}

func (s *Server) register(state *tutor.SessionState) *slot {
	sl := &slot{state: state, round: history.StartRound(state, s.cfg.Clock().UTC())}
	s.mu.Lock()
	s.sessions[state.ID] = sl
	s.mu.Unlock()
	return sl
}

// closeRound appends the attempts since the round started. Caller holds sl.mu.
func (s *Server) closeRound(ctx context.Context, sl *slot, now time.Time) error {
	if len(sl.round.Items) == 0 {
		return nil
	}
	round := sl.round
	round.Finish(sl.state, now)
	if err := s.store.AppendRound(ctx, round); err != nil {
		return err
	}
	sl.round = history.StartRound(sl.state, now)
	s.logger.Debug("round stored",
		zap.String("session_id", sl.state.ID.String()),
		zap.Int("items", len(round.Items)),
		zap.Float64("accuracy", round.Accuracy()))
	return nil
}

// Flush stores the open round of every live session.
func (s *Server) Flush(ctx context.Context) error {
	s.mu.Lock()
	slots := make([]*slot, 0, len(s.sessions))
	for _, sl := range s.sessions {
		slots = append(slots, sl)
	}
	s.mu.Unlock()

	now := s.cfg.Clock().UTC()
	var errs []error
	for _, sl := range slots {
		sl.mu.Lock()
		errs = append(errs, s.closeRound(ctx, sl, now))
		sl.mu.Unlock()
	}
	return errors.Join(errs...)
}

var validate = validator.New()
