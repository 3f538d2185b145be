package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sky-flux/tutor"
)

type createRequest struct {
	Learner string `json:"learner" validate:"max=128"`
}

type sessionResponse struct {
	ID       string   `json:"id"`
	Learner  string   `json:"learner,omitempty"`
	Ability  float64  `json:"ability"`
	Variance float64  `json:"variance"`
	Low      float64  `json:"ability_low"`
	High     float64  `json:"ability_high"`
	Accuracy float64  `json:"accuracy"`
	Graded   int      `json:"graded"`
	Answered int      `json:"answered"`
	Due      []string `json:"due"`
}

type nextRequest struct {
	Candidates []tutor.Item `json:"candidates" validate:"required,min=1"`
	K          int          `json:"k" validate:"min=1,max=500"`
	Dedupe     bool         `json:"dedupe"`
}

type nextResponse struct {
	Items []tutor.Item `json:"items"`
}

type answerRequest struct {
	Item    tutor.Item    `json:"item"`
	Outcome tutor.Outcome `json:"outcome"`
}

type answerResponse struct {
	Record   tutor.AnswerRecord `json:"record"`
	Ability  float64            `json:"ability"`
	Variance float64            `json:"variance"`
	Review   *tutor.ReviewEntry `json:"review,omitempty"`
}

type scoreRequest struct {
	Candidates []tutor.Item `json:"candidates" validate:"required,min=1"`
}

// health handles GET /health
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// createSession handles POST /sessions
func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	state := s.engine.NewSession()
	state.Learner = req.Learner
	s.seed(r.Context(), state)
	if err := s.store.SaveSession(r.Context(), state.Snapshot()); err != nil {
		s.internalError(w, "save session", err)
		return
	}
	sl := s.register(state)
	s.logger.Info("session started",
		zap.String("session_id", state.ID.String()),
		zap.String("learner", req.Learner))

	sl.mu.Lock()
	defer sl.mu.Unlock()
	writeJSON(w, http.StatusCreated, s.summary(sl))
}

// getSession handles GET /sessions/{id}
func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sl, ok := s.lockSession(w, r)
	if !ok {
		return
	}
	defer sl.mu.Unlock()
	writeJSON(w, http.StatusOK, s.summary(sl))
}

// next handles POST /sessions/{id}/next
func (s *Server) next(w http.ResponseWriter, r *http.Request) {
	var req nextRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.K == 0 {
		req.K = 1
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Dedupe {
		req.Candidates = tutor.Dedupe(req.Candidates)
	}

	sl, ok := s.lockSession(w, r)
	if !ok {
		return
	}
	defer sl.mu.Unlock()

	items, err := s.engine.Next(sl.state, req.Candidates, req.K, s.cfg.Clock().UTC())
	if errors.Is(err, tutor.ErrDuplicateItem) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.internalError(w, "select items", err)
		return
	}
	// The draw counter advanced; persist it so a restart replays the same stream.
	if err := s.store.SaveSession(r.Context(), sl.state.Snapshot()); err != nil {
		s.internalError(w, "save session", err)
		return
	}
	writeJSON(w, http.StatusOK, nextResponse{Items: items})
}

// answer handles POST /sessions/{id}/answers
func (s *Server) answer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Item.ID == "" {
		writeError(w, http.StatusBadRequest, "item.id is required")
		return
	}

	sl, ok := s.lockSession(w, r)
	if !ok {
		return
	}
	defer sl.mu.Unlock()

	now := s.cfg.Clock().UTC()
	rec, err := s.engine.Record(sl.state, req.Item, req.Outcome, now)
	if errors.Is(err, tutor.ErrInvalidOutcome) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.internalError(w, "record answer", err)
		return
	}
	if err := s.store.SaveSession(r.Context(), sl.state.Snapshot()); err != nil {
		s.internalError(w, "save session", err)
		return
	}

	sl.round.Add(rec, sl.state.Difficulties[rec.ItemID])
	if len(sl.round.Items) >= s.cfg.RoundSize {
		if err := s.closeRound(r.Context(), sl, now); err != nil {
			s.logger.Warn("append round failed", zap.Error(err))
		}
	}

	resp := answerResponse{Record: rec, Ability: sl.state.Ability, Variance: sl.state.Variance}
	if req.Outcome.Graded() {
		entry := sl.state.Reviews[req.Item.ID]
		resp.Review = &entry
	}
	writeJSON(w, http.StatusOK, resp)
}

// score handles POST /sessions/{id}/score
func (s *Server) score(w http.ResponseWriter, r *http.Request) {
	var req scoreRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sl, ok := s.lockSession(w, r)
	if !ok {
		return
	}
	defer sl.mu.Unlock()

	now := s.cfg.Clock().UTC()
	out := make([]tutor.ScoreBreakdown, len(req.Candidates))
	for i, it := range req.Candidates {
		out[i] = s.engine.Score(sl.state, it, now)
	}
	writeJSON(w, http.StatusOK, out)
}

// rounds handles GET /rounds?limit=n
func (s *Server) rounds(w http.ResponseWriter, r *http.Request) {
	limit := 15
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 1000 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}
	rounds, err := s.store.RecentRounds(r.Context(), limit)
	if err != nil {
		s.internalError(w, "load rounds", err)
		return
	}
	writeJSON(w, http.StatusOK, rounds)
}

// lockSession resolves {id} and returns its locked slot, or writes the
// error response and returns false.
func (s *Server) lockSession(w http.ResponseWriter, r *http.Request) (*slot, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return nil, false
	}
	sl, err := s.acquire(r.Context(), id)
	if errors.Is(err, errUnknownSession) {
		writeError(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	if err != nil {
		s.internalError(w, "acquire session", err)
		return nil, false
	}
	return sl, true
}

func (s *Server) summary(sl *slot) sessionResponse {
	st := sl.state
	acc, graded := st.Accuracy()
	low, high := s.engine.Ability().ConfidenceInterval(st.Ability, st.Variance, 1.96)
	due := st.DueItems(s.cfg.Clock().UTC())
	if due == nil {
		due = []string{}
	}
	return sessionResponse{
		ID:       st.ID.String(),
		Learner:  st.Learner,
		Ability:  st.Ability,
		Variance: st.Variance,
		Low:      low,
		High:     high,
		Accuracy: acc,
		Graded:   graded,
		Answered: len(st.Answers),
		Due:      due,
	}
}

func (s *Server) internalError(w http.ResponseWriter, op string, err error) {
	s.logger.Error(op+" failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal server error")
}
