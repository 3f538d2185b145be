package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/sky-flux/tutor"
	"github.com/sky-flux/tutor/history"
	"github.com/sky-flux/tutor/metrics"
)

var t0 = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

type fixture struct {
	srv   *Server
	http  *httptest.Server
	store history.Store
	clock atomic.Int64 // unix nanos
}

func (f *fixture) setNow(t time.Time) { f.clock.Store(t.UnixNano()) }

func (f *fixture) now() time.Time { return time.Unix(0, f.clock.Load()).UTC() }

func newFixture(t *testing.T, roundSize int) *fixture {
	t.Helper()
	return newFixtureWith(t, Config{RoundSize: roundSize})
}

func newFixtureWith(t *testing.T, cfg Config) *fixture {
	t.Helper()
	store, err := history.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	reg := prometheus.NewRegistry()
	collector, err := metrics.New(reg)
	require.NoError(t, err)

	ecfg := tutor.DefaultConfig()
	ecfg.Session.Seed = 42
	engine, err := tutor.NewEngine(ecfg, tutor.WithObserver(collector))
	require.NoError(t, err)

	f := &fixture{store: store}
	f.setNow(t0)
	cfg.Gatherer = reg
	cfg.Clock = f.now
	f.srv = New(engine, store, cfg, zaptest.NewLogger(t))
	f.http = httptest.NewServer(f.srv.Routes())
	t.Cleanup(f.http.Close)
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any, out any) int {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, f.http.URL+path, rd)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (f *fixture) create(t *testing.T, learner string) sessionResponse {
	t.Helper()
	var s sessionResponse
	status := f.do(t, http.MethodPost, "/sessions", createRequest{Learner: learner}, &s)
	require.Equal(t, http.StatusCreated, status)
	return s
}

var pool = []tutor.Item{
	{ID: "q1", Difficulty: 1},
	{ID: "q2", Difficulty: 2},
	{ID: "q3", Difficulty: 3},
	{ID: "q4", Difficulty: 4},
}

func TestCreateAndGetSession(t *testing.T) {
	f := newFixture(t, 10)
	s := f.create(t, "ada")
	assert.Equal(t, "ada", s.Learner)
	assert.Equal(t, 1.0, s.Ability)
	assert.Empty(t, s.Due)

	var got sessionResponse
	status := f.do(t, http.MethodGet, "/sessions/"+s.ID, nil, &got)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, s.ID, got.ID)
	assert.LessOrEqual(t, got.Low, got.Ability)
	assert.GreaterOrEqual(t, got.High, got.Ability)

	_, err := f.store.LoadSession(context.Background(), uuid.MustParse(s.ID))
	assert.NoError(t, err, "new sessions are stored")
}

func TestUnknownAndMalformedSession(t *testing.T) {
	f := newFixture(t, 10)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/sessions/"+uuid.NewString(), nil, nil))
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/sessions/nope", nil, nil))
}

func TestNextAndAnswer(t *testing.T) {
	f := newFixture(t, 10)
	s := f.create(t, "")

	var next nextResponse
	status := f.do(t, http.MethodPost, "/sessions/"+s.ID+"/next", nextRequest{Candidates: pool, K: 2}, &next)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, next.Items, 2)
	assert.NotEqual(t, next.Items[0].ID, next.Items[1].ID)

	var ans answerResponse
	status = f.do(t, http.MethodPost, "/sessions/"+s.ID+"/answers",
		answerRequest{Item: pool[3], Outcome: tutor.Correct}, &ans)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1, ans.Record.Attempt)
	assert.Greater(t, ans.Ability, 1.0)
	require.NotNil(t, ans.Review)
	assert.True(t, ans.Review.Due.Equal(t0.Add(24*time.Hour)))

	f.setNow(t0.Add(48 * time.Hour))
	var got sessionResponse
	f.do(t, http.MethodGet, "/sessions/"+s.ID, nil, &got)
	assert.Equal(t, []string{"q4"}, got.Due)
	assert.Equal(t, 1, got.Graded)
	assert.Equal(t, 1.0, got.Accuracy)
}

func TestUngradedAnswerHasNoReview(t *testing.T) {
	f := newFixture(t, 10)
	s := f.create(t, "")

	var ans answerResponse
	status := f.do(t, http.MethodPost, "/sessions/"+s.ID+"/answers",
		answerRequest{Item: pool[0], Outcome: tutor.Ungraded}, &ans)
	require.Equal(t, http.StatusOK, status)
	assert.Nil(t, ans.Review)
	assert.Equal(t, 1.0, ans.Ability)
}

func TestBadRequests(t *testing.T) {
	f := newFixture(t, 10)
	s := f.create(t, "")
	base := "/sessions/" + s.ID

	tests := []struct {
		name string
		path string
		body any
	}{
		{"no candidates", base + "/next", nextRequest{K: 1}},
		{"k too large", base + "/next", nextRequest{Candidates: pool, K: 501}},
		{"duplicate ids", base + "/next", nextRequest{Candidates: append(pool, pool[0]), K: 1}},
		{"missing item id", base + "/answers", map[string]any{"outcome": "correct"}},
		{"missing outcome", base + "/answers", map[string]any{"item": map[string]any{"id": "q1"}}},
		{"unknown outcome", base + "/answers", map[string]any{"item": map[string]any{"id": "q1"}, "outcome": "maybe"}},
		{"unknown field", base + "/answers", map[string]any{"item": map[string]any{"id": "q1"}, "grade": 5}},
		{"empty score", base + "/score", scoreRequest{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var e map[string]string
			status := f.do(t, http.MethodPost, tt.path, tt.body, &e)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.NotEmpty(t, e["error"])
		})
	}
}

func TestNextDedupe(t *testing.T) {
	f := newFixture(t, 10)
	s := f.create(t, "")
	var next nextResponse
	status := f.do(t, http.MethodPost, "/sessions/"+s.ID+"/next",
		nextRequest{Candidates: append(pool, pool[0]), K: 10, Dedupe: true}, &next)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, next.Items, len(pool))
}

func TestScoreEndpoint(t *testing.T) {
	f := newFixture(t, 10)
	s := f.create(t, "")

	var out []tutor.ScoreBreakdown
	status := f.do(t, http.MethodPost, "/sessions/"+s.ID+"/score", scoreRequest{Candidates: pool}, &out)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, out, len(pool))
	assert.Equal(t, "q1", out[0].ItemID)
	assert.InDelta(t, 0, out[0].Fit, 1e-9, "ability 1 fits difficulty 1")
	assert.InDelta(t, -3, out[3].Fit, 1e-9)
}

func TestRoundsAreStored(t *testing.T) {
	f := newFixture(t, 2)
	s := f.create(t, "ada")

	for i, it := range pool[:3] {
		f.setNow(t0.Add(time.Duration(i) * time.Minute))
		status := f.do(t, http.MethodPost, "/sessions/"+s.ID+"/answers",
			answerRequest{Item: it, Outcome: tutor.OutcomeOf(i != 1)}, nil)
		require.Equal(t, http.StatusOK, status)
	}

	var rounds []history.Round
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/rounds", nil, &rounds))
	require.Len(t, rounds, 1)
	assert.Equal(t, "ada", rounds[0].Learner)
	assert.Len(t, rounds[0].Items, 2)
	assert.InDelta(t, 0.5, rounds[0].Accuracy(), 1e-9)

	f.setNow(t0.Add(time.Hour))
	require.NoError(t, f.srv.Flush(context.Background()))
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/rounds?limit=5", nil, &rounds))
	require.Len(t, rounds, 2)
	assert.Equal(t, "q3", rounds[1].Items[0].ID)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/rounds?limit=0", nil, nil))
}

func TestSessionRestoredFromStore(t *testing.T) {
	f := newFixture(t, 10)
	s := f.create(t, "")
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/sessions/"+s.ID+"/answers",
		answerRequest{Item: pool[2], Outcome: tutor.Correct}, nil))

	// A second server over the same store has no live sessions.
	other := New(f.srv.engine, f.store, Config{Clock: func() time.Time { return t0 }}, nil)
	rec := httptest.NewRecorder()
	other.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions/"+s.ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got sessionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, 1, got.Answered)
	assert.Greater(t, got.Ability, 1.0)
}

func TestRepeatedAttemptsKeptInRound(t *testing.T) {
	f := newFixture(t, 3)
	s := f.create(t, "ada")

	answers := []struct {
		item    tutor.Item
		outcome tutor.Outcome
	}{
		{pool[0], tutor.Incorrect},
		{pool[0], tutor.Correct},
		{pool[1], tutor.Correct},
	}
	for i, a := range answers {
		f.setNow(t0.Add(time.Duration(i) * time.Minute))
		require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/sessions/"+s.ID+"/answers",
			answerRequest{Item: a.item, Outcome: a.outcome}, nil))
	}

	rounds, err := f.store.RecentRounds(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, rounds, 1)
	items := rounds[0].Items
	require.Len(t, items, 3)
	assert.Equal(t, []string{"q1", "q1", "q2"}, []string{items[0].ID, items[1].ID, items[2].ID})
	assert.Equal(t, tutor.Incorrect, items[0].Outcome)
	assert.Equal(t, tutor.Correct, items[1].Outcome)
	assert.InDelta(t, 2.0/3, rounds[0].Accuracy(), 1e-9)
}

func TestRestoredSessionKeepsLearner(t *testing.T) {
	f := newFixture(t, 10)
	s := f.create(t, "ada")

	other := New(f.srv.engine, f.store, Config{RoundSize: 1, Clock: func() time.Time { return t0 }}, nil)
	h := other.Routes()

	body, err := json.Marshal(answerRequest{Item: pool[1], Outcome: tutor.Correct})
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sessions/"+s.ID+"/answers", bytes.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)

	rounds, err := f.store.RecentRounds(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, rounds, 1)
	assert.Equal(t, "ada", rounds[0].Learner)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions/"+s.ID, nil))
	var got sessionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, "ada", got.Learner)
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t, 10)
	s := f.create(t, "")
	f.do(t, http.MethodPost, "/sessions/"+s.ID+"/answers", answerRequest{Item: pool[0], Outcome: tutor.Incorrect}, nil)

	var health map[string]string
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/health", nil, &health))
	assert.Equal(t, "ok", health["status"])

	resp, err := http.Get(f.http.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `tutor_answers_total{outcome="incorrect"} 1`), string(body))
}

func TestNewSessionSeedsValues(t *testing.T) {
	f := newFixtureWith(t, Config{RoundSize: 1, SeedValues: true})
	first := f.create(t, "")
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/sessions/"+first.ID+"/answers",
		answerRequest{Item: pool[1], Outcome: tutor.Incorrect}, nil))

	second := f.create(t, "")
	snap, err := f.store.LoadSession(context.Background(), uuid.MustParse(second.ID))
	require.NoError(t, err)
	assert.InDelta(t, -2, snap.Values["q2"], 1e-9)
}
