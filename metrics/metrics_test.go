package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sky-flux/tutor"
)

// gathered returns counter values and histogram sample counts by metric
// name and the value of its first label.
func gathered(t *testing.T, reg *prometheus.Registry) map[string]float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)

	out := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			key := mf.GetName()
			if labels := m.GetLabel(); len(labels) > 0 {
				key += "/" + labels[0].GetValue()
			}
			switch {
			case m.GetCounter() != nil:
				out[key] = m.GetCounter().GetValue()
			case m.GetHistogram() != nil:
				out[key] = float64(m.GetHistogram().GetSampleCount())
			case m.GetGauge() != nil:
				out[key] = m.GetGauge().GetValue()
			}
		}
	}
	return out
}

func TestCollectorThroughEngine(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := New(reg)
	require.NoError(t, err)

	e, err := tutor.NewEngine(tutor.DefaultConfig(), tutor.WithObserver(c))
	require.NoError(t, err)
	s := e.NewSession()
	now := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

	items := []tutor.Item{{ID: "a", Difficulty: 2}, {ID: "b", Difficulty: 4}, {ID: "c", Difficulty: 3}}
	_, err = e.Next(s, items, 2, now)
	require.NoError(t, err)

	for i, o := range []tutor.Outcome{tutor.Correct, tutor.Incorrect, tutor.Ungraded} {
		_, err := e.Record(s, items[i], o, now)
		require.NoError(t, err)
	}

	got := gathered(t, reg)
	assert.Equal(t, 1.0, got["tutor_selections_total/softmax"])
	assert.Equal(t, 2.0, got["tutor_items_chosen_total"])
	assert.Equal(t, 1.0, got["tutor_candidates"])
	assert.Equal(t, 1.0, got["tutor_answers_total/correct"])
	assert.Equal(t, 1.0, got["tutor_answers_total/incorrect"])
	assert.Equal(t, 1.0, got["tutor_answers_total/ungraded"])
	assert.Equal(t, 2.0, got["tutor_ability"], "ungraded answers are not sampled")
	assert.Equal(t, 2.0, got["tutor_review_interval_days/sm2"])
	assert.Equal(t, 3.0, got["tutor_last_difficulty"])
}

func TestNewRejectsDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)
	_, err = New(reg)
	assert.Error(t, err)
}
