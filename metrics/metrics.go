// Package metrics exports engine activity as Prometheus metrics.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sky-flux/tutor"
)

const namespace = "tutor"

// Collector implements tutor.Observer by updating Prometheus metrics.
type Collector struct {
	selections     *prometheus.CounterVec
	chosen         prometheus.Counter
	candidates     prometheus.Histogram
	answers        *prometheus.CounterVec
	ability        prometheus.Histogram
	variance       prometheus.Histogram
	intervals      *prometheus.HistogramVec
	lastDifficulty prometheus.Gauge
}

// New creates a Collector and registers it with reg. A nil reg uses
// prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &Collector{
		selections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "selections_total",
			Help:      "Next calls by selection strategy.",
		}, []string{"strategy"}),
		chosen: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_chosen_total",
			Help:      "Items returned by Next calls.",
		}),
		candidates: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "candidates",
			Help:      "Candidate pool size per Next call.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
		answers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "answers_total",
			Help:      "Recorded answers by outcome.",
		}, []string{"outcome"}),
		ability: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ability",
			Help:      "Learner ability after each recorded answer.",
			Buckets:   prometheus.LinearBuckets(1, 0.5, 9),
		}),
		variance: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ability_variance",
			Help:      "Ability variance after each recorded answer.",
			Buckets:   []float64{0.1, 0.2, 0.35, 0.5, 0.75, 1, 1.5, 2},
		}),
		intervals: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "review_interval_days",
			Help:      "Scheduled review interval by policy.",
			Buckets:   []float64{1, 3, 6, 7, 14, 21, 45, 90, 180},
		}, []string{"policy"}),
		lastDifficulty: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_difficulty",
			Help:      "Difficulty of the most recently answered item.",
		}),
	}

	for _, m := range []prometheus.Collector{
		c.selections, c.chosen, c.candidates, c.answers,
		c.ability, c.variance, c.intervals, c.lastDifficulty,
	} {
		if err := reg.Register(m); err != nil {
			return nil, fmt.Errorf("metrics: register: %w", err)
		}
	}
	return c, nil
}

// OnSelection counts a Next call.
func (c *Collector) OnSelection(ev tutor.SelectionEvent) {
	c.selections.WithLabelValues(ev.Strategy.String()).Inc()
	c.chosen.Add(float64(len(ev.Chosen)))
	c.candidates.Observe(float64(ev.Candidates))
}

// OnAnswer counts a recorded answer and samples the learner state.
func (c *Collector) OnAnswer(ev tutor.AnswerEvent) {
	c.answers.WithLabelValues(ev.Outcome.String()).Inc()
	c.lastDifficulty.Set(float64(ev.Difficulty))
	if ev.Review == nil {
		return
	}
	c.ability.Observe(ev.Ability)
	c.variance.Observe(ev.Variance)
	c.intervals.WithLabelValues(ev.Review.Policy.String()).Observe(ev.Review.IntervalDays)
}
