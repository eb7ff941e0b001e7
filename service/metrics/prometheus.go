package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vsverdict_runs_total",
		Help: "Total number of pipeline runs, by final state",
	}, []string{"state"})

	VerdictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vsverdict_verdicts_total",
		Help: "Total number of verdicts, by verdict",
	}, []string{"verdict"})

	RunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vsverdict_run_duration_seconds",
		Help:    "Duration of pipeline runs, by stage",
		Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120, 300},
	}, []string{"stage"})

	FramesSampledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vsverdict_frames_sampled_total",
		Help: "Total number of frames produced by the frame source",
	})

	FramesDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vsverdict_frames_dropped_total",
		Help: "Total number of dropped frames, by stage",
	}, []string{"stage"})

	BatchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vsverdict_batches_total",
		Help: "Total number of batches scored",
	})

	SlowFramesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vsverdict_slow_frames_total",
		Help: "Total number of frames routed to the slow scorer",
	})

	ActiveRuns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vsverdict_active_runs",
		Help: "Number of currently running pipelines",
	})
)
