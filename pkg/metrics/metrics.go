// Package metrics exposes Prometheus counters for recording and playback.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	initOnce sync.Once

	recordedEventsCounter *prometheus.CounterVec
	throttledMovesCounter prometheus.Counter
	filteredKeysCounter   prometheus.Counter
	emittedEventsCounter  *prometheus.CounterVec
	playbackErrorsCounter *prometheus.CounterVec
	playbackRunsCounter   *prometheus.CounterVec
	playbackWaitHistogram prometheus.Histogram
)

var eventKinds = []string{"move", "click", "scroll", "kpress", "krelease"}

// Playback outcomes used as the runs counter label.
const (
	OutcomeFinished = "finished"
	OutcomeStopped  = "stopped"
)

// Init registers metrics on the default Prometheus registry exactly once.
func Init() {
	initOnce.Do(func() {
		recordedEventsCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tinymacro_recorded_events_total",
				Help: "Events appended to the macro while recording, by kind.",
			},
			[]string{"kind"},
		)

		throttledMovesCounter = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tinymacro_throttled_moves_total",
				Help: "Pointer moves dropped by the recording throttle.",
			},
		)

		filteredKeysCounter = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tinymacro_filtered_keys_total",
				Help: "Key events dropped because they are reserved or squelched.",
			},
		)

		emittedEventsCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tinymacro_emitted_events_total",
				Help: "Events synthesised during playback, by kind.",
			},
			[]string{"kind"},
		)

		playbackErrorsCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tinymacro_playback_errors_total",
				Help: "Events skipped during playback because emission failed, by kind.",
			},
			[]string{"kind"},
		)

		playbackRunsCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tinymacro_playback_runs_total",
				Help: "Completed playback passes by outcome.",
			},
			[]string{"outcome"},
		)

		playbackWaitHistogram = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tinymacro_playback_wait_seconds",
				Help:    "Scaled inter-event waits scheduled during playback.",
				Buckets: []float64{0, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
		)

		prometheus.MustRegister(
			recordedEventsCounter,
			throttledMovesCounter,
			filteredKeysCounter,
			emittedEventsCounter,
			playbackErrorsCounter,
			playbackRunsCounter,
			playbackWaitHistogram,
		)

		for _, kind := range eventKinds {
			recordedEventsCounter.WithLabelValues(kind)
			emittedEventsCounter.WithLabelValues(kind)
			playbackErrorsCounter.WithLabelValues(kind)
		}
		for _, outcome := range []string{OutcomeFinished, OutcomeStopped} {
			playbackRunsCounter.WithLabelValues(outcome)
		}
	})
}

func IncRecorded(kind string) {
	Init()
	recordedEventsCounter.WithLabelValues(kind).Inc()
}

func IncThrottledMove() {
	Init()
	throttledMovesCounter.Inc()
}

func IncFilteredKey() {
	Init()
	filteredKeysCounter.Inc()
}

func IncEmitted(kind string) {
	Init()
	emittedEventsCounter.WithLabelValues(kind).Inc()
}

func IncPlaybackError(kind string) {
	Init()
	playbackErrorsCounter.WithLabelValues(kind).Inc()
}

func IncPlaybackRun(outcome string) {
	Init()
	playbackRunsCounter.WithLabelValues(outcome).Inc()
}

func ObserveWait(d time.Duration) {
	Init()
	playbackWaitHistogram.Observe(d.Seconds())
}
