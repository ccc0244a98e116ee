package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records pipeline progress. Batch runs are short lived, so the
// registry is written to a node exporter textfile instead of being scraped.
type Metrics struct {
	registry *prometheus.Registry

	StageLatency *prometheus.HistogramVec
	YearOutcome  *prometheus.CounterVec
	Scenes       *prometheus.CounterVec
	FilledPixels prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		StageLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ndvi_composite_stage_duration_seconds",
			Help:    "Duration of each pipeline stage",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"stage"}),

		YearOutcome: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ndvi_composite_years_total",
			Help: "Yearly pipeline runs by final stage and status",
		}, []string{"stage", "status"}),

		Scenes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ndvi_composite_scenes_total",
			Help: "Scenes considered for compositing by outcome",
		}, []string{"outcome"}), // outcome: "used", "skipped"

		FilledPixels: factory.NewCounter(prometheus.CounterOpts{
			Name: "ndvi_composite_filled_pixels_total",
			Help: "Pixels recovered by gap filling",
		}),
	}
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m != nil {
		m.StageLatency.WithLabelValues(stage).Observe(d.Seconds())
	}
}

func (m *Metrics) IncrementYear(stage, status string) {
	if m != nil {
		m.YearOutcome.WithLabelValues(stage, status).Inc()
	}
}

func (m *Metrics) AddScenes(outcome string, n int) {
	if m != nil {
		m.Scenes.WithLabelValues(outcome).Add(float64(n))
	}
}

func (m *Metrics) AddFilled(n int) {
	if m != nil && n > 0 {
		m.FilledPixels.Add(float64(n))
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile dumps every metric to path in the text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
