package telemetry

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes current tuning state as Prometheus gauges.
type Metrics struct {
	gain    *prometheus.GaugeVec
	reading *prometheus.GaugeVec
	state   *prometheus.GaugeVec

	stateIndex map[string]float64
}

// NewMetrics registers wavetuner gauges against a dedicated registry.
func NewMetrics() (*Metrics, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		gain: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "wavetuner_current_gain",
			Help: "Current software gain applied to the waveform generator script.",
		}, []string{"run_id"}),
		reading: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "wavetuner_last_reading_dbm",
			Help: "Most recent forward power reading in dBm, per amplifier device.",
		}, []string{"run_id", "device"}),
		state: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "wavetuner_state",
			Help: "1 for the tuning controller's current state, 0 otherwise.",
		}, []string{"run_id", "state"}),
		stateIndex: make(map[string]float64),
	}
	return m, reg
}

// Report implements Reporter.
func (m *Metrics) Report(s Sample) {
	m.gain.WithLabelValues(s.RunID).Set(float64(s.Gain))
	if s.Device != "" {
		m.reading.WithLabelValues(s.RunID, s.Device).Set(s.ReadingDB)
	}
	m.state.WithLabelValues(s.RunID, s.State).Set(1)
}

// ServeMetrics starts an HTTP server exposing reg at /metrics until ctx is
// canceled.
func ServeMetrics(ctx context.Context, addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("metrics server shutdown: %v", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Printf("metrics server error: %v", err)
	}
}
