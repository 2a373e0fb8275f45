package metrics

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

var (
	requests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "visionbatch",
			Name:      "requests_total",
			Help:      "Chat-completion requests by model and result",
		},
		[]string{"model", "result"},
	)

	requestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "visionbatch",
			Name:      "request_duration_seconds",
			Help:      "Duration of chat-completion requests by model",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		},
		[]string{"model"},
	)

	imagesProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "visionbatch",
			Name:      "images_processed_total",
			Help:      "Images processed by result (success, failure)",
		},
		[]string{"result"},
	)

	imageBytes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "visionbatch",
			Name:      "image_bytes",
			Help:      "Raw size of images submitted for OCR",
			Buckets:   prometheus.ExponentialBuckets(16<<10, 4, 8),
		},
	)

	probes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "visionbatch",
			Name:      "probe_total",
			Help:      "Connectivity probes by result",
		},
		[]string{"result"},
	)

	registerOnce sync.Once
)

// Init registers collectors.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(requests, requestLatency, imagesProcessed, imageBytes, probes)
	})
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

// Serve exposes /metrics on addr until ctx is done. Empty addr is a no-op.
func Serve(ctx context.Context, addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info().Str("addr", addr).Msg("metrics listener started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn().Err(err).Str("addr", addr).Msg("metrics listener stopped")
		}
	}()
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()
}

func ObserveRequest(model, result string, dur time.Duration) {
	requests.WithLabelValues(model, result).Inc()
	requestLatency.WithLabelValues(model).Observe(dur.Seconds())
}

func IncProcessed(result string) { imagesProcessed.WithLabelValues(result).Inc() }
func ObserveImageBytes(n int) { imageBytes.Observe(float64(n)) }
func IncProbe(ok bool) { probes.WithLabelValues(boolToResult(ok)).Inc() }

func boolToResult(ok bool) string {
	if ok {
		return "ok"
	}
	return "failed"
}
