package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/phuhao00/scriptbridge/server/internal/utils"
)

// Label values are bounded: resource names come from manifests on disk and
// channels are a fixed enum. No per-player labels.
var (
	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "script_tick_duration_seconds",
		Help:    "Time spent draining one resource queue batch",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.016, 0.05, 0.1},
	})

	TasksExecuted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "script_tasks_executed_total",
		Help: "Queued script tasks run to completion or failure",
	})

	TaskPanics = promauto.NewCounter(prometheus.CounterOpts{
		Name: "script_task_panics_total",
		Help: "Script tasks and listeners that panicked",
	})

	AskTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "script_ask_timeouts_total",
		Help: "Cancellable events that fell back to the default verdict",
	})

	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "script_queue_depth",
		Help: "Tasks swapped out in the last drain, per resource",
	}, []string{"resource"})

	ActiveResources = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "script_resources_active",
		Help: "Resources currently registered",
	})

	MessagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transport_messages_sent_total",
		Help: "Outgoing messages handed to the transport",
	}, []string{"channel"})

	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "transport_connections_active",
		Help: "Currently open client connections",
	})
)

// Serve exposes /metrics on addr until ctx is cancelled. An empty addr
// disables the endpoint.
func Serve(ctx context.Context, addr string) error {
	if addr == "" {
		utils.LogInfo("[Metrics] Metrics endpoint disabled")
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			utils.LogWarnf("[Metrics] Shutdown error: %v", err)
		}
	}()

	utils.LogInfof("[Metrics] Serving /metrics on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
