// Package metrics exposes Prometheus counters for the file-share
// server and an optional HTTP endpoint to scrape them.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// BytesIn counts payload bytes received from clients.
	BytesIn = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fileshare_bytes_in_total",
		Help: "Total payload bytes received from clients",
	})

	// BytesOut counts payload bytes sent to clients.
	BytesOut = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fileshare_bytes_out_total",
		Help: "Total payload bytes sent to clients",
	})

	// CommandsTotal counts dispatched commands by verb.
	CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fileshare_commands_total",
		Help: "Total commands processed, by verb",
	}, []string{"verb"})

	// ActiveSessions tracks currently connected clients.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fileshare_active_sessions",
		Help: "Number of currently connected client sessions",
	})
)

// ListenAndServe serves /metrics on addr until ctx is cancelled.
func ListenAndServe(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errc:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
