package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/datazip-inc/pipes/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	BatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "pipes_batches_total", Help: "Batches processed by outcome"},
		[]string{"stream", "status"},
	)
	RecordsWritten = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "pipes_records_written_total", Help: "Records confirmed by the sink"},
		[]string{"stream"},
	)
	CheckpointBlock = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "pipes_checkpoint_block", Help: "Block number of the last committed checkpoint"},
		[]string{"stream"},
	)
	SourceRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "pipes_source_retries_total", Help: "Transient portal failures retried"},
		[]string{"stream"},
	)
	MalformedBlocks = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "pipes_malformed_blocks_total", Help: "Blocks skipped for missing header fields"},
		[]string{"stream"},
	)
	WriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "pipes_write_duration_seconds", Help: "Sink write latency", Buckets: prometheus.DefBuckets},
		[]string{"stream", "status"},
	)
)

func init() {
	prometheus.MustRegister(BatchesTotal, RecordsWritten, CheckpointBlock, SourceRetries, MalformedBlocks, WriteDuration)
}

// ObserveWrite records a sink write outcome
func ObserveWrite(stream string, started time.Time, records int, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	WriteDuration.WithLabelValues(stream, status).Observe(time.Since(started).Seconds())
	if err == nil {
		RecordsWritten.WithLabelValues(stream).Add(float64(records))
	}
}

// Serve exposes /metrics on addr until ctx is done
func Serve(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		logger.Infof("serving metrics on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("metrics server stopped: %s", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warnf("metrics server shutdown: %s", err)
		}
	}()
}
