package telemetry

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"taskflow/internal/logging"
)

// Registry holds every taskflow collector plus the Go runtime ones.
var Registry = prometheus.NewRegistry()

var (
	TaskRuns = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Name: "taskflow_task_runs_total",
		Help: "Tasks that reached a terminal state, by state.",
	}, []string{"task", "state"})

	TaskDuration = promauto.With(Registry).NewHistogramVec(prometheus.HistogramOpts{
		Name:    "taskflow_task_duration_seconds",
		Help:    "Wall time of task actions that ran.",
		Buckets: prometheus.ExponentialBuckets(0.005, 4, 10),
	}, []string{"task"})

	PipelineRecords = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Name: "taskflow_pipeline_records_total",
		Help: "Records leaving each pipeline step (source, transform stages, sinks).",
	}, []string{"task", "stage"})
)

func init() {
	Registry.MustRegister(collectors.NewGoCollector())
}

// Server serves /metrics until Shutdown.
type Server struct {
	srv *http.Server
	lis net.Listener
}

// Expose starts serving /metrics on addr (":9100", "127.0.0.1:0").
func Expose(addr string) (*Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(Registry, promhttp.HandlerOpts{}))
	s := &Server{
		srv: &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		lis: lis,
	}
	go func() {
		if err := s.srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.L().Error("metrics server stopped", "err", err)
		}
	}()
	return s, nil
}

// Addr is the bound address, useful when listening on port 0.
func (s *Server) Addr() string { return s.lis.Addr().String() }

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
