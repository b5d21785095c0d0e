// Package health exposes liveness and metrics endpoints for processes
// embedding fabrica-stream.
package health

import (
	httpgo "net/http"

	"github.com/go-kratos/kratos/v2/transport/http"
	"github.com/go-pantheon/fabrica-stream/stats"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Server struct {
	*http.Server
}

// NewServer creates an HTTP server serving /metrics and /health. The given
// stream stats, if non-nil, are registered with the default prometheus
// registerer.
func NewServer(addr string, streams *stats.Streams) (*Server, error) {
	if err := streams.Register(prometheus.DefaultRegisterer); err != nil {
		return nil, err
	}

	s := http.NewServer(http.Address(addr))

	s.Handle("/metrics", promhttp.Handler())
	s.HandleFunc("/health", func(w httpgo.ResponseWriter, r *httpgo.Request) {
		w.WriteHeader(httpgo.StatusOK)
	})

	return &Server{s}, nil
}
