package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Server serves the /metrics endpoint for prometheus scrapes.
type Server struct {
	server *http.Server
	log    zerolog.Logger
}

// NewServer creates a server listening on the given port, responding only to
// the /metrics endpoint.
func NewServer(log zerolog.Logger, port uint) *Server {
	addr := ":" + strconv.Itoa(int(port))
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	return &Server{
		server: &http.Server{Addr: addr, Handler: mux},
		log:    log.With().Str("component", "metrics_server").Logger(),
	}
}

// Ready starts the server and returns a channel that closes once it is
// listening.
func (m *Server) Ready() <-chan struct{} {
	ready := make(chan struct{})
	go func() {
		close(ready)
		err := m.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.log.Error().Err(err).Msg("metrics server failed")
		}
	}()
	return ready
}

// Done shuts the server down and returns a channel that closes once all
// connections are drained.
func (m *Server) Done() <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := m.server.Shutdown(ctx)
		if err != nil {
			m.log.Warn().Err(err).Msg("metrics server shutdown failed")
		}
	}()
	return done
}
