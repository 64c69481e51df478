package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/vepflow/vepflow/core"
)

// Server is the HTTP front of the service with the standard middleware
// chain applied: observability, then auth, then request logging.
type Server struct {
	httpServer *http.Server
	logger     core.Logger
}

// ServerOptions configure the HTTP server.
type ServerOptions struct {
	Config         *core.Config
	Handler        *Handler
	MetricsHandler http.Handler
	HTTPMetrics    HTTPMetrics
	Logger         core.Logger
}

// NewServer assembles the router and middleware chain.
func NewServer(opts ServerOptions) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = &core.NoOpLogger{}
	}

	mux := http.NewServeMux()
	opts.Handler.Routes(mux, opts.MetricsHandler)

	var handler http.Handler = mux
	handler = core.LoggingMiddleware(logger, !opts.Config.IsProduction())(handler)
	handler = TokenAuthMiddleware(opts.Config.Auth.Token)(handler)
	handler = ObservabilityMiddleware(opts.HTTPMetrics)(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", opts.Config.Port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("http server listening", map[string]interface{}{
		"addr": s.httpServer.Addr,
	})
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
