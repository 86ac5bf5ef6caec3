package coachfx

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/discochess/coach"
	"github.com/discochess/coach/internal/config"
	"github.com/discochess/coach/internal/httpapi"
	"github.com/discochess/coach/internal/stats/prometheus"
)

// Server is the HTTP server bound to the configured address.
type Server struct {
	srv *http.Server
	ln  net.Listener
}

// Addr returns the address the server listens on. It is only valid after
// the application has started.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// ServerParams holds dependencies for creating the server.
type ServerParams struct {
	fx.In

	Config    *config.Config
	Logger    *zap.Logger
	Client    *coach.Client
	Metrics   *prometheus.Collector
	Lifecycle fx.Lifecycle
}

func newServer(p ServerParams) *Server {
	logger := p.Logger.Named("http")
	s := &Server{
		srv: &http.Server{
			Addr: p.Config.Server.Addr,
			Handler: httpapi.New(p.Client,
				httpapi.WithMetrics(p.Metrics.Handler()),
				httpapi.WithRetry(p.Config.Live.Backoff.Base),
				httpapi.WithLogger(logger),
			),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}

	// Ending the sessions ends their streams, which Shutdown waits on.
	s.srv.RegisterOnShutdown(func() { p.Client.Sessions().Close() })

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", s.srv.Addr)
			if err != nil {
				return err
			}
			s.ln = ln
			logger.Info("listening", zap.Stringer("addr", ln.Addr()))
			go func() {
				if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return s.srv.Shutdown(ctx)
		},
	})
	return s
}
