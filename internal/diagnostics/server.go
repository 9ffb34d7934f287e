// Package diagnostics exposes a read-only HTTP surface for operational
// visibility into a guaradict node: liveness, replica status, and a
// recent tail of the operation log (SPEC_FULL.md §4.8). It never
// accepts writes and never touches the dictionary directly.
package diagnostics

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.uber.org/zap"

	"github.com/guarapi/guaradict/internal/oplog"
	"github.com/guarapi/guaradict/internal/replica"
)

const (
	defaultOplogTail = 50
	maxOplogTail     = 500
)

// Log is the subset of *oplog.Log the diagnostics server reads.
type Log interface {
	Len() int
	Tail(n int) []oplog.Operation
}

// Replicas is the subset of *replica.Registry the diagnostics server
// reads.
type Replicas interface {
	Snapshot() []replica.Snapshot
}

// Server is the diagnostics HTTP server. The zero value is not usable;
// construct with New.
type Server struct {
	echo   *echo.Echo
	addr   string
	logger *zap.Logger
}

// New builds a diagnostics Server bound to addr (e.g. ":8081"), reading
// from log and replicas.
func New(addr string, log Log, replicas Replicas, logger *zap.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(otelecho.Middleware("guaradict-diagnostics"))
	e.Use(middleware.Recover())

	s := &Server{echo: e, addr: addr, logger: logger}

	e.GET("/healthz", s.handleHealthz)
	e.GET("/status", s.handleStatus(replicas))
	e.GET("/oplog", s.handleOplog(log))

	return s
}

func (s *Server) handleHealthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(replicas Replicas) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, replicas.Snapshot())
	}
}

func (s *Server) handleOplog(log Log) echo.HandlerFunc {
	return func(c echo.Context) error {
		n := defaultOplogTail
		if raw := c.QueryParam("tail"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 0 {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "tail must be a non-negative integer"})
			}
			n = parsed
		}
		if n > maxOplogTail {
			n = maxOplogTail
		}
		return c.JSON(http.StatusOK, log.Tail(n))
	}
}

// ServeHTTP lets tests exercise the diagnostics routes directly via
// httptest without binding a real listener.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start serves HTTP until ctx is cancelled, at which point it shuts down
// gracefully. Bind failures are returned; they are not fatal to the
// process (spec: DiagnosticsServerError is non-fatal).
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("diagnostics server listening", zap.String("addr", s.addr))
		if err := s.echo.Start(s.addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		if err := s.echo.Shutdown(context.Background()); err != nil {
			s.logger.Warn("diagnostics server shutdown error", zap.Error(err))
		}
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}
