package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"

	"github.com/jpalmerr/playerwatch"
)

const (
	// wsWriteTimeout bounds a single websocket write so a stalled client
	// cannot pin its handler. Must be <= shutdown timeout.
	wsWriteTimeout = 5 * time.Second

	defaultShutdownTimeout = 5 * time.Second

	apiTitle = "playerwatch"

	apiPrefix = "/api/v1"
)

// Controller is the monitor surface the API drives. *playerwatch.Monitor
// satisfies it.
type Controller interface {
	Start() error
	Stop() error
	SetIdentifier(id string) (string, error)
	Report() playerwatch.Report
	Subscribe() <-chan playerwatch.ChangeEvent
	Unsubscribe(ch <-chan playerwatch.ChangeEvent)
}

// Config configures a [Server].
type Config struct {
	// Addr is the listen address, e.g. "127.0.0.1:8080" or ":0".
	Addr string

	// CORSOrigins enables CORS for the listed origins. "*" allows any.
	CORSOrigins []string

	// ShutdownTimeout bounds graceful shutdown. Zero uses 5s.
	ShutdownTimeout time.Duration

	// Version is reported in the OpenAPI document.
	Version string
}

// Server exposes the monitor over HTTP.
//
//   - GET  /api/v1/monitor: current report
//   - POST /api/v1/monitor/start, /api/v1/monitor/stop: arm or disarm checks
//   - PUT  /api/v1/monitor/identifier: change the monitored player
//   - GET  /api/v1/events: websocket stream of change events
//
// The server shuts down gracefully when the context passed to
// [Server.Start] is cancelled.
type Server struct {
	ctl      Controller
	cfg      Config
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
	done       chan struct{}
}

// identifierRequest is the body of PUT /monitor/identifier.
type identifierRequest struct {
	Body struct {
		Identifier string `doc:"BattleMetrics player id" example:"12345" json:"identifier"`
	}
}

// reportResponse wraps a [playerwatch.Report].
type reportResponse struct {
	Body playerwatch.Report
}

// streamMessage is one frame on the events websocket. The first frame is
// always a snapshot; every later frame is a change.
type streamMessage struct {
	Type   string                   `json:"type"`
	Report *playerwatch.Report      `json:"report,omitempty"`
	Event  *playerwatch.ChangeEvent `json:"event,omitempty"`
}

const (
	messageSnapshot = "snapshot"
	messageChange   = "change"
)

// New creates a [Server]. It does not listen until [Server.Start].
func New(ctl Controller, cfg Config, logger *slog.Logger) *Server {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		ctl:    ctl,
		cfg:    cfg,
		logger: logger,
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}
	return s
}

// Handler builds the router. Start uses it; tests can mount it directly.
func (s *Server) Handler() http.Handler {
	mux := chi.NewMux()
	mux.Use(middleware.StripSlashes)
	if len(s.cfg.CORSOrigins) > 0 {
		s.applyCORS(mux)
	}

	api := humachi.New(mux, huma.DefaultConfig(apiTitle, s.cfg.Version))

	v1 := huma.NewGroup(api, apiPrefix)
	s.registerMonitorRoutes(v1)

	mux.Get(apiPrefix+"/events", s.handleEvents)
	return mux
}

// Start binds the listener and serves in a background goroutine.
//
// Start is non-blocking: it returns once the address is bound, or with the
// bind error. When ctx is cancelled the server shuts down gracefully; open
// event streams end because their request contexts derive from ctx.
func (s *Server) Start(ctx context.Context) error {
	// bind first so a busy port is reported synchronously
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to bind to %s: %w", s.cfg.Addr, err)
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}
	done := make(chan struct{})

	s.mu.Lock()
	s.httpServer = srv
	s.listener = ln
	s.done = done
	s.mu.Unlock()

	s.logger.Info("api server listening", "address", ln.Addr().String())

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		defer close(done)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
		s.logger.Info("api server stopped")
	}()

	return nil
}

// Addr returns the bound address, or nil before [Server.Start].
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Done is closed once shutdown has finished. It is nil before
// [Server.Start].
func (s *Server) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

func (s *Server) registerMonitorRoutes(api huma.API) {
	monitorAPI := huma.NewGroup(api, "/monitor")
	tags := []string{"Monitor"}

	huma.Register(
		monitorAPI,
		huma.Operation{
			OperationID: "getMonitor",
			Method:      http.MethodGet,
			Path:        "",
			Summary:     "Get the monitored player, the last known status and whether checks are running",
			Tags:        tags,
		},
		func(_ context.Context, _ *struct{}) (*reportResponse, error) {
			return &reportResponse{Body: s.ctl.Report()}, nil
		},
	)

	huma.Register(
		monitorAPI,
		huma.Operation{
			OperationID: "startMonitor",
			Method:      http.MethodPost,
			Path:        "/start",
			Summary:     "Start periodic checks",
			Tags:        tags,
		},
		func(_ context.Context, _ *struct{}) (*reportResponse, error) {
			if err := s.ctl.Start(); err != nil {
				return nil, s.mapError(err)
			}
			return &reportResponse{Body: s.ctl.Report()}, nil
		},
	)

	huma.Register(
		monitorAPI,
		huma.Operation{
			OperationID: "stopMonitor",
			Method:      http.MethodPost,
			Path:        "/stop",
			Summary:     "Stop periodic checks",
			Tags:        tags,
		},
		func(_ context.Context, _ *struct{}) (*reportResponse, error) {
			if err := s.ctl.Stop(); err != nil {
				return nil, s.mapError(err)
			}
			return &reportResponse{Body: s.ctl.Report()}, nil
		},
	)

	huma.Register(
		monitorAPI,
		huma.Operation{
			OperationID: "setIdentifier",
			Method:      http.MethodPut,
			Path:        "/identifier",
			Summary:     "Change the monitored player",
			Description: "The last known status is reset to unknown. The identifier is persisted before it takes effect.",
			Tags:        tags,
		},
		func(_ context.Context, input *identifierRequest) (*reportResponse, error) {
			if _, err := s.ctl.SetIdentifier(input.Body.Identifier); err != nil {
				return nil, s.mapError(err)
			}
			return &reportResponse{Body: s.ctl.Report()}, nil
		},
	)
}

// mapError maps monitor errors to HTTP status codes. Anything without an
// explicit case is a 500.
func (s *Server) mapError(err error) huma.StatusError {
	switch {
	case errors.Is(err, playerwatch.ErrAlreadyRunning):
		return huma.Error409Conflict(err.Error())
	case errors.Is(err, playerwatch.ErrNotRunning):
		return huma.Error409Conflict(err.Error())
	case errors.Is(err, playerwatch.ErrInvalidIdentifier):
		return huma.Error400BadRequest(err.Error())
	case errors.Is(err, playerwatch.ErrClosed):
		return huma.Error503ServiceUnavailable(err.Error())
	default:
		s.logger.Error("unexpected monitor error", "error", err)
		return huma.Error500InternalServerError("Internal server error", err)
	}
}

func (s *Server) applyCORS(mux *chi.Mux) {
	origins := make([]string, 0, len(s.cfg.CORSOrigins))
	allowCredentials := true
	for _, origin := range s.cfg.CORSOrigins {
		origin = strings.TrimSpace(origin)
		if origin == "*" {
			origins = []string{"*"}
			allowCredentials = false
			break
		}
		origins = append(origins, origin)
	}

	s.logger.Info("enabling CORS", "origins", origins)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: allowCredentials,
		MaxAge:           300,
	}))
}

// checkOrigin accepts same-host websocket handshakes, non-browser clients
// (no Origin header) and configured CORS origins.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.CORSOrigins {
		allowed = strings.TrimSpace(allowed)
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

// handleEvents upgrades to a websocket, sends a snapshot of the current
// report and then streams change events until the client goes away or the
// server shuts down.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	// subscribe before the snapshot so no change between the two is lost
	ch := s.ctl.Subscribe()
	defer s.ctl.Unsubscribe(ch)

	// the client never sends anything meaningful; reading detects closure
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	report := s.ctl.Report()
	if err := writeJSON(conn, streamMessage{Type: messageSnapshot, Report: &report}); err != nil {
		return
	}

	for {
		select {
		case event, ok := <-ch:
			if !ok {
				return
			}
			if err := writeJSON(conn, streamMessage{Type: messageChange, Event: &event}); err != nil {
				s.logger.Debug("event stream write failed", "error", err)
				return
			}
		case <-gone:
			return
		case <-r.Context().Done():
			// request contexts derive from the server context, so this also
			// fires on shutdown
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			return
		}
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	if err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(v)
}
