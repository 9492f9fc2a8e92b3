package gateway

import (
	"cmp"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/soyeahso/outreach/internal/broadcast"
	"github.com/soyeahso/outreach/internal/campaign"
	"github.com/soyeahso/outreach/internal/config"
	"github.com/soyeahso/outreach/internal/hooks"
	"github.com/soyeahso/outreach/internal/logging"
	"github.com/soyeahso/outreach/internal/store"
	"github.com/soyeahso/outreach/internal/version"
)

var ErrClientClosed = errors.New("client connection closed")

const shutdownGrace = 10 * time.Second

// Server is the outreach gateway. It serves WebSocket RPC with live agent
// snapshots, plus a REST control surface over the same registry.
type Server struct {
	cfg   config.Config
	auth  ResolvedAuth
	log   *logging.Logger
	build version.Build

	agents *campaign.Registry
	hub    *broadcast.Hub
	store  store.Store    // nil disables lead, script and attempt methods
	hooks  *hooks.Manager // nil disables gateway hooks

	clients  *ClientRegistry
	handlers map[string]route
	eventSeq atomic.Int64
	upgrader websocket.Upgrader
	limiter  *authRateLimiter

	mu        sync.Mutex
	startedAt time.Time
	addr      net.Addr
}

// ServerOption configures the gateway server.
type ServerOption func(*Server)

// WithHooks emits gateway_start and gateway_stop to hm.
func WithHooks(hm *hooks.Manager) ServerOption {
	return func(s *Server) { s.hooks = hm }
}

// WithStore enables lead, script and call-attempt methods.
func WithStore(st store.Store) ServerOption {
	return func(s *Server) { s.store = st }
}

// New builds a gateway over an agent registry and the hub its agents
// publish to.
func New(cfg config.Config, agents *campaign.Registry, hub *broadcast.Hub, log *logging.Logger, opts ...ServerOption) *Server {
	s := &Server{
		cfg:      cfg,
		auth:     ResolveAuth(cfg.Gateway.Auth),
		log:      log.Sub("gateway"),
		build:    version.Get(),
		agents:   agents,
		hub:      hub,
		clients:  NewClientRegistry(log.Sub("clients")),
		handlers: make(map[string]route),
		limiter:  newAuthRateLimiter(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(cfg.Gateway.AllowedOrigins),
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerRPCHandlers()
	return s
}

// originChecker admits requests without an Origin header (same-origin and
// non-browser clients) and browsers whose origin is listed. "*" admits all.
func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.ContainsFunc(allowed, func(a string) bool {
			return a == "*" || a == origin
		})
	}
}

// Handle registers handler for method. It runs on the connection's read
// loop, so requests on one connection are served in order.
func (s *Server) Handle(method string, handler RequestHandler) {
	s.handlers[method] = route{fn: handler}
}

// HandleAsync registers a handler that may block; each call gets its own
// goroutine and replies whenever it finishes.
func (s *Server) HandleAsync(method string, handler RequestHandler) {
	s.handlers[method] = route{fn: handler, async: true}
}

// Methods returns the registered RPC method names, sorted.
func (s *Server) Methods() []string {
	methods := make([]string, 0, len(s.handlers))
	for m := range s.handlers {
		methods = append(methods, m)
	}
	sort.Strings(methods)
	return methods
}

// resolveBindAddr maps the bind mode to a listen address.
func resolveBindAddr(cfg config.GatewayConfig) string {
	host := "127.0.0.1"
	switch cfg.Bind {
	case "lan", "auto":
		host = "0.0.0.0"
	case "custom":
		host = cmp.Or(cfg.CustomBindHost, "0.0.0.0")
	}
	return net.JoinHostPort(host, fmt.Sprint(cfg.Port))
}

// listen opens the gateway socket, wrapped in TLS when configured.
func (s *Server) listen() (net.Listener, error) {
	gw := s.cfg.Gateway
	addr := resolveBindAddr(gw)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	if !gw.TLS.Enabled {
		if gw.Bind != "loopback" {
			s.log.Warn().Msg("TLS is off and the gateway is reachable off-host; credentials travel in cleartext")
		}
		return ln, nil
	}
	cert, err := tls.LoadX509KeyPair(gw.TLS.CertPath, gw.TLS.KeyPath)
	if err != nil {
		ln.Close()
		return nil, fmt.Errorf("loading TLS certificate: %w", err)
	}
	return tls.NewListener(ln, &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}), nil
}

// Start serves until ctx is cancelled, then closes every client and drains
// in-flight HTTP requests.
func (s *Server) Start(ctx context.Context) error {
	ln, err := s.listen()
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:     s.Handler(),
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	s.mu.Lock()
	s.startedAt = time.Now()
	s.addr = ln.Addr()
	s.mu.Unlock()

	go s.limiter.run(ctx)

	s.log.Info().
		Stringer("addr", ln.Addr()).
		Str("auth", s.auth.Mode).
		Bool("tls", s.cfg.Gateway.TLS.Enabled).
		Int("methods", len(s.handlers)).
		Msg("gateway listening")
	s.emit(ctx, hooks.EventGatewayStart, map[string]any{"addr": ln.Addr().String()})

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		s.shutdown(srv)
	}()

	err = srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		<-stopped
		return nil
	}
	return err
}

func (s *Server) shutdown(srv *http.Server) {
	s.log.Info().Int("clients", s.clients.Count()).Msg("gateway shutting down")
	s.emit(context.Background(), hooks.EventGatewayStop, nil)

	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	s.clients.CloseAll()
	if err := srv.Shutdown(ctx); err != nil {
		s.log.Warn().Err(err).Msg("http shutdown incomplete")
	}
}

func (s *Server) emit(ctx context.Context, event string, data map[string]any) {
	if s.hooks != nil {
		s.hooks.Emit(ctx, event, data)
	}
}

// Addr is the bound listen address once Start is serving, else nil.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Uptime returns how long the server has been serving, or zero.
func (s *Server) Uptime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startedAt.IsZero() {
		return 0
	}
	return time.Since(s.startedAt)
}

// nextSeq returns the next event sequence number.
func (s *Server) nextSeq() int64 {
	return s.eventSeq.Add(1)
}
