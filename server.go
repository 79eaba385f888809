// Deployment-resilient static asset server: multi-port bind retry, CORS on
// every response, and signal-driven graceful shutdown.

package assetserve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// logger is a global logger for the server. Use NewServer() with WithLogger
// to replace it.
var logger = slog.Default()

// shutdownTimeout bounds the graceful drain of in-flight responses.
const shutdownTimeout = 5 * time.Second

// ServerState tracks the server lifecycle. Transitions are one-way:
// Binding -> Serving -> ShuttingDown -> Stopped. A failed bind or a
// deployment-check probe jumps straight from Binding to Stopped.
type ServerState int32

const (
	StateBinding ServerState = iota
	StateServing
	StateShuttingDown
	StateStopped
)

func (s ServerState) String() string {
	switch s {
	case StateBinding:
		return "binding"
	case StateServing:
		return "serving"
	case StateShuttingDown:
		return "shutting-down"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Server serves a fixed set of static assets over HTTP.
type Server struct {
	mux          *http.ServeMux
	httpServer   *http.Server
	healthMux    *http.ServeMux
	healthServer *http.Server
	middleware   MiddlewareStack
	Options      *ServerOptions

	listener  net.Listener
	boundPort atomic.Int32

	state     atomic.Int32
	startedAt time.Time

	// Server metrics
	totalRequests     atomic.Uint64
	totalResponseTime atomic.Int64

	clientLimiters sync.Map

	reloader *reloadHub
	cleanup  []func()
	fatalCh  chan error
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewServer creates a new instance of the Server.
func NewServer(opts ...ServerOptionFunc) (*Server, error) {
	srv := &Server{
		mux:     http.NewServeMux(),
		Options: NewServerOptions(),
		fatalCh: make(chan error, 1),
		stopCh:  make(chan struct{}),
	}
	srv.state.Store(int32(StateBinding))

	// initialize the underlying http server for serving requests
	srv.httpServer = &http.Server{
		Handler:      srv.mux,
		ReadTimeout:  srv.Options.ReadTimeout,
		WriteTimeout: srv.Options.WriteTimeout,
		IdleTimeout:  srv.Options.IdleTimeout,
	}

	// apply server options
	for _, opt := range opts {
		opt(srv)
	}

	// the root directory is fixed and absolute for the process lifetime
	rootAbs, err := filepath.Abs(srv.Options.RootDir)
	if err != nil {
		return nil, fmt.Errorf("resolving root directory: %w", err)
	}
	srv.Options.RootDir = rootAbs

	srv.middleware = defaultMiddleware(srv)

	srv.mux.Handle("/", srv.staticHandler())
	if srv.Options.LiveReload {
		srv.reloader = newReloadHub(srv.Options.RootDir)
		srv.mux.HandleFunc("/livereload", srv.reloader.handler())
	}

	return srv, nil
}

// defaultMiddleware assembles the middleware stack for a configured server.
// CORS runs outermost so error responses carry the headers too.
func defaultMiddleware(srv *Server) MiddlewareStack {
	stack := MiddlewareStack{CORSMiddleware}
	if srv.Options.RateLimit > 0 {
		stack = append(stack, RateLimitMiddleware(srv))
	}
	return append(stack,
		MetricsMiddleware(srv),
		RequestLoggerMiddleware,
		RecoveryMiddleware,
		PathGuardMiddleware)
}

// Handler returns the server's full handler chain, middleware included.
func (srv *Server) Handler() http.Handler {
	return chainMiddleware(srv.mux, srv.middleware...)
}

// State returns the current lifecycle state.
func (srv *Server) State() ServerState {
	return ServerState(srv.state.Load())
}

func (srv *Server) setState(s ServerState) {
	srv.state.Store(int32(s))
}

// BoundPort returns the port the listener is bound to, or 0 before binding.
// It may differ from the preferred port when a fallback candidate was used.
func (srv *Server) BoundPort() int {
	return int(srv.boundPort.Load())
}

// OnShutdown registers a cleanup action. Actions run best effort, in
// registration order, after the listener has drained.
func (srv *Server) OnShutdown(fn func()) {
	srv.cleanup = append(srv.cleanup, fn)
}

// Stop requests a graceful shutdown, equivalent to a termination signal.
func (srv *Server) Stop() {
	srv.stopOnce.Do(func() {
		close(srv.stopCh)
	})
}

// Handle registers the handler for the given pattern.
func (srv *Server) Handle(pattern string, handler http.Handler) {
	srv.mux.Handle(pattern, handler)
}

// HandleFunc registers the handler function for the given pattern.
func (srv *Server) HandleFunc(pattern string, handler http.HandlerFunc) {
	srv.mux.HandleFunc(pattern, handler)
}

// Run verifies the asset set, binds a candidate port, and serves until a
// termination signal, Stop, or a fatal error. The returned error is nil for
// signal-driven shutdown and for a successful deployment-check probe; the
// caller maps nil to exit code 0 and anything else to a non-zero exit.
func (srv *Server) Run() error {
	srv.startedAt = time.Now()
	srv.setState(StateBinding)

	if err := srv.verifyRequiredFiles(); err != nil {
		srv.setState(StateStopped)
		return err
	}

	ports := srv.Options.CandidatePorts
	if len(ports) == 0 {
		ports = candidatePorts(srv.Options.Port)
	}
	ln, port, err := bindFirst(srv.Options.Host, ports)
	if err != nil {
		srv.setState(StateStopped)
		return err
	}
	srv.listener = ln
	srv.boundPort.Store(int32(port))
	logger.Info("Listener bound.", "host", srv.Options.Host, "port", port)

	if srv.Options.DeploymentCheck {
		// pure bind-capability probe, never enters the accept loop
		logger.Info("Deployment check passed; server can bind and serve.", "port", port)
		srv.setState(StateStopped)
		return ln.Close()
	}

	srv.httpServer.Handler = srv.Handler()
	// each request is a discrete accept-respond-close cycle
	srv.httpServer.SetKeepAlivesEnabled(false)

	if srv.Options.RunHealthServer {
		srv.initHealthServer()
	}

	watchStop := make(chan struct{})
	if srv.reloader != nil {
		go srv.reloader.watch(watchStop)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Serving static assets.", "addr", ln.Addr().String(), "root", srv.Options.RootDir)
		if err := srv.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	srv.setState(StateServing)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	var cause error
	select {
	case sig := <-quit:
		logger.Info("Shutting down server...", "reason", sig.String())
	case <-srv.stopCh:
		logger.Info("Shutting down server...", "reason", "stop requested")
	case err := <-errCh:
		cause = fmt.Errorf("serving: %w", err)
	case err := <-srv.fatalCh:
		cause = fmt.Errorf("unrecoverable i/o error: %w", err)
	}
	close(watchStop)

	return srv.shutdown(cause)
}

// shutdown drains in-flight responses, releases the listener, and runs the
// registered cleanup actions. It returns cause unchanged so Run's caller
// sees the original failure, if any.
func (srv *Server) shutdown(cause error) error {
	srv.setState(StateShuttingDown)

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.httpServer.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown.", "error", err)
	}
	if srv.healthServer != nil {
		if err := srv.healthServer.Shutdown(ctx); err != nil {
			logger.Error("Health server forced to shutdown.", "error", err)
		}
	}
	if srv.reloader != nil {
		srv.reloader.closeAll()
	}

	for _, fn := range srv.cleanup {
		fn()
	}

	srv.setState(StateStopped)

	logger.Info("Server is shut down.", "up-time", time.Since(srv.startedAt),
		"total-req", srv.totalRequests.Load(),
		"µs-in-handlers", srv.totalResponseTime.Load())
	return cause
}

// verifyRequiredFiles checks the asset set before any bind attempt and logs
// the size of each file found, so deployment logs show what is being served.
func (srv *Server) verifyRequiredFiles() error {
	var missing []string
	for _, name := range srv.Options.RequiredFiles {
		info, err := os.Stat(filepath.Join(srv.Options.RootDir, name))
		if err != nil || !info.Mode().IsRegular() {
			missing = append(missing, name)
			continue
		}
		logger.Info("Required file present.", "file", name, "bytes", info.Size())
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required files: %s", strings.Join(missing, ", "))
	}
	return nil
}

// helper function to initialise the health server
func (srv *Server) initHealthServer() {
	// a lightweight http server for health endpoints listening on a different port
	srv.healthMux = http.NewServeMux()
	srv.healthServer = &http.Server{
		Addr:    srv.Options.HealthAddr,
		Handler: srv.healthMux,
	}
	logger.Info("Health server initialised.", "addr", srv.Options.HealthAddr)

	// add built-in probing endpoints
	srv.healthMux.HandleFunc("/healthz/", srv.healthzHandler)
	srv.healthMux.HandleFunc("/readyz/", srv.readyzHandler)
	srv.healthMux.HandleFunc("/livez/", srv.livezHandler)

	go func() {
		if err := srv.healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Health server failed.", "error", err)
		}
	}()
}
