package assetserve

import (
	"encoding/json"
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Environment variable names read once when options are constructed.
// No other component reads the environment directly.
const (
	envPort            = "PORT"
	envHost            = "HOST"
	envStaticDir       = "STATIC_DIR"
	envHealthAddr      = "HEALTH_ADDR"
	envDeploymentCheck = "DEPLOYMENT_CHECK"

	optionsFileName = "options.json"
)

// ServerOptions is a representation of the Server settings.
type ServerOptions struct {
	Host            string        `json:"host,omitempty"`
	Port            int           `json:"port,omitempty"`
	CandidatePorts  []int         `json:"candidate_ports,omitempty"`
	HealthAddr      string        `json:"health_addr,omitempty"`
	RootDir         string        `json:"root_dir,omitempty"`
	DefaultDocument string        `json:"default_document,omitempty"`
	RequiredFiles   []string      `json:"required_files,omitempty"`
	DeploymentCheck bool          `json:"deployment_check,omitempty"`
	RunHealthServer bool          `json:"run_health_server,omitempty"`
	LiveReload      bool          `json:"live_reload,omitempty"`
	RateLimit       rateLimit     `json:"rate_limit,omitempty"`
	Burst           int           `json:"burst,omitempty"`
	ReadTimeout     time.Duration `json:"read_timeout,omitempty"`
	WriteTimeout    time.Duration `json:"write_timeout,omitempty"`
	IdleTimeout     time.Duration `json:"idle_timeout,omitempty"`
}

func defaultServerOptions() *ServerOptions {
	return &ServerOptions{
		Host:            "0.0.0.0",
		Port:            5000,
		HealthAddr:      ":9080",
		RootDir:         "static",
		DefaultDocument: "index.html",
		RequiredFiles:   []string{"index.html", "style.css", "script.js"},
		RunHealthServer: false,
		RateLimit:       0,
		Burst:           10,
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    10 * time.Second,
		IdleTimeout:     120 * time.Second,
	}
}

// Wrappers for debug levels to be used in the server. We're using slog for logging,
// but want to hide this detail from the client
const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// NewServerOptions creates a new configuration for the server with a priority order.
// Environment variables override the options file.
// 1. Environment variables
// 2. ServerOptions file (JSON)
// 3. Default values
func NewServerOptions() *ServerOptions {
	return applyEnvVars(applyOptionsFile(defaultServerOptions()))
}

// ServerOptionFunc configures a Server using the functional options pattern.
type ServerOptionFunc func(srv *Server)

// helper to read environment variables and apply them to the options
func applyEnvVars(options *ServerOptions) *ServerOptions {
	if port := os.Getenv(envPort); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil || p < 0 || p > 65535 {
			logger.Warn("Ignoring invalid port from environment.", "variable", envPort, "value", port)
		} else {
			options.Port = p
			logger.Info("Preferred port set from environment variable.", "variable", envPort, "port", p)
		}
	}
	if host := os.Getenv(envHost); host != "" {
		options.Host = host
		logger.Info("Bind host set from environment variable.", "variable", envHost, "host", host)
	}
	if dir := os.Getenv(envStaticDir); dir != "" {
		options.RootDir = dir
		logger.Info("Root directory set from environment variable.", "variable", envStaticDir, "dir", dir)
	}
	if healthAddr := os.Getenv(envHealthAddr); healthAddr != "" {
		options.HealthAddr = healthAddr
		options.RunHealthServer = true
		logger.Info("Health endpoint address set from environment variable.", "variable", envHealthAddr, "addr", healthAddr)
	}
	if check := os.Getenv(envDeploymentCheck); check != "" && check != "0" && check != "false" {
		options.DeploymentCheck = true
		logger.Info("Deployment check mode set from environment variable.", "variable", envDeploymentCheck)
	}
	return options
}

// helper to read an options file and apply it to the options
func applyOptionsFile(options *ServerOptions) *ServerOptions {
	file, err := os.Open(optionsFileName)
	if err != nil {
		return options
	}

	// make sure file is closed after reading
	defer func(file *os.File) {
		err := file.Close()
		if err != nil {
			logger.Error("Failed to close file", "error", err, "file-name", file.Name())
		}
	}(file)

	decoder := json.NewDecoder(file)
	fileOptions := &ServerOptions{}
	if err := decoder.Decode(fileOptions); err != nil {
		logger.Info("Loading options file failed; Using environment and defaults", "error", err)
		return options
	}
	logger.Info("Server configuration loaded from file.", "file", optionsFileName)
	mergeOptions(options, fileOptions)
	return options
}

// mergeOptions overrides default options with values of override if set
func mergeOptions(base *ServerOptions, override *ServerOptions) {
	if override.Host != "" {
		base.Host = override.Host
	}
	if override.Port != 0 {
		base.Port = override.Port
	}
	if len(override.CandidatePorts) != 0 {
		base.CandidatePorts = override.CandidatePorts
	}
	if override.HealthAddr != "" {
		base.HealthAddr = override.HealthAddr
	}
	if override.RootDir != "" {
		base.RootDir = override.RootDir
	}
	if override.DefaultDocument != "" {
		base.DefaultDocument = override.DefaultDocument
	}
	if len(override.RequiredFiles) != 0 {
		base.RequiredFiles = override.RequiredFiles
	}
	if override.RunHealthServer {
		base.RunHealthServer = true
	}
	if override.LiveReload {
		base.LiveReload = true
	}
	if override.RateLimit != 0 {
		base.RateLimit = override.RateLimit
	}
	if override.Burst != 0 {
		base.Burst = override.Burst
	}
	if override.ReadTimeout != 0 {
		base.ReadTimeout = override.ReadTimeout
	}
	if override.WriteTimeout != 0 {
		base.WriteTimeout = override.WriteTimeout
	}
	if override.IdleTimeout != 0 {
		base.IdleTimeout = override.IdleTimeout
	}
}

// WithRootDir sets the directory the static assets are served from.
func WithRootDir(dir string) ServerOptionFunc {
	return func(srv *Server) {
		srv.Options.RootDir = dir
	}
}

// WithHost sets the bind address of the server.
func WithHost(host string) ServerOptionFunc {
	return func(srv *Server) {
		srv.Options.Host = host
	}
}

// WithPort sets the preferred listen port. The fallback candidates are kept.
func WithPort(port int) ServerOptionFunc {
	return func(srv *Server) {
		srv.Options.Port = port
	}
}

// WithCandidatePorts replaces the full ordered list of ports the binder
// attempts. The first entry is the preferred port.
func WithCandidatePorts(ports ...int) ServerOptionFunc {
	return func(srv *Server) {
		srv.Options.CandidatePorts = ports
	}
}

// WithDefaultDocument sets the document served for the root path.
func WithDefaultDocument(name string) ServerOptionFunc {
	return func(srv *Server) {
		srv.Options.DefaultDocument = name
	}
}

// WithRequiredFiles sets the files that must exist under the root directory
// before the server binds. Missing files are a fatal startup error.
func WithRequiredFiles(files ...string) ServerOptionFunc {
	return func(srv *Server) {
		srv.Options.RequiredFiles = files
	}
}

// WithDeploymentCheck puts the server in probe mode: bind, report, exit.
func WithDeploymentCheck() ServerOptionFunc {
	return func(srv *Server) {
		srv.Options.DeploymentCheck = true
	}
}

// WithHealthServer enables the health server on a different port.
func WithHealthServer() ServerOptionFunc {
	return func(srv *Server) {
		srv.Options.RunHealthServer = true
	}
}

// WithLiveReload enables the /livereload websocket endpoint and the root
// directory watcher behind it.
func WithLiveReload() ServerOptionFunc {
	return func(srv *Server) {
		srv.Options.LiveReload = true
	}
}

// WithRateLimit sets rate limiting parameters of the server. A zero limit
// disables rate limiting.
func WithRateLimit(limit rateLimit, burst int) ServerOptionFunc {
	return func(srv *Server) {
		srv.Options.RateLimit = limit
		srv.Options.Burst = burst
	}
}

// WithTimeouts adds timeouts to the server.
func WithTimeouts(readTimeout, writeTimeout, idleTimeout time.Duration) ServerOptionFunc {
	return func(srv *Server) {
		srv.setTimeouts(readTimeout, writeTimeout, idleTimeout)
	}
}

// WithLogger replaces the default with a custom logger.
func WithLogger(l *slog.Logger) ServerOptionFunc {
	return func(srv *Server) {
		logger = l
	}
}

// setTimeouts helper to apply only custom values or retain the server default
func (srv *Server) setTimeouts(readTimeout, writeTimeout, idleTimeout time.Duration) {
	if readTimeout != 0 {
		srv.Options.ReadTimeout = readTimeout
		srv.httpServer.ReadTimeout = readTimeout
	}
	if writeTimeout != 0 {
		srv.Options.WriteTimeout = writeTimeout
		srv.httpServer.WriteTimeout = writeTimeout
	}
	if idleTimeout != 0 {
		srv.Options.IdleTimeout = idleTimeout
		srv.httpServer.IdleTimeout = idleTimeout
	}
}
