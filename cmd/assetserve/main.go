// Command assetserve serves the scheduler's static assets with
// deployment-friendly port fallback and graceful shutdown.
//
// Configuration comes from the environment (PORT, HOST, STATIC_DIR,
// HEALTH_ADDR, DEPLOYMENT_CHECK), an optional options.json, and flags;
// flags win. A .env file in the working directory is loaded first.
package main

import (
	"flag"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"assetserve"
)

func main() {
	// .env is optional; variables already set in the environment win
	if err := godotenv.Load(); err == nil {
		slog.Info("Environment loaded from .env file.")
	}

	var (
		rootDir    = flag.String("root", "", "directory containing the static assets (default: static)")
		host       = flag.String("host", "", "bind address (default: 0.0.0.0)")
		port       = flag.Int("port", 0, "preferred listen port (default: 5000)")
		check      = flag.Bool("check", false, "probe bind capability and exit")
		health     = flag.Bool("health", false, "run the health probe server")
		liveReload = flag.Bool("livereload", false, "enable the /livereload websocket endpoint")
	)
	flag.Parse()

	var opts []assetserve.ServerOptionFunc
	if *rootDir != "" {
		opts = append(opts, assetserve.WithRootDir(*rootDir))
	}
	if *host != "" {
		opts = append(opts, assetserve.WithHost(*host))
	}
	if *port != 0 {
		opts = append(opts, assetserve.WithPort(*port))
	}
	if *check {
		opts = append(opts, assetserve.WithDeploymentCheck())
	}
	if *health {
		opts = append(opts, assetserve.WithHealthServer())
	}
	if *liveReload {
		opts = append(opts, assetserve.WithLiveReload())
	}

	srv, err := assetserve.NewServer(opts...)
	if err != nil {
		slog.Error("Failed to create server.", "error", err)
		os.Exit(1)
	}

	if err := srv.Run(); err != nil {
		slog.Error("Server exited with error.", "error", err)
		os.Exit(1)
	}
}
