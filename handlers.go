package assetserve

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
)

// staticHandler answers GET requests with files resolved under the root
// directory. Resolution runs per request; the asset set is small and local,
// so there is no cache layer.
func (srv *Server) staticHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
		case http.MethodOptions:
			// normally short-circuited by CORSMiddleware; kept for servers
			// composed without the default stack
			w.WriteHeader(http.StatusOK)
			return
		default:
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}

		file, err := resolvePath(srv.Options.RootDir, r.URL.Path, srv.Options.DefaultDocument)
		switch {
		case errors.Is(err, errTraversal):
			// a client fault, not a server fault; no error log
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		case errors.Is(err, errNotFound):
			http.Error(w, "Not Found", http.StatusNotFound)
			return
		case err != nil:
			logger.Error("Failed to resolve path.", "path", r.URL.Path, "error", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		// read fully before writing headers so Content-Length is exact
		body, err := os.ReadFile(file.absPath)
		if err != nil {
			logger.Error("Failed to read resolved file.", "path", file.absPath, "error", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			srv.reportFatal(err)
			return
		}

		w.Header().Set("Content-Type", file.mimeType)
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(body); err != nil {
			logger.Warn("Failed to write response body.", "path", file.absPath, "error", err)
		}
	}
}

// reportFatal escalates an unexpected I/O fault to the lifecycle loop. A
// failed read on a file that just passed stat means local storage is
// misbehaving; retrying cannot fix that from inside a static file server,
// so the process shuts down with a non-zero exit.
func (srv *Server) reportFatal(err error) {
	select {
	case srv.fatalCh <- err:
	default:
	}
}

// Consolidate error responses to maintain a consistent format.
func writeErrorResponse(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	response := map[string]string{"error": message}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		logger.Error("Failed to write error response", "error", err)
	}
}

func (srv *Server) livezHandler(w http.ResponseWriter, r *http.Request) {
	state := srv.State()
	srv.healthHandlerHelper(w, "alive", state == StateServing || state == StateShuttingDown)
}

func (srv *Server) readyzHandler(w http.ResponseWriter, r *http.Request) {
	// readiness flips false as soon as the drain starts
	srv.healthHandlerHelper(w, "ready", srv.State() == StateServing)
}

func (srv *Server) healthzHandler(w http.ResponseWriter, r *http.Request) {
	srv.healthHandlerHelper(w, "ok", srv.State() == StateServing)
}

func (srv *Server) healthHandlerHelper(w http.ResponseWriter, probe string, healthy bool) {
	if healthy {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(probe)); err != nil {
			logger.Error(fmt.Sprintf("error writing endpoint status (%s)", probe), "error", err)
		}
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	if _, err := w.Write([]byte("unhealthy")); err != nil {
		logger.Error(fmt.Sprintf("error writing endpoint status (%s)", probe), "error", err)
	}
}
