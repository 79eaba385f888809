package assetserve

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"
)

// waitForState polls until the server reaches the wanted lifecycle state.
func waitForState(t *testing.T, srv *Server, want ServerState) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if srv.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("server never reached state %s, still %s", want, srv.State())
}

// runServer starts Run in the background and returns a channel carrying its
// result.
func runServer(srv *Server) <-chan error {
	done := make(chan error, 1)
	go func() { done <- srv.Run() }()
	return done
}

func waitForRun(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return")
		return nil
	}
}

func TestRunServesAndStopsGracefully(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, WithCandidatePorts(0))

	done := runServer(srv)
	waitForState(t, srv, StateServing)

	port := srv.BoundPort()
	if port == 0 {
		t.Fatal("expected a bound port while serving")
	}

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/", port))
	if err != nil {
		t.Fatalf("error requesting running server: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "Photography Session Scheduler") {
		t.Error("expected the default document body")
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Error("expected CORS headers on a live response")
	}

	srv.Stop()
	if err := waitForRun(t, done); err != nil {
		t.Fatalf("graceful shutdown should return nil, got %v", err)
	}
	if srv.State() != StateStopped {
		t.Errorf("state after shutdown = %s, want stopped", srv.State())
	}

	// the port must be immediately reusable
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		t.Fatalf("port %d not released after shutdown: %v", port, err)
	}
	_ = ln.Close()
}

func TestRunFailsWhenAssetsMissing(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeFile(t, root, "index.html", "<html></html>")
	// style.css and script.js are deliberately absent

	srv, err := NewServer(WithRootDir(root), WithHost("127.0.0.1"), WithCandidatePorts(0))
	if err != nil {
		t.Fatalf("error creating server: %v", err)
	}

	err = srv.Run()
	if err == nil {
		t.Fatal("expected startup to fail with missing assets")
	}
	if !strings.Contains(err.Error(), "missing required files") {
		t.Errorf("unexpected error: %v", err)
	}
	if srv.State() != StateStopped {
		t.Errorf("state after failed startup = %s, want stopped", srv.State())
	}
}

func TestDeploymentCheckProbe(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, WithCandidatePorts(0), WithDeploymentCheck())

	if err := waitForRun(t, runServer(srv)); err != nil {
		t.Fatalf("probe should return nil, got %v", err)
	}
	if srv.State() != StateStopped {
		t.Errorf("state after probe = %s, want stopped", srv.State())
	}

	port := srv.BoundPort()
	if port == 0 {
		t.Fatal("probe should report the bound port")
	}
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		t.Fatalf("probe did not release port %d: %v", port, err)
	}
	_ = ln.Close()
}

func TestRunAllCandidatesBusy(t *testing.T) {
	t.Parallel()
	_, ports := reservePorts(t, 2)
	srv := newTestServer(t, WithCandidatePorts(ports...))

	err := srv.Run()
	if !errors.Is(err, errNoPortAvailable) {
		t.Fatalf("expected errNoPortAvailable, got %v", err)
	}
	if srv.State() != StateStopped {
		t.Errorf("state after exhausted bind = %s, want stopped", srv.State())
	}
}

func TestOnShutdownRunsCleanupInOrder(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, WithCandidatePorts(0))

	var order []string
	srv.OnShutdown(func() { order = append(order, "first") })
	srv.OnShutdown(func() { order = append(order, "second") })

	done := runServer(srv)
	waitForState(t, srv, StateServing)
	srv.Stop()
	if err := waitForRun(t, done); err != nil {
		t.Fatalf("graceful shutdown should return nil, got %v", err)
	}

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("cleanup order = %v, want [first second]", order)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, WithCandidatePorts(0))

	done := runServer(srv)
	waitForState(t, srv, StateServing)
	srv.Stop()
	srv.Stop() // a second call must not panic
	if err := waitForRun(t, done); err != nil {
		t.Fatalf("graceful shutdown should return nil, got %v", err)
	}
}

func TestRunFallsBackAcrossCandidates(t *testing.T) {
	t.Parallel()
	listeners, ports := reservePorts(t, 2)
	// keep ports[0] occupied, free ports[1] for the server
	if err := listeners[1].Close(); err != nil {
		t.Fatalf("error releasing port: %v", err)
	}

	srv := newTestServer(t, WithCandidatePorts(ports...))
	done := runServer(srv)
	waitForState(t, srv, StateServing)

	if got := srv.BoundPort(); got != ports[1] {
		t.Errorf("bound port = %d, want fallback %d", got, ports[1])
	}

	srv.Stop()
	if err := waitForRun(t, done); err != nil {
		t.Fatalf("graceful shutdown should return nil, got %v", err)
	}
}
