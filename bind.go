package assetserve

import (
	"errors"
	"fmt"
	"net"
	"slices"
	"strconv"
	"syscall"
)

// errNoPortAvailable is returned when every candidate port is exhausted.
var errNoPortAvailable = errors.New("no candidate port available")

// fallbackPorts are tried in order after the preferred port when a bind
// fails with a recoverable error.
var fallbackPorts = []int{8080, 3000, 5000}

// bindOutcome classifies a single bind attempt so the retry loop is driven
// by an explicit result value instead of error inspection at the call site.
type bindOutcome int

const (
	bindSuccess bindOutcome = iota
	// bindRetryable covers address-in-use and permission-denied, the two
	// errors that a different candidate port can fix.
	bindRetryable
	// bindFatal covers everything else, e.g. an unresolvable host.
	bindFatal
)

func classifyBindError(err error) bindOutcome {
	switch {
	case err == nil:
		return bindSuccess
	case errors.Is(err, syscall.EADDRINUSE), errors.Is(err, syscall.EACCES):
		return bindRetryable
	default:
		return bindFatal
	}
}

// candidatePorts returns the bind order for a preferred port: the preferred
// port first, then the fixed fallbacks, deduplicated.
func candidatePorts(preferred int) []int {
	ports := []int{preferred}
	for _, p := range fallbackPorts {
		if !slices.Contains(ports, p) {
			ports = append(ports, p)
		}
	}
	return ports
}

// bindFirst attempts to bind a TCP listener to each candidate port in order
// and returns the first success together with the port that was bound.
// Binding is strictly sequential; at most one listener is ever live.
func bindFirst(host string, ports []int) (net.Listener, int, error) {
	for _, port := range ports {
		addr := net.JoinHostPort(host, strconv.Itoa(port))
		ln, err := net.Listen("tcp", addr)
		switch classifyBindError(err) {
		case bindSuccess:
			if port == 0 {
				port = ln.Addr().(*net.TCPAddr).Port
			}
			return ln, port, nil
		case bindRetryable:
			logger.Warn("Port unavailable, trying next candidate.", "addr", addr, "error", err)
		case bindFatal:
			return nil, 0, fmt.Errorf("binding %s: %w", addr, err)
		}
	}
	return nil, 0, errNoPortAvailable
}
