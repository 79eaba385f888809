package assetserve

import (
	"io/fs"
	"maps"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// reloadMessage is the text frame pushed to clients on a change.
	reloadMessage = "reload"
	// reloadWriteWait bounds a broadcast write to a slow client.
	reloadWriteWait = 10 * time.Second

	defaultWatchInterval = time.Second
)

// reloadHub tracks connected live-reload clients and broadcasts a reload
// notice when any file under the root directory changes. Development aid;
// the watcher polls modification times, which is plenty for a small asset
// set and avoids platform-specific file notification APIs.
type reloadHub struct {
	root     string
	interval time.Duration
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

func newReloadHub(root string) *reloadHub {
	return &reloadHub{
		root:     root,
		interval: defaultWatchInterval,
		clients:  make(map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{
			// the asset set is public; reload notices carry no data
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// handler upgrades the connection and registers the client. Clients never
// send meaningful data; the read loop only exists to observe disconnects.
func (h *reloadHub) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("Live-reload upgrade failed.", "error", err)
			return
		}
		h.mu.Lock()
		h.clients[conn] = struct{}{}
		h.mu.Unlock()
		go h.readLoop(conn)
	}
}

func (h *reloadHub) readLoop(conn *websocket.Conn) {
	defer h.drop(conn)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *reloadHub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	_ = conn.Close()
}

func (h *reloadHub) broadcast() {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	for _, conn := range conns {
		_ = conn.SetWriteDeadline(time.Now().Add(reloadWriteWait))
		if err := conn.WriteMessage(websocket.TextMessage, []byte(reloadMessage)); err != nil {
			h.drop(conn)
		}
	}
}

// closeAll disconnects every client; used during server shutdown.
func (h *reloadHub) closeAll() {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.clients = make(map[*websocket.Conn]struct{})
	h.mu.Unlock()

	for _, conn := range conns {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
			time.Now().Add(reloadWriteWait))
		_ = conn.Close()
	}
}

// watch polls the root directory until stop closes and broadcasts whenever
// the snapshot of file modification times changes.
func (h *reloadHub) watch(stop <-chan struct{}) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	last := h.snapshot()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			current := h.snapshot()
			if !maps.Equal(last, current) {
				logger.Info("Asset change detected, notifying clients.", "files", len(current))
				h.broadcast()
				last = current
			}
		}
	}
}

// snapshot maps each regular file under root to its mtime in nanoseconds.
func (h *reloadHub) snapshot() map[string]int64 {
	files := make(map[string]int64)
	_ = filepath.WalkDir(h.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			files[path] = info.ModTime().UnixNano()
		}
		return nil
	})
	return files
}
