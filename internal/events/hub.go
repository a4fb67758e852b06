// Package events pushes reconciliation and snapshot events to subscribers
// over raw TCP (newline-delimited JSON) and WebSocket.
package events

import (
	"bufio"
	"net"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"boxoffice/internal/metrics"
	"boxoffice/pkg/logging"
)

const (
	defaultHistorySize = 20
	writeTimeout       = 2 * time.Second
)

type Hub struct {
	mu          sync.Mutex
	sendMu      sync.Mutex // one broadcast at a time, keeps event order
	clients     map[net.Conn]struct{}
	wsClients   map[*websocket.Conn]struct{}
	history     [][]byte
	historySize int
}

type Stats struct {
	TCPClients int `json:"tcp_clients"`
	WSClients  int `json:"ws_clients"`
}

func NewHub(historySize int) *Hub {
	if historySize <= 0 {
		historySize = defaultHistorySize
	}
	return &Hub{
		clients:     make(map[net.Conn]struct{}),
		wsClients:   make(map[*websocket.Conn]struct{}),
		historySize: historySize,
	}
}

// Add registers a TCP client and replays recent events to it.
func (h *Hub) Add(conn net.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[conn] = struct{}{}
	h.gaugeLocked()
	for _, b := range h.welcomeLocked() {
		if err := writeTCP(conn, b); err != nil {
			return
		}
	}
}

func (h *Hub) Remove(conn net.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.gaugeLocked()
	h.mu.Unlock()
	_ = conn.Close()
}

func (h *Hub) AddWS(ws *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.wsClients[ws] = struct{}{}
	h.gaugeLocked()
	for _, b := range h.welcomeLocked() {
		if err := writeWS(ws, b); err != nil {
			return
		}
	}
}

func (h *Hub) RemoveWS(ws *websocket.Conn) {
	h.mu.Lock()
	delete(h.wsClients, ws)
	h.gaugeLocked()
	h.mu.Unlock()
	_ = ws.Close()
}

// Publish sends ev to every client and keeps it for late joiners. A client
// that cannot keep up is dropped. Writes happen outside h.mu; a slow
// client holds up other publishers but not Add, Remove or Stats.
func (h *Hub) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	b, err := json.Marshal(ev)
	if err != nil {
		logging.Component("events").Error().Err(err).Str("type", ev.Type).Msg("marshal event")
		return
	}
	b = append(b, '\n')

	h.sendMu.Lock()
	defer h.sendMu.Unlock()

	h.mu.Lock()
	h.history = append(h.history, b)
	if len(h.history) > h.historySize {
		h.history = h.history[len(h.history)-h.historySize:]
	}
	conns := make([]net.Conn, 0, len(h.clients))
	for c := range h.clients {
		conns = append(conns, c)
	}
	wss := make([]*websocket.Conn, 0, len(h.wsClients))
	for ws := range h.wsClients {
		wss = append(wss, ws)
	}
	h.mu.Unlock()

	var deadTCP []net.Conn
	for _, c := range conns {
		if err := writeTCP(c, b); err != nil {
			deadTCP = append(deadTCP, c)
		}
	}
	var deadWS []*websocket.Conn
	for _, ws := range wss {
		if err := writeWS(ws, b); err != nil {
			deadWS = append(deadWS, ws)
		}
	}
	if len(deadTCP) == 0 && len(deadWS) == 0 {
		return
	}

	h.mu.Lock()
	for _, c := range deadTCP {
		_ = c.Close()
		delete(h.clients, c)
	}
	for _, ws := range deadWS {
		_ = ws.Close()
		delete(h.wsClients, ws)
	}
	h.gaugeLocked()
	h.mu.Unlock()
}

func (h *Hub) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Stats{
		TCPClients: len(h.clients),
		WSClients:  len(h.wsClients),
	}
}

// welcomeLocked is the greeting plus the retained history.
func (h *Hub) welcomeLocked() [][]byte {
	hello, _ := json.Marshal(map[string]any{
		"type":    TypeWelcome,
		"clients": len(h.clients) + len(h.wsClients),
	})
	out := make([][]byte, 0, len(h.history)+1)
	out = append(out, append(hello, '\n'))
	return append(out, h.history...)
}

func (h *Hub) gaugeLocked() {
	metrics.HubClients.Set(float64(len(h.clients) + len(h.wsClients)))
}

func writeTCP(c net.Conn, b []byte) error {
	_ = c.SetWriteDeadline(time.Now().Add(writeTimeout))
	w := bufio.NewWriter(c)
	if _, err := w.Write(b); err != nil {
		return err
	}
	return w.Flush()
}

func writeWS(ws *websocket.Conn, b []byte) error {
	_ = ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return ws.WriteMessage(websocket.TextMessage, b)
}
