package main

import "sync"

// Connection caps for the websocket endpoint
const (
	maxConnsPerIP = 5
	maxTotalConns = 1000
)

// connLimiter counts open websocket connections per remote IP
type connLimiter struct {
	mu    sync.Mutex
	perIP map[string]int
	total int
}

func newConnLimiter() *connLimiter {
	return &connLimiter{perIP: make(map[string]int)}
}

// acquire reserves a slot for ip, or reports false when a cap is reached
func (l *connLimiter) acquire(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.total >= maxTotalConns || l.perIP[ip] >= maxConnsPerIP {
		return false
	}
	l.perIP[ip]++
	l.total++
	return true
}

// release frees a slot taken by acquire
func (l *connLimiter) release(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.perIP[ip] <= 1 {
		delete(l.perIP, ip)
	} else {
		l.perIP[ip]--
	}
	if l.total > 0 {
		l.total--
	}
}

func (l *connLimiter) open() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}

// Hub tracks every websocket client, whether it watches or controls a
// session, and publishes the live session and client counts to telemetry.
type Hub struct {
	mu         sync.RWMutex
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client

	sessions *SessionManager
	conns    *connLimiter
	db       *DB
	auth     *Auth
	tel      *Telemetry
}

// NewHub creates a hub. db and tel may be nil.
func NewHub(db *DB, tel *Telemetry) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		sessions:   NewSessionManager(tel),
		conns:      newConnLimiter(),
		db:         db,
		auth:       NewAuth(db),
		tel:        tel,
	}
}

// Acquire reserves a connection slot for ip ahead of the upgrade
func (h *Hub) Acquire(ip string) bool { return h.conns.acquire(ip) }

// Release returns a slot once the connection is gone
func (h *Hub) Release(ip string) { h.conns.release(ip) }

// OpenConns returns the number of reserved connection slots
func (h *Hub) OpenConns() int { return h.conns.open() }

// Run applies registrations. A departing client is detached from its
// session, and the session closes once nobody is left in it.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
		case c := <-h.unregister:
			h.drop(c)
		}
		h.publishLive()
	}
}

func (h *Hub) drop(c *Client) {
	h.mu.Lock()
	if h.clients[c] {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	if c.sessionID != "" {
		h.sessions.RemoveClient(c.sessionID, c.id)
	}
}

func (h *Hub) publishLive() {
	if h.tel != nil {
		h.tel.SetLive(h.sessions.Count(), h.ClientCount())
	}
}

// ClientCount returns the number of registered clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
