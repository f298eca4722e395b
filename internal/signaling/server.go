package signaling

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/RAMYA-PARSANIA/simally-signaling/internal/metrics"
	"github.com/RAMYA-PARSANIA/simally-signaling/internal/origin"
)

// Config wires the WebSocket surface to a Hub.
type Config struct {
	Hub     *Hub
	Logger  *slog.Logger
	Metrics *metrics.Metrics

	Origins origin.Policy

	MaxMessageBytes      int64
	MaxMessagesPerSecond int
	IdleTimeout          time.Duration
	PingInterval         time.Duration
	SendQueueFrames      int
	SendQueueBytes       int

	// MaxConnections caps concurrent connections; 0 means unlimited.
	MaxConnections int

	NewConnID func() string
}

// Server accepts signaling WebSocket connections.
//
// Endpoints:
//   - GET /ws     : signaling channel
//   - GET /socket : alias of /ws
type Server struct {
	hub      *Hub
	logger   *slog.Logger
	metrics  *metrics.Metrics
	peerCfg  peerConfig
	maxConns int
	newID    func() string
	upgrader websocket.Upgrader

	mu     sync.Mutex
	closed bool
	active int
	peers  map[string]*peer
	wg     sync.WaitGroup
}

func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.NewConnID == nil {
		cfg.NewConnID = uuid.NewString
	}
	s := &Server{
		hub:     cfg.Hub,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		peerCfg: peerConfig{
			MaxMessageBytes:      cfg.MaxMessageBytes,
			MaxMessagesPerSecond: cfg.MaxMessagesPerSecond,
			IdleTimeout:          cfg.IdleTimeout,
			PingInterval:         cfg.PingInterval,
			SendQueueFrames:      cfg.SendQueueFrames,
			SendQueueBytes:       cfg.SendQueueBytes,
		},
		maxConns: cfg.MaxConnections,
		newID:    cfg.NewConnID,
		peers:    make(map[string]*peer),
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if _, ok := cfg.Origins.Check(r.Header.Get("Origin"), r.Host); !ok {
				s.metrics.Inc(metrics.OriginRejected)
				s.logger.Warn("ws_origin_rejected", "origin", r.Header.Get("Origin"), "host", r.Host)
				return false
			}
			return true
		},
	}
	return s
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("GET /socket", s.handleWebSocket)
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return mux
}

// Close stops accepting connections, closes the open ones with 1001 and
// waits for their cleanup to finish.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	peers := make([]*peer, 0, len(s.peers))
	for _, p := range s.peers {
		peers = append(peers, p)
	}
	s.mu.Unlock()

	for _, p := range peers {
		p.closeWith(websocket.CloseGoingAway, "server shutting down")
	}
	s.wg.Wait()
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if err := s.reserve(); err != nil {
		s.metrics.Inc(metrics.WSRejectedCapacity)
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	defer s.release()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		return
	}

	id := s.newID()
	p := newPeer(id, conn, s.peerCfg, s.logger, s.metrics)
	s.track(p)
	defer s.untrack(id)

	p.start()
	s.hub.Register(id, p)
	s.metrics.Inc(metrics.WSConnected)
	s.logger.Info("ws_connected", "conn_id", id, "remote_addr", r.RemoteAddr)

	p.readLoop(func(data []byte) {
		_ = s.hub.HandleFrame(id, data)
	})

	s.disconnect(id)
	p.closeWith(websocket.CloseNormalClosure, "")
	p.wait()

	s.metrics.Inc(metrics.WSDisconnected)
	s.logger.Info("ws_disconnected", "conn_id", id)
}

// disconnect runs hub cleanup for id, isolating a panic to this connection.
func (s *Server) disconnect(id string) {
	defer func() {
		if r := recover(); r != nil {
			s.metrics.Inc(metrics.DispatchPanic)
			s.logger.Error("disconnect_panic", "conn_id", id, "panic", r)
		}
	}()
	s.hub.Disconnect(id)
}

func (s *Server) reserve() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrTooManyConnections
	}
	if s.maxConns > 0 && s.active >= s.maxConns {
		return ErrTooManyConnections
	}
	s.active++
	s.wg.Add(1)
	return nil
}

func (s *Server) release() {
	s.mu.Lock()
	s.active--
	s.mu.Unlock()
	s.wg.Done()
}

// track registers p for Close. A peer accepted while Close is running is
// closed straight away.
func (s *Server) track(p *peer) {
	s.mu.Lock()
	closed := s.closed
	s.peers[p.id] = p
	s.mu.Unlock()
	if closed {
		p.closeWith(websocket.CloseGoingAway, "server shutting down")
	}
}

func (s *Server) untrack(id string) {
	s.mu.Lock()
	delete(s.peers, id)
	s.mu.Unlock()
}

// Connections returns the number of connections currently being served.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}
