package signaling

import (
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/RAMYA-PARSANIA/simally-signaling/internal/metrics"
	"github.com/RAMYA-PARSANIA/simally-signaling/internal/ratelimit"
)

const wsWriteWait = 5 * time.Second

// peer is one WebSocket connection. It implements presence.Endpoint.
type peer struct {
	id      string
	conn    *websocket.Conn
	out     *outbox
	logger  *slog.Logger
	metrics *metrics.Metrics
	limiter *ratelimit.TokenBucket
	// presence meters join-room and leave-room separately so relay traffic
	// cannot starve membership changes.
	presence *ratelimit.TokenBucket

	maxMessageBytes int64
	idleTimeout     time.Duration
	pingInterval    time.Duration

	closeOnce   sync.Once
	closeCode   int
	closeReason string
	done        chan struct{}
	writerDone  chan struct{}
}

type peerConfig struct {
	MaxMessageBytes      int64
	MaxMessagesPerSecond int
	IdleTimeout          time.Duration
	PingInterval         time.Duration
	SendQueueFrames      int
	SendQueueBytes       int
}

func newPeer(id string, conn *websocket.Conn, cfg peerConfig, logger *slog.Logger, m *metrics.Metrics) *peer {
	return &peer{
		id:              id,
		conn:            conn,
		out:             newOutbox(cfg.SendQueueFrames, cfg.SendQueueBytes),
		logger:          logger.With("conn_id", id),
		metrics:         m,
		limiter:         ratelimit.NewPerSecond(nil, cfg.MaxMessagesPerSecond),
		presence:        ratelimit.NewPerSecond(nil, cfg.MaxMessagesPerSecond),
		maxMessageBytes: cfg.MaxMessageBytes,
		idleTimeout:     cfg.IdleTimeout,
		pingInterval:    cfg.PingInterval,
		done:            make(chan struct{}),
		writerDone:      make(chan struct{}),
	}
}

// Send queues frame for the writer. A full queue closes the connection; the
// reader then observes the close and runs the normal disconnect cleanup.
func (p *peer) Send(frame []byte) bool {
	err := p.out.Enqueue(frame)
	switch {
	case err == nil:
		return true
	case errors.Is(err, ErrOutboxFull):
		p.metrics.Inc(metrics.OutboundOverflow)
		p.logger.Warn("ws_send_queue_overflow", "queued", p.out.Len())
		p.closeWith(websocket.ClosePolicyViolation, "send queue overflow")
	}
	return false
}

func (p *peer) start() {
	go p.writeLoop()
	if p.pingInterval > 0 {
		go p.pingLoop()
	}
}

// readLoop feeds text frames to handle until the connection fails, the peer
// goes idle or a frame exceeds the size limit.
func (p *peer) readLoop(handle func([]byte)) {
	p.conn.SetReadLimit(p.maxMessageBytes)
	p.extendReadDeadline()
	p.conn.SetPongHandler(func(string) error {
		p.extendReadDeadline()
		return nil
	})

	for {
		msgType, data, err := p.conn.ReadMessage()
		if err != nil {
			switch {
			case errors.Is(err, websocket.ErrReadLimit):
				p.metrics.Inc(metrics.MessageTooLarge)
				p.closeWith(websocket.CloseMessageTooBig, "message too large")
			case isTimeout(err):
				p.closeWith(websocket.CloseNormalClosure, "idle timeout")
			}
			return
		}
		p.extendReadDeadline()

		if msgType != websocket.TextMessage {
			p.metrics.Inc(metrics.MessageMalformed)
			continue
		}
		// Consume the frame before rate limiting so bytes already buffered by
		// the kernel do not turn a later close into a reset.
		bucket := p.limiter
		if isPresenceFrame(data) {
			bucket = p.presence
		}
		if !bucket.Allow(1) {
			p.metrics.Inc(metrics.DropReasonRateLimited)
			continue
		}
		handle(data)
	}
}

func (p *peer) writeLoop() {
	defer close(p.writerDone)
	for {
		frame, ok := p.out.Dequeue()
		if !ok {
			break
		}
		_ = p.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := p.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			p.logger.Debug("ws_write_failed", "err", err)
			p.closeWith(websocket.CloseAbnormalClosure, "")
			break
		}
	}

	if p.closeCode != websocket.CloseAbnormalClosure {
		_ = p.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(p.closeCode, p.closeReason), time.Now().Add(wsWriteWait))
	}
	_ = p.conn.Close()
}

func (p *peer) pingLoop() {
	ticker := time.NewTicker(p.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			if err := p.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}

// closeWith stops the peer. The first call decides the close code the writer
// sends; later calls are no-ops. It never blocks.
func (p *peer) closeWith(code int, reason string) {
	p.closeOnce.Do(func() {
		p.closeCode = code
		p.closeReason = reason
		close(p.done)
		p.out.Close()
	})
}

// wait blocks until the writer has sent the close frame and released the
// connection.
func (p *peer) wait() {
	<-p.writerDone
}

func (p *peer) extendReadDeadline() {
	if p.idleTimeout > 0 {
		_ = p.conn.SetReadDeadline(time.Now().Add(p.idleTimeout))
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
