package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Event names. Each is exported as a value of the `event` label on
// simally_signaling_events_total.
const (
	WSConnected           = "ws_connected"
	WSDisconnected        = "ws_disconnected"
	WSRejectedCapacity    = "ws_rejected_capacity"
	OriginRejected        = "origin_rejected"
	MessageReceived       = "message_received"
	MessageMalformed      = "message_malformed"
	MessageTooLarge       = "message_too_large"
	DropReasonRateLimited = "rate_limited"
	PayloadRejected       = "payload_rejected"
	RelayDelivered        = "relay_delivered"
	RelayTargetMissing    = "relay_target_missing"
	ChatBroadcast         = "chat_broadcast"
	MediaStateBroadcast   = "media_state_broadcast"
	MessageNotInRoom      = "message_not_in_room"
	RoomJoined            = "room_joined"
	RoomLeft              = "room_left"
	RoomCreated           = "room_created"
	RoomDeleted           = "room_deleted"
	OutboundOverflow      = "outbound_overflow"
	DispatchPanic         = "dispatch_panic"
	EndpointPanic         = "endpoint_panic"
	ICEServersServed      = "ice_servers_served"
)

const namespace = "simally_signaling"

// Metrics is a concurrency-safe event counter registry backed by a private
// Prometheus registry.
//
// Counts are also kept in-process so callers (tests, the status log) can read
// them back without scraping.
type Metrics struct {
	reg    *prometheus.Registry
	events *prometheus.CounterVec

	runtimeOnce sync.Once

	mu sync.Mutex
	m  map[string]uint64
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_total",
		Help:      "Internal event counters.",
	}, []string{"event"})
	reg.MustRegister(events)

	return &Metrics{
		reg:    reg,
		events: events,
		m:      make(map[string]uint64),
	}
}

func (m *Metrics) Inc(name string) {
	m.Add(name, 1)
}

func (m *Metrics) Add(name string, delta uint64) {
	if m == nil || delta == 0 {
		return
	}
	m.mu.Lock()
	m.m[name] += delta
	m.mu.Unlock()
	m.events.WithLabelValues(name).Add(float64(delta))
}

func (m *Metrics) Get(name string) uint64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

func (m *Metrics) Snapshot() map[string]uint64 {
	if m == nil {
		return map[string]uint64{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]uint64, len(m.m))
	for k, v := range m.m {
		out[k] = v
	}
	return out
}

// RegisterGauge exposes fn as simally_signaling_<name>. fn is evaluated on
// every scrape.
func (m *Metrics) RegisterGauge(name, help string, fn func() float64) error {
	return m.reg.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, fn))
}
