package signaling

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid"
	"github.com/samber/lo"

	"github.com/RAMYA-PARSANIA/simally-signaling/internal/metrics"
	"github.com/RAMYA-PARSANIA/simally-signaling/internal/presence"
)

const (
	chatIDAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz_-"
	chatIDLength   = 21

	// Millisecond-precision RFC 3339, as browsers' Date.toISOString produces.
	chatTimestampLayout = "2006-01-02T15:04:05.000Z07:00"
)

type HubConfig struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics

	// StrictPayloads drops offers, answers and candidates whose payload does
	// not parse as SDP or an ICE candidate.
	StrictPayloads bool

	Now          func() time.Time
	NewMessageID func() (string, error)
}

// Status is a point-in-time presence summary.
type Status struct {
	ActiveRooms int `json:"activeRooms"`
	// TotalParticipants counts participants currently in a room.
	TotalParticipants int `json:"totalParticipants"`
	// Connections counts registered connections, joined or not.
	Connections int `json:"connections"`
}

// Hub applies signaling messages to the shared presence state.
//
// One RWMutex guards the registry and the room table together. Membership
// changes take the write lock; relay, chat and media fan-out take the read
// lock. Frames are enqueued while the lock is held, which gives every member
// the same order of presence notices.
type Hub struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
	strict  bool
	now     func() time.Time
	newID   func() (string, error)

	mu       sync.RWMutex
	registry *presence.Registry
	rooms    *presence.RoomTable
}

func NewHub(cfg HubConfig) *Hub {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewMessageID == nil {
		cfg.NewMessageID = func() (string, error) {
			return gonanoid.Generate(chatIDAlphabet, chatIDLength)
		}
	}
	return &Hub{
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		strict:   cfg.StrictPayloads,
		now:      cfg.Now,
		newID:    cfg.NewMessageID,
		registry: presence.NewRegistry(),
		rooms:    presence.NewRoomTable(),
	}
}

// RegisterMetrics exports the presence counts as gauges.
func (h *Hub) RegisterMetrics(m *metrics.Metrics) error {
	gauges := []struct {
		name, help string
		value      func(Status) int
	}{
		{"active_rooms", "Rooms with at least one member.", func(s Status) int { return s.ActiveRooms }},
		{"participants", "Participants currently in a room.", func(s Status) int { return s.TotalParticipants }},
		{"connections", "Open signaling connections.", func(s Status) int { return s.Connections }},
	}
	for _, g := range gauges {
		value := g.value
		if err := m.RegisterGauge(g.name, g.help, func() float64 { return float64(value(h.Status())) }); err != nil {
			return fmt.Errorf("register %s gauge: %w", g.name, err)
		}
	}
	return nil
}

// Register records a new connection and greets it with its id.
func (h *Hub) Register(id string, ep presence.Endpoint) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p := h.registry.Register(id, ep)
	h.sendLocked(*p, TypeConnected, connectedFrame{ID: id})
}

// HandleFrame decodes one inbound frame and applies it on behalf of id.
// Malformed frames are counted and returned as errors; the connection stays
// usable. A panic while applying the message is recovered and reported as an
// error.
func (h *Hub) HandleFrame(id string, data []byte) (err error) {
	msg, err := ParseMessage(data)
	if err != nil {
		h.metrics.Inc(metrics.MessageMalformed)
		h.logger.Debug("message_discarded", "conn_id", id, "err", err)
		return err
	}
	h.metrics.Inc(metrics.MessageReceived)

	defer func() {
		if r := recover(); r != nil {
			h.metrics.Inc(metrics.DispatchPanic)
			h.logger.Error("dispatch_panic", "conn_id", id, "type", msg.Type, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("signaling: panic handling %s: %v", msg.Type, r)
		}
	}()
	h.Dispatch(id, msg)
	return nil
}

// Dispatch applies a decoded message.
func (h *Hub) Dispatch(id string, msg Message) {
	switch {
	case msg.Type == TypeJoinRoom && msg.Join != nil:
		h.Join(id, msg.Join.RoomID, msg.Join.DisplayName)
	case msg.Type == TypeLeaveRoom:
		h.Leave(id)
	case msg.Type.isRelay() && msg.Relay != nil:
		h.Relay(id, msg.Type, *msg.Relay)
	case msg.Type == TypeChatMessage && msg.Chat != nil:
		h.Chat(id, msg.Chat.Message)
	case msg.Type == TypeMediaStateChange:
		h.MediaStateChange(id, msg.Media)
	default:
		h.logger.Debug("message_ignored", "conn_id", id, "type", msg.Type)
	}
}

// Join moves id into roomID. A participant already in another room leaves it
// first. Joining the current room again only re-sends the member list; the
// display name stays the one the other members were told about.
//
// Both tables are updated before any frame is delivered. The joiner receives
// the members present before it joined. Those members then receive
// participant-joined.
func (h *Hub) Join(id, roomID, displayName string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	p, err := h.registry.Get(id)
	if err != nil {
		h.logger.Debug("join_unknown_participant", "conn_id", id)
		return
	}
	rejoin := p.RoomID == roomID
	if rejoin {
		displayName = p.DisplayName
	} else if p.Joined() {
		h.leaveRoomLocked(p)
	}

	prior := lo.Without(h.rooms.Members(roomID), id)
	existing := make([]participantInfo, 0, len(prior))
	for _, memberID := range prior {
		if member, err := h.registry.Get(memberID); err == nil {
			existing = append(existing, participantInfo{ID: member.ID, DisplayName: member.DisplayName})
		}
	}

	if !rejoin {
		_ = h.registry.SetRoom(id, roomID, displayName)
		if len(prior) == 0 {
			h.metrics.Inc(metrics.RoomCreated)
		}
		h.rooms.Join(roomID, id)
		p.RoomID, p.DisplayName = roomID, displayName
	}

	h.sendLocked(p, TypeExistingParticipants, existing)
	if rejoin {
		return
	}
	h.broadcastLocked(prior, TypeParticipantJoined, participantInfo{ID: id, DisplayName: displayName})

	h.metrics.Inc(metrics.RoomJoined)
	h.logger.Info("participant_joined", "conn_id", id, "room_id", roomID, "display_name", displayName, "members", len(prior)+1)
}

// Relay forwards an offer, answer or ICE candidate to req.To only. Unknown
// targets are dropped.
func (h *Hub) Relay(id string, t MessageType, req RelayRequest) {
	if h.strict {
		if err := inspectPayload(t, req.Payload); err != nil {
			h.metrics.Inc(metrics.PayloadRejected)
			h.logger.Debug("relay_payload_rejected", "conn_id", id, "type", t, "err", err)
			return
		}
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	sender, err := h.registry.Get(id)
	if err != nil {
		return
	}
	target, err := h.registry.Get(req.To)
	if err != nil {
		h.metrics.Inc(metrics.RelayTargetMissing)
		h.logger.Debug("relay_target_missing", "conn_id", id, "type", t, "target", req.To)
		return
	}
	if h.sendLocked(target, t, relayFrame{From: id, FromUser: sender.DisplayName, Payload: req.Payload}) {
		h.metrics.Inc(metrics.RelayDelivered)
	}
}

// Chat stamps text with an id and time and sends it to every member of the
// sender's room, the sender included.
func (h *Hub) Chat(id, text string) {
	msgID, err := h.newID()
	if err != nil {
		h.logger.Error("chat_id_failed", "conn_id", id, "err", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	sender, ok := h.joinedLocked(id)
	if !ok {
		return
	}
	h.broadcastLocked(h.rooms.Members(sender.RoomID), TypeChatMessage, chatFrame{
		ID:        msgID,
		Sender:    sender.DisplayName,
		Message:   text,
		Timestamp: h.now().UTC().Format(chatTimestampLayout),
	})
	h.metrics.Inc(metrics.ChatBroadcast)
}

// MediaStateChange sends the sender's media state to the other members of
// its room.
func (h *Hub) MediaStateChange(id string, state map[string]json.RawMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sender, ok := h.joinedLocked(id)
	if !ok {
		return
	}
	others := lo.Without(h.rooms.Members(sender.RoomID), id)
	h.broadcastLocked(others, TypeMediaStateChange, mediaStateFrame(id, state))
	h.metrics.Inc(metrics.MediaStateBroadcast)
}

// Leave takes id out of its room but keeps the connection registered so it
// can join again. It is a no-op for participants not in a room.
func (h *Hub) Leave(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if p, err := h.registry.Get(id); err == nil && p.Joined() {
		h.leaveRoomLocked(p)
	}
}

// Disconnect runs the leave path for id and forgets the connection. Calling
// it again, or for an id that never registered, does nothing.
func (h *Hub) Disconnect(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	p, err := h.registry.Get(id)
	if err != nil {
		return
	}
	if p.Joined() {
		h.leaveRoomLocked(p)
	}
	h.registry.Remove(id)
}

func (h *Hub) Status() Status {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return Status{
		ActiveRooms:       h.rooms.Len(),
		TotalParticipants: h.registry.Joined(),
		Connections:       h.registry.Len(),
	}
}

// Rooms returns the live room ids with their member counts.
func (h *Hub) Rooms() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return lo.SliceToMap(h.rooms.Rooms(), func(roomID string) (string, int) {
		return roomID, len(h.rooms.Members(roomID))
	})
}

// leaveRoomLocked is the single cleanup path for explicit leaves and
// disconnects. The caller holds the write lock and p must be joined.
func (h *Hub) leaveRoomLocked(p presence.Participant) {
	deleted := h.rooms.Leave(p.RoomID, p.ID)
	h.registry.ClearRoom(p.ID)

	if deleted {
		h.metrics.Inc(metrics.RoomDeleted)
	} else {
		h.broadcastLocked(h.rooms.Members(p.RoomID), TypeParticipantLeft, participantInfo{ID: p.ID, DisplayName: p.DisplayName})
	}
	h.metrics.Inc(metrics.RoomLeft)
	h.logger.Info("participant_left", "conn_id", p.ID, "room_id", p.RoomID, "room_deleted", deleted)
}

func (h *Hub) joinedLocked(id string) (presence.Participant, bool) {
	p, err := h.registry.Get(id)
	if err != nil {
		return presence.Participant{}, false
	}
	if !p.Joined() {
		h.metrics.Inc(metrics.MessageNotInRoom)
		h.logger.Debug("message_not_in_room", "conn_id", id)
		return presence.Participant{}, false
	}
	return p, true
}

func (h *Hub) broadcastLocked(ids []string, t MessageType, data any) {
	if len(ids) == 0 {
		return
	}
	frame, err := encodeFrame(t, data)
	if err != nil {
		h.logger.Error("encode_failed", "type", t, "err", err)
		return
	}
	for _, id := range ids {
		if p, err := h.registry.Get(id); err == nil {
			h.deliverLocked(p, t, frame)
		}
	}
}

func (h *Hub) sendLocked(p presence.Participant, t MessageType, data any) bool {
	frame, err := encodeFrame(t, data)
	if err != nil {
		h.logger.Error("encode_failed", "type", t, "err", err)
		return false
	}
	return h.deliverLocked(p, t, frame)
}

// deliverLocked hands frame to p's endpoint. A panicking endpoint counts as a
// dropped frame so the remaining recipients still get theirs.
func (h *Hub) deliverLocked(p presence.Participant, t MessageType, frame []byte) (ok bool) {
	if p.Endpoint == nil {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			h.metrics.Inc(metrics.EndpointPanic)
			h.logger.Error("endpoint_panic", "conn_id", p.ID, "type", t, "panic", r, "stack", string(debug.Stack()))
			ok = false
		}
	}()
	if !p.Endpoint.Send(frame) {
		h.logger.Debug("send_dropped", "conn_id", p.ID, "type", t)
		return false
	}
	return true
}
