package signaling

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

type MessageType string

// Client to server.
const (
	TypeJoinRoom         MessageType = "join-room"
	TypeLeaveRoom        MessageType = "leave-room"
	TypeOffer            MessageType = "webrtc-offer"
	TypeAnswer           MessageType = "webrtc-answer"
	TypeICECandidate     MessageType = "webrtc-ice-candidate"
	TypeChatMessage      MessageType = "chat-message"
	TypeMediaStateChange MessageType = "media-state-change"
)

// Server to client. Relay, chat and media frames reuse the inbound names.
const (
	TypeConnected            MessageType = "connected"
	TypeExistingParticipants MessageType = "existing-participants"
	TypeParticipantJoined    MessageType = "participant-joined"
	TypeParticipantLeft      MessageType = "participant-left"
)

func (t MessageType) isRelay() bool {
	return t == TypeOffer || t == TypeAnswer || t == TypeICECandidate
}

// Envelope is the wire format in both directions.
type Envelope struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type JoinRoomRequest struct {
	RoomID      string `json:"roomId" validate:"required"`
	DisplayName string `json:"displayName"`
}

// RelayRequest carries an offer, answer or ICE candidate for one target.
// Payload is forwarded verbatim.
type RelayRequest struct {
	To      string          `json:"to" validate:"required"`
	Payload json.RawMessage `json:"payload" validate:"required"`
}

type ChatRequest struct {
	Message string `json:"message" validate:"required"`
}

// Message is a decoded inbound frame. Exactly one of the pointer fields is
// set for types that carry data.
type Message struct {
	Type  MessageType
	Join  *JoinRoomRequest
	Relay *RelayRequest
	Chat  *ChatRequest
	// Media is the sender's media state object, keyed by field name.
	Media map[string]json.RawMessage
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ParseMessage decodes and validates one inbound frame.
// isPresenceFrame reports whether data is a join-room or leave-room frame.
func isPresenceFrame(data []byte) bool {
	var env struct {
		Type MessageType `json:"type"`
	}
	if json.Unmarshal(data, &env) != nil {
		return false
	}
	return env.Type == TypeJoinRoom || env.Type == TypeLeaveRoom
}

func ParseMessage(data []byte) (Message, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	msg := Message{Type: env.Type}
	switch env.Type {
	case TypeJoinRoom:
		msg.Join = &JoinRoomRequest{}
		return msg, decodeData(env.Data, msg.Join)
	case TypeLeaveRoom:
		return msg, nil
	case TypeOffer, TypeAnswer, TypeICECandidate:
		msg.Relay = &RelayRequest{}
		if err := decodeData(env.Data, msg.Relay); err != nil {
			return msg, err
		}
		if isJSONNull(msg.Relay.Payload) {
			return msg, fmt.Errorf("%w: payload is null", ErrMalformedMessage)
		}
		return msg, nil
	case TypeChatMessage:
		msg.Chat = &ChatRequest{}
		return msg, decodeData(env.Data, msg.Chat)
	case TypeMediaStateChange:
		if err := json.Unmarshal(env.Data, &msg.Media); err != nil || msg.Media == nil {
			return msg, fmt.Errorf("%w: media state must be a JSON object", ErrMalformedMessage)
		}
		return msg, nil
	case "":
		return msg, fmt.Errorf("%w: missing type", ErrMalformedMessage)
	default:
		return msg, fmt.Errorf("%w: %q", ErrUnknownMessageType, env.Type)
	}
}

func decodeData(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: missing data", ErrMalformedMessage)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return nil
}

func isJSONNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

type participantInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

type connectedFrame struct {
	ID string `json:"id"`
}

type relayFrame struct {
	From     string          `json:"from"`
	FromUser string          `json:"fromUser"`
	Payload  json.RawMessage `json:"payload"`
}

type chatFrame struct {
	ID        string `json:"id"`
	Sender    string `json:"sender"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

func encodeFrame(t MessageType, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: t, Data: raw})
}

// mediaStateFrame stamps the sender's id onto its media state. A
// participantId supplied by the client is overwritten.
func mediaStateFrame(senderID string, state map[string]json.RawMessage) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(state)+1)
	for k, v := range state {
		out[k] = v
	}
	id, _ := json.Marshal(senderID)
	out["participantId"] = id
	return out
}
