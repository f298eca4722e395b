package signaling

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pion/ice/v4"
	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"
)

// inspectPayload checks that a relayed payload looks like what its type
// claims: an RTCSessionDescriptionInit of the matching type for offers and
// answers, an RTCIceCandidateInit for candidates. It only runs in strict mode;
// otherwise payloads are opaque to the relay.
func inspectPayload(t MessageType, payload json.RawMessage) error {
	switch t {
	case TypeOffer:
		return inspectSessionDescription(payload, webrtc.SDPTypeOffer)
	case TypeAnswer:
		return inspectSessionDescription(payload, webrtc.SDPTypeAnswer)
	case TypeICECandidate:
		return inspectCandidate(payload)
	default:
		return nil
	}
}

func inspectSessionDescription(payload json.RawMessage, want webrtc.SDPType) error {
	var desc struct {
		Type string `json:"type"`
		SDP  string `json:"sdp"`
	}
	if err := json.Unmarshal(payload, &desc); err != nil {
		return fmt.Errorf("%w: %v", ErrPayloadRejected, err)
	}
	if got := webrtc.NewSDPType(desc.Type); got != want {
		return fmt.Errorf("%w: sdp type %q, want %q", ErrPayloadRejected, desc.Type, want)
	}

	var parsed sdp.SessionDescription
	if err := parsed.Unmarshal([]byte(desc.SDP)); err != nil {
		return fmt.Errorf("%w: %v", ErrPayloadRejected, err)
	}
	if len(parsed.MediaDescriptions) == 0 {
		return fmt.Errorf("%w: sdp has no media sections", ErrPayloadRejected)
	}
	return nil
}

func inspectCandidate(payload json.RawMessage) error {
	var init webrtc.ICECandidateInit
	if err := json.Unmarshal(payload, &init); err != nil {
		return fmt.Errorf("%w: %v", ErrPayloadRejected, err)
	}
	// An empty candidate signals end-of-candidates.
	if init.Candidate == "" {
		return nil
	}
	if _, err := ice.UnmarshalCandidate(strings.TrimPrefix(init.Candidate, "candidate:")); err != nil {
		return fmt.Errorf("%w: %v", ErrPayloadRejected, err)
	}
	return nil
}
