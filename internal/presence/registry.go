package presence

import (
	"errors"

	"github.com/samber/lo"
)

var ErrParticipantNotFound = errors.New("participant not found")

// Endpoint delivers outbound frames to a participant's connection.
//
// Send must not block; it reports false when the frame could not be queued.
type Endpoint interface {
	Send(frame []byte) bool
}

type Participant struct {
	ID          string
	DisplayName string
	// RoomID is empty until the participant joins a room.
	RoomID   string
	Endpoint Endpoint
}

func (p Participant) Joined() bool { return p.RoomID != "" }

type Registry struct {
	participants map[string]*Participant
}

func NewRegistry() *Registry {
	return &Registry{participants: make(map[string]*Participant)}
}

// Register records a newly connected participant that has not joined a room.
// Registering an id twice replaces the previous record.
func (r *Registry) Register(id string, endpoint Endpoint) *Participant {
	p := &Participant{ID: id, Endpoint: endpoint}
	r.participants[id] = p
	return p
}

// SetRoom overwrites the participant's room and display name. An empty roomID
// marks the participant as not joined.
func (r *Registry) SetRoom(id, roomID, displayName string) error {
	p, ok := r.participants[id]
	if !ok {
		return ErrParticipantNotFound
	}
	p.RoomID = roomID
	p.DisplayName = displayName
	return nil
}

func (r *Registry) ClearRoom(id string) {
	if p, ok := r.participants[id]; ok {
		p.RoomID = ""
	}
}

// Get returns a copy of the participant record.
func (r *Registry) Get(id string) (Participant, error) {
	p, ok := r.participants[id]
	if !ok {
		return Participant{}, ErrParticipantNotFound
	}
	return *p, nil
}

// Remove deletes the participant record. Unknown ids are ignored.
func (r *Registry) Remove(id string) {
	delete(r.participants, id)
}

func (r *Registry) Len() int { return len(r.participants) }

// Joined counts participants that are currently in a room.
func (r *Registry) Joined() int {
	return lo.CountBy(lo.Values(r.participants), func(p *Participant) bool {
		return p.Joined()
	})
}

// Snapshot copies every participant record, keyed by id.
func (r *Registry) Snapshot() map[string]Participant {
	return lo.MapValues(r.participants, func(p *Participant, _ string) Participant {
		return *p
	})
}
