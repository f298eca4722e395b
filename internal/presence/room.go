package presence

import (
	"sort"

	"github.com/samber/lo"
)

// RoomTable maps room ids to member sets. A room exists exactly while it has
// at least one member.
type RoomTable struct {
	rooms map[string]map[string]struct{}
}

func NewRoomTable() *RoomTable {
	return &RoomTable{rooms: make(map[string]map[string]struct{})}
}

// Join adds participantID to roomID, creating the room on its first member.
// Joining a room twice is a no-op.
func (t *RoomTable) Join(roomID, participantID string) {
	members, ok := t.rooms[roomID]
	if !ok {
		members = make(map[string]struct{})
		t.rooms[roomID] = members
	}
	members[participantID] = struct{}{}
}

// Leave removes participantID from roomID and reports whether the room was
// deleted because it became empty.
func (t *RoomTable) Leave(roomID, participantID string) (deleted bool) {
	members, ok := t.rooms[roomID]
	if !ok {
		return false
	}
	delete(members, participantID)
	if len(members) == 0 {
		delete(t.rooms, roomID)
		return true
	}
	return false
}

// Members returns a sorted snapshot of the room's member ids. Unknown rooms
// have no members.
func (t *RoomTable) Members(roomID string) []string {
	members, ok := t.rooms[roomID]
	if !ok {
		return nil
	}
	ids := lo.Keys(members)
	sort.Strings(ids)
	return ids
}

func (t *RoomTable) Contains(roomID, participantID string) bool {
	_, ok := t.rooms[roomID][participantID]
	return ok
}

func (t *RoomTable) Len() int { return len(t.rooms) }

// Rooms returns a sorted snapshot of live room ids.
func (t *RoomTable) Rooms() []string {
	ids := lo.Keys(t.rooms)
	sort.Strings(ids)
	return ids
}
