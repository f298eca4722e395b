// Package presence tracks which participants are connected to the relay and
// which room, if any, each of them currently occupies.
//
// Registry and RoomTable are not safe for concurrent use on their own. The
// signaling hub owns one of each and mutates them together under a single
// lock, so a participant's room in the Registry always agrees with the
// RoomTable's member sets.
package presence
