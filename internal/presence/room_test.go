package presence

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoomTable_CreateOnFirstJoin(t *testing.T) {
	rt := NewRoomTable()
	require.Equal(t, 0, rt.Len())
	require.Empty(t, rt.Members("r1"))

	rt.Join("r1", "a")
	require.Equal(t, 1, rt.Len())
	require.Equal(t, []string{"a"}, rt.Members("r1"))
	require.True(t, rt.Contains("r1", "a"))
}

func TestRoomTable_JoinIsIdempotent(t *testing.T) {
	rt := NewRoomTable()
	rt.Join("r1", "a")
	rt.Join("r1", "a")
	require.Equal(t, []string{"a"}, rt.Members("r1"))
}

func TestRoomTable_DeletesEmptyRoom(t *testing.T) {
	rt := NewRoomTable()
	rt.Join("r1", "a")
	rt.Join("r1", "b")

	require.False(t, rt.Leave("r1", "a"))
	require.Equal(t, []string{"b"}, rt.Members("r1"))

	require.True(t, rt.Leave("r1", "b"))
	require.Equal(t, 0, rt.Len())
	require.Empty(t, rt.Rooms())
	require.False(t, rt.Contains("r1", "b"))
}

func TestRoomTable_LeaveUnknown(t *testing.T) {
	rt := NewRoomTable()
	require.False(t, rt.Leave("nope", "a"))

	rt.Join("r1", "a")
	require.False(t, rt.Leave("r1", "stranger"))
	require.Equal(t, []string{"a"}, rt.Members("r1"))
}

func TestRoomTable_MembersIsSnapshot(t *testing.T) {
	rt := NewRoomTable()
	rt.Join("r1", "b")
	rt.Join("r1", "a")

	members := rt.Members("r1")
	require.Equal(t, []string{"a", "b"}, members)

	rt.Join("r1", "c")
	require.Len(t, members, 2)
}

func TestRoomTable_Rooms(t *testing.T) {
	rt := NewRoomTable()
	rt.Join("zeta", "a")
	rt.Join("alpha", "b")
	require.Equal(t, []string{"alpha", "zeta"}, rt.Rooms())
}
