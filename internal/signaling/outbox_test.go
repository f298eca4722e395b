package signaling

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestOutbox_FIFO(t *testing.T) {
	q := newOutbox(4, 1024)
	for _, f := range []string{"a", "b", "c"} {
		require.NoError(t, q.Enqueue([]byte(f)))
	}
	require.Equal(t, 3, q.Len())

	for _, want := range []string{"a", "b", "c"} {
		got, ok := q.Dequeue()
		require.True(t, ok)
		require.Equal(t, want, string(got))
	}
	require.Zero(t, q.Len())
}

func TestOutbox_FrameLimit(t *testing.T) {
	q := newOutbox(2, 1024)
	require.NoError(t, q.Enqueue([]byte("1")))
	require.NoError(t, q.Enqueue([]byte("2")))
	require.ErrorIs(t, q.Enqueue([]byte("3")), ErrOutboxFull)

	_, _ = q.Dequeue()
	require.NoError(t, q.Enqueue([]byte("3")))
}

func TestOutbox_ByteLimit(t *testing.T) {
	q := newOutbox(100, 10)
	require.NoError(t, q.Enqueue(make([]byte, 6)))
	require.ErrorIs(t, q.Enqueue(make([]byte, 5)), ErrOutboxFull)
	require.NoError(t, q.Enqueue(make([]byte, 4)))

	_, _ = q.Dequeue()
	require.NoError(t, q.Enqueue(make([]byte, 6)))
}

func TestOutbox_DequeueBlocksUntilEnqueue(t *testing.T) {
	q := newOutbox(4, 1024)
	got := make(chan string, 1)
	go func() {
		frame, ok := q.Dequeue()
		if ok {
			got <- string(frame)
		}
	}()

	select {
	case <-got:
		t.Fatal("Dequeue returned before anything was queued")
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, q.Enqueue([]byte("late")))
	select {
	case frame := <-got:
		require.Equal(t, "late", frame)
	case <-time.After(2 * time.Second):
		t.Fatal("Dequeue did not wake up")
	}
}

func TestOutbox_CloseWakesReaderAndRejectsWrites(t *testing.T) {
	q := newOutbox(4, 1024)
	require.NoError(t, q.Enqueue([]byte("pending")))
	_, _ = q.Dequeue()

	done := make(chan bool, 1)
	go func() {
		_, ok := q.Dequeue()
		done <- ok
	}()
	q.Close()

	select {
	case ok := <-done:
		require.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not wake Dequeue")
	}
	require.ErrorIs(t, q.Enqueue([]byte("x")), ErrOutboxClosed)
	q.Close()
}
