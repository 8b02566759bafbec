package core

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovelab/grove/internal/domain"
)

func TestAssignFillsAndReopensRoom(t *testing.T) {
	a := NewAllocator(1, 2)

	r1 := a.Assign("A")
	require.True(t, a.pool.contains(r1), "room with one free slot stays in the pool")

	r2 := a.Assign("B")
	require.Equal(t, r1, r2, "only one room available")
	require.False(t, a.pool.contains(r1), "full room leaves the pool")

	r3 := a.Assign("C")
	require.NotEqual(t, r1, r3, "a fresh room is created when the pool is dry")
	require.Equal(t, 1, a.pool.len())

	released, ok := a.Release("A")
	require.True(t, ok)
	require.Equal(t, r1, released)
	require.True(t, a.pool.contains(r1), "room re-enters the pool after a slot frees up")
}

func TestAssignIdempotent(t *testing.T) {
	a := NewAllocator(1, 4)

	first := a.Assign("A")
	second := a.Assign("A")
	require.Equal(t, first, second)

	for _, r := range a.Rooms() {
		if r.ID == first {
			assert.Equal(t, 1, r.Size, "repeat Assign must not take another slot")
		}
	}
}

func TestRequestRoom(t *testing.T) {
	a := NewAllocator(2, 1)
	rooms := a.Rooms()
	target := rooms[0].ID
	other := rooms[1].ID

	got, err := a.Request("A", target)
	require.NoError(t, err)
	require.Equal(t, target, got)

	_, err = a.Request("B", target)
	require.ErrorIs(t, err, ErrRoomFull)

	_, err = a.Request("B", "no-such-room")
	require.ErrorIs(t, err, ErrRoomNotFound)

	// Switching releases the old slot.
	got, err = a.Request("A", other)
	require.NoError(t, err)
	require.Equal(t, other, got)
	require.True(t, a.pool.contains(target))

	// Requesting the current room is a no-op.
	got, err = a.Request("A", other)
	require.NoError(t, err)
	require.Equal(t, other, got)
}

func TestReleaseUnknownConn(t *testing.T) {
	a := NewAllocator(1, 2)
	_, ok := a.Release("ghost")
	require.False(t, ok)
}

// Random assign/release sequences must keep every room inside its
// capacity and the pool in sync with occupancy.
func TestAllocatorInvariants(t *testing.T) {
	a := NewAllocator(2, 3)
	var conns []domain.ConnID

	for i := 0; i < 1000; i++ {
		if len(conns) == 0 || rand.Intn(2) == 0 {
			c := domain.ConnID(fmt.Sprintf("conn-%d", i))
			a.Assign(c)
			conns = append(conns, c)
		} else {
			j := rand.Intn(len(conns))
			_, ok := a.Release(conns[j])
			require.True(t, ok)
			conns = append(conns[:j], conns[j+1:]...)
		}

		for _, r := range a.Rooms() {
			require.GreaterOrEqual(t, r.Size, 0)
			require.LessOrEqual(t, r.Size, r.Capacity)
			require.Equal(t, r.Size < r.Capacity, a.pool.contains(r.ID),
				"room %s in pool iff it has spare capacity", r.ID)
		}
	}
}

func TestPoolSwapRemove(t *testing.T) {
	p := newAvailablePool()
	p.add("a")
	p.add("b")
	p.add("c")
	p.add("b") // duplicate add is a no-op
	require.Equal(t, 3, p.len())

	p.remove("b")
	require.False(t, p.contains("b"))
	require.True(t, p.contains("a"))
	require.True(t, p.contains("c"))

	p.remove("b") // absent remove is a no-op
	require.Equal(t, 2, p.len())

	p.remove("c")
	p.remove("a")
	require.Equal(t, 0, p.len())
}
