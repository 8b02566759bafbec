package core

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/grovelab/grove/internal/domain"
)

// progressModulus bounds the cyclic meter; progress always stays in
// [0, progressModulus).
const progressModulus = 100

// Weights convert activity kinds into progress points. They are plain
// configuration, not protocol.
type Weights struct {
	Commit      int
	PullRequest int
}

// RoomActivityState is the shared meter of one room: a cyclic progress
// value and the additive per-user contribution tally.
type RoomActivityState struct {
	Room          domain.RoomID  `json:"room"`
	Progress      int            `json:"progress"`
	Contributions map[string]int `json:"contributions"`
}

// Aggregator folds activity deltas into per-room state. State is created
// lazily on the first event for a room and only ever reset by the
// external epoch trigger.
type Aggregator struct {
	mu      sync.Mutex
	weights Weights
	rooms   map[domain.RoomID]*RoomActivityState
}

func NewAggregator(w Weights) *Aggregator {
	return &Aggregator{weights: w, rooms: make(map[domain.RoomID]*RoomActivityState)}
}

// Apply folds one delta into the room's state and returns a copy of the
// result. The progress wrap produces no side effect here; callers detect
// the 100% transition by observing it.
func (a *Aggregator) Apply(room domain.RoomID, username string, d domain.ActivityDelta) RoomActivityState {
	a.mu.Lock()
	defer a.mu.Unlock()

	st := a.stateLocked(room)
	inc := d.Commits*a.weights.Commit + d.PullRequests*a.weights.PullRequest
	st.Progress = (st.Progress + inc) % progressModulus
	st.Contributions[username] += inc
	log.Debug().Str("module", "core.aggregator").Str("room", string(room)).Str("user", username).Int("inc", inc).Int("progress", st.Progress).Msg("delta applied")
	return copyState(st)
}

// State returns a copy of the room's current state.
func (a *Aggregator) State(room domain.RoomID) RoomActivityState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return copyState(a.stateLocked(room))
}

// Reset zeroes the room for a new epoch. Invoked only by the external
// season trigger, never internally.
func (a *Aggregator) Reset(room domain.RoomID) RoomActivityState {
	a.mu.Lock()
	defer a.mu.Unlock()
	st := a.stateLocked(room)
	st.Progress = 0
	st.Contributions = make(map[string]int)
	log.Info().Str("module", "core.aggregator").Str("room", string(room)).Msg("epoch reset")
	return copyState(st)
}

func (a *Aggregator) stateLocked(room domain.RoomID) *RoomActivityState {
	st, ok := a.rooms[room]
	if !ok {
		st = &RoomActivityState{Room: room, Contributions: make(map[string]int)}
		a.rooms[room] = st
	}
	return st
}

func copyState(st *RoomActivityState) RoomActivityState {
	out := RoomActivityState{Room: st.Room, Progress: st.Progress, Contributions: make(map[string]int, len(st.Contributions))}
	for k, v := range st.Contributions {
		out.Contributions[k] = v
	}
	return out
}
