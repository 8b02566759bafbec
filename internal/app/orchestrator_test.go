package app

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/leandro-lugaresi/hub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/grovelab/grove/internal/core"
	"github.com/grovelab/grove/internal/domain"
	"github.com/grovelab/grove/internal/poller"
	"github.com/grovelab/grove/internal/poller/mock"
)

type fakeSender struct {
	mu     sync.Mutex
	frames []core.Frame
	closed bool
}

func (f *fakeSender) TrySend(b core.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, b)
	return nil
}

func (f *fakeSender) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeSender) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// eventTypes decodes the "type" field of every frame sent so far.
func (f *fakeSender) eventTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.frames))
	for _, b := range f.frames {
		var env struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(b, &env); err == nil {
			out = append(out, env.Type)
		}
	}
	return out
}

func (f *fakeSender) has(eventType string) bool {
	for _, t := range f.eventTypes() {
		if t == eventType {
			return true
		}
	}
	return false
}

func newTestOrchestrator(t *testing.T, capacity int) *Orchestrator {
	t.Helper()
	ctrl := gomock.NewController(t)
	bus := hub.New()
	// A long initial delay keeps poll timers from firing during tests.
	scheduler := poller.NewScheduler(poller.Config{
		InitialDelay:      time.Hour,
		Interval:          time.Hour,
		RateLimitInterval: time.Hour,
	}, mock.NewMockClient(ctrl), poller.NewBaselineStore(), bus)

	return &Orchestrator{
		Registry:   core.NewRegistry(),
		Rooms:      core.NewAllocator(1, capacity),
		Guard:      core.NewSessionGuard(),
		Aggregator: core.NewAggregator(core.Weights{Commit: 2, PullRequest: 10}),
		Poller:     scheduler,
		Bus:        bus,
	}
}

func user(login string) domain.User {
	return domain.User{Login: domain.Login(login), DisplayName: login}
}

func TestJoinAssignsRoomAndSubscribes(t *testing.T) {
	o := newTestOrchestrator(t, 4)
	s1 := &fakeSender{}
	o.Registry.Bind("conn-1", s1, nil)

	res, err := o.Join("conn-1", user("octocat"), "tok", 1, 2, "")
	require.NoError(t, err)
	require.NotEmpty(t, res.Room)
	assert.Empty(t, res.Members, "first joiner sees an empty room")
	assert.Zero(t, res.State.Progress)
	assert.True(t, o.Poller.Subscribed("octocat"))

	p, ok := o.Registry.Get("conn-1")
	require.True(t, ok)
	assert.Equal(t, res.Room, p.Room)
	assert.Equal(t, 1.0, p.X)
	assert.Equal(t, 2.0, p.Y)
}

func TestJoinBroadcastsToRoomMates(t *testing.T) {
	o := newTestOrchestrator(t, 4)
	s1 := &fakeSender{}
	s2 := &fakeSender{}
	o.Registry.Bind("conn-1", s1, nil)
	o.Registry.Bind("conn-2", s2, nil)

	res1, err := o.Join("conn-1", user("octocat"), "tok", 0, 0, "")
	require.NoError(t, err)

	res2, err := o.Join("conn-2", user("hubot"), "tok", 0, 0, res1.Room)
	require.NoError(t, err)
	require.Equal(t, res1.Room, res2.Room)
	require.Len(t, res2.Members, 1)
	assert.Equal(t, domain.Login("octocat"), res2.Members[0].User.Login)

	assert.True(t, s1.has("player_joined"))
	assert.False(t, s2.has("player_joined"), "joiner does not receive its own join")
}

func TestJoinRequestedRoomErrors(t *testing.T) {
	o := newTestOrchestrator(t, 1)
	s1 := &fakeSender{}
	s2 := &fakeSender{}
	o.Registry.Bind("conn-1", s1, nil)
	o.Registry.Bind("conn-2", s2, nil)

	res, err := o.Join("conn-1", user("octocat"), "tok", 0, 0, "")
	require.NoError(t, err)

	_, err = o.Join("conn-2", user("hubot"), "tok", 0, 0, res.Room)
	assert.ErrorIs(t, err, core.ErrRoomFull)

	_, err = o.Join("conn-2", user("hubot"), "tok", 0, 0, "no-such-room")
	assert.ErrorIs(t, err, core.ErrRoomNotFound)
}

func TestRejoinEvictsPreviousSession(t *testing.T) {
	o := newTestOrchestrator(t, 4)
	s1 := &fakeSender{}
	s2 := &fakeSender{}
	o.Registry.Bind("conn-1", s1, nil)
	o.Registry.Bind("conn-2", s2, nil)

	res1, err := o.Join("conn-1", user("octocat"), "tok", 0, 0, "")
	require.NoError(t, err)

	res2, err := o.Join("conn-2", user("octocat"), "tok", 0, 0, "")
	require.NoError(t, err)

	assert.True(t, s1.has("session_replaced"))
	assert.True(t, s1.isClosed())

	_, ok := o.Registry.Get("conn-1")
	assert.False(t, ok, "evicted presence is gone")
	conn, ok := o.Guard.ConnOf("octocat")
	require.True(t, ok)
	assert.Equal(t, domain.ConnID("conn-2"), conn)
	assert.True(t, o.Poller.Subscribed("octocat"), "replacement keeps the poll loop alive")

	// The old slot was released through the normal disconnect path.
	for _, r := range o.Rooms.Rooms() {
		if r.ID == res1.Room && r.ID != res2.Room {
			assert.Zero(t, r.Size)
		}
	}
}

func TestMoveRelaysToRoomMates(t *testing.T) {
	o := newTestOrchestrator(t, 4)
	s1 := &fakeSender{}
	s2 := &fakeSender{}
	o.Registry.Bind("conn-1", s1, nil)
	o.Registry.Bind("conn-2", s2, nil)

	res, err := o.Join("conn-1", user("octocat"), "tok", 0, 0, "")
	require.NoError(t, err)
	_, err = o.Join("conn-2", user("hubot"), "tok", 0, 0, res.Room)
	require.NoError(t, err)

	o.Move("conn-2", 3, 4, true, "left", 1234)

	assert.True(t, s1.has("moved"))
	assert.False(t, s2.has("moved"))

	p, ok := o.Registry.Get("conn-2")
	require.True(t, ok)
	assert.Equal(t, 3.0, p.X)
	assert.Equal(t, "left", p.Direction)
	assert.True(t, p.Moving)
}

func TestDisconnectTearsEverythingDown(t *testing.T) {
	o := newTestOrchestrator(t, 4)
	s1 := &fakeSender{}
	s2 := &fakeSender{}
	o.Registry.Bind("conn-1", s1, nil)
	o.Registry.Bind("conn-2", s2, nil)

	res, err := o.Join("conn-1", user("octocat"), "tok", 0, 0, "")
	require.NoError(t, err)
	_, err = o.Join("conn-2", user("hubot"), "tok", 0, 0, res.Room)
	require.NoError(t, err)

	o.Disconnect("conn-2")

	assert.True(t, s1.has("player_left"))
	assert.False(t, o.Poller.Subscribed("hubot"))
	_, ok := o.Guard.ConnOf("hubot")
	assert.False(t, ok)
	_, ok = o.Registry.Get("conn-2")
	assert.False(t, ok)
}

func TestActivityDeltaReachesRoom(t *testing.T) {
	o := newTestOrchestrator(t, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o.Run(ctx)

	s1 := &fakeSender{}
	o.Registry.Bind("conn-1", s1, nil)
	res, err := o.Join("conn-1", user("octocat"), "tok", 0, 0, "")
	require.NoError(t, err)

	o.Bus.Publish(hub.Message{
		Name: poller.TopicActivityDelta,
		Fields: hub.Fields{"delta": domain.ActivityDelta{
			Login: "octocat", Room: res.Room, Commits: 3,
		}},
	})

	require.Eventually(t, func() bool {
		return s1.has("progress_update")
	}, time.Second, 5*time.Millisecond)

	st := o.Aggregator.State(res.Room)
	assert.Equal(t, 6, st.Progress)
	assert.Equal(t, 6, st.Contributions["octocat"])
}

func TestResetRoomBroadcasts(t *testing.T) {
	o := newTestOrchestrator(t, 4)
	s1 := &fakeSender{}
	o.Registry.Bind("conn-1", s1, nil)
	res, err := o.Join("conn-1", user("octocat"), "tok", 0, 0, "")
	require.NoError(t, err)

	o.Aggregator.Apply(res.Room, "octocat", domain.ActivityDelta{Commits: 5})
	st := o.ResetRoom(res.Room)

	assert.Zero(t, st.Progress)
	assert.Empty(t, st.Contributions)
	assert.True(t, s1.has("progress_update"))
}
