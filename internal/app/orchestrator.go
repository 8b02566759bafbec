// Package app orchestrates the core components behind the transport:
// session claiming, room allocation, poll subscriptions and fan-out.
package app

import (
	"context"
	"encoding/json"

	"github.com/leandro-lugaresi/hub"
	"github.com/rs/zerolog/log"

	"github.com/grovelab/grove/internal/core"
	"github.com/grovelab/grove/internal/domain"
	"github.com/grovelab/grove/internal/poller"
)

type Orchestrator struct {
	Registry   *core.Registry
	Rooms      *core.Allocator
	Guard      *core.SessionGuard
	Aggregator *core.Aggregator
	Poller     *poller.Scheduler
	Bus        *hub.Hub
}

// JoinResult is what the transport replies to a successful join.
type JoinResult struct {
	Room    domain.RoomID          `json:"room"`
	State   core.RoomActivityState `json:"state"`
	Members []domain.Presence      `json:"members"`
}

// Join runs the whole handshake: evict any prior session for the login,
// place the connection in a room, register the presence and subscribe
// the login to activity polling. Eviction completes before any room
// state is touched so two live presences never race on assignment.
func (o *Orchestrator) Join(conn domain.ConnID, user domain.User, token string, x, y float64, requested domain.RoomID) (JoinResult, error) {
	if evicted, ok := o.Guard.Claim(user.Login, conn); ok {
		o.evict(evicted)
	}

	prev, rejoining := o.Registry.Get(conn)

	var (
		room domain.RoomID
		err  error
	)
	if requested != "" {
		room, err = o.Rooms.Request(conn, requested)
		if err != nil {
			if !rejoining {
				o.Guard.Release(user.Login, conn)
			}
			return JoinResult{}, err
		}
	} else {
		room = o.Rooms.Assign(conn)
	}

	if rejoining && prev.Room != room {
		o.broadcast(prev.Room, conn, playerEvent{Type: "player_left", Presence: prev})
	}

	p := domain.Presence{Conn: conn, User: user, Room: room, X: x, Y: y}
	o.Registry.SetPresence(conn, p)
	o.Poller.Subscribe(user.Login, token, room, conn)

	o.broadcast(room, conn, playerEvent{Type: "player_joined", Presence: p})
	log.Info().Str("module", "app").Str("conn", string(conn)).Str("login", string(user.Login)).Str("room", string(room)).Msg("joined")

	return JoinResult{
		Room:    room,
		State:   o.Aggregator.State(room),
		Members: o.members(room, conn),
	}, nil
}

// Move applies a movement message and relays it verbatim to room mates.
func (o *Orchestrator) Move(conn domain.ConnID, x, y float64, moving bool, direction string, ts int64) {
	p, ok := o.Registry.UpdatePosition(conn, x, y, moving, direction)
	if !ok {
		return
	}
	o.broadcast(p.Room, conn, movedEvent{
		Type: "moved", Conn: conn, Login: p.User.Login,
		X: x, Y: y, Moving: moving, Direction: direction, Timestamp: ts,
	})
}

// Chat relays a chat line to room mates.
func (o *Orchestrator) Chat(conn domain.ConnID, text string) {
	p, ok := o.Registry.Get(conn)
	if !ok {
		return
	}
	o.broadcast(p.Room, conn, chatEvent{Type: "chat", Login: p.User.Login, Name: p.User.DisplayName, Text: text})
}

// Disconnect tears down everything the connection holds: room slot,
// session claim, poll subscription and presence record.
func (o *Orchestrator) Disconnect(conn domain.ConnID) {
	p, hadPresence := o.Registry.Get(conn)
	room, released := o.Rooms.Release(conn)
	if hadPresence {
		o.Guard.Release(p.User.Login, conn)
		o.Poller.Unsubscribe(p.User.Login, conn)
	}
	o.Registry.Unbind(conn)
	if released && hadPresence {
		o.broadcast(room, conn, playerEvent{Type: "player_left", Presence: p})
	}
	log.Info().Str("module", "app").Str("conn", string(conn)).Msg("disconnected")
}

// ResetRoom is the external epoch trigger: zero the room's meter and
// tell everyone.
func (o *Orchestrator) ResetRoom(room domain.RoomID) core.RoomActivityState {
	st := o.Aggregator.Reset(room)
	o.broadcast(room, "", progressEvent{Type: "progress_update", State: st})
	return st
}

// Run consumes activity deltas from the bus until ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) {
	sub := o.Bus.Subscribe(64, poller.TopicActivityDelta)
	go func() {
		<-ctx.Done()
		o.Bus.Unsubscribe(sub)
	}()
	go func() {
		for msg := range sub.Receiver {
			delta, ok := msg.Fields["delta"].(domain.ActivityDelta)
			if !ok {
				continue
			}
			st := o.Aggregator.Apply(delta.Room, string(delta.Login), delta)
			o.broadcast(delta.Room, "", progressEvent{Type: "progress_update", State: st})
		}
	}()
}

// evict notifies a replaced connection and tears it down through the
// normal disconnect path.
func (o *Orchestrator) evict(conn domain.ConnID) {
	if sender, ok := o.Registry.Sender(conn); ok {
		if b, err := json.Marshal(sessionReplacedEvent{Type: "session_replaced"}); err == nil {
			_ = sender.TrySend(b)
		}
		o.Registry.Cancel(conn)
		defer sender.Close()
	}
	o.Disconnect(conn)
}

func (o *Orchestrator) members(room domain.RoomID, except domain.ConnID) []domain.Presence {
	snaps := o.Registry.MembersOfRoom(room)
	out := make([]domain.Presence, 0, len(snaps))
	for _, s := range snaps {
		if s.Conn == except {
			continue
		}
		out = append(out, s.Presence)
	}
	return out
}

// broadcast fans a payload out to every member of a room, except the
// originating connection. A member that cannot keep up is kicked, same
// as the backpressure policy the transport applies to frames.
func (o *Orchestrator) broadcast(room domain.RoomID, except domain.ConnID, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app").Msg("broadcast marshal")
		return
	}
	for _, m := range o.Registry.MembersOfRoom(room) {
		if m.Conn == except {
			continue
		}
		if err := m.Sender.TrySend(core.Frame(b)); err != nil {
			log.Warn().Str("module", "app").Str("conn", string(m.Conn)).Msg("backpressure, kicking member")
			o.Registry.Cancel(m.Conn)
			o.Disconnect(m.Conn)
			m.Sender.Close()
		}
	}
}

type playerEvent struct {
	Type     string          `json:"type"`
	Presence domain.Presence `json:"player"`
}

type movedEvent struct {
	Type      string        `json:"type"`
	Conn      domain.ConnID `json:"conn"`
	Login     domain.Login  `json:"login"`
	X         float64       `json:"x"`
	Y         float64       `json:"y"`
	Moving    bool          `json:"moving"`
	Direction string        `json:"direction"`
	Timestamp int64         `json:"ts"`
}

type chatEvent struct {
	Type  string       `json:"type"`
	Login domain.Login `json:"login"`
	Name  string       `json:"name"`
	Text  string       `json:"text"`
}

type progressEvent struct {
	Type  string                 `json:"type"`
	State core.RoomActivityState `json:"state"`
}

type sessionReplacedEvent struct {
	Type string `json:"type"`
}
