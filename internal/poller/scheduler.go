package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/leandro-lugaresi/hub"
	"github.com/rs/zerolog/log"

	"github.com/grovelab/grove/internal/domain"
)

// TopicActivityDelta carries domain.ActivityDelta values in the "delta"
// field of bus messages.
const TopicActivityDelta = "activity.delta"

// Config holds the scheduler's timing knobs.
type Config struct {
	InitialDelay      time.Duration
	Interval          time.Duration
	RateLimitInterval time.Duration
}

type subscription struct {
	login domain.Login
	token string
	room  domain.RoomID
	conns map[domain.ConnID]struct{}
	timer *time.Timer
}

// Scheduler runs one adaptive poll loop per subscribed login. A timer is
// re-armed only after the previous tick's outcome is fully processed, so
// there is never more than one in-flight poll per login.
type Scheduler struct {
	mu        sync.Mutex
	cfg       Config
	client    Client
	baselines *BaselineStore
	bus       *hub.Hub
	subs      map[domain.Login]*subscription

	// afterFunc is swapped in tests to capture rescheduling decisions.
	afterFunc func(time.Duration, func()) *time.Timer
}

func NewScheduler(cfg Config, client Client, baselines *BaselineStore, bus *hub.Hub) *Scheduler {
	return &Scheduler{
		cfg:       cfg,
		client:    client,
		baselines: baselines,
		bus:       bus,
		subs:      make(map[domain.Login]*subscription),
		afterFunc: time.AfterFunc,
	}
}

// Subscribe adds conn to the login's subscriber set, creating the
// subscription and arming the first poll if it is the login's first
// subscriber. Later joiners do not update room or token.
func (s *Scheduler) Subscribe(login domain.Login, token string, room domain.RoomID, conn domain.ConnID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sub, ok := s.subs[login]; ok {
		sub.conns[conn] = struct{}{}
		return
	}

	sub := &subscription{
		login: login,
		token: token,
		room:  room,
		conns: map[domain.ConnID]struct{}{conn: {}},
	}
	s.subs[login] = sub
	sub.timer = s.afterFunc(s.cfg.InitialDelay, func() { s.tick(login) })
	log.Info().Str("module", "poller").Str("login", string(login)).Str("room", string(room)).Msg("subscribed")
}

// Unsubscribe removes conn from the subscriber set and cancels the poll
// loop once the set is empty. The baseline is retained so a future
// resubscribe does not re-count history.
func (s *Scheduler) Unsubscribe(login domain.Login, conn domain.ConnID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subs[login]
	if !ok {
		return
	}
	delete(sub.conns, conn)
	if len(sub.conns) > 0 {
		return
	}
	if sub.timer != nil {
		sub.timer.Stop()
	}
	delete(s.subs, login)
	log.Info().Str("module", "poller").Str("login", string(login)).Msg("unsubscribed")
}

// Subscribed reports whether a poll loop is running for login.
func (s *Scheduler) Subscribed(login domain.Login) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.subs[login]
	return ok
}

// tick performs one poll. Every outcome ends with re-arming the timer;
// errors are contained here and degrade to "no new activity this cycle".
func (s *Scheduler) tick(login domain.Login) {
	s.mu.Lock()
	sub, ok := s.subs[login]
	if !ok {
		s.mu.Unlock()
		return
	}
	token, room := sub.token, sub.room
	s.mu.Unlock()

	snap, err := s.client.Snapshot(context.Background(), login, token)

	s.mu.Lock()
	cur, ok := s.subs[login]
	if !ok || cur != sub {
		// Unsubscribed (or replaced) while the poll was in flight;
		// discard the result and leave the baseline alone.
		s.mu.Unlock()
		return
	}

	delay := s.cfg.Interval
	var emit *domain.ActivityDelta

	var rl *RateLimitedError
	switch {
	case errors.As(err, &rl):
		delay = s.cfg.RateLimitInterval
		if rl.Reset > 0 {
			delay = rl.Reset
		}
		log.Warn().Str("module", "poller").Str("login", string(login)).Dur("backoff", delay).Msg("rate limited")
	case err != nil:
		log.Warn().Err(err).Str("module", "poller").Str("login", string(login)).Msg("poll failed, skipping cycle")
	default:
		commits, prs, first := s.baselines.Advance(login, snap)
		if !first && (commits > 0 || prs > 0) {
			emit = &domain.ActivityDelta{Login: login, Room: room, Commits: commits, PullRequests: prs}
		}
	}

	sub.timer = s.afterFunc(delay, func() { s.tick(login) })
	s.mu.Unlock()

	if emit != nil {
		s.bus.Publish(hub.Message{
			Name:   TopicActivityDelta,
			Fields: hub.Fields{"delta": *emit},
		})
		log.Debug().Str("module", "poller").Str("login", string(login)).Int("commits", emit.Commits).Int("prs", emit.PullRequests).Msg("delta published")
	}
}
