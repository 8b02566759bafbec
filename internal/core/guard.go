package core

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/grovelab/grove/internal/domain"
)

// SessionGuard enforces at most one live connection per login. It holds
// only the login→connection back-reference; presence records stay with
// the registry.
type SessionGuard struct {
	mu      sync.Mutex
	byLogin map[domain.Login]domain.ConnID
}

func NewSessionGuard() *SessionGuard {
	return &SessionGuard{byLogin: make(map[domain.Login]domain.ConnID)}
}

// Claim records conn as the single live connection for login. If another
// connection held the claim it is returned so the caller can evict it
// before join processing continues.
func (g *SessionGuard) Claim(login domain.Login, conn domain.ConnID) (domain.ConnID, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	prev, ok := g.byLogin[login]
	g.byLogin[login] = conn
	if ok && prev != conn {
		log.Info().Str("module", "core.guard").Str("login", string(login)).Str("evicted", string(prev)).Msg("session replaced")
		return prev, true
	}
	return "", false
}

// Release drops the claim, but only if conn still holds it. A stale
// connection disconnecting after its eviction must not free the claim of
// its replacement.
func (g *SessionGuard) Release(login domain.Login, conn domain.ConnID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.byLogin[login] == conn {
		delete(g.byLogin, login)
	}
}

// ConnOf reports the live connection for login, if any.
func (g *SessionGuard) ConnOf(login domain.Login) (domain.ConnID, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	conn, ok := g.byLogin[login]
	return conn, ok
}
