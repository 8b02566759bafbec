package core

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/grovelab/grove/internal/domain"
)

func TestClaimEvictsPreviousConnection(t *testing.T) {
	g := NewSessionGuard()

	evicted, ok := g.Claim("octocat", "conn-1")
	require.False(t, ok)
	require.Empty(t, evicted)

	evicted, ok = g.Claim("octocat", "conn-2")
	require.True(t, ok)
	require.Equal(t, "conn-1", string(evicted))

	conn, ok := g.ConnOf("octocat")
	require.True(t, ok)
	require.Equal(t, "conn-2", string(conn))
}

func TestClaimSameConnectionIsNoop(t *testing.T) {
	g := NewSessionGuard()
	g.Claim("octocat", "conn-1")

	evicted, ok := g.Claim("octocat", "conn-1")
	require.False(t, ok, "reclaiming with the same connection must not self-evict")
	require.Empty(t, evicted)
}

func TestReleaseOnlyByOwner(t *testing.T) {
	g := NewSessionGuard()
	g.Claim("octocat", "conn-1")
	g.Claim("octocat", "conn-2")

	// The evicted connection disconnecting late must not free the
	// replacement's claim.
	g.Release("octocat", "conn-1")
	conn, ok := g.ConnOf("octocat")
	require.True(t, ok)
	require.Equal(t, "conn-2", string(conn))

	g.Release("octocat", "conn-2")
	_, ok = g.ConnOf("octocat")
	require.False(t, ok)
}

// After any sequence of claims, each login maps to at most one
// connection.
func TestSessionUniqueness(t *testing.T) {
	g := NewSessionGuard()
	evictions := 0
	for _, conn := range []string{"a", "b", "b", "c", "a"} {
		if _, ok := g.Claim("octocat", domain.ConnID(conn)); ok {
			evictions++
		}
	}
	require.Equal(t, 3, evictions, "a->b, b->c, c->a")
	conn, ok := g.ConnOf("octocat")
	require.True(t, ok)
	require.Equal(t, "a", string(conn))
}
