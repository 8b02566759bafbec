package poller

import (
	"sync"

	"github.com/grovelab/grove/internal/domain"
)

type baseline struct {
	commitsByRepo map[string]int
	pullRequests  int
}

// BaselineStore remembers the last absolute counters seen per login so
// ticks emit increments, never history. Baselines outlive subscriptions:
// a resubscribing identity must not have its old activity re-counted.
type BaselineStore struct {
	mu      sync.Mutex
	byLogin map[domain.Login]*baseline
}

func NewBaselineStore() *BaselineStore {
	return &BaselineStore{byLogin: make(map[domain.Login]*baseline)}
}

// Advance diffs snap against the remembered counters, stores snap as the
// new baseline and returns the per-kind increments. The first call for a
// login only seeds: first is true and both increments are zero, so a
// user's entire history is never counted as new the moment they join.
// Counter decreases (external data corrections) are floored at zero.
func (s *BaselineStore) Advance(login domain.Login, snap *domain.ActivitySnapshot) (commits, pullRequests int, first bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.byLogin[login]
	if !ok {
		s.byLogin[login] = snapshotBaseline(snap)
		return 0, 0, true
	}

	for repo, cur := range snap.CommitsByRepo {
		if d := cur - prev.commitsByRepo[repo]; d > 0 {
			commits += d
		}
	}
	if d := snap.PullRequests - prev.pullRequests; d > 0 {
		pullRequests = d
	}

	s.byLogin[login] = snapshotBaseline(snap)
	return commits, pullRequests, false
}

// Seeded reports whether a baseline exists for login.
func (s *BaselineStore) Seeded(login domain.Login) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.byLogin[login]
	return ok
}

func snapshotBaseline(snap *domain.ActivitySnapshot) *baseline {
	b := &baseline{
		commitsByRepo: make(map[string]int, len(snap.CommitsByRepo)),
		pullRequests:  snap.PullRequests,
	}
	for repo, n := range snap.CommitsByRepo {
		b.commitsByRepo[repo] = n
	}
	return b
}
