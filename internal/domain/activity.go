package domain

// ActivitySnapshot holds the absolute counters reported by the external
// activity feed for one identity.
type ActivitySnapshot struct {
	CommitsByRepo map[string]int
	PullRequests  int
}

// ActivityDelta is the newly observed portion of activity since the
// previously remembered baseline.
type ActivityDelta struct {
	Login        Login
	Room         RoomID
	Commits      int
	PullRequests int
}

func (d ActivityDelta) Zero() bool {
	return d.Commits == 0 && d.PullRequests == 0
}
