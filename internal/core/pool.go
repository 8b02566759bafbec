package core

import (
	"math/rand"

	"github.com/grovelab/grove/internal/domain"
)

// availablePool is the set of rooms with spare capacity. Insert and
// delete-by-value are O(1): delete swaps the victim with the last slot
// and fixes the index map, so allocation never scans the full room set.
type availablePool struct {
	ids   []domain.RoomID
	index map[domain.RoomID]int
}

func newAvailablePool() *availablePool {
	return &availablePool{index: make(map[domain.RoomID]int)}
}

func (p *availablePool) len() int { return len(p.ids) }

func (p *availablePool) contains(id domain.RoomID) bool {
	_, ok := p.index[id]
	return ok
}

func (p *availablePool) add(id domain.RoomID) {
	if _, ok := p.index[id]; ok {
		return
	}
	p.index[id] = len(p.ids)
	p.ids = append(p.ids, id)
}

func (p *availablePool) remove(id domain.RoomID) {
	i, ok := p.index[id]
	if !ok {
		return
	}
	last := len(p.ids) - 1
	moved := p.ids[last]
	p.ids[i] = moved
	p.index[moved] = i
	p.ids = p.ids[:last]
	delete(p.index, id)
}

// random returns a uniformly random member. The pool must be non-empty.
func (p *availablePool) random() domain.RoomID {
	return p.ids[rand.Intn(len(p.ids))]
}
