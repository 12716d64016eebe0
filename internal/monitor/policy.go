// Package monitor owns the mutable monitoring state: which chats are indexed.
//
// One Policy instance is the single ownership boundary for the monitored and
// excluded sets; all mutation goes through its methods, which are safe for
// concurrent use by the event handlers.
package monitor

import (
	"sort"
	"sync"

	"github.com/dmitrijs2005/tgsearcher/internal/chatid"
)

type Policy struct {
	mu         sync.RWMutex
	monitored  map[int64]struct{}
	excluded   map[int64]struct{}
	monitorAll bool
}

// NewPolicy builds a Policy. seed is typically the set of chats that already
// have index records, so a restart never silently stops monitoring existing
// data. All ids are canonicalized on the way in.
func NewPolicy(monitorAll bool, seed []int64, excluded []int64) *Policy {
	p := &Policy{
		monitored:  make(map[int64]struct{}, len(seed)),
		excluded:   make(map[int64]struct{}, len(excluded)),
		monitorAll: monitorAll,
	}
	for _, id := range seed {
		p.monitored[chatid.Canonicalize(id)] = struct{}{}
	}
	for _, id := range excluded {
		p.excluded[chatid.Canonicalize(id)] = struct{}{}
	}
	return p
}

// ShouldMonitor reports whether messages of the given chat are indexed.
// Accepts a raw id; the rule runs on the canonical form.
func (p *Policy) ShouldMonitor(rawID int64) bool {
	id := chatid.Canonicalize(rawID)
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.monitorAll {
		_, ex := p.excluded[id]
		return !ex
	}
	_, ok := p.monitored[id]
	return ok
}

func (p *Policy) Add(rawID int64) {
	id := chatid.Canonicalize(rawID)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.monitored[id] = struct{}{}
}

// Remove is idempotent: removing an absent chat is a no-op.
func (p *Policy) Remove(rawID int64) {
	id := chatid.Canonicalize(rawID)
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.monitored, id)
}

func (p *Policy) Exclude(rawID int64) {
	id := chatid.Canonicalize(rawID)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.excluded[id] = struct{}{}
}

// Clear removes the given chats from the monitored set; with no arguments it
// clears the whole set.
func (p *Policy) Clear(rawIDs ...int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(rawIDs) == 0 {
		p.monitored = make(map[int64]struct{})
		return
	}
	for _, id := range rawIDs {
		delete(p.monitored, chatid.Canonicalize(id))
	}
}

// Monitored returns a sorted snapshot of the monitored set.
func (p *Policy) Monitored() []int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return sortedKeys(p.monitored)
}

// Excluded returns a sorted snapshot of the excluded set.
func (p *Policy) Excluded() []int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return sortedKeys(p.excluded)
}

func (p *Policy) MonitorAll() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.monitorAll
}

func sortedKeys(m map[int64]struct{}) []int64 {
	out := make([]int64, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
