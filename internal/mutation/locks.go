package mutation

import (
	"sort"
	"sync"
)

// lockTable hands out one mutex per entity identity, so concurrent batches
// targeting the same (tenant, label, slug) serialize while batches touching
// disjoint entities proceed in parallel. Entries are refcounted and removed
// when the last holder releases, keeping the table bounded by in-flight
// work.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*entityLock
}

type entityLock struct {
	mu   sync.Mutex
	refs int
}

func newLockTable() *lockTable {
	return &lockTable{locks: map[string]*entityLock{}}
}

// acquire locks every id and returns the release function. Ids are locked
// in sorted order so two batches with overlapping id sets cannot deadlock.
func (lt *lockTable) acquire(ids []string) func() {
	sorted := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			sorted = append(sorted, id)
		}
	}
	sort.Strings(sorted)

	held := make([]*entityLock, 0, len(sorted))
	for _, id := range sorted {
		lt.mu.Lock()
		el, ok := lt.locks[id]
		if !ok {
			el = &entityLock{}
			lt.locks[id] = el
		}
		el.refs++
		lt.mu.Unlock()

		el.mu.Lock()
		held = append(held, el)
	}

	releasedIDs := sorted
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].mu.Unlock()
		}
		lt.mu.Lock()
		for _, id := range releasedIDs {
			el := lt.locks[id]
			el.refs--
			if el.refs == 0 {
				delete(lt.locks, id)
			}
		}
		lt.mu.Unlock()
	}
}
