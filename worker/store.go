package worker

import (
	"sort"
	"sync"
	"time"
)

// Snapshot is one named, point-in-time deep copy of live scene state. State
// holds plain Go values produced by Env.Snapshot; it is never mutated after
// Save, so Load may hand out the stored copy directly.
type Snapshot struct {
	ID      string         `json:"id"`
	State   map[string]any `json:"state"`
	TakenAt time.Time      `json:"taken_at"`
}

// Store is the in-worker registry of named snapshots. It is owned by exactly
// one worker, lives in memory only, and starts empty with every session:
// checkpoints do not survive a worker restart. Re-using an id overwrites the
// previous snapshot (last write wins). No eviction: the number of live keys
// is bounded by the number of edit points in the current scene.
type Store struct {
	mutex     sync.RWMutex
	snapshots map[string]*Snapshot
}

// NewStore creates an empty snapshot store
func NewStore() *Store {
	return &Store{snapshots: map[string]*Snapshot{}}
}

// Save stores a snapshot under its id, replacing any previous entry.
func (s *Store) Save(snapshot *Snapshot) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.snapshots[snapshot.ID] = snapshot
}

// Load returns the snapshot stored under id, if any.
func (s *Store) Load(id string) (*Snapshot, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	snapshot, ok := s.snapshots[id]
	return snapshot, ok
}

// Keys returns all snapshot ids in sorted order.
func (s *Store) Keys() []string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	keys := make([]string, 0, len(s.snapshots))
	for key := range s.snapshots {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of stored snapshots
func (s *Store) Len() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.snapshots)
}
