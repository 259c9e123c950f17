// Package memory provides an in-memory node store used for tests and
// ephemeral environments. The sqlite and postgres stores snapshot its state.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"batchcore/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistenceCollaborator = (*Store)(nil)

// Snapshot is the serialisable state of a Store.
type Snapshot struct {
	Nodes  []*domain.Node `json:"nodes"`
	NextID domain.NodeID  `json:"next_id"`
}

// Store keeps flat node records keyed by id.
type Store struct {
	mu     sync.RWMutex
	nodes  map[domain.NodeID]*domain.Node
	nextID domain.NodeID
	nowFn  func() time.Time
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		nodes:  make(map[domain.NodeID]*domain.Node),
		nextID: 1,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// NowFunc returns the time provider used to stamp saved records.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// SetNowFunc overrides the time provider. Nil restores the default.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn == nil {
		fn = func() time.Time { return time.Now().UTC() }
	}
	s.nowFn = fn
}

// Save stores detached copies of nodes. Nodes without a persisted id receive
// the next sequence value; nodes with one replace the stored record. A
// non-empty level overrides the acquisition level of every record. Records
// carry no lifecycle state.
func (s *Store) Save(ctx context.Context, level string, nodes []*domain.Node) ([]*domain.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.nowFn()
	out := make([]*domain.Node, 0, len(nodes))
	for _, n := range nodes {
		if n == nil {
			return nil, fmt.Errorf("memory store: nil node")
		}
		rec := n.Detached()
		rec.State = domain.StateUnbound
		if level != "" {
			rec.AcquisitionLevel = level
		}
		if !rec.ID.IsPersisted() {
			rec.ID = s.nextID
		}
		if rec.ID >= s.nextID {
			s.nextID = rec.ID + 1
		}
		rec.UpdatedAt = now
		s.nodes[rec.ID] = rec
		out = append(out, rec.Detached())
	}
	return out, nil
}

// Load returns records matching level and filter ordered by parent, rank and id.
func (s *Store) Load(ctx context.Context, level string, filter domain.LoadFilter) ([]*domain.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Select(s.list(), level, filter), nil
}

// Delete removes the records and all their descendants.
func (s *Store) Delete(ctx context.Context, level string, ids []domain.NodeID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var queue []domain.NodeID
	for _, id := range ids {
		if rec, ok := s.nodes[id]; ok && (level == "" || rec.AcquisitionLevel == level) {
			queue = append(queue, id)
		}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if _, ok := s.nodes[id]; !ok {
			continue
		}
		delete(s.nodes, id)
		for cid, rec := range s.nodes {
			if rec.ParentID == id {
				queue = append(queue, cid)
			}
		}
	}
	return nil
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

// ExportState returns a deep copy of the store contents.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{Nodes: s.list(), NextID: s.nextID}
}

// ImportState replaces the store contents with snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes = make(map[domain.NodeID]*domain.Node, len(snapshot.Nodes))
	s.nextID = 1
	for _, n := range snapshot.Nodes {
		if n == nil || !n.ID.IsPersisted() {
			continue
		}
		s.nodes[n.ID] = n.Detached()
		if n.ID >= s.nextID {
			s.nextID = n.ID + 1
		}
	}
	if snapshot.NextID > s.nextID {
		s.nextID = snapshot.NextID
	}
}

func (s *Store) list() []*domain.Node {
	out := make([]*domain.Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		out = append(out, n.Detached())
	}
	sortRecords(out)
	return out
}

// Select filters records by level and filter, keeping their order.
func Select(records []*domain.Node, level string, filter domain.LoadFilter) []*domain.Node {
	ids := idSet(filter.IDs)
	parents := idSet(filter.ParentIDs)
	var out []*domain.Node
	for _, n := range records {
		if level != "" && n.AcquisitionLevel != level {
			continue
		}
		if ids != nil && !ids[n.ID] {
			continue
		}
		if parents != nil && !parents[n.ParentID] {
			continue
		}
		out = append(out, n)
	}
	return out
}

func idSet(ids []domain.NodeID) map[domain.NodeID]bool {
	if len(ids) == 0 {
		return nil
	}
	set := make(map[domain.NodeID]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func sortRecords(nodes []*domain.Node) {
	sort.Slice(nodes, func(i, j int) bool {
		a, b := nodes[i], nodes[j]
		if a.ParentID != b.ParentID {
			return a.ParentID < b.ParentID
		}
		if a.RankOrder != b.RankOrder {
			return a.RankOrder < b.RankOrder
		}
		return a.ID < b.ID
	})
}
