package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"batchcore/internal/blob"
	"batchcore/pkg/domain"
)

var (
	// ErrSaveBlocked is returned when the editor forms are invalid or pending.
	ErrSaveBlocked = errors.New("core: save blocked by form state")
	// ErrNoAcquisitionLevel is returned for a root node without acquisition level.
	ErrNoAcquisitionLevel = errors.New("core: node has no acquisition level")
)

const (
	opSave = "save"
	opLoad = "load"
)

// Service runs save and load cycles of sampling trees against a persistence
// collaborator. Cycles are serialised; each save works on a clone of the
// caller trees so a failed cycle leaves the input untouched.
type Service struct {
	mu         sync.Mutex
	store      domain.PersistenceCollaborator
	schemas    domain.SchemaProvider
	categories domain.CategoryProvider

	clock   Clock
	logger  Logger
	audit   AuditRecorder
	metrics MetricsRecorder
	tracer  Tracer
	archive blob.Store
	pivot   PivotOptions
}

// NewService wires a service. The category provider may be nil when no save
// request asks for a pivot.
func NewService(store domain.PersistenceCollaborator, schemas domain.SchemaProvider, categories domain.CategoryProvider, opts ...ServiceOption) *Service {
	o := defaultServiceOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return &Service{
		store:      store,
		schemas:    schemas,
		categories: categories,
		clock:      o.clock,
		logger:     o.logger,
		audit:      o.audit,
		metrics:    o.metrics,
		tracer:     o.tracer,
		archive:    o.archive,
		pivot:      o.pivot,
	}
}

// SaveRequest describes one save cycle.
type SaveRequest struct {
	Program string
	Roots   []*domain.Node
	// Pivot re-splits every root over the program categorical dimension.
	Pivot bool
	// Forms gates the cycle when set.
	Forms *CompositeValidity
	// Equal overrides StructuralEqual during reconciliation.
	Equal EqualFunc
}

// LevelReport is the reconciliation outcome of one level in one generation.
type LevelReport struct {
	Depth int
	Level string
	ReconcileReport
}

// SaveResult carries the persisted trees of a save cycle.
type SaveResult struct {
	CycleID  string
	Roots    []*domain.Node
	Reports  []LevelReport
	Dropped  []*domain.Node
	Archived []string
	Deleted  []domain.NodeID
}

// Save persists the trees of req and returns them with identifiers assigned,
// in edit phase.
func (s *Service) Save(ctx context.Context, req SaveRequest) (res SaveResult, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := s.clock.Now()
	ctx, span := s.tracer.Start(ctx, opSave)
	res.CycleID = uuid.NewString()
	defer func() {
		span.End(err)
		s.finish(ctx, opSave, req.Program, res, start, err)
	}()

	if req.Forms != nil && !req.Forms.CanSave() {
		return res, ErrSaveBlocked
	}

	roots := make([]*domain.Node, 0, len(req.Roots))
	for _, r := range req.Roots {
		roots = append(roots, r.Clone())
	}
	cache := make(map[string]*domain.Schema)
	if err = s.bindTrees(ctx, req.Program, roots, cache); err != nil {
		return res, err
	}

	if req.Pivot {
		if err = s.pivotRoots(ctx, req.Program, roots, &res); err != nil {
			return res, err
		}
		if err = s.bindTrees(ctx, req.Program, roots, cache); err != nil {
			return res, err
		}
	}

	for _, r := range roots {
		PruneEmptySamplingChildren(r)
		var werr error
		r.Walk(func(n *domain.Node) bool {
			if werr = WeightResolverFor(n.Measurements.Schema()).ToStoragePhase(n); werr != nil {
				werr = fmt.Errorf("store weight of %q: %w", n.Label, werr)
				return false
			}
			return true
		})
		if werr != nil {
			return res, werr
		}
	}

	if err = s.persist(ctx, roots, req.Equal, &res); err != nil {
		return res, err
	}

	if roots, err = Rebuild(roots, nil); err != nil {
		return res, err
	}
	for _, r := range roots {
		var terr error
		r.Walk(func(n *domain.Node) bool {
			if n.State != domain.StateReconciled {
				if terr = n.Transition(domain.StateReconciled); terr != nil {
					return false
				}
			}
			terr = n.Transition(domain.StatePersisted)
			return terr == nil
		})
		if terr != nil {
			return res, terr
		}
		toEditPhase(r)
	}
	res.Roots = roots
	return res, nil
}

// PivotPreview is the outcome of Service.Pivot.
type PivotPreview struct {
	Roots   []*domain.Node
	Results []PivotResult
}

// Pivot binds clones of roots and splits each over the program categorical
// dimension without persisting anything.
func (s *Service) Pivot(ctx context.Context, program string, roots []*domain.Node) (PivotPreview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.categories == nil {
		return PivotPreview{}, fmt.Errorf("core: pivot requested without category provider")
	}
	out := PivotPreview{Roots: make([]*domain.Node, 0, len(roots))}
	for _, r := range roots {
		out.Roots = append(out.Roots, r.Clone())
	}
	cache := make(map[string]*domain.Schema)
	if err := s.bindTrees(ctx, program, out.Roots, cache); err != nil {
		return PivotPreview{}, err
	}
	dimension, err := s.categories.Categories(ctx, program)
	if err != nil {
		return PivotPreview{}, fmt.Errorf("load categories: %w", err)
	}
	for _, r := range out.Roots {
		pr, err := Pivot(r, dimension, s.pivot)
		if err != nil {
			return PivotPreview{}, fmt.Errorf("pivot %q: %w", r.Label, err)
		}
		out.Results = append(out.Results, pr)
	}
	if err := s.bindTrees(ctx, program, out.Roots, cache); err != nil {
		return PivotPreview{}, err
	}
	return out, nil
}

func (s *Service) pivotRoots(ctx context.Context, program string, roots []*domain.Node, res *SaveResult) error {
	if s.categories == nil {
		return fmt.Errorf("core: pivot requested without category provider")
	}
	dimension, err := s.categories.Categories(ctx, program)
	if err != nil {
		return fmt.Errorf("load categories: %w", err)
	}
	for _, r := range roots {
		pr, err := Pivot(r, dimension, s.pivot)
		if err != nil {
			return fmt.Errorf("pivot %q: %w", r.Label, err)
		}
		if len(pr.Dropped) == 0 {
			continue
		}
		s.logger.Warn("pivot dropped children", "cycle", res.CycleID, "node", r.Label, "count", len(pr.Dropped))
		res.Dropped = append(res.Dropped, pr.Dropped...)
		keys, err := s.archiveDropped(ctx, program, res.CycleID, r, pr.Dropped)
		if err != nil {
			return err
		}
		res.Archived = append(res.Archived, keys...)
	}
	return nil
}

type archivedNode struct {
	CycleID  string        `json:"cycle_id"`
	Program  string        `json:"program,omitempty"`
	Parent   string        `json:"parent"`
	ParentID domain.NodeID `json:"parent_id,omitempty"`
	Node     *domain.Node  `json:"node"`
}

func (s *Service) archiveDropped(ctx context.Context, program, cycle string, parent *domain.Node, dropped []*domain.Node) ([]string, error) {
	if s.archive == nil {
		return nil, nil
	}
	keys := make([]string, 0, len(dropped))
	for _, n := range dropped {
		payload, err := json.Marshal(archivedNode{
			CycleID:  cycle,
			Program:  program,
			Parent:   parent.Label,
			ParentID: parent.ID,
			Node:     n,
		})
		if err != nil {
			return keys, fmt.Errorf("encode dropped %q: %w", n.Label, err)
		}
		key := blob.ArchiveKey(cycle, uuid.NewString())
		if _, err := s.archive.Put(ctx, key, bytes.NewReader(payload), blob.PutOptions{
			ContentType: "application/json",
			Metadata:    map[string]string{"label": n.Label, "parent": parent.Label},
		}); err != nil {
			return keys, fmt.Errorf("archive dropped %q: %w", n.Label, err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// persist reconciles and saves the trees generation by generation, so that
// parent identifiers are known before their children are written. Stored
// nodes left unclaimed in a generation are deleted with their descendants.
func (s *Service) persist(ctx context.Context, roots []*domain.Node, eq EqualFunc, res *SaveResult) error {
	var rootIDs []domain.NodeID
	for _, r := range roots {
		if r.ID.IsPersisted() {
			rootIDs = append(rootIDs, r.ID)
		}
	}
	gen := roots
	filter := domain.LoadFilter{IDs: rootIDs}
	for depth := 0; ; depth++ {
		var existing []*domain.Node
		if len(filter.IDs) > 0 || len(filter.ParentIDs) > 0 {
			loaded, err := s.store.Load(ctx, "", filter)
			if err != nil {
				return fmt.Errorf("load existing: %w", err)
			}
			existing = loaded
		}

		claimed := make(map[domain.NodeID]bool)
		var matched []domain.NodeID
		for _, level := range levelsOf(gen) {
			group := FilterByLevel(gen, level)
			report := Reconcile(group, FilterByLevel(existing, level), eq)
			for _, a := range report.Ambiguous {
				s.logger.Warn("ambiguous match", "cycle", res.CycleID, "error", a.Error())
			}
			for _, n := range report.Matched {
				matched = append(matched, n.ID)
			}
			records := make([]*domain.Node, len(group))
			for i, n := range group {
				records[i] = n.Detached()
			}
			saved, err := s.store.Save(ctx, level, records)
			if err != nil {
				return fmt.Errorf("save level %s: %w", level, err)
			}
			if len(saved) != len(group) {
				return fmt.Errorf("save level %s: expected %d records, got %d", level, len(group), len(saved))
			}
			for i, n := range group {
				n.ID = saved[i].ID
				n.UpdatedAt = saved[i].UpdatedAt
				claimed[n.ID] = true
				for _, c := range n.Children {
					c.ParentID = n.ID
				}
			}
			res.Reports = append(res.Reports, LevelReport{Depth: depth, Level: level, ReconcileReport: report})
			if obs, ok := s.metrics.(reconcileObserver); ok {
				obs.ObserveReconcile(level, report)
			}
		}

		var stale []domain.NodeID
		for _, e := range existing {
			if !claimed[e.ID] {
				stale = append(stale, e.ID)
			}
		}
		if len(stale) > 0 {
			if err := s.store.Delete(ctx, "", stale); err != nil {
				return fmt.Errorf("delete stale: %w", err)
			}
			res.Deleted = append(res.Deleted, stale...)
		}

		if len(gen) == 0 {
			return nil
		}
		var next []*domain.Node
		for _, n := range gen {
			next = append(next, n.Children...)
		}
		// Only matched parents can have stored children.
		gen = next
		filter = domain.LoadFilter{ParentIDs: matched}
	}
}

func levelsOf(nodes []*domain.Node) []string {
	seen := make(map[string]bool)
	var levels []string
	for _, n := range nodes {
		if !seen[n.AcquisitionLevel] {
			seen[n.AcquisitionLevel] = true
			levels = append(levels, n.AcquisitionLevel)
		}
	}
	return levels
}

// LoadRequest selects stored trees by root id. Without ids every top-level
// record of Level is loaded.
type LoadRequest struct {
	Program string
	Level   string
	IDs     []domain.NodeID
}

// Load reads the selected roots and all their descendants, binds schemas and
// returns the trees in edit phase.
func (s *Service) Load(ctx context.Context, req LoadRequest) (roots []*domain.Node, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := s.clock.Now()
	ctx, span := s.tracer.Start(ctx, opLoad)
	defer func() {
		span.End(err)
		s.finish(ctx, opLoad, req.Program, SaveResult{Roots: roots}, start, err)
	}()

	roots, err = s.store.Load(ctx, req.Level, domain.LoadFilter{IDs: req.IDs})
	if err != nil {
		return nil, fmt.Errorf("load roots: %w", err)
	}
	if len(req.IDs) == 0 {
		// Without explicit ids only top-level records count as roots.
		kept := roots[:0]
		for _, r := range roots {
			if !r.ParentID.IsPersisted() {
				kept = append(kept, r)
			}
		}
		roots = kept
	}
	var pool []*domain.Node
	frontier := make([]domain.NodeID, 0, len(roots))
	for _, r := range roots {
		frontier = append(frontier, r.ID)
	}
	for len(frontier) > 0 {
		kids, err := s.store.Load(ctx, "", domain.LoadFilter{ParentIDs: frontier})
		if err != nil {
			return nil, fmt.Errorf("load children: %w", err)
		}
		frontier = frontier[:0]
		for _, k := range kids {
			frontier = append(frontier, k.ID)
		}
		pool = append(pool, kids...)
	}
	if roots, err = Rebuild(roots, pool); err != nil {
		return nil, err
	}
	if err = s.bindTrees(ctx, req.Program, roots, make(map[string]*domain.Schema)); err != nil {
		return nil, err
	}
	for _, r := range roots {
		toEditPhase(r)
	}
	return roots, nil
}

// toEditPhase lifts stored weights into the Weight field, bottom-up, and
// derives calculated weights for nodes whose children are all weighed.
func toEditPhase(root *domain.Node) {
	for _, c := range root.Children {
		toEditPhase(c)
	}
	r := WeightResolverFor(root.Measurements.Schema())
	r.ToEditPhase(root)
	if root.Weight == nil {
		root.Weight = r.SumChildren(root)
	}
}

func (s *Service) bindTrees(ctx context.Context, program string, roots []*domain.Node, cache map[string]*domain.Schema) error {
	for _, r := range roots {
		var err error
		r.Walk(func(n *domain.Node) bool {
			if n.AcquisitionLevel == "" {
				p := n.Parent()
				if p == nil {
					err = fmt.Errorf("%w: %q", ErrNoAcquisitionLevel, n.Label)
					return false
				}
				n.AcquisitionLevel = p.AcquisitionLevel
			}
			schema, serr := s.schemaFor(ctx, program, n.AcquisitionLevel, cache)
			if serr != nil {
				err = serr
				return false
			}
			if schema == nil {
				if !n.Bound() {
					err = fmt.Errorf("bind %q: %w", n.Label, domain.ErrUnboundSchema)
					return false
				}
				return true
			}
			if n.Measurements.Schema() == schema {
				return true
			}
			if berr := n.Bind(schema); berr != nil {
				err = fmt.Errorf("bind %q: %w", n.Label, berr)
				return false
			}
			return true
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) schemaFor(ctx context.Context, program, level string, cache map[string]*domain.Schema) (*domain.Schema, error) {
	if s.schemas == nil {
		return nil, nil
	}
	if schema, ok := cache[level]; ok {
		return schema, nil
	}
	defs, err := s.schemas.ParametersFor(ctx, level, program)
	if err != nil {
		return nil, fmt.Errorf("parameters for %s: %w", level, err)
	}
	schema, err := domain.NewSchema(defs...)
	if err != nil {
		return nil, fmt.Errorf("schema for %s: %w", level, err)
	}
	cache[level] = schema
	return schema, nil
}

func (s *Service) finish(ctx context.Context, op, program string, res SaveResult, start time.Time, err error) {
	duration := s.clock.Now().Sub(start)
	s.metrics.Observe(ctx, op, err == nil, duration)

	entry := AuditEntry{
		Operation: op,
		CycleID:   res.CycleID,
		Program:   program,
		Status:    AuditStatusSuccess,
		Deleted:   len(res.Deleted),
		Duration:  duration,
		Timestamp: s.clock.Now(),
	}
	for _, r := range res.Reports {
		entry.Created += len(r.Created)
		entry.Matched += len(r.Matched)
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
		s.logger.Error("cycle failed", "operation", op, "cycle", res.CycleID, "error", err)
	} else {
		s.logger.Info("cycle complete", "operation", op, "cycle", res.CycleID, "roots", len(res.Roots),
			"created", entry.Created, "matched", entry.Matched, "deleted", entry.Deleted)
	}
	s.audit.Record(ctx, entry)
}
