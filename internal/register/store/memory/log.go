package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/BrandonDHaskell/Portunus/register/internal/register/store"
	"github.com/BrandonDHaskell/Portunus/register/internal/register/types"
)

// Log is an in-memory append-only event log. Entries are indexed by
// entity (each partition kept in log order, so the latest event is the
// last element) and by time in a single log-ordered timeline.
//
// Update holds the write lock for the whole unit, which serialises every
// read-decide-append sequence.
type Log struct {
	mu  sync.RWMutex
	reg *Registry

	lastID   int64
	byEntity map[types.Ref][]types.LogEntry
	timeline []types.LogEntry
}

func NewLog(reg *Registry) *Log {
	return &Log{
		reg:      reg,
		byEntity: make(map[types.Ref][]types.LogEntry),
	}
}

func (l *Log) Update(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	tx := &memTx{log: l}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for _, e := range tx.staged {
		l.insert(e)
	}
	return nil
}

// insert places e in both indexes; callers hold the write lock.
func (l *Log) insert(e types.LogEntry) {
	ref := e.Entity()
	l.byEntity[ref] = insertOrdered(l.byEntity[ref], e)
	l.timeline = insertOrdered(l.timeline, e)
}

// insertOrdered appends e, shifting it left only when it sorts before the
// current tail. Appends are almost always in order.
func insertOrdered(s []types.LogEntry, e types.LogEntry) []types.LogEntry {
	n := len(s)
	if n == 0 || !e.Before(s[n-1]) {
		return append(s, e)
	}
	i := sort.Search(n, func(i int) bool { return e.Before(s[i]) })
	s = append(s, types.LogEntry{})
	copy(s[i+1:], s[i:])
	s[i] = e
	return s
}

func (l *Log) LastEvent(_ context.Context, ref types.Ref) (types.LogEntry, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.last(ref)
	return e, ok, nil
}

func (l *Log) last(ref types.Ref) (types.LogEntry, bool) {
	p := l.byEntity[ref]
	if len(p) == 0 {
		return types.LogEntry{}, false
	}
	return p[len(p)-1], true
}

func (l *Log) Present(_ context.Context, f store.PresenceFilter) ([]types.LogEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []types.LogEntry
	for ref, p := range l.byEntity {
		if f.Kind != "" && ref.Kind != f.Kind {
			continue
		}
		win := p[len(p)-1]
		if win.Direction != types.DirectionIn {
			continue
		}
		if f.LocationID != nil && win.LocationID != *f.LocationID {
			continue
		}
		out = append(out, win)
	}
	sort.Slice(out, func(i, j int) bool { return out[j].Before(out[i]) })
	return out, nil
}

func (l *Log) PresentCounts(_ context.Context, kind types.Kind) (map[int64]int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	counts := make(map[int64]int)
	for ref, p := range l.byEntity {
		if kind != "" && ref.Kind != kind {
			continue
		}
		if win := p[len(p)-1]; win.Direction == types.DirectionIn {
			counts[win.LocationID]++
		}
	}
	return counts, nil
}

func (l *Log) Events(_ context.Context, f store.EventFilter) ([]types.LogEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	start := 0
	if !f.From.IsZero() {
		start = sort.Search(len(l.timeline), func(i int) bool {
			return !l.timeline[i].Timestamp.Before(f.From)
		})
	}

	var out []types.LogEntry
	for _, e := range l.timeline[start:] {
		if !f.To.IsZero() && !e.Timestamp.Before(f.To) {
			break
		}
		if f.Kind != "" && e.EntityKind != f.Kind {
			continue
		}
		if f.LocationID != nil && e.LocationID != *f.LocationID {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.EntityKind != b.EntityKind {
			return a.EntityKind < b.EntityKind
		}
		if a.EntityID != b.EntityID {
			return a.EntityID < b.EntityID
		}
		return a.Before(b)
	})
	return out, nil
}

// Len returns the number of committed entries. Test-only helper.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.timeline)
}

// memTx runs with the log's write lock held, so it reads the indexes
// directly and never takes l.mu itself.
type memTx struct {
	log    *Log
	staged []types.LogEntry
}

func (t *memTx) Entity(_ context.Context, ref types.Ref) (types.Entity, error) {
	t.log.reg.mu.RLock()
	defer t.log.reg.mu.RUnlock()
	e, ok := t.log.reg.entity(ref)
	if !ok {
		return types.Entity{}, store.ErrNotFound
	}
	return e, nil
}

func (t *memTx) ActiveEmployeeByName(_ context.Context, key string) (types.Entity, error) {
	e, ok := t.log.reg.activeEmployeeByName(key)
	if !ok {
		return types.Entity{}, store.ErrNotFound
	}
	return e, nil
}

func (t *memTx) LastEvent(_ context.Context, ref types.Ref) (types.LogEntry, bool, error) {
	for i := len(t.staged) - 1; i >= 0; i-- {
		if t.staged[i].Entity() == ref {
			return t.staged[i], true, nil
		}
	}
	e, ok := t.log.last(ref)
	return e, ok, nil
}

func (t *memTx) Append(_ context.Context, e types.LogEntry) (types.LogEntry, error) {
	t.log.lastID++
	e.ID = t.log.lastID
	t.staged = append(t.staged, e)
	return e, nil
}
