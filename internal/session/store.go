package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agenthands/dsstrack/internal/core/common"
	"github.com/agenthands/dsstrack/internal/core/model"
	"github.com/agenthands/dsstrack/internal/logger"
)

// Persister keeps snapshots outside the process. It is the source of truth
// when configured, so several processes can share sessions.
//
// Save stores snap only if the stored version still equals expected, where 0
// means the session must not exist yet; otherwise it returns
// common.ErrSessionConflict. Load returns common.ErrUnknownSession for a
// missing id and counts as an access for expiry.
type Persister interface {
	Save(ctx context.Context, snap *model.Snapshot, expected int64) error
	Load(ctx context.Context, id string) (*model.Snapshot, error)
	Delete(ctx context.Context, id string) error
}

// IdleReaper is implemented by persisters whose backend has no native expiry.
type IdleReaper interface {
	DeleteIdle(ctx context.Context, before time.Time) (int, error)
}

// maxUpdateAttempts bounds how often Update re-runs after losing a race with
// another writer.
const maxUpdateAttempts = 3

type entry struct {
	mu      sync.RWMutex
	snap    *model.Snapshot
	removed atomic.Bool

	lastAccess time.Time // guarded by Store.mu
}

// Store holds one snapshot per session. Readers of a session share its lock,
// writers hold it exclusively for the whole operation, and different
// sessions never contend. With a persister every operation reads the stored
// snapshot and writes are version checked, so writers in other processes are
// never overwritten.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry

	idleTTL   time.Duration
	persister Persister
	log       *logger.Logger

	// Now is the clock used for idle expiry.
	Now func() time.Time
}

// NewStore creates a store. A zero idleTTL disables expiry and a nil
// persister keeps everything in memory.
func NewStore(idleTTL time.Duration, persister Persister, log *logger.Logger) *Store {
	if log == nil {
		log = logger.Nop()
	}
	return &Store{
		entries:   make(map[string]*entry),
		idleTTL:   idleTTL,
		persister: persister,
		log:       log,
		Now:       time.Now,
	}
}

func (s *Store) Create(ctx context.Context, snap *model.Snapshot) error {
	if snap == nil || snap.ID == "" {
		return errors.New("snapshot requires an id")
	}
	if snap.Version == 0 {
		snap.Version = 1
	}
	if s.persister != nil {
		if err := s.persister.Save(ctx, snap, 0); err != nil {
			return fmt.Errorf("persist session %s: %w", snap.ID, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[snap.ID] = &entry{snap: snap, lastAccess: s.Now()}
	return nil
}

// View runs fn with the current snapshot under the session's read lock.
// fn must not modify the snapshot.
func (s *Store) View(ctx context.Context, id string, fn func(*model.Snapshot) error) error {
	e, err := s.lookup(ctx, id)
	if err != nil {
		return err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	cur, err := s.current(ctx, id, e)
	if err != nil {
		return err
	}
	return fn(cur)
}

// Update runs fn under the session's write lock. The snapshot fn returns
// replaces the current one only when fn and persistence both succeed, so a
// failed update leaves the session as it was.
func (s *Store) Update(ctx context.Context, id string, fn func(*model.Snapshot) (*model.Snapshot, error)) (*model.Snapshot, error) {
	e, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	for attempt := 1; ; attempt++ {
		cur, err := s.current(ctx, id, e)
		if err != nil {
			return nil, err
		}
		next, err := fn(cur)
		if err != nil {
			return nil, err
		}
		if next == nil {
			return cur, nil
		}
		// Deleted while fn ran: do not resurrect it in the persister.
		if e.removed.Load() {
			return nil, fmt.Errorf("%w: %s", common.ErrUnknownSession, id)
		}

		stamped := *next
		stamped.Version = cur.Version + 1
		if s.persister != nil {
			err := s.persister.Save(ctx, &stamped, cur.Version)
			if errors.Is(err, common.ErrSessionConflict) && attempt < maxUpdateAttempts {
				s.log.Info("session changed by another writer, retrying", "session_id", id, "attempt", attempt)
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("persist session %s: %w", id, err)
			}
		}
		e.snap = &stamped
		s.touch(id)
		return e.snap, nil
	}
}

// current returns the snapshot an operation should see. The caller holds
// e.mu, possibly only for reading, so current does not write e.snap.
func (s *Store) current(ctx context.Context, id string, e *entry) (*model.Snapshot, error) {
	if e.removed.Load() {
		return nil, fmt.Errorf("%w: %s", common.ErrUnknownSession, id)
	}
	if s.persister == nil {
		return e.snap, nil
	}

	snap, err := s.persister.Load(ctx, id)
	if errors.Is(err, common.ErrUnknownSession) {
		s.forget(id, e)
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	if snap == nil || snap.ID != id {
		s.forget(id, e)
		return nil, fmt.Errorf("%w: %s", common.ErrUnknownSession, id)
	}
	return snap, nil
}

// forget drops e after the backend reported the session gone.
func (s *Store) forget(id string, e *entry) {
	e.removed.Store(true)
	s.mu.Lock()
	if s.entries[id] == e {
		delete(s.entries, id)
	}
	s.mu.Unlock()
}

// Delete destroys a session. Callers blocked on its lock observe
// common.ErrUnknownSession once they acquire it.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	e, ok := s.entries[id]
	if ok {
		e.removed.Store(true)
		delete(s.entries, id)
	}
	s.mu.Unlock()

	if ok {
		// Wait out an in-flight update so it cannot persist after us.
		e.mu.Lock()
		e.mu.Unlock()
	}

	if s.persister != nil {
		err := s.persister.Delete(ctx, id)
		if err != nil && !(ok && errors.Is(err, common.ErrUnknownSession)) {
			return err
		}
		return nil
	}
	if !ok {
		return fmt.Errorf("%w: %s", common.ErrUnknownSession, id)
	}
	return nil
}

// Len is the number of sessions held in memory.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep drops sessions idle for longer than the TTL from memory and returns
// how many it dropped. Sessions with an operation in flight are skipped.
// Without a persister that destroys them. With one, the backend decides:
// stored sessions stay readable by id until it expires them, and a persister
// that implements IdleReaper is asked to delete what is idle.
func (s *Store) Sweep(ctx context.Context) int {
	if s.idleTTL <= 0 {
		return 0
	}
	cutoff := s.Now().Add(-s.idleTTL)

	dropped := 0
	s.mu.Lock()
	for id, e := range s.entries {
		if e.lastAccess.After(cutoff) {
			continue
		}
		if !e.mu.TryLock() {
			continue
		}
		if s.persister == nil {
			e.removed.Store(true)
		}
		e.mu.Unlock()
		delete(s.entries, id)
		dropped++
	}
	s.mu.Unlock()

	if r, ok := s.persister.(IdleReaper); ok {
		n, err := r.DeleteIdle(ctx, cutoff)
		if err != nil {
			s.log.Warn("failed to delete idle sessions", "error", err)
		} else if n > 0 {
			s.log.Info("deleted idle sessions from backend", "count", n)
		}
	}
	if dropped > 0 {
		s.log.Info("expired idle sessions", "count", dropped)
	}
	return dropped
}

// Run sweeps every interval until ctx is done.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 || s.idleTTL <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

func (s *Store) lookup(ctx context.Context, id string) (*entry, error) {
	s.mu.Lock()
	e, ok := s.entries[id]
	if ok {
		e.lastAccess = s.Now()
	}
	s.mu.Unlock()
	if ok {
		return e, nil
	}

	if s.persister == nil {
		return nil, fmt.Errorf("%w: %s", common.ErrUnknownSession, id)
	}

	// The snapshot itself is loaded under the entry lock by current.
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.entries[id]; ok {
		existing.lastAccess = s.Now()
		return existing, nil
	}
	e = &entry{lastAccess: s.Now()}
	s.entries[id] = e
	s.log.Debug("tracking persisted session", "session_id", id)
	return e, nil
}

func (s *Store) touch(id string) {
	s.mu.Lock()
	if e, ok := s.entries[id]; ok {
		e.lastAccess = s.Now()
	}
	s.mu.Unlock()
}
