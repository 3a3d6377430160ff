package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang/glog"
)

const (
	// Consecutive transport failures before degrading to memory.
	defaultFailureThreshold = 3
	// Minimum time between primary probes while degraded.
	defaultProbeInterval = 30 * time.Second
)

// FailoverStore wraps a primary store (Redis) with an in-process memory
// fallback. When the primary is unreachable for failureThreshold consecutive
// calls the store degrades to memory-only: presence and locks keep working
// within this process but no longer synchronize across processes. This is a
// deliberate availability-over-consistency trade and is logged as a severity
// escalation, never silently.
type FailoverStore struct {
	primary  Store
	fallback Store

	mu               sync.Mutex
	failures         int
	degraded         bool
	lastProbe        time.Time
	failureThreshold int
	probeInterval    time.Duration
}

// NewFailoverStore wraps primary with an in-memory fallback.
func NewFailoverStore(primary Store) *FailoverStore {
	return &FailoverStore{
		primary:          primary,
		fallback:         NewMemoryStore(),
		failureThreshold: defaultFailureThreshold,
		probeInterval:    defaultProbeInterval,
	}
}

// active returns the store calls should go to, probing the primary while
// degraded at most once per probe interval.
func (s *FailoverStore) active(ctx context.Context) Store {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.degraded {
		return s.primary
	}
	if time.Since(s.lastProbe) < s.probeInterval {
		return s.fallback
	}
	s.lastProbe = time.Now()
	if _, err := s.primary.Get(ctx, "collab:probe"); err == nil {
		glog.Warningf("session store: primary reachable again, leaving degraded mode (in-memory state discarded)")
		s.degraded = false
		s.failures = 0
		s.fallback = NewMemoryStore()
		return s.primary
	}
	return s.fallback
}

// observe tracks the outcome of a primary call and degrades after too many
// consecutive transport failures. Version conflicts, already-exists, and
// not-found results are successful round trips, not failures.
func (s *FailoverStore) observe(err error) {
	if err == nil || errors.Is(err, ErrVersionConflict) || errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrAlreadyExists) {
		s.mu.Lock()
		s.failures = 0
		s.mu.Unlock()
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.degraded {
		return
	}
	s.failures++
	if s.failures >= s.failureThreshold {
		glog.Errorf("session store: primary unreachable after %d attempts, degrading to in-process memory only; cross-process presence and locks are no longer synchronized: %v", s.failures, err)
		s.degraded = true
		s.lastProbe = time.Now()
	}
}

// Degraded reports whether the store is currently running on the fallback.
func (s *FailoverStore) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

// Create implements Store.
func (s *FailoverStore) Create(ctx context.Context, record *Record) error {
	st := s.active(ctx)
	err := st.Create(ctx, record)
	if st == s.primary {
		s.observe(err)
	}
	return err
}

// Get implements Store.
func (s *FailoverStore) Get(ctx context.Context, id string) (*Record, error) {
	st := s.active(ctx)
	record, err := st.Get(ctx, id)
	if st == s.primary {
		s.observe(err)
	}
	return record, err
}

// Update implements Store.
func (s *FailoverStore) Update(ctx context.Context, record *Record) error {
	st := s.active(ctx)
	err := st.Update(ctx, record)
	if st == s.primary {
		s.observe(err)
	}
	return err
}

// Delete implements Store.
func (s *FailoverStore) Delete(ctx context.Context, id string) error {
	st := s.active(ctx)
	err := st.Delete(ctx, id)
	if st == s.primary {
		s.observe(err)
	}
	return err
}

// List implements Store.
func (s *FailoverStore) List(ctx context.Context) ([]string, error) {
	st := s.active(ctx)
	ids, err := st.List(ctx)
	if st == s.primary {
		s.observe(err)
	}
	return ids, err
}

// AddUserChannel implements Store.
func (s *FailoverStore) AddUserChannel(ctx context.Context, userID, channelID string) error {
	st := s.active(ctx)
	err := st.AddUserChannel(ctx, userID, channelID)
	if st == s.primary {
		s.observe(err)
	}
	return err
}

// RemoveUserChannel implements Store.
func (s *FailoverStore) RemoveUserChannel(ctx context.Context, userID, channelID string) error {
	st := s.active(ctx)
	err := st.RemoveUserChannel(ctx, userID, channelID)
	if st == s.primary {
		s.observe(err)
	}
	return err
}

// UserChannels implements Store.
func (s *FailoverStore) UserChannels(ctx context.Context, userID string) ([]string, error) {
	st := s.active(ctx)
	ids, err := st.UserChannels(ctx, userID)
	if st == s.primary {
		s.observe(err)
	}
	return ids, err
}

// Close implements Store.
func (s *FailoverStore) Close() error {
	_ = s.fallback.Close()
	return s.primary.Close()
}

// Compile-time check that FailoverStore implements Store
var _ Store = (*FailoverStore)(nil)
