package presence

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/sermonsmith/collab/session"
)

const (
	defaultSweepInterval      = 60 * time.Second
	defaultParticipantIdleTTL = 10 * time.Minute
)

// SweeperOption is a functional option for configuring a Sweeper.
type SweeperOption func(*Sweeper)

// WithSweepInterval sets how often the sweeper scans the session store.
func WithSweepInterval(interval time.Duration) SweeperOption {
	return func(s *Sweeper) {
		s.interval = interval
	}
}

// WithParticipantIdleTTL sets how long a participant may sit idle before the
// sweeper evicts them. This is the secondary reaper for connections that
// vanished without a disconnect callback firing.
func WithParticipantIdleTTL(ttl time.Duration) SweeperOption {
	return func(s *Sweeper) {
		s.participantIdleTTL = ttl
	}
}

// Sweeper periodically scans all session records, expires stale locks,
// evicts long-idle participants, and removes empty sessions.
type Sweeper struct {
	store              session.Store
	interval           time.Duration
	participantIdleTTL time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSweeper creates a cleanup sweeper over the given store.
func NewSweeper(store session.Store, opts ...SweeperOption) *Sweeper {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Sweeper{
		store:              store,
		interval:           defaultSweepInterval,
		participantIdleTTL: defaultParticipantIdleTTL,
		ctx:                ctx,
		cancel:             cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the sweep loop in a background goroutine.
func (s *Sweeper) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.Sweep(s.ctx)
			}
		}
	}()
}

// Stop shuts the sweeper down and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	s.cancel()
	s.wg.Wait()
}

// Sweep runs one pass over every session record. Write conflicts are left
// for the next pass rather than retried.
func (s *Sweeper) Sweep(ctx context.Context) {
	ids, err := s.store.List(ctx)
	if err != nil {
		glog.Warningf("sweeper: listing sessions: %v", err)
		return
	}

	now := time.Now()
	for _, id := range ids {
		if err := s.sweepOne(ctx, id, now); err != nil {
			glog.Warningf("sweeper: session %s: %v", id, err)
		}
	}
}

func (s *Sweeper) sweepOne(ctx context.Context, id string, now time.Time) error {
	record, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if record == nil {
		return nil
	}

	changed := record.PruneExpiredLocks(now)

	// Secondary reaper: participants whose connection vanished without a
	// disconnect signal stop refreshing LastActive and are evicted here.
	for userID, p := range record.Participants {
		if now.Sub(p.LastActive) > s.participantIdleTTL {
			delete(record.Participants, userID)
			record.ReleaseHeldBy(userID)
			changed = true
			if err := s.store.RemoveUserChannel(ctx, userID, record.ID); err != nil {
				glog.Warningf("sweeper: pruning reverse index for %s: %v", userID, err)
			}
			glog.Infof("sweeper: evicted idle participant %s from %s", userID, record.ID)
		}
	}

	if len(record.Participants) == 0 {
		return s.store.Delete(ctx, record.ID)
	}
	if !changed {
		return nil
	}

	err = s.store.Update(ctx, record)
	if errors.Is(err, session.ErrVersionConflict) || errors.Is(err, session.ErrNotFound) {
		// Someone else wrote meanwhile; the next sweep will catch up.
		return nil
	}
	return err
}
