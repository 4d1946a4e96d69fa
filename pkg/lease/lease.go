package lease

import (
	"errors"
	"fmt"
	"time"

	"github.com/cuemby/aof/pkg/events"
	"github.com/cuemby/aof/pkg/store"
	"github.com/cuemby/aof/pkg/types"
)

// Lease-layer error kinds.
var (
	// ErrLeaseHeld reports an acquire attempt on a task whose lease is
	// still live.
	ErrLeaseHeld = errors.New("lease held")

	// ErrWrongHolder reports an operation by an agent that does not hold
	// the lease.
	ErrWrongHolder = errors.New("wrong lease holder")

	// ErrRenewalsExhausted reports a renew past the renewal cap.
	ErrRenewalsExhausted = errors.New("renewals exhausted")
)

// Defaults applied when the caller passes zero values.
const (
	DefaultTTL         = 30 * time.Minute
	DefaultMaxRenewals = 8
)

// Manager hands out single-owner, time-bounded claims on tasks. The lease
// lives on the task record, so acquire-plus-transition is one atomic write.
//
// On shared filesystems two concurrent acquires can both appear to succeed
// at the rename step; the persisted record names exactly one holder, and
// later operations by the loser fail with ErrWrongHolder.
type Manager struct {
	store  *store.Store
	logger *events.Logger

	ttl         time.Duration
	maxRenewals int
}

// Option adjusts manager defaults.
type Option func(*Manager)

// WithTTL sets the default lease duration.
func WithTTL(d time.Duration) Option {
	return func(m *Manager) { m.ttl = d }
}

// WithMaxRenewals caps how often one holder may renew.
func WithMaxRenewals(n int) Option {
	return func(m *Manager) { m.maxRenewals = n }
}

// NewManager creates a lease manager over the store.
func NewManager(s *store.Store, logger *events.Logger, opts ...Option) *Manager {
	m := &Manager{
		store:       s,
		logger:      logger,
		ttl:         DefaultTTL,
		maxRenewals: DefaultMaxRenewals,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Acquire claims the task for the agent and moves it to in-progress in one
// atomic write. It succeeds only when the task is ready, or when it is
// in-progress with an expired lease (takeover).
func (m *Manager) Acquire(id, agent string, ttl time.Duration) (*types.Task, error) {
	if ttl <= 0 {
		ttl = m.ttl
	}
	t, err := m.store.Get(id)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	newLease := &types.Lease{
		Agent:      agent,
		AcquiredAt: now,
		ExpiresAt:  now.Add(ttl),
		RenewCount: 0,
	}

	switch {
	case t.Status == types.StatusReady:
		return m.store.Transition(id, types.StatusInProgress, &store.TransitionOpts{
			Actor:  agent,
			Mutate: func(tk *types.Task) { tk.Lease = newLease },
		})
	case t.Status == types.StatusInProgress && t.Lease.Expired(now):
		return m.store.Update(id, func(tk *types.Task) error {
			tk.Lease = newLease
			return nil
		})
	case t.Status == types.StatusInProgress:
		return nil, fmt.Errorf("%w: %s held by %s until %s", ErrLeaseHeld, id, t.Lease.Agent,
			t.Lease.ExpiresAt.Format(time.RFC3339))
	default:
		return nil, store.InvalidTransitionError(id, t.Status, types.StatusInProgress)
	}
}

// Renew extends the holder's lease by ttl from now and bumps the renewal
// count. Fails with ErrWrongHolder for anyone but the holder, and with
// ErrRenewalsExhausted past the renewal cap.
func (m *Manager) Renew(id, agent string, ttl time.Duration) (*types.Task, error) {
	if ttl <= 0 {
		ttl = m.ttl
	}
	return m.store.Update(id, func(tk *types.Task) error {
		if err := m.checkHolder(tk, agent); err != nil {
			return err
		}
		if tk.Lease.RenewCount >= m.maxRenewals {
			return fmt.Errorf("%w: %s already renewed %d times", ErrRenewalsExhausted, id, tk.Lease.RenewCount)
		}
		tk.Lease.ExpiresAt = time.Now().UTC().Add(ttl)
		tk.Lease.RenewCount++
		return nil
	})
}

// Release clears the holder's lease and returns the task to ready.
func (m *Manager) Release(id, agent string) (*types.Task, error) {
	t, err := m.store.Get(id)
	if err != nil {
		return nil, err
	}
	if err := m.checkHolder(t, agent); err != nil {
		return nil, err
	}
	return m.store.Transition(id, types.StatusReady, &store.TransitionOpts{
		Actor:  agent,
		Reason: "released",
		Mutate: func(tk *types.Task) { tk.Lease = nil },
	})
}

// Reclaim expires one task's lease: the lease is cleared, the previous
// holder recorded, and the task returned to ready. Emits lease.expired.
func (m *Manager) Reclaim(id string) (*types.Task, error) {
	t, err := m.store.Get(id)
	if err != nil {
		return nil, err
	}
	if t.Lease == nil {
		return t, nil
	}
	holder := t.Lease.Agent
	updated, err := m.store.Transition(id, types.StatusReady, &store.TransitionOpts{
		Actor:  "scheduler",
		Reason: "lease_expired",
		Mutate: func(tk *types.Task) { tk.Lease = nil },
	})
	if err != nil {
		return nil, err
	}
	if m.logger != nil {
		m.logger.Emit(types.EventLeaseExpired, "scheduler", id, map[string]any{
			"agent": holder,
		})
	}
	return updated, nil
}

// Expired returns the subset of tasks whose lease has passed expiry at now.
func Expired(tasks []*types.Task, now time.Time) []*types.Task {
	var out []*types.Task
	for _, t := range tasks {
		if t.Status == types.StatusInProgress && t.Lease.Expired(now) {
			out = append(out, t)
		}
	}
	return out
}

func (m *Manager) checkHolder(t *types.Task, agent string) error {
	if t.Lease == nil {
		return fmt.Errorf("%w: %s has no lease", ErrWrongHolder, t.ID)
	}
	if t.Lease.Agent != agent {
		return fmt.Errorf("%w: %s held by %s, not %s", ErrWrongHolder, t.ID, t.Lease.Agent, agent)
	}
	return nil
}
