package querycache

import "context"

// Phase is the state of one optimistic mutation.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseOptimistic
	PhaseConfirmed
	PhaseRolledBack
	PhaseReconciled
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseOptimistic:
		return "optimistic-applied"
	case PhaseConfirmed:
		return "confirmed"
	case PhaseRolledBack:
		return "rolled-back"
	case PhaseReconciled:
		return "reconciled"
	default:
		return "unknown"
	}
}

// Mutation is an optimistic update of one cached query backed by a remote
// call. Run goes through
//
//	cancel refetch -> snapshot -> Apply -> Call -> (confirm | restore) -> refetch
//
// and always ends reconciled with the source of truth.
type Mutation[T, I any] struct {
	Key Key

	// Zero is the value assumed when nothing is cached yet. Nil means the
	// zero value of T.
	Zero func() T

	// Apply returns the speculative value. It must not modify current,
	// which is kept as the rollback snapshot.
	Apply func(current T, input I) T

	// Call performs the remote operation.
	Call func(ctx context.Context, input I) error

	// OnError is called after a failed Call has been rolled back.
	OnError func(err error, input I)

	// OnPhase observes phase transitions.
	OnPhase func(Phase)
}

// Run executes the mutation against c and returns the error of Call.
// A failed refetch does not fail the mutation; it is recorded in c.Err.
func (m *Mutation[T, I]) Run(ctx context.Context, c *Cache[T], input I) error {
	m.phase(PhaseIdle)

	var snapshot T
	c.update(m.Key, func(current T, ok bool) T {
		if !ok && m.Zero != nil {
			current = m.Zero()
		}
		snapshot = current
		return m.Apply(current, input)
	})
	m.phase(PhaseOptimistic)

	err := m.Call(ctx, input)
	if err != nil {
		c.Set(m.Key, snapshot)
		m.phase(PhaseRolledBack)
		if m.OnError != nil {
			m.OnError(err, input)
		}
	} else {
		m.phase(PhaseConfirmed)
	}

	// The refetch runs even if the caller's context is done. Its failure
	// is kept in c.Err; a superseded refetch leaves the newer one in charge.
	_ = c.Invalidate(context.WithoutCancel(ctx), m.Key)
	m.phase(PhaseReconciled)
	return err
}

func (m *Mutation[T, I]) phase(p Phase) {
	if m.OnPhase != nil {
		m.OnPhase(p)
	}
}
