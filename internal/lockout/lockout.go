// Package lockout is the consecutive-failure lockout state machine.
//
// It is pure: callers load a Record from the user store, ask the Policy for
// the next Record, and persist it themselves.
package lockout

import "time"

// State is the lockout state of an account.
type State uint8

const (
	Normal State = iota
	Locked
)

func (s State) String() string {
	if s == Locked {
		return "LOCKED"
	}
	return "NORMAL"
}

// Outcome describes what a failed attempt did to the record.
type Outcome uint8

const (
	// Counted means the failure was recorded and the account stays usable.
	Counted Outcome = iota
	// LockedOut means this failure reached the limit and locked the account.
	LockedOut
)

// Record is the persisted lockout slice of a user.
type Record struct {
	FailCount int
	Locked    bool
	LockedAt  time.Time
}

// Policy holds the configured limit and lock duration.
type Policy struct {
	Limit    int
	Duration time.Duration
}

// State evaluates r at now. A lock with no timestamp never expires on its own.
func (p Policy) State(r Record, now time.Time) State {
	if !r.Locked {
		return Normal
	}
	if r.LockedAt.IsZero() {
		return Locked
	}
	if now.Before(p.ExpiresAt(r)) {
		return Locked
	}
	return Normal
}

// ExpiresAt returns when the lock on r lifts, or the zero time if r carries
// no lock timestamp.
func (p Policy) ExpiresAt(r Record) time.Time {
	if r.LockedAt.IsZero() {
		return time.Time{}
	}
	return r.LockedAt.Add(p.Duration)
}

// Failure returns the record after one failed password check at now.
//
// An expired lock is cleared before counting, so the attempt that follows a
// lapsed lock counts as the first failure. Failure must not be called on a
// record whose lock is still active.
func (p Policy) Failure(r Record, now time.Time) (Record, Outcome) {
	if r.Locked && p.State(r, now) == Normal {
		r = Record{}
	}
	next := r.FailCount + 1
	if next >= p.Limit {
		return Record{FailCount: p.Limit, Locked: true, LockedAt: now}, LockedOut
	}
	return Record{FailCount: next}, Counted
}

// Success returns the record after a successful login.
func (p Policy) Success(Record) Record {
	return Record{}
}

// Dirty reports whether a successful login needs to persist a change to r.
func Dirty(r Record) bool {
	return r.FailCount != 0 || r.Locked || !r.LockedAt.IsZero()
}
