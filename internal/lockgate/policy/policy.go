// Package policy decides whether a resolved user may enter a zone.
//
// Everything here is pure: callers supply the instant being evaluated, so
// the rules can be exercised without storage, network, or a real clock.
package policy

import (
	"time"

	"github.com/BrandonDHaskell/Portunus/lockgate/internal/lockgate/types"
)

// Result is the outcome of a policy evaluation.  Reason is empty iff
// Authorized is true.
type Result struct {
	Authorized bool
	Reason     string
}

func allow() Result             { return Result{Authorized: true} }
func deny(reason string) Result { return Result{Reason: reason} }

// Evaluate applies the zone rules in order; the first failing check wins.
// A nil zone (device not bound to any zone) imposes no restriction.
func Evaluate(user *types.User, zone *types.Zone, at time.Time) Result {
	if user == nil {
		return deny(types.ReasonUserNotFound)
	}
	if !IsWithinSchedule(zone, at) {
		return deny(types.ReasonOutsideSchedule)
	}
	if !HasRequiredLevel(user, zone) {
		return deny(types.ReasonInsufficientLevel)
	}
	return allow()
}

// IsWithinSchedule reports whether at falls inside the zone's daily window.
// Both bounds are inclusive.  A window whose start is after its end wraps
// midnight.  A zone missing either bound is always open.
func IsWithinSchedule(zone *types.Zone, at time.Time) bool {
	if zone == nil || zone.ScheduleStart == nil || zone.ScheduleEnd == nil {
		return true
	}
	now := types.TimeOfDayOf(at)
	start, end := *zone.ScheduleStart, *zone.ScheduleEnd
	if start <= end {
		return now >= start && now <= end
	}
	return now >= start || now <= end
}

// HasRequiredLevel reports whether the user's access level meets the zone
// minimum.
func HasRequiredLevel(user *types.User, zone *types.Zone) bool {
	if zone == nil {
		return true
	}
	return user.AccessLevel >= zone.MinSecurityLevel
}

// Evaluator binds Evaluate to a clock and timezone.
type Evaluator struct {
	Now      func() time.Time
	Location *time.Location
}

func NewEvaluator(loc *time.Location) *Evaluator {
	if loc == nil {
		loc = time.Local
	}
	return &Evaluator{Now: time.Now, Location: loc}
}

func (e *Evaluator) Evaluate(user *types.User, zone *types.Zone) Result {
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	at := now()
	if e.Location != nil {
		at = at.In(e.Location)
	}
	return Evaluate(user, zone, at)
}
