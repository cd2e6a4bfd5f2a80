// Package resolver decides whether a candidate range can be admitted into a
// resource's availability index. It only reads the index; callers serialize
// access through the resource lock.
package resolver

import (
	"fmt"

	"bookly/internal/reservations/index"
	"bookly/pkg/model"
)

type Policy string

const (
	PolicyReject   Policy = "reject"
	PolicyWaitlist Policy = "waitlist"
)

func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyReject, PolicyWaitlist:
		return Policy(s), nil
	case "":
		return PolicyReject, nil
	}
	return "", fmt.Errorf("unknown conflict policy %q (expected %q or %q)", s, PolicyReject, PolicyWaitlist)
}

type Outcome string

const (
	Admit    Outcome = "admit"
	Reject   Outcome = "reject"
	Waitlist Outcome = "waitlist"
)

type Decision struct {
	Outcome   Outcome
	Conflicts []model.TimeRange
}

func (d Decision) Admitted() bool {
	return d.Outcome == Admit
}

type Resolver struct {
	policy Policy
}

func New(policy Policy) *Resolver {
	if policy == "" {
		policy = PolicyReject
	}
	return &Resolver{policy: policy}
}

func (r *Resolver) Policy() Policy {
	return r.policy
}

// Resolve checks candidate against the index, ignoring the entry of
// excludeID (used when a booking moves within its own slot).
func (r *Resolver) Resolve(ix *index.Index, candidate model.TimeRange, excludeID string) Decision {
	overlaps := ix.QueryOverlapsExcluding(candidate, excludeID)
	if len(overlaps) == 0 {
		return Decision{Outcome: Admit}
	}
	conflicts := make([]model.TimeRange, len(overlaps))
	for i, e := range overlaps {
		conflicts[i] = e.Range
	}
	if r.policy == PolicyWaitlist {
		return Decision{Outcome: Waitlist, Conflicts: conflicts}
	}
	return Decision{Outcome: Reject, Conflicts: conflicts}
}
