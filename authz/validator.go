// Package authz decides whether a caller may read or mutate a record based on
// its owner and visibility.
package authz

import (
	"context"
)

// Visibility controls who may read a record.
type Visibility string

const (
	Public  Visibility = "public"
	Private Visibility = "private"
)

// Operation is the kind of access requested.
type Operation int

const (
	Read Operation = iota
	Write
	Delete
)

func (o Operation) String() string {
	switch o {
	case Read:
		return "read"
	case Write:
		return "write"
	case Delete:
		return "delete"
	default:
		return "unknown"
	}
}

// Reason explains a Decision.
type Reason string

const (
	ReasonOwner     Reason = "owner"
	ReasonPublic    Reason = "public"
	ReasonNotOwner  Reason = "not_owner"
	ReasonPrivate   Reason = "private"
	ReasonMissing   Reason = "missing"
	ReasonAnonymous Reason = "anonymous"
)

// Decision is the outcome of an authorization check. A deny is a value, not
// an error, so callers can map it to their own error kinds.
type Decision struct {
	Allowed bool
	Reason  Reason
}

// Resource is the part of a record that authorization depends on.
type Resource struct {
	OwnerID    string
	Visibility Visibility
}

// Authorize applies the ownership rules: anyone may read a public record,
// only the owner may read a private one, and only the owner may write or
// delete.
func Authorize(callerID string, r Resource, op Operation) Decision {
	owner := callerID != "" && r.OwnerID == callerID

	if op == Read {
		switch {
		case owner:
			return Decision{Allowed: true, Reason: ReasonOwner}
		case r.Visibility == Public:
			return Decision{Allowed: true, Reason: ReasonPublic}
		case callerID == "":
			return Decision{Reason: ReasonAnonymous}
		default:
			return Decision{Reason: ReasonPrivate}
		}
	}

	switch {
	case owner:
		return Decision{Allowed: true, Reason: ReasonOwner}
	case callerID == "":
		return Decision{Reason: ReasonAnonymous}
	default:
		return Decision{Reason: ReasonNotOwner}
	}
}

// ResolveFunc loads the current owner and visibility of a parent record.
// found=false means the parent does not exist.
type ResolveFunc[ID comparable] func(ctx context.Context, id ID) (r Resource, found bool, err error)

// Validator authorizes operations on child records by resolving their
// parent on every call. A copy of the owner stored on the child is never
// consulted.
type Validator[ID comparable] struct {
	resolve ResolveFunc[ID]
}

// NewValidator returns a Validator resolving parents with resolve.
func NewValidator[ID comparable](resolve ResolveFunc[ID]) *Validator[ID] {
	return &Validator[ID]{resolve: resolve}
}

// AuthorizeChild resolves parentID and authorizes op against it. A missing
// parent is denied with ReasonMissing. The error is only set when the parent
// could not be resolved.
func (v *Validator[ID]) AuthorizeChild(ctx context.Context, callerID string, parentID ID, op Operation) (Decision, Resource, error) {
	parent, found, err := v.resolve(ctx, parentID)
	if err != nil {
		return Decision{}, Resource{}, err
	}
	if !found {
		return Decision{Reason: ReasonMissing}, Resource{}, nil
	}
	return Authorize(callerID, parent, op), parent, nil
}
