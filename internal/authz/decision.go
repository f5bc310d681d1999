package authz

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthenticated is returned when no authenticated identity was resolved
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrInsufficientPrivilege is returned when the identity's role fails the policy
	ErrInsufficientPrivilege = errors.New("insufficient privilege")

	// ErrMisconfiguredPolicy is returned when an operation carries no valid policy
	ErrMisconfiguredPolicy = errors.New("misconfigured policy")
)

// DenyKind classifies a Deny decision.
type DenyKind int

const (
	// DenyMisconfiguredPolicy is first so that the zero Decision fails closed
	DenyMisconfiguredPolicy DenyKind = iota
	DenyUnauthenticated
	DenyInsufficientPrivilege
)

// String returns the label used in logs and metrics.
func (k DenyKind) String() string {
	switch k {
	case DenyUnauthenticated:
		return "unauthenticated"
	case DenyInsufficientPrivilege:
		return "insufficient_privilege"
	default:
		return "misconfigured_policy"
	}
}

func (k DenyKind) sentinel() error {
	switch k {
	case DenyUnauthenticated:
		return ErrUnauthenticated
	case DenyInsufficientPrivilege:
		return ErrInsufficientPrivilege
	default:
		return ErrMisconfiguredPolicy
	}
}

// Deny reasons.
const (
	ReasonUnauthenticated  = "unauthenticated"
	ReasonAdminRequired    = "insufficient privilege: admin required"
	ReasonNoRecognizedRole = "no recognized role"
	ReasonMisconfigured    = "misconfigured policy"
)

// Decision is the outcome of a guard evaluation: Allow, or Deny with a kind
// and reason. The zero value is a Deny(MisconfiguredPolicy).
type Decision struct {
	allowed bool
	kind    DenyKind
	reason  string
}

// Allow returns an allowing decision.
func Allow() Decision {
	return Decision{allowed: true}
}

// Deny returns a denying decision.
func Deny(kind DenyKind, reason string) Decision {
	return Decision{kind: kind, reason: reason}
}

// Allowed reports whether the operation may proceed.
func (d Decision) Allowed() bool { return d.allowed }

// Kind returns the deny classification. It is meaningless on an Allow.
func (d Decision) Kind() DenyKind { return d.kind }

// Reason returns the human-readable deny reason, empty on Allow.
func (d Decision) Reason() string {
	if d.allowed {
		return ""
	}
	if d.reason == "" {
		return ReasonMisconfigured
	}
	return d.reason
}

// String renders the decision for logs.
func (d Decision) String() string {
	if d.allowed {
		return "allow"
	}
	return fmt.Sprintf("deny(%s): %s", d.kind, d.Reason())
}

// Err returns nil on Allow and a *DenyError on Deny.
func (d Decision) Err() error {
	if d.allowed {
		return nil
	}
	return &DenyError{Kind: d.kind, Reason: d.Reason()}
}

// DenyError carries a Deny decision through error returns. It unwraps to one
// of ErrUnauthenticated, ErrInsufficientPrivilege or ErrMisconfiguredPolicy.
type DenyError struct {
	Kind   DenyKind
	Reason string
}

// Error implements the error interface
func (e *DenyError) Error() string {
	return e.Reason
}

// Unwrap implements errors.Unwrap
func (e *DenyError) Unwrap() error {
	return e.Kind.sentinel()
}
