// Package faults defines the cross-cutting error taxonomy of the
// governed-execution core.
//
// Validation and policy failures are expected outcomes: callers at the
// boundary recover them into structured denial responses. Only
// programming-contract violations (an illegal state transition, a nil
// argument) surface as hard errors.
package faults

import (
	"errors"
	"fmt"
)

// Kind categorizes a governance fault.
type Kind string

const (
	KindCapability Kind = "CAPABILITY"
	KindPrivilege  Kind = "PRIVILEGE"
	KindPolicy     Kind = "POLICY"
	KindSandbox    Kind = "SANDBOX"
	KindVerify     Kind = "VERIFY"
	KindRateLimit  Kind = "RATE_LIMIT"
	KindCancelled  Kind = "CANCELLED"
)

// Error is a categorized governance fault.
type Error struct {
	Kind    Kind
	Message string
	Wrapped error
}

func (e *Error) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Wrapped }

// Is matches two faults by kind so sentinel checks work across wrapping.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// Sentinels for errors.Is checks. Construct concrete faults with the
// constructors below; compare with these.
var (
	ErrCapability = &Error{Kind: KindCapability, Message: "capability denied"}
	ErrPrivilege  = &Error{Kind: KindPrivilege, Message: "privilege denied"}
	ErrPolicy     = &Error{Kind: KindPolicy, Message: "policy denied"}
	ErrSandbox    = &Error{Kind: KindSandbox, Message: "sandbox violation"}
	ErrVerify     = &Error{Kind: KindVerify, Message: "verification failed"}
	ErrRateLimit  = &Error{Kind: KindRateLimit, Message: "rate limit exceeded"}
	ErrCancelled  = &Error{Kind: KindCancelled, Message: "operation cancelled"}
)

// Capability reports a missing required capability.
func Capability(format string, args ...any) error {
	return &Error{Kind: KindCapability, Message: fmt.Sprintf(format, args...)}
}

// Privilege reports an insufficient privilege level.
func Privilege(format string, args ...any) error {
	return &Error{Kind: KindPrivilege, Message: fmt.Sprintf(format, args...)}
}

// Policy reports an action disallowed by the trust/action combination.
func Policy(format string, args ...any) error {
	return &Error{Kind: KindPolicy, Message: fmt.Sprintf(format, args...)}
}

// Sandbox reports a path escape or oversize payload.
func Sandbox(format string, args ...any) error {
	return &Error{Kind: KindSandbox, Message: fmt.Sprintf(format, args...)}
}

// Verify reports a hash mismatch, contract violation, non-zero tool exit,
// or timeout.
func Verify(format string, args ...any) error {
	return &Error{Kind: KindVerify, Message: fmt.Sprintf(format, args...)}
}

// VerifyWrap wraps an underlying error as a verification fault.
func VerifyWrap(err error, format string, args ...any) error {
	return &Error{Kind: KindVerify, Message: fmt.Sprintf(format, args...), Wrapped: err}
}

// RateLimit reports an exhausted rate budget.
func RateLimit(format string, args ...any) error {
	return &Error{Kind: KindRateLimit, Message: fmt.Sprintf(format, args...)}
}

// Cancelled reports cooperative cancellation.
func Cancelled(format string, args ...any) error {
	return &Error{Kind: KindCancelled, Message: fmt.Sprintf(format, args...)}
}
