package idpcore

import (
	"errors"
	"fmt"
)

var (
	// ErrEngineNotReady is returned when a required collaborator was not configured.
	ErrEngineNotReady = errors.New("engine not ready")

	// Authentication outcomes.
	ErrMissingCredentials = errors.New("missing credentials")
	ErrBadCredentials     = errors.New("bad credentials")
	ErrAccountLocked      = errors.New("account locked")
	ErrAccountDisabled    = errors.New("account disabled")
	ErrPasswordExpired    = errors.New("password expired")

	ErrAccountNotFound = errors.New("account not found")

	// Role and group administration outcomes.
	ErrNoRelationship        = errors.New("admin has no relationship with user")
	ErrRoleNotFound          = errors.New("role not found")
	ErrRoleAlreadyAssigned   = errors.New("role already assigned")
	ErrRoleNotAssigned       = errors.New("role not assigned")
	ErrRoleNotAssignable     = errors.New("role not assignable")
	ErrGroupNotFound         = errors.New("group not found")
	ErrGroupAlreadyAssigned  = errors.New("group already assigned")
	ErrGroupNotAssigned      = errors.New("group not assigned")
	ErrGroupManagerNotMember = errors.New("group manager is not a member of the group")
	ErrInvalidAuthorityCode  = errors.New("invalid authority code")
	ErrPrincipalRequired     = errors.New("admin principal required")

	// Token lifecycle outcomes.
	ErrTokenInvalid     = errors.New("token invalid")
	ErrTokenExpired     = errors.New("token expired")
	ErrTokenUnavailable = errors.New("token backend unavailable")

	ErrPasswordReuse   = errors.New("password reuse not allowed")
	ErrPasswordBlank   = errors.New("password must not be blank")
	ErrExternalAccount = errors.New("operation not supported for externally managed account")

	ErrRetryTrackerUnavailable = errors.New("retry tracker unavailable")

	// ErrDeliveryFailure is matched by every *DeliveryError.
	ErrDeliveryFailure = errors.New("notification delivery failed")
	ErrNoRecipient     = errors.New("account has no email address")

	ErrAccessTokenInvalid = errors.New("access token invalid")
)

// Account lock reasons carried by AccountLockedError.
const (
	LockReasonAlready  = "already"
	LockReasonExceeded = "exceeded"
)

// AccountLockedError reports a locked account. Reason is LockReasonAlready
// when the account was locked before the attempt, LockReasonExceeded when
// this attempt crossed the retry threshold.
type AccountLockedError struct {
	Reason string
}

func (e *AccountLockedError) Error() string {
	return "account locked: " + e.Reason
}

func (e *AccountLockedError) Is(target error) bool {
	return target == ErrAccountLocked
}

// DeliveryError is a notification failure carrying the provider's HTTP-like
// status. Status 0 means the request never produced a response.
type DeliveryError struct {
	Status int
	Err    error
}

func (e *DeliveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("notification delivery failed (status %d): %v", e.Status, e.Err)
	}
	return fmt.Sprintf("notification delivery failed (status %d)", e.Status)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

func (e *DeliveryError) Is(target error) bool {
	return target == ErrDeliveryFailure
}

// Retryable reports whether the failure is a 5xx-class server error.
func (e *DeliveryError) Retryable() bool {
	return e.Status >= 500 && e.Status <= 599
}

// LockReason extracts the lock reason from err, or "" when err is not a
// lock failure.
func LockReason(err error) string {
	var locked *AccountLockedError
	if errors.As(err, &locked) {
		return locked.Reason
	}
	return ""
}
