package idpcore

import (
	"context"
	"errors"
)

// AuditErrorCode is the stable failure label placed in AuditEvent.Reason.
type AuditErrorCode string

const (
	auditErrMissingCredentials   AuditErrorCode = "missing_credentials"
	auditErrBadCredentials       AuditErrorCode = "bad_credentials"
	auditErrAccountLocked        AuditErrorCode = "account_locked"
	auditErrAccountDisabled      AuditErrorCode = "account_disabled"
	auditErrPasswordExpired      AuditErrorCode = "password_expired"
	auditErrAccountNotFound      AuditErrorCode = "account_not_found"
	auditErrNoRelationship       AuditErrorCode = "no_relationship"
	auditErrRoleNotFound         AuditErrorCode = "role_not_found"
	auditErrRoleAlreadyAssigned  AuditErrorCode = "role_already_assigned"
	auditErrRoleNotAssigned      AuditErrorCode = "role_not_assigned"
	auditErrRoleNotAssignable    AuditErrorCode = "role_not_assignable"
	auditErrGroupNotFound        AuditErrorCode = "group_not_found"
	auditErrGroupAlreadyAssigned AuditErrorCode = "group_already_assigned"
	auditErrGroupNotAssigned     AuditErrorCode = "group_not_assigned"
	auditErrManagerNotMember     AuditErrorCode = "manager_not_member"
	auditErrInvalidCode          AuditErrorCode = "invalid_code"
	auditErrPrincipalRequired    AuditErrorCode = "principal_required"
	auditErrTokenInvalid         AuditErrorCode = "invalid"
	auditErrTokenExpired         AuditErrorCode = "expired"
	auditErrPasswordReuse        AuditErrorCode = "password_reuse"
	auditErrPasswordBlank        AuditErrorCode = "password_blank"
	auditErrExternalAccount      AuditErrorCode = "external_account"
	auditErrDeliveryFailure      AuditErrorCode = "delivery_failure"
	auditErrNoRecipient          AuditErrorCode = "no_recipient"
	auditErrUnavailable          AuditErrorCode = "backend_unavailable"
	auditErrNotReady             AuditErrorCode = "engine_not_ready"
	auditErrInternal             AuditErrorCode = "internal_error"
)

// emitAudit hands one event to the dispatcher without blocking.
func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	username string,
	admin string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}
	if reason := LockReason(err); reason != "" {
		if metadata == nil {
			metadata = map[string]string{}
		}
		metadata["lock_reason"] = reason
	}

	event := AuditEvent{
		Timestamp: e.clock().UTC(),
		EventType: eventType,
		Username:  username,
		Admin:     admin,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Reason = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrMissingCredentials):
		return auditErrMissingCredentials
	case errors.Is(err, ErrBadCredentials):
		return auditErrBadCredentials
	case errors.Is(err, ErrAccountLocked):
		return auditErrAccountLocked
	case errors.Is(err, ErrAccountDisabled):
		return auditErrAccountDisabled
	case errors.Is(err, ErrPasswordExpired):
		return auditErrPasswordExpired
	case errors.Is(err, ErrAccountNotFound):
		return auditErrAccountNotFound
	case errors.Is(err, ErrNoRelationship):
		return auditErrNoRelationship
	case errors.Is(err, ErrRoleNotFound):
		return auditErrRoleNotFound
	case errors.Is(err, ErrRoleAlreadyAssigned):
		return auditErrRoleAlreadyAssigned
	case errors.Is(err, ErrRoleNotAssigned):
		return auditErrRoleNotAssigned
	case errors.Is(err, ErrRoleNotAssignable):
		return auditErrRoleNotAssignable
	case errors.Is(err, ErrGroupNotFound):
		return auditErrGroupNotFound
	case errors.Is(err, ErrGroupAlreadyAssigned):
		return auditErrGroupAlreadyAssigned
	case errors.Is(err, ErrGroupNotAssigned):
		return auditErrGroupNotAssigned
	case errors.Is(err, ErrGroupManagerNotMember):
		return auditErrManagerNotMember
	case errors.Is(err, ErrInvalidAuthorityCode):
		return auditErrInvalidCode
	case errors.Is(err, ErrPrincipalRequired):
		return auditErrPrincipalRequired
	case errors.Is(err, ErrTokenInvalid):
		return auditErrTokenInvalid
	case errors.Is(err, ErrTokenExpired):
		return auditErrTokenExpired
	case errors.Is(err, ErrPasswordReuse):
		return auditErrPasswordReuse
	case errors.Is(err, ErrPasswordBlank):
		return auditErrPasswordBlank
	case errors.Is(err, ErrExternalAccount):
		return auditErrExternalAccount
	case errors.Is(err, ErrDeliveryFailure):
		return auditErrDeliveryFailure
	case errors.Is(err, ErrNoRecipient):
		return auditErrNoRecipient
	case errors.Is(err, ErrTokenUnavailable),
		errors.Is(err, ErrRetryTrackerUnavailable):
		return auditErrUnavailable
	case errors.Is(err, ErrEngineNotReady):
		return auditErrNotReady
	default:
		return auditErrInternal
	}
}
