package idpcore

import (
	"io"
	"log/slog"

	"github.com/MrEthical07/idpcore/internal/audit"
)

// AuditEvent is one structured outcome. Raw passwords and token values are
// never placed in an event.
type AuditEvent = audit.Event

// AuditSink receives audit events from the engine's dispatcher.
type AuditSink = audit.Sink

type NoOpSink = audit.NoOpSink

type ChannelSink = audit.ChannelSink

type JSONWriterSink = audit.JSONWriterSink

type SlogSink = audit.SlogSink

func NewChannelSink(buffer int) *ChannelSink {
	return audit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}

func NewSlogSink(l *slog.Logger) *SlogSink {
	return audit.NewSlogSink(l)
}

// Audit event names.
const (
	EventAuthenticateSuccess = "AuthenticateSuccess"
	EventAuthenticateFailure = "AuthenticateFailure"

	EventRoleAddSuccess    = "AuthUserRoleAddSuccess"
	EventRoleAddFailure    = "AuthUserRoleAddFailure"
	EventRoleRemoveSuccess = "AuthUserRoleRemoveSuccess"
	EventRoleRemoveFailure = "AuthUserRoleRemoveFailure"

	EventGroupAddSuccess    = "AuthUserGroupAddSuccess"
	EventGroupAddFailure    = "AuthUserGroupAddFailure"
	EventGroupRemoveSuccess = "AuthUserGroupRemoveSuccess"
	EventGroupRemoveFailure = "AuthUserGroupRemoveFailure"

	EventUserEnabled       = "AuthUserEnabled"
	EventUserDisabled      = "AuthUserDisabled"
	EventUserLocked        = "AuthUserLocked"
	EventUserUnlocked      = "AuthUserUnlocked"
	EventUserStatusFailure = "AuthUserStatusChangeFailure"

	EventChangePasswordSuccess = "ChangePasswordSuccess"
	EventChangePasswordFailure = "ChangePasswordFailure"
	EventResetPasswordSuccess  = "ResetPasswordSuccess"
	EventResetPasswordFailure  = "ResetPasswordSetFailure"
	EventVerifyEmailSuccess    = "VerifyEmailConfirmSuccess"
	EventVerifyEmailFailure    = "VerifyEmailConfirmFailure"

	EventNotificationSent   = "NotificationSent"
	EventNotificationFailed = "NotificationFailure"
)
