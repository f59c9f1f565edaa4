package idpcore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/idpcore/internal"
	"github.com/MrEthical07/idpcore/internal/flows"
	"github.com/google/uuid"
)

// flowDeps wires every flow against the engine's collaborators. It runs
// once, from Build.
func (e *Engine) flowDeps() flows.Deps {
	authz := e.authorizationFlowDeps()
	return flows.Deps{
		Authenticate:  e.authenticateFlowDeps(),
		Authorization: authz,
		Roles:         e.roleFlowDeps(authz),
		Groups:        e.groupFlowDeps(authz),
		Status:        e.statusFlowDeps(authz),
		Tokens:        e.tokenFlowDeps(),
		Password:      e.passwordFlowDeps(),
		Notify:        e.notifyFlowDeps(),
	}
}

func (e *Engine) flowMetricInc(id int) {
	e.metricInc(MetricID(id))
}

func (e *Engine) flowObserve(id int, d time.Duration) {
	e.metricObserve(MetricID(id), d)
}

func (e *Engine) authenticateFlowDeps() flows.AuthenticateDeps {
	deps := flows.AuthenticateDeps{
		MaxRetries:     e.config.Lockout.MaxRetries,
		UpgradeOnLogin: e.config.Password.UpgradeOnLogin,
		Now:            e.clock,
		FindAccount: func(ctx context.Context, username string) (flows.AccountRecord, error) {
			acct, err := e.accounts.FindByUsername(ctx, username, false)
			if err != nil {
				return flows.AccountRecord{}, err
			}
			return toFlowAccount(acct), nil
		},
		VerifyLocal: func(stored, supplied string) bool {
			return e.schemes.Matches(supplied, stored)
		},
		NeedsUpgrade:     e.schemes.NeedsUpgrade,
		HashPassword:     e.schemes.Hash,
		IncrementRetries: e.retries.IncrementRetries,
		ResetRetries:     e.retries.ResetRetries,
		LockAccount:      e.lockAfterRetries,
		// RecordLogin re-checks lock and enablement under the row lock, so a
		// lockout committed after the initial read still wins.
		RecordLogin: func(ctx context.Context, username string, at time.Time, upgradedHash string) error {
			_, err := e.accounts.Update(ctx, username, func(a *Account) error {
				if a.Locked {
					return &AccountLockedError{Reason: LockReasonAlready}
				}
				if !a.Enabled {
					return ErrAccountDisabled
				}
				a.LastLoggedIn = at
				if upgradedHash != "" {
					a.PasswordHash = upgradedHash
				}
				return nil
			})
			return err
		},
		MetricInc: e.flowMetricInc,
		Observe:   e.flowObserve,
		EmitAudit: e.emitAudit,
		Warn:      e.warn,
		Metrics: flows.AuthenticateMetrics{
			Success:            int(MetricAuthenticateSuccess),
			Failure:            int(MetricAuthenticateFailure),
			MissingCredentials: int(MetricAuthenticateMissingCredentials),
			RejectedLocked:     int(MetricAuthenticateRejectedLocked),
			RejectedDisabled:   int(MetricAuthenticateRejectedDisabled),
			PasswordExpired:    int(MetricAuthenticatePasswordExpired),
			AutoLocked:         int(MetricAccountAutoLocked),
			DirectorySync:      int(MetricDirectorySync),
			Latency:            int(MetricAuthenticateLatency),
		},
		Events: flows.AuthenticateEvents{
			Success: EventAuthenticateSuccess,
			Failure: EventAuthenticateFailure,
		},
		Errors: flows.AuthenticateErrors{
			EngineNotReady:     ErrEngineNotReady,
			MissingCredentials: ErrMissingCredentials,
			BadCredentials:     ErrBadCredentials,
			AccountNotFound:    ErrAccountNotFound,
			AccountDisabled:    ErrAccountDisabled,
			AccountLocked:      ErrAccountLocked,
			PasswordExpired:    ErrPasswordExpired,
			Locked: func(reason string) error {
				return &AccountLockedError{Reason: reason}
			},
		},
	}
	if e.directory != nil {
		deps.SyncExternal = e.syncExternalAccount
		deps.VerifyExternal = e.directory.VerifyPassword
	}
	return deps
}

// lockAfterRetries locks username, then clears its counter. The counter is
// left untouched when the lock write fails, so the next failure retries the
// lock. A failed clear after a committed lock is only logged; unlock resets
// the counter again.
func (e *Engine) lockAfterRetries(ctx context.Context, username string) error {
	if _, err := e.accounts.Update(ctx, username, func(a *Account) error {
		a.Locked = true
		return nil
	}); err != nil {
		return err
	}
	if err := e.retries.ResetRetries(ctx, username); err != nil {
		e.logger.Warn(ctx, "retry counter not cleared after lockout", "username", username, "error", err)
	}
	return nil
}

// syncExternalAccount saves a shadow account for a user known only to the
// external directory. Its password stays with the directory.
func (e *Engine) syncExternalAccount(ctx context.Context, username string) (flows.AccountRecord, bool, error) {
	ext, found, err := e.directory.ResolveExternalAccount(ctx, e.config.Accounts.DirectoryIDType, username)
	if err != nil || !found {
		return flows.AccountRecord{}, false, err
	}

	name := strings.ToUpper(strings.TrimSpace(ext.Username))
	if name == "" {
		name = username
	}
	acct := Account{
		ID:        uuid.New(),
		Username:  name,
		Email:     ext.Email,
		FirstName: ext.FirstName,
		Verified:  ext.Email != "",
		Locked:    ext.Locked,
		Enabled:   ext.Enabled,
		Master:    false,
	}
	if err := e.accounts.Save(ctx, acct); err != nil {
		return flows.AccountRecord{}, false, err
	}
	e.logger.Info(ctx, "synchronised account from directory", "username", name)
	return toFlowAccount(acct), true, nil
}

func (e *Engine) updateAccountRecord(ctx context.Context, username string, fn func(*flows.AccountRecord) error) (flows.AccountRecord, error) {
	updated, err := e.accounts.Update(ctx, username, func(a *Account) error {
		rec := toFlowAccount(*a)
		if err := fn(&rec); err != nil {
			return err
		}
		applyFlowAccount(a, rec)
		return nil
	})
	if err != nil {
		return flows.AccountRecord{}, err
	}
	return toFlowAccount(updated), nil
}

func (e *Engine) authorizationFlowDeps() flows.AuthorizationDeps {
	return flows.AuthorizationDeps{
		SuperuserAuthority: e.config.Roles.SuperuserAuthority,
		ReservedRole:       e.config.Roles.ReservedRole,
		ReservedRoleGate:   e.config.Roles.ReservedRoleGate,
		GroupsOf: func(ctx context.Context, username string) ([]string, error) {
			acct, err := e.accounts.FindByUsername(ctx, username, false)
			if err != nil {
				return nil, err
			}
			return acct.Groups, nil
		},
		AllRoles: func(ctx context.Context) ([]flows.RoleRecord, error) {
			roles, err := e.roles.FindAllRoles(ctx)
			if err != nil {
				return nil, err
			}
			return toFlowRoles(roles), nil
		},
		GroupAssignableRoles: func(ctx context.Context, username string) ([]flows.RoleRecord, error) {
			roles, err := e.roles.FindGroupAssignableRoles(ctx, username)
			if err != nil {
				return nil, err
			}
			return toFlowRoles(roles), nil
		},
		Errors: flows.AuthorizationErrors{
			EngineNotReady:    ErrEngineNotReady,
			NoRelationship:    ErrNoRelationship,
			PrincipalRequired: ErrPrincipalRequired,
			AccountNotFound:   ErrAccountNotFound,
		},
	}
}

func toFlowRoles(roles []Authority) []flows.RoleRecord {
	out := make([]flows.RoleRecord, 0, len(roles))
	for _, r := range roles {
		out = append(out, toFlowRole(r))
	}
	return out
}

func (e *Engine) roleFlowDeps(authz flows.AuthorizationDeps) flows.RoleMutationDeps {
	return flows.RoleMutationDeps{
		Authorization: authz,
		FindRole: func(ctx context.Context, code string) (flows.RoleRecord, error) {
			role, err := e.roles.FindRoleByCode(ctx, code)
			if err != nil {
				return flows.RoleRecord{}, err
			}
			return toFlowRole(role), nil
		},
		UpdateAccount: e.updateAccountRecord,
		MetricInc:     e.flowMetricInc,
		EmitAudit:     e.emitAudit,
		Metrics: flows.RoleMutationMetrics{
			AddSuccess:     int(MetricRoleAddSuccess),
			AddFailure:     int(MetricRoleAddFailure),
			RemoveSuccess:  int(MetricRoleRemoveSuccess),
			RemoveFailure:  int(MetricRoleRemoveFailure),
			NoRelationship: int(MetricNoRelationship),
		},
		Events: flows.RoleMutationEvents{
			AddSuccess:    EventRoleAddSuccess,
			AddFailure:    EventRoleAddFailure,
			RemoveSuccess: EventRoleRemoveSuccess,
			RemoveFailure: EventRoleRemoveFailure,
		},
		Errors: flows.RoleMutationErrors{
			EngineNotReady:      ErrEngineNotReady,
			InvalidCode:         ErrInvalidAuthorityCode,
			PrincipalRequired:   ErrPrincipalRequired,
			AccountNotFound:     ErrAccountNotFound,
			NoRelationship:      ErrNoRelationship,
			RoleNotFound:        ErrRoleNotFound,
			RoleAlreadyAssigned: ErrRoleAlreadyAssigned,
			RoleNotAssigned:     ErrRoleNotAssigned,
			RoleNotAssignable:   ErrRoleNotAssignable,
		},
	}
}

func (e *Engine) groupFlowDeps(authz flows.AuthorizationDeps) flows.GroupMutationDeps {
	return flows.GroupMutationDeps{
		Authorization:         authz,
		GroupManagerAuthority: e.config.Roles.GroupManagerAuthority,
		FindGroup: func(ctx context.Context, code string) (flows.GroupRecord, error) {
			g, err := e.groups.FindGroupByCode(ctx, code)
			if err != nil {
				return flows.GroupRecord{}, err
			}
			return toFlowGroup(g), nil
		},
		AllGroups: func(ctx context.Context) ([]flows.GroupRecord, error) {
			all, err := e.groups.FindAllGroups(ctx)
			if err != nil {
				return nil, err
			}
			out := make([]flows.GroupRecord, 0, len(all))
			for _, g := range all {
				out = append(out, toFlowGroup(g))
			}
			return out, nil
		},
		UpdateAccount: e.updateAccountRecord,
		MetricInc:     e.flowMetricInc,
		EmitAudit:     e.emitAudit,
		Metrics: flows.GroupMutationMetrics{
			AddSuccess:     int(MetricGroupAddSuccess),
			AddFailure:     int(MetricGroupAddFailure),
			RemoveSuccess:  int(MetricGroupRemoveSuccess),
			RemoveFailure:  int(MetricGroupRemoveFailure),
			NoRelationship: int(MetricNoRelationship),
		},
		Events: flows.GroupMutationEvents{
			AddSuccess:    EventGroupAddSuccess,
			AddFailure:    EventGroupAddFailure,
			RemoveSuccess: EventGroupRemoveSuccess,
			RemoveFailure: EventGroupRemoveFailure,
		},
		Errors: flows.GroupMutationErrors{
			EngineNotReady:       ErrEngineNotReady,
			InvalidCode:          ErrInvalidAuthorityCode,
			PrincipalRequired:    ErrPrincipalRequired,
			AccountNotFound:      ErrAccountNotFound,
			NoRelationship:       ErrNoRelationship,
			GroupNotFound:        ErrGroupNotFound,
			GroupAlreadyAssigned: ErrGroupAlreadyAssigned,
			GroupNotAssigned:     ErrGroupNotAssigned,
			ManagerNotMember:     ErrGroupManagerNotMember,
		},
	}
}

func (e *Engine) statusFlowDeps(authz flows.AuthorizationDeps) flows.AccountStatusDeps {
	return flows.AccountStatusDeps{
		Authorization:     authz,
		InactivityTrigger: e.config.Accounts.InactivityTrigger,
		EnableGrace:       e.config.Accounts.EnableGrace,
		DisabledReason:    e.config.Accounts.DisabledReason,
		Now:               e.clock,
		UpdateAccount:     e.updateAccountRecord,
		ResetRetries:      e.retries.ResetRetries,
		MetricInc:         e.flowMetricInc,
		EmitAudit:         e.emitAudit,
		Metrics: flows.AccountStatusMetrics{
			Enabled:        int(MetricAccountEnabled),
			Disabled:       int(MetricAccountDisabled),
			Locked:         int(MetricAccountLocked),
			Unlocked:       int(MetricAccountUnlocked),
			NoRelationship: int(MetricNoRelationship),
		},
		Events: flows.AccountStatusEvents{
			Enabled:  EventUserEnabled,
			Disabled: EventUserDisabled,
			Locked:   EventUserLocked,
			Unlocked: EventUserUnlocked,
			Failure:  EventUserStatusFailure,
		},
		Errors: flows.AccountStatusErrors{
			EngineNotReady:    ErrEngineNotReady,
			PrincipalRequired: ErrPrincipalRequired,
			AccountNotFound:   ErrAccountNotFound,
			NoRelationship:    ErrNoRelationship,
		},
	}
}

func (e *Engine) tokenFlowDeps() flows.TokenDeps {
	return flows.TokenDeps{
		DefaultTTL: func(tokenType string) (time.Duration, bool) {
			switch TokenType(tokenType) {
			case TokenReset:
				return e.config.Token.ResetTTL, true
			case TokenVerify:
				return e.config.Token.VerifyTTL, true
			default:
				return 0, false
			}
		},
		Describe: func(tokenType string) string {
			return TokenType(tokenType).Description()
		},
		Now:      e.clock,
		NewToken: internal.NewToken,
		Save: func(ctx context.Context, token flows.TokenRecord) error {
			return e.tokens.SaveToken(ctx, fromFlowToken(token))
		},
		Get: func(ctx context.Context, value string) (flows.TokenRecord, error) {
			t, err := e.tokens.GetToken(ctx, value)
			if err != nil {
				return flows.TokenRecord{}, err
			}
			return toFlowToken(t), nil
		},
		Consume: func(ctx context.Context, value string) (flows.TokenRecord, error) {
			t, err := e.tokens.ConsumeToken(ctx, value)
			if err != nil {
				return flows.TokenRecord{}, err
			}
			return toFlowToken(t), nil
		},
		Delete:    e.tokens.DeleteToken,
		MetricInc: e.flowMetricInc,
		EmitAudit: e.emitAudit,
		Warn:      e.warn,
		Metrics: flows.TokenMetrics{
			Created:  int(MetricTokenCreated),
			Invalid:  int(MetricTokenInvalid),
			Expired:  int(MetricTokenExpired),
			Consumed: int(MetricTokenConsumed),
		},
		Errors: flows.TokenErrors{
			EngineNotReady: ErrEngineNotReady,
			InvalidType:    ErrTokenInvalid,
			Invalid:        ErrTokenInvalid,
			Expired:        ErrTokenExpired,
			InvalidUser:    ErrAccountNotFound,
		},
	}
}

func (e *Engine) passwordFlowDeps() flows.PasswordDeps {
	return flows.PasswordDeps{
		PasswordAge:  e.config.Password.PasswordAge,
		Now:          e.clock,
		HashPassword: e.schemes.Hash,
		Matches: func(stored, supplied string) bool {
			return e.schemes.Matches(supplied, stored)
		},
		UpdateAccount: e.updateAccountRecord,
		ResetRetries:  e.retries.ResetRetries,
		MetricInc:     e.flowMetricInc,
		EmitAudit:     e.emitAudit,
		Metrics: flows.PasswordMetrics{
			Success:       int(MetricPasswordChangeSuccess),
			ReuseRejected: int(MetricPasswordChangeReuseRejected),
		},
		Events: flows.PasswordEvents{
			ChangeSuccess: EventChangePasswordSuccess,
			ChangeFailure: EventChangePasswordFailure,
			ResetSuccess:  EventResetPasswordSuccess,
			ResetFailure:  EventResetPasswordFailure,
		},
		Errors: flows.PasswordErrors{
			EngineNotReady:  ErrEngineNotReady,
			Blank:           ErrPasswordBlank,
			Reuse:           ErrPasswordReuse,
			ExternalAccount: ErrExternalAccount,
		},
	}
}

func (e *Engine) notifyFlowDeps() flows.NotifyDeps {
	deps := flows.NotifyDeps{
		Retryable: func(err error) bool {
			var de *DeliveryError
			return errors.As(err, &de) && de.Retryable()
		},
		MetricInc: e.flowMetricInc,
		EmitAudit: e.emitAudit,
		Warn:      e.warn,
		Metrics: flows.NotifyMetrics{
			Sent:    int(MetricNotificationSent),
			Retried: int(MetricNotificationRetried),
			Failed:  int(MetricNotificationFailed),
		},
		Events: flows.NotifyEvents{
			Success: EventNotificationSent,
			Failure: EventNotificationFailed,
		},
		Errors: flows.NotifyErrors{
			EngineNotReady: ErrEngineNotReady,
			NoRecipient:    ErrNoRecipient,
		},
	}
	if e.notifier != nil {
		deps.Send = e.sendNotification
	}
	return deps
}

// sendNotification normalizes notifier failures into *DeliveryError.
func (e *Engine) sendNotification(ctx context.Context, templateID, recipient string, params map[string]string) error {
	err := e.notifier.Send(ctx, templateID, recipient, params)
	if err == nil {
		return nil
	}
	var de *DeliveryError
	if errors.As(err, &de) {
		return err
	}
	status := 0
	var sc interface{ StatusCode() int }
	if errors.As(err, &sc) {
		status = sc.StatusCode()
	}
	return &DeliveryError{Status: status, Err: err}
}
