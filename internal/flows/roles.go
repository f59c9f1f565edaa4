package flows

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/idpcore/authority"
)

type RoleMutationMetrics struct {
	AddSuccess     int
	AddFailure     int
	RemoveSuccess  int
	RemoveFailure  int
	NoRelationship int
}

type RoleMutationEvents struct {
	AddSuccess    string
	AddFailure    string
	RemoveSuccess string
	RemoveFailure string
}

type RoleMutationErrors struct {
	EngineNotReady      error
	InvalidCode         error
	PrincipalRequired   error
	AccountNotFound     error
	NoRelationship      error
	RoleNotFound        error
	RoleAlreadyAssigned error
	RoleNotAssigned     error
	RoleNotAssignable   error
}

// RoleMutationDeps captures the dependencies of add/remove role.
type RoleMutationDeps struct {
	Authorization AuthorizationDeps

	FindRole      func(ctx context.Context, code string) (RoleRecord, error)
	UpdateAccount UpdateAccountFunc

	MetricInc func(int)
	EmitAudit AuditFunc

	Metrics RoleMutationMetrics
	Events  RoleMutationEvents
	Errors  RoleMutationErrors
}

// RunAddRole grants roleCode to target on behalf of admin. The target's
// authorities are left untouched unless every check passes.
func RunAddRole(ctx context.Context, target, roleCode string, admin AdminRecord, deps RoleMutationDeps) error {
	return runRoleMutation(ctx, target, roleCode, admin, true, deps)
}

// RunRemoveRole revokes roleCode from target on behalf of admin.
func RunRemoveRole(ctx context.Context, target, roleCode string, admin AdminRecord, deps RoleMutationDeps) error {
	return runRoleMutation(ctx, target, roleCode, admin, false, deps)
}

func runRoleMutation(ctx context.Context, target, roleCode string, admin AdminRecord, add bool, deps RoleMutationDeps) error {
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetric
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}

	successEvent, failureEvent := deps.Events.RemoveSuccess, deps.Events.RemoveFailure
	successMetric, failureMetric := deps.Metrics.RemoveSuccess, deps.Metrics.RemoveFailure
	if add {
		successEvent, failureEvent = deps.Events.AddSuccess, deps.Events.AddFailure
		successMetric, failureMetric = deps.Metrics.AddSuccess, deps.Metrics.AddFailure
	}

	target = strings.ToUpper(strings.TrimSpace(target))
	code := authority.Normalize(roleCode)
	metadata := func() map[string]string {
		return map[string]string{
			"role": code,
		}
	}
	fail := func(err error) error {
		deps.MetricInc(failureMetric)
		if errors.Is(err, deps.Errors.NoRelationship) {
			deps.MetricInc(deps.Metrics.NoRelationship)
		}
		deps.EmitAudit(ctx, failureEvent, false, target, admin.Username, err, metadata)
		return err
	}

	if deps.FindRole == nil || deps.UpdateAccount == nil || deps.Authorization.GroupsOf == nil {
		return fail(deps.Errors.EngineNotReady)
	}
	if strings.TrimSpace(admin.Username) == "" {
		return fail(deps.Errors.PrincipalRequired)
	}
	if code == "" {
		return fail(deps.Errors.InvalidCode)
	}

	// Admin-side facts are read before the target is locked for update.
	adminGroups, err := groupsOfAdmin(ctx, admin, deps.Authorization)
	if err != nil {
		return fail(err)
	}
	role, roleErr := deps.FindRole(ctx, code)
	var assignable []RoleRecord
	if roleErr == nil {
		assignable, err = RunAssignableRoles(ctx, admin, deps.Authorization)
		if err != nil {
			return fail(err)
		}
	}

	_, err = deps.UpdateAccount(ctx, target, func(acct *AccountRecord) error {
		if !acct.Master {
			return deps.Errors.AccountNotFound
		}
		if err := checkRelationship(admin, adminGroups, acct.Groups, deps.Authorization); err != nil {
			return err
		}
		if roleErr != nil {
			return roleErr
		}
		present := authority.Contains(acct.Authorities, role.Code, authority.Normalize)
		if add && present {
			return deps.Errors.RoleAlreadyAssigned
		}
		if !add && !present {
			return deps.Errors.RoleNotAssigned
		}
		if !containsRole(assignable, authority.Normalize(role.Code)) {
			return deps.Errors.RoleNotAssignable
		}

		if add {
			acct.Authorities = append(acct.Authorities, authority.Normalize(role.Code))
		} else {
			acct.Authorities = removeCode(acct.Authorities, role.Code, authority.Normalize)
		}
		return nil
	})
	if err != nil {
		return fail(err)
	}

	deps.MetricInc(successMetric)
	deps.EmitAudit(ctx, successEvent, true, target, admin.Username, nil, metadata)
	return nil
}

func removeCode(codes []string, code string, normalize func(string) string) []string {
	want := normalize(code)
	out := codes[:0:0]
	for _, c := range codes {
		if normalize(c) != want {
			out = append(out, c)
		}
	}
	return out
}
