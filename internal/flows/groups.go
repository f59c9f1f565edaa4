package flows

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/MrEthical07/idpcore/authority"
)

type GroupMutationMetrics struct {
	AddSuccess     int
	AddFailure     int
	RemoveSuccess  int
	RemoveFailure  int
	NoRelationship int
}

type GroupMutationEvents struct {
	AddSuccess    string
	AddFailure    string
	RemoveSuccess string
	RemoveFailure string
}

type GroupMutationErrors struct {
	EngineNotReady       error
	InvalidCode          error
	PrincipalRequired    error
	AccountNotFound      error
	NoRelationship       error
	GroupNotFound        error
	GroupAlreadyAssigned error
	GroupNotAssigned     error
	ManagerNotMember     error
}

// GroupMutationDeps captures the dependencies of group membership changes.
type GroupMutationDeps struct {
	Authorization         AuthorizationDeps
	GroupManagerAuthority string

	FindGroup     func(ctx context.Context, code string) (GroupRecord, error)
	AllGroups     func(ctx context.Context) ([]GroupRecord, error)
	UpdateAccount UpdateAccountFunc

	MetricInc func(int)
	EmitAudit AuditFunc

	Metrics GroupMutationMetrics
	Events  GroupMutationEvents
	Errors  GroupMutationErrors
}

// RunAddGroup adds target to groupCode and grants the group's automatic roles.
func RunAddGroup(ctx context.Context, target, groupCode string, admin AdminRecord, deps GroupMutationDeps) error {
	return runGroupMutation(ctx, target, groupCode, admin, true, deps)
}

// RunRemoveGroup removes target from groupCode. Roles granted on joining are
// kept.
func RunRemoveGroup(ctx context.Context, target, groupCode string, admin AdminRecord, deps GroupMutationDeps) error {
	return runGroupMutation(ctx, target, groupCode, admin, false, deps)
}

func runGroupMutation(ctx context.Context, target, groupCode string, admin AdminRecord, add bool, deps GroupMutationDeps) error {
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
	code := authority.NormalizeGroup(groupCode)
	metadata := func() map[string]string {
		return map[string]string{
			"group": code,
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

	if deps.FindGroup == nil || deps.UpdateAccount == nil || deps.Authorization.GroupsOf == nil {
		return fail(deps.Errors.EngineNotReady)
	}
	if strings.TrimSpace(admin.Username) == "" {
		return fail(deps.Errors.PrincipalRequired)
	}
	if code == "" {
		return fail(deps.Errors.InvalidCode)
	}

	group, err := deps.FindGroup(ctx, code)
	if err != nil {
		return fail(err)
	}
	adminGroups, err := groupsOfAdmin(ctx, admin, deps.Authorization)
	if err != nil {
		return fail(err)
	}

	superuser := IsSuperuser(admin, deps.Authorization)
	if !superuser && deps.GroupManagerAuthority != "" &&
		authority.Contains(admin.Authorities, deps.GroupManagerAuthority, authority.Normalize) &&
		!authority.Contains(adminGroups, group.Code, authority.NormalizeGroup) {
		return fail(deps.Errors.ManagerNotMember)
	}

	_, err = deps.UpdateAccount(ctx, target, func(acct *AccountRecord) error {
		if !acct.Master {
			return deps.Errors.AccountNotFound
		}
		if err := checkRelationship(admin, adminGroups, acct.Groups, deps.Authorization); err != nil {
			return err
		}

		member := authority.Contains(acct.Groups, group.Code, authority.NormalizeGroup)
		if add && member {
			return deps.Errors.GroupAlreadyAssigned
		}
		if !add && !member {
			return deps.Errors.GroupNotAssigned
		}

		if !add {
			acct.Groups = removeCode(acct.Groups, group.Code, authority.NormalizeGroup)
			return nil
		}
		acct.Groups = append(acct.Groups, authority.NormalizeGroup(group.Code))
		for _, r := range group.Roles {
			if !r.Automatic {
				continue
			}
			if !authority.Contains(acct.Authorities, r.Code, authority.Normalize) {
				acct.Authorities = append(acct.Authorities, authority.Normalize(r.Code))
			}
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

// RunAssignableGroups lists every group for a superuser, otherwise the
// admin's own groups, sorted by name.
func RunAssignableGroups(ctx context.Context, admin AdminRecord, deps GroupMutationDeps) ([]GroupRecord, error) {
	if deps.AllGroups == nil || deps.Authorization.GroupsOf == nil {
		return nil, deps.Errors.EngineNotReady
	}
	if strings.TrimSpace(admin.Username) == "" {
		return nil, deps.Errors.PrincipalRequired
	}

	all, err := deps.AllGroups(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]GroupRecord, 0, len(all))
	if IsSuperuser(admin, deps.Authorization) {
		out = append(out, all...)
	} else {
		mine, err := groupsOfAdmin(ctx, admin, deps.Authorization)
		if err != nil {
			return nil, err
		}
		for _, g := range all {
			if authority.Contains(mine, g.Code, authority.NormalizeGroup) {
				out = append(out, g)
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out, nil
}
