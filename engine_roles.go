package idpcore

import (
	"context"
	"sort"
	"strings"
)

// IsPermittedToManage returns nil when admin may administer target: admin
// holds the superuser authority or shares a group with target. Otherwise it
// returns ErrNoRelationship.
func (e *Engine) IsPermittedToManage(ctx context.Context, admin Principal, target string) error {
	if e == nil || !e.flows.Initialized() {
		return ErrEngineNotReady
	}
	return e.flows.IsPermittedToManage(ctx, toFlowAdmin(admin), target)
}

// AssignableRoles lists the roles admin may grant, sorted by display name.
// The reserved bootstrap role is only listed for a superuser that also
// holds its gating authority.
func (e *Engine) AssignableRoles(ctx context.Context, admin Principal) ([]Authority, error) {
	if e == nil || !e.flows.Initialized() {
		return nil, ErrEngineNotReady
	}
	recs, err := e.flows.AssignableRoles(ctx, toFlowAdmin(admin))
	if err != nil {
		return nil, err
	}
	out := make([]Authority, 0, len(recs))
	for _, r := range recs {
		out = append(out, fromFlowRole(r))
	}
	return out, nil
}

// AddRole grants roleCode to target. The target is unchanged unless every
// check passes; a second grant fails with ErrRoleAlreadyAssigned.
func (e *Engine) AddRole(ctx context.Context, target, roleCode string, admin Principal) error {
	if e == nil || !e.flows.Initialized() {
		return ErrEngineNotReady
	}
	return e.flows.AddRole(ctx, target, roleCode, toFlowAdmin(admin))
}

// RemoveRole revokes roleCode from target, failing with ErrRoleNotAssigned
// when target does not hold it.
func (e *Engine) RemoveRole(ctx context.Context, target, roleCode string, admin Principal) error {
	if e == nil || !e.flows.Initialized() {
		return ErrEngineNotReady
	}
	return e.flows.RemoveRole(ctx, target, roleCode, toFlowAdmin(admin))
}

// AllRoles returns every role sorted by name.
func (e *Engine) AllRoles(ctx context.Context) ([]Authority, error) {
	if e == nil || e.roles == nil {
		return nil, ErrEngineNotReady
	}
	roles, err := e.roles.FindAllRoles(ctx)
	if err != nil {
		return nil, err
	}
	sortRoles(roles)
	return roles, nil
}

// UserRoles returns the roles held by username, sorted by name. Codes with
// no role definition are skipped.
func (e *Engine) UserRoles(ctx context.Context, username string) ([]Authority, error) {
	if e == nil || e.accounts == nil || e.roles == nil {
		return nil, ErrEngineNotReady
	}
	acct, err := e.accounts.FindByUsername(ctx, strings.ToUpper(strings.TrimSpace(username)), false)
	if err != nil {
		return nil, err
	}
	all, err := e.roles.FindAllRoles(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Authority, 0, len(acct.Authorities))
	for _, r := range all {
		if acct.HasAuthority(r.Code) {
			out = append(out, r)
		}
	}
	sortRoles(out)
	return out, nil
}

func sortRoles(roles []Authority) {
	sort.SliceStable(roles, func(i, j int) bool {
		if roles[i].Name != roles[j].Name {
			return roles[i].Name < roles[j].Name
		}
		return roles[i].Code < roles[j].Code
	})
}
