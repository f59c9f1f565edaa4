package flows

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/MrEthical07/idpcore/authority"
)

type AuthorizationErrors struct {
	EngineNotReady    error
	NoRelationship    error
	PrincipalRequired error
	AccountNotFound   error
}

// AuthorizationDeps captures the delegated administration model.
type AuthorizationDeps struct {
	// SuperuserAuthority may manage every user and assign every role.
	SuperuserAuthority string
	// ReservedRole is never assignable unless the admin also holds
	// ReservedRoleGate.
	ReservedRole     string
	ReservedRoleGate string

	// GroupsOf returns the group codes of username.
	GroupsOf             func(ctx context.Context, username string) ([]string, error)
	AllRoles             func(ctx context.Context) ([]RoleRecord, error)
	GroupAssignableRoles func(ctx context.Context, username string) ([]RoleRecord, error)

	Errors AuthorizationErrors
}

// IsSuperuser reports whether admin holds the maintain-all authority.
func IsSuperuser(admin AdminRecord, deps AuthorizationDeps) bool {
	return deps.SuperuserAuthority != "" &&
		authority.Contains(admin.Authorities, deps.SuperuserAuthority, authority.Normalize)
}

// RunIsPermittedToManage returns nil when admin may act on target and
// Errors.NoRelationship otherwise.
func RunIsPermittedToManage(ctx context.Context, admin AdminRecord, target string, deps AuthorizationDeps) error {
	if deps.GroupsOf == nil {
		return deps.Errors.EngineNotReady
	}
	if strings.TrimSpace(admin.Username) == "" {
		return deps.Errors.PrincipalRequired
	}
	if IsSuperuser(admin, deps) {
		return nil
	}

	targetGroups, err := deps.GroupsOf(ctx, strings.ToUpper(strings.TrimSpace(target)))
	if err != nil {
		return err
	}
	adminGroups, err := groupsOfAdmin(ctx, admin, deps)
	if err != nil {
		return err
	}
	return checkRelationship(admin, adminGroups, targetGroups, deps)
}

// groupsOfAdmin returns the admin's groups. Superusers skip the lookup and
// an admin without a local account has no groups.
func groupsOfAdmin(ctx context.Context, admin AdminRecord, deps AuthorizationDeps) ([]string, error) {
	if IsSuperuser(admin, deps) {
		return nil, nil
	}
	groups, err := deps.GroupsOf(ctx, strings.ToUpper(strings.TrimSpace(admin.Username)))
	if err != nil {
		if deps.Errors.AccountNotFound != nil && errors.Is(err, deps.Errors.AccountNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return groups, nil
}

func checkRelationship(admin AdminRecord, adminGroups, targetGroups []string, deps AuthorizationDeps) error {
	if IsSuperuser(admin, deps) {
		return nil
	}
	if authority.Intersects(adminGroups, targetGroups) {
		return nil
	}
	return deps.Errors.NoRelationship
}

// RunAssignableRoles lists the roles admin may grant, sorted by name.
func RunAssignableRoles(ctx context.Context, admin AdminRecord, deps AuthorizationDeps) ([]RoleRecord, error) {
	if deps.AllRoles == nil || deps.GroupAssignableRoles == nil {
		return nil, deps.Errors.EngineNotReady
	}
	if strings.TrimSpace(admin.Username) == "" {
		return nil, deps.Errors.PrincipalRequired
	}

	var (
		roles []RoleRecord
		err   error
	)
	superuser := IsSuperuser(admin, deps)
	if superuser {
		roles, err = deps.AllRoles(ctx)
	} else {
		roles, err = deps.GroupAssignableRoles(ctx, strings.ToUpper(strings.TrimSpace(admin.Username)))
	}
	if err != nil {
		return nil, err
	}

	// The reserved role is dropped after the group union so that a group
	// misconfigured to include it still never hands it out.
	allowReserved := superuser && deps.ReservedRoleGate != "" &&
		authority.Contains(admin.Authorities, deps.ReservedRoleGate, authority.Normalize)
	reserved := authority.Normalize(deps.ReservedRole)

	seen := make(map[string]struct{}, len(roles))
	out := make([]RoleRecord, 0, len(roles))
	for _, r := range roles {
		code := authority.Normalize(r.Code)
		if code == "" {
			continue
		}
		if reserved != "" && code == reserved && !allowReserved {
			continue
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		r.Code = code
		out = append(out, r)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Code < out[j].Code
	})
	return out, nil
}

func containsRole(roles []RoleRecord, code string) bool {
	for _, r := range roles {
		if r.Code == code {
			return true
		}
	}
	return false
}
