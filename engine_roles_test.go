package idpcore

import (
	"context"
	"errors"
	"testing"
)

func roleCodes(roles []Authority) []string {
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		out = append(out, r.Code)
	}
	return out
}

func sameCodes(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestIsPermittedToManage(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		admin  Principal
		target string
		want   error
	}{
		{"superuser any target", superuser, "CAROL", nil},
		{"shared group", bobAdmin, "dave", nil},
		{"no shared group", bobAdmin, "CAROL", ErrNoRelationship},
		{"target without groups", bobAdmin, "ALICE", ErrNoRelationship},
		{"admin without local account", Principal{Username: "GHOST", Authorities: []string{"ROLE_AUTH_GROUP_MANAGER"}}, "DAVE", ErrNoRelationship},
		{"missing principal", Principal{}, "DAVE", ErrPrincipalRequired},
		{"unknown target", bobAdmin, "NOBODY", ErrAccountNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := h.engine.IsPermittedToManage(ctx, tc.admin, tc.target)
			if !errors.Is(err, tc.want) || (tc.want == nil && err != nil) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestAssignableRolesSuperuserExcludesReserved(t *testing.T) {
	h := newHarness(t)

	roles, err := h.engine.AssignableRoles(context.Background(), superuser)
	if err != nil {
		t.Fatalf("AssignableRoles error: %v", err)
	}
	want := []string{"GLOBAL_SEARCH", "LICENCE_RO", "LICENCE_VARY", "MAINTAIN_OAUTH_USERS"}
	if got := roleCodes(roles); !sameCodes(got, want) {
		t.Fatalf("expected %v sorted by name, got %v", want, got)
	}
}

func TestAssignableRolesGatedSuperuserSeesReserved(t *testing.T) {
	h := newHarness(t)
	admin := Principal{Username: "ROOT", Authorities: []string{"ROLE_MAINTAIN_OAUTH_USERS", "ROLE_OAUTH_ADMIN"}}

	roles, err := h.engine.AssignableRoles(context.Background(), admin)
	if err != nil {
		t.Fatalf("AssignableRoles error: %v", err)
	}
	want := []string{"GLOBAL_SEARCH", "LICENCE_RO", "LICENCE_VARY", "MAINTAIN_OAUTH_USERS", "OAUTH_ADMIN"}
	if got := roleCodes(roles); !sameCodes(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestAssignableRolesGroupAdminNeverSeesReserved(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for _, admin := range []Principal{
		bobAdmin,
		{Username: "BOB", Authorities: []string{"ROLE_AUTH_GROUP_MANAGER", "ROLE_OAUTH_ADMIN"}},
	} {
		roles, err := h.engine.AssignableRoles(ctx, admin)
		if err != nil {
			t.Fatalf("AssignableRoles error: %v", err)
		}
		want := []string{"LICENCE_RO", "LICENCE_VARY"}
		if got := roleCodes(roles); !sameCodes(got, want) {
			t.Fatalf("admin %v: expected %v, got %v", admin.Authorities, want, got)
		}
	}
}

func TestAddRoleTwiceFailsAlreadyAssigned(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if err := h.engine.AddRole(ctx, "alice", " role_global_search ", superuser); err != nil {
		t.Fatalf("AddRole error: %v", err)
	}
	err := h.engine.AddRole(ctx, "ALICE", "GLOBAL_SEARCH", superuser)
	if !errors.Is(err, ErrRoleAlreadyAssigned) {
		t.Fatalf("expected ErrRoleAlreadyAssigned, got %v", err)
	}
	if got := h.account(t, "alice").Authorities; !sameCodes(got, []string{"GLOBAL_SEARCH"}) {
		t.Fatalf("expected a single GLOBAL_SEARCH entry, got %v", got)
	}
}

func TestRemoveRoleNotAssignedLeavesState(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	before := h.account(t, "dave").Authorities

	err := h.engine.RemoveRole(ctx, "dave", "GLOBAL_SEARCH", superuser)
	if !errors.Is(err, ErrRoleNotAssigned) {
		t.Fatalf("expected ErrRoleNotAssigned, got %v", err)
	}
	if got := h.account(t, "dave").Authorities; !sameCodes(got, before) {
		t.Fatalf("expected %v unchanged, got %v", before, got)
	}

	if err := h.engine.RemoveRole(ctx, "dave", "ROLE_LICENCE_RO", bobAdmin); err != nil {
		t.Fatalf("RemoveRole error: %v", err)
	}
	if got := h.account(t, "dave").Authorities; len(got) != 0 {
		t.Fatalf("expected no authorities, got %v", got)
	}
}

func TestAddRoleUnknownRoleLeavesState(t *testing.T) {
	h := newHarness(t)

	err := h.engine.AddRole(context.Background(), "CAROL", "ROLE_FOO", superuser)
	if !errors.Is(err, ErrRoleNotFound) {
		t.Fatalf("expected ErrRoleNotFound, got %v", err)
	}
	if got := h.account(t, "carol").Authorities; len(got) != 0 {
		t.Fatalf("expected CAROL unchanged, got %v", got)
	}
}

func TestAddRoleChecksInOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		target string
		role   string
		admin  Principal
		want   error
	}{
		{"relationship before role lookup", "CAROL", "ROLE_FOO", bobAdmin, ErrNoRelationship},
		{"unknown role with relationship", "DAVE", "ROLE_FOO", bobAdmin, ErrRoleNotFound},
		{"already assigned before assignability", "DAVE", "LICENCE_RO", bobAdmin, ErrRoleAlreadyAssigned},
		{"not assignable through groups", "DAVE", "GLOBAL_SEARCH", bobAdmin, ErrRoleNotAssignable},
		{"reserved role never assignable", "DAVE", "OAUTH_ADMIN", bobAdmin, ErrRoleNotAssignable},
		{"blank code", "DAVE", "  ", bobAdmin, ErrInvalidAuthorityCode},
		{"unknown target", "NOBODY", "LICENCE_VARY", superuser, ErrAccountNotFound},
		{"missing principal", "DAVE", "LICENCE_VARY", Principal{}, ErrPrincipalRequired},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := h.engine.AddRole(ctx, tc.target, tc.role, tc.admin); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
	if got := h.account(t, "dave").Authorities; !sameCodes(got, []string{"LICENCE_RO"}) {
		t.Fatalf("failed mutations changed DAVE: %v", got)
	}

	if err := h.engine.AddRole(ctx, "DAVE", "LICENCE_VARY", bobAdmin); err != nil {
		t.Fatalf("AddRole error: %v", err)
	}
}

func TestAddRoleRejectsExternalAccount(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, _ = h.store.Update(ctx, "ALICE", func(a *Account) error {
		a.Master = false
		return nil
	})

	if err := h.engine.AddRole(ctx, "ALICE", "GLOBAL_SEARCH", superuser); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestRoleMutationEmitsOneEvent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_ = h.engine.AddRole(ctx, "DAVE", "LICENCE_VARY", bobAdmin)
	_ = h.engine.AddRole(ctx, "CAROL", "LICENCE_VARY", bobAdmin)
	_ = h.engine.RemoveRole(ctx, "DAVE", "LICENCE_VARY", bobAdmin)

	events := h.events()
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %+v", events)
	}
	if e := events[0]; e.EventType != EventRoleAddSuccess || e.Username != "DAVE" || e.Admin != "BOB" || e.Metadata["role"] != "LICENCE_VARY" {
		t.Fatalf("unexpected add event %+v", e)
	}
	if e := events[1]; e.EventType != EventRoleAddFailure || e.Reason != string(auditErrNoRelationship) {
		t.Fatalf("unexpected failure event %+v", e)
	}
	if events[2].EventType != EventRoleRemoveSuccess {
		t.Fatalf("unexpected remove event %+v", events[2])
	}
}

func TestAllRolesAndUserRoles(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	all, err := h.engine.AllRoles(ctx)
	if err != nil || len(all) != 5 || all[0].Name != "Global Search" {
		t.Fatalf("unexpected AllRoles %v err=%v", all, err)
	}

	mine, err := h.engine.UserRoles(ctx, "dave")
	if err != nil {
		t.Fatalf("UserRoles error: %v", err)
	}
	if got := roleCodes(mine); !sameCodes(got, []string{"LICENCE_RO"}) {
		t.Fatalf("expected [LICENCE_RO], got %v", got)
	}
}
