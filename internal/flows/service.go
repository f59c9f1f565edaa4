package flows

import (
	"context"
	"time"
)

// Service is the centralized flow runner built once by the root engine.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	return Service{deps: deps}
}

// Initialized reports whether the service has been wired with flow deps.
func (s Service) Initialized() bool {
	return s.deps.Authenticate.FindAccount != nil
}

func (s Service) Authenticate(ctx context.Context, username, password string) (AccountRecord, error) {
	return RunAuthenticate(ctx, username, password, s.deps.Authenticate)
}

func (s Service) IsPermittedToManage(ctx context.Context, admin AdminRecord, target string) error {
	return RunIsPermittedToManage(ctx, admin, target, s.deps.Authorization)
}

func (s Service) AssignableRoles(ctx context.Context, admin AdminRecord) ([]RoleRecord, error) {
	return RunAssignableRoles(ctx, admin, s.deps.Authorization)
}

func (s Service) AddRole(ctx context.Context, target, roleCode string, admin AdminRecord) error {
	return RunAddRole(ctx, target, roleCode, admin, s.deps.Roles)
}

func (s Service) RemoveRole(ctx context.Context, target, roleCode string, admin AdminRecord) error {
	return RunRemoveRole(ctx, target, roleCode, admin, s.deps.Roles)
}

func (s Service) AddGroup(ctx context.Context, target, groupCode string, admin AdminRecord) error {
	return RunAddGroup(ctx, target, groupCode, admin, s.deps.Groups)
}

func (s Service) RemoveGroup(ctx context.Context, target, groupCode string, admin AdminRecord) error {
	return RunRemoveGroup(ctx, target, groupCode, admin, s.deps.Groups)
}

func (s Service) AssignableGroups(ctx context.Context, admin AdminRecord) ([]GroupRecord, error) {
	return RunAssignableGroups(ctx, admin, s.deps.Groups)
}

func (s Service) SetEnabled(ctx context.Context, target string, enabled bool, reason string, admin AdminRecord) (AccountRecord, error) {
	return RunSetEnabled(ctx, target, enabled, reason, admin, s.deps.Status)
}

func (s Service) SetLocked(ctx context.Context, target string, locked bool, admin AdminRecord) error {
	return RunSetLocked(ctx, target, locked, admin, s.deps.Status)
}

func (s Service) CreateToken(ctx context.Context, tokenType, username string, ttl time.Duration) (TokenRecord, error) {
	return RunCreateToken(ctx, tokenType, username, ttl, s.deps.Tokens)
}

func (s Service) CheckToken(ctx context.Context, tokenType, value, username string) (TokenRecord, error) {
	return RunCheckToken(ctx, tokenType, value, username, s.deps.Tokens)
}

func (s Service) ConsumeToken(ctx context.Context, tokenType, value string) (TokenRecord, error) {
	return RunConsumeToken(ctx, tokenType, value, s.deps.Tokens)
}

func (s Service) ChangePassword(ctx context.Context, username, newPassword string, unlock bool) error {
	return RunChangePassword(ctx, username, newPassword, unlock, s.deps.Password)
}

func (s Service) Notify(ctx context.Context, req NotifyRequest) error {
	return RunNotify(ctx, req, s.deps.Notify)
}
