package flows

import (
	"context"
	"time"
)

// Deps groups flow dependency sets. The root engine builds this once and
// delegates request methods to the matching flow implementation.
type Deps struct {
	Authenticate  AuthenticateDeps
	Authorization AuthorizationDeps
	Roles         RoleMutationDeps
	Groups        GroupMutationDeps
	Status        AccountStatusDeps
	Tokens        TokenDeps
	Password      PasswordDeps
	Notify        NotifyDeps
}

// AuditFunc emits one audit event. metadata may be nil.
type AuditFunc func(
	ctx context.Context,
	event string,
	success bool,
	username string,
	admin string,
	err error,
	metadata func() map[string]string,
)

func noopAudit(context.Context, string, bool, string, string, error, func() map[string]string) {}

func noopMetric(int) {}

func noopObserve(int, time.Duration) {}

func noopWarn(string, ...any) {}

// AccountRecord is the flow-local account model.
type AccountRecord struct {
	Username       string
	PasswordHash   string
	Email          string
	FirstName      string
	Verified       bool
	Locked         bool
	Enabled        bool
	Master         bool
	InactiveReason string
	PasswordExpiry time.Time
	LastLoggedIn   time.Time
	Authorities    []string
	Groups         []string
}

// AdminRecord is the administrator a mutation runs on behalf of.
type AdminRecord struct {
	Username    string
	Authorities []string
}

type RoleRecord struct {
	Code            string
	Name            string
	GroupAssignable bool
}

type GroupRoleRecord struct {
	Code      string
	Automatic bool
}

type GroupRecord struct {
	Code  string
	Name  string
	Roles []GroupRoleRecord
}

// UpdateAccountFunc applies fn to the stored account atomically. An error
// returned by fn aborts the update and is returned unchanged.
type UpdateAccountFunc func(ctx context.Context, username string, fn func(*AccountRecord) error) (AccountRecord, error)
