package idpcore

import (
	"context"
	"time"

	"github.com/MrEthical07/idpcore/authority"
	"github.com/google/uuid"
)

// Account is one identity record. Username is stored upper case and
// Authorities hold role codes without the ROLE_ prefix.
type Account struct {
	ID             uuid.UUID
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

// HasAuthority reports whether the account holds code, given with or
// without the ROLE_ prefix.
func (a Account) HasAuthority(code string) bool {
	return authority.Contains(a.Authorities, code, authority.Normalize)
}

func (a Account) InGroup(code string) bool {
	return authority.Contains(a.Groups, code, authority.NormalizeGroup)
}

func (a Account) clone() Account {
	out := a
	out.Authorities = append([]string(nil), a.Authorities...)
	out.Groups = append([]string(nil), a.Groups...)
	return out
}

// Authority is a role definition.
type Authority struct {
	Code            string
	Name            string
	GroupAssignable bool
}

// Authority returns the canonical ROLE_-prefixed form of the code.
func (a Authority) Authority() string {
	return authority.Canonical(a.Code)
}

type GroupAssignableRole struct {
	RoleCode  string
	Automatic bool
}

// Group scopes delegated administration. AssignableRoles marked Automatic
// are granted when a user joins the group.
type Group struct {
	Code            string
	Name            string
	AssignableRoles []GroupAssignableRole
}

// Principal is the administrator on whose behalf a mutation runs.
// Authorities are canonical (ROLE_-prefixed).
type Principal struct {
	Username    string
	Authorities []string
}

func (p Principal) HasAuthority(code string) bool {
	return authority.Contains(p.Authorities, code, authority.Normalize)
}

type TokenType string

const (
	TokenReset  TokenType = "RESET"
	TokenVerify TokenType = "VERIFY"
)

// Description names the token flow in audit events.
func (t TokenType) Description() string {
	switch t {
	case TokenReset:
		return "ResetPassword"
	case TokenVerify:
		return "VerifyEmail"
	default:
		return string(t)
	}
}

func (t TokenType) valid() bool {
	return t == TokenReset || t == TokenVerify
}

type Token struct {
	Value     string
	Type      TokenType
	Username  string
	ExpiresAt time.Time
}

// ExternalAccount is what the legacy directory knows about a user.
type ExternalAccount struct {
	Username  string
	Email     string
	FirstName string
	Locked    bool
	Enabled   bool
}

/*
====================================
COLLABORATORS
====================================
*/

// AccountStore persists accounts. FindByUsername and Update return
// ErrAccountNotFound for unknown users.
type AccountStore interface {
	// FindByUsername looks up an account. masterOnly restricts the lookup to
	// accounts whose credentials this service owns.
	FindByUsername(ctx context.Context, username string, masterOnly bool) (Account, error)
	// Save inserts or replaces an account.
	Save(ctx context.Context, account Account) error
	// Update applies fn to the stored account as one atomic read-modify-write.
	// An error from fn aborts the update and is returned unchanged.
	Update(ctx context.Context, username string, fn func(*Account) error) (Account, error)
}

type RoleStore interface {
	// FindRoleByCode returns ErrRoleNotFound for unknown codes.
	FindRoleByCode(ctx context.Context, code string) (Authority, error)
	// FindAllRoles returns every role sorted by Name.
	FindAllRoles(ctx context.Context) ([]Authority, error)
	// FindGroupAssignableRoles returns the union of assignable roles across
	// the groups username belongs to.
	FindGroupAssignableRoles(ctx context.Context, username string) ([]Authority, error)
}

type GroupStore interface {
	// FindGroupByCode returns ErrGroupNotFound for unknown codes.
	FindGroupByCode(ctx context.Context, code string) (Group, error)
	FindAllGroups(ctx context.Context) ([]Group, error)
}

// TokenStore persists single-use tokens. GetToken and ConsumeToken return
// ErrTokenInvalid for unknown values. ConsumeToken must be atomic: at most
// one caller receives a given token.
type TokenStore interface {
	SaveToken(ctx context.Context, token Token) error
	GetToken(ctx context.Context, value string) (Token, error)
	ConsumeToken(ctx context.Context, value string) (Token, error)
	DeleteToken(ctx context.Context, value string) error
}

// RetryTracker counts consecutive failed authentications. IncrementRetries
// must be atomic per username. The count is never cleared by reaching the
// lockout threshold; the engine clears it with ResetRetries only after the
// lock has been written, so a failed lock write keeps the account at or
// above the threshold.
type RetryTracker interface {
	IncrementRetries(ctx context.Context, username string) (int, error)
	ResetRetries(ctx context.Context, username string) error
}

// Directory is the legacy external directory. ResolveExternalAccount
// returns found=false for unknown ids.
type Directory interface {
	ResolveExternalAccount(ctx context.Context, idType, id string) (ExternalAccount, bool, error)
	VerifyPassword(ctx context.Context, username, password string) (bool, error)
}

// Notifier sends a templated message. Failures that carry a provider status
// should implement StatusCode() int so the engine can decide on a retry.
type Notifier interface {
	Send(ctx context.Context, templateID, recipient string, params map[string]string) error
}
