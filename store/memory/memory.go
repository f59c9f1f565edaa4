// Package memory is an in-process implementation of every idpcore
// collaborator store. It backs local development and tests.
package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/MrEthical07/idpcore"
	"github.com/MrEthical07/idpcore/authority"
	"github.com/google/uuid"
)

// Store keeps accounts, roles, groups, tokens and retry counters in maps.
// Each kind has its own lock; Update holds the account lock for the whole
// read-modify-write.
type Store struct {
	accountsMu sync.RWMutex
	accounts   map[string]idpcore.Account

	refMu  sync.RWMutex
	roles  map[string]idpcore.Authority
	groups map[string]idpcore.Group

	tokensMu sync.Mutex
	tokens   map[string]idpcore.Token

	retriesMu sync.Mutex
	retries   map[string]int
}

func New() *Store {
	return &Store{
		accounts: make(map[string]idpcore.Account),
		roles:    make(map[string]idpcore.Authority),
		groups:   make(map[string]idpcore.Group),
		tokens:   make(map[string]idpcore.Token),
		retries:  make(map[string]int),
	}
}

func userKey(username string) string {
	return strings.ToUpper(strings.TrimSpace(username))
}

/*
====================================
ACCOUNTS
====================================
*/

func (s *Store) FindByUsername(_ context.Context, username string, masterOnly bool) (idpcore.Account, error) {
	s.accountsMu.RLock()
	defer s.accountsMu.RUnlock()

	acct, ok := s.accounts[userKey(username)]
	if !ok || (masterOnly && !acct.Master) {
		return idpcore.Account{}, idpcore.ErrAccountNotFound
	}
	return cloneAccount(acct), nil
}

// Save inserts or replaces account. A zero ID is assigned.
func (s *Store) Save(_ context.Context, account idpcore.Account) error {
	account.Username = userKey(account.Username)
	if account.Username == "" {
		return idpcore.ErrAccountNotFound
	}
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}

	s.accountsMu.Lock()
	s.accounts[account.Username] = cloneAccount(account)
	s.accountsMu.Unlock()
	return nil
}

func (s *Store) Update(_ context.Context, username string, fn func(*idpcore.Account) error) (idpcore.Account, error) {
	key := userKey(username)

	s.accountsMu.Lock()
	defer s.accountsMu.Unlock()

	current, ok := s.accounts[key]
	if !ok {
		return idpcore.Account{}, idpcore.ErrAccountNotFound
	}
	next := cloneAccount(current)
	if err := fn(&next); err != nil {
		return idpcore.Account{}, err
	}
	next.ID = current.ID
	next.Username = current.Username
	s.accounts[key] = cloneAccount(next)
	return cloneAccount(next), nil
}

/*
====================================
ROLES AND GROUPS
====================================
*/

// SaveRole registers a role under its normalized code.
func (s *Store) SaveRole(role idpcore.Authority) {
	role.Code = authority.Normalize(role.Code)
	s.refMu.Lock()
	s.roles[role.Code] = role
	s.refMu.Unlock()
}

func (s *Store) SaveGroup(group idpcore.Group) {
	group.Code = authority.NormalizeGroup(group.Code)
	group.AssignableRoles = append([]idpcore.GroupAssignableRole(nil), group.AssignableRoles...)
	for i := range group.AssignableRoles {
		group.AssignableRoles[i].RoleCode = authority.Normalize(group.AssignableRoles[i].RoleCode)
	}
	s.refMu.Lock()
	s.groups[group.Code] = group
	s.refMu.Unlock()
}

func (s *Store) FindRoleByCode(_ context.Context, code string) (idpcore.Authority, error) {
	s.refMu.RLock()
	defer s.refMu.RUnlock()

	role, ok := s.roles[authority.Normalize(code)]
	if !ok {
		return idpcore.Authority{}, idpcore.ErrRoleNotFound
	}
	return role, nil
}

// FindAllRoles returns every role ordered by name.
func (s *Store) FindAllRoles(_ context.Context) ([]idpcore.Authority, error) {
	s.refMu.RLock()
	out := make([]idpcore.Authority, 0, len(s.roles))
	for _, r := range s.roles {
		out = append(out, r)
	}
	s.refMu.RUnlock()

	sortByName(out)
	return out, nil
}

// FindGroupAssignableRoles returns the distinct roles assignable through
// any group username belongs to, ordered by name. An unknown username has
// no groups and yields an empty result.
func (s *Store) FindGroupAssignableRoles(ctx context.Context, username string) ([]idpcore.Authority, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	acct, err := s.FindByUsername(ctx, username, false)
	if errors.Is(err, idpcore.ErrAccountNotFound) {
		return []idpcore.Authority{}, nil
	}
	if err != nil {
		return nil, err
	}

	s.refMu.RLock()
	seen := make(map[string]struct{})
	out := make([]idpcore.Authority, 0)
	for _, code := range acct.Groups {
		g, ok := s.groups[authority.NormalizeGroup(code)]
		if !ok {
			continue
		}
		for _, gr := range g.AssignableRoles {
			role, ok := s.roles[gr.RoleCode]
			if !ok {
				continue
			}
			if _, dup := seen[role.Code]; dup {
				continue
			}
			seen[role.Code] = struct{}{}
			out = append(out, role)
		}
	}
	s.refMu.RUnlock()

	sortByName(out)
	return out, nil
}

func (s *Store) FindGroupByCode(_ context.Context, code string) (idpcore.Group, error) {
	s.refMu.RLock()
	defer s.refMu.RUnlock()

	g, ok := s.groups[authority.NormalizeGroup(code)]
	if !ok {
		return idpcore.Group{}, idpcore.ErrGroupNotFound
	}
	g.AssignableRoles = append([]idpcore.GroupAssignableRole(nil), g.AssignableRoles...)
	return g, nil
}

func (s *Store) FindAllGroups(_ context.Context) ([]idpcore.Group, error) {
	s.refMu.RLock()
	out := make([]idpcore.Group, 0, len(s.groups))
	for _, g := range s.groups {
		g.AssignableRoles = append([]idpcore.GroupAssignableRole(nil), g.AssignableRoles...)
		out = append(out, g)
	}
	s.refMu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Code < out[j].Code
	})
	return out, nil
}

/*
====================================
TOKENS
====================================
*/

func (s *Store) SaveToken(_ context.Context, token idpcore.Token) error {
	if token.Value == "" {
		return idpcore.ErrTokenInvalid
	}
	s.tokensMu.Lock()
	s.tokens[token.Value] = token
	s.tokensMu.Unlock()
	return nil
}

func (s *Store) GetToken(_ context.Context, value string) (idpcore.Token, error) {
	s.tokensMu.Lock()
	defer s.tokensMu.Unlock()

	t, ok := s.tokens[value]
	if !ok {
		return idpcore.Token{}, idpcore.ErrTokenInvalid
	}
	return t, nil
}

// ConsumeToken removes and returns value; a second call fails with
// ErrTokenInvalid.
func (s *Store) ConsumeToken(_ context.Context, value string) (idpcore.Token, error) {
	s.tokensMu.Lock()
	defer s.tokensMu.Unlock()

	t, ok := s.tokens[value]
	if !ok {
		return idpcore.Token{}, idpcore.ErrTokenInvalid
	}
	delete(s.tokens, value)
	return t, nil
}

func (s *Store) DeleteToken(_ context.Context, value string) error {
	s.tokensMu.Lock()
	delete(s.tokens, value)
	s.tokensMu.Unlock()
	return nil
}

/*
====================================
RETRIES
====================================
*/

func (s *Store) IncrementRetries(_ context.Context, username string) (int, error) {
	key := userKey(username)
	s.retriesMu.Lock()
	defer s.retriesMu.Unlock()

	n := s.retries[key] + 1
	s.retries[key] = n
	return n, nil
}

func (s *Store) ResetRetries(_ context.Context, username string) error {
	s.retriesMu.Lock()
	delete(s.retries, userKey(username))
	s.retriesMu.Unlock()
	return nil
}

// Retries returns the current failure count for username.
func (s *Store) Retries(username string) int {
	s.retriesMu.Lock()
	defer s.retriesMu.Unlock()
	return s.retries[userKey(username)]
}

func sortByName(roles []idpcore.Authority) {
	sort.SliceStable(roles, func(i, j int) bool {
		if roles[i].Name != roles[j].Name {
			return roles[i].Name < roles[j].Name
		}
		return roles[i].Code < roles[j].Code
	})
}

func cloneAccount(a idpcore.Account) idpcore.Account {
	a.Authorities = append([]string(nil), a.Authorities...)
	a.Groups = append([]string(nil), a.Groups...)
	return a
}

var (
	_ idpcore.AccountStore = (*Store)(nil)
	_ idpcore.RoleStore    = (*Store)(nil)
	_ idpcore.GroupStore   = (*Store)(nil)
	_ idpcore.TokenStore   = (*Store)(nil)
	_ idpcore.RetryTracker = (*Store)(nil)
)
