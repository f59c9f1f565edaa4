package idpcore

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/idpcore/authority"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
)

var (
	superuser = Principal{Username: "ADMIN", Authorities: []string{"ROLE_MAINTAIN_OAUTH_USERS"}}
	// bobAdmin manages group G1 only.
	bobAdmin = Principal{Username: "BOB", Authorities: []string{"ROLE_AUTH_GROUP_MANAGER"}}
)

type harness struct {
	engine    *Engine
	store     *fakeStore
	redis     *miniredis.Miniredis
	sink      *recordingSink
	notifier  *fakeNotifier
	directory *fakeDirectory
	now       time.Time
}

type harnessSetup struct {
	cfg       Config
	directory bool
}

type harnessOption func(*harnessSetup)

func withConfig(fn func(*Config)) harnessOption {
	return func(s *harnessSetup) { fn(&s.cfg) }
}

func withDirectory() harnessOption {
	return func(s *harnessSetup) { s.directory = true }
}

func newHarness(t testing.TB, opts ...harnessOption) *harness {
	t.Helper()

	setup := harnessSetup{cfg: DefaultConfig()}
	setup.cfg.Password.BcryptCost = bcrypt.MinCost
	setup.cfg.Audit.Enabled = true
	setup.cfg.Audit.BufferSize = 256
	setup.cfg.Audit.DropIfFull = false
	for _, opt := range opts {
		opt(&setup)
	}

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	h := &harness{
		store:    newFakeStore(),
		redis:    mr,
		sink:     &recordingSink{},
		notifier: &fakeNotifier{},
		now:      time.Now().UTC().Truncate(time.Second),
	}

	b := New().
		WithConfig(setup.cfg).
		WithRedis(rdb).
		WithStore(h.store).
		WithNotifier(h.notifier).
		WithAuditSink(h.sink)
	if setup.directory {
		h.directory = &fakeDirectory{accounts: map[string]directoryEntry{}}
		b.WithDirectory(h.directory)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	engine.now = func() time.Time { return h.now }
	h.engine = engine
	t.Cleanup(engine.Close)

	h.seed(t)
	return h
}

func (h *harness) seed(t testing.TB) {
	t.Helper()

	for _, r := range []Authority{
		{Code: "LICENCE_RO", Name: "Licence Read Only", GroupAssignable: true},
		{Code: "LICENCE_VARY", Name: "Licence Variation", GroupAssignable: true},
		{Code: "GLOBAL_SEARCH", Name: "Global Search"},
		{Code: "OAUTH_ADMIN", Name: "Oauth Admin"},
		{Code: "MAINTAIN_OAUTH_USERS", Name: "Maintain Oauth Users"},
	} {
		h.store.roles[r.Code] = r
	}
	h.store.groups["G1"] = Group{
		Code: "G1",
		Name: "Group One",
		AssignableRoles: []GroupAssignableRole{
			{RoleCode: "LICENCE_RO", Automatic: true},
			{RoleCode: "LICENCE_VARY"},
			// misconfigured: the reserved role must still never be offered
			{RoleCode: "OAUTH_ADMIN"},
		},
	}
	h.store.groups["G2"] = Group{
		Code:            "G2",
		Name:            "Group Two",
		AssignableRoles: []GroupAssignableRole{{RoleCode: "GLOBAL_SEARCH", Automatic: true}},
	}

	h.addAccount(t, Account{Username: "ALICE", Email: "alice@example.gov", FirstName: "Alice"}, "correct-password")
	h.addAccount(t, Account{Username: "BOB", Email: "bob@example.gov", Groups: []string{"G1"}}, "bob-password")
	h.addAccount(t, Account{Username: "CAROL", Email: "carol@example.gov", Groups: []string{"G2"}}, "carol-password")
	h.addAccount(t, Account{Username: "DAVE", Groups: []string{"G1"}, Authorities: []string{"LICENCE_RO"}}, "dave-password")
}

// addAccount stores a master, enabled, unlocked account with password
// hashed by the default scheme.
func (h *harness) addAccount(t testing.TB, a Account, password string) {
	t.Helper()
	if password != "" {
		hash, err := h.engine.schemes.Hash(password)
		if err != nil {
			t.Fatalf("hash error: %v", err)
		}
		a.PasswordHash = hash
	}
	a.ID = uuid.New()
	a.Master = true
	a.Enabled = true
	a.Verified = true
	a.PasswordExpiry = h.now.Add(24 * time.Hour)
	h.store.put(a)
}

func (h *harness) account(t testing.TB, username string) Account {
	t.Helper()
	a, err := h.store.FindByUsername(context.Background(), username, false)
	if err != nil {
		t.Fatalf("account %s: %v", username, err)
	}
	return a
}

func (h *harness) retries(t testing.TB, username string) int {
	t.Helper()
	key := h.engine.config.Lockout.RedisPrefix + ":" + strings.ToUpper(username)
	if !h.redis.Exists(key) {
		return 0
	}
	v, err := h.redis.Get(key)
	if err != nil {
		t.Fatalf("redis get %s: %v", key, err)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		t.Fatalf("redis counter %q: %v", v, err)
	}
	return n
}

// events flushes the audit dispatcher and returns everything delivered.
// The engine emits no further events afterwards.
func (h *harness) events() []AuditEvent {
	h.engine.Close()
	return h.sink.all()
}

/*
====================================
FAKES
====================================
*/

type recordingSink struct {
	mu     sync.Mutex
	events []AuditEvent
}

func (s *recordingSink) Emit(_ context.Context, e AuditEvent) {
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
}

func (s *recordingSink) all() []AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]AuditEvent(nil), s.events...)
}

type panicSink struct{}

func (panicSink) Emit(context.Context, AuditEvent) { panic("sink down") }

type fakeStore struct {
	mu       sync.Mutex
	accounts map[string]Account
	roles    map[string]Authority
	groups   map[string]Group
	updates  int

	// afterFind runs once FindByUsername has released the store lock.
	afterFind func(username string)
	// commitErr may veto an Update after fn has run; the record is unchanged.
	commitErr func(before, after Account) error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		accounts: map[string]Account{},
		roles:    map[string]Authority{},
		groups:   map[string]Group{},
	}
}

func (s *fakeStore) put(a Account) {
	s.mu.Lock()
	s.accounts[a.Username] = a.clone()
	s.mu.Unlock()
}

func (s *fakeStore) FindByUsername(_ context.Context, username string, masterOnly bool) (Account, error) {
	s.mu.Lock()
	a, ok := s.accounts[strings.ToUpper(username)]
	hook := s.afterFind
	s.mu.Unlock()
	if !ok || (masterOnly && !a.Master) {
		return Account{}, ErrAccountNotFound
	}
	if hook != nil {
		hook(a.Username)
	}
	return a.clone(), nil
}

func (s *fakeStore) Save(_ context.Context, a Account) error {
	s.put(a)
	return nil
}

func (s *fakeStore) Update(_ context.Context, username string, fn func(*Account) error) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[strings.ToUpper(username)]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	next := a.clone()
	if err := fn(&next); err != nil {
		return Account{}, err
	}
	if s.commitErr != nil {
		if err := s.commitErr(a, next); err != nil {
			return Account{}, err
		}
	}
	s.updates++
	s.accounts[a.Username] = next.clone()
	return next, nil
}

func (s *fakeStore) FindRoleByCode(_ context.Context, code string) (Authority, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.roles[authority.Normalize(code)]
	if !ok {
		return Authority{}, ErrRoleNotFound
	}
	return r, nil
}

func (s *fakeStore) FindAllRoles(context.Context) ([]Authority, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Authority, 0, len(s.roles))
	for _, r := range s.roles {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *fakeStore) FindGroupAssignableRoles(_ context.Context, username string) ([]Authority, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[strings.ToUpper(username)]
	if !ok {
		return nil, nil
	}
	var out []Authority
	for _, g := range a.Groups {
		for _, gr := range s.groups[g].AssignableRoles {
			if r, ok := s.roles[gr.RoleCode]; ok {
				out = append(out, r)
			}
		}
	}
	return out, nil
}

func (s *fakeStore) FindGroupByCode(_ context.Context, code string) (Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[authority.NormalizeGroup(code)]
	if !ok {
		return Group{}, ErrGroupNotFound
	}
	return g, nil
}

func (s *fakeStore) FindAllGroups(context.Context) ([]Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Group, 0, len(s.groups))
	for _, g := range s.groups {
		out = append(out, g)
	}
	return out, nil
}

type sentMessage struct {
	template  string
	recipient string
	params    map[string]string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
	// errs is consumed one per Send; nil entries succeed.
	errs []error
}

func (n *fakeNotifier) Send(_ context.Context, templateID, recipient string, params map[string]string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentMessage{template: templateID, recipient: recipient, params: params})
	if len(n.errs) == 0 {
		return nil
	}
	err := n.errs[0]
	n.errs = n.errs[1:]
	return err
}

func (n *fakeNotifier) calls() []sentMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentMessage(nil), n.sent...)
}

type statusErr int

func (e statusErr) Error() string   { return "provider status " + strconv.Itoa(int(e)) }
func (e statusErr) StatusCode() int { return int(e) }

type directoryEntry struct {
	account  ExternalAccount
	password string
}

type fakeDirectory struct {
	mu       sync.Mutex
	accounts map[string]directoryEntry
	down     bool
}

func (d *fakeDirectory) add(a ExternalAccount, password string) {
	d.mu.Lock()
	d.accounts[strings.ToUpper(a.Username)] = directoryEntry{account: a, password: password}
	d.mu.Unlock()
}

func (d *fakeDirectory) ResolveExternalAccount(_ context.Context, _, id string) (ExternalAccount, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.down {
		return ExternalAccount{}, false, errors.New("directory unavailable")
	}
	e, ok := d.accounts[strings.ToUpper(id)]
	return e.account, ok, nil
}

func (d *fakeDirectory) VerifyPassword(_ context.Context, username, password string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.down {
		return false, errors.New("directory unavailable")
	}
	e, ok := d.accounts[strings.ToUpper(username)]
	return ok && e.password == password, nil
}
