package idpcore

import (
	"context"
	"time"

	"github.com/MrEthical07/idpcore/internal/audit"
	"github.com/MrEthical07/idpcore/internal/flows"
	"github.com/MrEthical07/idpcore/internal/logging"
	"github.com/MrEthical07/idpcore/jwt"
	"github.com/MrEthical07/idpcore/password"
)

// Engine is the authentication decision engine and delegated administration
// model. Build one with New().With...().Build(); it is safe for concurrent use.
type Engine struct {
	config     Config
	accounts   AccountStore
	roles      RoleStore
	groups     GroupStore
	tokens     TokenStore
	retries    RetryTracker
	directory  Directory
	notifier   Notifier
	schemes    *password.Schemes
	jwtManager *jwt.Manager
	audit      *audit.Dispatcher
	metrics    *Metrics
	logger     logging.Logger
	flows      flows.Service
	now        func() time.Time
}

// Close flushes pending audit events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were dropped on a full buffer
// or lost to a failing sink.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) metricObserve(id MetricID, d time.Duration) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Observe(id, d)
}

func (e *Engine) warn(msg string, args ...any) {
	if e == nil || e.logger == nil {
		return
	}
	e.logger.Warn(context.Background(), msg, args...)
}

func (e *Engine) clock() time.Time {
	if e.now != nil {
		return e.now()
	}
	return time.Now()
}

/*
====================================
RECORD CONVERSION
====================================
*/

func toFlowAccount(a Account) flows.AccountRecord {
	return flows.AccountRecord{
		Username:       a.Username,
		PasswordHash:   a.PasswordHash,
		Email:          a.Email,
		FirstName:      a.FirstName,
		Verified:       a.Verified,
		Locked:         a.Locked,
		Enabled:        a.Enabled,
		Master:         a.Master,
		InactiveReason: a.InactiveReason,
		PasswordExpiry: a.PasswordExpiry,
		LastLoggedIn:   a.LastLoggedIn,
		Authorities:    append([]string(nil), a.Authorities...),
		Groups:         append([]string(nil), a.Groups...),
	}
}

// applyFlowAccount copies r onto a, keeping the identity fields of a.
func applyFlowAccount(a *Account, r flows.AccountRecord) {
	a.PasswordHash = r.PasswordHash
	a.Email = r.Email
	a.FirstName = r.FirstName
	a.Verified = r.Verified
	a.Locked = r.Locked
	a.Enabled = r.Enabled
	a.Master = r.Master
	a.InactiveReason = r.InactiveReason
	a.PasswordExpiry = r.PasswordExpiry
	a.LastLoggedIn = r.LastLoggedIn
	a.Authorities = r.Authorities
	a.Groups = r.Groups
}

func fromFlowAccount(r flows.AccountRecord) Account {
	var a Account
	a.Username = r.Username
	applyFlowAccount(&a, r)
	return a
}

func toFlowAdmin(p Principal) flows.AdminRecord {
	return flows.AdminRecord{
		Username:    p.Username,
		Authorities: append([]string(nil), p.Authorities...),
	}
}

func toFlowRole(a Authority) flows.RoleRecord {
	return flows.RoleRecord{Code: a.Code, Name: a.Name, GroupAssignable: a.GroupAssignable}
}

func fromFlowRole(r flows.RoleRecord) Authority {
	return Authority{Code: r.Code, Name: r.Name, GroupAssignable: r.GroupAssignable}
}

func toFlowGroup(g Group) flows.GroupRecord {
	out := flows.GroupRecord{Code: g.Code, Name: g.Name}
	for _, r := range g.AssignableRoles {
		out.Roles = append(out.Roles, flows.GroupRoleRecord{Code: r.RoleCode, Automatic: r.Automatic})
	}
	return out
}

func fromFlowGroup(r flows.GroupRecord) Group {
	out := Group{Code: r.Code, Name: r.Name}
	for _, role := range r.Roles {
		out.AssignableRoles = append(out.AssignableRoles, GroupAssignableRole{RoleCode: role.Code, Automatic: role.Automatic})
	}
	return out
}

func toFlowToken(t Token) flows.TokenRecord {
	return flows.TokenRecord{Value: t.Value, Type: string(t.Type), Username: t.Username, ExpiresAt: t.ExpiresAt}
}

func fromFlowToken(r flows.TokenRecord) Token {
	return Token{Value: r.Value, Type: TokenType(r.Type), Username: r.Username, ExpiresAt: r.ExpiresAt}
}
