package idpcore

import (
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/MrEthical07/idpcore/password"
)

// Config holds every engine setting. Obtain defaults with DefaultConfig,
// adjust, then pass to Builder.WithConfig; the builder keeps its own copy.
type Config struct {
	Lockout  LockoutConfig
	Password PasswordConfig
	Token    TokenConfig
	Roles    RolesConfig
	Accounts AccountsConfig
	Notify   NotifyConfig
	JWT      JWTConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
	Redis    RedisConfig
	Database DatabaseConfig
	Logging  LoggingConfig
	HTTP     HTTPConfig
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutConfig controls the consecutive-failure lockout. The MaxRetries-th
// consecutive failure locks the account.
type LockoutConfig struct {
	MaxRetries  int
	RetryWindow time.Duration // 0 keeps the counter until success or lockout
	RedisPrefix string
}

/*
====================================
PASSWORD CONFIG
====================================
*/

type PasswordConfig struct {
	DefaultScheme  string // "bcrypt" (default) or "argon2id"
	BcryptCost     int
	Argon2         password.Argon2Config
	PasswordAge    time.Duration
	UpgradeOnLogin bool
}

/*
====================================
TOKEN CONFIG
====================================
*/

type TokenConfig struct {
	ResetTTL           time.Duration
	VerifyTTL          time.Duration
	InitialPasswordTTL time.Duration
	// ExpiredRetention keeps expired tokens long enough to report them as
	// expired instead of invalid.
	ExpiredRetention time.Duration
	RedisPrefix      string
}

/*
====================================
ROLES CONFIG
====================================
*/

// RolesConfig names the authorities that drive delegated administration.
// Authorities are given in canonical ROLE_ form; ReservedRole is a bare code.
type RolesConfig struct {
	SuperuserAuthority    string
	GroupManagerAuthority string
	ReservedRole          string
	ReservedRoleGate      string
}

/*
====================================
ACCOUNTS CONFIG
====================================
*/

type AccountsConfig struct {
	// EnableGrace is how far back LastLoggedIn is set when an account is
	// re-enabled, so the inactivity sweep does not disable it again at once.
	EnableGrace       time.Duration
	InactivityTrigger time.Duration
	DirectoryIDType   string
	DisabledReason    string
}

/*
====================================
NOTIFY CONFIG
====================================
*/

type NotifyConfig struct {
	Enabled                 bool
	BaseURL                 string
	APIKey                  string
	Timeout                 time.Duration
	RatePerSecond           float64
	Burst                   int
	InitialPasswordTemplate string
	EnableUserTemplate      string
	InitialPasswordURL      string
}

/*
====================================
JWT CONFIG
====================================
*/

type JWTConfig struct {
	Enabled       bool
	AccessTTL     time.Duration
	SigningMethod string // "ed25519" (default), "hs256" optional
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
}

/*
====================================
OBSERVABILITY CONFIG
====================================
*/

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

type LoggingConfig struct {
	Level  string
	Format string // "text" or "json"
}

/*
====================================
INFRASTRUCTURE CONFIG
====================================
*/

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type DatabaseConfig struct {
	DSN             string
	MaxConnections  int
	MinConnections  int
	ConnMaxLifetime time.Duration
	MigrateOnStart  bool
}

type HTTPConfig struct {
	Addr              string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Lockout: LockoutConfig{
			MaxRetries:  3,
			RetryWindow: 0,
			RedisPrefix: "arc",
		},
		Password: PasswordConfig{
			DefaultScheme: password.SchemeBcrypt,
			BcryptCost:    bcrypt.DefaultCost,
			Argon2: password.Argon2Config{
				Memory:      65536,
				Time:        3,
				Parallelism: 2,
				SaltLength:  16,
				KeyLength:   32,
			},
			PasswordAge:    28 * 24 * time.Hour,
			UpgradeOnLogin: true,
		},
		Token: TokenConfig{
			ResetTTL:           24 * time.Hour,
			VerifyTTL:          24 * time.Hour,
			InitialPasswordTTL: 7 * 24 * time.Hour,
			ExpiredRetention:   24 * time.Hour,
			RedisPrefix:        "atk",
		},
		Roles: RolesConfig{
			SuperuserAuthority:    "ROLE_MAINTAIN_OAUTH_USERS",
			GroupManagerAuthority: "ROLE_AUTH_GROUP_MANAGER",
			ReservedRole:          "OAUTH_ADMIN",
			ReservedRoleGate:      "ROLE_OAUTH_ADMIN",
		},
		Accounts: AccountsConfig{
			EnableGrace:       7 * 24 * time.Hour,
			InactivityTrigger: 90 * 24 * time.Hour,
			DirectoryIDType:   "username",
			DisabledReason:    "Disabled by administrator",
		},
		Notify: NotifyConfig{
			Enabled:                 false,
			Timeout:                 10 * time.Second,
			RatePerSecond:           10,
			Burst:                   10,
			InitialPasswordTemplate: "initial-password",
			EnableUserTemplate:      "enable-user",
		},
		JWT: JWTConfig{
			Enabled:       false,
			AccessTTL:     20 * time.Minute,
			SigningMethod: "ed25519",
			Issuer:        "idpcore",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Database: DatabaseConfig{
			MaxConnections:  25,
			MinConnections:  5,
			ConnMaxLifetime: 30 * time.Minute,
			MigrateOnStart:  false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		HTTP: HTTPConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   10 * time.Second,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	// Lockout
	if c.Lockout.MaxRetries <= 0 {
		return errors.New("Lockout MaxRetries must be > 0")
	}
	if c.Lockout.RetryWindow < 0 {
		return errors.New("Lockout RetryWindow must be >= 0")
	}

	// Password
	switch c.Password.DefaultScheme {
	case password.SchemeBcrypt:
		if c.Password.BcryptCost != 0 &&
			(c.Password.BcryptCost < bcrypt.MinCost || c.Password.BcryptCost > bcrypt.MaxCost) {
			return errors.New("Password BcryptCost is out of range")
		}
	case password.SchemeArgon2:
		if c.Password.Argon2.Memory < 8*1024 {
			return errors.New("Password Argon2 Memory must be >= 8192 KB")
		}
		if c.Password.Argon2.Time < 1 || c.Password.Argon2.Parallelism < 1 {
			return errors.New("Password Argon2 Time and Parallelism must be >= 1")
		}
	default:
		return errors.New("Password DefaultScheme must be 'bcrypt' or 'argon2id'")
	}
	if c.Password.PasswordAge <= 0 {
		return errors.New("Password PasswordAge must be > 0")
	}

	// Tokens
	if c.Token.ResetTTL <= 0 || c.Token.VerifyTTL <= 0 || c.Token.InitialPasswordTTL <= 0 {
		return errors.New("Token TTLs must be > 0")
	}
	if c.Token.ExpiredRetention < 0 {
		return errors.New("Token ExpiredRetention must be >= 0")
	}

	// Roles
	if strings.TrimSpace(c.Roles.SuperuserAuthority) == "" {
		return errors.New("Roles SuperuserAuthority is required")
	}
	if strings.TrimSpace(c.Roles.ReservedRole) != "" && strings.TrimSpace(c.Roles.ReservedRoleGate) == "" {
		return errors.New("Roles ReservedRoleGate is required when ReservedRole is set")
	}

	// Accounts
	if c.Accounts.EnableGrace < 0 || c.Accounts.InactivityTrigger < 0 {
		return errors.New("Accounts durations must be >= 0")
	}

	// Notify
	if c.Notify.Enabled {
		if strings.TrimSpace(c.Notify.InitialPasswordTemplate) == "" {
			return errors.New("Notify InitialPasswordTemplate is required when notify is enabled")
		}
		if c.Notify.RatePerSecond < 0 || c.Notify.Burst < 0 {
			return errors.New("Notify rate settings must be >= 0")
		}
	}

	// JWT
	if c.JWT.Enabled {
		if c.JWT.AccessTTL <= 0 {
			return errors.New("JWT AccessTTL must be > 0")
		}
		if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
			return errors.New("JWT Leeway must be between 0 and 2m")
		}
		switch c.JWT.SigningMethod {
		case "ed25519":
			if len(c.JWT.PublicKey) == 0 {
				return errors.New("ed25519 requires PublicKey")
			}
		case "hs256":
			if len(c.JWT.PrivateKey) < 32 {
				return errors.New("hs256 requires a PrivateKey of at least 32 bytes")
			}
		default:
			return errors.New("unsupported JWT signing method")
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	// Database
	if c.Database.MaxConnections < 0 || c.Database.MinConnections < 0 {
		return errors.New("Database connection limits must be >= 0")
	}
	if c.Database.MaxConnections > 0 && c.Database.MinConnections > c.Database.MaxConnections {
		return errors.New("Database MinConnections must be <= MaxConnections")
	}

	return nil
}
