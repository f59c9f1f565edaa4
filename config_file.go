package idpcore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// configFile mirrors the YAML schema. Keys missing from the document keep
// the value the file struct was seeded with.
type configFile struct {
	Lockout struct {
		MaxRetries  int           `yaml:"max_retries"`
		RetryWindow time.Duration `yaml:"retry_window"`
		RedisPrefix string        `yaml:"redis_prefix"`
	} `yaml:"lockout"`
	Password struct {
		DefaultScheme  string        `yaml:"default_scheme"`
		BcryptCost     int           `yaml:"bcrypt_cost"`
		PasswordAge    time.Duration `yaml:"password_age"`
		UpgradeOnLogin bool          `yaml:"upgrade_on_login"`
	} `yaml:"password"`
	Token struct {
		ResetTTL           time.Duration `yaml:"reset_ttl"`
		VerifyTTL          time.Duration `yaml:"verify_ttl"`
		InitialPasswordTTL time.Duration `yaml:"initial_password_ttl"`
		ExpiredRetention   time.Duration `yaml:"expired_retention"`
		RedisPrefix        string        `yaml:"redis_prefix"`
	} `yaml:"token"`
	Roles struct {
		SuperuserAuthority    string `yaml:"superuser_authority"`
		GroupManagerAuthority string `yaml:"group_manager_authority"`
		ReservedRole          string `yaml:"reserved_role"`
		ReservedRoleGate      string `yaml:"reserved_role_gate"`
	} `yaml:"roles"`
	Accounts struct {
		EnableGrace       time.Duration `yaml:"enable_grace"`
		InactivityTrigger time.Duration `yaml:"inactivity_trigger"`
		DirectoryIDType   string        `yaml:"directory_id_type"`
	} `yaml:"accounts"`
	Notify struct {
		Enabled                 bool          `yaml:"enabled"`
		BaseURL                 string        `yaml:"base_url"`
		Timeout                 time.Duration `yaml:"timeout"`
		RatePerSecond           float64       `yaml:"rate_per_second"`
		Burst                   int           `yaml:"burst"`
		InitialPasswordTemplate string        `yaml:"initial_password_template"`
		EnableUserTemplate      string        `yaml:"enable_user_template"`
		InitialPasswordURL      string        `yaml:"initial_password_url"`
	} `yaml:"notify"`
	JWT struct {
		Enabled       bool          `yaml:"enabled"`
		AccessTTL     time.Duration `yaml:"access_ttl"`
		SigningMethod string        `yaml:"signing_method"`
		Issuer        string        `yaml:"issuer"`
		Audience      string        `yaml:"audience"`
		Leeway        time.Duration `yaml:"leeway"`
		KeyID         string        `yaml:"key_id"`
	} `yaml:"jwt"`
	Audit struct {
		Enabled    bool `yaml:"enabled"`
		BufferSize int  `yaml:"buffer_size"`
		DropIfFull bool `yaml:"drop_if_full"`
	} `yaml:"audit"`
	Metrics struct {
		Enabled                 bool `yaml:"enabled"`
		EnableLatencyHistograms bool `yaml:"latency_histograms"`
	} `yaml:"metrics"`
	Redis struct {
		Addr string `yaml:"addr"`
		DB   int    `yaml:"db"`
	} `yaml:"redis"`
	Database struct {
		MaxConnections  int           `yaml:"max_connections"`
		MinConnections  int           `yaml:"min_connections"`
		ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
		MigrateOnStart  bool          `yaml:"migrate_on_start"`
	} `yaml:"database"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
	HTTP struct {
		Addr              string        `yaml:"addr"`
		ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
		ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"http"`
}

// LoadConfigFile resolves configuration in priority order: defaults, then
// the YAML file at path (skipped when path is empty or the file does not
// exist), then IDP_* environment variables. Secrets are read from the
// environment only.
func LoadConfigFile(path string) (Config, error) {
	cfg := defaultConfig()

	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := applyConfigYAML(&cfg, raw); err != nil {
				return Config{}, err
			}
		case errors.Is(err, fs.ErrNotExist):
		default:
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	applyConfigEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyConfigYAML(cfg *Config, raw []byte) error {
	f := fileFromConfig(*cfg)
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	cfg.Lockout.MaxRetries = f.Lockout.MaxRetries
	cfg.Lockout.RetryWindow = f.Lockout.RetryWindow
	cfg.Lockout.RedisPrefix = f.Lockout.RedisPrefix

	cfg.Password.DefaultScheme = f.Password.DefaultScheme
	cfg.Password.BcryptCost = f.Password.BcryptCost
	cfg.Password.PasswordAge = f.Password.PasswordAge
	cfg.Password.UpgradeOnLogin = f.Password.UpgradeOnLogin

	cfg.Token.ResetTTL = f.Token.ResetTTL
	cfg.Token.VerifyTTL = f.Token.VerifyTTL
	cfg.Token.InitialPasswordTTL = f.Token.InitialPasswordTTL
	cfg.Token.ExpiredRetention = f.Token.ExpiredRetention
	cfg.Token.RedisPrefix = f.Token.RedisPrefix

	cfg.Roles.SuperuserAuthority = f.Roles.SuperuserAuthority
	cfg.Roles.GroupManagerAuthority = f.Roles.GroupManagerAuthority
	cfg.Roles.ReservedRole = f.Roles.ReservedRole
	cfg.Roles.ReservedRoleGate = f.Roles.ReservedRoleGate

	cfg.Accounts.EnableGrace = f.Accounts.EnableGrace
	cfg.Accounts.InactivityTrigger = f.Accounts.InactivityTrigger
	cfg.Accounts.DirectoryIDType = f.Accounts.DirectoryIDType

	cfg.Notify.Enabled = f.Notify.Enabled
	cfg.Notify.BaseURL = f.Notify.BaseURL
	cfg.Notify.Timeout = f.Notify.Timeout
	cfg.Notify.RatePerSecond = f.Notify.RatePerSecond
	cfg.Notify.Burst = f.Notify.Burst
	cfg.Notify.InitialPasswordTemplate = f.Notify.InitialPasswordTemplate
	cfg.Notify.EnableUserTemplate = f.Notify.EnableUserTemplate
	cfg.Notify.InitialPasswordURL = f.Notify.InitialPasswordURL

	cfg.JWT.Enabled = f.JWT.Enabled
	cfg.JWT.AccessTTL = f.JWT.AccessTTL
	cfg.JWT.SigningMethod = f.JWT.SigningMethod
	cfg.JWT.Issuer = f.JWT.Issuer
	cfg.JWT.Audience = f.JWT.Audience
	cfg.JWT.Leeway = f.JWT.Leeway
	cfg.JWT.KeyID = f.JWT.KeyID

	cfg.Audit.Enabled = f.Audit.Enabled
	cfg.Audit.BufferSize = f.Audit.BufferSize
	cfg.Audit.DropIfFull = f.Audit.DropIfFull

	cfg.Metrics.Enabled = f.Metrics.Enabled
	cfg.Metrics.EnableLatencyHistograms = f.Metrics.EnableLatencyHistograms

	cfg.Redis.Addr = f.Redis.Addr
	cfg.Redis.DB = f.Redis.DB

	cfg.Database.MaxConnections = f.Database.MaxConnections
	cfg.Database.MinConnections = f.Database.MinConnections
	cfg.Database.ConnMaxLifetime = f.Database.ConnMaxLifetime
	cfg.Database.MigrateOnStart = f.Database.MigrateOnStart

	cfg.Logging.Level = f.Logging.Level
	cfg.Logging.Format = f.Logging.Format

	cfg.HTTP.Addr = f.HTTP.Addr
	cfg.HTTP.ReadHeaderTimeout = f.HTTP.ReadHeaderTimeout
	cfg.HTTP.ShutdownTimeout = f.HTTP.ShutdownTimeout
	return nil
}

func fileFromConfig(cfg Config) configFile {
	var f configFile

	f.Lockout.MaxRetries = cfg.Lockout.MaxRetries
	f.Lockout.RetryWindow = cfg.Lockout.RetryWindow
	f.Lockout.RedisPrefix = cfg.Lockout.RedisPrefix

	f.Password.DefaultScheme = cfg.Password.DefaultScheme
	f.Password.BcryptCost = cfg.Password.BcryptCost
	f.Password.PasswordAge = cfg.Password.PasswordAge
	f.Password.UpgradeOnLogin = cfg.Password.UpgradeOnLogin

	f.Token.ResetTTL = cfg.Token.ResetTTL
	f.Token.VerifyTTL = cfg.Token.VerifyTTL
	f.Token.InitialPasswordTTL = cfg.Token.InitialPasswordTTL
	f.Token.ExpiredRetention = cfg.Token.ExpiredRetention
	f.Token.RedisPrefix = cfg.Token.RedisPrefix

	f.Roles.SuperuserAuthority = cfg.Roles.SuperuserAuthority
	f.Roles.GroupManagerAuthority = cfg.Roles.GroupManagerAuthority
	f.Roles.ReservedRole = cfg.Roles.ReservedRole
	f.Roles.ReservedRoleGate = cfg.Roles.ReservedRoleGate

	f.Accounts.EnableGrace = cfg.Accounts.EnableGrace
	f.Accounts.InactivityTrigger = cfg.Accounts.InactivityTrigger
	f.Accounts.DirectoryIDType = cfg.Accounts.DirectoryIDType

	f.Notify.Enabled = cfg.Notify.Enabled
	f.Notify.BaseURL = cfg.Notify.BaseURL
	f.Notify.Timeout = cfg.Notify.Timeout
	f.Notify.RatePerSecond = cfg.Notify.RatePerSecond
	f.Notify.Burst = cfg.Notify.Burst
	f.Notify.InitialPasswordTemplate = cfg.Notify.InitialPasswordTemplate
	f.Notify.EnableUserTemplate = cfg.Notify.EnableUserTemplate
	f.Notify.InitialPasswordURL = cfg.Notify.InitialPasswordURL

	f.JWT.Enabled = cfg.JWT.Enabled
	f.JWT.AccessTTL = cfg.JWT.AccessTTL
	f.JWT.SigningMethod = cfg.JWT.SigningMethod
	f.JWT.Issuer = cfg.JWT.Issuer
	f.JWT.Audience = cfg.JWT.Audience
	f.JWT.Leeway = cfg.JWT.Leeway
	f.JWT.KeyID = cfg.JWT.KeyID

	f.Audit.Enabled = cfg.Audit.Enabled
	f.Audit.BufferSize = cfg.Audit.BufferSize
	f.Audit.DropIfFull = cfg.Audit.DropIfFull

	f.Metrics.Enabled = cfg.Metrics.Enabled
	f.Metrics.EnableLatencyHistograms = cfg.Metrics.EnableLatencyHistograms

	f.Redis.Addr = cfg.Redis.Addr
	f.Redis.DB = cfg.Redis.DB

	f.Database.MaxConnections = cfg.Database.MaxConnections
	f.Database.MinConnections = cfg.Database.MinConnections
	f.Database.ConnMaxLifetime = cfg.Database.ConnMaxLifetime
	f.Database.MigrateOnStart = cfg.Database.MigrateOnStart

	f.Logging.Level = cfg.Logging.Level
	f.Logging.Format = cfg.Logging.Format

	f.HTTP.Addr = cfg.HTTP.Addr
	f.HTTP.ReadHeaderTimeout = cfg.HTTP.ReadHeaderTimeout
	f.HTTP.ShutdownTimeout = cfg.HTTP.ShutdownTimeout
	return f
}

func applyConfigEnv(cfg *Config) {
	cfg.Lockout.MaxRetries = envInt("IDP_LOCKOUT_MAX_RETRIES", cfg.Lockout.MaxRetries)
	cfg.Lockout.RetryWindow = envDuration("IDP_LOCKOUT_RETRY_WINDOW", cfg.Lockout.RetryWindow)

	cfg.Password.DefaultScheme = envOrDefault("IDP_PASSWORD_SCHEME", cfg.Password.DefaultScheme)
	cfg.Password.BcryptCost = envInt("IDP_BCRYPT_COST", cfg.Password.BcryptCost)
	cfg.Password.PasswordAge = envDuration("IDP_PASSWORD_AGE", cfg.Password.PasswordAge)

	cfg.Token.ResetTTL = envDuration("IDP_TOKEN_RESET_TTL", cfg.Token.ResetTTL)
	cfg.Token.VerifyTTL = envDuration("IDP_TOKEN_VERIFY_TTL", cfg.Token.VerifyTTL)
	cfg.Token.InitialPasswordTTL = envDuration("IDP_TOKEN_INITIAL_PASSWORD_TTL", cfg.Token.InitialPasswordTTL)

	cfg.Roles.SuperuserAuthority = envOrDefault("IDP_ROLES_SUPERUSER_AUTHORITY", cfg.Roles.SuperuserAuthority)
	cfg.Roles.GroupManagerAuthority = envOrDefault("IDP_ROLES_GROUP_MANAGER_AUTHORITY", cfg.Roles.GroupManagerAuthority)

	cfg.Notify.Enabled = envBool("IDP_NOTIFY_ENABLED", cfg.Notify.Enabled)
	cfg.Notify.BaseURL = envOrDefault("IDP_NOTIFY_BASE_URL", cfg.Notify.BaseURL)
	cfg.Notify.APIKey = envOrDefault("IDP_NOTIFY_API_KEY", cfg.Notify.APIKey)
	cfg.Notify.InitialPasswordURL = envOrDefault("IDP_NOTIFY_INITIAL_PASSWORD_URL", cfg.Notify.InitialPasswordURL)

	cfg.JWT.Enabled = envBool("IDP_JWT_ENABLED", cfg.JWT.Enabled)
	cfg.JWT.SigningMethod = envOrDefault("IDP_JWT_SIGNING_METHOD", cfg.JWT.SigningMethod)
	if v := envOrDefault("IDP_JWT_PRIVATE_KEY", ""); v != "" {
		cfg.JWT.PrivateKey = []byte(v)
	}
	if v := envOrDefault("IDP_JWT_PUBLIC_KEY", ""); v != "" {
		cfg.JWT.PublicKey = []byte(v)
	}
	cfg.JWT.Issuer = envOrDefault("IDP_JWT_ISSUER", cfg.JWT.Issuer)
	cfg.JWT.Audience = envOrDefault("IDP_JWT_AUDIENCE", cfg.JWT.Audience)

	cfg.Audit.Enabled = envBool("IDP_AUDIT_ENABLED", cfg.Audit.Enabled)
	cfg.Metrics.Enabled = envBool("IDP_METRICS_ENABLED", cfg.Metrics.Enabled)

	cfg.Redis.Addr = envOrDefault("IDP_REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = envOrDefault("IDP_REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = envInt("IDP_REDIS_DB", cfg.Redis.DB)

	cfg.Database.DSN = envOrDefault("IDP_DATABASE_DSN", envOrDefault("DATABASE_URL", cfg.Database.DSN))
	cfg.Database.MaxConnections = envInt("IDP_DATABASE_MAX_CONNECTIONS", cfg.Database.MaxConnections)
	cfg.Database.MigrateOnStart = envBool("IDP_DATABASE_MIGRATE", cfg.Database.MigrateOnStart)

	cfg.Logging.Level = envOrDefault("IDP_LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = envOrDefault("IDP_LOG_FORMAT", cfg.Logging.Format)

	cfg.HTTP.Addr = envOrDefault("IDP_HTTP_ADDR", cfg.HTTP.Addr)
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envBool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
