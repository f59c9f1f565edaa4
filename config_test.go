package idpcore

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{
			name:      "defaults",
			mutate:    func(c *Config) {},
			wantValid: true,
		},
		{
			name: "zero max retries",
			mutate: func(c *Config) {
				c.Lockout.MaxRetries = 0
			},
			wantValid: false,
		},
		{
			name: "argon2 default scheme",
			mutate: func(c *Config) {
				c.Password.DefaultScheme = "argon2id"
			},
			wantValid: true,
		},
		{
			name: "unknown password scheme",
			mutate: func(c *Config) {
				c.Password.DefaultScheme = "md5"
			},
			wantValid: false,
		},
		{
			name: "bcrypt cost out of range",
			mutate: func(c *Config) {
				c.Password.BcryptCost = 64
			},
			wantValid: false,
		},
		{
			name: "zero reset ttl",
			mutate: func(c *Config) {
				c.Token.ResetTTL = 0
			},
			wantValid: false,
		},
		{
			name: "blank superuser authority",
			mutate: func(c *Config) {
				c.Roles.SuperuserAuthority = "  "
			},
			wantValid: false,
		},
		{
			name: "reserved role without gate",
			mutate: func(c *Config) {
				c.Roles.ReservedRoleGate = ""
			},
			wantValid: false,
		},
		{
			name: "jwt enabled without key",
			mutate: func(c *Config) {
				c.JWT.Enabled = true
			},
			wantValid: false,
		},
		{
			name: "jwt hs256 with key",
			mutate: func(c *Config) {
				c.JWT.Enabled = true
				c.JWT.SigningMethod = "hs256"
				c.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
			},
			wantValid: true,
		},
		{
			name: "jwt leeway invalid",
			mutate: func(c *Config) {
				c.JWT.Enabled = true
				c.JWT.SigningMethod = "hs256"
				c.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
				c.JWT.Leeway = 3 * time.Minute
			},
			wantValid: false,
		},
		{
			name: "audit without buffer",
			mutate: func(c *Config) {
				c.Audit.Enabled = true
				c.Audit.BufferSize = 0
			},
			wantValid: false,
		},
		{
			name: "min connections above max",
			mutate: func(c *Config) {
				c.Database.MaxConnections = 2
				c.Database.MinConnections = 3
			},
			wantValid: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantValid && err != nil {
				t.Fatalf("expected valid config, got %v", err)
			}
			if !tc.wantValid && err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestCloneConfigCopiesKeys(t *testing.T) {
	cfg := DefaultConfig()
	cfg.JWT.PrivateKey = []byte("secret")

	out := cloneConfig(cfg)
	out.JWT.PrivateKey[0] = 'X'

	if string(cfg.JWT.PrivateKey) != "secret" {
		t.Fatalf("clone shares key storage with source")
	}
}

func TestLoadConfigFileLayers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "idp.yaml")
	doc := []byte(`
lockout:
  max_retries: 5
token:
  reset_ttl: 2h
logging:
  format: json
`)
	if err := os.WriteFile(path, doc, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("IDP_LOG_LEVEL", "debug")
	t.Setenv("IDP_LOCKOUT_MAX_RETRIES", "7")

	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile: %v", err)
	}
	if cfg.Lockout.MaxRetries != 7 {
		t.Fatalf("env should override file, got %d", cfg.Lockout.MaxRetries)
	}
	if cfg.Token.ResetTTL != 2*time.Hour {
		t.Fatalf("expected reset ttl from file, got %v", cfg.Token.ResetTTL)
	}
	if cfg.Token.VerifyTTL != 24*time.Hour {
		t.Fatalf("keys absent from the file should keep defaults, got %v", cfg.Token.VerifyTTL)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected logging config %+v", cfg.Logging)
	}
}

func TestLoadConfigFileMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfigFile(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadConfigFile: %v", err)
	}
	if cfg.Lockout.MaxRetries != 3 {
		t.Fatalf("expected default max retries, got %d", cfg.Lockout.MaxRetries)
	}
}

func TestLoadConfigFileRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("lockout:\n  max_retries: 0\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadConfigFile(path); err == nil {
		t.Fatalf("expected validation error")
	}

	if err := os.WriteFile(path, []byte("lockout: [oops"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadConfigFile(path); err == nil {
		t.Fatalf("expected parse error")
	}
}
