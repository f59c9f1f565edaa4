package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrEthical07/idpcore/password"
	"golang.org/x/crypto/bcrypt"
)

func runCmd(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "idp.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestHashPassword_FromArgAndStdin(t *testing.T) {
	t.Setenv("IDP_CONFIG", "")

	out, err := runCmd(t, "", "hash-password", "s3cret")
	if err != nil {
		t.Fatalf("hash-password: %v", err)
	}
	hash := strings.TrimSpace(out)
	if password.SchemeID(hash) != password.SchemeBcrypt {
		t.Fatalf("expected bcrypt tag, got %q", hash)
	}
	encoded := strings.TrimPrefix(hash, "{"+password.SchemeBcrypt+"}")
	if bcrypt.CompareHashAndPassword([]byte(encoded), []byte("s3cret")) != nil {
		t.Fatalf("hash does not verify")
	}

	out, err = runCmd(t, "from-stdin\n", "hash-password")
	if err != nil {
		t.Fatalf("hash-password stdin: %v", err)
	}
	encoded = strings.TrimPrefix(strings.TrimSpace(out), "{"+password.SchemeBcrypt+"}")
	if bcrypt.CompareHashAndPassword([]byte(encoded), []byte("from-stdin")) != nil {
		t.Fatalf("stdin hash does not verify")
	}
}

func TestHashPassword_RejectsBlank(t *testing.T) {
	t.Setenv("IDP_CONFIG", "")
	if _, err := runCmd(t, "\n", "hash-password"); err == nil {
		t.Fatalf("expected error for blank password")
	}
}

func TestMigrate_RequiresDSN(t *testing.T) {
	t.Setenv("IDP_DATABASE_DSN", "")
	t.Setenv("DATABASE_URL", "")
	path := writeConfig(t, "lockout:\n  max_retries: 3\n")
	_, err := runCmd(t, "", "--config", path, "migrate")
	if err == nil || !strings.Contains(err.Error(), "DSN") {
		t.Fatalf("expected missing DSN error, got %v", err)
	}
}

func TestAssignableRoles_UnknownAdminOnMemoryStore(t *testing.T) {
	t.Setenv("IDP_CONFIG", "")
	t.Setenv("IDP_DATABASE_DSN", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("IDP_REDIS_ADDR", "")
	t.Setenv("IDP_NOTIFY_ENABLED", "false")
	if _, err := runCmd(t, "", "assignable-roles", "nobody"); err == nil {
		t.Fatalf("expected unknown admin error")
	}
}
