// Package config tests validate config loading behavior.
package config

import (
	"os"
	"path/filepath"
	"testing"
)

// TestLoadAppliesDefaults confirms defaults are applied on load.
func TestLoadAppliesDefaults(t *testing.T) {
	tmp := t.TempDir()
	p := filepath.Join(tmp, "fileshared.yaml")
	if err := os.WriteFile(p, []byte("db:\n  path: ./x.db\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Listen.Port != 5051 {
		t.Fatalf("expected default listen.port 5051, got %d", c.Listen.Port)
	}
	if c.RootDir != "./data" {
		t.Fatalf("expected root_dir default, got %q", c.RootDir)
	}
	if c.DefaultQuotaMB != 100 {
		t.Fatalf("expected default quota 100 MiB, got %d", c.DefaultQuotaMB)
	}
	if c.AuditLogPath != "./server.log" {
		t.Fatalf("expected audit log default, got %q", c.AuditLogPath)
	}
}

// TestEnvOverrides honors the legacy FS_* environment variables.
func TestEnvOverrides(t *testing.T) {
	t.Setenv("FS_LOG_PATH", "/tmp/audit.log")
	t.Setenv("FS_ACCOUNT_PATH", "/tmp/user_account.txt")
	c := Default()
	if c.AuditLogPath != "/tmp/audit.log" {
		t.Fatalf("FS_LOG_PATH not honored: %q", c.AuditLogPath)
	}
	if c.AccountFile != "/tmp/user_account.txt" {
		t.Fatalf("FS_ACCOUNT_PATH not honored: %q", c.AccountFile)
	}
}

// TestValidateRejectsBadPort rejects out-of-range ports.
func TestValidateRejectsBadPort(t *testing.T) {
	tmp := t.TempDir()
	p := filepath.Join(tmp, "fileshared.yaml")
	if err := os.WriteFile(p, []byte("listen:\n  port: 99999\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(p); err == nil {
		t.Fatalf("expected invalid port to be rejected")
	}
}
