package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/tis24dev/stackrestore/internal/types"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "restore.env")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to create test config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `# Restore configuration
REMOTE_LOCATION="gdrive:server-backups" # rclone remote
WORK_DIR=/var/tmp/restore-work
RESTORE_ITEMS="
/etc/nginx
/opt/panel
# bot service
/opt/bot/
"
RESTORE_ITEMS=/etc/nginx
EDGE_SERVICE=nginx
AUX_SERVICE=panel-bot
COMPOSE_FILE=/opt/panel/docker-compose.yml
DEBUG_LEVEL=debug
USE_COLOR=false
METRICS_ENABLED=yes
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.RemoteLocation != "gdrive:server-backups" {
		t.Errorf("RemoteLocation = %q", cfg.RemoteLocation)
	}
	if cfg.WorkDir != "/var/tmp/restore-work" {
		t.Errorf("WorkDir = %q", cfg.WorkDir)
	}
	wantItems := []string{"/etc/nginx", "/opt/panel", "/opt/bot"}
	if !reflect.DeepEqual(cfg.RestoreItems, wantItems) {
		t.Errorf("RestoreItems = %#v; want %#v", cfg.RestoreItems, wantItems)
	}
	if cfg.AuxService != "panel-bot" || cfg.EdgeService != "nginx" {
		t.Errorf("services = %q/%q", cfg.AuxService, cfg.EdgeService)
	}
	if cfg.DebugLevel != types.LogLevelDebug {
		t.Errorf("DebugLevel = %v; want %v", cfg.DebugLevel, types.LogLevelDebug)
	}
	if cfg.UseColor {
		t.Error("Expected UseColor to be false")
	}
	if !cfg.MetricsEnabled {
		t.Error("Expected MetricsEnabled to be true")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, "REMOTE_LOCATION=remote:bk\nRESTORE_ITEMS=/etc/x\n")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.TransferBackend != BackendRclone {
		t.Errorf("TransferBackend = %q", cfg.TransferBackend)
	}
	if cfg.BackupPrefix != "backup" || cfg.BackupExtension != ".tar.gz" {
		t.Errorf("naming = %q %q", cfg.BackupPrefix, cfg.BackupExtension)
	}
	if cfg.RestoreRoot != "/" {
		t.Errorf("RestoreRoot = %q", cfg.RestoreRoot)
	}
	if cfg.ServiceBackend != ServiceBackendSystemctl || cfg.ServiceTimeout != 45 {
		t.Errorf("service defaults = %q %d", cfg.ServiceBackend, cfg.ServiceTimeout)
	}
	if cfg.ContainerRuntime != "docker" {
		t.Errorf("ContainerRuntime = %q", cfg.ContainerRuntime)
	}
	if cfg.S3UsePathStyle {
		t.Error("path-style should default off without an endpoint")
	}
	if cfg.RequireRoot {
		t.Error("RequireRoot should default off")
	}
}

func TestRequireRoot(t *testing.T) {
	cfg, err := FromValues("", map[string]string{
		"REMOTE_LOCATION": "remote:bk",
		"RESTORE_ITEMS":   "/etc/x",
		"REQUIRE_ROOT":    "true",
	})
	if err != nil {
		t.Fatalf("FromValues: %v", err)
	}
	if !cfg.RequireRoot {
		t.Fatal("REQUIRE_ROOT=true not honored")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.env"))
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestEnvOverride(t *testing.T) {
	path := writeConfig(t, "REMOTE_LOCATION=remote:bk\nRESTORE_ITEMS=/etc/x\nEDGE_SERVICE=nginx\n")
	t.Setenv("EDGE_SERVICE", "caddy")
	t.Setenv("WORK_DIR", "/srv/work")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.EdgeService != "caddy" {
		t.Errorf("EdgeService = %q; want caddy", cfg.EdgeService)
	}
	if cfg.WorkDir != "/srv/work" {
		t.Errorf("WorkDir = %q; want /srv/work", cfg.WorkDir)
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"missing remote", "RESTORE_ITEMS=/etc/x\n", "REMOTE_LOCATION"},
		{"missing items", "REMOTE_LOCATION=r:x\n", "RESTORE_ITEMS"},
		{"relative item", "REMOTE_LOCATION=r:x\nRESTORE_ITEMS=etc/x\n", "absolute"},
		{"root item", "REMOTE_LOCATION=r:x\nRESTORE_ITEMS=/\n", "filesystem root"},
		{"bad backend", "REMOTE_LOCATION=r:x\nRESTORE_ITEMS=/etc/x\nTRANSFER_BACKEND=ftp\n", "TRANSFER_BACKEND"},
		{"bad service backend", "REMOTE_LOCATION=r:x\nRESTORE_ITEMS=/etc/x\nSERVICE_BACKEND=openrc\n", "SERVICE_BACKEND"},
		{"relative work dir", "REMOTE_LOCATION=r:x\nRESTORE_ITEMS=/etc/x\nWORK_DIR=tmp\n", "WORK_DIR"},
		{"bad extension", "REMOTE_LOCATION=r:x\nRESTORE_ITEMS=/etc/x\nBACKUP_EXTENSION=tgz\n", "BACKUP_EXTENSION"},
		{"bad prefix", "REMOTE_LOCATION=r:x\nRESTORE_ITEMS=/etc/x\nBACKUP_PREFIX=a/b\n", "BACKUP_PREFIX"},
		{"garbage line", "REMOTE_LOCATION=r:x\nthis is not valid\n", "not KEY=VALUE"},
		{"unterminated block", "REMOTE_LOCATION=r:x\nRESTORE_ITEMS=\"\n/etc/x\n", "unterminated"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content))
			if err == nil {
				t.Fatalf("expected error containing %q", tt.want)
			}
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("error %v should wrap ErrInvalid", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should mention %q", err, tt.want)
			}
		})
	}
}

func TestItemsReturnsCopy(t *testing.T) {
	cfg, err := FromValues("", map[string]string{
		"REMOTE_LOCATION": "r:x",
		"RESTORE_ITEMS":   "/etc/a,/etc/b",
	})
	if err != nil {
		t.Fatalf("FromValues: %v", err)
	}
	items := cfg.Items()
	items[0] = "/tampered"
	if cfg.RestoreItems[0] != "/etc/a" {
		t.Fatalf("Items() must not expose internal slice")
	}
}

func TestSecretIsNotExpanded(t *testing.T) {
	cfg, err := FromValues("", map[string]string{
		"REMOTE_LOCATION":      "s3://bucket/prefix",
		"TRANSFER_BACKEND":     "s3",
		"RESTORE_ITEMS":        "/etc/a",
		"S3_SECRET_ACCESS_KEY": "ab$HOMEcd",
	})
	if err != nil {
		t.Fatalf("FromValues: %v", err)
	}
	if cfg.S3SecretAccessKey != "ab$HOMEcd" {
		t.Fatalf("secret was altered: %q", cfg.S3SecretAccessKey)
	}
}
