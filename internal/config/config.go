// Package config loads the restore.env configuration used by every stage of
// a restore run.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tis24dev/stackrestore/internal/types"
	"github.com/tis24dev/stackrestore/pkg/utils"
)

// DefaultConfigPath is used when no --config flag is given.
const DefaultConfigPath = "/etc/stackrestore/restore.env"

// ErrInvalid marks configuration values that fail validation.
var ErrInvalid = errors.New("invalid configuration")

// Transfer backends.
const (
	BackendRclone = "rclone"
	BackendS3     = "s3"
	BackendLocal  = "local"
)

// Service manager backends.
const (
	ServiceBackendSystemctl = "systemctl"
	ServiceBackendDBus      = "dbus"
)

var (
	// multiValueKeys accumulate repeated assignments instead of overwriting.
	multiValueKeys = map[string]bool{
		"RESTORE_ITEMS": true,
	}

	// blockValueKeys accept KEY=" ... " spanning several lines.
	blockValueKeys = map[string]bool{
		"RESTORE_ITEMS": true,
	}

	knownKeys = []string{
		"REMOTE_LOCATION", "TRANSFER_BACKEND", "WORK_DIR", "RESTORE_ITEMS", "RESTORE_ROOT",
		"BACKUP_PREFIX", "BACKUP_EXTENSION", "SAFETY_DIR",
		"SERVICE_BACKEND", "EDGE_SERVICE", "AUX_SERVICE", "COMPOSE_FILE", "CONTAINER_RUNTIME",
		"SERVICE_TIMEOUT",
		"CREDENTIAL_TARGET", "RCLONE_FLAGS",
		"S3_REGION", "S3_ENDPOINT", "S3_ACCESS_KEY_ID", "S3_SECRET_ACCESS_KEY", "S3_USE_PATH_STYLE",
		"MIN_FREE_SPACE_MB",
		"METRICS_ENABLED", "METRICS_PATH",
		"WEBHOOK_URL", "WEBHOOK_TIMEOUT",
		"LOG_PATH", "DEBUG_LEVEL", "USE_COLOR",
	}
)

// Config is the immutable run configuration. It is loaded once per run and
// handed to each component at construction; nothing mutates it afterwards.
type Config struct {
	ConfigPath string

	// Remote and local locations
	RemoteLocation  string
	TransferBackend string
	WorkDir         string
	RestoreItems    []string
	RestoreRoot     string
	BackupPrefix    string
	BackupExtension string
	SafetyDir       string

	// Services
	ServiceBackend   string
	EdgeService      string
	AuxService       string
	ComposeFile      string
	ContainerRuntime string
	ServiceTimeout   int

	// Credentials and rclone
	CredentialTarget string
	RcloneFlags      []string

	// S3 backend
	S3Region          string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3UsePathStyle    bool

	// Pre-flight
	MinFreeSpaceMB int
	RequireRoot    bool

	// Reporting
	MetricsEnabled bool
	MetricsPath    string
	WebhookURL     string
	WebhookTimeout int

	// Logging
	LogPath    string
	DebugLevel types.LogLevel
	UseColor   bool

	raw map[string]string
}

// LoadConfig reads the env file at configPath, applies environment
// overrides and validates the result.
func LoadConfig(configPath string) (*Config, error) {
	if !utils.FileExists(configPath) {
		return nil, fmt.Errorf("configuration file not found: %s", configPath)
	}
	rawValues, err := parseEnvFile(configPath)
	if err != nil {
		return nil, err
	}
	return FromValues(configPath, rawValues)
}

// FromValues builds a Config from already parsed KEY=VALUE pairs. Environment
// variables still take precedence.
func FromValues(configPath string, values map[string]string) (*Config, error) {
	raw := make(map[string]string, len(values))
	for k, v := range values {
		raw[k] = v
	}
	cfg := &Config{ConfigPath: configPath, raw: raw}
	cfg.loadEnvOverrides()
	if err := cfg.parse(); err != nil {
		return nil, fmt.Errorf("error parsing configuration: %w", err)
	}
	return cfg, nil
}

// loadEnvOverrides lets environment variables take precedence over the file.
func (c *Config) loadEnvOverrides() {
	for _, key := range knownKeys {
		if envValue := os.Getenv(key); envValue != "" {
			c.raw[key] = envValue
		}
	}
}

func (c *Config) parse() error {
	c.RemoteLocation = strings.TrimSpace(c.getString("REMOTE_LOCATION", ""))
	c.TransferBackend = strings.ToLower(c.getString("TRANSFER_BACKEND", BackendRclone))
	c.WorkDir = filepath.Clean(c.getString("WORK_DIR", "/var/tmp/stackrestore"))
	c.RestoreRoot = filepath.Clean(c.getString("RESTORE_ROOT", "/"))
	c.BackupPrefix = c.getString("BACKUP_PREFIX", "backup")
	c.BackupExtension = c.getString("BACKUP_EXTENSION", ".tar.gz")
	c.SafetyDir = filepath.Clean(c.getString("SAFETY_DIR", "/var/backups/stackrestore"))

	c.ServiceBackend = strings.ToLower(c.getString("SERVICE_BACKEND", ServiceBackendSystemctl))
	c.EdgeService = c.getString("EDGE_SERVICE", "nginx")
	c.AuxService = c.getString("AUX_SERVICE", "")
	c.ComposeFile = c.getString("COMPOSE_FILE", "")
	c.ContainerRuntime = c.getString("CONTAINER_RUNTIME", "docker")
	c.ServiceTimeout = c.ensurePositiveInt("SERVICE_TIMEOUT", 45)

	c.CredentialTarget = c.getString("CREDENTIAL_TARGET", "/root/.config/rclone/rclone.conf")
	c.RcloneFlags = strings.Fields(c.getString("RCLONE_FLAGS", ""))

	c.S3Region = c.getString("S3_REGION", "us-east-1")
	c.S3Endpoint = c.getString("S3_ENDPOINT", "")
	c.S3AccessKeyID = c.getString("S3_ACCESS_KEY_ID", "")
	c.S3SecretAccessKey = strings.TrimSpace(c.raw["S3_SECRET_ACCESS_KEY"])
	c.S3UsePathStyle = c.getBool("S3_USE_PATH_STYLE", c.S3Endpoint != "")

	c.MinFreeSpaceMB = c.getInt("MIN_FREE_SPACE_MB", 0)
	c.RequireRoot = c.getBool("REQUIRE_ROOT", false)

	c.MetricsEnabled = c.getBool("METRICS_ENABLED", false)
	c.MetricsPath = c.getString("METRICS_PATH", "/var/lib/node_exporter/textfile_collector")
	c.WebhookURL = c.getString("WEBHOOK_URL", "")
	c.WebhookTimeout = c.ensurePositiveInt("WEBHOOK_TIMEOUT", 15)

	c.LogPath = c.getString("LOG_PATH", "")
	c.DebugLevel = c.getLogLevel("DEBUG_LEVEL", types.LogLevelInfo)
	c.UseColor = c.getBool("USE_COLOR", true)

	items, err := normalizeItems(c.getStringSlice("RESTORE_ITEMS", nil))
	if err != nil {
		return err
	}
	c.RestoreItems = items

	return c.validate()
}

func (c *Config) validate() error {
	var problems []string
	if c.RemoteLocation == "" {
		problems = append(problems, "REMOTE_LOCATION is required")
	}
	switch c.TransferBackend {
	case BackendRclone, BackendS3, BackendLocal:
	default:
		problems = append(problems, fmt.Sprintf("TRANSFER_BACKEND %q is not one of rclone, s3, local", c.TransferBackend))
	}
	switch c.ServiceBackend {
	case ServiceBackendSystemctl, ServiceBackendDBus:
	default:
		problems = append(problems, fmt.Sprintf("SERVICE_BACKEND %q is not one of systemctl, dbus", c.ServiceBackend))
	}
	if len(c.RestoreItems) == 0 {
		problems = append(problems, "RESTORE_ITEMS must list at least one path")
	}
	for key, dir := range map[string]string{"WORK_DIR": c.WorkDir, "SAFETY_DIR": c.SafetyDir, "RESTORE_ROOT": c.RestoreRoot} {
		if !filepath.IsAbs(dir) {
			problems = append(problems, fmt.Sprintf("%s must be an absolute path (got %q)", key, dir))
		}
	}
	if c.BackupPrefix == "" || strings.ContainsAny(c.BackupPrefix, "/\\") {
		problems = append(problems, fmt.Sprintf("BACKUP_PREFIX %q must be a non-empty name without slashes", c.BackupPrefix))
	}
	if !strings.HasPrefix(c.BackupExtension, ".") {
		problems = append(problems, fmt.Sprintf("BACKUP_EXTENSION %q must start with a dot", c.BackupExtension))
	}
	if c.MinFreeSpaceMB < 0 {
		problems = append(problems, "MIN_FREE_SPACE_MB cannot be negative")
	}
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
}

// normalizeItems cleans, validates and de-duplicates restore items while
// keeping their declared order.
func normalizeItems(values []string) ([]string, error) {
	items := make([]string, 0, len(values))
	for _, v := range values {
		if !filepath.IsAbs(v) {
			return nil, fmt.Errorf("%w: RESTORE_ITEMS entry %q is not an absolute path", ErrInvalid, v)
		}
		cleaned := filepath.Clean(v)
		if cleaned == "/" {
			return nil, fmt.Errorf("%w: RESTORE_ITEMS cannot contain the filesystem root", ErrInvalid)
		}
		items = append(items, cleaned)
	}
	return utils.UniqueStrings(items), nil
}

// Items returns a copy of the restore items.
func (c *Config) Items() []string {
	return append([]string(nil), c.RestoreItems...)
}

// Get returns the raw value of key as read from file/environment.
func (c *Config) getString(key, defaultValue string) string {
	if val, ok := c.raw[key]; ok && val != "" {
		return os.ExpandEnv(val)
	}
	return defaultValue
}

func (c *Config) getBool(key string, defaultValue bool) bool {
	if val, ok := c.raw[key]; ok && strings.TrimSpace(val) != "" {
		return utils.ParseBool(val)
	}
	return defaultValue
}

func (c *Config) getInt(key string, defaultValue int) int {
	if val, ok := c.raw[key]; ok {
		if intVal, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func (c *Config) ensurePositiveInt(key string, defaultValue int) int {
	if value := c.getInt(key, defaultValue); value > 0 {
		return value
	}
	return defaultValue
}

func (c *Config) getLogLevel(key string, defaultValue types.LogLevel) types.LogLevel {
	if val, ok := c.raw[key]; ok {
		if level, ok := types.ParseLogLevel(val); ok {
			return level
		}
	}
	return defaultValue
}

func (c *Config) getStringSlice(key string, defaultValue []string) []string {
	val, ok := c.raw[key]
	if !ok {
		return defaultValue
	}
	return utils.SplitList(os.ExpandEnv(val))
}

func parseEnvFile(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open config file: %w", err)
	}
	defer file.Close()

	raw := make(map[string]string)
	scanner := bufio.NewScanner(file)
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		trimmed := strings.TrimSpace(line)
		if utils.IsComment(trimmed) {
			continue
		}

		key, value, ok := utils.SplitKeyValue(line)
		if !ok {
			return nil, fmt.Errorf("%w: line %d is not KEY=VALUE", ErrInvalid, lineNo)
		}

		if blockValueKeys[key] && trimmed == key+`="` {
			var blockLines []string
			terminated := false
			for scanner.Scan() {
				lineNo++
				next := strings.TrimRight(scanner.Text(), "\r")
				if strings.TrimSpace(next) == `"` {
					terminated = true
					break
				}
				if !utils.IsComment(next) {
					blockLines = append(blockLines, strings.TrimSpace(next))
				}
			}
			if !terminated {
				return nil, fmt.Errorf("%w: unterminated multi-line value for %s", ErrInvalid, key)
			}
			value = strings.Join(blockLines, "\n")
		}

		if multiValueKeys[key] && raw[key] != "" {
			raw[key] = raw[key] + "\n" + value
		} else {
			raw[key] = value
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	return raw, nil
}
