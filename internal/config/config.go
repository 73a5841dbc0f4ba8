package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/ini.v1"
)

// Config holds all configuration. It is built once at process start and
// passed down by constructor; nothing below cmd/ reads the environment.
type Config struct {
	Store        StoreConfig
	MySQL        MySQLConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Log          LogConfig
	Migrate      bool
	HTTPAddr     string
	Provisioning ProvisioningConfig
	Governance   GovernanceConfig
	Migration    MigrationConfig
}

// StoreConfig selects the persistence backend
type StoreConfig struct {
	Driver string // mysql | memory
}

// MySQLConfig holds MySQL configuration
type MySQLConfig struct {
	DSN string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret        string
	ExpireMinutes int
	Issuer        string
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level  string
	Format string // text | json
}

// ProvisioningConfig holds orchestrator and adapter configuration
type ProvisioningConfig struct {
	AdapterMode       string // shell | noop
	DryRun            bool
	CommandTimeoutSec int
	RetentionHours    int
	TerminationTTLSec int
	DefaultIPv4       string
	NameServers       []string
	HomeBase          string
	WebRootName       string
	LoginShell        string

	// Optional subsystem commands. Mail and FTP are provisioned only when
	// both the plan allows them and the command is configured.
	MailCmd   string
	FTPCmd    string
	BackupCmd string
	QuotaCmd  string

	Tools ToolsConfig
	Paths PathsConfig
	// Admin DSN used by the shell MySQL adapter
	MySQLAdminDSN string
}

// ToolsConfig names the executables resolved by the readiness gate
type ToolsConfig struct {
	UserAdd   string
	UserMod   string
	UserDel   string
	Nginx     string
	PHPFPM    string
	MySQL     string
	DNSReload string
}

// PathsConfig holds filesystem locations managed by the shell adapters
type PathsConfig struct {
	NginxSitesDir   string
	PHPFPMPoolDir   string // may contain %s for the PHP version
	PHPFPMSocketDir string
	ZoneDir         string
	NginxReloadCmd  string
	PHPFPMReloadCmd string // may contain %s for the PHP version
}

// GovernanceConfig holds intent ledger configuration
type GovernanceConfig struct {
	TokenTTLSec int
}

// MigrationConfig holds migration runner configuration
type MigrationConfig struct {
	WorkerEnabled  bool
	IntervalSec    int
	BatchSize      int
	LeaseSec       int
	RsyncBin       string
	SSHPassBin     string
	SSHTimeoutSec  int
	DefaultHomeDir string
}

// CommandTimeout returns the external command wall-clock timeout
func (c ProvisioningConfig) CommandTimeout() time.Duration {
	return time.Duration(c.CommandTimeoutSec) * time.Second
}

// RetentionWindow returns the soft-delete retention window
func (c ProvisioningConfig) RetentionWindow() time.Duration {
	return time.Duration(c.RetentionHours) * time.Hour
}

// TokenTTL returns the intent token lifetime
func (c GovernanceConfig) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLSec) * time.Second
}

// lookup resolves a key with priority ENV > INI > default
type lookup struct {
	file *ini.File
}

func (l lookup) raw(envKey, section, key string) (string, bool) {
	if value := os.Getenv(envKey); value != "" {
		return value, true
	}
	if l.file != nil && l.file.Section(section).HasKey(key) {
		if value := l.file.Section(section).Key(key).String(); value != "" {
			return value, true
		}
	}
	return "", false
}

func (l lookup) str(envKey, section, key, defaultValue string) string {
	if value, ok := l.raw(envKey, section, key); ok {
		return value
	}
	return defaultValue
}

func (l lookup) int(envKey, section, key string, defaultValue int) int {
	if value, ok := l.raw(envKey, section, key); ok {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func (l lookup) bool(envKey, section, key string, defaultValue bool) bool {
	if value, ok := l.raw(envKey, section, key); ok {
		return value == "1" || value == "true"
	}
	return defaultValue
}

func (l lookup) list(envKey, section, key string, defaultValue []string) []string {
	value, ok := l.raw(envKey, section, key)
	if !ok {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()
	return build(lookup{})
}

// LoadFromINI loads configuration from INI file with environment variable override
func LoadFromINI(iniPath string) (*Config, error) {
	_ = godotenv.Load()

	cfgFile, err := ini.Load(iniPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load INI file: %w", err)
	}
	return build(lookup{file: cfgFile})
}

func build(l lookup) (*Config, error) {
	cfg := &Config{
		Store: StoreConfig{
			Driver: l.str("STORE_DRIVER", "store", "driver", "mysql"),
		},
		MySQL: MySQLConfig{
			DSN: l.str("MYSQL_DSN", "mysql", "dsn", ""),
		},
		Redis: RedisConfig{
			Enabled:  l.bool("REDIS_ENABLED", "redis", "enabled", true),
			Addr:     l.str("REDIS_ADDR", "redis", "addr", "localhost:6379"),
			Password: l.str("REDIS_PASS", "redis", "pass", ""),
			DB:       l.int("REDIS_DB", "redis", "db", 0),
		},
		JWT: JWTConfig{
			Secret:        l.str("JWT_SECRET", "jwt", "secret", ""),
			ExpireMinutes: l.int("JWT_EXPIRE_MINUTES", "jwt", "expire_minutes", 1440),
			Issuer:        l.str("JWT_ISSUER", "jwt", "issuer", "go_hostpanel"),
		},
		Log: LogConfig{
			Level:  l.str("LOG_LEVEL", "log", "level", "info"),
			Format: l.str("LOG_FORMAT", "log", "format", "text"),
		},
		Migrate:  l.bool("MIGRATE", "app", "migrate", false),
		HTTPAddr: l.str("HTTP_ADDR", "http", "addr", ":8080"),
		Provisioning: ProvisioningConfig{
			AdapterMode:       l.str("ADAPTER_MODE", "provisioning", "adapter_mode", "shell"),
			DryRun:            l.bool("PROVISION_DRY_RUN", "provisioning", "dry_run", false),
			CommandTimeoutSec: l.int("COMMAND_TIMEOUT_SEC", "provisioning", "command_timeout_sec", 60),
			RetentionHours:    l.int("SOFT_DELETE_RETENTION_HOURS", "provisioning", "retention_hours", 168),
			TerminationTTLSec: l.int("TERMINATION_TOKEN_TTL_SEC", "provisioning", "termination_ttl_sec", 600),
			DefaultIPv4:       l.str("DEFAULT_IPV4", "provisioning", "default_ipv4", "127.0.0.1"),
			NameServers:       l.list("NAME_SERVERS", "provisioning", "name_servers", []string{"ns1.localhost.", "ns2.localhost."}),
			HomeBase:          l.str("HOME_BASE", "provisioning", "home_base", "/home"),
			WebRootName:       l.str("WEB_ROOT_NAME", "provisioning", "web_root_name", "public_html"),
			LoginShell:        l.str("LOGIN_SHELL", "provisioning", "login_shell", "/usr/sbin/nologin"),
			MailCmd:           l.str("MAIL_CMD", "provisioning", "mail_cmd", ""),
			FTPCmd:            l.str("FTP_CMD", "provisioning", "ftp_cmd", ""),
			BackupCmd:         l.str("BACKUP_CMD", "provisioning", "backup_cmd", ""),
			QuotaCmd:          l.str("QUOTA_CMD", "provisioning", "quota_cmd", ""),
			MySQLAdminDSN:     l.str("MYSQL_ADMIN_DSN", "provisioning", "mysql_admin_dsn", ""),
			Tools: ToolsConfig{
				UserAdd:   l.str("USERADD_BIN", "tools", "useradd", "useradd"),
				UserMod:   l.str("USERMOD_BIN", "tools", "usermod", "usermod"),
				UserDel:   l.str("USERDEL_BIN", "tools", "userdel", "userdel"),
				Nginx:     l.str("NGINX_BIN", "tools", "nginx", "nginx"),
				PHPFPM:    l.str("PHPFPM_BIN", "tools", "php_fpm", "php-fpm"),
				MySQL:     l.str("MYSQL_BIN", "tools", "mysql", "mysql"),
				DNSReload: l.str("DNS_RELOAD_BIN", "tools", "dns_reload", "rndc"),
			},
			Paths: PathsConfig{
				NginxSitesDir:   l.str("NGINX_SITES_DIR", "paths", "nginx_sites_dir", "/etc/nginx/sites-enabled"),
				PHPFPMPoolDir:   l.str("PHPFPM_POOL_DIR", "paths", "phpfpm_pool_dir", "/etc/php/%s/fpm/pool.d"),
				PHPFPMSocketDir: l.str("PHPFPM_SOCKET_DIR", "paths", "phpfpm_socket_dir", "/run/php"),
				ZoneDir:         l.str("ZONE_DIR", "paths", "zone_dir", "/etc/bind/zones"),
				NginxReloadCmd:  l.str("NGINX_RELOAD_CMD", "paths", "nginx_reload_cmd", "nginx -s reload"),
				PHPFPMReloadCmd: l.str("PHPFPM_RELOAD_CMD", "paths", "phpfpm_reload_cmd", "systemctl reload php%s-fpm"),
			},
		},
		Governance: GovernanceConfig{
			TokenTTLSec: l.int("INTENT_TOKEN_TTL_SEC", "governance", "token_ttl_sec", 600),
		},
		Migration: MigrationConfig{
			WorkerEnabled:  l.bool("MIGRATION_WORKER_ENABLED", "migration", "worker_enabled", true),
			IntervalSec:    l.int("MIGRATION_WORKER_INTERVAL_SEC", "migration", "interval_sec", 10),
			BatchSize:      l.int("MIGRATION_WORKER_BATCH_SIZE", "migration", "batch_size", 5),
			LeaseSec:       l.int("MIGRATION_LEASE_SEC", "migration", "lease_sec", 900),
			RsyncBin:       l.str("RSYNC_BIN", "migration", "rsync_bin", "rsync"),
			SSHPassBin:     l.str("SSHPASS_BIN", "migration", "sshpass_bin", "sshpass"),
			SSHTimeoutSec:  l.int("MIGRATION_SSH_TIMEOUT_SEC", "migration", "ssh_timeout_sec", 15),
			DefaultHomeDir: l.str("MIGRATION_SOURCE_HOME", "migration", "source_home", "/home"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case "mysql":
		if c.MySQL.DSN == "" {
			return fmt.Errorf("MYSQL_DSN is required")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver)
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	switch c.Provisioning.AdapterMode {
	case "shell", "noop":
	default:
		return fmt.Errorf("unknown ADAPTER_MODE %q", c.Provisioning.AdapterMode)
	}
	if c.Provisioning.CommandTimeoutSec <= 0 {
		return fmt.Errorf("COMMAND_TIMEOUT_SEC must be positive")
	}
	if c.Governance.TokenTTLSec <= 0 {
		return fmt.Errorf("INTENT_TOKEN_TTL_SEC must be positive")
	}
	return nil
}
