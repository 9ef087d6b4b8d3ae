package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/ini.v1"
)

// Default file locations, relative to the working directory. Both can be
// overridden through Load parameters; there are no CLI flags for them.
const (
	DefaultEnvPath = ".env"
	DefaultIniPath = "config.ini"
)

// Config holds all application configuration
type Config struct {
	// Discord configuration
	Token   string
	GuildID string // optional; scopes slash command registration to one guild

	Logging     LoggingConfig
	Database    DatabaseConfig
	Permissions PermissionConfig
}

// LoggingConfig configures log output and user-facing error notification
type LoggingConfig struct {
	Level             string
	FilePath          string
	MaxBytes          int
	BackupCount       int
	NotifyUserOnError bool
}

// DatabaseConfig configures the durable store
type DatabaseConfig struct {
	Type string
	DSN  string
}

// Grant is an allow-list for a single named feature
type Grant struct {
	AllowedRoleNames []string
	AllowedUserIDs   []int64
}

// PermissionConfig holds the static role/ID authorization configuration.
// It is loaded once at startup and never mutated; a reload requires a restart.
type PermissionConfig struct {
	AdminRoleNames []string
	AdminUserIDs   []int64

	// Grants maps a feature name to its allow-list. Built at load time from
	// [Command_<name>] and [Feature_<name>] sections; a feature with both
	// sections uses the Command_ one.
	Grants map[string]Grant
}

const (
	commandSectionPrefix = "Command_"
	featureSectionPrefix = "Feature_"
)

// Load reads the secret-bearing env file and the ini config file. A missing
// token, an unreadable ini file, or an unsupported database type is a fatal
// configuration error; the caller must abort startup before opening any
// network connection.
func Load(envPath, iniPath string) (*Config, error) {
	// The env file is optional as long as the variable itself is set.
	_ = godotenv.Load(envPath)

	token := os.Getenv("DISCORD_BOT_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("DISCORD_BOT_TOKEN not found in %q or the environment", envPath)
	}

	file, err := ini.Load(iniPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file %q: %w", iniPath, err)
	}

	cfg := &Config{
		Token:   token,
		GuildID: file.Section("BotSettings").Key("GuildID").String(),
		Logging: LoggingConfig{
			Level:             file.Section("Logging").Key("LogLevel").MustString("info"),
			FilePath:          file.Section("Logging").Key("LogFile").MustString("logs/bot.log"),
			MaxBytes:          file.Section("Logging").Key("LogMaxBytes").MustInt(10485760),
			BackupCount:       file.Section("Logging").Key("LogBackupCount").MustInt(5),
			NotifyUserOnError: file.Section("Logging").Key("NotifyErrorToDiscord").MustBool(false),
		},
		Database: DatabaseConfig{
			Type: file.Section("Database").Key("Type").MustString("postgres"),
			DSN:  file.Section("Database").Key("DSN").String(),
		},
		Permissions: loadPermissions(file),
	}

	if cfg.Database.Type != "postgres" {
		return nil, fmt.Errorf("unsupported database type %q (only postgres is supported)", cfg.Database.Type)
	}
	if cfg.Database.DSN == "" {
		return nil, fmt.Errorf("Database.DSN is required in %q", iniPath)
	}

	return cfg, nil
}

func loadPermissions(file *ini.File) PermissionConfig {
	perms := file.Section("Permissions")
	pc := PermissionConfig{
		AdminRoleNames: parseList(perms.Key("AdminRoles").String()),
		AdminUserIDs:   parseIDList(perms.Key("AdminUsers").String()),
		Grants:         make(map[string]Grant),
	}

	// Feature_ sections first so that a Command_ section for the same name
	// takes precedence.
	for _, section := range file.Sections() {
		name, ok := strings.CutPrefix(section.Name(), featureSectionPrefix)
		if !ok {
			continue
		}
		pc.Grants[name] = grantFromSection(section)
	}
	for _, section := range file.Sections() {
		name, ok := strings.CutPrefix(section.Name(), commandSectionPrefix)
		if !ok {
			continue
		}
		pc.Grants[name] = grantFromSection(section)
	}

	return pc
}

func grantFromSection(section *ini.Section) Grant {
	return Grant{
		AllowedRoleNames: parseList(section.Key("AllowedRoles").String()),
		AllowedUserIDs:   parseIDList(section.Key("AllowedUsers").String()),
	}
}

// parseList splits a comma-separated ini value into trimmed, non-empty items.
func parseList(raw string) []string {
	var items []string
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			items = append(items, item)
		}
	}
	return items
}

// parseIDList parses a comma-separated list of numeric IDs, skipping entries
// that are not valid integers.
func parseIDList(raw string) []int64 {
	var ids []int64
	for _, item := range parseList(raw) {
		if id, err := strconv.ParseInt(item, 10, 64); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}
