package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"

	"github.com/garyjia/site-approval/internal/domain/entity"
	"github.com/garyjia/site-approval/internal/domain/policy"
)

// Database drivers
const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Policy    PolicyConfig    `mapstructure:"policy"`
	Directory DirectoryConfig `mapstructure:"directory"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds request store configuration
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// PolicyConfig overrides the built-in approval policy. Roles are listed
// lowest first; an empty list keeps the default hierarchy.
type PolicyConfig struct {
	Roles        []RoleConfig `mapstructure:"roles"`
	TopRoleTypes []string     `mapstructure:"top_role_types"`
}

// RoleConfig is one level of the role hierarchy with its thresholds
type RoleConfig struct {
	Name       string  `mapstructure:"name"`
	OrgLevel   float64 `mapstructure:"org_level"`
	CrossOrg   float64 `mapstructure:"cross_org"`
	Escalation float64 `mapstructure:"escalation"`
	Unlimited  bool    `mapstructure:"unlimited"`
}

// DirectoryConfig seeds the static user and org-unit directory
type DirectoryConfig struct {
	OrgUnits []entity.OrgUnit `mapstructure:"org_units"`
	Users    []entity.User    `mapstructure:"users"`
}

// LoadEnvFiles loads KEY=VALUE files into the process environment. Missing
// files are skipped; variables already set win.
func LoadEnvFiles(paths ...string) error {
	for _, path := range paths {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := gotenv.Load(path); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", path, err)
		}
	}
	return nil
}

// Load loads configuration from file and environment variables. An empty
// configPath uses defaults and environment only.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	// Database defaults
	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.path", "data/approvals.db")
	v.SetDefault("database.max_open_conns", 1)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")
}

// bindEnvVars binds the short environment names used in deployments
func bindEnvVars(v *viper.Viper) {
	_ = v.BindEnv("server.port", "PORT")
	_ = v.BindEnv("database.driver", "DATABASE_DRIVER")
	_ = v.BindEnv("database.path", "DATABASE_PATH")
	_ = v.BindEnv("logger.level", "LOG_LEVEL")
	_ = v.BindEnv("logger.format", "LOG_FORMAT")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}

	switch c.Database.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("database.driver must be %q or %q, got %q", DriverSQLite, DriverMemory, c.Database.Driver)
	}

	switch c.Logger.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logger.format must be json or console, got %q", c.Logger.Format)
	}

	if _, err := c.Policy.ToPolicy(); err != nil {
		return err
	}

	return nil
}

// ToPolicy builds the routing policy, starting from the built-in default
func (p PolicyConfig) ToPolicy() (*policy.Policy, error) {
	result := policy.Default()

	if len(p.Roles) > 0 {
		result.Hierarchy = make(policy.Hierarchy, 0, len(p.Roles))
		result.Thresholds = make(map[string]policy.Threshold, len(p.Roles))
		for _, r := range p.Roles {
			result.Hierarchy = append(result.Hierarchy, r.Name)
			if r.Unlimited {
				result.Thresholds[r.Name] = policy.UnlimitedThreshold()
				continue
			}
			result.Thresholds[r.Name] = policy.Threshold{
				OrgLevel:   r.OrgLevel,
				CrossOrg:   r.CrossOrg,
				Escalation: r.Escalation,
			}
		}
	}

	if p.TopRoleTypes != nil {
		result.TopRoleTypes = make(map[entity.RequestType]bool, len(p.TopRoleTypes))
		for _, t := range p.TopRoleTypes {
			result.TopRoleTypes[entity.RequestType(t)] = true
		}
	}

	if err := result.Validate(); err != nil {
		return nil, err
	}
	return result, nil
}
