package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/site-approval/internal/domain/entity"
	"github.com/garyjia/site-approval/internal/domain/policy"
)

const sampleConfig = `
server:
  port: 9090
  read_timeout: 5s
database:
  driver: memory
logger:
  level: debug
  format: console
policy:
  roles:
    - name: FOREMAN
      org_level: 1000
      cross_org: 500
      escalation: 1000
    - name: DIRECTOR
      unlimited: true
  top_role_types: [safe_access]
directory:
  org_units:
    - id: hq
      name: Head Office
    - id: site-1
      name: Riverside
      parent_id: hq
  users:
    - id: f-1
      name: Foreman One
      role: FOREMAN
      org_unit_id: site-1
    - id: d-1
      name: Director
      role: DIRECTOR
      org_unit_id: hq
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_FromFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, DriverMemory, cfg.Database.Driver)
	assert.Equal(t, "debug", cfg.Logger.Level)

	require.Len(t, cfg.Directory.OrgUnits, 2)
	assert.Equal(t, entity.OrgUnit{ID: "site-1", Name: "Riverside", ParentID: "hq"}, cfg.Directory.OrgUnits[1])
	require.Len(t, cfg.Directory.Users, 2)
	assert.Equal(t, entity.User{ID: "f-1", Name: "Foreman One", Role: "FOREMAN", OrgUnitID: "site-1"}, cfg.Directory.Users[0])

	p, err := cfg.Policy.ToPolicy()
	require.NoError(t, err)
	assert.Equal(t, policy.Hierarchy{"FOREMAN", "DIRECTOR"}, p.Hierarchy)
	assert.Equal(t, policy.Threshold{OrgLevel: 1000, CrossOrg: 500, Escalation: 1000}, p.Thresholds["FOREMAN"])
	assert.Equal(t, policy.UnlimitedThreshold(), p.Thresholds["DIRECTOR"])
	assert.True(t, p.RequiresTopRole(entity.RequestTypeSafeAccess))
	assert.False(t, p.RequiresTopRole(entity.RequestTypePayrollAdjustment))
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, "data/approvals.db", cfg.Database.Path)
	assert.Equal(t, "json", cfg.Logger.Format)

	p, err := cfg.Policy.ToPolicy()
	require.NoError(t, err)
	assert.Equal(t, policy.Default(), p)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("PORT", "7000")
	t.Setenv("DATABASE_DRIVER", "memory")
	t.Setenv("LOGGER_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, DriverMemory, cfg.Database.Driver)
	assert.Equal(t, "warn", cfg.Logger.Level)
}

func TestLoadEnvFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("DATABASE_PATH=/tmp/from-env-file.db\n"), 0644))
	t.Setenv("DATABASE_PATH", "")
	require.NoError(t, os.Unsetenv("DATABASE_PATH"))

	require.NoError(t, LoadEnvFiles(filepath.Join(t.TempDir(), "missing.env"), path))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/from-env-file.db", cfg.Database.Path)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:   ServerConfig{Port: 8080},
			Database: DatabaseConfig{Driver: DriverSQLite, Path: "x.db"},
			Logger:   LoggerConfig{Format: "json"},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"unknown driver", func(c *Config) { c.Database.Driver = "postgres" }},
		{"sqlite without path", func(c *Config) { c.Database.Path = "" }},
		{"bad log format", func(c *Config) { c.Logger.Format = "xml" }},
		{"duplicate role", func(c *Config) {
			c.Policy.Roles = []RoleConfig{{Name: "A"}, {Name: "A"}}
		}},
		{"unknown top role type", func(c *Config) { c.Policy.TopRoleTypes = []string{"coffee"} }},
	}

	require.NoError(t, valid().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestToContainerConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	cc, err := cfg.ToContainerConfig()
	require.NoError(t, err)

	assert.Equal(t, DriverMemory, cc.Database.Driver)
	assert.Equal(t, 9090, cc.Server.Port)
	assert.Equal(t, cfg.Server.ShutdownTimeout, cc.Server.ShutdownTimeout)
	assert.Len(t, cc.Directory.Users, 2)
	require.NotNil(t, cc.Policy)
	assert.Equal(t, "DIRECTOR", cc.Policy.Hierarchy.Top())
	require.NoError(t, cc.Validate())
}
