package config

import (
	"github.com/garyjia/site-approval/internal/container"
)

// ToContainerConfig converts the application Config to a container.Config,
// resolving the policy section into a validated routing policy.
func (c *Config) ToContainerConfig() (*container.Config, error) {
	pol, err := c.Policy.ToPolicy()
	if err != nil {
		return nil, err
	}

	return &container.Config{
		Database: container.DatabaseConfig{
			Driver:          c.Database.Driver,
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
		},
		Server: container.ServerConfig{
			Host:            c.Server.Host,
			Port:            c.Server.Port,
			ReadTimeout:     c.Server.ReadTimeout,
			WriteTimeout:    c.Server.WriteTimeout,
			ShutdownTimeout: c.Server.ShutdownTimeout,
		},
		Directory: container.DirectoryConfig{
			OrgUnits: c.Directory.OrgUnits,
			Users:    c.Directory.Users,
		},
		Policy: pol,
	}, nil
}
