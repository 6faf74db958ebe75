package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Env:                      "development",
		DBDriver:                 "postgres",
		DBHost:                   "localhost",
		DBName:                   "chirp",
		DBPassword:               "secure-password",
		DBSSLMode:                "require",
		DBMaxOpenConns:           10,
		DBMaxIdleConns:           5,
		DBConnMaxLifetimeMinutes: 1,
		DeployLock:               true,
		DeployLockTTLSeconds:     60,
		BackfillBatchSize:        100,
		TracingSampleRatio:       1,
	}
}

func TestConfig_ValidateSSLMode(t *testing.T) {
	tests := []struct {
		name        string
		env         string
		sslMode     string
		expectError bool
	}{
		{"Production with empty SSL mode", "production", "", true},
		{"Production with disable SSL mode", "production", "disable", true},
		{"Production with require SSL mode", "production", "require", false},
		{"Prod with verify-full SSL mode", "prod", "verify-full", false},
		{"Development with disable SSL mode", "development", "disable", false},
		{"Test with empty SSL mode", "test", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			c.Env = tt.env
			c.DBSSLMode = tt.sslMode

			err := c.Validate()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_ValidateDriver(t *testing.T) {
	c := validConfig()
	c.DBDriver = "mysql"
	assert.Error(t, c.Validate())

	c = validConfig()
	c.DBDriver = "sqlite"
	c.DBPath = ""
	assert.Error(t, c.Validate())

	c.DBPath = ":memory:"
	assert.NoError(t, c.Validate())

	c.Env = "production"
	assert.Error(t, c.Validate(), "sqlite must be refused in production")
}

func TestConfig_ValidateDeploySettings(t *testing.T) {
	c := validConfig()
	c.BackfillBatchSize = 0
	assert.Error(t, c.Validate())

	c = validConfig()
	c.DeployLockTTLSeconds = 0
	assert.Error(t, c.Validate())

	c.DeployLock = false
	assert.NoError(t, c.Validate())

	c = validConfig()
	c.TracingSampleRatio = 1.5
	assert.Error(t, c.Validate())
}

func TestLoadConfig_DefaultsAndNormalization(t *testing.T) {
	defer viper.Reset()
	t.Setenv("APP_ENV", "development")
	t.Setenv("DB_SSLMODE", "  DISABLE  ")
	t.Setenv("DB_DRIVER", "SQLite")
	t.Setenv("ADMIN_EMAIL", " Admin@Example.com ")
	t.Setenv("DEPLOY_LOCK", "false")

	c, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "disable", c.DBSSLMode)
	assert.Equal(t, "sqlite", c.DBDriver)
	assert.Equal(t, "admin@example.com", c.AdminEmail)
	assert.False(t, c.DeployLock)
	assert.Equal(t, 500, c.BackfillBatchSize)
	assert.Equal(t, "hybrid", c.DBSchemaMode)
}

func TestLoadConfig_MissingProfileFile(t *testing.T) {
	defer viper.Reset()
	t.Setenv("APP_ENV", "staging-"+t.Name())

	_, err := LoadConfig()
	assert.Error(t, err)
}
