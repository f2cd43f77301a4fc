package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Run("Success - sqlite with overrides", func(t *testing.T) {
		t.Setenv("ENVIRONMENT", "development")
		t.Setenv("DB_DRIVER", "sqlite")
		t.Setenv("DB_PATH", "/tmp/crm.db")
		t.Setenv("ALLOWED_ORIGINS", "https://app.example.com, https://admin.example.com,")
		t.Setenv("RATE_LIMIT_MAX", "30")
		t.Setenv("REDIS_ENABLED", "true")
		t.Setenv("SMTP_HOST", "")

		require.NoError(t, LoadConfig())
		assert.Equal(t, "sqlite", AppConfig.DBDriver)
		assert.Equal(t, "/tmp/crm.db", AppConfig.DBPath)
		assert.Equal(t, []string{"https://app.example.com", "https://admin.example.com"}, AppConfig.AllowedOrigins)
		assert.Equal(t, 30, AppConfig.RateLimitMax)
		assert.True(t, AppConfig.Redis.Enabled)
	})

	t.Run("Success - bad numbers fall back to defaults", func(t *testing.T) {
		t.Setenv("ENVIRONMENT", "development")
		t.Setenv("DB_DRIVER", "sqlite")
		t.Setenv("RATE_LIMIT_MAX", "lots")
		t.Setenv("SMTP_HOST", "")

		require.NoError(t, LoadConfig())
		assert.Equal(t, 120, AppConfig.RateLimitMax)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"Success - postgres", Config{DBDriver: "postgres", DBPassword: "pw"}, ""},
		{"Error - postgres without password", Config{DBDriver: "postgres"}, "DB_PASSWORD is required"},
		{"Error - sqlite in production", Config{DBDriver: "sqlite", Environment: "production", JWTSecret: "s"}, "sqlite is not supported in production"},
		{"Error - unknown driver", Config{DBDriver: "mysql"}, `unsupported DB_DRIVER "mysql"`},
		{"Error - production without JWT secret", Config{DBDriver: "postgres", DBPassword: "pw", Environment: "production"}, "JWT_SECRET is required in production"},
		{"Error - SMTP without sender", Config{DBDriver: "sqlite", SMTP: SMTPConfig{Host: "smtp.example.com"}}, "FROM_EMAIL is required when SMTP_HOST is set"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.EqualError(t, err, tt.wantErr)
		})
	}
}

func TestMaskPassword(t *testing.T) {
	assert.Equal(t, "host=db password=***** dbname=crm", maskPassword("host=db password=hunter2 dbname=crm"))
	assert.Equal(t, "host=db password=*****", maskPassword("host=db password=hunter2"))
	assert.Equal(t, "host=db", maskPassword("host=db"))
}
