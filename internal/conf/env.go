package conf

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// envBinding holds metadata for environment variable bindings (internal use)
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// getEnvBindings returns all environment variable bindings with validation
func getEnvBindings() []envBinding {
	return []envBinding{
		{"debug", "STOREMIGRATE_DEBUG", validateEnvBool},

		{"data.legacypath", "STOREMIGRATE_LEGACY_PATH", nil},
		{"data.targetpath", "STOREMIGRATE_TARGET_PATH", nil},
		{"data.photosdir", "STOREMIGRATE_PHOTOS_DIR", nil},
		{"data.backupdir", "STOREMIGRATE_BACKUP_DIR", nil},

		{"target.driver", "STOREMIGRATE_TARGET_DRIVER", validateEnvDriver},
		{"target.mysql.host", "STOREMIGRATE_MYSQL_HOST", nil},
		{"target.mysql.port", "STOREMIGRATE_MYSQL_PORT", validateEnvPort},
		{"target.mysql.username", "STOREMIGRATE_MYSQL_USERNAME", nil},
		{"target.mysql.password", "STOREMIGRATE_MYSQL_PASSWORD", nil},
		{"target.mysql.database", "STOREMIGRATE_MYSQL_DATABASE", nil},

		{"migration.maxretries", "STOREMIGRATE_MAX_RETRIES", validateEnvPositiveInt},

		{"archive.offsite.s3.accesskeyid", "STOREMIGRATE_S3_ACCESS_KEY_ID", nil},
		{"archive.offsite.s3.secretaccesskey", "STOREMIGRATE_S3_SECRET_ACCESS_KEY", nil},

		{"remote.endpoint", "STOREMIGRATE_REMOTE_ENDPOINT", validateEnvURL},
		{"remote.token", "STOREMIGRATE_REMOTE_TOKEN", nil},

		{"telemetry.dsn", "STOREMIGRATE_SENTRY_DSN", nil},
	}
}

// bindEnvVars sets up environment variable bindings with validation (internal)
func bindEnvVars() error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := viper.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate == nil {
			continue
		}
		if value := os.Getenv(binding.EnvVar); value != "" {
			if err := binding.Validate(value); err != nil {
				warnings = append(warnings, fmt.Sprintf("invalid %s value %q: %v", binding.EnvVar, value, err))
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}

	return nil
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("must be true or false")
	}
	return nil
}

func validateEnvDriver(value string) error {
	if value != DriverSQLite && value != DriverMySQL {
		return fmt.Errorf("must be %s or %s", DriverSQLite, DriverMySQL)
	}
	return nil
}

func validateEnvPort(value string) error {
	port, err := strconv.Atoi(value)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("must be a port number between 1 and 65535")
	}
	return nil
}

func validateEnvPositiveInt(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil || n < 1 {
		return fmt.Errorf("must be a positive integer")
	}
	return nil
}

func validateEnvURL(value string) error {
	u, err := url.Parse(value)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("must be an absolute URL")
	}
	return nil
}
