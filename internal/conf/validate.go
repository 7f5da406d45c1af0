package conf

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("validation errors: %s", strings.Join(ve.Errors, "; "))
}

var validLogLevels = []string{"trace", "debug", "info", "warn", "error"}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	for _, check := range []func(*Settings) error{
		validateDataSettings,
		validateTargetSettings,
		validateMigrationSettings,
		validateCanonicalizeSettings,
		validateOffsiteSettings,
		validateRemoteSettings,
		validateTelemetrySettings,
		validateLoggingSettings,
	} {
		if err := check(settings); err != nil {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateDataSettings(s *Settings) error {
	if s.Data.LegacyPath == "" {
		return fmt.Errorf("data.legacypath must be set")
	}
	if s.Data.BackupDir == "" {
		return fmt.Errorf("data.backupdir must be set")
	}
	if s.Target.Driver == DriverSQLite && s.Data.TargetPath == "" {
		return fmt.Errorf("data.targetpath must be set for the sqlite driver")
	}
	return nil
}

func validateTargetSettings(s *Settings) error {
	switch s.Target.Driver {
	case DriverSQLite:
		return nil
	case DriverMySQL:
		var missing []string
		if s.Target.MySQL.Host == "" {
			missing = append(missing, "host")
		}
		if s.Target.MySQL.Database == "" {
			missing = append(missing, "database")
		}
		if s.Target.MySQL.Username == "" {
			missing = append(missing, "username")
		}
		if len(missing) > 0 {
			return fmt.Errorf("target.mysql is missing %s", strings.Join(missing, ", "))
		}
		return nil
	default:
		return fmt.Errorf("target.driver must be %s or %s, got %q", DriverSQLite, DriverMySQL, s.Target.Driver)
	}
}

func validateMigrationSettings(s *Settings) error {
	m := s.Migration
	switch {
	case m.MaxRetries < 1:
		return fmt.Errorf("migration.maxretries must be at least 1")
	case m.PhotoConcurrency < 1:
		return fmt.Errorf("migration.photoconcurrency must be at least 1")
	case m.PhotoRate < 0:
		return fmt.Errorf("migration.photorate must not be negative")
	case m.MaxSkipDetails < 0:
		return fmt.Errorf("migration.maxskipdetails must not be negative")
	}
	return nil
}

func validateCanonicalizeSettings(s *Settings) error {
	switch s.Canonicalize.TieBreak {
	case TieBreakOldest, TieBreakNewest, TieBreakMostContents:
		return nil
	default:
		return fmt.Errorf("canonicalize.tiebreak must be one of %s, %s, %s", TieBreakOldest, TieBreakNewest, TieBreakMostContents)
	}
}

func validateOffsiteSettings(s *Settings) error {
	o := s.Archive.Offsite
	if !o.Enabled {
		return nil
	}
	if o.S3.Bucket == "" || o.S3.Region == "" {
		return fmt.Errorf("archive.offsite.s3 requires bucket and region")
	}
	if o.S3.Endpoint != "" {
		if _, err := url.ParseRequestURI(o.S3.Endpoint); err != nil {
			return fmt.Errorf("archive.offsite.s3.endpoint is not a valid URL: %w", err)
		}
	}
	return nil
}

func validateRemoteSettings(s *Settings) error {
	r := s.Remote
	if !r.Enabled {
		return nil
	}
	if err := validateEnvURL(r.Endpoint); err != nil {
		return fmt.Errorf("remote.endpoint %w", err)
	}
	if r.Timeout <= 0 {
		return fmt.Errorf("remote.timeout must be positive")
	}
	return nil
}

func validateTelemetrySettings(s *Settings) error {
	if s.Telemetry.Enabled && s.Telemetry.DSN == "" {
		return fmt.Errorf("telemetry.dsn must be set when telemetry is enabled")
	}
	return nil
}

func validateLoggingSettings(s *Settings) error {
	l := s.Logging
	if l.DefaultLevel != "" && !slices.Contains(validLogLevels, l.DefaultLevel) {
		return fmt.Errorf("logging.defaultlevel %q is not a valid level", l.DefaultLevel)
	}
	for module, level := range l.ModuleLevels {
		if !slices.Contains(validLogLevels, level) {
			return fmt.Errorf("logging.modulelevels.%s %q is not a valid level", module, level)
		}
	}
	return nil
}
