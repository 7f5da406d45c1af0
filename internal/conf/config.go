// Package conf loads storemigrate settings from config.yaml, environment
// variables and command-line flags through viper.
package conf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/movingbox/storemigrate/internal/logger"
)

// Settings is the complete runtime configuration
type Settings struct {
	Debug bool // true to enable debug mode

	Data         DataSettings         // file locations
	Target       TargetSettings       // target store selection
	Migration    MigrationSettings    // schema migration and photo pass tuning
	Canonicalize CanonicalizeSettings // home canonicalizer tuning
	Archive      ArchiveSettings      // legacy store archive options
	Remote       RemoteSettings       // remote stranded-state probe
	Logging      logger.LoggingConfig // module-aware logging
	Telemetry    TelemetrySettings    // error reporting
	Metrics      MetricsSettings      // Prometheus snapshot
}

// DataSettings locates the legacy store, the target store and their neighbours
type DataSettings struct {
	LegacyPath string `yaml:"legacypath"` // legacy object-graph store (SQLite)
	TargetPath string `yaml:"targetpath"` // SQLite target store; unused for MySQL
	PhotosDir  string `yaml:"photosdir"`  // base directory for relative photo paths
	BackupDir  string `yaml:"backupdir"`  // where archived legacy stores are moved
}

// TargetSettings selects the target store driver
type TargetSettings struct {
	Driver string        `yaml:"driver"` // sqlite or mysql
	MySQL  MySQLSettings `yaml:"mysql"`
}

// MySQLSettings contains settings for a MySQL target store
type MySQLSettings struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// MigrationSettings tunes the schema migration and photo pass
type MigrationSettings struct {
	MaxRetries       int     `yaml:"maxretries"`       // failed attempts before the retry bound trips
	PhotoConcurrency int     `yaml:"photoconcurrency"` // concurrent photo file reads
	PhotoRate        float64 `yaml:"photorate"`        // photo file reads per second, 0 disables pacing
	MaxSkipDetails   int     `yaml:"maxskipdetails"`   // per-entity skip details kept in reports
	MinDiskMB        uint64  `yaml:"mindiskmb"`        // free space headroom required beyond 2x legacy size
	ReportPath       string  `yaml:"reportpath"`       // optional YAML run report
}

// CanonicalizeSettings tunes canonical home selection
type CanonicalizeSettings struct {
	TieBreak         string   `yaml:"tiebreak"`         // oldest, newest or most_contents
	DefaultHomeNames []string `yaml:"defaulthomenames"` // names treated as placeholder metadata
}

// ArchiveSettings controls what happens to the legacy store after commit
type ArchiveSettings struct {
	Offsite OffsiteSettings `yaml:"offsite"`
}

// OffsiteSettings enables an extra copy of the archived store
type OffsiteSettings struct {
	Enabled bool       `yaml:"enabled"`
	S3      S3Settings `yaml:"s3"`
}

// S3Settings configures an S3-compatible bucket
type S3Settings struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"` // custom endpoint for MinIO and similar
	AccessKeyID     string `yaml:"accesskeyid"`
	SecretAccessKey string `yaml:"secretaccesskey"`
	PathStyle       bool   `yaml:"pathstyle"`
	Prefix          string `yaml:"prefix"`
}

// RemoteSettings configures the stranded remote-state probe
type RemoteSettings struct {
	Enabled  bool          `yaml:"enabled"`
	Endpoint string        `yaml:"endpoint"`
	Token    string        `yaml:"token"`
	CacheTTL time.Duration `yaml:"cachettl"`
	Timeout  time.Duration `yaml:"timeout"`
	Grace    time.Duration `yaml:"grace"` // wait for the probe after local work succeeds
}

// TelemetrySettings enables Sentry error reporting
type TelemetrySettings struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
}

// MetricsSettings controls the Prometheus text snapshot
type MetricsSettings struct {
	Path string `yaml:"path"` // empty disables the snapshot
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads defaults, the config file and environment variables into Settings.
// An empty configFile searches the default config paths.
func Load(configFile string) (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(configFile); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper registers defaults and env bindings and reads the config file.
// A missing config file is not an error; defaults and env still apply.
func initViper(configFile string) error {
	viper.SetConfigType("yaml")

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("config")
		for _, path := range GetDefaultConfigPaths() {
			viper.AddConfigPath(path)
		}
	}

	setDefaultConfig()

	if err := bindEnvVars(); err != nil {
		return err
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// GetDefaultConfigPaths returns the directories searched for config.yaml
func GetDefaultConfigPaths() []string {
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "storemigrate"))
	}
	return append(paths, "/etc/storemigrate")
}

// GetSettings returns the settings from the last successful Load
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// IsMySQL reports whether the target store is MySQL
func (s *Settings) IsMySQL() bool {
	return s.Target.Driver == DriverMySQL
}
