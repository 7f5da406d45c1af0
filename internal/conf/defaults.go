package conf

import (
	"time"

	"github.com/spf13/viper"

	"github.com/movingbox/storemigrate/internal/logger"
)

// Target store drivers
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// Canonical home tie-break policies
const (
	TieBreakOldest       = "oldest"
	TieBreakNewest       = "newest"
	TieBreakMostContents = "most_contents"
)

// DefaultHomeNames are the placeholder names the app used to seed homes
var DefaultHomeNames = []string{"My Home", "Home", "Main Home", "New Home"}

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("data.legacypath", "data/Inventory.sqlite")
	viper.SetDefault("data.targetpath", "data/inventory.db")
	viper.SetDefault("data.photosdir", "data/photos")
	viper.SetDefault("data.backupdir", "data/legacy-backup")

	viper.SetDefault("target.driver", DriverSQLite)
	viper.SetDefault("target.mysql.host", "localhost")
	viper.SetDefault("target.mysql.port", "3306")
	viper.SetDefault("target.mysql.username", "")
	viper.SetDefault("target.mysql.password", "")
	viper.SetDefault("target.mysql.database", "inventory")

	viper.SetDefault("migration.maxretries", 3)
	viper.SetDefault("migration.photoconcurrency", 4)
	viper.SetDefault("migration.photorate", 50.0)
	viper.SetDefault("migration.maxskipdetails", 50)
	viper.SetDefault("migration.mindiskmb", 64)
	viper.SetDefault("migration.reportpath", "")

	viper.SetDefault("canonicalize.tiebreak", TieBreakOldest)
	viper.SetDefault("canonicalize.defaulthomenames", DefaultHomeNames)

	viper.SetDefault("archive.offsite.enabled", false)
	viper.SetDefault("archive.offsite.s3.region", "us-east-1")
	viper.SetDefault("archive.offsite.s3.pathstyle", false)
	viper.SetDefault("archive.offsite.s3.prefix", "legacy-archive")

	viper.SetDefault("remote.enabled", false)
	viper.SetDefault("remote.endpoint", "")
	viper.SetDefault("remote.cachettl", 10*time.Minute)
	viper.SetDefault("remote.timeout", 15*time.Second)
	viper.SetDefault("remote.grace", 2*time.Second)

	viper.SetDefault("logging.defaultlevel", logger.DefaultLogLevel)
	viper.SetDefault("logging.timezone", "Local")
	viper.SetDefault("logging.console.enabled", logger.DefaultConsoleEnabled)
	viper.SetDefault("logging.console.level", logger.DefaultLogLevel)
	viper.SetDefault("logging.fileoutput.enabled", logger.DefaultFileEnabled)
	viper.SetDefault("logging.fileoutput.path", logger.DefaultLogPath)
	viper.SetDefault("logging.fileoutput.level", logger.DefaultLogLevel)
	viper.SetDefault("logging.moduleoutputs.migration.enabled", true)
	viper.SetDefault("logging.moduleoutputs.migration.filepath", logger.DefaultMigrationLogPath)
	viper.SetDefault("logging.moduleoutputs.migration.level", "debug")
	viper.SetDefault("logging.moduleoutputs.migration.consolealso", true)

	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.dsn", "")

	viper.SetDefault("metrics.path", "")
}
