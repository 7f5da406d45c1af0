package v2

import (
	"fmt"
	"net"
	"time"

	"github.com/go-sql-driver/mysql"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/movingbox/storemigrate/internal/datastore/v2/entities"
	"github.com/movingbox/storemigrate/internal/logger"
)

// MySQLConfig holds MySQL-specific configuration for the target store.
type MySQLConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Database string
	Debug    bool
	// Timeout bounds connect, read and write; empty means driver defaults.
	Timeout string
	Logger  logger.Logger
}

// MySQLManager handles a MySQL target store.
type MySQLManager struct {
	db       *gorm.DB
	location string
}

// mysqlDSN builds the DSN through mysql.Config so credentials are escaped.
// ClientFoundRows makes RowsAffected count matched rows, which the state
// manager's guarded updates rely on.
func mysqlDSN(cfg *MySQLConfig) string {
	params := map[string]string{
		"charset": "utf8mb4",
	}
	if cfg.Timeout != "" {
		params["timeout"] = cfg.Timeout
		params["readTimeout"] = cfg.Timeout
		params["writeTimeout"] = cfg.Timeout
	}

	dsnCfg := mysql.Config{
		User:                 cfg.Username,
		Passwd:               cfg.Password,
		Net:                  "tcp",
		Addr:                 net.JoinHostPort(cfg.Host, cfg.Port),
		DBName:               cfg.Database,
		Params:               params,
		ParseTime:            true,
		Loc:                  time.UTC,
		AllowNativePasswords: true,
		ClientFoundRows:      true,
	}
	return dsnCfg.FormatDSN()
}

// NewMySQLManager connects to the MySQL target store.
func NewMySQLManager(cfg *MySQLConfig) (*MySQLManager, error) {
	db, err := gorm.Open(gormmysql.Open(mysqlDSN(cfg)), &gorm.Config{
		Logger: gormLogger(cfg.Logger, cfg.Debug),
	})
	if err != nil {
		return nil, fmt.Errorf("open MySQL target store: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(4)
	sqlDB.SetMaxOpenConns(16)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return &MySQLManager{
		db:       db,
		location: fmt.Sprintf("%s:%s/%s", cfg.Host, cfg.Port, cfg.Database),
	}, nil
}

// Initialize creates the schema and the migration state row. MySQL honours
// the ON DELETE clauses of the entity tags, so no triggers are needed.
func (m *MySQLManager) Initialize() error {
	if err := m.db.AutoMigrate(entities.AllModels()...); err != nil {
		return fmt.Errorf("create target schema: %w", err)
	}
	return initMigrationState(m.db)
}

func (m *MySQLManager) DB() *gorm.DB { return m.db }

// Path is host:port/database; it is only displayed.
func (m *MySQLManager) Path() string { return m.location }

func (m *MySQLManager) IsMySQL() bool { return true }

func (m *MySQLManager) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Delete drops every target table in reverse creation order.
func (m *MySQLManager) Delete() error {
	models := entities.AllModels()
	for i := len(models) - 1; i >= 0; i-- {
		if err := m.db.Migrator().DropTable(models[i]); err != nil {
			return fmt.Errorf("drop %T: %w", models[i], err)
		}
	}
	return nil
}

// Exists reports whether the schema has been created.
func (m *MySQLManager) Exists() bool {
	return m.db.Migrator().HasTable(&entities.MigrationState{})
}
