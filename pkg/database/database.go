package database

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Options struct {
	Driver       string
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
	Log          zerolog.Logger
}

// Open connects with the configured driver. Duplicate-key errors are
// translated to gorm.ErrDuplicatedKey so callers can match them portably.
func Open(opts Options) (*gorm.DB, error) {
	dialector, err := dialectorFor(opts.Driver, opts.DSN)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger: gormlogger.New(gormWriter{log: opts.Log}, gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", opts.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sql handle: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	}
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

func dialectorFor(driver, dsn string) (gorm.Dialector, error) {
	switch strings.ToLower(driver) {
	case DriverMySQL, "":
		if dsn == "" {
			return nil, fmt.Errorf("mysql: empty DSN")
		}
		return mysql.Open(withParseTime(dsn)), nil
	case DriverPostgres:
		if dsn == "" {
			return nil, fmt.Errorf("postgres: empty DSN")
		}
		return postgres.Open(dsn), nil
	case DriverSQLite:
		if dsn == "" {
			dsn = "medicchat.db"
		}
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", driver)
	}
}

// withParseTime makes the mysql driver scan DATETIME into time.Time.
func withParseTime(dsn string) string {
	if strings.Contains(dsn, "parseTime=") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&parseTime=true"
	}
	return dsn + "?parseTime=true"
}

type gormWriter struct {
	log zerolog.Logger
}

func (w gormWriter) Printf(format string, args ...interface{}) {
	w.log.Warn().Str("component", "gorm").Msgf(format, args...)
}
