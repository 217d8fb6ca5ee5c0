package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
)

// Supported drivers.
const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite3"
)

// Options describes how to reach the database.
type Options struct {
	Driver string // DriverMySQL or DriverSQLite
	Path   string // sqlite file, ":memory:" for a private in-memory db
	User   string
	Pass   string
	Host   string
	Port   string
	Name   string
}

// DSN builds the driver specific data source name.
func (o Options) DSN() (string, error) {
	switch o.Driver {
	case DriverMySQL, "":
		auth := o.User
		if o.Pass != "" {
			auth = fmt.Sprintf("%s:%s", o.User, o.Pass)
		}
		// parseTime=true -> DATETIME -> time.Time | loc=UTC keeps times consistent
		return fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
			auth, o.Host, o.Port, o.Name), nil
	case DriverSQLite:
		path := o.Path
		if path == "" {
			path = ":memory:"
		}
		return fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000&_loc=UTC", path), nil
	default:
		return "", fmt.Errorf("unsupported driver %q", o.Driver)
	}
}

// Open connects to the configured database and verifies the connection.
func Open(o Options) (*sql.DB, error) {
	dsn, err := o.DSN()
	if err != nil {
		return nil, err
	}
	driver := o.Driver
	if driver == "" {
		driver = DriverMySQL
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}

	// Pool settings
	if driver == DriverSQLite {
		// one writer; an in-memory db also lives only as long as its connection
		db.SetMaxOpenConns(1)
		db.SetConnMaxLifetime(0)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	// Ping with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
