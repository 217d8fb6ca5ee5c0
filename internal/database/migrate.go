package database

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
)

//go:embed schema_mysql.sql
var mysqlSchema string

//go:embed schema_sqlite.sql
var sqliteSchema string

// Schema returns the DDL for driver.
func Schema(driver string) (string, error) {
	switch driver {
	case DriverMySQL, "":
		return mysqlSchema, nil
	case DriverSQLite:
		return sqliteSchema, nil
	}
	return "", fmt.Errorf("no schema for driver %q", driver)
}

// Migrate applies the embedded schema. Every statement is idempotent.
func Migrate(ctx context.Context, db *sql.DB, driver string) error {
	schema, err := Schema(driver)
	if err != nil {
		return err
	}
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w\n%s", err, stmt)
		}
	}
	return nil
}
