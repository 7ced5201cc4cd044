// Package database opens the Postgres connection, provisions the application role and database
// and applies the embedded migrations.
package database

import (
	"context"
	"database/sql"
	"net/url"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/trezcool/goose"

	"github.com/alyxedu/alyx/core"
	appfs "github.com/alyxedu/alyx/fs"
)

const (
	maintenanceDB = "postgres"
	migrationsDir = "migrations"
	pingAttempts  = 30
)

var (
	// mockable
	runMigrations = func(command string, db *sql.DB, dir string) error {
		return goose.RunFS(command, db, appfs.FS, dir)
	}
	pingBackoff = 100 * time.Millisecond
)

type pinger interface {
	PingContext(ctx context.Context) error
}

// dataSourceName builds the connection URL to dbName, as the admin role when asked and configured.
func dataSourceName(conf *core.Config, dbName string, admin bool) string {
	creds := url.UserPassword(conf.Database.User, conf.Database.Password)
	if admin && conf.Database.AdminUser != "" {
		creds = url.UserPassword(conf.Database.AdminUser, conf.Database.AdminPassword)
	}

	q := make(url.Values)
	q.Set("sslmode", "require")
	if conf.Database.DisableTLS {
		q.Set("sslmode", "disable")
	}
	q.Set("timezone", "utc")

	u := url.URL{
		Scheme:   conf.Database.Engine,
		User:     creds,
		Host:     conf.Database.Address(),
		Path:     dbName,
		RawQuery: q.Encode(),
	}
	return u.String()
}

func open(conf *core.Config, dbName string, admin bool) (*sql.DB, error) {
	return sql.Open(conf.Database.Engine, dataSourceName(conf, dbName, admin))
}

// Open connects to the application database as the application role.
func Open(conf *core.Config) (*sql.DB, error) {
	db, err := open(conf, conf.Database.Name, false)
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	return db, nil
}

// ping waits for the server to accept connections, waiting one more backoff step after each failure.
func ping(ctx context.Context, db pinger) error {
	var err error
	for attempt := 1; attempt <= pingAttempts; attempt++ {
		if err = db.PingContext(ctx); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "waiting for database")
		case <-time.After(time.Duration(attempt) * pingBackoff):
		}
	}
	return errors.Wrap(err, "database ping timeout")
}

func createRoleQuery(name, password string) string {
	return "CREATE ROLE " + pq.QuoteIdentifier(name) + " LOGIN CREATEDB ENCRYPTED PASSWORD " + pq.QuoteLiteral(password)
}

func createDatabaseQuery(name string) string {
	return "CREATE DATABASE " + pq.QuoteIdentifier(name)
}

func exists(ctx context.Context, db *sql.DB, query, arg string) (bool, error) {
	var found bool
	if err := db.QueryRowContext(ctx, query, arg).Scan(&found); err != nil {
		return false, err
	}
	return found, nil
}

func ensureAppRole(ctx context.Context, db *sql.DB, conf *core.Config) error {
	if conf.Database.User == "" {
		return nil
	}
	found, err := exists(ctx, db, "SELECT EXISTS (SELECT 1 FROM pg_roles WHERE rolname = $1)", conf.Database.User)
	if err != nil {
		return errors.Wrap(err, "checking app role")
	}
	if found {
		return nil
	}
	if _, err = db.ExecContext(ctx, createRoleQuery(conf.Database.User, conf.Database.Password)); err != nil {
		return errors.Wrap(err, "creating app role")
	}
	return nil
}

func ensureDatabase(ctx context.Context, db *sql.DB, conf *core.Config) error {
	found, err := exists(ctx, db, "SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)", conf.Database.Name)
	if err != nil {
		return errors.Wrap(err, "checking database")
	}
	if found {
		return nil
	}
	if _, err = db.ExecContext(ctx, createDatabaseQuery(conf.Database.Name)); err != nil {
		return errors.Wrap(err, "creating database")
	}
	return nil
}

// CreateIfNotExist creates the application role (as the admin role) and then the application
// database (as the application role, which owns it).
func CreateIfNotExist(ctx context.Context, conf *core.Config) error {
	if err := withConn(ctx, conf, true, ensureAppRole); err != nil {
		return err
	}
	return withConn(ctx, conf, false, ensureDatabase)
}

func withConn(ctx context.Context, conf *core.Config, admin bool, fn func(context.Context, *sql.DB, *core.Config) error) error {
	db, err := open(conf, maintenanceDB, admin)
	if err != nil {
		return errors.Wrap(err, "opening maintenance database")
	}
	defer func() { _ = db.Close() }()

	if err = ping(ctx, db); err != nil {
		return err
	}
	return fn(ctx, db, conf)
}

// Migrate applies every pending migration embedded under fs/migrations.
func Migrate(db *sql.DB) error {
	if err := runMigrations("up", db, migrationsDir); err != nil {
		return errors.Wrap(err, "migrating database")
	}
	return nil
}
