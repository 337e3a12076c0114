package database

import (
	"context"
	"embed"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/trezcool/beet/core"
)

const (
	sqliteDriver   = "sqlite"
	postgresDriver = "postgres"

	migrationsDir = "migrations"
)

//go:embed migrations/*.sql
var migrations embed.FS

var (
	pingMaxAttempts = 30
	pingInterval    = 100 * time.Millisecond // waits that much longer after each attempt

	// errors
	errUnsupportedEngine = errors.New("unsupported database engine")
)

func init() {
	// modernc registers itself as "sqlite", which sqlx does not know
	sqlx.BindDriver(sqliteDriver, sqlx.QUESTION)
}

func sqliteDSN(conf *core.Config) (string, error) {
	name := conf.Database.Name
	if name == "" || name == ":memory:" {
		return ":memory:", nil
	}
	if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		return "", errors.Wrap(err, "creating database directory")
	}
	q := make(url.Values)
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "journal_mode(WAL)")
	return "file:" + name + "?" + q.Encode(), nil
}

func postgresDSN(conf *core.Config) string {
	sslMode := "require"
	if conf.Database.DisableTLS {
		sslMode = "disable"
	}
	q := make(url.Values)
	q.Set("sslmode", sslMode)
	q.Set("timezone", "utc")

	u := url.URL{
		Scheme:   postgresDriver,
		User:     url.UserPassword(conf.Database.User, conf.Database.Password),
		Host:     conf.DatabaseAddress(),
		Path:     conf.Database.Name,
		RawQuery: q.Encode(),
	}
	return u.String()
}

// Open connects to the configured database and waits for it to be ready.
func Open(ctx context.Context, conf *core.Config) (*sqlx.DB, error) {
	var db *sqlx.DB
	switch conf.Database.Engine {
	case core.BackendSQLite:
		dsn, err := sqliteDSN(conf)
		if err != nil {
			return nil, err
		}
		if db, err = sqlx.Open(sqliteDriver, dsn); err != nil {
			return nil, errors.Wrap(err, "opening sqlite database")
		}
		// sqlite allows a single writer; a single connection also keeps :memory: databases alive
		db.SetMaxOpenConns(1)
	case core.BackendPostgres:
		var err error
		if db, err = sqlx.Open(postgresDriver, postgresDSN(conf)); err != nil {
			return nil, errors.Wrap(err, "opening postgres database")
		}
	default:
		return nil, errors.Wrap(errUnsupportedEngine, conf.Database.Engine)
	}

	if err := ping(ctx, db); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "pinging database")
	}
	return db, nil
}

// ping waits for the database to be ready. Waits 100ms longer between each attempt.
func ping(ctx context.Context, db *sqlx.DB) error {
	var err error
	for attempts := 1; attempts <= pingMaxAttempts; attempts++ {
		if err = db.PingContext(ctx); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), err.Error())
		case <-time.After(time.Duration(attempts) * pingInterval):
		}
	}
	return errors.Wrap(err, "DB ping timeout")
}

func dialect(db *sqlx.DB) string {
	if db.DriverName() == sqliteDriver {
		return "sqlite3"
	}
	return db.DriverName()
}

// RunMigrations runs a goose command (up, down, status, version, redo, reset..) with the embedded migrations.
func RunMigrations(db *sqlx.DB, command string, args ...string) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect(dialect(db)); err != nil {
		return errors.Wrap(err, "setting migrations dialect")
	}
	if err := goose.Run(command, db.DB, migrationsDir, args...); err != nil {
		return errors.Wrapf(err, "running migrations %s", command)
	}
	return nil
}

// Migrate brings the schema up to date.
func Migrate(db *sqlx.DB) error {
	return RunMigrations(db, "up")
}
