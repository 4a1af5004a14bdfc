package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	"github.com/mattn/go-sqlite3"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// Dialect captures the differences between the supported databases.
type Dialect struct {
	name       string
	driver     string
	schemaFile string
	forUpdate  string
	dollarArgs bool
	configure  func(ctx context.Context, db *sql.DB) error
	getVersion func(ctx context.Context, db *sql.DB) (int, error)
	setVersion func(ctx context.Context, db *sql.DB, v int) error
	duplicate  func(err error) bool
}

// Name returns the dialect name used in configuration.
func (d Dialect) Name() string { return d.name }

var (
	// SQLite uses github.com/mattn/go-sqlite3; the DSN is a file path.
	SQLite = Dialect{
		name:       "sqlite",
		driver:     "sqlite3",
		schemaFile: "schema/sqlite.sql",
		configure:  configureSQLite,
		getVersion: func(ctx context.Context, db *sql.DB) (int, error) {
			var v int
			err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v)
			return v, err
		},
		setVersion: func(ctx context.Context, db *sql.DB, v int) error {
			_, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", v))
			return err
		},
		duplicate: func(err error) bool {
			var se sqlite3.Error
			return errors.As(err, &se) && se.Code == sqlite3.ErrConstraint
		},
	}

	// Postgres uses the pgx stdlib driver; the DSN is a postgres:// URL.
	Postgres = Dialect{
		name:       "postgres",
		driver:     "pgx",
		schemaFile: "schema/postgres.sql",
		forUpdate:  " FOR UPDATE",
		dollarArgs: true,
		getVersion: tableVersion,
		setVersion: setTableVersion("DELETE FROM polygene_schema", "INSERT INTO polygene_schema (version) VALUES ($1)"),
		duplicate: func(err error) bool {
			var pe *pgconn.PgError
			return errors.As(err, &pe) && pe.Code == "23505"
		},
	}

	// MySQL uses github.com/go-sql-driver/mysql; the DSN is user:pass@tcp(host)/db.
	MySQL = Dialect{
		name:       "mysql",
		driver:     "mysql",
		schemaFile: "schema/mysql.sql",
		forUpdate:  " FOR UPDATE",
		getVersion: tableVersion,
		setVersion: setTableVersion("DELETE FROM polygene_schema", "INSERT INTO polygene_schema (version) VALUES (?)"),
		duplicate: func(err error) bool {
			var me *mysql.MySQLError
			return errors.As(err, &me) && me.Number == 1062
		},
	}
)

// DialectByName resolves a configured dialect name.
func DialectByName(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	case "mysql":
		return MySQL, nil
	}
	return Dialect{}, fmt.Errorf("unknown sql dialect %q", name)
}

// rebind rewrites ? placeholders as $n for dialects that need it.
func (d Dialect) rebind(query string) string {
	if !d.dollarArgs {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// statements returns the dialect's schema split into single statements.
func (d Dialect) statements() ([]string, error) {
	data, err := schemaFS.ReadFile(d.schemaFile)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	var out []string
	for _, stmt := range strings.Split(string(data), ";") {
		var lines []string
		for _, line := range strings.Split(stmt, "\n") {
			if !strings.HasPrefix(strings.TrimSpace(line), "--") {
				lines = append(lines, line)
			}
		}
		if s := strings.TrimSpace(strings.Join(lines, "\n")); s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}

// configureSQLite applies the pragmas every connection needs.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - a single open connection, since SQLite allows one writer
func configureSQLite(ctx context.Context, db *sql.DB) error {
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

func tableVersion(ctx context.Context, db *sql.DB) (int, error) {
	var v sql.NullInt64
	err := db.QueryRowContext(ctx, "SELECT MAX(version) FROM polygene_schema").Scan(&v)
	if err != nil {
		// Table missing: nothing applied yet.
		return 0, nil
	}
	return int(v.Int64), nil
}

func setTableVersion(clear, insert string) func(ctx context.Context, db *sql.DB, v int) error {
	return func(ctx context.Context, db *sql.DB, v int) error {
		if _, err := db.ExecContext(ctx, clear); err != nil {
			return err
		}
		_, err := db.ExecContext(ctx, insert, v)
		return err
	}
}
