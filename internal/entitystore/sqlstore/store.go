package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/polygene/internal/entity"
	"github.com/roach88/polygene/internal/entitystore"
)

// Schema version tracking:
// 0 - empty database
// 1 - entities table with type index
const currentSchemaVersion = 1

// Store keeps entity records in a SQL database.
type Store struct {
	db      *sql.DB
	dialect Dialect
	codec   entitystore.JSONCodec
	logger  *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Open connects to dsn with the given dialect, applies connection settings
// and migrates the schema. It is safe to call on an existing database.
func Open(ctx context.Context, dialect Dialect, dsn string, opts ...Option) (*Store, error) {
	db, err := sql.Open(dialect.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if dialect.configure != nil {
		if err := dialect.configure(ctx, db); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply pragmas: %w", err)
		}
	}
	if err := runMigrations(ctx, db, dialect); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	s := &Store{db: db, dialect: dialect, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// OpenSQLite opens (or creates) a SQLite database file.
func OpenSQLite(ctx context.Context, path string, opts ...Option) (*Store, error) {
	return Open(ctx, SQLite, path, opts...)
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// runMigrations applies incremental schema migrations based on the stored
// schema version.
func runMigrations(ctx context.Context, db *sql.DB, d Dialect) error {
	version, err := d.getVersion(ctx, db)
	if err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}
	if version >= currentSchemaVersion {
		return nil
	}
	if version < 1 {
		stmts, err := d.statements()
		if err != nil {
			return err
		}
		for _, stmt := range stmts {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("migrate to v1: %w", err)
			}
		}
	}
	if err := d.setVersion(ctx, db, currentSchemaVersion); err != nil {
		return fmt.Errorf("set schema version: %w", err)
	}
	return nil
}

// NewEntityState returns a NEW state for ref unless ref is persisted.
func (s *Store) NewEntityState(ctx context.Context, ref entity.Reference, typeName string, now time.Time) (*entity.State, error) {
	var one int
	err := s.db.QueryRowContext(ctx, s.dialect.rebind("SELECT 1 FROM entities WHERE reference = ?"), ref.String()).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return entity.NewState(ref, typeName, now), nil
	case err != nil:
		return nil, entitystore.WrapIO("exists "+ref.String(), err)
	}
	return nil, fmt.Errorf("%w: %s", entitystore.ErrEntityAlreadyExists, ref)
}

// EntityState loads the persisted state of ref.
func (s *Store) EntityState(ctx context.Context, ref entity.Reference) (*entity.State, error) {
	var data string
	err := s.db.QueryRowContext(ctx, s.dialect.rebind("SELECT data FROM entities WHERE reference = ?"), ref.String()).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", entitystore.ErrEntityNotFound, ref)
	}
	if err != nil {
		return nil, entitystore.WrapIO("get "+ref.String(), err)
	}
	return s.decode(ref.String(), data)
}

// Prepare validates the batch and stages its writes in a transaction that the
// returned committer commits or rolls back.
func (s *Store) Prepare(ctx context.Context, newStates, loadedStates, removedStates []*entity.State) (entitystore.StateCommitter, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, entitystore.WrapIO("begin", err)
	}
	if err := s.stage(ctx, tx, newStates, loadedStates, removedStates); err != nil {
		tx.Rollback()
		return nil, err
	}
	return entitystore.Once(entitystore.CommitterFuncs{
		CommitFunc: func(context.Context) error {
			if err := tx.Commit(); err != nil {
				return entitystore.WrapIO("commit", err)
			}
			s.logger.Debug("sql store commit",
				"dialect", s.dialect.name,
				"new", len(newStates),
				"loaded", len(loadedStates),
				"removed", len(removedStates))
			return nil
		},
		CancelFunc: func(context.Context) error {
			if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				return entitystore.WrapIO("rollback", err)
			}
			return nil
		},
	}), nil
}

func (s *Store) stage(ctx context.Context, tx *sql.Tx, newStates, loadedStates, removedStates []*entity.State) error {
	lookup := func(ctx context.Context, ref entity.Reference) (int64, bool, error) {
		var version int64
		q := s.dialect.rebind("SELECT version FROM entities WHERE reference = ?" + s.dialect.forUpdate)
		err := tx.QueryRowContext(ctx, q, ref.String()).Scan(&version)
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		if err != nil {
			return 0, false, entitystore.WrapIO("version "+ref.String(), err)
		}
		return version, true, nil
	}
	if err := entitystore.CheckVersions(ctx, lookup, newStates, loadedStates, removedStates); err != nil {
		return err
	}

	insert := s.dialect.rebind("INSERT INTO entities (reference, type, version, modified, data) VALUES (?, ?, ?, ?, ?)")
	for _, st := range newStates {
		rec, data, err := s.encode(st)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, insert, rec.Reference, rec.Type, rec.Version, rec.Modified, data)
		if err != nil {
			if s.dialect.duplicate(err) {
				return entitystore.NewConcurrentModificationError(st.Reference())
			}
			return entitystore.WrapIO("insert "+rec.Reference, err)
		}
	}

	update := s.dialect.rebind("UPDATE entities SET type = ?, version = ?, modified = ?, data = ? WHERE reference = ? AND version = ?")
	for _, st := range entitystore.Modified(loadedStates) {
		rec, data, err := s.encode(st)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, update, rec.Type, rec.Version, rec.Modified, data, rec.Reference, st.Version())
		if err := expectOneRow(res, err, st.Reference(), "update"); err != nil {
			return err
		}
	}

	del := s.dialect.rebind("DELETE FROM entities WHERE reference = ? AND version = ?")
	for _, st := range removedStates {
		res, err := tx.ExecContext(ctx, del, st.Reference().String(), st.Version())
		if err := expectOneRow(res, err, st.Reference(), "delete"); err != nil {
			return err
		}
	}
	return nil
}

func expectOneRow(res sql.Result, err error, ref entity.Reference, op string) error {
	if err != nil {
		return entitystore.WrapIO(op+" "+ref.String(), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return entitystore.WrapIO(op+" "+ref.String(), err)
	}
	if n != 1 {
		return entitystore.NewConcurrentModificationError(ref)
	}
	return nil
}

// EntityStates calls fn for every persisted entity in reference order.
func (s *Store) EntityStates(ctx context.Context, fn func(*entity.State) error) error {
	rows, err := s.db.QueryContext(ctx, "SELECT reference, data FROM entities ORDER BY reference")
	if err != nil {
		return entitystore.WrapIO("list", err)
	}
	// Collect first: with SQLite's single connection, fn could not read
	// while rows is open.
	type row struct{ ref, data string }
	var all []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.ref, &r.data); err != nil {
			rows.Close()
			return entitystore.WrapIO("list", err)
		}
		all = append(all, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return entitystore.WrapIO("list", err)
	}
	rows.Close()

	for _, r := range all {
		st, err := s.decode(r.ref, r.data)
		if err != nil {
			return err
		}
		if err := fn(st); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) encode(st *entity.State) (entitystore.Record, string, error) {
	rec := entitystore.NewRecord(st, entitystore.NextVersion(st))
	data, err := s.codec.Marshal(rec)
	if err != nil {
		return rec, "", err
	}
	return rec, string(data), nil
}

func (s *Store) decode(ref, data string) (*entity.State, error) {
	rec, err := s.codec.Unmarshal([]byte(data))
	if err != nil {
		return nil, entitystore.WrapIO("decode "+ref, err)
	}
	st, err := rec.State()
	if err != nil {
		return nil, entitystore.WrapIO("decode "+ref, err)
	}
	return st, nil
}
