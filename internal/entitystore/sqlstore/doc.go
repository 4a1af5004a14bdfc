// Package sqlstore implements the entity store port on database/sql.
//
// Each entity is one row in the entities table holding the canonical JSON
// record plus copies of its reference, type, version and modification time.
// Three dialects are supported:
//
//   - SQLite (github.com/mattn/go-sqlite3): WAL mode, a single connection,
//     schema version tracked in PRAGMA user_version
//   - Postgres (github.com/jackc/pgx/v5/stdlib): JSONB data, row locks
//   - MySQL (github.com/go-sql-driver/mysql): JSON data, row locks
//
// Prepare opens a transaction, checks every version in the batch (taking row
// locks with SELECT ... FOR UPDATE where the dialect supports it) and stages
// the writes. The committer commits or rolls back that transaction, so nothing
// is visible to other readers until Commit. Updates and deletes also carry the
// expected version in their WHERE clause; a zero row count is reported as a
// concurrent modification.
//
// With SQLite the single connection serializes prepared batches: a second
// Prepare (or a read) waits until the open batch is committed or cancelled.
package sqlstore
