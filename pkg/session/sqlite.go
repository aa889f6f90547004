package session

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/milan604/feedclient/pkg/errors"
)

// SQLiteStorage persists the session in a single-table SQLite database.
type SQLiteStorage struct {
	conn *sql.DB
}

// OpenSQLite opens or creates the database at path. ":memory:" is accepted for tests.
func OpenSQLite(path string) (*SQLiteStorage, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, errors.Wrap(err, "session db dir")
		}
	}
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open session db")
	}
	// One connection keeps ":memory:" databases alive and serialises writers.
	conn.SetMaxOpenConns(1)

	pragmas := []string{"PRAGMA journal_mode=WAL;", "PRAGMA busy_timeout=5000;"}
	for _, p := range pragmas {
		if _, err := conn.Exec(p); err != nil {
			conn.Close()
			return nil, errors.Wrapf(err, "session db %s", strings.TrimSuffix(p, ";"))
		}
	}

	st := &SQLiteStorage{conn: conn}
	if err := st.migrate(); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "migrate session db")
	}
	return st, nil
}

func (st *SQLiteStorage) migrate() error {
	_, err := st.conn.Exec(`
	CREATE TABLE IF NOT EXISTS session_kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);`)
	return err
}

func (st *SQLiteStorage) Load(ctx context.Context) (map[string]string, error) {
	rows, err := st.conn.QueryContext(ctx, "SELECT key, value FROM session_kv")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	values := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		values[k] = v
	}
	return values, rows.Err()
}

// Save upserts every value inside one transaction.
func (st *SQLiteStorage) Save(ctx context.Context, values map[string]string) error {
	tx, err := st.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for k, v := range values {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO session_kv (key, value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			k, v, now)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (st *SQLiteStorage) Delete(ctx context.Context, keys ...string) error {
	tx, err := st.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, k := range keys {
		if _, err := tx.ExecContext(ctx, "DELETE FROM session_kv WHERE key = ?", k); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Close closes the database connection.
func (st *SQLiteStorage) Close() error {
	return st.conn.Close()
}
