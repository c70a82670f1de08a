/*
	Copyright NetFoundry Inc.

	Licensed under the Apache License, Version 2.0 (the "License");
	you may not use this file except in compliance with the License.
	You may obtain a copy of the License at

	https://www.apache.org/licenses/LICENSE-2.0

	Unless required by applicable law or agreed to in writing, software
	distributed under the License is distributed on an "AS IS" BASIS,
	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
	See the License for the specific language governing permissions and
	limitations under the License.
*/

// Package sqlstore keeps the root mapping of a store in a PostgreSQL table of (key, value) rows with JSONB values.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/openziti/xapp"
	"github.com/openziti/xapp/store"
	"github.com/pkg/errors"
)

const (
	DriverName   = "postgres"
	DefaultTable = "xapp_root"

	StoragePostgres = "postgres"
	SettingDSN      = "dsn"
	SettingTable    = "table"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Storage is a store.Storage over a PostgreSQL database.
type Storage struct {
	db    *sqlx.DB
	table string
}

var _ store.Storage = (*Storage)(nil)

// Open connects to the database at dsn.
func Open(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open(DriverName, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "error opening postgres database")
	}
	return db, nil
}

// New creates a Storage keeping its rows in table.
func New(db *sqlx.DB, table string) (*Storage, error) {
	if table == "" {
		table = DefaultTable
	}

	if !tableName.MatchString(table) {
		return nil, errors.Errorf("invalid table name [%s]", table)
	}

	return &Storage{db: db, table: table}, nil
}

// OpenFromSettings is a store.OpenFunc for the "postgres" storage. The pool size bounds the open database connections
// and the table is created if missing.
func OpenFromSettings(settings xapp.Bunch) (store.Storage, error) {
	if kind := settings.GetString(store.SettingStorage, ""); kind != StoragePostgres {
		return nil, errors.Errorf("unsupported storage [%s]", kind)
	}

	dsn := settings.GetString(SettingDSN, "")
	if dsn == "" {
		return nil, errors.Errorf("setting [%s] is required for %s storage", SettingDSN, StoragePostgres)
	}

	db, err := Open(dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(settings.GetInt(store.SettingPoolSize, store.DefaultPoolSize))

	storage, err := New(db, settings.GetString(SettingTable, DefaultTable))
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := storage.EnsureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return storage, nil
}

// EnsureSchema creates the table of the root mapping if it does not exist.
func (storage *Storage) EnsureSchema(ctx context.Context) error {
	_, err := storage.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			key TEXT PRIMARY KEY,
			value JSONB NOT NULL
		)
	`, storage.table))
	return errors.Wrapf(err, "error creating table [%s]", storage.table)
}

func (storage *Storage) Connect(ctx context.Context) (store.Conn, error) {
	conn, err := storage.db.Connx(ctx)
	if err != nil {
		return nil, err
	}
	return &connection{conn: conn, table: storage.table, ctx: ctx}, nil
}

func (storage *Storage) Close() error {
	return storage.db.Close()
}

type queryer interface {
	sqlx.QueryerContext
	sqlx.ExecerContext
}

// connection runs each transaction in a *sqlx.Tx of one dedicated database connection.
type connection struct {
	conn  *sqlx.Conn
	tx    *sqlx.Tx
	table string
	ctx   context.Context
}

func (conn *connection) Begin(ctx context.Context) error {
	if conn.tx != nil {
		return errors.New("a transaction is already in progress")
	}

	tx, err := conn.conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	conn.tx = tx
	conn.ctx = ctx
	return nil
}

func (conn *connection) queryer() queryer {
	if conn.tx != nil {
		return conn.tx
	}
	return conn.conn
}

func (conn *connection) Get(key string, value interface{}) (bool, error) {
	var encoded []byte
	err := sqlx.GetContext(conn.ctx, conn.queryer(), &encoded,
		fmt.Sprintf(`SELECT value FROM %s WHERE key = $1`, conn.table), key)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "error loading key [%s]", key)
	}

	if err := json.Unmarshal(encoded, value); err != nil {
		return true, errors.Wrapf(err, "error decoding value of key [%s]", key)
	}
	return true, nil
}

func (conn *connection) Put(key string, value interface{}) error {
	if conn.tx == nil {
		return store.ErrNotInTransaction
	}

	encoded, err := json.Marshal(value)
	if err != nil {
		return errors.Wrapf(err, "error encoding value of key [%s]", key)
	}

	_, err = conn.tx.ExecContext(conn.ctx, fmt.Sprintf(`
		INSERT INTO %s (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
	`, conn.table), key, string(encoded))
	return errors.Wrapf(err, "error storing key [%s]", key)
}

func (conn *connection) Delete(key string) error {
	if conn.tx == nil {
		return store.ErrNotInTransaction
	}

	_, err := conn.tx.ExecContext(conn.ctx, fmt.Sprintf(`DELETE FROM %s WHERE key = $1`, conn.table), key)
	return errors.Wrapf(err, "error deleting key [%s]", key)
}

func (conn *connection) Keys() ([]string, error) {
	var keys []string
	err := sqlx.SelectContext(conn.ctx, conn.queryer(), &keys, fmt.Sprintf(`SELECT key FROM %s ORDER BY key`, conn.table))
	return keys, errors.Wrap(err, "error listing keys")
}

func (conn *connection) Commit() error {
	if conn.tx == nil {
		return store.ErrNotInTransaction
	}

	tx := conn.tx
	conn.tx = nil
	return tx.Commit()
}

func (conn *connection) Rollback() error {
	if conn.tx == nil {
		return nil
	}

	tx := conn.tx
	conn.tx = nil
	return tx.Rollback()
}

func (conn *connection) Close() error {
	if err := conn.Rollback(); err != nil {
		_ = conn.conn.Close()
		return err
	}
	return conn.conn.Close()
}
