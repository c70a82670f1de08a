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

package sqlstore

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/openziti/xapp"
	"github.com/openziti/xapp/store"
	"github.com/openziti/xapp/transaction"
	"github.com/stretchr/testify/require"
)

func newMockStorage(t *testing.T) (*Storage, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	storage, err := New(sqlx.NewDb(db, DriverName), "")
	require.NoError(t, err)
	return storage, mock
}

func TestStorage(t *testing.T) {
	ctx := context.Background()

	t.Run("table names are validated", func(t *testing.T) {
		_, err := New(nil, "root; DROP TABLE users")
		require.Error(t, err)
	})

	t.Run("schema is created if missing", func(t *testing.T) {
		req := require.New(t)
		storage, mock := newMockStorage(t)

		mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS xapp_root")).
			WillReturnResult(sqlmock.NewResult(0, 0))

		req.NoError(storage.EnsureSchema(ctx))
		req.NoError(mock.ExpectationsWereMet())
	})

	t.Run("writes run in a transaction and are upserted", func(t *testing.T) {
		req := require.New(t)
		storage, mock := newMockStorage(t)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO xapp_root (key, value)")).
			WithArgs("greeting", `"hello"`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM xapp_root WHERE key = $1")).
			WithArgs("stale").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		conn, err := storage.Connect(ctx)
		req.NoError(err)
		req.ErrorIs(conn.Put("greeting", "hello"), store.ErrNotInTransaction)

		req.NoError(conn.Begin(ctx))
		req.NoError(conn.Put("greeting", "hello"))
		req.NoError(conn.Delete("stale"))
		req.NoError(conn.Commit())
		req.NoError(conn.Close())
		req.NoError(mock.ExpectationsWereMet())
	})

	t.Run("reads decode values and report missing keys", func(t *testing.T) {
		req := require.New(t)
		storage, mock := newMockStorage(t)

		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta("SELECT value FROM xapp_root WHERE key = $1")).
			WithArgs("greeting").
			WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow([]byte(`"hello"`)))
		mock.ExpectQuery(regexp.QuoteMeta("SELECT value FROM xapp_root WHERE key = $1")).
			WithArgs("missing").
			WillReturnRows(sqlmock.NewRows([]string{"value"}))
		mock.ExpectQuery(regexp.QuoteMeta("SELECT key FROM xapp_root ORDER BY key")).
			WillReturnRows(sqlmock.NewRows([]string{"key"}).AddRow("a").AddRow("greeting"))
		mock.ExpectRollback()

		conn, err := storage.Connect(ctx)
		req.NoError(err)
		req.NoError(conn.Begin(ctx))

		var greeting string
		found, err := conn.Get("greeting", &greeting)
		req.NoError(err)
		req.True(found)
		req.Equal("hello", greeting)

		found, err = conn.Get("missing", &greeting)
		req.NoError(err)
		req.False(found)

		keys, err := conn.Keys()
		req.NoError(err)
		req.Equal([]string{"a", "greeting"}, keys)

		req.NoError(conn.Close())
		req.NoError(mock.ExpectationsWereMet())
	})

	t.Run("a pooled connection commits with the request transaction", func(t *testing.T) {
		req := require.New(t)
		storage, mock := newMockStorage(t)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO xapp_root")).
			WithArgs("visits", "1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		app, err := xapp.New(xapp.Options{
			Mixins: []xapp.Mixin{
				&store.Mixin{Open: func(xapp.Bunch) (store.Storage, error) { return storage, nil }},
				&transaction.Mixin{},
			},
			Dispatch: func(env *xapp.Environment) (*xapp.Response, error) {
				root, err := store.Root(env)
				if err != nil {
					return nil, err
				}
				if err := root.Put("visits", 1); err != nil {
					return nil, err
				}
				return env.NewResponse([]byte("ok")), nil
			},
		})
		req.NoError(err)

		_, err = app.Handle(httptest.NewRequest(http.MethodGet, "/", nil))
		req.NoError(err)
		req.NoError(mock.ExpectationsWereMet())
	})

	t.Run("settings select postgres and require a dsn", func(t *testing.T) {
		_, err := OpenFromSettings(xapp.Bunch{store.SettingStorage: store.StorageMemory})
		require.Error(t, err)

		_, err = OpenFromSettings(xapp.Bunch{store.SettingStorage: StoragePostgres})
		require.Error(t, err)
	})
}

func TestStorageIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping postgres integration test")
	}

	req := require.New(t)
	ctx := context.Background()

	opened, err := OpenFromSettings(xapp.Bunch{
		store.SettingStorage: StoragePostgres,
		SettingDSN:           dsn,
		SettingTable:         "xapp_root_test",
	})
	req.NoError(err)
	defer func() { _ = opened.Close() }()

	conn, err := opened.Connect(ctx)
	req.NoError(err)
	defer func() { _ = conn.Close() }()

	req.NoError(conn.Begin(ctx))
	req.NoError(conn.Put("greeting", map[string]string{"text": "hello"}))
	req.NoError(conn.Commit())

	var greeting map[string]string
	found, err := conn.Get("greeting", &greeting)
	req.NoError(err)
	req.True(found)
	req.Equal("hello", greeting["text"])

	req.NoError(conn.Begin(ctx))
	req.NoError(conn.Delete("greeting"))
	req.NoError(conn.Commit())
}
