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

package store

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/openziti/xapp"
	"github.com/openziti/xapp/transaction"
	"github.com/stretchr/testify/require"
)

func newStoreApp(req *require.Assertions, storage *recordingStorage, dispatch xapp.DispatchFunc, mixins ...xapp.Mixin) *xapp.Application {
	if len(mixins) == 0 {
		mixins = []xapp.Mixin{
			&Mixin{Open: func(xapp.Bunch) (Storage, error) { return storage, nil }},
			&transaction.Mixin{},
		}
	}

	app, err := xapp.New(xapp.Options{
		Name:     "store-test",
		Mixins:   mixins,
		Dispatch: dispatch,
	})
	req.NoError(err)
	return app
}

func incrementVisits(env *xapp.Environment) (*xapp.Response, error) {
	root, err := Root(env)
	if err != nil {
		return nil, err
	}

	var count int
	if _, err := root.Get("visits", &count); err != nil {
		return nil, err
	}
	count++
	if err := root.Put("visits", count); err != nil {
		return nil, err
	}
	return env.NewResponse([]byte("ok")), nil
}

func TestMixin(t *testing.T) {

	t.Run("settings receive defaults", func(t *testing.T) {
		req := require.New(t)
		app := newStoreApp(req, newRecordingStorage(), nil)

		req.Equal(StorageMemory, app.Settings().GetString(SettingStorage, ""))
		req.Equal(DefaultPoolSize, app.Settings().GetInt(SettingPoolSize, 0))
	})

	t.Run("requests that never touch the store cause no pool traffic", func(t *testing.T) {
		req := require.New(t)
		storage := newRecordingStorage()
		app := newStoreApp(req, storage, func(env *xapp.Environment) (*xapp.Response, error) {
			return env.NewResponse([]byte("hello")), nil
		})

		for i := 0; i < 3; i++ {
			response, err := app.Handle(httptest.NewRequest("GET", "/", nil))
			req.NoError(err)
			req.Equal(200, response.StatusCode)
		}

		req.Equal(0, storage.Connects())
		req.Empty(storage.Events())
	})

	t.Run("the transaction commits before the connection returns to the pool", func(t *testing.T) {
		req := require.New(t)
		storage := newRecordingStorage()
		app := newStoreApp(req, storage, incrementVisits)

		for i := 0; i < 2; i++ {
			_, err := app.Handle(httptest.NewRequest("GET", "/", nil))
			req.NoError(err)
		}

		req.Equal(1, storage.Connects())
		req.Equal([]string{"begin", "commit", "begin", "commit"}, storage.Events())

		conn, err := storage.MemoryStorage.Connect(context.Background())
		req.NoError(err)
		var visits int
		found, err := conn.Get("visits", &visits)
		req.NoError(err)
		req.True(found)
		req.Equal(2, visits)
	})

	t.Run("a fault rolls back the changes of the request", func(t *testing.T) {
		req := require.New(t)
		storage := newRecordingStorage()
		failure := errors.New("boom")
		app := newStoreApp(req, storage, func(env *xapp.Environment) (*xapp.Response, error) {
			if _, err := incrementVisits(env); err != nil {
				return nil, err
			}
			return nil, failure
		})

		_, err := app.Handle(httptest.NewRequest("GET", "/", nil))
		req.ErrorIs(err, failure)
		req.Equal([]string{"begin", "rollback"}, storage.Events())

		conn, err := storage.MemoryStorage.Connect(context.Background())
		req.NoError(err)
		keys, err := conn.Keys()
		req.NoError(err)
		req.Empty(keys)
	})

	t.Run("declaring the transaction first closes the connection before commit", func(t *testing.T) {
		req := require.New(t)
		storage := newRecordingStorage()
		app := newStoreApp(req, storage, incrementVisits,
			&transaction.Mixin{},
			&Mixin{Open: func(xapp.Bunch) (Storage, error) { return storage, nil }},
		)

		_, err := app.Handle(httptest.NewRequest("GET", "/", nil))
		req.ErrorIs(err, ErrNotInTransaction)
		req.Equal([]string{"begin", "rollback"}, storage.Events())
	})

	t.Run("the store requires the transaction mixin", func(t *testing.T) {
		req := require.New(t)
		storage := newRecordingStorage()
		app := newStoreApp(req, storage, incrementVisits,
			&Mixin{Open: func(xapp.Bunch) (Storage, error) { return storage, nil }},
		)

		_, err := app.Handle(httptest.NewRequest("GET", "/", nil))
		req.Error(err)
		req.Contains(err.Error(), transaction.MixinName)
		req.Equal(0, storage.Connects())
	})

	t.Run("closing the application closes the pool", func(t *testing.T) {
		req := require.New(t)
		storage := newRecordingStorage()
		app := newStoreApp(req, storage, incrementVisits)

		_, err := app.Handle(httptest.NewRequest("GET", "/", nil))
		req.NoError(err)
		req.NoError(app.Close())

		req.Equal([]string{"begin", "commit", "close"}, storage.Events())
		_, err = storage.Connect(context.Background())
		req.Error(err)
	})

	t.Run("unknown storage kinds are rejected on first use", func(t *testing.T) {
		req := require.New(t)
		app, err := xapp.New(xapp.Options{
			Settings: map[string]interface{}{SettingStorage: "carrier-pigeon"},
			Mixins:   []xapp.Mixin{&Mixin{}, &transaction.Mixin{}},
			Dispatch: incrementVisits,
		})
		req.NoError(err)

		_, err = app.Handle(httptest.NewRequest("GET", "/", nil))
		req.Error(err)
		req.Contains(err.Error(), "carrier-pigeon")
	})
}
