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
	"github.com/openziti/xapp"
	"github.com/openziti/xapp/transaction"
	"github.com/pkg/errors"
)

const (
	MixinName = "store"

	SettingStorage     = "storage"
	SettingPoolSize    = "pool_size"
	SettingPoolTimeout = "pool_timeout"

	StorageMemory = "memory"

	poolField       = "store.pool"
	mixinField      = "store.mixin"
	connectionField = "store.connection"
)

// OpenFunc creates the storage backend from the application settings.
type OpenFunc func(settings xapp.Bunch) (Storage, error)

// Mixin gives an Application one connection Pool, created on first use and closed with the Application, and gives
// every request a connection leased from it on first access. The connection joins the request's transaction, so the
// transaction Mixin must be installed; declare this Mixin before it so the connection is still open when the
// transaction finishes.
type Mixin struct {
	xapp.MixinBase

	// Open creates the storage. Defaults to OpenMemory.
	Open OpenFunc
}

var _ xapp.Mixin = (*Mixin)(nil)

// OpenMemory opens a MemoryStorage when the storage setting is "memory".
func OpenMemory(settings xapp.Bunch) (Storage, error) {
	if kind := settings.GetString(SettingStorage, StorageMemory); kind != StorageMemory {
		return nil, errors.Errorf("unsupported storage [%s]", kind)
	}
	return NewMemoryStorage(), nil
}

func (mixin *Mixin) Name() string {
	return MixinName
}

func (mixin *Mixin) Construct(app *xapp.Application) error {
	if mixin.Open == nil {
		mixin.Open = OpenMemory
	}

	settings := app.Settings()
	settings.SetDefault(SettingStorage, StorageMemory)
	settings.SetDefault(SettingPoolSize, DefaultPoolSize)
	settings.SetDefault(SettingPoolTimeout, DefaultPoolTimeout.String())
	return nil
}

func (mixin *Mixin) Create(env *xapp.Environment) error {
	env.Local().Set(mixinField, mixin)
	return nil
}

// Exit returns the connection to the pool if, and only if, one was opened during the request.
func (mixin *Mixin) Exit(env *xapp.Environment, _ error) (bool, error) {
	value, opened := env.Local().Lookup(connectionField)
	if !opened {
		return false, nil
	}

	if env.App().Debug() {
		env.Log().Debug("disconnecting store")
	}
	return false, value.(*Connection).Close()
}

// Pool returns the application's pool, opening the storage on first use.
func (mixin *Mixin) Pool(app *xapp.Application) (*Pool, error) {
	value, err := app.Once(poolField, func() (interface{}, error) {
		settings := app.Settings()
		storage, err := mixin.Open(settings)
		if err != nil {
			return nil, errors.Wrap(err, "error opening storage")
		}

		pool := NewPool(storage, PoolOptions{
			Size:    settings.GetInt(SettingPoolSize, DefaultPoolSize),
			Timeout: settings.GetDuration(SettingPoolTimeout, DefaultPoolTimeout),
		})
		app.OnClose(pool.Close)

		app.Log().Infof("opened %s storage pool of size %d", settings.GetString(SettingStorage, StorageMemory), pool.Stats().Size)
		return pool, nil
	})
	if err != nil {
		return nil, err
	}
	return value.(*Pool), nil
}

// ConnectionFor returns the connection of the request, leasing it from the pool on first access.
func ConnectionFor(env *xapp.Environment) (*Connection, error) {
	value, err := env.Local().GetOrCompute(connectionField, func() (interface{}, error) {
		mixin, ok := mixinFor(env)
		if !ok {
			return nil, errors.Errorf("no store bound to request, is the [%s] mixin installed?", MixinName)
		}

		pool, err := mixin.Pool(env.App())
		if err != nil {
			return nil, err
		}

		manager, err := transaction.ManagerFor(env)
		if err != nil {
			return nil, err
		}

		joiner, ok := manager.(transaction.Joiner)
		if !ok {
			return nil, errors.Errorf("transaction manager %T cannot enlist store connections", manager)
		}

		if env.App().Debug() {
			env.Log().Debug("connecting store")
		}
		return pool.Open(env.Context(), joiner)
	})
	if err != nil {
		return nil, err
	}
	return value.(*Connection), nil
}

// Root returns the root mapping of the store for the request.
func Root(env *xapp.Environment) (Mapping, error) {
	connection, err := ConnectionFor(env)
	if err != nil {
		return nil, err
	}
	return connection.Root(), nil
}

func mixinFor(env *xapp.Environment) (*Mixin, bool) {
	value, ok := env.Local().Lookup(mixinField)
	if !ok {
		return nil, false
	}
	mixin, ok := value.(*Mixin)
	return mixin, ok
}
