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

/*
Package store provides a bounded connection pool over an object store whose root is a mapping of string keys to
JSON-encoded values, and the Mixin that leases one pooled connection per request on demand.

Connections opened through a Pool join the caller's transaction: their changes are committed or rolled back together
with every other resource of that transaction.
*/
package store

import (
	"context"

	"github.com/pkg/errors"
)

var (
	ErrPoolClosed       = errors.New("connection pool is closed")
	ErrAlreadyClosed    = errors.New("connection already returned to the pool")
	ErrNotInTransaction = errors.New("connection is not in a transaction")
)

// Mapping is the root of an object store.
type Mapping interface {
	// Get decodes the value stored at key into value and reports whether key exists.
	Get(key string, value interface{}) (bool, error)
	Put(key string, value interface{}) error
	Delete(key string) error
	// Keys returns all keys in sorted order.
	Keys() ([]string, error)
}

// Conn is one backend connection. Changes made through its Mapping are only visible to others after Commit.
type Conn interface {
	Mapping
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error
	Close() error
}

// Storage is an object store backend handing out connections.
type Storage interface {
	Connect(ctx context.Context) (Conn, error)
	Close() error
}

// Preparer is implemented by connections able to vote before commit.
type Preparer interface {
	Prepare() error
}
