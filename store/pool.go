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
	"sync"
	"time"

	"github.com/michaelquigley/pfxlog"
	"github.com/openziti/xapp/transaction"
	"github.com/pkg/errors"
)

const (
	DefaultPoolSize    = 7
	DefaultPoolTimeout = time.Second * 30
)

// PoolOptions bound a Pool.
type PoolOptions struct {
	// Size is the maximum number of connections checked out at once. Open blocks while the pool is exhausted.
	Size int

	// Timeout bounds how long Open waits for a free connection.
	Timeout time.Duration
}

// Default provides defaults for all unset values.
func (options *PoolOptions) Default() {
	if options.Size <= 0 {
		options.Size = DefaultPoolSize
	}

	if options.Timeout <= 0 {
		options.Timeout = DefaultPoolTimeout
	}
}

// PoolStats is a snapshot of a Pool.
type PoolStats struct {
	Size       int
	CheckedOut int
	Idle       int
	Opened     int
}

// Pool leases connections of a Storage. It is safe for concurrent use; the idle list is the only state shared by
// requests and is guarded by a mutex while the slots channel bounds checkouts.
type Pool struct {
	storage Storage
	options PoolOptions
	slots   chan struct{}

	lock   sync.Mutex
	idle   []Conn
	closed bool
	opened int
}

// NewPool creates a Pool over storage.
func NewPool(storage Storage, options PoolOptions) *Pool {
	options.Default()
	return &Pool{
		storage: storage,
		options: options,
		slots:   make(chan struct{}, options.Size),
	}
}

// Open checks out a connection, begins its backend transaction and joins it to the transaction of joiner.
func (pool *Pool) Open(ctx context.Context, joiner transaction.Joiner) (*Connection, error) {
	if joiner == nil {
		return nil, errors.New("a transaction is required to open a connection")
	}

	if err := pool.acquire(ctx); err != nil {
		return nil, err
	}

	conn, err := pool.checkout(ctx)
	if err != nil {
		<-pool.slots
		return nil, err
	}

	connection := &Connection{
		pool: pool,
		conn: conn,
	}

	if err := conn.Begin(ctx); err != nil {
		pool.discard(conn)
		return nil, errors.Wrap(err, "error beginning backend transaction")
	}
	connection.pending = true

	if err := joiner.Join(connection); err != nil {
		_ = conn.Rollback()
		pool.discard(conn)
		return nil, errors.Wrap(err, "error joining connection to transaction")
	}

	return connection, nil
}

func (pool *Pool) acquire(ctx context.Context) error {
	if pool.isClosed() {
		return ErrPoolClosed
	}

	timer := time.NewTimer(pool.options.Timeout)
	defer timer.Stop()

	select {
	case pool.slots <- struct{}{}:
		return nil
	case <-timer.C:
		return errors.Errorf("timed out after %s waiting for a pooled connection", pool.options.Timeout)
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "gave up waiting for a pooled connection")
	}
}

func (pool *Pool) checkout(ctx context.Context) (Conn, error) {
	pool.lock.Lock()
	if pool.closed {
		pool.lock.Unlock()
		return nil, ErrPoolClosed
	}

	if count := len(pool.idle); count > 0 {
		conn := pool.idle[count-1]
		pool.idle = pool.idle[:count-1]
		pool.lock.Unlock()
		return conn, nil
	}
	pool.opened++
	pool.lock.Unlock()

	conn, err := pool.storage.Connect(ctx)
	if err != nil {
		pool.lock.Lock()
		pool.opened--
		pool.lock.Unlock()
		return nil, errors.Wrap(err, "error connecting to storage")
	}
	return conn, nil
}

// checkin returns conn to the idle list, or closes it when the pool is closed, and frees its slot.
func (pool *Pool) checkin(conn Conn) error {
	defer func() { <-pool.slots }()

	pool.lock.Lock()
	if !pool.closed {
		pool.idle = append(pool.idle, conn)
		pool.lock.Unlock()
		return nil
	}
	pool.opened--
	pool.lock.Unlock()

	return conn.Close()
}

// discard drops a broken connection and frees its slot.
func (pool *Pool) discard(conn Conn) {
	defer func() { <-pool.slots }()

	pool.lock.Lock()
	pool.opened--
	pool.lock.Unlock()

	if err := conn.Close(); err != nil {
		pfxlog.Logger().WithError(err).Warn("error closing discarded store connection")
	}
}

func (pool *Pool) isClosed() bool {
	pool.lock.Lock()
	defer pool.lock.Unlock()
	return pool.closed
}

// Stats returns a snapshot of the pool.
func (pool *Pool) Stats() PoolStats {
	pool.lock.Lock()
	defer pool.lock.Unlock()
	return PoolStats{
		Size:       pool.options.Size,
		CheckedOut: len(pool.slots),
		Idle:       len(pool.idle),
		Opened:     pool.opened,
	}
}

// Close closes the idle connections and the storage. Connections still checked out are closed when returned.
func (pool *Pool) Close() error {
	pool.lock.Lock()
	if pool.closed {
		pool.lock.Unlock()
		return nil
	}
	pool.closed = true
	idle := pool.idle
	pool.idle = nil
	pool.opened -= len(idle)
	pool.lock.Unlock()

	for _, conn := range idle {
		if err := conn.Close(); err != nil {
			pfxlog.Logger().WithError(err).Warn("error closing idle store connection")
		}
	}

	return pool.storage.Close()
}

// Connection is a leased connection. It takes part in the transaction it was opened with and must be closed exactly
// once to return it to the pool.
type Connection struct {
	pool    *Pool
	conn    Conn
	lock    sync.Mutex
	pending bool
	closed  bool
}

var _ transaction.Resource = (*Connection)(nil)

// Root returns the root mapping of the store as seen by this connection's transaction.
func (connection *Connection) Root() Mapping {
	return connection.conn
}

func (connection *Connection) Prepare() error {
	connection.lock.Lock()
	defer connection.lock.Unlock()

	if !connection.pending {
		return ErrNotInTransaction
	}

	if preparer, ok := connection.conn.(Preparer); ok {
		return preparer.Prepare()
	}
	return nil
}

func (connection *Connection) Commit() error {
	connection.lock.Lock()
	defer connection.lock.Unlock()

	if !connection.pending {
		return ErrNotInTransaction
	}
	connection.pending = false
	return connection.conn.Commit()
}

func (connection *Connection) Abort() error {
	connection.lock.Lock()
	defer connection.lock.Unlock()

	if !connection.pending {
		return nil
	}
	connection.pending = false
	return connection.conn.Rollback()
}

// Close returns the connection to the pool. A transaction still pending is rolled back first.
func (connection *Connection) Close() error {
	connection.lock.Lock()
	defer connection.lock.Unlock()

	if connection.closed {
		return ErrAlreadyClosed
	}
	connection.closed = true

	if connection.pending {
		connection.pending = false
		if err := connection.conn.Rollback(); err != nil {
			connection.pool.discard(connection.conn)
			return errors.Wrap(err, "error rolling back pending transaction on close")
		}
	}

	return connection.pool.checkin(connection.conn)
}
