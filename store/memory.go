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
	"encoding/json"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// MemoryStorage keeps the root mapping in process memory. Each connection buffers its writes and applies them
// atomically on Commit.
type MemoryStorage struct {
	lock   sync.RWMutex
	data   map[string][]byte
	closed bool
}

var _ Storage = (*MemoryStorage)(nil)

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		data: map[string][]byte{},
	}
}

func (storage *MemoryStorage) Connect(context.Context) (Conn, error) {
	storage.lock.RLock()
	defer storage.lock.RUnlock()

	if storage.closed {
		return nil, errors.New("memory storage is closed")
	}
	return &memoryConn{storage: storage}, nil
}

func (storage *MemoryStorage) Close() error {
	storage.lock.Lock()
	defer storage.lock.Unlock()
	storage.closed = true
	return nil
}

type memoryConn struct {
	storage *MemoryStorage
	active  bool

	// writes maps keys to their new encoded value; nil marks a deletion.
	writes map[string][]byte
}

func (conn *memoryConn) Begin(context.Context) error {
	conn.active = true
	conn.writes = map[string][]byte{}
	return nil
}

func (conn *memoryConn) Get(key string, value interface{}) (bool, error) {
	encoded, ok := conn.writes[key]
	if !ok {
		conn.storage.lock.RLock()
		encoded, ok = conn.storage.data[key]
		conn.storage.lock.RUnlock()
	}

	if !ok || encoded == nil {
		return false, nil
	}

	if err := json.Unmarshal(encoded, value); err != nil {
		return true, errors.Wrapf(err, "error decoding value of key [%s]", key)
	}
	return true, nil
}

func (conn *memoryConn) Put(key string, value interface{}) error {
	if !conn.active {
		return ErrNotInTransaction
	}

	encoded, err := json.Marshal(value)
	if err != nil {
		return errors.Wrapf(err, "error encoding value of key [%s]", key)
	}
	conn.writes[key] = encoded
	return nil
}

func (conn *memoryConn) Delete(key string) error {
	if !conn.active {
		return ErrNotInTransaction
	}
	conn.writes[key] = nil
	return nil
}

func (conn *memoryConn) Keys() ([]string, error) {
	present := map[string]bool{}

	conn.storage.lock.RLock()
	for key := range conn.storage.data {
		present[key] = true
	}
	conn.storage.lock.RUnlock()

	for key, encoded := range conn.writes {
		present[key] = encoded != nil
	}

	var keys []string
	for key, ok := range present {
		if ok {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (conn *memoryConn) Commit() error {
	if !conn.active {
		return ErrNotInTransaction
	}

	conn.storage.lock.Lock()
	for key, encoded := range conn.writes {
		if encoded == nil {
			delete(conn.storage.data, key)
		} else {
			conn.storage.data[key] = encoded
		}
	}
	conn.storage.lock.Unlock()

	conn.active = false
	conn.writes = nil
	return nil
}

func (conn *memoryConn) Rollback() error {
	conn.active = false
	conn.writes = nil
	return nil
}

func (conn *memoryConn) Close() error {
	return conn.Rollback()
}
