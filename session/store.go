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

package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
)

const DefaultKeyPrefix = "xapp:session:"

// Store persists session values by session id.
type Store interface {
	// Load returns the values of session id and whether it exists.
	Load(ctx context.Context, id string) (map[string]interface{}, bool, error)
	Save(ctx context.Context, id string, values map[string]interface{}, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
}

type memoryEntry struct {
	data    []byte
	expires time.Time
}

// MemoryStore keeps sessions in process memory. Expired sessions are dropped when they are next loaded.
type MemoryStore struct {
	lock     sync.Mutex
	sessions map[string]memoryEntry
	now      func() time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: map[string]memoryEntry{},
		now:      time.Now,
	}
}

func (store *MemoryStore) Load(_ context.Context, id string) (map[string]interface{}, bool, error) {
	store.lock.Lock()
	entry, found := store.sessions[id]
	if found && !entry.expires.IsZero() && !store.now().Before(entry.expires) {
		delete(store.sessions, id)
		found = false
	}
	store.lock.Unlock()

	if !found {
		return nil, false, nil
	}

	values := map[string]interface{}{}
	if err := json.Unmarshal(entry.data, &values); err != nil {
		return nil, false, errors.Wrapf(err, "error decoding session [%s]", id)
	}
	return values, true, nil
}

func (store *MemoryStore) Save(_ context.Context, id string, values map[string]interface{}, ttl time.Duration) error {
	data, err := json.Marshal(values)
	if err != nil {
		return errors.Wrapf(err, "error encoding session [%s]", id)
	}

	entry := memoryEntry{data: data}
	if ttl > 0 {
		entry.expires = store.now().Add(ttl)
	}

	store.lock.Lock()
	defer store.lock.Unlock()
	store.sessions[id] = entry
	return nil
}

func (store *MemoryStore) Delete(_ context.Context, id string) error {
	store.lock.Lock()
	defer store.lock.Unlock()
	delete(store.sessions, id)
	return nil
}

// RedisStore keeps sessions in Redis under Prefix + id, expiring them with the session TTL.
type RedisStore struct {
	Client redis.UniversalClient
	Prefix string
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore connects to the Redis server at addr.
func NewRedisStore(addr string) *RedisStore {
	return &RedisStore{
		Client: redis.NewClient(&redis.Options{Addr: addr}),
		Prefix: DefaultKeyPrefix,
	}
}

func (store *RedisStore) key(id string) string {
	return store.Prefix + id
}

func (store *RedisStore) Load(ctx context.Context, id string) (map[string]interface{}, bool, error) {
	data, err := store.Client.Get(ctx, store.key(id)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "error loading session [%s]", id)
	}

	values := map[string]interface{}{}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, false, errors.Wrapf(err, "error decoding session [%s]", id)
	}
	return values, true, nil
}

func (store *RedisStore) Save(ctx context.Context, id string, values map[string]interface{}, ttl time.Duration) error {
	data, err := json.Marshal(values)
	if err != nil {
		return errors.Wrapf(err, "error encoding session [%s]", id)
	}
	return errors.Wrapf(store.Client.Set(ctx, store.key(id), data, ttl).Err(), "error saving session [%s]", id)
}

func (store *RedisStore) Delete(ctx context.Context, id string) error {
	return errors.Wrapf(store.Client.Del(ctx, store.key(id)).Err(), "error deleting session [%s]", id)
}

// Close closes the Redis client.
func (store *RedisStore) Close() error {
	return store.Client.Close()
}
