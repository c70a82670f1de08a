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

// Package session keeps per-client values between requests, identified by a cookie.
package session

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/openziti/xapp"
	"github.com/openziti/xapp/transaction"
	"github.com/pkg/errors"
)

const (
	MixinName = "session"

	DefaultCookieName = "xapp_session"
	DefaultTTL        = 24 * time.Hour

	mixinField   = "session.mixin"
	sessionField = "session.session"
)

// Session holds the values of one client. It belongs to a single request and is not safe for concurrent use.
type Session struct {
	id          string
	values      map[string]interface{}
	isNew       bool
	modified    bool
	invalidated bool
}

func newSession() *Session {
	return &Session{
		id:     uuid.NewString(),
		values: map[string]interface{}{},
		isNew:  true,
	}
}

func (session *Session) ID() string {
	return session.id
}

// IsNew reports whether the session was created by this request.
func (session *Session) IsNew() bool {
	return session.isNew
}

func (session *Session) Modified() bool {
	return session.modified
}

func (session *Session) Get(key string) (interface{}, bool) {
	value, found := session.values[key]
	return value, found
}

func (session *Session) Set(key string, value interface{}) {
	session.values[key] = value
	session.modified = true
}

func (session *Session) Delete(key string) {
	if _, found := session.values[key]; found {
		delete(session.values, key)
		session.modified = true
	}
}

// Keys returns the keys in sorted order.
func (session *Session) Keys() []string {
	keys := make([]string, 0, len(session.values))
	for key := range session.values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Invalidate discards the session. It is deleted from the store and its cookie expired when the request finishes.
func (session *Session) Invalidate() {
	session.values = map[string]interface{}{}
	session.invalidated = true
}

// Mixin loads the session of a request on first access and saves it when the request finishes without a fault.
type Mixin struct {
	xapp.MixinBase

	// Store defaults to a MemoryStore.
	Store      Store
	CookieName string
	TTL        time.Duration

	// Secure marks the session cookie as HTTPS only.
	Secure bool
}

var _ xapp.Mixin = (*Mixin)(nil)

func (mixin *Mixin) Name() string {
	return MixinName
}

func (mixin *Mixin) Construct(app *xapp.Application) error {
	if mixin.Store == nil {
		mixin.Store = NewMemoryStore()
	}

	if mixin.CookieName == "" {
		mixin.CookieName = DefaultCookieName
	}

	if mixin.TTL <= 0 {
		mixin.TTL = DefaultTTL
	}

	if closer, ok := mixin.Store.(interface{ Close() error }); ok {
		app.OnClose(closer.Close)
	}
	return nil
}

func (mixin *Mixin) Create(env *xapp.Environment) error {
	env.Local().Set(mixinField, mixin)
	return nil
}

// Exit saves a modified session and sets its cookie on the response. Nothing is saved when a fault is in flight. When
// the request has an active transaction the save joins it and only happens if the transaction commits.
func (mixin *Mixin) Exit(env *xapp.Environment, fault error) (bool, error) {
	value, loaded := env.Local().Lookup(sessionField)
	if !loaded || fault != nil {
		return false, nil
	}
	session := value.(*Session)

	resource := &sessionResource{
		ctx:    env.Context(),
		store:  mixin.Store,
		id:     session.id,
		values: session.values,
		ttl:    mixin.TTL,
	}

	switch {
	case session.invalidated:
		resource.delete = true
		mixin.setCookie(env, session.id, -1)
	case session.modified:
		mixin.setCookie(env, session.id, int(mixin.TTL/time.Second))
	default:
		return false, nil
	}

	if manager, err := transaction.ManagerFor(env); err == nil {
		if joiner, ok := manager.(transaction.Joiner); ok {
			err := joiner.Join(resource)
			if err == nil {
				return false, nil
			}
			if !errors.Is(err, transaction.ErrNoTransaction) {
				return false, err
			}
		}
	}

	return false, resource.Commit()
}

func (mixin *Mixin) setCookie(env *xapp.Environment, id string, maxAge int) {
	response := env.Response()
	if response == nil {
		return
	}

	cookie := &http.Cookie{
		Name:     mixin.CookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   mixin.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	response.Header.Add("Set-Cookie", cookie.String())
}

// sessionResource writes a session to its store when the request transaction commits.
type sessionResource struct {
	ctx    context.Context
	store  Store
	id     string
	values map[string]interface{}
	ttl    time.Duration
	delete bool
}

var _ transaction.Resource = (*sessionResource)(nil)

func (resource *sessionResource) Prepare() error {
	return nil
}

func (resource *sessionResource) Commit() error {
	if resource.delete {
		return resource.store.Delete(resource.ctx, resource.id)
	}
	return resource.store.Save(resource.ctx, resource.id, resource.values, resource.ttl)
}

func (resource *sessionResource) Abort() error {
	return nil
}

// Get returns the session of the request, loading it from the store or creating a new one on first access.
func Get(env *xapp.Environment) (*Session, error) {
	value, err := env.Local().GetOrCompute(sessionField, func() (interface{}, error) {
		mixinValue, found := env.Local().Lookup(mixinField)
		if !found {
			return nil, errors.Errorf("no session bound to request, is the [%s] mixin installed?", MixinName)
		}
		mixin := mixinValue.(*Mixin)

		cookie, err := env.Request().Cookie(mixin.CookieName)
		if err != nil || cookie.Value == "" {
			return newSession(), nil
		}

		if _, err := uuid.Parse(cookie.Value); err != nil {
			env.Log().Debugf("ignoring malformed session id [%s]", cookie.Value)
			return newSession(), nil
		}

		values, found, err := mixin.Store.Load(env.Context(), cookie.Value)
		if err != nil {
			return nil, err
		}

		if !found {
			return newSession(), nil
		}
		return &Session{id: cookie.Value, values: values}, nil
	})
	if err != nil {
		return nil, err
	}
	return value.(*Session), nil
}
