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

package fullstack

import (
	"io/fs"

	"github.com/michaelquigley/pfxlog"
	"github.com/openziti/xapp"
	"github.com/openziti/xapp/compile"
	"github.com/openziti/xapp/metrics"
	"github.com/openziti/xapp/render"
	"github.com/openziti/xapp/routing"
	"github.com/openziti/xapp/serve"
	"github.com/openziti/xapp/session"
	"github.com/openziti/xapp/store"
	"github.com/openziti/xapp/store/sqlstore"
	"github.com/openziti/xapp/transaction"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// Options add the application specific parts to a full-stack composition.
type Options struct {
	Rules     []routing.Rule
	Endpoints map[string]routing.Endpoint

	// Templates overrides the templates directory of the configuration.
	Templates     fs.FS
	TemplateFuncs map[string]interface{}
	ContextHook   render.ContextHook

	// Compilers serve files compiled on request under /compiled/, by output extension.
	Compilers map[string]compile.Compiler

	// Registry defaults to metrics.NewRegistry().
	Registry *prometheus.Registry

	// SessionStore overrides the store chosen by the configuration.
	SessionStore session.Store

	Configure     xapp.ConfigureFunc
	ErrorResponse xapp.ErrorResponseFunc

	// SkipLogging leaves the process logger as it is.
	SkipLogging bool
}

// HTMLMimetype is the default Content-Type of responses of a Stack.
const HTMLMimetype = "text/html; charset=utf-8"

// Stack is an Application composed of every mixin of this module together with the registry its metrics are
// recorded in.
type Stack struct {
	App      *xapp.Application
	Registry *prometheus.Registry
	Config   *Config
}

// InitLogging sets up the process logger, at debug level when debug is set.
func InitLogging(debug bool) {
	level := logrus.InfoLevel
	if debug {
		level = logrus.DebugLevel
	}
	pfxlog.GlobalInit(level, pfxlog.DefaultOptions().SetTrimPrefix("github.com/openziti/"))
}

// OpenStorage opens the storage named by the storage setting.
func OpenStorage(settings xapp.Bunch) (store.Storage, error) {
	switch kind := settings.GetString(store.SettingStorage, store.StorageMemory); kind {
	case sqlstore.StoragePostgres:
		return sqlstore.OpenFromSettings(settings)
	default:
		return store.OpenMemory(settings)
	}
}

// New composes the mixins [store, transaction, session, metrics, render, routing] in that order. Requests exit in
// reverse: routing, render, metrics, session, then the transaction finishes before the store connection is returned.
func New(cfg *Config, opts Options) (*Stack, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	if !opts.SkipLogging {
		InitLogging(cfg.Debug)
	}

	registry := opts.Registry
	if registry == nil {
		registry = metrics.NewRegistry()
	}

	sessionStore := opts.SessionStore
	if sessionStore == nil && cfg.Session.RedisAddr != "" {
		sessionStore = session.NewRedisStore(cfg.Session.RedisAddr)
	}

	mixins := []xapp.Mixin{
		&store.Mixin{Open: OpenStorage},
		&transaction.Mixin{},
		&session.Mixin{
			Store:      sessionStore,
			CookieName: cfg.Session.CookieName,
			TTL:        cfg.Session.TTL,
			Secure:     cfg.Session.Secure,
		},
		&metrics.Mixin{Registry: registry, Namespace: cfg.Metrics.Namespace},
		&render.Mixin{FS: opts.Templates, Funcs: opts.TemplateFuncs, ContextHook: opts.ContextHook},
	}
	if len(opts.Compilers) > 0 {
		mixins = append(mixins, &compile.Mixin{Compilers: opts.Compilers})
	}
	mixins = append(mixins, &routing.Mixin{Rules: opts.Rules, Endpoints: opts.Endpoints})

	app, err := xapp.New(xapp.Options{
		Name:             cfg.Name,
		Settings:         cfg.Settings(),
		Mixins:           mixins,
		Configure:        opts.Configure,
		ErrorResponse:    opts.ErrorResponse,
		ResponseMimetype: HTMLMimetype,
	})
	if err != nil {
		return nil, err
	}

	pfxlog.Logger().WithField("app", cfg.Name).Infof("composed application with storage [%s]", cfg.Storage)

	return &Stack{App: app, Registry: registry, Config: cfg}, nil
}

// ServeRegistry registers the "app" and "metrics" bindings of the stack.
func (stack *Stack) ServeRegistry() (*serve.RegistryMap, error) {
	registry := serve.NewRegistryMap()
	if err := registry.Add(&serve.AppHandlerFactory{App: stack.App}); err != nil {
		return nil, err
	}
	if err := registry.Add(&serve.MetricsHandlerFactory{Registry: stack.Registry}); err != nil {
		return nil, err
	}
	return registry, nil
}

// Instance loads the web configuration into a serve.Instance hosting the stack.
func (stack *Stack) Instance() (*serve.InstanceImpl, error) {
	registry, err := stack.ServeRegistry()
	if err != nil {
		return nil, err
	}

	instance := serve.NewDefaultInstance(registry, nil)
	if err := instance.LoadConfig(stack.Config.ServeConfig()); err != nil {
		return nil, errors.Wrap(err, "invalid web configuration")
	}
	return instance, nil
}

func (stack *Stack) Close() error {
	return stack.App.Close()
}
