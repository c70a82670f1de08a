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

package routing

import (
	"net/http"

	"github.com/openziti/xapp"
	"github.com/pkg/errors"
)

const (
	MixinName = "routing"

	routerField = "routing.router"
	matchField  = "routing.match"
)

// Mixin dispatches requests to endpoints through the Router of the Application. Other mixins may add rules with
// Register before or after it is constructed.
type Mixin struct {
	xapp.MixinBase

	Rules     []Rule
	Endpoints map[string]Endpoint
}

var _ xapp.Mixin = (*Mixin)(nil)

type match struct {
	endpoint string
	args     map[string]string
}

func (mixin *Mixin) Name() string {
	return MixinName
}

func (mixin *Mixin) Construct(app *xapp.Application) error {
	router := RouterFor(app)

	for _, rule := range mixin.Rules {
		if err := router.Add(rule); err != nil {
			return err
		}
	}

	for name, endpoint := range mixin.Endpoints {
		if err := router.Handle(name, endpoint); err != nil {
			return err
		}
	}

	return app.SetDispatcher(func(env *xapp.Environment) (*xapp.Response, error) {
		return dispatch(env, router)
	})
}

func dispatch(env *xapp.Environment, router *Router) (*xapp.Response, error) {
	endpoint, args, err := router.Match(env.Request())
	if err != nil {
		return nil, err
	}
	env.Local().Set(matchField, &match{endpoint: endpoint, args: args})

	handler, found := router.Endpoint(endpoint)
	if !found {
		return nil, errors.Errorf("no handler for endpoint [%s]", endpoint)
	}

	if env.App().Debug() {
		env.Log().Debugf("dispatching %s %s to endpoint [%s]", env.Request().Method, env.Request().URL.Path, endpoint)
	}
	return handler(env, args)
}

// RouterFor returns the Router of app, creating it on first use.
func RouterFor(app *xapp.Application) *Router {
	value, _ := app.Once(routerField, func() (interface{}, error) {
		return NewRouter(), nil
	})
	return value.(*Router)
}

// Register adds rule and the handler of its endpoint to the Router of app.
func Register(app *xapp.Application, rule Rule, handler Endpoint) error {
	router := RouterFor(app)
	if err := router.Add(rule); err != nil {
		return err
	}
	return router.Handle(rule.Endpoint, handler)
}

// Matched returns the endpoint and arguments the request of env was dispatched to.
func Matched(env *xapp.Environment) (string, map[string]string, bool) {
	value, found := env.Local().Lookup(matchField)
	if !found {
		return "", nil, false
	}
	m := value.(*match)
	return m.endpoint, m.args, true
}

// URLFor builds the path of endpoint.
func URLFor(env *xapp.Environment, endpoint string, args map[string]string) (string, error) {
	return RouterFor(env.App()).Build(endpoint, args)
}

// Redirect responds with a redirect to endpoint. code defaults to 302 Found.
func Redirect(env *xapp.Environment, endpoint string, args map[string]string, code int) (*xapp.Response, error) {
	location, err := URLFor(env, endpoint, args)
	if err != nil {
		return nil, err
	}

	if code == 0 {
		code = http.StatusFound
	}

	return env.NewResponse(nil).Using(
		xapp.WithStatus(code),
		xapp.WithHeaders(map[string]string{"Location": location}),
	)
}
