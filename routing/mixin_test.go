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
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openziti/xapp"
	"github.com/stretchr/testify/require"
)

// registeringMixin adds a rule of its own while being constructed.
type registeringMixin struct {
	xapp.MixinBase
}

func (mixin *registeringMixin) Name() string {
	return "registering"
}

func (mixin *registeringMixin) Construct(app *xapp.Application) error {
	return Register(app, Rule{Path: "/health", Endpoint: "health"}, func(env *xapp.Environment, _ map[string]string) (*xapp.Response, error) {
		return env.NewResponse([]byte("healthy")), nil
	})
}

func newRoutingApp(req *require.Assertions) *xapp.Application {
	app, err := xapp.New(xapp.Options{
		Mixins: []xapp.Mixin{
			&registeringMixin{},
			&Mixin{
				Rules: []Rule{
					{Path: "/", Endpoint: "index"},
					{Path: "/greet/{name}", Methods: []string{http.MethodGet}, Endpoint: "greet"},
					{Path: "/old", Endpoint: "old"},
				},
				Endpoints: map[string]Endpoint{
					"index": func(env *xapp.Environment, _ map[string]string) (*xapp.Response, error) {
						url, err := URLFor(env, "greet", map[string]string{"name": "world"})
						if err != nil {
							return nil, err
						}
						return env.NewResponse([]byte(url)), nil
					},
					"greet": func(env *xapp.Environment, args map[string]string) (*xapp.Response, error) {
						endpoint, _, _ := Matched(env)
						return env.NewResponse([]byte(endpoint + ": hello " + args["name"])), nil
					},
					"old": func(env *xapp.Environment, _ map[string]string) (*xapp.Response, error) {
						return Redirect(env, "index", nil, http.StatusMovedPermanently)
					},
				},
			},
		},
	})
	req.NoError(err)
	return app
}

func serve(app *xapp.Application, method, target string) *http.Response {
	recorder := httptest.NewRecorder()
	app.ServeHTTP(recorder, httptest.NewRequest(method, target, nil))
	return recorder.Result()
}

func body(req *require.Assertions, response *http.Response) string {
	data, err := io.ReadAll(response.Body)
	req.NoError(err)
	return string(data)
}

func TestMixin(t *testing.T) {

	t.Run("requests are dispatched to their endpoint", func(t *testing.T) {
		req := require.New(t)
		app := newRoutingApp(req)

		response := serve(app, http.MethodGet, "/greet/ziti")
		req.Equal(http.StatusOK, response.StatusCode)
		req.Equal("greet: hello ziti", body(req, response))

		response = serve(app, http.MethodGet, "/")
		req.Equal("/greet/world", body(req, response))
	})

	t.Run("other mixins can register endpoints", func(t *testing.T) {
		req := require.New(t)
		response := serve(newRoutingApp(req), http.MethodGet, "/health")
		req.Equal(http.StatusOK, response.StatusCode)
		req.Equal("healthy", body(req, response))
	})

	t.Run("redirects point at the endpoint url", func(t *testing.T) {
		req := require.New(t)
		response := serve(newRoutingApp(req), http.MethodGet, "/old")
		req.Equal(http.StatusMovedPermanently, response.StatusCode)
		req.Equal("/", response.Header.Get("Location"))
	})

	t.Run("routing errors become error responses", func(t *testing.T) {
		req := require.New(t)
		app := newRoutingApp(req)

		response := serve(app, http.MethodGet, "/missing")
		req.Equal(http.StatusNotFound, response.StatusCode)

		response = serve(app, http.MethodPost, "/greet/ziti")
		req.Equal(http.StatusMethodNotAllowed, response.StatusCode)
		req.Equal(http.MethodGet, response.Header.Get("Allow"))
	})

	t.Run("a rule without a handler is a fault", func(t *testing.T) {
		req := require.New(t)
		app, err := xapp.New(xapp.Options{
			Mixins: []xapp.Mixin{&Mixin{Rules: []Rule{{Path: "/", Endpoint: "index"}}}},
		})
		req.NoError(err)

		_, err = app.Handle(httptest.NewRequest(http.MethodGet, "/", nil))
		req.Error(err)
		req.Contains(err.Error(), "index")
	})

	t.Run("a second dispatcher is rejected", func(t *testing.T) {
		_, err := xapp.New(xapp.Options{
			Mixins: []xapp.Mixin{&Mixin{}},
			Dispatch: func(env *xapp.Environment) (*xapp.Response, error) {
				return env.NewResponse(nil), nil
			},
		})
		require.Error(t, err)
	})
}
