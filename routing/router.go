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
	"sort"
	"strings"
	"sync"

	"github.com/gorilla/mux"
	"github.com/openziti/xapp"
	"github.com/pkg/errors"
)

// Endpoint responds to a request matched by a Rule. args holds the values of the path variables.
type Endpoint func(env *xapp.Environment, args map[string]string) (*xapp.Response, error)

// Rule maps a path template, such as /posts/{id:[0-9]+}, to the name of an endpoint.
type Rule struct {
	Path     string
	Methods  []string
	Endpoint string

	// Prefix makes the rule match every path starting with Path.
	Prefix bool
}

// Validate ensures the Rule can be added to a Router.
func (rule *Rule) Validate() error {
	if !strings.HasPrefix(rule.Path, "/") {
		return errors.Errorf("path [%s] of rule for endpoint [%s] must start with /", rule.Path, rule.Endpoint)
	}

	if rule.Endpoint == "" {
		return errors.Errorf("rule for path [%s] has no endpoint", rule.Path)
	}
	return nil
}

// Router maps requests to endpoints and endpoints back to URLs. Rules and endpoints are normally added while the
// Application is constructed; the Router is safe for concurrent use afterwards.
type Router struct {
	lock      sync.RWMutex
	router    *mux.Router
	routes    []*mux.Route
	builders  map[string]*mux.Route
	endpoints map[string]Endpoint
}

func NewRouter() *Router {
	return &Router{
		router:    mux.NewRouter(),
		builders:  map[string]*mux.Route{},
		endpoints: map[string]Endpoint{},
	}
}

// Add appends rule. Rules are matched in the order they were added; the first rule added for an endpoint is the one
// used to build its URLs.
func (router *Router) Add(rule Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}

	router.lock.Lock()
	defer router.lock.Unlock()

	route := router.router.NewRoute()
	if rule.Prefix {
		route = route.PathPrefix(rule.Path)
	} else {
		route = route.Path(rule.Path)
	}

	if len(rule.Methods) > 0 {
		methods := make([]string, len(rule.Methods))
		for i, method := range rule.Methods {
			methods[i] = strings.ToUpper(method)
		}
		route = route.Methods(methods...)
	}

	route = route.Name(rule.Endpoint)
	if err := route.GetError(); err != nil {
		return errors.Wrapf(err, "invalid rule for endpoint [%s]", rule.Endpoint)
	}

	router.routes = append(router.routes, route)
	if _, found := router.builders[rule.Endpoint]; !found {
		router.builders[rule.Endpoint] = route
	}
	return nil
}

// Handle sets the function responding for endpoint.
func (router *Router) Handle(endpoint string, handler Endpoint) error {
	if handler == nil {
		return errors.Errorf("nil handler for endpoint [%s]", endpoint)
	}

	router.lock.Lock()
	defer router.lock.Unlock()

	if _, found := router.endpoints[endpoint]; found {
		return errors.Errorf("endpoint [%s] already has a handler", endpoint)
	}
	router.endpoints[endpoint] = handler
	return nil
}

// Endpoint returns the handler of endpoint.
func (router *Router) Endpoint(endpoint string) (Endpoint, bool) {
	router.lock.RLock()
	defer router.lock.RUnlock()
	handler, found := router.endpoints[endpoint]
	return handler, found
}

// Match returns the endpoint and path arguments for request. If no rule matches, the error is a 404 *xapp.HTTPError;
// if rules match the path but not the method, it is a 405 listing the allowed methods.
func (router *Router) Match(request *http.Request) (string, map[string]string, error) {
	router.lock.RLock()
	defer router.lock.RUnlock()

	var match mux.RouteMatch
	if router.router.Match(request, &match) {
		args := match.Vars
		if args == nil {
			args = map[string]string{}
		}
		return match.Route.GetName(), args, nil
	}

	if match.MatchErr == mux.ErrMethodMismatch {
		return "", nil, xapp.MethodNotAllowed(router.allowedMethods(request)...)
	}
	return "", nil, xapp.NotFound()
}

func (router *Router) allowedMethods(request *http.Request) []string {
	allowed := map[string]bool{}
	for _, route := range router.routes {
		methods, err := route.GetMethods()
		if err != nil {
			continue
		}

		for _, method := range methods {
			candidate := request.Clone(request.Context())
			candidate.Method = method
			if route.Match(candidate, &mux.RouteMatch{}) {
				allowed[method] = true
			}
		}
	}

	var result []string
	for method := range allowed {
		result = append(result, method)
	}
	sort.Strings(result)
	return result
}

// Build returns the path of endpoint with args substituted for the path variables of its rule.
func (router *Router) Build(endpoint string, args map[string]string) (string, error) {
	router.lock.RLock()
	route, found := router.builders[endpoint]
	router.lock.RUnlock()

	if !found {
		return "", errors.Errorf("no rule for endpoint [%s]", endpoint)
	}

	var pairs []string
	for key, value := range args {
		pairs = append(pairs, key, value)
	}

	url, err := route.URLPath(pairs...)
	if err != nil {
		return "", errors.Wrapf(err, "error building url for endpoint [%s]", endpoint)
	}
	return url.String(), nil
}
