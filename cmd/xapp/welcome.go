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

package main

import (
	"embed"
	"io/fs"
	"net/http"

	"github.com/openziti/xapp"
	"github.com/openziti/xapp/compile"
	"github.com/openziti/xapp/fullstack"
	"github.com/openziti/xapp/render"
	"github.com/openziti/xapp/routing"
	"github.com/openziti/xapp/session"
	"github.com/openziti/xapp/store"
	"github.com/openziti/xapp/transaction"
	"github.com/pkg/errors"
)

//go:embed templates
var templateFiles embed.FS

const visitsKey = "visits"

func welcomeRules() []routing.Rule {
	return []routing.Rule{
		{Path: "/", Methods: []string{http.MethodGet}, Endpoint: "welcome"},
		{Path: "/api/visits", Methods: []string{http.MethodGet}, Endpoint: "visits"},
		{Path: "/reset", Methods: []string{http.MethodPost}, Endpoint: "reset"},
	}
}

func welcomeEndpoints() map[string]routing.Endpoint {
	return map[string]routing.Endpoint{
		"welcome": welcome,
		"visits":  visits,
		"reset":   reset,
	}
}

// newWelcomeStack adds the welcome endpoints and templates to opts.
func newWelcomeStack(cfg *fullstack.Config, opts fullstack.Options) (*fullstack.Stack, error) {
	templates, err := fs.Sub(templateFiles, "templates")
	if err != nil {
		return nil, errors.Wrap(err, "could not open embedded templates")
	}

	opts.Rules = append(opts.Rules, welcomeRules()...)
	opts.Endpoints = welcomeEndpoints()
	opts.Templates = templates
	opts.Compilers = map[string]compile.Compiler{
		".css": compile.Template(templates, "text/css; charset=utf-8"),
	}
	opts.ContextHook = func(env *xapp.Environment) map[string]interface{} {
		return map[string]interface{}{"name": env.App().Name()}
	}

	return fullstack.New(cfg, opts)
}

// countVisit increments the visit counters of the store root and of the session.
func countVisit(env *xapp.Environment) (int, int, error) {
	root, err := store.Root(env)
	if err != nil {
		return 0, 0, err
	}

	total := 0
	if _, err := root.Get(visitsKey, &total); err != nil {
		return 0, 0, err
	}
	total++
	if err := root.Put(visitsKey, total); err != nil {
		return 0, 0, err
	}

	sess, err := session.Get(env)
	if err != nil {
		return 0, 0, err
	}
	mine := 1
	if value, found := sess.Get(visitsKey); found {
		if count, ok := value.(float64); ok {
			mine = int(count) + 1
		}
	}
	sess.Set(visitsKey, float64(mine))

	return total, mine, nil
}

func welcome(env *xapp.Environment, _ map[string]string) (*xapp.Response, error) {
	total, mine, err := countVisit(env)
	if err != nil {
		return nil, err
	}

	resetURL, err := routing.URLFor(env, "reset", nil)
	if err != nil {
		return nil, err
	}

	styleURL, err := routing.URLFor(env, compile.Endpoint, map[string]string{"name": "welcome.css"})
	if err != nil {
		return nil, err
	}

	return render.Render(env, "welcome.html", map[string]interface{}{
		"total":    total,
		"mine":     mine,
		"resetURL": resetURL,
		"styleURL": styleURL,
	})
}

func visits(env *xapp.Environment, _ map[string]string) (*xapp.Response, error) {
	root, err := store.Root(env)
	if err != nil {
		return nil, err
	}

	total := 0
	if _, err := root.Get(visitsKey, &total); err != nil {
		return nil, err
	}

	return render.JSON(env, map[string]interface{}{visitsKey: total})
}

// reset clears the counter; the ?dry-run query keeps the write from committing.
func reset(env *xapp.Environment, _ map[string]string) (*xapp.Response, error) {
	root, err := store.Root(env)
	if err != nil {
		return nil, err
	}

	if err := root.Delete(visitsKey); err != nil {
		return nil, err
	}

	if env.Request().URL.Query().Has("dry-run") {
		if err := transaction.Doom(env); err != nil {
			return nil, err
		}
	}

	return routing.Redirect(env, "welcome", nil, http.StatusSeeOther)
}
