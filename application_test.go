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

package xapp

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

var _ Mixin = (*recordingMixin)(nil)

type recordingMixin struct {
	MixinBase
	name     string
	calls    *[]string
	enterErr error
	exitErr  error
	suppress bool
	faults   *[]error
}

func (m *recordingMixin) Name() string {
	return m.name
}

func (m *recordingMixin) Construct(*Application) error {
	*m.calls = append(*m.calls, "construct:"+m.name)
	return nil
}

func (m *recordingMixin) Create(*Environment) error {
	*m.calls = append(*m.calls, "create:"+m.name)
	return nil
}

func (m *recordingMixin) Enter(*Environment) error {
	*m.calls = append(*m.calls, "enter:"+m.name)
	return m.enterErr
}

func (m *recordingMixin) Exit(_ *Environment, fault error) (bool, error) {
	*m.calls = append(*m.calls, "exit:"+m.name)
	if m.faults != nil {
		*m.faults = append(*m.faults, fault)
	}
	return m.suppress, m.exitErr
}

func newRecordingMixins(calls *[]string, names ...string) []*recordingMixin {
	var result []*recordingMixin
	for _, name := range names {
		result = append(result, &recordingMixin{name: name, calls: calls})
	}
	return result
}

func asMixins(mixins []*recordingMixin) []Mixin {
	var result []Mixin
	for _, mixin := range mixins {
		result = append(result, mixin)
	}
	return result
}

func okDispatch(env *Environment) (*Response, error) {
	return env.NewResponse([]byte("ok")), nil
}

func TestConstruction(t *testing.T) {

	t.Run("every mixin is constructed once in declared order for any count", func(t *testing.T) {
		for count := 0; count <= 5; count++ {
			var calls []string
			var names []string
			var expected []string
			for i := count; i > 0; i-- {
				name := fmt.Sprintf("m%d", i)
				names = append(names, name)
				expected = append(expected, "construct:"+name)
			}

			_, err := New(Options{Mixins: asMixins(newRecordingMixins(&calls, names...))})

			req := require.New(t)
			req.NoError(err)
			req.Equal(expected, calls)
		}
	})

	t.Run("settings are applied before mixins and configure runs last", func(t *testing.T) {
		var observed []interface{}
		observer := &funcMixin{
			name: "observer",
			construct: func(app *Application) error {
				observed = append(observed, app.Settings()["greeting"])
				app.Settings().SetDefault("greeting", "default")
				app.Settings().SetDefault("other", "default")
				return nil
			},
		}

		app, err := New(Options{
			Settings: map[string]interface{}{"greeting": "hello"},
			Mixins:   []Mixin{observer},
			Configure: func(app *Application) error {
				observed = append(observed, "configure")
				return nil
			},
		})

		req := require.New(t)
		req.NoError(err)
		req.Equal([]interface{}{"hello", "configure"}, observed)
		req.Equal("hello", app.Settings()["greeting"])
		req.Equal("default", app.Settings()["other"])
		req.False(app.Debug())
	})

	t.Run("a failing contribution aborts construction", func(t *testing.T) {
		failure := errors.New("cannot construct")
		var calls []string
		mixins := asMixins(newRecordingMixins(&calls, "first"))
		mixins = append(mixins, &funcMixin{name: "failing", construct: func(*Application) error { return failure }})
		mixins = append(mixins, asMixins(newRecordingMixins(&calls, "last"))...)

		configured := false
		app, err := New(Options{
			Mixins:    mixins,
			Configure: func(*Application) error { configured = true; return nil },
		})

		req := require.New(t)
		req.ErrorIs(err, failure)
		req.Nil(app)
		req.False(configured)
		req.Equal([]string{"construct:first"}, calls)
	})

	t.Run("a failing configure hook aborts construction and releases resources", func(t *testing.T) {
		released := false
		app, err := New(Options{
			Mixins: []Mixin{&funcMixin{name: "resource", construct: func(app *Application) error {
				app.OnClose(func() error { released = true; return nil })
				return nil
			}}},
			Configure: func(*Application) error { return errors.New("bad configuration") },
		})

		req := require.New(t)
		req.Error(err)
		req.Nil(app)
		req.True(released)
	})

	t.Run("duplicate mixin names are rejected", func(t *testing.T) {
		var calls []string
		_, err := New(Options{Mixins: asMixins(newRecordingMixins(&calls, "a", "a"))})

		req := require.New(t)
		req.Error(err)
		req.Empty(calls)
	})

	t.Run("only one dispatcher may be installed", func(t *testing.T) {
		_, err := New(Options{
			Dispatch: okDispatch,
			Mixins: []Mixin{&funcMixin{name: "router", construct: func(app *Application) error {
				return app.SetDispatcher(okDispatch)
			}}},
		})

		require.New(t).Error(err)
	})
}

func TestLifecycle(t *testing.T) {

	t.Run("hooks run forward and exit hooks run in reverse", func(t *testing.T) {
		var calls []string
		app, err := New(Options{Mixins: asMixins(newRecordingMixins(&calls, "a", "b", "c")), Dispatch: okDispatch})
		req := require.New(t)
		req.NoError(err)

		calls = nil
		response, err := app.Handle(httptest.NewRequest("GET", "/", nil))
		req.NoError(err)
		req.Equal("ok", string(response.Data()))
		req.Equal([]string{
			"create:a", "create:b", "create:c",
			"enter:a", "enter:b", "enter:c",
			"exit:c", "exit:b", "exit:a",
		}, calls)
	})

	t.Run("http errors are converted and exit hooks see no fault", func(t *testing.T) {
		var calls []string
		var faults []error
		mixin := &recordingMixin{name: "a", calls: &calls, faults: &faults}

		app, err := New(Options{
			Mixins: []Mixin{mixin},
			Dispatch: func(*Environment) (*Response, error) {
				return nil, NotFound()
			},
		})
		req := require.New(t)
		req.NoError(err)

		response, err := app.Handle(httptest.NewRequest("GET", "/missing", nil))
		req.NoError(err)
		req.Equal(http.StatusNotFound, response.StatusCode)
		req.Equal([]error{nil}, faults)
	})

	t.Run("the error response hook can be overridden", func(t *testing.T) {
		app, err := New(Options{
			ErrorResponse: func(env *Environment, httpErr *HTTPError) *Response {
				return env.NewResponse([]byte("custom page"), WithStatus(httpErr.Code))
			},
		})
		req := require.New(t)
		req.NoError(err)

		response, err := app.Handle(httptest.NewRequest("GET", "/missing", nil))
		req.NoError(err)
		req.Equal(http.StatusNotFound, response.StatusCode)
		req.Equal("custom page", string(response.Data()))
	})

	t.Run("faults reach every exit hook and propagate", func(t *testing.T) {
		failure := errors.New("runtime error")
		var calls []string
		var faults []error
		mixins := newRecordingMixins(&calls, "a", "b")
		for _, mixin := range mixins {
			mixin.faults = &faults
		}

		app, err := New(Options{
			Mixins:   asMixins(mixins),
			Dispatch: func(*Environment) (*Response, error) { return nil, failure },
		})
		req := require.New(t)
		req.NoError(err)

		response, err := app.Handle(httptest.NewRequest("GET", "/", nil))
		req.ErrorIs(err, failure)
		req.Nil(response)
		req.Equal([]error{failure, failure}, faults)
	})

	t.Run("a suppressing exit hook swallows the fault", func(t *testing.T) {
		var calls []string
		mixins := newRecordingMixins(&calls, "a", "b")
		mixins[0].suppress = true

		app, err := New(Options{
			Mixins:   asMixins(mixins),
			Dispatch: func(*Environment) (*Response, error) { return nil, errors.New("runtime error") },
		})
		req := require.New(t)
		req.NoError(err)

		response, err := app.Handle(httptest.NewRequest("GET", "/", nil))
		req.NoError(err)
		req.Equal(http.StatusInternalServerError, response.StatusCode)
	})

	t.Run("an exit hook error replaces the fault and wins over earlier suppression", func(t *testing.T) {
		closeFailure := errors.New("close failed")
		var calls []string
		var faults []error
		mixins := newRecordingMixins(&calls, "closer", "suppressor")
		mixins[1].suppress = true
		mixins[0].exitErr = closeFailure
		mixins[0].faults = &faults

		app, err := New(Options{
			Mixins:   asMixins(mixins),
			Dispatch: func(*Environment) (*Response, error) { return nil, errors.New("runtime error") },
		})
		req := require.New(t)
		req.NoError(err)

		_, err = app.Handle(httptest.NewRequest("GET", "/", nil))
		req.ErrorIs(err, closeFailure)
		req.Len(faults, 1)
	})

	t.Run("a failed enter only exits the mixins that entered", func(t *testing.T) {
		failure := errors.New("cannot enter")
		var calls []string
		var faults []error
		mixins := newRecordingMixins(&calls, "a", "b", "c")
		mixins[0].faults = &faults
		mixins[1].enterErr = failure

		dispatched := false
		app, err := New(Options{
			Mixins: asMixins(mixins),
			Dispatch: func(env *Environment) (*Response, error) {
				dispatched = true
				return okDispatch(env)
			},
		})
		req := require.New(t)
		req.NoError(err)

		calls = nil
		_, err = app.Handle(httptest.NewRequest("GET", "/", nil))
		req.ErrorIs(err, failure)
		req.False(dispatched)
		req.Equal([]string{"create:a", "create:b", "create:c", "enter:a", "enter:b", "exit:a"}, calls)
		req.Equal([]error{failure}, faults)
	})

	t.Run("panics become faults seen by exit hooks", func(t *testing.T) {
		var calls []string
		var faults []error
		mixin := &recordingMixin{name: "a", calls: &calls, faults: &faults}

		app, err := New(Options{
			Mixins:   []Mixin{mixin},
			Dispatch: func(*Environment) (*Response, error) { panic("kaboom") },
		})
		req := require.New(t)
		req.NoError(err)

		_, err = app.Handle(httptest.NewRequest("GET", "/", nil))
		var panicErr *PanicError
		req.ErrorAs(err, &panicErr)
		req.Equal("kaboom", panicErr.Value)
		req.NotEmpty(panicErr.Stack)
		req.Len(faults, 1)
	})

	t.Run("a panicking exit hook becomes the fault and earlier exits still run", func(t *testing.T) {
		var calls []string
		var faults []error
		first := &recordingMixin{name: "a", calls: &calls, faults: &faults}
		panicking := &funcMixin{
			name: "b",
			exit: func(*Environment, error) (bool, error) { panic("exit failed") },
		}

		app, err := New(Options{Mixins: []Mixin{first, panicking}, Dispatch: okDispatch})
		req := require.New(t)
		req.NoError(err)

		_, err = app.Handle(httptest.NewRequest("GET", "/", nil))
		var panicErr *PanicError
		req.ErrorAs(err, &panicErr)
		req.Equal("exit failed", panicErr.Value)
		req.Contains(calls, "exit:a")
		req.Len(faults, 1)
		req.ErrorAs(faults[0], &panicErr)
	})

	t.Run("states advance through the lifecycle", func(t *testing.T) {
		var states []State
		var env *Environment
		observer := &funcMixin{
			name: "observer",
			create: func(e *Environment) error {
				env = e
				states = append(states, e.State())
				return nil
			},
			enter: func(e *Environment) error {
				states = append(states, e.State())
				return nil
			},
			exit: func(e *Environment, _ error) (bool, error) {
				states = append(states, e.State())
				return false, nil
			},
		}

		app, err := New(Options{Mixins: []Mixin{observer}, Dispatch: okDispatch})
		req := require.New(t)
		req.NoError(err)

		_, err = app.Handle(httptest.NewRequest("GET", "/", nil))
		req.NoError(err)
		req.Equal([]State{Bound, Bound, Dispatched}, states)
		req.Equal(Exited, env.State())
		req.False(Exited.CanTransition(Bound))
	})

	t.Run("every request gets fresh scoped storage", func(t *testing.T) {
		computed := 0
		app, err := New(Options{
			Dispatch: func(env *Environment) (*Response, error) {
				_, _ = env.Local().GetOrCompute("user", func() (interface{}, error) {
					computed++
					return "someone", nil
				})
				_, _ = env.Local().GetOrCompute("user", func() (interface{}, error) {
					computed++
					return "someone", nil
				})
				return env.NewResponse(nil), nil
			},
		})
		req := require.New(t)
		req.NoError(err)

		for i := 0; i < 3; i++ {
			_, err = app.Handle(httptest.NewRequest("GET", "/", nil))
			req.NoError(err)
		}
		req.Equal(3, computed)
	})

	t.Run("ServeHTTP answers unhandled faults with 500", func(t *testing.T) {
		app, err := New(Options{
			Dispatch: func(*Environment) (*Response, error) { return nil, errors.New("runtime error") },
		})
		req := require.New(t)
		req.NoError(err)

		recorder := httptest.NewRecorder()
		app.ServeHTTP(recorder, httptest.NewRequest("GET", "/", nil))
		req.Equal(http.StatusInternalServerError, recorder.Code)
	})

	t.Run("Once computes process-wide values a single time", func(t *testing.T) {
		app, err := New(Options{})
		req := require.New(t)
		req.NoError(err)

		calls := 0
		for i := 0; i < 3; i++ {
			value, err := app.Once("pool", func() (interface{}, error) {
				calls++
				return "pool", nil
			})
			req.NoError(err)
			req.Equal("pool", value)
		}
		req.Equal(1, calls)
	})
}

type funcMixin struct {
	MixinBase
	name      string
	construct func(app *Application) error
	create    func(env *Environment) error
	enter     func(env *Environment) error
	exit      func(env *Environment, fault error) (bool, error)
}

func (m *funcMixin) Name() string {
	return m.name
}

func (m *funcMixin) Construct(app *Application) error {
	if m.construct != nil {
		return m.construct(app)
	}
	return nil
}

func (m *funcMixin) Create(env *Environment) error {
	if m.create != nil {
		return m.create(env)
	}
	return nil
}

func (m *funcMixin) Enter(env *Environment) error {
	if m.enter != nil {
		return m.enter(env)
	}
	return nil
}

func (m *funcMixin) Exit(env *Environment, fault error) (bool, error) {
	if m.exit != nil {
		return m.exit(env, fault)
	}
	return false, nil
}
