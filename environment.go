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
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/openziti/foundation/v2/debugz"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Environment coordinates the handling of one request. It is created fresh for every request by the Application and
// must not be retained once Handle returns.
type Environment struct {
	app      *Application
	request  *http.Request
	local    *Local
	id       string
	log      *logrus.Entry
	state    State
	response *Response
}

func newEnvironment(app *Application, request *http.Request, local *Local) (*Environment, error) {
	env := &Environment{
		app:   app,
		local: local,
		id:    uuid.NewString(),
		state: Unbound,
	}
	env.log = app.log.WithField("request", env.id)

	env.request = request
	if err := env.transition(Bound); err != nil {
		return nil, err
	}

	if app.Debug() {
		env.log.Debugf("bound %s %s", request.Method, request.URL.Path)
	}

	for _, mixin := range app.mixins {
		if err := mixin.Create(env); err != nil {
			return nil, errors.Wrapf(err, "error creating environment for mixin [%s]", mixin.Name())
		}
	}

	return env, nil
}

// App returns the Application that received the request.
func (env *Environment) App() *Application {
	return env.app
}

// Request returns the request being handled.
func (env *Environment) Request() *http.Request {
	return env.request
}

// Context returns the context of the request.
func (env *Environment) Context() context.Context {
	if env.request == nil {
		return context.Background()
	}
	return env.request.Context()
}

// Local returns the scoped storage bound to this request.
func (env *Environment) Local() *Local {
	return env.local
}

func (env *Environment) Settings() Bunch {
	return env.app.settings
}

// ID returns the unique id assigned to this request.
func (env *Environment) ID() string {
	return env.id
}

// Log returns the application log channel annotated with the request id.
func (env *Environment) Log() *logrus.Entry {
	return env.log
}

func (env *Environment) State() State {
	return env.state
}

// Response returns the response produced by dispatch or error conversion. It is nil before dispatch and when
// dispatch failed with a fault. Exit hooks may modify it.
func (env *Environment) Response() *Response {
	return env.response
}

// SetResponse replaces the response; an Exit hook that suppresses a fault uses it to provide one.
func (env *Environment) SetResponse(response *Response) {
	env.response = response
}

// NewResponse creates a response using the Application's response defaults.
func (env *Environment) NewResponse(body []byte, opts ...ResponseOption) *Response {
	return NewResponse(body, append([]ResponseOption{WithMimetype(env.app.mimetype)}, opts...)...)
}

func (env *Environment) transition(next State) error {
	if !env.state.CanTransition(next) {
		return errors.Wrapf(ErrInvalidTransition, "from [%s] to [%s]", env.state, next)
	}
	env.state = next
	return nil
}

func (env *Environment) run() (*Response, error) {
	entered, fault := env.enter()
	if fault == nil {
		fault = env.dispatch()
	}

	fault = env.exit(entered, fault)
	if fault != nil {
		return nil, fault
	}

	return env.response, nil
}

// enter runs the Enter hooks in declared order and returns how many succeeded.
func (env *Environment) enter() (int, error) {
	for i, mixin := range env.app.mixins {
		if err := mixin.Enter(env); err != nil {
			if env.app.Debug() {
				env.log.WithError(err).Debugf("entering mixin [%s] failed", mixin.Name())
			}
			return i, err
		}
	}

	if env.app.Debug() {
		env.log.Debug("entered")
	}

	return len(env.app.mixins), env.transition(Entered)
}

// dispatch invokes the dispatch hook. HTTP errors are converted here and are not faults; panics are recovered into a
// *PanicError fault.
func (env *Environment) dispatch() (fault error) {
	defer func() {
		if panicVal := recover(); panicVal != nil {
			env.state = Errored
			fault = &PanicError{
				Value: panicVal,
				Stack: debugz.GenerateLocalStack(),
			}
		}
	}()

	response, err := env.app.dispatch(env)
	if err == nil && response == nil {
		err = errors.New("dispatch returned neither a response nor an error")
	}

	if err != nil {
		if transitionErr := env.transition(Errored); transitionErr != nil {
			return transitionErr
		}

		if httpErr, ok := AsHTTPError(err); ok {
			if env.app.Debug() {
				env.log.Debugf("converting http error: %v", httpErr)
			}
			env.response = env.app.errorResponse(env, httpErr)
			if env.response == nil {
				env.response = httpErr.ToResponse()
			}
			return nil
		}
		return err
	}

	env.response = response
	if env.app.Debug() {
		env.log.Debugf("dispatched with status %d", response.StatusCode)
	}

	return env.transition(Dispatched)
}

// exitMixin runs the Exit hook of mixin, recovering a panic into a *PanicError.
func (env *Environment) exitMixin(mixin Mixin, fault error) (suppress bool, err error) {
	defer func() {
		if panicVal := recover(); panicVal != nil {
			suppress = false
			err = &PanicError{
				Value: panicVal,
				Stack: debugz.GenerateLocalStack(),
			}
		}
	}()

	return mixin.Exit(env, fault)
}

// exit runs the Exit hooks of the first entered mixins in reverse order. An error from a hook replaces the fault and
// cancels earlier suppression, so failures while finishing the request always win over suppression. A panicking hook
// counts as a failing one and the remaining hooks still run.
func (env *Environment) exit(entered int, fault error) error {
	suppressed := false

	for i := entered - 1; i >= 0; i-- {
		mixin := env.app.mixins[i]

		suppress, err := env.exitMixin(mixin, fault)
		if err != nil {
			if fault != nil {
				env.log.WithError(fault).Warnf("fault replaced by error from exit of mixin [%s]: %v", mixin.Name(), err)
			}
			fault = err
			suppressed = false
			continue
		}

		if suppress && fault != nil {
			if env.app.Debug() {
				env.log.Debugf("mixin [%s] suppressed fault: %v", mixin.Name(), fault)
			}
			suppressed = true
		}
	}

	env.state = Exited
	if env.app.Debug() {
		env.log.Debug("exited")
	}

	if suppressed {
		if env.response == nil {
			env.response = env.app.errorResponse(env, InternalServerError())
		}
		if env.response == nil {
			env.response = InternalServerError().ToResponse()
		}
		return nil
	}

	return fault
}
