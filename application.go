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
	"net/http"
	"sync"

	"github.com/michaelquigley/pfxlog"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const DefaultName = "xapp"

// DispatchFunc responds to the request of env or returns an error; an *HTTPError is handled by the Application.
type DispatchFunc func(env *Environment) (*Response, error)

// ErrorResponseFunc converts an *HTTPError returned by dispatch to a Response, e.g. for custom 404 pages.
type ErrorResponseFunc func(env *Environment, err *HTTPError) *Response

// Options describe an Application composition.
type Options struct {
	// Name identifies the application in logs.
	Name string

	// Settings override the defaults before any mixin is constructed.
	Settings map[string]interface{}

	// Mixins in declared order.
	Mixins []Mixin

	// Configure runs once after all mixins were constructed. It is not chained.
	Configure ConfigureFunc

	// Dispatch responds to requests. Mixins may install one with SetDispatcher instead. Defaults to answering 404.
	Dispatch DispatchFunc

	// ErrorResponse defaults to HTTPError.ToResponse.
	ErrorResponse ErrorResponseFunc

	// ResponseMimetype is the Content-Type of responses created with Environment.NewResponse.
	ResponseMimetype string
}

// Application is the long-lived, process-wide half of a composition. It owns the settings, the mixin list, shared
// lazily created resources such as connection pools and the log channel, and handles requests.
type Application struct {
	name          string
	settings      Bunch
	mixins        []Mixin
	dispatch      DispatchFunc
	errorResponse ErrorResponseFunc
	mimetype      string
	log           *logrus.Entry

	locals sync.Pool

	lazyLock sync.Mutex
	lazy     map[string]interface{}

	closeLock sync.Mutex
	closers   []func() error
}

// New creates an Application: settings are applied over the defaults, every mixin's Construct runs in declared order
// and finally Configure runs. If any step fails no Application is returned.
func New(options Options) (*Application, error) {
	if err := validateMixins(options.Mixins); err != nil {
		return nil, err
	}

	app := &Application{
		name:          options.Name,
		settings:      Bunch{SettingDebug: false},
		mixins:        append([]Mixin(nil), options.Mixins...),
		dispatch:      options.Dispatch,
		errorResponse: options.ErrorResponse,
		mimetype:      options.ResponseMimetype,
		lazy:          map[string]interface{}{},
	}

	if app.name == "" {
		app.name = DefaultName
	}

	if app.mimetype == "" {
		app.mimetype = DefaultMimetype
	}

	app.settings.Update(options.Settings)
	app.log = pfxlog.Logger().WithField("app", app.name)
	app.locals.New = func() interface{} {
		return NewLocal()
	}

	if err := construct(app); err != nil {
		app.closeQuietly()
		return nil, err
	}

	if options.Configure != nil {
		if err := options.Configure(app); err != nil {
			app.closeQuietly()
			return nil, errors.Wrapf(err, "error configuring application [%s]", app.name)
		}
	}

	if app.dispatch == nil {
		app.dispatch = func(*Environment) (*Response, error) {
			return nil, NotFound()
		}
	}

	if app.errorResponse == nil {
		app.errorResponse = func(_ *Environment, err *HTTPError) *Response {
			return err.ToResponse()
		}
	}

	return app, nil
}

// Name returns the application name.
func (app *Application) Name() string {
	return app.name
}

// Settings returns the settings. They may be changed while constructing; after startup they are read-only by
// convention because they are shared by all requests.
func (app *Application) Settings() Bunch {
	return app.settings
}

// Debug reports the debug setting.
func (app *Application) Debug() bool {
	return app.settings.GetBool(SettingDebug, false)
}

// Log returns the log channel of the application.
func (app *Application) Log() *logrus.Entry {
	return app.log
}

// Mixins returns the mixins in declared order.
func (app *Application) Mixins() []Mixin {
	return append([]Mixin(nil), app.mixins...)
}

// SetDispatcher installs the dispatch hook. Only one hook may be installed.
func (app *Application) SetDispatcher(dispatch DispatchFunc) error {
	if app.dispatch != nil {
		return errors.New("a dispatcher is already installed")
	}
	app.dispatch = dispatch
	return nil
}

// SetErrorResponse replaces the hook converting HTTP errors to responses.
func (app *Application) SetErrorResponse(errorResponse ErrorResponseFunc) {
	app.errorResponse = errorResponse
}

// Once returns the process-wide value of field, computing it on first use. The computation runs at most once unless
// it fails; later settings changes are not observed by an already computed value.
func (app *Application) Once(field string, compute func() (interface{}, error)) (interface{}, error) {
	app.lazyLock.Lock()
	defer app.lazyLock.Unlock()

	if value, ok := app.lazy[field]; ok {
		return value, nil
	}

	value, err := compute()
	if err != nil {
		return nil, err
	}

	app.lazy[field] = value
	return value, nil
}

// OnClose registers a release function run by Close.
func (app *Application) OnClose(closer func() error) {
	app.closeLock.Lock()
	defer app.closeLock.Unlock()
	app.closers = append(app.closers, closer)
}

// Close releases every resource registered with OnClose in reverse order of registration.
func (app *Application) Close() error {
	app.closeLock.Lock()
	closers := app.closers
	app.closers = nil
	app.closeLock.Unlock()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) == 1 {
		return errs[0]
	}

	if len(errs) > 1 {
		return errors.Errorf("encountered %d errors closing application [%s]: %v", len(errs), app.name, errs)
	}

	return nil
}

func (app *Application) closeQuietly() {
	if err := app.Close(); err != nil {
		app.log.WithError(err).Warn("error releasing resources of application that failed to construct")
	}
}

// Handle runs one request through the lifecycle: bind the scoped storage, create the Environment, enter, dispatch,
// convert HTTP errors and exit. A fault that no Exit hook suppressed is returned after all Exit hooks ran.
func (app *Application) Handle(request *http.Request) (*Response, error) {
	local := app.locals.Get().(*Local)
	defer func() {
		local.Release()
		app.locals.Put(local)
	}()

	local.Reset(request)

	env, err := newEnvironment(app, request, local)
	if err != nil {
		return nil, err
	}

	return env.run()
}

// ServeHTTP handles request and writes the result. A fault is logged and answered with its HTTP status if it is an
// *HTTPError and with 500 otherwise.
func (app *Application) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	response, err := app.Handle(request)
	if err != nil {
		if httpErr, ok := AsHTTPError(err); ok {
			response = httpErr.ToResponse()
		} else {
			logger := app.log.WithError(err)
			if panicErr, ok := err.(*PanicError); ok {
				logger = logger.WithField("stack", panicErr.Stack)
			}
			logger.Errorf("unhandled fault while handling %s %s", request.Method, request.URL.Path)
			response = InternalServerError().ToResponse()
		}
	}

	if err := response.Write(writer); err != nil {
		app.log.WithError(err).Debugf("could not write response for %s %s", request.Method, request.URL.Path)
	}
}
