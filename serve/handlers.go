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

package serve

import (
	"fmt"
	"net/http"

	"github.com/openziti/xapp"
	"github.com/openziti/xapp/metrics"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	AppBinding     = "app"
	MetricsBinding = "metrics"

	DefaultAppRootPath     = "/"
	DefaultMetricsRootPath = "/metrics"
)

// apiHandler is the ApiHandler of the bindings provided by this package. Requests reach the wrapped handler with
// their full path.
type apiHandler struct {
	http.Handler
	binding   string
	rootPath  string
	isDefault bool
	options   map[string]interface{}
}

var _ DefaultApiHandler = (*apiHandler)(nil)

func (h *apiHandler) Binding() string {
	return h.binding
}

func (h *apiHandler) Options() map[string]interface{} {
	return h.options
}

func (h *apiHandler) RootPath() string {
	return h.rootPath
}

func (h *apiHandler) IsHandler(r *http.Request) bool {
	return underRoot(r.URL.Path, h.rootPath)
}

func (h *apiHandler) IsDefault() bool {
	return h.isDefault
}

// newApiHandler reads the common options rootPath and default.
func newApiHandler(binding string, handler http.Handler, options map[string]interface{}, defaultRootPath string) (*apiHandler, error) {
	result := &apiHandler{
		Handler:  handler,
		binding:  binding,
		rootPath: defaultRootPath,
		options:  options,
	}

	if val, ok := options["rootPath"]; ok {
		rootPath, ok := val.(string)
		if !ok || rootPath == "" || rootPath[0] != '/' {
			return nil, fmt.Errorf("rootPath for binding [%s] must be a string starting with /", binding)
		}
		result.rootPath = rootPath
	}

	if val, ok := options["default"]; ok {
		isDefault, ok := val.(bool)
		if !ok {
			return nil, fmt.Errorf("default for binding [%s] must be a boolean", binding)
		}
		result.isDefault = isDefault
	}

	return result, nil
}

// AppHandlerFactory hosts an *xapp.Application under the "app" binding.
type AppHandlerFactory struct {
	App *xapp.Application
}

var _ ApiHandlerFactory = (*AppHandlerFactory)(nil)

func (factory *AppHandlerFactory) Binding() string {
	return AppBinding
}

func (factory *AppHandlerFactory) New(_ *ServerConfig, options map[string]interface{}) (ApiHandler, error) {
	if factory.App == nil {
		return nil, errors.New("no application configured for the app binding")
	}
	return newApiHandler(AppBinding, factory.App, options, DefaultAppRootPath)
}

func (factory *AppHandlerFactory) Validate(_ *InstanceConfig) error {
	if factory.App == nil {
		return errors.New("no application configured for the app binding")
	}
	return nil
}

// MetricsHandlerFactory exposes a Prometheus registry under the "metrics" binding.
type MetricsHandlerFactory struct {
	Registry *prometheus.Registry
}

var _ ApiHandlerFactory = (*MetricsHandlerFactory)(nil)

func (factory *MetricsHandlerFactory) Binding() string {
	return MetricsBinding
}

func (factory *MetricsHandlerFactory) New(_ *ServerConfig, options map[string]interface{}) (ApiHandler, error) {
	if factory.Registry == nil {
		return nil, errors.New("no registry configured for the metrics binding")
	}
	return newApiHandler(MetricsBinding, metrics.Handler(factory.Registry), options, DefaultMetricsRootPath)
}

func (factory *MetricsHandlerFactory) Validate(_ *InstanceConfig) error {
	if factory.Registry == nil {
		return errors.New("no registry configured for the metrics binding")
	}
	return nil
}
