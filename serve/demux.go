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
	"sort"
	"strings"

	"github.com/michaelquigley/pfxlog"
	"github.com/openziti/xapp"
	"github.com/pkg/errors"
)

// DemuxFactory generates a http.Handler that interrogates a http.Request and routes it to one of a set of
// ApiHandler's. The selected ApiHandler is added to the request context with a key of HandlerContextKey.
type DemuxFactory interface {
	Build(handlers []ApiHandler) (DemuxHandler, error)
}

type DemuxHandler interface {
	DefaultHttpHandlerProvider
	http.Handler
}

type DemuxHandlerImpl struct {
	DefaultHttpHandlerProviderImpl
	selector func(request *http.Request) ApiHandler
}

var _ DemuxHandler = &DemuxHandlerImpl{}

func (d *DemuxHandlerImpl) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	if handler := d.selector(request); handler != nil {
		handler.ServeHTTP(writer, request.WithContext(withHandler(request.Context(), handler)))
		return
	}

	if defaultHttpHandler := d.GetDefaultHttpHandler(); defaultHttpHandler != nil {
		defaultHttpHandler.ServeHTTP(writer, request)
		return
	}

	if err := xapp.NotFound().ToResponse().Write(writer); err != nil {
		pfxlog.Logger().WithError(err).Debug("could not write not found response")
	}
}

// PathPrefixDemuxFactory is a DemuxFactory that routes http.Request requests to the ApiHandler with the longest root
// path prefixing the URL path. Unmatched requests go to the declared default ApiHandler, then to the default
// http.Handler of the Server, and are otherwise answered with a 404.
type PathPrefixDemuxFactory struct{}

var _ DemuxFactory = &PathPrefixDemuxFactory{}

// Build performs ApiHandler selection based on URL path prefixes
func (factory *PathPrefixDemuxFactory) Build(handlers []ApiHandler) (DemuxHandler, error) {
	defaultApi, err := getDefault(handlers)

	if err != nil {
		return nil, err
	}

	handlerMap := map[string]ApiHandler{}

	for _, handler := range handlers {
		if existing, ok := handlerMap[handler.RootPath()]; ok {
			return nil, fmt.Errorf("duplicate root path [%s] detected for both bindings [%s] and [%s]", handler.RootPath(), handler.Binding(), existing.Binding())
		}
		handlerMap[handler.RootPath()] = handler
	}

	sorted := make([]ApiHandler, len(handlers))
	copy(sorted, handlers)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].RootPath()) > len(sorted[j].RootPath())
	})

	return &DemuxHandlerImpl{
		selector: func(request *http.Request) ApiHandler {
			for _, handler := range sorted {
				if underRoot(request.URL.Path, handler.RootPath()) {
					return handler
				}
			}
			return defaultApi
		},
	}, nil
}

// underRoot reports whether path is rootPath or one of its descendants. An empty root path matches nothing.
func underRoot(path, rootPath string) bool {
	if rootPath == "" {
		return false
	}

	trimmed := strings.TrimSuffix(rootPath, "/")
	return path == rootPath || path == trimmed || strings.HasPrefix(path, trimmed+"/")
}

// IsHandledDemuxFactory is a DemuxFactory that routes http.Request requests to the first ApiHandler whose IsHandler
// accepts them. Without a declared default, the last handler receives unmatched requests.
type IsHandledDemuxFactory struct{}

var _ DemuxFactory = &IsHandledDemuxFactory{}

// Build performs ApiHandler selection based on IsHandler()
func (factory *IsHandledDemuxFactory) Build(handlers []ApiHandler) (DemuxHandler, error) {
	defaultApi, err := getDefault(handlers)

	if err != nil {
		return nil, err
	}

	if defaultApi == nil {
		defaultApi = handlers[len(handlers)-1]
		pfxlog.Logger().Warnf("no default handlers were found, using the last handler [Binding: %s, Type: %T] as the default", defaultApi.Binding(), defaultApi)
	}

	return &DemuxHandlerImpl{
		selector: func(request *http.Request) ApiHandler {
			for _, handler := range handlers {
				if handler.IsHandler(request) {
					return handler
				}
			}
			return defaultApi
		},
	}, nil
}

// getDefault determines from a slice of ApiHandler which one declares itself the default handler for requests that
// match no handler. Only one handler may do so. If none does, nil is returned.
func getDefault(handlers []ApiHandler) (ApiHandler, error) {
	var defaults []ApiHandler

	if len(handlers) == 0 {
		return nil, errors.New("no handlers provided")
	}

	for _, handler := range handlers {
		if curHandler, ok := handler.(DefaultApiHandler); ok {
			if curHandler.IsDefault() {
				defaults = append(defaults, curHandler)
			}
		}
	}

	if len(defaults) == 0 {
		return nil, nil
	}

	if len(defaults) > 1 {
		var names []string
		for _, handler := range defaults {
			names = append(names, fmt.Sprintf("[Binding: %s, Type: %T]", handler.Binding(), handler))
		}

		return nil, errors.New("too many default handlers found, ensure that only one handler is marked as the default: " + strings.Join(names, ","))
	}

	return defaults[0], nil
}
