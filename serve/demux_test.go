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
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

var _ ApiHandler = (*mockHandler)(nil)
var _ DefaultApiHandler = (*mockHandler)(nil)

type mockHandler struct {
	isDefault bool
	binding   string
	rootPath  string
	handles   bool
	seen      ApiHandler
}

func (m *mockHandler) IsDefault() bool {
	return m.isDefault
}

func (m *mockHandler) Binding() string {
	if m.binding == "" {
		return "mockHandler"
	}
	return m.binding
}

func (m *mockHandler) Options() map[string]interface{} {
	return map[string]interface{}{}
}

func (m *mockHandler) RootPath() string {
	return m.rootPath
}

func (m *mockHandler) IsHandler(_ *http.Request) bool {
	return m.handles
}

func (m *mockHandler) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	m.seen = HandlerFromRequestContext(request.Context())
	writer.WriteHeader(http.StatusOK)
	_, _ = writer.Write([]byte(m.Binding()))
}

func serveDemux(demux http.Handler, path string) *httptest.ResponseRecorder {
	recorder := httptest.NewRecorder()
	demux.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, path, nil))
	return recorder
}

func Test_getDefault(t *testing.T) {

	t.Run("a nil slice results in an error", func(t *testing.T) {
		var handlers []ApiHandler = nil

		defaultHandler, err := getDefault(handlers)

		req := require.New(t)
		req.Error(err)
		req.Nil(defaultHandler)
	})

	t.Run("a slice with one non-defaulting entry returns no default", func(t *testing.T) {
		handlers := []ApiHandler{
			&mockHandler{isDefault: false},
		}

		defaultHandler, err := getDefault(handlers)

		req := require.New(t)
		req.NoError(err)
		req.Nil(defaultHandler)
	})

	t.Run("a slice with one defaulting entry returns that entry", func(t *testing.T) {
		h1 := &mockHandler{isDefault: true}

		defaultHandler, err := getDefault([]ApiHandler{h1})

		req := require.New(t)
		req.NoError(err)
		req.Equal(h1, defaultHandler)
	})

	t.Run("a slice with multiple defaulting entries returns an error", func(t *testing.T) {
		handlers := []ApiHandler{
			&mockHandler{isDefault: false},
			&mockHandler{isDefault: true},
			&mockHandler{isDefault: true},
		}

		defaultHandler, err := getDefault(handlers)

		req := require.New(t)
		req.Error(err)
		req.Nil(defaultHandler)
	})

	t.Run("a slice with multiple entries and one defaulting entry returns the defaulting entry", func(t *testing.T) {
		h2 := &mockHandler{isDefault: true}
		handlers := []ApiHandler{
			&mockHandler{isDefault: false},
			h2,
			&mockHandler{isDefault: false},
		}

		defaultHandler, err := getDefault(handlers)

		req := require.New(t)
		req.NoError(err)
		req.Equal(h2, defaultHandler)
	})
}

func TestPathPrefixDemuxFactory(t *testing.T) {
	t.Run("the longest matching root path wins", func(t *testing.T) {
		req := require.New(t)

		app := &mockHandler{binding: "app", rootPath: "/"}
		api := &mockHandler{binding: "api", rootPath: "/api"}
		admin := &mockHandler{binding: "admin", rootPath: "/api/admin/"}

		demux, err := (&PathPrefixDemuxFactory{}).Build([]ApiHandler{app, api, admin})
		req.NoError(err)

		req.Equal("admin", serveDemux(demux, "/api/admin/users").Body.String())
		req.Equal("admin", serveDemux(demux, "/api/admin").Body.String())
		req.Equal("api", serveDemux(demux, "/api/things").Body.String())
		req.Equal("app", serveDemux(demux, "/apiary").Body.String())
		req.Equal("app", serveDemux(demux, "/").Body.String())
	})

	t.Run("the selected handler is stored on the request context", func(t *testing.T) {
		req := require.New(t)

		api := &mockHandler{binding: "api", rootPath: "/api"}
		demux, err := (&PathPrefixDemuxFactory{}).Build([]ApiHandler{api})
		req.NoError(err)

		serveDemux(demux, "/api")
		req.Equal(api, api.seen)
	})

	t.Run("unmatched requests go to the declared default", func(t *testing.T) {
		req := require.New(t)

		metrics := &mockHandler{binding: "metrics", rootPath: "/metrics"}
		app := &mockHandler{binding: "app", rootPath: "/app", isDefault: true}

		demux, err := (&PathPrefixDemuxFactory{}).Build([]ApiHandler{metrics, app})
		req.NoError(err)

		req.Equal("app", serveDemux(demux, "/elsewhere").Body.String())
	})

	t.Run("unmatched requests without a default get the default http handler", func(t *testing.T) {
		req := require.New(t)

		demux, err := (&PathPrefixDemuxFactory{}).Build([]ApiHandler{&mockHandler{rootPath: "/metrics"}})
		req.NoError(err)

		parent := &DefaultHttpHandlerProviderImpl{}
		parent.SetDefaultHttpHandler(http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
			writer.WriteHeader(http.StatusTeapot)
		}))
		demux.SetParent(parent)

		req.Equal(http.StatusTeapot, serveDemux(demux, "/elsewhere").Code)
	})

	t.Run("unmatched requests without any fallback are not found", func(t *testing.T) {
		req := require.New(t)

		demux, err := (&PathPrefixDemuxFactory{}).Build([]ApiHandler{&mockHandler{rootPath: "/metrics"}})
		req.NoError(err)

		recorder := serveDemux(demux, "/elsewhere")
		req.Equal(http.StatusNotFound, recorder.Code)
		req.Contains(recorder.Body.String(), "Not Found")
	})

	t.Run("duplicate root paths are rejected", func(t *testing.T) {
		req := require.New(t)

		_, err := (&PathPrefixDemuxFactory{}).Build([]ApiHandler{
			&mockHandler{binding: "one", rootPath: "/x"},
			&mockHandler{binding: "two", rootPath: "/x"},
		})
		req.Error(err)
		req.Contains(err.Error(), "duplicate root path")
	})
}

func TestIsHandledDemuxFactory(t *testing.T) {
	t.Run("the first handler accepting the request wins", func(t *testing.T) {
		req := require.New(t)

		demux, err := (&IsHandledDemuxFactory{}).Build([]ApiHandler{
			&mockHandler{binding: "one"},
			&mockHandler{binding: "two", handles: true},
			&mockHandler{binding: "three", handles: true},
		})
		req.NoError(err)

		req.Equal("two", serveDemux(demux, "/").Body.String())
	})

	t.Run("the last handler is the fallback without a declared default", func(t *testing.T) {
		req := require.New(t)

		demux, err := (&IsHandledDemuxFactory{}).Build([]ApiHandler{
			&mockHandler{binding: "one"},
			&mockHandler{binding: "two"},
		})
		req.NoError(err)

		req.Equal("two", serveDemux(demux, "/").Body.String())
	})
}
