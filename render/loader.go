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

package render

import (
	"bytes"
	htmltemplate "html/template"
	"io"
	"io/fs"
	"path"
	"sync"
	texttemplate "text/template"

	"github.com/pkg/errors"
)

// Template renders a response body from a context.
type Template interface {
	Render(ctx map[string]interface{}) ([]byte, error)
}

// Loader finds templates by name.
type Loader interface {
	Load(name string) (Template, error)
}

type renderer struct {
	mimetype string
	escaped  bool
}

// renderers maps template extensions to the mimetype of their output. Escaped templates are parsed with html/template.
var renderers = map[string]renderer{
	".html":  {mimetype: "text/html; charset=utf-8", escaped: true},
	".xhtml": {mimetype: "application/xhtml+xml; charset=utf-8", escaped: true},
	".xml":   {mimetype: "application/xml; charset=utf-8", escaped: true},
	".atom":  {mimetype: "application/atom+xml; charset=utf-8", escaped: true},
	".svg":   {mimetype: "image/svg+xml; charset=utf-8", escaped: true},
	".txt":   {mimetype: "text/plain; charset=utf-8"},
}

// Mimetype returns the mimetype of the output of the template name, or false if no renderer handles its extension.
func Mimetype(name string) (string, bool) {
	r, found := renderers[path.Ext(name)]
	return r.mimetype, found
}

type executor interface {
	Execute(writer io.Writer, data interface{}) error
}

type template struct {
	executor executor
}

func (t *template) Render(ctx map[string]interface{}) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := t.executor.Execute(buf, ctx); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DirLoader loads templates from a file system. With Cache set each template is parsed once; without it every Load
// parses the file again so edits show up immediately.
type DirLoader struct {
	FS    fs.FS
	Cache bool
	Funcs map[string]interface{}

	lock   sync.Mutex
	loaded map[string]Template
}

var _ Loader = (*DirLoader)(nil)

func (loader *DirLoader) Load(name string) (Template, error) {
	if loader.Cache {
		loader.lock.Lock()
		defer loader.lock.Unlock()

		if t, found := loader.loaded[name]; found {
			return t, nil
		}
	}

	t, err := loader.parse(name)
	if err != nil {
		return nil, err
	}

	if loader.Cache {
		if loader.loaded == nil {
			loader.loaded = map[string]Template{}
		}
		loader.loaded[name] = t
	}
	return t, nil
}

func (loader *DirLoader) parse(name string) (Template, error) {
	r, found := renderers[path.Ext(name)]
	if !found {
		return nil, errors.Errorf("no renderer for template [%s]", name)
	}

	source, err := fs.ReadFile(loader.FS, name)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading template [%s]", name)
	}

	if r.escaped {
		t, err := htmltemplate.New(name).Funcs(htmltemplate.FuncMap(loader.Funcs)).Parse(string(source))
		if err != nil {
			return nil, errors.Wrapf(err, "error parsing template [%s]", name)
		}
		return &template{executor: t}, nil
	}

	t, err := texttemplate.New(name).Funcs(texttemplate.FuncMap(loader.Funcs)).Parse(string(source))
	if err != nil {
		return nil, errors.Wrapf(err, "error parsing template [%s]", name)
	}
	return &template{executor: t}, nil
}
