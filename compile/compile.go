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

// Package compile serves files that are produced from their sources on request, such as stylesheets from templates.
package compile

import (
	"bytes"
	"io/fs"
	"path"
	"strings"
	"text/template"

	"github.com/openziti/xapp"
	"github.com/openziti/xapp/routing"
	"github.com/pkg/errors"
)

const (
	MixinName = "compile"

	// Endpoint is the routing endpoint of compiled files. Its path argument is "name".
	Endpoint = "compiled"
	Path     = "/compiled/{name:.+}"
)

// Compiler produces the file name, e.g. "site.css", as a response.
type Compiler func(env *xapp.Environment, name string) (*xapp.Response, error)

// Mixin adds the rule Path for Endpoint to the router of the application and answers it with the compiler registered
// for the extension of the requested name. Names without a compiler are not found. Requests reach it through the
// routing mixin.
type Mixin struct {
	xapp.MixinBase

	// Compilers by output extension including the leading dot, e.g. ".css" or ".min.js".
	Compilers map[string]Compiler
}

var _ xapp.Mixin = (*Mixin)(nil)

func (mixin *Mixin) Name() string {
	return MixinName
}

func (mixin *Mixin) Construct(app *xapp.Application) error {
	for ext, compiler := range mixin.Compilers {
		if !strings.HasPrefix(ext, ".") {
			return errors.Errorf("compiler extension [%s] must start with a dot", ext)
		}
		if compiler == nil {
			return errors.Errorf("nil compiler for extension [%s]", ext)
		}
	}

	return routing.Register(app, routing.Rule{Path: Path, Endpoint: Endpoint}, mixin.compiled)
}

func (mixin *Mixin) compiled(env *xapp.Environment, args map[string]string) (*xapp.Response, error) {
	name := args["name"]
	if !fs.ValidPath(name) {
		return nil, xapp.NotFound()
	}

	compiler, found := mixin.Compilers[Extension(name)]
	if !found {
		return nil, xapp.NotFound()
	}

	if env.App().Debug() {
		env.Log().Debugf("compiling [%s]", name)
	}
	return compiler(env, name)
}

// Extension returns the part of the base of name starting at its first dot, so "css/site.min.css" has the extension
// ".min.css". It is empty if the base has no dot.
func Extension(name string) string {
	base := path.Base(name)
	if i := strings.Index(base, "."); i >= 0 {
		return base[i:]
	}
	return ""
}

// Transform turns the content of a source file into the compiled output.
type Transform func(env *xapp.Environment, source []byte) ([]byte, error)

// Source compiles name from the file name+sourceExt of fsys with transform. Missing sources are not found.
func Source(fsys fs.FS, sourceExt, mimetype string, transform Transform) Compiler {
	return func(env *xapp.Environment, name string) (*xapp.Response, error) {
		source, err := fs.ReadFile(fsys, name+sourceExt)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, xapp.NotFound()
			}
			return nil, errors.Wrapf(err, "could not read source of [%s]", name)
		}

		output, err := transform(env, source)
		if err != nil {
			return nil, errors.Wrapf(err, "could not compile [%s]", name)
		}
		return env.NewResponse(output, xapp.WithMimetype(mimetype)), nil
	}
}

// Template compiles name by executing name+".tmpl" from fsys as a text/template with the application settings as data.
func Template(fsys fs.FS, mimetype string) Compiler {
	return Source(fsys, ".tmpl", mimetype, func(env *xapp.Environment, source []byte) ([]byte, error) {
		tmpl, err := template.New("compiled").Option("missingkey=error").Parse(string(source))
		if err != nil {
			return nil, err
		}

		buf := &bytes.Buffer{}
		if err := tmpl.Execute(buf, map[string]interface{}(env.App().Settings())); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	})
}
