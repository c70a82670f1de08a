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

/*
Package render turns templates and values into responses. Templates are chosen by extension: markup formats are
rendered with html/template, .txt with text/template.
*/
package render

import (
	"encoding/json"
	"io/fs"
	"os"

	"github.com/openziti/xapp"
	"github.com/pkg/errors"
)

const (
	MixinName = "render"

	SettingTemplates = "templates"
	DefaultTemplates = "templates"

	JSONMimetype = "application/json"

	loaderField = "render.loader"
)

// ContextHook contributes values to the context of every template rendered for a request.
type ContextHook func(env *xapp.Environment) map[string]interface{}

// Mixin renders templates from FS, or from the directory named by the templates setting when FS is nil. Templates are
// cached unless the application runs in debug mode.
type Mixin struct {
	xapp.MixinBase

	FS          fs.FS
	Funcs       map[string]interface{}
	ContextHook ContextHook
}

var _ xapp.Mixin = (*Mixin)(nil)

func (mixin *Mixin) Name() string {
	return MixinName
}

func (mixin *Mixin) Construct(app *xapp.Application) error {
	dir := app.Settings().SetDefault(SettingTemplates, DefaultTemplates)

	files := mixin.FS
	if files == nil {
		name, ok := dir.(string)
		if !ok {
			return errors.Errorf("setting [%s] must be a directory name, not %T", SettingTemplates, dir)
		}
		files = os.DirFS(name)
	}

	loader := &DirLoader{
		FS:    files,
		Cache: !app.Debug(),
		Funcs: mixin.Funcs,
	}

	_, err := app.Once(loaderField, func() (interface{}, error) {
		return &binding{loader: loader, hook: mixin.ContextHook}, nil
	})
	return err
}

type binding struct {
	loader Loader
	hook   ContextHook
}

func bindingFor(app *xapp.Application) (*binding, error) {
	value, err := app.Once(loaderField, func() (interface{}, error) {
		return nil, errors.Errorf("no template loader, is the [%s] mixin installed?", MixinName)
	})
	if err != nil {
		return nil, err
	}
	return value.(*binding), nil
}

// LoaderFor returns the template loader of app.
func LoaderFor(app *xapp.Application) (Loader, error) {
	b, err := bindingFor(app)
	if err != nil {
		return nil, err
	}
	return b.loader, nil
}

// Render renders the template name into a response whose mimetype follows the template extension. The context holds
// the request under "request", the values of the ContextHook and finally ctx.
func Render(env *xapp.Environment, name string, ctx map[string]interface{}) (*xapp.Response, error) {
	b, err := bindingFor(env.App())
	if err != nil {
		return nil, err
	}

	t, err := b.loader.Load(name)
	if err != nil {
		return nil, err
	}

	merged := map[string]interface{}{
		"request": env.Request(),
	}
	if b.hook != nil {
		for key, value := range b.hook(env) {
			merged[key] = value
		}
	}
	for key, value := range ctx {
		merged[key] = value
	}

	body, err := t.Render(merged)
	if err != nil {
		return nil, errors.Wrapf(err, "error rendering template [%s]", name)
	}

	mimetype, _ := Mimetype(name)
	return env.NewResponse(body, xapp.WithMimetype(mimetype)), nil
}

// JSON renders v as a JSON response.
func JSON(env *xapp.Environment, v interface{}) (*xapp.Response, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "error encoding json response")
	}
	return env.NewResponse(body, xapp.WithMimetype(JSONMimetype)), nil
}
