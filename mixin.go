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
	"github.com/pkg/errors"
)

// Mixin is one independently authored unit of behavior in an Application composition. The Application iterates its
// mixins forward for Construct, Create and Enter and in reverse for Exit. A Mixin must not assume any other Mixin ran
// before or after it except through the declared order.
type Mixin interface {
	// Name uniquely identifies the mixin within one composition.
	Name() string

	// Construct contributes to Application construction, e.g. default settings or route registration. It runs exactly
	// once per Application.
	Construct(app *Application) error

	// Create contributes to the construction of every Environment.
	Create(env *Environment) error

	// Enter is called after the Environment has been bound to a request and before dispatch.
	Enter(env *Environment) error

	// Exit is called after dispatch with the fault in flight, nil if there is none. Returning true suppresses that
	// fault; returning an error replaces it.
	Exit(env *Environment, fault error) (bool, error)
}

// MixinBase provides no-op hooks so mixins only implement the hooks they need.
type MixinBase struct{}

func (MixinBase) Construct(*Application) error {
	return nil
}

func (MixinBase) Create(*Environment) error {
	return nil
}

func (MixinBase) Enter(*Environment) error {
	return nil
}

func (MixinBase) Exit(*Environment, error) (bool, error) {
	return false, nil
}

// ConfigureFunc is the final, unchained configuration hook of an Application.
type ConfigureFunc func(app *Application) error

func validateMixins(mixins []Mixin) error {
	seen := map[string]int{}
	for i, mixin := range mixins {
		if mixin == nil {
			return errors.Errorf("nil mixin at index [%d]", i)
		}

		name := mixin.Name()
		if name == "" {
			return errors.Errorf("mixin at index [%d] has no name", i)
		}

		if existing, ok := seen[name]; ok {
			return errors.Errorf("duplicate mixin [%s] detected at indexes [%d] and [%d]", name, existing, i)
		}
		seen[name] = i
	}
	return nil
}

// construct runs the construction chain. Construction is all or nothing: the first failure aborts it.
func construct(app *Application) error {
	for _, mixin := range app.mixins {
		if app.Debug() {
			app.log.Debugf("constructing mixin [%s]", mixin.Name())
		}

		if err := mixin.Construct(app); err != nil {
			return errors.Wrapf(err, "error constructing mixin [%s]", mixin.Name())
		}
	}
	return nil
}
