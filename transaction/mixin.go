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

package transaction

import (
	"github.com/openziti/xapp"
	"github.com/pkg/errors"
)

const (
	MixinName    = "transaction"
	managerField = "transaction.manager"
)

// Mixin binds a Coordinator to the environment lifecycle: Begin on enter; on exit Abort if a fault is in flight or the
// transaction is doomed and Commit otherwise. Declare it after the mixins whose resources must still be open when the
// transaction finishes, such as the store mixin, and before the mixins that may doom it.
type Mixin struct {
	xapp.MixinBase

	// NewManager creates the coordinator of one request. Defaults to NewManager.
	NewManager func() Coordinator
}

var _ xapp.Mixin = (*Mixin)(nil)

func (mixin *Mixin) Name() string {
	return MixinName
}

func (mixin *Mixin) Construct(app *xapp.Application) error {
	if mixin.NewManager == nil {
		mixin.NewManager = func() Coordinator {
			return NewManager()
		}
	}
	return nil
}

// Create gives the environment its own coordinator.
func (mixin *Mixin) Create(env *xapp.Environment) error {
	env.Local().Set(managerField, mixin.NewManager())
	return nil
}

func (mixin *Mixin) Enter(env *xapp.Environment) error {
	manager, err := ManagerFor(env)
	if err != nil {
		return err
	}

	if env.App().Debug() {
		env.Log().Debug("beginning transaction")
	}
	return manager.Begin()
}

// Exit finishes the transaction. Errors from Commit or Abort are returned and so replace any fault in flight.
func (mixin *Mixin) Exit(env *xapp.Environment, fault error) (bool, error) {
	manager, err := ManagerFor(env)
	if err != nil {
		return false, err
	}

	if fault != nil {
		if env.App().Debug() {
			env.Log().Debugf("aborting transaction because of fault: %v", fault)
		}
		return false, manager.Abort()
	}

	if manager.IsDoomed() {
		if env.App().Debug() {
			env.Log().Debug("aborting doomed transaction")
		}
		return false, manager.Abort()
	}

	if env.App().Debug() {
		env.Log().Debug("committing transaction")
	}
	return false, manager.Commit()
}

// ManagerFor returns the coordinator of the environment's request.
func ManagerFor(env *xapp.Environment) (Coordinator, error) {
	if value, ok := env.Local().Lookup(managerField); ok {
		if manager, ok := value.(Coordinator); ok {
			return manager, nil
		}
	}
	return nil, errors.Errorf("no transaction manager bound to request, is the [%s] mixin installed?", MixinName)
}

// Doom marks the transaction of the request so that it is aborted instead of committed.
func Doom(env *xapp.Environment) error {
	manager, err := ManagerFor(env)
	if err != nil {
		return err
	}

	if doomable, ok := manager.(interface{ Doom() }); ok {
		doomable.Doom()
		return nil
	}
	return errors.Errorf("transaction manager %T cannot be doomed", manager)
}
