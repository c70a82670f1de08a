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
	"sync"

	"github.com/michaelquigley/pfxlog"
	"github.com/pkg/errors"
)

var (
	ErrNoTransaction = errors.New("no transaction in progress")
	ErrDoomed        = errors.New("transaction is doomed")
)

// Coordinator is the contract the transaction Mixin drives.
type Coordinator interface {
	Begin() error
	Commit() error
	Abort() error
	IsDoomed() bool
}

// Joiner is implemented by coordinators that let resources such as store connections take part in the current
// transaction.
type Joiner interface {
	Join(resource Resource) error
}

// Resource takes part in a transaction. Commit is two-phase: Prepare is called on every joined resource before any
// Commit, and a failing Prepare aborts all of them.
type Resource interface {
	Prepare() error
	Commit() error
	Abort() error
}

// Manager is a Coordinator and Joiner for one unit of work at a time. It is safe for concurrent use, although a
// Manager normally serves a single request.
type Manager struct {
	lock      sync.Mutex
	active    bool
	doomed    bool
	resources []Resource
	hooks     []func(committed bool)
}

var _ Coordinator = (*Manager)(nil)
var _ Joiner = (*Manager)(nil)

// NewManager creates a Manager with no open transaction.
func NewManager() *Manager {
	return &Manager{}
}

// Begin opens a transaction. A transaction left open by a previous unit of work is aborted first.
func (manager *Manager) Begin() error {
	manager.lock.Lock()
	stale := manager.active
	manager.lock.Unlock()

	if stale {
		pfxlog.Logger().Warn("aborting stale transaction before beginning a new one")
		if err := manager.Abort(); err != nil {
			return errors.Wrap(err, "error aborting stale transaction")
		}
	}

	manager.lock.Lock()
	defer manager.lock.Unlock()
	manager.active = true
	manager.doomed = false
	manager.resources = nil
	manager.hooks = nil
	return nil
}

// Active reports whether a transaction is open.
func (manager *Manager) Active() bool {
	manager.lock.Lock()
	defer manager.lock.Unlock()
	return manager.active
}

// Join enlists resource in the open transaction.
func (manager *Manager) Join(resource Resource) error {
	manager.lock.Lock()
	defer manager.lock.Unlock()

	if !manager.active {
		return ErrNoTransaction
	}

	manager.resources = append(manager.resources, resource)
	return nil
}

// AfterCompletion registers hook to be called once the open transaction committed or aborted.
func (manager *Manager) AfterCompletion(hook func(committed bool)) error {
	manager.lock.Lock()
	defer manager.lock.Unlock()

	if !manager.active {
		return ErrNoTransaction
	}

	manager.hooks = append(manager.hooks, hook)
	return nil
}

// Doom marks the open transaction so that it can only be aborted.
func (manager *Manager) Doom() {
	manager.lock.Lock()
	defer manager.lock.Unlock()
	manager.doomed = true
}

func (manager *Manager) IsDoomed() bool {
	manager.lock.Lock()
	defer manager.lock.Unlock()
	return manager.doomed
}

// Commit prepares and then commits every joined resource. If preparing or committing fails, the resources not yet
// committed are aborted and the error is returned. A doomed transaction is not committed and ErrDoomed is returned;
// it stays open for Abort.
func (manager *Manager) Commit() error {
	manager.lock.Lock()
	if !manager.active {
		manager.lock.Unlock()
		return ErrNoTransaction
	}

	if manager.doomed {
		manager.lock.Unlock()
		return ErrDoomed
	}

	resources, hooks := manager.finish()
	manager.lock.Unlock()

	for i, resource := range resources {
		if err := resource.Prepare(); err != nil {
			abortAll(resources)
			runHooks(hooks, false)
			return errors.Wrapf(err, "error preparing resource [%d] for commit", i)
		}
	}

	for i, resource := range resources {
		if err := resource.Commit(); err != nil {
			abortAll(resources[i+1:])
			runHooks(hooks, false)
			return errors.Wrapf(err, "error committing resource [%d]", i)
		}
	}

	runHooks(hooks, true)
	return nil
}

// Abort rolls back every joined resource. All resources are aborted even if some fail; the first error is returned.
func (manager *Manager) Abort() error {
	manager.lock.Lock()
	if !manager.active {
		manager.lock.Unlock()
		return ErrNoTransaction
	}

	resources, hooks := manager.finish()
	manager.lock.Unlock()

	err := abortAll(resources)
	runHooks(hooks, false)
	return err
}

// finish closes the transaction and hands its resources and hooks to the caller. Must be called with the lock held.
func (manager *Manager) finish() ([]Resource, []func(bool)) {
	resources, hooks := manager.resources, manager.hooks
	manager.active = false
	manager.doomed = false
	manager.resources = nil
	manager.hooks = nil
	return resources, hooks
}

func abortAll(resources []Resource) error {
	var first error
	for i, resource := range resources {
		if err := resource.Abort(); err != nil {
			pfxlog.Logger().WithError(err).Errorf("error aborting resource [%d]", i)
			if first == nil {
				first = errors.Wrapf(err, "error aborting resource [%d]", i)
			}
		}
	}
	return first
}

func runHooks(hooks []func(bool), committed bool) {
	for _, hook := range hooks {
		hook(committed)
	}
}
