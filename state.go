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

// State is the position of an Environment in its request lifecycle.
type State int

const (
	Unbound State = iota
	Bound
	Entered
	Dispatched
	Errored
	Exited
)

var ErrInvalidTransition = errors.New("invalid environment state transition")

// transitions lists the legal successors of each State. Bound may go straight to Exited when an Enter hook fails.
// Exited is terminal.
var transitions = map[State][]State{
	Unbound:    {Bound},
	Bound:      {Entered, Exited},
	Entered:    {Dispatched, Errored},
	Dispatched: {Exited},
	Errored:    {Exited},
}

func (state State) String() string {
	switch state {
	case Unbound:
		return "unbound"
	case Bound:
		return "bound"
	case Entered:
		return "entered"
	case Dispatched:
		return "dispatched"
	case Errored:
		return "errored"
	case Exited:
		return "exited"
	}
	return "unknown"
}

// CanTransition reports whether next is a legal successor of state.
func (state State) CanTransition(next State) bool {
	for _, candidate := range transitions[state] {
		if candidate == next {
			return true
		}
	}
	return false
}
