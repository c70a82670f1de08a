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
Package xapp provides facilities to assemble web applications and their per-request environments from an ordered
list of independent Mixin values instead of a fixed base type.

Basics

An Application is created once per process by New from a set of Options. The Options name the Mixin list, the initial
Settings (a Bunch), the response defaults, the dispatch hook and a single Configure hook. Construction applies the
settings, runs every Mixin's Construct contribution in declared order and finally runs Configure. Configure is not
chained: it is the place for a final application to set itself up unconditionally.

Every incoming request is handled by Application.Handle (or ServeHTTP). Handle borrows a Local, the per-request scoped
storage, resets it with the request and builds a fresh Environment. The Environment runs each Mixin's Create and Enter
hooks in declared order, invokes the dispatch hook and then runs the Exit hooks in reverse order of the mixins that
entered.

Errors

Dispatch may return an *HTTPError. The Application converts it to a Response through its ErrorResponse hook and the
Exit hooks see no fault for it. Any other error, including a recovered panic wrapped in *PanicError, is a fault: every
Exit hook sees it, any Exit hook may suppress it and, when none does, Handle returns it after all Exit hooks ran. An
error returned by an Exit hook replaces the fault seen by the hooks after it and cancels earlier suppression.

Mixins for transactions, object storage, routing, rendering, sessions and metrics live in the sub-packages of this
module; the fullstack package wires all of them together in a fixed order.
*/
package xapp
