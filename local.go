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
	"net/http"
	"sort"
)

// Local is per-request scoped storage: the bound request plus a cache of lazily computed fields. A Local belongs to
// exactly one in-flight request at a time and is not safe for concurrent use.
type Local struct {
	request *http.Request
	fields  map[string]interface{}
}

// NewLocal creates an empty Local bound to no request.
func NewLocal() *Local {
	return &Local{
		fields: map[string]interface{}{},
	}
}

// Reset clears every cached field and binds request.
func (local *Local) Reset(request *http.Request) {
	local.fields = map[string]interface{}{}
	local.request = request
}

// Release clears the Local so nothing from the finished request is retained while it waits for reuse.
func (local *Local) Release() {
	local.fields = map[string]interface{}{}
	local.request = nil
}

// Request returns the bound request.
func (local *Local) Request() *http.Request {
	return local.request
}

// Lookup returns the cached value of field, if it has been computed since the last Reset.
func (local *Local) Lookup(field string) (interface{}, bool) {
	value, ok := local.fields[field]
	return value, ok
}

// Set caches value for field until the next Reset.
func (local *Local) Set(field string, value interface{}) {
	if local.fields == nil {
		local.fields = map[string]interface{}{}
	}
	local.fields[field] = value
}

// GetOrCompute returns the cached value of field or calls compute, caches and returns its result. compute runs at most
// once per field between two Resets; a failed computation is not cached.
func (local *Local) GetOrCompute(field string, compute func() (interface{}, error)) (interface{}, error) {
	if value, ok := local.fields[field]; ok {
		return value, nil
	}

	value, err := compute()
	if err != nil {
		return nil, err
	}

	local.Set(field, value)
	return value, nil
}

// Fields returns the names of the cached fields in sorted order.
func (local *Local) Fields() []string {
	var names []string
	for name := range local.fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
