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
	"strconv"
	"time"
)

const (
	SettingDebug = "debug"
)

// Bunch is a mutable key/value bag used for settings and for communication between mixins. Method access and index
// access use the same storage: b.Set("answer", 42) and b["answer"] = 42 are the same operation, and b.Delete(key)
// and delete(b, key) both remove the key entirely.
type Bunch map[string]interface{}

// NewBunch creates a Bunch holding a shallow copy of values.
func NewBunch(values map[string]interface{}) Bunch {
	bunch := Bunch{}
	bunch.Update(values)
	return bunch
}

// Get returns the value stored for key and whether it is present.
func (bunch Bunch) Get(key string) (interface{}, bool) {
	value, ok := bunch[key]
	return value, ok
}

// Set stores value under key.
func (bunch Bunch) Set(key string, value interface{}) {
	bunch[key] = value
}

// SetDefault stores value under key unless key is already present. The value in effect is returned.
func (bunch Bunch) SetDefault(key string, value interface{}) interface{} {
	if existing, ok := bunch[key]; ok {
		return existing
	}
	bunch[key] = value
	return value
}

// Delete removes key.
func (bunch Bunch) Delete(key string) {
	delete(bunch, key)
}

// Has reports whether key is present, even when it holds nil.
func (bunch Bunch) Has(key string) bool {
	_, ok := bunch[key]
	return ok
}

// Update overrides the values of bunch with those of other.
func (bunch Bunch) Update(other map[string]interface{}) {
	for key, value := range other {
		bunch[key] = value
	}
}

// Copy returns a shallow copy.
func (bunch Bunch) Copy() Bunch {
	return NewBunch(bunch)
}

// Sub returns the nested map stored at key as a Bunch, or nil if key does not hold a map.
func (bunch Bunch) Sub(key string) Bunch {
	switch sub := bunch[key].(type) {
	case Bunch:
		return sub
	case map[string]interface{}:
		return Bunch(sub)
	case map[interface{}]interface{}:
		result := Bunch{}
		for k, v := range sub {
			if name, ok := k.(string); ok {
				result[name] = v
			}
		}
		return result
	}
	return nil
}

// GetString returns the string stored at key or def if absent or not a string.
func (bunch Bunch) GetString(key, def string) string {
	if value, ok := bunch[key].(string); ok {
		return value
	}
	return def
}

// GetBool returns the boolean stored at key. Strings are parsed with strconv.ParseBool.
func (bunch Bunch) GetBool(key string, def bool) bool {
	switch value := bunch[key].(type) {
	case bool:
		return value
	case string:
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return def
}

// GetInt returns the integer stored at key. Values decoded from YAML or JSON as float64 or int64 and numeric strings
// are accepted.
func (bunch Bunch) GetInt(key string, def int) int {
	switch value := bunch[key].(type) {
	case int:
		return value
	case int64:
		return int(value)
	case float64:
		return int(value)
	case string:
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return def
}

// GetDuration returns the duration stored at key. Strings are parsed with time.ParseDuration (e.g. 1m).
func (bunch Bunch) GetDuration(key string, def time.Duration) time.Duration {
	switch value := bunch[key].(type) {
	case time.Duration:
		return value
	case string:
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return def
}
