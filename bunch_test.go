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
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBunch(t *testing.T) {

	t.Run("method and index access are the same storage", func(t *testing.T) {
		bunch := NewBunch(map[string]interface{}{"answer": 42})
		req := require.New(t)

		value, ok := bunch.Get("answer")
		req.True(ok)
		req.Equal(42, value)
		req.Equal(bunch["answer"], value)

		bunch.Set("answer", 43)
		req.Equal(43, bunch["answer"])

		bunch["answer"] = 44
		value, _ = bunch.Get("answer")
		req.Equal(44, value)
	})

	t.Run("deleting through the method removes both forms of presence", func(t *testing.T) {
		bunch := NewBunch(map[string]interface{}{"answer": 42})
		bunch.Delete("answer")

		_, indexed := bunch["answer"]
		req := require.New(t)
		req.False(indexed)
		req.False(bunch.Has("answer"))
	})

	t.Run("deleting through the builtin removes both forms of presence", func(t *testing.T) {
		bunch := NewBunch(map[string]interface{}{"answer": 42})
		delete(bunch, "answer")

		_, found := bunch.Get("answer")
		req := require.New(t)
		req.False(found)
		req.False(bunch.Has("answer"))
	})

	t.Run("a nil value is still present", func(t *testing.T) {
		bunch := Bunch{"nothing": nil}

		_, indexed := bunch["nothing"]
		req := require.New(t)
		req.True(indexed)
		req.True(bunch.Has("nothing"))
	})

	t.Run("defaults do not override existing values", func(t *testing.T) {
		bunch := Bunch{"debug": true}
		req := require.New(t)

		req.Equal(true, bunch.SetDefault("debug", false))
		req.Equal("memory", bunch.SetDefault("storage", "memory"))
		req.Equal("memory", bunch["storage"])
	})

	t.Run("NewBunch copies its input", func(t *testing.T) {
		source := map[string]interface{}{"a": 1}
		bunch := NewBunch(source)
		bunch.Set("b", 2)

		req := require.New(t)
		req.Len(source, 1)
		req.Len(bunch.Copy(), 2)
	})

	t.Run("typed getters convert common encodings", func(t *testing.T) {
		bunch := Bunch{
			"flag":     "true",
			"size":     float64(8),
			"count":    "3",
			"timeout":  "1m",
			"name":     "relvlast",
			"notbool":  "maybe",
			"duration": 5 * time.Second,
		}
		req := require.New(t)

		req.True(bunch.GetBool("flag", false))
		req.True(bunch.GetBool("notbool", true))
		req.Equal(8, bunch.GetInt("size", 0))
		req.Equal(3, bunch.GetInt("count", 0))
		req.Equal(7, bunch.GetInt("missing", 7))
		req.Equal(time.Minute, bunch.GetDuration("timeout", 0))
		req.Equal(5*time.Second, bunch.GetDuration("duration", 0))
		req.Equal("relvlast", bunch.GetString("name", ""))
		req.Equal("x", bunch.GetString("size", "x"))
	})

	t.Run("Sub returns nested maps as a Bunch", func(t *testing.T) {
		bunch := Bunch{
			"store":  map[string]interface{}{"dsn": "postgres://"},
			"legacy": map[interface{}]interface{}{"size": 2},
			"scalar": 1,
		}
		req := require.New(t)

		req.Equal("postgres://", bunch.Sub("store").GetString("dsn", ""))
		req.Equal(2, bunch.Sub("legacy").GetInt("size", 0))
		req.Nil(bunch.Sub("scalar"))
	})
}
