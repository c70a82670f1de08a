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

package serve

import "github.com/pkg/errors"

// ApiConfig names the binding of an API hosted by a server and the options its factory interprets.
type ApiConfig struct {
	binding string
	options map[string]interface{}
}

func (api *ApiConfig) Binding() string {
	return api.binding
}

func (api *ApiConfig) Options() map[string]interface{} {
	return api.options
}

func (api *ApiConfig) Parse(apiConfigMap map[string]interface{}) error {
	if bindingInterface, ok := apiConfigMap["binding"]; ok {
		if binding, ok := bindingInterface.(string); ok {
			api.binding = binding
		} else {
			return errors.New("binding must be a string")
		}
	} else {
		return errors.New("binding is required")
	}

	if optionsInterface, ok := apiConfigMap["options"]; ok {
		if optionsMap, ok := asMap(optionsInterface); ok {
			api.options = optionsMap //leave to bindings to interpret further
		} else {
			return errors.New("options if declared must be a map")
		}
	} //no else optional

	return nil
}

func (api *ApiConfig) Validate() error {
	if api.Binding() == "" {
		return errors.New("binding must be specified")
	}

	return nil
}

// asMap accepts the map types produced by YAML and JSON decoders.
func asMap(value interface{}) (map[string]interface{}, bool) {
	switch typed := value.(type) {
	case map[string]interface{}:
		return typed, true
	case map[interface{}]interface{}:
		result := make(map[string]interface{}, len(typed))
		for key, val := range typed {
			name, ok := key.(string)
			if !ok {
				return nil, false
			}
			result[name] = val
		}
		return result, true
	}
	return nil, false
}

// toInterfaceMap converts a configuration map, recursively, to the form the identity library parses.
func toInterfaceMap(value map[string]interface{}) map[interface{}]interface{} {
	result := make(map[interface{}]interface{}, len(value))
	for key, val := range value {
		if nested, ok := asMap(val); ok {
			result[key] = toInterfaceMap(nested)
		} else {
			result[key] = val
		}
	}
	return result
}
