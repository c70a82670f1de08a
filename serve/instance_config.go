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

import (
	"errors"
	"fmt"
	"net"

	"github.com/michaelquigley/pfxlog"
	"github.com/openziti/identity"
)

// InstanceConfig holds the ServerConfig's of the configuration section Section and the optional default identity
// found in section DefaultIdentitySection.
type InstanceConfig struct {
	SourceConfig map[string]interface{}

	ServerConfigs []*ServerConfig
	Section       string

	DefaultIdentity        identity.Identity
	DefaultIdentitySection string

	defaultIdentityConfig *identity.Config

	enabled bool
}

func (config *InstanceConfig) Parse(configMap map[string]interface{}) error {
	config.SourceConfig = configMap

	if config.Section == "" {
		return errors.New("web section not specified for configuration")
	}

	if config.DefaultIdentity == nil && config.DefaultIdentitySection != "" {
		if identityInterface, ok := configMap[config.DefaultIdentitySection]; ok {
			if identityMap, ok := asMap(identityInterface); ok {
				if identityConfig, err := parseIdentityConfig(identityMap, config.DefaultIdentitySection); err == nil {
					config.defaultIdentityConfig = identityConfig
				} else {
					return fmt.Errorf("error parsing root identity section [%s] : %v", config.DefaultIdentitySection, err)
				}

			} else {
				return fmt.Errorf("root identity section [%s] must be a map", config.DefaultIdentitySection)
			}
		} //no else, the default identity is optional
	}

	sectionVal, ok := configMap[config.Section]
	if !ok {
		return fmt.Errorf("web section [%s] must be defined", config.Section)
	}

	sectionArrayVals, ok := sectionVal.([]interface{})
	if !ok {
		return fmt.Errorf("web section [%s] must be an array", config.Section)
	}

	for i, sectionArrayVal := range sectionArrayVals {
		if sectionMap, ok := asMap(sectionArrayVal); ok {
			serverConfig := &ServerConfig{
				DefaultIdentity: config.DefaultIdentity,
			}
			if err := serverConfig.Parse(sectionMap, config.Section); err != nil {
				return fmt.Errorf("error parsing web configuration [%s] at index [%d]: %v", config.Section, i, err)
			}

			config.ServerConfigs = append(config.ServerConfigs, serverConfig)
		} else {
			return fmt.Errorf("error parsing web configuration [%s] at index [%d]: not a map", config.Section, i)
		}
	}

	return nil
}

func (config *InstanceConfig) Validate(registry Registry) error {
	if config.DefaultIdentity == nil && config.defaultIdentityConfig != nil {
		if defaultIdentity, err := identity.LoadIdentity(*config.defaultIdentityConfig); err == nil {
			config.DefaultIdentity = defaultIdentity

			if err := config.DefaultIdentity.WatchFiles(); err != nil {
				pfxlog.Logger().Warnf("could not enable file watching on default identity: %v", err)
			}
		} else {
			return fmt.Errorf("could not load default identity: %v", err)
		}

		for _, serverConfig := range config.ServerConfigs {
			serverConfig.DefaultIdentity = config.DefaultIdentity
		}
	}

	if len(config.ServerConfigs) == 0 {
		return fmt.Errorf("no servers defined in web section [%s]", config.Section)
	}

	presentApis := map[string]ApiHandlerFactory{}

	var errs []error
	for i, serverConfig := range config.ServerConfigs {
		if err := serverConfig.Validate(registry); err != nil {
			return fmt.Errorf("could not validate server at %s[%d]: %v", config.Section, i, err)
		}

		for _, api := range serverConfig.APIs {
			presentApis[api.Binding()] = registry.Get(api.Binding())
		}

		if serverConfig.Identity == nil {
			continue
		}

		for _, bp := range serverConfig.BindPoints {
			host, _, err := net.SplitHostPort(bp.Address)
			if err != nil {
				errs = append(errs, err)
				continue
			}

			if ve := serverConfig.Identity.ValidFor(host); ve != nil {
				errs = append(errs, ve)
			}
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	for presentApiBinding, presentApiFactory := range presentApis {
		if err := presentApiFactory.Validate(config); err != nil {
			return fmt.Errorf("error validating ApiConfig binding %s: %v", presentApiBinding, err)
		}
	}

	config.enabled = true

	return nil
}

func (config *InstanceConfig) Enabled() bool {
	return config.enabled
}

func parseIdentityConfig(identityMap map[string]interface{}, pathContext string) (*identity.Config, error) {
	idConfig, err := identity.NewConfigFromMap(toInterfaceMap(identityMap))
	if err != nil {
		return nil, fmt.Errorf("error parsing identity: %v", err)
	}

	if err = idConfig.ValidateWithPathContext(pathContext); err != nil {
		return nil, fmt.Errorf("error parsing identity: %v", err)
	}

	return idConfig, nil
}
