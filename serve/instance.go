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
	"context"
	"sync"

	"github.com/michaelquigley/pfxlog"
	"github.com/openziti/identity"
	"github.com/pkg/errors"
)

// Instance builds and runs the Servers described by an InstanceConfig.
type Instance interface {
	DefaultHttpHandlerProvider
	Enabled() bool
	LoadConfig(cfgmap map[string]interface{}) error
	Run() error
	Shutdown(ctx context.Context)
	GetRegistry() Registry
	GetDemuxFactory() DemuxFactory
	GetConfig() *InstanceConfig
}

const (
	DefaultIdentitySection = "identity"
	DefaultConfigSection   = "web"
)

// InstanceImpl is a basic implementation of Instance.
type InstanceImpl struct {
	DefaultHttpHandlerProviderImpl
	Config       *InstanceConfig
	Registry     Registry
	DemuxFactory DemuxFactory

	servers []*Server
}

var _ Instance = &InstanceImpl{}

// NewDefaultInstance creates an InstanceImpl reading the "web" section and routing by path prefix. defaultIdentity
// may be nil, in which case the "identity" section, if present, supplies it.
func NewDefaultInstance(registry Registry, defaultIdentity identity.Identity) *InstanceImpl {
	return &InstanceImpl{
		Registry:     registry,
		DemuxFactory: &PathPrefixDemuxFactory{},
		Config: &InstanceConfig{
			DefaultIdentitySection: DefaultIdentitySection,
			DefaultIdentity:        defaultIdentity,
			Section:                DefaultConfigSection,
		},
	}
}

// GetRegistry returns the associated Registry
func (i *InstanceImpl) GetRegistry() Registry {
	return i.Registry
}

// GetDemuxFactory returns the associated DemuxFactory
func (i *InstanceImpl) GetDemuxFactory() DemuxFactory {
	return i.DemuxFactory
}

// GetConfig returns the associated InstanceConfig
func (i *InstanceImpl) GetConfig() *InstanceConfig {
	return i.Config
}

// Enabled returns true once a configuration has been loaded and validated
func (i *InstanceImpl) Enabled() bool {
	return i.Config.Enabled()
}

// LoadConfig parses and validates the configuration sections of cfgmap
func (i *InstanceImpl) LoadConfig(cfgmap map[string]interface{}) error {
	if err := i.Config.Parse(cfgmap); err != nil {
		return err
	}

	//validate sets enabled flag to true on success
	return i.Config.Validate(i.Registry)
}

// Build assembles all the components from configuration and prepares to have Start() called.
func (i *InstanceImpl) Build() error {
	for _, serverConfig := range i.Config.ServerConfigs {
		server, err := NewServer(i, serverConfig)

		if err != nil {
			return errors.Wrapf(err, "error building server %s", serverConfig.Name)
		}

		i.servers = append(i.servers, server)
	}

	return nil
}

// Start calls Start() on all Servers that were built by calling Build(). On error the servers already started
// are shut down.
func (i *InstanceImpl) Start() error {
	for idx, server := range i.servers {
		if err := server.Start(); err != nil {
			for _, started := range i.servers[:idx] {
				started.Shutdown(context.Background())
			}
			return errors.Wrapf(err, "error starting server %s", server.ServerConfig.Name)
		}
	}

	return nil
}

// Run builds and starts the necessary Servers
func (i *InstanceImpl) Run() error {
	if err := i.Build(); err != nil {
		return err
	}
	return i.Start()
}

// Servers returns the Servers built by Build().
func (i *InstanceImpl) Servers() []*Server {
	return i.servers
}

// Shutdown stops all running Servers, waiting for in-flight requests until ctx is done
func (i *InstanceImpl) Shutdown(ctx context.Context) {
	waitGroup := sync.WaitGroup{}
	for _, server := range i.servers {
		localServer := server
		waitGroup.Add(1)
		go func() {
			defer waitGroup.Done()
			localServer.Shutdown(ctx)
		}()
	}
	waitGroup.Wait()

	pfxlog.Logger().Infof("shut down %d server(s)", len(i.servers))
}
