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
	"io"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/michaelquigley/pfxlog"
	"github.com/openziti/foundation/v2/debugz"
	"github.com/openziti/xapp"
	"github.com/pkg/errors"
)

const (
	// NewAddressHeader carries the address clients should move to when a bind point declares a newAddress.
	NewAddressHeader = "x-xapp-new-address"

	rateLimitCleanupInterval = time.Minute
)

type namedHttpServer struct {
	*http.Server
	ApiBindingList  []string
	BindPointConfig *BindPointConfig
	ServerConfig    *ServerConfig
	InstanceConfig  *InstanceConfig
}

func (s *namedHttpServer) NewBaseContext(_ net.Listener) context.Context {
	serverContext := &ServerContext{
		BindPoint:    s.BindPointConfig,
		ServerConfig: s.ServerConfig,
		Config:       s.InstanceConfig,
	}

	return context.WithValue(context.Background(), ServerContextKey, serverContext)
}

// Server represents all the http.Server's and http.Handler's necessary to run a single ServerConfig
type Server struct {
	DefaultHttpHandlerProviderImpl
	HttpServers    []*namedHttpServer
	OnHandlerPanic func(writer http.ResponseWriter, request *http.Request, panicVal interface{})
	ServerConfig   *ServerConfig

	logWriter   *io.PipeWriter
	rateLimiter *RateLimiter
	listeners   []net.Listener
	done        chan struct{}
	lock        sync.Mutex
}

// NewServer creates a new Server from a ServerConfig. All necessary http.Handler's will be created from the supplied
// DemuxFactory and Registry.
func NewServer(instance Instance, serverConfig *ServerConfig) (*Server, error) {
	logWriter := pfxlog.Logger().Writer()

	server := &Server{
		logWriter:    logWriter,
		HttpServers:  []*namedHttpServer{},
		ServerConfig: serverConfig,
		done:         make(chan struct{}),
	}

	server.SetParent(instance)

	if serverConfig.Options.RateLimitOptions.Enabled() {
		server.rateLimiter = NewRateLimiter(serverConfig.Options.RateLimitOptions)
	}

	var handlers []ApiHandler
	var apiBindingList []string

	for _, api := range serverConfig.APIs {
		apiFactory := instance.GetRegistry().Get(api.Binding())
		if apiFactory == nil {
			return nil, errors.Errorf("encountered api binding [%s] which has no associated factory registered", api.Binding())
		}

		handler, err := apiFactory.New(serverConfig, api.Options())
		if err != nil {
			return nil, errors.Wrapf(err, "encountered error building handler for api binding [%s]", api.Binding())
		}

		handlers = append(handlers, handler)
		apiBindingList = append(apiBindingList, api.Binding())
	}

	demuxHandler, err := instance.GetDemuxFactory().Build(handlers)

	if err != nil {
		return nil, errors.Wrap(err, "error creating server")
	}

	demuxHandler.SetParent(server)

	for _, bindPoint := range serverConfig.BindPoints {
		namedServer := &namedHttpServer{
			ApiBindingList:  apiBindingList,
			ServerConfig:    serverConfig,
			BindPointConfig: bindPoint,
			InstanceConfig:  instance.GetConfig(),
			Server: &http.Server{
				Addr:         bindPoint.InterfaceAddress,
				WriteTimeout: serverConfig.Options.WriteTimeout,
				ReadTimeout:  serverConfig.Options.ReadTimeout,
				IdleTimeout:  serverConfig.Options.IdleTimeout,
				Handler:      server.wrapHandler(serverConfig, bindPoint, demuxHandler),
				ErrorLog:     log.New(logWriter, "", 0),
			},
		}

		namedServer.BaseContext = namedServer.NewBaseContext

		server.HttpServers = append(server.HttpServers, namedServer)
	}

	return server, nil
}

func (server *Server) wrapHandler(serverConfig *ServerConfig, point *BindPointConfig, handler http.Handler) http.Handler {
	//innermost/bottom -> outermost/top
	handler = server.wrapSetNewAddressHeader(serverConfig, point, handler)
	handler = server.wrapPanicRecovery(handler)
	if server.rateLimiter != nil {
		handler = server.rateLimiter.Handler(handler)
	}
	if serverConfig.Options.Compression {
		handler = NewCompressionHandler(handler)
	}
	return handler
}

// wrapPanicRecovery wraps a http.Handler with another http.Handler that provides recovery.
func (server *Server) wrapPanicRecovery(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		defer func() {
			if panicVal := recover(); panicVal != nil {
				if server.OnHandlerPanic != nil {
					server.OnHandlerPanic(writer, request, panicVal)
					return
				}
				pfxlog.Logger().Errorf("panic caught by server handler: %v\n%v", panicVal, debugz.GenerateLocalStack())

				if err := xapp.InternalServerError().ToResponse().Write(writer); err != nil {
					pfxlog.Logger().WithError(err).Debug("could not write panic response")
				}
			}
		}()

		handler.ServeHTTP(writer, request)
	})
}

// wrapSetNewAddressHeader will check to see if the bindPoint is configured to advertise a "new address". If so
// the value is added to the NewAddressHeader which will be sent out on every response. Clients can check this
// header to be notified that the server is or will be moving from one ip/hostname to another. Both addresses
// should stay valid until clients have moved.
func (server *Server) wrapSetNewAddressHeader(serverConfig *ServerConfig, point *BindPointConfig, handler http.Handler) http.Handler {
	if point.NewAddress == "" {
		return handler
	}

	scheme := "http://"
	if serverConfig.Identity != nil {
		scheme = "https://"
	}
	address := scheme + point.NewAddress

	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.Header().Set(NewAddressHeader, address)
		handler.ServeHTTP(writer, request)
	})
}

// Start listens on every bind point and serves each in its own goroutine. Listening errors are returned, closing
// any listener already opened.
func (server *Server) Start() error {
	logger := pfxlog.Logger()

	server.lock.Lock()
	defer server.lock.Unlock()

	if server.listeners != nil {
		return errors.Errorf("server %s already started", server.ServerConfig.Name)
	}

	tlsConfig := server.ServerConfig.TLSConfig()

	var listeners []net.Listener
	for _, httpServer := range server.HttpServers {
		listener, err := httpServer.BindPointConfig.Listener(server.ServerConfig.Name, tlsConfig)
		if err != nil {
			for _, opened := range listeners {
				_ = opened.Close()
			}
			return errors.Wrapf(err, "error listening on %s", httpServer.Addr)
		}
		listeners = append(listeners, listener)
	}
	server.listeners = listeners

	scheme := "http"
	if tlsConfig != nil {
		scheme = "https"
	}

	for i, httpServer := range server.HttpServers {
		listener := listeners[i]
		localServer := httpServer

		logger.Infof("serving %s on %s for server %s with APIs: %v", scheme, listener.Addr(), server.ServerConfig.Name, localServer.ApiBindingList)

		go func() {
			if err := localServer.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
				logger.Errorf("error serving %s for server %s: %v", listener.Addr(), server.ServerConfig.Name, err)
			}
		}()
	}

	if server.rateLimiter != nil {
		server.rateLimiter.StartCleanup(rateLimitCleanupInterval, server.done)
	}

	return nil
}

// Addresses returns the addresses the server is listening on, empty before Start.
func (server *Server) Addresses() []string {
	server.lock.Lock()
	defer server.lock.Unlock()

	var addresses []string
	for _, listener := range server.listeners {
		addresses = append(addresses, listener.Addr().String())
	}
	return addresses
}

// Shutdown stops the server and all underlying http.Server's
func (server *Server) Shutdown(ctx context.Context) {
	server.lock.Lock()
	defer server.lock.Unlock()

	select {
	case <-server.done:
		return
	default:
		close(server.done)
	}

	for _, httpServer := range server.HttpServers {
		if err := httpServer.Shutdown(ctx); err != nil {
			pfxlog.Logger().WithError(err).Warnf("error shutting down server %s on %s", server.ServerConfig.Name, httpServer.Addr)
		}
	}

	_ = server.logWriter.Close()
}
