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

import "context"

type ContextKey string

const (
	HandlerContextKey = ContextKey("serve.ApiHandler.ContextKey")
	ServerContextKey  = ContextKey("serve.Server.ContextKey")
)

// ServerContext is attached to the context of every request a Server accepts.
type ServerContext struct {
	BindPoint    *BindPointConfig
	ServerConfig *ServerConfig
	Config       *InstanceConfig
}

// HandlerFromRequestContext retrieves the ApiHandler the demux handler selected for a request, or nil.
func HandlerFromRequestContext(ctx context.Context) ApiHandler {
	if handler, ok := ctx.Value(HandlerContextKey).(ApiHandler); ok {
		return handler
	}
	return nil
}

// ServerContextFromRequestContext retrieves the *ServerContext of the Server that accepted a request, or nil.
func ServerContextFromRequestContext(ctx context.Context) *ServerContext {
	if serverContext, ok := ctx.Value(ServerContextKey).(*ServerContext); ok {
		return serverContext
	}
	return nil
}

func withHandler(ctx context.Context, handler ApiHandler) context.Context {
	return context.WithValue(ctx, HandlerContextKey, handler)
}
