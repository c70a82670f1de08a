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
Package serve stands up http.Server's from configuration and hosts xapp Applications and other ApiHandler's on them.

Basics

An Instance parses a configuration section (default `web`) holding an array of ServerConfig. Each ServerConfig
listens on one or more interface/port combinations, its BindPointConfig's, and hosts one or more APIs, its
ApiConfig's. Every ApiConfig names a binding that is looked up in a Registry of ApiHandlerFactory's; the factory
turns the options of the ApiConfig into an ApiHandler. Two bindings are provided: "app", serving an
*xapp.Application, and "metrics", exposing a Prometheus registry.

A ServerConfig hosting several APIs forwards each request to one of them through the handler of a DemuxFactory.
PathPrefixDemuxFactory selects the ApiHandler with the longest matching root path and falls back to the default
ApiHandler.

Every Server wraps its demux handler with panic recovery, optional rate limiting and optional brotli compression.
When an identity is configured, for the server or as the instance default, the bind points serve TLS using the
certificates of that identity; otherwise they serve plain HTTP.

Configuration

	web:
	  - name: main
	    bindPoints:
	      - interface: 0.0.0.0:8080
	        address: localhost:8080
	    apis:
	      - binding: app
	      - binding: metrics
	        options:
	          rootPath: /metrics
	    options:
	      readTimeout: 5s
	      compression: true
	      rateLimit:
	        requestsPerSecond: 50
	        burst: 100
*/
package serve
