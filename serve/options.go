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
	"crypto/tls"
	"fmt"
	"time"

	"github.com/pkg/errors"
)

const (
	MinTLSVersion = tls.VersionTLS12
	MaxTLSVersion = tls.VersionTLS13

	DefaultHttpWriteTimeout = time.Second * 10
	DefaultHttpReadTimeout  = time.Second * 5
	DefaultHttpIdleTimeout  = time.Second * 5
)

var TlsVersionMap = map[string]int{
	"TLS1.0": tls.VersionTLS10,
	"TLS1.1": tls.VersionTLS11,
	"TLS1.2": tls.VersionTLS12,
	"TLS1.3": tls.VersionTLS13,
}

var ReverseTlsVersionMap = map[int]string{
	tls.VersionTLS10: "TLS1.0",
	tls.VersionTLS11: "TLS1.1",
	tls.VersionTLS12: "TLS1.2",
	tls.VersionTLS13: "TLS1.3",
}

// ServerConfigOptions are the options section of a ServerConfig.
type ServerConfigOptions struct {
	TimeoutOptions
	TlsVersionOptions
	RateLimitOptions

	// Compression enables brotli compression for clients accepting it.
	Compression bool
}

func (options *ServerConfigOptions) Default() {
	options.TimeoutOptions.Default()
	options.TlsVersionOptions.Default()
	options.RateLimitOptions = RateLimitOptions{}
	options.Compression = false
}

func (options *ServerConfigOptions) Parse(optionsMap map[string]interface{}) error {
	if err := options.TimeoutOptions.Parse(optionsMap); err != nil {
		return fmt.Errorf("error parsing options: %v", err)
	}

	if err := options.TlsVersionOptions.Parse(optionsMap); err != nil {
		return fmt.Errorf("error parsing options: %v", err)
	}

	if rateLimitInterface, ok := optionsMap["rateLimit"]; ok {
		if rateLimitMap, ok := asMap(rateLimitInterface); ok {
			if err := options.RateLimitOptions.Parse(rateLimitMap); err != nil {
				return fmt.Errorf("error parsing rateLimit options: %v", err)
			}
		} else {
			return errors.New("rateLimit must be a map if defined")
		}
	}

	if compressionInterface, ok := optionsMap["compression"]; ok {
		if compression, ok := compressionInterface.(bool); ok {
			options.Compression = compression
		} else {
			return errors.New("could not use value for compression, not a boolean")
		}
	}

	return nil
}

func (options *ServerConfigOptions) Validate() error {
	if err := options.TlsVersionOptions.Validate(); err != nil {
		return fmt.Errorf("invalid TLS version option: %v", err)
	}

	if err := options.TimeoutOptions.Validate(); err != nil {
		return fmt.Errorf("invalid timeout option: %v", err)
	}

	if err := options.RateLimitOptions.Validate(); err != nil {
		return fmt.Errorf("invalid rate limit option: %v", err)
	}

	return nil
}

type TimeoutOptions struct {
	ReadTimeout  time.Duration
	IdleTimeout  time.Duration
	WriteTimeout time.Duration
}

func (timeoutOptions *TimeoutOptions) Default() {
	timeoutOptions.WriteTimeout = DefaultHttpWriteTimeout
	timeoutOptions.ReadTimeout = DefaultHttpReadTimeout
	timeoutOptions.IdleTimeout = DefaultHttpIdleTimeout
}

func (timeoutOptions *TimeoutOptions) Parse(config map[string]interface{}) error {
	for name, target := range map[string]*time.Duration{
		"readTimeout":  &timeoutOptions.ReadTimeout,
		"idleTimeout":  &timeoutOptions.IdleTimeout,
		"writeTimeout": &timeoutOptions.WriteTimeout,
	} {
		if interfaceVal, ok := config[name]; ok {
			durationStr, ok := interfaceVal.(string)
			if !ok {
				return fmt.Errorf("could not use value for %s, not a string", name)
			}

			duration, err := time.ParseDuration(durationStr)
			if err != nil {
				return fmt.Errorf("could not parse %s %s as a duration (e.g. 1m): %v", name, durationStr, err)
			}
			*target = duration
		}
	}

	return nil
}

func (timeoutOptions *TimeoutOptions) Validate() error {
	if timeoutOptions.WriteTimeout <= 0 {
		return fmt.Errorf("value [%s] for writeTimeout too low, must be positive", timeoutOptions.WriteTimeout.String())
	}

	if timeoutOptions.ReadTimeout <= 0 {
		return fmt.Errorf("value [%s] for readTimeout too low, must be positive", timeoutOptions.ReadTimeout.String())
	}

	if timeoutOptions.IdleTimeout <= 0 {
		return fmt.Errorf("value [%s] for idleTimeout too low, must be positive", timeoutOptions.IdleTimeout.String())
	}

	return nil
}

type TlsVersionOptions struct {
	MinTLSVersion    int
	minTLSVersionStr string

	MaxTLSVersion    int
	maxTLSVersionStr string
}

func (tlsVersionOptions *TlsVersionOptions) Default() {
	tlsVersionOptions.MinTLSVersion = MinTLSVersion
	tlsVersionOptions.minTLSVersionStr = ReverseTlsVersionMap[MinTLSVersion]
	tlsVersionOptions.MaxTLSVersion = MaxTLSVersion
	tlsVersionOptions.maxTLSVersionStr = ReverseTlsVersionMap[MaxTLSVersion]
}

func (tlsVersionOptions *TlsVersionOptions) Parse(config map[string]interface{}) error {
	if interfaceVal, ok := config["minTLSVersion"]; ok {
		var ok bool
		if tlsVersionOptions.minTLSVersionStr, ok = interfaceVal.(string); ok {
			if minTLSVersion, ok := TlsVersionMap[tlsVersionOptions.minTLSVersionStr]; ok {
				tlsVersionOptions.MinTLSVersion = minTLSVersion
			} else {
				return fmt.Errorf("could not use value for minTLSVersion, invalid value [%s]", tlsVersionOptions.minTLSVersionStr)
			}
		} else {
			return errors.New("could not use value for minTLSVersion, not an string")
		}
	}

	if interfaceVal, ok := config["maxTLSVersion"]; ok {
		var ok bool
		if tlsVersionOptions.maxTLSVersionStr, ok = interfaceVal.(string); ok {
			if maxTLSVersion, ok := TlsVersionMap[tlsVersionOptions.maxTLSVersionStr]; ok {
				tlsVersionOptions.MaxTLSVersion = maxTLSVersion
			} else {
				return fmt.Errorf("could not use value for maxTLSVersion, invalid value [%s]", tlsVersionOptions.maxTLSVersionStr)
			}
		} else {
			return errors.New("could not use value for maxTLSVersion, not an string")
		}
	}

	return nil
}

func (tlsVersionOptions *TlsVersionOptions) Validate() error {
	if tlsVersionOptions.MinTLSVersion > tlsVersionOptions.MaxTLSVersion {
		return fmt.Errorf("minTLSVersion [%s] must be less than or equal to maxTLSVersion [%s]", tlsVersionOptions.minTLSVersionStr, tlsVersionOptions.maxTLSVersionStr)
	}

	return nil
}

// RateLimitOptions limit the requests each client address may make. A zero RequestsPerSecond disables limiting.
type RateLimitOptions struct {
	RequestsPerSecond float64
	Burst             int
}

func (rateLimitOptions *RateLimitOptions) Enabled() bool {
	return rateLimitOptions.RequestsPerSecond > 0
}

func (rateLimitOptions *RateLimitOptions) Parse(config map[string]interface{}) error {
	if interfaceVal, ok := config["requestsPerSecond"]; ok {
		switch value := interfaceVal.(type) {
		case int:
			rateLimitOptions.RequestsPerSecond = float64(value)
		case float64:
			rateLimitOptions.RequestsPerSecond = value
		default:
			return errors.New("could not use value for requestsPerSecond, not a number")
		}
	}

	if interfaceVal, ok := config["burst"]; ok {
		if burst, ok := interfaceVal.(int); ok {
			rateLimitOptions.Burst = burst
		} else {
			return errors.New("could not use value for burst, not an integer")
		}
	}

	if rateLimitOptions.Enabled() && rateLimitOptions.Burst == 0 {
		rateLimitOptions.Burst = int(rateLimitOptions.RequestsPerSecond)
		if rateLimitOptions.Burst < 1 {
			rateLimitOptions.Burst = 1
		}
	}

	return nil
}

func (rateLimitOptions *RateLimitOptions) Validate() error {
	if rateLimitOptions.RequestsPerSecond < 0 {
		return fmt.Errorf("value [%v] for requestsPerSecond must not be negative", rateLimitOptions.RequestsPerSecond)
	}

	if rateLimitOptions.Enabled() && rateLimitOptions.Burst < 1 {
		return fmt.Errorf("value [%d] for burst too low, must be positive", rateLimitOptions.Burst)
	}

	return nil
}
