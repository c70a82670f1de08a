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

package fullstack

import (
	"os"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"github.com/openziti/xapp"
	"github.com/openziti/xapp/render"
	"github.com/openziti/xapp/store"
	"github.com/openziti/xapp/store/sqlstore"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const DefaultEnvFile = ".env"

// Config describes a full-stack application. It is read from YAML; XAPP_* environment variables override the file.
type Config struct {
	Name        string        `yaml:"name" env:"XAPP_NAME"`
	Debug       bool          `yaml:"debug" env:"XAPP_DEBUG"`
	Storage     string        `yaml:"storage" env:"XAPP_STORAGE"`
	DSN         string        `yaml:"dsn" env:"XAPP_DSN"`
	Table       string        `yaml:"table" env:"XAPP_TABLE"`
	PoolSize    int           `yaml:"poolSize" env:"XAPP_POOL_SIZE"`
	PoolTimeout time.Duration `yaml:"poolTimeout" env:"XAPP_POOL_TIMEOUT"`
	Templates   string        `yaml:"templates" env:"XAPP_TEMPLATES"`

	Session SessionConfig `yaml:"session"`
	Metrics MetricsConfig `yaml:"metrics"`

	// Web and Identity are handed to serve.Instance as the "web" and "identity" sections.
	Web      []interface{}          `yaml:"web"`
	Identity map[string]interface{} `yaml:"identity"`
}

type SessionConfig struct {
	RedisAddr  string        `yaml:"redisAddr" env:"XAPP_REDIS_ADDR"`
	CookieName string        `yaml:"cookieName" env:"XAPP_SESSION_COOKIE"`
	TTL        time.Duration `yaml:"ttl" env:"XAPP_SESSION_TTL"`
	Secure     bool          `yaml:"secure" env:"XAPP_SESSION_SECURE"`
}

type MetricsConfig struct {
	Namespace string `yaml:"namespace" env:"XAPP_METRICS_NAMESPACE"`
}

// DefaultConfig is an in-memory application without templates on disk.
func DefaultConfig() *Config {
	return &Config{
		Name:        "xapp",
		Storage:     store.StorageMemory,
		Table:       sqlstore.DefaultTable,
		PoolSize:    store.DefaultPoolSize,
		PoolTimeout: store.DefaultPoolTimeout,
		Templates:   render.DefaultTemplates,
	}
}

// LoadConfig reads the YAML file at path over DefaultConfig, loads envFiles (default .env, missing files are
// skipped) into the environment without overriding it and applies the XAPP_* environment variables. An empty path
// skips the file.
func LoadConfig(path string, envFiles ...string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "could not read config file %s", path)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "could not parse config file %s", path)
		}
	}

	if len(envFiles) == 0 {
		envFiles = []string{DefaultEnvFile}
	}
	for _, envFile := range envFiles {
		if _, err := os.Stat(envFile); err != nil {
			continue
		}
		if err := godotenv.Load(envFile); err != nil {
			return nil, errors.Wrapf(err, "could not load env file %s", envFile)
		}
	}

	if err := envdecode.Decode(cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, errors.Wrap(err, "could not apply environment overrides")
	}

	return cfg, cfg.Validate()
}

func (cfg *Config) Validate() error {
	if cfg.Name == "" {
		return errors.New("name must not be empty")
	}

	switch cfg.Storage {
	case store.StorageMemory:
	case sqlstore.StoragePostgres:
		if cfg.DSN == "" {
			return errors.Errorf("dsn is required for %s storage", sqlstore.StoragePostgres)
		}
	default:
		return errors.Errorf("unsupported storage [%s], must be %s or %s", cfg.Storage, store.StorageMemory, sqlstore.StoragePostgres)
	}

	if cfg.PoolSize < 1 {
		return errors.Errorf("poolSize [%d] must be positive", cfg.PoolSize)
	}

	if cfg.PoolTimeout <= 0 {
		return errors.Errorf("poolTimeout [%s] must be positive", cfg.PoolTimeout)
	}

	if cfg.Session.TTL < 0 {
		return errors.Errorf("session ttl [%s] must not be negative", cfg.Session.TTL)
	}

	return nil
}

// Settings are the Application settings derived from the configuration.
func (cfg *Config) Settings() map[string]interface{} {
	return map[string]interface{}{
		xapp.SettingDebug:        cfg.Debug,
		store.SettingStorage:     cfg.Storage,
		store.SettingPoolSize:    cfg.PoolSize,
		store.SettingPoolTimeout: cfg.PoolTimeout.String(),
		sqlstore.SettingDSN:      cfg.DSN,
		sqlstore.SettingTable:    cfg.Table,
		render.SettingTemplates:  cfg.Templates,
	}
}

// ServeConfig is the configuration map for serve.Instance.LoadConfig.
func (cfg *Config) ServeConfig() map[string]interface{} {
	result := map[string]interface{}{
		"web": cfg.Web,
	}
	if cfg.Identity != nil {
		result["identity"] = cfg.Identity
	}
	return result
}
