/**
* Copyright 2018 Comcast Cable Communications Management, LLC
* Licensed under the Apache License, Version 2.0 (the "License");
* you may not use this file except in compliance with the License.
* You may obtain a copy of the License at
* http://www.apache.org/licenses/LICENSE-2.0
* Unless required by applicable law or agreed to in writing, software
* distributed under the License is distributed on an "AS IS" BASIS,
* WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
* See the License for the specific language governing permissions and
* limitations under the License.
 */

package config

import (
	"flag"
	"os"
	"strconv"
)

// TierCacheFlags is a collection of command line flags that tiercache loads.
type TierCacheFlags struct {
	ConfigPath   string
	LogLevel     string
	PrintVersion bool

	customPath bool
}

// Load returns the Application Configuration, starting with a default config,
// then overriding with any provided config file, then env vars, and finally flags.
func Load(applicationName string, applicationVersion string, arguments []string) error {

	LoaderWarnings = make([]string, 0, 0)

	c := NewConfig()
	c.parseFlags(applicationName, arguments)
	if Flags.PrintVersion {
		return nil
	}

	if Flags.ConfigPath != "" {
		if err := c.loadFile(); err != nil && Flags.customPath {
			return err
		}
	} else {
		c.setDefaults(&noopMetadata{})
	}

	c.loadEnvVars()
	c.loadFlags()

	Config = c
	Cache = c.Cache
	Engine = c.Engine
	Bloom = c.Bloom
	HotKey = c.HotKey
	Admin = c.Admin
	Logging = c.Logging
	Metrics = c.Metrics
	Tracing = c.Tracing

	return nil
}

// noopMetadata satisfies the small surface of toml.MetaData this package calls
// against when no config file was provided, so setDefaults can run uniformly.
type noopMetadata struct{}

func (noopMetadata) IsDefined(keys ...string) bool { return false }

func (c *TierCacheConfig) parseFlags(applicationName string, arguments []string) {
	fs := flag.NewFlagSet(applicationName, flag.ContinueOnError)
	fs.StringVar(&Flags.ConfigPath, "config", "", "path to a tiercache TOML configuration file")
	fs.StringVar(&Flags.LogLevel, "log-level", "", "overrides the configured log level")
	fs.BoolVar(&Flags.PrintVersion, "version", false, "print version information and exit")
	// flag.ContinueOnError with arguments sourced from the caller keeps this package
	// testable without touching os.Args; a parse failure just leaves defaults in place.
	_ = fs.Parse(arguments)
	if Flags.ConfigPath != "" {
		Flags.customPath = true
	}
}

func (c *TierCacheConfig) loadEnvVars() {
	if v := os.Getenv("TIERCACHE_CACHE_TYPE"); v != "" {
		c.Cache.CacheType = v
		if n, ok := CacheTypeNames[v]; ok {
			c.Cache.CacheTypeID = n
		}
	}
	if v := os.Getenv("TIERCACHE_REDIS_ENDPOINT"); v != "" {
		c.Cache.Redis.Endpoint = v
	}
	if v := os.Getenv("TIERCACHE_REDIS_PASSWORD"); v != "" {
		c.Cache.Redis.Password = v
	}
	if v := os.Getenv("TIERCACHE_LOG_LEVEL"); v != "" {
		c.Logging.LogLevel = v
	}
	if v := os.Getenv("TIERCACHE_ADMIN_LISTEN_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Admin.ListenPort = p
		}
	}
}

func (c *TierCacheConfig) loadFlags() {
	if Flags.LogLevel != "" {
		c.Logging.LogLevel = Flags.LogLevel
	}
}
