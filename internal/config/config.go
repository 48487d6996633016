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
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the Running Configuration for tiercache
var Config *TierCacheConfig

// Cache is the Cache subsection of the Running Configuration
var Cache *CacheConfig

// Engine is the Engine subsection of the Running Configuration
var Engine *EngineConfig

// Bloom is the negative-lookup filter subsection of the Running Configuration
var Bloom *BloomConfig

// HotKey is the hot-key lease subsection of the Running Configuration
var HotKey *HotKeyConfig

// Admin is the admin HTTP surface subsection of the Running Configuration
var Admin *AdminConfig

// Logging is the Logging subsection of the Running Configuration
var Logging *LoggingConfig

// Metrics is the Metrics subsection of the Running Configuration
var Metrics *MetricsConfig

// Tracing defines distributed trace options for the Running Configuration
var Tracing *TracingConfig

// Flags is a collection of command line flags that tiercache loads.
var Flags = TierCacheFlags{}

// LoaderWarnings holds warnings generated during config load (before the logger is initialized),
// so they can be logged at the end of the loading process
var LoaderWarnings = make([]string, 0, 0)

// metaChecker is the subset of toml.MetaData this package needs in order to distinguish
// a value the user set explicitly from one that merely carries its zero default; a
// noopMetadata stands in for it when no config file was loaded.
type metaChecker interface {
	IsDefined(keys ...string) bool
}

// CacheType enumerates the pluggable remote-tier backends a CacheConfig can select.
type CacheType int

// Cache backend identifiers, resolved from CacheConfig.CacheType at load time.
const (
	CacheTypeRedis CacheType = iota
	CacheTypeBBolt
	CacheTypeBadger
	CacheTypeNone
)

// CacheTypeNames translates a configured cache_type string into its CacheType constant.
var CacheTypeNames = map[string]CacheType{
	"redis":  CacheTypeRedis,
	"bbolt":  CacheTypeBBolt,
	"badger": CacheTypeBadger,
	"none":   CacheTypeNone,
}

// CacheTypeValues translates a CacheType constant back into its canonical string, for logging.
var CacheTypeValues = map[CacheType]string{
	CacheTypeRedis:  "redis",
	CacheTypeBBolt:  "bbolt",
	CacheTypeBadger: "badger",
	CacheTypeNone:   "none",
}

// TierCacheConfig is the main configuration object
type TierCacheConfig struct {
	// Cache configures the pluggable remote tier (C3)
	Cache *CacheConfig `toml:"cache"`
	// Engine configures the single-lookup/batch engine (C6/C7) and the descriptor defaults it applies
	Engine *EngineConfig `toml:"engine"`
	// Bloom configures the negative-lookup filter (C5)
	Bloom *BloomConfig `toml:"bloom"`
	// HotKey configures the single-flight lease used to protect hot keys (C6)
	HotKey *HotKeyConfig `toml:"hot_key"`
	// Admin configures the admin HTTP surface (ping/stats/config)
	Admin *AdminConfig `toml:"admin"`
	// Logging provides configurations that affect logging behavior
	Logging *LoggingConfig `toml:"logging"`
	// Metrics provides configurations for collecting Metrics about the application
	Metrics *MetricsConfig `toml:"metrics"`
	// Tracing provides the distributed tracing configuration
	Tracing *TracingConfig `toml:"tracing"`
}

// EngineConfig carries the default expirations and pool sizing the engine applies
// when a descriptor does not override them.
type EngineConfig struct {
	// DefaultExpireSecs is the remote-tier TTL applied when a descriptor's expire expression is empty
	DefaultExpireSecs int `toml:"default_expire_seconds"`
	// DefaultLocalExpireSecs is the local-tier TTL applied when a descriptor's local_expire expression is empty
	DefaultLocalExpireSecs int `toml:"default_local_expire_seconds"`
	// NullMarkerTTLSecs is the TTL applied to a negative (null-marker) cache entry
	NullMarkerTTLSecs int `toml:"null_marker_ttl_seconds"`
	// SchedulerPoolSize sizes an externally run scheduler's worker pool; the engine and LoadBatch do not read it
	SchedulerPoolSize int `toml:"scheduler_pool_size"`
	// MaxKeyBytes is the configured maximum encoded key length; the engine applies each Descriptor's own MaxKeyBytes, which bypasses the cache or logs and continues on an oversize key
	MaxKeyBytes int `toml:"max_key_bytes"`
	// MaxValueBytes is the maximum encoded value length; a value beyond this bound is served but not cached
	MaxValueBytes int `toml:"max_value_bytes"`

	// Synthetic values, derived at load time

	DefaultExpire      time.Duration `toml:"-"`
	DefaultLocalExpire time.Duration `toml:"-"`
	NullMarkerTTL      time.Duration `toml:"-"`
}

// BloomConfig sizes the bloom filter backing the negative-lookup filter (C5).
type BloomConfig struct {
	// ExpectedInsertions is the approximate number of distinct keys a namespace's filter should size for
	ExpectedInsertions int64 `toml:"expected_insertions"`
	// FalsePositiveRate is the target false-positive rate used to size the filter's bit array and hash count
	FalsePositiveRate float64 `toml:"false_positive_rate"`
}

// HotKeyConfig tunes the lease-based single-flight protection applied to hot keys (C6).
type HotKeyConfig struct {
	// RetryCount is how many times a follower polls the cache while waiting on the leader to populate a key
	RetryCount int `toml:"retry_count"`
	// RetryIntervalMs is the poll interval in milliseconds between follower retries
	RetryIntervalMs int `toml:"retry_interval_ms"`
	// LockTimeoutSecs is the lease TTL a leader holds while regenerating a hot key
	LockTimeoutSecs int `toml:"lock_timeout_seconds"`

	RetryInterval time.Duration `toml:"-"`
	LockTimeout   time.Duration `toml:"-"`
}

// AdminConfig is a collection of configurations for the admin HTTP surface.
type AdminConfig struct {
	// ListenAddress is the IP address the admin HTTP surface binds to
	ListenAddress string `toml:"listen_address"`
	// ListenPort is the TCP port the admin HTTP surface binds to
	ListenPort int `toml:"listen_port"`
	// ConfigHandlerPath provides the path to register the Config Handler for outputting the running configuration
	ConfigHandlerPath string `toml:"config_handler_path"`
	// PingHandlerPath provides the path to register the Ping Handler for checking that the engine is reachable
	PingHandlerPath string `toml:"ping_handler_path"`
	// StatsHandlerPath provides the path to register the Stats Handler for per-namespace local-tier entry counts
	StatsHandlerPath string `toml:"stats_handler_path"`
}

// CacheConfig is a collection of configurations for the remote tier (C3).
type CacheConfig struct {
	// CacheType represents the pluggable remote-tier backend to use: "redis", "bbolt", "badger", or "none"
	CacheType string `toml:"cache_type"`
	// Compression determines whether encoded values are gzip-compressed before being written to the remote tier
	Compression bool `toml:"compression"`
	// CompressThresholdBytes is the minimum encoded value size below which compression is skipped
	CompressThresholdBytes int `toml:"compress_threshold_bytes"`
	// Redis provides options for the Redis backend
	Redis RedisCacheConfig `toml:"redis"`
	// BBolt provides options for the BBolt backend
	BBolt BBoltCacheConfig `toml:"bbolt"`
	// Badger provides options for the BadgerDB backend
	Badger BadgerCacheConfig `toml:"badger"`

	//  Synthetic Values

	// CacheTypeID represents the internal constant for the provided CacheType string
	// and is automatically populated at startup
	CacheTypeID CacheType `toml:"-"`
}

// RedisCacheConfig is a collection of configurations for connecting to Redis
type RedisCacheConfig struct {
	// ClientType defines the type of Redis Client ("standard", "cluster", "sentinel")
	ClientType string `toml:"client_type"`
	// Protocol represents the connection method (e.g., "tcp", "unix", etc.)
	Protocol string `toml:"protocol"`
	// Endpoint represents FQDN:port or IPAddress:Port of the Redis Endpoint
	Endpoint string `toml:"endpoint"`
	// Endpoints represents FQDN:port or IPAddress:Port collection of a Redis Cluster or Sentinel Nodes
	Endpoints []string `toml:"endpoints"`
	// Password can be set when using a password protected redis instance.
	Password string `toml:"password"`
	// SentinelMaster should be set when using Redis Sentinel to indicate the Master Node
	SentinelMaster string `toml:"sentinel_master"`
	// DB is the database selected after connecting to the server.
	DB int `toml:"db"`
	// MaxRetries is the maximum number of retries before giving up on the command
	MaxRetries int `toml:"max_retries"`
	// DialTimeoutMS is the timeout for establishing new connections.
	DialTimeoutMS int `toml:"dial_timeout_ms"`
	// ReadTimeoutMS is the timeout for socket reads.
	ReadTimeoutMS int `toml:"read_timeout_ms"`
	// WriteTimeoutMS is the timeout for socket writes.
	WriteTimeoutMS int `toml:"write_timeout_ms"`
	// PoolSize is the maximum number of socket connections.
	PoolSize int `toml:"pool_size"`
	// MinIdleConns is the minimum number of idle connections.
	MinIdleConns int `toml:"min_idle_conns"`
}

// BadgerCacheConfig is a collection of configurations for storing cached data in a Badger key-value store
type BadgerCacheConfig struct {
	// Directory represents the path on disk where the Badger database should store data
	Directory string `toml:"directory"`
	// ValueDirectory represents the path on disk where the Badger database will store its value log.
	ValueDirectory string `toml:"value_directory"`
}

// BBoltCacheConfig is a collection of configurations for storing cached data in a BBolt database
type BBoltCacheConfig struct {
	// Filename represents the filename (including path) of the BBolt database
	Filename string `toml:"filename"`
	// Bucket represents the name of the bucket under which keys are stored.
	Bucket string `toml:"bucket"`
}

// LoggingConfig is a collection of Logging configurations
type LoggingConfig struct {
	// LogFile provides the filepath to the instance's logfile. Set as empty string to log to console
	LogFile string `toml:"log_file"`
	// LogLevel provides the most granular level (e.g., DEBUG, INFO, ERROR) to log
	LogLevel string `toml:"log_level"`
}

// MetricsConfig is a collection of Metrics Collection configurations
type MetricsConfig struct {
	// ListenAddress is the IP address from which Prometheus metrics are available for pulling at /metrics
	ListenAddress string `toml:"listen_address"`
	// ListenPort is the TCP Port from which Prometheus metrics are available for pulling at /metrics
	ListenPort int `toml:"listen_port"`
	// Namespace is the Prometheus metric namespace prefix
	Namespace string `toml:"namespace"`
}

// TracingConfig provides the distributed tracing configuration
type TracingConfig struct {
	// Implementation is the particular tracer implementation to use ("stdout", "jaeger", "none")
	Implementation string `toml:"tracer_implementation"`
	// CollectorEndpoint is the URL of the trace collector, used when Implementation is "jaeger"
	CollectorEndpoint string `toml:"tracing_collector"`
}

// NewConfig returns a Config initialized with default values.
func NewConfig() *TierCacheConfig {
	return &TierCacheConfig{
		Cache:   NewCacheConfig(),
		Engine:  NewEngineConfig(),
		Bloom:   NewBloomConfig(),
		HotKey:  NewHotKeyConfig(),
		Admin:   NewAdminConfig(),
		Logging: &LoggingConfig{LogFile: defaultLogFile, LogLevel: defaultLogLevel},
		Metrics: &MetricsConfig{ListenPort: defaultAdminListenPort + 1, Namespace: defaultMetricsNamespace},
		Tracing: &TracingConfig{Implementation: defaultTracerImplemetation},
	}
}

// NewEngineConfig returns an EngineConfig initialized with default values.
func NewEngineConfig() *EngineConfig {
	return &EngineConfig{
		DefaultExpireSecs:      defaultExpireSecs,
		DefaultLocalExpireSecs: defaultLocalExpireSecs,
		NullMarkerTTLSecs:      defaultNullMarkerTTLSecs,
		SchedulerPoolSize:      defaultSchedulerPoolSize,
		MaxKeyBytes:            defaultMaxKeyBytes,
		MaxValueBytes:          defaultMaxValueBytes,
	}
}

// NewBloomConfig returns a BloomConfig initialized with default values.
func NewBloomConfig() *BloomConfig {
	return &BloomConfig{
		ExpectedInsertions: defaultBloomExpectedInsertions,
		FalsePositiveRate:  defaultBloomFalsePositiveRate,
	}
}

// NewHotKeyConfig returns a HotKeyConfig initialized with default values.
func NewHotKeyConfig() *HotKeyConfig {
	return &HotKeyConfig{
		RetryCount:      defaultHotKeyRetryCount,
		RetryIntervalMs: defaultHotKeyRetryIntervalMs,
		LockTimeoutSecs: defaultHotKeyLockTimeoutSecs,
	}
}

// NewAdminConfig returns an AdminConfig initialized with default values.
func NewAdminConfig() *AdminConfig {
	return &AdminConfig{
		ListenAddress:     defaultAdminListenAddress,
		ListenPort:        defaultAdminListenPort,
		ConfigHandlerPath: defaultConfigHandlerPath,
		PingHandlerPath:   defaultPingHandlerPath,
		StatsHandlerPath:  defaultStatsHandlerPath,
	}
}

// NewCacheConfig returns a CacheConfig initialized with default values.
func NewCacheConfig() *CacheConfig {
	return &CacheConfig{
		CacheType:              defaultCacheType,
		CacheTypeID:            defaultCacheTypeID,
		Compression:            defaultCacheCompression,
		CompressThresholdBytes: defaultCompressThreshold,
		Redis: RedisCacheConfig{
			ClientType: defaultRedisClientType,
			Protocol:   defaultRedisProtocol,
			Endpoint:   defaultRedisEndpoint,
			Endpoints:  []string{defaultRedisEndpoint},
			PoolSize:   10,
		},
		BBolt:  BBoltCacheConfig{Filename: defaultBBoltFile, Bucket: defaultBBoltBucket},
		Badger: BadgerCacheConfig{Directory: defaultBadgerDir, ValueDirectory: defaultBadgerDir},
	}
}

// loadFile loads application configuration from a TOML-formatted file.
func (c *TierCacheConfig) loadFile() error {
	md, err := toml.DecodeFile(Flags.ConfigPath, c)
	if err != nil {
		c.setDefaults(&toml.MetaData{})
		return err
	}
	return c.setDefaults(&md)
}

func (c *TierCacheConfig) setDefaults(metadata metaChecker) error {
	c.processCacheConfig(metadata)
	c.processEngineConfig(metadata)
	c.processBloomConfig(metadata)
	c.processHotKeyConfig(metadata)
	return nil
}

func (c *TierCacheConfig) processBloomConfig(metadata metaChecker) {
	v := c.Bloom
	bc := NewBloomConfig()

	if metadata.IsDefined("bloom", "expected_insertions") {
		bc.ExpectedInsertions = v.ExpectedInsertions
	}
	if metadata.IsDefined("bloom", "false_positive_rate") {
		bc.FalsePositiveRate = v.FalsePositiveRate
	}

	c.Bloom = bc
}

func (c *TierCacheConfig) processHotKeyConfig(metadata metaChecker) {
	v := c.HotKey
	hc := NewHotKeyConfig()

	if metadata.IsDefined("hot_key", "retry_count") {
		hc.RetryCount = v.RetryCount
	}
	if metadata.IsDefined("hot_key", "retry_interval_ms") {
		hc.RetryIntervalMs = v.RetryIntervalMs
	}
	if metadata.IsDefined("hot_key", "lock_timeout_seconds") {
		hc.LockTimeoutSecs = v.LockTimeoutSecs
	}

	hc.RetryInterval = time.Duration(hc.RetryIntervalMs) * time.Millisecond
	hc.LockTimeout = time.Duration(hc.LockTimeoutSecs) * time.Second

	c.HotKey = hc
}

func (c *TierCacheConfig) processCacheConfig(metadata metaChecker) {
	v := c.Cache
	cc := NewCacheConfig()

	if metadata.IsDefined("cache", "cache_type") {
		cc.CacheType = strings.ToLower(v.CacheType)
		if n, ok := CacheTypeNames[cc.CacheType]; ok {
			cc.CacheTypeID = n
		}
	}

	if metadata.IsDefined("cache", "compression") {
		cc.Compression = v.Compression
	}

	if metadata.IsDefined("cache", "compress_threshold_bytes") {
		cc.CompressThresholdBytes = v.CompressThresholdBytes
	}

	if cc.CacheTypeID == CacheTypeRedis {
		if metadata.IsDefined("cache", "redis", "client_type") {
			cc.Redis.ClientType = strings.ToLower(v.Redis.ClientType)
		}
		if metadata.IsDefined("cache", "redis", "protocol") {
			cc.Redis.Protocol = v.Redis.Protocol
		}
		if metadata.IsDefined("cache", "redis", "endpoint") {
			cc.Redis.Endpoint = v.Redis.Endpoint
		}
		if metadata.IsDefined("cache", "redis", "endpoints") {
			cc.Redis.Endpoints = v.Redis.Endpoints
		}
		if metadata.IsDefined("cache", "redis", "password") {
			cc.Redis.Password = v.Redis.Password
		}
		if metadata.IsDefined("cache", "redis", "sentinel_master") {
			cc.Redis.SentinelMaster = v.Redis.SentinelMaster
		}
		if metadata.IsDefined("cache", "redis", "db") {
			cc.Redis.DB = v.Redis.DB
		}
		if metadata.IsDefined("cache", "redis", "max_retries") {
			cc.Redis.MaxRetries = v.Redis.MaxRetries
		}
		if metadata.IsDefined("cache", "redis", "dial_timeout_ms") {
			cc.Redis.DialTimeoutMS = v.Redis.DialTimeoutMS
		}
		if metadata.IsDefined("cache", "redis", "read_timeout_ms") {
			cc.Redis.ReadTimeoutMS = v.Redis.ReadTimeoutMS
		}
		if metadata.IsDefined("cache", "redis", "write_timeout_ms") {
			cc.Redis.WriteTimeoutMS = v.Redis.WriteTimeoutMS
		}
		if metadata.IsDefined("cache", "redis", "pool_size") {
			cc.Redis.PoolSize = v.Redis.PoolSize
		}
		if metadata.IsDefined("cache", "redis", "min_idle_conns") {
			cc.Redis.MinIdleConns = v.Redis.MinIdleConns
		}
	} else if cc.CacheTypeID == CacheTypeBBolt {
		if metadata.IsDefined("cache", "bbolt", "filename") {
			cc.BBolt.Filename = v.BBolt.Filename
		}
		if metadata.IsDefined("cache", "bbolt", "bucket") {
			cc.BBolt.Bucket = v.BBolt.Bucket
		}
	} else if cc.CacheTypeID == CacheTypeBadger {
		if metadata.IsDefined("cache", "badger", "directory") {
			cc.Badger.Directory = v.Badger.Directory
		}
		if metadata.IsDefined("cache", "badger", "value_directory") {
			cc.Badger.ValueDirectory = v.Badger.ValueDirectory
		}
	}

	c.Cache = cc
}

func (c *TierCacheConfig) processEngineConfig(metadata metaChecker) {
	v := c.Engine
	ec := NewEngineConfig()

	if metadata.IsDefined("engine", "default_expire_seconds") {
		ec.DefaultExpireSecs = v.DefaultExpireSecs
	}
	if metadata.IsDefined("engine", "default_local_expire_seconds") {
		ec.DefaultLocalExpireSecs = v.DefaultLocalExpireSecs
	}
	if metadata.IsDefined("engine", "null_marker_ttl_seconds") {
		ec.NullMarkerTTLSecs = v.NullMarkerTTLSecs
	}
	if metadata.IsDefined("engine", "scheduler_pool_size") {
		ec.SchedulerPoolSize = v.SchedulerPoolSize
	}
	if metadata.IsDefined("engine", "max_key_bytes") {
		ec.MaxKeyBytes = v.MaxKeyBytes
	}
	if metadata.IsDefined("engine", "max_value_bytes") {
		ec.MaxValueBytes = v.MaxValueBytes
	}

	ec.DefaultExpire = time.Duration(ec.DefaultExpireSecs) * time.Second
	ec.DefaultLocalExpire = time.Duration(ec.DefaultLocalExpireSecs) * time.Second
	ec.NullMarkerTTL = time.Duration(ec.NullMarkerTTLSecs) * time.Second

	c.Engine = ec
}
