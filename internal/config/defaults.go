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

const (
	defaultLogFile  = ""
	defaultLogLevel = "INFO"

	defaultAdminListenPort    = 8083
	defaultAdminListenAddress = ""

	defaultTracerImplemetation = "stdout"

	defaultCacheType        = "redis"
	defaultCacheTypeID      = CacheTypeRedis
	defaultCacheCompression = true
	defaultCompressThreshold = 1024

	defaultExpireSecs        = 3600
	defaultLocalExpireSecs   = 600
	defaultNullMarkerTTLSecs = 60

	defaultSchedulerPoolSize = 5

	defaultBloomExpectedInsertions = 1000000
	defaultBloomFalsePositiveRate  = 0.01

	defaultHotKeyRetryCount      = 10
	defaultHotKeyRetryIntervalMs = 50
	defaultHotKeyLockTimeoutSecs = 5

	defaultMaxKeyBytes   = 512
	defaultMaxValueBytes = 4194304

	defaultRedisClientType = "standard"
	defaultRedisProtocol   = "tcp"
	defaultRedisEndpoint   = "127.0.0.1:6379"

	defaultBBoltFile   = "/tmp/tiercache/tiercache.db"
	defaultBBoltBucket = "tiercache"

	defaultBadgerDir = "/tmp/tiercache/badger"

	defaultConfigHandlerPath = "/cache/config"
	defaultPingHandlerPath   = "/cache/ping"
	defaultStatsHandlerPath  = "/cache/stats"

	defaultMetricsNamespace = "tiercache"
)
