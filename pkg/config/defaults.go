package config

import (
	"time"

	"github.com/spf13/viper"
	"github.com/treeverse/commitgraph/pkg/retry"
)

const (
	DatabaseTypeLocal    = "local"
	DatabaseTypePebble   = "pebble"
	DatabaseTypePostgres = "postgres"
	DatabaseTypeMem      = "mem"
)

// Default flag keys
const (
	LoggingFormatKey        = "logging.format"
	LoggingLevelKey         = "logging.level"
	LoggingOutputKey        = "logging.output"
	LoggingFileMaxSizeMBKey = "logging.file_max_size_mb"
	LoggingFilesKeepKey     = "logging.files_keep"

	DatabaseTypeKey                       = "database.type"
	DatabaseLocalPathKey                  = "database.local.path"
	DatabaseLocalSyncWritesKey            = "database.local.sync_writes"
	DatabaseLocalPrefetchSizeKey          = "database.local.prefetch_size"
	DatabasePebblePathKey                 = "database.pebble.path"
	DatabasePebbleCacheSizeBytesKey       = "database.pebble.cache_size_bytes"
	DatabasePostgresMaxOpenConnectionsKey = "database.postgres.max_open_connections"
	DatabasePostgresTableNameKey          = "database.postgres.table_name"

	NodeServerIDKey              = "node.server_id"
	NodeLatencyMarginKey         = "node.latency_margin"
	NodePollTimeoutKey           = "node.poll_timeout"
	NodeSyncIntervalKey          = "node.sync_interval"
	NodeMinSuccessesKey          = "node.min_successes"
	NodeMaxFanoutKey             = "node.max_fanout"
	NodeCommitCacheSizeKey       = "node.commit_cache_size"
	NodeMarkCompleteBatchSizeKey = "node.mark_complete_batch_size"
	NodeRetryPolicyKey           = "node.retry.policy"
	NodeRetryDelayKey            = "node.retry.delay"
	NodeRetryMaxAttemptsKey      = "node.retry.max_attempts"
)

const (
	DefaultLoggingFormat        = "text"
	DefaultLoggingLevel         = "INFO"
	DefaultLoggingOutput        = "-"
	DefaultLoggingFileMaxSizeMB = 100
	DefaultLoggingFilesKeep     = 10

	DefaultDatabaseType                       = DatabaseTypeLocal
	DefaultDatabaseLocalPath                  = "~/commitgraph/metadata"
	DefaultDatabaseLocalSyncWrites            = true
	DefaultDatabaseLocalPrefetchSize          = 256
	DefaultDatabasePebblePath                 = "~/commitgraph/pebble"
	DefaultDatabasePebbleCacheSizeBytes       = 64 << 20
	DefaultDatabasePostgresMaxOpenConnections = 25
	DefaultDatabasePostgresTableName          = "commitgraph_kv"

	DefaultNodeLatencyMargin         = 10 * time.Second
	DefaultNodePollTimeout           = 30 * time.Second
	DefaultNodeSyncInterval          = time.Minute
	DefaultNodeMinSuccesses          = 1
	DefaultNodeMaxFanout             = 3
	DefaultNodeCommitCacheSize       = 10000
	DefaultNodeMarkCompleteBatchSize = 1000
	DefaultNodeRetryDelay            = time.Second
	DefaultNodeRetryMaxAttempts      = 3
)

func setDefaults() {
	viper.SetDefault(LoggingFormatKey, DefaultLoggingFormat)
	viper.SetDefault(LoggingLevelKey, DefaultLoggingLevel)
	viper.SetDefault(LoggingOutputKey, DefaultLoggingOutput)
	viper.SetDefault(LoggingFileMaxSizeMBKey, DefaultLoggingFileMaxSizeMB)
	viper.SetDefault(LoggingFilesKeepKey, DefaultLoggingFilesKeep)

	viper.SetDefault(DatabaseTypeKey, DefaultDatabaseType)
	viper.SetDefault(DatabaseLocalPathKey, DefaultDatabaseLocalPath)
	viper.SetDefault(DatabaseLocalSyncWritesKey, DefaultDatabaseLocalSyncWrites)
	viper.SetDefault(DatabaseLocalPrefetchSizeKey, DefaultDatabaseLocalPrefetchSize)
	viper.SetDefault(DatabasePebblePathKey, DefaultDatabasePebblePath)
	viper.SetDefault(DatabasePebbleCacheSizeBytesKey, DefaultDatabasePebbleCacheSizeBytes)
	viper.SetDefault(DatabasePostgresMaxOpenConnectionsKey, DefaultDatabasePostgresMaxOpenConnections)
	viper.SetDefault(DatabasePostgresTableNameKey, DefaultDatabasePostgresTableName)

	viper.SetDefault(NodeLatencyMarginKey, DefaultNodeLatencyMargin)
	viper.SetDefault(NodePollTimeoutKey, DefaultNodePollTimeout)
	viper.SetDefault(NodeSyncIntervalKey, DefaultNodeSyncInterval)
	viper.SetDefault(NodeMinSuccessesKey, DefaultNodeMinSuccesses)
	viper.SetDefault(NodeMaxFanoutKey, DefaultNodeMaxFanout)
	viper.SetDefault(NodeCommitCacheSizeKey, DefaultNodeCommitCacheSize)
	viper.SetDefault(NodeMarkCompleteBatchSizeKey, DefaultNodeMarkCompleteBatchSize)
	viper.SetDefault(NodeRetryPolicyKey, retry.PolicyFixed)
	viper.SetDefault(NodeRetryDelayKey, DefaultNodeRetryDelay)
	viper.SetDefault(NodeRetryMaxAttemptsKey, DefaultNodeRetryMaxAttempts)
}
