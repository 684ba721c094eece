package config

import (
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
	"github.com/treeverse/commitgraph/pkg/graph/discovery"
	"github.com/treeverse/commitgraph/pkg/graph/namespace"
	"github.com/treeverse/commitgraph/pkg/graph/node"
	"github.com/treeverse/commitgraph/pkg/graph/storage"
	"github.com/treeverse/commitgraph/pkg/kv/kvparams"
	"github.com/treeverse/commitgraph/pkg/retry"
)

var (
	ErrBadConfiguration     = errors.New("bad configuration")
	ErrMissingServerID      = fmt.Errorf("%w: node.server_id cannot be empty", ErrBadConfiguration)
	ErrUnknownDatabaseType  = fmt.Errorf("%w: unknown database.type", ErrBadConfiguration)
	ErrInvalidQuorum        = fmt.Errorf("%w: node.min_successes exceeds node.max_fanout", ErrBadConfiguration)
	ErrInvalidDiscoveryKeys = fmt.Errorf("%w: discovery.owners", ErrBadConfiguration)
	ErrInvalidSyncInterval  = fmt.Errorf("%w: node.sync_interval must be positive", ErrBadConfiguration)
)

type Config struct {
	Logging struct {
		Format        string  `mapstructure:"format"`
		Level         string  `mapstructure:"level"`
		Output        Strings `mapstructure:"output"`
		FileMaxSizeMB int     `mapstructure:"file_max_size_mb"`
		FilesKeep     int     `mapstructure:"files_keep"`
	} `mapstructure:"logging"`

	Database struct {
		Type  string `mapstructure:"type"`
		Local *struct {
			Path         string `mapstructure:"path"`
			SyncWrites   bool   `mapstructure:"sync_writes"`
			PrefetchSize int    `mapstructure:"prefetch_size"`
		} `mapstructure:"local"`
		Pebble *struct {
			Path           string `mapstructure:"path"`
			CacheSizeBytes int64  `mapstructure:"cache_size_bytes"`
		} `mapstructure:"pebble"`
		Postgres *struct {
			ConnectionString   SecureString `mapstructure:"connection_string"`
			MaxOpenConnections int32        `mapstructure:"max_open_connections"`
			TableName          string       `mapstructure:"table_name"`
		} `mapstructure:"postgres"`
	} `mapstructure:"database"`

	Node struct {
		ServerID              OnlyString    `mapstructure:"server_id"`
		LatencyMargin         time.Duration `mapstructure:"latency_margin"`
		PollTimeout           time.Duration `mapstructure:"poll_timeout"`
		SyncInterval          time.Duration `mapstructure:"sync_interval"`
		MinSuccesses          int           `mapstructure:"min_successes"`
		MaxFanout             int           `mapstructure:"max_fanout"`
		CommitCacheSize       int           `mapstructure:"commit_cache_size"`
		MarkCompleteBatchSize int           `mapstructure:"mark_complete_batch_size"`
		Retry                 retry.Policy  `mapstructure:"retry"`
	} `mapstructure:"node"`

	Discovery struct {
		// Owners is a list rather than a map: viper lowercases map keys, and owner keys are
		// case sensitive multibase strings.
		Owners []struct {
			Owner   string  `mapstructure:"owner"`
			Masters Strings `mapstructure:"masters"`
		} `mapstructure:"owners"`
	} `mapstructure:"discovery"`
}

func NewConfig() (*Config, error) {
	c := &Config{}

	// Inform viper of all expected fields.  Otherwise, it fails to deserialize from the
	// environment.
	keys := StructKeys(reflect.TypeOf(c), "mapstructure")
	for _, key := range keys {
		viper.SetDefault(key, nil)
	}

	setDefaults()

	err := viper.UnmarshalExact(c, viper.DecodeHook(DecodeHook()))
	if err != nil {
		return nil, err
	}
	if err := setupLogger(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	if c.Node.ServerID == "" {
		return ErrMissingServerID
	}
	switch c.Database.Type {
	case DatabaseTypeLocal, DatabaseTypePebble, DatabaseTypePostgres, DatabaseTypeMem:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDatabaseType, c.Database.Type)
	}
	if c.Node.MinSuccesses > c.Node.MaxFanout {
		return fmt.Errorf("%w: %d > %d", ErrInvalidQuorum, c.Node.MinSuccesses, c.Node.MaxFanout)
	}
	if c.Node.SyncInterval <= 0 {
		return ErrInvalidSyncInterval
	}
	if err := c.Node.Retry.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrBadConfiguration, err)
	}
	if _, err := c.GetDiscovery(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDiscoveryKeys, err)
	}
	return nil
}

// GetKVParams returns the parameters of the configured kv driver. Paths may start with ~.
func (c *Config) GetKVParams() (kvparams.Config, error) {
	p := kvparams.Config{Type: c.Database.Type}
	if c.Database.Local != nil {
		path, err := homedir.Expand(c.Database.Local.Path)
		if err != nil {
			return p, fmt.Errorf("parse database local path '%s': %w", c.Database.Local.Path, err)
		}
		p.Local = &kvparams.Local{
			Path:         path,
			SyncWrites:   c.Database.Local.SyncWrites,
			PrefetchSize: c.Database.Local.PrefetchSize,
		}
	}
	if c.Database.Pebble != nil {
		path, err := homedir.Expand(c.Database.Pebble.Path)
		if err != nil {
			return p, fmt.Errorf("parse database pebble path '%s': %w", c.Database.Pebble.Path, err)
		}
		p.Pebble = &kvparams.Pebble{
			Path:           path,
			CacheSizeBytes: c.Database.Pebble.CacheSizeBytes,
		}
	}
	if c.Database.Postgres != nil {
		p.Postgres = &kvparams.Postgres{
			ConnectionString:   c.Database.Postgres.ConnectionString.SecureValue(),
			MaxOpenConnections: c.Database.Postgres.MaxOpenConnections,
			TableName:          c.Database.Postgres.TableName,
		}
	}
	return p, nil
}

func (c *Config) GetStorageConfig() storage.Config {
	return storage.Config{
		CommitCacheSize:       c.Node.CommitCacheSize,
		MarkCompleteBatchSize: c.Node.MarkCompleteBatchSize,
	}
}

func (c *Config) GetNodeConfig() node.Config {
	return node.Config{
		MinSuccesses: c.Node.MinSuccesses,
		Namespace: namespace.Config{
			ServerID:      c.Node.ServerID.String(),
			LatencyMargin: c.Node.LatencyMargin,
			PollTimeout:   c.Node.PollTimeout,
			MaxFanout:     c.Node.MaxFanout,
			Retry:         c.Node.Retry,
		},
	}
}

func (c *Config) GetDiscovery() (*discovery.Static, error) {
	masters := make(map[string][]string, len(c.Discovery.Owners))
	for _, o := range c.Discovery.Owners {
		masters[o.Owner] = append(masters[o.Owner], o.Masters...)
	}
	return discovery.ParseStatic(masters)
}
