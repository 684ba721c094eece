package kvparams

type Config struct {
	Type     string
	Local    *Local
	Pebble   *Pebble
	Postgres *Postgres
}

type Local struct {
	// Path - Local directory path to store the DB files
	Path string
	// SyncWrites - Sync ensures data written to disk on each writing instead of mem cache
	SyncWrites bool
	// PrefetchSize - Number of elements to prefetch while iterating
	PrefetchSize int
	// EnableLogging - Enable store and badger (trace only) logging
	EnableLogging bool
	// InMemory - keep the database in memory only, Path is ignored
	InMemory bool
}

type Pebble struct {
	// Path - Local directory path to store the DB files
	Path string
	// CacheSizeBytes - size of the shared block cache
	CacheSizeBytes int64
}

type Postgres struct {
	ConnectionString   string
	MaxOpenConnections int32
	// TableName - name of the table holding all partitions
	TableName string
}
