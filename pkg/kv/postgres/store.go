package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/treeverse/commitgraph/pkg/kv"
	"github.com/treeverse/commitgraph/pkg/kv/kvparams"
)

type Driver struct{}

type Store struct {
	Pool   *pgxpool.Pool
	Params *Params
}

const (
	DriverName = "postgres"

	DefaultTableName          = "kv"
	DefaultMaxOpenConnections = 25
	paramTableName            = "commitgraph_kv_table"

	serializationFailureCode = "40001"
	deadlockDetectedCode     = "40P01"
)

//nolint:gochecknoinits
func init() {
	kv.Register(DriverName, &Driver{})
}

func (d *Driver) Open(ctx context.Context, kvParams kvparams.Config) (kv.Store, error) {
	if kvParams.Postgres == nil {
		return nil, fmt.Errorf("missing %s settings: %w", DriverName, kv.ErrDriverConfiguration)
	}
	config, err := pgxpool.ParseConfig(kvParams.Postgres.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", kv.ErrDriverConfiguration, err)
	}
	config.MaxConns = DefaultMaxOpenConnections
	if kvParams.Postgres.MaxOpenConnections > 0 {
		config.MaxConns = kvParams.Postgres.MaxOpenConnections
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", kv.ErrConnectFailed, err)
	}
	defer func() {
		// if we return before store uses the pool, free it
		if pool != nil {
			pool.Close()
		}
	}()

	// acquire connection and make sure we reach the database
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", kv.ErrConnectFailed, err)
	}
	defer conn.Release()
	err = conn.Ping(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", kv.ErrConnectFailed, err)
	}

	params := parseStoreConfig(config.ConnConfig.RuntimeParams, kvParams.Postgres)
	err = setupKeyValueDatabase(ctx, conn, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", kv.ErrSetupFailed, err)
	}
	store := &Store{
		Pool:   pool,
		Params: params,
	}
	pool = nil
	return store, nil
}

type Params struct {
	TableName          string
	SanitizedTableName string
}

func parseStoreConfig(runtimeParams map[string]string, pgParams *kvparams.Postgres) *Params {
	p := &Params{
		TableName: DefaultTableName,
	}
	if tableName, ok := runtimeParams[paramTableName]; ok {
		p.TableName = tableName
	}
	if pgParams.TableName != "" {
		p.TableName = pgParams.TableName
	}
	p.SanitizedTableName = pgx.Identifier{p.TableName}.Sanitize()
	return p
}

// setupKeyValueDatabase setup everything required to enable kv over postgres
func setupKeyValueDatabase(ctx context.Context, conn *pgxpool.Conn, params *Params) error {
	_, err := conn.Exec(ctx, `CREATE TABLE IF NOT EXISTS `+params.SanitizedTableName+` (
    partition_key BYTEA NOT NULL,
    key BYTEA NOT NULL,
    value BYTEA NOT NULL,
    PRIMARY KEY (partition_key, key));`)
	return err
}

func isConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == serializationFailureCode || pgErr.Code == deadlockDetectedCode
	}
	return false
}

func (s *Store) run(ctx context.Context, accessMode pgx.TxAccessMode, fn func(tx kv.Tx) error) error {
	pgTx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable, AccessMode: accessMode})
	if err != nil {
		return fmt.Errorf("%s: %w", err, kv.ErrOperationFailed)
	}
	defer func() { _ = pgTx.Rollback(ctx) }()
	t := &tx{
		ctx:      ctx,
		tx:       pgTx,
		table:    s.Params.SanitizedTableName,
		readOnly: accessMode == pgx.ReadOnly,
	}
	if err := fn(t); err != nil {
		if isConflict(err) {
			return fmt.Errorf("%s: %w", err, kv.ErrConflict)
		}
		return err
	}
	if err := pgTx.Commit(ctx); err != nil {
		if isConflict(err) {
			return fmt.Errorf("%s: %w", err, kv.ErrConflict)
		}
		return fmt.Errorf("%s: %w", err, kv.ErrOperationFailed)
	}
	return nil
}

func (s *Store) View(ctx context.Context, fn func(tx kv.Tx) error) error {
	return s.run(ctx, pgx.ReadOnly, fn)
}

func (s *Store) Update(ctx context.Context, fn func(tx kv.Tx) error) error {
	return s.run(ctx, pgx.ReadWrite, fn)
}

func (s *Store) Close() {
	s.Pool.Close()
}

type tx struct {
	ctx      context.Context
	tx       pgx.Tx
	table    string
	readOnly bool
}

// wrapErr keeps the driver error in the chain so serialization failures can be detected at commit.
func wrapErr(err error) error {
	return fmt.Errorf("%w: %w", err, kv.ErrOperationFailed)
}

func (t *tx) Get(partitionKey, key []byte) ([]byte, error) {
	if err := kv.ValidateArgs(partitionKey, key); err != nil {
		return nil, err
	}
	row := t.tx.QueryRow(t.ctx, `SELECT value FROM `+t.table+` WHERE partition_key = $1 AND key = $2`, partitionKey, key)
	var val []byte
	err := row.Scan(&val)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, kv.ErrNotFound
	}
	if err != nil {
		return nil, wrapErr(err)
	}
	return val, nil
}

func (t *tx) Set(partitionKey, key, value []byte) error {
	if t.readOnly {
		return kv.ErrReadOnly
	}
	if err := kv.ValidateArgs(partitionKey, key); err != nil {
		return err
	}
	if value == nil {
		return kv.ErrMissingValue
	}
	_, err := t.tx.Exec(t.ctx, `INSERT INTO `+t.table+`(partition_key,key,value) VALUES($1,$2,$3)
			ON CONFLICT (partition_key,key) DO UPDATE SET value = $3`, partitionKey, key, value)
	if err != nil {
		return wrapErr(err)
	}
	return nil
}

func (t *tx) Delete(partitionKey, key []byte) error {
	if t.readOnly {
		return kv.ErrReadOnly
	}
	if err := kv.ValidateArgs(partitionKey, key); err != nil {
		return err
	}
	_, err := t.tx.Exec(t.ctx, `DELETE FROM `+t.table+` WHERE partition_key=$1 AND key=$2`, partitionKey, key)
	if err != nil {
		return wrapErr(err)
	}
	return nil
}

// Scan reads all matching rows up front, a connection can't run another command while a cursor is open.
func (t *tx) Scan(partitionKey, prefix []byte) (kv.EntriesIterator, error) {
	if len(partitionKey) == 0 {
		return nil, kv.ErrMissingPartitionKey
	}
	var (
		rows pgx.Rows
		err  error
	)
	if prefix == nil {
		// nil binds as NULL
		prefix = []byte{}
	}
	upper := kv.PrefixUpperBound(prefix)
	if upper == nil {
		rows, err = t.tx.Query(t.ctx, `SELECT key,value FROM `+t.table+` WHERE partition_key=$1 AND key >= $2 ORDER BY key`,
			partitionKey, prefix)
	} else {
		rows, err = t.tx.Query(t.ctx, `SELECT key,value FROM `+t.table+` WHERE partition_key=$1 AND key >= $2 AND key < $3 ORDER BY key`,
			partitionKey, prefix, upper)
	}
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()
	var entries []kv.Entry
	for rows.Next() {
		ent := kv.Entry{PartitionKey: partitionKey}
		if err := rows.Scan(&ent.Key, &ent.Value); err != nil {
			return nil, wrapErr(err)
		}
		entries = append(entries, ent)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr(err)
	}
	return kv.NewSliceIterator(entries), nil
}
