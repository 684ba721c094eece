package config_test

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-test/deep"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
	"github.com/treeverse/commitgraph/pkg/config"
	"github.com/treeverse/commitgraph/pkg/logging"
	"github.com/treeverse/commitgraph/pkg/retry"
	"github.com/treeverse/commitgraph/pkg/testutil"
)

func newConfigFromFile(t *testing.T, fn string) (*config.Config, error) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.SetConfigFile(fn)
	err := viper.ReadInConfig()
	if err != nil {
		return nil, err
	}
	cfg, err := config.NewConfig()
	if err != nil {
		return nil, err
	}
	err = cfg.Validate()
	return cfg, err
}

func TestConfig_Defaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	c, err := config.NewConfig()
	testutil.MustDo(t, "new config", err)

	require.Equal(t, config.DatabaseTypeLocal, c.Database.Type)
	require.Equal(t, config.DefaultNodeLatencyMargin, c.Node.LatencyMargin)
	require.Equal(t, config.DefaultNodePollTimeout, c.Node.PollTimeout)
	require.Equal(t, config.DefaultNodeMinSuccesses, c.Node.MinSuccesses)
	require.Equal(t, config.DefaultNodeMaxFanout, c.Node.MaxFanout)
	require.Equal(t, retry.PolicyFixed, c.Node.Retry.Kind)

	// server id has no default
	require.ErrorIs(t, c.Validate(), config.ErrMissingServerID)

	params, err := c.GetKVParams()
	testutil.MustDo(t, "kv params", err)
	require.NotNil(t, params.Local)
	require.False(t, strings.HasPrefix(params.Local.Path, "~"), "path %s not expanded", params.Local.Path)
	require.True(t, strings.HasSuffix(params.Local.Path, filepath.Join("commitgraph", "metadata")))
}

func TestConfig_NewFromFile(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		c, err := newConfigFromFile(t, "testdata/valid_config.yaml")
		testutil.MustDo(t, "load config", err)

		nodeConfig := c.GetNodeConfig()
		require.Equal(t, 2, nodeConfig.MinSuccesses)
		require.Equal(t, "0042", nodeConfig.Namespace.ServerID)
		require.Equal(t, 5*time.Second, nodeConfig.Namespace.LatencyMargin)
		require.Equal(t, time.Minute, nodeConfig.Namespace.PollTimeout)
		require.Equal(t, 4, nodeConfig.Namespace.MaxFanout)
		if diffs := deep.Equal(nodeConfig.Namespace.Retry, retry.Policy{Kind: retry.PolicyCount, Delay: 250 * time.Millisecond, MaxAttempts: 5}); diffs != nil {
			t.Errorf("retry policy: %s", diffs)
		}

		params, err := c.GetKVParams()
		testutil.MustDo(t, "kv params", err)
		require.Equal(t, config.DatabaseTypePostgres, params.Type)
		require.NotNil(t, params.Postgres)
		require.Equal(t, int32(12), params.Postgres.MaxOpenConnections)
		require.Equal(t, config.DefaultDatabasePostgresTableName, params.Postgres.TableName)
		require.Equal(t, "[SECRET]", c.Database.Postgres.ConnectionString.String())
	})

	t.Run("invalid config", func(t *testing.T) {
		_, err := newConfigFromFile(t, "testdata/invalid_config.yaml")
		if err == nil || !strings.HasPrefix(err.Error(), "While parsing config:") {
			t.Fatalf("expected invalid configuration file to fail, got %v", err)
		}
	})

	t.Run("missing config", func(t *testing.T) {
		_, err := newConfigFromFile(t, "testdata/valid_configgggggggggggggggg.yaml")
		if !errors.Is(err, os.ErrNotExist) {
			t.Fatalf("expected missing configuration file to fail, got %v", err)
		}
	})

	t.Run("numeric server id", func(t *testing.T) {
		_, err := newConfigFromFile(t, "testdata/numeric_server_id.yaml")
		if err == nil || !strings.Contains(err.Error(), config.ErrMustBeString.Error()) {
			t.Fatalf("expected numeric server id to fail, got %v", err)
		}
	})

	t.Run("bad quorum", func(t *testing.T) {
		_, err := newConfigFromFile(t, "testdata/bad_quorum.yaml")
		require.ErrorIs(t, err, config.ErrInvalidQuorum)
	})
}

func TestConfig_EnvironmentVariables(t *testing.T) {
	const dbString = "not://a/database"
	t.Setenv("COMMITGRAPH_DATABASE_POSTGRES_CONNECTION_STRING", dbString)
	t.Setenv("COMMITGRAPH_NODE_SERVER_ID", "from-env")

	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.SetEnvPrefix("COMMITGRAPH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // support nested config
	viper.AutomaticEnv()
	viper.SetConfigFile("testdata/valid_config.yaml")
	testutil.MustDo(t, "read config", viper.ReadInConfig())

	c, err := config.NewConfig()
	testutil.MustDo(t, "new config", err)
	testutil.MustDo(t, "validate", c.Validate())
	params, err := c.GetKVParams()
	testutil.MustDo(t, "kv params", err)
	if params.Postgres.ConnectionString != dbString {
		t.Errorf("got DB connection string %s, expected to override to %s", params.Postgres.ConnectionString, dbString)
	}
	require.Equal(t, "from-env", c.GetNodeConfig().Namespace.ServerID)
}

func TestConfig_Discovery(t *testing.T) {
	owner := testutil.NewKeyPair(t, 1).Public
	other := testutil.NewKeyPair(t, 2).Public

	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set(config.NodeServerIDKey, "self")
	viper.Set(config.DatabaseTypeKey, config.DatabaseTypeMem)
	viper.Set("discovery.owners", []map[string]interface{}{
		{"owner": owner.String(), "masters": []string{"m2", "m1"}},
		{"owner": other.String(), "masters": "m3"},
	})
	c, err := config.NewConfig()
	testutil.MustDo(t, "new config", err)
	testutil.MustDo(t, "validate", c.Validate())

	d, err := c.GetDiscovery()
	testutil.MustDo(t, "discovery", err)
	masters, err := d.Masters(t.Context(), owner)
	testutil.MustDo(t, "masters", err)
	require.Equal(t, []string{"m1", "m2"}, masters)
	masters, err = d.Masters(t.Context(), other)
	testutil.MustDo(t, "other masters", err)
	require.Equal(t, []string{"m3"}, masters)

	t.Run("bad owner", func(t *testing.T) {
		viper.Set("discovery.owners", []map[string]interface{}{{"owner": "zNotAKey", "masters": "m1"}})
		c, err := config.NewConfig()
		testutil.MustDo(t, "new config", err)
		require.ErrorIs(t, c.Validate(), config.ErrInvalidDiscoveryKeys)
	})
}

func TestConfig_JSONLogger(t *testing.T) {
	logfile := filepath.Join(t.TempDir(), "commitgraph_json_logger_test.log")
	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set(config.LoggingFormatKey, "json")
	viper.Set(config.LoggingOutputKey, logfile)
	_, err := config.NewConfig()
	testutil.MustDo(t, "new config", err)
	t.Cleanup(func() {
		_ = logging.SetOutputs([]string{"-"}, 0, 0)
		logging.SetOutputFormat(config.DefaultLoggingFormat)
	})

	logging.Default().Info("some message that I should be looking for")

	content, err := os.Open(logfile)
	if err != nil {
		t.Fatalf("unexpected error reading log file: %s", err)
	}
	defer func() {
		_ = content.Close()
	}()
	reader := bufio.NewReader(content)
	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("could not read line from logfile: %s", err)
	}
	m := make(map[string]interface{})
	err = json.Unmarshal([]byte(line), &m)
	if err != nil {
		t.Fatalf("could not parse JSON line from logfile: %s", err)
	}
	if _, ok := m["msg"]; !ok {
		t.Fatalf("expected a msg field, could not find one")
	}
}
