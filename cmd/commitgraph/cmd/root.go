package cmd

import (
	"errors"
	"fmt"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/treeverse/commitgraph/pkg/config"
	"github.com/treeverse/commitgraph/pkg/logging"
	"github.com/treeverse/commitgraph/pkg/version"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "commitgraph",
	Short:   "commitgraph stores and replicates signed commit graphs",
	Version: version.Version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

var initOnce sync.Once

//nolint:gochecknoinits
func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is $HOME/.commitgraph/config.yaml)")
}

func loadConfig() *config.Config {
	initOnce.Do(initConfig)
	logger := logging.Default().WithField("phase", "startup")
	cfg, err := config.NewConfig()
	if err != nil {
		logger.WithError(err).Fatal("Load config")
	}
	if cfg.Node.ServerID == "" {
		cfg.Node.ServerID = config.OnlyString(uuid.NewString())
		logger.WithField(logging.ServerIDFieldKey, cfg.Node.ServerID).Warn("No node.server_id configured, using a random one")
	}
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("Invalid config")
	}
	return cfg
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	logger := logging.Default().WithField("phase", "startup")
	if cfgFile != "" {
		logger.WithField("file", cfgFile).Info("Configuration file")
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
		viper.AddConfigPath(".")
		viper.AddConfigPath(path.Join(getHomeDir(), ".commitgraph"))
		viper.AddConfigPath("/etc/commitgraph")
	}

	viper.SetEnvPrefix("COMMITGRAPH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // support nested config
	// read in environment variables
	viper.AutomaticEnv()

	err := viper.ReadInConfig()
	logger = logger.WithField("file", viper.ConfigFileUsed()) // should be called after SetConfigFile
	var errFileNotFound viper.ConfigFileNotFoundError
	if err != nil && !errors.As(err, &errFileNotFound) {
		logger.WithError(err).Fatal("Failed to read config file")
	}
}

// getHomeDir find and return the home directory
func getHomeDir() string {
	home, err := homedir.Dir()
	if err != nil {
		fmt.Println("Get home directory -", err)
		os.Exit(1)
	}
	return home
}
