package config

import (
	"github.com/spf13/viper"
	"github.com/treeverse/commitgraph/pkg/logging"
)

func setupLogger() error {
	// set output format
	logging.SetOutputFormat(viper.GetString(LoggingFormatKey))

	// set outputs
	err := logging.SetOutputs(viper.GetStringSlice(LoggingOutputKey),
		viper.GetInt(LoggingFileMaxSizeMBKey), viper.GetInt(LoggingFilesKeepKey))
	if err != nil {
		return err
	}

	// set level
	logging.SetLevel(viper.GetString(LoggingLevelKey))
	return nil
}
