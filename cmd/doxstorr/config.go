package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var v = viper.New()

// initConfig wires the root command's persistent flags into a single
// viper instance: flags override environment variables, which override
// a config file, which overrides the built-in defaults below.
func initConfig(cmd *cobra.Command) error {
	v.SetConfigType("yaml")

	if cfgFile, _ := cmd.PersistentFlags().GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else if configDir, err := os.UserConfigDir(); err == nil {
		v.SetConfigFile(filepath.Join(configDir, "doxstorr", "config.yaml"))
	}

	v.SetEnvPrefix("DOXSTORR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("data-dir", "")
	v.SetDefault("log-level", "info")
	v.SetDefault("log-json", false)
	v.SetDefault("cache-capacity", 1000)
	v.SetDefault("block-workers", 0)

	if err := v.BindPFlags(cmd.PersistentFlags()); err != nil {
		return err
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if !os.IsNotExist(err) {
				return err
			}
		}
	}
	return nil
}

func requiredDataDir() (string, error) {
	dir := v.GetString("data-dir")
	if dir == "" {
		return "", errMissingDataDir
	}
	return dir, nil
}
