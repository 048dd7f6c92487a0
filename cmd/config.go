/*
Copyright (c) YugabyteDB, Inc.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	utilsconfig "github.com/pgshift/pgshift/src/utils/config"
)

const (
	// Flag name prefixes (used in CLI flags)
	SourceDBFlagPrefix = "source-"
	TargetDBFlagPrefix = "target-"

	// Config key prefixes (used in config file keys)
	SourceDBConfigPrefix = "source."
	TargetDBConfigPrefix = "target."

	ENV_PREFIX          = "PGSHIFT"
	CONFIG_FILE_ENV     = "PGSHIFT_CONFIG_FILE"
	DEFAULT_CONFIG_NAME = "pgshift-config"
	DEFAULT_CONFIG_TYPE = "yaml"
)

// ConfigFlagOverride represents a CLI flag whose value was set from the config file
// or the environment.
type ConfigFlagOverride struct {
	FlagName  string
	ConfigKey string
	Value     string
}

/*
initConfig initializes the configuration for the given Cobra command.

	It performs the following steps:
	 1. Creates a new Viper instance to isolate config handling for the command.
	 2. Loads the config file given with --config-file, or $PGSHIFT_CONFIG_FILE, or ~/pgshift-config.yaml.
	 3. Validates the file for allowed global keys, sections, and section keys.
	 4. Binds config and PGSHIFT_* environment values to the flags the user did not set.

	This setup ensures CLI > ENV/Config precedence
*/
func initConfig(cmd *cobra.Command) ([]ConfigFlagOverride, error) {
	v := viper.New()
	v.SetEnvPrefix(ENV_PREFIX)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else if os.Getenv(CONFIG_FILE_ENV) != "" {
		v.SetConfigFile(os.Getenv(CONFIG_FILE_ENV))
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(home)
		v.SetConfigName(DEFAULT_CONFIG_NAME)
		v.SetConfigType(DEFAULT_CONFIG_TYPE)
	}

	if err := v.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", v.ConfigFileUsed())
	} else {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	err := utilsconfig.ValidateConfigFile(v)
	if err != nil {
		return nil, err
	}

	overrides, err := bindCobraFlagsToViper(cmd, v)
	if err != nil {
		return nil, fmt.Errorf("failed to bind cobra flags to viper: %w", err)
	}
	return overrides, nil
}

/*
bindCobraFlagsToViper sets every flag the user left unset from the first of:

	<command>.<flag>, <flag>, and for source-/target- flags source.<suffix> or target.<suffix>.
*/
func bindCobraFlagsToViper(cmd *cobra.Command, v *viper.Viper) ([]ConfigFlagOverride, error) {
	var bindErr error
	var overrides []ConfigFlagOverride

	subCmdPath := strings.TrimPrefix(cmd.CommandPath(), cmd.Root().Name())
	subCmdPath = strings.TrimSpace(subCmdPath)
	configKeyPrefix := strings.ReplaceAll(subCmdPath, " ", "-")

	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if bindErr != nil || f.Changed {
			return
		}
		keys := []string{configKeyPrefix + "." + f.Name, f.Name}
		if strings.HasPrefix(f.Name, SourceDBFlagPrefix) {
			keys = append(keys, SourceDBConfigPrefix+strings.TrimPrefix(f.Name, SourceDBFlagPrefix))
		}
		if strings.HasPrefix(f.Name, TargetDBFlagPrefix) {
			keys = append(keys, TargetDBConfigPrefix+strings.TrimPrefix(f.Name, TargetDBFlagPrefix))
		}
		for _, key := range keys {
			if !v.IsSet(key) {
				continue
			}
			val := v.GetString(key)
			if f.Value.Type() == "stringSlice" {
				// yaml lists arrive as "[a b]"
				val = strings.Join(v.GetStringSlice(key), ",")
			}
			err := cmd.Flags().Set(f.Name, val)
			if err != nil {
				bindErr = fmt.Errorf("flag %s from config key %s: %w", f.Name, key, err)
				return
			}
			overrides = append(overrides, ConfigFlagOverride{FlagName: f.Name, ConfigKey: key, Value: val})
			return
		}
	})

	return overrides, bindErr
}
