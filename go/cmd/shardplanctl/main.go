/*
Copyright 2026 The Shardplan Authors.

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

// shardplanctl plans queries against a distribution catalog from the
// command line, mainly for debugging planner behavior.
package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"shardplan.io/shardplan/go/sp/log"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "shardplanctl",
	Short: "Plan queries against a distribution catalog",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configFile != "" {
			viper.SetConfigFile(configFile)
			if err := viper.ReadInConfig(); err != nil {
				return err
			}
		}
		viper.SetEnvPrefix("SHARDPLAN")
		viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
		viper.AutomaticEnv()
		return viper.BindPFlags(cmd.Flags())
	},
}

func main() {
	defer log.Flush()
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (JSON, YAML or TOML)")
	log.RegisterFlags(rootCmd.PersistentFlags())
	if err := rootCmd.Execute(); err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}
}
