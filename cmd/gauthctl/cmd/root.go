/*
Copyright © 2026 ESO Maintainer Team

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
	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/external-secrets/gauth/internal/envprovider"
)

var (
	loglevel string
	log      logr.Logger = logr.Discard()
)

var rootCmd = &cobra.Command{
	Use:   "gauthctl",
	Short: "Resolve and inspect Google credentials",
	Long: `gauthctl is a diagnostic tool for the gauth credential-resolution library.

It resolves Application Default Credentials the same way a library caller
would and prints the resulting token metadata, without ever printing the
bearer token value itself.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var lvl zapcore.Level
		if err := lvl.UnmarshalText([]byte(loglevel)); err != nil {
			return err
		}
		zapLog, err := zap.NewProduction(zap.IncreaseLevel(lvl))
		if err != nil {
			return err
		}
		log = zapr.NewLogger(zapLog)
		return nil
	},
}

// Execute runs the root command, returning any error encountered.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&loglevel, "loglevel", "info", "loglevel to use, one of: debug, info, warn, error")
	rootCmd.AddCommand(tokenCmd)
}

func defaultEnv() envprovider.Provider { return envprovider.OS{} }
