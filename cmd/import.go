/*
Copyright 2020 Google LLC

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
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ademuri/scrobble-server/internal/config"
	"github.com/ademuri/scrobble-server/internal/importer"
)

type ImportConfig struct {
	User  string
	After string
	Force bool
}

// importCmd represents the import command
var importCmd = &cobra.Command{
	Use:   "import [last.fm user]",
	Short: "Imports scrobbles from last.fm",
	Long: `Fetches the user's listening history from last.fm and stores it as
scrobbles. Needs lastfm.api_key and lastfm.secret to be configured.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return importScrobbles(cmd.Context(), cfg, ImportConfig{
			User:  args[0],
			After: viper.GetString("after"),
			Force: viper.GetBool("force"),
		})
	},
}

func init() {
	rootCmd.AddCommand(importCmd)

	var afterString string
	importCmd.Flags().StringVar(&afterString, "after", "", "Only get listening data after this date, in yyyy-mm-dd format")
	viper.BindPFlag("after", importCmd.Flags().Lookup("after"))

	var force bool
	importCmd.Flags().BoolVarP(&force, "force", "f", false, "Get all listening data, regardless of what's already present (idempotent)")
	viper.BindPFlag("force", importCmd.Flags().Lookup("force"))
}

func importScrobbles(ctx context.Context, cfg config.Config, ic ImportConfig) error {
	if cfg.LastFM.APIKey == "" || cfg.LastFM.Secret == "" {
		return fmt.Errorf("lastfm.api_key and lastfm.secret must be set")
	}

	var opts importer.Options
	if len(ic.After) > 0 {
		after, err := time.ParseInLocation("2006-01-02", ic.After, cfg.Location)
		if err != nil {
			return fmt.Errorf("--after: %w", err)
		}
		opts.After = after
	}
	opts.Force = ic.Force

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	res, err := importer.New(cfg.LastFM.APIKey, cfg.LastFM.Secret, db).Import(ctx, ic.User, opts)
	if err != nil {
		return err
	}
	fmt.Printf("Imported %s new scrobbles (%s fetched, %d pages)\n",
		humanize.Comma(int64(res.Added)), humanize.Comma(int64(res.Fetched)), res.Pages)
	return nil
}
