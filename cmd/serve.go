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
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ademuri/scrobble-server/internal/api"
	"github.com/ademuri/scrobble-server/internal/auth"
	"github.com/ademuri/scrobble-server/internal/config"
	"github.com/ademuri/scrobble-server/internal/images"
	"github.com/ademuri/scrobble-server/internal/importer"
	"github.com/ademuri/scrobble-server/internal/logging"
	"github.com/ademuri/scrobble-server/internal/rules"
	"github.com/ademuri/scrobble-server/internal/settings"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Runs the HTTP API",
	Long:  `Serves the native API under ` + api.BasePath + ` and uploaded images under /images.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	var host string
	serveCmd.Flags().StringVar(&host, "host", "", "Address to listen on")
	viper.BindPFlag("host", serveCmd.Flags().Lookup("host"))

	var port int
	serveCmd.Flags().IntVarP(&port, "port", "p", 42010, "Port to listen on")
	viper.BindPFlag("port", serveCmd.Flags().Lookup("port"))
}

func serve(ctx context.Context, cfg config.Config) error {
	logger := logging.Component("serve")

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			TracesSampleRate: 1.0,
			Release:          api.Version,
		}); err != nil {
			return fmt.Errorf("sentry.Init: %w", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	set, err := settings.New(cfg.SettingsFile())
	if err != nil {
		return err
	}
	keys, err := auth.NewKeyStore(cfg.KeysFile())
	if err != nil {
		return err
	}
	img, err := images.New(cfg.ImagesDir())
	if err != nil {
		return err
	}
	if err := rules.Apply(ctx, cfg.RulesDir(), db); err != nil {
		return err
	}

	var imp *importer.Importer
	if cfg.LastFM.APIKey != "" && cfg.LastFM.Secret != "" {
		imp = importer.New(cfg.LastFM.APIKey, cfg.LastFM.Secret, db)
	}

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	server := api.New(api.Deps{
		Config:   cfg,
		Store:    db,
		Settings: set,
		Keys:     keys,
		Images:   img,
		Importer: imp,
		Sentry:   cfg.SentryDSN != "",
	})
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Infof("Starting server on %s", srv.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdown)
}
