package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mcmetrics/plugin-tracker/pkg/client"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	cmd := &cobra.Command{
		Use:     "plugin-tracker-sync",
		Short:   "Trigger a plugin release sync",
		Version: version,
		Args:    cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			if err := run(log, cmd, args); err != nil {
				log.Errorf("ERROR: %v", err)
				os.Exit(1)
			}
		},
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	cmd.PersistentFlags().StringArrayP("tracker-url", "t", []string{"http://127.0.0.1:8080"}, "the plugin tracker URL")
	cmd.PersistentFlags().String("token", os.Getenv("PLUGIN_TRACKER_TOKEN"), "bearer token")
	cmd.PersistentFlags().StringP("plugin-id", "p", "", "the plugin id")
	cmd.PersistentFlags().SortFlags = false

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func run(log *logrus.Logger, cmd *cobra.Command, _ []string) error {
	log.Infof("starting plugin-tracker-sync (version=%s)", version)
	trackerURLs := must(cmd.PersistentFlags().GetStringArray("tracker-url"))
	if len(trackerURLs) == 0 {
		return errors.New("no tracker URLs provided")
	}
	token := must(cmd.PersistentFlags().GetString("token"))
	if token == "" {
		return errors.New("no bearer token provided")
	}
	pluginID := must(cmd.PersistentFlags().GetString("plugin-id"))
	if pluginID == "" {
		return errors.New("no plugin id provided")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for _, url := range trackerURLs {
		url = strings.TrimSuffix(url, "/")
		log.Infof("syncing plugin %s on %s", pluginID, url)
		c := client.New(url)
		syncedVersion, err := c.SyncPlugin(ctx, token, pluginID)
		if err != nil {
			log.Errorf("failed to sync plugin on %s: %v", url, err)
			continue
		}
		log.Infof("synced plugin %s to version %s", pluginID, syncedVersion)
	}

	return nil
}
