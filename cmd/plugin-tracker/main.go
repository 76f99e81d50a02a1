package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/mcmetrics/plugin-tracker/internal/auth"
	"github.com/mcmetrics/plugin-tracker/internal/config"
	"github.com/mcmetrics/plugin-tracker/internal/metrics"
	"github.com/mcmetrics/plugin-tracker/internal/server"
	"github.com/mcmetrics/plugin-tracker/internal/store"
	"github.com/sirupsen/logrus"
)

var version = "dev"

func setupLogger() *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	return log
}

func run(log *logrus.Logger) error {
	cfg, err := config.NewServerConfigFromEnv()
	if err != nil {
		return err
	}
	cfg.Version = version

	log.Println("connecting to database...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	mongoClient, err := cfg.CreateMongoClient(ctx)
	cancel()
	if err != nil {
		return err
	}

	st := store.NewMongo(mongoClient.Database(cfg.MongoDatabase))
	if err := st.EnsureIndexes(context.Background()); err != nil {
		return err
	}

	if !cfg.DisableMetrics {
		log.Println("setting up metrics exporter...")
		exporter, mErr := metrics.NewExporter(cfg)
		if mErr != nil {
			return mErr
		}
		defer exporter.Flush()
		defer exporter.StopMetricsExporter()
	}

	var storage *s3.Client
	if cfg.ArchiveEnabled() {
		storage, err = cfg.CreateS3Client()
		if err != nil {
			return err
		}
	}

	log.Println("starting server...")
	srv := &http.Server{
		Addr:    cfg.GetServerAddr(),
		Handler: server.New(log, st, auth.NewJWT(cfg.JWTSecret), cfg.CreateGitHubClient(), storage, cfg),
	}
	go func() {
		log.Printf("listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Error(err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	log.Println("closing database...")
	if err := mongoClient.Disconnect(context.Background()); err != nil {
		log.Error(err)
	}

	log.Println("stopping server...")
	ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); errors.Is(err, context.DeadlineExceeded) {
		log.Println("closing server...")
		if closeErr := srv.Close(); closeErr != nil {
			return closeErr
		}
	} else if err != nil {
		return err
	}
	log.Println("server stopped!")
	return nil
}

func main() {
	log := setupLogger()
	if err := run(log); err != nil {
		log.Fatal(err)
	}
}
