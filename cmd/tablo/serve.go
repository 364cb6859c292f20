package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/tablodata/tablo/pkg/auth"
	"github.com/tablodata/tablo/pkg/metrics"
	"github.com/tablodata/tablo/pkg/rest"
	"github.com/tablodata/tablo/pkg/schema"
	"github.com/tablodata/tablo/pkg/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dataset API server",
	Long:  `Starts the HTTP server exposing every loaded dataset table as a paginated, linked listing.`,
	RunE:  runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringP("pg.connString", "c", "", "PostgreSQL connection string")
	f.StringP("rest.listenAddr", "l", "", "listen address")
	f.String("rest.baseURL", "", "external base URL for hrefs")
	f.String("schema.dir", "", "directory holding dataset schema documents")
	f.String("schema.profiles", "", "authorization profiles document")
	f.String("metrics.listenAddr", "", "Prometheus metrics listen address")

	viper.BindPFlags(f)
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if cfg == nil {
		log.Fatal("Configuration not loaded")
	}

	logger, err := buildLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if addr := viper.GetString("rest.listenAddr"); addr != "" {
		cfg.REST.ListenAddr = addr
	}
	if dir := viper.GetString("schema.dir"); dir != "" {
		cfg.Schema.Dir = dir
	}
	if cs := viper.GetString("pg.connString"); cs != "" {
		cfg.PG.ConnString = cs
	}

	cache := schema.NewCache(func(ctx context.Context) (*schema.Set, error) {
		if cfg.Schema.Dir != "" {
			return schema.LoadDir(cfg.Schema.Dir)
		}
		if len(cfg.Schema.URLs) > 0 {
			return schema.Fetch(ctx, http.DefaultClient, cfg.Schema.URLs...)
		}
		return nil, fmt.Errorf("no schema source configured")
	})
	if err := cache.Init(ctx); err != nil {
		return fmt.Errorf("load schemas: %w", err)
	}

	var profiles []*auth.Profile
	if cfg.Schema.Profiles != "" {
		profiles, err = auth.LoadProfiles(cfg.Schema.Profiles)
		if err != nil {
			return fmt.Errorf("load profiles: %w", err)
		}
	}

	if cfg.PG.ConnString == "" {
		return fmt.Errorf("PostgreSQL connection string required")
	}
	pool, err := pgxpool.New(ctx, cfg.PG.ConnString)
	if err != nil {
		return fmt.Errorf("create connection pool: %w", err)
	}
	defer pool.Close()

	var wg sync.WaitGroup
	if cfg.Metrics.ListenAddr != "" {
		go metrics.StartPrometheusServer(ctx, &wg, &metrics.PromServerOpts{Addr: cfg.Metrics.ListenAddr})
	}

	server := rest.NewServer(cfg, cache, storage.NewPostgres(pool), profiles, logger)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-stop
		logger.Info("shutting down")
		cancel()
	}()

	if err := server.Start(ctx); err != nil && err != http.ErrServerClosed {
		return err
	}
	wg.Wait()
	return nil
}

func buildLogger() (*zap.Logger, error) {
	if logLevel == "none" {
		return zap.NewNop(), nil
	}
	level, err := zap.ParseAtomicLevel(logLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", logLevel, err)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = level
	return zcfg.Build()
}
