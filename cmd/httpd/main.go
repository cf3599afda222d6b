package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonesrussell/support-search/internal/api"
	"github.com/jonesrussell/support-search/internal/config"
	"github.com/jonesrussell/support-search/internal/elasticsearch"
	"github.com/jonesrussell/support-search/internal/elasticsearch/mappings"
	"github.com/jonesrussell/support-search/internal/indexer"
	"github.com/jonesrussell/support-search/internal/lifecycle"
	"github.com/jonesrussell/support-search/internal/logger"
	"github.com/jonesrussell/support-search/internal/mapper"
	"github.com/jonesrussell/support-search/internal/query"
	"github.com/jonesrussell/support-search/internal/store"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "support-search: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(config.Path("config.yml"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting support search service",
		logger.String("version", cfg.Service.Version),
	)

	ctx := context.Background()

	esCfg := &elasticsearch.Config{
		URLs:        cfg.Elasticsearch.URLs,
		CloudID:     cfg.Elasticsearch.CloudID,
		Username:    cfg.Elasticsearch.Username,
		Password:    cfg.Elasticsearch.Password,
		Version:     cfg.Elasticsearch.Version,
		VerifyCerts: cfg.Elasticsearch.VerifyCerts,
		Timeout:     cfg.Elasticsearch.Timeout,
		MaxRetries:  cfg.Elasticsearch.MaxRetries,
	}
	resolver := elasticsearch.NewResolver(esCfg, log)
	es, err := elasticsearch.NewClient(ctx, esCfg, resolver, log)
	if err != nil {
		return fmt.Errorf("connect elasticsearch: %w", err)
	}

	conn, err := store.NewConnection(&store.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.Database,
		SSLMode:         cfg.Database.SSLMode,
		MaxConnections:  cfg.Database.MaxConnections,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer conn.Close()

	source := store.NewSQLSource(conn)

	manager := lifecycle.NewManager(es, cfg.Indexing.Prefix, mappings.DefaultSettings(), log)
	sync := indexer.New(es, mapper.DefaultRegistry(), indexer.Options{
		Prefix:       cfg.Indexing.Prefix,
		LiveIndexing: cfg.Indexing.LiveIndexing,
		TestMode:     cfg.Indexing.TestMode,
		ChunkSize:    cfg.Indexing.ChunkSize,
		BulkWorkers:  cfg.Indexing.BulkWorkers,
	}, log)
	search := query.NewService(es, cfg.Indexing.Prefix, log)

	handler := api.NewHandler(manager, sync, search, source, es, log)
	server := api.NewServer(handler, api.ServerConfig{
		Port:  cfg.Service.Port,
		Debug: cfg.Service.Debug,
	}, log)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	log.Info("service started", logger.Int("port", cfg.Service.Port))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		if err != nil {
			return err
		}
	case sig := <-sigChan:
		log.Info("received signal", logger.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	log.Info("service stopped")
	return nil
}
