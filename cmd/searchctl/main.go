// Command searchctl administers the search indices from the terminal:
// provisioning, status, zero-downtime migration and bulk reindexing.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/support-search/internal/config"
	"github.com/jonesrussell/support-search/internal/domain"
	"github.com/jonesrussell/support-search/internal/elasticsearch"
	"github.com/jonesrussell/support-search/internal/elasticsearch/mappings"
	"github.com/jonesrussell/support-search/internal/indexer"
	"github.com/jonesrussell/support-search/internal/lifecycle"
	"github.com/jonesrussell/support-search/internal/logger"
	"github.com/jonesrussell/support-search/internal/mapper"
	"github.com/jonesrussell/support-search/internal/store"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "searchctl",
		Short:         "Administer the support search indices",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yml", "path to the config file")

	root.AddCommand(
		statusCmd(),
		initCmd(),
		migrateCmd(),
		reindexCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "searchctl: %v\n", err)
		os.Exit(1)
	}
}

// env bundles everything a subcommand needs.
type env struct {
	cfg     *config.Config
	log     logger.Logger
	es      *elasticsearch.Client
	manager *lifecycle.Manager
	indexer *indexer.Indexer
}

func setup(ctx context.Context) (*env, error) {
	cfg, err := config.Load(config.Path(configPath))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(logger.Config{Level: cfg.Logging.Level})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

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
	es, err := elasticsearch.NewClient(ctx, esCfg, elasticsearch.NewResolver(esCfg, log), log)
	if err != nil {
		return nil, fmt.Errorf("connect elasticsearch: %w", err)
	}

	return &env{
		cfg:     cfg,
		log:     log,
		es:      es,
		manager: lifecycle.NewManager(es, cfg.Indexing.Prefix, mappings.DefaultSettings(), log),
		indexer: indexer.New(es, mapper.DefaultRegistry(), indexer.Options{
			Prefix:       cfg.Indexing.Prefix,
			LiveIndexing: true,
			ChunkSize:    cfg.Indexing.ChunkSize,
			BulkWorkers:  cfg.Indexing.BulkWorkers,
		}, log),
	}, nil
}

func (e *env) openSource() (*store.SQLSource, func(), error) {
	conn, err := store.NewConnection(&store.Config{
		Host:            e.cfg.Database.Host,
		Port:            e.cfg.Database.Port,
		User:            e.cfg.Database.User,
		Password:        e.cfg.Database.Password,
		Database:        e.cfg.Database.Database,
		SSLMode:         e.cfg.Database.SSLMode,
		MaxConnections:  e.cfg.Database.MaxConnections,
		MaxIdleConns:    e.cfg.Database.MaxIdleConns,
		ConnMaxLifetime: e.cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	return store.NewSQLSource(conn), func() { _ = conn.Close() }, nil
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show cluster protocol version and per-type index state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			e, err := setup(ctx)
			if err != nil {
				return err
			}

			info, err := e.es.Info(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("cluster:  %s (server %s, protocol v%s)\n\n",
				info.ClusterName, info.VersionNumber, e.es.Capabilities().Version())

			statuses, err := e.manager.Status(ctx)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TYPE\tWRITE INDEX\tREAD INDEX\tMAPPING")
			for _, st := range statuses {
				mapping := st.CodeVersion
				switch {
				case st.WriteIndex == "":
					mapping = "not provisioned"
				case st.Drifted:
					mapping = fmt.Sprintf("DRIFT live=%s code=%s", st.LiveVersion, st.CodeVersion)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", st.DocType, st.WriteIndex, st.ReadIndex, mapping)
			}
			return w.Flush()
		},
	}
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create missing indices and aliases for every document type",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			if err := e.manager.EnsureAll(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("indices initialized")
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	var skipBackfill bool

	cmd := &cobra.Command{
		Use:   "migrate <doc_type>",
		Short: "Build a new index generation and repoint aliases without downtime",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			docType := args[0]

			e, err := setup(ctx)
			if err != nil {
				return err
			}

			var source domain.Source
			if !skipBackfill {
				sqlSource, closeSource, err := e.openSource()
				if err != nil {
					return err
				}
				defer closeSource()
				source = sqlSource
			}

			return runMigration(ctx, e.manager, e.indexer, source, docType, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&skipBackfill, "skip-backfill", false, "repoint aliases without reloading documents")
	return cmd
}

// migrator is the slice of the lifecycle manager the migration needs.
type migrator interface {
	MigrateWrites(ctx context.Context, docType string) (old, next string, err error)
	MigrateReads(ctx context.Context, docType string) error
}

// backfiller reloads documents into the fresh write generation.
type backfiller interface {
	ReindexAll(ctx context.Context, docType string, source domain.Source) (*indexer.BulkResult, error)
}

// runMigration performs the zero-downtime sequence: new write generation,
// backfill, then repoint reads. A nil source skips the backfill. Partial
// bulk failures do not hold reads on the old generation; the affected
// documents resync on their next live update.
func runMigration(ctx context.Context, m migrator, b backfiller, source domain.Source, docType string, out io.Writer) error {
	old, next, err := m.MigrateWrites(ctx, docType)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "writes migrated: %s -> %s\n", old, next)

	if source != nil {
		res, err := b.ReindexAll(ctx, docType, source)
		if res != nil {
			fmt.Fprintf(out, "backfill: %d indexed, %d failed\n", res.Indexed, res.Failed)
		}
		if err != nil {
			var bulkErr *elasticsearch.BulkError
			if !errors.As(err, &bulkErr) {
				return err
			}
			fmt.Fprintf(out, "backfill finished with %d failed document(s), proceeding\n", len(bulkErr.Items))
		}
	}

	if err := m.MigrateReads(ctx, docType); err != nil {
		return err
	}
	fmt.Fprintf(out, "reads migrated to %s\n", next)

	if old != "" {
		fmt.Fprintf(out, "old generation kept: %s (retire it once verified)\n", old)
	}
	return nil
}

func reindexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reindex <doc_type>",
		Short: "Bulk load every entity of a type into its live write index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := setup(ctx)
			if err != nil {
				return err
			}

			source, closeSource, err := e.openSource()
			if err != nil {
				return err
			}
			defer closeSource()

			res, err := e.indexer.ReindexAll(ctx, args[0], source)
			if res != nil {
				fmt.Printf("%d indexed, %d deleted, %d failed\n", res.Indexed, res.Deleted, res.Failed)
			}
			return err
		},
	}
}
