package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/limbodancer-labs/limbodancer-mcp/internal/apierr"
	"github.com/limbodancer-labs/limbodancer-mcp/internal/graphstore"
	"github.com/limbodancer-labs/limbodancer-mcp/internal/historystore"
	"github.com/limbodancer-labs/limbodancer-mcp/internal/memoryindex"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "History store administration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create or update the history store schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger, err := buildLogger(cfg, false)
			if err != nil {
				return err
			}
			defer logger.Sync()

			store, err := historystore.Open(cfg.Stores.HistoryDBPath, logger.Sugar())
			if err != nil {
				return apierr.Wrap(apierr.KindUpstreamError, "open history store", err)
			}
			defer store.Close()
			if err := store.Migrate(cmd.Context()); err != nil {
				return apierr.Wrap(apierr.KindUpstreamError, "migrate history store", err)
			}
			fmt.Println("history store schema up to date")
			return nil
		},
	})
	return cmd
}

func newVectorCmd() *cobra.Command {
	var dim int

	cmd := &cobra.Command{
		Use:   "vector",
		Short: "Vector index administration",
	}
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create the vector index schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger, err := buildLogger(cfg, false)
			if err != nil {
				return err
			}
			defer logger.Sync()

			if cfg.Stores.VectorDSN == "" {
				return fmt.Errorf("vector init: %w: stores.vector_dsn", errNoEndpoint)
			}

			index, err := memoryindex.Open(cfg.Stores.BleveIndexPath, cfg.Stores.VectorDSN, nil, logger.Sugar())
			if err != nil {
				return apierr.Wrap(apierr.KindUpstreamError, "open memory index", err)
			}
			defer index.Close()
			if err := index.EnsureIndex(cmd.Context(), dim); err != nil {
				return apierr.Wrap(apierr.KindUpstreamError, "ensure vector index", err)
			}
			fmt.Printf("vector index ready (dim=%d)\n", dim)
			return nil
		},
	}
	initCmd.Flags().IntVar(&dim, "dim", 1536, "embedding dimensionality")
	cmd.AddCommand(initCmd)
	return cmd
}

func newKGCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kg",
		Short: "Knowledge graph administration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "ping",
		Short: "Verify connectivity to the graph store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger, err := buildLogger(cfg, false)
			if err != nil {
				return err
			}
			defer logger.Sync()

			if cfg.Stores.GraphURI == "" {
				return fmt.Errorf("kg ping: %w: stores.graph_uri", errNoEndpoint)
			}

			store, err := graphstore.Open(cmd.Context(), cfg.Stores.GraphURI, cfg.Stores.GraphUsername, cfg.Stores.GraphPassword, logger.Sugar())
			if err != nil {
				return apierr.Wrap(apierr.KindUpstreamError, "connect graph store", err)
			}
			defer store.Close(cmd.Context())
			if err := store.Ping(cmd.Context()); err != nil {
				return apierr.Wrap(apierr.KindUpstreamError, "graph store ping", err)
			}
			fmt.Println("graph store reachable")
			return nil
		},
	})
	return cmd
}
