package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/limbodancer-labs/limbodancer-mcp/internal/apierr"
	"github.com/limbodancer-labs/limbodancer-mcp/internal/ontology"
	"github.com/limbodancer-labs/limbodancer-mcp/internal/ontology/boltrepo"
	"github.com/limbodancer-labs/limbodancer-mcp/internal/scope"
)

func newOntologyCmd() *cobra.Command {
	var (
		tenantID  string
		packageID string
		channelID string
		format    string
	)

	cmd := &cobra.Command{
		Use:   "ontology",
		Short: "Ontology catalog administration",
	}
	cmd.PersistentFlags().StringVar(&tenantID, "tenant", "", "tenant id")
	cmd.PersistentFlags().StringVar(&packageID, "package", "", "package id")
	cmd.PersistentFlags().StringVar(&channelID, "channel", "", "channel id")

	openRuntime := func() (*ontology.Runtime, scope.Scope, func(), error) {
		cfg, err := loadConfig()
		if err != nil {
			return nil, scope.Empty, nil, err
		}
		logger, err := buildLogger(cfg, false)
		if err != nil {
			return nil, scope.Empty, nil, err
		}

		sc, err := scope.ResolveStdio(scope.StdioParams{
			TenantID:  tenantID,
			PackageID: packageID,
			ChannelID: channelID,
		}, cfg)
		if err != nil {
			logger.Sync()
			return nil, scope.Empty, nil, err
		}

		repo, err := boltrepo.Open(cfg.Stores.OntologyDBPath, logger.Sugar())
		if err != nil {
			logger.Sync()
			return nil, scope.Empty, nil, apierr.Wrap(apierr.KindUpstreamError, "open ontology repository", err)
		}

		rt := ontology.NewRuntime(repo, cfg.Governance.ToOntology())
		cleanup := func() {
			repo.Close()
			logger.Sync()
		}
		return rt, sc, cleanup, nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Load and referentially validate the scope's catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, sc, cleanup, err := openRuntime()
			if err != nil {
				return err
			}
			defer cleanup()

			if err := rt.Load(cmd.Context(), sc); err != nil {
				fmt.Printf("scope %s: INVALID: %s\n", sc, apierr.Of(err).Message)
				return err
			}
			fmt.Printf("scope %s: valid\n", sc)
			return nil
		},
	})

	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Export the scope's catalog as JSON-LD or Turtle",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, sc, cleanup, err := openRuntime()
			if err != nil {
				return err
			}
			defer cleanup()

			if err := rt.Load(cmd.Context(), sc); err != nil {
				return err
			}

			var data []byte
			switch ontology.ExportFormat(format) {
			case ontology.FormatJSONLD:
				data, err = rt.ExportJSONLD(sc)
			case ontology.FormatTurtle:
				data, err = rt.ExportTurtle(sc)
			default:
				return fmt.Errorf("format must be jsonld or turtle")
			}
			if err != nil {
				return err
			}
			os.Stdout.Write(data)
			return nil
		},
	}
	exportCmd.Flags().StringVar(&format, "format", "jsonld", "export format (jsonld or turtle)")
	cmd.AddCommand(exportCmd)

	return cmd
}
