package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/limbodancer-labs/limbodancer-mcp/internal/apierr"
	"github.com/limbodancer-labs/limbodancer-mcp/internal/config"
	"github.com/limbodancer-labs/limbodancer-mcp/internal/graphstore"
	"github.com/limbodancer-labs/limbodancer-mcp/internal/historystore"
	"github.com/limbodancer-labs/limbodancer-mcp/internal/memoryindex"
	"github.com/limbodancer-labs/limbodancer-mcp/internal/observability"
	"github.com/limbodancer-labs/limbodancer-mcp/internal/ontology"
	"github.com/limbodancer-labs/limbodancer-mcp/internal/ontology/boltrepo"
	"github.com/limbodancer-labs/limbodancer-mcp/internal/orchestrator"
	"github.com/limbodancer-labs/limbodancer-mcp/internal/registry"
	"github.com/limbodancer-labs/limbodancer-mcp/internal/resilience"
	"github.com/limbodancer-labs/limbodancer-mcp/internal/rpc"
	"github.com/limbodancer-labs/limbodancer-mcp/internal/scope"
	"github.com/limbodancer-labs/limbodancer-mcp/internal/tools"
	"github.com/limbodancer-labs/limbodancer-mcp/internal/transport"
)

func newServeCmd() *cobra.Command {
	var (
		stdio     bool
		tenantID  string
		packageID string
		channelID string
		listen    string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server (HTTP by default, --stdio for line-delimited stdio)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.HTTP.ListenAddr = listen
			}
			if tenantID != "" {
				cfg.Tenancy.DefaultTenantID = tenantID
			}
			if packageID != "" {
				cfg.Tenancy.DefaultPackageID = packageID
			}
			if channelID != "" {
				cfg.Tenancy.DefaultChannelID = channelID
			}

			logger, err := buildLogger(cfg, stdio)
			if err != nil {
				return err
			}
			defer logger.Sync()

			return runServe(cmd.Context(), cfg, logger.Sugar(), serveOpts{
				stdio:     stdio,
				tenantID:  tenantID,
				packageID: packageID,
				channelID: channelID,
			})
		},
	}

	cmd.Flags().BoolVar(&stdio, "stdio", false, "serve JSON-RPC over stdin/stdout")
	cmd.Flags().StringVar(&tenantID, "tenant", "", "tenant id for stdio mode / default tenant")
	cmd.Flags().StringVar(&packageID, "package", "", "package id for stdio mode / default package")
	cmd.Flags().StringVar(&channelID, "channel", "", "channel id for stdio mode / default channel")
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config)")
	return cmd
}

type serveOpts struct {
	stdio     bool
	tenantID  string
	packageID string
	channelID string
}

// unavailableGraphStore stands in when no graph endpoint is configured:
// graph operations surface upstream-error instead of failing at startup,
// since the graph is an optional collaborator for most tool calls.
type unavailableGraphStore struct{}

func (unavailableGraphStore) err() error {
	return apierr.New(apierr.KindUpstreamError, "no graph store configured")
}
func (u unavailableGraphStore) GetVertex(context.Context, string, string) (tools.Vertex, bool, error) {
	return tools.Vertex{}, false, u.err()
}
func (u unavailableGraphStore) GetVertexProperty(context.Context, string, string, string) (any, bool, error) {
	return nil, false, u.err()
}
func (u unavailableGraphStore) UpsertVertexProperty(context.Context, string, string, string, any) error {
	return u.err()
}
func (u unavailableGraphStore) UpsertEdge(context.Context, string, string, string, string) error {
	return u.err()
}
func (u unavailableGraphStore) Query(context.Context, string, []string, []tools.GraphFilter, []tools.Traversal, int) ([]tools.Vertex, string, error) {
	return nil, "", u.err()
}
func (u unavailableGraphStore) Ping(context.Context) error { return u.err() }

func runServe(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger, opts serveOpts) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetricsManager(logger)
	tracing, err := observability.NewTracingManager(logger, observability.TracingConfig{
		ServiceName:    "limbodancer-mcp",
		ServiceVersion: version,
		SampleRate:     1.0,
	})
	if err != nil {
		return err
	}
	defer tracing.Shutdown(context.Background())

	// Ontology runtime over its bbolt repository.
	ontRepo, err := boltrepo.Open(cfg.Stores.OntologyDBPath, logger)
	if err != nil {
		return apierr.Wrap(apierr.KindUpstreamError, "open ontology repository", err)
	}
	defer ontRepo.Close()
	runtime := ontology.NewRuntime(ontRepo, cfg.Governance.ToOntology())
	prefixes := ontology.NewPrefixTable(nil)
	mapper := ontology.NewPropertyKeyMapper(runtime, prefixes)

	// Stores.
	history, err := historystore.Open(cfg.Stores.HistoryDBPath, logger)
	if err != nil {
		return apierr.Wrap(apierr.KindUpstreamError, "open history store", err)
	}
	defer history.Close()

	memory, err := memoryindex.Open(cfg.Stores.BleveIndexPath, cfg.Stores.VectorDSN, nil, logger)
	if err != nil {
		return apierr.Wrap(apierr.KindUpstreamError, "open memory index", err)
	}
	defer memory.Close()

	var graph tools.GraphStore = unavailableGraphStore{}
	var graphReady transport.ReadinessChecker
	if cfg.Stores.GraphURI != "" {
		gs, err := graphstore.Open(ctx, cfg.Stores.GraphURI, cfg.Stores.GraphUsername, cfg.Stores.GraphPassword, logger)
		if err != nil {
			return apierr.Wrap(apierr.KindUpstreamError, "connect graph store", err)
		}
		defer gs.Close(context.Background())
		graph = gs
		graphReady = gs.Ping
	}

	// Tool handlers and registry.
	historyHandlers := tools.NewHistoryHandlers(history)
	memoryHandlers := tools.NewMemoryHandlers(memory)
	graphHandlers := tools.NewGraphHandlers(graph, mapper, func(msg string) { logger.Warn(msg) })

	reg, err := registry.NewRegistry(tools.Registrations(historyHandlers, memoryHandlers, graphHandlers, tools.Defaults{
		Timeout: cfg.Resilience.Timeout,
	}))
	if err != nil {
		return err
	}

	basePolicy := resilience.Policy{
		Timeout:          cfg.Resilience.Timeout,
		MaxRetries:       cfg.Resilience.MaxRetries,
		BaseBackoff:      cfg.Resilience.BaseBackoff,
		MaxBackoff:       cfg.Resilience.MaxBackoff,
		JitterFactor:     cfg.Resilience.JitterFactor,
		FailureThreshold: cfg.Resilience.FailureThreshold,
		SamplingDuration: cfg.Resilience.SamplingDuration,
		BreakDuration:    cfg.Resilience.BreakDuration,
	}
	dispatcher := rpc.NewDispatcher(reg, basePolicy,
		cfg.Resilience.MaxConcurrentToolExecutions, cfg.Resilience.PermitAcquireTimeout,
		rpc.ServerInfo{Name: "limbodancer-mcp", Version: version},
		logger, metrics).WithTracer(tracing.Tracer())

	orch := orchestrator.New(cfg.Orchestrator.ChannelCapacity, cfg.Orchestrator.HeartbeatInterval, logger, metrics)

	if opts.stdio {
		params := scope.StdioParams{
			TenantID:  firstNonEmpty(opts.tenantID, os.Getenv("LIMBODANCER_TENANT")),
			PackageID: firstNonEmpty(opts.packageID, os.Getenv("LIMBODANCER_PACKAGE")),
			ChannelID: firstNonEmpty(opts.channelID, os.Getenv("LIMBODANCER_CHANNEL")),
		}
		sc, err := scope.ResolveStdio(params, cfg)
		if err != nil {
			return err
		}
		server := transport.NewStdioServer(dispatcher, sc, os.Stdin, os.Stdout, os.Stderr, logger)
		if err := server.Run(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return context.Canceled
			}
			return err
		}
		return nil
	}

	if cfg.HTTP.ListenAddr == "" {
		return fmt.Errorf("serve: %w: http.listen_addr", errNoEndpoint)
	}

	readiness := []transport.ReadinessChecker{
		func(ctx context.Context) error {
			_, err := history.SessionExists(ctx, "readiness-probe", "readiness-probe")
			return err
		},
	}
	if graphReady != nil {
		readiness = append(readiness, graphReady)
	}

	resolver := scope.NewHTTPResolver(cfg)
	resolver.Warn = func(msg string) { logger.Warn(msg) }

	httpServer := transport.NewHTTPServer(cfg, dispatcher, orch, runtime, resolver, metrics.Handler(), logger, readiness...)

	errCh := make(chan error, 1)
	go func() { errCh <- httpServer.ListenAndServe() }()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		dispatcher.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return context.Canceled
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
