package rpc

import (
	"context"
	"encoding/json"
	"time"

	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/limbodancer-labs/limbodancer-mcp/internal/apierr"
	"github.com/limbodancer-labs/limbodancer-mcp/internal/registry"
	"github.com/limbodancer-labs/limbodancer-mcp/internal/resilience"
	"github.com/limbodancer-labs/limbodancer-mcp/internal/scope"
)

const protocolVersion = "2024-11-01"

// ServerInfo is echoed back from initialize.
type ServerInfo struct {
	Name    string
	Version string
}

// Dispatcher routes JSON-RPC requests to tool registrations, layering
// the registry/permit/breaker pipeline on top of tools/call.
type Dispatcher struct {
	registry   *registry.Registry
	executors  map[string]*resilience.Executor
	semaphore  *resilience.Semaphore
	acquireTimeout time.Duration
	info       ServerInfo
	logger     *zap.SugaredLogger
	metrics    MetricsRecorder
	tracer     oteltrace.Tracer
	shutdown   chan struct{}
}

// MetricsRecorder receives per-call outcomes; implementations live in
// internal/observability.
type MetricsRecorder interface {
	RecordToolCall(toolName, tenantID string, outcome resilience.Outcome)
}

type noopMetrics struct{}

func (noopMetrics) RecordToolCall(string, string, resilience.Outcome) {}

// NewDispatcher builds a dispatcher over reg, one Executor per
// registered tool (each with its own circuit breaker), and a global
// concurrency semaphore of globalPermits permits. Each tool's Executor
// uses basePolicy for the retry/circuit knobs but the tool's own
// Timeout and Retryable flag from its Registration, the two knobs a
// tool declaration may override.
func NewDispatcher(reg *registry.Registry, basePolicy resilience.Policy, globalPermits int, acquireTimeout time.Duration, info ServerInfo, logger *zap.SugaredLogger, metrics MetricsRecorder) *Dispatcher {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	executors := make(map[string]*resilience.Executor, len(reg.Registrations()))
	for _, r := range reg.Registrations() {
		p := basePolicy
		p.Timeout = r.Timeout
		p.Retryable = r.Retryable
		executors[r.Name] = resilience.NewExecutor(p)
	}
	return &Dispatcher{
		registry:       reg,
		executors:      executors,
		semaphore:      resilience.NewSemaphore(globalPermits),
		acquireTimeout: acquireTimeout,
		info:           info,
		logger:         logger,
		metrics:        metrics,
		tracer:         noop.NewTracerProvider().Tracer("limbodancer-mcp"),
		shutdown:       make(chan struct{}),
	}
}

// WithTracer replaces the dispatcher's tracer; call before serving.
func (d *Dispatcher) WithTracer(t oteltrace.Tracer) *Dispatcher {
	d.tracer = t
	return d
}

// Shutdown signals the dispatcher to stop accepting tools/call
// requests; in-flight calls are left to drain.
func (d *Dispatcher) Shutdown() {
	select {
	case <-d.shutdown:
	default:
		close(d.shutdown)
	}
}

// Done is closed once Shutdown has been requested; transports use it to
// stop reading and drain.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.shutdown
}

func (d *Dispatcher) isShuttingDown() bool {
	select {
	case <-d.shutdown:
		return true
	default:
		return false
	}
}

// Handle dispatches one request. It returns nil for notifications
// (req.ID absent), matching the stdio framing contract that
// notifications produce no response line.
func (d *Dispatcher) Handle(ctx context.Context, req *Request) *Response {
	if req.JSONRPC != "2.0" {
		return Failure(req.ID, CodeInvalidRequest, "invalid jsonrpc version", nil)
	}

	if req.Method == "shutdown" {
		d.Shutdown()
		return nil
	}
	if req.IsNotification() {
		return nil
	}

	switch req.Method {
	case "initialize":
		return Success(req.ID, map[string]any{
			"protocolVersion": protocolVersion,
			"capabilities":    map[string]any{"tools": map[string]any{}},
			"serverInfo":      map[string]any{"name": d.info.Name, "version": d.info.Version},
		})
	case "ping":
		return Success(req.ID, map[string]any{})
	case "tools/list":
		return d.handleList(req.ID)
	case "tools/call":
		return d.handleCall(ctx, req.ID, req.Params)
	default:
		return Failure(req.ID, CodeMethodNotFound, "method not found", nil)
	}
}

func (d *Dispatcher) handleList(id json.RawMessage) *Response {
	tools := make([]map[string]any, 0, len(d.registry.List()))
	for _, r := range d.registry.Registrations() {
		tools = append(tools, map[string]any{
			"name":        r.Name,
			"description": r.Description,
			"inputSchema": r.InputSchema,
		})
	}
	return Success(id, map[string]any{"tools": tools})
}

type callParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

func (d *Dispatcher) handleCall(ctx context.Context, id json.RawMessage, rawParams json.RawMessage) *Response {
	if d.isShuttingDown() {
		return toolError(id, apierr.New(apierr.KindOverloaded, "server is shutting down").WithRetryAfter(1))
	}

	var params callParams
	if err := json.Unmarshal(rawParams, &params); err != nil {
		return Failure(id, CodeInvalidParams, "invalid params", nil)
	}

	// 1. resolve tool by name.
	tool, ok := d.registry.Get(params.Name)
	if !ok {
		return Failure(id, CodeMethodNotFound, "unknown tool: "+params.Name, nil)
	}

	args := params.Arguments
	if args == nil {
		args = map[string]any{}
	}

	// 2. validate arguments against the input schema.
	if err := tool.ValidateArgs(args); err != nil {
		return toolError(id, err)
	}

	// 3. enforce scope & permissions.
	sc, ok := scope.FromContext(ctx)
	if !ok || sc.IsZero() {
		return toolError(id, apierr.New(apierr.KindTenantUnresolved, "no tenant scope on request"))
	}
	if granted, restricted := scope.Permissions(ctx); restricted && !tool.HasPermission(granted) {
		return toolError(id, apierr.New(apierr.KindForbidden, "missing permission for tool "+tool.Name))
	}

	// 4. acquire a permit from the global concurrency semaphore.
	if !d.semaphore.Acquire(ctx, d.acquireTimeout) {
		err := apierr.New(apierr.KindOverloaded, "too many concurrent tool executions").WithRetryAfter(0.25)
		return toolError(id, err)
	}
	defer d.semaphore.Release()

	// 5. invoke through the resilience wrapper. The span covers the
	// whole pipeline from here down, per the dispatch contract.
	sctx, span := d.tracer.Start(ctx, "tools/call")
	span.SetAttributes(
		attribute.String("tool.name", tool.Name),
		attribute.String("tenant.id", sc.TenantID),
	)

	executor := d.executors[tool.Name]
	result, err, outcome := executor.Run(sctx, func(cctx context.Context) (any, error) {
		return tool.Handler(cctx, args)
	})

	outcomeLabel := "success"
	if err != nil {
		outcomeLabel = string(apierr.Of(err).Kind)
	}
	span.SetAttributes(
		attribute.String("outcome", outcomeLabel),
		attribute.Int("attempts", outcome.Attempts),
	)
	span.End()

	d.metrics.RecordToolCall(tool.Name, sc.TenantID, outcome)

	if err != nil {
		return toolError(id, err)
	}

	encoded, encErr := json.Marshal(result)
	if encErr != nil {
		return Failure(id, CodeInternalError, "failed to encode tool response", nil)
	}
	return Success(id, map[string]any{
		"content": []map[string]any{{"type": "text", "text": string(encoded)}},
		"isError": false,
	})
}

// toolError renders a tool-level error inside a successful JSON-RPC
// envelope so the protocol keeps flowing. The one exception, handled
// in handleCall's "unknown tool" branch, is an unknown tool, which is
// a protocol-level method-not-found.
func toolError(id json.RawMessage, err error) *Response {
	apiErr := apierr.Of(err)
	encoded, _ := json.Marshal(apiErr)
	return Success(id, map[string]any{
		"content": []map[string]any{{"type": "text", "text": string(encoded)}},
		"isError": true,
	})
}
