package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/limbodancer-labs/limbodancer-mcp/internal/apierr"
	"github.com/limbodancer-labs/limbodancer-mcp/internal/config"
	"github.com/limbodancer-labs/limbodancer-mcp/internal/ontology"
	"github.com/limbodancer-labs/limbodancer-mcp/internal/orchestrator"
	"github.com/limbodancer-labs/limbodancer-mcp/internal/reqcontext"
	"github.com/limbodancer-labs/limbodancer-mcp/internal/rpc"
	"github.com/limbodancer-labs/limbodancer-mcp/internal/scope"
)

// ReadinessChecker reports backend connectivity for /ready.
type ReadinessChecker func(ctx context.Context) error

// HTTPServer exposes the protocol engine over HTTP: one endpoint per
// JSON-RPC capability, the SSE event channel, health/readiness, and the
// ontology validate/export surface.
type HTTPServer struct {
	cfg          *config.Config
	dispatcher   *rpc.Dispatcher
	orchestrator *orchestrator.Orchestrator
	runtime      *ontology.Runtime
	resolver     *scope.HTTPResolver
	logger       *zap.SugaredLogger
	readiness    []ReadinessChecker
	metrics      http.Handler

	server *http.Server
}

// NewHTTPServer wires the router.
func NewHTTPServer(cfg *config.Config, d *rpc.Dispatcher, orch *orchestrator.Orchestrator,
	rt *ontology.Runtime, resolver *scope.HTTPResolver, metricsHandler http.Handler,
	logger *zap.SugaredLogger, readiness ...ReadinessChecker) *HTTPServer {
	s := &HTTPServer{
		cfg:          cfg,
		dispatcher:   d,
		orchestrator: orch,
		runtime:      rt,
		resolver:     resolver,
		logger:       logger,
		readiness:    readiness,
		metrics:      metricsHandler,
	}
	s.server = &http.Server{
		Addr:              cfg.HTTP.ListenAddr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *HTTPServer) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(RateLimitMiddleware(50, 100))

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	r.Route("/api/mcp", func(r chi.Router) {
		r.With(s.authMiddleware(false)).Post("/initialize", s.handleInitialize)
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware(true))
			r.Get("/tools", s.handleToolsList)
			r.Post("/tools/{name}", s.handleToolCall)
			r.Get("/events", s.handleSSEEvents)
		})
	})

	r.Route("/api/chat", func(r chi.Router) {
		r.Use(s.authMiddleware(true))
		r.Post("/sessions", s.handleCreateSession)
		r.Post("/sessions/{sessionId}/messages", s.handlePostMessage)
		r.Delete("/sessions/{sessionId}", s.handleDeleteSession)
	})

	r.Route("/api/ontology", func(r chi.Router) {
		r.Use(s.authMiddleware(true))
		r.Get("/validate", s.handleOntologyValidate)
		r.Post("/validate", s.handleOntologyValidate)
		r.Get("/export", s.handleOntologyExport)
	})

	return r
}

// ListenAndServe blocks until the server stops.
func (s *HTTPServer) ListenAndServe() error {
	s.logger.Infow("HTTP transport listening", "addr", s.cfg.HTTP.ListenAddr)
	return s.server.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	for _, check := range s.readiness {
		if err := check(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// dispatch synthesizes a JSON-RPC request and maps the response back to
// HTTP: the framing differs from stdio, the semantics do not.
func (s *HTTPServer) dispatch(r *http.Request, method string, params any) *rpc.Response {
	rawParams, _ := json.Marshal(params)
	id := json.RawMessage(`"` + reqcontext.NewRequestID() + `"`)
	req := &rpc.Request{JSONRPC: "2.0", ID: id, Method: method, Params: rawParams}
	ctx := reqcontext.WithRequestID(r.Context(), string(id))
	return s.dispatcher.Handle(ctx, req)
}

func (s *HTTPServer) writeRPC(w http.ResponseWriter, resp *rpc.Response) {
	if resp == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if resp.Error != nil {
		status := http.StatusBadRequest
		switch resp.Error.Code {
		case rpc.CodeMethodNotFound:
			status = http.StatusNotFound
		case rpc.CodeInternalError:
			status = http.StatusInternalServerError
		}
		writeJSON(w, status, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp.Result)
}

func (s *HTTPServer) handleInitialize(w http.ResponseWriter, r *http.Request) {
	s.writeRPC(w, s.dispatch(r, "initialize", map[string]any{}))
}

func (s *HTTPServer) handleToolsList(w http.ResponseWriter, r *http.Request) {
	s.writeRPC(w, s.dispatch(r, "tools/list", map[string]any{}))
}

func (s *HTTPServer) handleToolCall(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var args map[string]any
	if err := json.NewDecoder(r.Body).Decode(&args); err != nil {
		writeAPIError(w, apierr.New(apierr.KindSchemaInvalid, "request body must be a JSON object"))
		return
	}
	s.writeRPC(w, s.dispatch(r, "tools/call", map[string]any{"name": name, "arguments": args}))
}

func (s *HTTPServer) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sc, ok := scope.FromContext(r.Context())
	if !ok {
		writeAPIError(w, apierr.New(apierr.KindTenantUnresolved, "no tenant scope on request"))
		return
	}
	var body struct {
		SystemPrompt string `json:"systemPrompt"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	session := s.orchestrator.CreateSession(sc.TenantID, body.SystemPrompt)
	writeJSON(w, http.StatusCreated, map[string]any{
		"sessionId": session.ID,
		"createdAt": session.CreatedAt,
	})
}

func (s *HTTPServer) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	sc, ok := scope.FromContext(r.Context())
	if !ok {
		writeAPIError(w, apierr.New(apierr.KindTenantUnresolved, "no tenant scope on request"))
		return
	}
	var body struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Content == "" {
		writeAPIError(w, apierr.New(apierr.KindSchemaInvalid, "content is required"))
		return
	}

	correlationID, err := s.orchestrator.Enqueue(r.Context(), sc.TenantID, chi.URLParam(r, "sessionId"), body.Content)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"correlationId": correlationID})
}

func (s *HTTPServer) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sc, ok := scope.FromContext(r.Context())
	if !ok {
		writeAPIError(w, apierr.New(apierr.KindTenantUnresolved, "no tenant scope on request"))
		return
	}
	if !s.orchestrator.DeleteSession(sc.TenantID, chi.URLParam(r, "sessionId")) {
		writeAPIError(w, apierr.New(apierr.KindNotFound, "unknown session"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// scopeFromQuery resolves the ontology endpoints' scope from the query
// string or JSON body, falling back to the authenticated request scope.
func (s *HTTPServer) scopeFromQuery(r *http.Request) (scope.Scope, error) {
	q := r.URL.Query()
	tenant, pkg, channel := q.Get("tenant"), q.Get("package"), q.Get("channel")

	if tenant == "" && r.Method == http.MethodPost {
		var body struct {
			Tenant  string `json:"tenant"`
			Package string `json:"package"`
			Channel string `json:"channel"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			tenant, pkg, channel = body.Tenant, body.Package, body.Channel
		}
	}

	if tenant == "" {
		if sc, ok := scope.FromContext(r.Context()); ok {
			return sc, nil
		}
		return scope.Empty, apierr.New(apierr.KindTenantUnresolved, "no tenant scope supplied")
	}

	// A caller may not name a tenant other than its own.
	if sc, ok := scope.FromContext(r.Context()); ok && sc.TenantID != tenant {
		return scope.Empty, apierr.New(apierr.KindScopeViolation, "tenant does not match authenticated principal")
	}
	return scope.New(tenant, pkg, channel)
}

func (s *HTTPServer) handleOntologyValidate(w http.ResponseWriter, r *http.Request) {
	sc, err := s.scopeFromQuery(r)
	if err != nil {
		writeAPIError(w, err)
		return
	}

	result := map[string]any{"scope": sc.String(), "isValid": true, "errors": []string{}}
	if err := s.runtime.Load(r.Context(), sc); err != nil {
		result["isValid"] = false
		result["errors"] = []string{apierr.Of(err).Message}
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleOntologyExport(w http.ResponseWriter, r *http.Request) {
	sc, err := s.scopeFromQuery(r)
	if err != nil {
		writeAPIError(w, err)
		return
	}

	format := ontology.ExportFormat(r.URL.Query().Get("format"))
	if format == "" {
		format = ontology.FormatJSONLD
	}

	var data []byte
	var contentType string
	switch format {
	case ontology.FormatJSONLD:
		data, err = s.runtime.ExportJSONLD(sc)
		contentType = "application/ld+json"
	case ontology.FormatTurtle:
		data, err = s.runtime.ExportTurtle(sc)
		contentType = "text/turtle"
	default:
		writeAPIError(w, apierr.New(apierr.KindSchemaInvalid, "format must be jsonld or turtle"))
		return
	}
	if err != nil {
		writeAPIError(w, err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Too late to change the status; nothing else to do.
		_ = err
	}
}
