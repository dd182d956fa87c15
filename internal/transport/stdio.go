// Package transport carries the two wire framings of the protocol
// engine: newline-delimited JSON-RPC over stdio, and HTTP with an SSE
// event channel. The semantics are identical; only the framing differs.
package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/limbodancer-labs/limbodancer-mcp/internal/reqcontext"
	"github.com/limbodancer-labs/limbodancer-mcp/internal/rpc"
	"github.com/limbodancer-labs/limbodancer-mcp/internal/scope"
)

// readyLine is announced on stderr once the stdio server is listening;
// stdout is reserved exclusively for JSON-RPC frames.
const readyLine = "MCP server ready (stdio mode)"

// maxLineBytes bounds a single JSON-RPC frame.
const maxLineBytes = 10 * 1024 * 1024

// StdioServer reads one JSON-RPC message per line from in and writes
// one response per line to out. The reader and writer are independent:
// requests are handled concurrently and responses are serialized in
// completion order by a single writer goroutine.
type StdioServer struct {
	dispatcher *rpc.Dispatcher
	scope      scope.Scope
	in         io.Reader
	out        io.Writer
	errOut     io.Writer
	logger     *zap.SugaredLogger
}

// NewStdioServer builds a stdio transport bound to the process-start
// scope resolved per the stdio tenancy rules.
func NewStdioServer(d *rpc.Dispatcher, sc scope.Scope, in io.Reader, out, errOut io.Writer, logger *zap.SugaredLogger) *StdioServer {
	return &StdioServer{
		dispatcher: d,
		scope:      sc,
		in:         in,
		out:        out,
		errOut:     errOut,
		logger:     logger,
	}
}

// Run serves until the input closes, ctx is canceled, or a shutdown
// notification arrives; in-flight requests are drained before return.
// Cancellation and shutdown are checked only between lines, so while a
// read from in is blocked Run keeps waiting until the next line arrives
// or the input closes.
func (s *StdioServer) Run(ctx context.Context) error {
	fmt.Fprintln(s.errOut, readyLine)

	responses := make(chan *rpc.Response, 64)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		enc := json.NewEncoder(s.out)
		for resp := range responses {
			if err := enc.Encode(resp); err != nil {
				s.logger.Errorw("failed to write response line", "error", err)
			}
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.dispatcher.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	var wg sync.WaitGroup
	scanner := bufio.NewScanner(s.in)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

scanLoop:
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			break scanLoop
		default:
		}

		line := make([]byte, len(scanner.Bytes()))
		copy(line, scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var req rpc.Request
		if err := json.Unmarshal(line, &req); err != nil {
			responses <- rpc.Failure(nil, rpc.CodeParseError, "parse error", nil)
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			rctx := scope.WithContext(ctx, s.scope)
			rctx = reqcontext.WithRequestID(rctx, reqcontext.NewRequestID())
			if resp := s.dispatcher.Handle(rctx, &req); resp != nil {
				responses <- resp
			}
		}()
	}

	// Drain: every started request still gets its response line.
	wg.Wait()
	close(responses)
	<-writerDone

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("stdio read: %w", err)
	}
	return nil
}
