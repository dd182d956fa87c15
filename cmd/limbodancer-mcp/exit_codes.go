package main

import (
	"context"
	"errors"

	"github.com/limbodancer-labs/limbodancer-mcp/internal/apierr"
)

// CLI exit codes.
const (
	exitOK          = 0
	exitGeneric     = 1
	exitDepsMissing = 3
	exitNoEndpoint  = 4
	exitCanceled    = 130
)

// errNoEndpoint marks a command that needed an endpoint (listen address,
// store DSN) which the configuration does not supply.
var errNoEndpoint = errors.New("expected endpoint not configured")

func exitCodeFor(err error) int {
	if err == nil {
		return exitOK
	}
	if errors.Is(err, context.Canceled) || apierr.As(err, apierr.KindCanceled) {
		return exitCanceled
	}
	if errors.Is(err, errNoEndpoint) {
		return exitNoEndpoint
	}
	if apierr.As(err, apierr.KindUpstreamError) {
		return exitDepsMissing
	}
	return exitGeneric
}
