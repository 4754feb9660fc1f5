// Package service contains the business logic layer of the application.
//
// THE THREE LAYERS:
//
//	Handler (HTTP)     → parses requests, writes responses
//	Service (business) → validates, authorizes, orchestrates
//	Repository (data)  → reads/writes the store
//
// Services take repository interfaces, never a concrete store, so tests pass
// in-memory fakes. They return apperror values; the handler layer decides
// which HTTP status each one becomes.
//
// AUTHORIZATION:
// Who may mutate what is decided by the Rego policy in internal/policy. A
// service gathers the facts (list creator, restaurant creator, friendship)
// and asks the Authorizer; it never hard-codes an ownership comparison.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/lunchbox/internal/apperror"
	"github.com/sakif/lunchbox/internal/policy"
)

// Authorizer is satisfied by *policy.Engine.
type Authorizer interface {
	Allowed(ctx context.Context, in policy.Input) (bool, error)
}

// authorize turns a policy decision into an error. An anonymous actor that is
// denied gets ErrUnauthenticated, anyone else ErrForbidden.
func authorize(ctx context.Context, authz Authorizer, logger *slog.Logger, in policy.Input, denied string) error {
	ok, err := authz.Allowed(ctx, in)
	if err != nil {
		return fmt.Errorf("service: authorizing %s: %w", in.Action, err)
	}
	if ok {
		return nil
	}
	if in.Actor == "" {
		return apperror.Unauthenticated("sign in to continue")
	}
	logger.Warn("authorization denied",
		slog.String("action", in.Action),
		slog.String("actor", in.Actor),
	)
	return apperror.Forbidden(denied)
}
