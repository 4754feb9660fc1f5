// Package policy decides who may do what.
//
// The rules live in authz.rego and are evaluated with Open Policy Agent. The
// Go side gathers facts (who owns the list, who added the restaurant, whether
// two users are friends) and passes them in as input; the policy itself never
// touches the store. Keeping every ownership and comment rule in one file
// makes them reviewable in one place.
package policy

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
)

//go:embed authz.rego
var source string

// Action names understood by the policy.
const (
	ListUpdate       = "list.update"
	ListDelete       = "list.delete"
	RestaurantCreate = "restaurant.create"
	RestaurantUpdate = "restaurant.update"
	RestaurantDelete = "restaurant.delete"
	CommentRead      = "comment.read"
	CommentWrite     = "comment.write"
	ProfileUpdate    = "profile.update"
	FriendRespond    = "friend_request.respond"
)

// Input is the document the policy evaluates.
type Input struct {
	Action     string          `json:"action"`
	Actor      string          `json:"actor"`
	Target     string          `json:"target,omitempty"`
	List       *ListFacts      `json:"list,omitempty"`
	Restaurant *RestaurantFact `json:"restaurant,omitempty"`
	Friends    bool            `json:"friends"`
}

type ListFacts struct {
	CreatorID string `json:"creator_id"`
}

type RestaurantFact struct {
	CreatedBy string `json:"created_by"`
}

// Engine holds the compiled, prepared query. It is safe for concurrent use.
type Engine struct {
	query rego.PreparedEvalQuery
}

// New compiles the embedded policy. A compile error here is a programming
// error in authz.rego and fails server startup.
func New(ctx context.Context) (*Engine, error) {
	compiler, err := ast.CompileModules(map[string]string{"authz.rego": source})
	if err != nil {
		return nil, fmt.Errorf("policy: compiling authz.rego: %w", err)
	}

	query, err := rego.New(
		rego.Compiler(compiler),
		rego.Query("data.lunchbox.authz.allow"),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("policy: preparing query: %w", err)
	}
	return &Engine{query: query}, nil
}

// Allowed evaluates the policy for in.
func (e *Engine) Allowed(ctx context.Context, in Input) (bool, error) {
	rs, err := e.query.Eval(ctx, rego.EvalInput(in))
	if err != nil {
		return false, fmt.Errorf("policy: evaluating %s: %w", in.Action, err)
	}
	return rs.Allowed(), nil
}
