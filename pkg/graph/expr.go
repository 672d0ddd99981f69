package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/aretw0/arbor/pkg/domain"
)

// Branch pairs a boolean expression with the target selected when it holds.
// An empty condition always holds.
type Branch struct {
	Condition string
	Target    string
}

// When builds a conditional branch.
func When(condition, target string) Branch {
	return Branch{Condition: condition, Target: target}
}

// Otherwise builds the fallback branch.
func Otherwise(target string) Branch {
	return Branch{Target: target}
}

// ExprRouter evaluates branches in order and routes to the first that holds.
// Conditions see the state fields as variables, e.g. `attempts < 3`.
type ExprRouter struct {
	branches []Branch
	programs []*vm.Program
}

// Branches compiles branch conditions into a router.
func Branches(branches ...Branch) (*ExprRouter, error) {
	if len(branches) == 0 {
		return nil, fmt.Errorf("at least one branch is required")
	}
	r := &ExprRouter{branches: branches, programs: make([]*vm.Program, len(branches))}
	for i, b := range branches {
		cond := strings.TrimSpace(b.Condition)
		if cond == "" {
			continue
		}
		program, err := expr.Compile(cond, expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("invalid condition %q: %w", b.Condition, err)
		}
		r.programs[i] = program
	}
	return r, nil
}

// Route returns the target of the first matching branch.
func (r *ExprRouter) Route(_ context.Context, state domain.State) ([]string, error) {
	env := map[string]any(state)
	for i, b := range r.branches {
		if r.programs[i] == nil {
			return []string{b.Target}, nil
		}
		out, err := expr.Run(r.programs[i], env)
		if err != nil {
			return nil, fmt.Errorf("condition %q: %w", b.Condition, err)
		}
		if ok, _ := out.(bool); ok {
			return []string{b.Target}, nil
		}
	}
	return nil, fmt.Errorf("no branch matched")
}

// Candidates returns the distinct targets of the branches in order.
func (r *ExprRouter) Candidates() []string {
	seen := make(map[string]bool)
	var out []string
	for _, b := range r.branches {
		if !seen[b.Target] {
			seen[b.Target] = true
			out = append(out, b.Target)
		}
	}
	return out
}

// Labels maps each target to its condition for exports.
func (r *ExprRouter) Labels() map[string]string {
	out := make(map[string]string)
	for _, b := range r.branches {
		if _, ok := out[b.Target]; ok {
			continue
		}
		cond := strings.TrimSpace(b.Condition)
		if cond == "" {
			cond = "otherwise"
		}
		out[b.Target] = cond
	}
	return out
}
