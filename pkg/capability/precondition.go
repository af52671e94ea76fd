package capability

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// PreconditionEvaluator compiles and evaluates capability precondition
// expressions (CEL) against a proposal's declared scope. Programs are cached
// per expression; evaluation fails closed.
type PreconditionEvaluator struct {
	env   *cel.Env
	mu    sync.RWMutex
	cache map[string]cel.Program
}

// NewPreconditionEvaluator creates an evaluator with the standard
// environment: `scope` (paths/commands), `summary`, `risk_tier`.
func NewPreconditionEvaluator() (*PreconditionEvaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("scope", cel.DynType),
		cel.Variable("summary", cel.StringType),
		cel.Variable("risk_tier", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("capability: cel environment: %w", err)
	}
	return &PreconditionEvaluator{env: env, cache: make(map[string]cel.Program)}, nil
}

// Input is the evaluation context for preconditions.
type Input struct {
	ScopePaths    []string
	ScopeCommands []string
	Summary       string
	RiskTier      string
}

// Evaluate runs every precondition of the capability. It returns the first
// failing expression, or an error for expressions that do not compile or do
// not evaluate to a boolean.
func (e *PreconditionEvaluator) Evaluate(c Capability, in Input) (failed string, err error) {
	if len(c.Preconditions) == 0 {
		return "", nil
	}
	input := map[string]any{
		"scope": map[string]any{
			"paths":    toAnySlice(in.ScopePaths),
			"commands": toAnySlice(in.ScopeCommands),
		},
		"summary":   in.Summary,
		"risk_tier": in.RiskTier,
	}
	for _, expr := range c.Preconditions {
		prg, err := e.program(expr)
		if err != nil {
			return expr, fmt.Errorf("capability: precondition %q: %w", expr, err)
		}
		out, _, err := prg.Eval(input)
		if err != nil {
			return expr, fmt.Errorf("capability: precondition %q eval: %w", expr, err)
		}
		allowed, ok := out.Value().(bool)
		if !ok {
			return expr, fmt.Errorf("capability: precondition %q is not boolean", expr)
		}
		if !allowed {
			return expr, nil
		}
	}
	return "", nil
}

func (e *PreconditionEvaluator) program(expr string) (cel.Program, error) {
	e.mu.RLock()
	prg, ok := e.cache[expr]
	e.mu.RUnlock()
	if ok {
		return prg, nil
	}

	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}
	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.cache[expr] = prg
	e.mu.Unlock()
	return prg, nil
}

func toAnySlice(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
