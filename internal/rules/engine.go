// Package rules provides the CEL-Go based rule engine behind the approval
// odds table and product eligibility criteria.
package rules

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/opensource-finance/loanscore/internal/domain"
)

// Engine compiles and evaluates boolean CEL rules against an applicant.
// The loaded rule table keeps its configured order.
type Engine struct {
	mu       sync.RWMutex
	env      *cel.Env
	rules    []*CompiledRule
	criteria map[string]cel.Program
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Config  domain.OddsRule
	Program cel.Program
}

// Result is the outcome of one rule.
type Result struct {
	RuleID  string
	Matched bool
	Delta   float64
	Reason  string
}

// NewEngine creates a new rule engine with the applicant variables declared.
func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("kind", cel.StringType),
		cel.Variable("income", cel.DoubleType),
		cel.Variable("commitments", cel.DoubleType),
		cel.Variable("disposable", cel.DoubleType),
		cel.Variable("employment", cel.StringType),
		cel.Variable("dsr", cel.DoubleType),
		cel.Variable("foir", cel.DoubleType),
		cel.Variable("resulting_dsr", cel.DoubleType),
		cel.Variable("bureau_bucket", cel.IntType),
		cel.Variable("has_score", cel.BoolType),
		cel.Variable("bureau_score", cel.IntType),
		cel.Variable("tier", cel.IntType),
		cel.Variable("grade", cel.StringType),
		cel.Variable("brr", cel.IntType),
		cel.Variable("net_cashflow", cel.DoubleType),
		cel.Variable("dscr", cel.DoubleType),
		cel.Variable("dscr_status", cel.StringType),
		cel.Variable("cashflow_variance", cel.DoubleType),
		cel.Variable("industry_risk", cel.StringType),
		cel.Variable("cgc_eligible", cel.BoolType),
		cel.Variable("has_proposal", cel.BoolType),
		cel.Variable("principal", cel.DoubleType),
		cel.Variable("rate", cel.DoubleType),
		cel.Variable("tenure", cel.IntType),
		cel.Variable("instalment", cel.DoubleType),
		cel.Variable("max_loan", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:      env,
		criteria: make(map[string]cel.Program),
	}, nil
}

// Fork returns an engine on the same CEL environment with an empty rule
// table and criteria memo of its own.
func (e *Engine) Fork() *Engine {
	return &Engine{
		env:      e.env,
		criteria: make(map[string]cel.Program),
	}
}

// ValidateRule compiles a rule without touching the loaded table.
func (e *Engine) ValidateRule(cfg domain.OddsRule) error {
	_, err := e.compile(cfg.ID, cfg.Expression)
	return err
}

// ValidateCriteria compiles a product criteria expression and memoizes it.
func (e *Engine) ValidateCriteria(expression string) error {
	program, err := e.compile("criteria", expression)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.criteria[expression] = program
	e.mu.Unlock()
	return nil
}

// LoadRules replaces the rule table. Disabled rules are skipped; on any
// compile error the previous table stays in place.
func (e *Engine) LoadRules(configs []domain.OddsRule) error {
	compiled := make([]*CompiledRule, 0, len(configs))
	seen := make(map[string]bool, len(configs))

	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		if cfg.ID == "" {
			return fmt.Errorf("rule id is required")
		}
		if seen[cfg.ID] {
			return fmt.Errorf("duplicate rule id %s", cfg.ID)
		}
		seen[cfg.ID] = true

		program, err := e.compile(cfg.ID, cfg.Expression)
		if err != nil {
			return err
		}
		compiled = append(compiled, &CompiledRule{Config: cfg, Program: program})
	}

	e.mu.Lock()
	e.rules = compiled
	e.mu.Unlock()
	return nil
}

// Rules returns the loaded rule configurations in table order.
func (e *Engine) Rules() []domain.OddsRule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]domain.OddsRule, len(e.rules))
	for i, r := range e.rules {
		out[i] = r.Config
	}
	return out
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.rules)
}

// Evaluate runs every rule applicable to the input's kind, in table order.
func (e *Engine) Evaluate(in Input) ([]Result, error) {
	e.mu.RLock()
	table := e.rules
	e.mu.RUnlock()

	activation := in.Activation()
	results := make([]Result, 0, len(table))

	for _, rule := range table {
		if rule.Config.Kind != "" && rule.Config.Kind != domain.KindAny && rule.Config.Kind != in.Kind {
			continue
		}

		matched, err := run(rule.Program, activation)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", rule.Config.ID, err)
		}

		result := Result{RuleID: rule.Config.ID, Matched: matched, Reason: rule.Config.Description}
		if matched {
			result.Delta = rule.Config.Delta
		}
		results = append(results, result)
	}

	return results, nil
}

// Check evaluates a free-standing criteria expression, such as a product's
// eligibility criteria. Compiled programs are memoized by expression text.
func (e *Engine) Check(expression string, in Input) (bool, error) {
	e.mu.RLock()
	program, ok := e.criteria[expression]
	e.mu.RUnlock()

	if !ok {
		var err error
		program, err = e.compile("criteria", expression)
		if err != nil {
			return false, err
		}
		e.mu.Lock()
		e.criteria[expression] = program
		e.mu.Unlock()
	}

	return run(program, in.Activation())
}

// Close drops the loaded rules and memoized criteria.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = nil
	e.criteria = make(map[string]cel.Program)
	return nil
}

func (e *Engine) compile(id, expression string) (cel.Program, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", id, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", id, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", id, err)
	}
	return program, nil
}

func run(program cel.Program, activation map[string]any) (bool, error) {
	out, _, err := program.Eval(activation)
	if err != nil {
		return false, fmt.Errorf("evaluation error: %w", err)
	}
	b, ok := out.(types.Bool)
	if !ok {
		return false, fmt.Errorf("expected bool result, got %s", out.Type())
	}
	return bool(b), nil
}
