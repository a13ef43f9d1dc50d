package engine

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"

	"bizlens/backend/internal/automation/domain"
	"bizlens/backend/internal/platform/logger"
)

const (
	defaultPolicyPackage = "bizlens.automation"
	customPolicyPackage  = "bizlens.automation.custom"

	evalTimeout     = time.Second
	maxCachedPolicy = 256
)

// Default Rego policy implementing the threshold comparisons.
const defaultRegoPolicy = `package bizlens.automation

default triggered := false

triggered if {
	input.condition.operator == "gt"
	input.value > input.condition.threshold
}

triggered if {
	input.condition.operator == "gte"
	input.value >= input.condition.threshold
}

triggered if {
	input.condition.operator == "lt"
	input.value < input.condition.threshold
}

triggered if {
	input.condition.operator == "lte"
	input.value <= input.condition.threshold
}

triggered if {
	input.condition.operator == "eq"
	input.value == input.condition.threshold
}

triggered if {
	input.condition.operator == "neq"
	input.value != input.condition.threshold
}
`

// builtins that reach outside the process are unavailable to custom conditions
var deniedBuiltins = map[string]bool{
	"http.send":          true,
	"net.lookup_ip_addr": true,
	"opa.runtime":        true,
}

// OPAEvaluator evaluates rule conditions using OPA Rego. Custom condition policies are
// compiled once and cached by content hash.
type OPAEvaluator struct {
	lggr  logger.Logger
	caps  *ast.Capabilities
	deflt rego.PreparedEvalQuery

	mu    sync.Mutex
	cache map[[sha256.Size]byte]rego.PreparedEvalQuery
}

// NewOPAEvaluator compiles the default policy and returns the evaluator.
func NewOPAEvaluator(ctx context.Context, lggr logger.Logger) (*OPAEvaluator, error) {
	e := &OPAEvaluator{
		lggr:  lggr.Named("policy"),
		caps:  restrictedCapabilities(),
		cache: make(map[[sha256.Size]byte]rego.PreparedEvalQuery),
	}
	pq, err := e.prepare(ctx, "default.rego", defaultRegoPolicy, "data."+defaultPolicyPackage+".triggered")
	if err != nil {
		return nil, fmt.Errorf("compile default policy: %w", err)
	}
	e.deflt = pq
	return e, nil
}

func restrictedCapabilities() *ast.Capabilities {
	caps := ast.CapabilitiesForThisVersion()
	kept := make([]*ast.Builtin, 0, len(caps.Builtins))
	for _, b := range caps.Builtins {
		if !deniedBuiltins[b.Name] {
			kept = append(kept, b)
		}
	}
	caps.Builtins = kept
	return caps
}

func (e *OPAEvaluator) prepare(ctx context.Context, file, module, query string) (rego.PreparedEvalQuery, error) {
	parsed, err := ast.ParseModuleWithOpts(file, module, ast.ParserOptions{Capabilities: e.caps, RegoVersion: ast.RegoV1})
	if err != nil {
		return rego.PreparedEvalQuery{}, err
	}
	compiler := ast.NewCompiler().WithCapabilities(e.caps)
	if compiler.Compile(map[string]*ast.Module{file: parsed}); compiler.Failed() {
		return rego.PreparedEvalQuery{}, compiler.Errors
	}
	return rego.New(
		rego.Query(query),
		rego.Compiler(compiler),
		rego.Capabilities(e.caps),
		rego.StrictBuiltinErrors(true),
	).PrepareForEval(ctx)
}

// normalizeCustom adds the default custom package when the module has none and returns the
// module text with the query for its "triggered" rule.
func normalizeCustom(src string) (string, string, error) {
	src = strings.TrimSpace(src)
	if !strings.HasPrefix(src, "package ") {
		src = "package " + customPolicyPackage + "\n\n" + src
	}
	mod, err := ast.ParseModuleWithOpts("custom.rego", src, ast.ParserOptions{RegoVersion: ast.RegoV1})
	if err != nil {
		return "", "", err
	}
	return src, mod.Package.Path.String() + ".triggered", nil
}

// Compile checks that a custom condition policy parses and compiles.
func (e *OPAEvaluator) Compile(ctx context.Context, src string) error {
	_, err := e.custom(ctx, src)
	return err
}

func (e *OPAEvaluator) custom(ctx context.Context, src string) (rego.PreparedEvalQuery, error) {
	key := sha256.Sum256([]byte(src))
	e.mu.Lock()
	pq, ok := e.cache[key]
	e.mu.Unlock()
	if ok {
		return pq, nil
	}
	module, query, err := normalizeCustom(src)
	if err != nil {
		return rego.PreparedEvalQuery{}, err
	}
	pq, err = e.prepare(ctx, "custom.rego", module, query)
	if err != nil {
		return rego.PreparedEvalQuery{}, err
	}
	e.mu.Lock()
	if len(e.cache) >= maxCachedPolicy {
		clear(e.cache)
	}
	e.cache[key] = pq
	e.mu.Unlock()
	return pq, nil
}

// Evaluate runs the rule's custom policy, or the default one, against the metric value.
// Compile or evaluation errors fall back to the built-in comparison.
func (e *OPAEvaluator) Evaluate(ctx context.Context, rule *domain.Rule, value float64) Decision {
	triggered, err := e.evaluate(ctx, rule, value)
	if err != nil {
		e.lggr.Warnw("policy evaluation failed, using built-in comparison",
			"rule_id", rule.ID, "company_id", rule.CompanyID, "err", err)
		return Decision{Triggered: rule.Condition.Operator.Compare(value, rule.Condition.Threshold), Fallback: true}
	}
	return Decision{Triggered: triggered}
}

func (e *OPAEvaluator) evaluate(ctx context.Context, rule *domain.Rule, value float64) (bool, error) {
	pq := e.deflt
	if rule.Condition.Rego != "" {
		var err error
		if pq, err = e.custom(ctx, rule.Condition.Rego); err != nil {
			return false, fmt.Errorf("compile custom condition: %w", err)
		}
	}
	ctx, cancel := context.WithTimeout(ctx, evalTimeout)
	defer cancel()
	rs, err := pq.Eval(ctx, rego.EvalInput(buildInput(rule, value)))
	if err != nil {
		return false, err
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		// "triggered" undefined in a custom policy without a default
		return false, nil
	}
	v, ok := rs[0].Expressions[0].Value.(bool)
	if !ok {
		return false, fmt.Errorf("triggered is %T, want boolean", rs[0].Expressions[0].Value)
	}
	return v, nil
}

func buildInput(rule *domain.Rule, value float64) map[string]any {
	return map[string]any{
		"value": value,
		"condition": map[string]any{
			"metric":    rule.Condition.Metric,
			"operator":  string(rule.Condition.Operator),
			"threshold": rule.Condition.Threshold,
		},
		"rule": map[string]any{
			"id":         rule.ID,
			"name":       rule.Name,
			"company_id": rule.CompanyID,
		},
	}
}

// HealthCheck verifies the engine can evaluate the default policy. It does not touch the database.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	probe := &domain.Rule{Condition: domain.Condition{Metric: "probe", Operator: domain.OpGT, Threshold: 1}}
	triggered, err := e.evaluate(ctx, probe, 2)
	if err != nil {
		return fmt.Errorf("eval default policy: %w", err)
	}
	if !triggered {
		return fmt.Errorf("default policy returned an unexpected result")
	}
	return nil
}
var _ Evaluator = (*OPAEvaluator)(nil)
