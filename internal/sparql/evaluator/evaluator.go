package evaluator

import (
	"fmt"

	"github.com/aleksaelezovic/trigo/internal/sparql/parser"
	"github.com/aleksaelezovic/trigo/pkg/rdf"
	"github.com/aleksaelezovic/trigo/pkg/store"
)

// Evaluator evaluates SPARQL expressions against bindings
type Evaluator struct {
	// ExistsFunc executes a nested graph pattern against the store for
	// EXISTS/NOT EXISTS evaluation, checking whether it produces any
	// binding compatible with the current one. The executor package wires
	// this in, since evaluating EXISTS requires planning and running a
	// query, which would otherwise create an import cycle.
	ExistsFunc func(pattern *parser.GraphPattern, binding *store.Binding) (bool, error)
}

// NewEvaluator creates a new expression evaluator
func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// Evaluate evaluates an expression against a binding and returns the result term
func (e *Evaluator) Evaluate(expr parser.Expression, binding *store.Binding) (rdf.Term, error) {
	if expr == nil {
		return nil, fmt.Errorf("cannot evaluate nil expression")
	}

	switch ex := expr.(type) {
	case *parser.BinaryExpression:
		return e.evaluateBinaryExpression(ex, binding)
	case *parser.UnaryExpression:
		return e.evaluateUnaryExpression(ex, binding)
	case *parser.VariableExpression:
		return e.evaluateVariableExpression(ex, binding)
	case *parser.LiteralExpression:
		return e.evaluateLiteralExpression(ex, binding)
	case *parser.FunctionCallExpression:
		return e.evaluateFunctionCall(ex, binding)
	case *parser.ExistsExpression:
		return e.evaluateExistsExpression(ex, binding)
	case *parser.InExpression:
		return e.evaluateInExpression(ex, binding)
	case *parser.AggregateExpression:
		return nil, fmt.Errorf("aggregate %s(...) used outside a grouped projection or HAVING clause", ex.Function)
	default:
		return nil, fmt.Errorf("unsupported expression type: %T", expr)
	}
}

// evaluateVariableExpression evaluates a variable reference
func (e *Evaluator) evaluateVariableExpression(expr *parser.VariableExpression, binding *store.Binding) (rdf.Term, error) {
	if expr.Variable == nil {
		return nil, fmt.Errorf("variable expression has nil variable")
	}

	if expr.Variable.Name == "*" {
		return nil, fmt.Errorf("* is not a valid variable reference in expressions")
	}

	value, exists := binding.Vars[expr.Variable.Name]
	if !exists {
		return nil, fmt.Errorf("unbound variable: ?%s", expr.Variable.Name)
	}

	return value, nil
}

// evaluateLiteralExpression evaluates a literal constant
func (e *Evaluator) evaluateLiteralExpression(expr *parser.LiteralExpression, binding *store.Binding) (rdf.Term, error) {
	if expr.Literal == nil {
		return nil, fmt.Errorf("literal expression has nil literal")
	}
	return expr.Literal, nil
}

// evaluateExistsExpression evaluates EXISTS or NOT EXISTS by delegating the
// nested pattern's execution to ExistsFunc.
func (e *Evaluator) evaluateExistsExpression(expr *parser.ExistsExpression, binding *store.Binding) (rdf.Term, error) {
	if e.ExistsFunc == nil {
		return nil, fmt.Errorf("EXISTS requires a query executor, none configured")
	}

	exists, err := e.ExistsFunc(expr.Pattern, binding)
	if err != nil {
		return nil, err
	}
	if expr.Negate {
		exists = !exists
	}
	return rdf.NewBooleanLiteral(exists), nil
}

// evaluateInExpression evaluates IN or NOT IN.
// x IN (e1, e2, ...) is equivalent to (x = e1) || (x = e2) || ...
func (e *Evaluator) evaluateInExpression(expr *parser.InExpression, binding *store.Binding) (rdf.Term, error) {
	leftValue, err := e.Evaluate(expr.Expression, binding)
	if err != nil {
		return nil, err
	}

	found := false
	for _, valueExpr := range expr.Values {
		rightValue, err := e.Evaluate(valueExpr, binding)
		if err != nil {
			continue
		}
		if leftValue.Equals(rightValue) {
			found = true
			break
		}
	}

	if expr.Not {
		return rdf.NewBooleanLiteral(!found), nil
	}
	return rdf.NewBooleanLiteral(found), nil
}
