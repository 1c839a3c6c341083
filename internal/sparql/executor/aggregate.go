package executor

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aleksaelezovic/trigo/internal/sparql/evaluator"
	"github.com/aleksaelezovic/trigo/internal/sparql/optimizer"
	"github.com/aleksaelezovic/trigo/internal/sparql/parser"
	"github.com/aleksaelezovic/trigo/pkg/rdf"
	"github.com/aleksaelezovic/trigo/pkg/store"
)

// createAggregateIterator creates an iterator for GROUP BY / aggregate
// projections. The whole input is materialized, partitioned into groups by
// the GROUP BY key (or a single implicit group when there is none), reduced
// to one binding per group, and finally narrowed by HAVING.
func (e *Executor) createAggregateIterator(plan *optimizer.AggregatePlan) (store.BindingIterator, error) {
	input, err := e.createIterator(plan.Input)
	if err != nil {
		return nil, err
	}
	defer input.Close()

	eval := evaluator.NewEvaluator()
	eval.ExistsFunc = e.evaluateExists

	groups, err := e.groupBindings(plan, input, eval)
	if err != nil {
		return nil, err
	}

	var results []*store.Binding
	for _, g := range groups {
		binding, err := e.reduceGroup(plan, g, eval)
		if err != nil {
			return nil, err
		}
		if binding == nil {
			continue // excluded by HAVING
		}
		results = append(results, binding)
	}

	return &materializedIterator{bindings: results}, nil
}

// group holds the rows sharing one GROUP BY key, plus the key's own
// variable bindings (bare group variables and aliased group expressions).
type group struct {
	key     string
	rows    []*store.Binding
	keyVars *store.Binding
}

// groupBindings consumes the input iterator and partitions its bindings
// into groups, preserving first-seen group order.
func (e *Executor) groupBindings(plan *optimizer.AggregatePlan, input store.BindingIterator, eval *evaluator.Evaluator) ([]*group, error) {
	index := make(map[string]*group)
	var order []string

	for input.Next() {
		row := input.Binding().Clone()

		key, keyVars, err := groupKey(plan.GroupBy, row, eval)
		if err != nil {
			return nil, err
		}

		g, exists := index[key]
		if !exists {
			g = &group{key: key, keyVars: keyVars}
			index[key] = g
			order = append(order, key)
		}
		g.rows = append(g.rows, row)
	}

	// SELECT COUNT(*) WHERE { ... } with no GROUP BY and no matches still
	// reports a single row (e.g. a zero count), not an empty result set.
	if len(order) == 0 && len(plan.GroupBy) == 0 {
		index[""] = &group{keyVars: store.NewBinding()}
		order = append(order, "")
	}

	groups := make([]*group, 0, len(order))
	for _, key := range order {
		groups = append(groups, index[key])
	}
	return groups, nil
}

// groupKey evaluates a row's GROUP BY key, returning a signature string
// suitable for grouping plus the resulting key variable bindings.
func groupKey(conditions []*parser.GroupCondition, row *store.Binding, eval *evaluator.Evaluator) (string, *store.Binding, error) {
	keyVars := store.NewBinding()
	if len(conditions) == 0 {
		return "", keyVars, nil
	}

	var parts []string
	for _, cond := range conditions {
		var value rdf.Term
		var name string

		switch {
		case cond.Variable != nil:
			name = cond.Variable.Name
			value = row.Vars[name] // left nil (unbound) when absent
		case cond.Expression != nil:
			v, err := eval.Evaluate(cond.Expression, row)
			if err == nil {
				value = v
			}
			if cond.As != nil {
				name = cond.As.Name
			}
		}

		if name != "" && value != nil {
			keyVars.Vars[name] = value
		}
		parts = append(parts, termSignatureOrUnbound(value))
	}

	return strings.Join(parts, "\x1f"), keyVars, nil
}

func termSignatureOrUnbound(term rdf.Term) string {
	if term == nil {
		return "\x00unbound"
	}
	return term.String()
}

// reduceGroup computes a group's output binding (group keys plus projected
// variables/aggregates) and applies HAVING, returning nil when the group is
// filtered out.
func (e *Executor) reduceGroup(plan *optimizer.AggregatePlan, g *group, eval *evaluator.Evaluator) (*store.Binding, error) {
	result := g.keyVars.Clone()

	for _, v := range plan.Variables {
		if _, bound := result.Vars[v.Name]; bound {
			continue
		}
		if len(g.rows) > 0 {
			if value, ok := g.rows[0].Vars[v.Name]; ok {
				result.Vars[v.Name] = value
			}
		}
	}

	for _, proj := range plan.Projections {
		value, err := e.evaluateOverGroup(proj.Expression, g.rows, result, eval)
		if err != nil {
			continue // leaves the projected variable unbound
		}
		name := projectionName(proj)
		if name != "" {
			result.Vars[name] = value
		}
	}

	for _, having := range plan.Having {
		value, err := e.evaluateOverGroup(having.Expression, g.rows, result, eval)
		if err != nil {
			return nil, nil
		}
		if !isTrueEBV(value) {
			return nil, nil
		}
	}

	return result, nil
}

func projectionName(proj *parser.ProjectionExpr) string {
	if proj.As != nil {
		return proj.As.Name
	}
	if v, ok := proj.Expression.(*parser.VariableExpression); ok && v.Variable != nil {
		return v.Variable.Name
	}
	return ""
}

// evaluateOverGroup evaluates expr in the context of one group: any nested
// AggregateExpression is computed over the group's rows and substituted as
// a synthetic bound variable before delegating the rest of the expression
// tree to the ordinary evaluator, so arithmetic/comparisons mixing group
// keys and aggregates (e.g. "(?total / COUNT(?x)) AS ?avg") work unchanged.
func (e *Executor) evaluateOverGroup(expr parser.Expression, rows []*store.Binding, keyBinding *store.Binding, eval *evaluator.Evaluator) (rdf.Term, error) {
	substituted := keyBinding.Clone()
	counter := 0

	rewritten, err := rewriteAggregates(expr, rows, substituted, eval, &counter)
	if err != nil {
		return nil, err
	}

	return eval.Evaluate(rewritten, substituted)
}

// rewriteAggregates walks expr, replacing every AggregateExpression with a
// VariableExpression bound (in binding) to that aggregate's computed value
// over rows.
func rewriteAggregates(expr parser.Expression, rows []*store.Binding, binding *store.Binding, eval *evaluator.Evaluator, counter *int) (parser.Expression, error) {
	switch ex := expr.(type) {
	case *parser.AggregateExpression:
		value, err := computeAggregate(ex, rows, eval)
		if err != nil {
			return nil, err
		}
		name := fmt.Sprintf("__agg%d", *counter)
		*counter++
		binding.Vars[name] = value
		return &parser.VariableExpression{Variable: &parser.Variable{Name: name}}, nil

	case *parser.BinaryExpression:
		left, err := rewriteAggregates(ex.Left, rows, binding, eval, counter)
		if err != nil {
			return nil, err
		}
		right, err := rewriteAggregates(ex.Right, rows, binding, eval, counter)
		if err != nil {
			return nil, err
		}
		return &parser.BinaryExpression{Left: left, Operator: ex.Operator, Right: right}, nil

	case *parser.UnaryExpression:
		operand, err := rewriteAggregates(ex.Operand, rows, binding, eval, counter)
		if err != nil {
			return nil, err
		}
		return &parser.UnaryExpression{Operator: ex.Operator, Operand: operand}, nil

	case *parser.FunctionCallExpression:
		args := make([]parser.Expression, len(ex.Arguments))
		for i, arg := range ex.Arguments {
			rewritten, err := rewriteAggregates(arg, rows, binding, eval, counter)
			if err != nil {
				return nil, err
			}
			args[i] = rewritten
		}
		return &parser.FunctionCallExpression{Function: ex.Function, Arguments: args}, nil

	case *parser.InExpression:
		target, err := rewriteAggregates(ex.Expression, rows, binding, eval, counter)
		if err != nil {
			return nil, err
		}
		values := make([]parser.Expression, len(ex.Values))
		for i, v := range ex.Values {
			rewritten, err := rewriteAggregates(v, rows, binding, eval, counter)
			if err != nil {
				return nil, err
			}
			values[i] = rewritten
		}
		return &parser.InExpression{Expression: target, Values: values, Not: ex.Not}, nil

	default:
		return expr, nil
	}
}

// computeAggregate reduces one aggregate set function over a group's rows.
func computeAggregate(agg *parser.AggregateExpression, rows []*store.Binding, eval *evaluator.Evaluator) (rdf.Term, error) {
	switch agg.Function {
	case "COUNT":
		return computeCount(agg, rows, eval)
	case "SUM":
		return computeSum(agg, rows, eval)
	case "MIN":
		return computeMinMax(agg, rows, eval, true)
	case "MAX":
		return computeMinMax(agg, rows, eval, false)
	case "AVG":
		return computeAvg(agg, rows, eval)
	case "SAMPLE":
		return computeSample(agg, rows, eval)
	case "GROUP_CONCAT":
		return computeGroupConcat(agg, rows, eval)
	default:
		return nil, fmt.Errorf("unsupported aggregate function: %s", agg.Function)
	}
}

// aggregateValues evaluates agg.Expression over every row, skipping rows
// where it errors (unbound), and deduplicating by string form when
// agg.Distinct is set.
func aggregateValues(agg *parser.AggregateExpression, rows []*store.Binding, eval *evaluator.Evaluator) []rdf.Term {
	var values []rdf.Term
	seen := make(map[string]bool)

	for _, row := range rows {
		value, err := eval.Evaluate(agg.Expression, row)
		if err != nil {
			continue
		}
		if agg.Distinct {
			key := value.String()
			if seen[key] {
				continue
			}
			seen[key] = true
		}
		values = append(values, value)
	}
	return values
}

func computeCount(agg *parser.AggregateExpression, rows []*store.Binding, eval *evaluator.Evaluator) (rdf.Term, error) {
	if agg.Wildcard {
		return rdf.NewIntegerLiteral(int64(len(rows))), nil
	}
	return rdf.NewIntegerLiteral(int64(len(aggregateValues(agg, rows, eval)))), nil
}

func computeSum(agg *parser.AggregateExpression, rows []*store.Binding, eval *evaluator.Evaluator) (rdf.Term, error) {
	var total float64
	allInteger := true
	for _, value := range aggregateValues(agg, rows, eval) {
		num, ok := numericValue(value)
		if !ok {
			continue
		}
		total += num
		if !isIntegerLiteral(value) {
			allInteger = false
		}
	}
	if allInteger {
		return rdf.NewIntegerLiteral(int64(total)), nil
	}
	return rdf.NewDoubleLiteral(total), nil
}

func computeAvg(agg *parser.AggregateExpression, rows []*store.Binding, eval *evaluator.Evaluator) (rdf.Term, error) {
	values := aggregateValues(agg, rows, eval)
	var total float64
	var count int
	for _, value := range values {
		num, ok := numericValue(value)
		if !ok {
			continue
		}
		total += num
		count++
	}
	if count == 0 {
		return rdf.NewIntegerLiteral(0), nil
	}
	return rdf.NewDoubleLiteral(total / float64(count)), nil
}

func computeMinMax(agg *parser.AggregateExpression, rows []*store.Binding, eval *evaluator.Evaluator, wantMin bool) (rdf.Term, error) {
	values := aggregateValues(agg, rows, eval)
	if len(values) == 0 {
		return nil, fmt.Errorf("%s over an empty group is unbound", agg.Function)
	}

	best := values[0]
	for _, value := range values[1:] {
		cmp := compareAggTerms(best, value)
		if (wantMin && cmp > 0) || (!wantMin && cmp < 0) {
			best = value
		}
	}
	return best, nil
}

// compareAggTerms orders two terms for MIN/MAX, preferring numeric
// comparison when both sides carry a numeric datatype and falling back to
// lexical comparison otherwise.
func compareAggTerms(left, right rdf.Term) int {
	leftNum, leftOk := numericValue(left)
	rightNum, rightOk := numericValue(right)
	if leftOk && rightOk {
		switch {
		case leftNum < rightNum:
			return -1
		case leftNum > rightNum:
			return 1
		default:
			return 0
		}
	}

	leftStr, rightStr := left.String(), right.String()
	switch {
	case leftStr < rightStr:
		return -1
	case leftStr > rightStr:
		return 1
	default:
		return 0
	}
}

func computeSample(agg *parser.AggregateExpression, rows []*store.Binding, eval *evaluator.Evaluator) (rdf.Term, error) {
	values := aggregateValues(agg, rows, eval)
	if len(values) == 0 {
		return nil, fmt.Errorf("SAMPLE over an empty group is unbound")
	}
	return values[0], nil
}

func computeGroupConcat(agg *parser.AggregateExpression, rows []*store.Binding, eval *evaluator.Evaluator) (rdf.Term, error) {
	separator := agg.Separator
	if separator == "" {
		separator = " "
	}

	var parts []string
	for _, value := range aggregateValues(agg, rows, eval) {
		parts = append(parts, lexicalForm(value))
	}
	return rdf.NewLiteral(strings.Join(parts, separator)), nil
}

func lexicalForm(term rdf.Term) string {
	if lit, ok := term.(*rdf.Literal); ok {
		return lit.Value
	}
	return term.String()
}

func isIntegerLiteral(term rdf.Term) bool {
	lit, ok := term.(*rdf.Literal)
	if !ok || lit.Datatype == nil {
		return false
	}
	switch lit.Datatype.IRI {
	case "http://www.w3.org/2001/XMLSchema#integer",
		"http://www.w3.org/2001/XMLSchema#int",
		"http://www.w3.org/2001/XMLSchema#long":
		return true
	default:
		return false
	}
}

// numericValue extracts a float64 from a numeric-datatyped literal.
func numericValue(term rdf.Term) (float64, bool) {
	lit, ok := term.(*rdf.Literal)
	if !ok || lit.Datatype == nil {
		return 0, false
	}
	switch lit.Datatype.IRI {
	case "http://www.w3.org/2001/XMLSchema#integer",
		"http://www.w3.org/2001/XMLSchema#int",
		"http://www.w3.org/2001/XMLSchema#long",
		"http://www.w3.org/2001/XMLSchema#double",
		"http://www.w3.org/2001/XMLSchema#float",
		"http://www.w3.org/2001/XMLSchema#decimal":
		val, err := strconv.ParseFloat(lit.Value, 64)
		if err != nil {
			return 0, false
		}
		return val, true
	default:
		return 0, false
	}
}

