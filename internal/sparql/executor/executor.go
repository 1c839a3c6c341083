package executor

import (
	"fmt"

	"github.com/aleksaelezovic/trigo/internal/sparql/evaluator"
	"github.com/aleksaelezovic/trigo/internal/sparql/optimizer"
	"github.com/aleksaelezovic/trigo/internal/sparql/parser"
	"github.com/aleksaelezovic/trigo/pkg/rdf"
	"github.com/aleksaelezovic/trigo/pkg/store"
)

// Executor executes SPARQL queries using the Volcano iterator model
type Executor struct {
	store     *store.Store
	optimizer *optimizer.Optimizer
}

// NewExecutor creates a new query executor
func NewExecutor(s *store.Store) *Executor {
	count, _ := s.Count()
	return &Executor{
		store: s,
		optimizer: optimizer.NewOptimizer(&optimizer.Statistics{
			TotalTriples: count,
			Sketches:     s.Statistics(),
		}),
	}
}

// Execute executes an optimized query
func (e *Executor) Execute(query *optimizer.OptimizedQuery) (QueryResult, error) {
	switch query.Original.QueryType {
	case parser.QueryTypeSelect:
		return e.executeSelect(query)
	case parser.QueryTypeAsk:
		return e.executeAsk(query)
	case parser.QueryTypeConstruct:
		return e.executeConstruct(query)
	case parser.QueryTypeDescribe:
		return e.executeDescribe(query)
	default:
		return nil, fmt.Errorf("unsupported query type")
	}
}

// QueryResult represents the result of a query
type QueryResult interface {
	resultType()
}

// SelectResult represents the result of a SELECT query
type SelectResult struct {
	Variables []*parser.Variable
	Bindings  []*store.Binding
}

func (r *SelectResult) resultType() {}

// AskResult represents the result of an ASK query
type AskResult struct {
	Result bool
}

func (r *AskResult) resultType() {}

// Term is a formatting-friendly RDF term: Type is "iri", "blank" or
// "literal", and Value carries the IRI/blank-node id, or the literal's
// N-Triples-style lexical representation (quoted, with @lang or ^^<dt>).
type Term struct {
	Type  string
	Value string
}

// Triple is a CONSTRUCT/DESCRIBE result triple
type Triple struct {
	Subject   Term
	Predicate Term
	Object    Term
}

// ConstructResult represents the result of a CONSTRUCT or DESCRIBE query
type ConstructResult struct {
	Triples []*Triple
}

func (r *ConstructResult) resultType() {}

// executeSelect executes a SELECT query
func (e *Executor) executeSelect(query *optimizer.OptimizedQuery) (*SelectResult, error) {
	iter, err := e.createIterator(query.Plan)
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var bindings []*store.Binding
	for iter.Next() {
		bindings = append(bindings, iter.Binding().Clone())
	}

	if query.Original.Select.Distinct {
		bindings = applyDistinct(bindings)
	}
	// REDUCED permits (but does not require) duplicate elimination; we keep
	// every solution to match the common interpretation test suites expect.

	variables := query.Original.Select.Variables
	if variables == nil {
		variables = extractVariablesFromGraphPattern(query.Original.Select.Where)
	}

	return &SelectResult{
		Variables: variables,
		Bindings:  bindings,
	}, nil
}

// executeAsk executes an ASK query
func (e *Executor) executeAsk(query *optimizer.OptimizedQuery) (*AskResult, error) {
	iter, err := e.createIterator(query.Plan)
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	return &AskResult{Result: iter.Next()}, nil
}

// executeConstruct executes a CONSTRUCT query, instantiating the template
// for every solution of the WHERE clause and deduplicating the resulting
// triples.
func (e *Executor) executeConstruct(query *optimizer.OptimizedQuery) (*ConstructResult, error) {
	constructPlan, ok := query.Plan.(*optimizer.ConstructPlan)
	if !ok {
		return nil, fmt.Errorf("expected ConstructPlan, got %T", query.Plan)
	}

	iter, err := e.createIterator(constructPlan.Input)
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	seen := make(map[string]bool)
	var triples []*Triple

	for iter.Next() {
		binding := iter.Binding()
		for _, pattern := range constructPlan.Template {
			triple, err := instantiateTriplePattern(pattern, binding)
			if err != nil {
				continue // unbound variable in template: skip this instantiation
			}

			key := fmt.Sprintf("%s|%s|%s", triple.Subject.Value, triple.Predicate.Value, triple.Object.Value)
			if !seen[key] {
				seen[key] = true
				triples = append(triples, triple)
			}
		}
	}

	return &ConstructResult{Triples: triples}, nil
}

// executeDescribe executes a DESCRIBE query, building the Concise Bounded
// Description (every triple with the resource as subject, plus, recursively,
// the triples of every blank node reached as an object) of each described
// resource.
func (e *Executor) executeDescribe(query *optimizer.OptimizedQuery) (*ConstructResult, error) {
	describePlan, ok := query.Plan.(*optimizer.DescribePlan)
	if !ok {
		return nil, fmt.Errorf("expected DescribePlan, got %T", query.Plan)
	}

	resources := make([]rdf.Term, 0, len(describePlan.Resources))
	for _, r := range describePlan.Resources {
		resources = append(resources, r)
	}

	if describePlan.Input != nil {
		iter, err := e.createIterator(describePlan.Input)
		if err != nil {
			return nil, err
		}
		defer iter.Close()

		seen := make(map[string]bool)
		for iter.Next() {
			binding := iter.Binding()
			describedVars := describePlan.Variables
			for _, v := range describedVars {
				term, exists := binding.Vars[v.Name]
				if !exists {
					continue
				}
				key := term.String()
				if !seen[key] {
					seen[key] = true
					resources = append(resources, term)
				}
			}
		}
	}

	seenTriple := make(map[string]bool)
	described := make(map[string]bool)
	var triples []*Triple
	for i := 0; i < len(resources); i++ {
		resource := resources[i]
		if described[resource.String()] {
			continue
		}
		described[resource.String()] = true
		quadIter, err := e.store.Query(&store.Pattern{
			Subject:   resource,
			Predicate: store.NewVariable("__describe_p"),
			Object:    store.NewVariable("__describe_o"),
		})
		if err != nil {
			return nil, err
		}

		for quadIter.Next() {
			quad, err := quadIter.Quad()
			if err != nil {
				_ = quadIter.Close()
				return nil, err
			}

			triple := &Triple{
				Subject:   rdfTermToExecutorTerm(quad.Subject),
				Predicate: rdfTermToExecutorTerm(quad.Predicate),
				Object:    rdfTermToExecutorTerm(quad.Object),
			}
			key := fmt.Sprintf("%s|%s|%s", triple.Subject.Value, triple.Predicate.Value, triple.Object.Value)
			if !seenTriple[key] {
				seenTriple[key] = true
				triples = append(triples, triple)
			}
			if _, isBlank := quad.Object.(*rdf.BlankNode); isBlank {
				resources = append(resources, quad.Object)
			}
		}
		_ = quadIter.Close()
	}

	return &ConstructResult{Triples: triples}, nil
}

// applyDistinct removes bindings that are duplicates under DISTINCT's
// variable-by-variable equality.
func applyDistinct(bindings []*store.Binding) []*store.Binding {
	seen := make(map[string]bool)
	var result []*store.Binding
	for _, b := range bindings {
		key := bindingSignature(b)
		if !seen[key] {
			seen[key] = true
			result = append(result, b)
		}
	}
	return result
}

func bindingSignature(b *store.Binding) string {
	sig := ""
	for name, term := range b.Vars {
		sig += name + "=" + termSignature(term) + ";"
	}
	return sig
}

func termSignature(term rdf.Term) string {
	return term.String()
}

// rdfTermToExecutorTerm converts an rdf.Term into the formatter-friendly Term
func rdfTermToExecutorTerm(term rdf.Term) Term {
	switch t := term.(type) {
	case *rdf.NamedNode:
		return Term{Type: "iri", Value: t.IRI}
	case *rdf.BlankNode:
		return Term{Type: "blank", Value: t.ID}
	case *rdf.Literal:
		value := t.Value
		switch {
		case t.Language != "":
			value = fmt.Sprintf("%s@%s", t.Value, t.Language)
		case t.Datatype != nil:
			value = fmt.Sprintf("%s^^<%s>", t.Value, t.Datatype.IRI)
		}
		return Term{Type: "literal", Value: value}
	default:
		return Term{Type: "literal", Value: term.String()}
	}
}

// instantiateTriplePattern substitutes a binding's values into a CONSTRUCT
// template triple pattern.
func instantiateTriplePattern(pattern *parser.TriplePattern, binding *store.Binding) (*Triple, error) {
	subject, err := instantiateTerm(pattern.Subject, binding)
	if err != nil {
		return nil, err
	}
	predicate, err := instantiateTerm(pattern.Predicate, binding)
	if err != nil {
		return nil, err
	}
	object, err := instantiateTerm(pattern.Object, binding)
	if err != nil {
		return nil, err
	}
	return &Triple{Subject: subject, Predicate: predicate, Object: object}, nil
}

func instantiateTerm(termOrVar parser.TermOrVariable, binding *store.Binding) (Term, error) {
	if termOrVar.IsVariable() {
		value, exists := binding.Vars[termOrVar.Variable.Name]
		if !exists {
			return Term{}, fmt.Errorf("unbound variable in template: ?%s", termOrVar.Variable.Name)
		}
		return rdfTermToExecutorTerm(value), nil
	}
	return rdfTermToExecutorTerm(termOrVar.Term), nil
}

// createIterator creates an iterator from a query plan
func (e *Executor) createIterator(plan optimizer.QueryPlan) (store.BindingIterator, error) {
	switch p := plan.(type) {
	case *optimizer.ScanPlan:
		return e.createScanIterator(p)
	case *optimizer.JoinPlan:
		return e.createJoinIterator(p)
	case *optimizer.FilterPlan:
		return e.createFilterIterator(p)
	case *optimizer.ProjectionPlan:
		return e.createProjectionIterator(p)
	case *optimizer.LimitPlan:
		return e.createLimitIterator(p)
	case *optimizer.OffsetPlan:
		return e.createOffsetIterator(p)
	case *optimizer.DistinctPlan:
		return e.createDistinctIterator(p)
	case *optimizer.OrderByPlan:
		return e.createOrderByIterator(p)
	case *optimizer.GraphPlan:
		return e.createGraphIterator(p)
	case *optimizer.BindPlan:
		return e.createBindIterator(p)
	case *optimizer.OptionalPlan:
		return e.createOptionalIterator(p)
	case *optimizer.UnionPlan:
		return e.createUnionIterator(p)
	case *optimizer.MinusPlan:
		return e.createMinusIterator(p)
	case *optimizer.AggregatePlan:
		return e.createAggregateIterator(p)
	case *optimizer.PathPlan:
		return e.createPathIterator(p)
	case *optimizer.ServicePlan:
		return e.createServiceIterator(p)
	default:
		return nil, fmt.Errorf("unsupported plan type: %T", plan)
	}
}

// createScanIterator creates an iterator for scanning a triple pattern
func (e *Executor) createScanIterator(plan *optimizer.ScanPlan) (store.BindingIterator, error) {
	pattern := &store.Pattern{
		Subject:   e.convertTermOrVariable(plan.Pattern.Subject),
		Predicate: e.convertTermOrVariable(plan.Pattern.Predicate),
		Object:    e.convertTermOrVariable(plan.Pattern.Object),
	}

	quadIter, err := e.store.Query(pattern)
	if err != nil {
		return nil, err
	}

	return &scanIterator{
		quadIter: quadIter,
		pattern:  plan.Pattern,
		binding:  store.NewBinding(),
	}, nil
}

// createJoinIterator creates an iterator for join operations
func (e *Executor) createJoinIterator(plan *optimizer.JoinPlan) (store.BindingIterator, error) {
	left, err := e.createIterator(plan.Left)
	if err != nil {
		return nil, err
	}

	switch plan.Type {
	case optimizer.JoinTypeNestedLoop:
		return &nestedLoopJoinIterator{
			left:      left,
			rightPlan: plan.Right,
			executor:  e,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported join type: %v", plan.Type)
	}
}

// createFilterIterator creates an iterator for FILTER operations
func (e *Executor) createFilterIterator(plan *optimizer.FilterPlan) (store.BindingIterator, error) {
	input, err := e.createIterator(plan.Input)
	if err != nil {
		return nil, err
	}

	eval := evaluator.NewEvaluator()
	eval.ExistsFunc = e.evaluateExists

	return &filterIterator{
		input:     input,
		filter:    plan.Filter,
		evaluator: eval,
	}, nil
}

// evaluateExists plans and runs a nested graph pattern for EXISTS/NOT
// EXISTS, reporting whether any of its solutions is compatible with the
// current binding (shares no conflicting variable values).
func (e *Executor) evaluateExists(pattern *parser.GraphPattern, binding *store.Binding) (bool, error) {
	plan, err := e.optimizer.OptimizePattern(pattern)
	if err != nil {
		return false, err
	}

	iter, err := e.createIterator(plan)
	if err != nil {
		return false, err
	}
	defer iter.Close()

	for iter.Next() {
		if bindingsCompatible(binding, iter.Binding()) {
			return true, nil
		}
	}
	return false, nil
}

// bindingsCompatible reports whether two bindings agree on every variable
// they share.
func bindingsCompatible(a, b *store.Binding) bool {
	for name, term := range a.Vars {
		if other, exists := b.Vars[name]; exists && !term.Equals(other) {
			return false
		}
	}
	return true
}

// createProjectionIterator creates an iterator for projection operations
func (e *Executor) createProjectionIterator(plan *optimizer.ProjectionPlan) (store.BindingIterator, error) {
	input, err := e.createIterator(plan.Input)
	if err != nil {
		return nil, err
	}

	eval := evaluator.NewEvaluator()
	eval.ExistsFunc = e.evaluateExists

	return &projectionIterator{
		input:       input,
		variables:   plan.Variables,
		projections: plan.Projections,
		evaluator:   eval,
	}, nil
}

// createLimitIterator creates an iterator for LIMIT operations
func (e *Executor) createLimitIterator(plan *optimizer.LimitPlan) (store.BindingIterator, error) {
	input, err := e.createIterator(plan.Input)
	if err != nil {
		return nil, err
	}

	return &limitIterator{input: input, limit: plan.Limit}, nil
}

// createOffsetIterator creates an iterator for OFFSET operations
func (e *Executor) createOffsetIterator(plan *optimizer.OffsetPlan) (store.BindingIterator, error) {
	input, err := e.createIterator(plan.Input)
	if err != nil {
		return nil, err
	}

	return &offsetIterator{input: input, offset: plan.Offset}, nil
}

// createDistinctIterator creates an iterator for DISTINCT operations
func (e *Executor) createDistinctIterator(plan *optimizer.DistinctPlan) (store.BindingIterator, error) {
	input, err := e.createIterator(plan.Input)
	if err != nil {
		return nil, err
	}

	return &distinctIterator{input: input, seen: make(map[string]bool)}, nil
}

// convertTermOrVariable converts a parser term/variable to store format
func (e *Executor) convertTermOrVariable(tov parser.TermOrVariable) interface{} {
	if tov.IsVariable() {
		return store.NewVariable(tov.Variable.Name)
	}
	return tov.Term
}

// scanIterator implements BindingIterator for scanning
type scanIterator struct {
	quadIter store.QuadIterator
	pattern  *parser.TriplePattern
	binding  *store.Binding
}

func (it *scanIterator) Next() bool {
	if !it.quadIter.Next() {
		return false
	}

	quad, err := it.quadIter.Quad()
	if err != nil {
		return false
	}

	it.binding = store.NewBinding()
	if it.pattern.Subject.IsVariable() {
		it.binding.Vars[it.pattern.Subject.Variable.Name] = quad.Subject
	}
	if it.pattern.Predicate.IsVariable() {
		it.binding.Vars[it.pattern.Predicate.Variable.Name] = quad.Predicate
	}
	if it.pattern.Object.IsVariable() {
		it.binding.Vars[it.pattern.Object.Variable.Name] = quad.Object
	}

	return true
}

func (it *scanIterator) Binding() *store.Binding { return it.binding }
func (it *scanIterator) Close() error            { return it.quadIter.Close() }

// nestedLoopJoinIterator implements nested loop join
type nestedLoopJoinIterator struct {
	left         store.BindingIterator
	rightPlan    optimizer.QueryPlan
	executor     *Executor
	currentLeft  *store.Binding
	currentRight store.BindingIterator
	result       *store.Binding
}

func (it *nestedLoopJoinIterator) Next() bool {
	for {
		if it.currentRight != nil {
			if it.currentRight.Next() {
				merged := mergeBindings(it.currentLeft, it.currentRight.Binding())
				if merged != nil {
					it.result = merged
					return true
				}
				continue
			}
			_ = it.currentRight.Close()
			it.currentRight = nil
		}

		if !it.left.Next() {
			return false
		}
		it.currentLeft = it.left.Binding()

		rightIter, err := it.executor.createIterator(it.rightPlan)
		if err != nil {
			return false
		}
		it.currentRight = rightIter
	}
}

func (it *nestedLoopJoinIterator) Binding() *store.Binding { return it.result }

func (it *nestedLoopJoinIterator) Close() error {
	if it.currentRight != nil {
		_ = it.currentRight.Close()
	}
	return it.left.Close()
}

// mergeBindings merges two bindings, returning nil if they disagree on a
// shared variable.
func mergeBindings(left, right *store.Binding) *store.Binding {
	result := left.Clone()
	for varName, term := range right.Vars {
		if existing, exists := result.Vars[varName]; exists {
			if !existing.Equals(term) {
				return nil
			}
		} else {
			result.Vars[varName] = term
		}
	}
	return result
}

// filterIterator implements FILTER operations
type filterIterator struct {
	input     store.BindingIterator
	filter    *parser.Filter
	evaluator *evaluator.Evaluator
}

func (it *filterIterator) Next() bool {
	for it.input.Next() {
		binding := it.input.Binding()
		result, err := it.evaluator.Evaluate(it.filter.Expression, binding)
		if err != nil {
			continue // evaluation error excludes the solution, per SPARQL semantics
		}
		if isTrueEBV(result) {
			return true
		}
	}
	return false
}

// isTrueEBV reports whether an evaluated term's effective boolean value is
// true. FILTER only accepts xsd:boolean results; anything else is excluded.
func isTrueEBV(term rdf.Term) bool {
	lit, ok := term.(*rdf.Literal)
	if !ok {
		return false
	}
	if lit.Datatype == nil || lit.Datatype.IRI != "http://www.w3.org/2001/XMLSchema#boolean" {
		return false
	}
	return lit.Value == "true" || lit.Value == "1"
}

func (it *filterIterator) Binding() *store.Binding { return it.input.Binding() }
func (it *filterIterator) Close() error            { return it.input.Close() }

// projectionIterator implements projection operations
type projectionIterator struct {
	input       store.BindingIterator
	variables   []*parser.Variable
	projections []*parser.ProjectionExpr
	evaluator   *evaluator.Evaluator
}

func (it *projectionIterator) Next() bool { return it.input.Next() }

func (it *projectionIterator) Binding() *store.Binding {
	if it.variables == nil && len(it.projections) == 0 {
		return it.input.Binding()
	}

	inputBinding := it.input.Binding()
	binding := store.NewBinding()
	for _, variable := range it.variables {
		if term, exists := inputBinding.Vars[variable.Name]; exists {
			binding.Vars[variable.Name] = term
		}
	}

	for _, proj := range it.projections {
		value, err := it.evaluator.Evaluate(proj.Expression, inputBinding)
		if err != nil {
			continue // leaves the projected variable unbound
		}
		name := projectionName(proj)
		if name != "" {
			binding.Vars[name] = value
		}
	}

	return binding
}

func (it *projectionIterator) Close() error { return it.input.Close() }

// limitIterator implements LIMIT operations
type limitIterator struct {
	input store.BindingIterator
	limit int
	count int
}

func (it *limitIterator) Next() bool {
	if it.count >= it.limit {
		return false
	}
	if it.input.Next() {
		it.count++
		return true
	}
	return false
}

func (it *limitIterator) Binding() *store.Binding { return it.input.Binding() }
func (it *limitIterator) Close() error            { return it.input.Close() }

// offsetIterator implements OFFSET operations
type offsetIterator struct {
	input   store.BindingIterator
	offset  int
	skipped int
}

func (it *offsetIterator) Next() bool {
	for it.skipped < it.offset {
		if !it.input.Next() {
			return false
		}
		it.skipped++
	}
	return it.input.Next()
}

func (it *offsetIterator) Binding() *store.Binding { return it.input.Binding() }
func (it *offsetIterator) Close() error            { return it.input.Close() }

// distinctIterator implements DISTINCT operations
type distinctIterator struct {
	input store.BindingIterator
	seen  map[string]bool
}

func (it *distinctIterator) Next() bool {
	for it.input.Next() {
		key := bindingSignature(it.input.Binding())
		if !it.seen[key] {
			it.seen[key] = true
			return true
		}
	}
	return false
}

func (it *distinctIterator) Binding() *store.Binding { return it.input.Binding() }
func (it *distinctIterator) Close() error            { return it.input.Close() }

// createBindIterator creates an iterator for BIND operations
func (e *Executor) createBindIterator(plan *optimizer.BindPlan) (store.BindingIterator, error) {
	input, err := e.createIterator(plan.Input)
	if err != nil {
		return nil, err
	}

	eval := evaluator.NewEvaluator()
	eval.ExistsFunc = e.evaluateExists

	return &bindIterator{
		input:      input,
		expression: plan.Expression,
		variable:   plan.Variable,
		evaluator:  eval,
	}, nil
}

// bindIterator implements BIND operations (variable assignment)
type bindIterator struct {
	input      store.BindingIterator
	expression parser.Expression
	variable   *parser.Variable
	evaluator  *evaluator.Evaluator
}

func (it *bindIterator) Next() bool { return it.input.Next() }

func (it *bindIterator) Binding() *store.Binding {
	inputBinding := it.input.Binding()

	result, err := it.evaluator.Evaluate(it.expression, inputBinding)
	if err != nil {
		// BIND failures drop the binding for that variable, leaving the
		// rest of the solution untouched.
		return inputBinding
	}

	extended := inputBinding.Clone()
	extended.Vars[it.variable.Name] = result
	return extended
}

func (it *bindIterator) Close() error { return it.input.Close() }

// createOptionalIterator creates an iterator for OPTIONAL operations (left outer join)
func (e *Executor) createOptionalIterator(plan *optimizer.OptionalPlan) (store.BindingIterator, error) {
	left, err := e.createIterator(plan.Left)
	if err != nil {
		return nil, err
	}

	return &optionalIterator{
		left:      left,
		rightPlan: plan.Right,
		executor:  e,
	}, nil
}

// optionalIterator implements OPTIONAL patterns (left outer join)
type optionalIterator struct {
	left         store.BindingIterator
	rightPlan    optimizer.QueryPlan
	executor     *Executor
	currentLeft  *store.Binding
	currentRight store.BindingIterator
	result       *store.Binding
	hasMatch     bool
}

func (it *optionalIterator) Next() bool {
	for {
		if it.currentRight != nil {
			if it.currentRight.Next() {
				merged := mergeBindings(it.currentLeft, it.currentRight.Binding())
				if merged != nil {
					it.hasMatch = true
					it.result = merged
					return true
				}
				continue
			}
			_ = it.currentRight.Close()
			it.currentRight = nil

			if !it.hasMatch {
				it.result = it.currentLeft
				return true
			}
		}

		if !it.left.Next() {
			return false
		}
		it.currentLeft = it.left.Binding()
		it.hasMatch = false

		rightIter, err := it.executor.createIterator(it.rightPlan)
		if err != nil {
			it.result = it.currentLeft
			return true
		}
		it.currentRight = rightIter
	}
}

func (it *optionalIterator) Binding() *store.Binding { return it.result }

func (it *optionalIterator) Close() error {
	if it.currentRight != nil {
		_ = it.currentRight.Close()
	}
	return it.left.Close()
}

// createUnionIterator creates an iterator for UNION operations (alternation)
func (e *Executor) createUnionIterator(plan *optimizer.UnionPlan) (store.BindingIterator, error) {
	left, err := e.createIterator(plan.Left)
	if err != nil {
		return nil, err
	}

	right, err := e.createIterator(plan.Right)
	if err != nil {
		_ = left.Close()
		return nil, err
	}

	return &unionIterator{left: left, right: right}, nil
}

// unionIterator implements UNION patterns (alternation)
type unionIterator struct {
	left     store.BindingIterator
	right    store.BindingIterator
	leftDone bool
}

func (it *unionIterator) Next() bool {
	if !it.leftDone {
		if it.left.Next() {
			return true
		}
		it.leftDone = true
	}
	return it.right.Next()
}

func (it *unionIterator) Binding() *store.Binding {
	if !it.leftDone {
		return it.left.Binding()
	}
	return it.right.Binding()
}

func (it *unionIterator) Close() error {
	_ = it.left.Close()
	return it.right.Close()
}

// createMinusIterator creates an iterator for MINUS operations (set difference)
func (e *Executor) createMinusIterator(plan *optimizer.MinusPlan) (store.BindingIterator, error) {
	left, err := e.createIterator(plan.Left)
	if err != nil {
		return nil, err
	}

	return &minusIterator{left: left, rightPlan: plan.Right, executor: e}, nil
}

// minusIterator implements MINUS patterns (set difference)
type minusIterator struct {
	left      store.BindingIterator
	rightPlan optimizer.QueryPlan
	executor  *Executor
}

func (it *minusIterator) Next() bool {
	for it.left.Next() {
		leftBinding := it.left.Binding()

		rightIter, err := it.executor.createIterator(it.rightPlan)
		if err != nil {
			return true
		}

		hasMatch := false
		for rightIter.Next() {
			// MINUS excludes only when the two bindings share at least one
			// variable and agree on it; disjoint domains never match.
			if sharesCompatibleDomain(leftBinding, rightIter.Binding()) {
				hasMatch = true
				break
			}
		}
		_ = rightIter.Close()

		if !hasMatch {
			return true
		}
	}
	return false
}

func (it *minusIterator) Binding() *store.Binding { return it.left.Binding() }
func (it *minusIterator) Close() error            { return it.left.Close() }

func sharesCompatibleDomain(left, right *store.Binding) bool {
	shared := false
	for varName, leftTerm := range left.Vars {
		if rightTerm, exists := right.Vars[varName]; exists {
			shared = true
			if !leftTerm.Equals(rightTerm) {
				return false
			}
		}
	}
	return shared
}

// createGraphIterator creates an iterator for GRAPH operations, constraining
// every scan nested within it to the named graph.
func (e *Executor) createGraphIterator(plan *optimizer.GraphPlan) (store.BindingIterator, error) {
	ge := &graphExecutor{base: e, graph: plan.Graph}
	return ge.createIterator(plan.Input)
}

// graphExecutor wraps an Executor, rewriting scans it plans to constrain
// their graph slot, so GRAPH ?g / GRAPH <iri> patterns only match quads
// from that graph.
type graphExecutor struct {
	base  *Executor
	graph *parser.GraphTerm
}

func (ge *graphExecutor) createIterator(plan optimizer.QueryPlan) (store.BindingIterator, error) {
	switch p := plan.(type) {
	case *optimizer.ScanPlan:
		return ge.createGraphScanIterator(p)
	case *optimizer.JoinPlan:
		left, err := ge.createIterator(p.Left)
		if err != nil {
			return nil, err
		}
		return &graphJoinIterator{left: left, rightPlan: p.Right, graphExec: ge}, nil
	default:
		return ge.base.createIterator(plan)
	}
}

func (ge *graphExecutor) createGraphScanIterator(plan *optimizer.ScanPlan) (store.BindingIterator, error) {
	pattern := &store.Pattern{
		Subject:   ge.base.convertTermOrVariable(plan.Pattern.Subject),
		Predicate: ge.base.convertTermOrVariable(plan.Pattern.Predicate),
		Object:    ge.base.convertTermOrVariable(plan.Pattern.Object),
		Graph:     ge.convertGraphTerm(),
	}

	quadIter, err := ge.base.store.Query(pattern)
	if err != nil {
		return nil, err
	}

	return &graphScanIterator{
		scanIterator: scanIterator{
			quadIter: quadIter,
			pattern:  plan.Pattern,
			binding:  store.NewBinding(),
		},
		graphVar: ge.graph.Variable,
	}, nil
}

func (ge *graphExecutor) convertGraphTerm() any {
	if ge.graph.Variable != nil {
		return store.NewVariable(ge.graph.Variable.Name)
	}
	return ge.graph.IRI
}

// graphScanIterator is a scanIterator that additionally binds the graph
// variable (GRAPH ?g { ... }) from the quad's graph slot.
type graphScanIterator struct {
	scanIterator
	graphVar *parser.Variable
}

func (it *graphScanIterator) Next() bool {
	if !it.quadIter.Next() {
		return false
	}

	quad, err := it.quadIter.Quad()
	if err != nil {
		return false
	}

	it.binding = store.NewBinding()
	if it.pattern.Subject.IsVariable() {
		it.binding.Vars[it.pattern.Subject.Variable.Name] = quad.Subject
	}
	if it.pattern.Predicate.IsVariable() {
		it.binding.Vars[it.pattern.Predicate.Variable.Name] = quad.Predicate
	}
	if it.pattern.Object.IsVariable() {
		it.binding.Vars[it.pattern.Object.Variable.Name] = quad.Object
	}
	if it.graphVar != nil {
		it.binding.Vars[it.graphVar.Name] = quad.Graph
	}

	return true
}

// graphJoinIterator implements nested loop join inside a GRAPH pattern,
// keeping the graph constraint applied to both sides.
type graphJoinIterator struct {
	left         store.BindingIterator
	rightPlan    optimizer.QueryPlan
	graphExec    *graphExecutor
	currentLeft  *store.Binding
	currentRight store.BindingIterator
	result       *store.Binding
}

func (it *graphJoinIterator) Next() bool {
	for {
		if it.currentRight != nil {
			if it.currentRight.Next() {
				merged := mergeBindings(it.currentLeft, it.currentRight.Binding())
				if merged != nil {
					it.result = merged
					return true
				}
				continue
			}
			_ = it.currentRight.Close()
			it.currentRight = nil
		}

		if !it.left.Next() {
			return false
		}
		it.currentLeft = it.left.Binding()

		rightIter, err := it.graphExec.createIterator(it.rightPlan)
		if err != nil {
			return false
		}
		it.currentRight = rightIter
	}
}

func (it *graphJoinIterator) Binding() *store.Binding { return it.result }

func (it *graphJoinIterator) Close() error {
	if it.currentRight != nil {
		_ = it.currentRight.Close()
	}
	return it.left.Close()
}

// createOrderByIterator creates an iterator for ORDER BY operations
func (e *Executor) createOrderByIterator(plan *optimizer.OrderByPlan) (store.BindingIterator, error) {
	input, err := e.createIterator(plan.Input)
	if err != nil {
		return nil, err
	}

	eval := evaluator.NewEvaluator()
	eval.ExistsFunc = e.evaluateExists

	return &orderByIterator{input: input, orderBy: plan.OrderBy, evaluator: eval}, nil
}

// orderByIterator implements ORDER BY by materializing all solutions once
// and sorting them according to the ORDER BY conditions.
type orderByIterator struct {
	input       store.BindingIterator
	orderBy     []*parser.OrderCondition
	evaluator   *evaluator.Evaluator
	bindings    []*store.Binding
	position    int
	initialized bool
}

func (it *orderByIterator) Next() bool {
	if !it.initialized {
		it.initialized = true
		for it.input.Next() {
			it.bindings = append(it.bindings, it.input.Binding().Clone())
		}
		it.sortBindings()
	}

	if it.position >= len(it.bindings) {
		return false
	}
	it.position++
	return true
}

func (it *orderByIterator) Binding() *store.Binding {
	if it.position > 0 && it.position <= len(it.bindings) {
		return it.bindings[it.position-1]
	}
	return store.NewBinding()
}

func (it *orderByIterator) Close() error { return it.input.Close() }

func (it *orderByIterator) sortBindings() {
	if len(it.orderBy) == 0 {
		return
	}
	// Insertion sort: result sets from a query plan are typically small
	// enough that simplicity beats sort.Slice's extra indirection here.
	for i := 1; i < len(it.bindings); i++ {
		for j := i; j > 0 && it.less(it.bindings[j], it.bindings[j-1]); j-- {
			it.bindings[j], it.bindings[j-1] = it.bindings[j-1], it.bindings[j]
		}
	}
}

func (it *orderByIterator) less(a, b *store.Binding) bool {
	for _, condition := range it.orderBy {
		cmp := it.compareByCondition(a, b, condition)
		if cmp != 0 {
			if !condition.Ascending {
				cmp = -cmp
			}
			return cmp < 0
		}
	}
	return false
}

func (it *orderByIterator) compareByCondition(a, b *store.Binding, condition *parser.OrderCondition) int {
	aVal, aErr := it.evaluator.Evaluate(condition.Expression, a)
	bVal, bErr := it.evaluator.Evaluate(condition.Expression, b)

	if aErr != nil && bErr != nil {
		return 0
	}
	if aErr != nil {
		return -1
	}
	if bErr != nil {
		return 1
	}

	// Blank nodes sort before IRIs, IRIs before literals; within a kind,
	// numerics compare by value and everything else by string form.
	rank := func(t rdf.Term) int {
		switch t.(type) {
		case *rdf.BlankNode:
			return 0
		case *rdf.NamedNode:
			return 1
		}
		return 2
	}
	if aRank, bRank := rank(aVal), rank(bVal); aRank != bRank {
		return aRank - bRank
	}
	return compareAggTerms(aVal, bVal)
}

// extractVariablesFromGraphPattern extracts all variables bound by a graph
// pattern, in first-appearance order. Used for SELECT * to determine the
// projected column order.
func extractVariablesFromGraphPattern(pattern *parser.GraphPattern) []*parser.Variable {
	if pattern == nil {
		return nil
	}

	seen := make(map[string]bool)
	var variables []*parser.Variable

	addVar := func(v *parser.Variable) {
		if v != nil && !seen[v.Name] {
			seen[v.Name] = true
			variables = append(variables, v)
		}
	}

	var walk func(*parser.GraphPattern)
	walk = func(p *parser.GraphPattern) {
		if p == nil {
			return
		}
		for _, triple := range p.Patterns {
			addVar(triple.Subject.Variable)
			addVar(triple.Predicate.Variable)
			addVar(triple.Object.Variable)
		}
		for _, bind := range p.Binds {
			addVar(bind.Variable)
		}
		for _, child := range p.Children {
			walk(child)
		}
	}

	walk(pattern)
	return variables
}
