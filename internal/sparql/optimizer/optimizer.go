package optimizer

import (
	"github.com/aleksaelezovic/trigo/internal/sparql/parser"
	"github.com/aleksaelezovic/trigo/internal/stats"
	"github.com/aleksaelezovic/trigo/pkg/rdf"
)

// Optimizer optimizes SPARQL queries
type Optimizer struct {
	// Statistics about the data (for selectivity estimation)
	stats *Statistics
}

// Statistics holds statistics about the stored data. Sketches, when
// non-nil, lets estimateSelectivity use real per-predicate cardinality
// sketches instead of the bound/unbound heuristic.
type Statistics struct {
	TotalTriples int64
	Sketches     *stats.Statistics
}

// NewOptimizer creates a new query optimizer
func NewOptimizer(stats *Statistics) *Optimizer {
	return &Optimizer{
		stats: stats,
	}
}

// Optimize optimizes a parsed query
func (o *Optimizer) Optimize(query *parser.Query) (*OptimizedQuery, error) {
	optimized := &OptimizedQuery{
		Original: query,
	}

	switch query.QueryType {
	case parser.QueryTypeSelect:
		plan, err := o.optimizeSelect(query.Select)
		if err != nil {
			return nil, err
		}
		optimized.Plan = plan
	case parser.QueryTypeAsk:
		plan, err := o.optimizeAsk(query.Ask)
		if err != nil {
			return nil, err
		}
		optimized.Plan = plan
	case parser.QueryTypeConstruct:
		plan, err := o.optimizeConstruct(query.Construct)
		if err != nil {
			return nil, err
		}
		optimized.Plan = plan
	case parser.QueryTypeDescribe:
		plan, err := o.optimizeDescribe(query.Describe)
		if err != nil {
			return nil, err
		}
		optimized.Plan = plan
	}

	return optimized, nil
}

// OptimizePattern builds a plan for a standalone graph pattern, independent
// of any enclosing query. Used by the executor to plan EXISTS/NOT EXISTS
// sub-patterns encountered during filter evaluation.
func (o *Optimizer) OptimizePattern(pattern *parser.GraphPattern) (QueryPlan, error) {
	return o.optimizeGraphPattern(pattern)
}

// OptimizedQuery represents an optimized query with execution plan
type OptimizedQuery struct {
	Original *parser.Query
	Plan     QueryPlan
}

// QueryPlan represents an execution plan
type QueryPlan interface {
	planNode()
}

// ScanPlan represents a scan operation
type ScanPlan struct {
	Pattern *parser.TriplePattern
}

func (p *ScanPlan) planNode() {}

// JoinPlan represents a join operation
type JoinPlan struct {
	Left  QueryPlan
	Right QueryPlan
	Type  JoinType
}

func (p *JoinPlan) planNode() {}

// JoinType represents the type of join
type JoinType int

const (
	JoinTypeNestedLoop JoinType = iota
	JoinTypeHashJoin
	JoinTypeMergeJoin
)

// FilterPlan represents a filter operation
type FilterPlan struct {
	Input  QueryPlan
	Filter *parser.Filter
}

func (p *FilterPlan) planNode() {}

// ProjectionPlan represents a projection operation
type ProjectionPlan struct {
	Input       QueryPlan
	Variables   []*parser.Variable
	Projections []*parser.ProjectionExpr
}

func (p *ProjectionPlan) planNode() {}

// PathPlan represents evaluating a SPARQL 1.1 property path between
// Subject and Object in place of a single-predicate ScanPlan.
type PathPlan struct {
	Subject parser.TermOrVariable
	Path    parser.PropertyPath
	Object  parser.TermOrVariable
}

func (p *PathPlan) planNode() {}

// ServicePlan represents a SERVICE clause targeting a remote SPARQL
// endpoint. Federated execution is not implemented; Silent controls
// whether evaluating this plan raises an error or yields no bindings.
type ServicePlan struct {
	Endpoint *parser.GraphTerm
	Silent   bool
	Input    QueryPlan
}

func (p *ServicePlan) planNode() {}

// AggregatePlan represents GROUP BY with aggregate projections: it groups
// Input's bindings by GroupBy, computes Aggregates (and any bare grouped
// Variables) per group, applies Having, and emits one binding per group.
type AggregatePlan struct {
	Input       QueryPlan
	GroupBy     []*parser.GroupCondition
	Variables   []*parser.Variable
	Projections []*parser.ProjectionExpr
	Having      []*parser.Filter
}

func (p *AggregatePlan) planNode() {}

// OrderByPlan represents an ORDER BY operation
type OrderByPlan struct {
	Input   QueryPlan
	OrderBy []*parser.OrderCondition
}

func (p *OrderByPlan) planNode() {}

// LimitPlan represents a LIMIT operation
type LimitPlan struct {
	Input QueryPlan
	Limit int
}

func (p *LimitPlan) planNode() {}

// OffsetPlan represents an OFFSET operation
type OffsetPlan struct {
	Input  QueryPlan
	Offset int
}

func (p *OffsetPlan) planNode() {}

// DistinctPlan represents a DISTINCT operation
type DistinctPlan struct {
	Input QueryPlan
}

func (p *DistinctPlan) planNode() {}

// ConstructPlan represents a CONSTRUCT operation
type ConstructPlan struct {
	Input    QueryPlan
	Template []*parser.TriplePattern
}

func (p *ConstructPlan) planNode() {}

// DescribePlan represents a DESCRIBE operation. Resources holds the fixed
// IRIs to describe; when Input/Variables is set, the bindings of Variables
// produced by Input are described in addition to Resources.
type DescribePlan struct {
	Resources []*rdf.NamedNode
	Input     QueryPlan
	Variables []*parser.Variable
}

func (p *DescribePlan) planNode() {}

// GraphPlan represents a GRAPH pattern operation
type GraphPlan struct {
	Input QueryPlan
	Graph *parser.GraphTerm
}

func (p *GraphPlan) planNode() {}

// BindPlan represents a BIND operation (variable assignment)
type BindPlan struct {
	Input      QueryPlan
	Expression parser.Expression
	Variable   *parser.Variable
}

func (p *BindPlan) planNode() {}

// OptionalPlan represents an OPTIONAL pattern (left outer join)
type OptionalPlan struct {
	Left  QueryPlan
	Right QueryPlan
}

func (p *OptionalPlan) planNode() {}

// UnionPlan represents a UNION pattern (alternation)
type UnionPlan struct {
	Left  QueryPlan
	Right QueryPlan
}

func (p *UnionPlan) planNode() {}

// MinusPlan represents a MINUS pattern (set difference)
type MinusPlan struct {
	Left  QueryPlan
	Right QueryPlan
}

func (p *MinusPlan) planNode() {}

// optimizeSelect optimizes a SELECT query
func (o *Optimizer) optimizeSelect(query *parser.SelectQuery) (QueryPlan, error) {
	// Start with the WHERE clause
	plan, err := o.optimizeGraphPattern(query.Where)
	if err != nil {
		return nil, err
	}

	grouped := len(query.GroupBy) > 0 || selectionHasAggregate(query.Projections)
	if grouped {
		plan = &AggregatePlan{
			Input:       plan,
			GroupBy:     query.GroupBy,
			Variables:   query.Variables,
			Projections: query.Projections,
			Having:      query.Having,
		}
	} else {
		for _, filter := range query.Having {
			plan = &FilterPlan{Input: plan, Filter: filter}
		}
	}

	// Apply ORDER BY if present
	if len(query.OrderBy) > 0 {
		plan = &OrderByPlan{
			Input:   plan,
			OrderBy: query.OrderBy,
		}
	}

	// Apply DISTINCT if present
	if query.Distinct {
		plan = &DistinctPlan{
			Input: plan,
		}
	}

	// Apply projection (if not SELECT * and not already grouped, since
	// AggregatePlan itself emits exactly the projected group/aggregate
	// columns)
	if !grouped && (query.Variables != nil || len(query.Projections) > 0) {
		plan = &ProjectionPlan{
			Input:       plan,
			Variables:   query.Variables,
			Projections: query.Projections,
		}
	}

	// Apply OFFSET if present
	if query.Offset != nil {
		plan = &OffsetPlan{
			Input:  plan,
			Offset: *query.Offset,
		}
	}

	// Apply LIMIT if present
	if query.Limit != nil {
		plan = &LimitPlan{
			Input: plan,
			Limit: *query.Limit,
		}
	}

	return plan, nil
}

// selectionHasAggregate reports whether any SELECT projection expression
// contains an aggregate set function, which implicitly groups the whole
// result into a single group when no GROUP BY clause is present.
func selectionHasAggregate(projections []*parser.ProjectionExpr) bool {
	for _, proj := range projections {
		if expressionHasAggregate(proj.Expression) {
			return true
		}
	}
	return false
}

func expressionHasAggregate(expr parser.Expression) bool {
	switch e := expr.(type) {
	case *parser.AggregateExpression:
		return true
	case *parser.BinaryExpression:
		return expressionHasAggregate(e.Left) || expressionHasAggregate(e.Right)
	case *parser.UnaryExpression:
		return expressionHasAggregate(e.Operand)
	case *parser.FunctionCallExpression:
		for _, arg := range e.Arguments {
			if expressionHasAggregate(arg) {
				return true
			}
		}
		return false
	}
	return false
}

// optimizeAsk optimizes an ASK query
func (o *Optimizer) optimizeAsk(query *parser.AskQuery) (QueryPlan, error) {
	// ASK queries just need to check existence
	plan, err := o.optimizeGraphPattern(query.Where)
	if err != nil {
		return nil, err
	}

	// Add implicit LIMIT 1 for ASK queries
	return &LimitPlan{
		Input: plan,
		Limit: 1,
	}, nil
}

// optimizeConstruct optimizes a CONSTRUCT query
func (o *Optimizer) optimizeConstruct(query *parser.ConstructQuery) (QueryPlan, error) {
	// Optimize the WHERE clause to get bindings
	plan, err := o.optimizeGraphPattern(query.Where)
	if err != nil {
		return nil, err
	}

	// Wrap in a ConstructPlan that will apply the template
	return &ConstructPlan{
		Input:    plan,
		Template: query.Template,
	}, nil
}

// optimizeDescribe optimizes a DESCRIBE query. With an explicit resource
// list and no WHERE clause, the plan carries the fixed resources directly.
// With a WHERE clause, the plan also evaluates it and describes every
// distinct binding of every variable the pattern binds; the parser accepts
// only '*' or IRIs after DESCRIBE, so there is no narrower variable list.
func (o *Optimizer) optimizeDescribe(query *parser.DescribeQuery) (QueryPlan, error) {
	if query.Where == nil {
		return &DescribePlan{Resources: query.Resources}, nil
	}

	plan, err := o.optimizeGraphPattern(query.Where)
	if err != nil {
		return nil, err
	}

	return &DescribePlan{
		Resources: query.Resources,
		Input:     plan,
		Variables: extractVariables(query.Where),
	}, nil
}

// extractVariables collects every variable bound by a graph pattern, in
// first-appearance order.
func extractVariables(pattern *parser.GraphPattern) []*parser.Variable {
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

// optimizeGraphPattern optimizes a graph pattern
func (o *Optimizer) optimizeGraphPattern(pattern *parser.GraphPattern) (QueryPlan, error) {
	switch pattern.Type {
	case parser.GraphPatternTypeBasic:
		return o.optimizeBasicGraphPattern(pattern)
	case parser.GraphPatternTypeGraph:
		return o.optimizeGraphGraphPattern(pattern)
	case parser.GraphPatternTypeService:
		return o.optimizeServicePattern(pattern)
	case parser.GraphPatternTypeUnion:
		left, err := o.optimizeGraphPattern(pattern.Children[0])
		if err != nil {
			return nil, err
		}
		right, err := o.optimizeGraphPattern(pattern.Children[1])
		if err != nil {
			return nil, err
		}
		return &UnionPlan{Left: left, Right: right}, nil
	default:
		// OPTIONAL and MINUS groups are planned as basic patterns here; the
		// enclosing optimizeBasicGraphPattern wraps them by their type.
		return o.optimizeBasicGraphPattern(pattern)
	}
}

// optimizeServicePattern optimizes a SERVICE pattern. The inner pattern is
// still planned (so EXPLAIN-style inspection and SILENT fallback have
// something to reason about) even though federated execution itself is
// unsupported.
func (o *Optimizer) optimizeServicePattern(pattern *parser.GraphPattern) (QueryPlan, error) {
	inner, err := o.optimizeBasicGraphPattern(pattern)
	if err != nil {
		return nil, err
	}
	return &ServicePlan{
		Endpoint: pattern.Service,
		Silent:   pattern.ServiceSilent,
		Input:    inner,
	}, nil
}

// optimizeGraphGraphPattern optimizes a GRAPH pattern
func (o *Optimizer) optimizeGraphGraphPattern(pattern *parser.GraphPattern) (QueryPlan, error) {
	// Optimize the nested patterns within the graph
	innerPlan, err := o.optimizeBasicGraphPattern(pattern)
	if err != nil {
		return nil, err
	}

	// Wrap in a GraphPlan that specifies which graph to query
	return &GraphPlan{
		Input: innerPlan,
		Graph: pattern.Graph,
	}, nil
}

// optimizeBasicGraphPattern optimizes a basic graph pattern
func (o *Optimizer) optimizeBasicGraphPattern(pattern *parser.GraphPattern) (QueryPlan, error) {
	var plan QueryPlan

	// Handle triple patterns if present
	if len(pattern.Patterns) > 0 {
		// Reorder triple patterns by selectivity (greedy approach)
		orderedPatterns := o.reorderBySelectivity(pattern.Patterns)

		// Build join plan from ordered patterns
		plan = o.buildScanOrPath(orderedPatterns[0])

		for i := 1; i < len(orderedPatterns); i++ {
			rightPlan := o.buildScanOrPath(orderedPatterns[i])

			// Decide join type based on estimated cost
			joinType := o.selectJoinType(plan, rightPlan)

			plan = &JoinPlan{
				Left:  plan,
				Right: rightPlan,
				Type:  joinType,
			}
		}
	}

	// Handle child patterns (e.g., GRAPH, OPTIONAL, UNION, MINUS patterns)
	for _, child := range pattern.Children {
		childPlan, err := o.optimizeGraphPattern(child)
		if err != nil {
			return nil, err
		}

		if childPlan != nil {
			if plan == nil {
				plan = childPlan
			} else {
				// Create appropriate plan based on child pattern type
				switch child.Type {
				case parser.GraphPatternTypeOptional:
					plan = &OptionalPlan{
						Left:  plan,
						Right: childPlan,
					}
				case parser.GraphPatternTypeMinus:
					plan = &MinusPlan{
						Left:  plan,
						Right: childPlan,
					}
				default:
					// Regular join for other pattern types
					plan = &JoinPlan{
						Left:  plan,
						Right: childPlan,
						Type:  JoinTypeNestedLoop,
					}
				}
			}
		}
	}

	// Apply filters (filter push-down)
	for _, filter := range pattern.Filters {
		if plan != nil {
			plan = &FilterPlan{
				Input:  plan,
				Filter: filter,
			}
		}
	}

	// Apply BIND operations
	for _, bind := range pattern.Binds {
		if plan != nil {
			plan = &BindPlan{
				Input:      plan,
				Expression: bind.Expression,
				Variable:   bind.Variable,
			}
		}
	}

	return plan, nil
}

// buildScanOrPath builds a ScanPlan for an ordinary triple pattern, or a
// PathPlan when the predicate position holds a property path.
func (o *Optimizer) buildScanOrPath(pattern *parser.TriplePattern) QueryPlan {
	if pattern.Path != nil {
		return &PathPlan{Subject: pattern.Subject, Path: pattern.Path, Object: pattern.Object}
	}
	return &ScanPlan{Pattern: pattern}
}

// reorderBySelectivity reorders triple patterns by estimated selectivity
// More selective patterns (fewer results) should be executed first
func (o *Optimizer) reorderBySelectivity(patterns []*parser.TriplePattern) []*parser.TriplePattern {
	// Create a copy to avoid modifying the original
	ordered := make([]*parser.TriplePattern, len(patterns))
	copy(ordered, patterns)

	// Simple heuristic-based ordering:
	// 1. Patterns with more bound terms are more selective
	// 2. Patterns with bound subjects/predicates are preferred
	for i := 0; i < len(ordered); i++ {
		for j := i + 1; j < len(ordered); j++ {
			if o.estimateSelectivity(ordered[j]) < o.estimateSelectivity(ordered[i]) {
				ordered[i], ordered[j] = ordered[j], ordered[i]
			}
		}
	}

	return ordered
}

// estimateSelectivity estimates the selectivity of a triple pattern.
// Lower values indicate higher selectivity (fewer results). When the
// pattern's predicate is bound and the optimizer has a populated cardinality
// sketch for it, the estimate comes from real observed distinct-value
// counts; otherwise it falls back to the bound/unbound heuristic.
func (o *Optimizer) estimateSelectivity(pattern *parser.TriplePattern) float64 {
	if sel, ok := o.sketchSelectivity(pattern); ok {
		return sel
	}

	selectivity := 1.0

	// Bound subject is highly selective
	if !pattern.Subject.IsVariable() {
		selectivity *= 0.01
	}

	// Bound predicate is moderately selective
	if !pattern.Predicate.IsVariable() {
		selectivity *= 0.1
	}

	// Bound object is moderately selective
	if !pattern.Object.IsVariable() {
		selectivity *= 0.1
	}

	return selectivity
}

// sketchSelectivity estimates selectivity from the optimizer's cardinality
// sketches. ok is false when no sketch applies (no statistics configured,
// a variable or path predicate, or a predicate never observed), in which
// case the caller should fall back to the plain heuristic.
func (o *Optimizer) sketchSelectivity(pattern *parser.TriplePattern) (float64, bool) {
	if o.stats == nil || o.stats.Sketches == nil || o.stats.TotalTriples == 0 {
		return 0, false
	}
	if pattern.Predicate.IsVariable() || pattern.Predicate.Term == nil {
		return 0, false
	}

	triples, distinctSubjects, distinctObjects, ok := o.stats.Sketches.PredicateCardinality(pattern.Predicate.Term)
	if !ok || triples == 0 {
		return 0, false
	}

	selectivity := float64(triples) / float64(o.stats.TotalTriples)
	if !pattern.Subject.IsVariable() && distinctSubjects > 0 {
		selectivity /= float64(distinctSubjects)
	}
	if !pattern.Object.IsVariable() && distinctObjects > 0 {
		selectivity /= float64(distinctObjects)
	}
	return selectivity, true
}

// selectJoinType selects the appropriate join type based on the plans
func (o *Optimizer) selectJoinType(left, right QueryPlan) JoinType {
	// Simple heuristic: use hash join for larger inputs, nested loop for smaller
	// In a real implementation, this would consider statistics and cardinality estimates

	// For now, default to nested loop (simpler to implement)
	return JoinTypeNestedLoop
}

