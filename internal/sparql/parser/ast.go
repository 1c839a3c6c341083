package parser

import (
	"github.com/aleksaelezovic/trigo/pkg/rdf"
)

// Query represents a SPARQL query
type Query struct {
	QueryType QueryType
	Select    *SelectQuery
	Construct *ConstructQuery
	Ask       *AskQuery
	Describe  *DescribeQuery
}

// QueryType represents the type of SPARQL query
type QueryType int

const (
	QueryTypeSelect QueryType = iota
	QueryTypeConstruct
	QueryTypeAsk
	QueryTypeDescribe
)

// SelectQuery represents a SELECT query
type SelectQuery struct {
	Variables   []*Variable       // Bare variables to select (* for all)
	Projections []*ProjectionExpr // (expr AS ?var) projections, e.g. aggregates
	Distinct    bool              // DISTINCT modifier
	Where       *GraphPattern     // WHERE clause
	GroupBy     []*GroupCondition // GROUP BY clause
	Having      []*Filter         // HAVING clause
	OrderBy     []*OrderCondition // ORDER BY clause
	Limit       *int              // LIMIT clause
	Offset      *int              // OFFSET clause
}

// GroupCondition represents a single GROUP BY key: either a bare variable
// or an expression optionally aliased with AS ?var.
type GroupCondition struct {
	Variable   *Variable
	Expression Expression
	As         *Variable
}

// ProjectionExpr represents a SELECT (expr AS ?var) projection entry.
// Expression may itself be, or contain, an AggregateExpression.
type ProjectionExpr struct {
	Expression Expression
	As         *Variable
}

// AggregateExpression represents an aggregate set function applied over a
// group of bindings: COUNT, SUM, MIN, MAX, AVG, SAMPLE, GROUP_CONCAT.
type AggregateExpression struct {
	Function   string // upper-cased function name
	Distinct   bool
	Wildcard   bool // true only for COUNT(*)
	Expression Expression
	Separator  string // GROUP_CONCAT only; defaults to a single space
}

func (e *AggregateExpression) expressionNode() {}

// ConstructQuery represents a CONSTRUCT query
type ConstructQuery struct {
	Template []*TriplePattern // CONSTRUCT template
	Where    *GraphPattern    // WHERE clause
}

// AskQuery represents an ASK query
type AskQuery struct {
	Where *GraphPattern // WHERE clause
}

// DescribeQuery represents a DESCRIBE query
type DescribeQuery struct {
	Resources []*rdf.NamedNode // Resources to describe
	Where     *GraphPattern     // WHERE clause (optional)
}

// GraphPattern represents a graph pattern
type GraphPattern struct {
	Type          GraphPatternType
	Patterns      []*TriplePattern // For basic graph patterns
	Filters       []*Filter         // FILTER expressions
	Binds         []*Bind           // BIND expressions
	Children      []*GraphPattern   // For complex patterns (UNION, OPTIONAL, etc.)
	Graph         *GraphTerm        // For GRAPH patterns
	Service       *GraphTerm        // For SERVICE patterns: the federation endpoint
	ServiceSilent bool              // SERVICE SILENT: suppress endpoint errors
}

// GraphPatternType represents the type of graph pattern
type GraphPatternType int

const (
	GraphPatternTypeBasic GraphPatternType = iota
	GraphPatternTypeUnion
	GraphPatternTypeOptional
	GraphPatternTypeGraph
	GraphPatternTypeMinus
	GraphPatternTypeService
)

// TriplePattern represents a triple pattern with possible variables. Path
// is non-nil when the predicate position held a property path expression
// instead of a plain IRI/variable; Predicate is then the zero value.
type TriplePattern struct {
	Subject   TermOrVariable
	Predicate TermOrVariable
	Path      PropertyPath
	Object    TermOrVariable
}

// PropertyPath represents a SPARQL 1.1 property path expression appearing
// in the predicate position of a triple pattern.
type PropertyPath interface {
	pathNode()
}

// PredicatePath is a single IRI step, e.g. foaf:knows.
type PredicatePath struct {
	IRI *rdf.NamedNode
}

func (p *PredicatePath) pathNode() {}

// InversePath reverses its inner path's direction: ^p.
type InversePath struct {
	Path PropertyPath
}

func (p *InversePath) pathNode() {}

// SequencePath requires Left followed by Right through an intermediate
// node: p1/p2.
type SequencePath struct {
	Left  PropertyPath
	Right PropertyPath
}

func (p *SequencePath) pathNode() {}

// AlternativePath matches either Left or Right: p1|p2.
type AlternativePath struct {
	Left  PropertyPath
	Right PropertyPath
}

func (p *AlternativePath) pathNode() {}

// ZeroOrMorePath matches zero or more repetitions of Path: p*.
type ZeroOrMorePath struct {
	Path PropertyPath
}

func (p *ZeroOrMorePath) pathNode() {}

// OneOrMorePath matches one or more repetitions of Path: p+.
type OneOrMorePath struct {
	Path PropertyPath
}

func (p *OneOrMorePath) pathNode() {}

// ZeroOrOnePath matches zero or one occurrence of Path: p?.
type ZeroOrOnePath struct {
	Path PropertyPath
}

func (p *ZeroOrOnePath) pathNode() {}

// NegatedPropertySet matches a single step along any predicate not listed
// in IRIs (or, for entries with Inverse set, not listed as an inverse
// step): !(p1|^p2|...).
type NegatedPropertySet struct {
	IRIs    []*rdf.NamedNode
	Inverse []bool
}

func (p *NegatedPropertySet) pathNode() {}

// TermOrVariable can be either an RDF term or a variable
type TermOrVariable struct {
	Term     rdf.Term
	Variable *Variable
}

// IsVariable returns true if this is a variable
func (t *TermOrVariable) IsVariable() bool {
	return t.Variable != nil
}

// Variable represents a SPARQL variable
type Variable struct {
	Name string
}

// GraphTerm represents a graph name (can be IRI or variable)
type GraphTerm struct {
	IRI      *rdf.NamedNode
	Variable *Variable
}

// Filter represents a FILTER expression
type Filter struct {
	Expression Expression
}

// Bind represents a BIND expression (assigns an expression to a variable)
type Bind struct {
	Expression Expression
	Variable   *Variable
}

// Expression represents a SPARQL expression
type Expression interface {
	expressionNode()
}

// BinaryExpression represents a binary operation
type BinaryExpression struct {
	Left     Expression
	Operator Operator
	Right    Expression
}

func (e *BinaryExpression) expressionNode() {}

// UnaryExpression represents a unary operation
type UnaryExpression struct {
	Operator Operator
	Operand  Expression
}

func (e *UnaryExpression) expressionNode() {}

// VariableExpression represents a variable in an expression
type VariableExpression struct {
	Variable *Variable
}

func (e *VariableExpression) expressionNode() {}

// LiteralExpression represents a literal value in an expression
type LiteralExpression struct {
	Literal rdf.Term
}

func (e *LiteralExpression) expressionNode() {}

// FunctionCallExpression represents a function call
type FunctionCallExpression struct {
	Function  string
	Arguments []Expression
}

func (e *FunctionCallExpression) expressionNode() {}

// Operator represents an operator in expressions
type Operator int

const (
	// Logical operators
	OpAnd Operator = iota
	OpOr
	OpNot

	// Comparison operators
	OpEqual
	OpNotEqual
	OpLessThan
	OpLessThanOrEqual
	OpGreaterThan
	OpGreaterThanOrEqual

	// Arithmetic operators
	OpAdd
	OpSubtract
	OpMultiply
	OpDivide

	// String operators
	OpRegex
	OpStr
	OpLang
	OpDatatype

	// Numeric operators
	OpIsNumeric
	OpAbs
	OpCeil
	OpFloor
	OpRound
)

// OrderCondition represents an ORDER BY condition
type OrderCondition struct {
	Expression Expression
	Ascending  bool
}

// ExistsExpression represents EXISTS{...} or NOT EXISTS{...}
type ExistsExpression struct {
	Pattern *GraphPattern
	Negate  bool
}

func (e *ExistsExpression) expressionNode() {}

// InExpression represents x IN (e1, e2, ...) or x NOT IN (e1, e2, ...)
type InExpression struct {
	Expression Expression
	Values     []Expression
	Not        bool
}

func (e *InExpression) expressionNode() {}
