package parser

import "github.com/aleksaelezovic/trigo/pkg/rdf"

// UpdateRequest is a sequence of SPARQL 1.1 Update operations, executed in
// order against the same dataset.
type UpdateRequest struct {
	Operations []UpdateOperation
}

// UpdateOperation is one operation of an update request.
type UpdateOperation interface {
	updateOperationNode()
}

// QuadTemplate is a triple or quad occurring in an update's data/template
// block. Graph is nil for a triple in the default graph.
type QuadTemplate struct {
	Subject   TermOrVariable
	Predicate TermOrVariable
	Object    TermOrVariable
	Graph     *GraphTerm
}

// InsertDataOp implements INSERT DATA { ... }. Quads are ground (no
// variables are permitted by the grammar, but the same TermOrVariable shape
// is reused rather than introducing a separate ground-term type).
type InsertDataOp struct {
	Quads []*QuadTemplate
}

func (*InsertDataOp) updateOperationNode() {}

// DeleteDataOp implements DELETE DATA { ... }.
type DeleteDataOp struct {
	Quads []*QuadTemplate
}

func (*DeleteDataOp) updateOperationNode() {}

// ModifyOp implements the DELETE/INSERT/WHERE update form, covering
// DELETE WHERE (Delete holds templates built from Where's own triples), and
// DELETE { } INSERT { } [USING ...] WHERE { }.
type ModifyOp struct {
	With       *rdf.NamedNode // WITH <graph>: default graph context for templates lacking GRAPH
	Delete     []*QuadTemplate
	Insert     []*QuadTemplate
	Using      []*rdf.NamedNode // USING <iri>
	UsingNamed []*rdf.NamedNode // USING NAMED <iri>
	Where      *GraphPattern
}

func (*ModifyOp) updateOperationNode() {}

// GraphRef names a graph target for CLEAR/DROP/COPY/MOVE/ADD/CREATE.
type GraphRef struct {
	Default bool
	Named   *rdf.NamedNode
	All     bool
	AllNamed bool
}

// LoadOp implements LOAD <source> [INTO GRAPH <dest>].
type LoadOp struct {
	Source *rdf.NamedNode
	Into   *rdf.NamedNode // nil means the default graph
	Silent bool
}

func (*LoadOp) updateOperationNode() {}

// ClearOp implements CLEAR [SILENT] target.
type ClearOp struct {
	Target GraphRef
	Silent bool
}

func (*ClearOp) updateOperationNode() {}

// CreateOp implements CREATE [SILENT] GRAPH <iri>.
type CreateOp struct {
	Graph  *rdf.NamedNode
	Silent bool
}

func (*CreateOp) updateOperationNode() {}

// DropOp implements DROP [SILENT] target.
type DropOp struct {
	Target GraphRef
	Silent bool
}

func (*DropOp) updateOperationNode() {}

// CopyOp implements COPY [SILENT] source TO dest.
type CopyOp struct {
	Source GraphRef
	Dest   GraphRef
	Silent bool
}

func (*CopyOp) updateOperationNode() {}

// MoveOp implements MOVE [SILENT] source TO dest.
type MoveOp struct {
	Source GraphRef
	Dest   GraphRef
	Silent bool
}

func (*MoveOp) updateOperationNode() {}

// AddOp implements ADD [SILENT] source TO dest.
type AddOp struct {
	Source GraphRef
	Dest   GraphRef
	Silent bool
}

func (*AddOp) updateOperationNode() {}
