package parser

import (
	"fmt"

	"github.com/aleksaelezovic/trigo/pkg/rdf"
)

// ParseUpdate parses a SPARQL 1.1 Update request: a ';'-separated sequence
// of update operations sharing one set of PREFIX/BASE declarations.
func ParseUpdate(input string) (*UpdateRequest, error) {
	p := NewParser(input)
	return p.ParseUpdateRequest()
}

// ParseUpdateRequest parses the update grammar's top level: a Prologue
// followed by one or more ';'-separated Update operations.
func (p *Parser) ParseUpdateRequest() (*UpdateRequest, error) {
	request := &UpdateRequest{}

	for {
		p.skipPrologue()
		p.skipWhitespace()
		if p.pos >= p.length {
			break
		}

		op, err := p.parseUpdateOperation()
		if err != nil {
			return nil, err
		}
		request.Operations = append(request.Operations, op)

		p.skipWhitespace()
		if p.peek() == ';' {
			p.advance()
			continue
		}
		break
	}

	return request, nil
}

// skipPrologue consumes leading PREFIX/BASE declarations.
func (p *Parser) skipPrologue() {
	for {
		p.skipWhitespace()
		if p.matchKeyword("PREFIX") {
			if err := p.skipPrefix(); err != nil {
				return
			}
		} else if p.matchKeyword("BASE") {
			if err := p.skipBase(); err != nil {
				return
			}
		} else {
			return
		}
	}
}

func (p *Parser) parseUpdateOperation() (UpdateOperation, error) {
	var with *rdf.NamedNode
	if p.matchKeyword("WITH") {
		p.skipWhitespace()
		iri, err := p.parseIRIOrPrefixedName()
		if err != nil {
			return nil, err
		}
		with = rdf.NewNamedNode(iri)
	}

	switch {
	case p.matchKeyword("INSERT"):
		p.skipWhitespace()
		if p.matchKeyword("DATA") {
			quads, err := p.parseQuadData(true)
			if err != nil {
				return nil, err
			}
			return &InsertDataOp{Quads: quads}, nil
		}
		insertQuads, err := p.parseQuadData(false)
		if err != nil {
			return nil, err
		}
		return p.parseUsingWhere(with, nil, insertQuads)

	case p.matchKeyword("DELETE"):
		p.skipWhitespace()
		if p.matchKeyword("DATA") {
			quads, err := p.parseQuadData(true)
			if err != nil {
				return nil, err
			}
			return &DeleteDataOp{Quads: quads}, nil
		}
		if p.matchKeyword("WHERE") {
			pattern, err := p.parseGraphPattern()
			if err != nil {
				return nil, err
			}
			templates := templatesFromPattern(pattern)
			return &ModifyOp{With: with, Delete: templates, Insert: nil, Where: pattern}, nil
		}
		deleteQuads, err := p.parseQuadData(false)
		if err != nil {
			return nil, err
		}
		var insertQuads []*QuadTemplate
		p.skipWhitespace()
		if p.matchKeyword("INSERT") {
			insertQuads, err = p.parseQuadData(false)
			if err != nil {
				return nil, err
			}
		}
		return p.parseUsingWhere(with, deleteQuads, insertQuads)

	case p.matchKeyword("LOAD"):
		return p.parseLoad()

	case p.matchKeyword("CLEAR"):
		silent := p.matchKeyword("SILENT")
		target, err := p.parseGraphRef()
		if err != nil {
			return nil, err
		}
		return &ClearOp{Target: target, Silent: silent}, nil

	case p.matchKeyword("CREATE"):
		silent := p.matchKeyword("SILENT")
		if !p.matchKeyword("GRAPH") {
			return nil, fmt.Errorf("expected GRAPH after CREATE")
		}
		p.skipWhitespace()
		iri, err := p.parseIRIOrPrefixedName()
		if err != nil {
			return nil, err
		}
		return &CreateOp{Graph: rdf.NewNamedNode(iri), Silent: silent}, nil

	case p.matchKeyword("DROP"):
		silent := p.matchKeyword("SILENT")
		target, err := p.parseGraphRef()
		if err != nil {
			return nil, err
		}
		return &DropOp{Target: target, Silent: silent}, nil

	case p.matchKeyword("COPY"):
		silent := p.matchKeyword("SILENT")
		src, dst, err := p.parseGraphRefPair()
		if err != nil {
			return nil, err
		}
		return &CopyOp{Source: src, Dest: dst, Silent: silent}, nil

	case p.matchKeyword("MOVE"):
		silent := p.matchKeyword("SILENT")
		src, dst, err := p.parseGraphRefPair()
		if err != nil {
			return nil, err
		}
		return &MoveOp{Source: src, Dest: dst, Silent: silent}, nil

	case p.matchKeyword("ADD"):
		silent := p.matchKeyword("SILENT")
		src, dst, err := p.parseGraphRefPair()
		if err != nil {
			return nil, err
		}
		return &AddOp{Source: src, Dest: dst, Silent: silent}, nil

	default:
		return nil, fmt.Errorf("expected an update operation keyword")
	}
}

// parseUsingWhere parses the USING/USING NAMED clauses and the mandatory
// WHERE clause that close out a DELETE/INSERT Modify operation.
func (p *Parser) parseUsingWhere(with *rdf.NamedNode, deleteQuads, insertQuads []*QuadTemplate) (UpdateOperation, error) {
	op := &ModifyOp{With: with, Delete: deleteQuads, Insert: insertQuads}

	for {
		p.skipWhitespace()
		if !p.matchKeyword("USING") {
			break
		}
		p.skipWhitespace()
		if p.matchKeyword("NAMED") {
			p.skipWhitespace()
			iri, err := p.parseIRIOrPrefixedName()
			if err != nil {
				return nil, err
			}
			op.UsingNamed = append(op.UsingNamed, rdf.NewNamedNode(iri))
			continue
		}
		iri, err := p.parseIRIOrPrefixedName()
		if err != nil {
			return nil, err
		}
		op.Using = append(op.Using, rdf.NewNamedNode(iri))
	}

	p.skipWhitespace()
	if !p.matchKeyword("WHERE") {
		return nil, fmt.Errorf("expected WHERE in DELETE/INSERT update")
	}
	pattern, err := p.parseGraphPattern()
	if err != nil {
		return nil, err
	}
	op.Where = pattern

	return op, nil
}

// parseQuadData parses a '{ ... }' block of triples, optionally wrapped
// per-graph in GRAPH <iri> { ... }. requireGround rejects variables,
// matching INSERT DATA/DELETE DATA's grammar; DELETE/INSERT templates used
// alongside a WHERE clause permit them.
func (p *Parser) parseQuadData(requireGround bool) ([]*QuadTemplate, error) {
	p.skipWhitespace()
	if p.peek() != '{' {
		return nil, fmt.Errorf("expected '{' to start quad data block")
	}
	p.advance()

	var quads []*QuadTemplate

	for {
		p.skipWhitespace()
		if p.peek() == '}' {
			p.advance()
			break
		}

		if p.matchKeyword("GRAPH") {
			p.skipWhitespace()
			graphTerm := &GraphTerm{}
			if p.peek() == '<' {
				iri, err := p.parseIRI()
				if err != nil {
					return nil, err
				}
				graphTerm.IRI = rdf.NewNamedNode(iri)
			} else if p.peek() == '?' || p.peek() == '$' {
				v, err := p.parseVariable()
				if err != nil {
					return nil, err
				}
				graphTerm.Variable = v
			} else {
				iri, err := p.parsePrefixedName()
				if err != nil {
					return nil, err
				}
				graphTerm.IRI = rdf.NewNamedNode(iri)
			}

			p.skipWhitespace()
			if p.peek() != '{' {
				return nil, fmt.Errorf("expected '{' after GRAPH in quad data block")
			}
			p.advance()

			for {
				p.skipWhitespace()
				if p.peek() == '}' {
					p.advance()
					break
				}
				triple, err := p.parseTriplePattern()
				if err != nil {
					return nil, err
				}
				if requireGround && (triple.Subject.IsVariable() || triple.Object.IsVariable()) {
					return nil, fmt.Errorf("variables are not permitted in a DATA block")
				}
				quads = append(quads, &QuadTemplate{
					Subject:   triple.Subject,
					Predicate: triple.Predicate,
					Object:    triple.Object,
					Graph:     graphTerm,
				})
				p.skipWhitespace()
				if p.peek() == '.' {
					p.advance()
				}
			}
			continue
		}

		triple, err := p.parseTriplePattern()
		if err != nil {
			return nil, err
		}
		if requireGround && (triple.Subject.IsVariable() || triple.Object.IsVariable()) {
			return nil, fmt.Errorf("variables are not permitted in a DATA block")
		}
		quads = append(quads, &QuadTemplate{
			Subject:   triple.Subject,
			Predicate: triple.Predicate,
			Object:    triple.Object,
		})

		p.skipWhitespace()
		if p.peek() == '.' {
			p.advance()
		}
	}

	return quads, nil
}

// templatesFromPattern flattens a DELETE WHERE pattern's top-level triples,
// and any directly GRAPH-wrapped children, into delete templates: DELETE
// WHERE reuses the WHERE clause itself as the deletion template.
func templatesFromPattern(pattern *GraphPattern) []*QuadTemplate {
	var templates []*QuadTemplate
	for _, t := range pattern.Patterns {
		templates = append(templates, &QuadTemplate{Subject: t.Subject, Predicate: t.Predicate, Object: t.Object})
	}
	for _, child := range pattern.Children {
		if child.Type == GraphPatternTypeGraph {
			for _, t := range child.Patterns {
				templates = append(templates, &QuadTemplate{
					Subject: t.Subject, Predicate: t.Predicate, Object: t.Object, Graph: child.Graph,
				})
			}
		}
	}
	return templates
}

func (p *Parser) parseLoad() (UpdateOperation, error) {
	silent := p.matchKeyword("SILENT")
	p.skipWhitespace()
	source, err := p.parseIRIOrPrefixedName()
	if err != nil {
		return nil, err
	}

	op := &LoadOp{Source: rdf.NewNamedNode(source), Silent: silent}

	p.skipWhitespace()
	if p.matchKeyword("INTO") {
		p.skipWhitespace()
		if !p.matchKeyword("GRAPH") {
			return nil, fmt.Errorf("expected GRAPH after INTO")
		}
		p.skipWhitespace()
		dest, err := p.parseIRIOrPrefixedName()
		if err != nil {
			return nil, err
		}
		op.Into = rdf.NewNamedNode(dest)
	}

	return op, nil
}

// parseGraphRef parses a CLEAR/DROP target: DEFAULT | NAMED | ALL |
// GRAPH <iri> | <iri>.
func (p *Parser) parseGraphRef() (GraphRef, error) {
	p.skipWhitespace()
	switch {
	case p.matchKeyword("DEFAULT"):
		return GraphRef{Default: true}, nil
	case p.matchKeyword("NAMED"):
		return GraphRef{AllNamed: true}, nil
	case p.matchKeyword("ALL"):
		return GraphRef{All: true}, nil
	case p.matchKeyword("GRAPH"):
		p.skipWhitespace()
		iri, err := p.parseIRIOrPrefixedName()
		if err != nil {
			return GraphRef{}, err
		}
		return GraphRef{Named: rdf.NewNamedNode(iri)}, nil
	default:
		iri, err := p.parseIRIOrPrefixedName()
		if err != nil {
			return GraphRef{}, fmt.Errorf("expected a graph reference: %w", err)
		}
		return GraphRef{Named: rdf.NewNamedNode(iri)}, nil
	}
}

// parseGraphRefPair parses "source TO dest" for COPY/MOVE/ADD, where each
// side is DEFAULT, GRAPH <iri>, or a bare <iri>.
func (p *Parser) parseGraphRefPair() (GraphRef, GraphRef, error) {
	src, err := p.parseSingleGraphRef()
	if err != nil {
		return GraphRef{}, GraphRef{}, err
	}
	p.skipWhitespace()
	if !p.matchKeyword("TO") {
		return GraphRef{}, GraphRef{}, fmt.Errorf("expected TO")
	}
	dst, err := p.parseSingleGraphRef()
	if err != nil {
		return GraphRef{}, GraphRef{}, err
	}
	return src, dst, nil
}

func (p *Parser) parseSingleGraphRef() (GraphRef, error) {
	p.skipWhitespace()
	switch {
	case p.matchKeyword("DEFAULT"):
		return GraphRef{Default: true}, nil
	case p.matchKeyword("GRAPH"):
		p.skipWhitespace()
		iri, err := p.parseIRIOrPrefixedName()
		if err != nil {
			return GraphRef{}, err
		}
		return GraphRef{Named: rdf.NewNamedNode(iri)}, nil
	default:
		iri, err := p.parseIRIOrPrefixedName()
		if err != nil {
			return GraphRef{}, err
		}
		return GraphRef{Named: rdf.NewNamedNode(iri)}, nil
	}
}

// parseIRIOrPrefixedName reads either a full <iri> or a prefix:local name,
// expanding the latter via the prologue's PREFIX declarations.
func (p *Parser) parseIRIOrPrefixedName() (string, error) {
	p.skipWhitespace()
	if p.peek() == '<' {
		return p.parseIRI()
	}
	return p.parsePrefixedName()
}
