package executor

import (
	"fmt"
	"net/http"
	"time"

	"github.com/aleksaelezovic/trigo/internal/rdfio"
	"github.com/aleksaelezovic/trigo/internal/sparql/parser"
	"github.com/aleksaelezovic/trigo/pkg/rdf"
	"github.com/aleksaelezovic/trigo/pkg/store"
)

// UpdateResult reports how many quads an update request touched, summed
// across every operation it contained.
type UpdateResult struct {
	Inserted int
	Deleted  int
}

// ExecuteUpdate runs every operation of an update request, in order. Each
// operation reads a consistent snapshot of the store (via Query, or the
// WHERE clause's own plan) before issuing its writes, so a DELETE/INSERT's
// WHERE evaluation never observes the mutations the same operation is
// about to make.
func (e *Executor) ExecuteUpdate(req *parser.UpdateRequest) (*UpdateResult, error) {
	result := &UpdateResult{}

	for _, op := range req.Operations {
		if err := e.executeUpdateOperation(op, result); err != nil {
			return result, err
		}
	}

	return result, nil
}

func (e *Executor) executeUpdateOperation(op parser.UpdateOperation, result *UpdateResult) error {
	switch o := op.(type) {
	case *parser.InsertDataOp:
		quads := groundQuads(o.Quads)
		if err := e.store.InsertQuadsBatch(quads); err != nil {
			return fmt.Errorf("INSERT DATA: %w", err)
		}
		result.Inserted += len(quads)
		return nil

	case *parser.DeleteDataOp:
		quads := groundQuads(o.Quads)
		if err := e.store.DeleteQuadsBatch(quads); err != nil {
			return fmt.Errorf("DELETE DATA: %w", err)
		}
		result.Deleted += len(quads)
		return nil

	case *parser.ModifyOp:
		return e.executeModify(o, result)

	case *parser.LoadOp:
		return e.executeLoad(o, result)

	case *parser.ClearOp:
		return e.executeClearTarget(o.Target, o.Silent, result)

	case *parser.CreateOp:
		return e.executeCreate(o)

	case *parser.DropOp:
		return e.executeClearTarget(o.Target, o.Silent, result)

	case *parser.CopyOp:
		return e.executeCopyMoveAdd(o.Source, o.Dest, o.Silent, true, false, result)

	case *parser.MoveOp:
		return e.executeCopyMoveAdd(o.Source, o.Dest, o.Silent, true, true, result)

	case *parser.AddOp:
		return e.executeCopyMoveAdd(o.Source, o.Dest, o.Silent, false, false, result)

	default:
		return fmt.Errorf("unsupported update operation: %T", op)
	}
}

// groundQuads converts an INSERT DATA/DELETE DATA block's quad templates,
// which the parser already guarantees are variable-free, into rdf.Quads.
func groundQuads(templates []*parser.QuadTemplate) []*rdf.Quad {
	quads := make([]*rdf.Quad, 0, len(templates))
	for _, t := range templates {
		graph := graphTermToTerm(t.Graph)
		quads = append(quads, rdf.NewQuad(t.Subject.Term, t.Predicate.Term, t.Object.Term, graph))
	}
	return quads
}

func graphTermToTerm(g *parser.GraphTerm) rdf.Term {
	if g == nil || g.IRI == nil {
		return rdf.NewDefaultGraph()
	}
	return g.IRI
}

// executeModify runs a DELETE/INSERT/WHERE update: the WHERE pattern is
// evaluated once, entirely, against a read-only snapshot before any write
// is issued, so a delete template can never observe bindings produced by
// this same operation's own mutations.
func (e *Executor) executeModify(op *parser.ModifyOp, result *UpdateResult) error {
	plan, err := e.optimizer.OptimizePattern(op.Where)
	if err != nil {
		return fmt.Errorf("DELETE/INSERT WHERE: %w", err)
	}

	iter, err := e.createIterator(plan)
	if err != nil {
		return fmt.Errorf("DELETE/INSERT WHERE: %w", err)
	}
	var bindings []*store.Binding
	for iter.Next() {
		bindings = append(bindings, iter.Binding().Clone())
	}
	_ = iter.Close()

	defaultGraph := graphTermFromIRI(op.With)

	var deleteQuads, insertQuads []*rdf.Quad
	seenDelete := make(map[string]bool)
	seenInsert := make(map[string]bool)

	for _, binding := range bindings {
		for _, t := range op.Delete {
			quad, ok := instantiateQuadTemplate(t, binding, defaultGraph)
			if !ok {
				continue
			}
			key := quad.String()
			if !seenDelete[key] {
				seenDelete[key] = true
				deleteQuads = append(deleteQuads, quad)
			}
		}
		for _, t := range op.Insert {
			quad, ok := instantiateQuadTemplate(t, binding, defaultGraph)
			if !ok {
				continue
			}
			key := quad.String()
			if !seenInsert[key] {
				seenInsert[key] = true
				insertQuads = append(insertQuads, quad)
			}
		}
	}

	if len(deleteQuads) > 0 {
		if err := e.store.DeleteQuadsBatch(deleteQuads); err != nil {
			return fmt.Errorf("DELETE/INSERT WHERE: deleting: %w", err)
		}
		result.Deleted += len(deleteQuads)
	}
	if len(insertQuads) > 0 {
		if err := e.store.InsertQuadsBatch(insertQuads); err != nil {
			return fmt.Errorf("DELETE/INSERT WHERE: inserting: %w", err)
		}
		result.Inserted += len(insertQuads)
	}

	return nil
}

func graphTermFromIRI(iri *rdf.NamedNode) rdf.Term {
	if iri == nil {
		return rdf.NewDefaultGraph()
	}
	return iri
}

// instantiateQuadTemplate substitutes binding into a delete/insert
// template, falling back to fallbackGraph when the template carries no
// explicit GRAPH. It returns ok=false when a variable the template
// references is unbound, per the DELETE/INSERT WHERE semantics that such
// triples are simply skipped rather than failing the whole update.
func instantiateQuadTemplate(t *parser.QuadTemplate, binding *store.Binding, fallbackGraph rdf.Term) (*rdf.Quad, bool) {
	subject, ok := instantiateUpdateTerm(t.Subject, binding)
	if !ok {
		return nil, false
	}
	predicate, ok := instantiateUpdateTerm(t.Predicate, binding)
	if !ok {
		return nil, false
	}
	object, ok := instantiateUpdateTerm(t.Object, binding)
	if !ok {
		return nil, false
	}

	graph := fallbackGraph
	if t.Graph != nil {
		if t.Graph.IRI != nil {
			graph = t.Graph.IRI
		} else if t.Graph.Variable != nil {
			value, bound := binding.Vars[t.Graph.Variable.Name]
			if !bound {
				return nil, false
			}
			graph = value
		}
	}

	return rdf.NewQuad(subject, predicate, object, graph), true
}

func instantiateUpdateTerm(tov parser.TermOrVariable, binding *store.Binding) (rdf.Term, bool) {
	if tov.IsVariable() {
		value, ok := binding.Vars[tov.Variable.Name]
		return value, ok
	}
	return tov.Term, true
}

// executeLoad fetches an RDF document from source and bulk-inserts it,
// into a named graph when INTO GRAPH was given or the default graph
// otherwise. Content negotiation follows whatever Content-Type the
// endpoint reports, using the same format parsers the bulk data upload
// endpoint accepts.
func (e *Executor) executeLoad(op *parser.LoadOp, result *UpdateResult) error {
	fail := func(err error) error {
		if op.Silent {
			return nil
		}
		return fmt.Errorf("LOAD <%s>: %w", op.Source.IRI, err)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Get(op.Source.IRI)
	if err != nil {
		return fail(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fail(fmt.Errorf("unexpected status %s", resp.Status))
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "text/turtle"
	}

	rdfParser, err := rdfio.NewParser(contentType)
	if err != nil {
		return fail(err)
	}

	quads, err := rdfParser.Parse(resp.Body)
	if err != nil {
		return fail(err)
	}

	if op.Into != nil {
		for _, q := range quads {
			q.Graph = op.Into
		}
	}

	if err := e.store.InsertQuadsBatch(quads); err != nil {
		return fail(err)
	}
	result.Inserted += len(quads)
	return nil
}

// executeCreate implements CREATE GRAPH. Named graphs are emergent from
// quad presence rather than tracked as standalone objects, so CREATE has
// no durable side effect of its own; it only fails (when not SILENT) if
// the graph already contains data, matching the "graph already exists"
// case the operation is meant to guard against.
func (e *Executor) executeCreate(op *parser.CreateOp) error {
	if op.Silent {
		return nil
	}
	exists, err := e.graphHasQuads(op.Graph)
	if err != nil {
		return fmt.Errorf("CREATE GRAPH <%s>: %w", op.Graph.IRI, err)
	}
	if exists {
		return fmt.Errorf("CREATE GRAPH <%s>: graph already exists", op.Graph.IRI)
	}
	return nil
}

func (e *Executor) graphHasQuads(graph rdf.Term) (bool, error) {
	iter, err := e.store.Query(&store.Pattern{
		Subject:   store.NewVariable("__create_s"),
		Predicate: store.NewVariable("__create_p"),
		Object:    store.NewVariable("__create_o"),
		Graph:     graph,
	})
	if err != nil {
		return false, err
	}
	defer iter.Close()
	return iter.Next(), nil
}

// executeClearTarget implements CLEAR/DROP: every quad in the target
// graph(s) is deleted. Dropping a named graph and clearing it have the
// same observable effect here, since graphs have no existence independent
// of their quads.
func (e *Executor) executeClearTarget(target parser.GraphRef, silent bool, result *UpdateResult) error {
	fail := func(err error) error {
		if silent {
			return nil
		}
		return err
	}

	graphs, err := e.resolveGraphRef(target)
	if err != nil {
		return fail(err)
	}

	for _, g := range graphs {
		n, err := e.clearGraph(g)
		if err != nil {
			return fail(err)
		}
		result.Deleted += n
	}
	return nil
}

// clearGraph deletes every quad in graph (rdf.NewDefaultGraph() for the
// default graph), reading the victim set from one snapshot before issuing
// the batched delete.
func (e *Executor) clearGraph(graph rdf.Term) (int, error) {
	iter, err := e.store.Query(&store.Pattern{
		Subject:   store.NewVariable("__clear_s"),
		Predicate: store.NewVariable("__clear_p"),
		Object:    store.NewVariable("__clear_o"),
		Graph:     graph,
	})
	if err != nil {
		return 0, err
	}

	var quads []*rdf.Quad
	for iter.Next() {
		quad, err := iter.Quad()
		if err != nil {
			_ = iter.Close()
			return 0, err
		}
		quads = append(quads, quad)
	}
	_ = iter.Close()

	if len(quads) == 0 {
		return 0, nil
	}
	if err := e.store.DeleteQuadsBatch(quads); err != nil {
		return 0, err
	}
	return len(quads), nil
}

// resolveGraphRef expands a CLEAR/DROP target into the concrete graph
// terms it refers to: DEFAULT the default graph, a bound IRI that one
// named graph, ALL every graph, NAMED every named graph (excluding the
// default graph).
func (e *Executor) resolveGraphRef(ref parser.GraphRef) ([]rdf.Term, error) {
	switch {
	case ref.Default:
		return []rdf.Term{rdf.NewDefaultGraph()}, nil
	case ref.Named != nil:
		return []rdf.Term{ref.Named}, nil
	case ref.All:
		named, err := e.listNamedGraphs()
		if err != nil {
			return nil, err
		}
		return append([]rdf.Term{rdf.NewDefaultGraph()}, named...), nil
	case ref.AllNamed:
		return e.listNamedGraphs()
	default:
		return nil, fmt.Errorf("empty graph reference")
	}
}

func (e *Executor) listNamedGraphs() ([]rdf.Term, error) {
	txn, err := e.store.Storage().Begin(false)
	if err != nil {
		return nil, err
	}
	defer func() { _ = txn.Rollback() }()

	encoded, err := e.store.ListGraphs(txn)
	if err != nil {
		return nil, err
	}

	dict := e.store.Dictionary()
	terms := make([]rdf.Term, 0, len(encoded))
	for _, enc := range encoded {
		term, err := dict.Decode(txn, enc)
		if err != nil {
			return nil, err
		}
		terms = append(terms, term)
	}
	return terms, nil
}

// executeCopyMoveAdd implements COPY/MOVE/ADD, which all copy every quad
// of source into dest (rewriting each copy's graph to dest); COPY and MOVE
// additionally clear dest first, and MOVE also clears source afterward.
func (e *Executor) executeCopyMoveAdd(source, dest parser.GraphRef, silent, clearDestFirst, clearSourceAfter bool, result *UpdateResult) error {
	fail := func(err error) error {
		if silent {
			return nil
		}
		return err
	}

	srcGraphs, err := e.resolveGraphRef(source)
	if err != nil {
		return fail(err)
	}
	dstGraphs, err := e.resolveGraphRef(dest)
	if err != nil {
		return fail(err)
	}
	if len(srcGraphs) != 1 || len(dstGraphs) != 1 {
		return fail(fmt.Errorf("COPY/MOVE/ADD require single graph references"))
	}
	srcGraph, dstGraph := srcGraphs[0], dstGraphs[0]

	if srcGraph.Equals(dstGraph) {
		return nil
	}

	if clearDestFirst {
		n, err := e.clearGraph(dstGraph)
		if err != nil {
			return fail(err)
		}
		result.Deleted += n
	}

	iter, err := e.store.Query(&store.Pattern{
		Subject:   store.NewVariable("__copy_s"),
		Predicate: store.NewVariable("__copy_p"),
		Object:    store.NewVariable("__copy_o"),
		Graph:     srcGraph,
	})
	if err != nil {
		return fail(err)
	}
	var quads []*rdf.Quad
	for iter.Next() {
		quad, err := iter.Quad()
		if err != nil {
			_ = iter.Close()
			return fail(err)
		}
		quads = append(quads, rdf.NewQuad(quad.Subject, quad.Predicate, quad.Object, dstGraph))
	}
	_ = iter.Close()

	if len(quads) > 0 {
		if err := e.store.InsertQuadsBatch(quads); err != nil {
			return fail(err)
		}
		result.Inserted += len(quads)
	}

	if clearSourceAfter {
		n, err := e.clearGraph(srcGraph)
		if err != nil {
			return fail(err)
		}
		result.Deleted += n
	}

	return nil
}
