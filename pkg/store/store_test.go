package store

import (
	"testing"

	"github.com/aleksaelezovic/trigo/pkg/rdf"
)

func TestBatchInsertAndQuery(t *testing.T) {
	s, err := InMemory()
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer s.Close()

	quads := []*rdf.Quad{
		rdf.NewQuad(
			rdf.NewNamedNode("http://example.org/alice"),
			rdf.NewNamedNode("http://xmlns.com/foaf/0.1/name"),
			rdf.NewLiteral("Alice"),
			rdf.NewDefaultGraph(),
		),
		rdf.NewQuad(
			rdf.NewNamedNode("http://example.org/bob"),
			rdf.NewNamedNode("http://xmlns.com/foaf/0.1/name"),
			rdf.NewLiteral("Bob"),
			rdf.NewDefaultGraph(),
		),
		rdf.NewQuad(
			rdf.NewNamedNode("http://example.org/charlie"),
			rdf.NewNamedNode("http://xmlns.com/foaf/0.1/name"),
			rdf.NewLiteral("Charlie"),
			rdf.NewNamedNode("http://example.org/graph1"),
		),
	}

	if err := s.InsertQuadsBatch(quads); err != nil {
		t.Fatalf("failed to batch insert: %v", err)
	}

	count, err := s.Count()
	if err != nil {
		t.Fatalf("failed to count: %v", err)
	}
	if count != 2 {
		t.Errorf("expected default-graph count 2, got %d", count)
	}

	pattern := &Pattern{
		Subject:   NewVariable("s"),
		Predicate: NewVariable("p"),
		Object:    NewVariable("o"),
		Graph:     rdf.NewDefaultGraph(),
	}

	iter, err := s.Query(pattern)
	if err != nil {
		t.Fatalf("failed to query: %v", err)
	}
	defer iter.Close()

	defaultGraphCount := 0
	for iter.Next() {
		quad, err := iter.Quad()
		if err != nil {
			t.Fatalf("failed to get quad: %v", err)
		}
		if quad.Graph.Type() != rdf.TermTypeDefaultGraph {
			t.Errorf("expected default graph, got type %d", quad.Graph.Type())
		}
		defaultGraphCount++
	}
	if defaultGraphCount != 2 {
		t.Errorf("expected 2 quads in default graph, got %d", defaultGraphCount)
	}

	namedGraphPattern := &Pattern{
		Subject:   NewVariable("s"),
		Predicate: NewVariable("p"),
		Object:    NewVariable("o"),
		Graph:     rdf.NewNamedNode("http://example.org/graph1"),
	}

	iter2, err := s.Query(namedGraphPattern)
	if err != nil {
		t.Fatalf("failed to query named graph: %v", err)
	}
	defer iter2.Close()

	namedGraphCount := 0
	for iter2.Next() {
		quad, err := iter2.Quad()
		if err != nil {
			t.Fatalf("failed to get quad from named graph: %v", err)
		}
		subjectNode, ok := quad.Subject.(*rdf.NamedNode)
		if !ok {
			t.Fatal("expected named node subject")
		}
		if subjectNode.IRI != "http://example.org/charlie" {
			t.Errorf("expected charlie, got %s", subjectNode.IRI)
		}
		namedGraphCount++
	}
	if namedGraphCount != 1 {
		t.Errorf("expected 1 quad in named graph, got %d", namedGraphCount)
	}
}

func TestBatchInsertAndQuerySpecificValues(t *testing.T) {
	s, err := InMemory()
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer s.Close()

	aliceNode := rdf.NewNamedNode("http://example.org/alice")
	nameProperty := rdf.NewNamedNode("http://xmlns.com/foaf/0.1/name")
	aliceLiteral := rdf.NewLiteral("Alice")

	quads := []*rdf.Quad{
		rdf.NewQuad(aliceNode, nameProperty, aliceLiteral, rdf.NewDefaultGraph()),
		rdf.NewQuad(
			rdf.NewNamedNode("http://example.org/alice"),
			rdf.NewNamedNode("http://xmlns.com/foaf/0.1/age"),
			rdf.NewLiteralWithDatatype("30", rdf.XSDInteger),
			rdf.NewDefaultGraph(),
		),
	}

	if err := s.InsertQuadsBatch(quads); err != nil {
		t.Fatalf("failed to batch insert: %v", err)
	}

	pattern := &Pattern{
		Subject:   aliceNode,
		Predicate: nameProperty,
		Object:    NewVariable("o"),
		Graph:     rdf.NewDefaultGraph(),
	}

	iter, err := s.Query(pattern)
	if err != nil {
		t.Fatalf("failed to query: %v", err)
	}
	defer iter.Close()

	found := false
	for iter.Next() {
		quad, err := iter.Quad()
		if err != nil {
			t.Fatalf("failed to get quad: %v", err)
		}
		literal, ok := quad.Object.(*rdf.Literal)
		if !ok {
			t.Fatal("expected literal object")
		}
		if literal.Value == "Alice" {
			found = true
		}
	}
	if !found {
		t.Error("did not find alice's name")
	}
}

func TestBatchDeleteAndQuery(t *testing.T) {
	s, err := InMemory()
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer s.Close()

	quads := []*rdf.Quad{
		rdf.NewQuad(
			rdf.NewNamedNode("http://example.org/alice"),
			rdf.NewNamedNode("http://xmlns.com/foaf/0.1/name"),
			rdf.NewLiteral("Alice"),
			rdf.NewDefaultGraph(),
		),
		rdf.NewQuad(
			rdf.NewNamedNode("http://example.org/bob"),
			rdf.NewNamedNode("http://xmlns.com/foaf/0.1/name"),
			rdf.NewLiteral("Bob"),
			rdf.NewDefaultGraph(),
		),
	}

	if err := s.InsertQuadsBatch(quads); err != nil {
		t.Fatalf("failed to batch insert: %v", err)
	}

	count, err := s.Count()
	if err != nil {
		t.Fatalf("failed to count: %v", err)
	}
	if count != 2 {
		t.Errorf("expected count 2 before delete, got %d", count)
	}

	if err := s.DeleteQuadsBatch([]*rdf.Quad{quads[0]}); err != nil {
		t.Fatalf("failed to batch delete: %v", err)
	}

	count, err = s.Count()
	if err != nil {
		t.Fatalf("failed to count after delete: %v", err)
	}
	if count != 1 {
		t.Errorf("expected count 1 after delete, got %d", count)
	}

	pattern := &Pattern{
		Subject:   NewVariable("s"),
		Predicate: NewVariable("p"),
		Object:    NewVariable("o"),
		Graph:     rdf.NewDefaultGraph(),
	}

	iter, err := s.Query(pattern)
	if err != nil {
		t.Fatalf("failed to query after delete: %v", err)
	}
	defer iter.Close()

	foundBob, foundAlice := false, false
	for iter.Next() {
		quad, err := iter.Quad()
		if err != nil {
			t.Fatalf("failed to get quad: %v", err)
		}
		subject, ok := quad.Subject.(*rdf.NamedNode)
		if !ok {
			t.Error("expected NamedNode subject")
			continue
		}
		switch subject.IRI {
		case "http://example.org/bob":
			foundBob = true
		case "http://example.org/alice":
			foundAlice = true
		}
	}

	if !foundBob {
		t.Error("bob should still be present after delete")
	}
	if foundAlice {
		t.Error("alice should be deleted")
	}
}

func TestContainsQuad(t *testing.T) {
	s, err := InMemory()
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer s.Close()

	quad := rdf.NewQuad(
		rdf.NewNamedNode("http://example.org/alice"),
		rdf.NewNamedNode("http://xmlns.com/foaf/0.1/name"),
		rdf.NewLiteral("Alice"),
		rdf.NewDefaultGraph(),
	)

	ok, err := s.ContainsQuad(quad)
	if err != nil {
		t.Fatalf("contains before insert: %v", err)
	}
	if ok {
		t.Fatal("expected quad to be absent before insert")
	}

	if err := s.InsertQuad(quad); err != nil {
		t.Fatalf("insert: %v", err)
	}

	ok, err = s.ContainsQuad(quad)
	if err != nil {
		t.Fatalf("contains after insert: %v", err)
	}
	if !ok {
		t.Fatal("expected quad to be present after insert")
	}

	if err := s.DeleteQuad(quad); err != nil {
		t.Fatalf("delete: %v", err)
	}

	ok, err = s.ContainsQuad(quad)
	if err != nil {
		t.Fatalf("contains after delete: %v", err)
	}
	if ok {
		t.Fatal("expected quad to be absent after delete")
	}
}

func TestGC(t *testing.T) {
	s, err := InMemory()
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer s.Close()

	quad := rdf.NewQuad(
		rdf.NewNamedNode("http://example.org/a-very-long-iri-that-must-be-hashed-not-inlined"),
		rdf.NewNamedNode("http://xmlns.com/foaf/0.1/name"),
		rdf.NewLiteral("a value long enough to force hashing instead of inlining"),
		rdf.NewDefaultGraph(),
	)

	if err := s.InsertQuad(quad); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.DeleteQuad(quad); err != nil {
		t.Fatalf("delete: %v", err)
	}

	removed, err := s.GC()
	if err != nil {
		t.Fatalf("gc: %v", err)
	}
	if removed == 0 {
		t.Error("expected GC to remove at least one zero-refcount dictionary row")
	}
}
