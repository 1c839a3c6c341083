package store

import (
	"fmt"

	"github.com/aleksaelezovic/trigo/internal/encoding"
	"github.com/aleksaelezovic/trigo/internal/storage"
	"github.com/aleksaelezovic/trigo/pkg/rdf"
)

// Pattern represents a triple or quad pattern with optional variables.
// Each field holds either an rdf.Term (bound) or a *Variable (unbound).
// A nil Graph means the default graph; a *Variable Graph ranges over the
// named graphs.
type Pattern struct {
	Subject   any
	Predicate any
	Object    any
	Graph     any
}

// Variable represents a SPARQL variable.
type Variable struct {
	Name string
}

// NewVariable creates a new variable.
func NewVariable(name string) *Variable {
	return &Variable{Name: name}
}

func (v *Variable) String() string {
	return "?" + v.Name
}

// QuadIterator iterates over quads matching a pattern.
type QuadIterator interface {
	Next() bool
	Quad() (*rdf.Quad, error)
	Close() error
}

// Binding represents a variable binding produced by the SPARQL executor's
// iterator tree.
type Binding struct {
	Vars map[string]rdf.Term
}

// NewBinding creates a new empty binding.
func NewBinding() *Binding {
	return &Binding{Vars: make(map[string]rdf.Term)}
}

// Clone creates a shallow copy of the binding.
func (b *Binding) Clone() *Binding {
	newBinding := NewBinding()
	for k, v := range b.Vars {
		newBinding.Vars[k] = v
	}
	return newBinding
}

// BindingIterator iterates over variable bindings.
type BindingIterator interface {
	Next() bool
	Binding() *Binding
	Close() error
}

// Query executes a pattern match and returns matching quads. The returned
// iterator owns a read-only transaction and must be closed.
func (s *Store) Query(pattern *Pattern) (QuadIterator, error) {
	txn, err := s.storage.Begin(false)
	if err != nil {
		return nil, err
	}

	table, keyOrder := s.selectIndex(pattern)

	prefix, err := s.buildScanPrefix(txn, pattern, keyOrder)
	if err != nil {
		_ = txn.Rollback()
		return nil, err
	}

	it, err := txn.Scan(table, prefix, nil)
	if err != nil {
		_ = txn.Rollback()
		return nil, err
	}

	return &quadIterator{
		store:    s,
		txn:      txn,
		it:       it,
		keyOrder: keyOrder,
	}, nil
}

// selectIndex chooses the covering index whose key order lets the scan
// prefix cover the longest run of bound positions, among the nine indexes
// populated by insertQuadTxn's writeRotations calls. Graph-unbound
// patterns (including explicit default-graph patterns) scan the
// default-graph trio; patterns that leave the graph a variable but still
// want to range over every named graph use the G-unbound-but-present
// trio (SPOG/POSG/OSPG); patterns with a bound graph use the G-bound trio
// (GSPO/GPOS/GOSP), which lets the scan start at that graph's first key.
func (s *Store) selectIndex(pattern *Pattern) (storage.Table, []int) {
	sBound := isBound(pattern.Subject)
	pBound := isBound(pattern.Predicate)
	oBound := isBound(pattern.Object)

	if isDefaultGraphPattern(pattern.Graph) {
		return bestRotation(defaultGraphRotations, sBound, pBound, oBound)
	}

	if !isBound(pattern.Graph) {
		// Graph is a variable: scan the G-unbound named-graph rotations
		// so a bound S/P/O prefix still narrows the scan.
		return bestRotation(namedGraphRotations[:3], sBound, pBound, oBound)
	}

	return bestRotation(namedGraphRotations[3:], sBound, pBound, oBound)
}

// bestRotation picks, among rotations, the one whose key order's leading
// terms are all bound, maximizing the usable scan-prefix length.
func bestRotation(rotations []rotation, sBound, pBound, oBound bool) (storage.Table, []int) {
	bound := [4]bool{sBound, pBound, oBound, true} // graph position handled by caller's rotation choice
	best := rotations[0]
	bestPrefixLen := -1
	for _, r := range rotations {
		n := 0
		for _, idx := range r.order {
			if idx == 3 {
				// graph position: already fixed by which trio was
				// selected, so it always counts as bound here.
				n++
				continue
			}
			if !bound[idx] {
				break
			}
			n++
		}
		if n > bestPrefixLen {
			bestPrefixLen = n
			best = r
		}
	}
	return best.table, best.order
}

// buildScanPrefix builds a key prefix for scanning based on bound
// positions, stopping at the first unbound position in the index's key
// order (or at the first position the index's graph slot occupies, when
// the pattern leaves the graph unbound but the rotation still fixes it,
// which never happens here since the G-unbound trio puts G last).
func (s *Store) buildScanPrefix(txn storage.Transaction, pattern *Pattern, keyOrder []int) ([]byte, error) {
	terms := make([]any, 4)
	terms[0] = pattern.Subject
	terms[1] = pattern.Predicate
	terms[2] = pattern.Object
	if pattern.Graph != nil {
		terms[3] = pattern.Graph
	} else {
		terms[3] = rdf.NewDefaultGraph()
	}

	var prefix []byte
	for _, idx := range keyOrder {
		term := terms[idx]
		if !isBound(term) {
			break
		}
		encoded, err := s.dict.Lookup(txn, term.(rdf.Term))
		if err != nil {
			return nil, err
		}
		prefix = append(prefix, encoded[:]...)
	}
	return prefix, nil
}

func isBound(v any) bool {
	if v == nil {
		return false
	}
	_, isVar := v.(*Variable)
	return !isVar
}

func isDefaultGraphPattern(graph any) bool {
	if graph == nil {
		return true
	}
	term, ok := graph.(rdf.Term)
	if !ok {
		return false
	}
	return isDefaultGraph(term)
}

// quadIterator implements QuadIterator over a rotation's key layout.
type quadIterator struct {
	store    *Store
	txn      storage.Transaction
	it       storage.Iterator
	keyOrder []int
	closed   bool
}

func (qi *quadIterator) Next() bool {
	if qi.closed {
		return false
	}
	return qi.it.Next()
}

func (qi *quadIterator) Quad() (*rdf.Quad, error) {
	if qi.closed {
		return nil, fmt.Errorf("iterator closed")
	}

	key := qi.it.Key()
	if key == nil {
		return nil, fmt.Errorf("no current key")
	}
	if len(key) < len(qi.keyOrder)*encoding.EncodedTermSize {
		return nil, fmt.Errorf("invalid key length: %d", len(key))
	}

	terms := make([]encoding.EncodedTerm, len(qi.keyOrder))
	for i := range qi.keyOrder {
		offset := i * encoding.EncodedTermSize
		copy(terms[i][:], key[offset:offset+encoding.EncodedTermSize])
	}

	var positions [4]encoding.EncodedTerm
	for i, idx := range qi.keyOrder {
		positions[idx] = terms[i]
	}

	subject, err := qi.store.dict.Decode(qi.txn, positions[0])
	if err != nil {
		return nil, fmt.Errorf("decoding subject: %w", err)
	}
	predicate, err := qi.store.dict.Decode(qi.txn, positions[1])
	if err != nil {
		return nil, fmt.Errorf("decoding predicate: %w", err)
	}
	object, err := qi.store.dict.Decode(qi.txn, positions[2])
	if err != nil {
		return nil, fmt.Errorf("decoding object: %w", err)
	}

	var graph rdf.Term
	if len(qi.keyOrder) > 3 {
		graph, err = qi.store.dict.Decode(qi.txn, positions[3])
		if err != nil {
			return nil, fmt.Errorf("decoding graph: %w", err)
		}
	} else {
		graph = rdf.NewDefaultGraph()
	}

	return &rdf.Quad{
		Subject:   subject,
		Predicate: predicate,
		Object:    object,
		Graph:     graph,
	}, nil
}

func (qi *quadIterator) Close() error {
	if qi.closed {
		return nil
	}
	qi.closed = true
	_ = qi.it.Close()
	return qi.txn.Rollback()
}
