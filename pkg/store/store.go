// Package store implements components C and D: the six named-graph and
// three default-graph quad indexes, and the dataset/transaction surface
// a host program embeds against. It owns no encoding logic of its own —
// terms are reduced to EncodedTerms by internal/dictionary and persisted
// through internal/storage — but it owns the decision of which of the
// nine covering indexes a given bound/unbound pattern should scan.
package store

import (
	"fmt"

	"github.com/aleksaelezovic/trigo/internal/dictionary"
	"github.com/aleksaelezovic/trigo/internal/encoding"
	"github.com/aleksaelezovic/trigo/internal/stats"
	"github.com/aleksaelezovic/trigo/internal/storage"
	"github.com/aleksaelezovic/trigo/pkg/rdf"
)

// Store is the embeddable quad store: term dictionary plus the nine
// covering indexes, opened against a single BadgerDB directory (or an
// in-memory instance for tests and scratch work).
type Store struct {
	storage storage.Storage
	dict    *dictionary.Dictionary
	stats   *stats.Statistics
}

// Statistics returns the store's live per-predicate cardinality sketches,
// fed by every insert and delete, for the query optimizer to consult.
func (s *Store) Statistics() *stats.Statistics {
	return s.stats
}

// Open opens (or creates) a store persisted at path.
func Open(path string) (*Store, error) {
	st, err := storage.NewBadgerStorage(path)
	if err != nil {
		return nil, err
	}
	return newStore(st)
}

// InMemory opens a non-persistent store, useful for tests and
// short-lived scratch datasets.
func InMemory() (*Store, error) {
	st, err := storage.NewBadgerStorageInMemory()
	if err != nil {
		return nil, err
	}
	return newStore(st)
}

func newStore(st *storage.BadgerStorage) (*Store, error) {
	secret, err := st.Secret()
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("reading store secret: %w", err)
	}
	return &Store{storage: st, dict: dictionary.New(secret), stats: stats.New()}, nil
}

// Close closes the underlying storage.
func (s *Store) Close() error {
	return s.storage.Close()
}

// GC compacts the term dictionary, removing rows whose refcount has
// dropped to zero. It is not run automatically; a host program calls it
// periodically or after a large delete.
func (s *Store) GC() (removed int, err error) {
	return dictionary.GC(s.storage)
}

// InsertTriple inserts triple into the default graph.
func (s *Store) InsertTriple(triple *rdf.Triple) error {
	return s.InsertQuad(rdf.NewQuad(triple.Subject, triple.Predicate, triple.Object, rdf.NewDefaultGraph()))
}

// InsertQuad inserts quad into its graph (default or named).
func (s *Store) InsertQuad(quad *rdf.Quad) error {
	txn, err := s.storage.Begin(true)
	if err != nil {
		return err
	}
	if err := s.insertQuadTxn(txn, quad); err != nil {
		_ = txn.Rollback()
		return err
	}
	return txn.Commit()
}

func (s *Store) insertQuadTxn(txn storage.Transaction, quad *rdf.Quad) error {
	sub, err := s.dict.Encode(txn, quad.Subject)
	if err != nil {
		return fmt.Errorf("encoding subject: %w", err)
	}
	pred, err := s.dict.Encode(txn, quad.Predicate)
	if err != nil {
		return fmt.Errorf("encoding predicate: %w", err)
	}
	obj, err := s.dict.Encode(txn, quad.Object)
	if err != nil {
		return fmt.Errorf("encoding object: %w", err)
	}

	if isDefaultGraph(quad.Graph) {
		if err := writeRotations(txn, defaultGraphRotations, sub, pred, obj, encoding.EncodedTerm{}); err != nil {
			return err
		}
		s.stats.Observe(quad)
		return nil
	}

	graph, err := s.dict.Encode(txn, quad.Graph)
	if err != nil {
		return fmt.Errorf("encoding graph: %w", err)
	}
	if err := writeRotations(txn, namedGraphRotations, sub, pred, obj, graph); err != nil {
		return err
	}
	if err := s.touchGraphRefcount(txn, graph, 1); err != nil {
		return err
	}
	s.stats.Observe(quad)
	return nil
}

// InsertQuadsBatch inserts quads atomically in a single transaction. It is
// the path the bulk-load HTTP endpoint and command-line loader use to
// import a dataset without paying one fsync-bound commit per quad.
func (s *Store) InsertQuadsBatch(quads []*rdf.Quad) error {
	txn, err := s.storage.Begin(true)
	if err != nil {
		return err
	}
	for _, quad := range quads {
		if err := s.insertQuadTxn(txn, quad); err != nil {
			_ = txn.Rollback()
			return err
		}
	}
	return txn.Commit()
}

// DeleteQuadsBatch removes quads atomically in a single transaction.
func (s *Store) DeleteQuadsBatch(quads []*rdf.Quad) error {
	txn, err := s.storage.Begin(true)
	if err != nil {
		return err
	}
	for _, quad := range quads {
		if err := s.deleteQuadTxn(txn, quad); err != nil {
			_ = txn.Rollback()
			return err
		}
	}
	return txn.Commit()
}

// DeleteTriple removes triple from the default graph.
func (s *Store) DeleteTriple(triple *rdf.Triple) error {
	return s.DeleteQuad(rdf.NewQuad(triple.Subject, triple.Predicate, triple.Object, rdf.NewDefaultGraph()))
}

// DeleteQuad removes quad from its graph.
func (s *Store) DeleteQuad(quad *rdf.Quad) error {
	txn, err := s.storage.Begin(true)
	if err != nil {
		return err
	}
	if err := s.deleteQuadTxn(txn, quad); err != nil {
		_ = txn.Rollback()
		return err
	}
	return txn.Commit()
}

func (s *Store) deleteQuadTxn(txn storage.Transaction, quad *rdf.Quad) error {
	sub, err := s.dict.ReleaseTerm(txn, quad.Subject)
	if err != nil {
		return err
	}
	pred, err := s.dict.ReleaseTerm(txn, quad.Predicate)
	if err != nil {
		return err
	}
	obj, err := s.dict.ReleaseTerm(txn, quad.Object)
	if err != nil {
		return err
	}

	if isDefaultGraph(quad.Graph) {
		if err := deleteRotations(txn, defaultGraphRotations, sub, pred, obj, encoding.EncodedTerm{}); err != nil {
			return err
		}
		s.stats.Forget(quad)
		return nil
	}

	graph, err := s.dict.ReleaseTerm(txn, quad.Graph)
	if err != nil {
		return err
	}

	if err := deleteRotations(txn, namedGraphRotations, sub, pred, obj, graph); err != nil {
		return err
	}
	if err := s.touchGraphRefcount(txn, graph, -1); err != nil {
		return err
	}
	s.stats.Forget(quad)
	return nil
}

// ContainsQuad reports whether quad is present.
func (s *Store) ContainsQuad(quad *rdf.Quad) (bool, error) {
	txn, err := s.storage.Begin(false)
	if err != nil {
		return false, err
	}
	defer func() { _ = txn.Rollback() }()

	sub, err := s.dict.Lookup(txn, quad.Subject)
	if err != nil {
		return false, err
	}
	pred, err := s.dict.Lookup(txn, quad.Predicate)
	if err != nil {
		return false, err
	}
	obj, err := s.dict.Lookup(txn, quad.Object)
	if err != nil {
		return false, err
	}

	if isDefaultGraph(quad.Graph) {
		_, err := txn.Get(storage.TableDSPO, concatKey(sub, pred, obj))
		return checkFound(err)
	}

	graph, err := s.dict.Lookup(txn, quad.Graph)
	if err != nil {
		return false, err
	}
	_, err = txn.Get(storage.TableGSPO, concatKey(graph, sub, pred, obj))
	return checkFound(err)
}

func checkFound(err error) (bool, error) {
	switch err {
	case nil:
		return true, nil
	case storage.ErrNotFound:
		return false, nil
	default:
		return false, err
	}
}

// Count returns the number of quads in the default graph.
func (s *Store) Count() (int64, error) {
	txn, err := s.storage.Begin(false)
	if err != nil {
		return 0, err
	}
	defer func() { _ = txn.Rollback() }()

	it, err := txn.Scan(storage.TableDSPO, nil, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = it.Close() }()

	var count int64
	for it.Next() {
		count++
	}
	return count, nil
}

// touchGraphRefcount tracks how many quads reference a named graph, so
// CLEAR/DROP GRAPH can tell whether a graph is now empty.
func (s *Store) touchGraphRefcount(txn storage.Transaction, graph encoding.EncodedTerm, delta int64) error {
	key := graph[:]
	var count int64
	existing, err := txn.Get(storage.TableGraphs, key)
	switch {
	case err == storage.ErrNotFound:
		count = 0
	case err != nil:
		return err
	default:
		count = rdf.DecodeInt64BigEndian(existing)
	}
	count += delta
	if count <= 0 {
		return txn.Delete(storage.TableGraphs, key)
	}
	return txn.Set(storage.TableGraphs, key, rdf.EncodeInt64BigEndian(count))
}

// ListGraphs returns the encoded names of every named graph with at
// least one quad.
func (s *Store) ListGraphs(txn storage.Transaction) ([]encoding.EncodedTerm, error) {
	it, err := txn.Scan(storage.TableGraphs, nil, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = it.Close() }()

	var graphs []encoding.EncodedTerm
	for it.Next() {
		var e encoding.EncodedTerm
		copy(e[:], it.Key())
		graphs = append(graphs, e)
	}
	return graphs, nil
}

// Dictionary exposes the term dictionary so higher layers (the SPARQL
// evaluator, the update processor) can encode/decode terms against a
// transaction they already hold, instead of opening their own.
func (s *Store) Dictionary() *dictionary.Dictionary {
	return s.dict
}

// Storage exposes the raw storage handle for transaction management by
// higher layers (the update processor opens read transactions through it).
func (s *Store) Storage() storage.Storage {
	return s.storage
}

func isDefaultGraph(term rdf.Term) bool {
	if term == nil {
		return true
	}
	_, ok := term.(*rdf.DefaultGraph)
	return ok
}

func concatKey(terms ...encoding.EncodedTerm) []byte {
	buf := make([]byte, 0, len(terms)*encoding.EncodedTermSize)
	for _, t := range terms {
		buf = append(buf, t[:]...)
	}
	return buf
}

// rotation describes one covering index: its table and the order (as
// indices into [subject, predicate, object, graph]) its key concatenates
// terms in.
type rotation struct {
	table storage.Table
	order []int
}

var defaultGraphRotations = []rotation{
	{storage.TableDSPO, []int{0, 1, 2}},
	{storage.TableDPOS, []int{1, 2, 0}},
	{storage.TableDOSP, []int{2, 0, 1}},
}

var namedGraphRotations = []rotation{
	{storage.TableSPOG, []int{0, 1, 2, 3}},
	{storage.TablePOSG, []int{1, 2, 0, 3}},
	{storage.TableOSPG, []int{2, 0, 1, 3}},
	{storage.TableGSPO, []int{3, 0, 1, 2}},
	{storage.TableGPOS, []int{3, 1, 2, 0}},
	{storage.TableGOSP, []int{3, 2, 0, 1}},
}

func writeRotations(txn storage.Transaction, rotations []rotation, s, p, o, g encoding.EncodedTerm) error {
	terms := [4]encoding.EncodedTerm{s, p, o, g}
	for _, r := range rotations {
		key := make([]byte, 0, len(r.order)*encoding.EncodedTermSize)
		for _, idx := range r.order {
			key = append(key, terms[idx][:]...)
		}
		if err := txn.Set(r.table, key, []byte{}); err != nil {
			return err
		}
	}
	return nil
}

func deleteRotations(txn storage.Transaction, rotations []rotation, s, p, o, g encoding.EncodedTerm) error {
	terms := [4]encoding.EncodedTerm{s, p, o, g}
	for _, r := range rotations {
		key := make([]byte, 0, len(r.order)*encoding.EncodedTermSize)
		for _, idx := range r.order {
			key = append(key, terms[idx][:]...)
		}
		if err := txn.Delete(r.table, key); err != nil {
			return err
		}
	}
	return nil
}
