// Package stats maintains per-predicate cardinality sketches over the
// quads stored in a dataset, used by the query optimizer in place of the
// bound/unbound selectivity heuristic once enough data has accumulated.
//
// Each predicate gets a pair of roaring bitmaps recording which subjects
// and objects have been seen paired with it, keyed by a 32-bit hash of the
// term's canonical string form rather than a dictionary-assigned ID, so
// the sketch never has to look anything up in the term dictionary. This
// trades a small, practically negligible collision rate for being able to
// update statistics directly from an rdf.Quad on the insert/delete path.
package stats

import (
	"hash/fnv"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/aleksaelezovic/trigo/pkg/rdf"
)

// predicateSketch holds the cardinality sketch for one predicate.
type predicateSketch struct {
	subjects *roaring.Bitmap
	objects  *roaring.Bitmap
	triples  int64
}

// Statistics tracks per-predicate cardinality sketches over a dataset.
// The zero value is not usable; construct with New.
type Statistics struct {
	mu           sync.RWMutex
	totalTriples int64
	predicates   map[string]*predicateSketch
}

// New creates an empty Statistics ready to be populated via Observe.
func New() *Statistics {
	return &Statistics{predicates: make(map[string]*predicateSketch)}
}

// Observe records one stored quad's subject/predicate/object into the
// relevant predicate's sketch.
func (s *Statistics) Observe(quad *rdf.Quad) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.totalTriples++
	key := quad.Predicate.String()
	sketch, ok := s.predicates[key]
	if !ok {
		sketch = &predicateSketch{subjects: roaring.NewBitmap(), objects: roaring.NewBitmap()}
		s.predicates[key] = sketch
	}
	sketch.triples++
	sketch.subjects.Add(termHash(quad.Subject))
	sketch.objects.Add(termHash(quad.Object))
}

// Forget records the removal of a previously-observed quad. The bitmaps
// themselves are not shrunk, since a hashed id may still be shared by other
// live terms under the same predicate; only the triple count is adjusted.
func (s *Statistics) Forget(quad *rdf.Quad) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.totalTriples > 0 {
		s.totalTriples--
	}
	if sketch, ok := s.predicates[quad.Predicate.String()]; ok && sketch.triples > 0 {
		sketch.triples--
	}
}

// TotalTriples returns the number of quads currently observed.
func (s *Statistics) TotalTriples() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.totalTriples
}

// PredicateCardinality reports the triple count and the number of distinct
// subjects/objects observed for predicate. ok is false if predicate has
// never been observed.
func (s *Statistics) PredicateCardinality(predicate rdf.Term) (triples int64, distinctSubjects, distinctObjects uint64, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sketch, found := s.predicates[predicate.String()]
	if !found {
		return 0, 0, 0, false
	}
	return sketch.triples, sketch.subjects.GetCardinality(), sketch.objects.GetCardinality(), true
}

// termHash reduces an RDF term to a 32-bit id suitable for a roaring
// bitmap, via its canonical string form.
func termHash(t rdf.Term) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(t.String()))
	return h.Sum32()
}
