package executor

import (
	"errors"
	"fmt"

	"github.com/aleksaelezovic/trigo/internal/sparql/optimizer"
	"github.com/aleksaelezovic/trigo/internal/sparql/parser"
	"github.com/aleksaelezovic/trigo/pkg/rdf"
	"github.com/aleksaelezovic/trigo/pkg/store"
)

// ErrServiceUnsupported is returned (wrapped with the offending endpoint)
// when a non-silent SERVICE clause is evaluated. Federated execution
// against a remote SPARQL endpoint is not implemented.
var ErrServiceUnsupported = errors.New("federated SERVICE execution is not supported")

// createPathIterator evaluates a SPARQL 1.1 property path between a
// PathPlan's Subject and Object. There is no per-edge lazy iterator here:
// the reachable set for whichever side is unbound is computed eagerly
// (a BFS over the quad store for the *, +, and ? operators) and replayed.
func (e *Executor) createPathIterator(plan *optimizer.PathPlan) (store.BindingIterator, error) {
	subjectBound := !plan.Subject.IsVariable()
	objectBound := !plan.Object.IsVariable()

	var bindings []*store.Binding

	switch {
	case subjectBound && objectBound:
		reachable, err := e.pathStep(plan.Path, plan.Subject.Term, false)
		if err != nil {
			return nil, err
		}
		for _, term := range reachable {
			if term.Equals(plan.Object.Term) {
				bindings = append(bindings, store.NewBinding())
				break
			}
		}

	case subjectBound && !objectBound:
		reachable, err := e.pathStep(plan.Path, plan.Subject.Term, false)
		if err != nil {
			return nil, err
		}
		for _, term := range reachable {
			b := store.NewBinding()
			b.Vars[plan.Object.Variable.Name] = term
			bindings = append(bindings, b)
		}

	case !subjectBound && objectBound:
		reachable, err := e.pathStep(plan.Path, plan.Object.Term, true)
		if err != nil {
			return nil, err
		}
		for _, term := range reachable {
			b := store.NewBinding()
			b.Vars[plan.Subject.Variable.Name] = term
			bindings = append(bindings, b)
		}

	default:
		starts, err := e.allTerms()
		if err != nil {
			return nil, err
		}
		for _, start := range starts {
			reachable, err := e.pathStep(plan.Path, start, false)
			if err != nil {
				return nil, err
			}
			for _, end := range reachable {
				b := store.NewBinding()
				b.Vars[plan.Subject.Variable.Name] = start
				b.Vars[plan.Object.Variable.Name] = end
				bindings = append(bindings, b)
			}
		}
	}

	return &materializedIterator{bindings: bindings}, nil
}

// pathStep computes the set of terms reachable from start by following path
// once. "Once" already absorbs a full closure for the *, +, and ? path
// modifiers, since those describe a single (possibly multi-hop) path
// expression rather than a literal single edge. When reverse is true, path
// is traversed backwards (start plays the object role instead of subject).
func (e *Executor) pathStep(path parser.PropertyPath, start rdf.Term, reverse bool) ([]rdf.Term, error) {
	switch p := path.(type) {
	case *parser.PredicatePath:
		return e.scanPredicate(start, p.IRI, reverse)

	case *parser.InversePath:
		return e.pathStep(p.Path, start, !reverse)

	case *parser.SequencePath:
		if !reverse {
			mids, err := e.pathStep(p.Left, start, false)
			if err != nil {
				return nil, err
			}
			return e.fanOut(mids, func(mid rdf.Term) ([]rdf.Term, error) {
				return e.pathStep(p.Right, mid, false)
			})
		}
		mids, err := e.pathStep(p.Right, start, true)
		if err != nil {
			return nil, err
		}
		return e.fanOut(mids, func(mid rdf.Term) ([]rdf.Term, error) {
			return e.pathStep(p.Left, mid, true)
		})

	case *parser.AlternativePath:
		left, err := e.pathStep(p.Left, start, reverse)
		if err != nil {
			return nil, err
		}
		right, err := e.pathStep(p.Right, start, reverse)
		if err != nil {
			return nil, err
		}
		return dedupTerms(append(left, right...)), nil

	case *parser.ZeroOrMorePath:
		return e.pathClosure(p.Path, start, reverse, true)

	case *parser.OneOrMorePath:
		return e.pathClosure(p.Path, start, reverse, false)

	case *parser.ZeroOrOnePath:
		one, err := e.pathStep(p.Path, start, reverse)
		if err != nil {
			return nil, err
		}
		return dedupTerms(append(one, start)), nil

	case *parser.NegatedPropertySet:
		return e.scanNegated(start, p, reverse)

	default:
		return nil, fmt.Errorf("unsupported property path node: %T", path)
	}
}

// pathClosure performs a BFS over repeated applications of path, returning
// every node reached. includeStart seeds the visited set with start itself
// (for *), rather than only nodes reached through at least one hop (for +).
func (e *Executor) pathClosure(path parser.PropertyPath, start rdf.Term, reverse, includeStart bool) ([]rdf.Term, error) {
	visited := make(map[string]rdf.Term)
	if includeStart {
		visited[start.String()] = start
	}

	frontier := []rdf.Term{start}
	for len(frontier) > 0 {
		var next []rdf.Term
		for _, node := range frontier {
			steps, err := e.pathStep(path, node, reverse)
			if err != nil {
				return nil, err
			}
			for _, s := range steps {
				key := s.String()
				if _, seen := visited[key]; !seen {
					visited[key] = s
					next = append(next, s)
				}
			}
		}
		frontier = next
	}

	result := make([]rdf.Term, 0, len(visited))
	for _, term := range visited {
		result = append(result, term)
	}
	return result, nil
}

// fanOut applies f to each of mids and unions the (deduplicated) results.
func (e *Executor) fanOut(mids []rdf.Term, f func(rdf.Term) ([]rdf.Term, error)) ([]rdf.Term, error) {
	var all []rdf.Term
	for _, mid := range mids {
		results, err := f(mid)
		if err != nil {
			return nil, err
		}
		all = append(all, results...)
	}
	return dedupTerms(all), nil
}

func dedupTerms(terms []rdf.Term) []rdf.Term {
	seen := make(map[string]bool, len(terms))
	result := make([]rdf.Term, 0, len(terms))
	for _, t := range terms {
		key := t.String()
		if !seen[key] {
			seen[key] = true
			result = append(result, t)
		}
	}
	return result
}

// scanPredicate follows a single predicate step from start, either forward
// (start as subject) or backward (start as object).
func (e *Executor) scanPredicate(start rdf.Term, iri *rdf.NamedNode, reverse bool) ([]rdf.Term, error) {
	var pattern *store.Pattern
	if !reverse {
		pattern = &store.Pattern{Subject: start, Predicate: iri, Object: store.NewVariable("__path_o")}
	} else {
		pattern = &store.Pattern{Subject: store.NewVariable("__path_s"), Predicate: iri, Object: start}
	}

	quadIter, err := e.store.Query(pattern)
	if err != nil {
		return nil, err
	}
	defer quadIter.Close()

	var results []rdf.Term
	for quadIter.Next() {
		quad, err := quadIter.Quad()
		if err != nil {
			return nil, err
		}
		if !reverse {
			results = append(results, quad.Object)
		} else {
			results = append(results, quad.Subject)
		}
	}
	return dedupTerms(results), nil
}

// scanNegated follows a single step matching none of the excluded
// predicates: direct edges excluded by a non-inverse entry, and edges
// traversed backwards excluded by an inverse (^iri) entry. A set with no
// inverse entries follows direct edges only, and one with only inverse
// entries follows backward edges only.
func (e *Executor) scanNegated(start rdf.Term, neg *parser.NegatedPropertySet, reverse bool) ([]rdf.Term, error) {
	forwardExcluded := make(map[string]bool)
	inverseExcluded := make(map[string]bool)
	for i, iri := range neg.IRIs {
		if neg.Inverse[i] {
			inverseExcluded[iri.IRI] = true
		} else {
			forwardExcluded[iri.IRI] = true
		}
	}

	useForward := len(forwardExcluded) > 0 || len(inverseExcluded) == 0
	useInverse := len(inverseExcluded) > 0

	direct, invDirection := forwardExcluded, inverseExcluded
	scanDirect, scanInv := useForward, useInverse
	if reverse {
		direct, invDirection = inverseExcluded, forwardExcluded
		scanDirect, scanInv = useInverse, useForward
	}

	var results []rdf.Term

	if scanDirect {
		fwd, err := e.scanAnyPredicate(start, direct, false)
		if err != nil {
			return nil, err
		}
		results = append(results, fwd...)
	}

	if scanInv {
		inv, err := e.scanAnyPredicate(start, invDirection, true)
		if err != nil {
			return nil, err
		}
		results = append(results, inv...)
	}

	return dedupTerms(results), nil
}

// scanAnyPredicate matches start against any predicate not in excluded,
// forward (start as subject) or backward (start as object).
func (e *Executor) scanAnyPredicate(start rdf.Term, excluded map[string]bool, reverse bool) ([]rdf.Term, error) {
	var pattern *store.Pattern
	if !reverse {
		pattern = &store.Pattern{Subject: start, Predicate: store.NewVariable("__path_p"), Object: store.NewVariable("__path_o")}
	} else {
		pattern = &store.Pattern{Subject: store.NewVariable("__path_s"), Predicate: store.NewVariable("__path_p"), Object: start}
	}

	quadIter, err := e.store.Query(pattern)
	if err != nil {
		return nil, err
	}
	defer quadIter.Close()

	var results []rdf.Term
	for quadIter.Next() {
		quad, err := quadIter.Quad()
		if err != nil {
			return nil, err
		}
		if named, ok := quad.Predicate.(*rdf.NamedNode); ok && excluded[named.IRI] {
			continue
		}
		if !reverse {
			results = append(results, quad.Object)
		} else {
			results = append(results, quad.Subject)
		}
	}
	return results, nil
}

// allTerms collects every distinct term appearing as a subject or object
// anywhere in the default graph, used as the candidate start set for a property
// path whose subject and object are both unbound.
func (e *Executor) allTerms() ([]rdf.Term, error) {
	quadIter, err := e.store.Query(&store.Pattern{
		Subject:   store.NewVariable("__path_all_s"),
		Predicate: store.NewVariable("__path_all_p"),
		Object:    store.NewVariable("__path_all_o"),
	})
	if err != nil {
		return nil, err
	}
	defer quadIter.Close()

	seen := make(map[string]rdf.Term)
	for quadIter.Next() {
		quad, err := quadIter.Quad()
		if err != nil {
			return nil, err
		}
		seen[quad.Subject.String()] = quad.Subject
		seen[quad.Object.String()] = quad.Object
	}

	result := make([]rdf.Term, 0, len(seen))
	for _, term := range seen {
		result = append(result, term)
	}
	return result, nil
}

// createServiceIterator handles a SERVICE clause. Federated execution
// against a remote SPARQL endpoint is not implemented: a non-silent SERVICE
// fails the query, and a SILENT one contributes no bindings.
func (e *Executor) createServiceIterator(plan *optimizer.ServicePlan) (store.BindingIterator, error) {
	if !plan.Silent {
		return nil, fmt.Errorf("SERVICE %s: %w", serviceEndpointDesc(plan.Endpoint), ErrServiceUnsupported)
	}
	return &materializedIterator{}, nil
}

func serviceEndpointDesc(endpoint *parser.GraphTerm) string {
	if endpoint == nil {
		return "<unknown>"
	}
	if endpoint.IRI != nil {
		return fmt.Sprintf("<%s>", endpoint.IRI.IRI)
	}
	if endpoint.Variable != nil {
		return "?" + endpoint.Variable.Name
	}
	return "<unknown>"
}

// materializedIterator replays a precomputed slice of bindings.
type materializedIterator struct {
	bindings []*store.Binding
	position int
}

func (it *materializedIterator) Next() bool {
	if it.position >= len(it.bindings) {
		return false
	}
	it.position++
	return true
}

func (it *materializedIterator) Binding() *store.Binding {
	if it.position > 0 && it.position <= len(it.bindings) {
		return it.bindings[it.position-1]
	}
	return store.NewBinding()
}

func (it *materializedIterator) Close() error { return nil }
