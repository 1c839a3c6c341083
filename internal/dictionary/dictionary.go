// Package dictionary implements component A: the reference-counted term
// dictionary that sits between RDF terms and the fixed-width encoded
// identifiers (EIDs) the quad indexes key on. Short, well-known-prefixed,
// or otherwise compact terms are inlined directly into the EID; anything
// larger is content-hashed and the original string (or, for quoted
// triples, the encoded inner triple) is stored once in TableID2Str with
// a refcount tracking how many quads still reference it.
package dictionary

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aleksaelezovic/trigo/internal/encoding"
	"github.com/aleksaelezovic/trigo/internal/storage"
	"github.com/aleksaelezovic/trigo/pkg/rdf"
)

// Tags for the EncodedTerm byte, distinct from rdf.TermType since a
// single rdf.TermType (e.g. Literal) encodes to several different tags
// depending on how its value is represented on disk.
const (
	TagNamedNodeInline byte = iota + 1
	TagNamedNodeWellKnown
	TagNamedNodeHashed
	TagBlankNodeNumeric
	TagBlankNodeHashed
	TagStringLiteralInline
	TagStringLiteralHashed
	TagLangStringHashed
	TagTypedLiteralHashed
	TagIntegerLiteral
	TagDecimalLiteral
	TagDoubleLiteral
	TagBooleanLiteral
	TagDateTimeLiteral
	TagDateLiteral
	TagQuotedTriple
	TagDefaultGraph
)

// wellKnownPrefixes get a one-byte code inlined alongside a short suffix,
// so common vocabulary terms never touch the dictionary at all.
var wellKnownPrefixes = []string{
	"http://www.w3.org/1999/02/22-rdf-syntax-ns#",
	"http://www.w3.org/2000/01/rdf-schema#",
	"http://www.w3.org/2001/XMLSchema#",
	"http://www.w3.org/2002/07/owl#",
}

// ErrHashCollision is returned when two distinct values hash to the same
// dictionary key. The per-store secret makes this practically
// unreachable; it is still checked for and reported rather than risked.
var ErrHashCollision = fmt.Errorf("dictionary: hash collision detected")

// Dictionary encodes and decodes RDF terms against a transaction,
// maintaining reference counts for every dictionary row it creates.
type Dictionary struct {
	secret []byte
}

// New returns a Dictionary keyed by secret, the per-store value
// persisted in TableMeta and used to make term hashes store-specific.
func New(secret []byte) *Dictionary {
	return &Dictionary{secret: secret}
}

func (d *Dictionary) hash(payload []byte) [16]byte {
	buf := make([]byte, 0, len(d.secret)+len(payload))
	buf = append(buf, d.secret...)
	buf = append(buf, payload...)
	return encoding.Hash128(buf)
}

// Encode reduces term to its fixed-width EID, writing a dictionary row
// and incrementing its refcount in txn if the term must be hashed.
func (d *Dictionary) Encode(txn storage.Transaction, term rdf.Term) (encoding.EncodedTerm, error) {
	return d.encode(txn, term, 1)
}

// ReleaseTerm computes term's EID and decrements its dictionary refcount
// (recursively, for quoted triples) without touching the index rows
// that reference it — callers use this alongside their own index
// deletes, mirroring Encode's symmetric insert-time retain.
func (d *Dictionary) ReleaseTerm(txn storage.Transaction, term rdf.Term) (encoding.EncodedTerm, error) {
	return d.encode(txn, term, -1)
}

// Lookup computes term's EID for a read-only pattern match (Query,
// ContainsQuad), touching TableID2Str only to read — never to write a
// row or adjust a refcount — so it works against a read-only snapshot
// transaction.
func (d *Dictionary) Lookup(txn storage.Transaction, term rdf.Term) (encoding.EncodedTerm, error) {
	return d.encode(txn, term, 0)
}

func (d *Dictionary) encode(txn storage.Transaction, term rdf.Term, delta int64) (encoding.EncodedTerm, error) {
	var out encoding.EncodedTerm

	switch t := term.(type) {
	case *rdf.NamedNode:
		return d.encodeNamedNode(txn, t, delta)
	case *rdf.BlankNode:
		return d.encodeBlankNode(txn, t, delta)
	case *rdf.Literal:
		return d.encodeLiteral(txn, t, delta)
	case *rdf.DefaultGraph:
		out[0] = TagDefaultGraph
		return out, nil
	case *rdf.QuotedTriple:
		return d.encodeQuotedTriple(txn, t, delta)
	default:
		return out, fmt.Errorf("dictionary: unsupported term type %T", term)
	}
}

func (d *Dictionary) encodeNamedNode(txn storage.Transaction, n *rdf.NamedNode, delta int64) (encoding.EncodedTerm, error) {
	var out encoding.EncodedTerm

	for i, prefix := range wellKnownPrefixes {
		if !strings.HasPrefix(n.IRI, prefix) {
			continue
		}
		suffix := n.IRI[len(prefix):]
		if len(suffix) > encoding.MaxInlinePayloadSize-1 {
			continue
		}
		out[0] = TagNamedNodeWellKnown
		out[1] = byte(i)
		copy(out[2:], suffix)
		return out, nil
	}

	if len(n.IRI) <= encoding.MaxInlinePayloadSize {
		encoding.PutInline(&out, TagNamedNodeInline, []byte(n.IRI))
		return out, nil
	}

	return d.encodeHashed(txn, TagNamedNodeHashed, []byte(n.IRI), delta)
}

func (d *Dictionary) encodeBlankNode(txn storage.Transaction, b *rdf.BlankNode, delta int64) (encoding.EncodedTerm, error) {
	var out encoding.EncodedTerm

	if num, err := strconv.ParseUint(b.ID, 10, 64); err == nil {
		encoding.PutUint64(&out, TagBlankNodeNumeric, num)
		return out, nil
	}

	return d.encodeHashed(txn, TagBlankNodeHashed, []byte(b.ID), delta)
}

func (d *Dictionary) encodeLiteral(txn storage.Transaction, lit *rdf.Literal, delta int64) (encoding.EncodedTerm, error) {
	var out encoding.EncodedTerm

	if lit.Datatype != nil {
		switch lit.Datatype.IRI {
		case rdf.XSDInteger.IRI:
			v, err := strconv.ParseInt(lit.Value, 10, 64)
			if err != nil {
				return out, fmt.Errorf("invalid integer literal %q: %w", lit.Value, err)
			}
			encoding.PutInt64(&out, TagIntegerLiteral, v)
			return out, nil
		case rdf.XSDDecimal.IRI:
			v, err := strconv.ParseFloat(lit.Value, 64)
			if err != nil {
				return out, fmt.Errorf("invalid decimal literal %q: %w", lit.Value, err)
			}
			encoding.PutFloat64(&out, TagDecimalLiteral, v)
			return out, nil
		case rdf.XSDDouble.IRI:
			v, err := strconv.ParseFloat(lit.Value, 64)
			if err != nil {
				return out, fmt.Errorf("invalid double literal %q: %w", lit.Value, err)
			}
			encoding.PutFloat64(&out, TagDoubleLiteral, v)
			return out, nil
		case rdf.XSDBoolean.IRI:
			v, err := strconv.ParseBool(lit.Value)
			if err != nil {
				return out, fmt.Errorf("invalid boolean literal %q: %w", lit.Value, err)
			}
			encoding.PutBool(&out, TagBooleanLiteral, v)
			return out, nil
		case rdf.XSDDateTime.IRI:
			t, err := parseDateTime(lit.Value)
			if err != nil {
				return out, err
			}
			encoding.PutInt64(&out, TagDateTimeLiteral, t.UnixNano())
			return out, nil
		case rdf.XSDDate.IRI:
			t, err := time.Parse("2006-01-02", strings.TrimSpace(lit.Value))
			if err != nil {
				return out, fmt.Errorf("invalid date literal %q: %w", lit.Value, err)
			}
			encoding.PutInt64(&out, TagDateLiteral, t.Unix()/86400)
			return out, nil
		default:
			combined := lit.Value + "^^" + lit.Datatype.IRI
			return d.encodeHashed(txn, TagTypedLiteralHashed, []byte(combined), delta)
		}
	}

	if lit.Language != "" {
		combined := lit.Value + "@" + lit.Language
		if lit.Direction != "" {
			combined += "--" + lit.Direction
		}
		return d.encodeHashed(txn, TagLangStringHashed, []byte(combined), delta)
	}

	if len(lit.Value) <= encoding.MaxInlinePayloadSize {
		encoding.PutInline(&out, TagStringLiteralInline, []byte(lit.Value))
		return out, nil
	}
	return d.encodeHashed(txn, TagStringLiteralHashed, []byte(lit.Value), delta)
}

func parseDateTime(value string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339, trimmed); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02T15:04:05", trimmed)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid dateTime literal %q: %w", value, err)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC), nil
}

// encodeQuotedTriple encodes subject/predicate/object independently and
// stores their concatenated EIDs as the dictionary row value, hashed
// under their own content. This needs no string round-trip: decoding
// simply re-splits the stored bytes into three EIDs and recurses.
func (d *Dictionary) encodeQuotedTriple(txn storage.Transaction, qt *rdf.QuotedTriple, delta int64) (encoding.EncodedTerm, error) {
	var out encoding.EncodedTerm

	s, err := d.encode(txn, qt.Subject, delta)
	if err != nil {
		return out, err
	}
	p, err := d.encode(txn, qt.Predicate, delta)
	if err != nil {
		return out, err
	}
	o, err := d.encode(txn, qt.Object, delta)
	if err != nil {
		return out, err
	}

	blob := make([]byte, 0, 3*encoding.EncodedTermSize)
	blob = append(blob, s[:]...)
	blob = append(blob, p[:]...)
	blob = append(blob, o[:]...)

	return d.encodeHashed(txn, TagQuotedTriple, blob, delta)
}

// encodeHashed hashes payload, checks for a collision against any
// existing row (writing it if this is the first reference), and applies
// delta to its refcount, returning the hashed EID.
func (d *Dictionary) encodeHashed(txn storage.Transaction, tag byte, payload []byte, delta int64) (encoding.EncodedTerm, error) {
	var out encoding.EncodedTerm
	hash := d.hash(payload)
	encoding.PutHash(&out, tag, hash)

	existing, err := txn.Get(storage.TableID2Str, hash[:])
	switch {
	case err == storage.ErrNotFound:
		if delta > 0 {
			if err := txn.Set(storage.TableID2Str, hash[:], payload); err != nil {
				return out, err
			}
		}
	case err != nil:
		return out, err
	default:
		if string(existing) != string(payload) {
			return out, ErrHashCollision
		}
	}

	if delta != 0 {
		if err := d.adjustRefcount(txn, hash[:], delta); err != nil {
			return out, err
		}
	}
	return out, nil
}

// adjustRefcount applies delta to key's stored refcount. Callers must not
// invoke this with delta == 0: it always writes back, which would fail
// against a read-only transaction for no reason (Lookup's delta-0 calls
// skip it in encodeHashed instead).
func (d *Dictionary) adjustRefcount(txn storage.Transaction, key []byte, delta int64) error {
	var count int64
	existing, err := txn.Get(storage.TableRefcount, key)
	switch {
	case err == storage.ErrNotFound:
		count = 0
	case err != nil:
		return err
	default:
		count = int64(binary.BigEndian.Uint64(existing)) // #nosec G115 - intentional bit-pattern conversion
	}

	count += delta
	if count < 0 {
		count = 0
	}

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(count)) // #nosec G115 - intentional bit-pattern conversion
	return txn.Set(storage.TableRefcount, key, buf[:])
}

// Decode expands an EID back into an rdf.Term, resolving hashed tags
// against TableID2Str (recursively, for quoted triples).
func (d *Dictionary) Decode(txn storage.Transaction, e encoding.EncodedTerm) (rdf.Term, error) {
	switch e.Tag() {
	case TagNamedNodeInline:
		return rdf.NewNamedNode(string(encoding.InlineBytes(e))), nil

	case TagNamedNodeWellKnown:
		idx := int(e[1])
		if idx < 0 || idx >= len(wellKnownPrefixes) {
			return nil, fmt.Errorf("dictionary: unknown well-known prefix code %d", idx)
		}
		suffix := trimNulls(e[2:])
		return rdf.NewNamedNode(wellKnownPrefixes[idx] + suffix), nil

	case TagNamedNodeHashed:
		s, err := d.lookupString(txn, e)
		if err != nil {
			return nil, err
		}
		return rdf.NewNamedNode(s), nil

	case TagBlankNodeNumeric:
		return rdf.NewBlankNode(strconv.FormatUint(encoding.Uint64(e), 10)), nil

	case TagBlankNodeHashed:
		s, err := d.lookupString(txn, e)
		if err != nil {
			return nil, err
		}
		return rdf.NewBlankNode(s), nil

	case TagStringLiteralInline:
		return rdf.NewLiteral(string(encoding.InlineBytes(e))), nil

	case TagStringLiteralHashed:
		s, err := d.lookupString(txn, e)
		if err != nil {
			return nil, err
		}
		return rdf.NewLiteral(s), nil

	case TagLangStringHashed:
		s, err := d.lookupString(txn, e)
		if err != nil {
			return nil, err
		}
		return splitLangString(s), nil

	case TagTypedLiteralHashed:
		s, err := d.lookupString(txn, e)
		if err != nil {
			return nil, err
		}
		return splitTypedLiteral(s), nil

	case TagIntegerLiteral:
		return rdf.NewIntegerLiteral(encoding.Int64(e)), nil

	case TagDecimalLiteral:
		return rdf.NewDecimalLiteral(encoding.Float64(e)), nil

	case TagDoubleLiteral:
		return rdf.NewDoubleLiteral(encoding.Float64(e)), nil

	case TagBooleanLiteral:
		return rdf.NewBooleanLiteral(encoding.Bool(e)), nil

	case TagDateTimeLiteral:
		return rdf.NewDateTimeLiteral(time.Unix(0, encoding.Int64(e)).UTC()), nil

	case TagDateLiteral:
		days := encoding.Int64(e)
		t := time.Unix(days*86400, 0).UTC()
		return rdf.NewLiteralWithDatatype(t.Format("2006-01-02"), rdf.XSDDate), nil

	case TagQuotedTriple:
		return d.decodeQuotedTriple(txn, e)

	case TagDefaultGraph:
		return rdf.NewDefaultGraph(), nil

	default:
		return nil, fmt.Errorf("dictionary: unknown EID tag %d", e.Tag())
	}
}

func (d *Dictionary) lookupString(txn storage.Transaction, e encoding.EncodedTerm) (string, error) {
	value, err := txn.Get(storage.TableID2Str, e.Payload())
	if err != nil {
		if err == storage.ErrNotFound {
			return "", fmt.Errorf("dictionary: dangling EID, no id2str row for hash")
		}
		return "", err
	}
	return string(value), nil
}

func (d *Dictionary) decodeQuotedTriple(txn storage.Transaction, e encoding.EncodedTerm) (rdf.Term, error) {
	blob, err := txn.Get(storage.TableID2Str, e.Payload())
	if err != nil {
		if err == storage.ErrNotFound {
			return nil, fmt.Errorf("dictionary: dangling EID, no id2str row for quoted triple hash")
		}
		return nil, err
	}
	if len(blob) != 3*encoding.EncodedTermSize {
		return nil, fmt.Errorf("dictionary: malformed quoted-triple row (%d bytes)", len(blob))
	}

	var s, p, o encoding.EncodedTerm
	copy(s[:], blob[0:encoding.EncodedTermSize])
	copy(p[:], blob[encoding.EncodedTermSize:2*encoding.EncodedTermSize])
	copy(o[:], blob[2*encoding.EncodedTermSize:3*encoding.EncodedTermSize])

	subject, err := d.Decode(txn, s)
	if err != nil {
		return nil, err
	}
	predicate, err := d.Decode(txn, p)
	if err != nil {
		return nil, err
	}
	object, err := d.Decode(txn, o)
	if err != nil {
		return nil, err
	}

	return rdf.NewQuotedTriple(subject, predicate, object)
}

func trimNulls(b []byte) string {
	end := len(b)
	for end > 0 && b[end-1] == 0 {
		end--
	}
	return string(b[:end])
}

func splitLangString(s string) *rdf.Literal {
	direction := ""
	if idx := strings.LastIndex(s, "--"); idx >= 0 {
		direction = s[idx+2:]
		s = s[:idx]
	}
	if idx := strings.LastIndex(s, "@"); idx >= 0 {
		value := s[:idx]
		lang := s[idx+1:]
		if direction != "" {
			return rdf.NewLiteralWithLanguageAndDirection(value, lang, direction)
		}
		return rdf.NewLiteralWithLanguage(value, lang)
	}
	return rdf.NewLiteral(s)
}

func splitTypedLiteral(s string) *rdf.Literal {
	if idx := strings.LastIndex(s, "^^"); idx >= 0 {
		return rdf.NewLiteralWithDatatype(s[:idx], rdf.NewNamedNode(s[idx+2:]))
	}
	return rdf.NewLiteral(s)
}

// GC drops every TableID2Str/TableRefcount row whose refcount has
// reached zero. It takes its own transaction rather than running inside
// a caller's, since it is a maintenance operation that may need to scan
// the entire dictionary.
func GC(st storage.Storage) (removed int, err error) {
	txn, err := st.Begin(true)
	if err != nil {
		return 0, err
	}
	defer txn.Rollback()

	it, err := txn.Scan(storage.TableRefcount, nil, nil)
	if err != nil {
		return 0, err
	}
	defer it.Close()

	var zeroKeys [][]byte
	for it.Next() {
		key := append([]byte{}, it.Key()...)
		value, verr := it.Value()
		if verr != nil {
			return 0, verr
		}
		if binary.BigEndian.Uint64(value) == 0 {
			zeroKeys = append(zeroKeys, key)
		}
	}

	for _, key := range zeroKeys {
		if err := txn.Delete(storage.TableRefcount, key); err != nil {
			return removed, err
		}
		if err := txn.Delete(storage.TableID2Str, key); err != nil {
			return removed, err
		}
		removed++
	}

	if err := txn.Commit(); err != nil {
		return 0, err
	}
	return removed, nil
}
