// Package storage implements the ordered key-value storage layer the rest
// of the module is built on: column families addressed by a one-byte
// prefix, snapshot-isolated transactions, and a batched bulk-load path.
package storage

import "errors"

var (
	ErrNotFound      = errors.New("key not found")
	ErrTransactionRO = errors.New("transaction is read-only")
)

// Storage is the interface for the underlying ordered key-value store.
type Storage interface {
	// Begin starts a new transaction. A read-only transaction is a
	// stable point-in-time snapshot; a writable one batches mutations
	// until Commit.
	Begin(writable bool) (Transaction, error)

	// BulkLoad streams a large number of writes through a single
	// write batch instead of a transaction, skipping conflict
	// detection. The callback must not retain the Writer past return.
	BulkLoad(fn func(Writer) error) error

	// Close closes the storage.
	Close() error

	// Sync flushes writes to disk.
	Sync() error
}

// Writer is the narrow write surface BulkLoad exposes.
type Writer interface {
	Set(table Table, key, value []byte) error
}

// Transaction represents a database transaction with snapshot isolation.
type Transaction interface {
	Writer

	// Get retrieves a value by key.
	Get(table Table, key []byte) ([]byte, error)

	// Delete removes a key.
	Delete(table Table, key []byte) error

	// Scan iterates over a key range [start, end).
	// If start is nil, begins from the first key.
	// If end is nil, scans until the last key in the table.
	Scan(table Table, start, end []byte) (Iterator, error)

	// Commit commits the transaction.
	Commit() error

	// Rollback rolls back the transaction, discarding its writes.
	Rollback() error
}

// Iterator iterates over key-value pairs within a single table.
type Iterator interface {
	// Next advances to the next item.
	Next() bool

	// Key returns the current key, with the table prefix stripped.
	Key() []byte

	// Value returns the current value.
	Value() ([]byte, error)

	// Close closes the iterator.
	Close() error
}

// Table represents a logical column family in the storage.
type Table byte

const (
	// TableID2Str maps a dictionary hash payload to its original string
	// form (IRI, literal lexical value, or encoded quoted triple).
	TableID2Str Table = iota

	// Default graph indexes (3 permutations).
	TableDSPO
	TableDPOS
	TableDOSP

	// Named graph indexes (6 permutations).
	TableSPOG
	TablePOSG
	TableOSPG
	TableGSPO
	TableGPOS
	TableGOSP

	// TableGraphs lists the named graphs that have at least one quad.
	TableGraphs

	// TableRefcount holds the reference count for each dictionary row
	// in TableID2Str, keyed by the same hash payload.
	TableRefcount

	// TableMeta holds store-wide metadata: the hash-collision secret,
	// the on-disk format version, and similar singleton values.
	TableMeta

	// TableCount is the number of tables and must stay last.
	TableCount
)

func (t Table) String() string {
	switch t {
	case TableID2Str:
		return "id2str"
	case TableDSPO:
		return "dspo"
	case TableDPOS:
		return "dpos"
	case TableDOSP:
		return "dosp"
	case TableSPOG:
		return "spog"
	case TablePOSG:
		return "posg"
	case TableOSPG:
		return "ospg"
	case TableGSPO:
		return "gspo"
	case TableGPOS:
		return "gpos"
	case TableGOSP:
		return "gosp"
	case TableGraphs:
		return "graphs"
	case TableRefcount:
		return "refcount"
	case TableMeta:
		return "meta"
	default:
		return "unknown"
	}
}

// TablePrefix returns the byte prefix used to namespace keys for a table.
func TablePrefix(table Table) []byte {
	return []byte{byte(table)}
}

// PrefixKey prepends a table prefix to a key.
func PrefixKey(table Table, key []byte) []byte {
	prefixed := make([]byte, 1+len(key))
	prefixed[0] = byte(table)
	copy(prefixed[1:], key)
	return prefixed
}

// Well-known keys within TableMeta.
var (
	MetaKeySecret  = []byte("hash_secret")
	MetaKeyVersion = []byte("format_version")
)

// FormatVersion is the current on-disk layout version, stamped into
// TableMeta on first open and checked on every subsequent open.
const FormatVersion = 1
