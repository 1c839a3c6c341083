package storage

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
)

// BadgerStorage implements Storage using BadgerDB.
type BadgerStorage struct {
	db *badger.DB
}

// NewBadgerStorage opens (or creates) a BadgerDB-backed store at path and
// stamps/validates its TableMeta header.
func NewBadgerStorage(path string) (*BadgerStorage, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	s := &BadgerStorage{db: db}
	if err := s.ensureMeta(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewBadgerStorageInMemory opens an ephemeral, non-persistent store, used
// by InMemory() stores and by tests.
func NewBadgerStorageInMemory() (*BadgerStorage, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory badger db: %w", err)
	}

	s := &BadgerStorage{db: db}
	if err := s.ensureMeta(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *BadgerStorage) ensureMeta() error {
	return s.db.Update(func(txn *badger.Txn) error {
		versionKey := PrefixKey(TableMeta, MetaKeyVersion)
		item, err := txn.Get(versionKey)
		if err == badger.ErrKeyNotFound {
			var buf [4]byte
			binary.BigEndian.PutUint32(buf[:], FormatVersion)
			if err := txn.Set(versionKey, buf[:]); err != nil {
				return err
			}

			secret := make([]byte, 16)
			if _, err := rand.Read(secret); err != nil {
				return fmt.Errorf("generating hash-collision secret: %w", err)
			}
			return txn.Set(PrefixKey(TableMeta, MetaKeySecret), secret)
		} else if err != nil {
			return err
		}

		var version uint32
		err = item.Value(func(val []byte) error {
			version = binary.BigEndian.Uint32(val)
			return nil
		})
		if err != nil {
			return err
		}
		if version != FormatVersion {
			return fmt.Errorf("incompatible store format version %d (expected %d)", version, FormatVersion)
		}
		return nil
	})
}

// Secret returns the per-store secret used to key hash-collision checks
// in the term dictionary.
func (s *BadgerStorage) Secret() ([]byte, error) {
	var secret []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(PrefixKey(TableMeta, MetaKeySecret))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			secret = append([]byte{}, val...)
			return nil
		})
	})
	return secret, err
}

// Begin starts a new transaction.
func (s *BadgerStorage) Begin(writable bool) (Transaction, error) {
	txn := s.db.NewTransaction(writable)
	return &BadgerTransaction{txn: txn, writable: writable}, nil
}

// BulkLoad streams writes through a badger.WriteBatch, which skips the
// per-key conflict tracking a regular transaction pays for. Badger does
// not expose a raw SST-ingest hook at this interface's level, so this is
// the "fall back to batched writes" bulk-load path.
func (s *BadgerStorage) BulkLoad(fn func(Writer) error) error {
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	if err := fn(&batchWriter{wb: wb}); err != nil {
		return err
	}
	return wb.Flush()
}

// Close closes the storage.
func (s *BadgerStorage) Close() error {
	return s.db.Close()
}

// Sync flushes writes to disk.
func (s *BadgerStorage) Sync() error {
	return s.db.Sync()
}

type batchWriter struct {
	wb *badger.WriteBatch
}

func (b *batchWriter) Set(table Table, key, value []byte) error {
	return b.wb.Set(PrefixKey(table, key), value)
}

// BadgerTransaction implements Transaction using BadgerDB.
type BadgerTransaction struct {
	txn      *badger.Txn
	writable bool
}

// Get retrieves a value by key.
func (t *BadgerTransaction) Get(table Table, key []byte) ([]byte, error) {
	item, err := t.txn.Get(PrefixKey(table, key))
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var value []byte
	err = item.Value(func(val []byte) error {
		value = append([]byte{}, val...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Set stores a key-value pair.
func (t *BadgerTransaction) Set(table Table, key, value []byte) error {
	if !t.writable {
		return ErrTransactionRO
	}
	return t.txn.Set(PrefixKey(table, key), value)
}

// Delete removes a key.
func (t *BadgerTransaction) Delete(table Table, key []byte) error {
	if !t.writable {
		return ErrTransactionRO
	}
	return t.txn.Delete(PrefixKey(table, key))
}

// Scan iterates over a key range [start, end) within table.
func (t *BadgerTransaction) Scan(table Table, start, end []byte) (Iterator, error) {
	opts := badger.DefaultIteratorOptions

	tablePrefix := TablePrefix(table)
	var seekKey []byte
	if start != nil {
		seekKey = PrefixKey(table, start)
	} else {
		seekKey = tablePrefix
	}
	opts.Prefix = tablePrefix
	it := t.txn.NewIterator(opts)

	var endKey []byte
	if end != nil {
		endKey = PrefixKey(table, end)
	}

	return &BadgerIterator{
		it:      it,
		prefix:  tablePrefix,
		endKey:  endKey,
		seekKey: seekKey,
	}, nil
}

// Commit commits the transaction.
func (t *BadgerTransaction) Commit() error {
	return t.txn.Commit()
}

// Rollback discards the transaction.
func (t *BadgerTransaction) Rollback() error {
	t.txn.Discard()
	return nil
}

// BadgerIterator implements Iterator using BadgerDB.
type BadgerIterator struct {
	it       *badger.Iterator
	prefix   []byte
	endKey   []byte
	seekKey  []byte
	started  bool
	hasValue bool
}

// Next advances to the next item.
func (i *BadgerIterator) Next() bool {
	if !i.started {
		i.it.Seek(i.seekKey)
		i.started = true
	} else {
		i.it.Next()
	}

	if !i.it.Valid() {
		i.hasValue = false
		return false
	}
	if i.endKey != nil && bytes.Compare(i.it.Item().Key(), i.endKey) >= 0 {
		i.hasValue = false
		return false
	}

	i.hasValue = true
	return true
}

// Key returns the current key with the table prefix stripped.
func (i *BadgerIterator) Key() []byte {
	if !i.hasValue {
		return nil
	}
	key := i.it.Item().Key()
	if len(key) > len(i.prefix) {
		return key[len(i.prefix):]
	}
	return nil
}

// Value returns the current value.
func (i *BadgerIterator) Value() ([]byte, error) {
	if !i.hasValue {
		return nil, ErrNotFound
	}
	var value []byte
	err := i.it.Item().Value(func(val []byte) error {
		value = append([]byte{}, val...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Close closes the iterator.
func (i *BadgerIterator) Close() error {
	i.it.Close()
	return nil
}
