package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/ruteri/credential-registry-backend/interfaces"
)

const (
	recordPrefix    = "rec/"
	metadataPrefix  = "meta/"
	recipientPrefix = "recipient/"
)

// BadgerStore is a RecordStore on an embedded Badger database.
//
// Layout:
//
//	rec/<fileHash>                    -> JSON IssuanceRecord
//	meta/<jsonHash>                   -> fileHash (first record wins)
//	recipient/<email>/<fileHash>      -> empty
type BadgerStore struct {
	db  *badger.DB
	log *slog.Logger
}

// OpenBadgerStore opens (or creates) a store under dir. An empty dir opens
// an in-memory database.
func OpenBadgerStore(dir string, log *slog.Logger) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open record store: %w", err)
	}
	return NewBadgerStore(db, log), nil
}

// NewBadgerStore wraps an open database.
func NewBadgerStore(db *badger.DB, log *slog.Logger) *BadgerStore {
	if log == nil {
		log = slog.Default()
	}
	return &BadgerStore{db: db, log: log}
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func recordKey(contentHash interfaces.Digest) []byte {
	return []byte(recordPrefix + contentHash.String())
}

func metadataKey(metadataHash interfaces.Digest) []byte {
	return []byte(metadataPrefix + metadataHash.String())
}

func recipientKey(email string, contentHash interfaces.Digest) []byte {
	return []byte(recipientPrefix + strings.ToLower(email) + "/" + contentHash.String())
}

func (s *BadgerStore) SaveIssuance(ctx context.Context, record *interfaces.IssuanceRecord) error {
	value, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(recordKey(record.ContentHash), value); err != nil {
			return err
		}

		_, err := txn.Get(metadataKey(record.MetadataHash))
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
			if err := txn.Set(metadataKey(record.MetadataHash), []byte(record.ContentHash.String())); err != nil {
				return err
			}
		case err != nil:
			return err
		}

		if record.Metadata.StudentEmail != "" {
			return txn.Set(recipientKey(record.Metadata.StudentEmail, record.ContentHash), nil)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: failed to save record: %v", interfaces.ErrBackendUnavailable, err)
	}

	s.log.Debug("Saved issuance record", slog.String("fileHash", record.ContentHash.String()))
	return nil
}

func (s *BadgerStore) GetByContentHash(ctx context.Context, contentHash interfaces.Digest) (*interfaces.IssuanceRecord, error) {
	var record *interfaces.IssuanceRecord
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		record, err = getRecord(txn, recordKey(contentHash))
		return err
	})
	if err != nil {
		return nil, s.mapError(err, contentHash)
	}
	return record, nil
}

func (s *BadgerStore) GetByMetadataHash(ctx context.Context, metadataHash interfaces.Digest) (*interfaces.IssuanceRecord, error) {
	var record *interfaces.IssuanceRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(metadataKey(metadataHash))
		if err != nil {
			return err
		}
		contentHex, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		record, err = getRecord(txn, []byte(recordPrefix+string(contentHex)))
		return err
	})
	if err != nil {
		return nil, s.mapError(err, metadataHash)
	}
	return record, nil
}

// List scans the recipient index when a recipient is given and all records otherwise.
func (s *BadgerStore) List(ctx context.Context, filter interfaces.RecordFilter) ([]*interfaces.IssuanceRecord, error) {
	var out []*interfaces.IssuanceRecord

	err := s.db.View(func(txn *badger.Txn) error {
		if filter.Recipient != "" {
			prefix := []byte(recipientPrefix + strings.ToLower(filter.Recipient) + "/")
			opts := badger.DefaultIteratorOptions
			opts.PrefetchValues = false
			opts.Prefix = prefix

			it := txn.NewIterator(opts)
			defer it.Close()
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				contentHex := strings.TrimPrefix(string(it.Item().Key()), string(prefix))
				record, err := getRecord(txn, []byte(recordPrefix+contentHex))
				if err != nil {
					return err
				}
				if matches(record, filter) {
					out = append(out, record)
				}
			}
			return nil
		}

		prefix := []byte(recordPrefix)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			value, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var record interfaces.IssuanceRecord
			if err := json.Unmarshal(value, &record); err != nil {
				return err
			}
			if matches(&record, filter) {
				out = append(out, &record)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list records: %v", interfaces.ErrBackendUnavailable, err)
	}

	return newestFirst(out, filter.Limit), nil
}

func getRecord(txn *badger.Txn, key []byte) (*interfaces.IssuanceRecord, error) {
	item, err := txn.Get(key)
	if err != nil {
		return nil, err
	}
	value, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}
	var record interfaces.IssuanceRecord
	if err := json.Unmarshal(value, &record); err != nil {
		return nil, fmt.Errorf("corrupt record %s: %w", key, err)
	}
	return &record, nil
}

func (s *BadgerStore) mapError(err error, key interfaces.Digest) error {
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("%w: %s", interfaces.ErrRecordNotFound, key)
	}
	return fmt.Errorf("%w: record store read failed: %v", interfaces.ErrBackendUnavailable, err)
}
