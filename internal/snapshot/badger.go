/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package snapshot

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/dgraph-io/badger/v4"
)

// Key schema:
//
//	topdrop:snap:{id}:data → gzip(JSON(Snapshot))
//	topdrop:snap:{id}:meta → JSON(meta)
const (
	keyPrefixSnap = "topdrop:snap:"
	keySuffixData = ":data"
	keySuffixMeta = ":meta"
)

type meta struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	Checksum       string `json:"checksum"`
	Size           int    `json:"size"`
	CreatedAtMilli int64  `json:"created_at_milli"`
}

// BadgerStore persists snapshots in BadgerDB.
//
// The DB is owned by the store once handed over; Close closes it.
type BadgerStore struct {
	db     *badger.DB
	logger *log.Logger
}

// OpenBadgerStore opens (or creates) a BadgerDB at dir. An empty dir opens
// an in-memory database.
func OpenBadgerStore(dir string, logger *log.Logger) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger at %q: %w", dir, err)
	}

	store, err := NewBadgerStore(db, logger)
	if err != nil {
		db.Close()

		return nil, err
	}

	return store, nil
}

func NewBadgerStore(db *badger.DB, logger *log.Logger) (*BadgerStore, error) {
	if db == nil {
		return nil, errors.New("badger db must not be nil")
	}

	if logger == nil {
		return nil, errors.New("logger must not be nil")
	}

	return &BadgerStore{db: db, logger: logger}, nil
}

func (b *BadgerStore) Set(ctx context.Context, s *Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if s == nil || s.ID == "" {
		return fmt.Errorf("%w: snapshot has no id", ErrInvalidItems)
	}

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}

	var compressed bytes.Buffer

	gw := gzip.NewWriter(&compressed)
	if _, err := gw.Write(data); err != nil {
		return fmt.Errorf("compressing snapshot: %w", err)
	}

	if err := gw.Close(); err != nil {
		return fmt.Errorf("closing gzip writer: %w", err)
	}

	metaJSON, err := json.Marshal(meta{
		ID:             s.ID,
		Title:          s.Title,
		Checksum:       s.Checksum,
		Size:           len(s.Items),
		CreatedAtMilli: s.CreatedAt.UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("marshaling metadata: %w", err)
	}

	err = b.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(keyPrefixSnap+s.ID+keySuffixData), compressed.Bytes()); err != nil {
			return fmt.Errorf("storing data: %w", err)
		}

		if err := txn.Set([]byte(keyPrefixSnap+s.ID+keySuffixMeta), metaJSON); err != nil {
			return fmt.Errorf("storing metadata: %w", err)
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("writing snapshot %s to badger: %w", s.ID, err)
	}

	b.logger.Debug("snapshot saved", "id", s.ID, "title", s.Title, "size", compressed.Len())

	return nil
}

func (b *BadgerStore) Get(ctx context.Context, id string) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var compressed []byte

	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefixSnap + id + keySuffixData))
		if err != nil {
			return err
		}

		compressed, err = item.ValueCopy(nil)

		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("reading snapshot %s: %w", id, err)
	}

	gr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("decompressing snapshot %s: %w", id, err)
	}
	defer gr.Close()

	data, err := io.ReadAll(gr)
	if err != nil {
		return nil, fmt.Errorf("decompressing snapshot %s: %w", id, err)
	}

	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshaling snapshot %s: %w", id, err)
	}

	return &s, nil
}

// List returns up to limit snapshots, newest first. Entries with corrupt
// metadata are skipped.
func (b *BadgerStore) List(ctx context.Context, limit int) ([]*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var ids []string

	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefixSnap)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(opts.Prefix); it.Valid(); it.Next() {
			item := it.Item()
			key := string(item.Key())

			if !strings.HasSuffix(key, keySuffixMeta) {
				continue
			}

			var m meta
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &m)
			})
			if err != nil {
				b.logger.Warn("skipping corrupt metadata", "key", key, "err", err)

				continue
			}

			ids = append(ids, m.ID)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}

	out := make([]*Snapshot, 0, len(ids))
	for _, id := range ids {
		s, err := b.Get(ctx, id)
		if err != nil {
			b.logger.Warn("skipping unreadable snapshot", "id", id, "err", err)

			continue
		}

		out = append(out, s)
	}

	return newestFirst(out, limit), nil
}

func (b *BadgerStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dataKey := []byte(keyPrefixSnap + id + keySuffixData)

	err := b.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(dataKey); err != nil {
			return err
		}

		if err := txn.Delete(dataKey); err != nil {
			return fmt.Errorf("deleting data: %w", err)
		}

		if err := txn.Delete([]byte(keyPrefixSnap + id + keySuffixMeta)); err != nil {
			return fmt.Errorf("deleting metadata: %w", err)
		}

		return nil
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("deleting snapshot %s: %w", id, err)
	}

	b.logger.Debug("snapshot deleted", "id", id)

	return nil
}

func (b *BadgerStore) Close() error {
	return b.db.Close()
}
