package storage

import (
	"bytes"
	"context"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// Key prefixes mirroring the spec's directory layout 1:1, so a filesystem
// dump of the keyspace would read the same as the object-store layout.
const (
	prefixNoun          = "nouns/"
	prefixVerb          = "verbs/"
	prefixMetadata      = "metadata/"
	prefixByKind        = "indexes/by_kind/"
	prefixVerbsBySource = "indexes/verbs_by_source/"
	prefixVerbsByTarget = "indexes/verbs_by_target/"
	prefixVerbsByKind   = "indexes/verbs_by_kind/"
	keyStats            = "stats"
	prefixChangelog     = "changelog/"
)

// FilesystemBackend persists one Badger key per noun/verb/metadata/index
// entry under a local data directory.
type FilesystemBackend struct {
	db *badger.DB
}

// NewFilesystemBackend opens (creating if absent) a Badger database at dir.
func NewFilesystemBackend(dir string) (*FilesystemBackend, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("storage: open badger at %s: %w", dir, err)
	}
	return &FilesystemBackend{db: db}, nil
}

func (b *FilesystemBackend) Init(ctx context.Context) error { return nil }

func (b *FilesystemBackend) SaveNoun(ctx context.Context, id, kind string, data []byte) error {
	return b.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(prefixNoun+id), data); err != nil {
			return err
		}
		if kind != "" {
			if err := txn.Set([]byte(prefixByKind+kind+"/"+id), nil); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *FilesystemBackend) GetNoun(ctx context.Context, id string) ([]byte, bool, error) {
	var out []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefixNoun + id))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			out = append([]byte{}, val...)
			return nil
		})
	})
	return out, out != nil, err
}

func (b *FilesystemBackend) GetAllNouns(ctx context.Context) ([]Record, error) {
	return b.scan(prefixNoun)
}

func (b *FilesystemBackend) GetNounsByKind(ctx context.Context, kind string) ([]Record, error) {
	ids, err := b.scanKeys(prefixByKind + kind + "/")
	if err != nil {
		return nil, err
	}
	return b.hydrate(prefixNoun, ids)
}

func (b *FilesystemBackend) DeleteNoun(ctx context.Context, id string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(prefixByKind)
		var kindKeys [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			k := it.Item().KeyCopy(nil)
			if bytes.HasSuffix(k, []byte("/"+id)) {
				kindKeys = append(kindKeys, k)
			}
		}
		for _, k := range kindKeys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return txn.Delete([]byte(prefixNoun + id))
	})
}

func (b *FilesystemBackend) SaveVerb(ctx context.Context, id, source, target, kind string, data []byte) error {
	return b.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(prefixVerb+id), data); err != nil {
			return err
		}
		if err := txn.Set([]byte(prefixVerbsBySource+source+"/"+id), nil); err != nil {
			return err
		}
		if err := txn.Set([]byte(prefixVerbsByTarget+target+"/"+id), nil); err != nil {
			return err
		}
		if kind != "" {
			if err := txn.Set([]byte(prefixVerbsByKind+kind+"/"+id), nil); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *FilesystemBackend) GetVerb(ctx context.Context, id string) ([]byte, bool, error) {
	var out []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefixVerb + id))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			out = append([]byte{}, val...)
			return nil
		})
	})
	return out, out != nil, err
}

func (b *FilesystemBackend) GetAllVerbs(ctx context.Context) ([]Record, error) {
	return b.scan(prefixVerb)
}

func (b *FilesystemBackend) GetVerbsBySource(ctx context.Context, source string) ([]Record, error) {
	ids, err := b.scanKeys(prefixVerbsBySource + source + "/")
	if err != nil {
		return nil, err
	}
	return b.hydrate(prefixVerb, ids)
}

func (b *FilesystemBackend) GetVerbsByTarget(ctx context.Context, target string) ([]Record, error) {
	ids, err := b.scanKeys(prefixVerbsByTarget + target + "/")
	if err != nil {
		return nil, err
	}
	return b.hydrate(prefixVerb, ids)
}

func (b *FilesystemBackend) GetVerbsByKind(ctx context.Context, kind string) ([]Record, error) {
	ids, err := b.scanKeys(prefixVerbsByKind + kind + "/")
	if err != nil {
		return nil, err
	}
	return b.hydrate(prefixVerb, ids)
}

func (b *FilesystemBackend) DeleteVerb(ctx context.Context, id string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		var toDelete [][]byte
		for _, prefix := range []string{prefixVerbsBySource, prefixVerbsByTarget, prefixVerbsByKind} {
			p := []byte(prefix)
			for it.Seek(p); it.ValidForPrefix(p); it.Next() {
				k := it.Item().KeyCopy(nil)
				if bytes.HasSuffix(k, []byte("/"+id)) {
					toDelete = append(toDelete, k)
				}
			}
		}
		for _, k := range toDelete {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return txn.Delete([]byte(prefixVerb + id))
	})
}

func (b *FilesystemBackend) SaveMetadata(ctx context.Context, id string, data []byte) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(prefixMetadata+id), data)
	})
}

func (b *FilesystemBackend) GetMetadata(ctx context.Context, id string) ([]byte, bool, error) {
	var out []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefixMetadata + id))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			out = append([]byte{}, val...)
			return nil
		})
	})
	return out, out != nil, err
}

func (b *FilesystemBackend) Clear(ctx context.Context) error {
	return b.db.DropAll()
}

func (b *FilesystemBackend) GetStatus(ctx context.Context) (Status, error) {
	lsm, vlog := b.db.Size()
	return Status{
		BackendKind: "filesystem",
		BytesUsed:   lsm + vlog,
		BytesQuota:  -1,
	}, nil
}

func (b *FilesystemBackend) SupportsChangeLog() bool { return true }

func (b *FilesystemBackend) AppendChange(ctx context.Context, rec ChangeRecord) error {
	key := fmt.Sprintf("%s%020d-%020d", prefixChangelog, rec.Timestamp, rec.Seq)
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), encodeChangeRecord(rec))
	})
}

func (b *FilesystemBackend) GetChangesSince(ctx context.Context, timestamp int64, limit int) ([]ChangeRecord, error) {
	var out []ChangeRecord
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()
		prefix := []byte(prefixChangelog)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec ChangeRecord
			err := it.Item().Value(func(val []byte) error {
				r, decErr := decodeChangeRecord(val)
				rec = r
				return decErr
			})
			if err != nil {
				return err
			}
			if rec.Timestamp > timestamp {
				out = append(out, rec)
				if limit > 0 && len(out) >= limit {
					break
				}
			}
		}
		return nil
	})
	return out, err
}

func (b *FilesystemBackend) FlushStatistics(ctx context.Context, data []byte) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyStats), data)
	})
}

func (b *FilesystemBackend) Close() error { return b.db.Close() }

func (b *FilesystemBackend) scan(prefix string) ([]Record, error) {
	var out []Record
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()
		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			item := it.Item()
			id := string(item.Key()[len(p):])
			err := item.Value(func(val []byte) error {
				out = append(out, Record{ID: id, Data: append([]byte{}, val...)})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return out, err
}

func (b *FilesystemBackend) scanKeys(prefix string) ([]string, error) {
	var ids []string
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			k := it.Item().Key()
			ids = append(ids, string(k[len(p):]))
		}
		return nil
	})
	return ids, err
}

func (b *FilesystemBackend) hydrate(dataPrefix string, ids []string) ([]Record, error) {
	out := make([]Record, 0, len(ids))
	err := b.db.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			item, err := txn.Get([]byte(dataPrefix + id))
			if err == badger.ErrKeyNotFound {
				continue
			}
			if err != nil {
				return err
			}
			err = item.Value(func(val []byte) error {
				out = append(out, Record{ID: id, Data: append([]byte{}, val...)})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return out, err
}
