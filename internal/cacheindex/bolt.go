package cacheindex

import (
	"bytes"
	"encoding/gob"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/outrungo/outrungo/internal/cachemodel"
)

// entriesBucket is the single bbolt bucket every persisted cache entry
// lives in, keyed by its entry key. Grounded on backend/cache's
// storage_persistent.go bucket layout (a root bucket of records), adapted
// from rclone's per-remote object records to this system's flat
// (machine-id, path) CacheEntry records.
const entriesBucket = "entries"

// BoltStore is the default Store implementation: a single bbolt database
// file, the same storage engine the teacher's own persistent cache backend
// (backend/cache/storage_persistent.go) uses for its object/chunk index.
type BoltStore struct {
	db *bolt.DB
}

// OpenBoltStore opens (creating if necessary) the bbolt database at path.
func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, errors.Wrap(err, "cacheindex: open bolt store")
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(entriesBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "cacheindex: init bolt bucket")
	}
	return &BoltStore{db: db}, nil
}

// Load implements Store.
func (b *BoltStore) Load() (map[string]cachemodel.CacheEntry, error) {
	entries := make(map[string]cachemodel.CacheEntry)
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(entriesBucket))
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, v []byte) error {
			var e cachemodel.CacheEntry
			if err := gobDecode(v, &e); err != nil {
				return errors.Wrapf(err, "cacheindex: decode entry %q", k)
			}
			entries[string(k)] = e
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Save implements Store, replacing the bucket's contents in a single
// committed transaction.
func (b *BoltStore) Save(entries map[string]cachemodel.CacheEntry) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(entriesBucket))
		if bucket == nil {
			var err error
			bucket, err = tx.CreateBucket([]byte(entriesBucket))
			if err != nil {
				return err
			}
		} else {
			if err := tx.DeleteBucket([]byte(entriesBucket)); err != nil {
				return err
			}
			var err error
			bucket, err = tx.CreateBucket([]byte(entriesBucket))
			if err != nil {
				return err
			}
		}
		for key, entry := range entries {
			data, err := gobEncode(entry)
			if err != nil {
				return errors.Wrapf(err, "cacheindex: encode entry %q", key)
			}
			if err := bucket.Put([]byte(key), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close implements Store.
func (b *BoltStore) Close() error {
	return b.db.Close()
}

func init() {
	// WireError.Args is []any; gob needs every concrete type that can
	// appear in it registered up front. These cover the argument shapes
	// errkind callers actually construct (see internal/errkind).
	gob.Register("")
	gob.Register(int(0))
	gob.Register(int64(0))
	gob.Register(float64(0))
}

func gobEncode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gobDecode(data []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}
