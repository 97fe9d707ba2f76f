package currency

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const ratesBucketName = "exchange_rates"

// Cache stores exchange rates by key. Entries are immutable once written.
type Cache interface {
	// Get returns the entry for key and whether it exists
	Get(key string) (Entry, bool, error)

	// Put stores the entry under its key. Writing an existing key is a no-op.
	Put(entry Entry) error

	// EvictBefore removes entries whose rate date is before cutoff and returns how many were removed
	EvictBefore(cutoff time.Time) (int, error)

	// Close releases the cache
	Close() error
}

// BoltCache implements Cache using BoltDB
type BoltCache struct {
	db *bbolt.DB
}

// NewBoltCache opens (or creates) the rate cache at path
func NewBoltCache(path string) (*BoltCache, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening rate cache: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(ratesBucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating rate bucket: %w", err)
	}

	return &BoltCache{db: db}, nil
}

func entryKey(e Entry) (string, error) {
	requested, err := time.Parse(dateLayout, e.RequestedDate)
	if err != nil {
		return "", fmt.Errorf("parsing requested date %q: %w", e.RequestedDate, err)
	}
	return Key(e.From, e.To, requested), nil
}

// Get retrieves a cached rate
func (b *BoltCache) Get(key string) (Entry, bool, error) {
	var (
		entry Entry
		found bool
	)
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(ratesBucketName)).Get([]byte(key))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &entry)
	})
	if err != nil {
		return Entry{}, false, fmt.Errorf("reading cached rate %s: %w", key, err)
	}
	return entry, found, nil
}

// Put appends a rate to the cache
func (b *BoltCache) Put(entry Entry) error {
	key, err := entryKey(entry)
	if err != nil {
		return err
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(ratesBucketName))
		if bucket.Get([]byte(key)) != nil {
			return nil
		}
		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("marshaling rate: %w", err)
		}
		return bucket.Put([]byte(key), data)
	})
}

// EvictBefore removes entries older than cutoff
func (b *BoltCache) EvictBefore(cutoff time.Time) (int, error) {
	cutoff = day(cutoff)
	removed := 0
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(ratesBucketName))
		var stale [][]byte
		err := bucket.ForEach(func(k, v []byte) error {
			var entry Entry
			if err := json.Unmarshal(v, &entry); err != nil {
				return fmt.Errorf("unmarshaling rate %s: %w", k, err)
			}
			date, err := time.Parse(dateLayout, entry.Date)
			if err != nil || date.Before(cutoff) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}
		removed = len(stale)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("evicting rates: %w", err)
	}
	return removed, nil
}

// Close closes the cache database
func (b *BoltCache) Close() error {
	return b.db.Close()
}
