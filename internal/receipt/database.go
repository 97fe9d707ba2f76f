package receipt

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/zombor/btw-tracker/internal/tax"
)

const (
	receiptsBucketName  = "receipts"
	extractedBucketName = "extracted_data"
	taxRulesBucketName  = "tax_rules"
)

// DB defines the interface for database operations
type DB interface {
	tax.RuleStore

	// SaveReceipt saves a receipt to the database
	SaveReceipt(receipt *Receipt) error

	// GetReceipt retrieves a receipt by ID, including soft-deleted ones
	GetReceipt(id string) (*Receipt, error)

	// UpdateReceipt applies fn to a stored receipt and saves the result in one transaction.
	// If fn returns an error nothing is written.
	UpdateReceipt(id string, fn func(*Receipt) error) (*Receipt, error)

	// ListReceipts returns all receipts, including soft-deleted ones
	ListReceipts() ([]*Receipt, error)

	// CompleteReceipt saves the receipt and its extracted data in one transaction
	CompleteReceipt(receipt *Receipt, data *ExtractedData) error

	// GetExtractedData retrieves the extracted data of a receipt
	GetExtractedData(receiptID string) (*ExtractedData, error)

	// ListExtractedData returns the extracted data of every receipt
	ListExtractedData() ([]*ExtractedData, error)

	// Close closes the database connection
	Close() error
}

// BoltDB implements the DB interface using BoltDB
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	// Create buckets if they don't exist
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{receiptsBucketName, extractedBucketName, taxRulesBucketName} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

func putJSON(bucket *bbolt.Bucket, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", key, err)
	}
	return bucket.Put([]byte(key), data)
}

// SaveReceipt saves a receipt to the database
func (b *BoltDB) SaveReceipt(receipt *Receipt) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return putJSON(tx.Bucket([]byte(receiptsBucketName)), receipt.ID, receipt)
	})
}

// GetReceipt retrieves a receipt by ID
func (b *BoltDB) GetReceipt(id string) (*Receipt, error) {
	var receipt *Receipt
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(receiptsBucketName)).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return json.Unmarshal(data, &receipt)
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// UpdateReceipt performs a read-modify-write of a receipt
func (b *BoltDB) UpdateReceipt(id string, fn func(*Receipt) error) (*Receipt, error) {
	var receipt *Receipt
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(receiptsBucketName))
		data := bucket.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if err := json.Unmarshal(data, &receipt); err != nil {
			return fmt.Errorf("unmarshaling receipt: %w", err)
		}
		if err := fn(receipt); err != nil {
			return err
		}
		return putJSON(bucket, id, receipt)
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// ListReceipts returns all receipts
func (b *BoltDB) ListReceipts() ([]*Receipt, error) {
	receipts := make([]*Receipt, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(receiptsBucketName)).ForEach(func(k, v []byte) error {
			var receipt Receipt
			if err := json.Unmarshal(v, &receipt); err != nil {
				return fmt.Errorf("unmarshaling receipt: %w", err)
			}
			receipts = append(receipts, &receipt)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return receipts, nil
}

// CompleteReceipt writes the receipt and its extracted data atomically
func (b *BoltDB) CompleteReceipt(receipt *Receipt, data *ExtractedData) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		if err := putJSON(tx.Bucket([]byte(extractedBucketName)), receipt.ID, data); err != nil {
			return err
		}
		return putJSON(tx.Bucket([]byte(receiptsBucketName)), receipt.ID, receipt)
	})
}

// GetExtractedData retrieves the extracted data of a receipt
func (b *BoltDB) GetExtractedData(receiptID string) (*ExtractedData, error) {
	var data *ExtractedData
	err := b.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket([]byte(extractedBucketName)).Get([]byte(receiptID))
		if raw == nil {
			return fmt.Errorf("%w: no extracted data for %s", ErrNotFound, receiptID)
		}
		return json.Unmarshal(raw, &data)
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// ListExtractedData returns all extracted data
func (b *BoltDB) ListExtractedData() ([]*ExtractedData, error) {
	records := make([]*ExtractedData, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(extractedBucketName)).ForEach(func(k, v []byte) error {
			var data ExtractedData
			if err := json.Unmarshal(v, &data); err != nil {
				return fmt.Errorf("unmarshaling extracted data %s: %w", k, err)
			}
			records = append(records, &data)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// TaxRules returns the overrides stored for scope. Each scope is a nested bucket.
func (b *BoltDB) TaxRules(scope string) (map[tax.Category]tax.Rule, error) {
	rules := make(map[tax.Category]tax.Rule)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(taxRulesBucketName)).Bucket([]byte(scope))
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, v []byte) error {
			var rule tax.Rule
			if err := json.Unmarshal(v, &rule); err != nil {
				return fmt.Errorf("unmarshaling tax rule %s: %w", k, err)
			}
			rules[tax.Category(k)] = rule
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return rules, nil
}

// SaveTaxRule stores an override for category in scope
func (b *BoltDB) SaveTaxRule(scope string, category tax.Category, rule tax.Rule) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.Bucket([]byte(taxRulesBucketName)).CreateBucketIfNotExists([]byte(scope))
		if err != nil {
			return fmt.Errorf("creating scope bucket: %w", err)
		}
		return putJSON(bucket, string(category), rule)
	})
}

// DeleteTaxRule removes the override for category in scope
func (b *BoltDB) DeleteTaxRule(scope string, category tax.Category) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(taxRulesBucketName)).Bucket([]byte(scope))
		if bucket == nil {
			return nil
		}
		return bucket.Delete([]byte(category))
	})
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}
