package ledger

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"
)

const (
	goalsBucket        = "goals"
	transactionsBucket = "transactions"
	receiptsBucket     = "receipts"
	settingsBucket     = "settings"
)

// DB defines the interface for database operations. Lookups of missing
// records return ErrNotFound.
type DB interface {
	// GetGoal returns the savings goal, or ErrNoGoal
	GetGoal() (*Goal, error)

	// SaveGoal replaces the savings goal
	SaveGoal(goal *Goal) error

	// AddTransaction stores a new transaction and sets its ID
	AddTransaction(t *Transaction) error

	// GetTransaction retrieves a transaction by ID
	GetTransaction(id int64) (*Transaction, error)

	// ListTransactions returns up to limit transactions, newest date first.
	// A limit of zero or less returns all of them.
	ListTransactions(limit int) ([]*Transaction, error)

	// DeleteTransaction removes a transaction
	DeleteTransaction(id int64) error

	// DeleteTransactionsByReceipt removes every transaction linked to a receipt
	DeleteTransactionsByReceipt(receiptID int64) error

	// AddReceipt stores a new receipt and sets its ID
	AddReceipt(r *Receipt) error

	// GetReceipt retrieves a receipt by ID
	GetReceipt(id int64) (*Receipt, error)

	// GetReceiptByImage retrieves the receipt that references an image file
	GetReceiptByImage(imageFile string) (*Receipt, error)

	// ListReceipts returns all receipts, newest date first
	ListReceipts() ([]*Receipt, error)

	// DeleteReceipt removes a receipt
	DeleteReceipt(id int64) error

	// GetSetting returns the value stored for key
	GetSetting(key string) (string, error)

	// SetSetting stores a value for key
	SetSetting(key, value string) error

	// ListSettings returns every setting
	ListSettings() (map[string]string, error)

	// ClearAll deletes all transactions and receipts and resets the goal's
	// saved amount to zero. Settings are kept.
	ClearAll() error

	// Close closes the database connection
	Close() error
}

// sortTransactions orders by date, then creation time, newest first
func sortTransactions(ts []*Transaction) {
	sort.SliceStable(ts, func(i, j int) bool {
		if ts[i].Date != ts[j].Date {
			return ts[i].Date > ts[j].Date
		}
		if !ts[i].CreatedAt.Equal(ts[j].CreatedAt) {
			return ts[i].CreatedAt.After(ts[j].CreatedAt)
		}
		return ts[i].ID > ts[j].ID
	})
}

// BoltDB implements the DB interface using BoltDB. Records are JSON under
// big-endian sequence keys.
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance, seeding the default goal and
// settings on first use
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{goalsBucket, transactionsBucket, receiptsBucket, settingsBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return seedBolt(tx)
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

func seedBolt(tx *bbolt.Tx) error {
	goals := tx.Bucket([]byte(goalsBucket))
	if k, _ := goals.Cursor().First(); k == nil {
		goal := DefaultGoal(time.Now().UTC())
		if err := goals.SetSequence(uint64(goal.ID)); err != nil {
			return err
		}
		if err := putJSON(goals, goal.ID, goal); err != nil {
			return err
		}
	}

	settings := tx.Bucket([]byte(settingsBucket))
	for k, v := range DefaultSettings {
		if settings.Get([]byte(k)) != nil {
			continue
		}
		if err := settings.Put([]byte(k), []byte(v)); err != nil {
			return err
		}
	}
	return nil
}

func itob(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}

func putJSON(bucket *bbolt.Bucket, id int64, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling record: %w", err)
	}
	return bucket.Put(itob(id), data)
}

func getJSON(bucket *bbolt.Bucket, id int64, v any) error {
	data := bucket.Get(itob(id))
	if data == nil {
		return ErrNotFound
	}
	return json.Unmarshal(data, v)
}

// GetGoal returns the savings goal, or ErrNoGoal
func (b *BoltDB) GetGoal() (*Goal, error) {
	var goal *Goal
	err := b.db.View(func(tx *bbolt.Tx) error {
		_, data := tx.Bucket([]byte(goalsBucket)).Cursor().First()
		if data == nil {
			return ErrNoGoal
		}
		return json.Unmarshal(data, &goal)
	})
	if err != nil {
		return nil, err
	}
	return goal, nil
}

// SaveGoal replaces the savings goal
func (b *BoltDB) SaveGoal(goal *Goal) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(goalsBucket))
		if goal.ID == 0 {
			id, err := bucket.NextSequence()
			if err != nil {
				return err
			}
			goal.ID = int64(id)
		}
		return putJSON(bucket, goal.ID, goal)
	})
}

// AddTransaction stores a new transaction and sets its ID
func (b *BoltDB) AddTransaction(t *Transaction) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(transactionsBucket))
		id, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		t.ID = int64(id)
		return putJSON(bucket, t.ID, t)
	})
}

// GetTransaction retrieves a transaction by ID
func (b *BoltDB) GetTransaction(id int64) (*Transaction, error) {
	var t Transaction
	err := b.db.View(func(tx *bbolt.Tx) error {
		return getJSON(tx.Bucket([]byte(transactionsBucket)), id, &t)
	})
	if err != nil {
		return nil, fmt.Errorf("transaction %d: %w", id, err)
	}
	return &t, nil
}

func (b *BoltDB) allTransactions() ([]*Transaction, error) {
	transactions := make([]*Transaction, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(transactionsBucket)).ForEach(func(k, v []byte) error {
			var t Transaction
			if err := json.Unmarshal(v, &t); err != nil {
				return fmt.Errorf("unmarshaling transaction: %w", err)
			}
			transactions = append(transactions, &t)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return transactions, nil
}

// ListTransactions returns up to limit transactions, newest date first
func (b *BoltDB) ListTransactions(limit int) ([]*Transaction, error) {
	transactions, err := b.allTransactions()
	if err != nil {
		return nil, err
	}
	sortTransactions(transactions)
	if limit > 0 && len(transactions) > limit {
		transactions = transactions[:limit]
	}
	return transactions, nil
}

// DeleteTransaction removes a transaction
func (b *BoltDB) DeleteTransaction(id int64) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(transactionsBucket))
		if bucket.Get(itob(id)) == nil {
			return fmt.Errorf("transaction %d: %w", id, ErrNotFound)
		}
		return bucket.Delete(itob(id))
	})
}

// DeleteTransactionsByReceipt removes every transaction linked to a receipt
func (b *BoltDB) DeleteTransactionsByReceipt(receiptID int64) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(transactionsBucket))

		var keys [][]byte
		err := bucket.ForEach(func(k, v []byte) error {
			var t Transaction
			if err := json.Unmarshal(v, &t); err != nil {
				return fmt.Errorf("unmarshaling transaction: %w", err)
			}
			if t.ReceiptID == receiptID {
				keys = append(keys, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}

		// Deleting inside ForEach invalidates the cursor
		for _, k := range keys {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// AddReceipt stores a new receipt and sets its ID
func (b *BoltDB) AddReceipt(r *Receipt) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(receiptsBucket))
		id, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		r.ID = int64(id)
		return putJSON(bucket, r.ID, r)
	})
}

// GetReceipt retrieves a receipt by ID
func (b *BoltDB) GetReceipt(id int64) (*Receipt, error) {
	var r Receipt
	err := b.db.View(func(tx *bbolt.Tx) error {
		return getJSON(tx.Bucket([]byte(receiptsBucket)), id, &r)
	})
	if err != nil {
		return nil, fmt.Errorf("receipt %d: %w", id, err)
	}
	return &r, nil
}

// GetReceiptByImage retrieves the receipt that references an image file
func (b *BoltDB) GetReceiptByImage(imageFile string) (*Receipt, error) {
	var found *Receipt
	err := b.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(receiptsBucket)).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var r Receipt
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("unmarshaling receipt: %w", err)
			}
			if r.ImageFile == imageFile {
				found = &r
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("receipt with image %q: %w", imageFile, ErrNotFound)
	}
	return found, nil
}

// ListReceipts returns all receipts, newest date first
func (b *BoltDB) ListReceipts() ([]*Receipt, error) {
	receipts := make([]*Receipt, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(receiptsBucket)).ForEach(func(k, v []byte) error {
			var r Receipt
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("unmarshaling receipt: %w", err)
			}
			receipts = append(receipts, &r)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(receipts, func(i, j int) bool {
		if receipts[i].Date != receipts[j].Date {
			return receipts[i].Date > receipts[j].Date
		}
		return receipts[i].ID > receipts[j].ID
	})
	return receipts, nil
}

// DeleteReceipt removes a receipt
func (b *BoltDB) DeleteReceipt(id int64) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(receiptsBucket))
		if bucket.Get(itob(id)) == nil {
			return fmt.Errorf("receipt %d: %w", id, ErrNotFound)
		}
		return bucket.Delete(itob(id))
	})
}

// GetSetting returns the value stored for key
func (b *BoltDB) GetSetting(key string) (string, error) {
	var value string
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(settingsBucket)).Get([]byte(key))
		if data == nil {
			return fmt.Errorf("setting %q: %w", key, ErrNotFound)
		}
		value = string(data)
		return nil
	})
	return value, err
}

// SetSetting stores a value for key
func (b *BoltDB) SetSetting(key, value string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(settingsBucket)).Put([]byte(key), []byte(value))
	})
}

// ListSettings returns every setting
func (b *BoltDB) ListSettings() (map[string]string, error) {
	settings := make(map[string]string)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(settingsBucket)).ForEach(func(k, v []byte) error {
			settings[string(k)] = string(v)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return settings, nil
}

// ClearAll deletes all transactions and receipts and zeroes the goal
func (b *BoltDB) ClearAll() error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{transactionsBucket, receiptsBucket} {
			if err := tx.DeleteBucket([]byte(name)); err != nil {
				return err
			}
			if _, err := tx.CreateBucket([]byte(name)); err != nil {
				return err
			}
		}

		goals := tx.Bucket([]byte(goalsBucket))
		var all []*Goal
		err := goals.ForEach(func(k, v []byte) error {
			var g Goal
			if err := json.Unmarshal(v, &g); err != nil {
				return fmt.Errorf("unmarshaling goal: %w", err)
			}
			all = append(all, &g)
			return nil
		})
		if err != nil {
			return err
		}
		for _, g := range all {
			g.Saved = 0
			if err := putJSON(goals, g.ID, g); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}
