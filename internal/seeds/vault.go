package seeds

import (
	"encoding/json"
	"errors"

	"github.com/dgraph-io/badger/v4"
)

var errKeyNotFound = errors.New("seeds: key not found")

// vault is the badger-backed record store for seeds and pairs.
type vault struct {
	db *badger.DB
}

func openVault(dir string, inMemory bool) (*vault, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &vault{db: db}, nil
}

func (v *vault) close() error { return v.db.Close() }

func seedKey(id string) []byte { return []byte("seed/" + id) }

func pairKey(owner, table string) []byte { return []byte("pair/" + owner + "/" + table) }

func getJSON(txn *badger.Txn, key []byte, out any) error {
	item, err := txn.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return errKeyNotFound
		}
		return err
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return err
	}
	return json.Unmarshal(val, out)
}

func setJSON(txn *badger.Txn, key []byte, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

// listSeeds returns every seed record whose key starts with seed/.
func (v *vault) listSeeds() ([]seedRecord, error) {
	var out []seedRecord
	err := v.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		p := []byte("seed/")
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var rec seedRecord
			if err := json.Unmarshal(val, &rec); err != nil {
				return err
			}
			out = append(out, rec)
		}
		return nil
	})
	return out, err
}
