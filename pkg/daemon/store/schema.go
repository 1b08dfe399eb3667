package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Schema versions:
// 1 - Session entries, zstd dataset records and arrays
const CurrentSchemaVersion = 1

const schemaKey = prefixMeta + "__schema__"

// Schema holds database schema information.
type Schema struct {
	Version   int       `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GetSchema returns the current schema version, or nil if not set.
func (s *Store) GetSchema() *Schema {
	var schema *Schema

	_ = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(schemaKey))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			schema = &Schema{}
			return json.Unmarshal(val, schema)
		})
	})

	return schema
}

// SetSchema stores the schema version.
func (s *Store) SetSchema(schema *Schema) error {
	data, err := json.Marshal(schema)
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(schemaKey), data)
	})
}

// checkSchema stamps a fresh catalog and refuses one written by a newer
// version.
func (s *Store) checkSchema() error {
	schema := s.GetSchema()
	if schema == nil {
		return s.SetSchema(&Schema{Version: CurrentSchemaVersion, UpdatedAt: time.Now()})
	}
	if schema.Version > CurrentSchemaVersion {
		return fmt.Errorf("catalog schema version %d is newer than supported version %d",
			schema.Version, CurrentSchemaVersion)
	}
	return nil
}
