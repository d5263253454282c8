// Package statevars persists AA state variables and buffers the writes of a
// single evaluation until they are committed or discarded.
package statevars

import (
	"context"
	"fmt"

	"github.com/thomasrohde/oscript/pkg/evaluator"
)

// Change is one committed mutation. A nil Value deletes the key.
type Change struct {
	Key   string
	Value evaluator.Value
}

// Store is the persisted state of all AAs. Stored values are numbers or
// strings only.
type Store interface {
	// Load returns the committed value of address's var key.
	Load(ctx context.Context, address, key string) (evaluator.Value, bool, error)
	// Commit applies changes to address atomically: either all apply or none.
	Commit(ctx context.Context, address string, changes []Change) error
	// StorageSize is the number of bytes used by address's committed vars.
	StorageSize(ctx context.Context, address string) (int64, error)
}

// entrySize is the storage charged for one var: key length plus the length
// of the value's string form.
func entrySize(key string, v evaluator.Value) int64 {
	switch val := v.(type) {
	case evaluator.Number:
		return int64(len(key) + len(evaluator.FormatNumber(val.Value)))
	case evaluator.String:
		return int64(len(key) + len(val.Value))
	}
	return int64(len(key))
}

func checkStored(key string, v evaluator.Value) error {
	switch v.(type) {
	case evaluator.Number, evaluator.String:
		return nil
	}
	return fmt.Errorf("state var %q: cannot store %s", key, evaluator.TypeName(v))
}
