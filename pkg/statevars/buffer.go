package statevars

import (
	"context"

	"github.com/thomasrohde/oscript/pkg/diagnostics"
	"github.com/thomasrohde/oscript/pkg/evaluator"
)

const (
	// MaxKeyLength is the longest state var name, in bytes.
	MaxKeyLength = 128
	// MaxValueLength is the longest string a state var may hold, in bytes.
	MaxValueLength = 1024
)

// Buffer collects the writes of one evaluation of the AA at Address. It
// implements evaluator.StateAccess.
type Buffer struct {
	Address string

	store  Store
	writes map[string]evaluator.Value
	order  []string
}

func NewBuffer(store Store, address string) *Buffer {
	return &Buffer{
		Address: address,
		store:   store,
		writes:  make(map[string]evaluator.Value),
	}
}

// Read returns a var value. The owning AA sees its own pending writes; any
// other address sees committed state. Missing vars read as false.
func (b *Buffer) Read(ctx context.Context, address, key string) (evaluator.Value, error) {
	if address == b.Address {
		if v, ok := b.writes[key]; ok {
			return v, nil
		}
	}
	v, ok, err := b.store.Load(ctx, address, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return evaluator.NewBool(false), nil
	}
	return v, nil
}

// Write buffers var[key] = val for the owning AA.
func (b *Buffer) Write(key string, val evaluator.Value) error {
	if len(key) > MaxKeyLength {
		return evaluator.Errorf(evaluator.KindTypeCoercion, diagnostics.EType,
			"state var name is %d bytes, longer than %d", len(key), MaxKeyLength)
	}
	if s, ok := val.(evaluator.String); ok && len(s.Value) > MaxValueLength {
		return evaluator.Errorf(evaluator.KindTypeCoercion, diagnostics.EType,
			"state var %s value is %d bytes, longer than %d", key, len(s.Value), MaxValueLength)
	}
	if _, ok := b.writes[key]; !ok {
		b.order = append(b.order, key)
	}
	b.writes[key] = evaluator.Scalar(val)
	return nil
}

// Len is the number of distinct vars written.
func (b *Buffer) Len() int {
	return len(b.order)
}

// Changes lists the pending writes in first-write order, in stored form:
// true becomes 1 and false becomes a deletion.
func (b *Buffer) Changes() []Change {
	out := make([]Change, 0, len(b.order))
	for _, k := range b.order {
		v := b.writes[k]
		if bv, ok := v.(evaluator.Bool); ok {
			if bv.Value {
				v = evaluator.NewNumber(1)
			} else {
				v = nil
			}
		}
		out = append(out, Change{Key: k, Value: v})
	}
	return out
}

// Commit persists the pending writes and empties the buffer. On error the
// buffer is left as it was.
func (b *Buffer) Commit(ctx context.Context) error {
	if len(b.order) == 0 {
		return nil
	}
	if err := b.store.Commit(ctx, b.Address, b.Changes()); err != nil {
		return err
	}
	b.Discard()
	return nil
}

// Discard drops all pending writes.
func (b *Buffer) Discard() {
	b.writes = make(map[string]evaluator.Value)
	b.order = nil
}
