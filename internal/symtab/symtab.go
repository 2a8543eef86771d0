// Package symtab maps trace class identifiers to fully-qualified class names.
package symtab

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownSymbol indicates that a class identifier has no entry in the table.
var ErrUnknownSymbol = errors.New("unknown symbol")

// Table is an immutable class id -> class name mapping shared by every
// decoder and cursor of one trace load.
type Table struct {
	names map[int]string
}

// New copies names into a new Table. Empty class names are rejected since
// they can never resolve to a source location.
func New(names map[int]string) (*Table, error) {
	t := &Table{names: make(map[int]string, len(names))}
	for id, name := range names {
		if name == "" {
			return nil, fmt.Errorf("empty class name for symbol %d", id)
		}
		t.names[id] = name
	}
	return t, nil
}

// ClassName returns the class name registered for id.
func (t *Table) ClassName(id int) (string, error) {
	name, ok := t.names[id]
	if !ok {
		return "", fmt.Errorf("%w: %d", ErrUnknownSymbol, id)
	}
	return name, nil
}

// Len returns the number of registered classes.
func (t *Table) Len() int {
	return len(t.names)
}

// IDs returns all registered ids in ascending order.
func (t *Table) IDs() []int {
	ids := make([]int, 0, len(t.names))
	for id := range t.names {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
