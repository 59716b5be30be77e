// Package ordering implements the drag-and-drop arithmetic shared by
// lanes, tickets and funnel pages: moving one element to a drop-zone slot
// and validating that a submitted order is a permutation of the stored one.
package ordering

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidMove is returned when a source index or drop-zone slot is out of range.
	ErrInvalidMove = errors.New("invalid move")
	// ErrOrderConflict is returned when a submitted order does not match the stored set.
	ErrOrderConflict = errors.New("order conflict")
)

// Move returns a copy of items with items[from] relocated to drop-zone slot to.
//
// Slots sit between elements, so valid values are 0..len(items). Dropping an
// element on the slot directly before or after itself leaves the order
// unchanged; changed reports whether anything moved.
func Move[T any](items []T, from, to int) (out []T, changed bool, err error) {
	n := len(items)
	if from < 0 || from >= n {
		return nil, false, fmt.Errorf("%w: source index %d outside [0,%d)", ErrInvalidMove, from, n)
	}
	if to < 0 || to > n {
		return nil, false, fmt.Errorf("%w: target slot %d outside [0,%d]", ErrInvalidMove, to, n)
	}

	if to == from || to == from+1 {
		out = make([]T, n)
		copy(out, items)
		return out, false, nil
	}

	insertAt := to
	if to > from {
		insertAt = to - 1
	}
	return Insert(Remove(items, from), insertAt, items[from]), true, nil
}

// IndexOf returns the position of id in ids, or -1.
func IndexOf(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}

// CheckPermutation verifies that submitted contains exactly the IDs in current,
// each once, in any order.
func CheckPermutation(current, submitted []string) error {
	if len(current) != len(submitted) {
		return fmt.Errorf("%w: expected %d ids, got %d", ErrOrderConflict, len(current), len(submitted))
	}
	known := make(map[string]bool, len(current))
	for _, id := range current {
		known[id] = false
	}
	for _, id := range submitted {
		seen, ok := known[id]
		if !ok {
			return fmt.Errorf("%w: unknown id %q", ErrOrderConflict, id)
		}
		if seen {
			return fmt.Errorf("%w: duplicate id %q", ErrOrderConflict, id)
		}
		known[id] = true
	}
	return nil
}

// Insert returns a copy of items with v inserted at index i (clamped to 0..len).
func Insert[T any](items []T, i int, v T) []T {
	if i < 0 {
		i = 0
	}
	if i > len(items) {
		i = len(items)
	}
	out := make([]T, 0, len(items)+1)
	out = append(out, items[:i]...)
	out = append(out, v)
	return append(out, items[i:]...)
}

// Remove returns a copy of items without the element at index i.
func Remove[T any](items []T, i int) []T {
	out := make([]T, 0, len(items))
	out = append(out, items[:i]...)
	return append(out, items[i+1:]...)
}
