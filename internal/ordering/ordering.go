// Package ordering holds the sequence algebra behind card placement.
//
// Every function treats its input as immutable and returns a fresh slice,
// so a caller can keep the sequence it read alongside the one it wants to
// write and fall back to it when a compare-and-swap fails.
package ordering

import (
	"fmt"
	"slices"

	"github.com/Tomlord1122/kanban-backend/internal/domain"
)

// Clamp bounds an insertion index to [0, length].
func Clamp(index, length int) int {
	return max(0, min(index, length))
}

// IndexOf returns the position of id in seq, or -1.
func IndexOf(seq []string, id string) int {
	return slices.Index(seq, id)
}

// Insert places id before position index (clamped). Inserting at len(seq)
// appends.
func Insert(seq []string, id string, index int) ([]string, error) {
	if IndexOf(seq, id) >= 0 {
		return nil, domain.ErrDuplicateReference
	}
	at := Clamp(index, len(seq))
	out := make([]string, 0, len(seq)+1)
	out = append(out, seq[:at]...)
	out = append(out, id)
	out = append(out, seq[at:]...)
	return out, nil
}

// Remove deletes id and reports the index it occupied.
func Remove(seq []string, id string) ([]string, int, error) {
	at := IndexOf(seq, id)
	if at < 0 {
		return nil, -1, domain.ErrNotMember
	}
	out := make([]string, 0, len(seq)-1)
	out = append(out, seq[:at]...)
	out = append(out, seq[at+1:]...)
	return out, at, nil
}

// Reorder moves id inside seq. The target index refers to the sequence
// after id has been taken out, so moving to the end of a list of n cards
// uses index n-1 or anything larger. changed is false when id already
// sits at the clamped target.
func Reorder(seq []string, id string, index int) (out []string, changed bool, err error) {
	rest, from, err := Remove(seq, id)
	if err != nil {
		return nil, false, err
	}
	to := Clamp(index, len(rest))
	if to == from {
		return slices.Clone(seq), false, nil
	}
	out, err = Insert(rest, id, to)
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}

// Validate reports the first duplicated id in seq.
func Validate(seq []string) error {
	seen := make(map[string]struct{}, len(seq))
	for i, id := range seq {
		if id == "" {
			return fmt.Errorf("empty card id at position %d", i)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: card %s appears twice", domain.ErrDuplicateReference, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// CheckDisjoint verifies that no card id is referenced by two lists and
// that no list holds a duplicate. lists maps list id to its sequence.
func CheckDisjoint(lists map[string][]string) error {
	owner := make(map[string]string)
	ids := make([]string, 0, len(lists))
	for id := range lists {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, listID := range ids {
		seq := lists[listID]
		if err := Validate(seq); err != nil {
			return fmt.Errorf("list %s: %w", listID, err)
		}
		for _, cardID := range seq {
			if other, ok := owner[cardID]; ok {
				return fmt.Errorf("%w: card %s is in lists %s and %s",
					domain.ErrDuplicateReference, cardID, other, listID)
			}
			owner[cardID] = listID
		}
	}
	return nil
}
