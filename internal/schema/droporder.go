package schema

import (
	"fmt"
	"slices"

	"fortio.org/safecast"
)

// buildDropSequence derives the finalize order for a validated schema:
// every field using a lifetime precedes the field defining it. Unrelated
// fields follow reverse declaration order, so the whole sequence is
// deterministic.
//
// Validation forbids forward, self, and cyclic references, so a topological
// order always exists here; failing to find one means the validator is
// broken, not the input. That case is fatal.
func buildDropSequence(s *StructSchema) []FieldIndex {
	n := len(s.Fields)
	if n == 0 {
		return nil
	}

	// Edge dependent -> definer: the dependent must be finalized first.
	edges := make([][]FieldIndex, n)
	indeg := make([]int, n)
	for _, dep := range s.deps {
		for _, from := range dep.Dependents {
			edges[from] = append(edges[from], dep.Def)
			indeg[dep.Def]++
		}
	}

	current := make([]FieldIndex, 0, n)
	for i := range n {
		if indeg[i] == 0 {
			idx, err := safecast.Conv[uint32](i)
			if err != nil {
				panic(fmt.Errorf("field index overflow: %w", err))
			}
			current = append(current, FieldIndex(idx))
		}
	}

	order := make([]FieldIndex, 0, n)
	for len(current) > 0 {
		// Reverse declaration order within each wave.
		slices.SortFunc(current, func(a, b FieldIndex) int {
			return int(b) - int(a)
		})
		next := make([]FieldIndex, 0)
		for _, id := range current {
			order = append(order, id)
			for _, to := range edges[id] {
				indeg[to]--
				if indeg[to] == 0 {
					next = append(next, to)
				}
			}
		}
		current = next
	}

	if len(order) != n {
		panic(fmt.Errorf("drop-order cycle after validation claimed success: struct %d, placed %d of %d fields",
			s.Name, len(order), n))
	}
	return order
}

// RestrictDropSequence filters the schema's drop sequence down to the
// fields surviving a partial destructure, preserving relative order.
func (s *StructSchema) RestrictDropSequence(surviving map[FieldIndex]bool) []FieldIndex {
	out := make([]FieldIndex, 0, len(surviving))
	for _, idx := range s.DropSequence {
		if surviving[idx] {
			out = append(out, idx)
		}
	}
	return out
}
