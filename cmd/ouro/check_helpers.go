package main

import (
	"ouro/internal/diag"
)

// filterWarnings applies --no-warnings / --warnings-as-errors to a sorted
// bag without mutating the original.
func filterWarnings(bag *diag.Bag, drop, promote bool) *diag.Bag {
	out := diag.NewBag(bag.Len())
	for _, d := range bag.Items() {
		if d.Severity == diag.SevWarning {
			if drop {
				continue
			}
			if promote {
				d.Severity = diag.SevError
			}
		}
		out.Add(d)
	}
	return out
}
