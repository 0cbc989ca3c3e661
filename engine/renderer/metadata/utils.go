package metadata

import "golang.org/x/exp/constraints"

// AlignUp rounds value up to the next multiple of alignment.
// Alignment must be a power of two.
func AlignUp[T constraints.Integer](value, alignment T) T {
	return (value + (alignment - 1)) &^ (alignment - 1)
}
