package memutils

import (
	"github.com/cockroachdb/errors"
	"golang.org/x/exp/constraints"
)

// CheckPow2 returns PowerOfTwoError, annotated with name, if number is not a power of two
func CheckPow2[T constraints.Integer](number T, name string) error {
	if number <= 0 || number&(number-1) != 0 {
		return errors.Wrapf(PowerOfTwoError, "%s is %d", name, number)
	}
	return nil
}

// AlignUp rounds value up to the next multiple of alignment, which must be a power of two
func AlignUp[T constraints.Integer](value T, alignment T) T {
	return (value + alignment - 1) &^ (alignment - 1)
}

// CheckRange verifies that [offset, offset+size) lies within [0, limit)
func CheckRange(offset, size, limit int) error {
	if offset < 0 || size < 0 || offset+size > limit {
		return errors.Wrapf(OutOfRangeError, "range [%d, %d) with limit %d", offset, offset+size, limit)
	}
	return nil
}
