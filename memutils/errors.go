package memutils

import "github.com/cockroachdb/errors"

// PowerOfTwoError is the error returned from CheckPow2 or other methods if the number being tested is not a power of two
var PowerOfTwoError = errors.New("number must be a power of two")

// OutOfRangeError is returned when an offset/size pair falls outside the memory it was meant to address
var OutOfRangeError = errors.New("range exceeds the bounds of the underlying memory")
