//go:build debug_mem_utils

package memutils

// DebugValidate panics if validatable reports an inconsistency. Builds without the
// debug_mem_utils tag skip the check.
func DebugValidate(validatable Validatable) {
	if err := validatable.Validate(); err != nil {
		panic(err)
	}
}
