package testutil

import "testing"

// Given, When and Then run fn as a named subtest so workflow tests read as
// a sequence of steps in `go test -v` output. Each returns whether the step
// passed, so later steps can be skipped with require-style guards.
func Given(t *testing.T, desc string, fn func(t *testing.T)) bool {
	t.Helper()
	return t.Run("Given "+desc, fn)
}

func When(t *testing.T, desc string, fn func(t *testing.T)) bool {
	t.Helper()
	return t.Run("When "+desc, fn)
}

func Then(t *testing.T, desc string, fn func(t *testing.T)) bool {
	t.Helper()
	return t.Run("Then "+desc, fn)
}
