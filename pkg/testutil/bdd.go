package testutil

import "testing"

// Given, When and Then nest scenario steps as subtests so a failing ledger
// scenario reports the full path, e.g. "Given a sale/When paid/Then ready".
func Given(t *testing.T, precondition string, steps func(t *testing.T)) bool {
	t.Helper()
	return t.Run("Given "+precondition, steps)
}

func When(t *testing.T, action string, steps func(t *testing.T)) bool {
	t.Helper()
	return t.Run("When "+action, steps)
}

func Then(t *testing.T, outcome string, check func(t *testing.T)) bool {
	t.Helper()
	return t.Run("Then "+outcome, check)
}
