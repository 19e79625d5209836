package store

import "testing"

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}
