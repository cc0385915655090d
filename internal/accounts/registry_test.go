package accounts

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Get("goat")
	require.False(t, ok)

	a := &Account{}
	require.NoError(t, r.Put("goat", a))
	require.Error(t, r.Put("goat", &Account{}), "duplicate id must be rejected")

	got, ok := r.Get("goat")
	require.True(t, ok)
	require.Same(t, a, got)

	require.NoError(t, r.Put("other", &Account{}))
	require.ElementsMatch(t, []string{"goat", "other"}, r.IDs())
}
