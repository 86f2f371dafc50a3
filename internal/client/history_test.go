package client

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryAppendAndLast(t *testing.T) {
	h := NewHistory(filepath.Join(t.TempDir(), ".mcp_history"))

	h.Append("(+ 1 2)")
	h.Append("")
	h.Append("(str \"a\" \"b\")")
	h.Append("(* 6 7)")

	assert.Equal(t, 3, h.Len())
	assert.Equal(t, []string{"(str \"a\" \"b\")", "(* 6 7)"}, h.Last(2))
	assert.Equal(t, []string{"(+ 1 2)", "(str \"a\" \"b\")", "(* 6 7)"}, h.Last(10))
	assert.Nil(t, h.Last(0))
}

func TestHistorySaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".mcp_history")

	h := NewHistory(path)
	h.Append("(+ 1 2 3)")
	h.Append("(defn f [x] x)")
	require.NoError(t, h.Save())

	reloaded := NewHistory(path)
	require.NoError(t, reloaded.Load())
	assert.Equal(t, []string{"(+ 1 2 3)", "(defn f [x] x)"}, reloaded.Last(10))
}

func TestHistoryLoadMissingFileIsNotAnError(t *testing.T) {
	h := NewHistory(filepath.Join(t.TempDir(), "does-not-exist"))
	require.NoError(t, h.Load())
	assert.Zero(t, h.Len())
}

func TestHistorySaveTrimsToLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".mcp_history")
	h := NewHistory(path)
	h.limit = 2

	h.Append("one")
	h.Append("two")
	h.Append("three")
	require.NoError(t, h.Save())

	reloaded := NewHistory(path)
	require.NoError(t, reloaded.Load())
	assert.Equal(t, []string{"two", "three"}, reloaded.Last(10))
}
