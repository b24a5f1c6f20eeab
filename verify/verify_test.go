package verify

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	rec := NewRecorder()
	require.False(t, rec.HasNode(7))
	rec.AddNode(7)
	rec.AddNode(3)
	rec.AddNode(7) // duplicates collapse
	require.True(t, rec.HasNode(7))
	require.True(t, rec.HasNode(3))
	require.Equal(t, []uint32{3, 7}, rec.Nodes())
}
