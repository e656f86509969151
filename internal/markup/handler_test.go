package markup

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDiff(t *testing.T) {
	require.Equal(t, []uint{1, 3}, diff([]uint{1, 2, 3}, []uint{2}))
	require.Nil(t, diff([]uint{1, 2}, []uint{1, 2}))
	require.Equal(t, []uint{5}, diff([]uint{5}, nil))
	require.Nil(t, diff(nil, []uint{1}))
}
