package ordering

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextBetweenClosedBounds(t *testing.T) {
	key, err := Next("n", "y")
	require.NoError(t, err)
	assert.Equal(t, "s", key)
}

func TestNextOpenBounds(t *testing.T) {
	first, err := Next("", "")
	require.NoError(t, err)
	assert.Equal(t, "n", first)

	before, err := Next("", "s")
	require.NoError(t, err)
	assert.Equal(t, "n", before)

	after, err := Next("s", "")
	require.NoError(t, err)
	assert.Equal(t, "y", after)
}

func TestNextIsStrictlyBetween(t *testing.T) {
	cases := [][2]string{
		{"a", "b"},
		{"ab", "ac"},
		{"az", "b"},
		{"", "ab"},
		{"yz", ""},
		{"abc", "abd"},
	}
	for _, c := range cases {
		key, err := Next(c[0], c[1])
		require.NoError(t, err, "Next(%q, %q)", c[0], c[1])
		assert.True(t, c[0] < key, "Next(%q, %q) = %q not above prev", c[0], c[1], key)
		if c[1] != "" {
			assert.True(t, key < c[1], "Next(%q, %q) = %q not below next", c[0], c[1], key)
		}
	}
}

func TestNextRejectsInvertedBounds(t *testing.T) {
	_, err := Next("y", "n")
	assert.ErrorIs(t, err, ErrInvariant)

	_, err = Next("n", "n")
	assert.ErrorIs(t, err, ErrInvariant)

	// bounds that differ only by trailing 'a' digits denote an empty interval:
	// "ba" is the same fraction as "b", so nothing fits between them
	_, err = Next("b", "ba")
	assert.ErrorIs(t, err, ErrInvariant)

	_, err = Next("n", "na")
	assert.ErrorIs(t, err, ErrInvariant)
}

func TestRepeatedInsertsStayOrdered(t *testing.T) {
	// hammer the same gap; every key must slot strictly between its neighbours
	prev, next := "a", "b"
	for i := 0; i < 64; i++ {
		key, err := Next(prev, next)
		require.NoError(t, err)
		require.True(t, prev < key && key < next)
		prev = key
	}
}

func TestRepeatedAppendsGrowSlowly(t *testing.T) {
	prev := ""
	for i := 0; i < 50; i++ {
		key, err := Next(prev, "")
		require.NoError(t, err)
		require.True(t, prev < key)
		prev = key
	}
	// 3/4 bias keeps half a hundred appends well under the rebalance threshold
	assert.False(t, NeedsRebalance(prev), "append run grew key to %q", prev)
}

func TestRebalanceEvenAndOrdered(t *testing.T) {
	for _, n := range []int{1, 2, 25, 26, 27, 500} {
		keys := Rebalance(n)
		require.Len(t, keys, n)
		assert.True(t, Validate(keys))
		for i := 1; i < n; i++ {
			assert.Negative(t, Compare(keys[i-1], keys[i]))
		}
		for _, k := range keys {
			assert.LessOrEqual(t, len(k), MaxKeyLen)
			assert.NotEqual(t, byte('a'), k[len(k)-1])
		}
	}
}

func TestValidateFlagsDuplicates(t *testing.T) {
	assert.True(t, Validate([]string{"b", "n", "y"}))
	assert.False(t, Validate([]string{"b", "n", "n"}))
	assert.False(t, Validate([]string{"b", ""}))
}
