package deps

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAllDependenciesAreValid(t *testing.T) {
	seen := map[string]bool{}
	for _, d := range All() {
		require.NoError(t, d.Validate(), d.Name)
		require.False(t, seen[d.Name], "duplicate dependency name: %s", d.Name)
		seen[d.Name] = true
	}
}

func TestSelectByName(t *testing.T) {
	selected, err := Select([]string{"snappy", "zlib"}, nil)
	require.NoError(t, err)
	require.Len(t, selected, 2)

	// Build order is preserved regardless of argument order.
	require.Equal(t, "zlib", selected[0].Name)
	require.Equal(t, "snappy", selected[1].Name)
}

func TestSelectSkip(t *testing.T) {
	all := All()
	selected, err := Select(nil, []string{"boost"})
	require.NoError(t, err)
	require.Len(t, selected, len(all)-1)
	for _, d := range selected {
		require.NotEqual(t, "boost", d.Name)
	}
}

func TestSelectErrors(t *testing.T) {
	_, err := Select([]string{"zlib"}, []string{"boost"})
	require.ErrorContains(t, err, "cannot both select and skip")

	_, err = Select([]string{"nosuchdep"}, nil)
	require.ErrorContains(t, err, `unknown dependency: "nosuchdep"`)

	_, err = Select(nil, []string{"nosuchdep"})
	require.ErrorContains(t, err, `unknown dependency: "nosuchdep"`)
}
