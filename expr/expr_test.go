package expr

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMapContextArgLookup(t *testing.T) {
	ctx := NewContext([]string{"id", "tenant"}, []interface{}{5, "acme"})
	v, ok := ctx.Arg("id")
	require.True(t, ok)
	require.Equal(t, 5, v)

	_, ok = ctx.Arg("missing")
	require.False(t, ok)

	require.Equal(t, []interface{}{5, "acme"}, ctx.Args())
}

func TestRebindPivotDoesNotMutateOriginal(t *testing.T) {
	ctx := NewContext([]string{"ids"}, []interface{}{[]int{1, 2, 3}})
	rebound := ctx.RebindPivot("ids", 2)

	v, _ := rebound.Arg("ids")
	require.Equal(t, 2, v)

	v, _ = ctx.Arg("ids")
	require.Equal(t, []int{1, 2, 3}, v)
}

func TestWithResultPreservesArgs(t *testing.T) {
	ctx := NewContext([]string{"id"}, []interface{}{1})
	withResult := ctx.WithResult("loaded-value")
	require.Equal(t, "loaded-value", withResult.Result())
	require.Nil(t, ctx.Result())
}
