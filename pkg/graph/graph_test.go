package graph

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 = t0.Add(time.Hour)
)

func TestNodeIDDeterministic(t *testing.T) {
	a := NodeID(NodeSupplier, "12345678000195")
	b := NodeID(NodeSupplier, "12345678000195")
	c := NodeID(NodeSupplier, "99999999000191")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Contains(t, a, "supplier-")
}

func TestUpsertNodeMerge(t *testing.T) {
	g := New()
	id := NodeID(NodeSupplier, "12345678000195")

	require.NoError(t, g.UpsertNode(id, NodeSupplier, map[string]any{
		"cnpj": "12345678000195",
		"name": "Alfa Ltda",
	}, "pncp", t0))

	t.Run("scalar newest wins", func(t *testing.T) {
		require.NoError(t, g.UpsertNode(id, NodeSupplier, map[string]any{
			"name": "Alfa Comercio Ltda",
		}, "receita-ws", t1))
		assert.Equal(t, "Alfa Comercio Ltda", g.Node(id).Attributes["name"])
	})

	t.Run("scalar older loses", func(t *testing.T) {
		require.NoError(t, g.UpsertNode(id, NodeSupplier, map[string]any{
			"name": "Stale Name",
		}, "portal", t0))
		assert.Equal(t, "Alfa Comercio Ltda", g.Node(id).Attributes["name"])
	})

	t.Run("slices union", func(t *testing.T) {
		require.NoError(t, g.UpsertNode(id, NodeSupplier, map[string]any{
			"sanctions": []any{"inidoneidade"},
		}, "ceis", t1))
		require.NoError(t, g.UpsertNode(id, NodeSupplier, map[string]any{
			"sanctions": []any{"suspensao", "inidoneidade"},
		}, "ceis", t0))
		assert.ElementsMatch(t, []any{"inidoneidade", "suspensao"},
			g.Node(id).Attributes["sanctions"].([]any))
	})

	t.Run("provenance unions", func(t *testing.T) {
		assert.ElementsMatch(t, []string{"pncp", "receita-ws", "portal", "ceis"}, g.Node(id).Provenance)
	})
}

func TestUpsertEdge(t *testing.T) {
	g := New()
	sup := NodeID(NodeSupplier, "12345678000195")
	org := NodeID(NodeOrganization, "26000")
	require.NoError(t, g.UpsertNode(sup, NodeSupplier, nil, "pncp", t0))
	require.NoError(t, g.UpsertNode(org, NodeOrganization, nil, "pncp", t0))

	t.Run("unknown endpoints rejected", func(t *testing.T) {
		assert.Error(t, g.UpsertEdge("ghost", org, RelSuppliedTo, nil, "pncp"))
		assert.Error(t, g.UpsertEdge(sup, "ghost", RelSuppliedTo, nil, "pncp"))
	})

	t.Run("repeat increments weight", func(t *testing.T) {
		require.NoError(t, g.UpsertEdge(sup, org, RelSuppliedTo, nil, "pncp"))
		require.NoError(t, g.UpsertEdge(sup, org, RelSuppliedTo, nil, "portal"))

		edges := g.EdgesByRelationship(RelSuppliedTo)
		require.Len(t, edges, 1)
		assert.Equal(t, 2.0, edges[0].Weight)
		assert.ElementsMatch(t, []string{"pncp", "portal"}, edges[0].Provenance)
	})

	t.Run("different relationship is a separate edge", func(t *testing.T) {
		require.NoError(t, g.UpsertEdge(sup, org, RelSuspiciousLink, nil, "pncp"))
		assert.Equal(t, 2, g.EdgeCount())
	})
}

func TestFreeze(t *testing.T) {
	g := New()
	id := NodeID(NodeSupplier, "12345678000195")
	require.NoError(t, g.UpsertNode(id, NodeSupplier, nil, "pncp", t0))

	g.Freeze()
	assert.True(t, g.Frozen())

	assert.ErrorIs(t, g.UpsertNode(id, NodeSupplier, nil, "pncp", t1), ErrFrozen)
	assert.ErrorIs(t, g.UpsertEdge(id, id, RelPartnerOf, nil, "pncp"), ErrFrozen)

	// Reads still work.
	assert.NotNil(t, g.Node(id))
	assert.Equal(t, 1, g.NodeCount())
}

func TestNeighbors(t *testing.T) {
	g := New()
	sup := NodeID(NodeSupplier, "12345678000195")
	org := NodeID(NodeOrganization, "26000")
	con := NodeID(NodeContract, "26000", "2023", "42")
	require.NoError(t, g.UpsertNode(sup, NodeSupplier, nil, "pncp", t0))
	require.NoError(t, g.UpsertNode(org, NodeOrganization, nil, "pncp", t0))
	require.NoError(t, g.UpsertNode(con, NodeContract, nil, "pncp", t0))
	require.NoError(t, g.UpsertEdge(sup, org, RelSuppliedTo, nil, "pncp"))
	require.NoError(t, g.UpsertEdge(con, org, RelContractedBy, nil, "pncp"))

	// Both directions count as adjacency.
	assert.ElementsMatch(t, []string{sup, con}, g.Neighbors(org))
	assert.Equal(t, []string{org}, g.Neighbors(sup))

	// Relationship filter.
	assert.ElementsMatch(t, []string{sup}, g.Neighbors(org, RelSuppliedTo))
	assert.Empty(t, g.Neighbors(sup, RelPartnerOf))
}

func TestShortestPath(t *testing.T) {
	g := New()
	ids := make([]string, 5)
	for i := range ids {
		ids[i] = NodeID(NodePerson, string(rune('a'+i)))
		require.NoError(t, g.UpsertNode(ids[i], NodePerson, nil, "x", t0))
	}
	// a-b-c-d chain plus a direct a-d shortcut through e: a-e-d.
	require.NoError(t, g.UpsertEdge(ids[0], ids[1], RelPartnerOf, nil, "x"))
	require.NoError(t, g.UpsertEdge(ids[1], ids[2], RelPartnerOf, nil, "x"))
	require.NoError(t, g.UpsertEdge(ids[2], ids[3], RelPartnerOf, nil, "x"))
	require.NoError(t, g.UpsertEdge(ids[3], ids[4], RelPartnerOf, nil, "x"))

	t.Run("follows the chain", func(t *testing.T) {
		path := g.ShortestPath(ids[0], ids[3], 10)
		assert.Equal(t, []string{ids[0], ids[1], ids[2], ids[3]}, path)
	})

	t.Run("direction is ignored", func(t *testing.T) {
		path := g.ShortestPath(ids[3], ids[0], 10)
		assert.Equal(t, []string{ids[3], ids[2], ids[1], ids[0]}, path)
	})

	t.Run("bounded by max hops", func(t *testing.T) {
		assert.Nil(t, g.ShortestPath(ids[0], ids[4], 2))
		assert.NotNil(t, g.ShortestPath(ids[0], ids[4], 4))
	})

	t.Run("same node", func(t *testing.T) {
		assert.Equal(t, []string{ids[0]}, g.ShortestPath(ids[0], ids[0], 1))
	})

	t.Run("unknown node", func(t *testing.T) {
		assert.Nil(t, g.ShortestPath(ids[0], "ghost", 5))
	})
}

func TestCanonicalJSONDeterministic(t *testing.T) {
	build := func(order []string) *Graph {
		g := New()
		for _, cnpj := range order {
			id := NodeID(NodeSupplier, cnpj)
			require.NoError(t, g.UpsertNode(id, NodeSupplier, map[string]any{"cnpj": cnpj}, "pncp", t0))
		}
		a := NodeID(NodeSupplier, order[0])
		b := NodeID(NodeSupplier, order[1])
		require.NoError(t, g.UpsertEdge(a, b, RelPartnerOf, nil, "pncp"))
		g.Freeze()
		return g
	}

	first, err := build([]string{"111", "222", "333"}).CanonicalJSON()
	require.NoError(t, err)
	second, err := build([]string{"111", "222", "333"}).CanonicalJSON()
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}
