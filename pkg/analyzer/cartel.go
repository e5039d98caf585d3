package analyzer

import (
	"context"
	"sort"

	"github.com/transparencia-br/fiscal/pkg/graph"
	"github.com/transparencia-br/fiscal/pkg/models"
)

// CartelClique projects bidding participation onto a co-bidding graph and
// flags tight supplier groups: two suppliers share a projection edge when
// they bid on the same process at least CartelCoBids times, and a group is
// flagged when it has at least CartelMinClique members and its edge density
// reaches CartelDensity.
type CartelClique struct{}

func (*CartelClique) Kind() models.AnomalyKind { return models.AnomalyCartelClique }

func (*CartelClique) Analyze(_ context.Context, g *graph.Graph, cfg Config) ([]models.Anomaly, error) {
	coBids := projectCoBidding(g)

	adj := make(map[string]map[string]bool)
	link := func(a, b string) {
		if adj[a] == nil {
			adj[a] = make(map[string]bool)
		}
		adj[a][b] = true
	}
	for pair, count := range coBids {
		if count >= cfg.CartelCoBids {
			link(pair.a, pair.b)
			link(pair.b, pair.a)
		}
	}

	var out []models.Anomaly
	for _, group := range denseGroups(adj, cfg.CartelMinClique, cfg.CartelDensity) {
		density := groupDensity(adj, group)
		shared := 0
		for pair, count := range coBids {
			if count >= cfg.CartelCoBids && contains(group, pair.a) && contains(group, pair.b) {
				shared += count
			}
		}
		out = append(out, models.Anomaly{
			AnomalyID:     anomalyID(models.AnomalyCartelClique, group, ""),
			Kind:          models.AnomalyCartelClique,
			Severity:      cartelSeverity(len(group)),
			Confidence:    clamp01(density),
			AffectedNodes: group,
			Evidence: map[string]any{
				"group_size":     len(group),
				"density":        density,
				"shared_co_bids": shared,
			},
			Recommendation: "cross-check bid outcomes and ownership links among the co-bidding suppliers",
		})
	}
	return out, nil
}

type supplierPair struct{ a, b string }

// projectCoBidding counts, per supplier pair, how many bidding processes
// both participated in.
func projectCoBidding(g *graph.Graph) map[supplierPair]int {
	out := make(map[supplierPair]int)
	for _, proc := range g.NodesByType(graph.NodeBiddingProcess) {
		var suppliers []string
		for _, id := range g.Neighbors(proc.ID, graph.RelSuppliedTo) {
			if n := g.Node(id); n != nil && n.Type == graph.NodeSupplier {
				suppliers = append(suppliers, id)
			}
		}
		sort.Strings(suppliers)
		for i := 0; i < len(suppliers); i++ {
			for j := i + 1; j < len(suppliers); j++ {
				out[supplierPair{a: suppliers[i], b: suppliers[j]}]++
			}
		}
	}
	return out
}

// denseGroups returns the flagged supplier groups, each sorted, ordered by
// first member. Connected components that meet the density bar are flagged
// whole; sparser components fall back to their maximal cliques.
func denseGroups(adj map[string]map[string]bool, minSize int, minDensity float64) [][]string {
	nodes := make([]string, 0, len(adj))
	for n := range adj {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)

	visited := make(map[string]bool)
	var groups [][]string
	for _, start := range nodes {
		if visited[start] {
			continue
		}
		comp := component(adj, start, visited)
		if len(comp) < minSize {
			continue
		}
		if groupDensity(adj, comp) >= minDensity {
			groups = append(groups, comp)
			continue
		}
		for _, clique := range maximalCliques(adj, comp) {
			if len(clique) >= minSize {
				groups = append(groups, clique)
			}
		}
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i][0] < groups[j][0] })
	return groups
}

func component(adj map[string]map[string]bool, start string, visited map[string]bool) []string {
	var comp []string
	stack := []string{start}
	visited[start] = true
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		comp = append(comp, n)
		for next := range adj[n] {
			if !visited[next] {
				visited[next] = true
				stack = append(stack, next)
			}
		}
	}
	sort.Strings(comp)
	return comp
}

func groupDensity(adj map[string]map[string]bool, group []string) float64 {
	n := len(group)
	if n < 2 {
		return 0
	}
	edges := 0
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if adj[group[i]][group[j]] {
				edges++
			}
		}
	}
	return float64(2*edges) / float64(n*(n-1))
}

// maximalCliques is Bron-Kerbosch without pivoting, adequate for the small
// projection graphs an investigation produces.
func maximalCliques(adj map[string]map[string]bool, nodes []string) [][]string {
	var out [][]string
	var recurse func(r, p, x []string)
	recurse = func(r, p, x []string) {
		if len(p) == 0 && len(x) == 0 {
			clique := append([]string(nil), r...)
			sort.Strings(clique)
			out = append(out, clique)
			return
		}
		for i := 0; i < len(p); i++ {
			v := p[i]
			var np, nx []string
			for _, u := range p[i+1:] {
				if adj[v][u] {
					np = append(np, u)
				}
			}
			for _, u := range x {
				if adj[v][u] {
					nx = append(nx, u)
				}
			}
			recurse(append(r, v), np, nx)
			x = append(x, v)
		}
	}
	recurse(nil, append([]string(nil), nodes...), nil)
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}

func cartelSeverity(size int) models.Severity {
	if size >= 5 {
		return models.SeverityCritical
	}
	return models.SeverityHigh
}

func contains(xs []string, v string) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}
