// Package graph holds the per-investigation entity multigraph. The graph
// is built from raw stage results by capability shape mappers, frozen
// before analyzers run, and discarded with the investigation. Nodes are
// kept in an arena keyed by stable canonical ids; all cross-references are
// ids, never pointers.
package graph

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// NodeType labels graph nodes.
type NodeType string

const (
	NodeContract       NodeType = "contract"
	NodeSupplier       NodeType = "supplier"
	NodeOrganization   NodeType = "organization"
	NodePerson         NodeType = "person"
	NodeLocation       NodeType = "location"
	NodeMoney          NodeType = "money"
	NodeBiddingProcess NodeType = "bidding_process"
)

// Relationship labels directed edges.
type Relationship string

const (
	RelContractedBy   Relationship = "contracted_by"
	RelSuppliedTo     Relationship = "supplied_to"
	RelLocatedIn      Relationship = "located_in"
	RelManagedBy      Relationship = "managed_by"
	RelPartnerOf      Relationship = "partner_of"
	RelDonatedTo      Relationship = "donated_to"
	RelSuspiciousLink Relationship = "suspicious_link"
)

// ErrFrozen is returned for any write after Freeze.
var ErrFrozen = errors.New("graph frozen")

// Node is one entity in the graph. Attributes hold mapper-extracted fields;
// Provenance lists every endpoint that contributed to the node.
type Node struct {
	ID         string         `json:"id"`
	Type       NodeType       `json:"type"`
	Attributes map[string]any `json:"attributes,omitempty"`
	Provenance []string       `json:"provenance"`

	updatedAt time.Time
}

// Edge is one directed, typed relationship. Duplicate (from, to,
// relationship) triples collapse into a single edge whose weight counts
// the occurrences.
type Edge struct {
	ID           string         `json:"id"`
	From         string         `json:"from"`
	To           string         `json:"to"`
	Relationship Relationship   `json:"relationship"`
	Weight       float64        `json:"weight"`
	Attributes   map[string]any `json:"attributes,omitempty"`
	Provenance   []string       `json:"provenance"`
}

// Graph is the mutable-until-frozen entity graph. Mutation happens only
// during ingestion (single builder goroutine); the mutex guards against
// accidental concurrent use, not a supported pattern.
type Graph struct {
	mu     sync.RWMutex
	nodes  map[string]*Node
	edges  map[string]*Edge
	out    map[string][]string // node id -> outgoing edge ids
	in     map[string][]string // node id -> incoming edge ids
	frozen bool
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		nodes: make(map[string]*Node),
		edges: make(map[string]*Edge),
		out:   make(map[string][]string),
		in:    make(map[string][]string),
	}
}

// NodeID derives the canonical node id from a type and its natural key
// parts. Deterministic: the same entity always maps to the same id.
func NodeID(t NodeType, keyParts ...string) string {
	key := string(t) + ":" + strings.Join(keyParts, "/")
	sum := sha256.Sum256([]byte(key))
	return string(t) + "-" + hex.EncodeToString(sum[:8])
}

// UpsertNode merges a node into the graph. New nodes are inserted as-is;
// existing nodes merge attributes (set union for slices, newest-wins by
// fetchedAt for scalars) and union provenance.
func (g *Graph) UpsertNode(id string, t NodeType, attrs map[string]any, endpointID string, fetchedAt time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.frozen {
		return ErrFrozen
	}

	node, ok := g.nodes[id]
	if !ok {
		node = &Node{
			ID:         id,
			Type:       t,
			Attributes: make(map[string]any, len(attrs)),
			updatedAt:  fetchedAt,
		}
		for k, v := range attrs {
			node.Attributes[k] = v
		}
		node.Provenance = []string{endpointID}
		g.nodes[id] = node
		return nil
	}

	newer := !fetchedAt.Before(node.updatedAt)
	for k, v := range attrs {
		existing, present := node.Attributes[k]
		if !present {
			node.Attributes[k] = v
			continue
		}
		if merged, ok := unionSlices(existing, v); ok {
			node.Attributes[k] = merged
			continue
		}
		if newer {
			node.Attributes[k] = v
		}
	}
	if newer {
		node.updatedAt = fetchedAt
	}
	node.Provenance = unionStrings(node.Provenance, endpointID)
	return nil
}

// UpsertEdge merges a directed edge. A repeated (from, to, relationship)
// triple increments the weight and unions provenance; attributes from the
// latest upsert win on conflict.
func (g *Graph) UpsertEdge(from, to string, rel Relationship, attrs map[string]any, endpointID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.frozen {
		return ErrFrozen
	}
	if _, ok := g.nodes[from]; !ok {
		return fmt.Errorf("edge from unknown node %q", from)
	}
	if _, ok := g.nodes[to]; !ok {
		return fmt.Errorf("edge to unknown node %q", to)
	}

	id := edgeID(from, to, rel)
	edge, ok := g.edges[id]
	if !ok {
		edge = &Edge{
			ID:           id,
			From:         from,
			To:           to,
			Relationship: rel,
			Weight:       1,
			Attributes:   make(map[string]any, len(attrs)),
			Provenance:   []string{endpointID},
		}
		for k, v := range attrs {
			edge.Attributes[k] = v
		}
		g.edges[id] = edge
		g.out[from] = append(g.out[from], id)
		g.in[to] = append(g.in[to], id)
		return nil
	}

	edge.Weight++
	for k, v := range attrs {
		edge.Attributes[k] = v
	}
	edge.Provenance = unionStrings(edge.Provenance, endpointID)
	return nil
}

func edgeID(from, to string, rel Relationship) string {
	sum := sha256.Sum256([]byte(from + "|" + to + "|" + string(rel)))
	return "edge-" + hex.EncodeToString(sum[:8])
}

// Freeze seals the graph. Further writes fail with ErrFrozen.
func (g *Graph) Freeze() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.frozen = true
}

// Frozen reports whether the graph is sealed.
func (g *Graph) Frozen() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.frozen
}

// Node returns the node with the given id, or nil.
func (g *Graph) Node(id string) *Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[id]
}

// NodesByType returns all nodes of the given type, sorted by id.
func (g *Graph) NodesByType(t NodeType) []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []*Node
	for _, n := range g.nodes {
		if n.Type == t {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// EdgesByRelationship returns all edges with the given relationship,
// sorted by (from, to).
func (g *Graph) EdgesByRelationship(rel Relationship) []*Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []*Edge
	for _, e := range g.edges {
		if e.Relationship == rel {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].To < out[j].To
	})
	return out
}

// Neighbors returns the ids of nodes adjacent to nodeID (either edge
// direction), optionally filtered by relationship. Sorted ascending.
func (g *Graph) Neighbors(nodeID string, rel ...Relationship) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	match := func(e *Edge) bool {
		if len(rel) == 0 {
			return true
		}
		for _, r := range rel {
			if e.Relationship == r {
				return true
			}
		}
		return false
	}

	seen := make(map[string]bool)
	for _, eid := range g.out[nodeID] {
		if e := g.edges[eid]; match(e) {
			seen[e.To] = true
		}
	}
	for _, eid := range g.in[nodeID] {
		if e := g.edges[eid]; match(e) {
			seen[e.From] = true
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// ShortestPath finds a minimum-hop path between a and b, ignoring edge
// direction, bounded by maxHops. Returns nil when no path exists within
// the bound.
func (g *Graph) ShortestPath(a, b string, maxHops int) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if a == b {
		return []string{a}
	}
	if _, ok := g.nodes[a]; !ok {
		return nil
	}
	if _, ok := g.nodes[b]; !ok {
		return nil
	}

	prev := map[string]string{a: ""}
	frontier := []string{a}
	for hop := 0; hop < maxHops && len(frontier) > 0; hop++ {
		var next []string
		for _, cur := range frontier {
			for _, nb := range g.neighborsLocked(cur) {
				if _, visited := prev[nb]; visited {
					continue
				}
				prev[nb] = cur
				if nb == b {
					return buildPath(prev, a, b)
				}
				next = append(next, nb)
			}
		}
		frontier = next
	}
	return nil
}

// neighborsLocked is Neighbors without locking; callers hold g.mu.
func (g *Graph) neighborsLocked(nodeID string) []string {
	seen := make(map[string]bool)
	for _, eid := range g.out[nodeID] {
		seen[g.edges[eid].To] = true
	}
	for _, eid := range g.in[nodeID] {
		seen[g.edges[eid].From] = true
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func buildPath(prev map[string]string, a, b string) []string {
	var path []string
	for cur := b; cur != ""; cur = prev[cur] {
		path = append(path, cur)
		if cur == a {
			break
		}
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.edges)
}

// CountByNodeType returns node counts keyed by type name.
func (g *Graph) CountByNodeType() map[string]int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[string]int)
	for _, n := range g.nodes {
		out[string(n.Type)]++
	}
	return out
}

// CountByEdgeType returns edge counts keyed by relationship name.
func (g *Graph) CountByEdgeType() map[string]int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[string]int)
	for _, e := range g.edges {
		out[string(e.Relationship)]++
	}
	return out
}

// CanonicalJSON serializes the frozen graph deterministically: nodes
// sorted by id, edges sorted by (from, to, relationship). Identical raw
// result streams produce byte-identical output.
func (g *Graph) CanonicalJSON() ([]byte, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	nodes := make([]*Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	for _, n := range nodes {
		sort.Strings(n.Provenance)
	}

	edges := make([]*Edge, 0, len(g.edges))
	for _, e := range g.edges {
		edges = append(edges, e)
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		if edges[i].To != edges[j].To {
			return edges[i].To < edges[j].To
		}
		return edges[i].Relationship < edges[j].Relationship
	})
	for _, e := range edges {
		sort.Strings(e.Provenance)
	}

	return json.Marshal(struct {
		Nodes []*Node `json:"nodes"`
		Edges []*Edge `json:"edges"`
	}{nodes, edges})
}

func unionStrings(existing []string, value string) []string {
	for _, v := range existing {
		if v == value {
			return existing
		}
	}
	return append(existing, value)
}

// unionSlices merges two []any attribute values as sets. Returns false
// when either value is not a slice (scalar policy applies instead).
func unionSlices(a, b any) (any, bool) {
	as, aok := a.([]any)
	bs, bok := b.([]any)
	if !aok || !bok {
		return nil, false
	}
	seen := make(map[string]bool, len(as))
	out := make([]any, 0, len(as)+len(bs))
	for _, v := range as {
		seen[fmt.Sprintf("%v", v)] = true
		out = append(out, v)
	}
	for _, v := range bs {
		key := fmt.Sprintf("%v", v)
		if !seen[key] {
			seen[key] = true
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return fmt.Sprintf("%v", out[i]) < fmt.Sprintf("%v", out[j])
	})
	return out, true
}
