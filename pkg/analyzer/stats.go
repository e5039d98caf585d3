package analyzer

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/transparencia-br/fiscal/pkg/graph"
)

// --- attribute readers ---
//
// Graph attributes come from shape mappers and live in memory as the types
// the mappers stored; readers tolerate the numeric types JSON decoding can
// introduce.

func attrFloat(n *graph.Node, key string) (float64, bool) {
	if n == nil {
		return 0, false
	}
	switch v := n.Attributes[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func attrString(n *graph.Node, key string) string {
	if n == nil {
		return ""
	}
	s, _ := n.Attributes[key].(string)
	return s
}

func attrInt(n *graph.Node, key string) (int, bool) {
	f, ok := attrFloat(n, key)
	if !ok {
		return 0, false
	}
	return int(f), true
}

// signedAt parses the contract signing date attribute.
func signedAt(n *graph.Node) (time.Time, bool) {
	s := attrString(n, "signed_at")
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// contractSupplier returns the supplier node linked to a contract, or nil.
func contractSupplier(g *graph.Graph, contractID string) *graph.Node {
	for _, id := range g.Neighbors(contractID, graph.RelSuppliedTo) {
		if n := g.Node(id); n != nil && n.Type == graph.NodeSupplier {
			return n
		}
	}
	return nil
}

// orgContracts returns the contract nodes awarded by an organization,
// ordered by id.
func orgContracts(g *graph.Graph, orgID string) []*graph.Node {
	var out []*graph.Node
	for _, id := range g.Neighbors(orgID, graph.RelContractedBy) {
		if n := g.Node(id); n != nil && n.Type == graph.NodeContract {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// --- robust statistics ---

func median(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	s := append([]float64(nil), xs...)
	sort.Float64s(s)
	mid := len(s) / 2
	if len(s)%2 == 0 {
		return (s[mid-1] + s[mid]) / 2
	}
	return s[mid]
}

// mad is the median absolute deviation about the median.
func mad(xs []float64, med float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	devs := make([]float64, len(xs))
	for i, x := range xs {
		devs[i] = math.Abs(x - med)
	}
	return median(devs)
}

func meanStddev(xs []float64) (mean, stddev float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	stddev = math.Sqrt(ss / float64(len(xs)))
	return mean, stddev
}

// --- text similarity ---

var tokenSplit = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// tokens lower-cases and splits an object description into its word set.
func tokens(s string) map[string]bool {
	out := make(map[string]bool)
	for _, t := range tokenSplit.Split(s, -1) {
		if len(t) >= 2 {
			out[lower(t)] = true
		}
	}
	return out
}

func lower(s string) string {
	b := []rune(s)
	for i, r := range b {
		if r >= 'A' && r <= 'Z' {
			b[i] = r + ('a' - 'A')
		}
	}
	return string(b)
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if b[t] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// --- Benford ---

// benfordExpected is P(leading digit = d) under Benford's law, index 1..9.
var benfordExpected = [10]float64{
	0,
	math.Log10(2),
	math.Log10(3.0 / 2),
	math.Log10(4.0 / 3),
	math.Log10(5.0 / 4),
	math.Log10(6.0 / 5),
	math.Log10(7.0 / 6),
	math.Log10(8.0 / 7),
	math.Log10(9.0 / 8),
	math.Log10(10.0 / 9),
}

// leadingDigit returns the first significant digit of v, or 0 when v has
// none.
func leadingDigit(v float64) int {
	v = math.Abs(v)
	if v == 0 || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0
	}
	s := strconv.FormatFloat(v, 'e', -1, 64)
	if s[0] >= '1' && s[0] <= '9' {
		return int(s[0] - '0')
	}
	return 0
}

// chiSquareBenford computes the chi-square statistic of observed leading
// digit counts against Benford's expectation.
func chiSquareBenford(counts [10]int, n int) float64 {
	if n == 0 {
		return 0
	}
	var chi float64
	for d := 1; d <= 9; d++ {
		expected := benfordExpected[d] * float64(n)
		diff := float64(counts[d]) - expected
		chi += diff * diff / expected
	}
	return chi
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
