package planner

import (
	"fmt"
	"sort"

	"github.com/habedi/glm/catalog"
	"github.com/habedi/glm/version"
)

// graph is the patch graph: nodes are version keys, edges are patches.
type graph struct {
	edges map[string][]catalog.Artifact
	nodes map[string]version.Token
}

func newGraph(patches []catalog.Artifact) *graph {
	g := &graph{edges: map[string][]catalog.Artifact{}, nodes: map[string]version.Token{}}
	for _, p := range patches {
		// patches must move forward; this keeps the graph acyclic
		if !p.From.Less(p.To) {
			continue
		}
		from := p.From.Key()
		g.edges[from] = append(g.edges[from], p)
		g.nodes[from] = p.From
		g.nodes[p.To.Key()] = p.To
	}
	for _, out := range g.edges {
		sort.Slice(out, func(i, j int) bool {
			if cmp := version.Compare(out[i].To, out[j].To); cmp != 0 {
				return cmp < 0
			}
			if out[i].Size != out[j].Size {
				return out[i].Size < out[j].Size
			}
			return out[i].Path < out[j].Path
		})
	}
	return g
}

// target is the greatest version among installers and everything reachable from them.
func (g *graph) target(installers []catalog.Artifact) version.Token {
	var best version.Token
	seen := map[string]bool{}
	var queue []version.Token
	for _, in := range installers {
		if !seen[in.To.Key()] {
			seen[in.To.Key()] = true
			queue = append(queue, in.To)
		}
	}
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		if best.IsZero() || version.Compare(v, best) > 0 {
			best = v
		}
		for _, e := range g.edges[v.Key()] {
			if k := e.To.Key(); !seen[k] {
				seen[k] = true
				queue = append(queue, e.To)
			}
		}
	}
	return best
}

type cost struct {
	steps int
	size  int64
}

func (c cost) less(o cost) bool {
	if c.steps != o.steps {
		return c.steps < o.steps
	}
	return c.size < o.size
}

// shortestPath finds the patch chain from one version to another with the fewest steps,
// then the smallest total size. Equal-cost alternatives resolve by edge order, which is
// fixed by newGraph.
func (g *graph) shortestPath(from, to version.Token) ([]catalog.Artifact, bool) {
	src, dst := from.Key(), to.Key()
	if src == dst {
		return nil, true
	}

	dist := map[string]cost{src: {}}
	prev := map[string]catalog.Artifact{}
	done := map[string]bool{}

	for {
		// pick the cheapest unsettled node; ties go to the lower version
		cur, found := "", false
		for k, c := range dist {
			if done[k] {
				continue
			}
			if !found || c.less(dist[cur]) || (!dist[cur].less(c) && g.lowerKey(k, cur)) {
				cur, found = k, true
			}
		}
		if !found {
			return nil, false
		}
		if cur == dst {
			break
		}
		done[cur] = true

		for _, e := range g.edges[cur] {
			next := e.To.Key()
			if done[next] {
				continue
			}
			nc := cost{steps: dist[cur].steps + 1, size: dist[cur].size + e.Size}
			if old, ok := dist[next]; !ok || nc.less(old) {
				dist[next] = nc
				prev[next] = e
			}
		}
	}

	var chain []catalog.Artifact
	for k := dst; k != src; {
		e := prev[k]
		chain = append(chain, e)
		k = e.From.Key()
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, true
}

func (g *graph) lowerKey(a, b string) bool {
	ta, okA := g.nodes[a]
	tb, okB := g.nodes[b]
	if okA && okB {
		if cmp := version.Compare(ta, tb); cmp != 0 {
			return cmp < 0
		}
	}
	return a < b
}

// fullInstall returns an installer for the target, or the highest installer from which a
// patch chain reaches it followed by that chain.
func (g *graph) fullInstall(installers []catalog.Artifact, target version.Token) ([]catalog.Artifact, error) {
	ordered := append([]catalog.Artifact(nil), installers...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return version.Compare(ordered[i].To, ordered[j].To) > 0
	})

	for _, in := range ordered {
		if in.To.Equal(target) {
			return []catalog.Artifact{in}, nil
		}
	}
	for _, in := range ordered {
		if version.Compare(in.To, target) > 0 {
			continue
		}
		if chain, ok := g.shortestPath(in.To, target); ok {
			return append([]catalog.Artifact{in}, chain...), nil
		}
	}
	return nil, fmt.Errorf("no installer reaches version %s", target)
}
