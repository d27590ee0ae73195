package morphology

import (
	"sort"

	"fpgranules/internal/models"
)

// minLoopPixels is the smallest closed skeleton structure, in pixels, that counts
// as a loop rather than a junction artefact
const minLoopPixels = 8

// orthogonalFirst lists the 8-connected offsets with the 4-connected ones first
var orthogonalFirst = [8][2]int{
	{0, -1}, {1, 0}, {0, 1}, {-1, 0},
	{1, -1}, {1, 1}, {-1, 1}, {-1, -1},
}

// Skeletonize thins the foreground to 1-pixel wide, 8-connected lines.
//
// Zhang-Suen thinning runs until stable, then staircase corners are removed so every
// line pixel has exactly two neighbours.
func Skeletonize(m *models.Mask) *models.Mask {
	out := m.Clone()
	w, h := m.Width, m.Height
	remove := make([]int, 0, 256)

	for changed := true; changed; {
		changed = false
		for pass := 0; pass < 2; pass++ {
			remove = remove[:0]
			for y := 0; y < h; y++ {
				for x := 0; x < w; x++ {
					if !out.Pix[y*w+x] {
						continue
					}
					n := neighbourValues(out, x, y)
					count := countSet(n)
					if count < 2 || count > 6 || transitions(n) != 1 {
						continue
					}
					if pass == 0 {
						if (n[0] && n[2] && n[4]) || (n[2] && n[4] && n[6]) {
							continue
						}
					} else {
						if (n[0] && n[2] && n[6]) || (n[0] && n[4] && n[6]) {
							continue
						}
					}
					remove = append(remove, y*w+x)
				}
			}
			for _, i := range remove {
				out.Pix[i] = false
			}
			if len(remove) > 0 {
				changed = true
			}
		}
	}

	removeStaircase(out)
	return out
}

// removeStaircase deletes corner pixels whose two orthogonal neighbours are
// already diagonally connected
func removeStaircase(m *models.Mask) {
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			if !m.Pix[y*m.Width+x] {
				continue
			}
			n := neighbourValues(m, x, y)
			north, ne, east, se, south, sw, west, nw := n[0], n[1], n[2], n[3], n[4], n[5], n[6], n[7]
			switch {
			case north && east && !south && !west && !sw,
				east && south && !north && !west && !nw,
				south && west && !north && !east && !ne,
				west && north && !south && !east && !se:
				m.Pix[y*m.Width+x] = false
			}
		}
	}
}

func neighbourValues(m *models.Mask, x, y int) [8]bool {
	var n [8]bool
	for i, d := range neighbours8 {
		n[i] = m.Get(x+d[0], y+d[1])
	}
	return n
}

func countSet(n [8]bool) int {
	c := 0
	for _, v := range n {
		if v {
			c++
		}
	}
	return c
}

// transitions counts background->foreground steps walking once around the pixel
func transitions(n [8]bool) int {
	t := 0
	for i := 0; i < 8; i++ {
		if !n[i] && n[(i+1)%8] {
			t++
		}
	}
	return t
}

func degree(m *models.Mask, i int) int {
	return countSet(neighbourValues(m, i%m.Width, i/m.Width))
}

// skelEdge is a run of line pixels between two graph nodes. aPix and bPix are the node
// pixels the run touches; pixels is empty when the two nodes are adjacent.
type skelEdge struct {
	a, b       int
	aPix, bPix int
	pixels     []int
}

// skelGraph contracts one skeleton component: end points are nodes, each 8-connected
// cluster of junction pixels is a single node, and line pixels form the edges.
type skelGraph struct {
	nodeOf  map[int]int
	nodes   [][]int
	end     []bool
	edges   []skelEdge
	counted []bool
}

func buildSkelGraph(sk *models.Mask, comp []int) *skelGraph {
	w := sk.Width
	g := &skelGraph{nodeOf: make(map[int]int)}
	deg := make(map[int]int, len(comp))
	for _, i := range comp {
		deg[i] = degree(sk, i)
	}

	for _, i := range comp {
		if deg[i] == 2 {
			continue
		}
		if _, ok := g.nodeOf[i]; ok {
			continue
		}
		id := len(g.nodes)
		g.nodeOf[i] = id
		if deg[i] <= 1 {
			g.nodes = append(g.nodes, []int{i})
			g.end = append(g.end, true)
			continue
		}
		cluster := []int{i}
		for k := 0; k < len(cluster); k++ {
			x, y := cluster[k]%w, cluster[k]/w
			for _, o := range neighbours8 {
				nx, ny := x+o[0], y+o[1]
				if !sk.Get(nx, ny) {
					continue
				}
				ni := ny*w + nx
				if _, ok := g.nodeOf[ni]; ok || deg[ni] < 3 {
					continue
				}
				g.nodeOf[ni] = id
				cluster = append(cluster, ni)
			}
		}
		g.nodes = append(g.nodes, cluster)
		g.end = append(g.end, false)
	}

	used := make(map[int]bool)
	direct := make(map[[2]int]bool)
	for id, px := range g.nodes {
		for _, p := range px {
			x, y := p%w, p/w
			for _, o := range neighbours8 {
				nx, ny := x+o[0], y+o[1]
				if !sk.Get(nx, ny) {
					continue
				}
				q := ny*w + nx
				if other, ok := g.nodeOf[q]; ok {
					key := [2]int{min(id, other), max(id, other)}
					if other != id && !direct[key] {
						direct[key] = true
						g.edges = append(g.edges, skelEdge{a: id, b: other, aPix: p, bPix: q})
					}
					continue
				}
				if !used[q] {
					g.edges = append(g.edges, g.walk(sk, id, p, q, used))
				}
			}
		}
	}
	g.countEdges()
	return g
}

// walk follows line pixels from start, next to node pixel fromPix, to the next node
func (g *skelGraph) walk(sk *models.Mask, from, fromPix, start int, used map[int]bool) skelEdge {
	w := sk.Width
	e := skelEdge{a: from, aPix: fromPix, b: from, bPix: fromPix}
	prev, cur := fromPix, start
	for {
		e.pixels = append(e.pixels, cur)
		used[cur] = true
		next := -1
		x, y := cur%w, cur/w
		for _, o := range neighbours8 {
			nx, ny := x+o[0], y+o[1]
			if !sk.Get(nx, ny) {
				continue
			}
			n := ny*w + nx
			if n == prev || used[n] {
				continue
			}
			next = n
			break
		}
		if next < 0 {
			return e
		}
		if id, ok := g.nodeOf[next]; ok {
			e.b, e.bPix = id, next
			return e
		}
		prev, cur = cur, next
	}
}

// countEdges marks the edges that take part in the cycle rank. Closed structures
// shorter than minLoopPixels are junction artefacts of the thinning, not holes.
func (g *skelGraph) countEdges() {
	g.counted = make([]bool, len(g.edges))
	order := make([]int, len(g.edges))
	for k := range order {
		order[k] = k
	}
	sort.SliceStable(order, func(i, j int) bool {
		return len(g.edges[order[i]].pixels) < len(g.edges[order[j]].pixels)
	})

	shortest := make(map[[2]int]int)
	for _, k := range order {
		e := g.edges[k]
		if e.a == e.b {
			g.counted[k] = len(e.pixels)+1 >= minLoopPixels
			continue
		}
		key := [2]int{min(e.a, e.b), max(e.a, e.b)}
		first, seen := shortest[key]
		if !seen {
			shortest[key] = len(e.pixels)
			g.counted[k] = true
			continue
		}
		g.counted[k] = first+len(e.pixels)+2 >= minLoopPixels
	}
}

// cycleRank is edges - nodes + 1 over the counted edges of the connected component
func (g *skelGraph) cycleRank() int {
	e := 0
	for _, c := range g.counted {
		if c {
			e++
		}
	}
	return e - len(g.nodes) + 1
}

// PruneSkeleton removes side branches from each connected skeleton component once.
// Components containing a closed loop lose every end branch; loop-free trees keep
// only their longest end-to-end path, which leaves simple paths as they are. Pure
// loops have no end points and are untouched.
func PruneSkeleton(sk *models.Mask) *models.Mask {
	out := sk.Clone()
	for _, comp := range components8(sk) {
		g := buildSkelGraph(sk, comp)
		if len(g.nodes) < 2 {
			continue
		}
		if g.cycleRank() > 0 {
			g.removeEndBranches(out)
			continue
		}
		keep := g.longestPath(sk.Width)
		for _, i := range comp {
			out.Pix[i] = keep[i]
		}
	}
	return out
}

func (g *skelGraph) removeEndBranches(out *models.Mask) {
	for _, e := range g.edges {
		var tip int
		switch {
		case g.end[e.a] && !g.end[e.b]:
			tip = e.a
		case g.end[e.b] && !g.end[e.a]:
			tip = e.b
		default:
			continue
		}
		for _, i := range e.pixels {
			out.Pix[i] = false
		}
		for _, i := range g.nodes[tip] {
			out.Pix[i] = false
		}
	}
}

// longestPath returns the pixels of the longest end-to-end path of a tree component,
// found by two farthest-node sweeps. Junction clusters on the path keep only the
// pixels linking the path's two edges.
func (g *skelGraph) longestPath(w int) map[int]bool {
	adj := make([][]int, len(g.nodes))
	for k, e := range g.edges {
		if g.counted[k] {
			adj[e.a] = append(adj[e.a], k)
			adj[e.b] = append(adj[e.b], k)
		}
	}

	sweep := func(from int) (far int, via []int) {
		dist := make([]int, len(g.nodes))
		via = make([]int, len(g.nodes))
		for i := range dist {
			dist[i] = -1
			via[i] = -1
		}
		dist[from] = 0
		far = from
		stack := []int{from}
		for len(stack) > 0 {
			n := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			for _, k := range adj[n] {
				e := g.edges[k]
				m := e.b
				if m == n {
					m = e.a
				}
				if dist[m] >= 0 {
					continue
				}
				dist[m] = dist[n] + len(e.pixels) + 1
				via[m] = k
				if dist[m] > dist[far] {
					far = m
				}
				stack = append(stack, m)
			}
		}
		return far, via
	}

	start := 0
	for id, isEnd := range g.end {
		if isEnd {
			start = id
			break
		}
	}
	a, _ := sweep(start)
	b, via := sweep(a)

	keep := make(map[int]bool)
	entries := make(map[int][]int)
	for n := b; n != a; {
		e := g.edges[via[n]]
		for _, i := range e.pixels {
			keep[i] = true
		}
		entries[e.a] = append(entries[e.a], e.aPix)
		entries[e.b] = append(entries[e.b], e.bPix)
		if e.a == n {
			n = e.b
		} else {
			n = e.a
		}
	}
	if a == b {
		entries[a] = nil
	}

	for n, pix := range entries {
		if len(pix) == 2 && !g.end[n] {
			for _, i := range g.clusterPath(w, n, pix[0], pix[1]) {
				keep[i] = true
			}
			continue
		}
		for _, i := range g.nodes[n] {
			keep[i] = true
		}
	}
	return keep
}

// clusterPath is the shortest pixel path from a to b inside junction cluster n,
// preferring orthogonal steps
func (g *skelGraph) clusterPath(w, n, a, b int) []int {
	parent := map[int]int{a: a}
	queue := []int{a}
	for k := 0; k < len(queue) && queue[k] != b; k++ {
		x, y := queue[k]%w, queue[k]/w
		for _, o := range orthogonalFirst {
			nx, ny := x+o[0], y+o[1]
			if nx < 0 || nx >= w || ny < 0 {
				continue
			}
			q := ny*w + nx
			if id, ok := g.nodeOf[q]; !ok || id != n {
				continue
			}
			if _, seen := parent[q]; seen {
				continue
			}
			parent[q] = queue[k]
			queue = append(queue, q)
		}
	}
	if _, ok := parent[b]; !ok {
		return g.nodes[n]
	}
	path := []int{b}
	for p := b; p != a; {
		p = parent[p]
		path = append(path, p)
	}
	return path
}

// components8 returns the pixel indices of each 8-connected foreground component
// in row-major discovery order
func components8(m *models.Mask) [][]int {
	w, h := m.Width, m.Height
	seen := make([]bool, len(m.Pix))
	var comps [][]int
	for start := range m.Pix {
		if !m.Pix[start] || seen[start] {
			continue
		}
		seen[start] = true
		comp := []int{start}
		for k := 0; k < len(comp); k++ {
			x, y := comp[k]%w, comp[k]/w
			for _, d := range neighbours8 {
				nx, ny := x+d[0], y+d[1]
				if nx < 0 || ny < 0 || nx >= w || ny >= h {
					continue
				}
				ni := ny*w + nx
				if m.Pix[ni] && !seen[ni] {
					seen[ni] = true
					comp = append(comp, ni)
				}
			}
		}
		comps = append(comps, comp)
	}
	return comps
}
