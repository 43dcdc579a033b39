package weights

import (
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/quadtree"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/flowlisa/internal/model"
	"github.com/sells-group/flowlisa/internal/registry"
)

// Index selects the nearest-neighbor search strategy.
type Index string

const (
	// IndexBrute compares every pair of centroids.
	IndexBrute Index = "brute"
	// IndexQuadtree answers each query from an orb quadtree.
	IndexQuadtree Index = "quadtree"
)

// ParseIndex validates an index name; empty selects brute force.
func ParseIndex(s string) (Index, error) {
	switch Index(s) {
	case "", IndexBrute:
		return IndexBrute, nil
	case IndexQuadtree:
		return IndexQuadtree, nil
	}
	return "", eris.Errorf("weights: unknown index %q", s)
}

// Builder builds KNN adjacency matrices from a registry.
type Builder struct {
	index Index
}

// NewBuilder creates a Builder using the given search strategy.
func NewBuilder(index Index) *Builder {
	if index == "" {
		index = IndexBrute
	}
	return &Builder{index: index}
}

// Build marks each unit's k nearest other units (planar distance between
// centroids, ties broken by lower id) and forces the diagonal to 1.
func (b *Builder) Build(reg *registry.Registry, k int) (*AdjacencyMatrix, error) {
	n := reg.Len()
	if k < 1 || k > n-1 {
		return nil, model.NewConfigurationError(k, "weights: k must be in [1, %d] for %d units", n-1, n)
	}

	pts := reg.Points()
	if err := checkDistinct(pts); err != nil {
		return nil, err
	}

	var search func(i int) []int
	switch b.index {
	case IndexQuadtree:
		qs, err := newQuadtreeSearch(reg.Bound(), pts)
		if err != nil {
			return nil, err
		}
		search = func(i int) []int { return qs.nearest(i, k) }
	default:
		search = func(i int) []int { return bruteNearest(pts, i, k) }
	}

	adj := newAdjacency(n, k)
	for i := 0; i < n; i++ {
		for _, j := range search(i) {
			adj.set(i, j)
		}
	}
	for i := 0; i < n; i++ {
		adj.set(i, i)
	}

	zap.L().Debug("weights: built knn adjacency",
		zap.Int("k", k),
		zap.Int("units", n),
		zap.String("index", string(b.index)),
		zap.Bool("symmetric", adj.IsSymmetric()),
	)
	return adj, nil
}

func checkDistinct(pts []orb.Point) error {
	seen := make(map[orb.Point]int, len(pts))
	for i, p := range pts {
		if j, dup := seen[p]; dup {
			return model.NewConfigurationError(-1, "weights: units %d and %d share centroid (%g, %g)", j+1, i+1, p[0], p[1])
		}
		seen[p] = i
	}
	return nil
}

type candidate struct {
	idx  int
	dist float64
}

// rank orders candidates by distance then position and keeps the first k.
func rank(cands []candidate, k int) []int {
	sort.Slice(cands, func(a, b int) bool {
		if cands[a].dist != cands[b].dist {
			return cands[a].dist < cands[b].dist
		}
		return cands[a].idx < cands[b].idx
	})
	if len(cands) > k {
		cands = cands[:k]
	}
	out := make([]int, len(cands))
	for i, c := range cands {
		out[i] = c.idx
	}
	return out
}

func bruteNearest(pts []orb.Point, i, k int) []int {
	cands := make([]candidate, 0, len(pts)-1)
	for j, p := range pts {
		if j == i {
			continue
		}
		cands = append(cands, candidate{idx: j, dist: planar.Distance(pts[i], p)})
	}
	return rank(cands, k)
}

type unitPoint struct {
	idx int
	p   orb.Point
}

func (u unitPoint) Point() orb.Point { return u.p }

type quadtreeSearch struct {
	qt  *quadtree.Quadtree
	pts []orb.Point
}

func newQuadtreeSearch(bound orb.Bound, pts []orb.Point) (*quadtreeSearch, error) {
	qt := quadtree.New(bound.Pad(1))
	for i, p := range pts {
		if err := qt.Add(unitPoint{idx: i, p: p}); err != nil {
			return nil, eris.Wrapf(err, "weights: index unit %d", i+1)
		}
	}
	return &quadtreeSearch{qt: qt, pts: pts}, nil
}

// nearest finds the k-th neighbor distance from the tree, then re-collects every
// unit within that radius so ties resolve exactly as in bruteNearest.
func (q *quadtreeSearch) nearest(i, k int) []int {
	center := q.pts[i]
	notSelf := func(p orb.Pointer) bool { return p.(unitPoint).idx != i }

	found := q.qt.KNearestMatching(nil, center, k, notSelf)
	radius := 0.0
	for _, p := range found {
		if d := planar.Distance(center, p.Point()); d > radius {
			radius = d
		}
	}

	// Pad the box a hair so rounding cannot drop the k-th neighbor itself.
	box := orb.Bound{Min: center, Max: center}.Pad(radius*(1+1e-9) + 1e-12)
	var cands []candidate
	for _, p := range q.qt.InBoundMatching(nil, box, notSelf) {
		d := planar.Distance(center, p.Point())
		if d <= radius {
			cands = append(cands, candidate{idx: p.(unitPoint).idx, dist: d})
		}
	}
	return rank(cands, k)
}
