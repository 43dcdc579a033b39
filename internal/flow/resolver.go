package flow

import (
	"github.com/sells-group/flowlisa/internal/model"
	"github.com/sells-group/flowlisa/internal/weights"
)

// Resolver decides flow-level neighborhood from a unit adjacency matrix.
// Two flows are neighbors when their origins are adjacent or their
// destinations are adjacent. A flow is always its own neighbor because the
// adjacency diagonal is set.
type Resolver struct {
	adj     *weights.AdjacencyMatrix
	origins []int
	dests   []int
}

// NewResolver indexes the table's endpoints against adj. Flow unit ids are
// 1-based; adjacency rows are 0-based.
func NewResolver(adj *weights.AdjacencyMatrix, table *model.FlowTable) (*Resolver, error) {
	n := adj.Size()
	r := &Resolver{
		adj:     adj,
		origins: make([]int, table.Len()),
		dests:   make([]int, table.Len()),
	}
	for i, f := range table.Flows {
		if f.Origin < 1 || f.Origin > n {
			return nil, model.NewDataIntegrityError(i, "flow: origin unit %d outside adjacency of size %d", f.Origin, n)
		}
		if f.Destination < 1 || f.Destination > n {
			return nil, model.NewDataIntegrityError(i, "flow: destination unit %d outside adjacency of size %d", f.Destination, n)
		}
		r.origins[i] = f.Origin - 1
		r.dests[i] = f.Destination - 1
	}
	return r, nil
}

// Len returns the number of flows.
func (r *Resolver) Len() int { return len(r.origins) }

// K returns the neighbor count of the underlying adjacency.
func (r *Resolver) K() int { return r.adj.K() }

// IsNeighbor reports whether flows a and b are neighbors.
func (r *Resolver) IsNeighbor(a, b int) bool {
	return r.adj.Adjacent(r.origins[a], r.origins[b]) || r.adj.Adjacent(r.dests[a], r.dests[b])
}

// Neighbors returns the indices of every flow neighboring flow i, including i.
func (r *Resolver) Neighbors(i int) []int {
	var out []int
	for j := range r.origins {
		if r.IsNeighbor(i, j) {
			out = append(out, j)
		}
	}
	return out
}
