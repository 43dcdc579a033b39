// Package weights builds k-nearest-neighbor contiguity between spatial units.
package weights

import (
	"gonum.org/v1/gonum/mat"
)

// AdjacencyMatrix is a square 0/1 unit-to-unit contact matrix indexed by
// 0-based unit position (public id - 1). Rows are the focal unit; the relation
// is directional and need not be symmetric.
type AdjacencyMatrix struct {
	k int
	m *mat.Dense
}

func newAdjacency(n, k int) *AdjacencyMatrix {
	return &AdjacencyMatrix{k: k, m: mat.NewDense(n, n, nil)}
}

// K returns the neighborhood size the matrix was built for.
func (a *AdjacencyMatrix) K() int { return a.k }

// Size returns the number of units.
func (a *AdjacencyMatrix) Size() int {
	r, _ := a.m.Dims()
	return r
}

// Adjacent reports whether unit j is in unit i's contact set.
func (a *AdjacencyMatrix) Adjacent(i, j int) bool { return a.m.At(i, j) == 1 }

func (a *AdjacencyMatrix) set(i, j int) { a.m.Set(i, j, 1) }

// Matrix exposes the underlying 0/1 values for bulk linear algebra. Callers
// must not modify it.
func (a *AdjacencyMatrix) Matrix() mat.Matrix { return a.m }

// Neighbors returns the 0-based positions adjacent to i, including i itself.
func (a *AdjacencyMatrix) Neighbors(i int) []int {
	row := a.m.RawRowView(i)
	var out []int
	for j, v := range row {
		if v == 1 {
			out = append(out, j)
		}
	}
	return out
}

// IsSymmetric reports whether every contact is mutual.
func (a *AdjacencyMatrix) IsSymmetric() bool {
	n := a.Size()
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if a.m.At(i, j) != a.m.At(j, i) {
				return false
			}
		}
	}
	return true
}

// Symmetrize returns a new matrix where i~j whenever i→j or j→i.
func (a *AdjacencyMatrix) Symmetrize() *AdjacencyMatrix {
	n := a.Size()
	out := newAdjacency(n, a.k)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if a.Adjacent(i, j) || a.Adjacent(j, i) {
				out.set(i, j)
			}
		}
	}
	return out
}
