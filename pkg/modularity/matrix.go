// Package modularity detects hierarchical community structure in a weighted
// directed graph by recursive spectral bisection of its modularity matrix.
package modularity

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrNotSquare is returned for adjacency matrices that are not square
	ErrNotSquare = errors.New("matrix is not square")

	// ErrDimensionMismatch is returned when labels do not match the matrix order
	ErrDimensionMismatch = errors.New("label count does not match matrix order")

	// ErrEigenFailed is returned when the eigen-decomposition does not converge
	ErrEigenFailed = errors.New("eigen-decomposition failed")
)

// Similarity converts a distance matrix into a similarity matrix by inverting
// every entry. Infinite results (zero distances, including the diagonal) and
// infinite distances both become zero similarity.
func Similarity(dist mat.Matrix) *mat.Dense {
	r, c := dist.Dims()
	sim := mat.NewDense(r, c, nil)
	sim.Apply(func(_, _ int, d float64) float64 {
		s := 1 / d
		if math.IsInf(s, 0) || math.IsNaN(s) {
			return 0
		}
		return s
	}, dist)
	return sim
}

// NewMatrix builds the directed modularity matrix B = A - k_out k_inᵀ / m
// where m is half the total weight of A. It returns a zero matrix when m == 0.
func NewMatrix(a mat.Matrix) (*mat.Dense, float64) {
	n, _ := a.Dims()
	b := mat.NewDense(n, n, nil)
	b.Copy(a)

	kOut := make([]float64, n)
	kIn := make([]float64, n)
	for i := 0; i < n; i++ {
		kOut[i] = floats.Sum(mat.Row(nil, i, a))
		kIn[i] = floats.Sum(mat.Col(nil, i, a))
	}

	m := floats.Sum(kOut) / 2
	if m == 0 {
		b.Zero()
		return b, 0
	}

	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			b.Set(i, j, b.At(i, j)-kOut[i]*kIn[j]/m)
		}
	}
	return b, m
}

// Restrict returns the generalized modularity matrix of the subgraph spanned
// by idx: B restricted to idx with each row sum removed from its diagonal.
func Restrict(b mat.Matrix, idx []int) *mat.Dense {
	k := len(idx)
	sub := mat.NewDense(k, k, nil)
	for r, i := range idx {
		for c, j := range idx {
			sub.Set(r, c, b.At(i, j))
		}
	}
	for r := 0; r < k; r++ {
		rowSum := floats.Sum(sub.RawRowView(r))
		sub.Set(r, r, sub.At(r, r)-rowSum)
	}
	return sub
}

// symmetrize returns B + Bᵀ
func symmetrize(b mat.Matrix) *mat.SymDense {
	n, _ := b.Dims()
	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sym.SetSym(i, j, b.At(i, j)+b.At(j, i))
		}
	}
	return sym
}
