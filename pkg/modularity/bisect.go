package modularity

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Split is one spectral bisection of a modularity matrix. Community indices
// refer to rows of the matrix that was bisected.
type Split struct {
	Community1 []int   `json:"community1"`
	Community2 []int   `json:"community2"`
	Gain       float64 `json:"gain"`
	Eigenvalue float64 `json:"eigenvalue"`
}

// Divides reports whether both sides of the split are non-empty
func (s Split) Divides() bool {
	return len(s.Community1) > 0 && len(s.Community2) > 0
}

// Bisect splits the nodes of b by the sign of the leading eigenvector of
// B + Bᵀ and returns the modularity gain sᵀ(B+Bᵀ)s / 4m of that split.
// Positive entries go to Community1; zero and negative entries to Community2.
func Bisect(b mat.Matrix, m float64) (Split, error) {
	n, c := b.Dims()
	if n != c {
		return Split{}, ErrNotSquare
	}
	if n == 0 {
		return Split{}, nil
	}

	sym := symmetrize(b)

	var es mat.EigenSym
	if ok := es.Factorize(sym, true); !ok {
		return Split{}, ErrEigenFailed
	}
	values := es.Values(nil)
	var vectors mat.Dense
	es.VectorsTo(&vectors)

	lead := 0
	for i, v := range values {
		if v > values[lead] {
			lead = i
		}
	}
	v := mat.Col(nil, lead, &vectors)
	orient(v)

	split := Split{
		Community1: make([]int, 0),
		Community2: make([]int, 0),
		Eigenvalue: values[lead],
	}
	s := make([]float64, n)
	for i, x := range v {
		if x > 0 {
			split.Community1 = append(split.Community1, i)
			s[i] = 1
		} else {
			split.Community2 = append(split.Community2, i)
			s[i] = -1
		}
	}

	if m != 0 {
		sv := mat.NewVecDense(n, s)
		split.Gain = mat.Inner(sv, sym, sv) / (4 * m)
	}
	return split, nil
}

// orient fixes the sign of an eigenvector so its largest-magnitude entry
// (lowest index on ties) is positive.
func orient(v []float64) {
	pivot := 0
	for i, x := range v {
		if math.Abs(x) > math.Abs(v[pivot]) {
			pivot = i
		}
	}
	if v[pivot] < 0 {
		for i := range v {
			v[i] = -v[i]
		}
	}
}
