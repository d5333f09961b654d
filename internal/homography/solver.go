// Package homography solves the planar warp that maps the normalized device
// square onto a measured projector quadrilateral.
package homography

import (
	"errors"
	"fmt"
	"math"
)

// PivotTolerance is the smallest pivot magnitude accepted by Solve. It is
// absolute, so systems must be scaled with entries of order one, as
// CorrectionSystem builds them from normalized device coordinates.
const PivotTolerance = 1e-5

// ErrNoUniqueSolution is returned when the system is singular or too close
// to singular to solve.
var ErrNoUniqueSolution = errors.New("homography: no unique solution")

// Solve solves a·x = b by Gaussian elimination with partial pivoting. The
// inputs are not modified.
func Solve(a [][]float64, b []float64) ([]float64, error) {
	n := len(a)
	if len(b) != n {
		return nil, fmt.Errorf("solve: %d rows but %d constants", n, len(b))
	}
	m := make([][]float64, n)
	for i, row := range a {
		if len(row) != n {
			return nil, fmt.Errorf("solve: row %d has %d columns, want %d", i, len(row), n)
		}
		m[i] = append(append(make([]float64, 0, n+1), row...), b[i])
	}

	for col := 0; col < n; col++ {
		p := findPivotRow(m, col)
		if p < 0 {
			return nil, ErrNoUniqueSolution
		}
		if p != col {
			m[col], m[p] = m[p], m[col]
		}
		for r := col + 1; r < n; r++ {
			factor := m[r][col] / m[col][col]
			if factor == 0 {
				continue
			}
			for c := col; c <= n; c++ {
				m[r][c] -= factor * m[col][c]
			}
		}
	}

	x := make([]float64, n)
	for r := n - 1; r >= 0; r-- {
		sum := m[r][n]
		for c := r + 1; c < n; c++ {
			sum -= m[r][c] * x[c]
		}
		x[r] = sum / m[r][r]
		if math.IsNaN(x[r]) || math.IsInf(x[r], 0) {
			return nil, ErrNoUniqueSolution
		}
	}
	return x, nil
}

// findPivotRow returns the row at or below col with the largest magnitude in
// column col, or -1 when that magnitude is within PivotTolerance of zero.
func findPivotRow(m [][]float64, col int) int {
	best, row := math.Abs(m[col][col]), col
	for r := col + 1; r < len(m); r++ {
		if v := math.Abs(m[r][col]); v > best {
			best, row = v, r
		}
	}
	if best <= PivotTolerance {
		return -1
	}
	return row
}
