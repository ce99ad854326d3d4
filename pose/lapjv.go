package pose

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// large stands in for an infinite dual value
const large = 1000000.0

// jvSolver holds the working state of the Jonker-Volgenant shortest
// augmenting path algorithm for a dense square cost matrix
type jvSolver struct {
	n    int
	cost [][]float64
	// x is the column assigned to each row, y the row assigned to each column
	x, y []int
	// v are the column dual values
	v []float64
	// free holds the rows still unassigned
	free []int
}

// solveJV returns the minimum cost assignment of a square cost matrix as the
// column chosen for each row and the row chosen for each column
func solveJV(cost [][]float64) ([]int, []int, error) {

	n := len(cost)

	s := &jvSolver{
		n:    n,
		cost: cost,
		x:    make([]int, n),
		y:    make([]int, n),
		v:    make([]float64, n),
		free: make([]int, n),
	}

	nFree := s.reduceColumns()

	for pass := 0; nFree > 0 && pass < 2; pass++ {
		nFree = s.augmentRows(nFree)
	}

	if nFree > 0 {
		if err := s.augment(nFree); err != nil {
			return nil, nil, err
		}
	}

	return s.x, s.y, nil
}

// reduceColumns performs column reduction and reduction transfer, returning
// the number of free rows left
func (s *jvSolver) reduceColumns() int {

	unique := make([]bool, s.n)

	for i := 0; i < s.n; i++ {
		s.x[i] = -1
		s.v[i] = large
		s.y[i] = 0
	}

	for i := 0; i < s.n; i++ {
		for j := 0; j < s.n; j++ {
			if c := s.cost[i][j]; c < s.v[j] {
				s.v[j] = c
				s.y[j] = i
			}
		}
	}

	for i := range unique {
		unique[i] = true
	}

	for j := s.n - 1; j >= 0; j-- {
		i := s.y[j]

		if s.x[i] < 0 {
			s.x[i] = j
		} else {
			unique[i] = false
			s.y[j] = -1
		}
	}

	nFree := 0

	for i := 0; i < s.n; i++ {

		if s.x[i] < 0 {
			s.free[nFree] = i
			nFree++
			continue
		}

		if !unique[i] {
			continue
		}

		j := s.x[i]
		minVal := large

		for j2 := 0; j2 < s.n; j2++ {
			if j2 == j {
				continue
			}

			if c := s.cost[i][j2] - s.v[j2]; c < minVal {
				minVal = c
			}
		}

		s.v[j] -= minVal
	}

	return nFree
}

// augmentRows performs augmenting row reduction and returns the number of
// rows still free
func (s *jvSolver) augmentRows(nFree int) int {

	current := 0
	newFree := 0
	count := 0

	for current < nFree {

		count++
		freeI := s.free[current]
		current++

		// find the two lowest reduced costs of the free row
		j1 := 0
		u1 := s.cost[freeI][0] - s.v[0]
		j2 := -1
		u2 := large

		for j := 1; j < s.n; j++ {
			c := s.cost[freeI][j] - s.v[j]

			if c >= u2 {
				continue
			}

			if c >= u1 {
				u2 = c
				j2 = j
			} else {
				u2 = u1
				u1 = c
				j2 = j1
				j1 = j
			}
		}

		i0 := s.y[j1]
		u1New := s.v[j1] - (u2 - u1)
		lowers := u1New < s.v[j1]

		if count < current*s.n {

			if lowers {
				s.v[j1] = u1New
			} else if i0 >= 0 && j2 >= 0 {
				j1 = j2
				i0 = s.y[j2]
			}

			if i0 >= 0 {
				if lowers {
					current--
					s.free[current] = i0
				} else {
					s.free[newFree] = i0
					newFree++
				}
			}

		} else if i0 >= 0 {
			s.free[newFree] = i0
			newFree++
		}

		s.x[freeI] = j1
		s.y[j1] = freeI
	}

	return newFree
}

// nextMinimum moves the columns with the minimum d[j] from lo onwards to the
// front of the scan list and returns the new upper bound
func (s *jvSolver) nextMinimum(lo int, d []float64, cols []int) int {

	hi := lo + 1
	mind := d[cols[lo]]

	for k := hi; k < s.n; k++ {

		j := cols[k]

		if d[j] > mind {
			continue
		}

		if d[j] < mind {
			hi = lo
			mind = d[j]
		}

		cols[k] = cols[hi]
		cols[hi] = j
		hi++
	}

	return hi
}

// scan tries to lower d of the unscanned columns through the columns on the
// scan list, returning an unassigned column reached at minimum distance or -1
func (s *jvSolver) scan(lo, hi *int, d []float64, cols, pred []int) int {

	for *lo != *hi {

		j := cols[*lo]
		*lo++
		i := s.y[j]
		mind := d[j]
		h := s.cost[i][j] - s.v[j] - mind

		for k := *hi; k < s.n; k++ {
			j = cols[k]
			reduced := s.cost[i][j] - s.v[j] - h

			if reduced >= d[j] {
				continue
			}

			d[j] = reduced
			pred[j] = i

			if reduced == mind {
				if s.y[j] < 0 {
					return j
				}

				cols[k] = cols[*hi]
				cols[*hi] = j
				*hi++
			}
		}
	}

	return -1
}

// shortestPath runs one Dijkstra style search from a free row and returns
// the unassigned column reached
func (s *jvSolver) shortestPath(start int, pred []int) int {

	lo, hi := 0, 0
	final := -1
	ready := 0
	cols := make([]int, s.n)
	d := make([]float64, s.n)

	for j := 0; j < s.n; j++ {
		cols[j] = j
		pred[j] = start
		d[j] = s.cost[start][j] - s.v[j]
	}

	for final == -1 {

		// scan list exhausted, collect the next set of minimum columns
		if lo == hi {
			ready = lo
			hi = s.nextMinimum(lo, d, cols)

			for k := lo; k < hi; k++ {
				if j := cols[k]; s.y[j] < 0 {
					final = j
				}
			}
		}

		if final == -1 {
			final = s.scan(&lo, &hi, d, cols, pred)
		}
	}

	mind := d[cols[lo]]

	for k := 0; k < ready; k++ {
		j := cols[k]
		s.v[j] += d[j] - mind
	}

	return final
}

// augment assigns every remaining free row along its shortest path
func (s *jvSolver) augment(nFree int) error {

	pred := make([]int, s.n)

	for _, freeI := range s.free[:nFree] {

		j := s.shortestPath(freeI, pred)

		if j < 0 || j >= s.n {
			return fmt.Errorf("augmenting path ended on invalid column %d", j)
		}

		i := -1

		for steps := 0; i != freeI; steps++ {

			if steps >= s.n {
				return errors.New("augmenting path longer than matrix")
			}

			i = pred[j]
			s.y[j] = i
			j, s.x[i] = s.x[i], j
		}
	}

	return nil
}

// linearAssignment matches the rows of a rectangular cost matrix to columns
// minimizing the total cost.  The matrix is extended to square with dummy
// rows and columns priced above every real cost so each row is matched to a
// real column whenever there are at least as many columns as rows.  The
// returned slice holds the column for each row, or -1 if unmatched.
func linearAssignment(cost *mat.Dense) ([]int, error) {

	rows, cols := cost.Dims()

	if rows == 0 || cols == 0 {
		sol := make([]int, rows)
		for i := range sol {
			sol[i] = -1
		}
		return sol, nil
	}

	n := rows + cols
	dummy := mat.Max(cost) + 1

	square := make([][]float64, n)

	for i := range square {
		square[i] = make([]float64, n)

		for j := range square[i] {
			switch {
			case i < rows && j < cols:
				square[i][j] = cost.At(i, j)
			case i >= rows && j >= cols:
				square[i][j] = 0
			default:
				square[i][j] = dummy
			}
		}
	}

	x, _, err := solveJV(square)

	if err != nil {
		return nil, fmt.Errorf("linear assignment failed: %w", err)
	}

	sol := make([]int, rows)

	for i := 0; i < rows; i++ {
		sol[i] = x[i]

		if sol[i] >= cols {
			sol[i] = -1
		}
	}

	return sol, nil
}
