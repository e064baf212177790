package chessboard

import (
	"image"
	"math"
	"sort"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
)

// LatticeConfiguration controls how saddle points are grown into a grid.
type LatticeConfiguration struct {
	Tolerance float64 `json:"tolerance"` // accepted prediction error as a fraction of the local square size
	MaxSeeds  int     `json:"max_seeds"` // number of central candidates tried as the grid origin
}

// DefaultLatticeConf stores the default parameters for lattice growth.
var DefaultLatticeConf = LatticeConfiguration{
	Tolerance: 0.3,
	MaxSeeds:  5,
}

type cell struct{ i, j int }

// lattice assigns candidate indices to integer grid cells.
type lattice struct {
	points   []r2.Point
	cells    map[cell]int
	used     map[int]bool
	basisI   r2.Point
	basisJ   r2.Point
	tol      float64
	maxCells int
}

func (l *lattice) at(i, j int) (r2.Point, bool) {
	idx, ok := l.cells[cell{i, j}]
	if !ok {
		return r2.Point{}, false
	}
	return l.points[idx], true
}

func (l *lattice) assign(c cell, idx int) {
	l.cells[c] = idx
	l.used[idx] = true
}

// predict estimates where the neighbour of (i, j) in direction (di, dj) should be, and the length
// of one grid step there.
func (l *lattice) predict(i, j, di, dj int) (r2.Point, float64) {
	p, _ := l.at(i, j)
	if q, ok := l.at(i-di, j-dj); ok {
		step := p.Sub(q)
		return p.Add(step), step.Norm()
	}
	for _, side := range []int{1, -1} {
		si, sj := side*dj, side*di
		a, okA := l.at(i+si, j+sj)
		b, okB := l.at(i+si+di, j+sj+dj)
		if okA && okB {
			step := b.Sub(a)
			return p.Add(step), step.Norm()
		}
	}
	step := l.basisI.Mul(float64(di)).Add(l.basisJ.Mul(float64(dj)))
	return p.Add(step), step.Norm()
}

// nearestFree returns the unassigned candidate closest to pt within radius.
func (l *lattice) nearestFree(pt r2.Point, radius float64) (int, bool) {
	best, bestDist := -1, radius
	for idx, q := range l.points {
		if l.used[idx] {
			continue
		}
		if d := q.Sub(pt).Norm(); d < bestDist {
			best, bestDist = idx, d
		}
	}
	return best, best >= 0
}

// grow assigns grid cells breadth first from the seed cells.
func (l *lattice) grow(seeds []cell) {
	queue := append([]cell(nil), seeds...)
	dirs := []cell{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}
	for len(queue) > 0 && len(l.cells) <= l.maxCells {
		c := queue[0]
		queue = queue[1:]
		for _, d := range dirs {
			next := cell{c.i + d.i, c.j + d.j}
			if _, taken := l.cells[next]; taken {
				continue
			}
			pred, step := l.predict(c.i, c.j, d.i, d.j)
			if idx, ok := l.nearestFree(pred, l.tol*step); ok {
				l.assign(next, idx)
				queue = append(queue, next)
			}
		}
	}
}

// orderLattice arranges unordered corner candidates into a row-major patternSize grid. It fails
// unless exactly patternSize.X * patternSize.Y candidates form a complete grid.
func orderLattice(points []r2.Point, patternSize image.Point, conf *LatticeConfiguration) ([]r2.Point, error) {
	w, h := patternSize.X, patternSize.Y
	if len(points) < w*h || w < 2 || h < 2 {
		return nil, errors.Wrapf(ErrPatternNotFound, "%d corner candidates for a %dx%d board", len(points), w, h)
	}

	var centroid r2.Point
	for _, p := range points {
		centroid = centroid.Add(p)
	}
	centroid = centroid.Mul(1 / float64(len(points)))
	order := byDistance(points, centroid)

	seeds := conf.MaxSeeds
	if seeds > len(order) {
		seeds = len(order)
	}
	for _, seed := range order[:seeds] {
		if grid, ok := growFrom(points, seed, w, h, conf.Tolerance); ok {
			return canonicalOrder(grid, w, h), nil
		}
	}
	return nil, errors.Wrapf(ErrPatternNotFound, "no complete %dx%d grid among %d corner candidates", w, h, len(points))
}

// byDistance returns candidate indices sorted by distance to pt.
func byDistance(points []r2.Point, pt r2.Point) []int {
	idx := make([]int, len(points))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return points[idx[a]].Sub(pt).Norm() < points[idx[b]].Sub(pt).Norm()
	})
	return idx
}

// growFrom grows a lattice from one seed and returns it as a w*h row-major slice.
func growFrom(points []r2.Point, seed, w, h int, tol float64) ([]r2.Point, bool) {
	near := byDistance(points, points[seed])
	if len(near) < 3 {
		return nil, false
	}
	first := near[1]
	basisI := points[first].Sub(points[seed])
	if basisI.Norm() == 0 {
		return nil, false
	}

	second, bestCos := -1, 0.5
	limit := 9
	if limit > len(near) {
		limit = len(near)
	}
	for _, idx := range near[2:limit] {
		d := points[idx].Sub(points[seed])
		ratio := d.Norm() / basisI.Norm()
		if ratio < 0.5 || ratio > 2 {
			continue
		}
		if c := math.Abs(d.Dot(basisI)) / (d.Norm() * basisI.Norm()); c < bestCos {
			second, bestCos = idx, c
		}
	}
	if second < 0 {
		return nil, false
	}

	l := &lattice{
		points:   points,
		cells:    map[cell]int{},
		used:     map[int]bool{},
		basisI:   basisI,
		basisJ:   points[second].Sub(points[seed]),
		tol:      tol,
		maxCells: w * h,
	}
	l.assign(cell{0, 0}, seed)
	l.assign(cell{1, 0}, first)
	l.assign(cell{0, 1}, second)
	l.grow([]cell{{0, 0}, {1, 0}, {0, 1}})

	if len(l.cells) != w*h {
		return nil, false
	}
	minI, minJ := math.MaxInt, math.MaxInt
	maxI, maxJ := math.MinInt, math.MinInt
	for c := range l.cells {
		minI, maxI = min(minI, c.i), max(maxI, c.i)
		minJ, maxJ = min(minJ, c.j), max(maxJ, c.j)
	}
	cols, rows := maxI-minI+1, maxJ-minJ+1
	transpose := false
	switch {
	case cols == w && rows == h:
	case cols == h && rows == w:
		transpose = true
	default:
		return nil, false
	}

	grid := make([]r2.Point, w*h)
	for c, idx := range l.cells {
		i, j := c.i-minI, c.j-minJ
		if transpose {
			i, j = j, i
		}
		grid[j*w+i] = points[idx]
	}
	return grid, true
}

// canonicalOrder picks, among the orderings of grid that describe the same board, the one whose
// rows run left to right relative to its columns (positive cross product in image coordinates)
// and whose first corner is nearest the image origin.
func canonicalOrder(grid []r2.Point, w, h int) []r2.Point {
	type symmetry struct{ flipI, flipJ, transpose bool }
	syms := []symmetry{{false, false, false}, {true, false, false}, {false, true, false}, {true, true, false}}
	if w == h {
		syms = append(syms,
			symmetry{false, false, true}, symmetry{true, false, true},
			symmetry{false, true, true}, symmetry{true, true, true})
	}

	var best []r2.Point
	for _, s := range syms {
		cand := make([]r2.Point, w*h)
		for j := 0; j < h; j++ {
			for i := 0; i < w; i++ {
				si, sj := i, j
				if s.transpose {
					si, sj = j, i
				}
				if s.flipI {
					si = w - 1 - si
				}
				if s.flipJ {
					sj = h - 1 - sj
				}
				cand[j*w+i] = grid[sj*w+si]
			}
		}
		row := cand[w-1].Sub(cand[0])
		col := cand[(h-1)*w].Sub(cand[0])
		if row.Cross(col) <= 0 {
			continue
		}
		if best == nil || before(cand[0], best[0]) {
			best = cand
		}
	}
	if best == nil {
		return grid
	}
	return best
}

func before(a, b r2.Point) bool {
	if sa, sb := a.X+a.Y, b.X+b.Y; sa != sb {
		return sa < sb
	}
	return a.X < b.X
}
