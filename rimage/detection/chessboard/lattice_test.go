package chessboard

import (
	"errors"
	"image"
	"math/rand"
	"testing"

	"github.com/golang/geo/r2"
	"go.viam.com/test"
)

func affineGrid(w, h int, origin, u, v r2.Point) []r2.Point {
	out := make([]r2.Point, 0, w*h)
	for j := 0; j < h; j++ {
		for i := 0; i < w; i++ {
			out = append(out, origin.Add(u.Mul(float64(i))).Add(v.Mul(float64(j))))
		}
	}
	return out
}

func TestOrderLattice(t *testing.T) {
	patternSize := image.Point{5, 4}
	truth := affineGrid(5, 4, r2.Point{X: 100, Y: 80}, r2.Point{X: 20, Y: 2}, r2.Point{X: -3, Y: 22})

	for seed := int64(0); seed < 5; seed++ {
		shuffled := append([]r2.Point(nil), truth...)
		rng := rand.New(rand.NewSource(seed))
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		ordered, err := orderLattice(shuffled, patternSize, &DefaultLatticeConf)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, ordered, test.ShouldResemble, truth)
	}
}

func TestOrderLatticeTransposedAndMirrored(t *testing.T) {
	patternSize := image.Point{5, 4}
	truth := affineGrid(5, 4, r2.Point{X: 100, Y: 80}, r2.Point{X: 20, Y: 0}, r2.Point{X: 0, Y: 20})

	// the same board laid out with rows running down the image
	transposed := affineGrid(4, 5, r2.Point{X: 100, Y: 80}, r2.Point{X: 0, Y: 20}, r2.Point{X: 20, Y: 0})
	ordered, err := orderLattice(transposed, patternSize, &DefaultLatticeConf)
	test.That(t, err, test.ShouldBeNil)
	checkLatticeOrder(t, ordered, truth, patternSize)
	test.That(t, ordered[0], test.ShouldResemble, r2.Point{X: 100, Y: 80})

	// rotated by 180 degrees in the image
	rotated := affineGrid(5, 4, r2.Point{X: 180, Y: 140}, r2.Point{X: -20, Y: 0}, r2.Point{X: 0, Y: -20})
	ordered, err = orderLattice(rotated, patternSize, &DefaultLatticeConf)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ordered, test.ShouldResemble, truth)
}

func TestOrderLatticeIncomplete(t *testing.T) {
	patternSize := image.Point{5, 4}
	grid := affineGrid(5, 4, r2.Point{X: 100, Y: 80}, r2.Point{X: 20, Y: 0}, r2.Point{X: 0, Y: 20})

	_, err := orderLattice(grid[:len(grid)-1], patternSize, &DefaultLatticeConf)
	test.That(t, errors.Is(err, ErrPatternNotFound), test.ShouldBeTrue)

	// a missing interior corner plus a stray point elsewhere
	holed := append(append([]r2.Point(nil), grid[:7]...), grid[8:]...)
	holed = append(holed, r2.Point{X: 400, Y: 400})
	_, err = orderLattice(holed, patternSize, &DefaultLatticeConf)
	test.That(t, errors.Is(err, ErrPatternNotFound), test.ShouldBeTrue)

	_, err = orderLattice(affineGrid(6, 4, r2.Point{X: 100, Y: 80}, r2.Point{X: 20, Y: 0}, r2.Point{X: 0, Y: 20}), patternSize, &DefaultLatticeConf)
	test.That(t, errors.Is(err, ErrPatternNotFound), test.ShouldBeTrue)
}
