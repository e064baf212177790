package chessboard

import (
	"image"
	"image/color"
	"strconv"

	"github.com/fogleman/gg"
	"github.com/golang/geo/r2"

	"github.com/EminentCodfish/GoPro-Calibration-Distortion-Removal/rimage"
)

// rowColors cycles through the rows of the grid so ordering mistakes are easy to spot.
var rowColors = []color.Color{
	color.NRGBA{255, 0, 0, 255},
	color.NRGBA{255, 128, 0, 255},
	color.NRGBA{200, 200, 0, 255},
	color.NRGBA{0, 200, 0, 255},
	color.NRGBA{0, 200, 200, 255},
	color.NRGBA{0, 0, 255, 255},
	color.NRGBA{200, 0, 200, 255},
}

// DrawCorners renders detected corners over a copy of img for operator review. A found board is
// drawn as colored rows joined in detection order with the first corner labelled; otherwise the
// corners are drawn as red circles.
func DrawCorners(img image.Image, patternSize image.Point, corners []r2.Point, found bool) image.Image {
	dc := gg.NewContextForImage(img)
	radius := 4.
	if len(corners) == 0 {
		return dc.Image()
	}
	if !found || len(corners) != patternSize.X*patternSize.Y {
		for _, p := range corners {
			rimage.DrawCircle(dc, p.X, p.Y, radius, rimage.Red, 1)
		}
		return dc.Image()
	}

	w := patternSize.X
	var prev r2.Point
	for idx, p := range corners {
		c := rowColors[(idx/w)%len(rowColors)]
		if idx > 0 {
			rimage.DrawLine(dc, prev.X, prev.Y, p.X, p.Y, c, 1)
		}
		rimage.DrawCircle(dc, p.X, p.Y, radius, c, 1.5)
		prev = p
	}
	first := corners[0]
	rimage.DrawString(dc, strconv.Itoa(0), image.Point{int(first.X) + 6, int(first.Y) - 6}, rimage.White)
	return dc.Image()
}
