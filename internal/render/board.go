package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"

	nchess "github.com/corentings/chess/v2"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/park285/cheese-wager/internal/rules"
)

type Options struct {
	SquareSize int
	// Flip draws the board from black's side.
	Flip bool
	// Highlight marks the last move when set.
	Highlight bool
}

var (
	lightSquare    = color.RGBA{233, 207, 163, 255}
	darkSquare     = color.RGBA{187, 136, 96, 255}
	highlightColor = color.NRGBA{R: 255, G: 228, B: 120, A: 140}
	marginColor    = color.RGBA{28, 31, 46, 255}
	coordColor     = color.RGBA{204, 210, 236, 255}
)

const margin = 20

// BoardPNG renders the current position of g as a PNG.
func BoardPNG(ctx context.Context, g *rules.Game, opts Options) ([]byte, error) {
	if g == nil {
		return nil, fmt.Errorf("game is nil")
	}
	size := opts.SquareSize
	if size <= 0 {
		size = 64
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	total := size*8 + margin*2
	img := image.NewRGBA(image.Rect(0, 0, total, total))
	draw.Draw(img, img.Bounds(), image.NewUniform(marginColor), image.Point{}, draw.Src)
	origin := image.Point{X: margin, Y: margin}

	for row := 0; row < 8; row++ {
		for col := 0; col < 8; col++ {
			clr := lightSquare
			if (row+col)%2 == 1 {
				clr = darkSquare
			}
			draw.Draw(img, cell(origin, row, col, size), image.NewUniform(clr), image.Point{}, draw.Src)
		}
	}

	if opts.Highlight {
		if from, to, ok := g.LastMove(); ok {
			for _, sq := range []string{from, to} {
				row, col := squareCell(sq, opts.Flip)
				draw.Draw(img, cell(origin, row, col, size), image.NewUniform(highlightColor), image.Point{}, draw.Over)
			}
		}
	}

	for sq, piece := range g.Board().SquareMap() {
		if piece == nchess.NoPiece {
			continue
		}
		glyph, err := pieceImage(piece, size)
		if err != nil {
			return nil, err
		}
		row, col := squareCell(sq.String(), opts.Flip)
		draw.Draw(img, cell(origin, row, col, size), glyph, image.Point{}, draw.Over)
	}

	drawCoordinates(img, origin, size, opts.Flip)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func cell(origin image.Point, row, col, size int) image.Rectangle {
	x := origin.X + col*size
	y := origin.Y + row*size
	return image.Rect(x, y, x+size, y+size)
}

// squareCell maps "e4" to its drawing row and column.
func squareCell(sq string, flip bool) (row, col int) {
	col = int(sq[0] - 'a')
	row = int('8' - sq[1])
	if flip {
		row, col = 7-row, 7-col
	}
	return row, col
}

func drawCoordinates(dst draw.Image, origin image.Point, size int, flip bool) {
	face := basicfont.Face7x13
	d := &font.Drawer{Dst: dst, Src: image.NewUniform(coordColor), Face: face}
	ascent := face.Metrics().Ascent.Ceil()
	for i := 0; i < 8; i++ {
		file := string(rune('a' + i))
		rank := string(rune('8' - i))
		if flip {
			file = string(rune('h' - i))
			rank = string(rune('1' + i))
		}
		center := origin.X + i*size + size/2
		drawCentered(d, file, center, origin.Y+8*size+ascent+2)
		drawCentered(d, rank, margin/2, origin.Y+i*size+size/2+ascent/2)
	}
}

func drawCentered(d *font.Drawer, text string, x, baseline int) {
	w := d.MeasureString(text).Ceil()
	d.Dot = fixed.P(x-w/2, baseline)
	d.DrawString(text)
}
