package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"

	nchess "github.com/corentings/chess/v2"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

// Piece silhouettes on a 45x45 canvas; fill and stroke are substituted per color.
var pieceShapes = map[nchess.PieceType]string{
	nchess.Pawn: `<circle cx="22.5" cy="14" r="5"/>
<path d="M17 21 L28 21 L30 31 L15 31 Z"/>
<path d="M11 38 L34 38 L32 32 L13 32 Z"/>`,
	nchess.Rook: `<path d="M11 10 L15 10 L15 13 L20 13 L20 10 L25 10 L25 13 L30 13 L30 10 L34 10 L34 16 L11 16 Z"/>
<path d="M14 17 L31 17 L30 31 L15 31 Z"/>
<path d="M10 38 L35 38 L34 32 L11 32 Z"/>`,
	nchess.Knight: `<path d="M14 38 L33 38 L33 30 C33 20 30 12 22 9 L20 6 L18 10 L13 14 L10 21 L13 23 L17 20 L21 20 C18 25 14 29 14 38 Z"/>
<circle cx="16" cy="14" r="1.2"/>`,
	nchess.Bishop: `<ellipse cx="22.5" cy="19" rx="6" ry="8"/>
<circle cx="22.5" cy="8.5" r="2.5"/>
<path d="M16 27 L29 27 L31 31 L14 31 Z"/>
<path d="M10 38 L35 38 L33 32 L12 32 Z"/>`,
	nchess.Queen: `<path d="M9 14 L14 27 L16 12 L20 26 L22.5 10 L25 26 L29 12 L31 27 L36 14 L33 31 L12 31 Z"/>
<circle cx="9" cy="12" r="2"/><circle cx="16" cy="10" r="2"/><circle cx="22.5" cy="8" r="2"/>
<circle cx="29" cy="10" r="2"/><circle cx="36" cy="12" r="2"/>
<path d="M11 38 L34 38 L33 32 L12 32 Z"/>`,
	nchess.King: `<path d="M21 4 L24 4 L24 7 L27 7 L27 10 L24 10 L24 13 L21 13 L21 10 L18 10 L18 7 L21 7 Z"/>
<path d="M22.5 14 C30 14 36 18 34 25 L31 31 L14 31 L11 25 C9 18 15 14 22.5 14 Z"/>
<path d="M11 38 L34 38 L33 32 L12 32 Z"/>`,
}

func pieceSVG(p nchess.Piece) ([]byte, error) {
	shape, ok := pieceShapes[p.Type()]
	if !ok {
		return nil, fmt.Errorf("no glyph for piece %v", p)
	}
	fill, stroke := "#ffffff", "#000000"
	if p.Color() == nchess.Black {
		fill, stroke = "#222222", "#000000"
	}
	var b bytes.Buffer
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 45 45" width="45" height="45">`)
	fmt.Fprintf(&b, `<g fill="%s" stroke="%s" stroke-width="1.5" stroke-linejoin="round">%s</g></svg>`, fill, stroke, shape)
	return b.Bytes(), nil
}

type glyphKey struct {
	piece nchess.Piece
	size  int
}

var (
	glyphCache   = map[glyphKey]image.Image{}
	glyphCacheMu sync.RWMutex
)

func pieceImage(p nchess.Piece, size int) (image.Image, error) {
	key := glyphKey{piece: p, size: size}
	glyphCacheMu.RLock()
	if img, ok := glyphCache[key]; ok {
		glyphCacheMu.RUnlock()
		return img, nil
	}
	glyphCacheMu.RUnlock()

	src, err := pieceSVG(p)
	if err != nil {
		return nil, err
	}
	icon, err := oksvg.ReadIconStream(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("parse piece svg: %w", err)
	}
	icon.SetTarget(0, 0, float64(size), float64(size))

	img := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Transparent), image.Point{}, draw.Src)
	scanner := rasterx.NewScannerGV(size, size, img, img.Bounds())
	icon.Draw(rasterx.NewDasher(size, size, scanner), 1.0)

	glyphCacheMu.Lock()
	glyphCache[key] = img
	glyphCacheMu.Unlock()
	return img, nil
}
