package grid

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"

	"golang.org/x/image/draw"
)

// TileSize is the edge, in pixels, of one rendered cell.
const TileSize = 10

// Unbounded renders the whole grid with no crop.
const Unbounded = -1

// Window returns the cells visible from observer within radius, clamped to
// the grid. A negative radius selects the whole grid.
func (g *Grid) Window(observer Position, radius int) image.Rectangle {
	full := image.Rect(0, 0, g.width, g.height)
	if radius < 0 {
		return full
	}
	r := image.Rect(observer.X-radius, observer.Y-radius, observer.X+radius+1, observer.Y+radius+1)
	return r.Intersect(full)
}

// Render draws the grid at TileSize pixels per cell, cropped to the window
// around observer, and encodes it as PNG.
func (g *Grid) Render(observer Position, radius int) ([]byte, error) {
	cells := image.NewRGBA(image.Rect(0, 0, g.width, g.height))
	for y := 0; y < g.height; y++ {
		for x := 0; x < g.width; x++ {
			cells.SetRGBA(x, y, g.cells[y*g.width+x].RGBA())
		}
	}

	window := g.Window(observer, radius)
	if window.Empty() {
		return nil, fmt.Errorf("observer %v outside grid", observer)
	}
	out := image.NewRGBA(image.Rect(0, 0, window.Dx()*TileSize, window.Dy()*TileSize))
	draw.NearestNeighbor.Scale(out, out.Bounds(), cells, window, draw.Src, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return nil, fmt.Errorf("encoding map: %w", err)
	}
	return buf.Bytes(), nil
}

// RenderBase64 is Render with the PNG base64 encoded for JSON transport.
func (g *Grid) RenderBase64(observer Position, radius int) (string, error) {
	b, err := g.Render(observer, radius)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// Decode rebuilds a grid from a rendered PNG by sampling the centre of each
// tile. A goal tile, if visible, becomes the grid's goal.
func Decode(data []byte) (*Grid, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding map: %w", err)
	}
	b := img.Bounds()
	if b.Dx()%TileSize != 0 || b.Dy()%TileSize != 0 || b.Empty() {
		return nil, fmt.Errorf("map %dx%d is not a whole number of tiles: %w", b.Dx(), b.Dy(), ErrInvalidShape)
	}
	g := New(b.Dx()/TileSize, b.Dy()/TileSize)
	for y := 0; y < g.height; y++ {
		for x := 0; x < g.width; x++ {
			e := ElementFromColor(img.At(b.Min.X+x*TileSize+TileSize/2, b.Min.Y+y*TileSize+TileSize/2))
			g.cells[y*g.width+x] = e
			if e == Goal && !g.hasGoal {
				g.goal, g.hasGoal = Position{X: x, Y: y}, true
			}
		}
	}
	return g, nil
}

// DecodeBase64 is Decode for a base64 encoded PNG.
func DecodeBase64(s string) (*Grid, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decoding map: %w", err)
	}
	return Decode(data)
}
