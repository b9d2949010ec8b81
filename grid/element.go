package grid

import (
	"fmt"
	"image/color"
	"strconv"
)

// ElementType is the content of a single cell.
type ElementType int

const (
	Unknown ElementType = iota
	// Visited is scratch state for searches and never stored in a Grid.
	Visited
	Background
	Wall
	PlayerOffense
	Goal
	VisionPickup
	Timebomb
	TimebombArmedStage2
	TimebombArmedStage3

	numElementTypes
)

type elementAttrs struct {
	name   string
	color  string
	symbol byte
}

// elements is the single table mapping each ElementType to its wire name and
// display colour. Bots receive it verbatim through /start.
var elements = [numElementTypes]elementAttrs{
	Unknown:             {"unknown", "#7F7F7F", '?'},
	Visited:             {"visited", "", '*'},
	Background:          {"background", "#FFFFFF", '.'},
	Wall:                {"wall", "#000000", '#'},
	PlayerOffense:       {"player_offense", "#FF0000", 'o'},
	Goal:                {"goal", "#FFD700", 'g'},
	VisionPickup:        {"vision_pickup", "#00BFFF", 'v'},
	Timebomb:            {"timebomb", "#FFA500", '3'},
	TimebombArmedStage2: {"timebomb_second_round", "#FF7F00", '2'},
	TimebombArmedStage3: {"timebomb_third_round", "#C04000", '1'},
}

var (
	elementsBySymbol = map[byte]ElementType{}
	elementsByName   = map[string]ElementType{}
	elementsByColor  = map[color.RGBA]ElementType{}
	elementColors    [numElementTypes]color.RGBA
)

func init() {
	for i, attrs := range elements {
		e := ElementType(i)
		elementsByName[attrs.name] = e
		elementsBySymbol[attrs.symbol] = e
		if attrs.color == "" {
			continue
		}
		c, err := parseHexColor(attrs.color)
		if err != nil {
			panic(err)
		}
		elementColors[e] = c
		elementsByColor[c] = e
	}
}

func (e ElementType) valid() bool {
	return e >= 0 && e < numElementTypes
}

func (e ElementType) String() string {
	if !e.valid() {
		return fmt.Sprintf("element(%d)", int(e))
	}
	return elements[e].name
}

// Color returns the hex colour used to draw e.
func (e ElementType) Color() string {
	if !e.valid() {
		return ""
	}
	return elements[e].color
}

func (e ElementType) RGBA() color.RGBA {
	if !e.valid() {
		return color.RGBA{}
	}
	return elementColors[e]
}

// IsTimebomb reports whether e is any stage of an armed bomb.
func (e ElementType) IsTimebomb() bool {
	return e == Timebomb || e == TimebombArmedStage2 || e == TimebombArmedStage3
}

func (e ElementType) MarshalText() ([]byte, error) {
	if !e.valid() {
		return nil, fmt.Errorf("invalid element type %d", int(e))
	}
	return []byte(elements[e].name), nil
}

func (e *ElementType) UnmarshalText(b []byte) error {
	v, ok := elementsByName[string(b)]
	if !ok {
		return fmt.Errorf("unknown element type %q", b)
	}
	*e = v
	return nil
}

// ParseElementType looks up an element by its wire name.
func ParseElementType(name string) (ElementType, bool) {
	e, ok := elementsByName[name]
	return e, ok
}

// ElementFromColor maps a drawn colour back to its element. Colours outside
// the table decode as Unknown.
func ElementFromColor(c color.Color) ElementType {
	r, g, b, _ := c.RGBA()
	key := color.RGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: 0xff}
	if e, ok := elementsByColor[key]; ok {
		return e
	}
	return Unknown
}

// ColorTable returns name -> hex colour for every drawable element.
func ColorTable() map[string]string {
	m := make(map[string]string, len(elements))
	for _, attrs := range elements {
		if attrs.color != "" {
			m[attrs.name] = attrs.color
		}
	}
	return m
}

func parseHexColor(s string) (color.RGBA, error) {
	if len(s) != 7 || s[0] != '#' {
		return color.RGBA{}, fmt.Errorf("bad colour %q", s)
	}
	v, err := strconv.ParseUint(s[1:], 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("bad colour %q: %w", s, err)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}
