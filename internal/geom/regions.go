package geom

import (
	"fmt"
	"image"
)

// DefaultMinOverlap is the overlap ratio two regions must exceed in both
// directions to be considered the same region.
const DefaultMinOverlap = 0.9

// ClusterMinOverlap is the relaxed ratio used when deduplicating matches of
// different templates that may cover the same element only partially.
const ClusterMinOverlap = 0.5

// Point represents a coordinate on screen
type Point struct {
	X int
	Y int
}

// Region represents a rectangular area on screen in absolute coordinates.
// A region with zero or negative width or height is degenerate.
type Region struct {
	X int
	Y int
	W int
	H int
}

// Rect creates a region from a top-left corner and dimensions
func Rect(x, y, w, h int) Region {
	return Region{X: x, Y: y, W: w, H: h}
}

// FromImageRect converts a stdlib image rectangle to a region
func FromImageRect(r image.Rectangle) Region {
	return Region{X: r.Min.X, Y: r.Min.Y, W: r.Dx(), H: r.Dy()}
}

// ToImageRect converts the region to a stdlib image rectangle
func (r Region) ToImageRect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.W, r.Y+r.H)
}

// Empty reports whether the region is degenerate
func (r Region) Empty() bool {
	return r.W <= 0 || r.H <= 0
}

// Area returns the region's area in pixels, 0 for degenerate regions
func (r Region) Area() int {
	if r.Empty() {
		return 0
	}
	return r.W * r.H
}

// Right returns the exclusive right edge
func (r Region) Right() int {
	return r.X + r.W
}

// Bottom returns the exclusive bottom edge
func (r Region) Bottom() int {
	return r.Y + r.H
}

// Center returns the region's center point
func (r Region) Center() Point {
	return Point{X: r.X + r.W/2, Y: r.Y + r.H/2}
}

// Contains checks if a point is inside the region
func (r Region) Contains(p Point) bool {
	return p.X >= r.X && p.X < r.Right() && p.Y >= r.Y && p.Y < r.Bottom()
}

// Intersect returns the intersection of two regions. The result is
// degenerate when the regions do not overlap.
func (r Region) Intersect(o Region) Region {
	x1 := max(r.X, o.X)
	y1 := max(r.Y, o.Y)
	x2 := min(r.Right(), o.Right())
	y2 := min(r.Bottom(), o.Bottom())
	return Region{X: x1, Y: y1, W: x2 - x1, H: y2 - y1}
}

// Extend grows the region by the given margins on each side. Negative
// margins shrink it.
func (r Region) Extend(left, top, right, bottom int) Region {
	return Region{
		X: r.X - left,
		Y: r.Y - top,
		W: r.W + left + right,
		H: r.H + top + bottom,
	}
}

// Inflate grows the region by n pixels in every direction
func (r Region) Inflate(n int) Region {
	return r.Extend(n, n, n, n)
}

// MarginPct grows the region by a fraction of its own width and height on
// each side, e.g. 0.2 adds 20% of the width left and right and 20% of the
// height above and below.
func (r Region) MarginPct(frac float64) Region {
	dx := int(float64(r.W) * frac)
	dy := int(float64(r.H) * frac)
	return r.Extend(dx, dy, dx, dy)
}

func (r Region) String() string {
	return fmt.Sprintf("(%d,%d %dx%d)", r.X, r.Y, r.W, r.H)
}

// Overlap returns the fraction of a covered by b: the intersection area
// divided by the area of a. It is NOT symmetric; callers deciding whether
// two regions denote the same element must check both directions, which is
// what SameRegion does. Returns 0 when either dimension of the
// intersection is not positive.
func Overlap(a, b Region) float64 {
	in := a.Intersect(b)
	if in.W <= 0 || in.H <= 0 {
		return 0
	}
	return float64(in.W*in.H) / float64(a.W*a.H)
}

// SameRegion reports whether a and b overlap by at least minOverlap in
// both directions. The conjunctive check makes the result symmetric even
// though Overlap itself is not.
func SameRegion(a, b Region, minOverlap float64) bool {
	return Overlap(a, b) >= minOverlap && Overlap(b, a) >= minOverlap
}
