// Package coords provides the affine geometry shared by every component that
// reasons about page space: content-stream tracing, OCR box mapping, and
// redaction placement.
package coords

import (
	"errors"
	"math"
)

// Matrix is a PDF-style affine transform [a b c d e f].
type Matrix [6]float64

func Identity() Matrix { return Matrix{1, 0, 0, 1, 0, 0} }

func (m Matrix) Multiply(o Matrix) Matrix {
	return Matrix{
		m[0]*o[0] + m[1]*o[2],
		m[0]*o[1] + m[1]*o[3],
		m[2]*o[0] + m[3]*o[2],
		m[2]*o[1] + m[3]*o[3],
		m[4]*o[0] + m[5]*o[2] + o[4],
		m[4]*o[1] + m[5]*o[3] + o[5],
	}
}

type Point struct{ X, Y float64 }

func (m Matrix) Transform(p Point) Point {
	return Point{X: m[0]*p.X + m[2]*p.Y + m[4], Y: m[1]*p.X + m[3]*p.Y + m[5]}
}

func (m Matrix) Inverse() (Matrix, error) {
	det := m[0]*m[3] - m[1]*m[2]
	if math.Abs(det) < 1e-10 {
		return Matrix{}, errors.New("matrix singular")
	}
	return Matrix{
		m[3] / det, -m[1] / det,
		-m[2] / det, m[0] / det,
		(m[2]*m[5] - m[3]*m[4]) / det,
		(m[1]*m[4] - m[0]*m[5]) / det,
	}, nil
}

func Translate(tx, ty float64) Matrix { return Matrix{1, 0, 0, 1, tx, ty} }
func Scale(sx, sy float64) Matrix     { return Matrix{sx, 0, 0, sy, 0, 0} }
func Rotate(angle float64) Matrix {
	c := math.Cos(angle)
	s := math.Sin(angle)
	return Matrix{c, s, -s, c, 0, 0}
}

// Rect is an axis-aligned rectangle in page units, lower-left origin.
type Rect struct {
	LLX, LLY, URX, URY float64
}

func (r Rect) Width() float64  { return r.URX - r.LLX }
func (r Rect) Height() float64 { return r.URY - r.LLY }
func (r Rect) IsEmpty() bool   { return r.URX <= r.LLX || r.URY <= r.LLY }

// Intersects reports whether r and o share any area or edge.
func (r Rect) Intersects(o Rect) bool {
	return !(o.LLX > r.URX || o.URX < r.LLX || o.LLY > r.URY || o.URY < r.LLY)
}

// Contains reports whether o lies entirely within r.
func (r Rect) Contains(o Rect) bool {
	return o.LLX >= r.LLX && o.URX <= r.URX && o.LLY >= r.LLY && o.URY <= r.URY
}

// Union returns the smallest rectangle covering both r and o.
func (r Rect) Union(o Rect) Rect {
	if r.IsEmpty() {
		return o
	}
	if o.IsEmpty() {
		return r
	}
	return Rect{
		LLX: math.Min(r.LLX, o.LLX),
		LLY: math.Min(r.LLY, o.LLY),
		URX: math.Max(r.URX, o.URX),
		URY: math.Max(r.URY, o.URY),
	}
}

// Intersect returns the overlap of r and o; empty if they do not intersect.
func (r Rect) Intersect(o Rect) Rect {
	out := Rect{
		LLX: math.Max(r.LLX, o.LLX),
		LLY: math.Max(r.LLY, o.LLY),
		URX: math.Min(r.URX, o.URX),
		URY: math.Min(r.URY, o.URY),
	}
	if out.IsEmpty() {
		return Rect{}
	}
	return out
}

// BoundPoints returns the bounding rectangle of the given points.
func BoundPoints(points ...Point) Rect {
	minX, minY := math.MaxFloat64, math.MaxFloat64
	maxX, maxY := -math.MaxFloat64, -math.MaxFloat64
	for _, p := range points {
		if p.X < minX {
			minX = p.X
		}
		if p.Y < minY {
			minY = p.Y
		}
		if p.X > maxX {
			maxX = p.X
		}
		if p.Y > maxY {
			maxY = p.Y
		}
	}
	return Rect{LLX: minX, LLY: minY, URX: maxX, URY: maxY}
}

// TransformRect maps all four corners of r through m and bounds the result.
func (m Matrix) TransformRect(r Rect) Rect {
	return BoundPoints(
		m.Transform(Point{r.LLX, r.LLY}),
		m.Transform(Point{r.URX, r.LLY}),
		m.Transform(Point{r.LLX, r.URY}),
		m.Transform(Point{r.URX, r.URY}),
	)
}
