package coords

import (
	"math"
	"testing"
)

func TestMatrixTransformRoundTrip(t *testing.T) {
	m := Translate(10, 20).Multiply(Scale(2, 3))
	p := Point{X: 5, Y: 7}
	q := m.Transform(p)

	inv, err := m.Inverse()
	if err != nil {
		t.Fatalf("Inverse() error = %v", err)
	}
	back := inv.Transform(q)
	if math.Abs(back.X-p.X) > 1e-9 || math.Abs(back.Y-p.Y) > 1e-9 {
		t.Fatalf("round trip got %+v, want %+v", back, p)
	}
}

func TestSingularMatrix(t *testing.T) {
	if _, err := (Matrix{0, 0, 0, 0, 1, 2}).Inverse(); err == nil {
		t.Fatalf("expected error for singular matrix")
	}
}

func TestRectIntersects(t *testing.T) {
	a := Rect{LLX: 0, LLY: 0, URX: 10, URY: 10}
	cases := []struct {
		name string
		b    Rect
		want bool
	}{
		{"overlap", Rect{5, 5, 15, 15}, true},
		{"touching edge", Rect{10, 0, 20, 10}, true},
		{"disjoint", Rect{11, 11, 20, 20}, false},
		{"contained", Rect{2, 2, 4, 4}, true},
	}
	for _, tc := range cases {
		if got := a.Intersects(tc.b); got != tc.want {
			t.Fatalf("%s: Intersects = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestRectUnionIntersect(t *testing.T) {
	a := Rect{0, 0, 4, 4}
	b := Rect{2, 2, 8, 8}
	if got := a.Union(b); got != (Rect{0, 0, 8, 8}) {
		t.Fatalf("Union = %+v", got)
	}
	if got := a.Intersect(b); got != (Rect{2, 2, 4, 4}) {
		t.Fatalf("Intersect = %+v", got)
	}
	if got := a.Intersect(Rect{5, 5, 6, 6}); !got.IsEmpty() {
		t.Fatalf("expected empty intersection, got %+v", got)
	}
}

func TestTransformRectRotation(t *testing.T) {
	r := Rect{0, 0, 2, 1}
	got := Rotate(math.Pi / 2).TransformRect(r)
	want := Rect{LLX: -1, LLY: 0, URX: 0, URY: 2}
	if math.Abs(got.LLX-want.LLX) > 1e-9 || math.Abs(got.URY-want.URY) > 1e-9 {
		t.Fatalf("TransformRect = %+v, want %+v", got, want)
	}
}
