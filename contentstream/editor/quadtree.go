package editor

import "github.com/moduluz/pdf-redactor/coords"

// QuadTree is a spatial index over operation bounding boxes.
type QuadTree struct {
	Bounds   coords.Rect
	Capacity int
	Points   []PointData
	Nodes    []*QuadTree
}

type PointData struct {
	Rect  coords.Rect
	Index int
}

func NewQuadTree(bounds coords.Rect, capacity int) *QuadTree {
	return &QuadTree{
		Bounds:   bounds,
		Capacity: capacity,
		Points:   make([]PointData, 0, capacity),
	}
}

func (qt *QuadTree) Insert(rect coords.Rect, index int) bool {
	if !qt.Bounds.Intersects(rect) {
		return false
	}

	if qt.Nodes != nil {
		for _, node := range qt.Nodes {
			if node.Bounds.Contains(rect) {
				if node.Insert(rect, index) {
					return true
				}
			}
		}
	}

	if qt.Nodes == nil {
		if len(qt.Points) < qt.Capacity {
			qt.Points = append(qt.Points, PointData{Rect: rect, Index: index})
			return true
		}
		qt.subdivide()
		oldPoints := qt.Points
		qt.Points = make([]PointData, 0, qt.Capacity)
		for _, p := range oldPoints {
			qt.Insert(p.Rect, p.Index)
		}
		return qt.Insert(rect, index)
	}

	// rect straddles children, so it lives at this node
	qt.Points = append(qt.Points, PointData{Rect: rect, Index: index})
	return true
}

func (qt *QuadTree) subdivide() {
	xMid := (qt.Bounds.LLX + qt.Bounds.URX) / 2
	yMid := (qt.Bounds.LLY + qt.Bounds.URY) / 2

	qt.Nodes = []*QuadTree{
		NewQuadTree(coords.Rect{LLX: qt.Bounds.LLX, LLY: yMid, URX: xMid, URY: qt.Bounds.URY}, qt.Capacity),
		NewQuadTree(coords.Rect{LLX: xMid, LLY: yMid, URX: qt.Bounds.URX, URY: qt.Bounds.URY}, qt.Capacity),
		NewQuadTree(coords.Rect{LLX: qt.Bounds.LLX, LLY: qt.Bounds.LLY, URX: xMid, URY: yMid}, qt.Capacity),
		NewQuadTree(coords.Rect{LLX: xMid, LLY: qt.Bounds.LLY, URX: qt.Bounds.URX, URY: yMid}, qt.Capacity),
	}
}

func (qt *QuadTree) Query(rangeRect coords.Rect) []int {
	var found []int
	if !qt.Bounds.Intersects(rangeRect) {
		return found
	}
	for _, p := range qt.Points {
		if p.Rect.Intersects(rangeRect) {
			found = append(found, p.Index)
		}
	}
	if qt.Nodes != nil {
		for _, node := range qt.Nodes {
			found = append(found, node.Query(rangeRect)...)
		}
	}
	return found
}
