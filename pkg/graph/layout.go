package graph

import "math"

// Point is a 2-D position.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// CircularLayout places n nodes evenly on a circle of radius scale, node i at angle 2πi/n.
func CircularLayout(n int, scale float64) []Point {
	pts := make([]Point, n)
	if n < 2 {
		return pts
	}
	for i := range pts {
		theta := 2 * math.Pi * float64(i) / float64(n)
		pts[i] = Point{X: scale * math.Cos(theta), Y: scale * math.Sin(theta)}
	}
	return pts
}

// ApplyLayout writes circular positions onto the nodes of v.
func ApplyLayout(v *View, scale float64) {
	for i, p := range CircularLayout(len(v.Nodes), scale) {
		v.Nodes[i].X, v.Nodes[i].Y = p.X, p.Y
	}
}

// MaxDegree returns the largest number of edges incident to any node.
func MaxDegree(v *View) int {
	deg := make([]int, len(v.Nodes))
	best := 0
	for _, e := range v.Edges {
		deg[e.Source]++
		deg[e.Target]++
		if deg[e.Source] > best {
			best = deg[e.Source]
		}
		if deg[e.Target] > best {
			best = deg[e.Target]
		}
	}
	return best
}
