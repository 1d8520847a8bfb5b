package vector

import (
	"sort"

	ctgeom "github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
)

// indexItem adapts a feature extent to the R-tree's geom.Geom. The embedded
// polygon only supplies the interface; Bounds reports the feature extent.
type indexItem struct {
	ctgeom.Polygon
	idx    int
	bounds *ctgeom.Bounds
}

var _ ctgeom.Geom = indexItem{}

func (it indexItem) Bounds() *ctgeom.Bounds { return it.bounds }

func toCtBounds(b Bounds) *ctgeom.Bounds {
	return &ctgeom.Bounds{
		Min: ctgeom.Point{X: b.MinX, Y: b.MinY},
		Max: ctgeom.Point{X: b.MaxX, Y: b.MaxY},
	}
}

// Index is a bounding-box R-tree over a layer's features.
type Index struct {
	tree *rtree.Rtree
	n    int
}

// NewIndex builds an index over every feature with a non-empty extent.
func NewIndex(l *Layer) *Index {
	tree := rtree.NewTree(25, 50)
	n := 0
	for i, f := range l.Features {
		b := GeomBounds(f.Geom)
		if b.Empty() {
			continue
		}
		tree.Insert(indexItem{idx: i, bounds: toCtBounds(b)})
		n++
	}
	return &Index{tree: tree, n: n}
}

// Len returns the number of indexed features.
func (ix *Index) Len() int { return ix.n }

// Search returns, in ascending order, the indices of features whose extent
// overlaps b.
func (ix *Index) Search(b Bounds) []int {
	if b.Empty() || ix.n == 0 {
		return nil
	}
	hits := ix.tree.SearchIntersect(toCtBounds(b))
	out := make([]int, 0, len(hits))
	for _, h := range hits {
		if it, ok := h.(indexItem); ok {
			out = append(out, it.idx)
		}
	}
	sort.Ints(out)
	return out
}
