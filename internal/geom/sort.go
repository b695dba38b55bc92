package geom

import "sort"

// SortOrder selects one of eight region orderings. Orders are composed
// from three flags: SortHorizontal makes the X axis primary (column-major
// traversal), SortDescX walks the X axis right to left, and SortDescY
// walks the Y axis bottom to top.
//
// On a 2x2 layout A,B over C,D the eight orders produce:
//
//	SortRowMajor                                A,B,C,D
//	SortDescY                                   C,D,A,B
//	SortDescX                                   B,A,D,C
//	SortDescX|SortDescY                         D,C,B,A
//	SortHorizontal                              A,C,B,D
//	SortHorizontal|SortDescY                    C,A,D,B
//	SortHorizontal|SortDescX                    B,D,A,C
//	SortHorizontal|SortDescX|SortDescY          D,B,C,A
type SortOrder int

const (
	// SortDescY orders the vertical axis bottom to top
	SortDescY SortOrder = 1
	// SortDescX orders the horizontal axis right to left
	SortDescX SortOrder = 2
	// SortHorizontal makes the horizontal axis the primary sort key
	SortHorizontal SortOrder = 4

	// SortRowMajor is the default: rows top to bottom, left to right
	SortRowMajor SortOrder = 0
	// SortColumnMajor traverses columns left to right, top to bottom
	SortColumnMajor SortOrder = SortHorizontal
)

// Less returns a comparison function implementing the given order.
// Callers that sort regions together with attached data (scores, state)
// use this directly with sort.SliceStable.
func Less(order SortOrder) func(a, b Region) bool {
	return func(a, b Region) bool {
		cx := compareInt(a.X, b.X)
		if order&SortDescX != 0 {
			cx = -cx
		}
		cy := compareInt(a.Y, b.Y)
		if order&SortDescY != 0 {
			cy = -cy
		}
		primary, secondary := cy, cx
		if order&SortHorizontal != 0 {
			primary, secondary = cx, cy
		}
		if primary != 0 {
			return primary < 0
		}
		return secondary < 0
	}
}

// SortRegions sorts regions in place using the given order. The sort is
// stable so equal positions keep their input order.
func SortRegions(regions []Region, order SortOrder) {
	less := Less(order)
	sort.SliceStable(regions, func(i, j int) bool {
		return less(regions[i], regions[j])
	})
}

func compareInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
