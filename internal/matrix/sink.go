// Package matrix provides the sparse-triple destinations components write
// their Jacobian entries into.
//
// Assign is additive: two entries at the same position sum. The checked
// variants silently drop entries whose row or column is negative (a null
// location) or at or beyond the configured limit, which is how a component
// skips partial derivatives with respect to inputs that are not states.
package matrix

// Element is one (row, col, value) triple.
type Element struct {
	Row   int
	Col   int
	Value float64
}

// NoLimit leaves a row or column limit unbounded.
const NoLimit = int(^uint(0) >> 1)

// Sink accumulates Jacobian triples and replays them in insertion order.
type Sink interface {
	Assign(row, col int, value float64)
	AssignCheckRow(row, col int, value float64)
	AssignCheckCol(row, col int, value float64)
	AssignCheck(row, col int, value float64)

	Size() int
	Capacity() int
	Reserve(n int)
	Clear()

	RowLimit() int
	ColLimit() int
	SetRowLimit(limit int)
	SetColLimit(limit int)

	// Start rewinds the read cursor; Next returns the element under it and
	// advances; MoreData reports whether Next has anything left to return.
	Start()
	Next() Element
	MoreData() bool
}

// limits is shared range bookkeeping for Sink implementations.
type limits struct {
	rowLim int
	colLim int
}

func newLimits() limits { return limits{rowLim: NoLimit, colLim: NoLimit} }

func (l *limits) RowLimit() int         { return l.rowLim }
func (l *limits) ColLimit() int         { return l.colLim }
func (l *limits) SetRowLimit(limit int) { l.rowLim = limit }
func (l *limits) SetColLimit(limit int) { l.colLim = limit }

func (l *limits) rowOK(row int) bool { return row >= 0 && row < l.rowLim }
func (l *limits) colOK(col int) bool { return col >= 0 && col < l.colLim }

// replay hands fn the elements src holds when it is called. Elements fn
// appends to src itself are not revisited, so dst may be src.
func replay(src Sink, fn func(Element)) {
	n := src.Size()
	src.Start()
	for i := 0; i < n && src.MoreData(); i++ {
		fn(src.Next())
	}
}

// Merge replays every element of src into dst.
func Merge(dst, src Sink) {
	replay(src, func(e Element) { dst.Assign(e.Row, e.Col, e.Value) })
}

// MergeScaled replays src into dst with every value multiplied by scale.
func MergeScaled(dst, src Sink, scale float64) {
	replay(src, func(e Element) { dst.Assign(e.Row, e.Col, e.Value*scale) })
}

// CopyTranslateRow copies the elements of src on origRow into dst on newRow.
func CopyTranslateRow(dst, src Sink, origRow, newRow int) {
	replay(src, func(e Element) {
		if e.Row == origRow {
			dst.Assign(newRow, e.Col, e.Value)
		}
	})
}

// CopyRow copies the elements of src on row into dst unchanged.
func CopyRow(dst, src Sink, row int) {
	CopyTranslateRow(dst, src, row, row)
}
