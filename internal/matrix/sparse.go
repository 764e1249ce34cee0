package matrix

import (
	"sort"

	"gonum.org/v1/gonum/mat"
)

// Sparse is a growable list of triples.
type Sparse struct {
	limits
	data   []Element
	cursor int
}

// NewSparse returns an empty triple list with room for capacity entries.
func NewSparse(capacity int) *Sparse {
	return &Sparse{limits: newLimits(), data: make([]Element, 0, capacity)}
}

func (s *Sparse) Assign(row, col int, value float64) {
	s.data = append(s.data, Element{Row: row, Col: col, Value: value})
}

func (s *Sparse) AssignCheckRow(row, col int, value float64) {
	if s.rowOK(row) {
		s.Assign(row, col, value)
	}
}

func (s *Sparse) AssignCheckCol(row, col int, value float64) {
	if s.colOK(col) {
		s.Assign(row, col, value)
	}
}

func (s *Sparse) AssignCheck(row, col int, value float64) {
	if s.rowOK(row) && s.colOK(col) {
		s.Assign(row, col, value)
	}
}

func (s *Sparse) Size() int     { return len(s.data) }
func (s *Sparse) Capacity() int { return cap(s.data) }

func (s *Sparse) Reserve(n int) {
	if n > cap(s.data) {
		grown := make([]Element, len(s.data), n)
		copy(grown, s.data)
		s.data = grown
	}
}

// Clear drops all elements and keeps the storage.
func (s *Sparse) Clear() {
	s.data = s.data[:0]
	s.cursor = 0
}

func (s *Sparse) Start()         { s.cursor = 0 }
func (s *Sparse) MoreData() bool { return s.cursor < len(s.data) }

func (s *Sparse) Next() Element {
	e := s.data[s.cursor]
	s.cursor++
	return e
}

// Elements exposes the stored triples in insertion order.
func (s *Sparse) Elements() []Element { return s.data }

// TranslateRow moves every element on origRow to newRow.
func (s *Sparse) TranslateRow(origRow, newRow int) {
	for i := range s.data {
		if s.data[i].Row == origRow {
			s.data[i].Row = newRow
		}
	}
}

// ScaleRow multiplies every element on row by factor.
func (s *Sparse) ScaleRow(row int, factor float64) {
	for i := range s.data {
		if s.data[i].Row == row {
			s.data[i].Value *= factor
		}
	}
}

// Compact sorts the elements by column then row and sums duplicates.
func (s *Sparse) Compact() {
	if len(s.data) == 0 {
		return
	}
	sort.SliceStable(s.data, func(i, j int) bool {
		a, b := s.data[i], s.data[j]
		if a.Col != b.Col {
			return a.Col < b.Col
		}
		return a.Row < b.Row
	})
	out := s.data[:1]
	for _, e := range s.data[1:] {
		last := &out[len(out)-1]
		if last.Row == e.Row && last.Col == e.Col {
			last.Value += e.Value
			continue
		}
		out = append(out, e)
	}
	s.data = out
	s.cursor = 0
}

// At sums every element stored at (row, col).
func (s *Sparse) At(row, col int) float64 {
	v := 0.0
	for _, e := range s.data {
		if e.Row == row && e.Col == col {
			v += e.Value
		}
	}
	return v
}

// Has reports whether any element was assigned at (row, col).
func (s *Sparse) Has(row, col int) bool {
	for _, e := range s.data {
		if e.Row == row && e.Col == col {
			return true
		}
	}
	return false
}

// Row returns copies of the elements on row in insertion order.
func (s *Sparse) Row(row int) []Element {
	var out []Element
	for _, e := range s.data {
		if e.Row == row {
			out = append(out, e)
		}
	}
	return out
}

// Position is one structural non-zero.
type Position struct {
	Row int
	Col int
}

// Pattern returns the sorted, de-duplicated structure of the stored
// elements. It does not modify the list.
func (s *Sparse) Pattern() []Position {
	seen := make(map[Position]struct{}, len(s.data))
	out := make([]Position, 0, len(s.data))
	for _, e := range s.data {
		p := Position{Row: e.Row, Col: e.Col}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Col != out[j].Col {
			return out[i].Col < out[j].Col
		}
		return out[i].Row < out[j].Row
	})
	return out
}

// SamePattern reports whether two patterns are identical.
func SamePattern(a, b []Position) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Dense accumulates the elements into an r×c dense matrix. Elements outside
// the matrix are skipped.
func (s *Sparse) Dense(r, c int) *mat.Dense {
	d := mat.NewDense(r, c, nil)
	for _, e := range s.data {
		if e.Row < 0 || e.Row >= r || e.Col < 0 || e.Col >= c {
			continue
		}
		d.Set(e.Row, e.Col, d.At(e.Row, e.Col)+e.Value)
	}
	return d
}
