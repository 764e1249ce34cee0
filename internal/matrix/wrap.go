package matrix

// Translate forwards assignments to an underlying sink with rows remapped
// through a table. Rows without a mapping are dropped. It is used to clone a
// block of Jacobian contributions under new base rows.
type Translate struct {
	limits
	base Sink
	rows map[int]int
}

func NewTranslate(base Sink) *Translate {
	return &Translate{limits: newLimits(), base: base, rows: make(map[int]int)}
}

// Map routes assignments on row from to row to in the base sink.
func (t *Translate) Map(from, to int) { t.rows[from] = to }

// Offset maps rows [0, n) to [at, at+n).
func (t *Translate) Offset(at, n int) {
	for i := 0; i < n; i++ {
		t.rows[i] = at + i
	}
}

func (t *Translate) Assign(row, col int, value float64) {
	if to, ok := t.rows[row]; ok {
		t.base.Assign(to, col, value)
	}
}

func (t *Translate) AssignCheckRow(row, col int, value float64) {
	if t.rowOK(row) {
		t.Assign(row, col, value)
	}
}

func (t *Translate) AssignCheckCol(row, col int, value float64) {
	if t.colOK(col) {
		t.Assign(row, col, value)
	}
}

func (t *Translate) AssignCheck(row, col int, value float64) {
	if t.rowOK(row) && t.colOK(col) {
		t.Assign(row, col, value)
	}
}

func (t *Translate) Size() int      { return t.base.Size() }
func (t *Translate) Capacity() int  { return t.base.Capacity() }
func (t *Translate) Reserve(n int)  { t.base.Reserve(n) }
func (t *Translate) Clear()         { t.base.Clear() }
func (t *Translate) Start()         { t.base.Start() }
func (t *Translate) Next() Element  { return t.base.Next() }
func (t *Translate) MoreData() bool { return t.base.MoreData() }

// Scaled multiplies every assigned value by a factor before forwarding it.
type Scaled struct {
	limits
	base  Sink
	scale float64
}

func NewScaled(base Sink, scale float64) *Scaled {
	return &Scaled{limits: newLimits(), base: base, scale: scale}
}

func (s *Scaled) SetScale(scale float64) { s.scale = scale }

func (s *Scaled) Assign(row, col int, value float64) {
	s.base.Assign(row, col, value*s.scale)
}

func (s *Scaled) AssignCheckRow(row, col int, value float64) {
	if s.rowOK(row) {
		s.Assign(row, col, value)
	}
}

func (s *Scaled) AssignCheckCol(row, col int, value float64) {
	if s.colOK(col) {
		s.Assign(row, col, value)
	}
}

func (s *Scaled) AssignCheck(row, col int, value float64) {
	if s.rowOK(row) && s.colOK(col) {
		s.Assign(row, col, value)
	}
}

func (s *Scaled) Size() int      { return s.base.Size() }
func (s *Scaled) Capacity() int  { return s.base.Capacity() }
func (s *Scaled) Reserve(n int)  { s.base.Reserve(n) }
func (s *Scaled) Clear()         { s.base.Clear() }
func (s *Scaled) Start()         { s.base.Start() }
func (s *Scaled) Next() Element  { return s.base.Next() }
func (s *Scaled) MoreData() bool { return s.base.MoreData() }
